package accel

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine/gpu"
	"github.com/Carmen-Shannon/oxy-rt/engine/gpu/soft"
	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const updatable = gpu.BuildAccelerationStructureAllowUpdate | gpu.BuildAccelerationStructurePreferFastTrace

// triangleVertices is counter-clockwise when seen from +z.
var triangleVertices = []Vertex{
	{Position: common.Vec3{-1, -1, 0}, Normal: common.Vec3{0, 0, 1}},
	{Position: common.Vec3{1, -1, 0}, Normal: common.Vec3{0, 0, 1}, UV: [2]float32{1, 0}},
	{Position: common.Vec3{0, 1, 0}, Normal: common.Vec3{0, 0, 1}, UV: [2]float32{0.5, 1}},
}

type fixture struct {
	t   *testing.T
	dev *soft.Device
	cmd gpu.CommandBuffer
}

func newFixture(t *testing.T, options ...soft.DeviceOption) *fixture {
	t.Helper()
	dev := soft.New(options...)
	t.Cleanup(dev.Destroy)
	cmd, err := dev.AllocateCommandBuffer("load")
	require.NoError(t, err)
	return &fixture{t: t, dev: dev, cmd: cmd}
}

func (f *fixture) triangle(label string) *GeometryBuffer {
	f.t.Helper()
	g, err := NewGeometryBuffer(f.dev, f.dev.Queue(), f.cmd, label, triangleVertices, []uint32{0, 1, 2})
	require.NoError(f.t, err)
	f.t.Cleanup(g.Destroy)
	return g
}

// scene describes one triangle mesh per transform and builds every structure.
func (f *fixture) scene(transforms []common.Mat4, flags gpu.BuildAccelerationStructureFlags, options ...WrapperBuilderOption) Wrapper {
	f.t.Helper()
	var meshes []*GeometryBuffer
	for range transforms {
		meshes = append(meshes, f.triangle("tri"))
	}
	w := NewWrapper(options...)
	f.t.Cleanup(w.Destroy)
	require.NoError(f.t, DescribeGeometry(w, meshes, transforms))
	require.NoError(f.t, w.BuildAS(f.dev, f.dev.Queue(), f.cmd, flags))
	return w
}

func castDown(w Wrapper, flags soft.RayFlags, x, y float32) soft.Hit {
	ray := common.Ray{Origin: common.Vec3{x, y, 5}, Direction: common.Vec3{0, 0, -1}}
	return soft.TopLevelOf(w.TopLevel()).Intersect(flags, 0xFF, ray, 0.001, 100)
}

func castUp(w Wrapper, flags soft.RayFlags, x, y float32) soft.Hit {
	ray := common.Ray{Origin: common.Vec3{x, y, -5}, Direction: common.Vec3{0, 0, 1}}
	return soft.TopLevelOf(w.TopLevel()).Intersect(flags, 0xFF, ray, 0.001, 100)
}

// hitGrid samples downward rays over [-5,5]x[-3,3].
func hitGrid(w Wrapper) []soft.Hit {
	var hits []soft.Hit
	for y := float32(-3); y <= 3; y += 0.25 {
		for x := float32(-5); x <= 5; x += 0.25 {
			h := castDown(w, soft.RayFlagOpaque, x, y)
			h.ObjectToWorld = common.Mat4{}
			hits = append(hits, h)
		}
	}
	return hits
}

func TestBuildModelDescriptionLengthMismatch(t *testing.T) {
	w := NewWrapper()
	err := w.BuildModelDescription(make([]gpu.Buffer, 2), make([]gpu.Buffer, 2), []int{3, 3}, []int{3}, make([]common.Mat4, 2))
	require.Error(t, err)
	assert.Equal(t, gpu.ErrorKindInvalidUsage, gpu.KindOf(err))
	assert.Empty(t, w.ModelInfos())
}

func TestBuildModelDescriptionDefaults(t *testing.T) {
	w := NewWrapper()
	m := common.Mul4(common.Translate4(1, 2, 3), common.Scale4(2, 2, 2))
	require.NoError(t, w.BuildModelDescription(make([]gpu.Buffer, 2), make([]gpu.Buffer, 2), []int{4, 8}, []int{6, 7}, []common.Mat4{common.Identity4(), m}))

	infos := w.ModelInfos()
	require.Len(t, infos, 2)
	assert.Equal(t, uint32(2), infos[0].PrimitiveCount)
	assert.Equal(t, uint32(3), infos[1].PrimitiveCount)
	assert.Equal(t, uint32(8), infos[1].VertexCount)
	assert.Equal(t, uint64(DefaultVertexStride), infos[1].VertexStride)

	for i, inst := range w.Instances() {
		assert.Equal(t, uint32(i), inst.ModelIndex)
		assert.Equal(t, uint32(i), inst.InstanceID)
		assert.Equal(t, uint32(0), inst.HitGroup)
		assert.Equal(t, uint8(0xFF), inst.Mask)
		assert.Equal(t, gpu.GeometryInstanceTriangleFacingCullDisable, inst.Flags)
	}
	it, ok := common.InverseTranspose4(m)
	require.True(t, ok)
	assert.True(t, common.ApproxEqual4(it, w.SceneDescriptions()[1].TransformIT, 1e-5))
	assert.Nil(t, w.TopLevel())

	w.ClearModelDescription()
	assert.Empty(t, w.Instances())
	assert.Empty(t, w.SceneDescriptions())
}

func TestPrimitiveCount(t *testing.T) {
	for n, want := range map[int]uint32{-1: 0, 0: 0, 1: 1, 3: 1, 4: 2, 6: 2, 7: 3} {
		assert.Equal(t, want, PrimitiveCount(n), "index count %d", n)
	}
}

func TestBuildASRejectsEmptyGeometry(t *testing.T) {
	f := newFixture(t)
	g := f.triangle("tri")
	w := NewWrapper()
	t.Cleanup(w.Destroy)
	require.NoError(t, w.BuildModelDescription([]gpu.Buffer{g.Vertices}, []gpu.Buffer{g.Indices}, []int{3}, []int{0}, []common.Mat4{common.Identity4()}))

	err := w.BuildAS(f.dev, f.dev.Queue(), f.cmd, updatable)
	require.Error(t, err)
	assert.Equal(t, gpu.ErrorKindZeroSize, gpu.KindOf(err))
	assert.Nil(t, w.TopLevel())

	err = NewWrapper().BuildAS(f.dev, f.dev.Queue(), f.cmd, updatable)
	assert.Equal(t, gpu.ErrorKindZeroSize, gpu.KindOf(err))
}

func TestBuildASWithoutFeature(t *testing.T) {
	f := newFixture(t, soft.WithFeatures(gpu.DeviceFeatures{BufferDeviceAddress: true}))
	g := f.triangle("tri")
	w := NewWrapper()
	require.NoError(t, DescribeGeometry(w, []*GeometryBuffer{g}, []common.Mat4{common.Identity4()}))

	err := w.BuildAS(f.dev, f.dev.Queue(), f.cmd, updatable)
	require.Error(t, err)
	assert.Equal(t, gpu.ErrorKindUnsupported, gpu.KindOf(err))
	assert.True(t, gpu.IsFatal(err))
}

func TestNewGeometryBufferRejectsEmptyMesh(t *testing.T) {
	f := newFixture(t)
	_, err := NewGeometryBuffer(f.dev, f.dev.Queue(), f.cmd, "empty", nil, []uint32{0, 1, 2})
	assert.Equal(t, gpu.ErrorKindZeroSize, gpu.KindOf(err))
}

func TestSingleTriangleFacing(t *testing.T) {
	f := newFixture(t)

	t.Run("cull disabled by default", func(t *testing.T) {
		w := f.scene([]common.Mat4{common.Identity4()}, updatable)
		front := castDown(w, soft.RayFlagCullBackFacingTriangles, 0, 0)
		require.True(t, front.Hit)
		assert.InDelta(t, 5, front.T, 1e-5)
		assert.True(t, front.FrontFace)
		assert.InDelta(t, 1, front.Normal[2], 1e-5)

		back := castUp(w, soft.RayFlagCullBackFacingTriangles, 0, 0)
		require.True(t, back.Hit)
		assert.False(t, back.FrontFace)
	})

	t.Run("culling honored without the instance flag", func(t *testing.T) {
		w := f.scene([]common.Mat4{common.Identity4()}, updatable, WithInstanceFlags(0))
		assert.True(t, castDown(w, soft.RayFlagCullBackFacingTriangles, 0, 0).Hit)
		assert.False(t, castUp(w, soft.RayFlagCullBackFacingTriangles, 0, 0).Hit)
		assert.True(t, castUp(w, soft.RayFlagNone, 0, 0).Hit)
	})

	t.Run("mask and hit group", func(t *testing.T) {
		w := f.scene([]common.Mat4{common.Identity4()}, updatable, WithInstanceMask(0x02), WithHitGroup(1))
		tl := soft.TopLevelOf(w.TopLevel())
		ray := common.Ray{Origin: common.Vec3{0, 0, 5}, Direction: common.Vec3{0, 0, -1}}
		assert.False(t, tl.Intersect(soft.RayFlagNone, 0x01, ray, 0, 100).Hit)
		h := tl.Intersect(soft.RayFlagNone, 0x02, ray, 0, 100)
		require.True(t, h.Hit)
		assert.Equal(t, uint32(1), h.SBTRecordOffset)
	})
}

func TestBuildASIsIdempotent(t *testing.T) {
	f := newFixture(t)
	transforms := []common.Mat4{common.Translate4(-3, 0, 0), common.Translate4(3, 0, 0)}
	w := f.scene(transforms, updatable)
	before := hitGrid(w)

	require.NoError(t, w.BuildAS(f.dev, f.dev.Queue(), f.cmd, updatable))
	assert.Equal(t, before, hitGrid(w))
	assert.Equal(t, 4, w.Stats().BottomLevelBuilds)
	assert.Equal(t, 2, w.Stats().TopLevelBuilds)
}

func TestUpdateMatchesRebuild(t *testing.T) {
	f := newFixture(t)
	start := []common.Mat4{common.Translate4(-3, 0, 0), common.Translate4(3, 0, 0)}
	moved := []common.Mat4{
		common.Mul4(common.Translate4(-2, 1, 0), common.Scale4(1.5, 1.5, 1)),
		common.Translate4(3, -1.5, -1),
	}

	updated := f.scene(start, updatable)
	require.NoError(t, updated.UpdateInstanceTransforms(moved))
	require.NoError(t, updated.BuildTopLevel(f.dev, f.cmd, f.dev.Queue(), updatable, true))

	rebuilt := f.scene(moved, updatable)
	assert.Equal(t, hitGrid(rebuilt), hitGrid(updated))
	assert.Equal(t, 1, updated.Stats().TopLevelUpdates)
	assert.Equal(t, 1, f.dev.Stats().BuildCount(gpu.AccelerationStructureTypeTopLevel, gpu.BuildAccelerationStructureModeUpdate))
}

func TestTransformPropagation(t *testing.T) {
	f := newFixture(t)
	w := f.scene([]common.Mat4{common.Identity4(), common.Identity4()}, updatable)
	m := common.Mul4(common.Translate4(0.5, -2, 4), common.Scale4(1, 2, 1))
	require.NoError(t, w.UpdateInstanceTransforms([]common.Mat4{common.Identity4(), m}))
	require.NoError(t, w.BuildTopLevel(f.dev, f.cmd, f.dev.Queue(), updatable, true))

	raw := soft.Bytes(w.InstanceBuffer())
	require.Len(t, raw, 2*gpu.ASInstanceSize)
	rec, err := gpu.UnmarshalASInstance(raw[gpu.ASInstanceSize:])
	require.NoError(t, err)
	assert.Equal(t, [12]float32{
		1, 0, 0, 0.5,
		0, 2, 0, -2,
		0, 0, 1, 4,
	}, rec.Transform)
	assert.Equal(t, uint32(1), rec.CustomIndex)
	assert.Equal(t, w.BottomLevel(1).DeviceAddress(), rec.AccelerationStructureReference)

	it, _ := common.InverseTranspose4(m)
	assert.True(t, common.ApproxEqual4(it, w.SceneDescriptions()[1].TransformIT, 1e-5))
	assert.Equal(t, m, w.Instances()[1].Transform)
}

func TestUpdateInstanceTransformsValidates(t *testing.T) {
	f := newFixture(t)
	w := f.scene([]common.Mat4{common.Identity4()}, updatable)
	assert.Equal(t, gpu.ErrorKindInvalidUsage, gpu.KindOf(w.UpdateInstanceTransforms(nil)))
	assert.Equal(t, gpu.ErrorKindInvalidUsage, gpu.KindOf(w.UpdateInstanceTransforms([]common.Mat4{{}})))
	assert.Equal(t, common.Identity4(), w.Instances()[0].Transform)
}

func TestUpdateRequiresAllowUpdate(t *testing.T) {
	f := newFixture(t)
	w := f.scene([]common.Mat4{common.Identity4()}, gpu.BuildAccelerationStructurePreferFastTrace)
	err := w.BuildTopLevel(f.dev, f.cmd, f.dev.Queue(), updatable, true)
	assert.Equal(t, gpu.ErrorKindInvalidUsage, gpu.KindOf(err))

	err = NewWrapper().BuildTopLevel(f.dev, f.cmd, f.dev.Queue(), updatable, true)
	assert.Equal(t, gpu.ErrorKindZeroSize, gpu.KindOf(err))
}

func TestInstanceCountChangeNeedsRebuild(t *testing.T) {
	f := newFixture(t)
	w := f.scene([]common.Mat4{common.Translate4(-3, 0, 0)}, updatable)
	extra := f.triangle("extra")
	require.NoError(t, DescribeGeometry(w, []*GeometryBuffer{extra}, []common.Mat4{common.Translate4(3, 0, 0)}))

	err := w.BuildTopLevel(f.dev, f.cmd, f.dev.Queue(), updatable, true)
	require.Error(t, err)
	assert.Equal(t, gpu.ErrorKindInvalidUsage, gpu.KindOf(err))

	require.NoError(t, w.Rebuild(f.dev, f.cmd, f.dev.Queue(), updatable))
	assert.True(t, castDown(w, soft.RayFlagNone, -3, 0).Hit)
	h := castDown(w, soft.RayFlagNone, 3, 0)
	require.True(t, h.Hit)
	assert.Equal(t, uint32(1), h.InstanceCustomIndex)

	require.NoError(t, w.BuildTopLevel(f.dev, f.cmd, f.dev.Queue(), updatable, true))
}

func TestRebuildAfterNewDescription(t *testing.T) {
	f := newFixture(t)
	w := f.scene([]common.Mat4{common.Identity4()}, updatable)
	require.True(t, castDown(w, soft.RayFlagNone, 0, 0).Hit)

	shifted, err := NewGeometryBuffer(f.dev, f.dev.Queue(), f.cmd, "shifted", []Vertex{
		{Position: common.Vec3{9, -1, 0}, Normal: common.Vec3{0, 0, 1}},
		{Position: common.Vec3{11, -1, 0}, Normal: common.Vec3{0, 0, 1}},
		{Position: common.Vec3{10, 1, 0}, Normal: common.Vec3{0, 0, 1}},
	}, []uint32{0, 1, 2})
	require.NoError(t, err)
	t.Cleanup(shifted.Destroy)

	w.ClearModelDescription()
	require.NoError(t, DescribeGeometry(w, []*GeometryBuffer{shifted}, []common.Mat4{common.Identity4()}))
	require.NoError(t, w.Rebuild(f.dev, f.cmd, f.dev.Queue(), updatable))

	assert.Equal(t, 2, w.Stats().BottomLevelBuilds)
	assert.True(t, castDown(w, soft.RayFlagNone, 10, 0).Hit)
	assert.False(t, castDown(w, soft.RayFlagNone, 0, 0).Hit)

	require.NoError(t, w.Rebuild(f.dev, f.cmd, f.dev.Queue(), updatable))
	assert.Equal(t, 2, w.Stats().BottomLevelBuilds)
}

func TestInstancesShareModel(t *testing.T) {
	f := newFixture(t)
	tri := f.triangle("shared")
	w := NewWrapper()
	t.Cleanup(w.Destroy)
	require.NoError(t, DescribeInstances(w, []*GeometryBuffer{tri}, []int{0, 0, 0},
		[]common.Mat4{common.Translate4(-3, 0, 0), common.Identity4(), common.Translate4(3, 0, 0)}))
	require.NoError(t, w.BuildAS(f.dev, f.dev.Queue(), f.cmd, updatable))

	assert.Len(t, w.ModelInfos(), 1)
	assert.Equal(t, 1, w.Stats().BottomLevelBuilds)
	for i, x := range []float32{-3, 0, 3} {
		h := castDown(w, soft.RayFlagNone, x, 0)
		require.True(t, h.Hit, "instance %d", i)
		assert.Equal(t, uint32(i), h.InstanceIndex)
		assert.Equal(t, uint32(i), h.InstanceCustomIndex)
		assert.Equal(t, uint32(0), w.Instances()[i].ModelIndex)
	}

	err := DescribeInstances(w, []*GeometryBuffer{tri}, []int{1}, []common.Mat4{common.Identity4()})
	assert.Equal(t, gpu.ErrorKindInvalidUsage, gpu.KindOf(err))
	assert.Equal(t, gpu.ErrorKindInvalidUsage, gpu.KindOf(w.AddInstance(7, common.Identity4())))
	assert.Equal(t, gpu.ErrorKindInvalidUsage, gpu.KindOf(w.AddInstance(0, common.Mat4{})))
}

func TestAnimatedSceneOverFrames(t *testing.T) {
	f := newFixture(t)
	transforms := func(frame int) []common.Mat4 {
		return []common.Mat4{
			common.Translate4(-3, 2*math32.Sin(0.1*float32(frame)), 0),
			common.Translate4(3, 0, 0),
		}
	}
	w := f.scene(transforms(0), updatable)

	for frame := 1; frame <= 100; frame++ {
		require.NoError(t, w.UpdateInstanceTransforms(transforms(frame)))
		require.NoError(t, w.BuildTopLevel(f.dev, f.cmd, f.dev.Queue(), updatable, true))

		y := 2 * math32.Sin(0.1*float32(frame))
		h := castDown(w, soft.RayFlagNone, -3, y)
		require.True(t, h.Hit, "frame %d", frame)
		assert.InDelta(t, 5, h.T, 1e-4)
		assert.Equal(t, uint32(0), h.InstanceCustomIndex)
		assert.False(t, castDown(w, soft.RayFlagNone, -3, y+1.5).Hit, "frame %d", frame)

		h = castDown(w, soft.RayFlagNone, 3, 0)
		require.True(t, h.Hit, "frame %d", frame)
		assert.Equal(t, uint32(1), h.InstanceCustomIndex)
	}
	assert.Equal(t, 100, w.Stats().TopLevelUpdates)
	assert.Equal(t, 100, f.dev.Stats().BuildCount(gpu.AccelerationStructureTypeTopLevel, gpu.BuildAccelerationStructureModeUpdate))
	assert.Empty(t, f.dev.Errors())
}

func TestDestroyIsIdempotent(t *testing.T) {
	f := newFixture(t)
	w := f.scene([]common.Mat4{common.Identity4()}, updatable)
	w.Destroy()
	w.Destroy()
	assert.Nil(t, w.TopLevel())
	assert.Nil(t, w.BottomLevel(0))
	assert.Nil(t, w.InstanceBuffer())
}

func TestInstanceTableRecord(t *testing.T) {
	var table InstanceTable
	_, err := table.Record(0)
	assert.Error(t, err)
	err = table.Pack([]Instance{{ModelIndex: 1}}, nil)
	assert.Equal(t, gpu.ErrorKindInvalidUsage, gpu.KindOf(err))
	assert.Equal(t, 0, table.Len())
}
