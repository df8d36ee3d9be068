package soft

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine/gpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSizes(t *testing.T) {
	d := newTestDevice(t)
	blas := gpu.AccelerationStructureBuildGeometryInfo{
		Type:       gpu.AccelerationStructureTypeBottomLevel,
		Geometries: []gpu.AccelerationStructureGeometry{{Type: gpu.GeometryTypeTriangles}},
	}

	sizes, err := d.GetAccelerationStructureBuildSizes(&blas, []uint32{0})
	require.NoError(t, err)
	assert.Equal(t, gpu.AccelerationStructureBuildSizes{}, sizes)

	sizes, err = d.GetAccelerationStructureBuildSizes(&blas, []uint32{10})
	require.NoError(t, err)
	assert.Equal(t, uint64(64+2*10*32+10*48), sizes.AccelerationStructureSize)
	assert.Equal(t, uint64(10*32+256), sizes.BuildScratchSize)
	assert.Equal(t, uint64(10*16+128), sizes.UpdateScratchSize)

	tlas := gpu.AccelerationStructureBuildGeometryInfo{
		Type:       gpu.AccelerationStructureTypeTopLevel,
		Geometries: []gpu.AccelerationStructureGeometry{{Type: gpu.GeometryTypeInstances}},
	}
	sizes, err = d.GetAccelerationStructureBuildSizes(&tlas, []uint32{2})
	require.NoError(t, err)
	assert.Equal(t, uint64(64+2*2*32+2*64), sizes.AccelerationStructureSize)

	_, err = d.GetAccelerationStructureBuildSizes(&tlas, []uint32{1, 2})
	assert.Equal(t, gpu.ErrorKindInvalidUsage, gpu.KindOf(err))
}

func TestAccelerationStructureFeatureRequired(t *testing.T) {
	d := newTestDevice(t, WithFeatures(gpu.DeviceFeatures{BufferDeviceAddress: true}))
	info := gpu.AccelerationStructureBuildGeometryInfo{Type: gpu.AccelerationStructureTypeBottomLevel}
	_, err := d.GetAccelerationStructureBuildSizes(&info, nil)
	require.Error(t, err)
	assert.Equal(t, gpu.ErrorKindUnsupported, gpu.KindOf(err))
	assert.Equal(t, gpu.ErrorFeatureNotPresent, gpu.ResultOf(err))
}

func TestTriangleFacingAndCulling(t *testing.T) {
	fromFront := common.Ray{Origin: common.Vec3{0, 0, 5}, Direction: common.Vec3{0, 0, -1}}
	fromBack := common.Ray{Origin: common.Vec3{0, 0, -5}, Direction: common.Vec3{0, 0, 1}}

	tests := []struct {
		name      string
		instFlags gpu.GeometryInstanceFlags
		rayFlags  RayFlags
		ray       common.Ray
		hit       bool
		front     bool
	}{
		{name: "front face", ray: fromFront, hit: true, front: true},
		{name: "back face without culling", ray: fromBack, hit: true, front: false},
		{name: "back face culled", rayFlags: RayFlagCullBackFacingTriangles, ray: fromBack},
		{name: "front face survives back culling", rayFlags: RayFlagCullBackFacingTriangles, ray: fromFront, hit: true, front: true},
		{name: "front face culled", rayFlags: RayFlagCullFrontFacingTriangles, ray: fromFront},
		{name: "cull disable", instFlags: gpu.GeometryInstanceTriangleFacingCullDisable, rayFlags: RayFlagCullBackFacingTriangles, ray: fromBack, hit: true},
		{name: "flip facing", instFlags: gpu.GeometryInstanceTriangleFlipFacing, rayFlags: RayFlagCullBackFacingTriangles, ray: fromBack, hit: true, front: true},
		{name: "opaque culled", rayFlags: RayFlagCullOpaque, ray: fromFront},
		{name: "forced non-opaque culled", instFlags: gpu.GeometryInstanceForceNoOpaque, rayFlags: RayFlagCullNoOpaque, ray: fromFront},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig(t)
			require.NoError(t, r.buildTLAS([]gpu.ASInstance{identityInstance(7, tt.instFlags)}, gpu.BuildAccelerationStructureModeBuild))

			h := r.topLevel().Intersect(tt.rayFlags, 0xFF, tt.ray, 0.001, 100)
			require.Equal(t, tt.hit, h.Hit)
			if !tt.hit {
				return
			}
			assert.InDelta(t, 5, h.T, 1e-5)
			assert.Equal(t, uint32(7), h.InstanceCustomIndex)
			assert.Equal(t, uint32(0), h.PrimitiveIndex)
			if tt.instFlags&gpu.GeometryInstanceTriangleFacingCullDisable == 0 {
				assert.Equal(t, tt.front, h.FrontFace)
			}
			// The normal always faces the ray origin.
			assert.Less(t, common.Dot3(h.Normal, tt.ray.Direction), float32(0))
		})
	}
}

func TestInstanceTransformAndMask(t *testing.T) {
	r := newRig(t)
	inst := identityInstance(3, 0)
	inst.Transform = common.RowMajor3x4(common.Translate4(10, 0, 0))
	inst.Mask = 0x01
	require.NoError(t, r.buildTLAS([]gpu.ASInstance{inst}, gpu.BuildAccelerationStructureModeBuild))
	tl := r.topLevel()

	down := common.Vec3{0, 0, -1}
	h := tl.Intersect(0, 0xFF, common.Ray{Origin: common.Vec3{10, 0, 5}, Direction: down}, 0, 100)
	require.True(t, h.Hit)
	assert.Equal(t, uint32(3), h.InstanceCustomIndex)
	assert.InDelta(t, 1, h.Normal[2], 1e-5)

	assert.False(t, tl.Intersect(0, 0xFF, common.Ray{Origin: common.Vec3{0, 0, 5}, Direction: down}, 0, 100).Hit)
	assert.False(t, tl.Intersect(0, 0x02, common.Ray{Origin: common.Vec3{10, 0, 5}, Direction: down}, 0, 100).Hit)
	assert.False(t, tl.Intersect(0, 0xFF, common.Ray{Origin: common.Vec3{10, 0, 5}, Direction: down}, 0, 4).Hit)
}

func TestClosestHitTieBreaksByInstanceIndex(t *testing.T) {
	r := newRig(t)
	near := identityInstance(1, 0)
	near.Transform = common.RowMajor3x4(common.Translate4(0, 0, 1))
	require.NoError(t, r.buildTLAS([]gpu.ASInstance{identityInstance(0, 0), identityInstance(2, 0), near}, gpu.BuildAccelerationStructureModeBuild))
	tl := r.topLevel()
	ray := common.Ray{Origin: common.Vec3{0, 0, 5}, Direction: common.Vec3{0, 0, -1}}

	h := tl.Intersect(0, 0xFF, ray, 0, 100)
	require.True(t, h.Hit)
	assert.Equal(t, uint32(2), h.InstanceIndex)
	assert.InDelta(t, 4, h.T, 1e-5)

	// Below the near instance the two coincident instances tie; the lower index wins.
	h = tl.Intersect(0, 0xFF, ray, 4.5, 100)
	require.True(t, h.Hit)
	assert.Equal(t, uint32(0), h.InstanceIndex)

	assert.True(t, tl.Intersect(RayFlagTerminateOnFirstHit, 0xFF, ray, 0, 100).Hit)
}

func TestTLASUpdateRefitsInstances(t *testing.T) {
	r := newRig(t)
	require.NoError(t, r.buildTLAS([]gpu.ASInstance{identityInstance(0, 0)}, gpu.BuildAccelerationStructureModeBuild))

	moved := identityInstance(0, 0)
	moved.Transform = common.RowMajor3x4(common.Translate4(0, 5, 0))
	require.NoError(t, r.buildTLAS([]gpu.ASInstance{moved}, gpu.BuildAccelerationStructureModeUpdate))

	down := common.Vec3{0, 0, -1}
	tl := r.topLevel()
	assert.False(t, tl.Intersect(0, 0xFF, common.Ray{Origin: common.Vec3{0, 0, 5}, Direction: down}, 0, 100).Hit)
	assert.True(t, tl.Intersect(0, 0xFF, common.Ray{Origin: common.Vec3{0, 5, 5}, Direction: down}, 0, 100).Hit)

	stats := r.d.Stats()
	assert.Equal(t, 1, stats.BuildCount(gpu.AccelerationStructureTypeTopLevel, gpu.BuildAccelerationStructureModeBuild))
	assert.Equal(t, 1, stats.BuildCount(gpu.AccelerationStructureTypeTopLevel, gpu.BuildAccelerationStructureModeUpdate))
	assert.Equal(t, 1, stats.BuildCount(gpu.AccelerationStructureTypeBottomLevel, gpu.BuildAccelerationStructureModeBuild))
}

func TestTLASUpdateRejectsCountChange(t *testing.T) {
	r := newRig(t)
	require.NoError(t, r.buildTLAS([]gpu.ASInstance{identityInstance(0, 0)}, gpu.BuildAccelerationStructureModeBuild))
	err := r.buildTLAS([]gpu.ASInstance{identityInstance(0, 0), identityInstance(1, 0)}, gpu.BuildAccelerationStructureModeUpdate)
	require.Error(t, err)
	assert.Equal(t, gpu.ErrorKindInvalidUsage, gpu.KindOf(err))
}

func TestScratchReuseNeedsBarrier(t *testing.T) {
	d := newTestDevice(t)
	vb := hostBuffer(t, d, "vertices", buildInput, common.SliceToBytes(triangle))
	ib := hostBuffer(t, d, "indices", buildInput, common.SliceToBytes([]uint32{0, 1, 2}))
	scratch := deviceBuffer(t, d, "scratch", gpu.BufferUsageStorage|gpu.BufferUsageShaderDeviceAddress, 1024)

	record := func(barrier bool) gpu.CommandBuffer {
		cmd := beginCmd(t, d, "builds")
		for i := 0; i < 2; i++ {
			buf := deviceBuffer(t, d, "blas", gpu.BufferUsageAccelerationStructureStorage|gpu.BufferUsageShaderDeviceAddress, 1024)
			as, err := d.CreateAccelerationStructure(gpu.AccelerationStructureDescriptor{Label: "blas", Type: gpu.AccelerationStructureTypeBottomLevel, Buffer: buf, Size: 1024})
			require.NoError(t, err)
			info := gpu.AccelerationStructureBuildGeometryInfo{
				Type:        gpu.AccelerationStructureTypeBottomLevel,
				Dst:         as,
				Geometries:  []gpu.AccelerationStructureGeometry{triangleGeometry(t, vb, ib, 3)},
				ScratchData: address(t, scratch),
			}
			cmd.BuildAccelerationStructures([]gpu.AccelerationStructureBuildGeometryInfo{info}, [][]gpu.AccelerationStructureBuildRangeInfo{{{PrimitiveCount: 1}}})
			if barrier {
				cmd.PipelineBarrier(asBarrier())
			}
		}
		require.NoError(t, cmd.End())
		return cmd
	}

	err := gpu.SubmitAndWait(d.Queue(), record(false))
	require.Error(t, err)
	assert.Equal(t, gpu.ErrorKindInvalidUsage, gpu.KindOf(err))
	assert.NotEmpty(t, d.Errors())

	require.NoError(t, d.Queue().WaitIdle())
	require.NoError(t, gpu.SubmitAndWait(d.Queue(), record(true)))
}

func TestInstanceUploadNeedsTransferBarrier(t *testing.T) {
	for _, barrier := range []bool{false, true} {
		r := newRig(t)
		d := r.d
		inst := identityInstance(0, 0)
		inst.AccelerationStructureReference = r.blas.DeviceAddress()
		raw := make([]byte, gpu.ASInstanceSize)
		require.NoError(t, inst.Marshal(raw))

		instances := deviceBuffer(t, d, "instances", buildInput|gpu.BufferUsageTransferDst, gpu.ASInstanceSize)
		tlasBuf := deviceBuffer(t, d, "tlas", gpu.BufferUsageAccelerationStructureStorage|gpu.BufferUsageShaderDeviceAddress, 1024)
		tlas, err := d.CreateAccelerationStructure(gpu.AccelerationStructureDescriptor{Label: "tlas", Type: gpu.AccelerationStructureTypeTopLevel, Buffer: tlasBuf, Size: 1024})
		require.NoError(t, err)

		cmd := beginCmd(t, d, "upload")
		staging, err := gpu.UpdateBufferUsingStagingBuffer(d, instances, cmd, raw, 0)
		require.NoError(t, err)
		if barrier {
			dep := gpu.Dependency{SrcStage: gpu.PipelineStageTransfer, DstStage: gpu.PipelineStageAccelerationStructureBuild}
			dep.AddMemory(gpu.AccessTransferWrite, gpu.AccessAccelerationStructureWrite)
			cmd.PipelineBarrier(dep)
		}
		info := gpu.AccelerationStructureBuildGeometryInfo{
			Type:        gpu.AccelerationStructureTypeTopLevel,
			Dst:         tlas,
			Geometries:  []gpu.AccelerationStructureGeometry{{Type: gpu.GeometryTypeInstances, Instances: gpu.InstancesData{Data: address(t, instances)}}},
			ScratchData: address(t, r.scratch),
		}
		cmd.BuildAccelerationStructures([]gpu.AccelerationStructureBuildGeometryInfo{info}, [][]gpu.AccelerationStructureBuildRangeInfo{{{PrimitiveCount: 1}}})
		require.NoError(t, cmd.End())

		err = gpu.SubmitAndWait(d.Queue(), cmd)
		staging.Destroy()
		if barrier {
			assert.NoError(t, err)
		} else {
			assert.Equal(t, gpu.ErrorKindInvalidUsage, gpu.KindOf(err))
		}
	}
}

func TestUpdateNeedsAllowUpdate(t *testing.T) {
	r := newRig(t)
	vb := hostBuffer(t, r.d, "vertices", buildInput, common.SliceToBytes(triangle))
	ib := hostBuffer(t, r.d, "indices", buildInput, common.SliceToBytes([]uint32{0, 1, 2}))
	info := gpu.AccelerationStructureBuildGeometryInfo{
		Type:        gpu.AccelerationStructureTypeBottomLevel,
		Mode:        gpu.BuildAccelerationStructureModeUpdate,
		Src:         r.blas,
		Dst:         r.blas,
		Geometries:  []gpu.AccelerationStructureGeometry{triangleGeometry(t, vb, ib, 3)},
		ScratchData: address(t, r.scratch),
	}
	cmd := beginCmd(t, r.d, "update")
	cmd.BuildAccelerationStructures([]gpu.AccelerationStructureBuildGeometryInfo{info}, [][]gpu.AccelerationStructureBuildRangeInfo{{{PrimitiveCount: 1}}})
	require.NoError(t, cmd.End())
	assert.Error(t, gpu.SubmitAndWait(r.d.Queue(), cmd))
}
