package soft

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine/gpu"
	"github.com/stretchr/testify/require"
)

const buildInput = gpu.BufferUsageAccelerationStructureBuildInputReadOnly | gpu.BufferUsageShaderDeviceAddress

// triangle is counter-clockwise when seen from +z.
var triangle = []float32{
	-1, -1, 0,
	1, -1, 0,
	0, 1, 0,
}

func newTestDevice(t *testing.T, options ...DeviceOption) *Device {
	t.Helper()
	d := New(options...)
	t.Cleanup(d.Destroy)
	return d
}

func hostBuffer(t *testing.T, d *Device, label string, usage gpu.BufferUsage, data []byte) gpu.Buffer {
	t.Helper()
	b, err := d.CreateBuffer(gpu.BufferDescriptor{
		Label:    label,
		Size:     uint64(len(data)),
		Usage:    usage,
		Required: gpu.MemoryPropertyHostVisible | gpu.MemoryPropertyHostCoherent,
	})
	require.NoError(t, err)
	require.NoError(t, gpu.WriteMapped(b, 0, data))
	return b
}

func deviceBuffer(t *testing.T, d *Device, label string, usage gpu.BufferUsage, size uint64) gpu.Buffer {
	t.Helper()
	b, err := d.CreateBuffer(gpu.BufferDescriptor{Label: label, Size: size, Usage: usage, Required: gpu.MemoryPropertyDeviceLocal})
	require.NoError(t, err)
	return b
}

func address(t *testing.T, b gpu.Buffer) gpu.DeviceAddress {
	t.Helper()
	a, err := b.DeviceAddress()
	require.NoError(t, err)
	return a
}

func beginCmd(t *testing.T, d *Device, label string) gpu.CommandBuffer {
	t.Helper()
	cmd, err := d.AllocateCommandBuffer(label)
	require.NoError(t, err)
	require.NoError(t, cmd.Begin())
	return cmd
}

func asBarrier() gpu.Dependency {
	dep := gpu.Dependency{
		SrcStage: gpu.PipelineStageAccelerationStructureBuild,
		DstStage: gpu.PipelineStageAccelerationStructureBuild | gpu.PipelineStageRayTracingShader | gpu.PipelineStageFragmentShader,
	}
	dep.AddMemory(gpu.AccessAccelerationStructureWrite, gpu.AccessAccelerationStructureRead)
	return dep
}

func triangleGeometry(t *testing.T, vb, ib gpu.Buffer, vertexCount int) gpu.AccelerationStructureGeometry {
	return gpu.AccelerationStructureGeometry{
		Type:  gpu.GeometryTypeTriangles,
		Flags: gpu.GeometryOpaque,
		Triangles: gpu.TrianglesData{
			VertexFormat: gpu.FormatR32G32B32Sfloat,
			VertexData:   address(t, vb),
			VertexStride: 12,
			MaxVertex:    uint32(vertexCount - 1),
			IndexType:    gpu.IndexTypeUint32,
			IndexData:    address(t, ib),
		},
	}
}

// rig owns a single-triangle BLAS and a TLAS over instances of it.
type rig struct {
	t       *testing.T
	d       *Device
	scratch gpu.Buffer
	blas    gpu.AccelerationStructure

	tlas      gpu.AccelerationStructure
	instances gpu.Buffer
	count     int
}

func newRig(t *testing.T, options ...DeviceOption) *rig {
	t.Helper()
	r := &rig{t: t, d: newTestDevice(t, options...)}
	d := r.d
	vb := hostBuffer(t, d, "vertices", buildInput, common.SliceToBytes(triangle))
	ib := hostBuffer(t, d, "indices", buildInput, common.SliceToBytes([]uint32{0, 1, 2}))
	r.scratch = deviceBuffer(t, d, "scratch", gpu.BufferUsageStorage|gpu.BufferUsageShaderDeviceAddress, 4096)

	info := gpu.AccelerationStructureBuildGeometryInfo{
		Type:       gpu.AccelerationStructureTypeBottomLevel,
		Flags:      gpu.BuildAccelerationStructurePreferFastTrace,
		Geometries: []gpu.AccelerationStructureGeometry{triangleGeometry(t, vb, ib, 3)},
	}
	sizes, err := d.GetAccelerationStructureBuildSizes(&info, []uint32{1})
	require.NoError(t, err)
	buf := deviceBuffer(t, d, "blas", gpu.BufferUsageAccelerationStructureStorage|gpu.BufferUsageShaderDeviceAddress, sizes.AccelerationStructureSize)
	r.blas, err = d.CreateAccelerationStructure(gpu.AccelerationStructureDescriptor{
		Label:  "blas",
		Type:   gpu.AccelerationStructureTypeBottomLevel,
		Buffer: buf,
		Size:   sizes.AccelerationStructureSize,
	})
	require.NoError(t, err)
	info.Dst = r.blas
	info.ScratchData = address(t, r.scratch)

	cmd := beginCmd(t, d, "blas")
	cmd.BuildAccelerationStructures([]gpu.AccelerationStructureBuildGeometryInfo{info}, [][]gpu.AccelerationStructureBuildRangeInfo{{{PrimitiveCount: 1}}})
	cmd.PipelineBarrier(asBarrier())
	require.NoError(t, cmd.End())
	require.NoError(t, gpu.SubmitAndWait(d.Queue(), cmd))
	return r
}

// buildTLAS writes instances (each referencing the rig's BLAS) and builds or updates the TLAS.
func (r *rig) buildTLAS(instances []gpu.ASInstance, mode gpu.BuildAccelerationStructureMode) error {
	t, d := r.t, r.d
	t.Helper()
	raw := make([]byte, len(instances)*gpu.ASInstanceSize)
	for i, inst := range instances {
		inst.AccelerationStructureReference = r.blas.DeviceAddress()
		require.NoError(t, inst.Marshal(raw[i*gpu.ASInstanceSize:]))
	}
	if r.instances == nil || r.count != len(instances) {
		r.instances = hostBuffer(t, d, "instances", buildInput, raw)
	} else {
		require.NoError(t, gpu.WriteMapped(r.instances, 0, raw))
	}
	r.count = len(instances)

	info := gpu.AccelerationStructureBuildGeometryInfo{
		Type:  gpu.AccelerationStructureTypeTopLevel,
		Flags: gpu.BuildAccelerationStructureAllowUpdate | gpu.BuildAccelerationStructurePreferFastTrace,
		Mode:  mode,
		Geometries: []gpu.AccelerationStructureGeometry{{
			Type:      gpu.GeometryTypeInstances,
			Instances: gpu.InstancesData{Data: address(t, r.instances)},
		}},
		ScratchData: address(t, r.scratch),
	}
	if r.tlas == nil {
		sizes, err := d.GetAccelerationStructureBuildSizes(&info, []uint32{uint32(len(instances))})
		require.NoError(t, err)
		buf := deviceBuffer(t, d, "tlas", gpu.BufferUsageAccelerationStructureStorage|gpu.BufferUsageShaderDeviceAddress, sizes.AccelerationStructureSize)
		r.tlas, err = d.CreateAccelerationStructure(gpu.AccelerationStructureDescriptor{
			Label:  "tlas",
			Type:   gpu.AccelerationStructureTypeTopLevel,
			Buffer: buf,
			Size:   sizes.AccelerationStructureSize,
		})
		require.NoError(t, err)
	}
	info.Dst = r.tlas
	if mode == gpu.BuildAccelerationStructureModeUpdate {
		info.Src = r.tlas
	}

	cmd := beginCmd(t, d, "tlas")
	cmd.BuildAccelerationStructures([]gpu.AccelerationStructureBuildGeometryInfo{info}, [][]gpu.AccelerationStructureBuildRangeInfo{{{PrimitiveCount: uint32(len(instances))}}})
	cmd.PipelineBarrier(asBarrier())
	require.NoError(t, cmd.End())
	return gpu.SubmitAndWait(d.Queue(), cmd)
}

func (r *rig) topLevel() TopLevel {
	return TopLevelOf(r.tlas)
}

func identityInstance(customIndex uint32, flags gpu.GeometryInstanceFlags) gpu.ASInstance {
	return gpu.ASInstance{
		Transform:   common.RowMajor3x4(common.Identity4()),
		CustomIndex: customIndex,
		Mask:        0xFF,
		Flags:       flags,
	}
}
