package accel

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine/gpu"
)

// geometryUsage lets a geometry buffer feed acceleration-structure builds and shader reads.
const geometryUsage = gpu.BufferUsageShaderDeviceAddress |
	gpu.BufferUsageAccelerationStructureBuildInputReadOnly |
	gpu.BufferUsageStorage |
	gpu.BufferUsageTransferDst

// GeometryBuffer is an immutable device-local vertex and index buffer pair for one mesh.
type GeometryBuffer struct {
	Label          string
	Vertices       gpu.Buffer
	Indices        gpu.Buffer
	VertexStride   uint64
	VertexCount    uint32
	IndexCount     uint32
	PrimitiveCount uint32
	VertexAddress  gpu.DeviceAddress
	IndexAddress   gpu.DeviceAddress
}

// NewGeometryBuffer uploads a mesh through staging buffers and waits for the upload to finish.
//
// Parameters:
//   - device: the device that owns the buffers
//   - queue: the queue the upload is submitted to
//   - cmd: a command buffer in the initial state, reset before returning
//   - label: debug name prefix
//   - vertices: the interleaved vertices
//   - indices: triangle list indices
//
// Returns:
//   - *GeometryBuffer: the uploaded geometry
//   - error: on allocation, upload or submission failure
func NewGeometryBuffer(device gpu.Device, queue gpu.Queue, cmd gpu.CommandBuffer, label string, vertices []Vertex, indices []uint32) (*GeometryBuffer, error) {
	if len(vertices) == 0 || len(indices) == 0 {
		return nil, gpu.NewError("newGeometryBuffer", gpu.ErrorKindZeroSize, "mesh %q has %d vertices and %d indices", label, len(vertices), len(indices))
	}
	g := &GeometryBuffer{
		Label:          label,
		VertexStride:   DefaultVertexStride,
		VertexCount:    uint32(len(vertices)),
		IndexCount:     uint32(len(indices)),
		PrimitiveCount: PrimitiveCount(len(indices)),
	}
	vertexBytes := common.SliceToBytes(vertices)
	indexBytes := common.SliceToBytes(indices)

	var err error
	if g.Vertices, err = createGeometryBuffer(device, label+".vertices", uint64(len(vertexBytes)), gpu.BufferUsageVertex); err != nil {
		return nil, err
	}
	if g.Indices, err = createGeometryBuffer(device, label+".indices", uint64(len(indexBytes)), gpu.BufferUsageIndex); err != nil {
		g.Destroy()
		return nil, err
	}
	if g.VertexAddress, err = g.Vertices.DeviceAddress(); err != nil {
		g.Destroy()
		return nil, err
	}
	if g.IndexAddress, err = g.Indices.DeviceAddress(); err != nil {
		g.Destroy()
		return nil, err
	}

	if err := cmd.Begin(); err != nil {
		g.Destroy()
		return nil, fmt.Errorf("begin geometry upload: %w", err)
	}
	var staging []gpu.Buffer
	defer func() {
		for _, s := range staging {
			s.Destroy()
		}
	}()
	for _, up := range []struct {
		dst  gpu.Buffer
		data []byte
	}{{g.Vertices, vertexBytes}, {g.Indices, indexBytes}} {
		s, err := gpu.UpdateBufferUsingStagingBuffer(device, up.dst, cmd, up.data, 0)
		if err != nil {
			g.Destroy()
			return nil, fmt.Errorf("upload %q: %w", up.dst.Label(), err)
		}
		staging = append(staging, s)
	}
	dep := gpu.Dependency{
		SrcStage: gpu.PipelineStageTransfer,
		DstStage: gpu.PipelineStageAccelerationStructureBuild | gpu.PipelineStageVertexInput | gpu.PipelineStageFragmentShader,
	}
	dep.AddMemory(gpu.AccessTransferWrite, gpu.AccessShaderRead|gpu.AccessVertexAttributeRead|gpu.AccessIndexRead)
	cmd.PipelineBarrier(dep)
	if err := cmd.End(); err != nil {
		g.Destroy()
		return nil, fmt.Errorf("record geometry upload: %w", err)
	}
	if err := gpu.SubmitAndWait(queue, cmd); err != nil {
		g.Destroy()
		return nil, fmt.Errorf("submit geometry upload: %w", err)
	}
	if err := cmd.Reset(); err != nil {
		return nil, err
	}
	logger.Debugf("uploaded mesh %q: %d vertices, %d triangles", label, g.VertexCount, g.PrimitiveCount)
	return g, nil
}

func createGeometryBuffer(device gpu.Device, label string, size uint64, usage gpu.BufferUsage) (gpu.Buffer, error) {
	b, err := device.CreateBuffer(gpu.BufferDescriptor{
		Label:         label,
		Size:          size,
		Usage:         geometryUsage | usage,
		Required:      gpu.MemoryPropertyDeviceLocal,
		AllocateFlags: gpu.MemoryAllocateDeviceAddress,
	})
	if err != nil {
		return nil, fmt.Errorf("create %q: %w", label, err)
	}
	return b, nil
}

// Destroy releases both buffers.
func (g *GeometryBuffer) Destroy() {
	if g.Indices != nil {
		g.Indices.Destroy()
		g.Indices = nil
	}
	if g.Vertices != nil {
		g.Vertices.Destroy()
		g.Vertices = nil
	}
}
