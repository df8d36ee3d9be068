package accel

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-rt/engine/gpu"
)

// blasGeometry describes model m as a single opaque triangle geometry.
func (w *wrapper) blasGeometry(m ModelInfo) (gpu.AccelerationStructureGeometry, error) {
	vertexAddr, err := m.VertexBuffer.DeviceAddress()
	if err != nil {
		return gpu.AccelerationStructureGeometry{}, err
	}
	indexAddr, err := m.IndexBuffer.DeviceAddress()
	if err != nil {
		return gpu.AccelerationStructureGeometry{}, err
	}
	return gpu.AccelerationStructureGeometry{
		Type:  gpu.GeometryTypeTriangles,
		Flags: gpu.GeometryOpaque,
		Triangles: gpu.TrianglesData{
			VertexFormat: gpu.FormatR32G32B32Sfloat,
			VertexData:   vertexAddr,
			VertexStride: m.VertexStride,
			MaxVertex:    m.VertexCount - 1,
			IndexType:    gpu.IndexTypeUint32,
			IndexData:    indexAddr,
		},
	}, nil
}

// buildBottomLevel creates and builds one BLAS per model. Builds run sequentially through one
// shared scratch buffer sized for the largest model, with a barrier between builds.
func (w *wrapper) buildBottomLevel(device gpu.Device, queue gpu.Queue, cmd gpu.CommandBuffer) error {
	const op = "buildBottomLevel"
	if len(w.modelInfos) == 0 {
		return gpu.NewError(op, gpu.ErrorKindZeroSize, "no models described")
	}
	w.destroyBottomLevel()

	infos := make([]gpu.AccelerationStructureBuildGeometryInfo, len(w.modelInfos))
	sizes := make([]gpu.AccelerationStructureBuildSizes, len(w.modelInfos))
	var maxScratch uint64
	for i, m := range w.modelInfos {
		if m.VertexCount == 0 {
			return gpu.NewError(op, gpu.ErrorKindInvalidUsage, "model %d has no vertices", i)
		}
		geom, err := w.blasGeometry(m)
		if err != nil {
			return fmt.Errorf("%s: model %d: %w", op, i, err)
		}
		infos[i] = gpu.AccelerationStructureBuildGeometryInfo{
			Type:       gpu.AccelerationStructureTypeBottomLevel,
			Flags:      gpu.BuildAccelerationStructurePreferFastTrace,
			Mode:       gpu.BuildAccelerationStructureModeBuild,
			Geometries: []gpu.AccelerationStructureGeometry{geom},
		}
		sizes[i], err = device.GetAccelerationStructureBuildSizes(&infos[i], []uint32{m.PrimitiveCount})
		if err != nil {
			return fmt.Errorf("%s: model %d: %w", op, i, err)
		}
		if sizes[i].AccelerationStructureSize == 0 || sizes[i].BuildScratchSize == 0 {
			return gpu.NewError(op, gpu.ErrorKindZeroSize, "model %d with %d primitives reported zero build sizes", i, m.PrimitiveCount)
		}
		maxScratch = max(maxScratch, sizes[i].BuildScratchSize)
	}

	for i := range w.modelInfos {
		label := fmt.Sprintf("%s.blas[%d]", w.label, i)
		buf, err := device.CreateBuffer(gpu.BufferDescriptor{
			Label:         label,
			Size:          sizes[i].AccelerationStructureSize,
			Usage:         gpu.BufferUsageAccelerationStructureStorage | gpu.BufferUsageShaderDeviceAddress,
			Required:      gpu.MemoryPropertyDeviceLocal,
			AllocateFlags: gpu.MemoryAllocateDeviceAddress,
		})
		if err != nil {
			w.destroyBottomLevel()
			return fmt.Errorf("%s: %w", op, err)
		}
		w.blasBuffers = append(w.blasBuffers, buf)
		as, err := device.CreateAccelerationStructure(gpu.AccelerationStructureDescriptor{
			Label:  label,
			Type:   gpu.AccelerationStructureTypeBottomLevel,
			Buffer: buf,
			Size:   sizes[i].AccelerationStructureSize,
		})
		if err != nil {
			w.destroyBottomLevel()
			return fmt.Errorf("%s: %w", op, err)
		}
		w.blas = append(w.blas, as)
	}

	scratch, scratchAddr, err := createScratch(device, w.label+".blasScratch", maxScratch)
	if err != nil {
		w.destroyBottomLevel()
		return fmt.Errorf("%s: %w", op, err)
	}
	defer scratch.Destroy()

	if err := cmd.Begin(); err != nil {
		w.destroyBottomLevel()
		return fmt.Errorf("%s: %w", op, err)
	}
	for i, m := range w.modelInfos {
		infos[i].Dst = w.blas[i]
		infos[i].ScratchData = scratchAddr
		cmd.BuildAccelerationStructures(
			[]gpu.AccelerationStructureBuildGeometryInfo{infos[i]},
			[][]gpu.AccelerationStructureBuildRangeInfo{{{PrimitiveCount: m.PrimitiveCount}}},
		)
		cmd.PipelineBarrier(accelBarrier(gpu.PipelineStageAccelerationStructureBuild))
	}
	if err := submit(op, queue, cmd); err != nil {
		w.destroyBottomLevel()
		return err
	}
	w.stats.BottomLevelBuilds += len(w.modelInfos)
	w.modelsChanged = false
	logger.Infof("%s: built %d bottom-level structures (scratch %d bytes)", w.label, len(w.blas), maxScratch)
	return nil
}

func (w *wrapper) destroyBottomLevel() {
	for i := len(w.blas) - 1; i >= 0; i-- {
		w.blas[i].Destroy()
	}
	for i := len(w.blasBuffers) - 1; i >= 0; i-- {
		w.blasBuffers[i].Destroy()
	}
	w.blas = nil
	w.blasBuffers = nil
}

// createScratch allocates a device-local storage buffer and returns its device address.
func createScratch(device gpu.Device, label string, size uint64) (gpu.Buffer, gpu.DeviceAddress, error) {
	align := uint64(device.Properties().MinScratchAlignment)
	b, err := device.CreateBuffer(gpu.BufferDescriptor{
		Label:         label,
		Size:          gpu.AlignUp(size, max(align, 1)),
		Usage:         gpu.BufferUsageStorage | gpu.BufferUsageShaderDeviceAddress,
		Required:      gpu.MemoryPropertyDeviceLocal,
		AllocateFlags: gpu.MemoryAllocateDeviceAddress,
	})
	if err != nil {
		return nil, 0, err
	}
	addr, err := b.DeviceAddress()
	if err != nil {
		b.Destroy()
		return nil, 0, err
	}
	return b, addr, nil
}

// accelBarrier makes acceleration-structure writes of a build visible to later builds and to
// every stage that traces rays.
func accelBarrier(src gpu.PipelineStage) gpu.Dependency {
	dep := gpu.Dependency{
		SrcStage: src,
		DstStage: gpu.PipelineStageAccelerationStructureBuild | gpu.PipelineStageRayTracingShader |
			gpu.PipelineStageFragmentShader | gpu.PipelineStageComputeShader,
	}
	dep.AddMemory(gpu.AccessAccelerationStructureWrite, gpu.AccessAccelerationStructureRead)
	return dep
}
