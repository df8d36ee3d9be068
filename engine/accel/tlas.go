package accel

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-rt/engine/gpu"
)

func (w *wrapper) BuildTopLevel(device gpu.Device, cmd gpu.CommandBuffer, queue gpu.Queue, flags gpu.BuildAccelerationStructureFlags, update bool) error {
	const op = "buildTopLevel"
	n := len(w.instances)
	if n == 0 {
		return gpu.NewError(op, gpu.ErrorKindZeroSize, "no instances described")
	}
	if update {
		switch {
		case w.tlas == nil:
			return gpu.NewError(op, gpu.ErrorKindInvalidUsage, "update before the first build")
		case w.tlasCount != n:
			return gpu.NewError(op, gpu.ErrorKindInvalidUsage, "update changes instance count %d -> %d; rebuild instead", w.tlasCount, n)
		case w.tlasFlags&gpu.BuildAccelerationStructureAllowUpdate == 0:
			return gpu.NewError(op, gpu.ErrorKindInvalidUsage, "last build did not allow updates")
		}
	}
	if err := w.table.Pack(w.instances, w.blas); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	info := gpu.AccelerationStructureBuildGeometryInfo{
		Type:       gpu.AccelerationStructureTypeTopLevel,
		Flags:      flags,
		Mode:       gpu.BuildAccelerationStructureModeBuild,
		Geometries: []gpu.AccelerationStructureGeometry{{Type: gpu.GeometryTypeInstances}},
	}
	if w.tlas == nil || w.tlasCount != n {
		if err := w.allocateTopLevel(device, &info, n); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	instanceAddr, err := w.instanceBuffer.DeviceAddress()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	info.Geometries[0].Instances = gpu.InstancesData{Data: instanceAddr}
	info.Dst = w.tlas
	info.ScratchData = w.scratchAddress
	if update {
		info.Mode = gpu.BuildAccelerationStructureModeUpdate
		info.Src = w.tlas
	}

	if err := cmd.Begin(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	staging, err := gpu.UpdateBufferUsingStagingBuffer(device, w.instanceBuffer, cmd, w.table.Bytes(), 0)
	if err != nil {
		cmd.End()
		cmd.Reset()
		return fmt.Errorf("%s: %w", op, err)
	}
	defer staging.Destroy()

	upload := gpu.Dependency{SrcStage: gpu.PipelineStageTransfer, DstStage: gpu.PipelineStageAccelerationStructureBuild}
	upload.AddMemory(gpu.AccessTransferWrite, gpu.AccessAccelerationStructureWrite)
	cmd.PipelineBarrier(upload)
	cmd.BuildAccelerationStructures(
		[]gpu.AccelerationStructureBuildGeometryInfo{info},
		[][]gpu.AccelerationStructureBuildRangeInfo{{{PrimitiveCount: uint32(n)}}},
	)
	cmd.PipelineBarrier(accelBarrier(gpu.PipelineStageAccelerationStructureBuild))
	if err := submit(op, queue, cmd); err != nil {
		return err
	}

	w.tlasFlags = flags
	if update {
		w.stats.TopLevelUpdates++
		logger.Debugf("%s: updated TLAS over %d instances", w.label, n)
	} else {
		w.stats.TopLevelBuilds++
		logger.Infof("%s: built TLAS over %d instances", w.label, n)
	}
	return nil
}

// allocateTopLevel replaces the TLAS, its instance buffer and the scratch buffer with ones sized
// for n instances. Scratch covers both build and update so later updates reuse it.
func (w *wrapper) allocateTopLevel(device gpu.Device, info *gpu.AccelerationStructureBuildGeometryInfo, n int) error {
	w.destroyTopLevel()
	sizes, err := device.GetAccelerationStructureBuildSizes(info, []uint32{uint32(n)})
	if err != nil {
		return err
	}
	if sizes.AccelerationStructureSize == 0 {
		return gpu.NewError("allocateTopLevel", gpu.ErrorKindZeroSize, "%d instances reported a zero-size TLAS", n)
	}

	w.tlasBuffer, err = device.CreateBuffer(gpu.BufferDescriptor{
		Label:         w.label + ".tlas",
		Size:          sizes.AccelerationStructureSize,
		Usage:         gpu.BufferUsageAccelerationStructureStorage | gpu.BufferUsageShaderDeviceAddress,
		Required:      gpu.MemoryPropertyDeviceLocal,
		AllocateFlags: gpu.MemoryAllocateDeviceAddress,
	})
	if err != nil {
		return err
	}
	w.tlas, err = device.CreateAccelerationStructure(gpu.AccelerationStructureDescriptor{
		Label:  w.label + ".tlas",
		Type:   gpu.AccelerationStructureTypeTopLevel,
		Buffer: w.tlasBuffer,
		Size:   sizes.AccelerationStructureSize,
	})
	if err != nil {
		w.destroyTopLevel()
		return err
	}
	w.instanceBuffer, err = device.CreateBuffer(gpu.BufferDescriptor{
		Label: w.label + ".instances",
		Size:  uint64(n * gpu.ASInstanceSize),
		Usage: gpu.BufferUsageShaderDeviceAddress | gpu.BufferUsageTransferDst |
			gpu.BufferUsageAccelerationStructureBuildInputReadOnly,
		Required:      gpu.MemoryPropertyDeviceLocal,
		AllocateFlags: gpu.MemoryAllocateDeviceAddress,
	})
	if err != nil {
		w.destroyTopLevel()
		return err
	}
	w.scratch, w.scratchAddress, err = createScratch(device, w.label+".tlasScratch", max(sizes.BuildScratchSize, sizes.UpdateScratchSize))
	if err != nil {
		w.destroyTopLevel()
		return err
	}
	w.tlasCount = n
	logger.Debugf("%s: allocated TLAS of %d bytes for %d instances", w.label, sizes.AccelerationStructureSize, n)
	return nil
}

func (w *wrapper) destroyTopLevel() {
	if w.scratch != nil {
		w.scratch.Destroy()
		w.scratch = nil
		w.scratchAddress = 0
	}
	if w.instanceBuffer != nil {
		w.instanceBuffer.Destroy()
		w.instanceBuffer = nil
	}
	if w.tlas != nil {
		w.tlas.Destroy()
		w.tlas = nil
	}
	if w.tlasBuffer != nil {
		w.tlasBuffer.Destroy()
		w.tlasBuffer = nil
	}
	w.tlasCount = 0
	w.tlasFlags = 0
}
