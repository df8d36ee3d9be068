package gpu

// SubresourceRange selects mip levels of an image. MipCount zero means all remaining levels.
type SubresourceRange struct {
	Aspect   ImageAspect
	BaseMip  uint32
	MipCount uint32
}

// MemoryBarrier is a global memory dependency.
type MemoryBarrier struct {
	SrcAccess Access
	DstAccess Access
}

// BufferBarrier is a memory dependency on a buffer range.
type BufferBarrier struct {
	Buffer    Buffer
	SrcAccess Access
	DstAccess Access
	Offset    uint64
	Size      uint64
}

// ImageBarrier is a memory dependency and layout transition on an image range.
type ImageBarrier struct {
	Image     Image
	SrcAccess Access
	DstAccess Access
	OldLayout ImageLayout
	NewLayout ImageLayout
	Range     SubresourceRange
}

// Dependency is the argument of a pipeline barrier.
type Dependency struct {
	SrcStage PipelineStage
	DstStage PipelineStage
	Memory   []MemoryBarrier
	Buffers  []BufferBarrier
	Images   []ImageBarrier
}

// AddMemory appends a global memory barrier and returns d for chaining.
func (d *Dependency) AddMemory(src, dst Access) *Dependency {
	d.Memory = append(d.Memory, MemoryBarrier{SrcAccess: src, DstAccess: dst})
	return d
}

// AddImage appends an image layout transition and returns d for chaining.
func (d *Dependency) AddImage(img Image, src, dst Access, oldLayout, newLayout ImageLayout, r SubresourceRange) *Dependency {
	d.Images = append(d.Images, ImageBarrier{Image: img, SrcAccess: src, DstAccess: dst, OldLayout: oldLayout, NewLayout: newLayout, Range: r})
	return d
}

// Empty reports whether the dependency has no barriers.
func (d Dependency) Empty() bool {
	return len(d.Memory) == 0 && len(d.Buffers) == 0 && len(d.Images) == 0
}

// CommandBuffer records GPU commands. Recording calls do not return errors; the first recording
// error is reported by End.
type CommandBuffer interface {
	// Label returns the debug name.
	Label() string

	// Begin starts recording. Fails if a previous submission of this buffer is still pending.
	//
	// Returns:
	//   - error: if the buffer is pending execution or already recording
	Begin() error

	// End finishes recording.
	//
	// Returns:
	//   - error: the first error encountered while recording
	End() error

	// Reset discards recorded commands. Fails if a submission is still pending.
	//
	// Returns:
	//   - error: if the buffer is pending execution
	Reset() error

	PipelineBarrier(dep Dependency)
	CopyBuffer(src, dst Buffer, regions ...BufferCopy)
	BlitImage(src Image, srcLayout ImageLayout, dst Image, dstLayout ImageLayout, regions []ImageBlit, filter Filter)

	// BuildAccelerationStructures records builds; ranges[i] holds one range per geometry of infos[i].
	BuildAccelerationStructures(infos []AccelerationStructureBuildGeometryInfo, ranges [][]AccelerationStructureBuildRangeInfo)

	BeginRenderPass(info RenderPassBeginInfo)
	EndRenderPass()

	BindPipeline(p Pipeline)
	BindDescriptorSets(p Pipeline, firstSet uint32, sets []DescriptorSet, dynamicOffsets []uint32)
	PushConstants(p Pipeline, stages ShaderStage, offset uint32, data []byte)
	BindVertexBuffers(first uint32, buffers []Buffer, offsets []uint64)
	BindIndexBuffer(buf Buffer, offset uint64, indexType IndexType)

	Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32)
	DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32)
	Dispatch(x, y, z uint32)
	TraceRays(raygen, miss, hit, callable StridedDeviceAddressRegion, width, height, depth uint32)

	BeginDebugLabel(name string, color [4]float32)
	EndDebugLabel()
}
