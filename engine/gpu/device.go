package gpu

import "time"

// Fence is a GPU-to-CPU completion signal.
type Fence interface {
	Label() string

	// Status returns Success when signaled and NotReady otherwise.
	Status() Result

	Destroy()
}

// Semaphore is a GPU-to-GPU ordering signal between submissions and presentation.
type Semaphore interface {
	Label() string
	Destroy()
}

// SubmitInfo is one batch of a queue submission. WaitStages[i] is the stage that waits on
// WaitSemaphores[i].
type SubmitInfo struct {
	WaitSemaphores   []Semaphore
	WaitStages       []PipelineStage
	CommandBuffers   []CommandBuffer
	SignalSemaphores []Semaphore
}

// PresentInfo presents one acquired swapchain image.
type PresentInfo struct {
	WaitSemaphores []Semaphore
	Swapchain      Swapchain
	ImageIndex     uint32
}

// Queue executes submissions and presents.
type Queue interface {
	// Submit queues batches for execution and signals fence (optional) when all complete.
	//
	// Parameters:
	//   - infos: the batches
	//   - fence: signaled when every batch completes, may be nil
	//
	// Returns:
	//   - error: on validation failure or device loss
	Submit(infos []SubmitInfo, fence Fence) error

	// WaitIdle blocks until all queued work has completed.
	WaitIdle() error

	// Present queues an image for presentation.
	//
	// Returns:
	//   - Result: Success, Suboptimal, or an error result
	Present(info PresentInfo) Result
}

// SwapchainDescriptor describes a presentable image ring.
type SwapchainDescriptor struct {
	Label  string
	Extent Extent2D
	Format Format
	Length int
	Usage  ImageUsage
}

// Swapchain is a ring of presentable images.
type Swapchain interface {
	Length() int
	Extent() Extent2D
	Format() Format
	Image(index uint32) Image

	// AcquireNextImage returns the index of the next image the presentation engine grants.
	// The order is not guaranteed to be round-robin.
	//
	// Parameters:
	//   - timeout: maximum wait
	//   - signal: semaphore signaled when the image is ready, may be nil
	//   - fence: fence signaled when the image is ready, may be nil
	//
	// Returns:
	//   - uint32: the acquired image index
	//   - Result: Success, Suboptimal, NotReady, Timeout or an error result
	AcquireNextImage(timeout time.Duration, signal Semaphore, fence Fence) (uint32, Result)

	Destroy()
}

// DeviceFeatures lists the optional features relevant to ray tracing.
type DeviceFeatures struct {
	AccelerationStructure bool
	RayQuery              bool
	RayTracingPipeline    bool
	BufferDeviceAddress   bool
}

// DeviceProperties lists limits relevant to ray tracing.
type DeviceProperties struct {
	Name                       string
	ShaderGroupHandleSize      uint32
	ShaderGroupHandleAlignment uint32
	ShaderGroupBaseAlignment   uint32
	MaxRayRecursionDepth       uint32
	MinScratchAlignment        uint32
}

// Device creates GPU objects.
type Device interface {
	Properties() DeviceProperties
	Features() DeviceFeatures

	CreateBuffer(desc BufferDescriptor) (Buffer, error)
	CreateImage(desc ImageDescriptor) (Image, error)

	// GetAccelerationStructureBuildSizes reports memory requirements for a build.
	//
	// Parameters:
	//   - info: the build description; Dst, Src and addresses are ignored
	//   - maxPrimitiveCounts: per-geometry primitive count
	//
	// Returns:
	//   - AccelerationStructureBuildSizes: the storage and scratch requirements
	//   - error: if the feature is missing or the description is invalid
	GetAccelerationStructureBuildSizes(info *AccelerationStructureBuildGeometryInfo, maxPrimitiveCounts []uint32) (AccelerationStructureBuildSizes, error)
	CreateAccelerationStructure(desc AccelerationStructureDescriptor) (AccelerationStructure, error)

	CreateDescriptorSetLayout(label string, bindings []DescriptorBinding) (DescriptorSetLayout, error)
	AllocateDescriptorSet(label string, layout DescriptorSetLayout) (DescriptorSet, error)
	CreateRenderPass(desc RenderPassDescriptor) (RenderPass, error)
	CreateFramebuffer(desc FramebufferDescriptor) (Framebuffer, error)
	CreatePipeline(desc PipelineDescriptor) (Pipeline, error)

	// GetRayTracingShaderGroupHandles returns count opaque handles of ShaderGroupHandleSize bytes
	// each, starting at group first.
	GetRayTracingShaderGroupHandles(p Pipeline, first, count uint32) ([]byte, error)

	AllocateCommandBuffer(label string) (CommandBuffer, error)
	CreateFence(label string, signaled bool) (Fence, error)
	CreateSemaphore(label string) (Semaphore, error)

	// WaitForFences blocks until all (or any) fences are signaled or timeout elapses.
	//
	// Returns:
	//   - Result: Success or Timeout, or an error result
	WaitForFences(fences []Fence, waitAll bool, timeout time.Duration) Result
	ResetFences(fences ...Fence) error

	Queue() Queue
	CreateSwapchain(desc SwapchainDescriptor) (Swapchain, error)

	WaitIdle() error
	Destroy()
}

// AlignUp rounds v up to a multiple of align, which must be a power of two.
func AlignUp(v, align uint64) uint64 {
	if align == 0 {
		return v
	}
	return (v + align - 1) &^ (align - 1)
}
