package gpu

// BufferDescriptor describes a buffer to create.
type BufferDescriptor struct {
	Label string
	Size  uint64
	Usage BufferUsage
	// Required memory properties must all be present in the chosen memory type.
	Required MemoryProperty
	// Preferred memory properties are used when a matching memory type exists.
	Preferred     MemoryProperty
	AllocateFlags MemoryAllocateFlags
}

// Buffer is a linear GPU allocation.
type Buffer interface {
	// Label returns the debug name.
	Label() string

	// Size returns the buffer size in bytes.
	Size() uint64

	// Usage returns the usage flags the buffer was created with.
	Usage() BufferUsage

	// MemoryProperties returns the properties of the memory type backing the buffer.
	MemoryProperties() MemoryProperty

	// DeviceAddress returns the buffer's GPU virtual address.
	// Requires BufferUsageShaderDeviceAddress.
	//
	// Returns:
	//   - DeviceAddress: the address of the first byte
	//   - error: if the buffer was not created for device-address access
	DeviceAddress() (DeviceAddress, error)

	// Map returns a host view of the whole buffer. Requires host-visible memory.
	//
	// Returns:
	//   - []byte: host view valid until Unmap
	//   - error: if the memory is not host visible or already mapped
	Map() ([]byte, error)

	// Unmap invalidates the host view returned by Map.
	Unmap()

	// Destroy releases the buffer and its memory.
	Destroy()
}

// ImageDescriptor describes a 2D image to create.
type ImageDescriptor struct {
	Label     string
	Format    Format
	Extent    Extent2D
	MipLevels uint32
	Usage     ImageUsage
}

// Image is a 2D GPU image with a mip chain.
type Image interface {
	Label() string
	Format() Format
	Extent() Extent2D
	MipLevels() uint32
	Usage() ImageUsage
	Destroy()
}

// MipExtent returns the extent of mip level of an image of the given base extent.
func MipExtent(base Extent2D, level uint32) Extent2D {
	w, h := base.Width>>level, base.Height>>level
	if w == 0 {
		w = 1
	}
	if h == 0 {
		h = 1
	}
	return Extent2D{Width: w, Height: h}
}

// ShaderModule is an opaque precompiled shader blob and its entry point.
type ShaderModule struct {
	Stage      ShaderStage
	Code       []byte
	EntryPoint string
}

// ShaderGroupType is the kind of a ray-tracing shader group.
type ShaderGroupType int

const (
	ShaderGroupGeneral ShaderGroupType = iota
	ShaderGroupTrianglesHitGroup
)

// ShaderGroup indexes into the pipeline's stage list. Unused slots are ShaderUnused.
type ShaderGroup struct {
	Type         ShaderGroupType
	General      uint32
	ClosestHit   uint32
	AnyHit       uint32
	Intersection uint32
}

// GeneralGroup returns a raygen/miss group referencing stage.
func GeneralGroup(stage uint32) ShaderGroup {
	return ShaderGroup{Type: ShaderGroupGeneral, General: stage, ClosestHit: ShaderUnused, AnyHit: ShaderUnused, Intersection: ShaderUnused}
}

// HitGroup returns a triangles hit group with only a closest-hit shader.
func HitGroup(closestHit uint32) ShaderGroup {
	return ShaderGroup{Type: ShaderGroupTrianglesHitGroup, General: ShaderUnused, ClosestHit: closestHit, AnyHit: ShaderUnused, Intersection: ShaderUnused}
}

// DescriptorType is the type of a descriptor binding.
type DescriptorType int

const (
	DescriptorTypeUniformBuffer DescriptorType = iota
	DescriptorTypeUniformBufferDynamic
	DescriptorTypeStorageBuffer
	DescriptorTypeCombinedImageSampler
	DescriptorTypeStorageImage
	DescriptorTypeInputAttachment
	DescriptorTypeAccelerationStructure
)

// DescriptorBinding is one binding of a descriptor set layout.
type DescriptorBinding struct {
	Binding uint32
	Type    DescriptorType
	Count   uint32
	Stages  ShaderStage
}

// DescriptorSetLayout is the shape of a descriptor set.
type DescriptorSetLayout interface {
	Label() string
	Bindings() []DescriptorBinding
	Destroy()
}

// DescriptorWrite updates one binding of a set.
type DescriptorWrite struct {
	Binding uint32
	Type    DescriptorType

	Buffer Buffer
	Offset uint64
	Range  uint64

	Image Image
	// Mip selects the level for storage image writes.
	Mip    uint32
	Layout ImageLayout

	AccelerationStructure AccelerationStructure
}

// DescriptorSet binds resources to shaders.
type DescriptorSet interface {
	Label() string
	Layout() DescriptorSetLayout

	// Update writes the given bindings. Writes to unknown bindings or mismatched types fail.
	//
	// Parameters:
	//   - writes: the bindings to update
	//
	// Returns:
	//   - error: on a binding/type mismatch
	Update(writes ...DescriptorWrite) error
}

// PipelineLayoutDescriptor lists the set layouts and push-constant range of a pipeline.
type PipelineLayoutDescriptor struct {
	SetLayouts       []DescriptorSetLayout
	PushConstantSize uint32
}

// PipelineDescriptor describes a graphics, compute or ray-tracing pipeline.
type PipelineDescriptor struct {
	Label     string
	BindPoint PipelineBindPoint
	Stages    []ShaderModule
	// Groups are used by ray-tracing pipelines only.
	Groups []ShaderGroup
	Layout PipelineLayoutDescriptor

	// RenderPass and Subpass are used by graphics pipelines only.
	RenderPass RenderPass
	Subpass    uint32

	// LocalSize is the compute workgroup size.
	LocalSize [3]uint32

	MaxRecursionDepth uint32
}

// Pipeline is a compiled pipeline object.
type Pipeline interface {
	Label() string
	BindPoint() PipelineBindPoint
	Layout() PipelineLayoutDescriptor
	Destroy()
}

// AttachmentDescription describes a render-pass attachment.
type AttachmentDescription struct {
	Format         Format
	LoadOp         LoadOp
	StoreOp        StoreOp
	StencilLoadOp  LoadOp
	StencilStoreOp StoreOp
	InitialLayout  ImageLayout
	FinalLayout    ImageLayout
}

// RenderPassDescriptor describes a single-subpass render pass.
type RenderPassDescriptor struct {
	Label            string
	ColorAttachments []AttachmentDescription
	DepthAttachment  *AttachmentDescription
}

// RenderPass is a render-pass object.
type RenderPass interface {
	Label() string
	Descriptor() RenderPassDescriptor
	Destroy()
}

// FramebufferDescriptor binds images to the attachments of a render pass, colour attachments
// first, then depth.
type FramebufferDescriptor struct {
	Label       string
	RenderPass  RenderPass
	Attachments []Image
	Extent      Extent2D
}

// Framebuffer is a set of attachment images compatible with a render pass.
type Framebuffer interface {
	Label() string
	RenderPass() RenderPass
	Attachments() []Image
	Extent() Extent2D
	Destroy()
}

// RenderPassBeginInfo starts a render pass instance.
type RenderPassBeginInfo struct {
	RenderPass  RenderPass
	Framebuffer Framebuffer
	RenderArea  Rect2D
	ClearValues []ClearValue
}

// StridedDeviceAddressRegion locates a shader-binding-table region.
type StridedDeviceAddressRegion struct {
	Address DeviceAddress
	Stride  uint64
	Size    uint64
}

// BufferCopy is one region of a buffer-to-buffer copy.
type BufferCopy struct {
	SrcOffset uint64
	DstOffset uint64
	Size      uint64
}

// ImageBlit copies a whole source mip level into a whole destination mip level with scaling.
type ImageBlit struct {
	SrcMip uint32
	DstMip uint32
}
