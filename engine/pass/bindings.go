package pass

import "github.com/Carmen-Shannon/oxy-rt/engine/gpu"

// Descriptor set indices. Set 0 is shared by every pass and bound with the frame's dynamic
// uniform offset; set 1 belongs to the pass.
const (
	SetFrame uint32 = 0
	SetPass  uint32 = 1
)

// Bindings of the frame set.
const (
	BindingFrameUniforms uint32 = iota
	BindingTopLevel
	BindingInstances
	BindingMaterials
)

// Colour attachments of the G-buffer pass, in framebuffer order. AttachmentVisibility exists in
// ray-query mode only.
const (
	AttachmentAlbedo = iota
	AttachmentNormal
	AttachmentPosition
	AttachmentF0Roughness
	AttachmentVisibility
)

// Bindings of the ray-traced shadow set.
const (
	ShadowBindingPosition uint32 = iota
	ShadowBindingNormal
	ShadowBindingDepth
	ShadowBindingOutput
)

// Bindings of the temporal accumulation set.
const (
	TemporalBindingCurrent uint32 = iota
	TemporalBindingHistory
	TemporalBindingDepth
	TemporalBindingPosition
	TemporalBindingOutput
)

// Bindings of the spatial denoise set.
const (
	SpatialBindingAccumulated uint32 = iota
	SpatialBindingChain
	SpatialBindingNormal
	SpatialBindingPosition
	SpatialBindingDepth
	SpatialBindingOutput
)

// Bindings of the composite set.
const (
	CompositeBindingAlbedo uint32 = iota
	CompositeBindingNormal
	CompositeBindingPosition
	CompositeBindingF0Roughness
	CompositeBindingDepth
	CompositeBindingShadow
)

// DownsampleMips is the length of the visibility mip chain built before denoising.
const DownsampleMips = 4

// ComputeGroupSize is the workgroup edge of the denoise kernels.
const ComputeGroupSize = 8

// Bindings exposes the resources other renderers may bind, such as an overlay or a debug view.
type Bindings struct {
	TopLevel gpu.AccelerationStructure
	// Visibility is the raw single channel shadow image of the active technique.
	Visibility gpu.Image
	// Denoised is the spatially filtered visibility.
	Denoised gpu.Image
	// History is the accumulation image the last frame wrote: visibility in R, frame count in G.
	History gpu.Image
	GBuffer  [4]gpu.Image
	Depth    gpu.Image
}

func frameSetBindings() []gpu.DescriptorBinding {
	all := gpu.ShaderStageFragment | gpu.ShaderStageCompute | gpu.ShaderStageRaygen | gpu.ShaderStageClosestHit | gpu.ShaderStageMiss
	return []gpu.DescriptorBinding{
		{Binding: BindingFrameUniforms, Type: gpu.DescriptorTypeUniformBufferDynamic, Count: 1, Stages: all},
		{Binding: BindingTopLevel, Type: gpu.DescriptorTypeAccelerationStructure, Count: 1, Stages: gpu.ShaderStageFragment | gpu.ShaderStageRaygen},
		{Binding: BindingInstances, Type: gpu.DescriptorTypeStorageBuffer, Count: 1, Stages: all},
		{Binding: BindingMaterials, Type: gpu.DescriptorTypeStorageBuffer, Count: 1, Stages: gpu.ShaderStageFragment},
	}
}

// passSetBindings returns sampledCount combined image samplers at bindings 0.. followed by an
// optional storage image.
func passSetBindings(stages gpu.ShaderStage, sampledCount int, storage bool) []gpu.DescriptorBinding {
	var out []gpu.DescriptorBinding
	for i := 0; i < sampledCount; i++ {
		out = append(out, gpu.DescriptorBinding{Binding: uint32(i), Type: gpu.DescriptorTypeCombinedImageSampler, Count: 1, Stages: stages})
	}
	if storage {
		out = append(out, gpu.DescriptorBinding{Binding: uint32(sampledCount), Type: gpu.DescriptorTypeStorageImage, Count: 1, Stages: stages})
	}
	return out
}

func sampledWrite(binding uint32, img gpu.Image) gpu.DescriptorWrite {
	layout := gpu.ImageLayoutShaderReadOnlyOptimal
	if img.Format().IsDepth() {
		layout = gpu.ImageLayoutDepthStencilReadOnlyOptimal
	}
	return gpu.DescriptorWrite{Binding: binding, Type: gpu.DescriptorTypeCombinedImageSampler, Image: img, Layout: layout}
}

func storageWrite(binding uint32, img gpu.Image) gpu.DescriptorWrite {
	return gpu.DescriptorWrite{Binding: binding, Type: gpu.DescriptorTypeStorageImage, Image: img, Layout: gpu.ImageLayoutGeneral}
}

func groups(n uint32) uint32 {
	return (n + ComputeGroupSize - 1) / ComputeGroupSize
}
