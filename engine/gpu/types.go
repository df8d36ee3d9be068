// Package gpu defines the graphics device/queue provider consumed by the acceleration-structure and
// frame-orchestration packages. The types mirror an explicit graphics API: buffers with usage and
// memory-property flags, images with tracked layouts, acceleration structures with device addresses,
// command buffers with pipeline barriers, and fence/semaphore synchronization.
package gpu

import (
	"math"
	"time"
)

// DeviceAddress is a GPU virtual address of buffer memory. Zero is the null address.
type DeviceAddress uint64

// InfiniteTimeout is used for fence and acquire waits that must not time out.
const InfiniteTimeout = time.Duration(math.MaxInt64)

// ShaderUnused marks an unused shader slot in a ShaderGroup.
const ShaderUnused = ^uint32(0)

// WholeSize selects the remainder of a buffer from an offset.
const WholeSize = ^uint64(0)

// BufferUsage describes how a buffer may be used.
type BufferUsage uint32

const (
	BufferUsageTransferSrc BufferUsage = 1 << iota
	BufferUsageTransferDst
	BufferUsageUniform
	BufferUsageStorage
	BufferUsageIndex
	BufferUsageVertex
	BufferUsageShaderDeviceAddress
	BufferUsageAccelerationStructureStorage
	BufferUsageAccelerationStructureBuildInputReadOnly
	BufferUsageShaderBindingTable
)

// MemoryProperty describes where a buffer's memory lives and how the host may access it.
type MemoryProperty uint32

const (
	MemoryPropertyNone        MemoryProperty = 0
	MemoryPropertyDeviceLocal MemoryProperty = 1 << (iota - 1)
	MemoryPropertyHostVisible
	MemoryPropertyHostCoherent
)

// MemoryAllocateFlags are extra allocation requirements.
type MemoryAllocateFlags uint32

const (
	MemoryAllocateNone          MemoryAllocateFlags = 0
	MemoryAllocateDeviceAddress MemoryAllocateFlags = 1
)

// Format is a texel or vertex attribute format.
type Format int

const (
	FormatUndefined Format = iota
	FormatR8Unorm
	FormatR16Sfloat
	FormatR8G8B8A8Unorm
	FormatB8G8R8A8Unorm
	FormatR16G16B16A16Sfloat
	FormatR32G32B32A32Sfloat
	FormatR32G32B32Sfloat
	FormatD32Sfloat
	FormatD32SfloatS8Uint
)

var formatNames = map[Format]string{
	FormatUndefined:          "UNDEFINED",
	FormatR8Unorm:            "R8_UNORM",
	FormatR16Sfloat:          "R16_SFLOAT",
	FormatR8G8B8A8Unorm:      "R8G8B8A8_UNORM",
	FormatB8G8R8A8Unorm:      "B8G8R8A8_UNORM",
	FormatR16G16B16A16Sfloat: "R16G16B16A16_SFLOAT",
	FormatR32G32B32A32Sfloat: "R32G32B32A32_SFLOAT",
	FormatR32G32B32Sfloat:    "R32G32B32_SFLOAT",
	FormatD32Sfloat:          "D32_SFLOAT",
	FormatD32SfloatS8Uint:    "D32_SFLOAT_S8_UINT",
}

func (f Format) String() string {
	if n, ok := formatNames[f]; ok {
		return n
	}
	return "UNKNOWN"
}

// Channels returns the number of colour channels stored by the format.
func (f Format) Channels() int {
	switch f {
	case FormatR8Unorm, FormatR16Sfloat, FormatD32Sfloat:
		return 1
	case FormatD32SfloatS8Uint:
		return 2
	case FormatR32G32B32Sfloat:
		return 3
	case FormatUndefined:
		return 0
	}
	return 4
}

// IsDepth reports whether the format has a depth aspect.
func (f Format) IsDepth() bool {
	return f == FormatD32Sfloat || f == FormatD32SfloatS8Uint
}

// HasStencil reports whether the format has a stencil aspect.
func (f Format) HasStencil() bool {
	return f == FormatD32SfloatS8Uint
}

// ImageUsage describes how an image may be used.
type ImageUsage uint32

const (
	ImageUsageTransferSrc ImageUsage = 1 << iota
	ImageUsageTransferDst
	ImageUsageSampled
	ImageUsageStorage
	ImageUsageColorAttachment
	ImageUsageDepthStencilAttachment
	ImageUsageInputAttachment
)

// ImageLayout is the layout an image subresource is in.
type ImageLayout int

const (
	ImageLayoutUndefined ImageLayout = iota
	ImageLayoutGeneral
	ImageLayoutColorAttachmentOptimal
	ImageLayoutDepthStencilAttachmentOptimal
	ImageLayoutDepthStencilReadOnlyOptimal
	ImageLayoutShaderReadOnlyOptimal
	ImageLayoutTransferSrcOptimal
	ImageLayoutTransferDstOptimal
	ImageLayoutPresentSrc
)

var layoutNames = [...]string{
	"UNDEFINED",
	"GENERAL",
	"COLOR_ATTACHMENT_OPTIMAL",
	"DEPTH_STENCIL_ATTACHMENT_OPTIMAL",
	"DEPTH_STENCIL_READ_ONLY_OPTIMAL",
	"SHADER_READ_ONLY_OPTIMAL",
	"TRANSFER_SRC_OPTIMAL",
	"TRANSFER_DST_OPTIMAL",
	"PRESENT_SRC",
}

func (l ImageLayout) String() string {
	if int(l) >= 0 && int(l) < len(layoutNames) {
		return layoutNames[l]
	}
	return "UNKNOWN"
}

// ImageAspect selects colour, depth or stencil planes of an image.
type ImageAspect uint32

const (
	ImageAspectColor ImageAspect = 1 << iota
	ImageAspectDepth
	ImageAspectStencil
)

// PipelineStage is a bitmask of pipeline stages used in barriers and semaphore waits.
type PipelineStage uint32

const (
	PipelineStageTopOfPipe PipelineStage = 1 << iota
	PipelineStageDrawIndirect
	PipelineStageVertexInput
	PipelineStageVertexShader
	PipelineStageFragmentShader
	PipelineStageEarlyFragmentTests
	PipelineStageLateFragmentTests
	PipelineStageColorAttachmentOutput
	PipelineStageComputeShader
	PipelineStageTransfer
	PipelineStageBottomOfPipe
	PipelineStageHost
	PipelineStageAllGraphics
	PipelineStageAllCommands
	PipelineStageAccelerationStructureBuild
	PipelineStageRayTracingShader
)

// Access is a bitmask of memory access types used in barriers.
type Access uint32

const (
	AccessNone     Access = 0
	AccessIndirect Access = 1 << (iota - 1)
	AccessIndexRead
	AccessVertexAttributeRead
	AccessUniformRead
	AccessInputAttachmentRead
	AccessShaderRead
	AccessShaderWrite
	AccessColorAttachmentRead
	AccessColorAttachmentWrite
	AccessDepthStencilAttachmentRead
	AccessDepthStencilAttachmentWrite
	AccessTransferRead
	AccessTransferWrite
	AccessHostRead
	AccessHostWrite
	AccessMemoryRead
	AccessMemoryWrite
	AccessAccelerationStructureRead
	AccessAccelerationStructureWrite
)

// IndexType is the element type of an index buffer.
type IndexType int

const (
	IndexTypeUint32 IndexType = iota
	IndexTypeUint16
)

// Size returns the index element size in bytes.
func (t IndexType) Size() uint64 {
	if t == IndexTypeUint16 {
		return 2
	}
	return 4
}

// ShaderStage identifies a programmable stage. Values are bit flags so they can be combined in
// descriptor bindings.
type ShaderStage uint32

const (
	ShaderStageVertex ShaderStage = 1 << iota
	ShaderStageFragment
	ShaderStageCompute
	ShaderStageRaygen
	ShaderStageMiss
	ShaderStageClosestHit
	ShaderStageAnyHit
	ShaderStageIntersection
)

// PipelineBindPoint selects which pipeline type a bind applies to.
type PipelineBindPoint int

const (
	PipelineBindPointGraphics PipelineBindPoint = iota
	PipelineBindPointCompute
	PipelineBindPointRayTracing
)

// Filter is the sampling filter used by blits.
type Filter int

const (
	FilterNearest Filter = iota
	FilterLinear
)

// LoadOp is the render-pass attachment load operation.
type LoadOp int

const (
	LoadOpLoad LoadOp = iota
	LoadOpClear
	LoadOpDontCare
)

// StoreOp is the render-pass attachment store operation.
type StoreOp int

const (
	StoreOpStore StoreOp = iota
	StoreOpDontCare
)

// Extent2D is a width and height in pixels.
type Extent2D struct {
	Width  uint32
	Height uint32
}

// Offset2D is a pixel offset.
type Offset2D struct {
	X int32
	Y int32
}

// Rect2D is a pixel rectangle.
type Rect2D struct {
	Offset Offset2D
	Extent Extent2D
}

// ClearValue is a colour or depth/stencil clear value.
type ClearValue struct {
	Color   [4]float32
	Depth   float32
	Stencil uint32
}

// ClearColor returns a colour clear value.
func ClearColor(r, g, b, a float32) ClearValue {
	return ClearValue{Color: [4]float32{r, g, b, a}}
}

// ClearDepthStencil returns a depth/stencil clear value.
func ClearDepthStencil(depth float32, stencil uint32) ClearValue {
	return ClearValue{Depth: depth, Stencil: stencil}
}
