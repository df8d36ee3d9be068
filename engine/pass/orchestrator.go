// Package pass records the per-frame pass sequence of the hybrid shadow renderer: G-buffer,
// ray-traced or ray-query visibility, optional denoising, and the deferred composite into the
// swapchain image.
package pass

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-rt/engine/config"
	"github.com/Carmen-Shannon/oxy-rt/engine/frame"
	"github.com/Carmen-Shannon/oxy-rt/engine/gpu"
	"github.com/Carmen-Shannon/oxy-rt/engine/log"
)

var logger = log.New("pass")

// OverlayHook records extra draws into the composite render pass after the composite triangle.
type OverlayHook func(cmd gpu.CommandBuffer, f *frame.Frame)

// Debug label colours per pass.
var (
	colorGBuffer   = [4]float32{0.2, 0.6, 0.2, 1}
	colorShadows   = [4]float32{0.6, 0.2, 0.2, 1}
	colorDenoise   = [4]float32{0.2, 0.2, 0.6, 1}
	colorComposite = [4]float32{0.6, 0.6, 0.2, 1}
)

// orchestrator is the implementation of the Orchestrator interface.
type orchestrator struct {
	label     string
	device    gpu.Device
	queue     gpu.Queue
	swapchain gpu.Swapchain
	shaders   ShaderProvider
	extent    gpu.Extent2D

	mode      config.RenderMode
	denoise   bool
	materials []Material
	overlay   OverlayHook

	upload gpu.CommandBuffer

	// frame set: one per slot, sharing the uniform buffer through dynamic offsets
	frameLayout   gpu.DescriptorSetLayout
	frameSets     []gpu.DescriptorSet
	uniforms      gpu.Buffer
	uniformStride uint64
	instances     []gpu.Buffer
	instanceCap   []int
	boundTLAS     []gpu.AccelerationStructure
	materialBuf   gpu.Buffer
	topLevel      gpu.AccelerationStructure
	pingPong      int

	gbuffer   gbufferPass
	shadows   shadowPass
	denoiser  denoisePass
	composite compositePass
}

// Orchestrator owns the pipelines and intermediate images of the frame and records the pass
// sequence into each frame's command buffer.
type Orchestrator interface {
	// Mode returns the shadow technique.
	Mode() config.RenderMode

	// Denoise reports whether the denoise passes are recorded.
	Denoise() bool

	// SetDenoise toggles the denoise passes from the next recorded frame on.
	//
	// Parameters:
	//   - enabled: whether to denoise
	SetDenoise(enabled bool)

	// UploadMaterials replaces the material table through a staging copy and waits for it.
	// Load-time only.
	//
	// Parameters:
	//   - materials: indexed by InstanceData.Material
	//
	// Returns:
	//   - error: on allocation or submission failure
	UploadMaterials(materials []Material) error

	// Record writes the frame's uniform and instance data for its slot and records
	// GBuffer -> shadows -> [Downsample -> Temporal -> Spatial] -> Composite into the frame's
	// command buffer. The ping-pong index is taken from the frame.
	//
	// Parameters:
	//   - f: a frame between Ring.Begin and Ring.Submit
	//   - data: the camera, light, instances and TLAS of this frame
	//
	// Returns:
	//   - error: if the frame data cannot be uploaded
	Record(f *frame.Frame, data FrameData) error

	// Bindings returns the shader-visible resources of the last recorded frame.
	Bindings() Bindings

	// Destroy releases every object. The caller waits for the device first.
	Destroy()
}

var _ Orchestrator = &orchestrator{}

// NewOrchestrator creates the intermediate images, render passes, pipelines and descriptor sets
// for a swapchain. Denoise resources are created even when denoising starts disabled so it can
// be toggled at run time.
//
// Parameters:
//   - device: the device that creates the objects
//   - swapchain: the swapchain composited into; one frame set is created per image
//   - shaders: the shader provider
//   - options: functional options
//
// Returns:
//   - Orchestrator: the orchestrator
//   - error: on a missing feature or any creation failure
func NewOrchestrator(device gpu.Device, swapchain gpu.Swapchain, shaders ShaderProvider, options ...OrchestratorBuilderOption) (Orchestrator, error) {
	o := &orchestrator{
		label:     "frame",
		device:    device,
		queue:     device.Queue(),
		swapchain: swapchain,
		shaders:   shaders,
		extent:    swapchain.Extent(),
		mode:      config.RenderModeRayTrace,
		materials: []Material{DefaultMaterial()},
	}
	for _, opt := range options {
		opt(o)
	}

	feats := device.Features()
	switch {
	case !feats.AccelerationStructure:
		return nil, &gpu.Error{Op: "newOrchestrator", Kind: gpu.ErrorKindUnsupported, Result: gpu.ErrorFeatureNotPresent, Err: fmt.Errorf("acceleration structures")}
	case o.mode == config.RenderModeRayQuery && !feats.RayQuery:
		return nil, &gpu.Error{Op: "newOrchestrator", Kind: gpu.ErrorKindUnsupported, Result: gpu.ErrorFeatureNotPresent, Err: fmt.Errorf("ray query")}
	case o.mode == config.RenderModeRayTrace && !feats.RayTracingPipeline:
		return nil, &gpu.Error{Op: "newOrchestrator", Kind: gpu.ErrorKindUnsupported, Result: gpu.ErrorFeatureNotPresent, Err: fmt.Errorf("ray tracing pipeline")}
	}

	steps := []struct {
		name string
		fn   func() error
	}{
		{"frame data", o.createFrameData},
		{"g-buffer", o.createGBuffer},
		{"shadows", o.createShadows},
		{"denoiser", o.createDenoiser},
		{"composite", o.createComposite},
	}
	for _, s := range steps {
		if err := s.fn(); err != nil {
			o.Destroy()
			return nil, fmt.Errorf("create %s: %w", s.name, err)
		}
	}
	logger.Infof("%s: %s shadows, denoise=%t, %d slots, %dx%d", o.label, o.mode, o.denoise, len(o.frameSets), o.extent.Width, o.extent.Height)
	return o, nil
}

func (o *orchestrator) Mode() config.RenderMode { return o.mode }
func (o *orchestrator) Denoise() bool           { return o.denoise }

func (o *orchestrator) SetDenoise(enabled bool) {
	if enabled != o.denoise {
		logger.Noticef("%s: denoise %t", o.label, enabled)
	}
	o.denoise = enabled
}

func (o *orchestrator) Bindings() Bindings {
	b := Bindings{
		TopLevel:   o.topLevel,
		Visibility: o.visibility(),
		Depth:      o.gbuffer.depth,
	}
	if o.denoiser.history != nil {
		b.Denoised = o.denoiser.output
		b.History = o.denoiser.history.Write(o.pingPong)
	}
	copy(b.GBuffer[:], o.gbuffer.colors[:4])
	return b
}

// visibility returns the image the active technique writes shadows into.
func (o *orchestrator) visibility() gpu.Image {
	if o.mode == config.RenderModeRayQuery {
		if len(o.gbuffer.colors) > AttachmentVisibility {
			return o.gbuffer.colors[AttachmentVisibility]
		}
		return nil
	}
	return o.shadows.output
}

func (o *orchestrator) Record(f *frame.Frame, data FrameData) error {
	if data.TopLevel == nil {
		return gpu.NewError("recordFrame", gpu.ErrorKindInvalidUsage, "frame %d has no TLAS", f.Number)
	}
	slot := f.Slot.Index
	pingPong := f.PingPong()
	o.pingPong = pingPong
	if err := o.writeFrameData(slot, f.Number, pingPong, &data); err != nil {
		return fmt.Errorf("record frame %d: %w", f.Number, err)
	}

	cmd := f.Cmd()
	labeled(cmd, "GBuffer", colorGBuffer, func() { o.recordGBuffer(cmd, slot) })
	if o.mode == config.RenderModeRayTrace {
		labeled(cmd, "RayTracedShadows", colorShadows, func() { o.recordShadows(cmd, slot) })
	}
	if o.denoise {
		labeled(cmd, "Downsample", colorDenoise, func() { o.recordDownsample(cmd) })
		labeled(cmd, "TemporalAccumulation", colorDenoise, func() { o.recordTemporal(cmd, slot, pingPong) })
		labeled(cmd, "SpatialDenoise", colorDenoise, func() { o.recordSpatial(cmd, slot, pingPong) })
	}
	labeled(cmd, "DeferredComposite", colorComposite, func() { o.recordComposite(cmd, f, slot) })
	logger.Debugf("%s: recorded frame %d slot %d ping-pong %d", o.label, f.Number, slot, pingPong)
	return nil
}

func labeled(cmd gpu.CommandBuffer, name string, color [4]float32, record func()) {
	cmd.BeginDebugLabel(name, color)
	record()
	cmd.EndDebugLabel()
}

func (o *orchestrator) dynamicOffset(slot int) []uint32 {
	return []uint32{uint32(uint64(slot) * o.uniformStride)}
}

func (o *orchestrator) Destroy() {
	o.composite.destroy()
	o.denoiser.destroy()
	o.shadows.destroy()
	o.gbuffer.destroy()
	o.destroyFrameData()
}
