package soft

import (
	"encoding/binary"
	"fmt"

	"github.com/Carmen-Shannon/oxy-rt/engine/gpu"
)

// Shader group handles are this many bytes; the first 12 carry a tag, the pipeline id and the group.
const (
	groupHandleSize      = 32
	groupHandleAlignment = 32
	groupBaseAlignment   = 64
	groupHandleTag       = 0x5452584f
)

type descriptorSetLayout struct {
	label    string
	bindings []gpu.DescriptorBinding
}

func (l *descriptorSetLayout) Label() string                     { return l.label }
func (l *descriptorSetLayout) Bindings() []gpu.DescriptorBinding { return l.bindings }
func (l *descriptorSetLayout) Destroy()                          {}

func (l *descriptorSetLayout) binding(b uint32) (gpu.DescriptorBinding, bool) {
	for _, db := range l.bindings {
		if db.Binding == b {
			return db, true
		}
	}
	return gpu.DescriptorBinding{}, false
}

// CreateDescriptorSetLayout validates binding uniqueness.
func (d *Device) CreateDescriptorSetLayout(label string, bindings []gpu.DescriptorBinding) (gpu.DescriptorSetLayout, error) {
	seen := map[uint32]bool{}
	for _, b := range bindings {
		if seen[b.Binding] {
			return nil, gpu.NewError("vkCreateDescriptorSetLayout", gpu.ErrorKindInvalidUsage, "layout %q binds %d twice", label, b.Binding)
		}
		if b.Type == gpu.DescriptorTypeAccelerationStructure && !d.features.AccelerationStructure {
			return nil, &gpu.Error{Op: "vkCreateDescriptorSetLayout", Kind: gpu.ErrorKindUnsupported, Result: gpu.ErrorFeatureNotPresent}
		}
		seen[b.Binding] = true
	}
	return &descriptorSetLayout{label: label, bindings: append([]gpu.DescriptorBinding(nil), bindings...)}, nil
}

type descriptorSet struct {
	label  string
	layout *descriptorSetLayout
	writes map[uint32]gpu.DescriptorWrite
}

func (s *descriptorSet) Label() string                   { return s.label }
func (s *descriptorSet) Layout() gpu.DescriptorSetLayout { return s.layout }

func (s *descriptorSet) Update(writes ...gpu.DescriptorWrite) error {
	for _, w := range writes {
		b, ok := s.layout.binding(w.Binding)
		if !ok {
			return gpu.NewError("vkUpdateDescriptorSets", gpu.ErrorKindInvalidUsage, "set %q has no binding %d", s.label, w.Binding)
		}
		if b.Type != w.Type {
			return gpu.NewError("vkUpdateDescriptorSets", gpu.ErrorKindInvalidUsage, "set %q binding %d type mismatch", s.label, w.Binding)
		}
		switch w.Type {
		case gpu.DescriptorTypeAccelerationStructure:
			if w.AccelerationStructure == nil || w.AccelerationStructure.Type() != gpu.AccelerationStructureTypeTopLevel {
				return gpu.NewError("vkUpdateDescriptorSets", gpu.ErrorKindInvalidUsage, "set %q binding %d needs a TLAS", s.label, w.Binding)
			}
		case gpu.DescriptorTypeUniformBuffer, gpu.DescriptorTypeUniformBufferDynamic, gpu.DescriptorTypeStorageBuffer:
			if w.Buffer == nil {
				return gpu.NewError("vkUpdateDescriptorSets", gpu.ErrorKindInvalidUsage, "set %q binding %d needs a buffer", s.label, w.Binding)
			}
		default:
			if w.Image == nil {
				return gpu.NewError("vkUpdateDescriptorSets", gpu.ErrorKindInvalidUsage, "set %q binding %d needs an image", s.label, w.Binding)
			}
		}
		s.writes[w.Binding] = w
	}
	return nil
}

// AllocateDescriptorSet allocates an empty set for layout.
func (d *Device) AllocateDescriptorSet(label string, layout gpu.DescriptorSetLayout) (gpu.DescriptorSet, error) {
	l, ok := layout.(*descriptorSetLayout)
	if !ok {
		return nil, gpu.NewError("vkAllocateDescriptorSets", gpu.ErrorKindInvalidUsage, "foreign layout")
	}
	return &descriptorSet{label: label, layout: l, writes: map[uint32]gpu.DescriptorWrite{}}, nil
}

type renderPass struct {
	desc gpu.RenderPassDescriptor
}

func (r *renderPass) Label() string                        { return r.desc.Label }
func (r *renderPass) Descriptor() gpu.RenderPassDescriptor { return r.desc }
func (r *renderPass) Destroy()                             {}

func (r *renderPass) attachmentCount() int {
	n := len(r.desc.ColorAttachments)
	if r.desc.DepthAttachment != nil {
		n++
	}
	return n
}

func (r *renderPass) attachment(i int) gpu.AttachmentDescription {
	if i < len(r.desc.ColorAttachments) {
		return r.desc.ColorAttachments[i]
	}
	return *r.desc.DepthAttachment
}

// CreateRenderPass records the attachment description.
func (d *Device) CreateRenderPass(desc gpu.RenderPassDescriptor) (gpu.RenderPass, error) {
	if len(desc.ColorAttachments) == 0 && desc.DepthAttachment == nil {
		return nil, gpu.NewError("vkCreateRenderPass", gpu.ErrorKindInvalidUsage, "render pass %q has no attachments", desc.Label)
	}
	return &renderPass{desc: desc}, nil
}

type framebuffer struct {
	label       string
	pass        *renderPass
	attachments []*softImage
	extent      gpu.Extent2D
}

func (f *framebuffer) Label() string              { return f.label }
func (f *framebuffer) RenderPass() gpu.RenderPass { return f.pass }
func (f *framebuffer) Extent() gpu.Extent2D       { return f.extent }
func (f *framebuffer) Destroy()                   {}

func (f *framebuffer) Attachments() []gpu.Image {
	out := make([]gpu.Image, len(f.attachments))
	for i, a := range f.attachments {
		out[i] = a
	}
	return out
}

// CreateFramebuffer checks attachment count, formats and extents against the render pass.
func (d *Device) CreateFramebuffer(desc gpu.FramebufferDescriptor) (gpu.Framebuffer, error) {
	const op = "vkCreateFramebuffer"
	rp, ok := desc.RenderPass.(*renderPass)
	if !ok {
		return nil, gpu.NewError(op, gpu.ErrorKindInvalidUsage, "foreign render pass")
	}
	if len(desc.Attachments) != rp.attachmentCount() {
		return nil, gpu.NewError(op, gpu.ErrorKindInvalidUsage, "framebuffer %q has %d attachments, pass %q needs %d", desc.Label, len(desc.Attachments), rp.desc.Label, rp.attachmentCount())
	}
	fb := &framebuffer{label: desc.Label, pass: rp, extent: desc.Extent}
	for i, a := range desc.Attachments {
		img, ok := a.(*softImage)
		if !ok {
			return nil, gpu.NewError(op, gpu.ErrorKindInvalidUsage, "foreign attachment %d", i)
		}
		if img.format != rp.attachment(i).Format {
			return nil, gpu.NewError(op, gpu.ErrorKindInvalidUsage, "attachment %d of %q is %s, pass expects %s", i, desc.Label, img.format, rp.attachment(i).Format)
		}
		if img.extent.Width < desc.Extent.Width || img.extent.Height < desc.Extent.Height {
			return nil, gpu.NewError(op, gpu.ErrorKindInvalidUsage, "attachment %d of %q smaller than framebuffer", i, desc.Label)
		}
		fb.attachments = append(fb.attachments, img)
	}
	return fb, nil
}

type pipeline struct {
	id     uint32
	desc   gpu.PipelineDescriptor
	stages []Kernel
}

func (p *pipeline) Label() string                        { return p.desc.Label }
func (p *pipeline) BindPoint() gpu.PipelineBindPoint     { return p.desc.BindPoint }
func (p *pipeline) Layout() gpu.PipelineLayoutDescriptor { return p.desc.Layout }
func (p *pipeline) Destroy()                             {}

func (p *pipeline) stageKernel(stage gpu.ShaderStage) Kernel {
	for i, s := range p.desc.Stages {
		if s.Stage == stage {
			return p.stages[i]
		}
	}
	return nil
}

// CreatePipeline resolves every shader blob to a registered kernel.
//
// Parameters:
//   - desc: the pipeline description
//
// Returns:
//   - gpu.Pipeline: the pipeline
//   - error: on a missing feature, an unregistered kernel or an invalid group
func (d *Device) CreatePipeline(desc gpu.PipelineDescriptor) (gpu.Pipeline, error) {
	op := "vkCreateGraphicsPipelines"
	switch desc.BindPoint {
	case gpu.PipelineBindPointCompute:
		op = "vkCreateComputePipelines"
	case gpu.PipelineBindPointRayTracing:
		op = "vkCreateRayTracingPipelinesKHR"
		if !d.features.RayTracingPipeline {
			return nil, &gpu.Error{Op: op, Kind: gpu.ErrorKindUnsupported, Result: gpu.ErrorFeatureNotPresent}
		}
		if desc.MaxRecursionDepth > d.props.MaxRayRecursionDepth {
			return nil, gpu.NewError(op, gpu.ErrorKindUnsupported, "recursion depth %d exceeds %d", desc.MaxRecursionDepth, d.props.MaxRayRecursionDepth)
		}
	}

	p := &pipeline{desc: desc}
	for _, s := range desc.Stages {
		k, ok := d.kernel(string(s.Code))
		if !ok {
			return nil, gpu.NewError(op, gpu.ErrorKindInvalidUsage, "pipeline %q: shader %q not registered", desc.Label, string(s.Code))
		}
		p.stages = append(p.stages, k)
	}
	for gi, g := range desc.Groups {
		for _, idx := range []uint32{g.General, g.ClosestHit, g.AnyHit, g.Intersection} {
			if idx != gpu.ShaderUnused && int(idx) >= len(desc.Stages) {
				return nil, gpu.NewError(op, gpu.ErrorKindInvalidUsage, "pipeline %q group %d references stage %d", desc.Label, gi, idx)
			}
		}
	}
	if desc.BindPoint == gpu.PipelineBindPointCompute && desc.LocalSize == [3]uint32{} {
		p.desc.LocalSize = [3]uint32{1, 1, 1}
	}

	d.nextPipelineID++
	p.id = d.nextPipelineID
	d.pipelines[p.id] = p
	return p, nil
}

// GetRayTracingShaderGroupHandles encodes the pipeline id and group index into each handle.
func (d *Device) GetRayTracingShaderGroupHandles(pl gpu.Pipeline, first, count uint32) ([]byte, error) {
	p, ok := pl.(*pipeline)
	if !ok || p.desc.BindPoint != gpu.PipelineBindPointRayTracing {
		return nil, gpu.NewError("vkGetRayTracingShaderGroupHandlesKHR", gpu.ErrorKindInvalidUsage, "not a ray-tracing pipeline")
	}
	if int(first+count) > len(p.desc.Groups) {
		return nil, gpu.NewError("vkGetRayTracingShaderGroupHandlesKHR", gpu.ErrorKindInvalidUsage, "groups [%d,%d) out of %d", first, first+count, len(p.desc.Groups))
	}
	out := make([]byte, count*groupHandleSize)
	for i := uint32(0); i < count; i++ {
		h := out[i*groupHandleSize:]
		binary.LittleEndian.PutUint32(h, groupHandleTag)
		binary.LittleEndian.PutUint32(h[4:], p.id)
		binary.LittleEndian.PutUint32(h[8:], first+i)
	}
	return out, nil
}

// decodeHandle resolves a shader-binding-table record to its pipeline group.
func (d *Device) decodeHandle(record []byte) (*pipeline, gpu.ShaderGroup, error) {
	if len(record) < groupHandleSize || binary.LittleEndian.Uint32(record) != groupHandleTag {
		return nil, gpu.ShaderGroup{}, fmt.Errorf("record is not a shader group handle")
	}
	p, ok := d.pipelines[binary.LittleEndian.Uint32(record[4:])]
	if !ok {
		return nil, gpu.ShaderGroup{}, fmt.Errorf("handle references an unknown pipeline")
	}
	g := binary.LittleEndian.Uint32(record[8:])
	if int(g) >= len(p.desc.Groups) {
		return nil, gpu.ShaderGroup{}, fmt.Errorf("handle references group %d of %d", g, len(p.desc.Groups))
	}
	return p, p.desc.Groups[g], nil
}
