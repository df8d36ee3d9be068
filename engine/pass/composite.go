package pass

import (
	"encoding/binary"
	"fmt"

	"github.com/Carmen-Shannon/oxy-rt/engine/frame"
	"github.com/Carmen-Shannon/oxy-rt/engine/gpu"
)

// compositePushSize holds a uint32 swizzle flag padded to 16 bytes.
const compositePushSize = 16

type compositePass struct {
	renderPass   gpu.RenderPass
	framebuffers []gpu.Framebuffer
	layout       gpu.DescriptorSetLayout
	pipeline     gpu.Pipeline

	// raw samples the visibility image, denoised the spatial filter output.
	raw, denoised gpu.DescriptorSet

	push []byte
}

func (o *orchestrator) createComposite() error {
	c := &o.composite
	format := o.swapchain.Format()
	var err error
	c.renderPass, err = o.device.CreateRenderPass(gpu.RenderPassDescriptor{
		Label: o.label + ".compositePass",
		ColorAttachments: []gpu.AttachmentDescription{{
			Format:         format,
			LoadOp:         gpu.LoadOpDontCare,
			StoreOp:        gpu.StoreOpStore,
			StencilLoadOp:  gpu.LoadOpDontCare,
			StencilStoreOp: gpu.StoreOpDontCare,
			InitialLayout:  gpu.ImageLayoutUndefined,
			FinalLayout:    gpu.ImageLayoutPresentSrc,
		}},
	})
	if err != nil {
		return err
	}
	for i := 0; i < o.swapchain.Length(); i++ {
		fb, err := o.device.CreateFramebuffer(gpu.FramebufferDescriptor{
			Label:       fmt.Sprintf("%s.composite[%d]", o.label, i),
			RenderPass:  c.renderPass,
			Attachments: []gpu.Image{o.swapchain.Image(uint32(i))},
			Extent:      o.extent,
		})
		if err != nil {
			return err
		}
		c.framebuffers = append(c.framebuffers, fb)
	}

	if c.layout, err = o.device.CreateDescriptorSetLayout(o.label+".compositeLayout", passSetBindings(gpu.ShaderStageFragment, 6, false)); err != nil {
		return err
	}
	g := o.gbuffer
	common := []gpu.DescriptorWrite{
		sampledWrite(CompositeBindingAlbedo, g.colors[AttachmentAlbedo]),
		sampledWrite(CompositeBindingNormal, g.colors[AttachmentNormal]),
		sampledWrite(CompositeBindingPosition, g.colors[AttachmentPosition]),
		sampledWrite(CompositeBindingF0Roughness, g.colors[AttachmentF0Roughness]),
		sampledWrite(CompositeBindingDepth, g.depth),
	}
	variants := []struct {
		name   string
		set    *gpu.DescriptorSet
		shadow gpu.Image
	}{
		{"raw", &c.raw, o.visibility()},
		{"denoised", &c.denoised, o.denoiser.output},
	}
	for _, v := range variants {
		set, err := o.device.AllocateDescriptorSet(o.label+".compositeSet."+v.name, c.layout)
		if err != nil {
			return err
		}
		if err := set.Update(append(common, sampledWrite(CompositeBindingShadow, v.shadow))...); err != nil {
			return err
		}
		*v.set = set
	}

	stages, err := shaderStages(o.shaders,
		stageName{gpu.ShaderStageVertex, ShaderFullscreenVertex},
		stageName{gpu.ShaderStageFragment, ShaderCompositeFragment},
	)
	if err != nil {
		return err
	}
	c.pipeline, err = o.device.CreatePipeline(gpu.PipelineDescriptor{
		Label:     o.label + ".compositePipeline",
		BindPoint: gpu.PipelineBindPointGraphics,
		Stages:    stages,
		Layout: gpu.PipelineLayoutDescriptor{
			SetLayouts:       []gpu.DescriptorSetLayout{o.frameLayout, c.layout},
			PushConstantSize: compositePushSize,
		},
		RenderPass: c.renderPass,
	})
	if err != nil {
		return err
	}

	c.push = make([]byte, compositePushSize)
	if format == gpu.FormatB8G8R8A8Unorm {
		binary.LittleEndian.PutUint32(c.push, 1)
	}
	return nil
}

// recordComposite shades the G-buffer with the raw or denoised visibility into the acquired
// swapchain image and leaves it in PRESENT_SRC.
func (o *orchestrator) recordComposite(cmd gpu.CommandBuffer, f *frame.Frame, slot int) {
	c := &o.composite
	set := c.raw
	if o.denoise {
		set = c.denoised
	}
	cmd.BeginRenderPass(gpu.RenderPassBeginInfo{
		RenderPass:  c.renderPass,
		Framebuffer: c.framebuffers[f.ImageIndex],
		RenderArea:  gpu.Rect2D{Extent: o.extent},
	})
	cmd.BindPipeline(c.pipeline)
	cmd.BindDescriptorSets(c.pipeline, SetFrame, []gpu.DescriptorSet{o.frameSets[slot], set}, o.dynamicOffset(slot))
	cmd.PushConstants(c.pipeline, gpu.ShaderStageFragment, 0, c.push)
	cmd.Draw(3, 1, 0, 0)
	if o.overlay != nil {
		o.overlay(cmd, f)
	}
	cmd.EndRenderPass()
}

func (c *compositePass) destroy() {
	destroyObject(c.pipeline)
	destroyObject(c.layout)
	for _, fb := range c.framebuffers {
		fb.Destroy()
	}
	destroyObject(c.renderPass)
	*c = compositePass{}
}
