package pass

import (
	"github.com/Carmen-Shannon/oxy-rt/engine/config"
	"github.com/Carmen-Shannon/oxy-rt/engine/gpu"
)

// gbufferFormats are the colour attachment formats in AttachmentAlbedo.. order.
var gbufferFormats = []gpu.Format{
	gpu.FormatR8G8B8A8Unorm,
	gpu.FormatR16G16B16A16Sfloat,
	gpu.FormatR16G16B16A16Sfloat,
	gpu.FormatR8G8B8A8Unorm,
	gpu.FormatR8Unorm,
}

var gbufferNames = []string{"albedo", "normal", "position", "f0Roughness", "visibility"}

type gbufferPass struct {
	colors      []gpu.Image
	depth       gpu.Image
	renderPass  gpu.RenderPass
	framebuffer gpu.Framebuffer
	pipeline    gpu.Pipeline
	clear       []gpu.ClearValue
}

func (o *orchestrator) createGBuffer() error {
	g := &o.gbuffer
	count := AttachmentVisibility
	fragment := ShaderGBufferFragment
	if o.mode == config.RenderModeRayQuery {
		count++
		fragment = ShaderGBufferRayQueryFragment
	}

	desc := gpu.RenderPassDescriptor{Label: o.label + ".gbufferPass"}
	for i := 0; i < count; i++ {
		usage := gpu.ImageUsageColorAttachment | gpu.ImageUsageSampled
		if i == AttachmentVisibility {
			usage |= gpu.ImageUsageTransferSrc
		}
		img, err := o.device.CreateImage(gpu.ImageDescriptor{
			Label:     o.label + "." + gbufferNames[i],
			Format:    gbufferFormats[i],
			Extent:    o.extent,
			MipLevels: 1,
			Usage:     usage,
		})
		if err != nil {
			return err
		}
		g.colors = append(g.colors, img)
		desc.ColorAttachments = append(desc.ColorAttachments, gpu.AttachmentDescription{
			Format:         gbufferFormats[i],
			LoadOp:         gpu.LoadOpClear,
			StoreOp:        gpu.StoreOpStore,
			StencilLoadOp:  gpu.LoadOpDontCare,
			StencilStoreOp: gpu.StoreOpDontCare,
			InitialLayout:  gpu.ImageLayoutUndefined,
			FinalLayout:    gpu.ImageLayoutShaderReadOnlyOptimal,
		})
		cv := gpu.ClearColor(0, 0, 0, 0)
		if i == AttachmentVisibility {
			cv = gpu.ClearColor(1, 1, 1, 1)
		}
		g.clear = append(g.clear, cv)
	}

	var err error
	g.depth, err = o.device.CreateImage(gpu.ImageDescriptor{
		Label:     o.label + ".depth",
		Format:    gpu.FormatD32SfloatS8Uint,
		Extent:    o.extent,
		MipLevels: 1,
		Usage:     gpu.ImageUsageDepthStencilAttachment | gpu.ImageUsageSampled,
	})
	if err != nil {
		return err
	}
	desc.DepthAttachment = &gpu.AttachmentDescription{
		Format:         gpu.FormatD32SfloatS8Uint,
		LoadOp:         gpu.LoadOpClear,
		StoreOp:        gpu.StoreOpStore,
		StencilLoadOp:  gpu.LoadOpClear,
		StencilStoreOp: gpu.StoreOpStore,
		InitialLayout:  gpu.ImageLayoutUndefined,
		FinalLayout:    gpu.ImageLayoutDepthStencilReadOnlyOptimal,
	}
	g.clear = append(g.clear, gpu.ClearDepthStencil(1, 0))

	if g.renderPass, err = o.device.CreateRenderPass(desc); err != nil {
		return err
	}
	g.framebuffer, err = o.device.CreateFramebuffer(gpu.FramebufferDescriptor{
		Label:       o.label + ".gbuffer",
		RenderPass:  g.renderPass,
		Attachments: append(append([]gpu.Image(nil), g.colors...), g.depth),
		Extent:      o.extent,
	})
	if err != nil {
		return err
	}

	stages, err := shaderStages(o.shaders,
		stageName{gpu.ShaderStageVertex, ShaderFullscreenVertex},
		stageName{gpu.ShaderStageFragment, fragment},
	)
	if err != nil {
		return err
	}
	g.pipeline, err = o.device.CreatePipeline(gpu.PipelineDescriptor{
		Label:      o.label + ".gbufferPipeline",
		BindPoint:  gpu.PipelineBindPointGraphics,
		Stages:     stages,
		Layout:     gpu.PipelineLayoutDescriptor{SetLayouts: []gpu.DescriptorSetLayout{o.frameLayout}},
		RenderPass: g.renderPass,
	})
	return err
}

// recordGBuffer draws one full-screen triangle whose fragments cast primary rays into the TLAS.
// In ray-query mode the same fragments also resolve visibility.
func (o *orchestrator) recordGBuffer(cmd gpu.CommandBuffer, slot int) {
	g := &o.gbuffer
	cmd.BeginRenderPass(gpu.RenderPassBeginInfo{
		RenderPass:  g.renderPass,
		Framebuffer: g.framebuffer,
		RenderArea:  gpu.Rect2D{Extent: o.extent},
		ClearValues: g.clear,
	})
	cmd.BindPipeline(g.pipeline)
	cmd.BindDescriptorSets(g.pipeline, SetFrame, []gpu.DescriptorSet{o.frameSets[slot]}, o.dynamicOffset(slot))
	cmd.Draw(3, 1, 0, 0)
	cmd.EndRenderPass()
}

func (g *gbufferPass) destroy() {
	for _, obj := range []interface{ Destroy() }{g.pipeline, g.framebuffer, g.renderPass, g.depth} {
		destroyObject(obj)
	}
	for _, img := range g.colors {
		img.Destroy()
	}
	g.colors, g.depth, g.pipeline, g.framebuffer, g.renderPass = nil, nil, nil, nil, nil
}

// destroyObject destroys obj unless it is nil.
func destroyObject(obj interface{ Destroy() }) {
	if obj != nil {
		obj.Destroy()
	}
}
