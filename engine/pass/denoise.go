package pass

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-rt/engine/gpu"
)

type denoisePass struct {
	chain   gpu.Image
	history *PingPong
	output  gpu.Image

	// historyReady is set once both history images have left UNDEFINED.
	historyReady bool

	temporalLayout   gpu.DescriptorSetLayout
	temporalSets     [2]gpu.DescriptorSet
	temporalPipeline gpu.Pipeline

	spatialLayout   gpu.DescriptorSetLayout
	spatialSets     [2]gpu.DescriptorSet
	spatialPipeline gpu.Pipeline
}

func (o *orchestrator) createDenoiser() error {
	d := &o.denoiser
	var err error
	d.chain, err = o.device.CreateImage(gpu.ImageDescriptor{
		Label:     o.label + ".visibilityChain",
		Format:    gpu.FormatR16Sfloat,
		Extent:    o.extent,
		MipLevels: DownsampleMips,
		Usage:     gpu.ImageUsageTransferSrc | gpu.ImageUsageTransferDst | gpu.ImageUsageSampled,
	})
	if err != nil {
		return err
	}
	// History texels hold (visibility, accumulated frame count).
	d.history, err = NewPingPong(o.device, gpu.ImageDescriptor{
		Label:     o.label + ".history",
		Format:    gpu.FormatR16G16B16A16Sfloat,
		Extent:    o.extent,
		MipLevels: 1,
		Usage:     gpu.ImageUsageStorage | gpu.ImageUsageSampled,
	})
	if err != nil {
		return err
	}
	d.output, err = o.device.CreateImage(gpu.ImageDescriptor{
		Label:     o.label + ".denoised",
		Format:    gpu.FormatR16Sfloat,
		Extent:    o.extent,
		MipLevels: 1,
		Usage:     gpu.ImageUsageStorage | gpu.ImageUsageSampled,
	})
	if err != nil {
		return err
	}

	g := o.gbuffer
	if d.temporalLayout, err = o.device.CreateDescriptorSetLayout(o.label+".temporalLayout", passSetBindings(gpu.ShaderStageCompute, 4, true)); err != nil {
		return err
	}
	if d.spatialLayout, err = o.device.CreateDescriptorSetLayout(o.label+".spatialLayout", passSetBindings(gpu.ShaderStageCompute, 5, true)); err != nil {
		return err
	}
	for pp := 0; pp < 2; pp++ {
		if d.temporalSets[pp], err = o.device.AllocateDescriptorSet(fmt.Sprintf("%s.temporalSet[%d]", o.label, pp), d.temporalLayout); err != nil {
			return err
		}
		err = d.temporalSets[pp].Update(
			sampledWrite(TemporalBindingCurrent, d.chain),
			sampledWrite(TemporalBindingHistory, d.history.History(pp)),
			sampledWrite(TemporalBindingDepth, g.depth),
			sampledWrite(TemporalBindingPosition, g.colors[AttachmentPosition]),
			storageWrite(TemporalBindingOutput, d.history.Write(pp)),
		)
		if err != nil {
			return err
		}
		if d.spatialSets[pp], err = o.device.AllocateDescriptorSet(fmt.Sprintf("%s.spatialSet[%d]", o.label, pp), d.spatialLayout); err != nil {
			return err
		}
		err = d.spatialSets[pp].Update(
			sampledWrite(SpatialBindingAccumulated, d.history.Write(pp)),
			sampledWrite(SpatialBindingChain, d.chain),
			sampledWrite(SpatialBindingNormal, g.colors[AttachmentNormal]),
			sampledWrite(SpatialBindingPosition, g.colors[AttachmentPosition]),
			sampledWrite(SpatialBindingDepth, g.depth),
			storageWrite(SpatialBindingOutput, d.output),
		)
		if err != nil {
			return err
		}
	}

	if d.temporalPipeline, err = o.computePipeline("temporal", ShaderTemporal, d.temporalLayout); err != nil {
		return err
	}
	d.spatialPipeline, err = o.computePipeline("spatial", ShaderSpatial, d.spatialLayout)
	return err
}

func (o *orchestrator) computePipeline(name, shader string, layout gpu.DescriptorSetLayout) (gpu.Pipeline, error) {
	stages, err := shaderStages(o.shaders, stageName{gpu.ShaderStageCompute, shader})
	if err != nil {
		return nil, err
	}
	return o.device.CreatePipeline(gpu.PipelineDescriptor{
		Label:     o.label + "." + name + "Pipeline",
		BindPoint: gpu.PipelineBindPointCompute,
		Stages:    stages,
		Layout:    gpu.PipelineLayoutDescriptor{SetLayouts: []gpu.DescriptorSetLayout{o.frameLayout, layout}},
		LocalSize: [3]uint32{ComputeGroupSize, ComputeGroupSize, 1},
	})
}

// recordDownsample blits the raw visibility into mip 0 of the chain and each mip into the next,
// transitioning one mip at a time from TRANSFER_DST to TRANSFER_SRC.
func (o *orchestrator) recordDownsample(cmd gpu.CommandBuffer) {
	d := &o.denoiser
	src := o.visibility()
	mip := func(base uint32) gpu.SubresourceRange {
		return gpu.SubresourceRange{Aspect: gpu.ImageAspectColor, BaseMip: base, MipCount: 1}
	}

	in := gpu.Dependency{
		SrcStage: gpu.PipelineStageColorAttachmentOutput | gpu.PipelineStageRayTracingShader,
		DstStage: gpu.PipelineStageTransfer,
	}
	in.AddImage(src, gpu.AccessColorAttachmentWrite|gpu.AccessShaderWrite, gpu.AccessTransferRead,
		gpu.ImageLayoutShaderReadOnlyOptimal, gpu.ImageLayoutTransferSrcOptimal, mip(0))
	in.AddImage(d.chain, gpu.AccessShaderRead, gpu.AccessTransferWrite,
		gpu.ImageLayoutUndefined, gpu.ImageLayoutTransferDstOptimal, gpu.SubresourceRange{Aspect: gpu.ImageAspectColor})
	cmd.PipelineBarrier(in)
	cmd.BlitImage(src, gpu.ImageLayoutTransferSrcOptimal, d.chain, gpu.ImageLayoutTransferDstOptimal, []gpu.ImageBlit{{SrcMip: 0, DstMip: 0}}, gpu.FilterLinear)

	for m := uint32(1); m < DownsampleMips; m++ {
		step := gpu.Dependency{SrcStage: gpu.PipelineStageTransfer, DstStage: gpu.PipelineStageTransfer}
		step.AddImage(d.chain, gpu.AccessTransferWrite, gpu.AccessTransferRead,
			gpu.ImageLayoutTransferDstOptimal, gpu.ImageLayoutTransferSrcOptimal, mip(m-1))
		cmd.PipelineBarrier(step)
		cmd.BlitImage(d.chain, gpu.ImageLayoutTransferSrcOptimal, d.chain, gpu.ImageLayoutTransferDstOptimal, []gpu.ImageBlit{{SrcMip: m - 1, DstMip: m}}, gpu.FilterLinear)
	}

	out := gpu.Dependency{SrcStage: gpu.PipelineStageTransfer, DstStage: gpu.PipelineStageComputeShader | gpu.PipelineStageFragmentShader}
	out.AddImage(d.chain, gpu.AccessTransferRead, gpu.AccessShaderRead,
		gpu.ImageLayoutTransferSrcOptimal, gpu.ImageLayoutShaderReadOnlyOptimal, gpu.SubresourceRange{Aspect: gpu.ImageAspectColor, BaseMip: 0, MipCount: DownsampleMips - 1})
	out.AddImage(d.chain, gpu.AccessTransferWrite, gpu.AccessShaderRead,
		gpu.ImageLayoutTransferDstOptimal, gpu.ImageLayoutShaderReadOnlyOptimal, mip(DownsampleMips-1))
	out.AddImage(src, gpu.AccessTransferRead, gpu.AccessShaderRead,
		gpu.ImageLayoutTransferSrcOptimal, gpu.ImageLayoutShaderReadOnlyOptimal, mip(0))
	cmd.PipelineBarrier(out)
}

// recordTemporal blends the current visibility with the reprojected history into the ping-pong
// image selected by pingPong.
func (o *orchestrator) recordTemporal(cmd gpu.CommandBuffer, slot, pingPong int) {
	d := &o.denoiser
	color := gpu.SubresourceRange{Aspect: gpu.ImageAspectColor}
	if !d.historyReady {
		first := gpu.Dependency{SrcStage: gpu.PipelineStageTopOfPipe, DstStage: gpu.PipelineStageComputeShader}
		first.AddImage(d.history.Image(0), gpu.AccessNone, gpu.AccessShaderRead, gpu.ImageLayoutUndefined, gpu.ImageLayoutShaderReadOnlyOptimal, color)
		first.AddImage(d.history.Image(1), gpu.AccessNone, gpu.AccessShaderRead, gpu.ImageLayoutUndefined, gpu.ImageLayoutShaderReadOnlyOptimal, color)
		cmd.PipelineBarrier(first)
		d.historyReady = true
	}

	in := gpu.Dependency{SrcStage: gpu.PipelineStageComputeShader, DstStage: gpu.PipelineStageComputeShader}
	in.AddImage(d.history.Write(pingPong), gpu.AccessShaderRead, gpu.AccessShaderWrite,
		gpu.ImageLayoutShaderReadOnlyOptimal, gpu.ImageLayoutGeneral, color)
	cmd.PipelineBarrier(in)

	cmd.BindPipeline(d.temporalPipeline)
	cmd.BindDescriptorSets(d.temporalPipeline, SetFrame, []gpu.DescriptorSet{o.frameSets[slot], d.temporalSets[pingPong]}, o.dynamicOffset(slot))
	cmd.Dispatch(groups(o.extent.Width), groups(o.extent.Height), 1)

	out := gpu.Dependency{SrcStage: gpu.PipelineStageComputeShader, DstStage: gpu.PipelineStageComputeShader}
	out.AddImage(d.history.Write(pingPong), gpu.AccessShaderWrite, gpu.AccessShaderRead,
		gpu.ImageLayoutGeneral, gpu.ImageLayoutShaderReadOnlyOptimal, color)
	cmd.PipelineBarrier(out)
}

// recordSpatial filters the accumulated visibility with a Poisson disc into the denoised image.
func (o *orchestrator) recordSpatial(cmd gpu.CommandBuffer, slot, pingPong int) {
	d := &o.denoiser
	color := gpu.SubresourceRange{Aspect: gpu.ImageAspectColor}

	in := gpu.Dependency{SrcStage: gpu.PipelineStageFragmentShader, DstStage: gpu.PipelineStageComputeShader}
	in.AddImage(d.output, gpu.AccessShaderRead, gpu.AccessShaderWrite, gpu.ImageLayoutUndefined, gpu.ImageLayoutGeneral, color)
	cmd.PipelineBarrier(in)

	cmd.BindPipeline(d.spatialPipeline)
	cmd.BindDescriptorSets(d.spatialPipeline, SetFrame, []gpu.DescriptorSet{o.frameSets[slot], d.spatialSets[pingPong]}, o.dynamicOffset(slot))
	cmd.Dispatch(groups(o.extent.Width), groups(o.extent.Height), 1)

	out := gpu.Dependency{SrcStage: gpu.PipelineStageComputeShader, DstStage: gpu.PipelineStageFragmentShader}
	out.AddImage(d.output, gpu.AccessShaderWrite, gpu.AccessShaderRead, gpu.ImageLayoutGeneral, gpu.ImageLayoutShaderReadOnlyOptimal, color)
	cmd.PipelineBarrier(out)
}

func (d *denoisePass) destroy() {
	for _, obj := range []interface{ Destroy() }{d.spatialPipeline, d.temporalPipeline, d.spatialLayout, d.temporalLayout, d.output, d.chain} {
		destroyObject(obj)
	}
	if d.history != nil {
		d.history.Destroy()
	}
	*d = denoisePass{}
}
