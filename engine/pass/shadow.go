package pass

import (
	"github.com/Carmen-Shannon/oxy-rt/engine/config"
	"github.com/Carmen-Shannon/oxy-rt/engine/gpu"
)

// Shader groups of the shadow pipeline, in SBT order.
const (
	shadowGroupRaygen = iota
	shadowGroupMiss
	shadowGroupHit
	shadowGroupCount
)

type shadowPass struct {
	output   gpu.Image
	layout   gpu.DescriptorSetLayout
	set      gpu.DescriptorSet
	pipeline gpu.Pipeline

	sbt               gpu.Buffer
	raygen, miss, hit gpu.StridedDeviceAddressRegion
}

// createShadows builds the ray-tracing pipeline and its binding table. Ray-query mode resolves
// visibility in the G-buffer pass and needs none of it.
func (o *orchestrator) createShadows() error {
	if o.mode != config.RenderModeRayTrace {
		return nil
	}
	s := &o.shadows
	var err error
	s.output, err = o.device.CreateImage(gpu.ImageDescriptor{
		Label:     o.label + ".shadows",
		Format:    gpu.FormatR8Unorm,
		Extent:    o.extent,
		MipLevels: 1,
		Usage:     gpu.ImageUsageStorage | gpu.ImageUsageSampled | gpu.ImageUsageTransferSrc,
	})
	if err != nil {
		return err
	}
	stages := gpu.ShaderStageRaygen | gpu.ShaderStageClosestHit | gpu.ShaderStageMiss
	if s.layout, err = o.device.CreateDescriptorSetLayout(o.label+".shadowLayout", passSetBindings(stages, 3, true)); err != nil {
		return err
	}
	if s.set, err = o.device.AllocateDescriptorSet(o.label+".shadowSet", s.layout); err != nil {
		return err
	}
	err = s.set.Update(
		sampledWrite(ShadowBindingPosition, o.gbuffer.colors[AttachmentPosition]),
		sampledWrite(ShadowBindingNormal, o.gbuffer.colors[AttachmentNormal]),
		sampledWrite(ShadowBindingDepth, o.gbuffer.depth),
		storageWrite(ShadowBindingOutput, s.output),
	)
	if err != nil {
		return err
	}

	modules, err := shaderStages(o.shaders,
		stageName{gpu.ShaderStageRaygen, ShaderShadowRaygen},
		stageName{gpu.ShaderStageMiss, ShaderShadowMiss},
		stageName{gpu.ShaderStageClosestHit, ShaderShadowClosestHit},
	)
	if err != nil {
		return err
	}
	s.pipeline, err = o.device.CreatePipeline(gpu.PipelineDescriptor{
		Label:             o.label + ".shadowPipeline",
		BindPoint:         gpu.PipelineBindPointRayTracing,
		Stages:            modules,
		Groups:            []gpu.ShaderGroup{gpu.GeneralGroup(0), gpu.GeneralGroup(1), gpu.HitGroup(2)},
		Layout:            gpu.PipelineLayoutDescriptor{SetLayouts: []gpu.DescriptorSetLayout{o.frameLayout, s.layout}},
		MaxRecursionDepth: 1,
	})
	if err != nil {
		return err
	}
	return o.createBindingTable()
}

// createBindingTable writes one record per group, each region starting on the group base
// alignment, and uploads the table through a staging copy.
func (o *orchestrator) createBindingTable() error {
	s := &o.shadows
	props := o.device.Properties()
	handleSize := uint64(props.ShaderGroupHandleSize)
	stride := gpu.AlignUp(handleSize, uint64(props.ShaderGroupHandleAlignment))
	regionSize := gpu.AlignUp(stride, uint64(props.ShaderGroupBaseAlignment))

	handles, err := o.device.GetRayTracingShaderGroupHandles(s.pipeline, 0, shadowGroupCount)
	if err != nil {
		return err
	}
	table := make([]byte, regionSize*shadowGroupCount)
	for g := uint64(0); g < shadowGroupCount; g++ {
		copy(table[g*regionSize:], handles[g*handleSize:(g+1)*handleSize])
	}

	s.sbt, err = o.device.CreateBuffer(gpu.BufferDescriptor{
		Label:         o.label + ".sbt",
		Size:          uint64(len(table)),
		Usage:         gpu.BufferUsageShaderBindingTable | gpu.BufferUsageShaderDeviceAddress | gpu.BufferUsageTransferDst,
		Required:      gpu.MemoryPropertyDeviceLocal,
		AllocateFlags: gpu.MemoryAllocateDeviceAddress,
	})
	if err != nil {
		return err
	}
	base, err := s.sbt.DeviceAddress()
	if err != nil {
		return err
	}
	region := func(g uint64) gpu.StridedDeviceAddressRegion {
		return gpu.StridedDeviceAddressRegion{Address: base + gpu.DeviceAddress(g*regionSize), Stride: stride, Size: stride}
	}
	s.raygen, s.miss, s.hit = region(shadowGroupRaygen), region(shadowGroupMiss), region(shadowGroupHit)

	if err := o.upload.Begin(); err != nil {
		return err
	}
	staging, err := gpu.UpdateBufferUsingStagingBuffer(o.device, s.sbt, o.upload, table, 0)
	if err != nil {
		o.upload.End()
		o.upload.Reset()
		return err
	}
	defer staging.Destroy()
	dep := gpu.Dependency{SrcStage: gpu.PipelineStageTransfer, DstStage: gpu.PipelineStageRayTracingShader}
	dep.AddMemory(gpu.AccessTransferWrite, gpu.AccessShaderRead)
	o.upload.PipelineBarrier(dep)
	return o.submitUpload()
}

// recordShadows traces one shadow ray per G-buffer pixel into the storage image.
func (o *orchestrator) recordShadows(cmd gpu.CommandBuffer, slot int) {
	s := &o.shadows
	color := gpu.SubresourceRange{Aspect: gpu.ImageAspectColor}

	in := gpu.Dependency{
		SrcStage: gpu.PipelineStageFragmentShader | gpu.PipelineStageColorAttachmentOutput | gpu.PipelineStageLateFragmentTests,
		DstStage: gpu.PipelineStageRayTracingShader,
	}
	in.AddMemory(gpu.AccessColorAttachmentWrite|gpu.AccessDepthStencilAttachmentWrite, gpu.AccessShaderRead)
	in.AddImage(s.output, gpu.AccessNone, gpu.AccessShaderWrite, gpu.ImageLayoutUndefined, gpu.ImageLayoutGeneral, color)
	cmd.PipelineBarrier(in)

	cmd.BindPipeline(s.pipeline)
	cmd.BindDescriptorSets(s.pipeline, SetFrame, []gpu.DescriptorSet{o.frameSets[slot], s.set}, o.dynamicOffset(slot))
	cmd.TraceRays(s.raygen, s.miss, s.hit, gpu.StridedDeviceAddressRegion{}, o.extent.Width, o.extent.Height, 1)

	out := gpu.Dependency{
		SrcStage: gpu.PipelineStageRayTracingShader,
		DstStage: gpu.PipelineStageFragmentShader | gpu.PipelineStageComputeShader | gpu.PipelineStageTransfer,
	}
	out.AddImage(s.output, gpu.AccessShaderWrite, gpu.AccessShaderRead, gpu.ImageLayoutGeneral, gpu.ImageLayoutShaderReadOnlyOptimal, color)
	cmd.PipelineBarrier(out)
}

func (s *shadowPass) destroy() {
	for _, obj := range []interface{ Destroy() }{s.sbt, s.pipeline, s.layout, s.output} {
		destroyObject(obj)
	}
	s.sbt, s.pipeline, s.layout, s.output, s.set = nil, nil, nil, nil, nil
}
