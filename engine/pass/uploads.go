package pass

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine/gpu"
)

// DefaultMaterial is a rough grey dielectric.
func DefaultMaterial() Material {
	return Material{
		Albedo:       common.Vec3{0.7, 0.7, 0.7},
		F0:           common.Vec3{0.04, 0.04, 0.04},
		Roughness:    0.8,
		Reflectivity: 0.04,
		F90:          1,
	}
}

func (o *orchestrator) createFrameData() error {
	var err error
	if o.upload, err = o.device.AllocateCommandBuffer(o.label + ".upload"); err != nil {
		return err
	}
	if o.frameLayout, err = o.device.CreateDescriptorSetLayout(o.label+".frameLayout", frameSetBindings()); err != nil {
		return err
	}

	n := o.swapchain.Length()
	o.uniformStride = gpu.AlignUp(FrameUniformsSize, UniformAlignment)
	o.uniforms, err = o.device.CreateBuffer(gpu.BufferDescriptor{
		Label:    o.label + ".uniforms",
		Size:     o.uniformStride * uint64(n),
		Usage:    gpu.BufferUsageUniform,
		Required: gpu.MemoryPropertyHostVisible | gpu.MemoryPropertyHostCoherent,
	})
	if err != nil {
		return err
	}

	for i := 0; i < n; i++ {
		set, err := o.device.AllocateDescriptorSet(fmt.Sprintf("%s.frameSet[%d]", o.label, i), o.frameLayout)
		if err != nil {
			return err
		}
		err = set.Update(gpu.DescriptorWrite{
			Binding: BindingFrameUniforms,
			Type:    gpu.DescriptorTypeUniformBufferDynamic,
			Buffer:  o.uniforms,
			Range:   FrameUniformsSize,
		})
		if err != nil {
			return err
		}
		o.frameSets = append(o.frameSets, set)
		o.instances = append(o.instances, nil)
		o.instanceCap = append(o.instanceCap, 0)
		o.boundTLAS = append(o.boundTLAS, nil)
		if err := o.growInstances(i, 1); err != nil {
			return err
		}
	}
	return o.UploadMaterials(o.materials)
}

// growInstances replaces slot's instance buffer with one holding at least n records. The slot's
// fence has been waited on, so its old buffer is idle.
func (o *orchestrator) growInstances(slot, n int) error {
	if n <= o.instanceCap[slot] {
		return nil
	}
	buf, err := o.device.CreateBuffer(gpu.BufferDescriptor{
		Label:    fmt.Sprintf("%s.instances[%d]", o.label, slot),
		Size:     uint64(n * InstanceDataSize),
		Usage:    gpu.BufferUsageStorage,
		Required: gpu.MemoryPropertyHostVisible | gpu.MemoryPropertyHostCoherent,
	})
	if err != nil {
		return err
	}
	err = o.frameSets[slot].Update(gpu.DescriptorWrite{Binding: BindingInstances, Type: gpu.DescriptorTypeStorageBuffer, Buffer: buf, Range: gpu.WholeSize})
	if err != nil {
		buf.Destroy()
		return err
	}
	if o.instances[slot] != nil {
		o.instances[slot].Destroy()
	}
	o.instances[slot], o.instanceCap[slot] = buf, n
	logger.Debugf("%s: slot %d instance buffer holds %d records", o.label, slot, n)
	return nil
}

func (o *orchestrator) UploadMaterials(materials []Material) error {
	const op = "uploadMaterials"
	if len(materials) == 0 {
		return gpu.NewError(op, gpu.ErrorKindZeroSize, "no materials")
	}
	data := packMaterials(materials)
	buf, err := o.device.CreateBuffer(gpu.BufferDescriptor{
		Label:    o.label + ".materials",
		Size:     uint64(len(data)),
		Usage:    gpu.BufferUsageStorage | gpu.BufferUsageTransferDst,
		Required: gpu.MemoryPropertyDeviceLocal,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := o.upload.Begin(); err != nil {
		buf.Destroy()
		return fmt.Errorf("%s: %w", op, err)
	}
	staging, err := gpu.UpdateBufferUsingStagingBuffer(o.device, buf, o.upload, data, 0)
	if err != nil {
		o.upload.End()
		o.upload.Reset()
		buf.Destroy()
		return fmt.Errorf("%s: %w", op, err)
	}
	defer staging.Destroy()
	dep := gpu.Dependency{SrcStage: gpu.PipelineStageTransfer, DstStage: gpu.PipelineStageFragmentShader}
	dep.AddMemory(gpu.AccessTransferWrite, gpu.AccessShaderRead)
	o.upload.PipelineBarrier(dep)
	if err := o.submitUpload(); err != nil {
		buf.Destroy()
		return fmt.Errorf("%s: %w", op, err)
	}

	for _, set := range o.frameSets {
		if err := set.Update(gpu.DescriptorWrite{Binding: BindingMaterials, Type: gpu.DescriptorTypeStorageBuffer, Buffer: buf, Range: gpu.WholeSize}); err != nil {
			buf.Destroy()
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	if o.materialBuf != nil {
		o.materialBuf.Destroy()
	}
	o.materialBuf = buf
	o.materials = append([]Material(nil), materials...)
	logger.Infof("%s: uploaded %d materials", o.label, len(materials))
	return nil
}

// submitUpload ends the upload command buffer, runs it to completion and resets it.
func (o *orchestrator) submitUpload() error {
	if err := o.upload.End(); err != nil {
		return err
	}
	if err := gpu.SubmitAndWait(o.queue, o.upload); err != nil {
		return err
	}
	return o.upload.Reset()
}

func (o *orchestrator) writeFrameData(slot int, frameIndex uint64, pingPong int, data *FrameData) error {
	u := data.uniforms(o.extent, frameIndex, pingPong)
	if err := gpu.WriteMapped(o.uniforms, uint64(slot)*o.uniformStride, u.Marshal()); err != nil {
		return err
	}
	if err := o.growInstances(slot, len(data.Instances)); err != nil {
		return err
	}
	if len(data.Instances) > 0 {
		if err := gpu.WriteMapped(o.instances[slot], 0, packInstances(data.Instances)); err != nil {
			return err
		}
	}
	if o.boundTLAS[slot] != data.TopLevel {
		err := o.frameSets[slot].Update(gpu.DescriptorWrite{Binding: BindingTopLevel, Type: gpu.DescriptorTypeAccelerationStructure, AccelerationStructure: data.TopLevel})
		if err != nil {
			return err
		}
		o.boundTLAS[slot] = data.TopLevel
	}
	o.topLevel = data.TopLevel
	return nil
}

func (o *orchestrator) destroyFrameData() {
	for i, b := range o.instances {
		if b != nil {
			b.Destroy()
			o.instances[i] = nil
		}
	}
	if o.materialBuf != nil {
		o.materialBuf.Destroy()
		o.materialBuf = nil
	}
	if o.uniforms != nil {
		o.uniforms.Destroy()
		o.uniforms = nil
	}
	if o.frameLayout != nil {
		o.frameLayout.Destroy()
		o.frameLayout = nil
	}
	o.frameSets = nil
}
