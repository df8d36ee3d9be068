package soft

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-rt/engine/gpu"
)

type commandBufferState int

const (
	commandBufferInitial commandBufferState = iota
	commandBufferRecording
	commandBufferExecutable
)

type command struct {
	name string
	run  func(x *executor, s *execState) error
}

// commandBuffer records closures that the executor runs at submit time. Recording errors are
// held until End.
type commandBuffer struct {
	dev   *Device
	label string
	state commandBufferState
	// pending is true from submit until the submission retires.
	pending bool

	cmds []command
	err  error

	inPass     bool
	labelDepth int
}

// AllocateCommandBuffer allocates a command buffer in the initial state.
func (d *Device) AllocateCommandBuffer(label string) (gpu.CommandBuffer, error) {
	return &commandBuffer{dev: d, label: label}, nil
}

func (c *commandBuffer) Label() string { return c.label }

func (c *commandBuffer) Begin() error {
	if c.pending {
		return c.dev.validationError("vkBeginCommandBuffer", "command buffer %q is still pending execution", c.label)
	}
	if c.state == commandBufferRecording {
		return c.dev.validationError("vkBeginCommandBuffer", "command buffer %q is already recording", c.label)
	}
	c.clear()
	c.state = commandBufferRecording
	return nil
}

func (c *commandBuffer) End() error {
	if c.state != commandBufferRecording {
		return c.dev.validationError("vkEndCommandBuffer", "command buffer %q is not recording", c.label)
	}
	if c.err == nil && c.inPass {
		c.err = fmt.Errorf("render pass still active")
	}
	if c.err == nil && c.labelDepth != 0 {
		c.err = fmt.Errorf("%d debug labels left open", c.labelDepth)
	}
	if c.err != nil {
		err := c.dev.validationError("vkEndCommandBuffer", "command buffer %q: %v", c.label, c.err)
		c.clear()
		return err
	}
	c.state = commandBufferExecutable
	return nil
}

func (c *commandBuffer) Reset() error {
	if c.pending {
		return c.dev.validationError("vkResetCommandBuffer", "command buffer %q is still pending execution", c.label)
	}
	c.clear()
	return nil
}

func (c *commandBuffer) clear() {
	c.state = commandBufferInitial
	c.cmds = nil
	c.err = nil
	c.inPass = false
	c.labelDepth = 0
}

func (c *commandBuffer) record(name string, run func(x *executor, s *execState) error) {
	if c.state != commandBufferRecording {
		if c.err == nil {
			c.err = fmt.Errorf("%s recorded outside Begin/End", name)
		}
		return
	}
	c.cmds = append(c.cmds, command{name: name, run: run})
}

func (c *commandBuffer) recordErr(format string, args ...any) {
	if c.err == nil {
		c.err = fmt.Errorf(format, args...)
	}
}

func (c *commandBuffer) PipelineBarrier(dep gpu.Dependency) {
	if c.inPass {
		c.recordErr("pipeline barrier inside a render pass")
		return
	}
	dep.Memory = append([]gpu.MemoryBarrier(nil), dep.Memory...)
	dep.Buffers = append([]gpu.BufferBarrier(nil), dep.Buffers...)
	dep.Images = append([]gpu.ImageBarrier(nil), dep.Images...)
	c.record("PipelineBarrier", func(x *executor, _ *execState) error {
		return x.barrier(dep)
	})
}

func (c *commandBuffer) CopyBuffer(src, dst gpu.Buffer, regions ...gpu.BufferCopy) {
	if c.inPass {
		c.recordErr("copy inside a render pass")
		return
	}
	regions = append([]gpu.BufferCopy(nil), regions...)
	c.record("CopyBuffer", func(x *executor, _ *execState) error {
		return x.copyBuffer(src, dst, regions)
	})
}

func (c *commandBuffer) BlitImage(src gpu.Image, srcLayout gpu.ImageLayout, dst gpu.Image, dstLayout gpu.ImageLayout, regions []gpu.ImageBlit, filter gpu.Filter) {
	if c.inPass {
		c.recordErr("blit inside a render pass")
		return
	}
	regions = append([]gpu.ImageBlit(nil), regions...)
	c.record("BlitImage", func(x *executor, _ *execState) error {
		return x.blitImage(src, srcLayout, dst, dstLayout, regions, filter)
	})
}

func (c *commandBuffer) BuildAccelerationStructures(infos []gpu.AccelerationStructureBuildGeometryInfo, ranges [][]gpu.AccelerationStructureBuildRangeInfo) {
	if c.inPass {
		c.recordErr("acceleration structure build inside a render pass")
		return
	}
	if len(infos) != len(ranges) {
		c.recordErr("%d build infos with %d range lists", len(infos), len(ranges))
		return
	}
	infos = append([]gpu.AccelerationStructureBuildGeometryInfo(nil), infos...)
	ranges = append([][]gpu.AccelerationStructureBuildRangeInfo(nil), ranges...)
	c.record("BuildAccelerationStructures", func(x *executor, _ *execState) error {
		for i := range infos {
			if err := x.execBuild(infos[i], ranges[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (c *commandBuffer) BeginRenderPass(info gpu.RenderPassBeginInfo) {
	if c.inPass {
		c.recordErr("render pass begun inside a render pass")
		return
	}
	c.inPass = true
	info.ClearValues = append([]gpu.ClearValue(nil), info.ClearValues...)
	c.record("BeginRenderPass", func(x *executor, s *execState) error {
		return x.beginRenderPass(s, info)
	})
}

func (c *commandBuffer) EndRenderPass() {
	if !c.inPass {
		c.recordErr("EndRenderPass without a render pass")
		return
	}
	c.inPass = false
	c.record("EndRenderPass", func(x *executor, s *execState) error {
		return x.endRenderPass(s)
	})
}

func (c *commandBuffer) BindPipeline(p gpu.Pipeline) {
	c.record("BindPipeline", func(x *executor, s *execState) error {
		sp, ok := p.(*pipeline)
		if !ok {
			return x.fail("vkCmdBindPipeline", "foreign pipeline")
		}
		s.pipelines[sp.desc.BindPoint] = sp
		return nil
	})
}

func (c *commandBuffer) BindDescriptorSets(p gpu.Pipeline, firstSet uint32, sets []gpu.DescriptorSet, dynamicOffsets []uint32) {
	sets = append([]gpu.DescriptorSet(nil), sets...)
	dynamicOffsets = append([]uint32(nil), dynamicOffsets...)
	c.record("BindDescriptorSets", func(x *executor, s *execState) error {
		return x.bindDescriptorSets(s, p, firstSet, sets, dynamicOffsets)
	})
}

func (c *commandBuffer) PushConstants(p gpu.Pipeline, stages gpu.ShaderStage, offset uint32, data []byte) {
	data = append([]byte(nil), data...)
	c.record("PushConstants", func(x *executor, s *execState) error {
		if limit := p.Layout().PushConstantSize; offset+uint32(len(data)) > limit {
			return x.fail("vkCmdPushConstants", "range [%d,+%d) exceeds push constant size %d", offset, len(data), limit)
		}
		if need := int(offset) + len(data); len(s.push) < need {
			s.push = append(s.push, make([]byte, need-len(s.push))...)
		}
		copy(s.push[offset:], data)
		return nil
	})
}

func (c *commandBuffer) BindVertexBuffers(first uint32, buffers []gpu.Buffer, offsets []uint64) {
	buffers = append([]gpu.Buffer(nil), buffers...)
	c.record("BindVertexBuffers", func(x *executor, s *execState) error {
		for i, b := range buffers {
			if b.Usage()&gpu.BufferUsageVertex == 0 {
				return x.fail("vkCmdBindVertexBuffers", "binding %d: buffer %q lacks VERTEX_BUFFER usage", first+uint32(i), b.Label())
			}
		}
		return nil
	})
}

func (c *commandBuffer) BindIndexBuffer(buf gpu.Buffer, offset uint64, indexType gpu.IndexType) {
	c.record("BindIndexBuffer", func(x *executor, s *execState) error {
		if buf.Usage()&gpu.BufferUsageIndex == 0 {
			return x.fail("vkCmdBindIndexBuffer", "buffer %q lacks INDEX_BUFFER usage", buf.Label())
		}
		if offset%indexType.Size() != 0 {
			return x.fail("vkCmdBindIndexBuffer", "offset %d not aligned to index size", offset)
		}
		return nil
	})
}

func (c *commandBuffer) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	c.recordDraw("Draw", vertexCount, instanceCount)
}

func (c *commandBuffer) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	c.recordDraw("DrawIndexed", indexCount, instanceCount)
}

func (c *commandBuffer) recordDraw(name string, count, instances uint32) {
	if !c.inPass {
		c.recordErr("%s outside a render pass", name)
		return
	}
	c.record(name, func(x *executor, s *execState) error {
		if count == 0 || instances == 0 {
			return nil
		}
		return x.draw(s, name)
	})
}

func (c *commandBuffer) Dispatch(gx, gy, gz uint32) {
	if c.inPass {
		c.recordErr("dispatch inside a render pass")
		return
	}
	c.record("Dispatch", func(x *executor, s *execState) error {
		return x.dispatch(s, gx, gy, gz)
	})
}

func (c *commandBuffer) TraceRays(raygen, miss, hit, callable gpu.StridedDeviceAddressRegion, width, height, depth uint32) {
	if c.inPass {
		c.recordErr("trace rays inside a render pass")
		return
	}
	c.record("TraceRays", func(x *executor, s *execState) error {
		return x.traceRays(s, raygen, miss, hit, width, height, depth)
	})
}

func (c *commandBuffer) BeginDebugLabel(name string, color [4]float32) {
	c.labelDepth++
	c.record("BeginDebugLabel", func(x *executor, _ *execState) error {
		x.labels = append(x.labels, name)
		return nil
	})
}

func (c *commandBuffer) EndDebugLabel() {
	if c.labelDepth == 0 {
		c.recordErr("EndDebugLabel without BeginDebugLabel")
		return
	}
	c.labelDepth--
	c.record("EndDebugLabel", func(x *executor, _ *execState) error {
		x.labels = x.labels[:len(x.labels)-1]
		return nil
	})
}
