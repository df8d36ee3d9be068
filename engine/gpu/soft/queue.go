package soft

import (
	"fmt"
	"strings"
	"sync"

	"github.com/Carmen-Shannon/oxy-rt/engine/gpu"
)

type submission struct {
	cmds  []*commandBuffer
	fence *fence
}

type addrRange struct {
	addr gpu.DeviceAddress
	size uint64
}

func (r addrRange) overlaps(addr gpu.DeviceAddress, size uint64) bool {
	return addr < r.addr+gpu.DeviceAddress(r.size) && r.addr < addr+gpu.DeviceAddress(size)
}

// executor runs recorded commands in submission order. The pending maps hold writes that no
// barrier has made visible yet.
type executor struct {
	dev *Device

	pendingTransfer map[*buffer]bool
	pendingScratch  []addrRange
	pendingASWrites map[*accelStructure]bool

	labels []string

	asyncMu  sync.Mutex
	asyncErr error
}

// execState is the bound state of one command buffer during execution.
type execState struct {
	pipelines map[gpu.PipelineBindPoint]*pipeline
	sets      map[gpu.PipelineBindPoint][]*descriptorSet
	dynamic   map[gpu.PipelineBindPoint][][]uint32
	push      []byte

	pass *renderPass
	fb   *framebuffer
	area gpu.Rect2D
}

func newExecState() *execState {
	return &execState{
		pipelines: map[gpu.PipelineBindPoint]*pipeline{},
		sets:      map[gpu.PipelineBindPoint][]*descriptorSet{},
		dynamic:   map[gpu.PipelineBindPoint][][]uint32{},
	}
}

type queue struct {
	dev         *Device
	x           *executor
	outstanding []*submission
}

func newQueue(d *Device) *queue {
	return &queue{
		dev: d,
		x: &executor{
			dev:             d,
			pendingTransfer: map[*buffer]bool{},
			pendingASWrites: map[*accelStructure]bool{},
		},
	}
}

// Submit executes every batch immediately, in order. Each batch's wait semaphores must already
// be signaled by an earlier submission or acquire; a wait that nothing will signal would hang a
// real queue and is reported instead.
func (q *queue) Submit(infos []gpu.SubmitInfo, gf gpu.Fence) error {
	const op = "vkQueueSubmit"
	var f *fence
	if gf != nil {
		var ok bool
		if f, ok = gf.(*fence); !ok {
			return q.dev.validationError(op, "foreign fence")
		}
		if f.signaled || f.submitted != nil {
			return q.dev.validationError(op, "fence %q is already signaled or in use", f.label)
		}
	}

	sub := &submission{fence: f}
	for bi, info := range infos {
		var cmds []*commandBuffer
		for _, gc := range info.CommandBuffers {
			c, ok := gc.(*commandBuffer)
			if !ok {
				return q.dev.validationError(op, "batch %d: foreign command buffer", bi)
			}
			if c.pending {
				return q.dev.validationError(op, "command buffer %q is already pending execution", c.label)
			}
			if c.state != commandBufferExecutable {
				return q.dev.validationError(op, "command buffer %q is not in the executable state", c.label)
			}
			cmds = append(cmds, c)
		}
		for _, gs := range info.WaitSemaphores {
			s, ok := gs.(*semaphore)
			if !ok {
				return q.dev.validationError(op, "batch %d: foreign semaphore", bi)
			}
			if !s.signaled {
				return q.dev.validationError(op, "batch %d waits on semaphore %q that has no pending signal", bi, s.label)
			}
		}
		for _, gs := range info.SignalSemaphores {
			s, ok := gs.(*semaphore)
			if !ok {
				return q.dev.validationError(op, "batch %d: foreign semaphore", bi)
			}
			if s.signaled {
				return q.dev.validationError(op, "batch %d signals semaphore %q that is already signaled", bi, s.label)
			}
		}

		for _, gs := range info.WaitSemaphores {
			gs.(*semaphore).signaled = false
		}
		for _, c := range cmds {
			if err := q.x.run(c); err != nil {
				return err
			}
			c.pending = true
			sub.cmds = append(sub.cmds, c)
		}
		for _, gs := range info.SignalSemaphores {
			gs.(*semaphore).signaled = true
		}
	}

	q.outstanding = append(q.outstanding, sub)
	q.dev.stats.Submissions++
	if n := len(q.outstanding); n > q.dev.stats.MaxOutstanding {
		q.dev.stats.MaxOutstanding = n
	}
	if f != nil {
		f.signaled = true
		f.submitted = sub
	}
	return nil
}

// WaitIdle retires every outstanding submission.
func (q *queue) WaitIdle() error {
	q.dev.stats.QueueWaitIdleCalls++
	q.retireAll()
	return nil
}

func (q *queue) retire(sub *submission) {
	for i, s := range q.outstanding {
		if s == sub {
			q.outstanding = append(q.outstanding[:i], q.outstanding[i+1:]...)
			break
		}
	}
	for _, c := range sub.cmds {
		c.pending = false
	}
	if sub.fence != nil {
		sub.fence.submitted = nil
	}
	q.x.flushHazards()
}

func (q *queue) retireAll() {
	for len(q.outstanding) > 0 {
		q.retire(q.outstanding[0])
	}
	q.x.flushHazards()
}

// Outstanding returns the number of submissions not yet retired by a fence wait or idle.
func (d *Device) Outstanding() int {
	return len(d.queue.outstanding)
}

func (x *executor) run(c *commandBuffer) error {
	s := newExecState()
	depth := len(x.labels)
	defer func() { x.labels = x.labels[:depth] }()
	for _, cmd := range c.cmds {
		if err := cmd.run(x, s); err != nil {
			return fmt.Errorf("%s in %q: %w", cmd.name, c.label, err)
		}
	}
	return nil
}

// flushHazards makes every completed write visible, as a host wait on a completed submission does.
func (x *executor) flushHazards() {
	clear(x.pendingTransfer)
	clear(x.pendingASWrites)
	x.pendingScratch = nil
}

func (x *executor) fail(op, format string, args ...any) error {
	return x.dev.validationError(op, format, args...)
}

// asyncFail records the first error raised by a kernel running on the worker pool.
func (x *executor) asyncFail(op, format string, args ...any) {
	x.asyncMu.Lock()
	defer x.asyncMu.Unlock()
	if x.asyncErr == nil {
		x.asyncErr = x.fail(op, format, args...)
	}
}

func (x *executor) takeAsyncErr() error {
	x.asyncMu.Lock()
	defer x.asyncMu.Unlock()
	err := x.asyncErr
	x.asyncErr = nil
	return err
}

func (x *executor) scratchHazard(addr gpu.DeviceAddress, size uint64) bool {
	for _, r := range x.pendingScratch {
		if r.overlaps(addr, size) {
			return true
		}
	}
	return false
}

func (x *executor) record(e TraceEntry) {
	if !x.dev.traceEnabled {
		return
	}
	e.Label = strings.Join(x.labels, "/")
	x.dev.trace = append(x.dev.trace, e)
}

func stageCovers(mask, stage gpu.PipelineStage) bool {
	return mask&(stage|gpu.PipelineStageAllCommands) != 0
}

func (x *executor) barrier(dep gpu.Dependency) error {
	const op = "vkCmdPipelineBarrier"
	flushTransfer := func(b *buffer) {
		if b == nil {
			clear(x.pendingTransfer)
			return
		}
		delete(x.pendingTransfer, b)
	}
	apply := func(src gpu.Access, b *buffer) {
		if src&(gpu.AccessTransferWrite|gpu.AccessMemoryWrite) != 0 && stageCovers(dep.SrcStage, gpu.PipelineStageTransfer) {
			flushTransfer(b)
		}
		if src&(gpu.AccessAccelerationStructureWrite|gpu.AccessMemoryWrite) != 0 && stageCovers(dep.SrcStage, gpu.PipelineStageAccelerationStructureBuild) {
			clear(x.pendingASWrites)
			x.pendingScratch = nil
		}
	}
	for _, m := range dep.Memory {
		apply(m.SrcAccess, nil)
	}
	for _, bb := range dep.Buffers {
		b, ok := bb.Buffer.(*buffer)
		if !ok {
			return x.fail(op, "foreign buffer in barrier")
		}
		apply(bb.SrcAccess, b)
	}

	entry := TraceEntry{Command: "PipelineBarrier"}
	for _, ib := range dep.Images {
		img, ok := ib.Image.(*softImage)
		if !ok {
			return x.fail(op, "foreign image in barrier")
		}
		base, count := ib.Range.BaseMip, ib.Range.MipCount
		if count == 0 {
			if base >= img.mipLevels {
				return x.fail(op, "image %q has no mip %d", img.label, base)
			}
			count = img.mipLevels - base
		}
		if base+count > img.mipLevels {
			return x.fail(op, "image %q mips [%d,+%d) out of %d", img.label, base, count, img.mipLevels)
		}
		if ib.NewLayout == gpu.ImageLayoutUndefined {
			return x.fail(op, "image %q transitioned to UNDEFINED", img.label)
		}
		for m := base; m < base+count; m++ {
			if ib.OldLayout != gpu.ImageLayoutUndefined && img.layouts[m] != ib.OldLayout {
				return x.fail(op, "image %q mip %d is in %s, barrier expects %s", img.label, m, img.layouts[m], ib.OldLayout)
			}
		}
		if ib.OldLayout == ib.NewLayout && ib.SrcAccess == ib.DstAccess {
			x.dev.warn(gpu.WarningPerformanceRedundantBarrier, "barrier on %q keeps %s with no access change", img.label, ib.NewLayout)
		}
		for m := base; m < base+count; m++ {
			img.layouts[m] = ib.NewLayout
		}
		entry.Images = append(entry.Images, ImageTransition{Image: img.label, BaseMip: base, MipCount: count, OldLayout: ib.OldLayout, NewLayout: ib.NewLayout})
	}
	entry.Detail = fmt.Sprintf("%#x->%#x", uint32(dep.SrcStage), uint32(dep.DstStage))
	x.record(entry)
	return nil
}

func (x *executor) copyBuffer(gsrc, gdst gpu.Buffer, regions []gpu.BufferCopy) error {
	const op = "vkCmdCopyBuffer"
	src, ok1 := gsrc.(*buffer)
	dst, ok2 := gdst.(*buffer)
	if !ok1 || !ok2 || src.destroyed || dst.destroyed {
		return x.fail(op, "copy needs live device buffers")
	}
	if src.usage&gpu.BufferUsageTransferSrc == 0 {
		return x.fail(op, "buffer %q lacks TRANSFER_SRC usage", src.label)
	}
	if dst.usage&gpu.BufferUsageTransferDst == 0 {
		return x.fail(op, "buffer %q lacks TRANSFER_DST usage", dst.label)
	}
	var total uint64
	for _, r := range regions {
		if r.SrcOffset+r.Size > src.size || r.DstOffset+r.Size > dst.size {
			return x.fail(op, "region %+v out of bounds (%q %d bytes, %q %d bytes)", r, src.label, src.size, dst.label, dst.size)
		}
		copy(dst.data[r.DstOffset:r.DstOffset+r.Size], src.data[r.SrcOffset:r.SrcOffset+r.Size])
		total += r.Size
	}
	x.pendingTransfer[dst] = true
	x.record(TraceEntry{Command: "CopyBuffer", Detail: fmt.Sprintf("%q->%q %d bytes", src.label, dst.label, total)})
	return nil
}

func (x *executor) blitImage(gsrc gpu.Image, srcLayout gpu.ImageLayout, gdst gpu.Image, dstLayout gpu.ImageLayout, regions []gpu.ImageBlit, filter gpu.Filter) error {
	const op = "vkCmdBlitImage"
	src, ok1 := gsrc.(*softImage)
	dst, ok2 := gdst.(*softImage)
	if !ok1 || !ok2 {
		return x.fail(op, "foreign image")
	}
	if src.usage&gpu.ImageUsageTransferSrc == 0 {
		return x.fail(op, "image %q lacks TRANSFER_SRC usage", src.label)
	}
	if dst.usage&gpu.ImageUsageTransferDst == 0 {
		return x.fail(op, "image %q lacks TRANSFER_DST usage", dst.label)
	}
	if src.format.IsDepth() || dst.format.IsDepth() {
		return x.fail(op, "depth formats cannot be blitted")
	}
	if srcLayout != gpu.ImageLayoutTransferSrcOptimal && srcLayout != gpu.ImageLayoutGeneral {
		return x.fail(op, "source layout %s is not a transfer source layout", srcLayout)
	}
	if dstLayout != gpu.ImageLayoutTransferDstOptimal && dstLayout != gpu.ImageLayoutGeneral {
		return x.fail(op, "destination layout %s is not a transfer destination layout", dstLayout)
	}
	for _, r := range regions {
		if r.SrcMip >= src.mipLevels || r.DstMip >= dst.mipLevels {
			return x.fail(op, "blit mips %d->%d out of range", r.SrcMip, r.DstMip)
		}
		if src.layouts[r.SrcMip] != srcLayout {
			return x.fail(op, "image %q mip %d is in %s, blit expects %s", src.label, r.SrcMip, src.layouts[r.SrcMip], srcLayout)
		}
		if dst.layouts[r.DstMip] != dstLayout {
			return x.fail(op, "image %q mip %d is in %s, blit expects %s", dst.label, r.DstMip, dst.layouts[r.DstMip], dstLayout)
		}
		if src == dst && r.SrcMip == r.DstMip {
			return x.fail(op, "blit of %q mip %d onto itself", src.label, r.SrcMip)
		}
		blit(src, r.SrcMip, dst, r.DstMip, filter)
		x.record(TraceEntry{Command: "BlitImage", Detail: fmt.Sprintf("%q mip %d -> %q mip %d", src.label, r.SrcMip, dst.label, r.DstMip)})
	}
	return nil
}

func (x *executor) beginRenderPass(s *execState, info gpu.RenderPassBeginInfo) error {
	const op = "vkCmdBeginRenderPass"
	rp, ok := info.RenderPass.(*renderPass)
	if !ok {
		return x.fail(op, "foreign render pass")
	}
	fb, ok := info.Framebuffer.(*framebuffer)
	if !ok {
		return x.fail(op, "foreign framebuffer")
	}
	if fb.pass != rp && !compatiblePasses(fb.pass, rp) {
		return x.fail(op, "framebuffer %q is not compatible with render pass %q", fb.label, rp.desc.Label)
	}
	a := info.RenderArea
	if a.Offset.X < 0 || a.Offset.Y < 0 || uint32(a.Offset.X)+a.Extent.Width > fb.extent.Width || uint32(a.Offset.Y)+a.Extent.Height > fb.extent.Height {
		return x.fail(op, "render area %+v exceeds framebuffer %q", a, fb.label)
	}
	for i, img := range fb.attachments {
		desc := rp.attachment(i)
		if desc.InitialLayout != gpu.ImageLayoutUndefined && img.layouts[0] != desc.InitialLayout {
			return x.fail(op, "attachment %d (%q) is in %s, render pass expects %s", i, img.label, img.layouts[0], desc.InitialLayout)
		}
		if img.format.IsDepth() {
			img.layouts[0] = gpu.ImageLayoutDepthStencilAttachmentOptimal
		} else {
			img.layouts[0] = gpu.ImageLayoutColorAttachmentOptimal
		}
		if desc.LoadOp == gpu.LoadOpClear || desc.StencilLoadOp == gpu.LoadOpClear {
			if i >= len(info.ClearValues) {
				return x.fail(op, "attachment %d (%q) clears but no clear value was given", i, img.label)
			}
			cv := info.ClearValues[i]
			if img.format.IsDepth() {
				img.fill(0, [4]float32{cv.Depth, float32(cv.Stencil), 0, 0})
			} else {
				img.fill(0, cv.Color)
			}
		}
	}
	s.pass, s.fb, s.area = rp, fb, a
	x.record(TraceEntry{Command: "BeginRenderPass", Detail: fmt.Sprintf("%q framebuffer %q", rp.desc.Label, fb.label)})
	return nil
}

func compatiblePasses(a, b *renderPass) bool {
	if a.attachmentCount() != b.attachmentCount() {
		return false
	}
	for i := 0; i < a.attachmentCount(); i++ {
		if a.attachment(i).Format != b.attachment(i).Format {
			return false
		}
	}
	return true
}

func (x *executor) endRenderPass(s *execState) error {
	if s.pass == nil {
		return x.fail("vkCmdEndRenderPass", "no active render pass")
	}
	for i, img := range s.fb.attachments {
		final := s.pass.attachment(i).FinalLayout
		if final == gpu.ImageLayoutUndefined {
			return x.fail("vkCmdEndRenderPass", "attachment %d (%q) has an UNDEFINED final layout", i, img.label)
		}
		img.layouts[0] = final
	}
	x.record(TraceEntry{Command: "EndRenderPass", Detail: fmt.Sprintf("%q", s.pass.desc.Label)})
	s.pass, s.fb = nil, nil
	return nil
}

func (x *executor) bindDescriptorSets(s *execState, gp gpu.Pipeline, firstSet uint32, sets []gpu.DescriptorSet, dynamicOffsets []uint32) error {
	const op = "vkCmdBindDescriptorSets"
	p, ok := gp.(*pipeline)
	if !ok {
		return x.fail(op, "foreign pipeline")
	}
	bp := p.desc.BindPoint
	layouts := p.desc.Layout.SetLayouts
	bound := s.sets[bp]
	dyn := s.dynamic[bp]
	for need := int(firstSet) + len(sets); len(bound) < need; {
		bound = append(bound, nil)
		dyn = append(dyn, nil)
	}
	consumed := 0
	for i, gs := range sets {
		ds, ok := gs.(*descriptorSet)
		if !ok {
			return x.fail(op, "foreign descriptor set")
		}
		idx := int(firstSet) + i
		if idx >= len(layouts) {
			return x.fail(op, "set %d beyond pipeline %q layout of %d sets", idx, p.desc.Label, len(layouts))
		}
		if l, ok := layouts[idx].(*descriptorSetLayout); !ok || l != ds.layout {
			return x.fail(op, "set %q is incompatible with set %d of pipeline %q", ds.label, idx, p.desc.Label)
		}
		var offsets []uint32
		for _, b := range ds.layout.bindings {
			if b.Type != gpu.DescriptorTypeUniformBufferDynamic {
				continue
			}
			if consumed >= len(dynamicOffsets) {
				return x.fail(op, "set %q needs more dynamic offsets than the %d given", ds.label, len(dynamicOffsets))
			}
			offsets = append(offsets, dynamicOffsets[consumed])
			consumed++
		}
		bound[idx] = ds
		dyn[idx] = offsets
	}
	if consumed != len(dynamicOffsets) {
		return x.fail(op, "%d dynamic offsets given, %d used", len(dynamicOffsets), consumed)
	}
	s.sets[bp] = bound
	s.dynamic[bp] = dyn
	return nil
}

func readableLayout(l gpu.ImageLayout) bool {
	switch l {
	case gpu.ImageLayoutShaderReadOnlyOptimal, gpu.ImageLayoutGeneral, gpu.ImageLayoutDepthStencilReadOnlyOptimal:
		return true
	}
	return false
}

// checkDescriptors validates that every resource the bound pipeline can reach is ready for
// shader access.
func (x *executor) checkDescriptors(op string, s *execState, p *pipeline) error {
	sets := s.sets[p.desc.BindPoint]
	for idx := range p.desc.Layout.SetLayouts {
		if idx >= len(sets) || sets[idx] == nil {
			return x.fail(op, "pipeline %q set %d is not bound", p.desc.Label, idx)
		}
		ds := sets[idx]
		for _, b := range ds.layout.bindings {
			w, ok := ds.writes[b.Binding]
			if !ok {
				return x.fail(op, "set %q binding %d was never written", ds.label, b.Binding)
			}
			switch w.Type {
			case gpu.DescriptorTypeCombinedImageSampler:
				img := w.Image.(*softImage)
				for m := uint32(0); m < img.mipLevels; m++ {
					if !readableLayout(img.layouts[m]) {
						return x.fail(op, "sampled image %q mip %d is in %s", img.label, m, img.layouts[m])
					}
				}
			case gpu.DescriptorTypeInputAttachment:
				img := w.Image.(*softImage)
				if !readableLayout(img.layouts[w.Mip]) {
					return x.fail(op, "input attachment %q is in %s", img.label, img.layouts[w.Mip])
				}
			case gpu.DescriptorTypeStorageImage:
				img := w.Image.(*softImage)
				if img.layouts[w.Mip] != gpu.ImageLayoutGeneral {
					return x.fail(op, "storage image %q mip %d is in %s, needs GENERAL", img.label, w.Mip, img.layouts[w.Mip])
				}
			case gpu.DescriptorTypeAccelerationStructure:
				as := w.AccelerationStructure.(*accelStructure)
				if as.destroyed || !as.built {
					return x.fail(op, "acceleration structure %q is not built", as.label)
				}
				if x.pendingASWrites[as] {
					return x.fail(op, "acceleration structure %q read before its build was made visible", as.label)
				}
			default:
				if b, ok := w.Buffer.(*buffer); ok && x.pendingTransfer[b] {
					return x.fail(op, "buffer %q read before its transfer write was made visible", b.label)
				}
			}
		}
	}
	return nil
}

func (x *executor) newDispatch(s *execState, p *pipeline) *dispatchState {
	sets := s.sets[p.desc.BindPoint]
	return &dispatchState{
		x:        x,
		pipeline: p,
		sets:     append([]*descriptorSet(nil), sets...),
		dynamic:  append([][]uint32(nil), s.dynamic[p.desc.BindPoint]...),
		push:     append([]byte(nil), s.push...),
	}
}

func (x *executor) draw(s *execState, name string) error {
	op := "vkCmd" + name
	p := s.pipelines[gpu.PipelineBindPointGraphics]
	if p == nil {
		return x.fail(op, "no graphics pipeline bound")
	}
	if rp, ok := p.desc.RenderPass.(*renderPass); !ok || (rp != s.pass && !compatiblePasses(rp, s.pass)) {
		return x.fail(op, "pipeline %q is not compatible with render pass %q", p.desc.Label, s.pass.desc.Label)
	}
	if err := x.checkDescriptors(op, s, p); err != nil {
		return err
	}
	x.dev.stats.Draws++
	x.record(TraceEntry{Command: name, Detail: fmt.Sprintf("%q", p.desc.Label)})

	k := p.stageKernel(gpu.ShaderStageFragment)
	if k == nil {
		return nil
	}
	st := x.newDispatch(s, p)
	st.fb = s.fb
	a := s.area
	size := [3]uint32{s.fb.extent.Width, s.fb.extent.Height, 1}
	x.dev.parallelRows(a.Extent.Height, func(row uint32) {
		y := uint32(a.Offset.Y) + row
		for col := uint32(0); col < a.Extent.Width; col++ {
			inv := Invocation{state: st, Stage: gpu.ShaderStageFragment, ID: [3]uint32{uint32(a.Offset.X) + col, y, 0}, Size: size}
			k(&inv)
		}
	})
	return x.takeAsyncErr()
}

func (x *executor) dispatch(s *execState, gx, gy, gz uint32) error {
	const op = "vkCmdDispatch"
	p := s.pipelines[gpu.PipelineBindPointCompute]
	if p == nil {
		return x.fail(op, "no compute pipeline bound")
	}
	if err := x.checkDescriptors(op, s, p); err != nil {
		return err
	}
	x.dev.stats.Dispatches++
	x.record(TraceEntry{Command: "Dispatch", Detail: fmt.Sprintf("%q %dx%dx%d", p.desc.Label, gx, gy, gz)})

	k := p.stageKernel(gpu.ShaderStageCompute)
	if k == nil {
		return nil
	}
	ls := p.desc.LocalSize
	size := [3]uint32{gx * ls[0], gy * ls[1], gz * ls[2]}
	st := x.newDispatch(s, p)
	x.dev.parallelRows(size[1]*size[2], func(row uint32) {
		y, z := row%size[1], row/size[1]
		for col := uint32(0); col < size[0]; col++ {
			inv := Invocation{state: st, Stage: gpu.ShaderStageCompute, ID: [3]uint32{col, y, z}, Size: size}
			k(&inv)
		}
	})
	return x.takeAsyncErr()
}

func (x *executor) checkRegion(op, name string, r gpu.StridedDeviceAddressRegion) error {
	if r.Size == 0 {
		return nil
	}
	props := x.dev.props
	if r.Stride%uint64(props.ShaderGroupHandleAlignment) != 0 || r.Stride < uint64(props.ShaderGroupHandleSize) {
		return x.fail(op, "%s region stride %d is not a multiple of the handle alignment", name, r.Stride)
	}
	if uint64(r.Address)%uint64(props.ShaderGroupBaseAlignment) != 0 {
		return x.fail(op, "%s region address %#x is not aligned to %d", name, r.Address, props.ShaderGroupBaseAlignment)
	}
	_, b, ok := x.dev.resolveRange(r.Address, r.Size)
	if !ok {
		return x.fail(op, "%s region %#x+%d is not backed by a buffer", name, r.Address, r.Size)
	}
	if b.usage&gpu.BufferUsageShaderBindingTable == 0 {
		return x.fail(op, "buffer %q lacks SHADER_BINDING_TABLE usage", b.label)
	}
	if x.pendingTransfer[b] {
		return x.fail(op, "shader binding table %q read before its transfer write was made visible", b.label)
	}
	return nil
}

// groupKernel resolves record index of a shader binding table region to the kernel of stage.
// A nil kernel with a nil error means the group leaves that stage unused.
func (x *executor) groupKernel(r gpu.StridedDeviceAddressRegion, index uint64, stage gpu.ShaderStage) (Kernel, error) {
	if r.Size == 0 {
		return nil, nil
	}
	off := index * r.Stride
	if off+groupHandleSize > r.Size {
		return nil, fmt.Errorf("record %d is outside the %d byte region", index, r.Size)
	}
	rec, _, ok := x.dev.resolveRange(r.Address+gpu.DeviceAddress(off), groupHandleSize)
	if !ok {
		return nil, fmt.Errorf("record %d is not backed by a buffer", index)
	}
	p, g, err := x.dev.decodeHandle(rec)
	if err != nil {
		return nil, err
	}
	idx := g.General
	if stage == gpu.ShaderStageClosestHit {
		if g.Type != gpu.ShaderGroupTrianglesHitGroup {
			return nil, fmt.Errorf("record %d is not a hit group", index)
		}
		idx = g.ClosestHit
	} else if g.Type != gpu.ShaderGroupGeneral {
		return nil, fmt.Errorf("record %d is not a general group", index)
	}
	if idx == gpu.ShaderUnused {
		return nil, nil
	}
	if p.desc.Stages[idx].Stage != stage {
		return nil, fmt.Errorf("record %d selects a %#x stage, expected %#x", index, uint32(p.desc.Stages[idx].Stage), uint32(stage))
	}
	return p.stages[idx], nil
}

func (x *executor) traceRays(s *execState, raygen, miss, hit gpu.StridedDeviceAddressRegion, width, height, depth uint32) error {
	const op = "vkCmdTraceRaysKHR"
	p := s.pipelines[gpu.PipelineBindPointRayTracing]
	if p == nil {
		return x.fail(op, "no ray-tracing pipeline bound")
	}
	if raygen.Size == 0 || raygen.Size != raygen.Stride {
		return x.fail(op, "raygen region size %d must equal its stride %d", raygen.Size, raygen.Stride)
	}
	for _, r := range []struct {
		name   string
		region gpu.StridedDeviceAddressRegion
	}{{"raygen", raygen}, {"miss", miss}, {"hit", hit}} {
		if err := x.checkRegion(op, r.name, r.region); err != nil {
			return err
		}
	}
	if err := x.checkDescriptors(op, s, p); err != nil {
		return err
	}
	k, err := x.groupKernel(raygen, 0, gpu.ShaderStageRaygen)
	if err != nil {
		return x.fail(op, "raygen: %v", err)
	}
	x.dev.stats.TraceRays++
	x.record(TraceEntry{Command: "TraceRays", Detail: fmt.Sprintf("%q %dx%dx%d", p.desc.Label, width, height, depth)})
	if k == nil {
		return nil
	}

	st := x.newDispatch(s, p)
	st.miss, st.hit = miss, hit
	size := [3]uint32{width, height, depth}
	x.dev.parallelRows(height*depth, func(row uint32) {
		y, z := row%height, row/height
		for col := uint32(0); col < width; col++ {
			inv := Invocation{state: st, Stage: gpu.ShaderStageRaygen, ID: [3]uint32{col, y, z}, Size: size}
			k(&inv)
		}
	})
	return x.takeAsyncErr()
}
