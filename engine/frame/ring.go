// Package frame owns the per-frame synchronization objects and command buffers of the frames in
// flight.
package frame

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-rt/engine/gpu"
	"github.com/Carmen-Shannon/oxy-rt/engine/log"
)

var logger = log.New("frame")

// Slot holds the resources of one swapchain image. Its command buffer is only re-recorded after
// InFlight has signaled for the previous submission that used it.
type Slot struct {
	Index    int
	Cmd      gpu.CommandBuffer
	InFlight gpu.Fence
}

// Frame is one acquired frame. It is valid from Begin until Present.
type Frame struct {
	// Number counts frames since the ring was created.
	Number uint64
	// ImageIndex is the swapchain image granted by the presentation engine.
	ImageIndex uint32
	Image      gpu.Image
	Slot       *Slot

	// Acquired is signaled when the image may be rendered to; Rendered when the work is done.
	Acquired gpu.Semaphore
	Rendered gpu.Semaphore

	// Suboptimal is set when acquire or present reported SUBOPTIMAL.
	Suboptimal bool
}

// PingPong returns the index of the ping-pong image written this frame.
func (f *Frame) PingPong() int {
	return int(f.Number % 2)
}

// Cmd returns the command buffer recording this frame.
func (f *Frame) Cmd() gpu.CommandBuffer {
	return f.Slot.Cmd
}

// ring is the implementation of the Ring interface.
type ring struct {
	label     string
	device    gpu.Device
	queue     gpu.Queue
	swapchain gpu.Swapchain
	waitStage gpu.PipelineStage

	slots    []*Slot
	acquired []gpu.Semaphore
	rendered []gpu.Semaphore

	frame   uint64
	current *Frame
}

// Ring cycles the frames in flight over a swapchain. Command buffers and fences are selected by
// the acquired image index, which need not be round-robin; semaphores rotate by frame number.
type Ring interface {
	// Length returns the number of slots, equal to the swapchain length.
	Length() int

	// FrameNumber returns the number of the next frame to begin.
	FrameNumber() uint64

	// Slot returns slot i.
	Slot(i int) *Slot

	// Begin acquires the next image, waits for and resets the fence of its slot, and begins
	// recording the slot's command buffer.
	//
	// Returns:
	//   - *Frame: the acquired frame
	//   - error: on any acquire or wait result other than success or SUBOPTIMAL
	Begin() (*Frame, error)

	// Submit ends recording and submits the frame's command buffer, waiting on the acquire
	// semaphore and signaling the render semaphore and the slot fence.
	//
	// Parameters:
	//   - f: the frame returned by Begin
	//
	// Returns:
	//   - error: on recording or submission failure
	Submit(f *Frame) error

	// Present queues the frame's image for presentation and advances the frame number.
	//
	// Parameters:
	//   - f: the submitted frame
	//
	// Returns:
	//   - error: on any present result other than success or SUBOPTIMAL
	Present(f *Frame) error

	// WaitIdle drains the device. Every slot fence is signaled afterwards.
	WaitIdle() error

	// Destroy waits for idle and releases every sync object in reverse creation order.
	Destroy()
}

var _ Ring = &ring{}

// NewRing creates one slot per swapchain image and one acquire and render semaphore per slot.
// Fences start signaled so the first wait on each slot returns immediately.
//
// Parameters:
//   - device: the device that creates the objects
//   - swapchain: the swapchain the ring presents to
//   - options: functional options
//
// Returns:
//   - Ring: the ring
//   - error: if an object cannot be created
func NewRing(device gpu.Device, swapchain gpu.Swapchain, options ...RingBuilderOption) (Ring, error) {
	r := &ring{
		label:     "frame",
		device:    device,
		queue:     device.Queue(),
		swapchain: swapchain,
		waitStage: gpu.PipelineStageColorAttachmentOutput,
	}
	for _, opt := range options {
		opt(r)
	}
	n := swapchain.Length()
	for i := 0; i < n; i++ {
		cmd, err := device.AllocateCommandBuffer(fmt.Sprintf("%s.cmd[%d]", r.label, i))
		if err != nil {
			r.release()
			return nil, fmt.Errorf("create frame ring: %w", err)
		}
		fence, err := device.CreateFence(fmt.Sprintf("%s.inFlight[%d]", r.label, i), true)
		if err != nil {
			r.release()
			return nil, fmt.Errorf("create frame ring: %w", err)
		}
		r.slots = append(r.slots, &Slot{Index: i, Cmd: cmd, InFlight: fence})

		acq, err := device.CreateSemaphore(fmt.Sprintf("%s.acquired[%d]", r.label, i))
		if err != nil {
			r.release()
			return nil, fmt.Errorf("create frame ring: %w", err)
		}
		r.acquired = append(r.acquired, acq)
		ren, err := device.CreateSemaphore(fmt.Sprintf("%s.rendered[%d]", r.label, i))
		if err != nil {
			r.release()
			return nil, fmt.Errorf("create frame ring: %w", err)
		}
		r.rendered = append(r.rendered, ren)
	}
	logger.Infof("%s: %d frames in flight", r.label, n)
	return r, nil
}

func (r *ring) Length() int         { return len(r.slots) }
func (r *ring) FrameNumber() uint64 { return r.frame }
func (r *ring) Slot(i int) *Slot    { return r.slots[i] }

func (r *ring) Begin() (*Frame, error) {
	if r.current != nil {
		return nil, gpu.NewError("beginFrame", gpu.ErrorKindInvalidUsage, "frame %d was not presented", r.current.Number)
	}
	sem := int(r.frame % uint64(len(r.slots)))
	f := &Frame{Number: r.frame, Acquired: r.acquired[sem], Rendered: r.rendered[sem]}

	index, res := r.swapchain.AcquireNextImage(gpu.InfiniteTimeout, f.Acquired, nil)
	switch res {
	case gpu.Success:
	case gpu.Suboptimal:
		f.Suboptimal = true
		logger.Debugf("%s: frame %d acquire suboptimal", r.label, r.frame)
	default:
		return nil, gpu.CheckResult("vkAcquireNextImageKHR", res)
	}
	if int(index) >= len(r.slots) {
		return nil, gpu.NewError("vkAcquireNextImageKHR", gpu.ErrorKindUnknown, "image index %d outside ring of %d", index, len(r.slots))
	}
	f.ImageIndex = index
	f.Image = r.swapchain.Image(index)
	f.Slot = r.slots[index]

	if res := r.device.WaitForFences([]gpu.Fence{f.Slot.InFlight}, true, gpu.InfiniteTimeout); res != gpu.Success {
		return nil, gpu.CheckResult("vkWaitForFences", res)
	}
	if err := r.device.ResetFences(f.Slot.InFlight); err != nil {
		return nil, err
	}
	if err := f.Slot.Cmd.Reset(); err != nil {
		return nil, fmt.Errorf("frame %d: %w", f.Number, err)
	}
	if err := f.Slot.Cmd.Begin(); err != nil {
		return nil, fmt.Errorf("frame %d: %w", f.Number, err)
	}
	r.current = f
	logger.Debugf("%s: frame %d image %d", r.label, f.Number, index)
	return f, nil
}

func (r *ring) Submit(f *Frame) error {
	if err := f.Slot.Cmd.End(); err != nil {
		return fmt.Errorf("frame %d: %w", f.Number, err)
	}
	err := r.queue.Submit([]gpu.SubmitInfo{{
		WaitSemaphores:   []gpu.Semaphore{f.Acquired},
		WaitStages:       []gpu.PipelineStage{r.waitStage},
		CommandBuffers:   []gpu.CommandBuffer{f.Slot.Cmd},
		SignalSemaphores: []gpu.Semaphore{f.Rendered},
	}}, f.Slot.InFlight)
	if err != nil {
		return fmt.Errorf("frame %d: %w", f.Number, err)
	}
	return nil
}

func (r *ring) Present(f *Frame) error {
	res := r.queue.Present(gpu.PresentInfo{
		WaitSemaphores: []gpu.Semaphore{f.Rendered},
		Swapchain:      r.swapchain,
		ImageIndex:     f.ImageIndex,
	})
	r.current = nil
	r.frame++
	switch res {
	case gpu.Success:
		return nil
	case gpu.Suboptimal:
		f.Suboptimal = true
		logger.Debugf("%s: frame %d present suboptimal", r.label, f.Number)
		return nil
	}
	return gpu.CheckResult("vkQueuePresentKHR", res)
}

func (r *ring) WaitIdle() error {
	return r.device.WaitIdle()
}

func (r *ring) Destroy() {
	if err := r.WaitIdle(); err != nil {
		logger.Warningf("%s: wait before teardown: %v", r.label, err)
	}
	r.release()
}

func (r *ring) release() {
	for i := len(r.rendered) - 1; i >= 0; i-- {
		r.rendered[i].Destroy()
	}
	for i := len(r.acquired) - 1; i >= 0; i-- {
		r.acquired[i].Destroy()
	}
	for i := len(r.slots) - 1; i >= 0; i-- {
		r.slots[i].InFlight.Destroy()
	}
	r.rendered, r.acquired, r.slots = nil, nil, nil
}
