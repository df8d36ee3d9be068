package soft

import (
	"time"

	"github.com/Carmen-Shannon/oxy-rt/engine/gpu"
)

type fence struct {
	label    string
	signaled bool
	// submitted is set while a submission signaling this fence has not been retired.
	submitted *submission
}

func (f *fence) Label() string { return f.label }
func (f *fence) Destroy()      {}

func (f *fence) Status() gpu.Result {
	if f.signaled {
		return gpu.Success
	}
	return gpu.NotReady
}

type semaphore struct {
	label    string
	signaled bool
}

func (s *semaphore) Label() string { return s.label }
func (s *semaphore) Destroy()      {}

// CreateFence creates a fence, optionally already signaled.
func (d *Device) CreateFence(label string, signaled bool) (gpu.Fence, error) {
	return &fence{label: label, signaled: signaled}, nil
}

// CreateSemaphore creates an unsignaled binary semaphore.
func (d *Device) CreateSemaphore(label string) (gpu.Semaphore, error) {
	return &semaphore{label: label}, nil
}

// WaitForFences returns once the fences are signaled. Work executes at submit time, so a fence
// is either signaled already or never will be; waiting on the latter with an infinite timeout is
// reported as a deadlock. Waiting retires the submissions the fences belong to.
//
// Parameters:
//   - fences: the fences to wait on
//   - waitAll: wait for all fences rather than any
//   - timeout: maximum wait
//
// Returns:
//   - gpu.Result: Success, Timeout, or ErrorDeviceLost on a wait that could never complete
func (d *Device) WaitForFences(fences []gpu.Fence, waitAll bool, timeout time.Duration) gpu.Result {
	ready := 0
	for _, gf := range fences {
		f, ok := gf.(*fence)
		if !ok {
			d.reportError("vkWaitForFences: foreign fence")
			return gpu.ErrorValidationFailed
		}
		if f.signaled {
			ready++
			if f.submitted != nil {
				d.queue.retire(f.submitted)
			}
		}
	}
	if (waitAll && ready == len(fences)) || (!waitAll && ready > 0) || len(fences) == 0 {
		return gpu.Success
	}
	if timeout == gpu.InfiniteTimeout {
		d.reportError("vkWaitForFences: infinite wait on fences that no pending submission signals")
		return gpu.ErrorDeviceLost
	}
	return gpu.Timeout
}

// ResetFences unsignals fences. A fence attached to a submission that was never waited on is
// detached; the submission then retires at the next idle.
func (d *Device) ResetFences(fences ...gpu.Fence) error {
	for _, gf := range fences {
		f, ok := gf.(*fence)
		if !ok {
			return d.validationError("vkResetFences", "foreign fence")
		}
		if f.submitted != nil {
			f.submitted.fence = nil
			f.submitted = nil
		}
		f.signaled = false
	}
	return nil
}
