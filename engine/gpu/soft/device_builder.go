package soft

import (
	"image"

	"github.com/Carmen-Shannon/oxy-rt/engine/gpu"
)

// AcquireOrder selects the order in which the swapchain grants images.
type AcquireOrder int

const (
	// AcquireRoundRobin grants images in index order.
	AcquireRoundRobin AcquireOrder = iota
	// AcquireScrambled starts the search forward on even cycles through the ring and backward on
	// odd ones, so callers that assume round-robin acquisition break.
	AcquireScrambled
)

// PresentTarget receives every presented swapchain image.
type PresentTarget interface {
	// Present is called once per successful queue present.
	//
	// Parameters:
	//   - index: the swapchain image index
	//   - img: the image contents converted to RGBA8
	//
	// Returns:
	//   - error: reported as a lost device
	Present(index uint32, img *image.RGBA) error
}

// DeviceOption configures a Device.
type DeviceOption func(*Device)

// WithFeatures replaces the enabled feature set.
func WithFeatures(f gpu.DeviceFeatures) DeviceOption {
	return func(d *Device) {
		d.features = f
	}
}

// WithWorkers sets the number of pool workers running shader invocations. Values below two run
// invocations on the calling goroutine.
func WithWorkers(n int) DeviceOption {
	return func(d *Device) {
		d.workers = n
	}
}

// WithMemoryBudget caps total buffer memory; allocations beyond it fail with out of device memory.
func WithMemoryBudget(bytes uint64) DeviceOption {
	return func(d *Device) {
		d.memoryBudget = bytes
	}
}

// WithWarningFilter installs the warning allowlist. The filter returns false for categories that
// are suppressed.
func WithWarningFilter(filter func(gpu.WarningCategory) bool) DeviceOption {
	return func(d *Device) {
		d.filter = filter
	}
}

// WithAcquireOrder sets the swapchain acquisition order.
func WithAcquireOrder(order AcquireOrder) DeviceOption {
	return func(d *Device) {
		d.acquireOrder = order
	}
}

// WithPresentTarget forwards presented images to target.
func WithPresentTarget(target PresentTarget) DeviceOption {
	return func(d *Device) {
		d.present = target
	}
}

// WithPresentResult overrides the result of the n-th present (counting from one), for example to
// inject Suboptimal or out-of-date surfaces.
func WithPresentResult(f func(present uint64) gpu.Result) DeviceOption {
	return func(d *Device) {
		d.presentResult = f
	}
}

// WithTrace records every executed command; see Device.Trace.
func WithTrace(enabled bool) DeviceOption {
	return func(d *Device) {
		d.traceEnabled = enabled
	}
}

// WithMaxRayRecursionDepth overrides the reported ray recursion limit.
func WithMaxRayRecursionDepth(depth uint32) DeviceOption {
	return func(d *Device) {
		d.props.MaxRayRecursionDepth = depth
	}
}
