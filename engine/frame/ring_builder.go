package frame

import "github.com/Carmen-Shannon/oxy-rt/engine/gpu"

// RingBuilderOption is a functional option for NewRing.
type RingBuilderOption func(*ring)

// WithLabel sets the debug name prefix of the ring's objects.
//
// Parameters:
//   - label: the prefix
//
// Returns:
//   - RingBuilderOption: the option
func WithLabel(label string) RingBuilderOption {
	return func(r *ring) {
		r.label = label
	}
}

// WithWaitStage sets the stage that waits on the image-acquired semaphore. The default is colour
// attachment output; frames that write the swapchain image from compute need an earlier stage.
//
// Parameters:
//   - stage: the waiting stage
//
// Returns:
//   - RingBuilderOption: the option
func WithWaitStage(stage gpu.PipelineStage) RingBuilderOption {
	return func(r *ring) {
		r.waitStage = stage
	}
}
