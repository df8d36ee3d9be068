package engine

import (
	"time"

	"github.com/Carmen-Shannon/oxy-rt/engine/profiler"
	"github.com/Carmen-Shannon/oxy-rt/engine/window"
)

// ShellBuilderOption is a functional option for configuring a Shell.
// Use the With* functions to create options that are applied directly to the shell instance.
type ShellBuilderOption func(*shell)

// WithProfiling enables or disables the once-per-second frame rate log line.
//
// Parameters:
//   - enabled: if true, ticks the profiler after every frame
//
// Returns:
//   - ShellBuilderOption: option function to apply
func WithProfiling(enabled bool) ShellBuilderOption {
	return func(s *shell) {
		s.profiling = enabled
	}
}

// WithProfiler replaces the profiler handed to RenderFrame.
func WithProfiler(p *profiler.Profiler) ShellBuilderOption {
	return func(s *shell) {
		s.prof = p
	}
}

// WithMaxFrames stops Run after n frames. Zero renders until the context or window ends the loop.
//
// Parameters:
//   - n: the frame budget
//
// Returns:
//   - ShellBuilderOption: option function to apply
func WithMaxFrames(n int) ShellBuilderOption {
	return func(s *shell) {
		if n < 0 {
			n = 0
		}
		s.maxFrames = uint64(n)
	}
}

// WithFrameLimit sets an optional frame rate cap in frames per second.
// Pass 0 to uncap the loop (default).
//
// Parameters:
//   - fps: maximum frames per second (0 = uncapped)
//
// Returns:
//   - ShellBuilderOption: option function to apply
func WithFrameLimit(fps float64) ShellBuilderOption {
	return func(s *shell) {
		if fps <= 0 {
			s.frameLimit = 0
			return
		}
		s.frameLimit = time.Duration(float64(time.Second) / fps)
	}
}

// WithFixedDelta makes every frame after the first advance time by dt seconds regardless of the
// wall clock, so headless runs are reproducible.
func WithFixedDelta(dt float32) ShellBuilderOption {
	return func(s *shell) {
		s.fixedDelta = dt
	}
}

// WithWindow drives the frame loop from the window's message loop. Run stops when the window closes.
//
// Parameters:
//   - w: the window
//
// Returns:
//   - ShellBuilderOption: option function to apply
func WithWindow(w window.Window) ShellBuilderOption {
	return func(s *shell) {
		s.window = w
	}
}
