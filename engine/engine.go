// Package engine drives the application lifecycle: it moves a Shell through its states, calls the
// lifecycle hooks, runs the frame loop and turns the first fatal error into an exit code.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-rt/engine/gpu"
	"github.com/Carmen-Shannon/oxy-rt/engine/log"
	"github.com/Carmen-Shannon/oxy-rt/engine/profiler"
	"github.com/Carmen-Shannon/oxy-rt/engine/window"
)

var logger = log.New("engine")

// State is a lifecycle state of the Shell.
type State int

const (
	// StateUninitialized has no view; the application may or may not have been initialized.
	StateUninitialized State = iota
	// StateViewReady has a view (swapchain and frame resources) and has not rendered yet.
	StateViewReady
	// StateRendering has rendered at least one frame into the current view.
	StateRendering
	// StateTornDown is final.
	StateTornDown
)

var stateNames = [...]string{"uninitialized", "view-ready", "rendering", "torn-down"}

func (s State) String() string {
	if int(s) >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Event is an input of the lifecycle state machine.
type Event int

const (
	// EventInitView initializes the application on first use, then the view.
	EventInitView Event = iota
	// EventRenderFrame renders one frame.
	EventRenderFrame
	// EventReleaseView releases the view but keeps the application.
	EventReleaseView
	// EventQuit releases the view if there is one, then the application.
	EventQuit
)

var eventNames = [...]string{"init-view", "render-frame", "release-view", "quit"}

func (e Event) String() string {
	if int(e) >= 0 && int(e) < len(eventNames) {
		return eventNames[e]
	}
	return fmt.Sprintf("Event(%d)", int(e))
}

// FrameContext is passed to the RenderFrame hook.
type FrameContext struct {
	// Number counts frames rendered by the Shell, across views.
	Number uint64
	// Delta is the time since the previous frame in seconds, zero for the first frame.
	Delta float32
	// Profiler records phase timings; it is never nil.
	Profiler *profiler.Profiler
}

// Hooks are the lifecycle functions of an application. Nil hooks are skipped.
type Hooks struct {
	// InitApplication runs once, before the first InitView.
	InitApplication func() error
	// InitView creates everything that depends on the presentation surface.
	InitView func() error
	// RenderFrame renders one frame.
	RenderFrame func(ctx *FrameContext) error
	// ReleaseView releases what InitView created.
	ReleaseView func() error
	// QuitApplication releases what InitApplication created.
	QuitApplication func() error
}

// shell is the implementation of the Shell interface.
type shell struct {
	mu *sync.Mutex

	hooks   Hooks
	state   State
	appInit bool

	prof       *profiler.Profiler
	profiling  bool
	maxFrames  uint64
	frameLimit time.Duration
	fixedDelta float32
	window     window.Window

	frames    uint64
	lastFrame time.Time
	recreated int
}

// Shell runs an application through the lifecycle Uninitialized -> ViewReady -> Rendering ->
// TornDown. Every transition goes through Dispatch.
type Shell interface {
	// State returns the current lifecycle state.
	State() State

	// Dispatch applies one event. Events that are not valid in the current state return an
	// ErrorKindInvalidUsage error and leave the state unchanged; a failing hook also leaves the
	// state unchanged.
	//
	// Parameters:
	//   - ev: the event
	//
	// Returns:
	//   - error: the hook's error or the invalid transition
	Dispatch(ev Event) error

	// Run initializes the view, renders frames until the frame budget is spent, ctx is cancelled,
	// the window closes or a fatal error occurs, and always finishes with EventQuit. An
	// out-of-date view is released and initialized again instead of failing.
	//
	// Parameters:
	//   - ctx: cancels the loop between frames
	//
	// Returns:
	//   - error: the first fatal error, joined with any teardown error
	Run(ctx context.Context) error

	// Frames returns the number of frames rendered.
	Frames() uint64

	// Profiler returns the profiler passed to RenderFrame.
	Profiler() *profiler.Profiler
}

var _ Shell = &shell{}

// NewShell creates a Shell in StateUninitialized.
//
// Parameters:
//   - hooks: the application's lifecycle functions
//   - options: functional options
//
// Returns:
//   - Shell: the shell
func NewShell(hooks Hooks, options ...ShellBuilderOption) Shell {
	s := &shell{
		mu:    &sync.Mutex{},
		hooks: hooks,
		state: StateUninitialized,
	}
	for _, opt := range options {
		opt(s)
	}
	if s.prof == nil {
		s.prof = profiler.NewProfiler(time.Second)
	}
	return s
}

func (s *shell) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *shell) Frames() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

func (s *shell) Profiler() *profiler.Profiler {
	return s.prof
}

func (s *shell) Dispatch(ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	from := s.state
	var err error
	switch s.state {
	case StateUninitialized:
		switch ev {
		case EventInitView:
			err = s.initView()
		case EventQuit:
			err = s.quit()
		default:
			err = s.invalid(ev)
		}
	case StateViewReady, StateRendering:
		switch ev {
		case EventRenderFrame:
			err = s.renderFrame()
		case EventReleaseView:
			err = s.releaseView()
		case EventQuit:
			err = errors.Join(s.releaseView(), s.quit())
		default:
			err = s.invalid(ev)
		}
	case StateTornDown:
		if ev != EventQuit {
			err = s.invalid(ev)
		}
	}
	if s.state != from {
		logger.Noticef("%s: %s -> %s", ev, from, s.state)
	}
	return err
}

func (s *shell) invalid(ev Event) error {
	return gpu.NewError("dispatch", gpu.ErrorKindInvalidUsage, "event %s in state %s", ev, s.state)
}

// initView runs InitApplication once and then InitView. Caller must hold the mutex.
func (s *shell) initView() error {
	if !s.appInit {
		if err := call(s.hooks.InitApplication); err != nil {
			return fmt.Errorf("init application: %w", err)
		}
		s.appInit = true
	}
	if err := call(s.hooks.InitView); err != nil {
		return fmt.Errorf("init view: %w", err)
	}
	s.state = StateViewReady
	s.lastFrame = time.Time{}
	return nil
}

// renderFrame runs RenderFrame with the frame's delta time. Caller must hold the mutex.
func (s *shell) renderFrame() error {
	now := time.Now()
	var dt float32
	switch {
	case s.lastFrame.IsZero():
	case s.fixedDelta > 0:
		dt = s.fixedDelta
	default:
		dt = float32(now.Sub(s.lastFrame).Seconds())
	}
	s.lastFrame = now

	if s.hooks.RenderFrame != nil {
		ctx := &FrameContext{Number: s.frames, Delta: dt, Profiler: s.prof}
		if err := s.hooks.RenderFrame(ctx); err != nil {
			return fmt.Errorf("frame %d: %w", s.frames, err)
		}
	}
	s.frames++
	s.state = StateRendering
	if s.profiling {
		s.prof.Tick()
	}
	return nil
}

// releaseView runs ReleaseView. The view is gone even if the hook fails. Caller must hold the mutex.
func (s *shell) releaseView() error {
	s.state = StateUninitialized
	if err := call(s.hooks.ReleaseView); err != nil {
		return fmt.Errorf("release view: %w", err)
	}
	return nil
}

// quit runs QuitApplication if the application was initialized. Caller must hold the mutex.
func (s *shell) quit() error {
	s.state = StateTornDown
	if !s.appInit {
		return nil
	}
	s.appInit = false
	if err := call(s.hooks.QuitApplication); err != nil {
		return fmt.Errorf("quit application: %w", err)
	}
	return nil
}

func call(hook func() error) error {
	if hook == nil {
		return nil
	}
	return hook()
}

func (s *shell) Run(ctx context.Context) error {
	if err := s.Dispatch(EventInitView); err != nil {
		return errors.Join(err, s.Dispatch(EventQuit))
	}

	var err error
	if s.window != nil {
		s.window.SetUpdateCallback(func() error {
			if s.done(ctx) {
				return errStop
			}
			return s.step()
		})
		err = s.window.ProcessMessages()
		if errors.Is(err, errStop) {
			err = nil
		}
	} else {
		for !s.done(ctx) {
			if err = s.step(); err != nil {
				break
			}
		}
	}
	if err != nil {
		logger.Errorf("stopping after %d frames: %v", s.Frames(), err)
	}
	return errors.Join(err, s.Dispatch(EventQuit))
}

// errStop ends the window message loop without reporting an error.
var errStop = errors.New("stop")

// done reports whether the loop should stop before the next frame.
func (s *shell) done(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	return s.maxFrames > 0 && s.Frames() >= s.maxFrames
}

// step renders one frame, recreating the view once per failure when it went out of date, and
// sleeps out the rest of the frame limit.
func (s *shell) step() error {
	start := time.Now()
	err := s.Dispatch(EventRenderFrame)
	if err != nil && gpu.KindOf(err) == gpu.ErrorKindOutOfDate {
		s.recreated++
		logger.Warningf("view out of date, recreating (%d)", s.recreated)
		if err = s.Dispatch(EventReleaseView); err == nil {
			err = s.Dispatch(EventInitView)
		}
	}
	if err != nil {
		return err
	}
	if s.frameLimit > 0 {
		if remaining := s.frameLimit - time.Since(start); remaining > 0 {
			time.Sleep(remaining)
		}
	}
	return nil
}
