package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/Carmen-Shannon/oxy-rt/engine/config"
	"github.com/Carmen-Shannon/oxy-rt/engine/gpu"
	"github.com/Carmen-Shannon/oxy-rt/engine/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type hookCounts struct {
	initApp, initView, render, release, quit int
	renderErr                                 func(n int) error
}

func (h *hookCounts) hooks() Hooks {
	return Hooks{
		InitApplication: func() error { h.initApp++; return nil },
		InitView:        func() error { h.initView++; return nil },
		RenderFrame: func(ctx *FrameContext) error {
			h.render++
			if h.renderErr != nil {
				return h.renderErr(h.render)
			}
			return nil
		},
		ReleaseView:     func() error { h.release++; return nil },
		QuitApplication: func() error { h.quit++; return nil },
	}
}

func TestShellLifecycle(t *testing.T) {
	h := &hookCounts{}
	s := NewShell(h.hooks())
	assert.Equal(t, StateUninitialized, s.State())

	require.NoError(t, s.Dispatch(EventInitView))
	assert.Equal(t, StateViewReady, s.State())
	require.NoError(t, s.Dispatch(EventRenderFrame))
	require.NoError(t, s.Dispatch(EventRenderFrame))
	assert.Equal(t, StateRendering, s.State())
	assert.Equal(t, uint64(2), s.Frames())

	require.NoError(t, s.Dispatch(EventReleaseView))
	assert.Equal(t, StateUninitialized, s.State())
	require.NoError(t, s.Dispatch(EventInitView))
	assert.Equal(t, 1, h.initApp, "the application is initialized once")
	assert.Equal(t, 2, h.initView)

	require.NoError(t, s.Dispatch(EventQuit))
	assert.Equal(t, StateTornDown, s.State())
	assert.Equal(t, 2, h.release)
	assert.Equal(t, 1, h.quit)

	require.NoError(t, s.Dispatch(EventQuit), "quitting twice is a no-op")
	assert.Equal(t, 1, h.quit)
}

func TestShellRejectsInvalidEvents(t *testing.T) {
	h := &hookCounts{}
	s := NewShell(h.hooks())

	err := s.Dispatch(EventRenderFrame)
	require.Error(t, err)
	assert.Equal(t, gpu.ErrorKindInvalidUsage, gpu.KindOf(err))
	assert.Equal(t, StateUninitialized, s.State())
	assert.Zero(t, h.render)

	require.NoError(t, s.Dispatch(EventInitView))
	assert.Error(t, s.Dispatch(EventInitView))

	require.NoError(t, s.Dispatch(EventQuit))
	assert.Error(t, s.Dispatch(EventInitView))
	assert.Equal(t, StateTornDown, s.State())
}

func TestShellQuitBeforeInit(t *testing.T) {
	h := &hookCounts{}
	s := NewShell(h.hooks())
	require.NoError(t, s.Dispatch(EventQuit))
	assert.Equal(t, StateTornDown, s.State())
	assert.Zero(t, h.quit)
}

func TestShellRunStopsAtMaxFrames(t *testing.T) {
	h := &hookCounts{}
	s := NewShell(h.hooks(), WithMaxFrames(5), WithFixedDelta(0.01))
	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, uint64(5), s.Frames())
	assert.Equal(t, 5, h.render)
	assert.Equal(t, StateTornDown, s.State())
	assert.Equal(t, 1, h.release)
	assert.Equal(t, 1, h.quit)
}

func TestShellFrameDelta(t *testing.T) {
	var deltas []float32
	s := NewShell(Hooks{RenderFrame: func(ctx *FrameContext) error {
		deltas = append(deltas, ctx.Delta)
		return nil
	}}, WithFixedDelta(0.5), WithMaxFrames(3))
	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, []float32{0, 0.5, 0.5}, deltas)
}

func TestShellRecreatesOutOfDateView(t *testing.T) {
	h := &hookCounts{renderErr: func(n int) error {
		if n == 2 {
			return gpu.NewError("present", gpu.ErrorKindOutOfDate, "surface changed")
		}
		return nil
	}}
	s := NewShell(h.hooks(), WithMaxFrames(3))
	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, 2, h.initView)
	assert.Equal(t, 2, h.release)
	assert.Equal(t, 1, h.initApp)
	assert.Equal(t, uint64(3), s.Frames())
}

func TestShellRunReportsHookFailure(t *testing.T) {
	boom := errors.New("boom")
	h := &hookCounts{renderErr: func(int) error { return boom }}
	s := NewShell(h.hooks(), WithMaxFrames(10))
	err := s.Run(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Equal(t, StateTornDown, s.State())
	assert.Equal(t, 1, h.quit)
}

func TestShellRunHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewShell(Hooks{RenderFrame: func(fc *FrameContext) error {
		if fc.Number == 3 {
			cancel()
		}
		return nil
	}})
	require.NoError(t, s.Run(ctx))
	assert.Equal(t, uint64(4), s.Frames())
}

func TestHandleError(t *testing.T) {
	assert.Equal(t, ExitOK, HandleError(nil))
	assert.Equal(t, ExitFailure, HandleError(errors.New("plain")))
	assert.Equal(t, ExitUsage, HandleError(&UsageError{Err: errors.New("bad flag")}))

	cases := map[gpu.ErrorKind]int{
		gpu.ErrorKindUnsupported:  ExitUnsupported,
		gpu.ErrorKindZeroSize:     ExitZeroSize,
		gpu.ErrorKindOutOfMemory:  ExitOutOfMemory,
		gpu.ErrorKindDeviceLost:   ExitDeviceLost,
		gpu.ErrorKindInvalidUsage: ExitInvalid,
		gpu.ErrorKindTimeout:      ExitTimeout,
		gpu.ErrorKindOutOfDate:    ExitOutOfDate,
	}
	for kind, code := range cases {
		err := gpu.NewError("op", kind, "failed")
		assert.Equal(t, code, HandleError(err), kind.String())
		assert.Equal(t, code, HandleError(errors.Join(errors.New("context"), err)), kind.String())
	}
}

func TestStateAndEventNames(t *testing.T) {
	assert.Equal(t, "rendering", StateRendering.String())
	assert.Equal(t, "render-frame", EventRenderFrame.String())
}

func TestApplicationRendersHeadless(t *testing.T) {
	cfg := config.Default().With(
		config.WithExtent(32, 24),
		config.WithSwapchainLength(3),
		config.WithWorkers(2),
	)
	require.NoError(t, cfg.Validate())

	app := NewApplication(cfg, WithScene(model.SceneShadows))
	s := NewShell(app.Hooks(), WithMaxFrames(6), WithFixedDelta(1.0/60))
	require.NoError(t, s.Run(context.Background()))

	stats := app.DeviceStats()
	assert.Equal(t, 6, stats.Presents)
	assert.LessOrEqual(t, stats.MaxOutstanding, 3)
	assert.Zero(t, stats.Errors)
	assert.Positive(t, stats.TraceRays+stats.Dispatches)

	snap := app.Snapshot()
	require.NotNil(t, snap)
	assert.Equal(t, 32, snap.Bounds().Dx())
	assert.Equal(t, 24, snap.Bounds().Dy())
}

func TestApplicationTogglesBeforeInitAreIgnored(t *testing.T) {
	app := NewApplication(config.Default())
	assert.NotPanics(t, func() {
		app.ToggleDenoise()
		app.TogglePause()
		app.ToggleLight()
		app.PrintStats()
	})
	assert.Nil(t, app.Scene())
	assert.Nil(t, app.Snapshot())
}

func TestApplicationUnknownScene(t *testing.T) {
	app := NewApplication(config.Default().With(config.WithExtent(16, 16)), WithScene("nope"))
	s := NewShell(app.Hooks(), WithMaxFrames(1))
	assert.Error(t, s.Run(context.Background()))
	assert.Equal(t, StateTornDown, s.State())
}
