package main

import (
	"context"
	"errors"
	"fmt"
	"image/png"
	"os"
	"os/signal"

	"github.com/Carmen-Shannon/oxy-rt/engine"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer"
	"github.com/Carmen-Shannon/oxy-rt/engine/window"
	"github.com/urfave/cli"
)

// RenderHeadless renders the configured number of frames on the reference device and writes
// the last one as a PNG when an output path is set.
func RenderHeadless(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	if ctx.NArg() != 0 {
		return &engine.UsageError{Err: fmt.Errorf("unexpected arguments %v", ctx.Args())}
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	app := engine.NewApplication(cfg, engine.WithScene(ctx.String("scene")))
	shell := engine.NewShell(app.Hooks(),
		engine.WithProfiling(ctx.GlobalBool("v") || ctx.GlobalBool("vv")),
		engine.WithMaxFrames(cfg.Render.Frames),
		engine.WithFixedDelta(1.0/60),
	)
	logger.Noticef("rendering %d frames of %s at %dx%d", cfg.Render.Frames, app, cfg.Window.Width, cfg.Window.Height)
	if err := shell.Run(sigCtx); err != nil {
		return err
	}
	displayFrameStats(shell, app)

	if cfg.Render.Output == "" {
		return nil
	}
	return writePNG(cfg.Render.Output, app)
}

// RenderWindow renders into a window until it is closed or the frame count is reached.
func RenderWindow(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	frames := 0
	if ctx.IsSet("frames") {
		frames = cfg.Render.Frames
	}

	w, err := window.NewWindow(
		window.WithTitle(cfg.Window.Title),
		window.WithWidth(cfg.Window.Width),
		window.WithHeight(cfg.Window.Height),
		window.WithResizable(true),
	)
	if err != nil {
		return err
	}
	presenter, err := renderer.NewPresenter(w.SurfaceDescriptor(), cfg.Window.Width, cfg.Window.Height,
		renderer.WithVSync(cfg.Window.VSync),
	)
	if err != nil {
		return errors.Join(err, w.Close())
	}

	app := engine.NewApplication(cfg,
		engine.WithScene(ctx.String("scene")),
		engine.WithPresentTarget(presenter),
	)
	app.BindKeys(w, presenter.Resize)
	shell := engine.NewShell(app.Hooks(),
		engine.WithWindow(w),
		engine.WithProfiling(true),
		engine.WithMaxFrames(frames),
	)

	err = shell.Run(context.Background())
	logger.Noticef("presented %d images to the window", presenter.Presented())
	presenter.Destroy()
	err = errors.Join(err, w.Close())
	displayFrameStats(shell, app)
	return err
}

func displayFrameStats(shell engine.Shell, app *engine.Application) {
	stats := app.DeviceStats()
	logger.Noticef("%d frames, %d submissions, %d trace dispatches, %d compute dispatches",
		shell.Frames(), stats.Submissions, stats.TraceRays, stats.Dispatches)
	fmt.Print(shell.Profiler().Summary())
}

func writePNG(path string, app *engine.Application) error {
	img := app.Snapshot()
	if img == nil {
		return errors.New("no frame was presented")
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	logger.Noticef("wrote %s", path)
	return nil
}

