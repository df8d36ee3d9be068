package engine

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine/camera"
	"github.com/Carmen-Shannon/oxy-rt/engine/config"
	"github.com/Carmen-Shannon/oxy-rt/engine/frame"
	"github.com/Carmen-Shannon/oxy-rt/engine/gpu"
	"github.com/Carmen-Shannon/oxy-rt/engine/gpu/soft"
	"github.com/Carmen-Shannon/oxy-rt/engine/gpu/soft/shaders"
	"github.com/Carmen-Shannon/oxy-rt/engine/light"
	"github.com/Carmen-Shannon/oxy-rt/engine/model"
	"github.com/Carmen-Shannon/oxy-rt/engine/pass"
	"github.com/Carmen-Shannon/oxy-rt/engine/profiler"
	"github.com/Carmen-Shannon/oxy-rt/engine/scene"
	"github.com/Carmen-Shannon/oxy-rt/engine/window"
)

// Application renders a scene with ray-traced shadows on the reference device. Its Hooks
// plug into a Shell; everything else is for the windowed run's key bindings and for reporting.
type Application struct {
	mu *sync.Mutex

	cfg       config.Config
	sceneName string
	model     model.Model
	present   soft.PresentTarget
	devOpts   []soft.DeviceOption

	device   *soft.Device
	loadCmd  gpu.CommandBuffer
	tlasCmd  gpu.CommandBuffer
	scene    scene.Scene
	light    light.Light
	camera   camera.Camera
	orbit    camera.CameraController
	lightOn  bool
	prof     *profiler.Profiler
	lastSnap *image.RGBA
	stats    soft.Stats

	swapchain gpu.Swapchain
	ring      frame.Ring
	orch      pass.Orchestrator
	lastImage gpu.Image
}

// ApplicationOption configures an Application.
type ApplicationOption func(*Application)

// WithScene selects the built-in scene, see model.BuiltinNames.
func WithScene(name string) ApplicationOption {
	return func(a *Application) {
		a.sceneName = name
	}
}

// WithModel renders m instead of a built-in scene.
func WithModel(m model.Model) ApplicationOption {
	return func(a *Application) {
		a.model = m
		if m != nil {
			a.sceneName = m.Name()
		}
	}
}

// WithPresentTarget forwards every presented image, e.g. to a window presenter.
func WithPresentTarget(target soft.PresentTarget) ApplicationOption {
	return func(a *Application) {
		a.present = target
	}
}

// WithDeviceOptions appends reference device options after the ones derived from the configuration.
func WithDeviceOptions(options ...soft.DeviceOption) ApplicationOption {
	return func(a *Application) {
		a.devOpts = append(a.devOpts, options...)
	}
}

// NewApplication creates an application for a validated configuration. Nothing is allocated
// until the Shell dispatches EventInitView.
//
// Parameters:
//   - cfg: the run configuration
//   - options: functional options
//
// Returns:
//   - *Application: the application
func NewApplication(cfg config.Config, options ...ApplicationOption) *Application {
	a := &Application{
		mu:        &sync.Mutex{},
		cfg:       cfg,
		sceneName: model.SceneShadows,
		lightOn:   true,
	}
	for _, opt := range options {
		opt(a)
	}
	return a
}

// Hooks returns the lifecycle functions for a Shell.
func (a *Application) Hooks() Hooks {
	return Hooks{
		InitApplication: a.initApplication,
		InitView:        a.initView,
		RenderFrame:     a.renderFrame,
		ReleaseView:     a.releaseView,
		QuitApplication: a.quitApplication,
	}
}

func acquireOrder(o config.AcquireOrder) soft.AcquireOrder {
	if o == config.AcquireScrambled {
		return soft.AcquireScrambled
	}
	return soft.AcquireRoundRobin
}

func (a *Application) initApplication() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	err := a.load()
	if err != nil && a.device != nil {
		if a.scene != nil {
			a.scene.Destroy()
			a.scene = nil
		}
		a.device.Destroy()
		a.device = nil
	}
	return err
}

// load creates the device and loads the scene. Caller must hold the mutex.
func (a *Application) load() error {

	opts := []soft.DeviceOption{
		soft.WithWorkers(a.cfg.WorkerCount()),
		soft.WithAcquireOrder(acquireOrder(a.cfg.Swapchain.AcquireOrder)),
	}
	if a.cfg.Validation.Enabled {
		opts = append(opts, soft.WithWarningFilter(a.cfg.WarningFilter()))
	}
	if a.present != nil {
		opts = append(opts, soft.WithPresentTarget(a.present))
	}
	a.device = soft.New(append(opts, a.devOpts...)...)
	shaders.Register(a.device)

	var err error
	m := a.model
	if m == nil {
		if m, err = model.Builtin(a.sceneName); err != nil {
			return err
		}
	}
	if a.loadCmd, err = a.device.AllocateCommandBuffer("load"); err != nil {
		return err
	}
	if a.tlasCmd, err = a.device.AllocateCommandBuffer("tlas"); err != nil {
		return err
	}
	a.scene = scene.NewScene(m, scene.WithConfig(a.cfg))
	if err := a.scene.Load(a.device, a.device.Queue(), a.loadCmd); err != nil {
		return err
	}

	a.light = light.NewLight(light.WithConfig(a.cfg.Light), light.WithOrbitSpeed(0.25))
	a.orbit = camera.NewCameraController(camera.WithElevation(0.6), camera.WithAzimuth(0.5))
	a.camera = camera.NewCamera(camera.WithController(a.orbit), camera.WithFar(1000))
	a.orbit.Frame(a.scene.Bounds(), a.camera.Fov())
	logger.Infof("scene %q loaded with %d instances", a.sceneName, len(a.scene.Transforms()))
	return nil
}

func (a *Application) initView() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	err := a.createView()
	if err != nil {
		a.destroyView()
	}
	return err
}

// createView creates the swapchain, frame ring and pass orchestrator. Caller must hold the mutex.
func (a *Application) createView() error {
	extent := a.cfg.Extent()
	sc, err := a.device.CreateSwapchain(gpu.SwapchainDescriptor{
		Label:  "swapchain",
		Extent: extent,
		Length: a.cfg.Swapchain.Length,
	})
	if err != nil {
		return err
	}
	a.swapchain = sc

	if a.ring, err = frame.NewRing(a.device, sc); err != nil {
		return err
	}
	a.orch, err = pass.NewOrchestrator(a.device, sc, shaders.Provider(),
		pass.WithConfig(a.cfg),
		pass.WithMaterials(a.scene.Model().Materials()),
	)
	if err != nil {
		return err
	}
	a.camera.SetAspect(float32(extent.Width) / float32(extent.Height))
	return nil
}

func (a *Application) renderFrame(ctx *FrameContext) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.prof = ctx.Profiler

	var f *frame.Frame
	err := ctx.Profiler.Time(profiler.PhaseAcquire, func() error {
		var err error
		f, err = a.ring.Begin()
		return err
	})
	if err != nil {
		return err
	}

	err = ctx.Profiler.Time(profiler.PhaseTLAS, func() error {
		if err := a.scene.Update(ctx.Delta); err != nil {
			return err
		}
		return a.scene.RefreshTopLevel(a.device, a.tlasCmd, a.device.Queue())
	})
	if err != nil {
		return err
	}

	a.light.Advance(ctx.Delta)
	a.camera.Update()
	data := a.scene.FrameData(a.camera.Frame(), a.camera.PreviousViewProjection(), a.light.Frame())
	if err := ctx.Profiler.Time(profiler.PhaseRecord, func() error { return a.orch.Record(f, data) }); err != nil {
		return err
	}
	if err := ctx.Profiler.Time(profiler.PhaseSubmit, func() error { return a.ring.Submit(f) }); err != nil {
		return err
	}
	if err := ctx.Profiler.Time(profiler.PhasePresent, func() error { return a.ring.Present(f) }); err != nil {
		return err
	}
	a.lastImage = f.Image
	return nil
}

func (a *Application) releaseView() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.destroyView()
}

// destroyView waits for the frames in flight, keeps a snapshot of the last presented image and
// releases the view objects in reverse creation order. Caller must hold the mutex.
func (a *Application) destroyView() error {
	var err error
	if a.ring != nil {
		err = a.ring.WaitIdle()
	}
	if a.lastImage != nil {
		a.lastSnap = soft.Snapshot(a.lastImage)
		a.lastImage = nil
	}
	if a.orch != nil {
		a.orch.Destroy()
		a.orch = nil
	}
	if a.ring != nil {
		a.ring.Destroy()
		a.ring = nil
	}
	if a.swapchain != nil {
		a.swapchain.Destroy()
		a.swapchain = nil
	}
	return err
}

func (a *Application) quitApplication() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.device == nil {
		return nil
	}
	var err error
	if werr := a.device.WaitIdle(); werr != nil {
		err = werr
	}
	if a.scene != nil {
		a.scene.Destroy()
	}
	if msgs := a.device.Errors(); len(msgs) > 0 {
		for _, m := range msgs {
			logger.Errorf("validation: %s", m)
		}
		err = errors.Join(err, gpu.NewError("validation", gpu.ErrorKindInvalidUsage, "%d validation errors", len(msgs)))
	}
	stats := a.device.Stats()
	a.stats = stats
	logger.Infof("device: %d submissions, at most %d outstanding, %d presents, %d warnings (%d suppressed)",
		stats.Submissions, stats.MaxOutstanding, stats.Presents, stats.Warnings, stats.SuppressedWarnings)
	a.device.Destroy()
	a.device = nil
	return err
}

// Snapshot returns the last presented image, captured when the view was released. It is nil
// until a rendered view has been released.
func (a *Application) Snapshot() *image.RGBA {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastSnap
}

// DeviceStats returns the device counters. After quitting they are the final values.
func (a *Application) DeviceStats() soft.Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.device != nil {
		return a.device.Stats()
	}
	return a.stats
}

// Scene returns the loaded scene, nil before the first InitView.
func (a *Application) Scene() scene.Scene {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.scene
}

// ToggleDenoise switches the denoise passes on or off from the next frame on.
func (a *Application) ToggleDenoise() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.orch == nil {
		return
	}
	a.orch.SetDenoise(!a.orch.Denoise())
	logger.Noticef("denoise %v", a.orch.Denoise())
}

// TogglePause pauses or resumes the scene animation.
func (a *Application) TogglePause() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.scene == nil {
		return
	}
	a.scene.SetPaused(!a.scene.Paused())
	logger.Noticef("animation paused %v", a.scene.Paused())
}

// ToggleLight turns direct lighting on or off.
func (a *Application) ToggleLight() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.light == nil {
		return
	}
	a.lightOn = !a.lightOn
	a.light.SetEnabled(a.lightOn)
}

// PrintStats logs the profiler table of the frames so far.
func (a *Application) PrintStats() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.prof == nil {
		return
	}
	logger.Noticef("frame statistics\n%s", a.prof.Summary())
}

// orbitControl runs fn on the camera controller when it exists.
func (a *Application) orbitControl(fn func(camera.CameraController)) func() {
	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		if a.orbit != nil {
			fn(a.orbit)
		}
	}
}

// BindKeys installs the windowed run's key bindings on w and routes resizes to onResize.
//
// Parameters:
//   - w: the window
//   - onResize: called with the new framebuffer size, may be nil
func (a *Application) BindKeys(w window.Window, onResize func(width, height int)) {
	w.BindKey(common.KeyD, a.ToggleDenoise)
	w.BindKey(common.KeySpace, a.TogglePause)
	w.BindKey(common.KeyL, a.ToggleLight)
	w.BindKey(common.KeyP, a.PrintStats)
	w.BindKey(common.KeyLeft, a.orbitControl(camera.CameraController.OrbitLeft))
	w.BindKey(common.KeyRight, a.orbitControl(camera.CameraController.OrbitRight))
	w.BindKey(common.KeyUp, a.orbitControl(camera.CameraController.OrbitUp))
	w.BindKey(common.KeyDown, a.orbitControl(camera.CameraController.OrbitDown))
	w.BindKey(common.KeyEqual, a.orbitControl(func(c camera.CameraController) { c.Zoom(1) }))
	w.BindKey(common.KeyMinus, a.orbitControl(func(c camera.CameraController) { c.Zoom(-1) }))
	w.SetScrollCallback(func(delta float32) {
		a.orbitControl(func(c camera.CameraController) { c.Zoom(delta) })()
	})
	if onResize != nil {
		w.SetResizeCallback(onResize)
	}
}

// String describes the application for log lines.
func (a *Application) String() string {
	return fmt.Sprintf("%s/%s", a.sceneName, a.cfg.Render.Mode)
}
