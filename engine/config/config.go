// Package config holds the immutable run configuration shared by the device, acceleration
// structure and frame orchestration layers.
package config

import (
	"fmt"
	"runtime"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine/gpu"
)

// RenderMode selects the shadow technique.
type RenderMode string

const (
	// RenderModeRayTrace traces shadow rays from a ray-tracing pipeline after the G-buffer pass.
	RenderModeRayTrace RenderMode = "raytrace"
	// RenderModeRayQuery issues ray queries from the G-buffer fragment stage.
	RenderModeRayQuery RenderMode = "rayquery"
)

// AcquireOrder selects how the reference device hands out swapchain images.
type AcquireOrder string

const (
	AcquireRoundRobin AcquireOrder = "round-robin"
	AcquireScrambled  AcquireOrder = "scrambled"
)

// WindowConfig sizes the presentation surface.
type WindowConfig struct {
	Title  string `toml:"title"`
	Width  int    `toml:"width"`
	Height int    `toml:"height"`
	VSync  bool   `toml:"vsync"`
}

// SwapchainConfig sizes the frame ring.
type SwapchainConfig struct {
	Length       int          `toml:"length" comment:"number of swapchain images and frame slots, 2..4"`
	AcquireOrder AcquireOrder `toml:"acquire_order" comment:"round-robin or scrambled (reference device only)"`
}

// RenderConfig selects the pass sequence.
type RenderConfig struct {
	Mode    RenderMode `toml:"mode" comment:"raytrace or rayquery"`
	Denoise bool       `toml:"denoise"`
	Frames  int        `toml:"frames" comment:"frames rendered by the headless run command"`
	Output  string     `toml:"output" comment:"optional PNG path for the last composited frame"`
}

// AccelConfig tunes acceleration-structure builds.
type AccelConfig struct {
	PreferFastTrace bool `toml:"prefer_fast_trace"`
	AllowUpdate     bool `toml:"allow_update" comment:"refit the TLAS every frame instead of rebuilding it"`
	CullDisable     bool `toml:"cull_disable" comment:"set TRIANGLE_FACING_CULL_DISABLE on every instance"`
}

// ValidationConfig controls the reference device's validation layer.
type ValidationConfig struct {
	Enabled  bool     `toml:"enabled"`
	Suppress []string `toml:"suppress" comment:"warning categories to suppress"`
}

// AnimationConfig controls scene animation.
type AnimationConfig struct {
	Enabled bool    `toml:"enabled"`
	Speed   float64 `toml:"speed"`
}

// LightConfig places the scene's point light.
type LightConfig struct {
	Position  [3]float32 `toml:"position"`
	Color     [3]float32 `toml:"color"`
	Intensity float32    `toml:"intensity"`
	Ambient   [3]float32 `toml:"ambient"`
}

// Config is the complete run configuration. Values are passed by value and never mutated
// after Validate; use With to derive a modified copy.
type Config struct {
	LogLevel   string           `toml:"log_level"`
	Workers    int              `toml:"workers" comment:"shader invocation workers on the reference device, 0 for NumCPU"`
	Window     WindowConfig     `toml:"window"`
	Swapchain  SwapchainConfig  `toml:"swapchain"`
	Render     RenderConfig     `toml:"render"`
	Accel      AccelConfig      `toml:"accel"`
	Validation ValidationConfig `toml:"validation"`
	Animation  AnimationConfig  `toml:"animation"`
	Light      LightConfig      `toml:"light"`
}

// Default returns the configuration used when no file or flag overrides a value.
func Default() Config {
	return Config{
		LogLevel: "notice",
		Window:   WindowConfig{Title: "oxy-rt", Width: 640, Height: 360, VSync: true},
		Swapchain: SwapchainConfig{
			Length:       3,
			AcquireOrder: AcquireRoundRobin,
		},
		Render: RenderConfig{Mode: RenderModeRayQuery, Denoise: true, Frames: 60},
		Accel:  AccelConfig{PreferFastTrace: true, AllowUpdate: true, CullDisable: true},
		Validation: ValidationConfig{
			Enabled:  true,
			Suppress: []string{gpu.WarningBestPracticesSmallDedicatedAllocation.String()},
		},
		Animation: AnimationConfig{Enabled: true, Speed: 1},
		Light: LightConfig{
			Position:  [3]float32{4, 8, 4},
			Color:     [3]float32{1, 1, 1},
			Intensity: 1,
			Ambient:   [3]float32{0.05, 0.05, 0.05},
		},
	}
}

// Option derives a modified configuration.
type Option func(c *Config)

// With returns a copy of c with opts applied.
//
// Parameters:
//   - opts: the modifications
//
// Returns:
//   - Config: the derived configuration
func (c Config) With(opts ...Option) Config {
	c.Validation.Suppress = append([]string(nil), c.Validation.Suppress...)
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithExtent sets the render extent.
func WithExtent(width, height int) Option {
	return func(c *Config) {
		c.Window.Width = common.Coalesce(width, c.Window.Width)
		c.Window.Height = common.Coalesce(height, c.Window.Height)
	}
}

// WithSwapchainLength sets the number of swapchain images.
func WithSwapchainLength(n int) Option {
	return func(c *Config) {
		c.Swapchain.Length = common.Coalesce(n, c.Swapchain.Length)
	}
}

// WithAcquireOrder sets the reference swapchain acquire order.
func WithAcquireOrder(o AcquireOrder) Option {
	return func(c *Config) {
		c.Swapchain.AcquireOrder = common.Coalesce(o, c.Swapchain.AcquireOrder)
	}
}

// WithRenderMode sets the shadow technique.
func WithRenderMode(m RenderMode) Option {
	return func(c *Config) {
		c.Render.Mode = common.Coalesce(m, c.Render.Mode)
	}
}

// WithDenoise enables or disables the denoise passes.
func WithDenoise(enabled bool) Option {
	return func(c *Config) {
		c.Render.Denoise = enabled
	}
}

// WithFrames sets the number of frames for headless runs.
func WithFrames(n int) Option {
	return func(c *Config) {
		c.Render.Frames = common.Coalesce(n, c.Render.Frames)
	}
}

// WithOutput sets the PNG output path.
func WithOutput(path string) Option {
	return func(c *Config) {
		c.Render.Output = common.Coalesce(path, c.Render.Output)
	}
}

// WithWorkers sets the reference device worker count.
func WithWorkers(n int) Option {
	return func(c *Config) {
		c.Workers = common.Coalesce(n, c.Workers)
	}
}

// WithLogLevel sets the log level name.
func WithLogLevel(level string) Option {
	return func(c *Config) {
		c.LogLevel = common.Coalesce(level, c.LogLevel)
	}
}

// WithSuppressedWarnings replaces the suppressed warning categories.
func WithSuppressedWarnings(categories ...gpu.WarningCategory) Option {
	return func(c *Config) {
		c.Validation.Suppress = c.Validation.Suppress[:0]
		for _, cat := range categories {
			c.Validation.Suppress = append(c.Validation.Suppress, cat.String())
		}
	}
}

// Validate checks the configuration.
//
// Returns:
//   - error: describing the first invalid value
func (c Config) Validate() error {
	if c.Swapchain.Length < 2 || c.Swapchain.Length > 4 {
		return fmt.Errorf("swapchain length %d outside 2..4", c.Swapchain.Length)
	}
	if c.Window.Width <= 0 || c.Window.Height <= 0 {
		return fmt.Errorf("invalid extent %dx%d", c.Window.Width, c.Window.Height)
	}
	switch c.Render.Mode {
	case RenderModeRayTrace, RenderModeRayQuery:
	default:
		return fmt.Errorf("unknown render mode %q", c.Render.Mode)
	}
	switch c.Swapchain.AcquireOrder {
	case AcquireRoundRobin, AcquireScrambled:
	default:
		return fmt.Errorf("unknown acquire order %q", c.Swapchain.AcquireOrder)
	}
	if c.Render.Frames < 0 || c.Workers < 0 {
		return fmt.Errorf("frames and workers must not be negative")
	}
	if c.Light.Intensity < 0 {
		return fmt.Errorf("light intensity %v is negative", c.Light.Intensity)
	}
	if _, err := c.SuppressedWarnings(); err != nil {
		return err
	}
	return nil
}

// Extent returns the render extent.
func (c Config) Extent() gpu.Extent2D {
	return gpu.Extent2D{Width: uint32(c.Window.Width), Height: uint32(c.Window.Height)}
}

// WorkerCount returns the effective worker count.
func (c Config) WorkerCount() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.NumCPU()
}

// BuildFlags returns the TLAS build flags.
func (c Config) BuildFlags() gpu.BuildAccelerationStructureFlags {
	var f gpu.BuildAccelerationStructureFlags
	if c.Accel.PreferFastTrace {
		f |= gpu.BuildAccelerationStructurePreferFastTrace
	}
	if c.Accel.AllowUpdate {
		f |= gpu.BuildAccelerationStructureAllowUpdate
	}
	return f
}

// InstanceFlags returns the flags applied to every TLAS instance.
func (c Config) InstanceFlags() gpu.GeometryInstanceFlags {
	if c.Accel.CullDisable {
		return gpu.GeometryInstanceTriangleFacingCullDisable
	}
	return 0
}
