package renderer

// RendererBuilderOption is a functional option applied to a presenter during construction via NewPresenter.
type RendererBuilderOption func(*presenter)

// WithPresentMode sets the surface present mode which controls how frames are delivered to the display.
//
// Parameters:
//   - mode: the PresentMode to use (VSync or Uncapped)
//
// Returns:
//   - RendererBuilderOption: a function that applies the present mode option to a presenter
func WithPresentMode(mode PresentMode) RendererBuilderOption {
	return func(p *presenter) {
		p.presentMode = mode
	}
}

// WithVSync selects PresentModeVSync when enabled and PresentModeUncapped otherwise.
func WithVSync(enabled bool) RendererBuilderOption {
	return func(p *presenter) {
		p.presentMode = PresentModeUncapped
		if enabled {
			p.presentMode = PresentModeVSync
		}
	}
}

// WithForceSoftwareRenderer forces WGPU to use a CPU/software fallback adapter instead of
// hardware GPU acceleration. This requires a software Vulkan ICD to be installed on the system
// (e.g. SwiftShader or lavapipe).
//
// Parameters:
//   - force: true to force the software fallback adapter, false to use hardware (default)
//
// Returns:
//   - RendererBuilderOption: a function that applies the force software renderer option to a presenter
func WithForceSoftwareRenderer(force bool) RendererBuilderOption {
	return func(p *presenter) {
		p.forceFallbackAdapter = force
	}
}

// WithBackend replaces the WebGPU backend, mainly so tests can observe presents without a surface.
func WithBackend(b RendererBackend) RendererBuilderOption {
	return func(p *presenter) {
		p.backend = b
	}
}
