package pass

import "github.com/Carmen-Shannon/oxy-rt/engine/config"

// OrchestratorBuilderOption is a functional option for NewOrchestrator.
type OrchestratorBuilderOption func(*orchestrator)

// WithLabel sets the debug name prefix of every object the orchestrator creates.
//
// Parameters:
//   - label: the prefix
//
// Returns:
//   - OrchestratorBuilderOption: the option
func WithLabel(label string) OrchestratorBuilderOption {
	return func(o *orchestrator) {
		o.label = label
	}
}

// WithMode selects the shadow technique. The default is ray tracing.
//
// Parameters:
//   - mode: config.RenderModeRayTrace or config.RenderModeRayQuery
//
// Returns:
//   - OrchestratorBuilderOption: the option
func WithMode(mode config.RenderMode) OrchestratorBuilderOption {
	return func(o *orchestrator) {
		o.mode = mode
	}
}

// WithDenoise sets whether the denoise passes are recorded initially.
func WithDenoise(enabled bool) OrchestratorBuilderOption {
	return func(o *orchestrator) {
		o.denoise = enabled
	}
}

// WithConfig takes the render mode and denoise flag from a run configuration.
//
// Parameters:
//   - cfg: the configuration
//
// Returns:
//   - OrchestratorBuilderOption: the option
func WithConfig(cfg config.Config) OrchestratorBuilderOption {
	return func(o *orchestrator) {
		o.mode = cfg.Render.Mode
		o.denoise = cfg.Render.Denoise
	}
}

// WithMaterials sets the material table uploaded at creation.
func WithMaterials(materials []Material) OrchestratorBuilderOption {
	return func(o *orchestrator) {
		o.materials = append([]Material(nil), materials...)
	}
}

// WithOverlay registers a hook recorded at the end of the composite render pass.
func WithOverlay(hook OverlayHook) OrchestratorBuilderOption {
	return func(o *orchestrator) {
		o.overlay = hook
	}
}
