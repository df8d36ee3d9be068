package scene

import (
	"github.com/Carmen-Shannon/oxy-rt/engine/config"
	"github.com/Carmen-Shannon/oxy-rt/engine/gpu"
)

// SceneBuilderOption is a functional option for configuring a Scene.
// Use the With* functions to create options.
type SceneBuilderOption func(s *scene)

// WithName overrides the scene identifier, which defaults to the model name.
//
// Parameters:
//   - name: the scene name, also the label prefix of its GPU objects
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithName(name string) SceneBuilderOption {
	return func(s *scene) {
		s.name = name
	}
}

// WithBuildFlags sets the acceleration-structure build flags. Without
// BuildAccelerationStructureAllowUpdate every RefreshTopLevel performs a full build.
//
// Parameters:
//   - flags: the build flags
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithBuildFlags(flags gpu.BuildAccelerationStructureFlags) SceneBuilderOption {
	return func(s *scene) {
		s.buildFlags = flags
	}
}

// WithInstanceFlags sets the geometry flags of every TLAS instance.
func WithInstanceFlags(flags gpu.GeometryInstanceFlags) SceneBuilderOption {
	return func(s *scene) {
		s.instanceFlags = flags
	}
}

// WithAnimation selects the clip to play by name. The first clip plays when the name is empty
// or unknown.
func WithAnimation(name string) SceneBuilderOption {
	return func(s *scene) {
		s.animationName = name
	}
}

// WithAnimationSpeed scales playback time.
func WithAnimationSpeed(speed float32) SceneBuilderOption {
	return func(s *scene) {
		s.speed = speed
	}
}

// WithAnimationEnabled starts the animation playing or paused.
func WithAnimationEnabled(enabled bool) SceneBuilderOption {
	return func(s *scene) {
		s.animate = enabled
	}
}

// WithConfig applies the acceleration-structure and animation settings of cfg.
//
// Parameters:
//   - cfg: the configuration
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithConfig(cfg config.Config) SceneBuilderOption {
	return func(s *scene) {
		s.buildFlags = cfg.BuildFlags()
		s.instanceFlags = cfg.InstanceFlags()
		s.animate = cfg.Animation.Enabled
		s.speed = float32(cfg.Animation.Speed)
	}
}
