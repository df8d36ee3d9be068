package light

import (
	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine/config"
)

// LightBuilderOption is a function that configures a Light instance during construction.
type LightBuilderOption func(*lightImpl)

// WithPosition is an option builder that sets the world-space position of the light.
//
// Parameters:
//   - x: the x position component
//   - y: the y position component
//   - z: the z position component
//
// Returns:
//   - LightBuilderOption: a function that applies the position option to a lightImpl
func WithPosition(x, y, z float32) LightBuilderOption {
	return func(l *lightImpl) {
		l.position = common.Vec3{x, y, z}
	}
}

// WithColor is an option builder that sets the RGB color of the light.
//
// Parameters:
//   - r: the red color component
//   - g: the green color component
//   - b: the blue color component
//
// Returns:
//   - LightBuilderOption: a function that applies the color option to a lightImpl
func WithColor(r, g, b float32) LightBuilderOption {
	return func(l *lightImpl) {
		l.color = common.Vec3{r, g, b}
	}
}

// WithIntensity is an option builder that sets the scalar intensity multiplier.
func WithIntensity(intensity float32) LightBuilderOption {
	return func(l *lightImpl) {
		l.intensity = intensity
	}
}

// WithAmbient is an option builder that sets the ambient term added to every surface.
func WithAmbient(r, g, b float32) LightBuilderOption {
	return func(l *lightImpl) {
		l.ambient = common.Vec3{r, g, b}
	}
}

// WithOrbitSpeed makes Advance rotate the light around the +y axis.
//
// Parameters:
//   - radiansPerSecond: angular speed, positive is counter-clockwise seen from above
//
// Returns:
//   - LightBuilderOption: a function that applies the orbit option to a lightImpl
func WithOrbitSpeed(radiansPerSecond float32) LightBuilderOption {
	return func(l *lightImpl) {
		l.orbitSpeed = radiansPerSecond
	}
}

// WithEnabled is an option builder that sets whether the light is active for rendering.
func WithEnabled(enabled bool) LightBuilderOption {
	return func(l *lightImpl) {
		l.enabled = enabled
	}
}

// WithConfig applies the [light] section of a run configuration.
//
// Parameters:
//   - cfg: the light configuration
//
// Returns:
//   - LightBuilderOption: a function that applies every configured value
func WithConfig(cfg config.LightConfig) LightBuilderOption {
	return func(l *lightImpl) {
		l.position = cfg.Position
		l.color = cfg.Color
		l.intensity = cfg.Intensity
		l.ambient = cfg.Ambient
	}
}
