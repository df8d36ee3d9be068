package light

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine/pass"
	"github.com/chewxy/math32"
)

// lightImpl is the implementation of the Light interface.
type lightImpl struct {
	mu *sync.RWMutex

	position   common.Vec3
	color      common.Vec3
	intensity  float32
	ambient    common.Vec3
	orbitSpeed float32 // radians per second around the +y axis
	enabled    bool
}

// Light defines the interface for the single point light that the shadow passes trace toward.
//
// Shadow rays run from each G-buffer position to Position; the composite pass scales Color by
// Intensity where the ray is unoccluded and adds Ambient everywhere.
type Light interface {
	// Position returns the world-space position of the light.
	//
	// Returns:
	//   - common.Vec3: position as (x, y, z)
	Position() common.Vec3

	// Color returns the RGB color of the light.
	//
	// Returns:
	//   - common.Vec3: color as (r, g, b)
	Color() common.Vec3

	// Intensity returns the scalar intensity multiplier for the light.
	//
	// Returns:
	//   - float32: the intensity value
	Intensity() float32

	// Ambient returns the unshadowed ambient term.
	//
	// Returns:
	//   - common.Vec3: ambient as (r, g, b)
	Ambient() common.Vec3

	// Enabled reports whether the light contributes direct lighting.
	//
	// Returns:
	//   - bool: true if the light is active
	Enabled() bool

	// SetPosition sets the world-space position of the light.
	//
	// Parameters:
	//   - p: the new position
	SetPosition(p common.Vec3)

	// SetEnabled turns direct lighting on or off. The ambient term is unaffected.
	//
	// Parameters:
	//   - enabled: true to enable the light
	SetEnabled(enabled bool)

	// Advance rotates the light around the +y axis by the orbit speed times dt.
	// A light without an orbit speed does not move.
	//
	// Parameters:
	//   - dt: elapsed seconds
	Advance(dt float32)

	// Frame returns the light state consumed by the pass orchestrator.
	//
	// Returns:
	//   - pass.Light: the light for this frame
	Frame() pass.Light
}

var _ Light = &lightImpl{}

// NewLight creates a white point light of unit intensity above the origin and applies the
// given options.
//
// Parameters:
//   - opts: variadic list of LightBuilderOption functions to configure the light
//
// Returns:
//   - Light: the configured light
func NewLight(opts ...LightBuilderOption) Light {
	l := &lightImpl{
		mu:        &sync.RWMutex{},
		position:  common.Vec3{0, 10, 0},
		color:     common.Vec3{1, 1, 1},
		intensity: 1,
		enabled:   true,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *lightImpl) Position() common.Vec3 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.position
}

func (l *lightImpl) Color() common.Vec3 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.color
}

func (l *lightImpl) Intensity() float32 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.intensity
}

func (l *lightImpl) Ambient() common.Vec3 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.ambient
}

func (l *lightImpl) Enabled() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.enabled
}

func (l *lightImpl) SetPosition(p common.Vec3) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.position = p
}

func (l *lightImpl) SetEnabled(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = enabled
}

func (l *lightImpl) Advance(dt float32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.orbitSpeed == 0 {
		return
	}
	s, c := math32.Sincos(l.orbitSpeed * dt)
	x, z := l.position[0], l.position[2]
	l.position[0] = c*x + s*z
	l.position[2] = -s*x + c*z
}

func (l *lightImpl) Frame() pass.Light {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := pass.Light{
		Position:  l.position,
		Color:     l.color,
		Intensity: l.intensity,
		Ambient:   l.ambient,
	}
	if !l.enabled {
		out.Intensity = 0
	}
	return out
}
