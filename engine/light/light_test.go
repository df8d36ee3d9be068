package light

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine/config"
	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
)

func TestNewLightDefaults(t *testing.T) {
	l := NewLight()
	assert.Equal(t, common.Vec3{0, 10, 0}, l.Position())
	assert.Equal(t, common.Vec3{1, 1, 1}, l.Color())
	assert.Equal(t, float32(1), l.Intensity())
	assert.True(t, l.Enabled())
}

func TestWithConfig(t *testing.T) {
	cfg := config.Default().Light
	l := NewLight(WithConfig(cfg))
	f := l.Frame()
	assert.Equal(t, common.Vec3(cfg.Position), f.Position)
	assert.Equal(t, common.Vec3(cfg.Ambient), f.Ambient)
	assert.Equal(t, cfg.Intensity, f.Intensity)
}

func TestDisabledLightKeepsAmbient(t *testing.T) {
	l := NewLight(WithIntensity(3), WithAmbient(0.1, 0.2, 0.3))
	l.SetEnabled(false)
	f := l.Frame()
	assert.Zero(t, f.Intensity)
	assert.Equal(t, common.Vec3{0.1, 0.2, 0.3}, f.Ambient)
	assert.Equal(t, float32(3), l.Intensity())
}

func TestAdvanceOrbitsAroundY(t *testing.T) {
	l := NewLight(WithPosition(2, 5, 0), WithOrbitSpeed(math32.Pi/2))
	l.Advance(1)
	p := l.Position()
	assert.InDelta(t, 0, p[0], 1e-5)
	assert.InDelta(t, 5, p[1], 1e-6)
	assert.InDelta(t, -2, p[2], 1e-5)

	still := NewLight(WithPosition(1, 1, 1))
	still.Advance(10)
	assert.Equal(t, common.Vec3{1, 1, 1}, still.Position())
}
