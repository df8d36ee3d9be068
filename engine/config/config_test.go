package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Carmen-Shannon/oxy-rt/engine/gpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
workers = 2

[swapchain]
length = 4
acquire_order = "scrambled"

[render]
mode = "raytrace"
denoise = false
`))
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Swapchain.Length)
	assert.Equal(t, AcquireScrambled, cfg.Swapchain.AcquireOrder)
	assert.Equal(t, RenderModeRayTrace, cfg.Render.Mode)
	assert.False(t, cfg.Render.Denoise)
	assert.Equal(t, 2, cfg.WorkerCount())
	assert.Equal(t, Default().Window, cfg.Window)
}

func TestParseRejectsBadValues(t *testing.T) {
	for name, doc := range map[string]string{
		"short swapchain":  "[swapchain]\nlength = 1",
		"long swapchain":   "[swapchain]\nlength = 5",
		"unknown mode":     "[render]\nmode = \"raster\"",
		"numeric warning":  "[validation]\nsuppress = [\"-602362517\"]",
		"unknown key":      "frobnicate = true",
		"negative extents": "[window]\nwidth = -1",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadRoundTrip(t *testing.T) {
	want := Default().With(WithExtent(320, 200), WithRenderMode(RenderModeRayTrace))
	data, err := want.Marshal()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "oxy.toml")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestWithDoesNotAliasSuppressList(t *testing.T) {
	base := Default()
	derived := base.With(WithSuppressedWarnings(gpu.WarningPerformanceWaitIdle))
	assert.Equal(t, []string{"small-dedicated-allocation"}, base.Validation.Suppress)
	assert.Equal(t, []string{"wait-idle"}, derived.Validation.Suppress)
}

func TestWarningFilter(t *testing.T) {
	allow := Default().WarningFilter()
	assert.False(t, allow(gpu.WarningBestPracticesSmallDedicatedAllocation))
	assert.True(t, allow(gpu.WarningPerformanceWaitIdle))
	assert.True(t, allow(gpu.WarningUncategorized))
}

func TestFlags(t *testing.T) {
	cfg := Default()
	assert.Equal(t, gpu.BuildAccelerationStructurePreferFastTrace|gpu.BuildAccelerationStructureAllowUpdate, cfg.BuildFlags())
	assert.Equal(t, gpu.GeometryInstanceTriangleFacingCullDisable, cfg.InstanceFlags())
	cfg.Accel.CullDisable = false
	assert.Zero(t, cfg.InstanceFlags())
}
