package pass

import "github.com/Carmen-Shannon/oxy-rt/engine/gpu"

// Names of the shaders the orchestrator requests from its ShaderProvider.
const (
	ShaderFullscreenVertex        = "fullscreen.vert"
	ShaderGBufferFragment         = "gbuffer.frag"
	ShaderGBufferRayQueryFragment = "gbuffer_rayquery.frag"
	ShaderShadowRaygen            = "shadow.rgen"
	ShaderShadowMiss              = "shadow.rmiss"
	ShaderShadowClosestHit        = "shadow.rchit"
	ShaderTemporal                = "temporal.comp"
	ShaderSpatial                 = "spatial.comp"
	ShaderCompositeFragment       = "composite.frag"
)

// ShaderProvider supplies precompiled shader blobs by name.
type ShaderProvider interface {
	// Shader returns the module for a named shader.
	//
	// Parameters:
	//   - stage: the stage the module is used for
	//   - name: one of the Shader* names
	//
	// Returns:
	//   - gpu.ShaderModule: the module
	//   - error: if the provider has no such shader
	Shader(stage gpu.ShaderStage, name string) (gpu.ShaderModule, error)
}

// ShaderProviderFunc adapts a function to ShaderProvider.
type ShaderProviderFunc func(stage gpu.ShaderStage, name string) (gpu.ShaderModule, error)

func (f ShaderProviderFunc) Shader(stage gpu.ShaderStage, name string) (gpu.ShaderModule, error) {
	return f(stage, name)
}

// shaderStages resolves a list of (stage, name) pairs.
func shaderStages(p ShaderProvider, pairs ...stageName) ([]gpu.ShaderModule, error) {
	out := make([]gpu.ShaderModule, 0, len(pairs))
	for _, s := range pairs {
		m, err := p.Shader(s.stage, s.name)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

type stageName struct {
	stage gpu.ShaderStage
	name  string
}
