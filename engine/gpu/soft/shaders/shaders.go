// Package shaders implements the frame's shader programs as kernels for the soft device, so the
// full pass sequence can run headless.
package shaders

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine/gpu"
	"github.com/Carmen-Shannon/oxy-rt/engine/gpu/soft"
	"github.com/Carmen-Shannon/oxy-rt/engine/pass"
	"github.com/chewxy/math32"
)

// Ray distances shared by every kernel.
const (
	// surfaceBias offsets shadow ray origins along the normal.
	surfaceBias = 1e-3
	// farDistance bounds primary rays.
	farDistance = 1e4
)

var kernels = map[string]soft.Kernel{
	pass.ShaderFullscreenVertex:        func(*soft.Invocation) {},
	pass.ShaderGBufferFragment:         gbufferFragment,
	pass.ShaderGBufferRayQueryFragment: gbufferRayQueryFragment,
	pass.ShaderShadowRaygen:            shadowRaygen,
	pass.ShaderShadowMiss:              shadowMiss,
	pass.ShaderShadowClosestHit:        shadowClosestHit,
	pass.ShaderTemporal:                temporalAccumulate,
	pass.ShaderSpatial:                 spatialDenoise,
	pass.ShaderCompositeFragment:       compositeFragment,
}

// Register installs every kernel on dev.
func Register(dev *soft.Device) {
	for name, k := range kernels {
		dev.RegisterKernel(name, k)
	}
}

// Provider returns a pass.ShaderProvider that hands out soft shader modules for the registered
// kernels.
func Provider() pass.ShaderProvider {
	return pass.ShaderProviderFunc(func(stage gpu.ShaderStage, name string) (gpu.ShaderModule, error) {
		if _, ok := kernels[name]; !ok {
			return gpu.ShaderModule{}, fmt.Errorf("no soft kernel named %q", name)
		}
		return soft.ShaderModule(stage, name), nil
	})
}

// frameUniforms decodes the frame block once per draw, dispatch or trace.
func frameUniforms(inv *soft.Invocation) *pass.GPUFrameUniforms {
	return inv.Once("frame", func() any {
		u, err := pass.UnmarshalFrameUniforms(inv.Buffer(pass.SetFrame, pass.BindingFrameUniforms))
		if err != nil {
			return &pass.GPUFrameUniforms{}
		}
		return &u
	}).(*pass.GPUFrameUniforms)
}

func xyz(v [4]float32) common.Vec3 { return common.Vec3{v[0], v[1], v[2]} }

// primaryRay returns the world-space ray through the centre of pixel (x, y). NDC y points up.
func primaryRay(u *pass.GPUFrameUniforms, x, y uint32) (origin, dir common.Vec3) {
	nx := (float32(x)+0.5)/float32(u.Extent[0])*2 - 1
	ny := 1 - (float32(y)+0.5)/float32(u.Extent[1])*2
	target := common.TransformPoint(u.InverseProjection, common.Vec3{nx, ny, 1})
	dir = common.Normalize3(common.TransformVector(u.InverseView, target))
	return xyz(u.CameraPosition), dir
}

// shadowRay returns the ray from a surface point towards the light. ok is false when the surface
// faces away from the light and receives no direct light.
func shadowRay(u *pass.GPUFrameUniforms, position, normal common.Vec3) (origin, dir common.Vec3, tMax float32, ok bool) {
	toLight := common.Sub3(xyz(u.LightPosition), position)
	dist := common.Length3(toLight)
	if dist <= surfaceBias {
		return origin, dir, 0, false
	}
	dir = common.Scale3(toLight, 1/dist)
	if common.Dot3(normal, dir) <= 0 {
		return origin, dir, 0, false
	}
	origin = common.Add3(position, common.Scale3(normal, surfaceBias))
	return origin, dir, dist - surfaceBias, true
}

// queryVisibility resolves a surface point's shadow with an inline ray query.
func queryVisibility(inv *soft.Invocation, u *pass.GPUFrameUniforms, tlas soft.TopLevel, position, normal common.Vec3) float32 {
	origin, dir, tMax, ok := shadowRay(u, position, normal)
	if !ok {
		return 0
	}
	flags := soft.RayFlagOpaque | soft.RayFlagTerminateOnFirstHit | soft.RayFlagSkipClosestHitShader
	if inv.RayQuery(tlas, flags, 0xff, origin, 0, dir, tMax).Hit {
		return 0
	}
	return 1
}

// stencilOf extracts the stencil value from a D32S8 texel.
func stencilOf(depthTexel [4]float32) uint32 {
	return uint32(depthTexel[1] + 0.5)
}

func clamp01(v float32) float32 {
	return math32.Max(0, math32.Min(1, v))
}

func lerp(a, b, t float32) float32 { return a + (b-a)*t }
