package shaders

import (
	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine/gpu/soft"
	"github.com/Carmen-Shannon/oxy-rt/engine/pass"
	"github.com/chewxy/math32"
)

// Temporal accumulation limits. The blend factor never drops below minAlpha so moving shadows
// converge within a few frames.
const (
	MaxHistory = 32
	minAlpha   = 0.1
)

// Spatial filter parameters.
const (
	maxRadius       = 4
	normalPower     = 8
	planeFalloff    = 10
	penumbraMipBase = pass.DownsampleMips - 1
)

// poissonDisc holds unit-disc offsets of the spatial filter taps.
var poissonDisc = [...][2]float32{
	{-0.613, 0.617}, {0.170, -0.040}, {-0.299, -0.792}, {0.645, 0.493},
	{-0.651, -0.118}, {0.421, -0.753}, {0.018, 0.949}, {0.897, -0.223},
}

// reproject returns the pixel a world position covered last frame. The instance's previous
// object-to-world transform carries object motion; camera motion comes from the previous
// view-projection.
func reproject(inv *soft.Invocation, u *pass.GPUFrameUniforms, position common.Vec3, stencil uint32) (px, py int, ok bool) {
	prev := position
	if data, found := pass.InstanceAt(inv.Buffer(pass.SetFrame, pass.BindingInstances), int(stencil)-1); found {
		prev = common.TransformPoint(data.PrevObjectToWorld, common.TransformPoint(data.WorldToObject, position))
	}
	clip := common.TransformPoint(u.PrevViewProjection, prev)
	if clip[0] < -1 || clip[0] > 1 || clip[1] < -1 || clip[1] > 1 {
		return 0, 0, false
	}
	px = int((clip[0] + 1) / 2 * float32(u.Extent[0]))
	py = int((1 - clip[1]) / 2 * float32(u.Extent[1]))
	return px, py, true
}

// temporalAccumulate blends the current visibility into the reprojected history. History texels
// hold (visibility, accumulated frames, stencil tag); a tag mismatch marks a disocclusion.
func temporalAccumulate(inv *soft.Invocation) {
	u := frameUniforms(inv)
	if inv.ID[0] >= u.Extent[0] || inv.ID[1] >= u.Extent[1] {
		return
	}
	x, y := int(inv.ID[0]), int(inv.ID[1])
	current := inv.LoadMip(pass.SetPass, pass.TemporalBindingCurrent, 0, x, y)[0]
	stencil := stencilOf(inv.Load(pass.SetPass, pass.TemporalBindingDepth, x, y))
	tag := float32(stencil)
	if stencil == 0 {
		inv.Store(pass.SetPass, pass.TemporalBindingOutput, x, y, [4]float32{current, 1, 0, 0})
		return
	}

	position := xyz(inv.Load(pass.SetPass, pass.TemporalBindingPosition, x, y))
	value, count := current, float32(1)
	if px, py, ok := reproject(inv, u, position, stencil); ok {
		h := inv.Load(pass.SetPass, pass.TemporalBindingHistory, px, py)
		if h[1] >= 1 && h[2] == tag {
			count = math32.Min(h[1]+1, MaxHistory)
			value = lerp(h[0], current, math32.Max(1/count, minAlpha))
		}
	}
	inv.Store(pass.SetPass, pass.TemporalBindingOutput, x, y, [4]float32{value, count, tag, 0})
}

// spatialDenoise filters the accumulated visibility over a Poisson disc whose radius grows with
// the penumbra estimated from the coarsest visibility mip. Taps are weighted by normal agreement
// and distance from the pixel's tangent plane.
func spatialDenoise(inv *soft.Invocation) {
	u := frameUniforms(inv)
	if inv.ID[0] >= u.Extent[0] || inv.ID[1] >= u.Extent[1] {
		return
	}
	x, y := int(inv.ID[0]), int(inv.ID[1])
	center := inv.Load(pass.SetPass, pass.SpatialBindingAccumulated, x, y)[0]
	if stencilOf(inv.Load(pass.SetPass, pass.SpatialBindingDepth, x, y)) == 0 {
		inv.Store(pass.SetPass, pass.SpatialBindingOutput, x, y, [4]float32{center, 0, 0, 0})
		return
	}

	coarse := inv.LoadMip(pass.SetPass, pass.SpatialBindingChain, penumbraMipBase, x>>penumbraMipBase, y>>penumbraMipBase)[0]
	penumbra := clamp01(4 * coarse * (1 - coarse))
	if penumbra == 0 {
		inv.Store(pass.SetPass, pass.SpatialBindingOutput, x, y, [4]float32{center, 0, 0, 0})
		return
	}
	radius := 1 + penumbra*(maxRadius-1)

	normal := xyz(inv.Load(pass.SetPass, pass.SpatialBindingNormal, x, y))
	position := xyz(inv.Load(pass.SetPass, pass.SpatialBindingPosition, x, y))
	sum, weights := center, float32(1)
	for _, o := range poissonDisc {
		tx := x + int(math32.Round(o[0]*radius))
		ty := y + int(math32.Round(o[1]*radius))
		if tx < 0 || ty < 0 || tx >= int(u.Extent[0]) || ty >= int(u.Extent[1]) {
			continue
		}
		if stencilOf(inv.Load(pass.SetPass, pass.SpatialBindingDepth, tx, ty)) == 0 {
			continue
		}
		tn := xyz(inv.Load(pass.SetPass, pass.SpatialBindingNormal, tx, ty))
		tp := xyz(inv.Load(pass.SetPass, pass.SpatialBindingPosition, tx, ty))
		w := math32.Pow(math32.Max(0, common.Dot3(normal, tn)), normalPower)
		w /= 1 + planeFalloff*math32.Abs(common.Dot3(normal, common.Sub3(tp, position)))
		if w <= 0 {
			continue
		}
		sum += w * inv.Load(pass.SetPass, pass.SpatialBindingAccumulated, tx, ty)[0]
		weights += w
	}
	inv.Store(pass.SetPass, pass.SpatialBindingOutput, x, y, [4]float32{sum / weights, 0, 0, 0})
}
