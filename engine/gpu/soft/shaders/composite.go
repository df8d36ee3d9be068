package shaders

import (
	"encoding/binary"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine/gpu/soft"
	"github.com/Carmen-Shannon/oxy-rt/engine/pass"
	"github.com/chewxy/math32"
)

// Background is the colour of pixels no primary ray hit.
var Background = [4]float32{0.05, 0.05, 0.08, 1}

// compositeFragment shades the G-buffer with ambient light plus a point light whose diffuse and
// Schlick specular terms are scaled by visibility, then tone maps.
func compositeFragment(inv *soft.Invocation) {
	x, y := int(inv.ID[0]), int(inv.ID[1])
	out := Background
	if stencilOf(inv.Load(pass.SetPass, pass.CompositeBindingDepth, x, y)) != 0 {
		out = shade(inv, frameUniforms(inv), x, y)
	}
	if push := inv.PushConstants(); len(push) >= 4 && binary.LittleEndian.Uint32(push) == 1 {
		out[0], out[2] = out[2], out[0]
	}
	inv.Output(0, out)
}

func shade(inv *soft.Invocation, u *pass.GPUFrameUniforms, x, y int) [4]float32 {
	albedo := inv.Load(pass.SetPass, pass.CompositeBindingAlbedo, x, y)
	f0r := inv.Load(pass.SetPass, pass.CompositeBindingF0Roughness, x, y)
	n := xyz(inv.Load(pass.SetPass, pass.CompositeBindingNormal, x, y))
	p := xyz(inv.Load(pass.SetPass, pass.CompositeBindingPosition, x, y))
	visibility := inv.Load(pass.SetPass, pass.CompositeBindingShadow, x, y)[0]

	base := xyz(albedo)
	metallic, roughness := albedo[3], f0r[3]
	f0 := xyz(f0r)
	f90 := float32(1)

	toLight := common.Sub3(xyz(u.LightPosition), p)
	dist2 := math32.Max(common.Dot3(toLight, toLight), 1e-4)
	l := common.Scale3(toLight, 1/math32.Sqrt(dist2))
	v := common.Normalize3(common.Sub3(xyz(u.CameraPosition), p))
	h := common.Normalize3(common.Add3(l, v))
	nDotL := math32.Max(0, common.Dot3(n, l))
	nDotH := math32.Max(0, common.Dot3(n, h))
	vDotH := math32.Max(0, common.Dot3(v, h))

	radiance := common.Scale3(xyz(u.LightColor), u.LightColor[3]/dist2)
	fresnel := math32.Pow(1-vDotH, 5)
	shininess := 2/(roughness*roughness*roughness*roughness+1e-4) - 2
	specular := (shininess + 8) / (8 * math32.Pi) * math32.Pow(nDotH, shininess)

	var out [4]float32
	for c := 0; c < 3; c++ {
		f := f0[c] + (f90-f0[c])*fresnel
		diffuse := base[c] * (1 - metallic) / math32.Pi
		direct := (diffuse + f*specular) * radiance[c] * nDotL * visibility
		col := u.Ambient[c]*base[c] + direct
		out[c] = col / (1 + col)
	}
	out[3] = 1
	return out
}
