package shaders

import (
	"github.com/Carmen-Shannon/oxy-rt/engine/gpu/soft"
	"github.com/Carmen-Shannon/oxy-rt/engine/pass"
)

// shadowRaygen traces one shadow ray per G-buffer pixel. Background pixels are fully lit.
func shadowRaygen(inv *soft.Invocation) {
	x, y := int(inv.ID[0]), int(inv.ID[1])
	if stencilOf(inv.Load(pass.SetPass, pass.ShadowBindingDepth, x, y)) == 0 {
		inv.Store(pass.SetPass, pass.ShadowBindingOutput, x, y, [4]float32{1, 1, 1, 1})
		return
	}
	u := frameUniforms(inv)
	position := xyz(inv.Load(pass.SetPass, pass.ShadowBindingPosition, x, y))
	normal := xyz(inv.Load(pass.SetPass, pass.ShadowBindingNormal, x, y))

	visibility := new(float32)
	if origin, dir, tMax, ok := shadowRay(u, position, normal); ok {
		tlas := inv.TopLevel(pass.SetFrame, pass.BindingTopLevel)
		inv.TraceRay(tlas, soft.RayFlagOpaque|soft.RayFlagTerminateOnFirstHit, 0xff, 0, 1, 0, origin, 0, dir, tMax, visibility)
	}
	v := *visibility
	inv.Store(pass.SetPass, pass.ShadowBindingOutput, x, y, [4]float32{v, v, v, 1})
}

func shadowMiss(inv *soft.Invocation) {
	if p, ok := inv.Payload().(*float32); ok {
		*p = 1
	}
}

func shadowClosestHit(inv *soft.Invocation) {
	if p, ok := inv.Payload().(*float32); ok {
		*p = 0
	}
}
