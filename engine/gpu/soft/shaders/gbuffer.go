package shaders

import (
	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine/gpu/soft"
	"github.com/Carmen-Shannon/oxy-rt/engine/pass"
)

// maxStencil is the largest instance tag the 8-bit stencil can carry.
const maxStencil = 255

// surface is what the primary ray found at a pixel.
type surface struct {
	position common.Vec3
	normal   common.Vec3
	instance uint32
	material pass.GPUMaterial
	depth    float32
}

// castPrimary traces the pixel's primary ray and shades the surface record. ok is false on
// background pixels.
func castPrimary(inv *soft.Invocation, u *pass.GPUFrameUniforms) (s surface, ok bool) {
	origin, dir := primaryRay(u, inv.ID[0], inv.ID[1])
	tlas := inv.TopLevel(pass.SetFrame, pass.BindingTopLevel)
	h := inv.RayQuery(tlas, soft.RayFlagOpaque, 0xff, origin, 0, dir, farDistance)
	if !h.Hit {
		return s, false
	}
	s.position = common.Add3(origin, common.Scale3(dir, h.T))
	s.normal = h.Normal
	s.instance = h.InstanceIndex

	matIndex := 0
	if data, ok := pass.InstanceAt(inv.Buffer(pass.SetFrame, pass.BindingInstances), int(h.InstanceIndex)); ok {
		matIndex = int(data.Material)
	}
	materials := inv.Buffer(pass.SetFrame, pass.BindingMaterials)
	if m, ok := pass.MaterialAt(materials, matIndex); ok {
		s.material = m
	} else if m, ok := pass.MaterialAt(materials, 0); ok {
		s.material = m
	}

	clip := common.TransformPoint(u.ViewProjection, s.position)
	s.depth = clamp01(clip[2])
	return s, true
}

func writeSurface(inv *soft.Invocation, s surface) {
	p, n := s.position, s.normal
	inv.Output(pass.AttachmentAlbedo, s.material.Albedo)
	inv.Output(pass.AttachmentNormal, [4]float32{n[0], n[1], n[2], 1})
	inv.Output(pass.AttachmentPosition, [4]float32{p[0], p[1], p[2], 1})
	inv.Output(pass.AttachmentF0Roughness, s.material.F0)
	stencil := s.instance + 1
	if stencil > maxStencil {
		stencil = maxStencil
	}
	inv.DepthStencil(s.depth, stencil)
}

// gbufferFragment fills the G-buffer from one primary ray per pixel. Background pixels keep the
// cleared values and stencil 0.
func gbufferFragment(inv *soft.Invocation) {
	u := frameUniforms(inv)
	s, ok := castPrimary(inv, u)
	if !ok {
		return
	}
	writeSurface(inv, s)
}

// gbufferRayQueryFragment also resolves the surface's shadow into the visibility attachment.
func gbufferRayQueryFragment(inv *soft.Invocation) {
	u := frameUniforms(inv)
	s, ok := castPrimary(inv, u)
	if !ok {
		return
	}
	writeSurface(inv, s)
	tlas := inv.TopLevel(pass.SetFrame, pass.BindingTopLevel)
	v := queryVisibility(inv, u, tlas, s.position, s.normal)
	inv.Output(pass.AttachmentVisibility, [4]float32{v, v, v, 1})
}
