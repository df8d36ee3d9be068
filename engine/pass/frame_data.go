package pass

import (
	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine/gpu"
)

// Light is a point light.
type Light struct {
	Position  common.Vec3
	Color     common.Vec3
	Intensity float32
	// Ambient is added to every lit surface regardless of shadowing.
	Ambient common.Vec3
}

// Camera is the view state of one frame.
type Camera struct {
	View       common.Mat4
	Projection common.Mat4
	Position   common.Vec3
}

// ViewProjection returns Projection * View.
func (c Camera) ViewProjection() common.Mat4 {
	return common.Mul4(c.Projection, c.View)
}

// Material describes the surface of a mesh.
type Material struct {
	Albedo       common.Vec3
	Metallic     float32
	F0           common.Vec3
	Roughness    float32
	Reflectivity float32
	F90          float32
}

// InstanceData is the shading state of one TLAS instance.
type InstanceData struct {
	Material      uint32
	Model         uint32
	Transform     common.Mat4
	// PrevTransform is last frame's object-to-world transform. The zero matrix means unchanged.
	PrevTransform common.Mat4
}

// FrameData is everything a frame's passes read besides the G-buffer they produce.
type FrameData struct {
	// TopLevel is the refreshed TLAS; it may change between frames after a rebuild.
	TopLevel gpu.AccelerationStructure

	Camera Camera
	// PrevViewProjection is last frame's view-projection. The zero matrix means the camera is
	// static, as on frame 0.
	PrevViewProjection common.Mat4
	Light              Light

	// Instances is indexed by TLAS instance position.
	Instances []InstanceData
}

func (d *FrameData) uniforms(extent gpu.Extent2D, frameIndex uint64, pingPong int) GPUFrameUniforms {
	invView, _ := common.Invert4(d.Camera.View)
	invProj, _ := common.Invert4(d.Camera.Projection)
	p, l := d.Camera.Position, d.Light
	prevVP := d.PrevViewProjection
	if prevVP == (common.Mat4{}) {
		prevVP = d.Camera.ViewProjection()
	}
	return GPUFrameUniforms{
		View:               d.Camera.View,
		Projection:         d.Camera.Projection,
		InverseView:        invView,
		InverseProjection:  invProj,
		ViewProjection:     d.Camera.ViewProjection(),
		PrevViewProjection: prevVP,
		CameraPosition:     [4]float32{p[0], p[1], p[2], 1},
		LightPosition:      [4]float32{l.Position[0], l.Position[1], l.Position[2], 1},
		LightColor:         [4]float32{l.Color[0], l.Color[1], l.Color[2], l.Intensity},
		Ambient:            [4]float32{l.Ambient[0], l.Ambient[1], l.Ambient[2], 0},
		Extent:             [2]uint32{extent.Width, extent.Height},
		FrameIndex:         uint32(frameIndex),
		PingPong:           uint32(pingPong),
	}
}

func packInstances(instances []InstanceData) []byte {
	buf := make([]byte, len(instances)*InstanceDataSize)
	for i, inst := range instances {
		inv, ok := common.Invert4(inst.Transform)
		if !ok {
			inv = common.Identity4()
		}
		prev := inst.PrevTransform
		if prev == (common.Mat4{}) {
			prev = inst.Transform
		}
		g := GPUInstanceData{WorldToObject: inv, PrevObjectToWorld: prev, Material: inst.Material, Model: inst.Model}
		g.put(buf[i*InstanceDataSize:])
	}
	return buf
}

func packMaterials(materials []Material) []byte {
	buf := make([]byte, 0, len(materials)*MaterialSize)
	for _, m := range materials {
		g := GPUMaterial{
			Albedo: [4]float32{m.Albedo[0], m.Albedo[1], m.Albedo[2], m.Metallic},
			F0:     [4]float32{m.F0[0], m.F0[1], m.F0[2], m.Roughness},
			Params: [4]float32{m.Reflectivity, m.F90, 0, 0},
		}
		buf = append(buf, g.Marshal()...)
	}
	return buf
}
