package pass

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/Carmen-Shannon/oxy-rt/common"
)

// Byte sizes of the shader-visible records. Uniform slots are placed on UniformAlignment.
const (
	FrameUniformsSize = 464
	InstanceDataSize  = 144
	MaterialSize      = 48
	UniformAlignment  = 256
)

// GPUFrameUniforms is the per-frame uniform block shared by every pass.
// Layout (little endian, 464 bytes):
//
//	0   View, Projection, InverseView, InverseProjection, ViewProjection, PrevViewProjection (6 x mat4)
//	384 CameraPosition vec4
//	400 LightPosition vec4
//	416 LightColor vec4 (rgb, intensity)
//	432 Ambient vec4
//	448 Extent uvec2, FrameIndex uint, PingPong uint
type GPUFrameUniforms struct {
	View               common.Mat4
	Projection         common.Mat4
	InverseView        common.Mat4
	InverseProjection  common.Mat4
	ViewProjection     common.Mat4
	PrevViewProjection common.Mat4
	CameraPosition     [4]float32
	LightPosition      [4]float32
	LightColor         [4]float32
	Ambient            [4]float32
	Extent             [2]uint32
	FrameIndex         uint32
	PingPong           uint32
}

// Marshal serializes the block for upload.
//
// Returns:
//   - []byte: FrameUniformsSize bytes
func (g *GPUFrameUniforms) Marshal() []byte {
	buf := make([]byte, FrameUniformsSize)
	o := 0
	for _, m := range []*common.Mat4{&g.View, &g.Projection, &g.InverseView, &g.InverseProjection, &g.ViewProjection, &g.PrevViewProjection} {
		o = putFloats(buf, o, m[:])
	}
	for _, v := range []*[4]float32{&g.CameraPosition, &g.LightPosition, &g.LightColor, &g.Ambient} {
		o = putFloats(buf, o, v[:])
	}
	binary.LittleEndian.PutUint32(buf[o:], g.Extent[0])
	binary.LittleEndian.PutUint32(buf[o+4:], g.Extent[1])
	binary.LittleEndian.PutUint32(buf[o+8:], g.FrameIndex)
	binary.LittleEndian.PutUint32(buf[o+12:], g.PingPong)
	return buf
}

// UnmarshalFrameUniforms decodes a block written by Marshal.
//
// Parameters:
//   - b: at least FrameUniformsSize bytes
//
// Returns:
//   - GPUFrameUniforms: the decoded block
//   - error: if b is too short
func UnmarshalFrameUniforms(b []byte) (GPUFrameUniforms, error) {
	var g GPUFrameUniforms
	if len(b) < FrameUniformsSize {
		return g, fmt.Errorf("frame uniforms need %d bytes, got %d", FrameUniformsSize, len(b))
	}
	o := 0
	for _, m := range []*common.Mat4{&g.View, &g.Projection, &g.InverseView, &g.InverseProjection, &g.ViewProjection, &g.PrevViewProjection} {
		o = getFloats(b, o, m[:])
	}
	for _, v := range []*[4]float32{&g.CameraPosition, &g.LightPosition, &g.LightColor, &g.Ambient} {
		o = getFloats(b, o, v[:])
	}
	g.Extent[0] = binary.LittleEndian.Uint32(b[o:])
	g.Extent[1] = binary.LittleEndian.Uint32(b[o+4:])
	g.FrameIndex = binary.LittleEndian.Uint32(b[o+8:])
	g.PingPong = binary.LittleEndian.Uint32(b[o+12:])
	return g, nil
}

// GPUInstanceData is the per-instance shading record, indexed by TLAS instance position.
// Layout: WorldToObject mat4, PrevObjectToWorld mat4, Material uint, Model uint, 8 bytes padding.
type GPUInstanceData struct {
	WorldToObject     common.Mat4
	PrevObjectToWorld common.Mat4
	Material          uint32
	Model             uint32
}

// Marshal serializes the record.
//
// Returns:
//   - []byte: InstanceDataSize bytes
func (g *GPUInstanceData) Marshal() []byte {
	buf := make([]byte, InstanceDataSize)
	g.put(buf)
	return buf
}

func (g *GPUInstanceData) put(buf []byte) {
	o := putFloats(buf, 0, g.WorldToObject[:])
	o = putFloats(buf, o, g.PrevObjectToWorld[:])
	binary.LittleEndian.PutUint32(buf[o:], g.Material)
	binary.LittleEndian.PutUint32(buf[o+4:], g.Model)
}

// InstanceAt decodes record i of a packed instance array.
//
// Returns:
//   - GPUInstanceData: the record
//   - bool: false when i is outside b
func InstanceAt(b []byte, i int) (GPUInstanceData, bool) {
	var g GPUInstanceData
	off := i * InstanceDataSize
	if i < 0 || off+InstanceDataSize > len(b) {
		return g, false
	}
	r := b[off:]
	o := getFloats(r, 0, g.WorldToObject[:])
	o = getFloats(r, o, g.PrevObjectToWorld[:])
	g.Material = binary.LittleEndian.Uint32(r[o:])
	g.Model = binary.LittleEndian.Uint32(r[o+4:])
	return g, true
}

// GPUMaterial is the shading record of one material.
// Layout: Albedo vec4 (rgb, metallic), F0 vec4 (rgb, roughness), Params vec4 (reflectivity, F90).
type GPUMaterial struct {
	Albedo [4]float32
	F0     [4]float32
	Params [4]float32
}

// Marshal serializes the record.
//
// Returns:
//   - []byte: MaterialSize bytes
func (g *GPUMaterial) Marshal() []byte {
	buf := make([]byte, MaterialSize)
	o := putFloats(buf, 0, g.Albedo[:])
	o = putFloats(buf, o, g.F0[:])
	putFloats(buf, o, g.Params[:])
	return buf
}

// MaterialAt decodes record i of a packed material array.
//
// Returns:
//   - GPUMaterial: the record
//   - bool: false when i is outside b
func MaterialAt(b []byte, i int) (GPUMaterial, bool) {
	var g GPUMaterial
	off := i * MaterialSize
	if i < 0 || off+MaterialSize > len(b) {
		return g, false
	}
	r := b[off:]
	o := getFloats(r, 0, g.Albedo[:])
	o = getFloats(r, o, g.F0[:])
	getFloats(r, o, g.Params[:])
	return g, true
}

func putFloats(buf []byte, o int, v []float32) int {
	for _, f := range v {
		binary.LittleEndian.PutUint32(buf[o:], math.Float32bits(f))
		o += 4
	}
	return o
}

func getFloats(buf []byte, o int, v []float32) int {
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[o:]))
		o += 4
	}
	return o
}
