package pass

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine/gpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func translation(x, y, z float32) common.Mat4 {
	m := common.Identity4()
	m[12], m[13], m[14] = x, y, z
	return m
}

func TestFrameUniformsLayout(t *testing.T) {
	g := GPUFrameUniforms{
		View:           translation(1, 2, 3),
		CameraPosition: [4]float32{4, 5, 6, 1},
		LightColor:     [4]float32{1, 0.5, 0.25, 2},
		Extent:         [2]uint32{640, 360},
		FrameIndex:     7,
		PingPong:       1,
	}
	b := g.Marshal()
	require.Len(t, b, FrameUniformsSize)

	back, err := UnmarshalFrameUniforms(b)
	require.NoError(t, err)
	assert.Equal(t, g, back)

	_, err = UnmarshalFrameUniforms(b[:FrameUniformsSize-1])
	assert.Error(t, err)
}

func TestInstanceAtBounds(t *testing.T) {
	buf := packInstances([]InstanceData{
		{Material: 1, Model: 0, Transform: translation(1, 0, 0)},
		{Material: 2, Model: 3, Transform: translation(0, 2, 0), PrevTransform: translation(0, 1, 0)},
	})
	require.Len(t, buf, 2*InstanceDataSize)

	second, ok := InstanceAt(buf, 1)
	require.True(t, ok)
	assert.Equal(t, uint32(2), second.Material)
	assert.Equal(t, uint32(3), second.Model)
	assert.Equal(t, translation(0, 1, 0), second.PrevObjectToWorld)
	assert.Equal(t, translation(0, -2, 0), second.WorldToObject)

	_, ok = InstanceAt(buf, 2)
	assert.False(t, ok)
	_, ok = InstanceAt(buf, -1)
	assert.False(t, ok)
}

func TestPackInstancesZeroPreviousMeansUnchanged(t *testing.T) {
	cur := translation(3, 0, 0)
	first, ok := InstanceAt(packInstances([]InstanceData{{Transform: cur}}), 0)
	require.True(t, ok)
	assert.Equal(t, cur, first.PrevObjectToWorld)
}

func TestPackInstancesSingularTransform(t *testing.T) {
	inst, ok := InstanceAt(packInstances([]InstanceData{{Transform: common.Mat4{}, PrevTransform: common.Identity4()}}), 0)
	require.True(t, ok)
	assert.Equal(t, common.Identity4(), inst.WorldToObject)
}

func TestPackMaterials(t *testing.T) {
	buf := packMaterials([]Material{DefaultMaterial(), {Albedo: common.Vec3{1, 0, 0}, Metallic: 1, Roughness: 0.25, Reflectivity: 0.9, F90: 1}})
	require.Len(t, buf, 2*MaterialSize)

	red, ok := MaterialAt(buf, 1)
	require.True(t, ok)
	assert.Equal(t, [4]float32{1, 0, 0, 1}, red.Albedo)
	assert.Equal(t, float32(0.25), red.F0[3])
	assert.Equal(t, [4]float32{0.9, 1, 0, 0}, red.Params)

	_, ok = MaterialAt(buf, 2)
	assert.False(t, ok)
}

func TestUniformsPreviousViewProjectionFallback(t *testing.T) {
	d := FrameData{
		Camera: Camera{View: translation(0, 0, -5), Projection: common.Identity4(), Position: common.Vec3{0, 0, 5}},
		Light:  Light{Position: common.Vec3{1, 2, 3}, Color: common.Vec3{1, 1, 1}, Intensity: 3},
	}
	u := d.uniforms(gpu.Extent2D{Width: 8, Height: 4}, 5, 1)
	assert.Equal(t, u.ViewProjection, u.PrevViewProjection)
	assert.Equal(t, [4]float32{1, 2, 3, 1}, u.LightPosition)
	assert.Equal(t, float32(3), u.LightColor[3])
	assert.Equal(t, [2]uint32{8, 4}, u.Extent)
	assert.Equal(t, uint32(5), u.FrameIndex)
	assert.Equal(t, uint32(1), u.PingPong)
	assert.Equal(t, translation(0, 0, 5), u.InverseView)

	d.PrevViewProjection = translation(1, 0, 0)
	u = d.uniforms(gpu.Extent2D{Width: 8, Height: 4}, 6, 0)
	assert.Equal(t, translation(1, 0, 0), u.PrevViewProjection)
}

func TestWriteIndexAlternates(t *testing.T) {
	for i := uint64(0); i < 6; i++ {
		assert.Equal(t, int(i%2), WriteIndex(i))
		assert.NotEqual(t, WriteIndex(i), WriteIndex(i+1))
	}
}
