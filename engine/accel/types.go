package accel

import (
	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine/gpu"
)

// DefaultVertexStride is the byte size of Vertex.
const DefaultVertexStride = 32

// DefaultInstanceMask makes instances visible to every cull mask.
const DefaultInstanceMask = 0xFF

// Vertex is the interleaved layout of geometry buffers. Acceleration-structure builds read the
// leading position as R32G32B32_SFLOAT.
type Vertex struct {
	Position common.Vec3
	Normal   common.Vec3
	UV       [2]float32
}

// ModelInfo describes the geometry of one mesh for a bottom-level build.
type ModelInfo struct {
	VertexBuffer   gpu.Buffer
	IndexBuffer    gpu.Buffer
	PrimitiveCount uint32
	VertexCount    uint32
	VertexStride   uint64
}

// Instance places one mesh in the top-level structure.
type Instance struct {
	// ModelIndex selects the bottom-level structure.
	ModelIndex uint32
	// InstanceID is written to the 24-bit custom index.
	InstanceID uint32
	// HitGroup is the shader-binding-table record offset.
	HitGroup  uint32
	Mask      uint8
	Flags     gpu.GeometryInstanceFlags
	Transform common.Mat4
}

// SceneDescription is the per-instance shading record: the world transform and the transpose of
// its inverse for normals.
type SceneDescription struct {
	ModelIndex  uint32
	Transform   common.Mat4
	TransformIT common.Mat4
}

// Stats counts the builds issued by a Wrapper.
type Stats struct {
	BottomLevelBuilds int
	TopLevelBuilds    int
	TopLevelUpdates   int
}

// PrimitiveCount returns the number of triangles addressed by indexCount indices, counting a
// trailing partial triangle.
func PrimitiveCount(indexCount int) uint32 {
	if indexCount <= 0 {
		return 0
	}
	return uint32((indexCount + 2) / 3)
}
