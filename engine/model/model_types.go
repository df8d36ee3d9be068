package model

import (
	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine/accel"
)

// MeshID, NodeID and MaterialID index into the arrays owned by a Model.
type (
	MeshID     int
	NodeID     int
	MaterialID int
)

// NoMesh marks a node without geometry; NoParent marks a root node.
const (
	NoMesh   MeshID = -1
	NoParent NodeID = -1
)

// --- Transform & Node Types ---

// Transform represents a decomposed transform for animation interpolation.
type Transform struct {
	// Translation is the position offset.
	Translation common.Vec3

	// Rotation is the orientation as a quaternion (x, y, z, w).
	Rotation common.Vec4

	// Scale is the scale factor along each axis.
	Scale common.Vec3
}

// IdentityTransform returns the transform with no translation, rotation or scaling.
func IdentityTransform() Transform {
	return Transform{Rotation: common.QuatIdentity(), Scale: common.Vec3{1, 1, 1}}
}

// Matrix composes translation * rotation * scale.
func (t Transform) Matrix() common.Mat4 {
	return common.ComposeTRS(t.Translation, t.Rotation, t.Scale)
}

// Node is one entry of the scene hierarchy. A node with a mesh contributes one ray-tracing
// instance.
type Node struct {
	// Name is the node identifier (for debugging and animation targeting).
	Name string

	// Mesh is the geometry drawn at this node, or NoMesh.
	Mesh MeshID

	// Parent is the parent node, or NoParent. Parents always precede their children.
	Parent NodeID

	// Local is the bind-pose transform relative to the parent.
	Local Transform
}

// Mesh is the static geometry of one drawable. Exactly one of Indices16 and Indices32 is set.
type Mesh struct {
	Name      string
	Positions []common.Vec3
	// Normals, UVs and Tangents are optional; when present they match Positions in length.
	Normals   []common.Vec3
	UVs       [][2]float32
	Tangents  []common.Vec4
	Indices16 []uint16
	Indices32 []uint32
	Material  MaterialID
}

// IndexCount returns the number of indices of whichever width the mesh carries.
func (m *Mesh) IndexCount() int {
	if m.Indices32 != nil {
		return len(m.Indices32)
	}
	return len(m.Indices16)
}

// Indices returns the index list widened to 32 bits.
func (m *Mesh) Indices() []uint32 {
	if m.Indices32 != nil {
		return m.Indices32
	}
	out := make([]uint32, len(m.Indices16))
	for i, idx := range m.Indices16 {
		out[i] = uint32(idx)
	}
	return out
}

// Vertices interleaves the attribute arrays into the layout geometry buffers upload.
func (m *Mesh) Vertices() []accel.Vertex {
	out := make([]accel.Vertex, len(m.Positions))
	for i, p := range m.Positions {
		out[i].Position = p
		if i < len(m.Normals) {
			out[i].Normal = m.Normals[i]
		}
		if i < len(m.UVs) {
			out[i].UV = m.UVs[i]
		}
	}
	return out
}

// Bounds returns the object-space bounding box of the mesh.
func (m *Mesh) Bounds() common.AABB {
	b := common.EmptyAABB()
	for _, p := range m.Positions {
		b = b.Extend(p)
	}
	return b
}

// --- Animation Types ---

// AnimationClip represents a single named animation over scene nodes.
type AnimationClip struct {
	// Name is the animation identifier.
	Name string

	// Duration is the total length of the animation in seconds. Playback time wraps at it.
	Duration float32

	// Channels contains animation data for each animated node.
	Channels []AnimationChannel
}

// AnimationChannel contains keyframe data for a single node. Components without keys keep the
// node's bind-pose value.
type AnimationChannel struct {
	// Node is the node this channel animates.
	Node NodeID

	// PositionKeys are keyframes for translation.
	PositionKeys []VectorKeyframe

	// RotationKeys are keyframes for rotation (quaternion).
	RotationKeys []QuaternionKeyframe

	// ScaleKeys are keyframes for scale.
	ScaleKeys []VectorKeyframe
}

// VectorKeyframe stores a 3D vector value at a specific time.
type VectorKeyframe struct {
	// Time is the keyframe timestamp in seconds.
	Time float32

	// Value is the 3D vector value at this keyframe.
	Value common.Vec3
}

// QuaternionKeyframe stores a quaternion rotation at a specific time.
type QuaternionKeyframe struct {
	// Time is the keyframe timestamp in seconds.
	Time float32

	// Value is the quaternion value at this keyframe (x, y, z, w).
	Value common.Vec4
}
