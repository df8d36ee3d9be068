package model

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine/pass"
	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddMeshValidates(t *testing.T) {
	m := NewModel(WithMaterials(pass.DefaultMaterial()))

	_, err := m.AddMesh(Mesh{Name: "empty", Positions: []common.Vec3{{}}})
	assert.ErrorContains(t, err, "no indices")

	_, err = m.AddMesh(Mesh{Name: "oob", Positions: []common.Vec3{{}}, Indices32: []uint32{0, 0, 1}})
	assert.ErrorContains(t, err, "out of range")

	_, err = m.AddMesh(Mesh{Name: "both", Positions: []common.Vec3{{}}, Indices16: []uint16{0}, Indices32: []uint32{0}})
	assert.Error(t, err)

	_, err = m.AddMesh(Mesh{Name: "normals", Positions: []common.Vec3{{}, {}}, Normals: []common.Vec3{{}}, Indices16: []uint16{0, 1, 0}})
	assert.ErrorContains(t, err, "normals")

	bad := Triangle(3)
	_, err = m.AddMesh(bad)
	assert.ErrorContains(t, err, "material 3")

	id, err := m.AddMesh(Triangle(0))
	require.NoError(t, err)
	assert.Equal(t, MeshID(0), id)
	assert.Len(t, m.Meshes(), 1)
}

func TestIndicesWiden(t *testing.T) {
	mesh := Quad("q", 1, 0)
	assert.Equal(t, []uint32{0, 2, 1, 0, 3, 2}, mesh.Indices())
	assert.Equal(t, 6, mesh.IndexCount())

	v := mesh.Vertices()
	require.Len(t, v, 4)
	assert.Equal(t, common.Vec3{0, 1, 0}, v[2].Normal)
	assert.Equal(t, [2]float32{1, 1}, v[2].UV)

	b := mesh.Bounds()
	assert.Equal(t, common.Vec3{-1, 0, -1}, b.Min)
	assert.Equal(t, common.Vec3{1, 0, 1}, b.Max)
}

func TestAddNodeChecksReferences(t *testing.T) {
	m := NewModel(WithMaterials(pass.DefaultMaterial()))
	_, err := m.AddNode(Node{Name: "a", Mesh: 0, Parent: NoParent})
	assert.ErrorContains(t, err, "mesh 0")
	_, err = m.AddNode(Node{Name: "b", Mesh: NoMesh, Parent: 4})
	assert.ErrorContains(t, err, "parent 4")

	root, err := m.AddNode(Node{Name: "root", Mesh: NoMesh, Parent: NoParent})
	require.NoError(t, err)
	n, ok := m.Node(root)
	require.True(t, ok)
	assert.Equal(t, IdentityTransform(), n.Local)
	_, ok = m.Node(7)
	assert.False(t, ok)
}

func TestWorldTransformsComposeParents(t *testing.T) {
	m := NewModel(WithMaterials(pass.DefaultMaterial()))
	mesh, err := m.AddMesh(Triangle(0))
	require.NoError(t, err)
	parent, err := m.AddNode(Node{Name: "parent", Mesh: NoMesh, Parent: NoParent, Local: Transform{
		Translation: common.Vec3{1, 0, 0}, Rotation: common.QuatIdentity(), Scale: common.Vec3{2, 2, 2},
	}})
	require.NoError(t, err)
	_, err = m.AddNode(Node{Name: "child", Mesh: mesh, Parent: parent, Local: Transform{
		Translation: common.Vec3{0, 1, 0}, Rotation: common.QuatIdentity(), Scale: common.Vec3{1, 1, 1},
	}})
	require.NoError(t, err)

	assert.Equal(t, []NodeID{1}, m.Instances())
	world := m.WorldTransforms(m.BindPose())
	p := common.TransformPoint(world[1], common.Vec3{})
	assert.InDelta(t, 1, p[0], 1e-6)
	assert.InDelta(t, 2, p[1], 1e-6)
}

func TestAnimationWrapsAtDuration(t *testing.T) {
	clip := &AnimationClip{Name: "slide", Duration: 2, Channels: []AnimationChannel{{
		Node: 0,
		PositionKeys: []VectorKeyframe{
			{Time: 0, Value: common.Vec3{0, 0, 0}},
			{Time: 2, Value: common.Vec3{4, 0, 0}},
		},
	}}}
	pose := []Transform{IdentityTransform()}

	assert.InDelta(t, 2, clip.Sample(pose, 1)[0].Translation[0], 1e-5)
	assert.InDelta(t, 1, clip.Sample(pose, 2.5)[0].Translation[0], 1e-5)
	assert.InDelta(t, 3, clip.Sample(pose, -0.5)[0].Translation[0], 1e-5)
	assert.Equal(t, IdentityTransform(), pose[0])

	a := NewAnimationInstance(clip)
	a.Advance(1.5)
	a.Advance(1.5)
	assert.InDelta(t, 1, a.Time(), 1e-5)
	a.SetPaused(true)
	a.Advance(0.5)
	assert.InDelta(t, 1, a.Time(), 1e-5)
	a.SetPaused(false)
	a.SetSpeed(2)
	a.Advance(0.25)
	assert.InDelta(t, 1.5, a.Time(), 1e-5)
	a.Seek(5)
	assert.InDelta(t, 1, a.Time(), 1e-5)
}

func TestRotationKeysSlerp(t *testing.T) {
	up := common.Vec3{0, 1, 0}
	clip := &AnimationClip{Name: "spin", Duration: 1, Channels: []AnimationChannel{{
		Node: 0,
		RotationKeys: []QuaternionKeyframe{
			{Time: 0, Value: common.QuatIdentity()},
			{Time: 1, Value: common.QuatFromAxisAngle(up, math32.Pi/2)},
		},
	}}}
	got := clip.Sample([]Transform{IdentityTransform()}, 0.5)[0].Rotation
	want := common.QuatFromAxisAngle(up, math32.Pi/4)
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-5)
	}
}

func TestAddAnimationRejectsUnknownNode(t *testing.T) {
	m := NewModel()
	assert.Error(t, m.AddAnimation(&AnimationClip{Name: "x", Duration: 1, Channels: []AnimationChannel{{Node: 0}}}))
	assert.Error(t, m.AddAnimation(&AnimationClip{Name: "y"}))
}

func TestBuiltinScenes(t *testing.T) {
	assert.Equal(t, []string{SceneCubes, SceneShadows, SceneTriangle}, BuiltinNames())
	for _, name := range BuiltinNames() {
		m, err := Builtin(name)
		require.NoError(t, err, name)
		assert.Equal(t, name, m.Name())
		assert.NotEmpty(t, m.Instances(), name)
		for _, id := range m.Instances() {
			n, _ := m.Node(id)
			mesh, ok := m.Mesh(n.Mesh)
			require.True(t, ok)
			assert.Less(t, int(mesh.Material), len(m.Materials()))
		}
	}
	_, err := Builtin("nope")
	assert.ErrorContains(t, err, "unknown scene")

	m, err := Builtin(SceneShadows)
	require.NoError(t, err)
	require.Equal(t, 0, m.GetAnimationIndex("orbit"))
	a := NewAnimationInstance(m.Animations()[0])
	a.Seek(2)
	world := m.WorldTransforms(a.Pose(m))
	p := common.TransformPoint(world[3], common.Vec3{})
	// A quarter turn about +y carries (3, 2, 0) to (0, 2, -3).
	assert.InDelta(t, 0, p[0], 1e-4)
	assert.InDelta(t, 2, p[1], 1e-4)
	assert.InDelta(t, -3, p[2], 1e-4)
}
