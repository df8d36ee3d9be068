// Package model holds scene content as an arena: meshes, nodes, materials and animation clips
// owned by one Model and referenced by integer id.
package model

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine/pass"
)

// model is the implementation of the Model interface.
type model struct {
	name       string
	meshes     []Mesh
	nodes      []Node
	materials  []pass.Material
	animations []*AnimationClip
}

// Model defines the interface for the scene arena.
// A Model exclusively owns its meshes, nodes, materials and animation clips; every reference
// between them is an id into the owning Model, so no entity outlives or aliases another.
type Model interface {
	// Name retrieves the model identifier.
	//
	// Returns:
	//   - string: the model name
	Name() string

	// AddMaterial appends a material.
	//
	// Parameters:
	//   - m: the material
	//
	// Returns:
	//   - MaterialID: the id of the new material
	AddMaterial(m pass.Material) MaterialID

	// AddMesh validates and appends a mesh. The mesh must have at least one index, every index
	// must address a position, optional attribute arrays must match the position count and its
	// material must already exist.
	//
	// Parameters:
	//   - m: the mesh
	//
	// Returns:
	//   - MeshID: the id of the new mesh
	//   - error: the validation failure
	AddMesh(m Mesh) (MeshID, error)

	// AddNode appends a node. Its mesh and parent must already exist.
	//
	// Parameters:
	//   - n: the node
	//
	// Returns:
	//   - NodeID: the id of the new node
	//   - error: the validation failure
	AddNode(n Node) (NodeID, error)

	// AddAnimation appends an animation clip whose channels target existing nodes.
	//
	// Parameters:
	//   - clip: the clip
	//
	// Returns:
	//   - error: the validation failure
	AddAnimation(clip *AnimationClip) error

	// Mesh returns the mesh with the given id.
	Mesh(id MeshID) (*Mesh, bool)

	// Node returns the node with the given id.
	Node(id NodeID) (*Node, bool)

	// Meshes returns every mesh in id order.
	Meshes() []Mesh

	// Nodes returns every node in id order.
	Nodes() []Node

	// Materials returns every material in id order.
	Materials() []pass.Material

	// Animations retrieves all animation clips bundled with this model.
	//
	// Returns:
	//   - []*AnimationClip: the animation clips
	Animations() []*AnimationClip

	// GetAnimationIndex returns the index of an animation by name, or -1 if not found.
	//
	// Parameters:
	//   - name: the animation clip name to search for
	//
	// Returns:
	//   - int: the animation index, or -1 if not found
	GetAnimationIndex(name string) int

	// Instances returns the nodes carrying a mesh in id order. Position i in this list is
	// TLAS instance i.
	//
	// Returns:
	//   - []NodeID: the instance nodes
	Instances() []NodeID

	// BindPose returns every node's local bind-pose transform.
	//
	// Returns:
	//   - []Transform: local transforms indexed by NodeID
	BindPose() []Transform

	// WorldTransforms resolves local transforms through the hierarchy.
	//
	// Parameters:
	//   - locals: one local transform per node, typically from BindPose or an animation sample
	//
	// Returns:
	//   - []common.Mat4: world transforms indexed by NodeID
	WorldTransforms(locals []Transform) []common.Mat4
}

var _ Model = &model{}

// NewModel creates a new Model instance with the specified options applied.
//
// Parameters:
//   - options: a variadic list of ModelBuilderOption functions to configure the Model
//
// Returns:
//   - Model: a new instance of Model configured with the provided options
func NewModel(options ...ModelBuilderOption) Model {
	m := &model{}
	for _, opt := range options {
		opt(m)
	}
	return m
}

func (m *model) Name() string {
	return m.name
}

func (m *model) AddMaterial(mat pass.Material) MaterialID {
	m.materials = append(m.materials, mat)
	return MaterialID(len(m.materials) - 1)
}

func (m *model) AddMesh(mesh Mesh) (MeshID, error) {
	if err := m.validateMesh(&mesh); err != nil {
		return NoMesh, fmt.Errorf("mesh %q: %w", mesh.Name, err)
	}
	m.meshes = append(m.meshes, mesh)
	return MeshID(len(m.meshes) - 1), nil
}

func (m *model) validateMesh(mesh *Mesh) error {
	if mesh.Indices16 != nil && mesh.Indices32 != nil {
		return fmt.Errorf("both 16-bit and 32-bit indices set")
	}
	if mesh.IndexCount() == 0 {
		return fmt.Errorf("no indices")
	}
	n := len(mesh.Positions)
	for name, count := range map[string]int{"normals": len(mesh.Normals), "uvs": len(mesh.UVs), "tangents": len(mesh.Tangents)} {
		if count != 0 && count != n {
			return fmt.Errorf("%d %s for %d positions", count, name, n)
		}
	}
	for i, idx := range mesh.Indices() {
		if int(idx) >= n {
			return fmt.Errorf("index %d at %d out of range for %d positions", idx, i, n)
		}
	}
	if mesh.Material < 0 || int(mesh.Material) >= len(m.materials) {
		return fmt.Errorf("material %d does not exist", mesh.Material)
	}
	return nil
}

func (m *model) AddNode(n Node) (NodeID, error) {
	if n.Mesh != NoMesh && (n.Mesh < 0 || int(n.Mesh) >= len(m.meshes)) {
		return NoParent, fmt.Errorf("node %q: mesh %d does not exist", n.Name, n.Mesh)
	}
	if n.Parent != NoParent && (n.Parent < 0 || int(n.Parent) >= len(m.nodes)) {
		return NoParent, fmt.Errorf("node %q: parent %d does not exist", n.Name, n.Parent)
	}
	if n.Local == (Transform{}) {
		n.Local = IdentityTransform()
	}
	m.nodes = append(m.nodes, n)
	return NodeID(len(m.nodes) - 1), nil
}

func (m *model) AddAnimation(clip *AnimationClip) error {
	if clip.Duration <= 0 {
		return fmt.Errorf("animation %q: duration must be positive", clip.Name)
	}
	for _, ch := range clip.Channels {
		if ch.Node < 0 || int(ch.Node) >= len(m.nodes) {
			return fmt.Errorf("animation %q: node %d does not exist", clip.Name, ch.Node)
		}
	}
	m.animations = append(m.animations, clip)
	return nil
}

func (m *model) Mesh(id MeshID) (*Mesh, bool) {
	if id < 0 || int(id) >= len(m.meshes) {
		return nil, false
	}
	return &m.meshes[id], true
}

func (m *model) Node(id NodeID) (*Node, bool) {
	if id < 0 || int(id) >= len(m.nodes) {
		return nil, false
	}
	return &m.nodes[id], true
}

func (m *model) Meshes() []Mesh               { return m.meshes }
func (m *model) Nodes() []Node                { return m.nodes }
func (m *model) Materials() []pass.Material   { return m.materials }
func (m *model) Animations() []*AnimationClip { return m.animations }

func (m *model) GetAnimationIndex(name string) int {
	for i, anim := range m.animations {
		if anim.Name == name {
			return i
		}
	}
	return -1
}

func (m *model) Instances() []NodeID {
	var out []NodeID
	for i, n := range m.nodes {
		if n.Mesh != NoMesh {
			out = append(out, NodeID(i))
		}
	}
	return out
}

func (m *model) BindPose() []Transform {
	out := make([]Transform, len(m.nodes))
	for i, n := range m.nodes {
		out[i] = n.Local
	}
	return out
}

func (m *model) WorldTransforms(locals []Transform) []common.Mat4 {
	out := make([]common.Mat4, len(m.nodes))
	for i, n := range m.nodes {
		local := n.Local
		if i < len(locals) {
			local = locals[i]
		}
		out[i] = local.Matrix()
		if n.Parent != NoParent {
			out[i] = common.Mul4(out[n.Parent], out[i])
		}
	}
	return out
}
