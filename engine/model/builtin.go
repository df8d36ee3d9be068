package model

import (
	"fmt"
	"sort"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine/pass"
	"github.com/chewxy/math32"
)

// Built-in scene names accepted by Builtin.
const (
	SceneTriangle = "triangle"
	SceneShadows  = "shadows"
	SceneCubes    = "cubes"
)

var builtins = map[string]func() (Model, error){
	SceneTriangle: triangleScene,
	SceneShadows:  shadowsScene,
	SceneCubes:    cubesScene,
}

// BuiltinNames returns the names of the built-in scenes in sorted order.
func BuiltinNames() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Builtin creates one of the procedural scenes used by the CLI and the examples.
//
// Parameters:
//   - name: one of BuiltinNames
//
// Returns:
//   - Model: the scene
//   - error: an error if the name is unknown
func Builtin(name string) (Model, error) {
	build, ok := builtins[name]
	if !ok {
		return nil, fmt.Errorf("unknown scene %q (have %v)", name, BuiltinNames())
	}
	return build()
}

// Triangle is a single counter-clockwise triangle in the z=0 plane facing +z.
func Triangle(material MaterialID) Mesh {
	n := common.Vec3{0, 0, 1}
	return Mesh{
		Name:      "triangle",
		Positions: []common.Vec3{{-1, -1, 0}, {1, -1, 0}, {0, 1, 0}},
		Normals:   []common.Vec3{n, n, n},
		UVs:       [][2]float32{{0, 1}, {1, 1}, {0.5, 0}},
		Indices16: []uint16{0, 1, 2},
		Material:  material,
	}
}

// Quad is a square of half extent half in the y=0 plane facing +y.
func Quad(name string, half float32, material MaterialID) Mesh {
	up := common.Vec3{0, 1, 0}
	return Mesh{
		Name:      name,
		Positions: []common.Vec3{{-half, 0, -half}, {half, 0, -half}, {half, 0, half}, {-half, 0, half}},
		Normals:   []common.Vec3{up, up, up, up},
		UVs:       [][2]float32{{0, 0}, {1, 0}, {1, 1}, {0, 1}},
		Indices16: []uint16{0, 2, 1, 0, 3, 2},
		Material:  material,
	}
}

// Box is a unit cube centred on the origin with per-face normals.
func Box(name string, material MaterialID) Mesh {
	type face struct {
		positions [4]common.Vec3
		normal    common.Vec3
	}
	faces := []face{
		{[4]common.Vec3{{0.5, -0.5, -0.5}, {0.5, 0.5, -0.5}, {0.5, 0.5, 0.5}, {0.5, -0.5, 0.5}}, common.Vec3{1, 0, 0}},
		{[4]common.Vec3{{-0.5, -0.5, 0.5}, {-0.5, 0.5, 0.5}, {-0.5, 0.5, -0.5}, {-0.5, -0.5, -0.5}}, common.Vec3{-1, 0, 0}},
		{[4]common.Vec3{{-0.5, 0.5, -0.5}, {-0.5, 0.5, 0.5}, {0.5, 0.5, 0.5}, {0.5, 0.5, -0.5}}, common.Vec3{0, 1, 0}},
		{[4]common.Vec3{{-0.5, -0.5, 0.5}, {-0.5, -0.5, -0.5}, {0.5, -0.5, -0.5}, {0.5, -0.5, 0.5}}, common.Vec3{0, -1, 0}},
		{[4]common.Vec3{{-0.5, -0.5, 0.5}, {0.5, -0.5, 0.5}, {0.5, 0.5, 0.5}, {-0.5, 0.5, 0.5}}, common.Vec3{0, 0, 1}},
		{[4]common.Vec3{{0.5, -0.5, -0.5}, {-0.5, -0.5, -0.5}, {-0.5, 0.5, -0.5}, {0.5, 0.5, -0.5}}, common.Vec3{0, 0, -1}},
	}
	m := Mesh{Name: name, Material: material}
	for fi, f := range faces {
		for _, p := range f.positions {
			m.Positions = append(m.Positions, p)
			m.Normals = append(m.Normals, f.normal)
		}
		base := uint16(fi * 4)
		m.Indices16 = append(m.Indices16, base, base+1, base+2, base, base+2, base+3)
	}
	return m
}

var (
	matGround = pass.DefaultMaterial()
	matRed    = pass.Material{Albedo: common.Vec3{0.8, 0.15, 0.1}, F0: common.Vec3{0.04, 0.04, 0.04}, Roughness: 0.5, Reflectivity: 0.04, F90: 1}
	matMetal  = pass.Material{Albedo: common.Vec3{0.9, 0.8, 0.5}, Metallic: 1, F0: common.Vec3{0.9, 0.8, 0.5}, Roughness: 0.3, Reflectivity: 0.9, F90: 1}
)

func triangleScene() (Model, error) {
	m := NewModel(WithName(SceneTriangle), WithMaterials(matGround))
	mesh, err := m.AddMesh(Triangle(0))
	if err != nil {
		return nil, err
	}
	if _, err := m.AddNode(Node{Name: "triangle", Mesh: mesh, Parent: NoParent}); err != nil {
		return nil, err
	}
	return m, nil
}

// shadowsScene is a ground plane with a static pillar and a box orbiting it on a pivot node.
func shadowsScene() (Model, error) {
	m := NewModel(WithName(SceneShadows), WithMaterials(matGround, matRed, matMetal))
	ground, err := m.AddMesh(Quad("ground", 10, 0))
	if err != nil {
		return nil, err
	}
	box, err := m.AddMesh(Box("box", 1))
	if err != nil {
		return nil, err
	}
	pillar, err := m.AddMesh(Box("pillar", 2))
	if err != nil {
		return nil, err
	}

	nodes := []Node{
		{Name: "ground", Mesh: ground, Parent: NoParent},
		{Name: "pillar", Mesh: pillar, Parent: NoParent, Local: Transform{
			Translation: common.Vec3{0, 1.5, 0}, Rotation: common.QuatIdentity(), Scale: common.Vec3{1, 3, 1},
		}},
		{Name: "pivot", Mesh: NoMesh, Parent: NoParent},
		{Name: "orbiter", Mesh: box, Parent: 2, Local: Transform{
			Translation: common.Vec3{3, 2, 0}, Rotation: common.QuatIdentity(), Scale: common.Vec3{1, 1, 1},
		}},
	}
	for _, n := range nodes {
		if _, err := m.AddNode(n); err != nil {
			return nil, err
		}
	}

	const duration = 8
	up := common.Vec3{0, 1, 0}
	var keys []QuaternionKeyframe
	for i := 0; i <= 4; i++ {
		t := float32(i) * duration / 4
		keys = append(keys, QuaternionKeyframe{Time: t, Value: common.QuatFromAxisAngle(up, float32(i)*math32.Pi/2)})
	}
	err = m.AddAnimation(&AnimationClip{
		Name:     "orbit",
		Duration: duration,
		Channels: []AnimationChannel{{Node: 2, RotationKeys: keys}},
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// cubesScene is a ground plane under a 4x4 grid of cubes bobbing out of phase.
func cubesScene() (Model, error) {
	const (
		side     = 4
		spacing  = 2.5
		duration = 2
	)
	m := NewModel(WithName(SceneCubes), WithMaterials(matGround, matRed, matMetal))
	ground, err := m.AddMesh(Quad("ground", 12, 0))
	if err != nil {
		return nil, err
	}
	cube, err := m.AddMesh(Box("cube", 1))
	if err != nil {
		return nil, err
	}
	shiny, err := m.AddMesh(Box("cube.metal", 2))
	if err != nil {
		return nil, err
	}
	if _, err := m.AddNode(Node{Name: "ground", Mesh: ground, Parent: NoParent}); err != nil {
		return nil, err
	}

	clip := &AnimationClip{Name: "bob", Duration: duration}
	for i := 0; i < side*side; i++ {
		x := (float32(i%side) - (side-1)/2.0) * spacing
		z := (float32(i/side) - (side-1)/2.0) * spacing
		mesh := cube
		if (i+i/side)%2 == 1 {
			mesh = shiny
		}
		id, err := m.AddNode(Node{Name: fmt.Sprintf("cube.%02d", i), Mesh: mesh, Parent: NoParent, Local: Transform{
			Translation: common.Vec3{x, 1, z}, Rotation: common.QuatIdentity(), Scale: common.Vec3{1, 1, 1},
		}})
		if err != nil {
			return nil, err
		}
		phase := float32(i) / (side * side) * 2 * math32.Pi
		var keys []VectorKeyframe
		for k := 0; k <= 8; k++ {
			t := float32(k) * duration / 8
			y := 1 + 0.5*(1+math32.Sin(phase+2*math32.Pi*t/duration))
			keys = append(keys, VectorKeyframe{Time: t, Value: common.Vec3{x, y, z}})
		}
		clip.Channels = append(clip.Channels, AnimationChannel{Node: id, PositionKeys: keys})
	}
	if err := m.AddAnimation(clip); err != nil {
		return nil, err
	}
	return m, nil
}
