package scene

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine/accel"
	"github.com/Carmen-Shannon/oxy-rt/engine/gpu"
	"github.com/Carmen-Shannon/oxy-rt/engine/log"
	"github.com/Carmen-Shannon/oxy-rt/engine/model"
	"github.com/Carmen-Shannon/oxy-rt/engine/pass"
)

var logger = log.New("scene")

// Scene binds a model.Model to the GPU: it owns one GeometryBuffer per mesh and the
// acceleration-structure wrapper holding one BLAS per instance node, drives the model's
// animation and keeps the previous frame's instance transforms for temporal reprojection.
// Thread-safe for concurrent access.
type Scene interface {
	// Name returns the scene's identifier.
	Name() string

	// Model returns the arena the scene renders.
	Model() model.Model

	// Load uploads every mesh, describes one instance per mesh node and builds the BLAS set
	// and the first TLAS. cmd must be a load-time command buffer not used by any frame slot.
	//
	// Parameters:
	//   - device: the device to allocate on
	//   - queue: the queue used for the blocking uploads and builds
	//   - cmd: the load-time command buffer
	//
	// Returns:
	//   - error: the first failure; partially created geometry is released
	Load(device gpu.Device, queue gpu.Queue, cmd gpu.CommandBuffer) error

	// Loaded reports whether Load succeeded and Destroy has not run.
	Loaded() bool

	// Wrapper returns the acceleration-structure wrapper.
	Wrapper() accel.Wrapper

	// Geometry returns the per-mesh geometry buffers, indexed by model.MeshID.
	Geometry() []*accel.GeometryBuffer

	// Update advances the animation by dt seconds, shifts the current transforms into the
	// previous ones and pushes the new transforms into the instance table.
	//
	// Parameters:
	//   - dt: elapsed time in seconds
	//
	// Returns:
	//   - error: an error if the instance table rejects the transforms
	Update(dt float32) error

	// RefreshTopLevel rebuilds the TLAS from the instance table, in update mode when the build
	// flags allow it.
	//
	// Parameters:
	//   - device: the owning device
	//   - cmd: a command buffer for the blocking build
	//   - queue: the queue to submit on
	//
	// Returns:
	//   - error: the build failure
	RefreshTopLevel(device gpu.Device, cmd gpu.CommandBuffer, queue gpu.Queue) error

	// Transforms returns the current world transform of every instance.
	Transforms() []common.Mat4

	// PreviousTransforms returns last frame's world transform of every instance. They equal
	// Transforms until the first Update.
	PreviousTransforms() []common.Mat4

	// Animation returns the playing animation, or nil for a static scene.
	Animation() *model.AnimationInstance

	// Paused reports whether animation playback is stopped.
	Paused() bool

	// SetPaused stops or resumes animation playback.
	SetPaused(paused bool)

	// Bounds returns the world-space bounds of every instance at the current transforms.
	Bounds() common.AABB

	// FrameData assembles the per-frame input of the pass orchestrator.
	//
	// Parameters:
	//   - cam: the current camera
	//   - prevViewProjection: last frame's view-projection, zero on the first frame
	//   - light: the point light
	//
	// Returns:
	//   - pass.FrameData: the frame data referencing the current TLAS
	FrameData(cam pass.Camera, prevViewProjection common.Mat4, light pass.Light) pass.FrameData

	// Destroy releases the acceleration structures and geometry buffers. It is idempotent.
	Destroy()
}

// scene is the implementation of the Scene interface.
type scene struct {
	mu    *sync.RWMutex
	name  string
	model model.Model

	buildFlags    gpu.BuildAccelerationStructureFlags
	instanceFlags gpu.GeometryInstanceFlags
	animationName string
	speed         float32
	animate       bool

	geometry  []*accel.GeometryBuffer
	wrapper   accel.Wrapper
	anim      *model.AnimationInstance
	instances []model.NodeID
	current   []common.Mat4
	previous  []common.Mat4
	loaded    bool
}

var _ Scene = &scene{}

// NewScene creates a Scene over m. NewScene panics if m is nil.
//
// Parameters:
//   - m: the arena to render
//   - options: functional options to further configure the scene
//
// Returns:
//   - Scene: the newly created scene, not yet loaded
func NewScene(m model.Model, options ...SceneBuilderOption) Scene {
	if m == nil {
		panic("scene: NewScene requires a non-nil Model")
	}
	s := &scene{
		mu:         &sync.RWMutex{},
		name:       m.Name(),
		model:      m,
		buildFlags: gpu.BuildAccelerationStructurePreferFastTrace | gpu.BuildAccelerationStructureAllowUpdate,
		speed:      1,
		animate:    true,
	}
	for _, option := range options {
		option(s)
	}

	if clips := m.Animations(); len(clips) > 0 {
		clip := clips[0]
		if s.animationName != "" {
			if i := m.GetAnimationIndex(s.animationName); i >= 0 {
				clip = clips[i]
			} else {
				logger.Warningf("%s: animation %q not found, playing %q", s.name, s.animationName, clip.Name)
			}
		}
		s.anim = model.NewAnimationInstance(clip)
		s.anim.SetSpeed(s.speed)
		s.anim.SetPaused(!s.animate)
	}
	return s
}

func (s *scene) Name() string       { return s.name }
func (s *scene) Model() model.Model { return s.model }

func (s *scene) Wrapper() accel.Wrapper {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.wrapper
}

func (s *scene) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

func (s *scene) Geometry() []*accel.GeometryBuffer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.geometry
}

func (s *scene) Load(device gpu.Device, queue gpu.Queue, cmd gpu.CommandBuffer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return fmt.Errorf("scene %s: already loaded", s.name)
	}

	meshes := s.model.Meshes()
	geometry := make([]*accel.GeometryBuffer, 0, len(meshes))
	release := func() {
		for _, g := range geometry {
			g.Destroy()
		}
	}
	for i := range meshes {
		mesh := &meshes[i]
		g, err := accel.NewGeometryBuffer(device, queue, cmd, fmt.Sprintf("%s.%s", s.name, mesh.Name), mesh.Vertices(), mesh.Indices())
		if err != nil {
			release()
			return fmt.Errorf("scene %s: mesh %q: %w", s.name, mesh.Name, err)
		}
		geometry = append(geometry, g)
	}

	s.instances = s.model.Instances()
	if len(s.instances) == 0 {
		release()
		return gpu.NewError("scene.Load", gpu.ErrorKindZeroSize, "scene %s has no mesh nodes", s.name)
	}
	s.current = s.worldTransforms()
	s.previous = append([]common.Mat4(nil), s.current...)

	meshOf := make([]int, len(s.instances))
	for i, id := range s.instances {
		n, _ := s.model.Node(id)
		meshOf[i] = int(n.Mesh)
	}
	w := accel.NewWrapper(accel.WithLabel(s.name), accel.WithInstanceFlags(s.instanceFlags))
	if err := accel.DescribeInstances(w, geometry, meshOf, s.current); err != nil {
		release()
		return fmt.Errorf("scene %s: %w", s.name, err)
	}
	if err := w.BuildAS(device, queue, cmd, s.buildFlags); err != nil {
		w.Destroy()
		release()
		return fmt.Errorf("scene %s: %w", s.name, err)
	}

	s.geometry = geometry
	s.wrapper = w
	s.loaded = true
	logger.Infof("%s: loaded %d meshes as %d instances", s.name, len(geometry), len(s.instances))
	return nil
}

// worldTransforms evaluates the current pose and returns one world matrix per instance.
func (s *scene) worldTransforms() []common.Mat4 {
	pose := s.model.BindPose()
	if s.anim != nil {
		pose = s.anim.Pose(s.model)
	}
	world := s.model.WorldTransforms(pose)
	out := make([]common.Mat4, len(s.instances))
	for i, id := range s.instances {
		out[i] = world[id]
	}
	return out
}

func (s *scene) Update(dt float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		return fmt.Errorf("scene %s: update before load", s.name)
	}
	copy(s.previous, s.current)
	if s.anim != nil {
		s.anim.Advance(dt)
	}
	s.current = s.worldTransforms()
	if err := s.wrapper.UpdateInstanceTransforms(s.current); err != nil {
		return fmt.Errorf("scene %s: %w", s.name, err)
	}
	return nil
}

func (s *scene) RefreshTopLevel(device gpu.Device, cmd gpu.CommandBuffer, queue gpu.Queue) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.loaded {
		return fmt.Errorf("scene %s: refresh before load", s.name)
	}
	update := s.buildFlags&gpu.BuildAccelerationStructureAllowUpdate != 0
	return s.wrapper.BuildTopLevel(device, cmd, queue, s.buildFlags, update)
}

func (s *scene) Transforms() []common.Mat4 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]common.Mat4(nil), s.current...)
}

func (s *scene) PreviousTransforms() []common.Mat4 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]common.Mat4(nil), s.previous...)
}

func (s *scene) Animation() *model.AnimationInstance {
	return s.anim
}

func (s *scene) Paused() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.anim == nil || s.anim.Paused()
}

func (s *scene) SetPaused(paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.anim != nil {
		s.anim.SetPaused(paused)
		logger.Debugf("%s: animation paused=%t", s.name, paused)
	}
}

func (s *scene) Bounds() common.AABB {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b := common.EmptyAABB()
	for i, id := range s.instances {
		n, _ := s.model.Node(id)
		mesh, _ := s.model.Mesh(n.Mesh)
		b = b.Union(mesh.Bounds().Transform(s.current[i]))
	}
	return b
}

func (s *scene) FrameData(cam pass.Camera, prevViewProjection common.Mat4, light pass.Light) pass.FrameData {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data := pass.FrameData{
		Camera:             cam,
		PrevViewProjection: prevViewProjection,
		Light:              light,
		Instances:          make([]pass.InstanceData, len(s.instances)),
	}
	if s.wrapper != nil {
		data.TopLevel = s.wrapper.TopLevel()
	}
	for i, id := range s.instances {
		n, _ := s.model.Node(id)
		mesh, _ := s.model.Mesh(n.Mesh)
		data.Instances[i] = pass.InstanceData{
			Material:      uint32(mesh.Material),
			Model:         uint32(i),
			Transform:     s.current[i],
			PrevTransform: s.previous[i],
		}
	}
	return data
}

func (s *scene) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.wrapper != nil {
		s.wrapper.Destroy()
		s.wrapper = nil
	}
	for _, g := range s.geometry {
		g.Destroy()
	}
	s.geometry = nil
	s.loaded = false
}
