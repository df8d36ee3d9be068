// Package accel builds and maintains the bottom- and top-level acceleration structures of a scene.
package accel

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine/gpu"
	"github.com/Carmen-Shannon/oxy-rt/engine/log"
)

var logger = log.New("accel")

// wrapper is the implementation of the Wrapper interface.
type wrapper struct {
	label         string
	vertexStride  uint64
	instanceFlags gpu.GeometryInstanceFlags
	instanceMask  uint8
	hitGroup      uint32

	modelInfos   []ModelInfo
	instances    []Instance
	descriptions []SceneDescription

	blas        []gpu.AccelerationStructure
	blasBuffers []gpu.Buffer
	// modelsChanged is set when the model table changed after the last bottom-level build.
	modelsChanged bool

	tlas           gpu.AccelerationStructure
	tlasBuffer     gpu.Buffer
	tlasFlags      gpu.BuildAccelerationStructureFlags
	tlasCount      int
	instanceBuffer gpu.Buffer
	scratch        gpu.Buffer
	scratchAddress gpu.DeviceAddress
	table          InstanceTable

	stats Stats
}

// Wrapper owns every acceleration structure of a scene: one BLAS per mesh, the TLAS over all
// instances, and the instance and scratch buffers used to refresh it. All methods must be called
// from the recording goroutine.
type Wrapper interface {
	// BuildModelDescription appends one ModelInfo, Instance and SceneDescription per mesh from
	// parallel slices. On an empty wrapper instance i references model i with instance id i. No
	// GPU work is done.
	//
	// Parameters:
	//   - vertexBuffers: per-mesh vertex buffers
	//   - indexBuffers: per-mesh uint32 index buffers
	//   - vertexCounts: per-mesh vertex counts
	//   - indexCounts: per-mesh index counts
	//   - transforms: per-mesh world transforms
	//
	// Returns:
	//   - error: if the slice lengths differ or a transform is singular
	BuildModelDescription(vertexBuffers, indexBuffers []gpu.Buffer, vertexCounts, indexCounts []int, transforms []common.Mat4) error

	// AddModel appends one ModelInfo without an instance. Every model gets exactly one BLAS.
	//
	// Parameters:
	//   - vertexBuffer: the mesh vertex buffer
	//   - indexBuffer: the mesh uint32 index buffer
	//   - vertexCount: the number of vertices
	//   - indexCount: the number of indices
	//
	// Returns:
	//   - uint32: the model index to pass to AddInstance
	AddModel(vertexBuffer, indexBuffer gpu.Buffer, vertexCount, indexCount int) uint32

	// AddInstance places an already described model in the TLAS once more. Its instance id is
	// its position in the instance table.
	//
	// Parameters:
	//   - model: a model index returned by AddModel or BuildModelDescription
	//   - transform: the world transform
	//
	// Returns:
	//   - error: if the model does not exist or the transform is singular
	AddInstance(model uint32, transform common.Mat4) error

	// ClearModelDescription empties the model, instance and scene description tables. Built
	// structures are kept until the next build, which rebuilds every BLAS.
	ClearModelDescription()

	// BuildAS builds every BLAS and then the TLAS in build mode. Storage and scratch buffers are
	// allocated here; the call submits and waits for the queue to idle.
	//
	// Parameters:
	//   - device: the device that allocates the structures
	//   - queue: the queue builds are submitted to
	//   - cmd: a command buffer in the initial state, reset before returning
	//   - flags: TLAS build flags
	//
	// Returns:
	//   - error: an *gpu.Error of kind Unsupported, ZeroSize or OutOfMemory on load failure
	BuildAS(device gpu.Device, queue gpu.Queue, cmd gpu.CommandBuffer, flags gpu.BuildAccelerationStructureFlags) error

	// UpdateInstanceTransforms copies new world transforms into the instance and scene
	// description tables.
	//
	// Parameters:
	//   - transforms: one transform per instance
	//
	// Returns:
	//   - error: on a length mismatch or a singular transform
	UpdateInstanceTransforms(transforms []common.Mat4) error

	// BuildTopLevel serializes the instances, uploads them through a staging buffer and builds
	// or updates the TLAS. An update refits the existing TLAS in place and requires the instance
	// count of the last build. The call submits and waits for the queue to idle.
	//
	// Parameters:
	//   - device: the device that allocates staging memory
	//   - cmd: a command buffer in the initial state, reset before returning
	//   - queue: the queue the build is submitted to
	//   - flags: build flags; updates need ALLOW_UPDATE on the previous build
	//   - update: refit instead of rebuilding
	//
	// Returns:
	//   - error: if the structures are not built, the count changed on update, or the GPU fails
	BuildTopLevel(device gpu.Device, cmd gpu.CommandBuffer, queue gpu.Queue, flags gpu.BuildAccelerationStructureFlags, update bool) error

	// Rebuild rebuilds the BLAS set if the model table changed since it was built, then rebuilds
	// the TLAS from scratch, reallocating its buffers if the instance count changed.
	//
	// Returns:
	//   - error: as for BuildAS
	Rebuild(device gpu.Device, cmd gpu.CommandBuffer, queue gpu.Queue, flags gpu.BuildAccelerationStructureFlags) error

	// TopLevel returns the TLAS, nil before the first successful build.
	TopLevel() gpu.AccelerationStructure

	// BottomLevel returns the BLAS of model i, nil if it is not built.
	BottomLevel(i int) gpu.AccelerationStructure

	// InstanceBuffer returns the device buffer holding the packed instance records.
	InstanceBuffer() gpu.Buffer

	ModelInfos() []ModelInfo
	Instances() []Instance
	SceneDescriptions() []SceneDescription
	Stats() Stats

	// Destroy releases every owned structure and buffer in reverse creation order.
	Destroy()
}

var _ Wrapper = &wrapper{}

// NewWrapper creates an empty Wrapper.
//
// Parameters:
//   - options: functional options
//
// Returns:
//   - Wrapper: the wrapper
func NewWrapper(options ...WrapperBuilderOption) Wrapper {
	w := &wrapper{
		label:         "scene",
		vertexStride:  DefaultVertexStride,
		instanceFlags: gpu.GeometryInstanceTriangleFacingCullDisable,
		instanceMask:  DefaultInstanceMask,
	}
	for _, opt := range options {
		opt(w)
	}
	return w
}

func (w *wrapper) BuildModelDescription(vertexBuffers, indexBuffers []gpu.Buffer, vertexCounts, indexCounts []int, transforms []common.Mat4) error {
	n := len(vertexBuffers)
	if len(indexBuffers) != n || len(vertexCounts) != n || len(indexCounts) != n || len(transforms) != n {
		return gpu.NewError("buildModelDescription", gpu.ErrorKindInvalidUsage,
			"mismatched lengths: %d vertex buffers, %d index buffers, %d vertex counts, %d index counts, %d transforms",
			n, len(indexBuffers), len(vertexCounts), len(indexCounts), len(transforms))
	}
	for i, m := range transforms {
		if _, ok := common.InverseTranspose4(m); !ok {
			return gpu.NewError("buildModelDescription", gpu.ErrorKindInvalidUsage, "transform of mesh %d is singular", i)
		}
	}
	for i := 0; i < n; i++ {
		model := w.AddModel(vertexBuffers[i], indexBuffers[i], vertexCounts[i], indexCounts[i])
		if err := w.AddInstance(model, transforms[i]); err != nil {
			return err
		}
	}
	return nil
}

func (w *wrapper) AddModel(vertexBuffer, indexBuffer gpu.Buffer, vertexCount, indexCount int) uint32 {
	w.modelInfos = append(w.modelInfos, ModelInfo{
		VertexBuffer:   vertexBuffer,
		IndexBuffer:    indexBuffer,
		PrimitiveCount: PrimitiveCount(indexCount),
		VertexCount:    uint32(max(vertexCount, 0)),
		VertexStride:   w.vertexStride,
	})
	w.modelsChanged = true
	return uint32(len(w.modelInfos) - 1)
}

func (w *wrapper) AddInstance(model uint32, transform common.Mat4) error {
	if int(model) >= len(w.modelInfos) {
		return gpu.NewError("addInstance", gpu.ErrorKindInvalidUsage, "model %d of %d does not exist", model, len(w.modelInfos))
	}
	it, ok := common.InverseTranspose4(transform)
	if !ok {
		return gpu.NewError("addInstance", gpu.ErrorKindInvalidUsage, "transform of instance %d is singular", len(w.instances))
	}
	w.instances = append(w.instances, Instance{
		ModelIndex: model,
		InstanceID: uint32(len(w.instances)),
		HitGroup:   w.hitGroup,
		Mask:       w.instanceMask,
		Flags:      w.instanceFlags,
		Transform:  transform,
	})
	w.descriptions = append(w.descriptions, SceneDescription{ModelIndex: model, Transform: transform, TransformIT: it})
	return nil
}

// DescribeGeometry is BuildModelDescription over uploaded geometry buffers.
//
// Parameters:
//   - w: the wrapper to describe the meshes to
//   - geometry: the meshes
//   - transforms: one world transform per mesh
//
// Returns:
//   - error: on a length mismatch
func DescribeGeometry(w Wrapper, geometry []*GeometryBuffer, transforms []common.Mat4) error {
	var (
		vbs, ibs         []gpu.Buffer
		vcounts, icounts []int
	)
	for _, g := range geometry {
		vbs = append(vbs, g.Vertices)
		ibs = append(ibs, g.Indices)
		vcounts = append(vcounts, int(g.VertexCount))
		icounts = append(icounts, int(g.IndexCount))
	}
	return w.BuildModelDescription(vbs, ibs, vcounts, icounts, transforms)
}

// DescribeInstances describes every mesh once and then one instance per transform. Instance i
// uses mesh meshes[i], so meshes shared by several instances get a single BLAS.
//
// Parameters:
//   - w: the wrapper to describe the scene to
//   - geometry: the meshes, model index i is geometry[i]
//   - meshes: the mesh of each instance
//   - transforms: the world transform of each instance
//
// Returns:
//   - error: on a length mismatch, an unknown mesh or a singular transform
func DescribeInstances(w Wrapper, geometry []*GeometryBuffer, meshes []int, transforms []common.Mat4) error {
	if len(meshes) != len(transforms) {
		return gpu.NewError("describeInstances", gpu.ErrorKindInvalidUsage, "%d meshes for %d transforms", len(meshes), len(transforms))
	}
	base := uint32(len(w.ModelInfos()))
	for _, g := range geometry {
		w.AddModel(g.Vertices, g.Indices, int(g.VertexCount), int(g.IndexCount))
	}
	for i, mesh := range meshes {
		if mesh < 0 || mesh >= len(geometry) {
			return gpu.NewError("describeInstances", gpu.ErrorKindInvalidUsage, "instance %d uses mesh %d of %d", i, mesh, len(geometry))
		}
		if err := w.AddInstance(base+uint32(mesh), transforms[i]); err != nil {
			return err
		}
	}
	return nil
}

func (w *wrapper) ClearModelDescription() {
	w.modelInfos = w.modelInfos[:0]
	w.instances = w.instances[:0]
	w.descriptions = w.descriptions[:0]
	w.modelsChanged = true
}

func (w *wrapper) BuildAS(device gpu.Device, queue gpu.Queue, cmd gpu.CommandBuffer, flags gpu.BuildAccelerationStructureFlags) error {
	if !device.Features().AccelerationStructure {
		return &gpu.Error{Op: "buildAS", Kind: gpu.ErrorKindUnsupported, Result: gpu.ErrorFeatureNotPresent}
	}
	if err := w.buildBottomLevel(device, queue, cmd); err != nil {
		return err
	}
	return w.BuildTopLevel(device, cmd, queue, flags, false)
}

func (w *wrapper) UpdateInstanceTransforms(transforms []common.Mat4) error {
	if len(transforms) != len(w.instances) {
		return gpu.NewError("updateInstanceTransforms", gpu.ErrorKindInvalidUsage, "%d transforms for %d instances", len(transforms), len(w.instances))
	}
	for i, m := range transforms {
		it, ok := common.InverseTranspose4(m)
		if !ok {
			return gpu.NewError("updateInstanceTransforms", gpu.ErrorKindInvalidUsage, "transform %d is singular", i)
		}
		w.instances[i].Transform = m
		w.descriptions[i].Transform = m
		w.descriptions[i].TransformIT = it
	}
	return nil
}

func (w *wrapper) Rebuild(device gpu.Device, cmd gpu.CommandBuffer, queue gpu.Queue, flags gpu.BuildAccelerationStructureFlags) error {
	if w.modelsChanged || len(w.blas) != len(w.modelInfos) {
		if err := w.buildBottomLevel(device, queue, cmd); err != nil {
			return err
		}
	}
	logger.Noticef("%s: rebuilding TLAS over %d instances (was %d)", w.label, len(w.instances), w.tlasCount)
	return w.BuildTopLevel(device, cmd, queue, flags, false)
}

func (w *wrapper) TopLevel() gpu.AccelerationStructure {
	if w.tlas == nil {
		return nil
	}
	return w.tlas
}

func (w *wrapper) BottomLevel(i int) gpu.AccelerationStructure {
	if i < 0 || i >= len(w.blas) {
		return nil
	}
	return w.blas[i]
}

func (w *wrapper) InstanceBuffer() gpu.Buffer            { return w.instanceBuffer }
func (w *wrapper) ModelInfos() []ModelInfo               { return w.modelInfos }
func (w *wrapper) Instances() []Instance                 { return w.instances }
func (w *wrapper) SceneDescriptions() []SceneDescription { return w.descriptions }
func (w *wrapper) Stats() Stats                          { return w.stats }

func (w *wrapper) Destroy() {
	w.destroyTopLevel()
	w.destroyBottomLevel()
}

// submit ends cmd, submits it alone, waits for the queue and resets cmd for reuse.
func submit(op string, queue gpu.Queue, cmd gpu.CommandBuffer) error {
	if err := cmd.End(); err != nil {
		return fmt.Errorf("%s: record: %w", op, err)
	}
	if err := gpu.SubmitAndWait(queue, cmd); err != nil {
		return fmt.Errorf("%s: submit: %w", op, err)
	}
	if err := cmd.Reset(); err != nil {
		return fmt.Errorf("%s: reset: %w", op, err)
	}
	return nil
}
