package soft

import (
	"sync"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine/gpu"
)

// Kernel is the Go body of a shader stage. Shader modules name kernels by their Code bytes; see
// Device.RegisterKernel.
type Kernel func(inv *Invocation)

// RegisterKernel makes a kernel available to pipelines whose shader module Code equals name.
//
// Parameters:
//   - name: the shader blob contents that select this kernel
//   - k: the kernel
func (d *Device) RegisterKernel(name string, k Kernel) {
	d.kernelsMu.Lock()
	defer d.kernelsMu.Unlock()
	d.kernels[name] = k
}

func (d *Device) kernel(name string) (Kernel, bool) {
	d.kernelsMu.Lock()
	defer d.kernelsMu.Unlock()
	k, ok := d.kernels[name]
	return k, ok
}

// ShaderModule returns a shader module selecting the kernel registered as name.
func ShaderModule(stage gpu.ShaderStage, name string) gpu.ShaderModule {
	return gpu.ShaderModule{Stage: stage, Code: []byte(name), EntryPoint: "main"}
}

// dispatchState is shared by every invocation of one draw, dispatch or trace.
type dispatchState struct {
	x        *executor
	pipeline *pipeline
	sets     []*descriptorSet
	dynamic  [][]uint32
	push     []byte

	fb *framebuffer

	// Ray-tracing shader binding table regions.
	miss, hit gpu.StridedDeviceAddressRegion

	once sync.Map
}

type onceValue struct {
	once  sync.Once
	value any
}

// Invocation is one shader invocation.
type Invocation struct {
	state *dispatchState

	// Stage is the stage being executed.
	Stage gpu.ShaderStage
	// ID is the pixel (fragment), global invocation id (compute) or launch id (ray tracing).
	ID [3]uint32
	// Size is the render area, total thread count or launch size.
	Size [3]uint32

	payload any
	hit     Hit
	ray     common.Ray
	depth   uint32
}

// Once returns a value computed once per draw, dispatch or trace call. Kernels use it to decode
// uniform data a single time.
func (inv *Invocation) Once(key string, f func() any) any {
	v, _ := inv.state.once.LoadOrStore(key, &onceValue{})
	ov := v.(*onceValue)
	ov.once.Do(func() { ov.value = f() })
	return ov.value
}

// PushConstants returns the push-constant bytes active at the time of the call.
func (inv *Invocation) PushConstants() []byte {
	return inv.state.push
}

func (inv *Invocation) write(set, binding uint32) (gpu.DescriptorWrite, bool) {
	if int(set) >= len(inv.state.sets) || inv.state.sets[set] == nil {
		return gpu.DescriptorWrite{}, false
	}
	w, ok := inv.state.sets[set].writes[binding]
	return w, ok
}

// Buffer returns the bytes bound to a uniform or storage buffer binding, honouring dynamic
// offsets in binding order.
func (inv *Invocation) Buffer(set, binding uint32) []byte {
	w, ok := inv.write(set, binding)
	if !ok {
		return nil
	}
	b, ok := w.Buffer.(*buffer)
	if !ok {
		return nil
	}
	off := w.Offset
	if w.Type == gpu.DescriptorTypeUniformBufferDynamic {
		off += uint64(inv.dynamicOffset(set, binding))
	}
	size := w.Range
	if size == 0 || size == gpu.WholeSize || off+size > b.size {
		size = b.size - off
	}
	return b.data[off : off+size]
}

func (inv *Invocation) dynamicOffset(set, binding uint32) uint32 {
	if int(set) >= len(inv.state.dynamic) {
		return 0
	}
	n := 0
	for _, db := range inv.state.sets[set].layout.bindings {
		if db.Type != gpu.DescriptorTypeUniformBufferDynamic {
			continue
		}
		if db.Binding == binding {
			if n < len(inv.state.dynamic[set]) {
				return inv.state.dynamic[set][n]
			}
			return 0
		}
		n++
	}
	return 0
}

func (inv *Invocation) image(set, binding uint32) (*softImage, uint32) {
	w, ok := inv.write(set, binding)
	if !ok {
		return nil, 0
	}
	img, _ := w.Image.(*softImage)
	return img, w.Mip
}

// Load reads a texel of the image bound at (set, binding) at its bound mip level.
func (inv *Invocation) Load(set, binding uint32, x, y int) [4]float32 {
	img, mip := inv.image(set, binding)
	if img == nil {
		return [4]float32{}
	}
	return img.load(mip, x, y)
}

// LoadMip reads a texel of a specific mip level of the image bound at (set, binding).
func (inv *Invocation) LoadMip(set, binding uint32, mip uint32, x, y int) [4]float32 {
	img, _ := inv.image(set, binding)
	if img == nil || mip >= img.mipLevels {
		return [4]float32{}
	}
	return img.load(mip, x, y)
}

// ImageSize returns the extent of the bound mip level of the image at (set, binding).
func (inv *Invocation) ImageSize(set, binding uint32) gpu.Extent2D {
	img, mip := inv.image(set, binding)
	if img == nil {
		return gpu.Extent2D{}
	}
	return gpu.MipExtent(img.extent, mip)
}

// Store writes a texel of the storage image bound at (set, binding).
func (inv *Invocation) Store(set, binding uint32, x, y int, v [4]float32) {
	img, mip := inv.image(set, binding)
	if img == nil {
		return
	}
	img.store(mip, x, y, v)
}

// Output writes colour attachment i of the current framebuffer at this fragment.
func (inv *Invocation) Output(i int, v [4]float32) {
	fb := inv.state.fb
	if fb == nil || i >= len(fb.pass.desc.ColorAttachments) {
		return
	}
	fb.attachments[i].store(0, int(inv.ID[0]), int(inv.ID[1]), v)
}

// DepthStencil writes the depth/stencil attachment at this fragment.
func (inv *Invocation) DepthStencil(depth float32, stencil uint32) {
	fb := inv.state.fb
	if fb == nil || fb.pass.desc.DepthAttachment == nil {
		return
	}
	fb.attachments[len(fb.attachments)-1].store(0, int(inv.ID[0]), int(inv.ID[1]), [4]float32{depth, float32(stencil), 0, 0})
}

// TopLevel returns the TLAS bound at (set, binding).
func (inv *Invocation) TopLevel(set, binding uint32) TopLevel {
	w, ok := inv.write(set, binding)
	if !ok {
		return TopLevel{}
	}
	as, _ := w.AccelerationStructure.(*accelStructure)
	return TopLevel{as: as}
}

// RayQuery runs an inline ray query and returns the committed hit.
func (inv *Invocation) RayQuery(tlas TopLevel, flags RayFlags, cullMask uint8, origin common.Vec3, tMin float32, dir common.Vec3, tMax float32) Hit {
	return tlas.Intersect(flags, cullMask, common.Ray{Origin: origin, Direction: dir}, tMin, tMax)
}

// Payload returns the payload passed to TraceRay by the caller of a miss or closest-hit kernel.
func (inv *Invocation) Payload() any {
	return inv.payload
}

// HitInfo returns the committed hit in a closest-hit kernel.
func (inv *Invocation) HitInfo() Hit {
	return inv.hit
}

// WorldRay returns the traced ray in a miss or closest-hit kernel.
func (inv *Invocation) WorldRay() common.Ray {
	return inv.ray
}

// TraceRay traverses tlas and invokes the closest-hit kernel of the selected hit group, or the
// miss kernel at missIndex, with payload.
func (inv *Invocation) TraceRay(tlas TopLevel, flags RayFlags, cullMask uint8, sbtOffset, sbtStride, missIndex uint32, origin common.Vec3, tMin float32, dir common.Vec3, tMax float32, payload any) {
	st := inv.state
	if inv.depth >= st.pipeline.desc.MaxRecursionDepth {
		st.x.asyncFail("vkCmdTraceRaysKHR", "recursion depth %d exceeded", st.pipeline.desc.MaxRecursionDepth)
		return
	}
	r := common.Ray{Origin: origin, Direction: dir}
	h := tlas.Intersect(flags, cullMask, r, tMin, tMax)

	// Every BLAS holds a single geometry, so sbtStride never contributes to the record index.
	var region gpu.StridedDeviceAddressRegion
	var index uint64
	stage := gpu.ShaderStageMiss
	switch {
	case h.Hit && flags&RayFlagSkipClosestHitShader != 0:
		return
	case h.Hit:
		region, index = st.hit, uint64(h.SBTRecordOffset)+uint64(sbtOffset)
		stage = gpu.ShaderStageClosestHit
	default:
		region, index = st.miss, uint64(missIndex)
	}

	k, err := st.x.groupKernel(region, index, stage)
	if err != nil {
		st.x.asyncFail("vkCmdTraceRaysKHR", "%v", err)
		return
	}
	if k == nil {
		return
	}
	child := &Invocation{state: st, Stage: stage, ID: inv.ID, Size: inv.Size, payload: payload, hit: h, ray: r, depth: inv.depth + 1}
	k(child)
}

// parallelRows runs fn for every row y in [0, height) on the device worker pool and waits.
func (d *Device) parallelRows(height uint32, fn func(y uint32)) {
	if d.workers <= 1 || height <= 1 {
		for y := uint32(0); y < height; y++ {
			fn(y)
		}
		return
	}
	var wg sync.WaitGroup
	for y := uint32(0); y < height; y++ {
		wg.Add(1)
		row := y
		d.pool.SubmitTask(worker.Task{
			ID: int(row),
			Do: func() (any, error) {
				defer wg.Done()
				fn(row)
				return nil, nil
			},
		})
	}
	wg.Wait()
}
