package soft

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine/gpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func toGeneral(img gpu.Image) gpu.Dependency {
	var dep gpu.Dependency
	dep.AddImage(img, gpu.AccessNone, gpu.AccessShaderWrite, gpu.ImageLayoutUndefined, gpu.ImageLayoutGeneral, gpu.SubresourceRange{})
	return dep
}

func TestComputeDispatch(t *testing.T) {
	d := newTestDevice(t, WithWorkers(4))
	d.RegisterKernel("fill", func(inv *Invocation) {
		scale := math.Float32frombits(binary.LittleEndian.Uint32(inv.PushConstants()))
		inv.Store(0, 0, int(inv.ID[0]), int(inv.ID[1]), [4]float32{scale * float32(inv.ID[0]+inv.ID[1]), 0, 0, 1})
	})
	img, err := d.CreateImage(gpu.ImageDescriptor{Label: "target", Format: gpu.FormatR16Sfloat, Extent: gpu.Extent2D{Width: 4, Height: 4}, MipLevels: 1, Usage: gpu.ImageUsageStorage})
	require.NoError(t, err)
	layout, err := d.CreateDescriptorSetLayout("fill", []gpu.DescriptorBinding{{Binding: 0, Type: gpu.DescriptorTypeStorageImage, Count: 1, Stages: gpu.ShaderStageCompute}})
	require.NoError(t, err)
	set, err := d.AllocateDescriptorSet("fill", layout)
	require.NoError(t, err)
	require.NoError(t, set.Update(gpu.DescriptorWrite{Binding: 0, Type: gpu.DescriptorTypeStorageImage, Image: img, Layout: gpu.ImageLayoutGeneral}))
	p, err := d.CreatePipeline(gpu.PipelineDescriptor{
		Label:     "fill",
		BindPoint: gpu.PipelineBindPointCompute,
		Stages:    []gpu.ShaderModule{ShaderModule(gpu.ShaderStageCompute, "fill")},
		Layout:    gpu.PipelineLayoutDescriptor{SetLayouts: []gpu.DescriptorSetLayout{layout}, PushConstantSize: 4},
		LocalSize: [3]uint32{2, 2, 1},
	})
	require.NoError(t, err)

	record := func(transition bool) gpu.CommandBuffer {
		cmd := beginCmd(t, d, "fill")
		if transition {
			cmd.PipelineBarrier(toGeneral(img))
		}
		cmd.BindPipeline(p)
		cmd.BindDescriptorSets(p, 0, []gpu.DescriptorSet{set}, nil)
		cmd.PushConstants(p, gpu.ShaderStageCompute, 0, common.SliceToBytes([]float32{10}))
		cmd.Dispatch(2, 2, 1)
		require.NoError(t, cmd.End())
		return cmd
	}

	// The storage image is still UNDEFINED.
	assert.Error(t, gpu.SubmitAndWait(d.Queue(), record(false)))
	require.NoError(t, gpu.SubmitAndWait(d.Queue(), record(true)))
	assert.Equal(t, float32(50), Texel(img, 0, 3, 2)[0])
	assert.Equal(t, float32(0), Texel(img, 0, 0, 0)[0])
	assert.Equal(t, 1, d.Stats().Dispatches)
}

func TestUnregisteredKernel(t *testing.T) {
	d := newTestDevice(t)
	_, err := d.CreatePipeline(gpu.PipelineDescriptor{
		Label:     "missing",
		BindPoint: gpu.PipelineBindPointCompute,
		Stages:    []gpu.ShaderModule{ShaderModule(gpu.ShaderStageCompute, "missing")},
	})
	assert.Equal(t, gpu.ErrorKindInvalidUsage, gpu.KindOf(err))
}

func TestDrawClearsAndWritesAttachments(t *testing.T) {
	d := newTestDevice(t)
	d.RegisterKernel("left-red", func(inv *Invocation) {
		if inv.ID[0] < 2 {
			inv.Output(0, [4]float32{1, 0, 0, 1})
		}
	})
	img, err := d.CreateImage(gpu.ImageDescriptor{Label: "color", Format: gpu.FormatR8G8B8A8Unorm, Extent: gpu.Extent2D{Width: 4, Height: 4}, MipLevels: 1, Usage: gpu.ImageUsageColorAttachment | gpu.ImageUsageSampled})
	require.NoError(t, err)
	rp, err := d.CreateRenderPass(gpu.RenderPassDescriptor{
		Label: "color",
		ColorAttachments: []gpu.AttachmentDescription{{
			Format:      gpu.FormatR8G8B8A8Unorm,
			LoadOp:      gpu.LoadOpClear,
			StoreOp:     gpu.StoreOpStore,
			FinalLayout: gpu.ImageLayoutShaderReadOnlyOptimal,
		}},
	})
	require.NoError(t, err)
	fb, err := d.CreateFramebuffer(gpu.FramebufferDescriptor{Label: "color", RenderPass: rp, Attachments: []gpu.Image{img}, Extent: gpu.Extent2D{Width: 4, Height: 4}})
	require.NoError(t, err)
	p, err := d.CreatePipeline(gpu.PipelineDescriptor{
		Label:      "left-red",
		BindPoint:  gpu.PipelineBindPointGraphics,
		Stages:     []gpu.ShaderModule{ShaderModule(gpu.ShaderStageFragment, "left-red")},
		RenderPass: rp,
	})
	require.NoError(t, err)

	cmd := beginCmd(t, d, "draw")
	cmd.BeginRenderPass(gpu.RenderPassBeginInfo{
		RenderPass:  rp,
		Framebuffer: fb,
		RenderArea:  gpu.Rect2D{Extent: gpu.Extent2D{Width: 4, Height: 4}},
		ClearValues: []gpu.ClearValue{gpu.ClearColor(0, 0, 1, 1)},
	})
	cmd.BindPipeline(p)
	cmd.Draw(3, 1, 0, 0)
	cmd.EndRenderPass()
	require.NoError(t, cmd.End())
	require.NoError(t, gpu.SubmitAndWait(d.Queue(), cmd))

	assert.Equal(t, [4]float32{1, 0, 0, 1}, Texel(img, 0, 1, 3))
	assert.Equal(t, [4]float32{0, 0, 1, 1}, Texel(img, 0, 3, 0))
	assert.Equal(t, gpu.ImageLayoutShaderReadOnlyOptimal, Layout(img, 0))
	assert.Equal(t, 1, d.Stats().Draws)
}

// rtScene is a ray-tracing pipeline over the rig's TLAS writing one texel per launch.
type rtScene struct {
	*rig
	img                   gpu.Image
	pipeline              gpu.Pipeline
	set                   gpu.DescriptorSet
	raygen, miss, hitRecs gpu.StridedDeviceAddressRegion
}

func newRTScene(t *testing.T, recursion uint32) *rtScene {
	t.Helper()
	s := &rtScene{rig: newRig(t)}
	d := s.d
	require.NoError(t, s.buildTLAS([]gpu.ASInstance{identityInstance(0, 0)}, gpu.BuildAccelerationStructureModeBuild))

	d.RegisterKernel("rgen", func(inv *Invocation) {
		x := inv.ID[0]
		origin := common.Vec3{float32(x) * 5, 0, 5}
		var shade float32
		inv.TraceRay(inv.TopLevel(0, 0), RayFlagOpaque, 0xFF, 0, 1, 0, origin, 0.001, common.Vec3{0, 0, -1}, 100, &shade)
		inv.Store(0, 1, int(x), int(inv.ID[1]), [4]float32{shade, 0, 0, 1})
	})
	d.RegisterKernel("rmiss", func(inv *Invocation) {
		*inv.Payload().(*float32) = 1
	})
	d.RegisterKernel("rchit", func(inv *Invocation) {
		*inv.Payload().(*float32) = 0.25
	})

	var err error
	s.img, err = d.CreateImage(gpu.ImageDescriptor{Label: "shadow", Format: gpu.FormatR16Sfloat, Extent: gpu.Extent2D{Width: 2, Height: 1}, MipLevels: 1, Usage: gpu.ImageUsageStorage})
	require.NoError(t, err)
	layout, err := d.CreateDescriptorSetLayout("rt", []gpu.DescriptorBinding{
		{Binding: 0, Type: gpu.DescriptorTypeAccelerationStructure, Count: 1, Stages: gpu.ShaderStageRaygen},
		{Binding: 1, Type: gpu.DescriptorTypeStorageImage, Count: 1, Stages: gpu.ShaderStageRaygen},
	})
	require.NoError(t, err)
	s.set, err = d.AllocateDescriptorSet("rt", layout)
	require.NoError(t, err)
	require.NoError(t, s.set.Update(
		gpu.DescriptorWrite{Binding: 0, Type: gpu.DescriptorTypeAccelerationStructure, AccelerationStructure: s.tlas},
		gpu.DescriptorWrite{Binding: 1, Type: gpu.DescriptorTypeStorageImage, Image: s.img, Layout: gpu.ImageLayoutGeneral},
	))

	s.pipeline, err = d.CreatePipeline(gpu.PipelineDescriptor{
		Label:     "rt",
		BindPoint: gpu.PipelineBindPointRayTracing,
		Stages: []gpu.ShaderModule{
			ShaderModule(gpu.ShaderStageRaygen, "rgen"),
			ShaderModule(gpu.ShaderStageMiss, "rmiss"),
			ShaderModule(gpu.ShaderStageClosestHit, "rchit"),
		},
		Groups:            []gpu.ShaderGroup{gpu.GeneralGroup(0), gpu.GeneralGroup(1), gpu.HitGroup(2)},
		Layout:            gpu.PipelineLayoutDescriptor{SetLayouts: []gpu.DescriptorSetLayout{layout}},
		MaxRecursionDepth: recursion,
	})
	require.NoError(t, err)

	handles, err := d.GetRayTracingShaderGroupHandles(s.pipeline, 0, 3)
	require.NoError(t, err)
	table := make([]byte, 3*groupBaseAlignment)
	for i := 0; i < 3; i++ {
		copy(table[i*groupBaseAlignment:], handles[i*groupHandleSize:(i+1)*groupHandleSize])
	}
	sbt := hostBuffer(t, d, "sbt", gpu.BufferUsageShaderBindingTable|gpu.BufferUsageShaderDeviceAddress, table)
	base := address(t, sbt)
	region := func(i int) gpu.StridedDeviceAddressRegion {
		return gpu.StridedDeviceAddressRegion{Address: base + gpu.DeviceAddress(i*groupBaseAlignment), Stride: groupHandleSize, Size: groupHandleSize}
	}
	s.raygen, s.miss, s.hitRecs = region(0), region(1), region(2)
	return s
}

func (s *rtScene) trace() error {
	cmd := beginCmd(s.t, s.d, "trace")
	cmd.PipelineBarrier(toGeneral(s.img))
	cmd.BindPipeline(s.pipeline)
	cmd.BindDescriptorSets(s.pipeline, 0, []gpu.DescriptorSet{s.set}, nil)
	cmd.TraceRays(s.raygen, s.miss, s.hitRecs, gpu.StridedDeviceAddressRegion{}, 2, 1, 1)
	require.NoError(s.t, cmd.End())
	return gpu.SubmitAndWait(s.d.Queue(), cmd)
}

func TestTraceRaysInvokesHitAndMissShaders(t *testing.T) {
	s := newRTScene(t, 1)
	require.NoError(t, s.trace())
	assert.Equal(t, float32(0.25), Texel(s.img, 0, 0, 0)[0])
	assert.Equal(t, float32(1), Texel(s.img, 0, 1, 0)[0])
	assert.Equal(t, 1, s.d.Stats().TraceRays)
}

func TestTraceRaysRecursionLimit(t *testing.T) {
	s := newRTScene(t, 0)
	assert.Error(t, s.trace())

	d := newTestDevice(t, WithMaxRayRecursionDepth(1))
	d.RegisterKernel("rgen", func(*Invocation) {})
	_, err := d.CreatePipeline(gpu.PipelineDescriptor{
		Label:             "deep",
		BindPoint:         gpu.PipelineBindPointRayTracing,
		Stages:            []gpu.ShaderModule{ShaderModule(gpu.ShaderStageRaygen, "rgen")},
		Groups:            []gpu.ShaderGroup{gpu.GeneralGroup(0)},
		MaxRecursionDepth: 2,
	})
	assert.Equal(t, gpu.ErrorKindUnsupported, gpu.KindOf(err))
}

func TestTraceRaysValidatesShaderBindingTable(t *testing.T) {
	s := newRTScene(t, 1)
	s.raygen.Size = 2 * groupHandleSize
	assert.Error(t, s.trace())

	s = newRTScene(t, 1)
	s.miss.Address += 8
	assert.Error(t, s.trace())
}
