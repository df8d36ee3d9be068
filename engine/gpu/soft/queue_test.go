package soft

import (
	"image"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-rt/engine/gpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func emptyCmd(t *testing.T, d *Device, label string) gpu.CommandBuffer {
	t.Helper()
	cmd := beginCmd(t, d, label)
	require.NoError(t, cmd.End())
	return cmd
}

func submit(q gpu.Queue, cmd gpu.CommandBuffer, f gpu.Fence) error {
	return q.Submit([]gpu.SubmitInfo{{CommandBuffers: []gpu.CommandBuffer{cmd}}}, f)
}

func TestPendingCommandBufferCannotBeRerecorded(t *testing.T) {
	d := newTestDevice(t)
	f, err := d.CreateFence("frame", false)
	require.NoError(t, err)
	cmd := emptyCmd(t, d, "frame")

	require.NoError(t, submit(d.Queue(), cmd, f))
	assert.Equal(t, gpu.Success, f.Status())
	assert.Error(t, cmd.Begin())
	assert.Error(t, cmd.Reset())
	assert.Error(t, submit(d.Queue(), cmd, nil))

	require.Equal(t, gpu.Success, d.WaitForFences([]gpu.Fence{f}, true, gpu.InfiniteTimeout))
	require.NoError(t, d.ResetFences(f))
	assert.Equal(t, gpu.NotReady, f.Status())
	assert.NoError(t, cmd.Begin())
}

func TestOutstandingSubmissionsAreCounted(t *testing.T) {
	d := newTestDevice(t)
	var fences []gpu.Fence
	for i := 0; i < 3; i++ {
		f, err := d.CreateFence("f", false)
		require.NoError(t, err)
		fences = append(fences, f)
		require.NoError(t, submit(d.Queue(), emptyCmd(t, d, "c"), f))
	}
	assert.Equal(t, 3, d.Outstanding())

	require.Equal(t, gpu.Success, d.WaitForFences(fences[:1], true, gpu.InfiniteTimeout))
	assert.Equal(t, 2, d.Outstanding())
	require.NoError(t, d.Queue().WaitIdle())
	assert.Equal(t, 0, d.Outstanding())

	stats := d.Stats()
	assert.Equal(t, 3, stats.Submissions)
	assert.Equal(t, 3, stats.MaxOutstanding)
	assert.Equal(t, 1, stats.QueueWaitIdleCalls)
}

func TestSubmitValidatesSyncObjects(t *testing.T) {
	d := newTestDevice(t)
	sem, err := d.CreateSemaphore("s")
	require.NoError(t, err)

	err = d.Queue().Submit([]gpu.SubmitInfo{{
		WaitSemaphores: []gpu.Semaphore{sem},
		WaitStages:     []gpu.PipelineStage{gpu.PipelineStageColorAttachmentOutput},
		CommandBuffers: []gpu.CommandBuffer{emptyCmd(t, d, "wait")},
	}}, nil)
	assert.Equal(t, gpu.ErrorKindInvalidUsage, gpu.KindOf(err))
	assert.Equal(t, gpu.ErrorValidationFailed, gpu.ResultOf(err))

	signaled, err := d.CreateFence("signaled", true)
	require.NoError(t, err)
	assert.Error(t, submit(d.Queue(), emptyCmd(t, d, "fence"), signaled))

	// A signal followed by a wait in the next batch is valid.
	require.NoError(t, d.Queue().Submit([]gpu.SubmitInfo{
		{CommandBuffers: []gpu.CommandBuffer{emptyCmd(t, d, "a")}, SignalSemaphores: []gpu.Semaphore{sem}},
		{CommandBuffers: []gpu.CommandBuffer{emptyCmd(t, d, "b")}, WaitSemaphores: []gpu.Semaphore{sem}},
	}, nil))
}

func TestWaitForUnsubmittedFence(t *testing.T) {
	d := newTestDevice(t)
	f, err := d.CreateFence("idle", false)
	require.NoError(t, err)
	assert.Equal(t, gpu.Timeout, d.WaitForFences([]gpu.Fence{f}, true, time.Millisecond))
	assert.Equal(t, gpu.ErrorDeviceLost, d.WaitForFences([]gpu.Fence{f}, true, gpu.InfiniteTimeout))
	assert.Len(t, d.Errors(), 1)
}

func TestEndReportsRecordingErrors(t *testing.T) {
	d := newTestDevice(t)
	cmd := beginCmd(t, d, "bad")
	cmd.Draw(3, 1, 0, 0)
	assert.Error(t, cmd.End())

	cmd = beginCmd(t, d, "labels")
	cmd.BeginDebugLabel("open", [4]float32{})
	assert.Error(t, cmd.End())
}

func TestBarrierTracksLayouts(t *testing.T) {
	d := newTestDevice(t, WithTrace(true))
	img, err := d.CreateImage(gpu.ImageDescriptor{Label: "chain", Format: gpu.FormatR8Unorm, Extent: gpu.Extent2D{Width: 8, Height: 8}, MipLevels: 4, Usage: gpu.ImageUsageStorage})
	require.NoError(t, err)

	cmd := beginCmd(t, d, "layouts")
	var dep gpu.Dependency
	dep.AddImage(img, gpu.AccessNone, gpu.AccessShaderWrite, gpu.ImageLayoutUndefined, gpu.ImageLayoutGeneral, gpu.SubresourceRange{Aspect: gpu.ImageAspectColor})
	cmd.PipelineBarrier(dep)
	var second gpu.Dependency
	second.AddImage(img, gpu.AccessShaderWrite, gpu.AccessShaderRead, gpu.ImageLayoutGeneral, gpu.ImageLayoutShaderReadOnlyOptimal, gpu.SubresourceRange{Aspect: gpu.ImageAspectColor, BaseMip: 1, MipCount: 2})
	cmd.PipelineBarrier(second)
	require.NoError(t, cmd.End())
	require.NoError(t, gpu.SubmitAndWait(d.Queue(), cmd))

	assert.Equal(t, gpu.ImageLayoutGeneral, Layout(img, 0))
	assert.Equal(t, gpu.ImageLayoutShaderReadOnlyOptimal, Layout(img, 1))
	assert.Equal(t, gpu.ImageLayoutShaderReadOnlyOptimal, Layout(img, 2))
	assert.Equal(t, gpu.ImageLayoutGeneral, Layout(img, 3))

	trace := d.Trace()
	require.Len(t, trace, 2)
	assert.Equal(t, "PipelineBarrier", trace[1].Command)
	assert.Equal(t, []ImageTransition{{Image: "chain", BaseMip: 1, MipCount: 2, OldLayout: gpu.ImageLayoutGeneral, NewLayout: gpu.ImageLayoutShaderReadOnlyOptimal}}, trace[1].Images)

	// Mip 0 is GENERAL, not SHADER_READ_ONLY.
	cmd = beginCmd(t, d, "mismatch")
	var bad gpu.Dependency
	bad.AddImage(img, gpu.AccessShaderRead, gpu.AccessShaderWrite, gpu.ImageLayoutShaderReadOnlyOptimal, gpu.ImageLayoutGeneral, gpu.SubresourceRange{Aspect: gpu.ImageAspectColor, MipCount: 1})
	cmd.PipelineBarrier(bad)
	require.NoError(t, cmd.End())
	assert.Error(t, gpu.SubmitAndWait(d.Queue(), cmd))
}

func TestWarningFilter(t *testing.T) {
	storage := gpu.BufferDescriptor{Label: "as", Size: 1024, Usage: gpu.BufferUsageAccelerationStructureStorage, Required: gpu.MemoryPropertyDeviceLocal}

	d := newTestDevice(t)
	_, err := d.CreateBuffer(storage)
	require.NoError(t, err)
	msgs := d.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, gpu.WarningBestPracticesSmallDedicatedAllocation, msgs[0].Category)

	filtered := newTestDevice(t, WithWarningFilter(func(c gpu.WarningCategory) bool {
		return c != gpu.WarningBestPracticesSmallDedicatedAllocation
	}))
	_, err = filtered.CreateBuffer(storage)
	require.NoError(t, err)
	assert.Empty(t, filtered.Messages())
	assert.Equal(t, 1, filtered.Stats().SuppressedWarnings)

	require.NoError(t, filtered.WaitIdle())
	msgs = filtered.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, gpu.WarningPerformanceWaitIdle, msgs[0].Category)
}

func TestBufferMemory(t *testing.T) {
	d := newTestDevice(t, WithMemoryBudget(4096))
	_, err := d.CreateBuffer(gpu.BufferDescriptor{Label: "zero"})
	assert.Error(t, err)

	local := deviceBuffer(t, d, "local", gpu.BufferUsageStorage|gpu.BufferUsageShaderDeviceAddress, 1000)
	_, err = local.Map()
	assert.Error(t, err)

	host := hostBuffer(t, d, "host", gpu.BufferUsageTransferSrc, make([]byte, 16))
	_, err = host.DeviceAddress()
	assert.Error(t, err)

	a := address(t, local)
	assert.Equal(t, gpu.DeviceAddress(addressBase), a)
	b, off, ok := d.resolve(a + 999)
	require.True(t, ok)
	assert.Equal(t, uint64(999), off)
	assert.Same(t, local.(*buffer), b)
	_, _, ok = d.resolve(a + 1000)
	assert.False(t, ok)

	_, err = d.CreateBuffer(gpu.BufferDescriptor{Label: "big", Size: 4096, Required: gpu.MemoryPropertyDeviceLocal})
	assert.Equal(t, gpu.ErrorKindOutOfMemory, gpu.KindOf(err))
}

func TestBlitDownsample(t *testing.T) {
	d := newTestDevice(t)
	usage := gpu.ImageUsageTransferSrc | gpu.ImageUsageTransferDst
	src, err := d.CreateImage(gpu.ImageDescriptor{Label: "src", Format: gpu.FormatR16Sfloat, Extent: gpu.Extent2D{Width: 4, Height: 4}, MipLevels: 1, Usage: usage})
	require.NoError(t, err)
	dst, err := d.CreateImage(gpu.ImageDescriptor{Label: "dst", Format: gpu.FormatR16Sfloat, Extent: gpu.Extent2D{Width: 4, Height: 4}, MipLevels: 2, Usage: usage})
	require.NoError(t, err)
	s := src.(*softImage)
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			s.store(0, x, y, [4]float32{float32(x % 2), 0, 0, 1})
		}
	}

	cmd := beginCmd(t, d, "blit")
	var dep gpu.Dependency
	dep.AddImage(src, gpu.AccessNone, gpu.AccessTransferRead, gpu.ImageLayoutUndefined, gpu.ImageLayoutTransferSrcOptimal, gpu.SubresourceRange{})
	dep.AddImage(dst, gpu.AccessNone, gpu.AccessTransferWrite, gpu.ImageLayoutUndefined, gpu.ImageLayoutTransferDstOptimal, gpu.SubresourceRange{BaseMip: 1, MipCount: 1})
	cmd.PipelineBarrier(dep)
	cmd.BlitImage(src, gpu.ImageLayoutTransferSrcOptimal, dst, gpu.ImageLayoutTransferDstOptimal, []gpu.ImageBlit{{SrcMip: 0, DstMip: 1}}, gpu.FilterLinear)
	require.NoError(t, cmd.End())
	require.NoError(t, gpu.SubmitAndWait(d.Queue(), cmd))

	assert.InDelta(t, 0.5, Texel(dst, 1, 0, 0)[0], 1e-6)
	assert.InDelta(t, 0.5, Texel(dst, 1, 1, 1)[0], 1e-6)

	// Blitting from the wrong layout fails.
	cmd = beginCmd(t, d, "wrong")
	cmd.BlitImage(dst, gpu.ImageLayoutTransferSrcOptimal, src, gpu.ImageLayoutTransferDstOptimal, []gpu.ImageBlit{{SrcMip: 1, DstMip: 0}}, gpu.FilterLinear)
	require.NoError(t, cmd.End())
	assert.Error(t, gpu.SubmitAndWait(d.Queue(), cmd))
}

type recordingTarget struct {
	indices []uint32
	last    *image.RGBA
}

func (r *recordingTarget) Present(index uint32, img *image.RGBA) error {
	r.indices = append(r.indices, index)
	r.last = img
	return nil
}

func presentable(t *testing.T, d *Device, sc gpu.Swapchain) {
	t.Helper()
	cmd := beginCmd(t, d, "to-present")
	var dep gpu.Dependency
	for i := 0; i < sc.Length(); i++ {
		dep.AddImage(sc.Image(uint32(i)), gpu.AccessNone, gpu.AccessNone, gpu.ImageLayoutUndefined, gpu.ImageLayoutPresentSrc, gpu.SubresourceRange{})
	}
	cmd.PipelineBarrier(dep)
	require.NoError(t, cmd.End())
	require.NoError(t, gpu.SubmitAndWait(d.Queue(), cmd))
}

func acquireOrder(t *testing.T, order AcquireOrder, n int) []uint32 {
	target := &recordingTarget{}
	d := newTestDevice(t, WithAcquireOrder(order), WithPresentTarget(target))
	sc, err := d.CreateSwapchain(gpu.SwapchainDescriptor{Label: "sc", Extent: gpu.Extent2D{Width: 2, Height: 2}, Length: 3})
	require.NoError(t, err)
	presentable(t, d, sc)
	sem, err := d.CreateSemaphore("acquired")
	require.NoError(t, err)

	var got []uint32
	for i := 0; i < n; i++ {
		idx, res := sc.AcquireNextImage(gpu.InfiniteTimeout, sem, nil)
		require.Equal(t, gpu.Success, res)
		got = append(got, idx)
		require.Equal(t, gpu.Success, d.Queue().Present(gpu.PresentInfo{WaitSemaphores: []gpu.Semaphore{sem}, Swapchain: sc, ImageIndex: idx}))
	}
	assert.Equal(t, got, target.indices)
	require.NotNil(t, target.last)
	assert.Equal(t, image.Rect(0, 0, 2, 2), target.last.Bounds())
	return got
}

func TestSwapchainAcquireOrder(t *testing.T) {
	assert.Equal(t, []uint32{0, 1, 2, 0, 1, 2}, acquireOrder(t, AcquireRoundRobin, 6))
	assert.Equal(t, []uint32{0, 1, 2, 2, 1, 0}, acquireOrder(t, AcquireScrambled, 6))
}

func TestSwapchainHoldsImagesUntilPresent(t *testing.T) {
	d := newTestDevice(t, WithPresentResult(func(n uint64) gpu.Result {
		if n == 2 {
			return gpu.Suboptimal
		}
		return gpu.Success
	}))
	sc, err := d.CreateSwapchain(gpu.SwapchainDescriptor{Label: "sc", Extent: gpu.Extent2D{Width: 2, Height: 2}, Length: 2})
	require.NoError(t, err)

	f0, _ := d.CreateFence("f0", false)
	f1, _ := d.CreateFence("f1", false)
	f2, _ := d.CreateFence("f2", false)
	a, res := sc.AcquireNextImage(gpu.InfiniteTimeout, nil, f0)
	require.Equal(t, gpu.Success, res)
	b, res := sc.AcquireNextImage(gpu.InfiniteTimeout, nil, f1)
	require.Equal(t, gpu.Success, res)
	assert.NotEqual(t, a, b)
	_, res = sc.AcquireNextImage(0, nil, f2)
	assert.Equal(t, gpu.NotReady, res)

	// Still UNDEFINED, not PRESENT_SRC.
	assert.Equal(t, gpu.ErrorValidationFailed, d.Queue().Present(gpu.PresentInfo{Swapchain: sc, ImageIndex: a}))

	presentable(t, d, sc)
	assert.Equal(t, gpu.Success, d.Queue().Present(gpu.PresentInfo{Swapchain: sc, ImageIndex: a}))
	assert.Equal(t, gpu.ErrorValidationFailed, d.Queue().Present(gpu.PresentInfo{Swapchain: sc, ImageIndex: a}))
	assert.Equal(t, gpu.Suboptimal, d.Queue().Present(gpu.PresentInfo{Swapchain: sc, ImageIndex: b}))
	assert.Equal(t, 2, d.Stats().Presents)
}
