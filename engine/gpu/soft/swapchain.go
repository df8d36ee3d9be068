package soft

import (
	"fmt"
	"time"

	"github.com/Carmen-Shannon/oxy-rt/engine/gpu"
)

type swapchain struct {
	dev    *Device
	label  string
	format gpu.Format
	extent gpu.Extent2D
	images []*softImage
	// held marks images acquired by the application and not yet presented.
	held     []bool
	acquires uint64
	presents uint64
}

// CreateSwapchain creates a ring of presentable images.
func (d *Device) CreateSwapchain(desc gpu.SwapchainDescriptor) (gpu.Swapchain, error) {
	if desc.Length < 2 {
		return nil, gpu.NewError("vkCreateSwapchainKHR", gpu.ErrorKindInvalidUsage, "swapchain %q needs at least two images", desc.Label)
	}
	if desc.Extent.Width == 0 || desc.Extent.Height == 0 {
		return nil, gpu.NewError("vkCreateSwapchainKHR", gpu.ErrorKindOutOfDate, "swapchain %q has a zero extent", desc.Label)
	}
	format := desc.Format
	if format == gpu.FormatUndefined {
		format = gpu.FormatB8G8R8A8Unorm
	}
	sc := &swapchain{dev: d, label: desc.Label, format: format, extent: desc.Extent, held: make([]bool, desc.Length)}
	for i := 0; i < desc.Length; i++ {
		sc.images = append(sc.images, newImage(d, gpu.ImageDescriptor{
			Label:     fmt.Sprintf("%s[%d]", desc.Label, i),
			Format:    format,
			Extent:    desc.Extent,
			MipLevels: 1,
			Usage:     desc.Usage | gpu.ImageUsageColorAttachment,
		}))
	}
	logger.Infof("swapchain %q: %d images %dx%d %s", desc.Label, desc.Length, desc.Extent.Width, desc.Extent.Height, format)
	return sc, nil
}

func (s *swapchain) Length() int          { return len(s.images) }
func (s *swapchain) Extent() gpu.Extent2D { return s.extent }
func (s *swapchain) Format() gpu.Format   { return s.format }
func (s *swapchain) Destroy()             {}

func (s *swapchain) Image(index uint32) gpu.Image {
	if int(index) >= len(s.images) {
		return nil
	}
	return s.images[index]
}

// AcquireNextImage grants a free image in the configured order. When every image is held the
// call returns NotReady for a zero timeout and Timeout otherwise.
func (s *swapchain) AcquireNextImage(timeout time.Duration, gsem gpu.Semaphore, gf gpu.Fence) (uint32, gpu.Result) {
	const op = "vkAcquireNextImageKHR"
	if gsem == nil && gf == nil {
		s.dev.reportError(op + ": neither a semaphore nor a fence was given")
		return 0, gpu.ErrorValidationFailed
	}
	var sem *semaphore
	if gsem != nil {
		var ok bool
		if sem, ok = gsem.(*semaphore); !ok || sem.signaled {
			s.dev.reportError(op + ": semaphore must be an unsignaled soft semaphore")
			return 0, gpu.ErrorValidationFailed
		}
	}
	var f *fence
	if gf != nil {
		var ok bool
		if f, ok = gf.(*fence); !ok || f.signaled {
			s.dev.reportError(op + ": fence must be an unsignaled soft fence")
			return 0, gpu.ErrorValidationFailed
		}
	}

	n := len(s.images)
	start := int(s.acquires % uint64(n))
	if s.dev.acquireOrder == AcquireScrambled && (s.acquires/uint64(n))%2 == 1 {
		start = n - 1 - start
	}
	for k := 0; k < n; k++ {
		i := (start + k) % n
		if s.held[i] {
			continue
		}
		s.held[i] = true
		s.acquires++
		if sem != nil {
			sem.signaled = true
		}
		if f != nil {
			f.signaled = true
		}
		return uint32(i), gpu.Success
	}
	if timeout == 0 {
		return 0, gpu.NotReady
	}
	return 0, gpu.Timeout
}

// Present hands the image to the present target once its wait semaphores are signaled and it is
// in PRESENT_SRC layout.
func (q *queue) Present(info gpu.PresentInfo) gpu.Result {
	const op = "vkQueuePresentKHR"
	s, ok := info.Swapchain.(*swapchain)
	if !ok {
		q.dev.reportError(op + ": foreign swapchain")
		return gpu.ErrorValidationFailed
	}
	if int(info.ImageIndex) >= len(s.images) || !s.held[info.ImageIndex] {
		q.dev.reportError(op + ": image was not acquired")
		return gpu.ErrorValidationFailed
	}
	for _, gsem := range info.WaitSemaphores {
		sem, ok := gsem.(*semaphore)
		if !ok || !sem.signaled {
			q.dev.reportError(op + ": wait semaphore has no pending signal")
			return gpu.ErrorValidationFailed
		}
	}
	img := s.images[info.ImageIndex]
	if img.layouts[0] != gpu.ImageLayoutPresentSrc {
		q.dev.reportError(op + ": image " + img.label + " is in " + img.layouts[0].String() + ", needs PRESENT_SRC")
		return gpu.ErrorValidationFailed
	}
	for _, gsem := range info.WaitSemaphores {
		gsem.(*semaphore).signaled = false
	}

	s.held[info.ImageIndex] = false
	s.presents++
	q.dev.stats.Presents++
	q.x.record(TraceEntry{Command: "Present", Detail: img.label})

	if q.dev.present != nil {
		if err := q.dev.present.Present(info.ImageIndex, Snapshot(img)); err != nil {
			logger.Errorf("present target: %v", err)
			return gpu.ErrorDeviceLost
		}
	}
	if q.dev.presentResult != nil {
		return q.dev.presentResult(s.presents)
	}
	return gpu.Success
}
