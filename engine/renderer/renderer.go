// Package renderer shows the images presented by the reference device in a window. Each presented
// swapchain image is uploaded to a WebGPU texture and drawn over the window surface.
package renderer

import (
	"fmt"
	"image"
	"sync"

	"github.com/Carmen-Shannon/oxy-rt/engine/gpu/soft"
	"github.com/Carmen-Shannon/oxy-rt/engine/log"
	"github.com/cogentcore/webgpu/wgpu"
)

var logger = log.New("renderer")

// presenter is the implementation of the Presenter interface.
type presenter struct {
	mu *sync.Mutex

	backend              RendererBackend
	presentMode          PresentMode
	forceFallbackAdapter bool

	width     int
	height    int
	presented uint64
	last      uint32
}

// Presenter receives presented swapchain images from the reference device and puts them on screen.
type Presenter interface {
	soft.PresentTarget

	// Resize reconfigures the surface after the window framebuffer changed size. The presented
	// image is stretched to the new size.
	//
	// Parameters:
	//   - width: new framebuffer width in pixels
	//   - height: new framebuffer height in pixels
	Resize(width, height int)

	// Presented returns the number of images shown so far.
	//
	// Returns:
	//   - uint64: the present count
	Presented() uint64

	// LastImage returns the swapchain index of the most recently shown image.
	LastImage() uint32

	// Destroy releases the surface and every GPU object.
	Destroy()
}

var _ Presenter = &presenter{}

// NewPresenter creates a presenter drawing to the surface described by surfaceDescriptor.
//
// Parameters:
//   - surfaceDescriptor: the window surface, usually from window.Window.SurfaceDescriptor
//   - width: initial framebuffer width in pixels
//   - height: initial framebuffer height in pixels
//   - options: functional options
//
// Returns:
//   - Presenter: the presenter
//   - error: if no adapter or device is available
func NewPresenter(surfaceDescriptor *wgpu.SurfaceDescriptor, width, height int, options ...RendererBuilderOption) (Presenter, error) {
	p := &presenter{
		mu:          &sync.Mutex{},
		presentMode: PresentModeVSync,
		width:       width,
		height:      height,
	}
	for _, opt := range options {
		opt(p)
	}
	if p.backend == nil {
		if surfaceDescriptor == nil {
			return nil, fmt.Errorf("create presenter: no surface")
		}
		b, err := newWGPURendererBackend(surfaceDescriptor, p.forceFallbackAdapter)
		if err != nil {
			return nil, fmt.Errorf("create presenter: %w", err)
		}
		p.backend = b
	}
	p.backend.SetPresentMode(p.presentMode)
	p.backend.ConfigureSurface(width, height)
	logger.Infof("presenting to a %dx%d surface", width, height)
	return p, nil
}

func (p *presenter) Present(index uint32, img *image.RGBA) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.backend == nil {
		return fmt.Errorf("present image %d: presenter destroyed", index)
	}
	if p.width == 0 || p.height == 0 {
		// minimised
		return nil
	}
	if err := p.backend.Blit(img); err != nil {
		return fmt.Errorf("present image %d: %w", index, err)
	}
	p.presented++
	p.last = index
	return nil
}

func (p *presenter) Resize(width, height int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.width, p.height = width, height
	if p.backend == nil || width == 0 || height == 0 {
		return
	}
	p.backend.ConfigureSurface(width, height)
	logger.Debugf("surface resized to %dx%d", width, height)
}

func (p *presenter) Presented() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.presented
}

func (p *presenter) LastImage() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

func (p *presenter) Destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.backend != nil {
		p.backend.Release()
		p.backend = nil
	}
}
