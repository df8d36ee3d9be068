package renderer

import "image"

// PresentMode controls how presented frames are delivered to the display surface.
type PresentMode int

const (
	// PresentModeVSync waits for the next vertical blank before presenting, capping frame rate
	// to the monitor's refresh rate. Eliminates tearing.
	PresentModeVSync PresentMode = iota

	// PresentModeUncapped presents frames immediately without waiting for vertical blank.
	// May cause screen tearing but provides the lowest latency.
	PresentModeUncapped
)

// RendererBackend is the GPU side of the presenter: it owns the surface and copies frames onto it.
type RendererBackend interface {
	// ConfigureSurface (re)configures the surface for a framebuffer size.
	//
	// Parameters:
	//   - width: framebuffer width in pixels
	//   - height: framebuffer height in pixels
	ConfigureSurface(width, height int)

	// SetPresentMode sets the present mode used by the next ConfigureSurface.
	//
	// Parameters:
	//   - mode: the PresentMode to use
	SetPresentMode(mode PresentMode)

	// Blit uploads img into the frame texture, draws it over the whole surface and presents.
	//
	// Parameters:
	//   - img: the frame to show
	//
	// Returns:
	//   - error: if the surface texture cannot be acquired or the draw cannot be encoded
	Blit(img *image.RGBA) error

	// Release frees every GPU object owned by the backend.
	Release()
}
