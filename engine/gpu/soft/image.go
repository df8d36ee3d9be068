package soft

import (
	"image"
	"image/color"

	"github.com/Carmen-Shannon/oxy-rt/engine/gpu"
	"github.com/chewxy/math32"
)

// Every texel is stored as four float32 channels regardless of format. Depth formats keep depth in
// channel 0 and stencil in channel 1.
type softImage struct {
	dev       *Device
	label     string
	format    gpu.Format
	extent    gpu.Extent2D
	mipLevels uint32
	usage     gpu.ImageUsage

	levels  [][]float32
	layouts []gpu.ImageLayout

	destroyed bool
}

func (i *softImage) Label() string         { return i.label }
func (i *softImage) Format() gpu.Format    { return i.format }
func (i *softImage) Extent() gpu.Extent2D  { return i.extent }
func (i *softImage) MipLevels() uint32     { return i.mipLevels }
func (i *softImage) Usage() gpu.ImageUsage { return i.usage }
func (i *softImage) Destroy()              { i.destroyed = true }

func newImage(dev *Device, desc gpu.ImageDescriptor) *softImage {
	mips := desc.MipLevels
	if mips == 0 {
		mips = 1
	}
	img := &softImage{
		dev:       dev,
		label:     desc.Label,
		format:    desc.Format,
		extent:    desc.Extent,
		mipLevels: mips,
		usage:     desc.Usage,
		levels:    make([][]float32, mips),
		layouts:   make([]gpu.ImageLayout, mips),
	}
	for m := uint32(0); m < mips; m++ {
		e := gpu.MipExtent(desc.Extent, m)
		img.levels[m] = make([]float32, 4*e.Width*e.Height)
	}
	return img
}

// CreateImage allocates a 2D image. All mip levels start in the UNDEFINED layout.
func (d *Device) CreateImage(desc gpu.ImageDescriptor) (gpu.Image, error) {
	if desc.Extent.Width == 0 || desc.Extent.Height == 0 {
		return nil, gpu.NewError("vkCreateImage", gpu.ErrorKindInvalidUsage, "image %q has zero extent", desc.Label)
	}
	if desc.Format == gpu.FormatUndefined {
		return nil, gpu.NewError("vkCreateImage", gpu.ErrorKindInvalidUsage, "image %q has undefined format", desc.Label)
	}
	d.stats.ImagesCreated++
	return newImage(d, desc), nil
}

func (i *softImage) texel(mip uint32, x, y int) []float32 {
	e := gpu.MipExtent(i.extent, mip)
	x = clampInt(x, 0, int(e.Width)-1)
	y = clampInt(y, 0, int(e.Height)-1)
	o := 4 * (y*int(e.Width) + x)
	return i.levels[mip][o : o+4]
}

func (i *softImage) load(mip uint32, x, y int) [4]float32 {
	t := i.texel(mip, x, y)
	return [4]float32{t[0], t[1], t[2], t[3]}
}

func (i *softImage) store(mip uint32, x, y int, v [4]float32) {
	copy(i.texel(mip, x, y), v[:])
}

func (i *softImage) fill(mip uint32, v [4]float32) {
	level := i.levels[mip]
	for o := 0; o < len(level); o += 4 {
		copy(level[o:o+4], v[:])
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Layout returns the current layout of a mip level of an image created by a soft Device.
func Layout(img gpu.Image, mip uint32) gpu.ImageLayout {
	if si, ok := img.(*softImage); ok && mip < si.mipLevels {
		return si.layouts[mip]
	}
	return gpu.ImageLayoutUndefined
}

// Texel returns one texel of an image created by a soft Device.
func Texel(img gpu.Image, mip uint32, x, y int) [4]float32 {
	if si, ok := img.(*softImage); ok && mip < si.mipLevels {
		return si.load(mip, x, y)
	}
	return [4]float32{}
}

// Snapshot converts mip 0 of an image to 8-bit RGBA. Single channel formats are replicated into
// grey; BGRA swapchain images are swizzled to RGBA.
//
// Parameters:
//   - img: an image created by a soft Device
//
// Returns:
//   - *image.RGBA: the converted image, nil for foreign images
func Snapshot(img gpu.Image) *image.RGBA {
	si, ok := img.(*softImage)
	if !ok {
		return nil
	}
	out := image.NewRGBA(image.Rect(0, 0, int(si.extent.Width), int(si.extent.Height)))
	for y := 0; y < int(si.extent.Height); y++ {
		for x := 0; x < int(si.extent.Width); x++ {
			t := si.load(0, x, y)
			switch si.format.Channels() {
			case 1, 2:
				t = [4]float32{t[0], t[0], t[0], 1}
			}
			if si.format == gpu.FormatB8G8R8A8Unorm {
				t[0], t[2] = t[2], t[0]
			}
			out.SetRGBA(x, y, color.RGBA{R: unorm8(t[0]), G: unorm8(t[1]), B: unorm8(t[2]), A: unorm8(t[3])})
		}
	}
	return out
}

func unorm8(v float32) uint8 {
	if math32.IsNaN(v) {
		return 0
	}
	return uint8(math32.Round(clampf(v, 0, 1) * 255))
}

func clampf(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// blit copies src mip levels into dst mip levels, box filtering when the destination is smaller.
func blit(src *softImage, srcMip uint32, dst *softImage, dstMip uint32, filter gpu.Filter) {
	se := gpu.MipExtent(src.extent, srcMip)
	de := gpu.MipExtent(dst.extent, dstMip)
	sx := float32(se.Width) / float32(de.Width)
	sy := float32(se.Height) / float32(de.Height)
	for y := 0; y < int(de.Height); y++ {
		for x := 0; x < int(de.Width); x++ {
			if filter == gpu.FilterNearest || (sx <= 1 && sy <= 1) {
				dst.store(dstMip, x, y, src.load(srcMip, int(float32(x)*sx), int(float32(y)*sy)))
				continue
			}
			x0, x1 := int(float32(x)*sx), int(float32(x+1)*sx)
			y0, y1 := int(float32(y)*sy), int(float32(y+1)*sy)
			if x1 <= x0 {
				x1 = x0 + 1
			}
			if y1 <= y0 {
				y1 = y0 + 1
			}
			var acc [4]float32
			for yy := y0; yy < y1; yy++ {
				for xx := x0; xx < x1; xx++ {
					t := src.load(srcMip, xx, yy)
					for c := range acc {
						acc[c] += t[c]
					}
				}
			}
			n := float32((x1 - x0) * (y1 - y0))
			for c := range acc {
				acc[c] /= n
			}
			dst.store(dstMip, x, y, acc)
		}
	}
}
