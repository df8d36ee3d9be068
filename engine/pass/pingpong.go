package pass

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-rt/engine/gpu"
)

// WriteIndex returns the ping-pong image written by frame frameIndex. The other image holds the
// previous frame's result.
func WriteIndex(frameIndex uint64) int {
	return int(frameIndex % 2)
}

// PingPong is a pair of identical images toggled per frame.
type PingPong struct {
	images [2]gpu.Image
}

// NewPingPong creates both images of a pair.
//
// Parameters:
//   - device: the device that creates the images
//   - desc: the description shared by both images; the label gets a [0]/[1] suffix
//
// Returns:
//   - *PingPong: the pair
//   - error: if either image cannot be created
func NewPingPong(device gpu.Device, desc gpu.ImageDescriptor) (*PingPong, error) {
	p := &PingPong{}
	label := desc.Label
	for i := range p.images {
		desc.Label = fmt.Sprintf("%s[%d]", label, i)
		img, err := device.CreateImage(desc)
		if err != nil {
			p.Destroy()
			return nil, err
		}
		p.images[i] = img
	}
	return p, nil
}

// Image returns image i of the pair.
func (p *PingPong) Image(i int) gpu.Image { return p.images[i&1] }

// Write returns the image written when the ping-pong index is pingPong.
func (p *PingPong) Write(pingPong int) gpu.Image { return p.images[pingPong&1] }

// History returns the image read as history when the ping-pong index is pingPong.
func (p *PingPong) History(pingPong int) gpu.Image { return p.images[(pingPong+1)&1] }

// Destroy releases both images.
func (p *PingPong) Destroy() {
	for i, img := range p.images {
		if img != nil {
			img.Destroy()
			p.images[i] = nil
		}
	}
}
