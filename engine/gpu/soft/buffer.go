package soft

import (
	"sort"

	"github.com/Carmen-Shannon/oxy-rt/engine/gpu"
)

// The first device address handed out; zero stays the null address.
const addressBase = 0x10000

// Buffers are placed on this alignment in the device address space.
const addressAlignment = 256

// Buffers at or below this size carrying acceleration-structure storage trigger the
// small dedicated allocation warning.
const smallAllocationThreshold = 64 * 1024

type buffer struct {
	dev     *Device
	label   string
	size    uint64
	usage   gpu.BufferUsage
	props   gpu.MemoryProperty
	address gpu.DeviceAddress
	data    []byte

	mapped    bool
	destroyed bool
}

func (b *buffer) Label() string                        { return b.label }
func (b *buffer) Size() uint64                         { return b.size }
func (b *buffer) Usage() gpu.BufferUsage               { return b.usage }
func (b *buffer) MemoryProperties() gpu.MemoryProperty { return b.props }

func (b *buffer) DeviceAddress() (gpu.DeviceAddress, error) {
	if b.usage&gpu.BufferUsageShaderDeviceAddress == 0 {
		return 0, gpu.NewError("vkGetBufferDeviceAddress", gpu.ErrorKindInvalidUsage, "buffer %q lacks SHADER_DEVICE_ADDRESS usage", b.label)
	}
	return b.address, nil
}

func (b *buffer) Map() ([]byte, error) {
	if b.destroyed {
		return nil, gpu.NewError("vkMapMemory", gpu.ErrorKindInvalidUsage, "buffer %q destroyed", b.label)
	}
	if b.props&gpu.MemoryPropertyHostVisible == 0 {
		return nil, gpu.NewError("vkMapMemory", gpu.ErrorKindInvalidUsage, "buffer %q is not host visible", b.label)
	}
	if b.mapped {
		return nil, gpu.NewError("vkMapMemory", gpu.ErrorKindInvalidUsage, "buffer %q already mapped", b.label)
	}
	b.mapped = true
	return b.data, nil
}

func (b *buffer) Unmap() {
	b.mapped = false
}

func (b *buffer) Destroy() {
	if b.destroyed {
		return
	}
	b.destroyed = true
	b.dev.releaseBuffer(b)
}

// Bytes returns the raw contents of a buffer created by a soft Device, regardless of its memory
// properties. Intended for tests and readback tooling.
func Bytes(buf gpu.Buffer) []byte {
	if b, ok := buf.(*buffer); ok {
		return b.data
	}
	return nil
}

// CreateBuffer allocates a buffer and places it in the device address space.
//
// Parameters:
//   - desc: the buffer description
//
// Returns:
//   - gpu.Buffer: the buffer
//   - error: on zero size, unsatisfiable memory properties or exhausted budget
func (d *Device) CreateBuffer(desc gpu.BufferDescriptor) (gpu.Buffer, error) {
	if desc.Size == 0 {
		return nil, gpu.NewError("vkCreateBuffer", gpu.ErrorKindInvalidUsage, "buffer %q has zero size", desc.Label)
	}
	props, ok := chooseMemoryType(desc.Required, desc.Preferred)
	if !ok {
		return nil, &gpu.Error{Op: "vkAllocateMemory", Kind: gpu.ErrorKindUnsupported, Result: gpu.ErrorFeatureNotPresent}
	}
	if desc.Usage&gpu.BufferUsageShaderDeviceAddress != 0 && !d.features.BufferDeviceAddress {
		return nil, &gpu.Error{Op: "vkCreateBuffer", Kind: gpu.ErrorKindUnsupported, Result: gpu.ErrorFeatureNotPresent}
	}
	if d.memoryBudget > 0 && d.memoryUsed+desc.Size > d.memoryBudget {
		return nil, &gpu.Error{Op: "vkAllocateMemory", Kind: gpu.ErrorKindOutOfMemory, Result: gpu.ErrorOutOfDeviceMemory}
	}

	b := &buffer{
		dev:   d,
		label: desc.Label,
		size:  desc.Size,
		usage: desc.Usage,
		props: props,
		data:  make([]byte, desc.Size),
	}
	b.address = gpu.DeviceAddress(d.nextAddress)
	d.nextAddress = gpu.AlignUp(d.nextAddress+desc.Size, addressAlignment)
	d.memoryUsed += desc.Size
	d.buffers = append(d.buffers, b)
	d.stats.BuffersCreated++

	if desc.Usage&gpu.BufferUsageAccelerationStructureStorage != 0 && desc.Size <= smallAllocationThreshold {
		d.warn(gpu.WarningBestPracticesSmallDedicatedAllocation, "buffer %q of %d bytes uses a dedicated allocation", desc.Label, desc.Size)
	}
	return b, nil
}

func chooseMemoryType(required, preferred gpu.MemoryProperty) (gpu.MemoryProperty, bool) {
	types := []gpu.MemoryProperty{
		gpu.MemoryPropertyDeviceLocal,
		gpu.MemoryPropertyHostVisible | gpu.MemoryPropertyHostCoherent,
		gpu.MemoryPropertyDeviceLocal | gpu.MemoryPropertyHostVisible | gpu.MemoryPropertyHostCoherent,
	}
	for _, want := range []gpu.MemoryProperty{required | preferred, required} {
		for _, t := range types {
			if t&want == want {
				return t, true
			}
		}
	}
	return 0, false
}

func (d *Device) releaseBuffer(b *buffer) {
	for i, other := range d.buffers {
		if other == b {
			d.buffers = append(d.buffers[:i], d.buffers[i+1:]...)
			break
		}
	}
	d.memoryUsed -= b.size
	for addr, as := range d.structures {
		if as.buf == b {
			delete(d.structures, addr)
		}
	}
}

// resolve maps a device address to its buffer and the offset into it. Buffers are kept in
// address order since addresses only grow.
func (d *Device) resolve(addr gpu.DeviceAddress) (*buffer, uint64, bool) {
	i := sort.Search(len(d.buffers), func(i int) bool {
		return d.buffers[i].address+gpu.DeviceAddress(d.buffers[i].size) > addr
	})
	if i == len(d.buffers) || d.buffers[i].address > addr {
		return nil, 0, false
	}
	b := d.buffers[i]
	return b, uint64(addr - b.address), true
}

// resolveRange resolves addr and checks that size bytes are available from it.
func (d *Device) resolveRange(addr gpu.DeviceAddress, size uint64) ([]byte, *buffer, bool) {
	b, off, ok := d.resolve(addr)
	if !ok || off+size > b.size {
		return nil, nil, false
	}
	return b.data[off : off+size], b, true
}
