package gpu

import "fmt"

// WriteMapped copies data into a host-visible buffer at offset through a temporary mapping.
//
// Parameters:
//   - buf: host-visible destination
//   - offset: destination byte offset
//   - data: bytes to copy
//
// Returns:
//   - error: if the buffer cannot be mapped or the range overflows
func WriteMapped(buf Buffer, offset uint64, data []byte) error {
	if offset+uint64(len(data)) > buf.Size() {
		return NewError("writeMapped", ErrorKindInvalidUsage, "%d bytes at offset %d overflow buffer %q of %d bytes", len(data), offset, buf.Label(), buf.Size())
	}
	mem, err := buf.Map()
	if err != nil {
		return fmt.Errorf("map %q: %w", buf.Label(), err)
	}
	copy(mem[offset:], data)
	buf.Unmap()
	return nil
}

// UpdateBufferUsingStagingBuffer uploads data into dst through a host-visible staging buffer and
// records the copy into cmd. The returned staging buffer must stay alive until the submission that
// executes cmd has completed; the caller destroys it.
//
// Parameters:
//   - device: the device that creates the staging buffer
//   - dst: destination buffer, must have BufferUsageTransferDst
//   - cmd: a command buffer in the recording state
//   - data: bytes to upload
//   - dstOffset: destination byte offset
//
// Returns:
//   - Buffer: the staging buffer
//   - error: on allocation or mapping failure
func UpdateBufferUsingStagingBuffer(device Device, dst Buffer, cmd CommandBuffer, data []byte, dstOffset uint64) (Buffer, error) {
	if dst.Usage()&BufferUsageTransferDst == 0 {
		return nil, NewError("updateBufferUsingStagingBuffer", ErrorKindInvalidUsage, "buffer %q lacks TRANSFER_DST usage", dst.Label())
	}
	staging, err := device.CreateBuffer(BufferDescriptor{
		Label:    dst.Label() + ".staging",
		Size:     uint64(len(data)),
		Usage:    BufferUsageTransferSrc,
		Required: MemoryPropertyHostVisible | MemoryPropertyHostCoherent,
	})
	if err != nil {
		return nil, fmt.Errorf("create staging buffer: %w", err)
	}
	if err := WriteMapped(staging, 0, data); err != nil {
		staging.Destroy()
		return nil, err
	}
	cmd.CopyBuffer(staging, dst, BufferCopy{SrcOffset: 0, DstOffset: dstOffset, Size: uint64(len(data))})
	return staging, nil
}

// SubmitAndWait submits cmd alone and waits for the queue to idle. Used only by load-time work.
//
// Parameters:
//   - queue: the queue to submit to
//   - cmd: an ended command buffer
//
// Returns:
//   - error: on submission or wait failure
func SubmitAndWait(queue Queue, cmd CommandBuffer) error {
	if err := queue.Submit([]SubmitInfo{{CommandBuffers: []CommandBuffer{cmd}}}, nil); err != nil {
		return err
	}
	return queue.WaitIdle()
}
