package gpu

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ASInstanceSize is the byte size of one packed instance record.
const ASInstanceSize = 64

// ASInstance is one top-level instance record in the layout consumed by TLAS builds.
//
// Transform holds the first three rows of the instance's object-to-world matrix, row-major.
// CustomIndex and SBTRecordOffset are 24-bit fields; Mask and Flags are 8-bit fields.
type ASInstance struct {
	Transform                      [12]float32
	CustomIndex                    uint32
	Mask                           uint8
	ShaderBindingTableRecordOffset uint32
	Flags                          GeometryInstanceFlags
	AccelerationStructureReference DeviceAddress
}

// Marshal writes the packed 64-byte record into dst.
//
// Parameters:
//   - dst: destination slice of at least ASInstanceSize bytes
//
// Returns:
//   - error: if dst is too short or a 24-bit field overflows
func (i ASInstance) Marshal(dst []byte) error {
	if len(dst) < ASInstanceSize {
		return fmt.Errorf("instance record needs %d bytes, got %d", ASInstanceSize, len(dst))
	}
	if i.CustomIndex > 0xFFFFFF || i.ShaderBindingTableRecordOffset > 0xFFFFFF {
		return fmt.Errorf("instance custom index %d or sbt offset %d exceeds 24 bits", i.CustomIndex, i.ShaderBindingTableRecordOffset)
	}
	for k, f := range i.Transform {
		binary.LittleEndian.PutUint32(dst[k*4:], math.Float32bits(f))
	}
	binary.LittleEndian.PutUint32(dst[48:], i.CustomIndex|uint32(i.Mask)<<24)
	binary.LittleEndian.PutUint32(dst[52:], i.ShaderBindingTableRecordOffset|uint32(i.Flags)<<24)
	binary.LittleEndian.PutUint64(dst[56:], uint64(i.AccelerationStructureReference))
	return nil
}

// UnmarshalASInstance decodes one packed record.
//
// Parameters:
//   - src: at least ASInstanceSize bytes
//
// Returns:
//   - ASInstance: the decoded record
//   - error: if src is too short
func UnmarshalASInstance(src []byte) (ASInstance, error) {
	var i ASInstance
	if len(src) < ASInstanceSize {
		return i, fmt.Errorf("instance record needs %d bytes, got %d", ASInstanceSize, len(src))
	}
	for k := range i.Transform {
		i.Transform[k] = math.Float32frombits(binary.LittleEndian.Uint32(src[k*4:]))
	}
	w := binary.LittleEndian.Uint32(src[48:])
	i.CustomIndex = w & 0xFFFFFF
	i.Mask = uint8(w >> 24)
	w = binary.LittleEndian.Uint32(src[52:])
	i.ShaderBindingTableRecordOffset = w & 0xFFFFFF
	i.Flags = GeometryInstanceFlags(w >> 24)
	i.AccelerationStructureReference = DeviceAddress(binary.LittleEndian.Uint64(src[56:]))
	return i, nil
}
