package accel

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine/gpu"
)

// InstanceTable is the host-side image of a TLAS instance buffer. Its backing array is reused
// between packs.
type InstanceTable struct {
	data  []byte
	count int
}

// Pack serializes instances into 64-byte records. Each instance references the BLAS of its model.
//
// Parameters:
//   - instances: the instances to pack
//   - blas: the built bottom-level structures indexed by model
//
// Returns:
//   - error: if an instance references a missing BLAS or a 24-bit field overflows
func (t *InstanceTable) Pack(instances []Instance, blas []gpu.AccelerationStructure) error {
	size := len(instances) * gpu.ASInstanceSize
	if cap(t.data) < size {
		t.data = make([]byte, size)
	}
	t.data = t.data[:size]
	t.count = 0
	for i, inst := range instances {
		if int(inst.ModelIndex) >= len(blas) || blas[inst.ModelIndex] == nil {
			return gpu.NewError("packInstances", gpu.ErrorKindInvalidUsage, "instance %d references model %d without a BLAS", i, inst.ModelIndex)
		}
		rec := gpu.ASInstance{
			Transform:                      common.RowMajor3x4(inst.Transform),
			CustomIndex:                    inst.InstanceID,
			Mask:                           inst.Mask,
			ShaderBindingTableRecordOffset: inst.HitGroup,
			Flags:                          inst.Flags,
			AccelerationStructureReference: blas[inst.ModelIndex].DeviceAddress(),
		}
		if err := rec.Marshal(t.data[i*gpu.ASInstanceSize:]); err != nil {
			return fmt.Errorf("instance %d: %w", i, err)
		}
	}
	t.count = len(instances)
	return nil
}

func (t *InstanceTable) Bytes() []byte { return t.data }
func (t *InstanceTable) Len() int      { return t.count }

// Record decodes record i.
func (t *InstanceTable) Record(i int) (gpu.ASInstance, error) {
	if i < 0 || i >= t.count {
		return gpu.ASInstance{}, fmt.Errorf("instance record %d out of range [0,%d)", i, t.count)
	}
	return gpu.UnmarshalASInstance(t.data[i*gpu.ASInstanceSize:])
}
