package gpu

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckResultToleratesSuboptimal(t *testing.T) {
	assert.NoError(t, CheckResult("vkQueuePresentKHR", Success))
	assert.NoError(t, CheckResult("vkQueuePresentKHR", Suboptimal))

	err := CheckResult("vkQueuePresentKHR", ErrorOutOfDate)
	require.Error(t, err)
	assert.Equal(t, ErrorKindOutOfDate, KindOf(err))
	assert.Equal(t, ErrorOutOfDate, ResultOf(err))
	assert.False(t, IsFatal(err))

	err = CheckResult("vkQueueSubmit", ErrorDeviceLost)
	assert.True(t, IsFatal(err))
	assert.Contains(t, err.Error(), "ERROR_DEVICE_LOST")
}

func TestKindOfUnwraps(t *testing.T) {
	inner := NewError("buildBottomLevel", ErrorKindZeroSize, "mesh %d", 3)
	wrapped := fmt.Errorf("build acceleration structures: %w", inner)
	assert.Equal(t, ErrorKindZeroSize, KindOf(wrapped))
	assert.Equal(t, ErrorKindUnknown, KindOf(errors.New("plain")))
	assert.Equal(t, ErrorKindNone, KindOf(nil))
	assert.False(t, IsFatal(nil))
}

func TestInstanceRecordLayout(t *testing.T) {
	in := ASInstance{
		Transform:                      [12]float32{1, 0, 0, 5, 0, 1, 0, 6, 0, 0, 1, 7},
		CustomIndex:                    0x123456,
		Mask:                           0xFF,
		ShaderBindingTableRecordOffset: 2,
		Flags:                          GeometryInstanceTriangleFacingCullDisable,
		AccelerationStructureReference: 0xDEADBEEF00,
	}
	buf := make([]byte, ASInstanceSize)
	require.NoError(t, in.Marshal(buf))

	assert.Equal(t, []byte{0x56, 0x34, 0x12, 0xFF}, buf[48:52])
	assert.Equal(t, []byte{0x02, 0x00, 0x00, 0x01}, buf[52:56])

	out, err := UnmarshalASInstance(buf)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestInstanceRecordRejectsWideFields(t *testing.T) {
	buf := make([]byte, ASInstanceSize)
	assert.Error(t, ASInstance{CustomIndex: 1 << 24}.Marshal(buf))
	assert.Error(t, ASInstance{}.Marshal(buf[:10]))
}

func TestAlignUp(t *testing.T) {
	assert.Equal(t, uint64(32), AlignUp(32, 32))
	assert.Equal(t, uint64(64), AlignUp(33, 32))
	assert.Equal(t, uint64(7), AlignUp(7, 0))
}

func TestParseWarningCategory(t *testing.T) {
	c, err := ParseWarningCategory(" Small-Dedicated-Allocation ")
	require.NoError(t, err)
	assert.Equal(t, WarningBestPracticesSmallDedicatedAllocation, c)

	_, err = ParseWarningCategory("uncategorized")
	assert.Error(t, err)
	_, err = ParseWarningCategory("-602362517")
	assert.Error(t, err)

	assert.Len(t, WarningCategories(), 4)
}

func TestMipExtent(t *testing.T) {
	assert.Equal(t, Extent2D{Width: 20, Height: 10}, MipExtent(Extent2D{Width: 80, Height: 40}, 2))
	assert.Equal(t, Extent2D{Width: 1, Height: 1}, MipExtent(Extent2D{Width: 4, Height: 2}, 5))
}
