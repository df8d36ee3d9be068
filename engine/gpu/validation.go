package gpu

import (
	"fmt"
	"strings"
)

// WarningCategory names a class of validation warnings that may be suppressed.
type WarningCategory int

const (
	// WarningUncategorized is never suppressed.
	WarningUncategorized WarningCategory = iota
	// WarningBestPracticesSmallDedicatedAllocation fires for small buffers given their own
	// allocation, which every per-mesh acceleration-structure buffer is.
	WarningBestPracticesSmallDedicatedAllocation
	// WarningBestPracticesHostVisibleDeviceBuffer fires for host-visible buffers used as
	// device inputs, such as the TLAS instance buffer.
	WarningBestPracticesHostVisibleDeviceBuffer
	// WarningPerformanceWaitIdle fires for queue or device idle waits.
	WarningPerformanceWaitIdle
	// WarningPerformanceRedundantBarrier fires for a barrier whose old and new layout match and
	// that carries no access change.
	WarningPerformanceRedundantBarrier
)

var warningNames = [...]string{
	"uncategorized",
	"small-dedicated-allocation",
	"host-visible-device-buffer",
	"wait-idle",
	"redundant-barrier",
}

func (c WarningCategory) String() string {
	if int(c) >= 0 && int(c) < len(warningNames) {
		return warningNames[c]
	}
	return "uncategorized"
}

// ParseWarningCategory maps a category name to its value.
//
// Parameters:
//   - name: the category name, case-insensitive
//
// Returns:
//   - WarningCategory: the category
//   - error: if the name is unknown or names the uncategorized bucket
func ParseWarningCategory(name string) (WarningCategory, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for i, w := range warningNames {
		if i > 0 && w == n {
			return WarningCategory(i), nil
		}
	}
	return WarningUncategorized, fmt.Errorf("unknown warning category %q", name)
}

// WarningCategories returns every suppressible category.
func WarningCategories() []WarningCategory {
	out := make([]WarningCategory, 0, len(warningNames)-1)
	for i := 1; i < len(warningNames); i++ {
		out = append(out, WarningCategory(i))
	}
	return out
}

// Severity of a validation message.
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
)

func (s Severity) String() string {
	if s == SeverityError {
		return "error"
	}
	return "warning"
}

// ValidationMessage is one message produced by a validating device.
type ValidationMessage struct {
	Severity Severity
	Category WarningCategory
	Text     string
}

func (m ValidationMessage) String() string {
	return fmt.Sprintf("[%s/%s] %s", m.Severity, m.Category, m.Text)
}
