// Package soft is a CPU implementation of the gpu device interfaces. It executes acceleration
// structure builds, ray queries, ray-tracing pipelines, draws and dispatches on the host and
// validates the synchronization a real driver would require.
package soft

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-rt/engine/gpu"
	"github.com/Carmen-Shannon/oxy-rt/engine/log"
)

var logger = log.New("soft")

// DeviceName is reported in the device properties.
const DeviceName = "oxy-rt soft device"

// BuildKey counts acceleration structure builds by level and mode.
type BuildKey struct {
	Type gpu.AccelerationStructureType
	Mode gpu.BuildAccelerationStructureMode
}

// Stats counts device activity since creation.
type Stats struct {
	BuffersCreated int
	ImagesCreated  int
	Builds         map[BuildKey]int

	Submissions int
	// MaxOutstanding is the largest number of submissions that were executing, or not yet
	// retired by a fence wait or idle, at the same time.
	MaxOutstanding int

	// WaitIdleCalls counts Device.WaitIdle, QueueWaitIdleCalls counts Queue.WaitIdle.
	WaitIdleCalls      int
	QueueWaitIdleCalls int

	Draws      int
	Dispatches int
	TraceRays  int
	Presents   int

	Warnings           int
	SuppressedWarnings int
	Errors             int
}

// BuildCount returns the number of builds of the given level and mode.
func (s Stats) BuildCount(t gpu.AccelerationStructureType, m gpu.BuildAccelerationStructureMode) int {
	return s.Builds[BuildKey{Type: t, Mode: m}]
}

// ImageTransition is one image barrier as seen by the executor.
type ImageTransition struct {
	Image     string
	BaseMip   uint32
	MipCount  uint32
	OldLayout gpu.ImageLayout
	NewLayout gpu.ImageLayout
}

// TraceEntry is one executed command. Label is the debug label path active when the command ran.
type TraceEntry struct {
	Label   string
	Command string
	Detail  string
	Images  []ImageTransition
}

func (e TraceEntry) String() string {
	var b strings.Builder
	if e.Label != "" {
		b.WriteString(e.Label)
		b.WriteString(": ")
	}
	b.WriteString(e.Command)
	if e.Detail != "" {
		b.WriteString(" ")
		b.WriteString(e.Detail)
	}
	for _, it := range e.Images {
		fmt.Fprintf(&b, " [%s mips %d+%d %s->%s]", it.Image, it.BaseMip, it.MipCount, it.OldLayout, it.NewLayout)
	}
	return b.String()
}

// Device is the CPU reference device.
type Device struct {
	features gpu.DeviceFeatures
	props    gpu.DeviceProperties

	workers int
	pool    worker.DynamicWorkerPool

	memoryBudget uint64
	memoryUsed   uint64
	nextAddress  uint64
	buffers      []*buffer
	structures   map[gpu.DeviceAddress]*accelStructure

	pipelines      map[uint32]*pipeline
	nextPipelineID uint32

	kernelsMu sync.Mutex
	kernels   map[string]Kernel

	filter   func(gpu.WarningCategory) bool
	msgMu    sync.Mutex
	messages []gpu.ValidationMessage

	stats Stats

	traceEnabled bool
	trace        []TraceEntry

	acquireOrder  AcquireOrder
	present       PresentTarget
	presentResult func(present uint64) gpu.Result

	queue     *queue
	destroyed bool
}

// New creates a reference device. Every optional feature is enabled unless WithFeatures says
// otherwise.
//
// Parameters:
//   - options: functional options
//
// Returns:
//   - *Device: the device
func New(options ...DeviceOption) *Device {
	d := &Device{
		features: gpu.DeviceFeatures{
			AccelerationStructure: true,
			RayQuery:              true,
			RayTracingPipeline:    true,
			BufferDeviceAddress:   true,
		},
		props: gpu.DeviceProperties{
			Name:                       DeviceName,
			ShaderGroupHandleSize:      groupHandleSize,
			ShaderGroupHandleAlignment: groupHandleAlignment,
			ShaderGroupBaseAlignment:   groupBaseAlignment,
			MaxRayRecursionDepth:       31,
			MinScratchAlignment:        128,
		},
		nextAddress: addressBase,
		structures:  map[gpu.DeviceAddress]*accelStructure{},
		pipelines:   map[uint32]*pipeline{},
		kernels:     map[string]Kernel{},
		stats:       Stats{Builds: map[BuildKey]int{}},
	}
	for _, opt := range options {
		opt(d)
	}
	if d.workers > 1 {
		d.pool = worker.NewDynamicWorkerPool(d.workers, 256, 1*time.Second)
	}
	d.queue = newQueue(d)
	logger.Infof("created %s (workers=%d)", d.props.Name, d.workers)
	return d
}

func (d *Device) Properties() gpu.DeviceProperties { return d.props }
func (d *Device) Features() gpu.DeviceFeatures     { return d.features }
func (d *Device) Queue() gpu.Queue                 { return d.queue }

// Stats returns a copy of the device counters.
func (d *Device) Stats() Stats {
	s := d.stats
	s.Builds = make(map[BuildKey]int, len(d.stats.Builds))
	for k, v := range d.stats.Builds {
		s.Builds[k] = v
	}
	return s
}

// Messages returns every reported validation message.
func (d *Device) Messages() []gpu.ValidationMessage {
	d.msgMu.Lock()
	defer d.msgMu.Unlock()
	return append([]gpu.ValidationMessage(nil), d.messages...)
}

// Errors returns the reported validation errors.
func (d *Device) Errors() []gpu.ValidationMessage {
	var out []gpu.ValidationMessage
	for _, m := range d.Messages() {
		if m.Severity == gpu.SeverityError {
			out = append(out, m)
		}
	}
	return out
}

// ClearMessages drops every reported validation message.
func (d *Device) ClearMessages() {
	d.msgMu.Lock()
	defer d.msgMu.Unlock()
	d.messages = nil
}

// Trace returns the executed command log. Tracing is enabled with WithTrace.
func (d *Device) Trace() []TraceEntry {
	return append([]TraceEntry(nil), d.trace...)
}

// ResetTrace clears the executed command log.
func (d *Device) ResetTrace() {
	d.trace = nil
}

func (d *Device) warn(cat gpu.WarningCategory, format string, args ...any) {
	if cat != gpu.WarningUncategorized && d.filter != nil && !d.filter(cat) {
		d.msgMu.Lock()
		d.stats.SuppressedWarnings++
		d.msgMu.Unlock()
		return
	}
	m := gpu.ValidationMessage{Severity: gpu.SeverityWarning, Category: cat, Text: fmt.Sprintf(format, args...)}
	d.msgMu.Lock()
	d.messages = append(d.messages, m)
	d.stats.Warnings++
	d.msgMu.Unlock()
	logger.Warning(m.String())
}

func (d *Device) reportError(text string) {
	m := gpu.ValidationMessage{Severity: gpu.SeverityError, Text: text}
	d.msgMu.Lock()
	d.messages = append(d.messages, m)
	d.stats.Errors++
	d.msgMu.Unlock()
	logger.Error(m.String())
}

// validationError reports a validation error and returns it classified as invalid usage.
func (d *Device) validationError(op, format string, args ...any) error {
	cause := fmt.Errorf(format, args...)
	d.reportError(op + ": " + cause.Error())
	return &gpu.Error{Op: op, Kind: gpu.ErrorKindInvalidUsage, Result: gpu.ErrorValidationFailed, Err: cause}
}

// WaitIdle retires all submitted work and reports a wait-idle performance warning.
func (d *Device) WaitIdle() error {
	d.stats.WaitIdleCalls++
	d.warn(gpu.WarningPerformanceWaitIdle, "vkDeviceWaitIdle called")
	d.queue.retireAll()
	return nil
}

// Destroy invalidates the device. Pool workers exit after their idle timeout.
func (d *Device) Destroy() {
	if d.destroyed {
		return
	}
	d.destroyed = true
	logger.Infof("destroyed %s: %d buffers, %d images, %d submissions, %d presents",
		d.props.Name, d.stats.BuffersCreated, d.stats.ImagesCreated, d.stats.Submissions, d.stats.Presents)
}
