// Package profiler collects per-frame phase timings and memory statistics and renders them as a
// summary table.
package profiler

import (
	"bytes"
	"fmt"
	"runtime"
	"sort"
	"time"

	"github.com/Carmen-Shannon/oxy-rt/engine/log"
	"github.com/olekukonko/tablewriter"
)

var logger = log.New("profiler")

// Phase names recorded by the frame loop.
const (
	PhaseAcquire = "acquire"
	PhaseTLAS    = "tlas update"
	PhaseRecord  = "record"
	PhaseSubmit  = "submit"
	PhasePresent = "present"
)

type phaseStats struct {
	count    int
	total    time.Duration
	min, max time.Duration
}

func (s *phaseStats) add(d time.Duration) {
	if s.count == 0 || d < s.min {
		s.min = d
	}
	if d > s.max {
		s.max = d
	}
	s.count++
	s.total += d
}

func (s *phaseStats) mean() time.Duration {
	if s.count == 0 {
		return 0
	}
	return s.total / time.Duration(s.count)
}

// Profiler tracks phase durations per frame and frame rate. It is used from the single recording
// goroutine and is not safe for concurrent use.
type Profiler struct {
	phases map[string]*phaseStats
	order  []string

	frames      int
	started     time.Time
	lastTime    time.Time
	interval    time.Duration
	tickFrames  int
	memStats    runtime.MemStats
	lastGCCount uint32
}

// NewProfiler creates a profiler that logs a frame-rate line at most once per interval.
//
// Parameters:
//   - interval: minimum time between Tick log lines, 0 for one second
//
// Returns:
//   - *Profiler: the profiler
func NewProfiler(interval time.Duration) *Profiler {
	if interval <= 0 {
		interval = time.Second
	}
	now := time.Now()
	return &Profiler{
		phases:   map[string]*phaseStats{},
		started:  now,
		lastTime: now,
		interval: interval,
	}
}

// Record adds one sample of a phase.
func (p *Profiler) Record(phase string, d time.Duration) {
	s, ok := p.phases[phase]
	if !ok {
		s = &phaseStats{}
		p.phases[phase] = s
		p.order = append(p.order, phase)
	}
	s.add(d)
}

// Time runs fn and records its duration under phase.
//
// Parameters:
//   - phase: the phase name
//   - fn: the work to time
//
// Returns:
//   - error: the error of fn
func (p *Profiler) Time(phase string, fn func() error) error {
	start := time.Now()
	err := fn()
	p.Record(phase, time.Since(start))
	return err
}

// Tick marks the end of a frame and logs frame rate and heap usage once per interval.
//
// Returns:
//   - bool: true if a line was logged
func (p *Profiler) Tick() bool {
	p.frames++
	p.tickFrames++
	now := time.Now()
	elapsed := now.Sub(p.lastTime)
	if elapsed < p.interval {
		return false
	}
	runtime.ReadMemStats(&p.memStats)
	fps := float64(p.tickFrames) / elapsed.Seconds()
	heapMB := float64(p.memStats.Alloc) / 1024 / 1024
	gcs := p.memStats.NumGC - p.lastGCCount
	logger.Infof("%.1f fps, heap %.2f MB, %d GCs", fps, heapMB, gcs)

	p.tickFrames = 0
	p.lastTime = now
	p.lastGCCount = p.memStats.NumGC
	return true
}

// Frames returns the number of ticked frames.
func (p *Profiler) Frames() int { return p.frames }

// Mean returns the mean duration of a phase, zero if it was never recorded.
func (p *Profiler) Mean(phase string) time.Duration {
	if s, ok := p.phases[phase]; ok {
		return s.mean()
	}
	return 0
}

// Summary renders a table of every recorded phase in first-recorded order, with a total row.
//
// Returns:
//   - string: the rendered table
func (p *Profiler) Summary() string {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	table.SetHeader([]string{"Phase", "Samples", "Mean", "Min", "Max", "% of frame"})

	var frameTotal time.Duration
	for _, s := range p.phases {
		frameTotal += s.total
	}
	for _, name := range p.order {
		s := p.phases[name]
		share := 0.0
		if frameTotal > 0 {
			share = 100 * float64(s.total) / float64(frameTotal)
		}
		table.Append([]string{
			name,
			fmt.Sprintf("%d", s.count),
			s.mean().String(),
			s.min.String(),
			s.max.String(),
			fmt.Sprintf("%02.1f %%", share),
		})
	}
	wall := time.Since(p.started)
	fps := 0.0
	if wall > 0 {
		fps = float64(p.frames) / wall.Seconds()
	}
	table.SetFooter([]string{"TOTAL", fmt.Sprintf("%d frames", p.frames), "", "", fmt.Sprintf("%.1f fps", fps), wall.Round(time.Millisecond).String()})
	table.Render()
	return buf.String()
}

// Phases returns the recorded phase names sorted alphabetically.
func (p *Profiler) Phases() []string {
	out := append([]string(nil), p.order...)
	sort.Strings(out)
	return out
}
