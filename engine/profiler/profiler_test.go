package profiler

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAggregates(t *testing.T) {
	p := NewProfiler(time.Hour)
	p.Record(PhaseRecord, 2*time.Millisecond)
	p.Record(PhaseRecord, 4*time.Millisecond)
	p.Record(PhaseAcquire, time.Millisecond)

	assert.Equal(t, 3*time.Millisecond, p.Mean(PhaseRecord))
	assert.Equal(t, time.Millisecond, p.Mean(PhaseAcquire))
	assert.Zero(t, p.Mean(PhaseSubmit))
	assert.Equal(t, []string{PhaseAcquire, PhaseRecord}, p.Phases())
}

func TestTimePassesErrorThrough(t *testing.T) {
	p := NewProfiler(time.Hour)
	boom := errors.New("boom")
	assert.ErrorIs(t, p.Time(PhaseSubmit, func() error { return boom }), boom)
	require.NoError(t, p.Time(PhaseSubmit, func() error { return nil }))
	assert.Equal(t, []string{PhaseSubmit}, p.Phases())
}

func TestTickRespectsInterval(t *testing.T) {
	p := NewProfiler(time.Hour)
	assert.False(t, p.Tick())
	assert.False(t, p.Tick())
	assert.Equal(t, 2, p.Frames())
}

func TestSummaryListsPhasesInOrder(t *testing.T) {
	p := NewProfiler(time.Hour)
	p.Record(PhaseTLAS, time.Millisecond)
	p.Record(PhaseRecord, time.Millisecond)
	p.Tick()

	out := p.Summary()
	assert.Contains(t, out, "Phase")
	assert.Contains(t, out, "1 frames")
	assert.Less(t, strings.Index(out, PhaseTLAS), strings.Index(out, PhaseRecord))
	assert.Contains(t, out, "50.0 %")
}
