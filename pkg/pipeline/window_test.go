package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAssignWindow_EpochAligned(t *testing.T) {
	dur := 60 * time.Second

	ts := time.Date(2024, 1, 15, 10, 0, 42, 500000000, time.UTC)
	start, end := AssignWindow(ts, dur)

	assert.Equal(t, time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2024, 1, 15, 10, 1, 0, 0, time.UTC), end)
	assert.Equal(t, dur, end.Sub(start))
}

func TestAssignWindow_EpochAlignedForOddDurations(t *testing.T) {
	// Durations that do not divide a day evenly must still align to
	// Unix-epoch multiples of the duration
	tests := []struct {
		dur time.Duration
		ts  time.Time
	}{
		{7 * time.Second, time.Date(2024, 1, 15, 10, 0, 42, 500000000, time.UTC)},
		{13 * time.Minute, time.Date(2024, 1, 15, 10, 0, 42, 0, time.UTC)},
		{90 * time.Second, time.Date(2024, 1, 15, 23, 59, 59, 0, time.UTC)},
	}

	for _, tt := range tests {
		start, end := AssignWindow(tt.ts, tt.dur)

		durSec := int64(tt.dur / time.Second)
		assert.Zero(t, start.Unix()%durSec, "start %v not an epoch multiple of %v", start, tt.dur)
		assert.Equal(t, tt.dur, end.Sub(start))
		assert.False(t, tt.ts.Before(start))
		assert.True(t, tt.ts.Before(end))
	}
}

func TestAssignWindow_Deterministic(t *testing.T) {
	dur := 60 * time.Second
	ts := time.Date(2024, 1, 15, 10, 0, 42, 0, time.UTC)

	s1, e1 := AssignWindow(ts, dur)
	s2, e2 := AssignWindow(ts, dur)
	assert.Equal(t, s1, s2)
	assert.Equal(t, e1, e2)
}

func TestAssignWindow_ContiguousNonOverlapping(t *testing.T) {
	dur := 60 * time.Second

	// Walk five minutes of event times; consecutive windows must tile
	// the timeline with end(n) == start(n+1)
	var prevEnd time.Time
	base := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		ts := base.Add(time.Duration(i) * dur).Add(30 * time.Second)
		start, end := AssignWindow(ts, dur)
		if i > 0 {
			assert.Equal(t, prevEnd, start, "window %d not contiguous", i)
		}
		assert.True(t, start.Before(end))
		prevEnd = end
	}
}

func TestAssignWindow_BoundaryBelongsToNextWindow(t *testing.T) {
	dur := 60 * time.Second
	boundary := time.Date(2024, 1, 15, 10, 1, 0, 0, time.UTC)

	start, end := AssignWindow(boundary, dur)
	assert.Equal(t, boundary, start)
	assert.Equal(t, boundary.Add(dur), end)
}

func TestWatermark_Monotonic(t *testing.T) {
	wm := NewWatermark(0)

	t1 := time.Date(2024, 1, 15, 10, 0, 30, 0, time.UTC)
	t2 := t1.Add(time.Minute)

	assert.Equal(t, t1, wm.Observe(t1))
	assert.Equal(t, t2, wm.Observe(t2))

	// Older observations never regress the watermark
	assert.Equal(t, t2, wm.Observe(t1))
	assert.Equal(t, t2, wm.Current())
}

func TestWatermark_AllowedLateness(t *testing.T) {
	grace := 10 * time.Second
	wm := NewWatermark(grace)

	t1 := time.Date(2024, 1, 15, 10, 0, 30, 0, time.UTC)
	assert.Equal(t, t1.Add(-grace), wm.Observe(t1))
}

func TestWatermark_ZeroBeforeFirstObservation(t *testing.T) {
	wm := NewWatermark(0)
	assert.True(t, wm.Current().IsZero())
}
