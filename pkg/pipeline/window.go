package pipeline

import (
	"sync"
	"time"

	"github.com/noobrehan18/OpsPulse/pkg/domain"
)

// AssignWindow maps an event time onto its tumbling window. Boundaries are
// aligned to Unix-epoch multiples of the duration, so windows are
// contiguous, non-overlapping, and the same event time always lands in the
// same window for any duration.
func AssignWindow(ts time.Time, duration time.Duration) (start, end time.Time) {
	offset := time.Duration(ts.UnixNano()) % duration
	if offset < 0 {
		offset += duration
	}
	start = ts.Add(-offset)
	return start, start.Add(duration)
}

// WindowKeyFor builds the aggregation key for an enriched record
func WindowKeyFor(rec *domain.EnrichedRecord, duration time.Duration) domain.WindowKey {
	start, end := AssignWindow(rec.EventTime, duration)
	return domain.WindowKey{
		Service:     rec.Service,
		Level:       rec.Level,
		WindowStart: start,
		WindowEnd:   end,
	}
}

// Watermark tracks the completeness estimate for event time. It advances to
// the maximum observed event time minus the allowed lateness and never
// regresses. With no allowed lateness any record older than the max-seen
// event time is late.
type Watermark struct {
	mu              sync.RWMutex
	maxEventTime    time.Time
	allowedLateness time.Duration
}

// NewWatermark creates a watermark with the given lateness grace period
func NewWatermark(allowedLateness time.Duration) *Watermark {
	return &Watermark{allowedLateness: allowedLateness}
}

// Observe records an event time and returns the current watermark
func (w *Watermark) Observe(eventTime time.Time) time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	if eventTime.After(w.maxEventTime) {
		w.maxEventTime = eventTime
	}
	return w.current()
}

// Current returns the watermark without observing anything
func (w *Watermark) Current() time.Time {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current()
}

func (w *Watermark) current() time.Time {
	if w.maxEventTime.IsZero() {
		return time.Time{}
	}
	return w.maxEventTime.Add(-w.allowedLateness)
}
