package pipeline

import (
	"sort"
	"time"

	"github.com/noobrehan18/OpsPulse/pkg/domain"
)

// LatePolicy controls what happens to records that arrive behind the
// watermark, after their window has already closed.
type LatePolicy string

const (
	// LatePolicyDrop drops late records and counts them (default)
	LatePolicyDrop LatePolicy = "drop"
)

// Aggregator maintains the open-window state table for one shard. It is
// not safe for concurrent use: each shard goroutine owns exactly one
// aggregator, so per-key window state is never updated from two
// goroutines.
type Aggregator struct {
	duration time.Duration
	policy   LatePolicy

	windows map[domain.WindowKey]*domain.WindowAggregate

	lateDropped int64
}

// NewAggregator creates an aggregator for the given window duration
func NewAggregator(duration time.Duration, policy LatePolicy) *Aggregator {
	if policy == "" {
		policy = LatePolicyDrop
	}
	return &Aggregator{
		duration: duration,
		policy:   policy,
		windows:  make(map[domain.WindowKey]*domain.WindowAggregate),
	}
}

// Add folds a record into its window. Records whose window has already
// passed the watermark are late: they are never merged into a closed
// aggregate, and under the drop policy they are counted and discarded.
func (a *Aggregator) Add(rec *domain.EnrichedRecord, watermark time.Time) error {
	key := WindowKeyFor(rec, a.duration)

	if !watermark.IsZero() && !key.WindowEnd.After(watermark) {
		a.lateDropped++
		return ErrLateRecord(key.String(), watermark.Sub(rec.EventTime).String())
	}

	agg, ok := a.windows[key]
	if !ok {
		agg = &domain.WindowAggregate{}
		a.windows[key] = agg
	}
	agg.Observe(rec)
	return nil
}

// AdvanceWatermark closes every window whose end boundary is at or before
// the watermark. Each window is emitted exactly once, by value, in
// deterministic order so replays produce identical output sequences.
func (a *Aggregator) AdvanceWatermark(watermark time.Time) []domain.ClosedWindow {
	if watermark.IsZero() {
		return nil
	}

	var closed []domain.ClosedWindow
	for key, agg := range a.windows {
		if !key.WindowEnd.After(watermark) {
			closed = append(closed, domain.ClosedWindow{Key: key, Aggregate: *agg})
			delete(a.windows, key)
		}
	}

	sortClosedWindows(closed)
	return closed
}

// Drain closes all remaining open windows regardless of the watermark.
// Used by the emit-on-shutdown drain policy so in-flight windows are not
// silently lost.
func (a *Aggregator) Drain() []domain.ClosedWindow {
	closed := make([]domain.ClosedWindow, 0, len(a.windows))
	for key, agg := range a.windows {
		closed = append(closed, domain.ClosedWindow{Key: key, Aggregate: *agg})
		delete(a.windows, key)
	}

	sortClosedWindows(closed)
	return closed
}

// OpenWindows returns the number of windows currently open
func (a *Aggregator) OpenWindows() int {
	return len(a.windows)
}

// LateDropped returns how many late records this shard has dropped
func (a *Aggregator) LateDropped() int64 {
	return a.lateDropped
}

// sortClosedWindows orders closed windows by start boundary, then key
func sortClosedWindows(closed []domain.ClosedWindow) {
	sort.Slice(closed, func(i, j int) bool {
		ki, kj := closed[i].Key, closed[j].Key
		if !ki.WindowStart.Equal(kj.WindowStart) {
			return ki.WindowStart.Before(kj.WindowStart)
		}
		if ki.Service != kj.Service {
			return ki.Service < kj.Service
		}
		return ki.Level < kj.Level
	})
}
