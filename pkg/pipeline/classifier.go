package pipeline

import (
	"time"

	"github.com/google/uuid"

	"github.com/noobrehan18/OpsPulse/pkg/domain"
)

// Spike rule thresholds. The rule set is a fixed-count threshold, not a
// rolling z-score: classification depends only on the single closed
// window, so replaying the same windows yields the same decisions.
const (
	// SpikeErrorThreshold is the error count that flags a window on its own
	SpikeErrorThreshold = 5

	// ActionableErrorRate is the error rate above which a non-spike
	// window is still emitted
	ActionableErrorRate = 0.10
)

// Classify turns a closed window into an AlertEvent. Rules, OR-combined:
// any labelled anomaly in the window, or error_count at or above the
// threshold, flags the window as a spike.
func Classify(w domain.ClosedWindow, now time.Time) domain.AlertEvent {
	agg := w.Aggregate

	isSpike := agg.AnomalyCount > 0 || agg.ErrorCount >= SpikeErrorThreshold

	errorRate := 0.0
	if agg.LogCount > 0 {
		errorRate = float64(agg.ErrorCount) / float64(agg.LogCount)
	}

	return domain.AlertEvent{
		AlertID:         uuid.NewString(),
		Service:         agg.FirstService,
		Level:           agg.FirstLevel,
		WindowStart:     w.Key.WindowStart,
		WindowEnd:       w.Key.WindowEnd,
		LogCount:        agg.LogCount,
		ErrorCount:      agg.ErrorCount,
		AnomalyCount:    agg.AnomalyCount,
		AvgResponseTime: agg.AvgResponseTime(),
		MaxResponseTime: agg.MaxResponseTime,
		MinResponseTime: agg.MinResponseTime,
		MaxAnomalyScore: agg.MaxAnomalyScore,
		IsSpike:         isSpike,
		ErrorRate:       errorRate,
		EmittedAt:       now,
	}
}
