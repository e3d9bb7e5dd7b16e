package domain

import (
	"fmt"
	"time"
)

// WindowKey identifies one tumbling-window aggregation bucket.
// WindowEnd is always WindowStart plus the configured window duration,
// and boundaries are aligned to epoch multiples of the duration.
type WindowKey struct {
	Service     string
	Level       LogLevel
	WindowStart time.Time
	WindowEnd   time.Time
}

// String renders the key for logging
func (k WindowKey) String() string {
	return fmt.Sprintf("%s/%s[%s,%s)",
		k.Service, k.Level,
		k.WindowStart.UTC().Format(time.RFC3339),
		k.WindowEnd.UTC().Format(time.RFC3339))
}

// ShardKey is the portion of the key that determines shard placement.
// All windows of one (service, level) pair land on the same shard so
// per-key window state is never touched concurrently.
func (k WindowKey) ShardKey() string {
	return k.Service + "/" + string(k.Level)
}

// WindowAggregate accumulates statistics for one open window. It is owned
// exclusively by a single aggregator shard while open and handed off by
// value when the window closes.
type WindowAggregate struct {
	LogCount     int64 `json:"log_count"`
	ErrorCount   int64 `json:"error_count"`
	AnomalyCount int64 `json:"anomaly_count"`

	SumResponseTime float64 `json:"sum_response_time"`
	MaxResponseTime float64 `json:"max_response_time"`
	MinResponseTime float64 `json:"min_response_time"`

	MaxAnomalyScore float64 `json:"max_anomaly_score"`

	// First-seen values, arrival order within the window
	FirstService string   `json:"first_service"`
	FirstLevel   LogLevel `json:"first_level"`
}

// Observe folds one enriched record into the aggregate
func (a *WindowAggregate) Observe(rec *EnrichedRecord) {
	if a.LogCount == 0 {
		a.FirstService = rec.Service
		a.FirstLevel = rec.Level
		a.MinResponseTime = rec.ResponseTime()
		a.MaxResponseTime = rec.ResponseTime()
	} else {
		rt := rec.ResponseTime()
		if rt > a.MaxResponseTime {
			a.MaxResponseTime = rt
		}
		if rt < a.MinResponseTime {
			a.MinResponseTime = rt
		}
	}

	a.LogCount++
	a.SumResponseTime += rec.ResponseTime()

	if rec.IsError {
		a.ErrorCount++
	}
	if rec.IsAnomalyLabel {
		a.AnomalyCount++
	}
	if rec.AnomalyScore > a.MaxAnomalyScore {
		a.MaxAnomalyScore = rec.AnomalyScore
	}
}

// AvgResponseTime computes the window average at close time
func (a *WindowAggregate) AvgResponseTime() float64 {
	if a.LogCount == 0 {
		return 0.0
	}
	return a.SumResponseTime / float64(a.LogCount)
}

// ClosedWindow is a window aggregate that has been sealed by watermark
// advancement. The aggregate is a copy; closed windows are immutable.
type ClosedWindow struct {
	Key       WindowKey       `json:"key"`
	Aggregate WindowAggregate `json:"aggregate"`
}
