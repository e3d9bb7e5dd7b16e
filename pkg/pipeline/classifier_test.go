package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/noobrehan18/OpsPulse/pkg/domain"
)

func closedWindow(service string, level domain.LogLevel, agg domain.WindowAggregate) domain.ClosedWindow {
	start := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	agg.FirstService = service
	agg.FirstLevel = level
	return domain.ClosedWindow{
		Key: domain.WindowKey{
			Service:     service,
			Level:       level,
			WindowStart: start,
			WindowEnd:   start.Add(60 * time.Second),
		},
		Aggregate: agg,
	}
}

func TestClassify_SpikeRules(t *testing.T) {
	tests := []struct {
		name      string
		agg       domain.WindowAggregate
		wantSpike bool
	}{
		{
			name:      "quiet window",
			agg:       domain.WindowAggregate{LogCount: 10},
			wantSpike: false,
		},
		{
			name:      "errors below threshold",
			agg:       domain.WindowAggregate{LogCount: 10, ErrorCount: 4},
			wantSpike: false,
		},
		{
			name:      "errors at threshold",
			agg:       domain.WindowAggregate{LogCount: 10, ErrorCount: 5},
			wantSpike: true,
		},
		{
			name:      "single labelled anomaly",
			agg:       domain.WindowAggregate{LogCount: 21, AnomalyCount: 1},
			wantSpike: true,
		},
		{
			name:      "anomaly overrides low error count",
			agg:       domain.WindowAggregate{LogCount: 100, ErrorCount: 1, AnomalyCount: 3},
			wantSpike: true,
		},
	}

	now := time.Now()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alert := Classify(closedWindow("api", domain.LevelInfo, tt.agg), now)
			assert.Equal(t, tt.wantSpike, alert.IsSpike)
		})
	}
}

func TestClassify_ErrorRate(t *testing.T) {
	now := time.Now()

	alert := Classify(closedWindow("api", domain.LevelError, domain.WindowAggregate{
		LogCount:   6,
		ErrorCount: 5,
	}), now)
	assert.InDelta(t, 5.0/6.0, alert.ErrorRate, 1e-9)
	assert.True(t, alert.IsSpike)

	empty := Classify(closedWindow("api", domain.LevelInfo, domain.WindowAggregate{}), now)
	assert.Equal(t, 0.0, empty.ErrorRate)
}

func TestClassify_ErrorRateBounds(t *testing.T) {
	now := time.Now()

	// error_count can never exceed log_count, so the rate stays in [0,1]
	for errs := int64(0); errs <= 10; errs++ {
		alert := Classify(closedWindow("api", domain.LevelError, domain.WindowAggregate{
			LogCount:   10,
			ErrorCount: errs,
		}), now)
		assert.GreaterOrEqual(t, alert.ErrorRate, 0.0)
		assert.LessOrEqual(t, alert.ErrorRate, 1.0)
		assert.Equal(t, float64(errs)/10.0, alert.ErrorRate)
	}
}

func TestClassify_CarriesAggregateFields(t *testing.T) {
	now := time.Date(2024, 1, 15, 10, 2, 0, 0, time.UTC)

	w := closedWindow("api", domain.LevelError, domain.WindowAggregate{
		LogCount:        4,
		ErrorCount:      4,
		SumResponseTime: 200,
		MaxResponseTime: 90,
		MinResponseTime: 10,
		MaxAnomalyScore: 0.7,
	})

	alert := Classify(w, now)
	assert.NotEmpty(t, alert.AlertID)
	assert.Equal(t, "api", alert.Service)
	assert.Equal(t, domain.LevelError, alert.Level)
	assert.Equal(t, w.Key.WindowStart, alert.WindowStart)
	assert.Equal(t, w.Key.WindowEnd, alert.WindowEnd)
	assert.Equal(t, 50.0, alert.AvgResponseTime)
	assert.Equal(t, 90.0, alert.MaxResponseTime)
	assert.Equal(t, 10.0, alert.MinResponseTime)
	assert.Equal(t, 0.7, alert.MaxAnomalyScore)
	assert.Equal(t, now, alert.EmittedAt)
}

func TestClassify_Deterministic(t *testing.T) {
	now := time.Now()
	w := closedWindow("api", domain.LevelError, domain.WindowAggregate{LogCount: 6, ErrorCount: 5})

	a := Classify(w, now)
	b := Classify(w, now)

	// Alert IDs are fresh per emission; everything else must replay identically
	a.AlertID, b.AlertID = "", ""
	assert.Equal(t, a, b)
}
