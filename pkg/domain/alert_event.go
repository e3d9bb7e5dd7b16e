package domain

import "time"

// AlertEvent is the classification result for one closed window. One
// AlertEvent is produced per closed window; only actionable ones reach
// the outbound topic.
type AlertEvent struct {
	AlertID string `json:"alert_id"`

	Service string   `json:"service"`
	Level   LogLevel `json:"level"`

	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`

	LogCount     int64 `json:"log_count"`
	ErrorCount   int64 `json:"error_count"`
	AnomalyCount int64 `json:"anomaly_count"`

	AvgResponseTime float64 `json:"avg_response_time"`
	MaxResponseTime float64 `json:"max_response_time"`
	MinResponseTime float64 `json:"min_response_time"`
	MaxAnomalyScore float64 `json:"max_anomaly_score"`

	IsSpike   bool    `json:"is_spike"`
	ErrorRate float64 `json:"error_rate"`

	// EmittedAt is the wall-clock time of classification, not event-time
	EmittedAt time.Time `json:"emitted_at"`
}

// Actionable reports whether the alert passes the emission filter:
// spikes, labelled anomalies, or an error rate above 10%.
func (a *AlertEvent) Actionable() bool {
	return a.IsSpike || a.AnomalyCount > 0 || a.ErrorRate > 0.10
}
