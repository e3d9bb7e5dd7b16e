package domain

import (
	"strings"
	"time"
)

// LogLevel represents the severity of a log record
type LogLevel string

const (
	LevelDebug    LogLevel = "DEBUG"
	LevelInfo     LogLevel = "INFO"
	LevelWarn     LogLevel = "WARN"
	LevelError    LogLevel = "ERROR"
	LevelCritical LogLevel = "CRITICAL"
)

// ParseLevel normalizes a raw level string to a LogLevel.
// Unknown values are preserved uppercased so aggregation keys stay stable.
func ParseLevel(raw string) LogLevel {
	return LogLevel(strings.ToUpper(strings.TrimSpace(raw)))
}

// IsError reports whether the level indicates an error condition
func (l LogLevel) IsError() bool {
	switch LogLevel(strings.ToUpper(string(l))) {
	case LevelError, LevelCritical:
		return true
	default:
		return false
	}
}

// LogRecord is one structured log event from the inbound topic.
// Required fields are plain values; optional fields are pointers so that
// "absent" is distinguishable from a zero value. Defaults are applied once
// at decode time, never at access time.
type LogRecord struct {
	// Required fields
	Timestamp string   `json:"timestamp"`
	Level     LogLevel `json:"level"`
	Source    string   `json:"source"`
	Service   string   `json:"service"`
	Message   string   `json:"message"`

	// Optional fields
	RequestID      *string  `json:"request_id,omitempty"`
	UserID         *string  `json:"user_id,omitempty"`
	IPAddress      *string  `json:"ip_address,omitempty"`
	Endpoint       *string  `json:"endpoint,omitempty"`
	Method         *string  `json:"method,omitempty"`
	StatusCode     *int     `json:"status_code,omitempty"`
	ResponseTimeMs *float64 `json:"response_time_ms,omitempty"`
	ErrorCode      *string  `json:"error_code,omitempty"`
	StackTrace     *string  `json:"stack_trace,omitempty"`

	// Opaque metadata carried through from the producer
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// ResponseTime returns the response time in milliseconds, 0 when absent
func (r *LogRecord) ResponseTime() float64 {
	if r.ResponseTimeMs == nil {
		return 0.0
	}
	return *r.ResponseTimeMs
}

// EnrichedRecord is a LogRecord plus fields derived by the enricher.
// It is created once per record and immutable thereafter.
type EnrichedRecord struct {
	LogRecord

	// EventTime is the parsed event-time used for window assignment.
	// When the raw timestamp cannot be parsed this is the processing
	// time at enrichment, which skews windowing for that record.
	EventTime time.Time `json:"event_time"`

	// TimeFallback marks records whose timestamp failed to parse
	TimeFallback bool `json:"time_fallback,omitempty"`

	IsError        bool    `json:"is_error"`
	IsAnomalyLabel bool    `json:"is_anomaly_label"`
	AnomalyType    string  `json:"anomaly_type"`
	AnomalyScore   float64 `json:"anomaly_score"`
}
