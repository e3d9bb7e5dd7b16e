package pipeline

import (
	"strconv"
	"strings"
	"time"

	"github.com/noobrehan18/OpsPulse/pkg/domain"
)

// Metadata keys carrying producer-side anomaly labels
const (
	metaKeyIsAnomaly    = "is_anomaly"
	metaKeyAnomalyType  = "anomaly_type"
	metaKeyAnomalyScore = "anomaly_score"
)

// naive timestamp layouts accepted after timezone stripping
var eventTimeLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// Enrich derives the computed fields for one decoded record. It is a pure
// function of the record and the supplied processing time; the same record
// and clock always produce the same enriched value.
func Enrich(rec domain.LogRecord, now time.Time) domain.EnrichedRecord {
	eventTime, ok := ParseEventTime(rec.Timestamp)
	if !ok {
		// Documented lossy fallback: the record is kept but windowed
		// by processing time instead of event time.
		eventTime = now
	}

	return domain.EnrichedRecord{
		LogRecord:      rec,
		EventTime:      eventTime,
		TimeFallback:   !ok,
		IsError:        rec.Level.IsError(),
		IsAnomalyLabel: metadataBool(rec.Metadata, metaKeyIsAnomaly),
		AnomalyType:    metadataString(rec.Metadata, metaKeyAnomalyType, "none"),
		AnomalyScore:   metadataFloat(rec.Metadata, metaKeyAnomalyScore),
	}
}

// ParseEventTime parses an ISO-8601 timestamp as a naive instant. A trailing
// Z and any numeric UTC offset are stripped before parsing, matching the
// producer contract for the inbound topic.
func ParseEventTime(raw string) (time.Time, bool) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimSuffix(cleaned, "Z")
	if idx := strings.Index(cleaned, "+"); idx >= 0 {
		cleaned = cleaned[:idx]
	}

	for _, layout := range eventTimeLayouts {
		if ts, err := time.Parse(layout, cleaned); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// metadataBool extracts a boolean label, defaulting to false on any
// missing key or unconvertible value
func metadataBool(meta map[string]interface{}, key string) bool {
	if meta == nil {
		return false
	}
	switch v := meta[key].(type) {
	case bool:
		return v
	case string:
		b, err := strconv.ParseBool(v)
		return err == nil && b
	case float64:
		return v != 0
	default:
		return false
	}
}

// metadataString extracts a string label with a default
func metadataString(meta map[string]interface{}, key, def string) string {
	if meta == nil {
		return def
	}
	if v, ok := meta[key].(string); ok && v != "" {
		return v
	}
	return def
}

// metadataFloat extracts a numeric label, defaulting to 0.0
func metadataFloat(meta map[string]interface{}, key string) float64 {
	if meta == nil {
		return 0.0
	}
	switch v := meta[key].(type) {
	case float64:
		return v
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0.0
		}
		return f
	default:
		return 0.0
	}
}
