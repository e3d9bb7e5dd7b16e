package pipeline

import (
	"encoding/json"

	"github.com/noobrehan18/OpsPulse/pkg/domain"
)

// requiredFields are the fields every inbound log record must carry
var requiredFields = []string{"timestamp", "level", "source", "service", "message"}

// DecodeLogRecord parses a raw inbound payload into a typed LogRecord.
// Required fields missing or mistyped yield a decode error and the record
// is dropped by the caller; optional fields absent are left nil so the
// defaults are explicit in the type, not hidden at access time.
func DecodeLogRecord(data []byte) (domain.LogRecord, error) {
	var rec domain.LogRecord

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return rec, ErrMalformedPayload(err)
	}

	for _, field := range requiredFields {
		v, ok := raw[field]
		if !ok || string(v) == "null" {
			return rec, ErrMissingField(field)
		}
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return rec, ErrTypeMismatch(field, "string")
		}
		switch field {
		case "timestamp":
			rec.Timestamp = s
		case "level":
			rec.Level = domain.ParseLevel(s)
		case "source":
			rec.Source = s
		case "service":
			rec.Service = s
		case "message":
			rec.Message = s
		}
	}

	if err := decodeOptionalString(raw, "request_id", &rec.RequestID); err != nil {
		return rec, err
	}
	if err := decodeOptionalString(raw, "user_id", &rec.UserID); err != nil {
		return rec, err
	}
	if err := decodeOptionalString(raw, "ip_address", &rec.IPAddress); err != nil {
		return rec, err
	}
	if err := decodeOptionalString(raw, "endpoint", &rec.Endpoint); err != nil {
		return rec, err
	}
	if err := decodeOptionalString(raw, "method", &rec.Method); err != nil {
		return rec, err
	}
	if err := decodeOptionalString(raw, "error_code", &rec.ErrorCode); err != nil {
		return rec, err
	}
	if err := decodeOptionalString(raw, "stack_trace", &rec.StackTrace); err != nil {
		return rec, err
	}

	if v, ok := raw["status_code"]; ok && string(v) != "null" {
		var code int
		if err := json.Unmarshal(v, &code); err != nil {
			return rec, ErrTypeMismatch("status_code", "integer")
		}
		rec.StatusCode = &code
	}

	if v, ok := raw["response_time_ms"]; ok && string(v) != "null" {
		var rt float64
		if err := json.Unmarshal(v, &rt); err != nil {
			return rec, ErrTypeMismatch("response_time_ms", "number")
		}
		rec.ResponseTimeMs = &rt
	}

	if v, ok := raw["metadata"]; ok && string(v) != "null" {
		var meta map[string]interface{}
		if err := json.Unmarshal(v, &meta); err != nil {
			return rec, ErrTypeMismatch("metadata", "object")
		}
		rec.Metadata = meta
	}

	return rec, nil
}

// decodeOptionalString fills an optional string field, leaving it nil when absent
func decodeOptionalString(raw map[string]json.RawMessage, field string, dst **string) error {
	v, ok := raw[field]
	if !ok || string(v) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return ErrTypeMismatch(field, "string")
	}
	*dst = &s
	return nil
}
