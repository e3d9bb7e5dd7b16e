package pipeline

import "fmt"

// PipelineError represents an error raised while processing the stream
type PipelineError struct {
	Type    string
	Field   string
	Message string
	Wrapped error
}

// Error implements the error interface
func (e *PipelineError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %s (wrapped: %v)", e.Type, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error
func (e *PipelineError) Unwrap() error {
	return e.Wrapped
}

// IsDecodeError reports whether err is a decode failure
func IsDecodeError(err error) bool {
	pe, ok := err.(*PipelineError)
	return ok && (pe.Type == "MissingField" || pe.Type == "TypeMismatch" || pe.Type == "MalformedPayload")
}

// ErrMissingField creates an error for a required field absent from the payload
func ErrMissingField(field string) error {
	return &PipelineError{
		Type:    "MissingField",
		Field:   field,
		Message: fmt.Sprintf("required field '%s' is missing", field),
	}
}

// ErrTypeMismatch creates an error for a field of the wrong type
func ErrTypeMismatch(field, expected string) error {
	return &PipelineError{
		Type:    "TypeMismatch",
		Field:   field,
		Message: fmt.Sprintf("field '%s' is not a %s", field, expected),
	}
}

// ErrMalformedPayload creates an error for a payload that is not valid JSON
func ErrMalformedPayload(err error) error {
	return &PipelineError{
		Type:    "MalformedPayload",
		Message: "payload is not a valid log record",
		Wrapped: err,
	}
}

// ErrLateRecord creates an error for a record behind the watermark
func ErrLateRecord(key string, lag string) error {
	return &PipelineError{
		Type:    "LateRecord",
		Field:   key,
		Message: fmt.Sprintf("record for %s arrived %s behind the watermark", key, lag),
	}
}

// ErrSinkWrite creates an error for a failed outbound delivery
func ErrSinkWrite(attempts int, err error) error {
	return &PipelineError{
		Type:    "SinkWrite",
		Message: fmt.Sprintf("alert delivery failed after %d attempts", attempts),
		Wrapped: err,
	}
}
