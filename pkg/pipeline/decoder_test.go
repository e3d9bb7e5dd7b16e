package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noobrehan18/OpsPulse/pkg/domain"
)

func TestDecodeLogRecord_RequiredFields(t *testing.T) {
	payload := []byte(`{
		"timestamp": "2024-01-15T10:00:05Z",
		"level": "error",
		"source": "app-server-1",
		"service": "api",
		"message": "connection refused"
	}`)

	rec, err := DecodeLogRecord(payload)
	require.NoError(t, err)

	assert.Equal(t, "2024-01-15T10:00:05Z", rec.Timestamp)
	assert.Equal(t, domain.LevelError, rec.Level)
	assert.Equal(t, "app-server-1", rec.Source)
	assert.Equal(t, "api", rec.Service)
	assert.Equal(t, "connection refused", rec.Message)

	// Optional fields absent stay nil, not zero-valued
	assert.Nil(t, rec.RequestID)
	assert.Nil(t, rec.StatusCode)
	assert.Nil(t, rec.ResponseTimeMs)
	assert.Nil(t, rec.Metadata)
	assert.Equal(t, 0.0, rec.ResponseTime())
}

func TestDecodeLogRecord_OptionalFields(t *testing.T) {
	payload := []byte(`{
		"timestamp": "2024-01-15T10:00:05Z",
		"level": "INFO",
		"source": "app-server-1",
		"service": "api",
		"message": "request handled",
		"request_id": "req-123",
		"user_id": "u-9",
		"ip_address": "10.0.0.4",
		"endpoint": "/v1/orders",
		"method": "POST",
		"status_code": 201,
		"response_time_ms": 42.5,
		"error_code": null,
		"metadata": {"is_anomaly": true, "anomaly_score": 0.9}
	}`)

	rec, err := DecodeLogRecord(payload)
	require.NoError(t, err)

	require.NotNil(t, rec.RequestID)
	assert.Equal(t, "req-123", *rec.RequestID)
	require.NotNil(t, rec.StatusCode)
	assert.Equal(t, 201, *rec.StatusCode)
	require.NotNil(t, rec.ResponseTimeMs)
	assert.Equal(t, 42.5, *rec.ResponseTimeMs)
	assert.Nil(t, rec.ErrorCode)
	assert.Equal(t, true, rec.Metadata["is_anomaly"])
}

func TestDecodeLogRecord_Errors(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		wantType string
	}{
		{
			name:     "not json",
			payload:  `this is not json`,
			wantType: "MalformedPayload",
		},
		{
			name:     "missing timestamp",
			payload:  `{"level":"INFO","source":"s","service":"api","message":"m"}`,
			wantType: "MissingField",
		},
		{
			name:     "missing service",
			payload:  `{"timestamp":"2024-01-15T10:00:05Z","level":"INFO","source":"s","message":"m"}`,
			wantType: "MissingField",
		},
		{
			name:     "null required field",
			payload:  `{"timestamp":"2024-01-15T10:00:05Z","level":null,"source":"s","service":"api","message":"m"}`,
			wantType: "MissingField",
		},
		{
			name:     "level wrong type",
			payload:  `{"timestamp":"2024-01-15T10:00:05Z","level":3,"source":"s","service":"api","message":"m"}`,
			wantType: "TypeMismatch",
		},
		{
			name:     "status_code wrong type",
			payload:  `{"timestamp":"2024-01-15T10:00:05Z","level":"INFO","source":"s","service":"api","message":"m","status_code":"201"}`,
			wantType: "TypeMismatch",
		},
		{
			name:     "response_time_ms wrong type",
			payload:  `{"timestamp":"2024-01-15T10:00:05Z","level":"INFO","source":"s","service":"api","message":"m","response_time_ms":"fast"}`,
			wantType: "TypeMismatch",
		},
		{
			name:     "metadata wrong type",
			payload:  `{"timestamp":"2024-01-15T10:00:05Z","level":"INFO","source":"s","service":"api","message":"m","metadata":[1,2]}`,
			wantType: "TypeMismatch",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeLogRecord([]byte(tt.payload))
			require.Error(t, err)
			assert.True(t, IsDecodeError(err))

			var pe *PipelineError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.wantType, pe.Type)
		})
	}
}
