package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// QueueConfig holds all message-queue configuration. It is built once at
// startup and passed by reference into the consumers and publishers; there
// is no process-wide mutable settings table.
type QueueConfig struct {
	// Connection
	URL               string
	Name              string
	Username          string
	Password          string
	MaxReconnects     int
	ReconnectWait     time.Duration
	ConnectionTimeout time.Duration

	// Inbound stream (raw log records)
	LogsStreamName string
	LogsSubject    string

	// Outbound stream (processed alerts)
	AlertsStreamName string
	AlertsSubject    string

	// Stream settings
	MaxAge   time.Duration
	MaxBytes int64
	Replicas int

	// Consumer settings. ConsumerName is the durable name, the queue
	// equivalent of a consumer group id.
	ConsumerName string
	AckWait      time.Duration
	MaxDeliver   int
	BatchSize    int
	FetchTimeout time.Duration
}

// DefaultQueueConfig returns production-ready defaults, overridable by
// environment
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		URL:               getEnv("OPSPULSE_QUEUE_URL", "nats://localhost:4222"),
		Name:              getEnv("OPSPULSE_CLIENT_NAME", "opspulse-processor"),
		Username:          getEnv("OPSPULSE_QUEUE_USERNAME", ""),
		Password:          getEnv("OPSPULSE_QUEUE_PASSWORD", ""),
		MaxReconnects:     getEnvInt("OPSPULSE_MAX_RECONNECTS", 10),
		ReconnectWait:     getEnvDuration("OPSPULSE_RECONNECT_WAIT", "1s"),
		ConnectionTimeout: getEnvDuration("OPSPULSE_CONNECTION_TIMEOUT", "5s"),

		LogsStreamName: getEnv("OPSPULSE_LOGS_STREAM", "RAW_LOGS"),
		LogsSubject:    getEnv("OPSPULSE_LOGS_SUBJECT", "logs.raw"),

		AlertsStreamName: getEnv("OPSPULSE_ALERTS_STREAM", "PROCESSED_ALERTS"),
		AlertsSubject:    getEnv("OPSPULSE_ALERTS_SUBJECT", "alerts.processed"),

		MaxAge:   getEnvDuration("OPSPULSE_STREAM_MAX_AGE", "24h"),
		MaxBytes: getEnvInt64("OPSPULSE_STREAM_MAX_BYTES", 1024*1024*1024), // 1GB
		Replicas: getEnvInt("OPSPULSE_STREAM_REPLICAS", 1),

		ConsumerName: getEnv("OPSPULSE_CONSUMER_NAME", "opspulse-consumer"),
		AckWait:      getEnvDuration("OPSPULSE_ACK_WAIT", "30s"),
		MaxDeliver:   getEnvInt("OPSPULSE_MAX_DELIVER", 3),
		BatchSize:    getEnvInt("OPSPULSE_BATCH_SIZE", 64),
		FetchTimeout: getEnvDuration("OPSPULSE_FETCH_TIMEOUT", "1s"),
	}
}

// Validate checks if the configuration is valid
func (c *QueueConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("queue URL cannot be empty")
	}
	if c.LogsStreamName == "" || c.LogsSubject == "" {
		return fmt.Errorf("inbound stream and subject cannot be empty")
	}
	if c.AlertsStreamName == "" || c.AlertsSubject == "" {
		return fmt.Errorf("outbound stream and subject cannot be empty")
	}
	if c.ConsumerName == "" {
		return fmt.Errorf("consumer name cannot be empty")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.MaxDeliver <= 0 {
		return fmt.Errorf("max deliver must be positive")
	}
	if c.MaxAge <= 0 {
		return fmt.Errorf("max age must be positive")
	}
	if c.MaxBytes <= 0 {
		return fmt.Errorf("max bytes must be positive")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue string) time.Duration {
	value := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}
	if duration, err := time.ParseDuration(defaultValue); err == nil {
		return duration
	}
	return time.Second // Fallback
}
