package config

import (
	"fmt"
	"time"
)

// Drain policies for in-flight windows at shutdown
const (
	DrainEmit    = "emit"
	DrainDiscard = "discard"
)

// ProcessorConfig holds the windowing and dataflow configuration. Like
// QueueConfig it is immutable after construction.
type ProcessorConfig struct {
	// WindowDuration is the tumbling window size
	WindowDuration time.Duration

	// AllowedLateness is the watermark grace period. Zero means any
	// record older than the max-seen event time is late.
	AllowedLateness time.Duration

	// Shards is the number of parallel key-hash shards
	Shards int

	// ShardBuffer is the per-shard channel capacity; processing blocks
	// when a shard is saturated, which is the backpressure boundary
	ShardBuffer int

	// DrainPolicy decides what happens to open windows on shutdown
	DrainPolicy string

	// SinkEnabled disables outbound delivery when false (debug mode)
	SinkEnabled bool

	// MetricsPort serves the Prometheus scrape endpoint
	MetricsPort int

	// LogLevel selects the zap logger profile (debug, info, warn, error)
	LogLevel string
}

// DefaultProcessorConfig returns the defaults: one-minute windows, zero
// allowed lateness, emit-on-shutdown drain
func DefaultProcessorConfig() *ProcessorConfig {
	return &ProcessorConfig{
		WindowDuration:  getEnvDuration("OPSPULSE_WINDOW_DURATION", "60s"),
		AllowedLateness: getEnvDuration("OPSPULSE_ALLOWED_LATENESS", "0s"),
		Shards:          getEnvInt("OPSPULSE_SHARDS", 4),
		ShardBuffer:     getEnvInt("OPSPULSE_SHARD_BUFFER", 1024),
		DrainPolicy:     getEnv("OPSPULSE_DRAIN_POLICY", DrainEmit),
		SinkEnabled:     !getEnvBool("OPSPULSE_DISABLE_SINK", false),
		MetricsPort:     getEnvInt("OPSPULSE_METRICS_PORT", 9091),
		LogLevel:        getEnv("OPSPULSE_LOG_LEVEL", "info"),
	}
}

// Validate checks if the configuration is valid. A failure here is fatal
// at startup; the process must not start on an invalid configuration.
func (c *ProcessorConfig) Validate() error {
	if c.WindowDuration <= 0 {
		return fmt.Errorf("window duration must be positive")
	}
	if c.AllowedLateness < 0 {
		return fmt.Errorf("allowed lateness cannot be negative")
	}
	if c.Shards <= 0 {
		return fmt.Errorf("shard count must be positive")
	}
	if c.ShardBuffer <= 0 {
		return fmt.Errorf("shard buffer must be positive")
	}
	if c.DrainPolicy != DrainEmit && c.DrainPolicy != DrainDiscard {
		return fmt.Errorf("drain policy must be %q or %q", DrainEmit, DrainDiscard)
	}
	if c.MetricsPort <= 0 || c.MetricsPort > 65535 {
		return fmt.Errorf("metrics port must be a valid TCP port")
	}
	return nil
}
