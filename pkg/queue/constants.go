package queue

import "time"

// Processing and retry constants
const (
	MaxConsecutiveErrors  = 10
	BaseBackoffDelay      = time.Second
	MaxBackoffDelay       = 30 * time.Second
	BackoffMultiplier     = 2.0
	MaxBatchSize          = 1000
	CleanupTimeout        = 30 * time.Second
	MetricsReportInterval = 1 * time.Minute
	RetryShortDelay       = time.Second
)
