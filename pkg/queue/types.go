package queue

import "time"

// ConsumerMetrics contains strongly-typed metrics from the log consumer
type ConsumerMetrics struct {
	MessagesReceived int64     `json:"messages_received"`
	MessagesAcked    int64     `json:"messages_acked"`
	MessagesNacked   int64     `json:"messages_nacked"`
	DecodeDrops      int64     `json:"decode_drops"`
	PendingMessages  int       `json:"pending_messages"`
	Connected        bool      `json:"connected"`
	LastActivity     time.Time `json:"last_activity"`
	ConsumerInfo     string    `json:"consumer_info"`
}
