package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/noobrehan18/OpsPulse/pkg/config"
	"github.com/noobrehan18/OpsPulse/pkg/pipeline"
)

// Consumer pulls raw log records from the inbound topic and feeds them to
// the pipeline driver. Delivery is at-least-once: a message is acknowledged
// only after the record has been decoded, enriched, and handed to its
// shard. Undecodable payloads are acknowledged too, so poison messages are
// dropped and counted instead of redelivered forever.
type Consumer struct {
	logger *zap.Logger

	// Queue connection
	nc           *nats.Conn
	js           nats.JetStreamContext
	subscription *nats.Subscription

	// Downstream dataflow
	driver *pipeline.Driver

	// Configuration
	config *config.QueueConfig

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Metrics
	mu               sync.RWMutex
	messagesReceived int64
	messagesAcked    int64
	messagesNacked   int64
	decodeDrops      int64

	// Resource cleanup tracking
	resourcesMu sync.Mutex
	resources   []func() error
}

// NewConsumer creates a consumer bound to the given driver
func NewConsumer(logger *zap.Logger, cfg *config.QueueConfig, driver *pipeline.Driver) (*Consumer, error) {
	ctx, cancel := context.WithCancel(context.Background())

	c := &Consumer{
		logger:    logger,
		driver:    driver,
		config:    cfg,
		ctx:       ctx,
		cancel:    cancel,
		resources: make([]func() error, 0),
	}

	if err := c.connect(); err != nil {
		cancel()
		return nil, err
	}

	if err := c.setupStream(); err != nil {
		c.cleanupResources()
		cancel()
		return nil, err
	}

	return c, nil
}

// Start begins pulling messages until the context is cancelled
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("Starting log consumer",
		zap.String("stream", c.config.LogsStreamName),
		zap.String("subject", c.config.LogsSubject),
		zap.String("consumer", c.config.ConsumerName),
	)

	sub, err := c.js.PullSubscribe(
		c.config.LogsSubject,
		c.config.ConsumerName,
	)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	c.subscription = sub

	c.wg.Add(1)
	go c.metricsReporter()

	c.wg.Add(1)
	go c.fetchMessages(ctx)

	<-ctx.Done()
	return c.Stop()
}

// Stop gracefully shuts down the consumer
func (c *Consumer) Stop() error {
	c.logger.Info("Stopping log consumer")

	c.cancel()

	cleanupCtx, cancelCleanup := context.WithTimeout(context.Background(), CleanupTimeout)
	defer cancelCleanup()

	if c.subscription != nil {
		done := make(chan error, 1)
		go func() {
			done <- c.subscription.Unsubscribe()
		}()
		select {
		case err := <-done:
			if err != nil {
				c.logger.Error("Failed to unsubscribe", zap.Error(err))
			}
		case <-cleanupCtx.Done():
			c.logger.Warn("Timeout during unsubscribe operation")
		}
	}

	waitDone := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
		c.logger.Debug("All consumer goroutines stopped gracefully")
	case <-cleanupCtx.Done():
		c.logger.Warn("Timeout waiting for consumer goroutines to stop")
	}

	c.cleanupResources()

	c.mu.RLock()
	defer c.mu.RUnlock()
	c.logger.Info("Log consumer stopped",
		zap.Int64("messages_received", c.messagesReceived),
		zap.Int64("messages_acked", c.messagesAcked),
		zap.Int64("messages_nacked", c.messagesNacked),
		zap.Int64("decode_drops", c.decodeDrops),
	)
	return nil
}

// connect establishes the queue connection
func (c *Consumer) connect() error {
	opts := []nats.Option{
		nats.Name(c.config.Name),
		nats.Timeout(c.config.ConnectionTimeout),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(c.config.MaxReconnects),
		nats.ReconnectWait(c.config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			c.logger.Error("Queue disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			c.logger.Info("Queue reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			c.logger.Error("Queue error", zap.Error(err))
		}),
	}
	if c.config.Username != "" {
		opts = append(opts, nats.UserInfo(c.config.Username, c.config.Password))
	}

	nc, err := nats.Connect(c.config.URL, opts...)
	if err != nil {
		return fmt.Errorf("failed to connect to queue: %w", err)
	}
	c.nc = nc

	c.addResource(func() error {
		if c.nc != nil && c.nc.IsConnected() {
			c.nc.Close()
		}
		return nil
	})

	return nil
}

// setupStream creates or updates the inbound stream and durable consumer
func (c *Consumer) setupStream() error {
	js, err := c.nc.JetStream()
	if err != nil {
		return fmt.Errorf("failed to get JetStream context: %w", err)
	}
	c.js = js

	streamConfig := &nats.StreamConfig{
		Name:      c.config.LogsStreamName,
		Subjects:  []string{c.config.LogsSubject},
		Storage:   nats.FileStorage,
		Retention: nats.LimitsPolicy,
		MaxAge:    c.config.MaxAge,
		MaxBytes:  c.config.MaxBytes,
		Replicas:  c.config.Replicas,
	}

	stream, err := c.js.StreamInfo(c.config.LogsStreamName)
	if err == nats.ErrStreamNotFound {
		if _, err := c.js.AddStream(streamConfig); err != nil {
			return fmt.Errorf("failed to create stream: %w", err)
		}
		c.logger.Info("Created inbound stream", zap.String("name", c.config.LogsStreamName))
	} else if err != nil {
		return fmt.Errorf("failed to get stream info: %w", err)
	} else {
		streamConfig.Subjects = stream.Config.Subjects // Preserve existing subjects
		if _, err := c.js.UpdateStream(streamConfig); err != nil {
			return fmt.Errorf("failed to update stream: %w", err)
		}
	}

	consumerConfig := &nats.ConsumerConfig{
		Durable:       c.config.ConsumerName,
		DeliverPolicy: nats.DeliverAllPolicy,
		AckPolicy:     nats.AckExplicitPolicy,
		AckWait:       c.config.AckWait,
		MaxDeliver:    c.config.MaxDeliver,
		FilterSubject: c.config.LogsSubject,
		ReplayPolicy:  nats.ReplayInstantPolicy,
	}

	_, err = c.js.ConsumerInfo(c.config.LogsStreamName, c.config.ConsumerName)
	if err == nats.ErrConsumerNotFound {
		if _, err := c.js.AddConsumer(c.config.LogsStreamName, consumerConfig); err != nil {
			return fmt.Errorf("failed to create consumer: %w", err)
		}
		c.logger.Info("Created durable consumer", zap.String("name", c.config.ConsumerName))
	} else if err != nil {
		return fmt.Errorf("failed to get consumer info: %w", err)
	}

	return nil
}

// fetchMessages continuously fetches batches with bounded-backoff retry
func (c *Consumer) fetchMessages(ctx context.Context) {
	defer c.wg.Done()

	consecutiveErrors := 0
	backoffDelay := BaseBackoffDelay

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("fetchMessages context cancelled, shutting down")
			return
		default:
		}

		if consecutiveErrors >= MaxConsecutiveErrors {
			c.logger.Error("Too many consecutive fetch errors, backing off",
				zap.Int("consecutive_errors", consecutiveErrors),
				zap.Duration("backoff_delay", backoffDelay))

			timer := time.NewTimer(backoffDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
			backoffDelay = time.Duration(float64(backoffDelay) * BackoffMultiplier)
			if backoffDelay > MaxBackoffDelay {
				backoffDelay = MaxBackoffDelay
			}
		}

		batchSize := c.config.BatchSize
		if batchSize > MaxBatchSize {
			batchSize = MaxBatchSize
		}

		msgs, err := c.subscription.Fetch(batchSize, nats.MaxWait(c.config.FetchTimeout))
		if err != nil {
			if err == nats.ErrTimeout {
				// Normal when the source is idle
				consecutiveErrors = 0
				backoffDelay = BaseBackoffDelay
				continue
			}

			consecutiveErrors++
			c.logger.Warn("Failed to fetch messages",
				zap.Error(err),
				zap.Int("consecutive_errors", consecutiveErrors))

			select {
			case <-ctx.Done():
				return
			case <-time.After(RetryShortDelay):
			}
			continue
		}

		consecutiveErrors = 0
		backoffDelay = BaseBackoffDelay

		for i, msg := range msgs {
			select {
			case <-ctx.Done():
				c.logger.Info("Context cancelled during message processing",
					zap.Int("processed", i),
					zap.Int("total", len(msgs)))
				return
			default:
				c.handleMessage(ctx, msg)
			}
		}
	}
}

// handleMessage feeds one message into the driver and settles it.
// Process blocks when the target shard is saturated, which pauses fetching
// and is the consumer-side backpressure.
func (c *Consumer) handleMessage(ctx context.Context, msg *nats.Msg) {
	c.mu.Lock()
	c.messagesReceived++
	c.mu.Unlock()

	err := c.driver.Process(ctx, msg.Data)
	if err == nil {
		c.ackMessage(msg)
		return
	}

	if pipeline.IsDecodeError(err) {
		// Dropped and counted by the driver; redelivery cannot fix it
		c.mu.Lock()
		c.decodeDrops++
		c.mu.Unlock()
		c.ackMessage(msg)
		return
	}

	c.logger.Error("Failed to process message",
		zap.Error(err),
		zap.String("subject", msg.Subject))
	c.nackMessage(msg)
}

// ackMessage acknowledges a message
func (c *Consumer) ackMessage(msg *nats.Msg) {
	if err := msg.Ack(); err != nil {
		c.logger.Error("Failed to acknowledge message", zap.Error(err))
		return
	}
	c.mu.Lock()
	c.messagesAcked++
	c.mu.Unlock()
}

// nackMessage negatively acknowledges a message for redelivery
func (c *Consumer) nackMessage(msg *nats.Msg) {
	if err := msg.Nak(); err != nil {
		c.logger.Error("Failed to nack message", zap.Error(err))
		return
	}
	c.mu.Lock()
	c.messagesNacked++
	c.mu.Unlock()
}

// metricsReporter periodically logs consumer metrics
func (c *Consumer) metricsReporter() {
	defer c.wg.Done()

	ticker := time.NewTicker(MetricsReportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m := c.GetMetrics()
			c.logger.Info("Log consumer metrics",
				zap.Int64("total_received", m.MessagesReceived),
				zap.Int64("total_acked", m.MessagesAcked),
				zap.Int64("total_nacked", m.MessagesNacked),
				zap.Int64("decode_drops", m.DecodeDrops),
				zap.Int("pending_messages", m.PendingMessages),
			)
		case <-c.ctx.Done():
			return
		}
	}
}

// GetMetrics returns current consumer metrics
func (c *Consumer) GetMetrics() ConsumerMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()

	pending := 0
	if c.subscription != nil {
		pending, _, _ = c.subscription.Pending()
	}

	return ConsumerMetrics{
		MessagesReceived: c.messagesReceived,
		MessagesAcked:    c.messagesAcked,
		MessagesNacked:   c.messagesNacked,
		DecodeDrops:      c.decodeDrops,
		PendingMessages:  pending,
		Connected:        c.nc.IsConnected(),
		LastActivity:     time.Now(),
		ConsumerInfo:     c.config.ConsumerName,
	}
}

// addResource adds a cleanup function to the resource list
func (c *Consumer) addResource(cleanup func() error) {
	c.resourcesMu.Lock()
	defer c.resourcesMu.Unlock()
	c.resources = append(c.resources, cleanup)
}

// cleanupResources calls all registered cleanup functions
func (c *Consumer) cleanupResources() {
	c.resourcesMu.Lock()
	defer c.resourcesMu.Unlock()

	for i := len(c.resources) - 1; i >= 0; i-- {
		if err := c.resources[i](); err != nil {
			c.logger.Error("Failed to cleanup resource",
				zap.Int("resource_index", i), zap.Error(err))
		}
	}
	c.resources = nil
}
