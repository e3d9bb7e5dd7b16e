package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	natsgo "github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/noobrehan18/OpsPulse/pkg/config"
	"github.com/noobrehan18/OpsPulse/pkg/domain"
)

// AlertPublisher publishes actionable alerts to the outbound topic. It
// implements the emitter's Sink; retry and backoff live in the emitter,
// so a single Write here is one delivery attempt.
type AlertPublisher struct {
	nc     *natsgo.Conn
	js     natsgo.JetStreamContext
	config *config.QueueConfig
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool

	published int64
}

// NewAlertPublisher connects and ensures the outbound stream exists
func NewAlertPublisher(logger *zap.Logger, cfg *config.QueueConfig) (*AlertPublisher, error) {
	opts := []natsgo.Option{
		natsgo.Timeout(cfg.ConnectionTimeout),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			logger.Error("Alert publisher disconnected", zap.Error(err))
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("Alert publisher reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}
	if cfg.Name != "" {
		opts = append(opts, natsgo.Name(cfg.Name+"-alerts"))
	}
	if cfg.Username != "" {
		opts = append(opts, natsgo.UserInfo(cfg.Username, cfg.Password))
	}

	nc, err := natsgo.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to queue: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	p := &AlertPublisher{
		nc:     nc,
		js:     js,
		config: cfg,
		logger: logger,
	}

	if err := p.ensureStream(); err != nil {
		nc.Close()
		return nil, err
	}

	return p, nil
}

// ensureStream creates or updates the outbound stream
func (p *AlertPublisher) ensureStream() error {
	cfg := &natsgo.StreamConfig{
		Name:      p.config.AlertsStreamName,
		Subjects:  []string{p.config.AlertsSubject},
		Storage:   natsgo.FileStorage,
		Retention: natsgo.LimitsPolicy,
		MaxAge:    p.config.MaxAge,
		MaxBytes:  p.config.MaxBytes,
		Replicas:  p.config.Replicas,
	}

	info, err := p.js.StreamInfo(p.config.AlertsStreamName)
	if err == natsgo.ErrStreamNotFound {
		if _, err := p.js.AddStream(cfg); err != nil {
			return fmt.Errorf("failed to create stream: %w", err)
		}
		return nil
	} else if err != nil {
		return fmt.Errorf("failed to get stream info: %w", err)
	}

	if !equalSubjects(info.Config.Subjects, cfg.Subjects) {
		if _, err := p.js.UpdateStream(cfg); err != nil {
			return fmt.Errorf("failed to update stream: %w", err)
		}
	}
	return nil
}

// Write publishes one serialized alert. One message is produced per
// actionable window close; headers carry identity for downstream dedupe.
func (p *AlertPublisher) Write(ctx context.Context, alert *domain.AlertEvent, payload []byte) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return fmt.Errorf("publisher is closed")
	}
	p.mu.RUnlock()

	msg := &natsgo.Msg{
		Subject: p.config.AlertsSubject,
		Data:    payload,
		Header:  natsgo.Header{},
	}
	msg.Header.Set("Alert-ID", alert.AlertID)
	msg.Header.Set("Service", alert.Service)
	msg.Header.Set("Level", string(alert.Level))
	msg.Header.Set("Window-Start", alert.WindowStart.Format(time.RFC3339Nano))
	msg.Header.Set("Emitted-At", alert.EmittedAt.Format(time.RFC3339Nano))

	if _, err := p.js.PublishMsg(msg, natsgo.Context(ctx)); err != nil {
		return fmt.Errorf("failed to publish alert: %w", err)
	}

	p.mu.Lock()
	p.published++
	p.mu.Unlock()
	return nil
}

// Published returns the number of alerts successfully published
func (p *AlertPublisher) Published() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.published
}

// HealthCheck verifies the queue connection and outbound stream
func (p *AlertPublisher) HealthCheck() error {
	if !p.nc.IsConnected() {
		return fmt.Errorf("not connected to queue")
	}
	if _, err := p.js.StreamInfo(p.config.AlertsStreamName); err != nil {
		return fmt.Errorf("stream health check failed: %w", err)
	}
	return nil
}

// Close gracefully shuts down the publisher
func (p *AlertPublisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.nc.Close()
	return nil
}

// equalSubjects compares two subject slices
func equalSubjects(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
