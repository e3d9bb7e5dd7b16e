package pipeline

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/noobrehan18/OpsPulse/pkg/domain"
)

// Retry constants for the at-least-once outbound write
const (
	DefaultSinkRetries = 4
	BaseBackoffDelay   = 100 * time.Millisecond
	MaxBackoffDelay    = 5 * time.Second
	BackoffMultiplier  = 2.0
)

// Sink receives serialized actionable alerts. The queue publisher is the
// production implementation; tests substitute in-memory sinks.
type Sink interface {
	Write(ctx context.Context, alert *domain.AlertEvent, payload []byte) error
}

// Observer is the synchronous debug hook invoked once per alert that
// passes the actionable filter. Observers must not influence emission;
// panics are recovered and logged, never propagated into the pipeline.
type Observer func(key domain.WindowKey, alert domain.AlertEvent, emitted bool)

// Emitter filters classified windows to actionable alerts and delivers
// them to the sink with bounded backoff.
type Emitter struct {
	logger    *zap.Logger
	sink      Sink
	observers []Observer
	instr     *Instrumentation

	maxRetries int

	// Counters, updated atomically: shards emit concurrently
	emitted     atomic.Int64
	filtered    atomic.Int64
	undelivered atomic.Int64
}

// NewEmitter creates an emitter. A nil sink disables outbound delivery
// (debug mode); alerts are still classified, filtered, and observed.
func NewEmitter(logger *zap.Logger, sink Sink) *Emitter {
	return &Emitter{
		logger:     logger,
		sink:       sink,
		maxRetries: DefaultSinkRetries,
	}
}

// Subscribe registers a debug observer. Registration is not safe after
// the pipeline has started.
func (e *Emitter) Subscribe(obs Observer) {
	e.observers = append(e.observers, obs)
}

// Emit handles one classified window. Non-actionable alerts are discarded
// with only a counter; actionable alerts are serialized and written to the
// sink at-least-once. Delivery failure is isolated: it is logged and
// counted, never fatal, and never blocks other keys.
func (e *Emitter) Emit(ctx context.Context, key domain.WindowKey, alert domain.AlertEvent) error {
	if !alert.Actionable() {
		e.filtered.Add(1)
		if e.instr != nil {
			e.instr.AlertsFiltered.Add(ctx, 1)
		}
		return nil
	}

	e.emitted.Add(1)
	if e.instr != nil {
		e.instr.AlertsEmitted.Add(ctx, 1)
	}
	e.notifyObservers(key, alert)

	if e.sink == nil {
		return nil
	}

	payload, err := json.Marshal(alert)
	if err != nil {
		// Alert structs always marshal; treat a failure as undeliverable
		e.undelivered.Add(1)
		e.logger.Error("Failed to serialize alert",
			zap.String("window", key.String()),
			zap.Error(err))
		return err
	}

	if err := e.writeWithRetry(ctx, &alert, payload); err != nil {
		e.undelivered.Add(1)
		if e.instr != nil {
			e.instr.AlertsUndelivered.Add(ctx, 1)
		}
		e.logger.Error("Alert undelivered after retries",
			zap.String("window", key.String()),
			zap.String("alert_id", alert.AlertID),
			zap.Int("attempts", e.maxRetries),
			zap.Error(err))
		return err
	}

	e.logger.Debug("Alert emitted",
		zap.String("window", key.String()),
		zap.String("alert_id", alert.AlertID),
		zap.Bool("is_spike", alert.IsSpike),
		zap.Float64("error_rate", alert.ErrorRate))
	return nil
}

// writeWithRetry writes to the sink with bounded exponential backoff
func (e *Emitter) writeWithRetry(ctx context.Context, alert *domain.AlertEvent, payload []byte) error {
	var lastErr error
	delay := BaseBackoffDelay

	for attempt := 1; attempt <= e.maxRetries; attempt++ {
		lastErr = e.sink.Write(ctx, alert, payload)
		if lastErr == nil {
			return nil
		}

		e.logger.Warn("Sink write failed",
			zap.String("alert_id", alert.AlertID),
			zap.Int("attempt", attempt),
			zap.Error(lastErr))
		if e.instr != nil {
			e.instr.SinkWriteRetries.Add(ctx, 1)
		}

		if attempt == e.maxRetries {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ErrSinkWrite(attempt, ctx.Err())
		case <-timer.C:
		}

		delay = time.Duration(float64(delay) * BackoffMultiplier)
		if delay > MaxBackoffDelay {
			delay = MaxBackoffDelay
		}
	}

	return ErrSinkWrite(e.maxRetries, lastErr)
}

// notifyObservers invokes debug observers, isolating their failures
func (e *Emitter) notifyObservers(key domain.WindowKey, alert domain.AlertEvent) {
	for _, obs := range e.observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					e.logger.Error("Panic in alert observer",
						zap.String("window", key.String()),
						zap.Any("panic", r))
				}
			}()
			obs(key, alert, true)
		}()
	}
}

// Stats returns the emitter counters
func (e *Emitter) Stats() (emitted, filtered, undelivered int64) {
	return e.emitted.Load(), e.filtered.Load(), e.undelivered.Load()
}
