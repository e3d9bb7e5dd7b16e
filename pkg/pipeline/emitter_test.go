package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/noobrehan18/OpsPulse/pkg/domain"
)

// memSink is an in-memory Sink with failure injection
type memSink struct {
	mu         sync.Mutex
	failuresN  int // fail this many leading attempts
	attempts   int
	deliveries [][]byte
}

func (s *memSink) Write(ctx context.Context, alert *domain.AlertEvent, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if s.attempts <= s.failuresN {
		return fmt.Errorf("sink unavailable (attempt %d)", s.attempts)
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	s.deliveries = append(s.deliveries, cp)
	return nil
}

func (s *memSink) delivered() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.deliveries...)
}

func testAlert(actionable bool) (domain.WindowKey, domain.AlertEvent) {
	start := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	key := domain.WindowKey{
		Service:     "api",
		Level:       domain.LevelError,
		WindowStart: start,
		WindowEnd:   start.Add(time.Minute),
	}
	alert := domain.AlertEvent{
		AlertID:     "alert-1",
		Service:     "api",
		Level:       domain.LevelError,
		WindowStart: key.WindowStart,
		WindowEnd:   key.WindowEnd,
		LogCount:    6,
		EmittedAt:   time.Now(),
	}
	if actionable {
		alert.ErrorCount = 5
		alert.IsSpike = true
		alert.ErrorRate = 5.0 / 6.0
	}
	return key, alert
}

func TestEmitter_FiltersNonActionable(t *testing.T) {
	sink := &memSink{}
	em := NewEmitter(zaptest.NewLogger(t), sink)

	observed := 0
	em.Subscribe(func(key domain.WindowKey, alert domain.AlertEvent, emitted bool) {
		observed++
	})

	key, alert := testAlert(false)
	require.NoError(t, em.Emit(context.Background(), key, alert))

	// Discarded without side effects: no sink write, no observer call
	assert.Empty(t, sink.delivered())
	assert.Equal(t, 0, observed)

	emitted, filtered, undelivered := em.Stats()
	assert.Equal(t, int64(0), emitted)
	assert.Equal(t, int64(1), filtered)
	assert.Equal(t, int64(0), undelivered)
}

func TestEmitter_EmitsActionable(t *testing.T) {
	sink := &memSink{}
	em := NewEmitter(zaptest.NewLogger(t), sink)

	key, alert := testAlert(true)
	require.NoError(t, em.Emit(context.Background(), key, alert))

	deliveries := sink.delivered()
	require.Len(t, deliveries, 1)

	var got domain.AlertEvent
	require.NoError(t, json.Unmarshal(deliveries[0], &got))
	assert.Equal(t, "api", got.Service)
	assert.True(t, got.IsSpike)
	assert.InDelta(t, 5.0/6.0, got.ErrorRate, 1e-9)
}

func TestEmitter_ObserverPanicIsIsolated(t *testing.T) {
	sink := &memSink{}
	em := NewEmitter(zaptest.NewLogger(t), sink)

	var calls []string
	em.Subscribe(func(key domain.WindowKey, alert domain.AlertEvent, emitted bool) {
		panic("observer bug")
	})
	em.Subscribe(func(key domain.WindowKey, alert domain.AlertEvent, emitted bool) {
		calls = append(calls, alert.AlertID)
		assert.True(t, emitted)
	})

	key, alert := testAlert(true)
	require.NoError(t, em.Emit(context.Background(), key, alert))

	// The panicking observer neither stops emission nor later observers
	assert.Equal(t, []string{"alert-1"}, calls)
	assert.Len(t, sink.delivered(), 1)
}

func TestEmitter_RetriesThenDelivers(t *testing.T) {
	// Sink unavailable for 3 consecutive attempts, then recovers
	sink := &memSink{failuresN: 3}
	em := NewEmitter(zaptest.NewLogger(t), sink)

	key, alert := testAlert(true)
	require.NoError(t, em.Emit(context.Background(), key, alert))

	// Delivered exactly once after recovery, no duplicates
	assert.Len(t, sink.delivered(), 1)
	assert.Equal(t, 4, sink.attempts)

	emitted, _, undelivered := em.Stats()
	assert.Equal(t, int64(1), emitted)
	assert.Equal(t, int64(0), undelivered)
}

func TestEmitter_GivesUpAfterMaxRetries(t *testing.T) {
	sink := &memSink{failuresN: 100}
	em := NewEmitter(zaptest.NewLogger(t), sink)

	key, alert := testAlert(true)
	err := em.Emit(context.Background(), key, alert)
	require.Error(t, err)

	var pe *PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "SinkWrite", pe.Type)

	assert.Equal(t, DefaultSinkRetries, sink.attempts)
	_, _, undelivered := em.Stats()
	assert.Equal(t, int64(1), undelivered)
}

func TestEmitter_NilSinkStillObserves(t *testing.T) {
	em := NewEmitter(zaptest.NewLogger(t), nil)

	observed := 0
	em.Subscribe(func(key domain.WindowKey, alert domain.AlertEvent, emitted bool) {
		observed++
	})

	key, alert := testAlert(true)
	require.NoError(t, em.Emit(context.Background(), key, alert))
	assert.Equal(t, 1, observed)
}
