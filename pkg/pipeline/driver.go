package pipeline

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/noobrehan18/OpsPulse/pkg/config"
	"github.com/noobrehan18/OpsPulse/pkg/domain"
)

// shardMsg carries one enriched record plus the global watermark at the
// time it was routed. A nil rec is a watermark-only control message,
// broadcast so shards without traffic still close elapsed windows.
type shardMsg struct {
	rec       *domain.EnrichedRecord
	watermark time.Time
}

// DriverMetrics contains strongly-typed counters from the pipeline driver
type DriverMetrics struct {
	RecordsDecoded    int64 `json:"records_decoded"`
	DecodeFailures    int64 `json:"decode_failures"`
	LateDropped       int64 `json:"late_dropped"`
	WindowsClosed     int64 `json:"windows_closed"`
	AlertsEmitted     int64 `json:"alerts_emitted"`
	AlertsFiltered    int64 `json:"alerts_filtered"`
	AlertsUndelivered int64 `json:"alerts_undelivered"`
}

// Driver wires decoder, enricher, window assigner, aggregator, classifier,
// and emitter into a running dataflow. Parallelism is across keys: records
// are sharded by a hash of (service, level) and each shard goroutine owns
// its aggregator, so window state is never updated concurrently.
type Driver struct {
	logger  *zap.Logger
	cfg     *config.ProcessorConfig
	emitter *Emitter
	instr   *Instrumentation

	watermark *Watermark
	shards    []chan shardMsg

	// broadcastMu serializes watermark broadcasts; lastBroadcast is the
	// highest watermark already announced to every shard
	broadcastMu   sync.Mutex
	lastBroadcast time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// inflight tracks Process calls so Stop can close the shard
	// channels only once no producer is mid-send
	inflight sync.WaitGroup

	mu      sync.Mutex
	started bool
	stopped bool

	// now is the processing-time clock, swappable in tests
	now func() time.Time

	recordsDecoded atomic.Int64
	decodeFailures atomic.Int64
	lateDropped    atomic.Int64
	windowsClosed  atomic.Int64
}

// NewDriver creates a pipeline driver from an immutable configuration.
// The configuration must already be validated; a nil sink disables the
// outbound leg.
func NewDriver(logger *zap.Logger, cfg *config.ProcessorConfig, sink Sink, instr *Instrumentation) (*Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid processor config: %w", err)
	}

	shards := make([]chan shardMsg, cfg.Shards)
	for i := range shards {
		shards[i] = make(chan shardMsg, cfg.ShardBuffer)
	}

	emitter := NewEmitter(logger, sink)
	emitter.instr = instr

	return &Driver{
		logger:    logger,
		cfg:       cfg,
		emitter:   emitter,
		instr:     instr,
		watermark: NewWatermark(cfg.AllowedLateness),
		shards:    shards,
		now:       time.Now,
	}, nil
}

// Subscribe registers a debug observer on the emitter. Observers must be
// registered before Start.
func (d *Driver) Subscribe(obs Observer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return fmt.Errorf("cannot subscribe after driver started")
	}
	d.emitter.Subscribe(obs)
	return nil
}

// Start launches the shard workers
func (d *Driver) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return fmt.Errorf("driver already started")
	}
	d.started = true

	d.ctx, d.cancel = context.WithCancel(ctx)

	for i := range d.shards {
		d.wg.Add(1)
		go d.runShard(i)
	}

	d.logger.Info("Pipeline driver started",
		zap.Int("shards", d.cfg.Shards),
		zap.Duration("window_duration", d.cfg.WindowDuration),
		zap.Duration("allowed_lateness", d.cfg.AllowedLateness),
		zap.String("drain_policy", d.cfg.DrainPolicy))
	return nil
}

// Stop drains the shards and shuts the dataflow down. Under the emit
// drain policy every still-open window is closed and classified before
// Stop returns, so a graceful stop loses no aggregated data.
func (d *Driver) Stop() error {
	d.mu.Lock()
	if !d.started || d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	d.mu.Unlock()

	d.logger.Info("Stopping pipeline driver")

	// Let any mid-send Process calls finish before closing the channels
	d.inflight.Wait()

	for _, ch := range d.shards {
		close(ch)
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("All shards stopped gracefully")
	case <-time.After(30 * time.Second):
		d.logger.Error("Timeout waiting for shards to stop")
	}

	d.cancel()
	d.logShutdownStats()
	return nil
}

// Process ingests one raw payload from the inbound topic. Decode failures
// drop the record with a counter and a structured log line; they are never
// fatal and must be acknowledged upstream so poison messages are not
// redelivered forever. A full shard blocks, which is the backpressure
// boundary for the consumer.
func (d *Driver) Process(ctx context.Context, raw []byte) error {
	d.mu.Lock()
	if !d.started || d.stopped {
		d.mu.Unlock()
		return fmt.Errorf("driver is not running")
	}
	d.inflight.Add(1)
	d.mu.Unlock()
	defer d.inflight.Done()

	rec, err := DecodeLogRecord(raw)
	if err != nil {
		d.decodeFailures.Add(1)
		if d.instr != nil {
			d.instr.DecodeFailures.Add(ctx, 1)
		}
		d.logger.Warn("Dropping undecodable record", zap.Error(err))
		return err
	}

	d.recordsDecoded.Add(1)
	if d.instr != nil {
		d.instr.RecordsDecoded.Add(ctx, 1)
	}

	enriched := Enrich(rec, d.now())
	wm := d.watermark.Observe(enriched.EventTime)

	shard := d.shardFor(WindowKeyFor(&enriched, d.cfg.WindowDuration))
	select {
	case d.shards[shard] <- shardMsg{rec: &enriched, watermark: wm}:
	case <-ctx.Done():
		return ctx.Err()
	case <-d.ctx.Done():
		return d.ctx.Err()
	}

	return d.broadcastWatermark(ctx, wm, shard)
}

// broadcastWatermark announces an advanced watermark to every shard other
// than the one that just received it on a record. Without the broadcast a
// shard whose keys go quiet would never close its elapsed windows while
// other keys keep the watermark moving. The mutex keeps broadcasts ordered
// so each shard still sees a monotone watermark sequence.
func (d *Driver) broadcastWatermark(ctx context.Context, wm time.Time, skip int) error {
	d.broadcastMu.Lock()
	defer d.broadcastMu.Unlock()

	if !wm.After(d.lastBroadcast) {
		return nil
	}
	d.lastBroadcast = wm

	for i := range d.shards {
		if i == skip {
			continue
		}
		select {
		case d.shards[i] <- shardMsg{watermark: wm}:
		case <-ctx.Done():
			return ctx.Err()
		case <-d.ctx.Done():
			return d.ctx.Err()
		}
	}
	return nil
}

// Metrics returns current driver counters
func (d *Driver) Metrics() DriverMetrics {
	emitted, filtered, undelivered := d.emitter.Stats()
	return DriverMetrics{
		RecordsDecoded:    d.recordsDecoded.Load(),
		DecodeFailures:    d.decodeFailures.Load(),
		LateDropped:       d.lateDropped.Load(),
		WindowsClosed:     d.windowsClosed.Load(),
		AlertsEmitted:     emitted,
		AlertsFiltered:    filtered,
		AlertsUndelivered: undelivered,
	}
}

// shardFor hashes a window key's shard portion onto a shard index
func (d *Driver) shardFor(key domain.WindowKey) int {
	h := fnv.New32a()
	h.Write([]byte(key.ShardKey()))
	return int(h.Sum32() % uint32(len(d.shards)))
}

// runShard is the sequential processing loop for one shard. Window closes
// are triggered by watermark advancement, carried on records and on
// broadcast control messages, so a fully idle source closes nothing; the
// shutdown drain is the only other close path.
func (d *Driver) runShard(idx int) {
	defer d.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Panic in shard worker",
				zap.Int("shard", idx),
				zap.Any("panic", r))
		}
	}()

	agg := NewAggregator(d.cfg.WindowDuration, LatePolicyDrop)

	// Shard-local high-water mark: broadcasts and record messages may
	// interleave, so never let the shard's view of the watermark regress
	var wm time.Time
	for msg := range d.shards[idx] {
		if msg.watermark.After(wm) {
			wm = msg.watermark
		}
		for _, closed := range agg.AdvanceWatermark(wm) {
			d.emitClosed(closed)
		}

		if msg.rec == nil {
			continue
		}

		if err := agg.Add(msg.rec, wm); err != nil {
			d.lateDropped.Add(1)
			if d.instr != nil {
				d.instr.LateRecords.Add(d.ctx, 1)
			}
			d.logger.Debug("Dropped late record",
				zap.Int("shard", idx),
				zap.String("service", msg.rec.Service),
				zap.String("level", string(msg.rec.Level)),
				zap.Time("event_time", msg.rec.EventTime),
				zap.Error(err))
		}
	}

	// Channel closed: flush in-flight windows per drain policy
	remaining := agg.Drain()
	if d.cfg.DrainPolicy == config.DrainDiscard {
		if len(remaining) > 0 {
			d.logger.Warn("Discarding open windows on shutdown",
				zap.Int("shard", idx),
				zap.Int("windows", len(remaining)))
		}
		return
	}
	for _, closed := range remaining {
		d.emitClosed(closed)
	}
}

// emitClosed classifies one closed window and hands it to the emitter
func (d *Driver) emitClosed(closed domain.ClosedWindow) {
	d.windowsClosed.Add(1)
	if d.instr != nil {
		d.instr.WindowsClosed.Add(d.ctx, 1)
	}

	alert := Classify(closed, d.now())

	ctx := d.ctx
	if ctx == nil || ctx.Err() != nil {
		// Shutdown drain still delivers, with a bounded grace period
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
	}

	// Delivery failures are logged and counted inside the emitter;
	// they never abort the shard.
	_ = d.emitter.Emit(ctx, closed.Key, alert)
}

// logShutdownStats logs final statistics
func (d *Driver) logShutdownStats() {
	m := d.Metrics()
	d.logger.Info("Pipeline driver stopped",
		zap.Int64("records_decoded", m.RecordsDecoded),
		zap.Int64("decode_failures", m.DecodeFailures),
		zap.Int64("late_dropped", m.LateDropped),
		zap.Int64("windows_closed", m.WindowsClosed),
		zap.Int64("alerts_emitted", m.AlertsEmitted),
		zap.Int64("alerts_filtered", m.AlertsFiltered),
		zap.Int64("alerts_undelivered", m.AlertsUndelivered))
}
