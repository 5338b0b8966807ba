// Package transmit is the batch transmission engine: it decides when a
// cycle should run, fans one attempt out per endpoint, tracks each
// endpoint's delivery watermark, and prunes the local queue once every
// attempt has resolved.
package transmit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/traverse-labs/waypost/internal/guard"
	"github.com/traverse-labs/waypost/internal/record"
	"github.com/traverse-labs/waypost/internal/store"
)

// RecordStore is the ordered append-only queue of buffered records.
type RecordStore interface {
	Append(ctx context.Context, records []record.Record) error
	Oldest(ctx context.Context) (record.Record, bool, error)
	AllSince(ctx context.Context, watermark time.Time) ([]record.Record, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// WatermarkStore persists the last successfully transmitted timestamp per
// endpoint key. It survives restarts; reads default to the zero time.
type WatermarkStore interface {
	Get(ctx context.Context, endpointKey string) (time.Time, error)
	Set(ctx context.Context, endpointKey string, value time.Time) error
}

// Poster issues exactly one logical post per attempt.
type Poster interface {
	Post(ctx context.Context, destination string, headers map[string]string, payload []byte) error
}

// ExecutionGuard keeps the process alive for the duration of a cycle.
type ExecutionGuard interface {
	Acquire() *guard.Token
	Release(*guard.Token)
}

// ErrCycleInFlight is returned by Flush when a cycle is already running.
var ErrCycleInFlight = errors.New("transmission cycle already in flight")

// DefaultMaxRetention bounds local storage growth even when an endpoint
// never successfully transmits.
const DefaultMaxRetention = 10 * 24 * time.Hour

// Config carries the engine's construction-time settings.
type Config struct {
	Endpoints            []Endpoint
	TransmissionInterval time.Duration
	MaxRetention         time.Duration

	// OnCycleDone, when set, is invoked after each completed cycle, once
	// the transmitting flag has been cleared.
	OnCycleDone func(CycleResult)
}

// Engine owns the endpoint list and the cycle state. Stores, poster and
// guard are external collaborators reached through narrow interfaces.
type Engine struct {
	records   RecordStore
	marks     WatermarkStore
	poster    Poster
	guard     ExecutionGuard
	collector *record.Collector
	endpoints []Endpoint
	logger    *zap.Logger

	interval     atomic.Int64 // nanoseconds, read fresh on every decision
	maxRetention time.Duration
	transmitting atomic.Bool
	onCycleDone  func(CycleResult)

	// ingestMu serializes the ingestion path: record appends and the
	// oldest-record staleness check never race each other.
	ingestMu sync.Mutex

	now func() time.Time
}

func New(cfg Config, records RecordStore, marks WatermarkStore, p Poster, g ExecutionGuard, collector *record.Collector, logger *zap.Logger) *Engine {
	if cfg.TransmissionInterval <= 0 {
		cfg.TransmissionInterval = time.Minute
	}
	if cfg.MaxRetention <= 0 {
		cfg.MaxRetention = DefaultMaxRetention
	}

	e := &Engine{
		records:      records,
		marks:        marks,
		poster:       p,
		guard:        g,
		collector:    collector,
		endpoints:    cfg.Endpoints,
		logger:       logger,
		maxRetention: cfg.MaxRetention,
		onCycleDone:  cfg.OnCycleDone,
		now:          time.Now,
	}
	e.interval.Store(int64(cfg.TransmissionInterval))
	return e
}

// TransmissionInterval returns the current staleness threshold.
func (e *Engine) TransmissionInterval() time.Duration {
	return time.Duration(e.interval.Load())
}

// SetTransmissionInterval changes the staleness threshold. It takes effect
// on the next scheduling decision.
func (e *Engine) SetTransmissionInterval(d time.Duration) {
	e.interval.Store(int64(d))
}

// Transmitting reports whether a cycle is currently in flight.
func (e *Engine) Transmitting() bool {
	return e.transmitting.Load()
}

// OnNewFixes converts incoming fixes to records, appends them to the
// durable queue, and runs the scheduling decision. The append error is the
// only one surfaced; transmission problems are contained and logged.
func (e *Engine) OnNewFixes(ctx context.Context, fixes []record.Fix) error {
	if len(fixes) == 0 {
		return nil
	}

	e.ingestMu.Lock()
	defer e.ingestMu.Unlock()

	records := e.collector.CollectAll(fixes)
	if err := e.records.Append(ctx, records); err != nil {
		return err
	}
	e.logger.Debug("buffered fixes", zap.Int("count", len(records)))

	e.triggerLocked(ctx)
	return nil
}

// TriggerIfStale runs the scheduling decision: if the oldest buffered
// record is older than the transmission interval, a cycle begins (unless
// one is already in flight).
func (e *Engine) TriggerIfStale(ctx context.Context) {
	e.ingestMu.Lock()
	defer e.ingestMu.Unlock()
	e.triggerLocked(ctx)
}

func (e *Engine) triggerLocked(ctx context.Context) {
	oldest, ok, err := e.records.Oldest(ctx)
	if err != nil {
		// A corrupt persisted entry must not wedge the scheduler.
		if errors.Is(err, store.ErrCorruptRecord) {
			e.logger.Warn("oldest record is corrupt, skipping staleness check", zap.Error(err))
		} else {
			e.logger.Error("reading oldest record", zap.Error(err))
		}
		return
	}
	if !ok {
		return
	}

	age := e.now().Sub(oldest.Timestamp)
	interval := e.TransmissionInterval()
	if age <= interval {
		return
	}

	e.logger.Debug("backlog is stale",
		zap.Duration("age", age),
		zap.Duration("interval", interval),
	)
	e.beginCycleIfIdle(ctx)
}

// beginCycleIfIdle starts a fan-out cycle unless one is already running or
// no endpoints are configured. The cycle runs detached from the caller's
// context: once started, every attempt resolves before the cycle ends.
func (e *Engine) beginCycleIfIdle(ctx context.Context) bool {
	if len(e.endpoints) == 0 {
		return false
	}
	if !e.transmitting.CompareAndSwap(false, true) {
		e.logger.Debug("cycle already in flight, trigger dropped")
		return false
	}

	go e.runCycle(context.WithoutCancel(ctx))
	return true
}

// Flush runs one full cycle synchronously. Used by the CLI and the ingest
// server's explicit flush route.
func (e *Engine) Flush(ctx context.Context) (CycleResult, error) {
	if len(e.endpoints) == 0 {
		return CycleResult{}, nil
	}
	if !e.transmitting.CompareAndSwap(false, true) {
		return CycleResult{}, ErrCycleInFlight
	}
	return e.runCycle(ctx), nil
}
