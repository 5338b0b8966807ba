package transmit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/traverse-labs/waypost/internal/record"
)

// CycleResult summarizes one fan-out cycle.
type CycleResult struct {
	Endpoints int
	Succeeded int
	Failed    int
	Posted    int // records posted across all endpoints
	Pruned    int64
	Duration  time.Duration
	Errors    []string
}

type attemptResult struct {
	endpoint Endpoint
	posted   int
	err      error
}

// runCycle executes one attempt per endpoint concurrently, joins on all of
// them, prunes, clears the transmitting flag and finally releases the
// guard. The caller must already hold the transmitting flag.
func (e *Engine) runCycle(ctx context.Context) CycleResult {
	token := e.guard.Acquire()
	start := time.Now()

	e.logger.Info("transmission cycle started", zap.Int("endpoints", len(e.endpoints)))

	attempts := make([]attemptResult, len(e.endpoints))

	var wg sync.WaitGroup
	for i, ep := range e.endpoints {
		wg.Add(1)
		go func(i int, ep Endpoint) {
			defer wg.Done()
			attempts[i] = e.attempt(ctx, ep)
		}(i, ep)
	}
	wg.Wait()

	pruned := e.Prune(ctx)
	e.transmitting.Store(false)
	e.guard.Release(token)

	result := CycleResult{
		Endpoints: len(e.endpoints),
		Pruned:    pruned,
		Duration:  time.Since(start),
	}
	for _, a := range attempts {
		if a.err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", a.endpoint, a.err))
			continue
		}
		result.Succeeded++
		result.Posted += a.posted
	}

	e.logger.Info("transmission cycle complete",
		zap.Int("endpoints", result.Endpoints),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", result.Failed),
		zap.Int("posted", result.Posted),
		zap.Int64("pruned", result.Pruned),
		zap.Duration("duration", result.Duration),
	)

	if e.onCycleDone != nil {
		e.onCycleDone(result)
	}
	return result
}

// attempt delivers every record newer than the endpoint's watermark and,
// on success, advances the watermark to the newest record in the slice.
// Failure leaves the watermark untouched; the records stay eligible for
// the next cycle.
func (e *Engine) attempt(ctx context.Context, ep Endpoint) attemptResult {
	result := attemptResult{endpoint: ep}

	watermark := e.watermark(ctx, ep.Key())

	records, err := e.records.AllSince(ctx, watermark)
	if err != nil {
		result.err = fmt.Errorf("querying records: %w", err)
		e.logger.Error("attempt failed", zap.String("endpoint", ep.URL), zap.Error(result.err))
		return result
	}
	if len(records) == 0 {
		e.logger.Debug("endpoint is current", zap.String("endpoint", ep.URL))
		return result
	}

	payload, err := record.EncodeBatch(records)
	if err != nil {
		result.err = err
		e.logger.Error("attempt failed", zap.String("endpoint", ep.URL), zap.Error(err))
		return result
	}

	if err := e.poster.Post(ctx, ep.URL, ep.Headers, payload); err != nil {
		result.err = fmt.Errorf("posting batch: %w", err)
		e.logger.Warn("post failed, records remain queued",
			zap.String("endpoint", ep.URL),
			zap.Int("records", len(records)),
			zap.Error(err),
		)
		return result
	}

	newest := records[len(records)-1].Timestamp
	if err := e.marks.Set(ctx, ep.Key(), newest); err != nil {
		// The batch is already delivered; a stale cursor means the next
		// cycle re-sends it. Worth an error-level entry.
		e.logger.Error("persisting watermark",
			zap.String("endpoint", ep.URL),
			zap.Time("watermark", newest),
			zap.Error(err),
		)
	}

	result.posted = len(records)
	e.logger.Info("batch delivered",
		zap.String("endpoint", ep.URL),
		zap.Int("records", len(records)),
		zap.Time("watermark", newest),
	)
	return result
}

// watermark reads an endpoint's cursor, normalizing anything untrusted
// (read error, value newer than now) to the distant past.
func (e *Engine) watermark(ctx context.Context, key string) time.Time {
	wm, err := e.marks.Get(ctx, key)
	if err != nil {
		e.logger.Error("reading watermark, assuming distant past",
			zap.String("endpoint", key),
			zap.Error(err),
		)
		return time.Time{}
	}
	if wm.After(e.now()) {
		e.logger.Warn("watermark is in the future, assuming distant past",
			zap.String("endpoint", key),
			zap.Time("watermark", wm),
		)
		return time.Time{}
	}
	return wm
}
