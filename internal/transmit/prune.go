package transmit

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Prune deletes records every endpoint has moved past, capped to the
// retention window. The cutoff is the minimum watermark across all
// endpoints or now minus the retention window, whichever is more recent.
// An endpoint that never succeeds therefore costs at most the retention
// window of local storage, at the price of permanent loss for that
// endpoint once the cap passes its backlog. Runs automatically at the end
// of every cycle; also exposed for the prune CLI command.
func (e *Engine) Prune(ctx context.Context) int64 {
	var minWatermark time.Time
	for i, ep := range e.endpoints {
		wm := e.watermark(ctx, ep.Key())
		if i == 0 || wm.Before(minWatermark) {
			minWatermark = wm
		}
	}

	cutoff := minWatermark
	if maxRetention := e.now().Add(-e.maxRetention); maxRetention.After(cutoff) {
		cutoff = maxRetention
	}

	deleted, err := e.records.DeleteBefore(ctx, cutoff)
	if err != nil {
		e.logger.Error("pruning records", zap.Time("cutoff", cutoff), zap.Error(err))
		return 0
	}
	if deleted > 0 {
		e.logger.Debug("pruned records",
			zap.Int64("deleted", deleted),
			zap.Time("cutoff", cutoff),
		)
	}
	return deleted
}
