package engine

import (
	"context"
	"errors"
	"time"

	"tradeslip/internal/chain"
)

// Watch refreshes the engine on every new head and, when interval is positive, on a
// fixed timer. It returns when ctx ends, or when heads is closed and no timer runs.
// A nil heads channel refreshes on the timer only.
func (e *Engine) Watch(ctx context.Context, heads <-chan chain.Head, interval time.Duration) error {
	var tick <-chan time.Time
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}
	if heads == nil && tick == nil {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case head, ok := <-heads:
			if !ok {
				heads = nil
				if tick == nil {
					return nil
				}
				continue
			}
			e.refresh(ctx, "head", head.Number)
		case <-tick:
			e.refresh(ctx, "timer", 0)
		}
	}
}

func (e *Engine) refresh(ctx context.Context, trigger string, block uint64) {
	err := e.Refresh(ctx)
	switch {
	case err == nil:
		e.logger.Debug("refreshed", "trigger", trigger, "block", block)
	case errors.Is(err, ErrSnapshotDiscarded), ctx.Err() != nil:
	default:
		e.logger.Warn("refresh failed", "trigger", trigger, "block", block, "error", err)
	}
}
