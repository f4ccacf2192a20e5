package store

import (
	"context"
	"log/slog"
	"time"
)

// Purger removes expired entries from a store that does not expire them itself.
type Purger interface {
	Purge(ctx context.Context) (int64, error)
}

// RunJanitor calls p.Purge every interval until ctx is cancelled.
func RunJanitor(ctx context.Context, p Purger, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.Purge(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Warn("cache purge failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Debug("purged expired cache entries", "count", n)
			}
		}
	}
}
