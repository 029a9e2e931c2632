package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"PulseQueue/internal/idempotency"
)

// StartPurger deletes expired idempotency records every interval for
// stores without native TTL.
func StartPurger(ctx context.Context, wg *sync.WaitGroup, store idempotency.Purger, interval time.Duration, logger *zap.Logger) {
	wg.Add(1)

	go func() {
		defer wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := store.PurgeExpired(ctx)
				if err != nil {
					logger.Error("failed to purge expired idempotency records", zap.Error(err))
					continue
				}
				if n > 0 {
					logger.Info("purged expired idempotency records", zap.Int64("count", n))
				}
			}
		}
	}()
}
