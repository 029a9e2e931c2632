// Package worker runs the consumer against the live queue.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"PulseQueue/internal/models"
	"PulseQueue/internal/queue"
)

// Source is the queue side of the poll loop.
type Source interface {
	Receive(ctx context.Context) ([]queue.Message, error)
	Delete(ctx context.Context, msgs []queue.Message) error
}

type BatchHandler interface {
	HandleBatch(ctx context.Context, msgs []queue.Message) models.BatchResponse
}

// deleteTimeout bounds acknowledging a batch after shutdown has begun.
const deleteTimeout = 10 * time.Second

// Poller receives one batch at a time, hands it to the handler and
// deletes every message the handler did not report as failed. Reported
// messages stay on the queue and reappear after their visibility timeout.
type Poller struct {
	Source  Source
	Handler BatchHandler
	Log     *zap.Logger

	// MaxBackoff caps the wait between failed receives.
	MaxBackoff time.Duration

	// BatchTimeout bounds one HandleBatch call. It should stay below the
	// queue's visibility timeout so an unfinished batch is abandoned before
	// its messages are redelivered. Zero means no bound.
	BatchTimeout time.Duration
}

// StartPoller runs a single Poller goroutine. Only one batch is ever in
// flight so sends stay sequential.
func StartPoller(ctx context.Context, wg *sync.WaitGroup, p *Poller) {
	wg.Add(1)

	go func() {
		defer wg.Done()

		p.Log.Info("poller started")
		p.Run(ctx)
		p.Log.Info("poller shutting down")
	}()
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 0
	if p.MaxBackoff > 0 {
		b.MaxInterval = p.MaxBackoff
		b.InitialInterval = min(b.InitialInterval, p.MaxBackoff)
	}
	b.Reset()

	for {
		if ctx.Err() != nil {
			return
		}

		// ----------------------------
		// Receive
		// ----------------------------
		msgs, err := p.Source.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			wait := b.NextBackOff()
			p.Log.Warn("receive failed, backing off",
				zap.Duration("wait", wait),
				zap.Error(err),
			)
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			continue
		}
		b.Reset()

		if len(msgs) == 0 {
			continue
		}

		// ----------------------------
		// Handle
		// ----------------------------
		resp := p.handle(ctx, msgs)

		// ----------------------------
		// Acknowledge
		// ----------------------------
		done := completed(msgs, resp)
		if len(done) == 0 {
			continue
		}

		delCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deleteTimeout)
		if err := p.Source.Delete(delCtx, done); err != nil {
			p.Log.Error("failed to delete processed messages",
				zap.Int("count", len(done)),
				zap.Error(err),
			)
		}
		cancel()

		p.Log.Info("batch processed",
			zap.Int("received", len(msgs)),
			zap.Int("failed", len(resp.BatchItemFailures)),
		)
	}
}

// handle runs one batch. A received batch is finished even if shutdown
// starts meanwhile, but never past BatchTimeout.
func (p *Poller) handle(ctx context.Context, msgs []queue.Message) models.BatchResponse {
	batchCtx := context.WithoutCancel(ctx)
	if p.BatchTimeout > 0 {
		var cancel context.CancelFunc
		batchCtx, cancel = context.WithTimeout(batchCtx, p.BatchTimeout)
		defer cancel()
	}
	return p.Handler.HandleBatch(batchCtx, msgs)
}

// completed returns the messages absent from the failure list.
func completed(msgs []queue.Message, resp models.BatchResponse) []queue.Message {
	failed := make(map[string]struct{}, len(resp.BatchItemFailures))
	for _, f := range resp.BatchItemFailures {
		failed[f.ItemIdentifier] = struct{}{}
	}

	var done []queue.Message
	for _, m := range msgs {
		if _, ok := failed[m.ID]; !ok {
			done = append(done, m)
		}
	}
	return done
}
