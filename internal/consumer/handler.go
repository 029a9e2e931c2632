// Package consumer delivers queued email jobs one message at a time.
package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"PulseQueue/internal/email"
	"PulseQueue/internal/failure"
	"PulseQueue/internal/idempotency"
	"PulseQueue/internal/metrics"
	"PulseQueue/internal/models"
	"PulseQueue/internal/queue"
	"PulseQueue/internal/validate"
)

// Handler processes one received batch. It holds no per-batch state and
// must not be run for two batches at once.
type Handler struct {
	store       idempotency.Store
	sender      email.Sender
	defaultFrom string
	log         *zap.Logger
	now         func() time.Time
}

func New(store idempotency.Store, sender email.Sender, defaultFrom string, logger *zap.Logger) *Handler {
	return &Handler{
		store:       store,
		sender:      sender,
		defaultFrom: defaultFrom,
		log:         logger,
		now:         time.Now,
	}
}

// HandleBatch processes msgs sequentially and returns the ids of the
// messages the queue should redeliver. A failing message never stops the
// rest of the batch.
func (h *Handler) HandleBatch(ctx context.Context, msgs []queue.Message) models.BatchResponse {
	resp := models.BatchResponse{BatchItemFailures: []models.BatchItemFailure{}}

	for _, msg := range msgs {
		err := h.handle(ctx, msg)
		if err == nil {
			continue
		}

		kind := failure.Classify(err)
		metrics.EmailFailures.WithLabelValues(kind.String()).Inc()
		h.log.Error("email delivery failed",
			zap.String("message_id", msg.ID),
			zap.String("kind", kind.String()),
			zap.String("code", string(failure.CodeOf(err))),
			zap.Error(err),
		)
		resp.BatchItemFailures = append(resp.BatchItemFailures, models.BatchItemFailure{ItemIdentifier: msg.ID})
	}

	metrics.BatchesProcessed.Inc()
	return resp
}

// handle returns an error only for failures the queue should redeliver.
func (h *Handler) handle(ctx context.Context, msg queue.Message) error {
	var job models.EmailJob
	if err := json.Unmarshal([]byte(msg.Body), &job); err != nil {
		h.drop(msg, err)
		return nil
	}
	if err := validate.Job(job, -1); err != nil {
		h.drop(msg, err)
		return nil
	}

	key := idempotencyKey(msg, job)
	log := h.log.With(zap.String("message_id", msg.ID), zap.String("idempotency_key", key))

	seen, err := h.store.Exists(ctx, key)
	if err != nil {
		return fmt.Errorf("idempotency lookup: %w", err)
	}
	if seen {
		metrics.DuplicatesSkipped.Inc()
		log.Info("duplicate email skipped")
		return nil
	}

	providerID, err := h.sender.Send(ctx, h.message(job))
	if err != nil {
		return err
	}
	metrics.EmailsSent.Inc()
	log.Info("email sent", zap.String("to", job.To), zap.String("provider_id", providerID))

	outcome, err := h.store.InsertIfAbsent(ctx, models.NewIdempotencyRecord(key, job.To, h.now()))
	switch outcome {
	case idempotency.Inserted:
	case idempotency.AlreadyExists:
		// A concurrent delivery recorded the key first. Both have sent.
		metrics.IdempotencyRecordErrors.WithLabelValues(outcome.String()).Inc()
		log.Info("idempotency record already present after send")
	default:
		// The email is out; redelivering would send it again.
		metrics.IdempotencyRecordErrors.WithLabelValues(outcome.String()).Inc()
		log.Error("failed to record sent email", zap.Error(err))
	}
	return nil
}

func (h *Handler) drop(msg queue.Message, err error) {
	metrics.MessagesDropped.Inc()
	h.log.Warn("dropping malformed queue message",
		zap.String("message_id", msg.ID),
		zap.Error(err),
	)
}

func (h *Handler) message(job models.EmailJob) email.Message {
	from := job.From
	if from == "" {
		from = h.defaultFrom
	}
	m := email.Message{
		From:    from,
		To:      job.To,
		Subject: job.Subject,
		HTML:    job.HTML,
		Text:    job.Text,
		ReplyTo: job.ReplyTo,
		Tags:    job.Tags,
	}
	if job.UnsubscribeURL != "" {
		m.Headers = email.UnsubscribeHeaders(job.UnsubscribeURL)
	}
	return m
}

// idempotencyKey prefers the message attribute, then the key in the body,
// then the queue-assigned message id.
func idempotencyKey(msg queue.Message, job models.EmailJob) string {
	if key := msg.Attribute(queue.IdempotencyKeyAttribute); key != "" {
		return key
	}
	if job.IdempotencyKey != "" {
		return job.IdempotencyKey
	}
	return msg.ID
}
