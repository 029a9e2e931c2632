package producer

import (
	"context"

	"go.uber.org/zap"

	"PulseQueue/internal/metrics"
	"PulseQueue/internal/models"
	"PulseQueue/internal/validate"
)

// BroadcastEmail sends the same email to every recipient as an individual
// job. Each job carries the key broadcastId::recipient, so re-running a
// broadcast never delivers twice to the same address.
func (p *Producer) BroadcastEmail(ctx context.Context, b models.BroadcastEmail) (models.BroadcastResult, error) {
	if err := validate.Broadcast(b); err != nil {
		return models.BroadcastResult{}, err
	}

	recipients, skipped := validate.FilterRecipients(b.Recipients)
	if skipped > 0 {
		p.log.Warn("skipped broadcast recipients with invalid or blocked address",
			zap.String("broadcast_id", b.BroadcastID),
			zap.Int("skipped", skipped),
		)
		metrics.JobsFiltered.Add(float64(skipped))
	}
	if len(recipients) == 0 {
		return models.BroadcastResult{FailedRecipients: []string{}}, nil
	}

	jobs := make([]models.EmailJob, 0, len(recipients))
	for _, to := range recipients {
		jobs = append(jobs, models.EmailJob{
			To:             to,
			From:           b.From,
			Subject:        b.Subject,
			HTML:           b.HTML,
			Text:           b.Text,
			ReplyTo:        b.ReplyTo,
			Tags:           b.Tags,
			IdempotencyKey: models.RecipientKey(b.BroadcastID, to),
		})
	}

	res, err := p.EnqueueEmailJobs(ctx, jobs)
	if err != nil {
		return models.BroadcastResult{}, err
	}

	out := models.BroadcastResult{
		EnqueuedCount:    len(res.MessageIDs),
		FailedCount:      len(res.Failed),
		FailedRecipients: make([]string, 0, len(res.Failed)),
	}
	for _, f := range res.Failed {
		out.FailedRecipients = append(out.FailedRecipients, f.Job.To)
	}

	p.log.Info("broadcast enqueued",
		zap.String("broadcast_id", b.BroadcastID),
		zap.Int("enqueued", out.EnqueuedCount),
		zap.Int("failed", out.FailedCount),
	)
	return out, nil
}
