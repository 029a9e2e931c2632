// Package producer validates outbound email jobs and puts them on the
// queue. EnqueueEmailJobs and BroadcastEmail are the only supported ways
// for application code to reach the queue.
package producer

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"PulseQueue/internal/failure"
	"PulseQueue/internal/metrics"
	"PulseQueue/internal/models"
	"PulseQueue/internal/queue"
	"PulseQueue/internal/validate"
)

const DefaultConcurrency = 5

// BatchSender sends one group of at most queue.MaxBatchSize entries.
type BatchSender interface {
	SendBatch(ctx context.Context, entries []queue.Entry) (queue.BatchOutcome, error)
}

type Producer struct {
	queue       BatchSender
	log         *zap.Logger
	concurrency int
}

func New(q BatchSender, logger *zap.Logger, concurrency int) *Producer {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Producer{queue: q, log: logger, concurrency: concurrency}
}

// EnqueueEmailJobs validates jobs and sends them in groups of
// queue.MaxBatchSize, at most p.concurrency groups in flight.
//
// Jobs with an undeliverable recipient are dropped and only counted. Any
// other invalid job aborts the call with a *validate.ValidationError before
// anything is sent. Queue-side rejections are reported per job in
// EnqueueResult.Failed; every sent job lands in exactly one of MessageIDs
// or Failed.
func (p *Producer) EnqueueEmailJobs(ctx context.Context, jobs []models.EmailJob) (models.EnqueueResult, error) {
	result := models.EnqueueResult{MessageIDs: []string{}, Failed: []models.FailedJob{}}
	if len(jobs) == 0 {
		return result, nil
	}

	filtered := make([]models.EmailJob, 0, len(jobs))
	positions := make([]int, 0, len(jobs))
	for i, job := range jobs {
		if !validate.Deliverable(job.To) {
			continue
		}
		filtered = append(filtered, job)
		positions = append(positions, i)
	}
	if skipped := len(jobs) - len(filtered); skipped > 0 {
		p.log.Warn("skipped jobs with invalid or blocked recipient",
			zap.Int("skipped", skipped),
		)
		metrics.JobsFiltered.Add(float64(skipped))
	}
	if len(filtered) == 0 {
		return result, nil
	}

	for i, job := range filtered {
		if err := validate.Job(job, positions[i]); err != nil {
			return models.EnqueueResult{}, err
		}
	}

	return p.sendAll(ctx, filtered), nil
}

func (p *Producer) sendAll(ctx context.Context, jobs []models.EmailJob) models.EnqueueResult {
	var groups [][]models.EmailJob
	for start := 0; start < len(jobs); start += queue.MaxBatchSize {
		end := min(start+queue.MaxBatchSize, len(jobs))
		groups = append(groups, jobs[start:end])
	}

	outcomes := make([]models.EnqueueResult, len(groups))
	for start := 0; start < len(groups); start += p.concurrency {
		end := min(start+p.concurrency, len(groups))

		var g errgroup.Group
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				outcomes[i] = p.sendGroup(ctx, groups[i])
				return nil
			})
		}
		_ = g.Wait()
	}

	result := models.EnqueueResult{MessageIDs: []string{}, Failed: []models.FailedJob{}}
	for _, o := range outcomes {
		result.MessageIDs = append(result.MessageIDs, o.MessageIDs...)
		result.Failed = append(result.Failed, o.Failed...)
	}

	metrics.JobsEnqueued.Add(float64(len(result.MessageIDs)))
	metrics.JobsRejected.Add(float64(len(result.Failed)))
	p.log.Info("enqueued email jobs",
		zap.Int("groups", len(groups)),
		zap.Int("enqueued", len(result.MessageIDs)),
		zap.Int("failed", len(result.Failed)),
	)
	return result
}

// sendGroup never returns an error: a failed call fails every job in it.
func (p *Producer) sendGroup(ctx context.Context, jobs []models.EmailJob) models.EnqueueResult {
	var out models.EnqueueResult

	byEntry := make(map[string]models.EmailJob, len(jobs))
	entries := make([]queue.Entry, 0, len(jobs))
	for _, job := range jobs {
		body, err := json.Marshal(job)
		if err != nil {
			out.Failed = append(out.Failed, models.FailedJob{Job: job, Code: "SerializationError", Message: err.Error()})
			continue
		}
		entry := queue.Entry{
			ID:   strings.ReplaceAll(uuid.NewString(), "-", ""),
			Body: string(body),
		}
		if job.IdempotencyKey != "" {
			entry.Attributes = map[string]string{queue.IdempotencyKeyAttribute: job.IdempotencyKey}
		}
		byEntry[entry.ID] = job
		entries = append(entries, entry)
	}
	if len(entries) == 0 {
		return out
	}

	outcome, err := p.queue.SendBatch(ctx, entries)
	if err != nil {
		code := string(failure.CodeOf(err))
		if code == "" {
			code = "SendFailed"
		}
		p.log.Error("queue batch send failed",
			zap.Int("jobs", len(entries)),
			zap.String("code", code),
			zap.Error(err),
		)
		for _, e := range entries {
			out.Failed = append(out.Failed, models.FailedJob{Job: byEntry[e.ID], Code: code, Message: err.Error()})
		}
		return out
	}

	for _, a := range outcome.Accepted {
		if _, ok := byEntry[a.EntryID]; !ok {
			continue
		}
		out.MessageIDs = append(out.MessageIDs, a.MessageID)
		delete(byEntry, a.EntryID)
	}
	for _, r := range outcome.Rejected {
		job, ok := byEntry[r.EntryID]
		if !ok {
			continue
		}
		out.Failed = append(out.Failed, models.FailedJob{Job: job, Code: r.Code, Message: r.Message})
		delete(byEntry, r.EntryID)
	}
	// Entries the queue reported neither way are counted as failed so no
	// job goes missing from the result.
	for _, e := range entries {
		if job, ok := byEntry[e.ID]; ok {
			out.Failed = append(out.Failed, models.FailedJob{Job: job, Code: "Unknown", Message: "no result returned for entry"})
		}
	}
	return out
}
