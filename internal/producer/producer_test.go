package producer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"PulseQueue/internal/models"
	"PulseQueue/internal/queue"
	"PulseQueue/internal/validate"
)

// fakeQueue accepts every entry unless reject or fail says otherwise.
type fakeQueue struct {
	mu       sync.Mutex
	calls    [][]queue.Entry
	seq      int
	inFlight atomic.Int32
	peak     atomic.Int32
	delay    time.Duration

	reject func(e queue.Entry) (string, bool)
	fail   func(call int) error
}

func (q *fakeQueue) SendBatch(ctx context.Context, entries []queue.Entry) (queue.BatchOutcome, error) {
	n := q.inFlight.Add(1)
	defer q.inFlight.Add(-1)
	for {
		peak := q.peak.Load()
		if n <= peak || q.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	if q.delay > 0 {
		time.Sleep(q.delay)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	call := len(q.calls)
	q.calls = append(q.calls, entries)
	if q.fail != nil {
		if err := q.fail(call); err != nil {
			return queue.BatchOutcome{}, err
		}
	}

	var out queue.BatchOutcome
	for _, e := range entries {
		if q.reject != nil {
			if code, ok := q.reject(e); ok {
				out.Rejected = append(out.Rejected, queue.Rejected{EntryID: e.ID, Code: code, Message: "rejected"})
				continue
			}
		}
		q.seq++
		out.Accepted = append(out.Accepted, queue.Accepted{EntryID: e.ID, MessageID: fmt.Sprintf("msg-%d", q.seq)})
	}
	return out, nil
}

func (q *fakeQueue) bodies(t *testing.T) []models.EmailJob {
	t.Helper()
	q.mu.Lock()
	defer q.mu.Unlock()
	var jobs []models.EmailJob
	for _, call := range q.calls {
		for _, e := range call {
			var job models.EmailJob
			require.NoError(t, json.Unmarshal([]byte(e.Body), &job))
			jobs = append(jobs, job)
		}
	}
	return jobs
}

func newJobs(n int) []models.EmailJob {
	jobs := make([]models.EmailJob, n)
	for i := range jobs {
		jobs[i] = models.EmailJob{
			To:      fmt.Sprintf("user%d@school.com", i),
			Subject: "Hi",
			HTML:    "<p>Hi</p>",
		}
	}
	return jobs
}

func TestEnqueueEmailJobs_SingleJob(t *testing.T) {
	q := &fakeQueue{}
	p := New(q, zap.NewNop(), 0)

	res, err := p.EnqueueEmailJobs(context.Background(), []models.EmailJob{
		{To: "a@school.com", Subject: "Hi", HTML: "<p>Hi</p>"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"msg-1"}, res.MessageIDs)
	assert.Empty(t, res.Failed)
}

func TestEnqueueEmailJobs_BlockedDomainIsFilteredSilently(t *testing.T) {
	q := &fakeQueue{}
	p := New(q, zap.NewNop(), 0)

	res, err := p.EnqueueEmailJobs(context.Background(), []models.EmailJob{
		{To: "bad@example.com", Subject: "Hi", HTML: "<p>Hi</p>"},
		{To: "not-an-email", Subject: "Hi", HTML: "<p>Hi</p>"},
	})
	require.NoError(t, err)
	assert.Empty(t, res.MessageIDs)
	assert.Empty(t, res.Failed)
	assert.Empty(t, q.calls)
}

func TestEnqueueEmailJobs_Empty(t *testing.T) {
	q := &fakeQueue{}
	res, err := New(q, zap.NewNop(), 0).EnqueueEmailJobs(context.Background(), nil)
	require.NoError(t, err)
	assert.NotNil(t, res.MessageIDs)
	assert.NotNil(t, res.Failed)
	assert.Empty(t, q.calls)
}

func TestEnqueueEmailJobs_InvalidJobFailsFast(t *testing.T) {
	q := &fakeQueue{}
	p := New(q, zap.NewNop(), 0)

	jobs := newJobs(12)
	jobs[0].To = "bad@example.com" // filtered, keeps caller indexes intact
	jobs[7].Subject = ""

	_, err := p.EnqueueEmailJobs(context.Background(), jobs)
	var verr *validate.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, 7, verr.Index)
	assert.Equal(t, "subject", verr.Field)
	assert.Empty(t, q.calls, "nothing is sent when validation fails")
}

func TestEnqueueEmailJobs_PartitionsIntoGroupsOfTen(t *testing.T) {
	for _, n := range []int{1, 9, 10, 11, 25, 100, 1001} {
		t.Run(fmt.Sprint(n), func(t *testing.T) {
			q := &fakeQueue{}
			p := New(q, zap.NewNop(), 0)

			res, err := p.EnqueueEmailJobs(context.Background(), newJobs(n))
			require.NoError(t, err)

			assert.Len(t, q.calls, (n+queue.MaxBatchSize-1)/queue.MaxBatchSize)
			for _, call := range q.calls {
				assert.LessOrEqual(t, len(call), queue.MaxBatchSize)
			}

			seen := make(map[string]int)
			for _, job := range q.bodies(t) {
				seen[job.To]++
			}
			assert.Len(t, seen, n)
			for to, count := range seen {
				assert.Equal(t, 1, count, to)
			}
			assert.Len(t, res.MessageIDs, n)
		})
	}
}

func TestEnqueueEmailJobs_BoundedConcurrency(t *testing.T) {
	q := &fakeQueue{delay: 5 * time.Millisecond}
	p := New(q, zap.NewNop(), 3)

	_, err := p.EnqueueEmailJobs(context.Background(), newJobs(200))
	require.NoError(t, err)
	assert.LessOrEqual(t, q.peak.Load(), int32(3))
	assert.Len(t, q.calls, 20)
}

func TestEnqueueEmailJobs_PartialRejection(t *testing.T) {
	q := &fakeQueue{
		reject: func(e queue.Entry) (string, bool) {
			var job models.EmailJob
			_ = json.Unmarshal([]byte(e.Body), &job)
			if job.To == "user3@school.com" || job.To == "user14@school.com" {
				return "InvalidParameterValue", true
			}
			return "", false
		},
	}
	p := New(q, zap.NewNop(), 0)

	res, err := p.EnqueueEmailJobs(context.Background(), newJobs(20))
	require.NoError(t, err)
	assert.Len(t, res.MessageIDs, 18)
	require.Len(t, res.Failed, 2)

	var failedTo []string
	for _, f := range res.Failed {
		assert.Equal(t, "InvalidParameterValue", f.Code)
		failedTo = append(failedTo, f.Job.To)
	}
	assert.ElementsMatch(t, []string{"user3@school.com", "user14@school.com"}, failedTo)
}

func TestEnqueueEmailJobs_GroupErrorFailsOnlyThatGroup(t *testing.T) {
	q := &fakeQueue{
		fail: func(call int) error {
			if call == 1 {
				return &smithy.GenericAPIError{Code: "AWS.SimpleQueueService.BatchRequestTooLong", Message: "batch too long"}
			}
			return nil
		},
	}
	p := New(q, zap.NewNop(), 1)

	res, err := p.EnqueueEmailJobs(context.Background(), newJobs(25))
	require.NoError(t, err)
	assert.Len(t, res.MessageIDs, 15)
	require.Len(t, res.Failed, 10)
	for _, f := range res.Failed {
		assert.Equal(t, "AWS.SimpleQueueService.BatchRequestTooLong", f.Code)
	}
}

func TestEnqueueEmailJobs_GroupErrorWithoutCode(t *testing.T) {
	q := &fakeQueue{fail: func(int) error { return errors.New("connection reset") }}
	res, err := New(q, zap.NewNop(), 0).EnqueueEmailJobs(context.Background(), newJobs(3))
	require.NoError(t, err)
	require.Len(t, res.Failed, 3)
	assert.Equal(t, "SendFailed", res.Failed[0].Code)
	assert.Equal(t, "connection reset", res.Failed[0].Message)
}

func TestEnqueueEmailJobs_IdempotencyKeyAttribute(t *testing.T) {
	q := &fakeQueue{}
	jobs := newJobs(2)
	jobs[0].IdempotencyKey = "report-card-42"

	_, err := New(q, zap.NewNop(), 0).EnqueueEmailJobs(context.Background(), jobs)
	require.NoError(t, err)
	require.Len(t, q.calls, 1)

	entries := q.calls[0]
	assert.Equal(t, "report-card-42", entries[0].Attributes[queue.IdempotencyKeyAttribute])
	assert.Nil(t, entries[1].Attributes)
	assert.NotEqual(t, entries[0].ID, entries[1].ID)
	assert.NotContains(t, entries[0].ID, "-")
}

// missingQueue drops one entry from its response entirely.
type missingQueue struct{}

func (missingQueue) SendBatch(_ context.Context, entries []queue.Entry) (queue.BatchOutcome, error) {
	var out queue.BatchOutcome
	for i, e := range entries[1:] {
		out.Accepted = append(out.Accepted, queue.Accepted{EntryID: e.ID, MessageID: fmt.Sprint(i)})
	}
	return out, nil
}

func TestEnqueueEmailJobs_UnreportedEntryCountsAsFailed(t *testing.T) {
	res, err := New(missingQueue{}, zap.NewNop(), 0).EnqueueEmailJobs(context.Background(), newJobs(4))
	require.NoError(t, err)
	assert.Len(t, res.MessageIDs, 3)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "Unknown", res.Failed[0].Code)
}
