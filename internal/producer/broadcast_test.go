package producer

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"PulseQueue/internal/models"
	"PulseQueue/internal/queue"
	"PulseQueue/internal/validate"
)

func TestBroadcastEmail_FansOutOneJobPerRecipient(t *testing.T) {
	q := &fakeQueue{}
	p := New(q, zap.NewNop(), 0)

	recipients := make([]string, 23)
	for i := range recipients {
		recipients[i] = fmt.Sprintf("r%d@school.com", i)
	}

	res, err := p.BroadcastEmail(context.Background(), models.BroadcastEmail{
		BroadcastID: "fee-reminder-2025-q2",
		Recipients:  recipients,
		Subject:     "Your fee is due",
		HTML:        "<p>Please pay by Jan 31.</p>",
		Text:        "Please pay by Jan 31.",
		Tags:        map[string]string{"type": "fee-reminder"},
	})
	require.NoError(t, err)
	assert.Equal(t, 23, res.EnqueuedCount)
	assert.Zero(t, res.FailedCount)
	assert.Empty(t, res.FailedRecipients)

	jobs := q.bodies(t)
	require.Len(t, jobs, 23)
	for _, job := range jobs {
		assert.Equal(t, "fee-reminder-2025-q2::"+job.To, job.IdempotencyKey)
		assert.Equal(t, "Your fee is due", job.Subject)
		assert.Equal(t, "Please pay by Jan 31.", job.Text)
		assert.Equal(t, "fee-reminder", job.Tags["type"])
		assert.Empty(t, job.UnsubscribeURL)
	}

	for _, call := range q.calls {
		for _, e := range call {
			var job models.EmailJob
			require.NoError(t, json.Unmarshal([]byte(e.Body), &job))
			assert.Equal(t, job.IdempotencyKey, e.Attributes[queue.IdempotencyKeyAttribute])
		}
	}
}

func TestBroadcastEmail_FiltersBadRecipients(t *testing.T) {
	q := &fakeQueue{}
	p := New(q, zap.NewNop(), 0)

	res, err := p.BroadcastEmail(context.Background(), models.BroadcastEmail{
		BroadcastID: "x",
		Recipients:  []string{"a@s.com", "bad@example.com", "nope", "b@s.com"},
		Subject:     "S",
		HTML:        "<p>B</p>",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.EnqueuedCount)

	var to []string
	for _, job := range q.bodies(t) {
		to = append(to, job.To)
	}
	assert.ElementsMatch(t, []string{"a@s.com", "b@s.com"}, to)
}

func TestBroadcastEmail_NoDeliverableRecipients(t *testing.T) {
	q := &fakeQueue{}
	res, err := New(q, zap.NewNop(), 0).BroadcastEmail(context.Background(), models.BroadcastEmail{
		BroadcastID: "x",
		Recipients:  []string{"bad@example.com", "also@test.com"},
		Subject:     "S",
		HTML:        "<p>B</p>",
	})
	require.NoError(t, err)
	assert.Equal(t, models.BroadcastResult{FailedRecipients: []string{}}, res)
	assert.Empty(t, q.calls)
}

func TestBroadcastEmail_InvalidEnvelope(t *testing.T) {
	q := &fakeQueue{}
	_, err := New(q, zap.NewNop(), 0).BroadcastEmail(context.Background(), models.BroadcastEmail{
		Recipients: []string{"a@s.com"},
		Subject:    "S",
		HTML:       "<p>B</p>",
	})
	var verr *validate.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "broadcastId", verr.Field)
	assert.Empty(t, q.calls)
}

func TestBroadcastEmail_ReportsFailedRecipients(t *testing.T) {
	q := &fakeQueue{
		reject: func(e queue.Entry) (string, bool) {
			return "InvalidMessageContents", e.Attributes[queue.IdempotencyKeyAttribute] == "x::b@s.com"
		},
	}
	res, err := New(q, zap.NewNop(), 0).BroadcastEmail(context.Background(), models.BroadcastEmail{
		BroadcastID: "x",
		Recipients:  []string{"a@s.com", "b@s.com"},
		Subject:     "S",
		HTML:        "<p>B</p>",
	})
	require.NoError(t, err)
	assert.Equal(t, models.BroadcastResult{
		EnqueuedCount:    1,
		FailedCount:      1,
		FailedRecipients: []string{"b@s.com"},
	}, res)
}

func TestBroadcastEmail_RerunUsesSameKeys(t *testing.T) {
	q := &fakeQueue{}
	p := New(q, zap.NewNop(), 0)
	b := models.BroadcastEmail{
		BroadcastID: "x",
		Recipients:  []string{"a@s.com", "b@s.com"},
		Subject:     "S",
		HTML:        "<p>B</p>",
	}

	for i := 0; i < 2; i++ {
		res, err := p.BroadcastEmail(context.Background(), b)
		require.NoError(t, err)
		assert.Equal(t, 2, res.EnqueuedCount)
	}

	keys := make(map[string]int)
	for _, job := range q.bodies(t) {
		keys[job.IdempotencyKey]++
	}
	assert.Equal(t, map[string]int{"x::a@s.com": 2, "x::b@s.com": 2}, keys)
}
