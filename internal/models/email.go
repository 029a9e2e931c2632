package models

import "time"

// IdempotencyTTL is how long a delivery record is kept to cover any
// queue re-drive window.
const IdempotencyTTL = 48 * time.Hour

// EmailJob is one message to one recipient. It is also the queue message body.
type EmailJob struct {
	To             string            `json:"to" validate:"required,mailaddr"`
	From           string            `json:"from,omitempty" validate:"omitempty,sender"`
	Subject        string            `json:"subject" validate:"required,max=998"`
	HTML           string            `json:"html" validate:"required"`
	Text           string            `json:"text,omitempty"`
	ReplyTo        string            `json:"replyTo,omitempty" validate:"omitempty,mailaddr"`
	IdempotencyKey string            `json:"idempotencyKey,omitempty" validate:"omitempty,max=512"`
	Tags           map[string]string `json:"tags,omitempty" validate:"omitempty,dive,keys,required,max=256,endkeys,required,max=256"`
	UnsubscribeURL string            `json:"unsubscribeUrl,omitempty" validate:"omitempty,url"`
}

// EmailJobBatch is the envelope accepted by the HTTP API.
type EmailJobBatch struct {
	Jobs []EmailJob `json:"jobs" validate:"required,min=1,max=500"`
}

// BroadcastEmail fans one template out to many recipients. Recipients are
// filtered, not validated, so a bad address never fails the broadcast.
type BroadcastEmail struct {
	BroadcastID string            `json:"broadcastId" validate:"required,max=200"`
	Recipients  []string          `json:"recipients" validate:"required,min=1,max=10000"`
	From        string            `json:"from,omitempty" validate:"omitempty,sender"`
	Subject     string            `json:"subject" validate:"required,max=998"`
	HTML        string            `json:"html" validate:"required"`
	Text        string            `json:"text,omitempty"`
	ReplyTo     string            `json:"replyTo,omitempty" validate:"omitempty,mailaddr"`
	Tags        map[string]string `json:"tags,omitempty" validate:"omitempty,dive,keys,required,max=256,endkeys,required,max=256"`
}

// RecipientKey is the per-recipient idempotency key of a broadcast.
func RecipientKey(broadcastID, recipient string) string {
	return broadcastID + "::" + recipient
}

// FailedJob is a job the queue transport refused.
type FailedJob struct {
	Job     EmailJob `json:"job"`
	Code    string   `json:"code"`
	Message string   `json:"message"`
}

type EnqueueResult struct {
	MessageIDs []string    `json:"messageIds"`
	Failed     []FailedJob `json:"failed"`
}

type BroadcastResult struct {
	EnqueuedCount    int      `json:"enqueuedCount"`
	FailedCount      int      `json:"failedCount"`
	FailedRecipients []string `json:"failedRecipients"`
}

// IdempotencyRecord marks a logical job as delivered.
type IdempotencyRecord struct {
	Key         string    `json:"messageId" dynamodbav:"messageId"`
	Recipient   string    `json:"to" dynamodbav:"to"`
	ProcessedAt time.Time `json:"processedAt" dynamodbav:"processedAt"`
	ExpiresAt   int64     `json:"expiresAt" dynamodbav:"expiresAt"`
}

// NewIdempotencyRecord stamps a record processed at now and expiring
// IdempotencyTTL later.
func NewIdempotencyRecord(key, recipient string, now time.Time) IdempotencyRecord {
	return IdempotencyRecord{
		Key:         key,
		Recipient:   recipient,
		ProcessedAt: now.UTC(),
		ExpiresAt:   now.Add(IdempotencyTTL).Unix(),
	}
}

type BatchItemFailure struct {
	ItemIdentifier string `json:"itemIdentifier"`
}

// BatchResponse lists the messages that were not processed. Anything
// omitted is considered done and will not be redelivered.
type BatchResponse struct {
	BatchItemFailures []BatchItemFailure `json:"batchItemFailures"`
}
