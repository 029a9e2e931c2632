// Package queue carries email jobs over Amazon SQS.
package queue

// MaxBatchSize is the SQS limit on entries per SendMessageBatch and
// messages per ReceiveMessage. It is not tunable.
const MaxBatchSize = 10

// IdempotencyKeyAttribute is the message attribute mirroring the job's
// idempotency key.
const IdempotencyKeyAttribute = "idempotencyKey"

// Entry is one message of an outgoing batch. ID is unique within the batch.
type Entry struct {
	ID         string
	Body       string
	Attributes map[string]string
}

// Accepted maps a batch entry to the queue-assigned message id.
type Accepted struct {
	EntryID   string
	MessageID string
}

// Rejected is an entry the queue refused.
type Rejected struct {
	EntryID string
	Code    string
	Message string
}

// BatchOutcome is the per-entry result of one batch send.
type BatchOutcome struct {
	Accepted []Accepted
	Rejected []Rejected
}

// Message is a received queue message.
type Message struct {
	ID            string
	ReceiptHandle string
	Body          string
	Attributes    map[string]string
}

// Attribute returns the named string attribute, or "".
func (m Message) Attribute(name string) string {
	if m.Attributes == nil {
		return ""
	}
	return m.Attributes[name]
}
