package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// API is the subset of *sqs.Client used here.
type API interface {
	SendMessageBatch(ctx context.Context, in *sqs.SendMessageBatchInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageBatchOutput, error)
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessageBatch(ctx context.Context, in *sqs.DeleteMessageBatchInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageBatchOutput, error)
}

type ReceiveOptions struct {
	MaxMessages       int32
	WaitSeconds       int32
	VisibilityTimeout int32
}

// SQS sends to and receives from a single queue.
type SQS struct {
	client   API
	queueURL string
	recv     ReceiveOptions
}

func NewSQS(client API, queueURL string, recv ReceiveOptions) *SQS {
	if recv.MaxMessages <= 0 || recv.MaxMessages > MaxBatchSize {
		recv.MaxMessages = MaxBatchSize
	}
	return &SQS{client: client, queueURL: queueURL, recv: recv}
}

// SendBatch sends up to MaxBatchSize entries in one call. A returned error
// means the whole call failed and no entry was accepted.
func (q *SQS) SendBatch(ctx context.Context, entries []Entry) (BatchOutcome, error) {
	if len(entries) > MaxBatchSize {
		return BatchOutcome{}, fmt.Errorf("sqs: batch of %d exceeds limit of %d", len(entries), MaxBatchSize)
	}

	in := &sqs.SendMessageBatchInput{
		QueueUrl: aws.String(q.queueURL),
		Entries:  make([]types.SendMessageBatchRequestEntry, 0, len(entries)),
	}
	for _, e := range entries {
		req := types.SendMessageBatchRequestEntry{
			Id:          aws.String(e.ID),
			MessageBody: aws.String(e.Body),
		}
		if len(e.Attributes) > 0 {
			req.MessageAttributes = make(map[string]types.MessageAttributeValue, len(e.Attributes))
			for name, value := range e.Attributes {
				req.MessageAttributes[name] = types.MessageAttributeValue{
					DataType:    aws.String("String"),
					StringValue: aws.String(value),
				}
			}
		}
		in.Entries = append(in.Entries, req)
	}

	out, err := q.client.SendMessageBatch(ctx, in)
	if err != nil {
		return BatchOutcome{}, fmt.Errorf("sqs: send batch: %w", err)
	}

	var outcome BatchOutcome
	for _, s := range out.Successful {
		outcome.Accepted = append(outcome.Accepted, Accepted{
			EntryID:   aws.ToString(s.Id),
			MessageID: aws.ToString(s.MessageId),
		})
	}
	for _, f := range out.Failed {
		code := aws.ToString(f.Code)
		if code == "" {
			code = "Unknown"
		}
		outcome.Rejected = append(outcome.Rejected, Rejected{
			EntryID: aws.ToString(f.Id),
			Code:    code,
			Message: aws.ToString(f.Message),
		})
	}
	return outcome, nil
}

// Receive long-polls for the next batch of messages.
func (q *SQS) Receive(ctx context.Context) ([]Message, error) {
	out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:              aws.String(q.queueURL),
		MaxNumberOfMessages:   q.recv.MaxMessages,
		WaitTimeSeconds:       q.recv.WaitSeconds,
		VisibilityTimeout:     q.recv.VisibilityTimeout,
		MessageAttributeNames: []string{IdempotencyKeyAttribute},
	})
	if err != nil {
		return nil, fmt.Errorf("sqs: receive: %w", err)
	}

	msgs := make([]Message, 0, len(out.Messages))
	for _, m := range out.Messages {
		msg := Message{
			ID:            aws.ToString(m.MessageId),
			ReceiptHandle: aws.ToString(m.ReceiptHandle),
			Body:          aws.ToString(m.Body),
		}
		for name, attr := range m.MessageAttributes {
			if attr.StringValue == nil {
				continue
			}
			if msg.Attributes == nil {
				msg.Attributes = make(map[string]string, len(m.MessageAttributes))
			}
			msg.Attributes[name] = *attr.StringValue
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// Delete acknowledges processed messages so they are not redelivered.
func (q *SQS) Delete(ctx context.Context, msgs []Message) error {
	if len(msgs) == 0 {
		return nil
	}
	var errs []error
	for start := 0; start < len(msgs); start += MaxBatchSize {
		end := min(start+MaxBatchSize, len(msgs))

		entries := make([]types.DeleteMessageBatchRequestEntry, 0, end-start)
		for _, m := range msgs[start:end] {
			entries = append(entries, types.DeleteMessageBatchRequestEntry{
				Id:            aws.String(m.ID),
				ReceiptHandle: aws.String(m.ReceiptHandle),
			})
		}

		out, err := q.client.DeleteMessageBatch(ctx, &sqs.DeleteMessageBatchInput{
			QueueUrl: aws.String(q.queueURL),
			Entries:  entries,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("sqs: delete batch: %w", err))
			continue
		}
		for _, f := range out.Failed {
			errs = append(errs, fmt.Errorf("sqs: delete %s: %s %s",
				aws.ToString(f.Id), aws.ToString(f.Code), aws.ToString(f.Message)))
		}
	}
	return errors.Join(errs...)
}
