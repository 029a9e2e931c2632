// Package idempotency is the ledger of delivered email jobs. It is the only
// record of whether a logical job has already been sent: the queue may
// redeliver a message any number of times.
package idempotency

import (
	"context"

	"PulseQueue/internal/models"
)

// Outcome of a conditional insert.
type Outcome int

const (
	// StoreError means the write could not be performed; the accompanying
	// error says why.
	StoreError Outcome = iota
	Inserted
	AlreadyExists
)

func (o Outcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case AlreadyExists:
		return "already_exists"
	default:
		return "store_error"
	}
}

// Store implementations must let exactly one of several concurrent
// InsertIfAbsent calls for the same key return Inserted. Records past
// their ExpiresAt count as absent even if not yet collected.
type Store interface {
	Exists(ctx context.Context, key string) (bool, error)
	InsertIfAbsent(ctx context.Context, rec models.IdempotencyRecord) (Outcome, error)
}

// Purger is implemented by stores that must delete expired records
// themselves.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}
