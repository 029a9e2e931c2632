package idempotency

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"PulseQueue/internal/models"
)

// PostgresStore keeps the ledger in a Postgres table. Expired rows are
// removed by PurgeExpired.
type PostgresStore struct {
	Pool  *pgxpool.Pool
	table string
}

func NewPostgresStore(ctx context.Context, conn, table string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, conn)
	if err != nil {
		return nil, err
	}

	s := &PostgresStore{Pool: pool, table: pgx.Identifier{table}.Sanitize()}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) Close() {
	s.Pool.Close()
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	_, err := s.Pool.Exec(ctx, fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (
		   message_id   TEXT PRIMARY KEY,
		   to_email     TEXT NOT NULL,
		   processed_at TIMESTAMPTZ NOT NULL,
		   expires_at   BIGINT NOT NULL
		 )`, s.table))
	if err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

func (s *PostgresStore) Exists(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := s.Pool.QueryRow(ctx, fmt.Sprintf(
		`SELECT EXISTS (
		   SELECT 1 FROM %s
		   WHERE message_id=$1
		     AND expires_at > EXTRACT(EPOCH FROM NOW())::BIGINT
		 )`, s.table),
		key,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: exists %s: %w", key, err)
	}
	return exists, nil
}

// InsertIfAbsent replaces a row only when the existing one has expired, so
// the primary key arbitrates concurrent callers.
func (s *PostgresStore) InsertIfAbsent(ctx context.Context, rec models.IdempotencyRecord) (Outcome, error) {
	tag, err := s.Pool.Exec(ctx, fmt.Sprintf(
		`INSERT INTO %[1]s (message_id, to_email, processed_at, expires_at)
		 VALUES ($1,$2,$3,$4)
		 ON CONFLICT (message_id) DO UPDATE
		 SET to_email=EXCLUDED.to_email,
		     processed_at=EXCLUDED.processed_at,
		     expires_at=EXCLUDED.expires_at
		 WHERE %[1]s.expires_at <= EXTRACT(EPOCH FROM NOW())::BIGINT`, s.table),
		rec.Key,
		rec.Recipient,
		rec.ProcessedAt,
		rec.ExpiresAt,
	)
	if err != nil {
		return StoreError, fmt.Errorf("postgres: insert %s: %w", rec.Key, err)
	}
	if tag.RowsAffected() == 0 {
		return AlreadyExists, nil
	}
	return Inserted, nil
}

func (s *PostgresStore) PurgeExpired(ctx context.Context) (int64, error) {
	tag, err := s.Pool.Exec(ctx, fmt.Sprintf(
		`DELETE FROM %s WHERE expires_at <= EXTRACT(EPOCH FROM NOW())::BIGINT`, s.table))
	if err != nil {
		return 0, fmt.Errorf("postgres: purge: %w", err)
	}
	return tag.RowsAffected(), nil
}
