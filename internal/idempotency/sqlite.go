package idempotency

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"PulseQueue/internal/models"
)

// SQLiteStore keeps the ledger in a local SQLite file for single-host runs.
type SQLiteStore struct {
	conn  *sql.DB
	table string
	now   func() time.Time
}

func NewSQLiteStore(path, table string) (*SQLiteStore, error) {
	conn, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer keeps the conditional insert serialised.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLiteStore{
		conn:  conn,
		table: `"` + strings.ReplaceAll(table, `"`, `""`) + `"`,
		now:   time.Now,
	}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %[1]s (
		message_id TEXT PRIMARY KEY,
		to_email TEXT NOT NULL,
		processed_at DATETIME NOT NULL,
		expires_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_idempotency_expires_at ON %[1]s(expires_at);
	`, s.table)
	_, err := s.conn.Exec(schema)
	return err
}

func (s *SQLiteStore) Exists(ctx context.Context, key string) (bool, error) {
	var n int
	err := s.conn.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(1) FROM %s WHERE message_id = ? AND expires_at > ?`, s.table),
		key, s.now().Unix(),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("sqlite: exists %s: %w", key, err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) InsertIfAbsent(ctx context.Context, rec models.IdempotencyRecord) (Outcome, error) {
	res, err := s.conn.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %[1]s (message_id, to_email, processed_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(message_id) DO UPDATE SET
			to_email = excluded.to_email,
			processed_at = excluded.processed_at,
			expires_at = excluded.expires_at
		WHERE %[1]s.expires_at <= ?`, s.table),
		rec.Key, rec.Recipient, rec.ProcessedAt, rec.ExpiresAt, s.now().Unix(),
	)
	if err != nil {
		return StoreError, fmt.Errorf("sqlite: insert %s: %w", rec.Key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return StoreError, fmt.Errorf("sqlite: insert %s: %w", rec.Key, err)
	}
	if n == 0 {
		return AlreadyExists, nil
	}
	return Inserted, nil
}

func (s *SQLiteStore) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.conn.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE expires_at <= ?`, s.table), s.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("sqlite: purge: %w", err)
	}
	return res.RowsAffected()
}
