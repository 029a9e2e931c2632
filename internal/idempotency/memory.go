package idempotency

import (
	"context"
	"sync"
	"time"

	"PulseQueue/internal/models"
)

// MemoryStore keeps records in process memory. It only protects a single
// consumer process and is meant for local runs and tests.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]models.IdempotencyRecord
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]models.IdempotencyRecord),
		now:     time.Now,
	}
}

func (s *MemoryStore) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	return ok && rec.ExpiresAt > s.now().Unix(), nil
}

func (s *MemoryStore) InsertIfAbsent(_ context.Context, rec models.IdempotencyRecord) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.records[rec.Key]; ok && existing.ExpiresAt > s.now().Unix() {
		return AlreadyExists, nil
	}
	s.records[rec.Key] = rec
	return Inserted, nil
}

func (s *MemoryStore) PurgeExpired(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().Unix()
	var n int64
	for key, rec := range s.records {
		if rec.ExpiresAt <= now {
			delete(s.records, key)
			n++
		}
	}
	return n, nil
}

// Get returns a stored record regardless of expiry.
func (s *MemoryStore) Get(key string) (models.IdempotencyRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	return rec, ok
}
