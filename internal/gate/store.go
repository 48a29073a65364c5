package gate

import (
	"context"
	"sync"
	"time"
)

// ValidationRecord is one cached dry-run outcome.
//
// Lifecycle: created (upserted) when the schema phase runs; deleted on
// successful consumption by execute, on TTL expiry, on payload mismatch,
// or on a failed-validation execute attempt. At most one record exists
// per key at any instant.
type ValidationRecord struct {
	Timestamp   time.Time `json:"timestamp"`
	PayloadHash string    `json:"payload_hash"`
	Validated   bool      `json:"validated"`
	Errors      []string  `json:"errors,omitempty"`
}

// ValidationStore holds ValidationRecords keyed by ValidationKey.
//
// The default MemoryStore is process-local: in a multi-instance
// deployment a dry run on instance A is invisible to an execute on
// instance B. Deployments that fan requests across instances must back
// this interface with a shared store (see SQLiteStore).
type ValidationStore interface {
	Get(ctx context.Context, key string) (*ValidationRecord, bool, error)
	Put(ctx context.Context, key string, rec ValidationRecord) error
	Delete(ctx context.Context, key string) error
}

// MemoryStore is the in-process ValidationStore.
// Thread-safety: all methods lock.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]ValidationRecord
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]ValidationRecord)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (*ValidationRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok {
		return nil, false, nil
	}
	out := rec
	out.Errors = append([]string(nil), rec.Errors...)
	return &out, true, nil
}

func (s *MemoryStore) Put(_ context.Context, key string, rec ValidationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.Errors = append([]string(nil), rec.Errors...)
	s.records[key] = rec
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	return nil
}

// Len returns the number of live records. Used by tests to verify
// consumption.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
