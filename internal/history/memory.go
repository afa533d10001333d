package history

import (
	"context"
	"sync"
	"time"
)

// DefaultMemoryCapacity bounds [MemoryStore] when no capacity is given.
const DefaultMemoryCapacity = 1000

// MemoryStore is a bounded in-memory [Store]. When the capacity is reached
// the oldest entries are discarded. It is the default store when no
// database is configured.
type MemoryStore struct {
	mu      sync.Mutex
	entries []Entry
	cap     int
	nextID  int64
}

// Compile-time interface check.
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store holding at most capacity entries.
// A capacity of zero or less uses [DefaultMemoryCapacity].
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &MemoryStore{cap: capacity, nextID: 1}
}

// Record appends an entry, evicting the oldest when the store is full.
func (s *MemoryStore) Record(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e.ID = s.nextID
	s.nextID++
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	s.entries = append(s.entries, e)
	if len(s.entries) > s.cap {
		s.entries = s.entries[len(s.entries)-s.cap:]
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *MemoryStore) Recent(_ context.Context, limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 || limit > len(s.entries) {
		limit = len(s.entries)
	}

	out := make([]Entry, 0, limit)
	for i := len(s.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.entries[i])
	}
	return out, nil
}

// Prune deletes entries older than the retention period.
func (s *MemoryStore) Prune(_ context.Context, retention time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().UTC().Add(-retention)
	kept := s.entries[:0]
	var removed int64
	for _, e := range s.entries {
		if e.CreatedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept
	return removed, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }
