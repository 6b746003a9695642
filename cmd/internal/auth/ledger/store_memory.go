package ledger

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-memory Store for tests and DB-less runs.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]Entry
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

func (s *MemoryStore) Add(_ context.Context, e Entry) error {
	if e.JTI == "" {
		return fmt.Errorf("ledger: empty jti")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// First write wins, matching ON CONFLICT DO NOTHING.
	if _, ok := s.entries[e.JTI]; !ok {
		s.entries[e.JTI] = e
	}
	return nil
}

func (s *MemoryStore) Contains(_ context.Context, jti string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.entries[jti]
	return ok, nil
}
