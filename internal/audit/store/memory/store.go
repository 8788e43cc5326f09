package memory

import (
	"context"
	"slices"
	"sync"

	"phiguard/internal/audit"
)

// Store is an in-memory append-only audit sink for development and tests.
type Store struct {
	mu      sync.RWMutex
	records []audit.Record
}

func New() *Store {
	return &Store{}
}

func (s *Store) Emit(_ context.Context, record audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

// All returns a copy of every record in insertion order.
func (s *Store) All() []audit.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.records)
}

// ListRecent returns up to limit records, newest first.
func (s *Store) ListRecent(_ context.Context, limit int) ([]audit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.records)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]audit.Record, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, s.records[i])
	}
	return out, nil
}

// ListByPrincipal returns every record for principalID in insertion order.
func (s *Store) ListByPrincipal(_ context.Context, principalID string) ([]audit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []audit.Record
	for _, r := range s.records {
		if r.PrincipalID == principalID {
			out = append(out, r)
		}
	}
	return out, nil
}
