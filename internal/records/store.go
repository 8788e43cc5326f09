package records

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"phiguard/pkg/platform/sentinel"
)

// Store persists client rows exactly as given; encryption happens before Save.
type Store interface {
	Save(ctx context.Context, id string, r row) error
	Find(ctx context.Context, id string) (row, error)
	List(ctx context.Context) ([]row, error)
}

// MemoryStore keeps rows in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[string]row
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]row)}
}

func (s *MemoryStore) Save(_ context.Context, id string, r row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[id] = maps.Clone(r)
	return nil
}

func (s *MemoryStore) Find(_ context.Context, id string) (row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rows[id]
	if !ok {
		return nil, fmt.Errorf("client %s: %w", id, sentinel.ErrNotFound)
	}
	return maps.Clone(r), nil
}

// List returns rows ordered by id.
func (s *MemoryStore) List(_ context.Context) ([]row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := slices.Sorted(maps.Keys(s.rows))
	out := make([]row, 0, len(ids))
	for _, id := range ids {
		out = append(out, maps.Clone(s.rows[id]))
	}
	return out, nil
}
