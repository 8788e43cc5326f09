// Package memory is a per-process session store. Execute is serialised by a
// single mutex, which makes every read-modify-write atomic.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"phiguard/internal/session"
	"phiguard/pkg/domain"
	"phiguard/pkg/platform/sentinel"
)

// Store keeps sessions in a map. Values are copied in and out so callers never
// share memory with the store.
type Store struct {
	mu       sync.Mutex
	sessions map[domain.SessionID]session.Session
}

// New creates an empty store.
func New() *Store {
	return &Store{sessions: make(map[domain.SessionID]session.Session)}
}

func (s *Store) Create(_ context.Context, sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[sess.ID]; exists {
		return fmt.Errorf("session %s: %w", sess.ID, sentinel.ErrConflict)
	}
	s.sessions[sess.ID] = clone(*sess)
	return nil
}

func (s *Store) FindByID(_ context.Context, id domain.SessionID) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, sentinel.ErrNotFound)
	}
	out := clone(sess)
	return &out, nil
}

func (s *Store) Execute(ctx context.Context, id domain.SessionID, fn func(*session.Session) error) (*session.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, sentinel.ErrNotFound)
	}

	working := clone(current)
	if err := fn(&working); err != nil {
		return nil, err
	}
	s.sessions[id] = clone(working)
	return &working, nil
}

func (s *Store) Invalidate(ctx context.Context, id domain.SessionID, status session.Status, at time.Time) error {
	_, err := s.Execute(ctx, id, func(sess *session.Session) error {
		sess.End(status, at)
		return nil
	})
	return err
}

func clone(sess session.Session) session.Session {
	if sess.EndedAt != nil {
		t := *sess.EndedAt
		sess.EndedAt = &t
	}
	return sess
}
