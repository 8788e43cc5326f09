package session

import (
	"context"
	"time"

	"phiguard/pkg/domain"
)

// Store persists sessions. Implementations must make Execute an atomic
// read-modify-write for a single session: fn sees the latest stored value and its
// changes are written only if nothing else modified the session in between.
// Stores return sentinel.ErrNotFound for unknown ids.
//
//go:generate mockgen -source=store.go -destination=mocks/store_mock.go -package=mocks
type Store interface {
	Create(ctx context.Context, s *Session) error
	FindByID(ctx context.Context, id domain.SessionID) (*Session, error)
	// Execute applies fn atomically. When fn returns an error nothing is written and
	// the error is returned unchanged.
	Execute(ctx context.Context, id domain.SessionID, fn func(*Session) error) (*Session, error)
	// Invalidate ends an active session with status. Already ended sessions keep
	// their original terminal status.
	Invalidate(ctx context.Context, id domain.SessionID, status Status, at time.Time) error
}
