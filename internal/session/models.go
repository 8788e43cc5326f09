package session

import (
	"time"

	"phiguard/pkg/domain"
)

// Status is the persisted lifecycle of a session. Expired and LoggedOut are terminal.
type Status string

const (
	StatusActive    Status = "active"
	StatusExpired   Status = "expired"
	StatusLoggedOut Status = "logged_out"
)

// Session is the record the monitor reads and refreshes on every request.
type Session struct {
	ID             domain.SessionID `json:"id"`
	PrincipalID    string           `json:"principal_id"`
	CreatedAt      time.Time        `json:"created_at"`
	LastActivityAt time.Time        `json:"last_activity_at"`
	Status         Status           `json:"status"`
	EndedAt        *time.Time       `json:"ended_at,omitempty"`
}

// IsTerminal reports whether the session can no longer be used.
func (s *Session) IsTerminal() bool {
	return s.Status != StatusActive
}

// End moves an active session into a terminal status. Calling it on a session that
// has already ended is a no-op so the first terminal status sticks.
func (s *Session) End(status Status, at time.Time) {
	if s.IsTerminal() {
		return
	}
	s.Status = status
	ended := at
	s.EndedAt = &ended
}

// Touch advances LastActivityAt, never moving it backwards.
func (s *Session) Touch(at time.Time) {
	if at.After(s.LastActivityAt) {
		s.LastActivityAt = at
	}
}

// State is the outcome of a single monitor check.
type State string

const (
	StateActive   State = "active"
	StateWarning  State = "warning"
	StateExpired  State = "expired"
	StateBypassed State = "bypassed"
)

// Result is what the monitor reports back to the transport layer.
type Result struct {
	State State
	// Idle is the gap between the previous activity and this request.
	Idle time.Duration
	// Remaining is the time left before expiry, set in the Warning state.
	Remaining time.Duration
}
