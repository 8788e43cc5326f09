package domain

import (
	"github.com/google/uuid"

	dErrors "phiguard/pkg/domain-errors"
)

// SessionID identifies an authenticated session. Typed so it cannot be confused
// with principal or resource identifiers.
type SessionID uuid.UUID

// NewSessionID returns a random session id.
func NewSessionID() SessionID {
	return SessionID(uuid.New())
}

// ParseSessionID parses external input into a SessionID.
//
// Errors: returns CodeInvalidInput for empty, malformed or nil UUIDs.
func ParseSessionID(s string) (SessionID, error) {
	if s == "" {
		return SessionID{}, dErrors.New(dErrors.CodeInvalidInput, "session id cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return SessionID{}, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid session id")
	}
	if u == uuid.Nil {
		return SessionID{}, dErrors.New(dErrors.CodeInvalidInput, "session id cannot be nil")
	}
	return SessionID(u), nil
}

func (id SessionID) String() string {
	return uuid.UUID(id).String()
}

// IsNil reports whether the id is the zero value.
func (id SessionID) IsNil() bool {
	return uuid.UUID(id) == uuid.Nil
}

func (id SessionID) MarshalText() ([]byte, error) {
	return uuid.UUID(id).MarshalText()
}

func (id *SessionID) UnmarshalText(b []byte) error {
	var u uuid.UUID
	if err := u.UnmarshalText(b); err != nil {
		return err
	}
	*id = SessionID(u)
	return nil
}
