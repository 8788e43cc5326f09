// Package session enforces idle timeouts on authenticated sessions.
//
// Each protected request runs one Check. The check reads the session, decides
// between Active, Warning and Expired, and writes the outcome back inside a single
// Store.Execute call so concurrent requests cannot resurrect an expired session or
// lose a refresh.
package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"phiguard/pkg/domain"
	dErrors "phiguard/pkg/domain-errors"
	"phiguard/pkg/platform/sentinel"
	"phiguard/pkg/requestcontext"
)

const (
	DefaultIdleTimeout   = 15 * time.Minute
	DefaultWarningWindow = 2 * time.Minute
)

// Config configures the monitor.
type Config struct {
	IdleTimeout    time.Duration
	WarningWindow  time.Duration
	ExemptPrefixes []string
}

// Monitor applies the idle-timeout state machine.
type Monitor struct {
	store  Store
	cfg    Config
	logger *slog.Logger
}

// NewMonitor creates a Monitor. Zero durations fall back to the defaults; a warning
// window at least as long as the timeout is clamped to half the timeout.
func NewMonitor(store Store, cfg Config, logger *slog.Logger) *Monitor {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.WarningWindow <= 0 {
		cfg.WarningWindow = DefaultWarningWindow
	}
	if cfg.WarningWindow >= cfg.IdleTimeout {
		cfg.WarningWindow = cfg.IdleTimeout / 2
	}
	return &Monitor{store: store, cfg: cfg, logger: logger}
}

// IsExempt reports whether path is a public route that bypasses the monitor.
// A prefix matches the exact path or anything below it.
func (m *Monitor) IsExempt(path string) bool {
	for _, prefix := range m.cfg.ExemptPrefixes {
		p := strings.TrimSuffix(prefix, "/")
		if p == "" {
			continue
		}
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

// Start creates a fresh active session for principalID.
func (m *Monitor) Start(ctx context.Context, principalID string, now time.Time) (*Session, error) {
	s := &Session{
		ID:             domain.NewSessionID(),
		PrincipalID:    principalID,
		CreatedAt:      now,
		LastActivityAt: now,
		Status:         StatusActive,
	}
	if err := m.store.Create(ctx, s); err != nil {
		storeErrorsTotal.WithLabelValues("create").Inc()
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to create session")
	}
	return s, nil
}

// Logout ends the session. Logging out an already ended session succeeds.
func (m *Monitor) Logout(ctx context.Context, id domain.SessionID, now time.Time) error {
	err := m.store.Invalidate(ctx, id, StatusLoggedOut, now)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "session not found")
	default:
		storeErrorsTotal.WithLabelValues("invalidate").Inc()
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to end session")
	}
}

var errSessionEnded = errors.New("session ended")

// Check runs the state machine for one request at time now.
//
// Idle longer than the timeout marks the session expired (terminal) and returns a
// session_expired error. Idle inside the warning window returns StateWarning with the
// remaining time. Every non-expired pass refreshes LastActivityAt.
func (m *Monitor) Check(ctx context.Context, id domain.SessionID, now time.Time) (Result, error) {
	var (
		result Result
		ended  Status
	)

	sess, err := m.store.Execute(ctx, id, func(s *Session) error {
		if s.IsTerminal() {
			ended = s.Status
			return errSessionEnded
		}

		idle := max(now.Sub(s.LastActivityAt), 0)
		result.Idle = idle

		if idle > m.cfg.IdleTimeout {
			s.End(StatusExpired, now)
			result.State = StateExpired
			return nil
		}

		result.State = StateActive
		if idle > m.cfg.IdleTimeout-m.cfg.WarningWindow {
			result.State = StateWarning
			result.Remaining = m.cfg.IdleTimeout - idle
		}
		s.Touch(now)
		return nil
	})

	switch {
	case errors.Is(err, errSessionEnded):
		if ended == StatusExpired {
			return Result{State: StateExpired}, dErrors.New(dErrors.CodeSessionExpired, "session expired")
		}
		return Result{}, dErrors.New(dErrors.CodeUnauthorized, "session ended")
	case errors.Is(err, sentinel.ErrNotFound):
		return Result{}, dErrors.New(dErrors.CodeUnauthorized, "session not found")
	case err != nil:
		storeErrorsTotal.WithLabelValues("execute").Inc()
		m.logger.ErrorContext(ctx, "session store unavailable",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return Result{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "session store unavailable")
	}

	switch result.State {
	case StateExpired:
		expirationsTotal.Inc()
		principalID := requestcontext.PrincipalID(ctx)
		if sess != nil {
			principalID = sess.PrincipalID
		}
		m.logger.WarnContext(ctx, "session expired due to inactivity",
			"principal_id", principalID,
			"session_id", id.String(),
			"idle_duration", result.Idle.String(),
			"idle_seconds", int64(result.Idle.Seconds()),
			"request_id", requestcontext.RequestID(ctx),
		)
		return result, dErrors.New(dErrors.CodeSessionExpired, "session expired due to inactivity")
	case StateWarning:
		warningsTotal.Inc()
	}
	return result, nil
}
