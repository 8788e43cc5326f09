package session_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"phiguard/internal/session"
	"phiguard/internal/session/mocks"
	"phiguard/internal/session/store/memory"
	"phiguard/pkg/domain"
	dErrors "phiguard/pkg/domain-errors"
	"phiguard/pkg/platform/sentinel"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type MonitorSuite struct {
	suite.Suite
	store   *memory.Store
	monitor *session.Monitor
	ctx     context.Context
}

func TestMonitorSuite(t *testing.T) {
	suite.Run(t, new(MonitorSuite))
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (s *MonitorSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = memory.New()
	s.monitor = session.NewMonitor(s.store, session.Config{
		IdleTimeout:    15 * time.Minute,
		ExemptPrefixes: []string{"/auth/login", "/health"},
	}, discardLogger())
}

func (s *MonitorSuite) start() *session.Session {
	sess, err := s.monitor.Start(s.ctx, "principal-1", t0)
	s.Require().NoError(err)
	return sess
}

func (s *MonitorSuite) TestIdleBeyondTimeoutExpires() {
	sess := s.start()

	result, err := s.monitor.Check(s.ctx, sess.ID, t0.Add(16*time.Minute))
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeSessionExpired))
	s.Equal(session.StateExpired, result.State)
	s.Equal(16*time.Minute, result.Idle)

	stored, err := s.store.FindByID(s.ctx, sess.ID)
	s.Require().NoError(err)
	s.Equal(session.StatusExpired, stored.Status)
	s.Require().NotNil(stored.EndedAt)
	s.Equal(t0.Add(16*time.Minute), *stored.EndedAt)
	s.Equal(t0, stored.LastActivityAt, "expiry must not refresh activity")
}

func (s *MonitorSuite) TestIdleInsideTimeoutRefreshes() {
	sess := s.start()
	now := t0.Add(14 * time.Minute)

	result, err := s.monitor.Check(s.ctx, sess.ID, now)
	s.Require().NoError(err)
	s.Equal(session.StateWarning, result.State)
	s.Equal(time.Minute, result.Remaining)

	stored, err := s.store.FindByID(s.ctx, sess.ID)
	s.Require().NoError(err)
	s.Equal(session.StatusActive, stored.Status)
	s.Equal(now, stored.LastActivityAt)
}

func (s *MonitorSuite) TestStates() {
	tests := []struct {
		idle  time.Duration
		state session.State
	}{
		{0, session.StateActive},
		{5 * time.Minute, session.StateActive},
		{13 * time.Minute, session.StateActive},
		{13*time.Minute + time.Second, session.StateWarning},
		{15 * time.Minute, session.StateWarning},
	}
	for _, tt := range tests {
		s.Run(tt.idle.String(), func() {
			sess := s.start()
			result, err := s.monitor.Check(s.ctx, sess.ID, t0.Add(tt.idle))
			s.Require().NoError(err)
			s.Equal(tt.state, result.State)
		})
	}
}

func (s *MonitorSuite) TestExpiryIsTerminal() {
	sess := s.start()
	_, err := s.monitor.Check(s.ctx, sess.ID, t0.Add(20*time.Minute))
	s.Require().Error(err)

	// A late request stamped before the expiry must not bring the session back.
	_, err = s.monitor.Check(s.ctx, sess.ID, t0.Add(time.Minute))
	s.True(dErrors.HasCode(err, dErrors.CodeSessionExpired))

	stored, err := s.store.FindByID(s.ctx, sess.ID)
	s.Require().NoError(err)
	s.Equal(session.StatusExpired, stored.Status)
}

func (s *MonitorSuite) TestLateRequestDoesNotMoveActivityBackwards() {
	sess := s.start()
	_, err := s.monitor.Check(s.ctx, sess.ID, t0.Add(10*time.Minute))
	s.Require().NoError(err)
	_, err = s.monitor.Check(s.ctx, sess.ID, t0.Add(9*time.Minute))
	s.Require().NoError(err)

	stored, err := s.store.FindByID(s.ctx, sess.ID)
	s.Require().NoError(err)
	s.Equal(t0.Add(10*time.Minute), stored.LastActivityAt)
}

func (s *MonitorSuite) TestLogout() {
	sess := s.start()
	s.Require().NoError(s.monitor.Logout(s.ctx, sess.ID, t0.Add(time.Minute)))
	s.Require().NoError(s.monitor.Logout(s.ctx, sess.ID, t0.Add(2*time.Minute)), "logout is idempotent")

	_, err := s.monitor.Check(s.ctx, sess.ID, t0.Add(3*time.Minute))
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	s.False(dErrors.HasCode(err, dErrors.CodeSessionExpired))

	stored, err := s.store.FindByID(s.ctx, sess.ID)
	s.Require().NoError(err)
	s.Equal(session.StatusLoggedOut, stored.Status)
	s.Equal(t0.Add(time.Minute), *stored.EndedAt)

	err = s.monitor.Logout(s.ctx, domain.NewSessionID(), t0)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *MonitorSuite) TestUnknownSession() {
	_, err := s.monitor.Check(s.ctx, domain.NewSessionID(), t0)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func (s *MonitorSuite) TestIsExempt() {
	s.True(s.monitor.IsExempt("/auth/login"))
	s.True(s.monitor.IsExempt("/health"))
	s.True(s.monitor.IsExempt("/health/ready"))
	s.False(s.monitor.IsExempt("/healthz"))
	s.False(s.monitor.IsExempt("/api/clients"))
}

// Concurrent requests straddling the timeout must never leave the session active
// after any request observed it as expired.
func (s *MonitorSuite) TestConcurrentChecksNeverResurrect() {
	for range 50 {
		sess := s.start()

		var (
			wg          sync.WaitGroup
			mu          sync.Mutex
			sawExpired  bool
			activeAfter []time.Time
		)
		offsets := []time.Duration{14 * time.Minute, 16 * time.Minute, 14*time.Minute + 30*time.Second, 17 * time.Minute, 10 * time.Minute}
		for _, off := range offsets {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.monitor.Check(s.ctx, sess.ID, t0.Add(off))
				mu.Lock()
				defer mu.Unlock()
				if dErrors.HasCode(err, dErrors.CodeSessionExpired) {
					sawExpired = true
				} else if err == nil {
					activeAfter = append(activeAfter, t0.Add(off))
				}
			}()
		}
		wg.Wait()

		stored, err := s.store.FindByID(s.ctx, sess.ID)
		s.Require().NoError(err)
		if sawExpired {
			s.Equal(session.StatusExpired, stored.Status)
			_, err := s.monitor.Check(s.ctx, sess.ID, t0.Add(17*time.Minute))
			s.True(dErrors.HasCode(err, dErrors.CodeSessionExpired))
		} else {
			s.Equal(session.StatusActive, stored.Status)
			s.Len(activeAfter, len(offsets))
		}
	}
}

func TestMonitor_StoreFailures(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	monitor := session.NewMonitor(store, session.Config{}, discardLogger())
	ctx := context.Background()
	id := domain.NewSessionID()

	t.Run("unavailable store fails closed", func(t *testing.T) {
		store.EXPECT().Execute(gomock.Any(), id, gomock.Any()).Return(nil, errors.New("connection refused"))

		_, err := monitor.Check(ctx, id, t0)
		if !dErrors.HasCode(err, dErrors.CodeUnavailable) {
			t.Fatalf("expected unavailable, got %v", err)
		}
	})

	t.Run("create failure", func(t *testing.T) {
		store.EXPECT().Create(gomock.Any(), gomock.Any()).Return(errors.New("timeout"))

		_, err := monitor.Start(ctx, "p", t0)
		if !dErrors.HasCode(err, dErrors.CodeUnavailable) {
			t.Fatalf("expected unavailable, got %v", err)
		}
	})

	t.Run("conflict after retries fails closed", func(t *testing.T) {
		store.EXPECT().Execute(gomock.Any(), id, gomock.Any()).Return(nil, sentinel.ErrConflict)

		_, err := monitor.Check(ctx, id, t0)
		if !dErrors.HasCode(err, dErrors.CodeUnavailable) {
			t.Fatalf("expected unavailable, got %v", err)
		}
	})
}

func TestNewMonitor_Defaults(t *testing.T) {
	store := memory.New()
	monitor := session.NewMonitor(store, session.Config{IdleTimeout: time.Minute, WarningWindow: 5 * time.Minute}, discardLogger())
	ctx := context.Background()

	sess, err := monitor.Start(ctx, "p", t0)
	if err != nil {
		t.Fatal(err)
	}
	// Warning window is clamped to 30s for a one minute timeout.
	result, err := monitor.Check(ctx, sess.ID, t0.Add(20*time.Second))
	if err != nil || result.State != session.StateActive {
		t.Fatalf("expected active, got %v %v", result.State, err)
	}
	result, err = monitor.Check(ctx, sess.ID, t0.Add(20*time.Second+45*time.Second))
	if err != nil || result.State != session.StateWarning {
		t.Fatalf("expected warning, got %v %v", result.State, err)
	}
}
