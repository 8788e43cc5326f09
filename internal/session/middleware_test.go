package session_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phiguard/internal/session"
	"phiguard/internal/session/store/memory"
	"phiguard/pkg/domain"
	"phiguard/pkg/requestcontext"
)

type middlewareFixture struct {
	monitor *session.Monitor
	handler http.Handler
	reached bool
}

func newMiddlewareFixture() *middlewareFixture {
	f := &middlewareFixture{}
	f.monitor = session.NewMonitor(memory.New(), session.Config{
		IdleTimeout:    15 * time.Minute,
		ExemptPrefixes: []string{"/auth/login", "/health"},
	}, discardLogger())
	f.handler = f.monitor.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		f.reached = true
		w.WriteHeader(http.StatusOK)
	}))
	return f
}

func (f *middlewareFixture) do(path string, sessionID domain.SessionID, now time.Time) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	ctx := requestcontext.WithTime(req.Context(), now)
	if !sessionID.IsNil() {
		ctx = requestcontext.WithPrincipal(ctx, domain.Principal{ID: "p-1", Role: domain.RoleScheduler, SessionID: sessionID})
	}
	rr := httptest.NewRecorder()
	f.reached = false
	f.handler.ServeHTTP(rr, req.WithContext(ctx))
	return rr
}

func TestMiddleware(t *testing.T) {
	t.Run("exempt route bypasses the monitor", func(t *testing.T) {
		f := newMiddlewareFixture()
		rr := f.do("/health", domain.SessionID{}, t0)
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.True(t, f.reached)
	})

	t.Run("missing session is unauthorized", func(t *testing.T) {
		f := newMiddlewareFixture()
		rr := f.do("/api/clients", domain.SessionID{}, t0)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Contains(t, rr.Body.String(), `"error":"unauthorized"`)
		assert.False(t, f.reached)
	})

	t.Run("expired session is rejected before the handler", func(t *testing.T) {
		f := newMiddlewareFixture()
		sess, err := f.monitor.Start(context.Background(), "p-1", t0)
		require.NoError(t, err)

		rr := f.do("/api/clients", sess.ID, t0.Add(16*time.Minute))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Contains(t, rr.Body.String(), `"error":"session_expired"`)
		assert.False(t, f.reached)
	})

	t.Run("warning window sets headers", func(t *testing.T) {
		f := newMiddlewareFixture()
		sess, err := f.monitor.Start(context.Background(), "p-1", t0)
		require.NoError(t, err)

		rr := f.do("/api/clients", sess.ID, t0.Add(14*time.Minute))
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "true", rr.Header().Get(session.HeaderSessionWarning))
		assert.Equal(t, "60", rr.Header().Get(session.HeaderRemainingSeconds))
	})

	t.Run("active session has no warning headers", func(t *testing.T) {
		f := newMiddlewareFixture()
		sess, err := f.monitor.Start(context.Background(), "p-1", t0)
		require.NoError(t, err)

		rr := f.do("/api/clients", sess.ID, t0.Add(time.Minute))
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Empty(t, rr.Header().Get(session.HeaderSessionWarning))
	})
}
