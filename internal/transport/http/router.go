// Package httptransport assembles the HTTP surface. Middleware order is fixed:
// request metadata, authentication, audit, session expiry, then per-route access
// checks, so every rejection after authentication still produces an audit record.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"phiguard/internal/access"
	"phiguard/internal/audit"
	"phiguard/internal/platform/metrics"
	"phiguard/internal/session"
	"phiguard/pkg/domain"
	dErrors "phiguard/pkg/domain-errors"
	"phiguard/pkg/platform/httputil"
	"phiguard/pkg/platform/middleware/auth"
	"phiguard/pkg/platform/middleware/metadata"
	"phiguard/pkg/platform/middleware/request"
	"phiguard/pkg/platform/middleware/requesttime"
)

// RouteRegistrar mounts a feature's routes behind the full protection chain.
type RouteRegistrar interface {
	Register(r chi.Router)
}

// TokenService issues and validates bearer tokens.
type TokenService interface {
	auth.PrincipalValidator
	GenerateAccessToken(p domain.Principal, expiresIn time.Duration) (string, error)
}

// Authenticator verifies login credentials.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (domain.Principal, error)
}

// AuditReader lists persisted audit records.
type AuditReader interface {
	ListRecent(ctx context.Context, limit int) ([]audit.Record, error)
	ListByPrincipal(ctx context.Context, principalID string) ([]audit.Record, error)
}

// Deps are the collaborators the router wires together.
type Deps struct {
	Logger    *slog.Logger
	Tokens    TokenService
	Directory Authenticator
	Sessions  *session.Monitor
	Recorder  *audit.Recorder
	Evaluator *access.Evaluator
	AuditLog  AuditReader
	Features  []RouteRegistrar
	TokenTTL  time.Duration
	// Health reports readiness of backing services; nil means always healthy.
	Health func(ctx context.Context) error
}

// NewRouter builds the application router.
func NewRouter(d Deps) http.Handler {
	guard := access.NewMiddleware(d.Evaluator, d.Logger)
	h := &Handler{
		logger:    d.Logger,
		tokens:    d.Tokens,
		directory: d.Directory,
		sessions:  d.Sessions,
		evaluator: d.Evaluator,
		auditLog:  d.AuditLog,
		tokenTTL:  d.TokenTTL,
	}

	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(metrics.Instrument)
	r.Use(chimw.Recoverer)

	r.Get("/health", h.handleHealth(d.Health))
	r.Handle("/metrics", metrics.Handler())

	// The recorder wraps authentication so rejected tokens are audited too.
	r.Group(func(r chi.Router) {
		r.Use(d.Recorder.Middleware)

		r.Post("/auth/login", h.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(d.Tokens, d.Logger))

			r.Post("/auth/logout", h.handleLogout)

			r.Group(func(r chi.Router) {
				r.Use(d.Sessions.Middleware)

				r.Get("/api/me/permissions", h.handlePermissions)
				r.With(guard.Require(access.Requirement{Permissions: []domain.Permission{access.PermAuditRead}})).
					Get("/api/audit", h.handleAuditList)
				for _, f := range d.Features {
					f.Register(r)
				}
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "route not found"))
	})
	return r
}
