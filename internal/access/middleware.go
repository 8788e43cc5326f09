package access

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"phiguard/pkg/domain"
	dErrors "phiguard/pkg/domain-errors"
	"phiguard/pkg/platform/httputil"
	"phiguard/pkg/requestcontext"
)

// Middleware enforces route requirements over HTTP.
type Middleware struct {
	evaluator *Evaluator
	logger    *slog.Logger
}

// NewMiddleware creates access middleware around evaluator.
func NewMiddleware(evaluator *Evaluator, logger *slog.Logger) *Middleware {
	return &Middleware{evaluator: evaluator, logger: logger}
}

// Require enforces a role/permission requirement. A missing principal is 401;
// a denial is logged and answered with 403.
func (m *Middleware) Require(req Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := m.principal(w, r)
			if !ok {
				return
			}
			decision := m.evaluator.Authorize(principal, req)
			if !decision.Allowed {
				m.deny(w, r, principal, "permission", decision, "missing", decision.Missing)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireOwnership enforces ownership of the resource named by the chi URL parameter
// param. It must be attached to the route itself (chi With/Route) so the route is
// resolved when it runs. A route that declares param but yields an empty value is
// treated as an extraction failure and denied; only routes that do not declare the
// parameter at all fall through to the collection-endpoint allow.
func (m *Middleware) RequireOwnership(param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := m.principal(w, r)
			if !ok {
				return
			}

			resourceID, declared, resolved := ResourceID(r, param)
			if !resolved || (declared && resourceID == "") {
				m.deny(w, r, principal, "ownership", deny(ReasonExtractionFailure), "param", param)
				return
			}

			decision := m.evaluator.AuthorizeOwnership(principal, resourceID)
			if !decision.Allowed {
				m.deny(w, r, principal, "ownership", decision, "resource_id", resourceID)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ResourceID extracts the chi URL parameter and reports whether the matched route
// pattern declares it. resolved is false when no chi route context is present.
func ResourceID(r *http.Request, param string) (id string, declared bool, resolved bool) {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return "", false, false
	}
	pattern := rctx.RoutePattern()
	declared = strings.Contains(pattern, "{"+param+"}") || strings.Contains(pattern, "{"+param+":")
	return strings.TrimSpace(chi.URLParam(r, param)), declared, true
}

func (m *Middleware) principal(w http.ResponseWriter, r *http.Request) (domain.Principal, bool) {
	principal, ok := requestcontext.Principal(r.Context())
	if !ok {
		m.logger.WarnContext(r.Context(), "access check without authenticated principal",
			"endpoint", r.Method+" "+r.URL.Path,
			"client_ip", requestcontext.ClientIP(r.Context()),
			"request_id", requestcontext.RequestID(r.Context()),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return domain.Principal{}, false
	}
	return principal, true
}

func (m *Middleware) deny(w http.ResponseWriter, r *http.Request, p domain.Principal, check string, d Decision, extra ...any) {
	ctx := r.Context()
	recordDenial(check, d.Reason)

	args := []any{
		"reason", string(d.Reason),
		"check", check,
		"endpoint", r.Method + " " + r.URL.Path,
		"principal_id", p.ID,
		"role", p.Role.String(),
		"client_ip", requestcontext.ClientIP(ctx),
		"request_id", requestcontext.RequestID(ctx),
	}
	m.logger.WarnContext(ctx, "access denied", append(args, extra...)...)

	httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "access denied"))
}
