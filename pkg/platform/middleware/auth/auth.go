package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"phiguard/pkg/domain"
	dErrors "phiguard/pkg/domain-errors"
	"phiguard/pkg/platform/httputil"
	request "phiguard/pkg/platform/middleware/request"
	"phiguard/pkg/requestcontext"
)

// PrincipalValidator turns a bearer token into a validated principal.
type PrincipalValidator interface {
	ValidatePrincipal(token string) (domain.Principal, error)
}

// RequireAuth authenticates the bearer token and stores the principal in the context.
// Everything downstream (session monitor, evaluator, recorder) reads the principal from
// requestcontext and never touches the raw token.
func RequireAuth(validator PrincipalValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", request.GetRequestID(ctx),
					"path", r.URL.Path,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "Missing or invalid Authorization header"))
				return
			}

			principal, err := validator.ValidatePrincipal(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", request.GetRequestID(ctx),
					"path", r.URL.Path,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "Invalid or expired token"))
				return
			}

			ctx = requestcontext.WithPrincipal(ctx, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
