package session

import (
	"net/http"
	"strconv"

	dErrors "phiguard/pkg/domain-errors"
	"phiguard/pkg/platform/httputil"
	"phiguard/pkg/requestcontext"
)

const (
	HeaderSessionWarning   = "X-Session-Warning"
	HeaderRemainingSeconds = "X-Session-Remaining-Seconds"
)

// Middleware runs Check before the handler. Exempt paths pass straight through;
// expiry is answered with 401 session_expired before any handler logic runs.
func (m *Monitor) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.IsExempt(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		id := requestcontext.SessionID(ctx)
		if id.IsNil() {
			m.logger.WarnContext(ctx, "request without session",
				"path", r.URL.Path,
				"principal_id", requestcontext.PrincipalID(ctx),
				"request_id", requestcontext.RequestID(ctx),
			)
			httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "session required"))
			return
		}

		result, err := m.Check(ctx, id, requestcontext.Now(ctx))
		if err != nil {
			httputil.WriteError(w, err)
			return
		}

		if result.State == StateWarning {
			w.Header().Set(HeaderSessionWarning, "true")
			w.Header().Set(HeaderRemainingSeconds, strconv.FormatInt(int64(result.Remaining.Seconds()), 10))
		}
		next.ServeHTTP(w, r)
	})
}
