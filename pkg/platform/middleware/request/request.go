// Package request assigns a correlation id to every inbound request.
package request

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"phiguard/pkg/requestcontext"
)

// HeaderRequestID is echoed on every response so clients can quote it in support tickets.
const HeaderRequestID = "X-Request-ID"

const maxIncomingIDLen = 128

// RequestID reuses a sane incoming X-Request-ID or mints a new UUID, stores it in the
// context and echoes it on the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(HeaderRequestID)
		if requestID == "" || len(requestID) > maxIncomingIDLen {
			requestID = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, requestID)
		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	return requestcontext.RequestID(ctx)
}
