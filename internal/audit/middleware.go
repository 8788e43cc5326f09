package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	dErrors "phiguard/pkg/domain-errors"
	"phiguard/pkg/platform/httputil"
	"phiguard/pkg/requestcontext"
)

const (
	// maxScannedBody bounds how much of a request body is read for the field scan.
	maxScannedBody = 1 << 20
	// maxCapturedResponse bounds the response copy kept for record counting.
	maxCapturedResponse = 1 << 20
)

// Middleware observes every request passing through it. The request body is read
// (up to maxScannedBody) for the sensitive-field scan and restored for the handler.
// Responses with status >= 400 are recorded as failures using the error envelope the
// handler wrote.
func (r *Recorder) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ctx := req.Context()
		body := peekBody(req)

		observed := Request{
			Method:    req.Method,
			Path:      req.URL.Path,
			Query:     req.URL.Query(),
			Body:      body,
			ClientIP:  requestcontext.ClientIP(ctx),
			UserAgent: requestcontext.UserAgent(ctx),
		}
		if observed.UserAgent == "" {
			observed.UserAgent = req.UserAgent()
		}

		_, _ = r.Observe(ctx, observed, func(ctx context.Context) (Outcome, error) {
			ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
			captured := &capBuffer{limit: maxCapturedResponse}
			ww.Tee(captured)

			next.ServeHTTP(ww, req.WithContext(ctx))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			out := Outcome{StatusCode: status, Body: captured.Bytes()}
			if status >= http.StatusBadRequest {
				return out, errorFromResponse(status, out.Body)
			}
			if err := ctx.Err(); err != nil {
				return out, err
			}
			return out, nil
		})
	})
}

// peekBody reads up to maxScannedBody bytes and rewinds the request body.
func peekBody(req *http.Request) []byte {
	if req.Body == nil || req.Body == http.NoBody {
		return nil
	}
	buf, err := io.ReadAll(io.LimitReader(req.Body, maxScannedBody))
	req.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(buf), req.Body), req.Body}
	if err != nil {
		return nil
	}
	return buf
}

// errorFromResponse rebuilds the domain error from the JSON envelope written by
// httputil.WriteError, falling back to the status alone.
func errorFromResponse(status int, body []byte) error {
	var env httputil.ErrorResponse
	if err := json.Unmarshal(body, &env); err == nil && env.Error != "" {
		msg := env.ErrorDescription
		if msg == "" {
			msg = http.StatusText(status)
		}
		return dErrors.New(dErrors.Code(env.Error), msg)
	}
	return dErrors.New(codeForStatus(status), http.StatusText(status))
}

func codeForStatus(status int) dErrors.Code {
	switch status {
	case http.StatusBadRequest:
		return dErrors.CodeBadRequest
	case http.StatusUnauthorized:
		return dErrors.CodeUnauthorized
	case http.StatusForbidden:
		return dErrors.CodeForbidden
	case http.StatusNotFound:
		return dErrors.CodeNotFound
	case http.StatusConflict:
		return dErrors.CodeConflict
	case http.StatusServiceUnavailable:
		return dErrors.CodeUnavailable
	case http.StatusGatewayTimeout:
		return dErrors.CodeTimeout
	default:
		return dErrors.CodeInternal
	}
}

// capBuffer keeps the first limit bytes written and silently drops the rest.
type capBuffer struct {
	bytes.Buffer
	limit int
}

func (b *capBuffer) Write(p []byte) (int, error) {
	if room := b.limit - b.Len(); room > 0 {
		if len(p) > room {
			b.Buffer.Write(p[:room])
		} else {
			b.Buffer.Write(p)
		}
	}
	return len(p), nil
}
