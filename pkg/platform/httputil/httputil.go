// Package httputil centralises JSON response writing so every middleware and handler
// produces the same error envelope.
package httputil

import (
	"encoding/json"
	"net/http"

	dErrors "phiguard/pkg/domain-errors"
)

// ErrorResponse is the JSON error envelope returned to clients.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// WriteError translates a domain error into its HTTP status and JSON envelope.
// Server-side failures omit the description so internals never reach the client.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	status := dErrors.ToHTTPStatus(code)
	resp := ErrorResponse{Error: string(code)}
	if status < http.StatusInternalServerError {
		resp.ErrorDescription = dErrors.MessageOf(err)
	}
	WriteJSON(w, status, resp)
}

// WriteJSON writes v as JSON with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
