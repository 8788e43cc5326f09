package testutil

import (
	"net/http"

	"phiguard/pkg/domain"
	"phiguard/pkg/requestcontext"
)

// WithPrincipal simulates the authentication middleware by storing p in the
// request context.
func WithPrincipal(req *http.Request, p domain.Principal) *http.Request {
	return req.WithContext(requestcontext.WithPrincipal(req.Context(), p))
}

// AsRole is WithPrincipal for a bare principal with only an id and a role.
func AsRole(req *http.Request, id string, role domain.Role) *http.Request {
	return WithPrincipal(req, domain.Principal{ID: id, Role: role})
}
