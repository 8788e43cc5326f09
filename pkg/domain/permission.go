package domain

import (
	"strings"

	dErrors "phiguard/pkg/domain-errors"
)

// Permission is a namespaced grant of the form resource:action[:qualifier],
// e.g. "clients:read", "clients:read:assigned", "phi:view:ssn".
type Permission string

// ParsePermission validates the namespaced shape of an externally supplied grant.
// Custom grants arrive from the identity provider and are checked here before they
// can widen a principal's effective permission set.
func ParsePermission(s string) (Permission, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return "", dErrors.New(dErrors.CodeInvalidInput, "permission must be resource:action[:qualifier]")
	}
	for _, p := range parts {
		if p == "" || strings.TrimSpace(p) != p {
			return "", dErrors.New(dErrors.CodeInvalidInput, "permission segments must be non-empty")
		}
	}
	return Permission(s), nil
}

// Resource returns the namespace segment ("clients" for "clients:read").
func (p Permission) Resource() string {
	resource, _, _ := strings.Cut(string(p), ":")
	return resource
}

func (p Permission) String() string {
	return string(p)
}
