package domain

import (
	"slices"

	dErrors "phiguard/pkg/domain-errors"
)

// Principal is the authenticated actor behind a request. It is populated by the
// authentication layer at the boundary and only read by the security core.
type Principal struct {
	ID                string
	Role              Role
	CustomPermissions []Permission
	// AssignedResourceIDs lists the clients a caregiver is scheduled for.
	AssignedResourceIDs []string
	// AuthorizedRelationIDs lists the clients a family member may see.
	AuthorizedRelationIDs []string
	SessionID             SessionID
}

// Validate enforces the boundary invariants before a principal enters the core.
func (p Principal) Validate() error {
	if p.ID == "" {
		return dErrors.New(dErrors.CodeUnauthorized, "principal id required")
	}
	if !p.Role.IsValid() {
		return dErrors.New(dErrors.CodeUnauthorized, "principal role invalid")
	}
	return nil
}

// IsAssigned reports whether resourceID is in the principal's assignment list.
func (p Principal) IsAssigned(resourceID string) bool {
	return slices.Contains(p.AssignedResourceIDs, resourceID)
}

// IsRelatedTo reports whether resourceID is one of the principal's authorised relations.
func (p Principal) IsRelatedTo(resourceID string) bool {
	return slices.Contains(p.AuthorizedRelationIDs, resourceID)
}
