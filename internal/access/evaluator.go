// Package access decides whether a principal may perform an action.
//
// The Evaluator is a pure function over the principal, an injected role table and a
// resource id taken from the request; it performs no I/O and keeps no state between
// calls. The HTTP Middleware turns denials into logged 403 responses.
package access

import (
	"slices"

	"phiguard/pkg/domain"
)

// Requirement is the per-route declaration attached at route registration.
// An empty Requirement declares no restriction.
type Requirement struct {
	Roles       []domain.Role
	Permissions []domain.Permission
}

// IsEmpty reports whether the requirement declares nothing.
func (r Requirement) IsEmpty() bool {
	return len(r.Roles) == 0 && len(r.Permissions) == 0
}

// Reason explains a Decision. Denial reasons are logged and counted.
type Reason string

const (
	ReasonNoRequirement     Reason = "no_requirement"
	ReasonAdministrator     Reason = "administrator"
	ReasonGranted           Reason = "granted"
	ReasonInvalidPrincipal  Reason = "invalid_principal"
	ReasonRoleNotPermitted  Reason = "role_not_permitted"
	ReasonMissingPermission Reason = "missing_permission"

	ReasonNoResource        Reason = "no_resource_requested"
	ReasonOwnershipBypass   Reason = "ownership_bypass"
	ReasonAssigned          Reason = "assigned"
	ReasonOwner             Reason = "owner"
	ReasonRelated           Reason = "authorized_relation"
	ReasonNotAssigned       Reason = "resource_not_assigned"
	ReasonNotOwner          Reason = "not_resource_owner"
	ReasonNotRelated        Reason = "relation_not_authorized"
	ReasonNoOwnershipRule   Reason = "no_ownership_rule_for_role"
	ReasonExtractionFailure Reason = "resource_id_extraction_failed"
)

// Decision is the outcome of an evaluation.
type Decision struct {
	Allowed bool
	Reason  Reason
	// Missing lists required permissions absent from the effective set.
	Missing []domain.Permission
}

func allow(r Reason) Decision { return Decision{Allowed: true, Reason: r} }
func deny(r Reason) Decision  { return Decision{Allowed: false, Reason: r} }

// Evaluator evaluates requirements against a principal.
type Evaluator struct {
	table *Table
}

// NewEvaluator returns an Evaluator backed by table, or DefaultTable when nil.
func NewEvaluator(table *Table) *Evaluator {
	if table == nil {
		table = DefaultTable()
	}
	return &Evaluator{table: table}
}

// Authorize checks role membership and then the effective permission set.
// Administrators are always allowed.
func (e *Evaluator) Authorize(p domain.Principal, req Requirement) Decision {
	if req.IsEmpty() {
		return allow(ReasonNoRequirement)
	}
	if p.Validate() != nil {
		return deny(ReasonInvalidPrincipal)
	}
	if p.Role == domain.RoleAdministrator {
		return allow(ReasonAdministrator)
	}

	if len(req.Roles) > 0 && !slices.Contains(req.Roles, p.Role) {
		return deny(ReasonRoleNotPermitted)
	}

	if len(req.Permissions) > 0 {
		effective := e.effectiveSet(p)
		var missing []domain.Permission
		for _, perm := range req.Permissions {
			if _, ok := effective[perm]; !ok {
				missing = append(missing, perm)
			}
		}
		if len(missing) > 0 {
			d := deny(ReasonMissingPermission)
			d.Missing = missing
			return d
		}
	}
	return allow(ReasonGranted)
}

// AuthorizeOwnership checks that the principal may touch the specific resource.
// An empty resourceID means no specific resource was requested (collection
// endpoints) and is allowed. Roles without an ownership rule are denied.
func (e *Evaluator) AuthorizeOwnership(p domain.Principal, resourceID string) Decision {
	if resourceID == "" {
		return allow(ReasonNoResource)
	}
	if p.Validate() != nil {
		return deny(ReasonInvalidPrincipal)
	}

	switch p.Role {
	case domain.RoleAdministrator, domain.RoleOfficeManager:
		return allow(ReasonOwnershipBypass)
	case domain.RoleCaregiver:
		if p.IsAssigned(resourceID) {
			return allow(ReasonAssigned)
		}
		return deny(ReasonNotAssigned)
	case domain.RoleClient:
		if p.ID == resourceID {
			return allow(ReasonOwner)
		}
		return deny(ReasonNotOwner)
	case domain.RoleFamilyMember:
		if p.IsRelatedTo(resourceID) {
			return allow(ReasonRelated)
		}
		return deny(ReasonNotRelated)
	default:
		return deny(ReasonNoOwnershipRule)
	}
}

// EffectivePermissions returns base-for-role union custom grants, sorted and deduplicated.
func (e *Evaluator) EffectivePermissions(p domain.Principal) []domain.Permission {
	set := e.effectiveSet(p)
	out := make([]domain.Permission, 0, len(set))
	for perm := range set {
		out = append(out, perm)
	}
	slices.Sort(out)
	return out
}

// HasPermission reports whether perm is in the principal's effective set.
func (e *Evaluator) HasPermission(p domain.Principal, perm domain.Permission) bool {
	if e.table.Has(p.Role, perm) {
		return true
	}
	return slices.Contains(p.CustomPermissions, perm)
}

// effectiveSet is recomputed per call so custom grants never leak between principals.
func (e *Evaluator) effectiveSet(p domain.Principal) map[domain.Permission]struct{} {
	base := e.table.grants[p.Role]
	set := make(map[domain.Permission]struct{}, len(base)+len(p.CustomPermissions))
	for perm := range base {
		set[perm] = struct{}{}
	}
	for _, perm := range p.CustomPermissions {
		set[perm] = struct{}{}
	}
	return set
}
