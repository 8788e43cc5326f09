package domain

import dErrors "phiguard/pkg/domain-errors"

// Role is the coarse-grained position a principal holds in a tenant.
// Invariant: the value must be one of the supported roles.
//
// Usage: construct via ParseRole at trust boundaries (token claims, admin input);
// direct casting bypasses validation.
type Role string

const (
	RoleAdministrator Role = "administrator"
	RoleOfficeManager Role = "office_manager"
	RoleScheduler     Role = "scheduler"
	// RoleCaregiver is the front-line worker who only sees assigned clients.
	RoleCaregiver Role = "caregiver"
	// RoleClient is the data subject.
	RoleClient       Role = "client"
	RoleFamilyMember Role = "family_member"
)

var validRoles = map[Role]bool{
	RoleAdministrator: true,
	RoleOfficeManager: true,
	RoleScheduler:     true,
	RoleCaregiver:     true,
	RoleClient:        true,
	RoleFamilyMember:  true,
}

// ParseRole constructs a Role from external input.
//
// Errors: returns CodeInvalidInput when the value is empty or unsupported.
func ParseRole(s string) (Role, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "role cannot be empty")
	}
	r := Role(s)
	if !r.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid role")
	}
	return r, nil
}

// IsValid checks if the role is one of the supported enum values.
func (r Role) IsValid() bool {
	return validRoles[r]
}

func (r Role) String() string {
	return string(r)
}
