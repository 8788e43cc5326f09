package access

import (
	"slices"

	"phiguard/pkg/domain"
)

// Table is the immutable role to permission mapping. Build it once at startup and
// inject it; nothing mutates it after construction.
type Table struct {
	grants map[domain.Role]map[domain.Permission]struct{}
}

// DefaultTable returns the production role table.
func DefaultTable() *Table {
	return NewTable(defaultGrants())
}

// NewTable copies grants into a Table. The administrator role always maps to the full
// universe: Universe plus anything granted to another role.
func NewTable(grants map[domain.Role][]domain.Permission) *Table {
	t := &Table{grants: make(map[domain.Role]map[domain.Permission]struct{}, len(grants)+1)}

	all := make(map[domain.Permission]struct{}, len(Universe))
	for _, p := range Universe {
		all[p] = struct{}{}
	}
	for role, perms := range grants {
		set := make(map[domain.Permission]struct{}, len(perms))
		for _, p := range perms {
			set[p] = struct{}{}
			all[p] = struct{}{}
		}
		t.grants[role] = set
	}
	t.grants[domain.RoleAdministrator] = all
	return t
}

// Has reports whether the role's base set contains perm.
func (t *Table) Has(role domain.Role, perm domain.Permission) bool {
	_, ok := t.grants[role][perm]
	return ok
}

// Permissions returns the base set for role, sorted.
func (t *Table) Permissions(role domain.Role) []domain.Permission {
	set := t.grants[role]
	out := make([]domain.Permission, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}
