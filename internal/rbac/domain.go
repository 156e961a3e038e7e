package rbac

import "time"

// Permission represents an atomic capability.
type Permission struct {
	ID          int64
	Slug        string
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Role represents a named grouping of permissions. Protected roles are seeded
// reference data that no caller may update or delete.
type Role struct {
	ID          int64
	Slug        string
	Name        string
	Description string
	Protected   bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// RoleGrant couples a role with its permission set.
type RoleGrant struct {
	Role
	Permissions []Permission
}

// Grants is the role/permission graph loaded for a single principal. All
// authorization predicates evaluate against this snapshot.
type Grants struct {
	Roles []RoleGrant
}
