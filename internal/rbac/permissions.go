package rbac

// Core platform permission slugs. Seeded at install time; routes declare
// their requirements against these.
const (
	PermViewUsers   = "view-users"
	PermCreateUsers = "create-users"
	PermEditUsers   = "edit-users"
	PermDeleteUsers = "delete-users"
	PermAssignRoles = "assign-roles"

	PermViewRoles         = "view-roles"
	PermCreateRoles       = "create-roles"
	PermEditRoles         = "edit-roles"
	PermDeleteRoles       = "delete-roles"
	PermAssignPermissions = "assign-permissions"

	PermViewPermissions   = "view-permissions"
	PermCreatePermissions = "create-permissions"
	PermEditPermissions   = "edit-permissions"
	PermDeletePermissions = "delete-permissions"
)

// CoreSlugs lists every seeded platform permission.
func CoreSlugs() []string {
	return []string{
		PermViewUsers,
		PermCreateUsers,
		PermEditUsers,
		PermDeleteUsers,
		PermAssignRoles,
		PermViewRoles,
		PermCreateRoles,
		PermEditRoles,
		PermDeleteRoles,
		PermAssignPermissions,
		PermViewPermissions,
		PermCreatePermissions,
		PermEditPermissions,
		PermDeletePermissions,
	}
}
