package rbac

import "context"

// Repository defines persistence operations for roles and permissions.
// Multi-statement mutations (role create with initial permissions, permission
// sync, role-set replacement) are transactional: partial application is never
// observable to concurrent readers.
type Repository interface {
	ListPermissions(ctx context.Context) ([]Permission, error)
	GetPermission(ctx context.Context, id int64) (Permission, error)
	GetPermissionBySlug(ctx context.Context, slug string) (Permission, error)
	CountPermissions(ctx context.Context, ids []int64) (int, error)
	CreatePermission(ctx context.Context, perm Permission) (Permission, error)
	UpdatePermission(ctx context.Context, perm Permission) (Permission, error)
	DeletePermission(ctx context.Context, id int64) error

	ListRoles(ctx context.Context) ([]RoleGrant, error)
	GetRole(ctx context.Context, id int64) (RoleGrant, error)
	GetRoleBySlug(ctx context.Context, slug string) (Role, error)
	CountRoles(ctx context.Context, ids []int64) (int, error)
	CreateRole(ctx context.Context, role Role, permissionIDs []int64) (Role, error)
	UpdateRole(ctx context.Context, role Role, permissionIDs []int64, syncPermissions bool) (Role, error)
	DeleteRole(ctx context.Context, id int64) error
	ReplaceRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error

	GrantsForUser(ctx context.Context, userID int64) (Grants, error)
	AssignRoleToUser(ctx context.Context, userID, roleID int64) error
	RemoveRoleFromUser(ctx context.Context, userID, roleID int64) error
	ReplaceUserRoles(ctx context.Context, userID int64, roleIDs []int64) error
}
