package rbac

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aegis-auth/aegis/internal/platform/db"
	"github.com/aegis-auth/aegis/internal/shared"
)

// PGRepository provides PostgreSQL backed persistence for roles and
// permissions.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

var _ Repository = (*PGRepository)(nil)

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const permissionColumns = `id, slug, name, description, created_at, updated_at`
const roleColumns = `id, slug, name, description, protected, created_at, updated_at`

// ListPermissions returns all permissions ordered by id.
func (r *PGRepository) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+permissionColumns+` FROM permissions ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPermissions(rows)
}

// GetPermission fetches a permission by id.
func (r *PGRepository) GetPermission(ctx context.Context, id int64) (Permission, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+permissionColumns+` FROM permissions WHERE id = $1`, id)
	return scanPermission(row)
}

// GetPermissionBySlug fetches a permission by slug.
func (r *PGRepository) GetPermissionBySlug(ctx context.Context, slug string) (Permission, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+permissionColumns+` FROM permissions WHERE slug = $1`, slug)
	return scanPermission(row)
}

// CountPermissions returns how many of the given ids exist.
func (r *PGRepository) CountPermissions(ctx context.Context, ids []int64) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM permissions WHERE id = ANY($1)`, ids).Scan(&count)
	return count, err
}

// CreatePermission inserts a new permission.
func (r *PGRepository) CreatePermission(ctx context.Context, perm Permission) (Permission, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO permissions (slug, name, description) VALUES ($1, $2, $3) RETURNING `+permissionColumns,
		perm.Slug, perm.Name, perm.Description)
	created, err := scanPermission(row)
	if err != nil {
		return Permission{}, mapConstraintError(err)
	}
	return created, nil
}

// UpdatePermission updates slug, name and description of a permission.
func (r *PGRepository) UpdatePermission(ctx context.Context, perm Permission) (Permission, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE permissions SET slug = $2, name = $3, description = $4, updated_at = NOW() WHERE id = $1 RETURNING `+permissionColumns,
		perm.ID, perm.Slug, perm.Name, perm.Description)
	updated, err := scanPermission(row)
	if err != nil {
		return Permission{}, mapConstraintError(err)
	}
	return updated, nil
}

// DeletePermission removes a permission. The role_permissions rows referencing
// it are removed by the ON DELETE CASCADE constraint.
func (r *PGRepository) DeletePermission(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM permissions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ListRoles returns all roles with their permission sets.
func (r *PGRepository) ListRoles(ctx context.Context) ([]RoleGrant, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+roleColumns+` FROM roles ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	roles, err := scanRoles(rows)
	if err != nil {
		return nil, err
	}
	return r.attachPermissions(ctx, r.pool, roles)
}

// GetRole fetches a role with its permission set.
func (r *PGRepository) GetRole(ctx context.Context, id int64) (RoleGrant, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, id)
	role, err := scanRole(row)
	if err != nil {
		return RoleGrant{}, err
	}
	grants, err := r.attachPermissions(ctx, r.pool, []Role{role})
	if err != nil {
		return RoleGrant{}, err
	}
	return grants[0], nil
}

// GetRoleBySlug fetches a role by slug without its permissions.
func (r *PGRepository) GetRoleBySlug(ctx context.Context, slug string) (Role, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE slug = $1`, slug)
	return scanRole(row)
}

// CountRoles returns how many of the given ids exist.
func (r *PGRepository) CountRoles(ctx context.Context, ids []int64) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM roles WHERE id = ANY($1)`, ids).Scan(&count)
	return count, err
}

// CreateRole inserts a role and attaches its initial permission set in a
// single transaction.
func (r *PGRepository) CreateRole(ctx context.Context, role Role, permissionIDs []int64) (Role, error) {
	var created Role
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx,
			`INSERT INTO roles (slug, name, description, protected) VALUES ($1, $2, $3, $4) RETURNING `+roleColumns,
			role.Slug, role.Name, role.Description, role.Protected)
		var err error
		created, err = scanRole(row)
		if err != nil {
			return mapConstraintError(err)
		}
		return insertRolePermissions(ctx, tx, created.ID, permissionIDs)
	})
	if err != nil {
		return Role{}, err
	}
	return created, nil
}

// UpdateRole updates slug, name and description of a role and, when
// requested, replaces its permission set in the same transaction.
func (r *PGRepository) UpdateRole(ctx context.Context, role Role, permissionIDs []int64, syncPermissions bool) (Role, error) {
	var updated Role
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx,
			`UPDATE roles SET slug = $2, name = $3, description = $4, updated_at = NOW() WHERE id = $1 RETURNING `+roleColumns,
			role.ID, role.Slug, role.Name, role.Description)
		var err error
		updated, err = scanRole(row)
		if err != nil {
			return mapConstraintError(err)
		}
		if !syncPermissions {
			return nil
		}
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, role.ID); err != nil {
			return err
		}
		return insertRolePermissions(ctx, tx, role.ID, permissionIDs)
	})
	if err != nil {
		return Role{}, err
	}
	return updated, nil
}

// DeleteRole removes a role. The user_roles and role_permissions rows
// referencing it are removed by the ON DELETE CASCADE constraints.
func (r *PGRepository) DeleteRole(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ReplaceRolePermissions replaces a role's permission set wholesale inside a
// single transaction.
func (r *PGRepository) ReplaceRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
			return err
		}
		return insertRolePermissions(ctx, tx, roleID, permissionIDs)
	})
}

// GrantsForUser loads the role/permission graph for a user.
func (r *PGRepository) GrantsForUser(ctx context.Context, userID int64) (Grants, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT r.id, r.slug, r.name, r.description, r.protected, r.created_at, r.updated_at
		 FROM roles r
		 JOIN user_roles ur ON ur.role_id = r.id
		 WHERE ur.user_id = $1
		 ORDER BY r.id`, userID)
	if err != nil {
		return Grants{}, err
	}
	defer rows.Close()
	roles, err := scanRoles(rows)
	if err != nil {
		return Grants{}, err
	}
	grants, err := r.attachPermissions(ctx, r.pool, roles)
	if err != nil {
		return Grants{}, err
	}
	return Grants{Roles: grants}, nil
}

// AssignRoleToUser attaches a role to a user. Attaching an already held role
// is a no-op.
func (r *PGRepository) AssignRoleToUser(ctx context.Context, userID, roleID int64) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		userID, roleID)
	return mapForeignKeyError(err)
}

// RemoveRoleFromUser detaches a role from a user. Removing a role that is not
// held is a no-op.
func (r *PGRepository) RemoveRoleFromUser(ctx context.Context, userID, roleID int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`, userID, roleID)
	return err
}

// ReplaceUserRoles replaces a user's role set wholesale inside a single
// transaction.
func (r *PGRepository) ReplaceUserRoles(ctx context.Context, userID int64, roleIDs []int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1`, userID); err != nil {
			return err
		}
		for _, roleID := range roleIDs {
			if _, err := tx.Exec(ctx,
				`INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
				userID, roleID); err != nil {
				return mapForeignKeyError(err)
			}
		}
		return nil
	})
}

func (r *PGRepository) attachPermissions(ctx context.Context, q querier, roles []Role) ([]RoleGrant, error) {
	grants := make([]RoleGrant, len(roles))
	if len(roles) == 0 {
		return grants, nil
	}
	ids := make([]int64, len(roles))
	for i, role := range roles {
		grants[i] = RoleGrant{Role: role}
		ids[i] = role.ID
	}
	rows, err := q.Query(ctx,
		`SELECT rp.role_id, p.id, p.slug, p.name, p.description, p.created_at, p.updated_at
		 FROM role_permissions rp
		 JOIN permissions p ON p.id = rp.permission_id
		 WHERE rp.role_id = ANY($1)
		 ORDER BY p.id`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byRole := make(map[int64][]Permission, len(roles))
	for rows.Next() {
		var roleID int64
		var perm Permission
		if err := rows.Scan(&roleID, &perm.ID, &perm.Slug, &perm.Name, &perm.Description, &perm.CreatedAt, &perm.UpdatedAt); err != nil {
			return nil, err
		}
		byRole[roleID] = append(byRole[roleID], perm)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range grants {
		grants[i].Permissions = byRole[grants[i].ID]
	}
	return grants, nil
}

func insertRolePermissions(ctx context.Context, tx pgx.Tx, roleID int64, permissionIDs []int64) error {
	for _, permID := range permissionIDs {
		if _, err := tx.Exec(ctx,
			`INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			roleID, permID); err != nil {
			return mapForeignKeyError(err)
		}
	}
	return nil
}

func scanPermission(row pgx.Row) (Permission, error) {
	var perm Permission
	err := row.Scan(&perm.ID, &perm.Slug, &perm.Name, &perm.Description, &perm.CreatedAt, &perm.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Permission{}, shared.ErrNotFound
		}
		return Permission{}, err
	}
	return perm, nil
}

func scanPermissions(rows pgx.Rows) ([]Permission, error) {
	var perms []Permission
	for rows.Next() {
		var perm Permission
		if err := rows.Scan(&perm.ID, &perm.Slug, &perm.Name, &perm.Description, &perm.CreatedAt, &perm.UpdatedAt); err != nil {
			return nil, err
		}
		perms = append(perms, perm)
	}
	return perms, rows.Err()
}

func scanRole(row pgx.Row) (Role, error) {
	var role Role
	err := row.Scan(&role.ID, &role.Slug, &role.Name, &role.Description, &role.Protected, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, shared.ErrNotFound
		}
		return Role{}, err
	}
	return role, nil
}

func scanRoles(rows pgx.Rows) ([]Role, error) {
	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Slug, &role.Name, &role.Description, &role.Protected, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// mapConstraintError converts unique violations into the shared conflict
// sentinel and missing UPDATE targets into not-found.
func mapConstraintError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, shared.ErrNotFound) {
		return shared.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return shared.ErrConflict
	}
	return err
}

// mapForeignKeyError converts foreign key violations (a referenced role or
// permission no longer exists) into not-found.
func mapForeignKeyError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return shared.ErrNotFound
	}
	return err
}

