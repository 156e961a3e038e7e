package rbac

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/aegis-auth/aegis/internal/shared"
)

var (
	// ErrProtectedRole is returned when a caller attempts to update or delete
	// a protected role. The guard applies before any other validation,
	// regardless of caller identity.
	ErrProtectedRole = errors.New("rbac: protected role")
	// ErrSlugTaken is returned when a derived or supplied slug already exists
	// within its kind.
	ErrSlugTaken = errors.New("rbac: slug already taken")
)

// DefaultRoleSlug is attached to newly created users that carry no explicit
// role list. Its absence is not an error.
const DefaultRoleSlug = "user"

// SuperAdminRoleSlug marks the seeded role whose holders cannot be deleted.
const SuperAdminRoleSlug = "super-admin"

// Service orchestrates role and permission operations.
type Service struct {
	repo  Repository
	audit *shared.AuditLogger
}

// NewService constructs a Service.
func NewService(repo Repository, audit *shared.AuditLogger) *Service {
	return &Service{repo: repo, audit: audit}
}

// GrantsFor loads the role/permission graph for a user. Enforcement reads go
// through here; the snapshot is never cached.
func (s *Service) GrantsFor(ctx context.Context, userID int64) (Grants, error) {
	return s.repo.GrantsForUser(ctx, userID)
}

// ListPermissions returns all permissions.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.repo.ListPermissions(ctx)
}

// GetPermission fetches a permission by id.
func (s *Service) GetPermission(ctx context.Context, id int64) (Permission, error) {
	return s.repo.GetPermission(ctx, id)
}

// CreatePermissionInput carries the fields for a new permission.
type CreatePermissionInput struct {
	Name        string
	Slug        string
	Description string
}

// CreatePermission inserts a new permission, deriving the slug from the name
// when none is supplied.
func (s *Service) CreatePermission(ctx context.Context, in CreatePermissionInput) (Permission, error) {
	slug, err := s.resolvePermissionSlug(ctx, in.Slug, in.Name, 0)
	if err != nil {
		return Permission{}, err
	}
	perm, err := s.repo.CreatePermission(ctx, Permission{
		Slug:        slug,
		Name:        strings.TrimSpace(in.Name),
		Description: strings.TrimSpace(in.Description),
	})
	if err != nil {
		return Permission{}, err
	}
	s.recordAudit(ctx, "permission.create", "permission", perm.ID, map[string]any{"slug": perm.Slug})
	return perm, nil
}

// UpdatePermissionInput carries partial updates; nil fields are left as-is.
type UpdatePermissionInput struct {
	Name        *string
	Slug        *string
	Description *string
}

// UpdatePermission applies administrative edits to a permission.
func (s *Service) UpdatePermission(ctx context.Context, id int64, in UpdatePermissionInput) (Permission, error) {
	perm, err := s.repo.GetPermission(ctx, id)
	if err != nil {
		return Permission{}, err
	}
	if in.Name != nil {
		perm.Name = strings.TrimSpace(*in.Name)
	}
	if in.Slug != nil {
		slug, err := s.resolvePermissionSlug(ctx, *in.Slug, perm.Name, perm.ID)
		if err != nil {
			return Permission{}, err
		}
		perm.Slug = slug
	}
	if in.Description != nil {
		perm.Description = strings.TrimSpace(*in.Description)
	}
	updated, err := s.repo.UpdatePermission(ctx, perm)
	if err != nil {
		return Permission{}, err
	}
	s.recordAudit(ctx, "permission.update", "permission", updated.ID, map[string]any{"slug": updated.Slug})
	return updated, nil
}

// DeletePermission removes a permission; every role holding it loses it.
func (s *Service) DeletePermission(ctx context.Context, id int64) error {
	if err := s.repo.DeletePermission(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, "permission.delete", "permission", id, nil)
	return nil
}

// ListRoles returns all roles with their permission sets.
func (s *Service) ListRoles(ctx context.Context) ([]RoleGrant, error) {
	return s.repo.ListRoles(ctx)
}

// GetRole fetches a role with its permission set.
func (s *Service) GetRole(ctx context.Context, id int64) (RoleGrant, error) {
	return s.repo.GetRole(ctx, id)
}

// CreateRoleInput carries the fields for a new role.
type CreateRoleInput struct {
	Name          string
	Slug          string
	Description   string
	PermissionIDs []int64
	// SyncPermissions marks PermissionIDs as intentional, so an explicit
	// empty list clears the set.
	SyncPermissions bool
}

// CreateRole inserts a role, deriving the slug when absent, and attaches the
// initial permission set atomically. Every referenced permission must exist.
func (s *Service) CreateRole(ctx context.Context, in CreateRoleInput) (RoleGrant, error) {
	slug, err := s.resolveRoleSlug(ctx, in.Slug, in.Name, 0)
	if err != nil {
		return RoleGrant{}, err
	}
	var permIDs []int64
	if in.SyncPermissions {
		if err := s.checkPermissionIDs(ctx, in.PermissionIDs); err != nil {
			return RoleGrant{}, err
		}
		permIDs = in.PermissionIDs
	}
	role, err := s.repo.CreateRole(ctx, Role{
		Slug:        slug,
		Name:        strings.TrimSpace(in.Name),
		Description: strings.TrimSpace(in.Description),
	}, permIDs)
	if err != nil {
		return RoleGrant{}, err
	}
	s.recordAudit(ctx, "role.create", "role", role.ID, map[string]any{"slug": role.Slug})
	return s.repo.GetRole(ctx, role.ID)
}

// UpdateRoleInput carries partial updates; nil fields are left as-is.
type UpdateRoleInput struct {
	Name            *string
	Slug            *string
	Description     *string
	PermissionIDs   []int64
	SyncPermissions bool
}

// UpdateRole applies edits to a role. The protected guard runs before any
// other validation. When SyncPermissions is set the permission set is
// replaced in the same transaction as the field update.
func (s *Service) UpdateRole(ctx context.Context, id int64, in UpdateRoleInput) (RoleGrant, error) {
	existing, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return RoleGrant{}, err
	}
	if existing.Protected {
		return RoleGrant{}, ErrProtectedRole
	}
	role := existing.Role
	if in.Name != nil {
		role.Name = strings.TrimSpace(*in.Name)
	}
	if in.Slug != nil {
		slug, err := s.resolveRoleSlug(ctx, *in.Slug, role.Name, role.ID)
		if err != nil {
			return RoleGrant{}, err
		}
		role.Slug = slug
	}
	if in.Description != nil {
		role.Description = strings.TrimSpace(*in.Description)
	}
	if in.SyncPermissions {
		if err := s.checkPermissionIDs(ctx, in.PermissionIDs); err != nil {
			return RoleGrant{}, err
		}
	}
	if _, err := s.repo.UpdateRole(ctx, role, in.PermissionIDs, in.SyncPermissions); err != nil {
		return RoleGrant{}, err
	}
	s.recordAudit(ctx, "role.update", "role", role.ID, map[string]any{"slug": role.Slug})
	return s.repo.GetRole(ctx, role.ID)
}

// DeleteRole removes a role; every user holding it loses it. Protected roles
// cannot be deleted.
func (s *Service) DeleteRole(ctx context.Context, id int64) error {
	role, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return err
	}
	if role.Protected {
		return ErrProtectedRole
	}
	if err := s.repo.DeleteRole(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, "role.delete", "role", id, map[string]any{"slug": role.Slug})
	return nil
}

// SyncRolePermissions replaces a role's permission set wholesale: missing
// permissions are added, extras removed, atomically.
func (s *Service) SyncRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) (RoleGrant, error) {
	if _, err := s.repo.GetRole(ctx, roleID); err != nil {
		return RoleGrant{}, err
	}
	if err := s.checkPermissionIDs(ctx, permissionIDs); err != nil {
		return RoleGrant{}, err
	}
	if err := s.repo.ReplaceRolePermissions(ctx, roleID, permissionIDs); err != nil {
		return RoleGrant{}, err
	}
	s.recordAudit(ctx, "role.sync_permissions", "role", roleID, map[string]any{"permission_ids": permissionIDs})
	return s.repo.GetRole(ctx, roleID)
}

// AssignRole attaches a role to a user; assigning an already held role is a
// no-op.
func (s *Service) AssignRole(ctx context.Context, userID, roleID int64) error {
	if _, err := s.repo.GetRole(ctx, roleID); err != nil {
		return err
	}
	if err := s.repo.AssignRoleToUser(ctx, userID, roleID); err != nil {
		return err
	}
	s.recordAudit(ctx, "user.assign_role", "user", userID, map[string]any{"role_id": roleID})
	return nil
}

// RemoveRole detaches a role from a user; removing a role that is not held is
// a no-op.
func (s *Service) RemoveRole(ctx context.Context, userID, roleID int64) error {
	if err := s.repo.RemoveRoleFromUser(ctx, userID, roleID); err != nil {
		return err
	}
	s.recordAudit(ctx, "user.remove_role", "user", userID, map[string]any{"role_id": roleID})
	return nil
}

// AssignDefaultRole attaches the default role to a user when that role
// exists. A missing default role is not an error.
func (s *Service) AssignDefaultRole(ctx context.Context, userID int64) error {
	role, err := s.repo.GetRoleBySlug(ctx, DefaultRoleSlug)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil
		}
		return err
	}
	return s.repo.AssignRoleToUser(ctx, userID, role.ID)
}

// ReplaceUserRoles replaces a user's role set wholesale. Every referenced
// role must exist.
func (s *Service) ReplaceUserRoles(ctx context.Context, userID int64, roleIDs []int64) error {
	if err := s.checkRoleIDs(ctx, roleIDs); err != nil {
		return err
	}
	if err := s.repo.ReplaceUserRoles(ctx, userID, roleIDs); err != nil {
		return err
	}
	s.recordAudit(ctx, "user.replace_roles", "user", userID, map[string]any{"role_ids": roleIDs})
	return nil
}

func (s *Service) resolvePermissionSlug(ctx context.Context, slug, name string, selfID int64) (string, error) {
	if slug = strings.TrimSpace(slug); slug == "" {
		slug = shared.Slugify(name)
	}
	existing, err := s.repo.GetPermissionBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return slug, nil
		}
		return "", err
	}
	if existing.ID == selfID {
		return slug, nil
	}
	return "", ErrSlugTaken
}

func (s *Service) resolveRoleSlug(ctx context.Context, slug, name string, selfID int64) (string, error) {
	if slug = strings.TrimSpace(slug); slug == "" {
		slug = shared.Slugify(name)
	}
	existing, err := s.repo.GetRoleBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return slug, nil
		}
		return "", err
	}
	if existing.ID == selfID {
		return slug, nil
	}
	return "", ErrSlugTaken
}

func (s *Service) checkPermissionIDs(ctx context.Context, ids []int64) error {
	unique := dedupeIDs(ids)
	if len(unique) == 0 {
		return nil
	}
	count, err := s.repo.CountPermissions(ctx, unique)
	if err != nil {
		return err
	}
	if count != len(unique) {
		return shared.ErrNotFound
	}
	return nil
}

func (s *Service) checkRoleIDs(ctx context.Context, ids []int64) error {
	unique := dedupeIDs(ids)
	if len(unique) == 0 {
		return nil
	}
	count, err := s.repo.CountRoles(ctx, unique)
	if err != nil {
		return err
	}
	if count != len(unique) {
		return shared.ErrNotFound
	}
	return nil
}

func dedupeIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func (s *Service) recordAudit(ctx context.Context, action, entity string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	var actorID int64
	if p := shared.PrincipalFromContext(ctx); p != nil {
		actorID = p.ID
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: strconv.FormatInt(entityID, 10),
		Meta:     meta,
	})
}
