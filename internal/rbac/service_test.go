package rbac

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aegis-auth/aegis/internal/shared"
)

// memRepo is an in-memory Repository for service tests.
type memRepo struct {
	nextPermID int64
	nextRoleID int64
	perms      map[int64]Permission
	roles      map[int64]Role
	rolePerms  map[int64][]int64 // role -> permission ids
	userRoles  map[int64][]int64 // user -> role ids
}

func newMemRepo() *memRepo {
	return &memRepo{
		perms:     make(map[int64]Permission),
		roles:     make(map[int64]Role),
		rolePerms: make(map[int64][]int64),
		userRoles: make(map[int64][]int64),
	}
}

func (m *memRepo) ListPermissions(ctx context.Context) ([]Permission, error) {
	out := make([]Permission, 0, len(m.perms))
	for _, p := range m.perms {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memRepo) GetPermission(ctx context.Context, id int64) (Permission, error) {
	p, ok := m.perms[id]
	if !ok {
		return Permission{}, shared.ErrNotFound
	}
	return p, nil
}

func (m *memRepo) GetPermissionBySlug(ctx context.Context, slug string) (Permission, error) {
	for _, p := range m.perms {
		if p.Slug == slug {
			return p, nil
		}
	}
	return Permission{}, shared.ErrNotFound
}

func (m *memRepo) CountPermissions(ctx context.Context, ids []int64) (int, error) {
	count := 0
	for _, id := range ids {
		if _, ok := m.perms[id]; ok {
			count++
		}
	}
	return count, nil
}

func (m *memRepo) CreatePermission(ctx context.Context, perm Permission) (Permission, error) {
	m.nextPermID++
	perm.ID = m.nextPermID
	m.perms[perm.ID] = perm
	return perm, nil
}

func (m *memRepo) UpdatePermission(ctx context.Context, perm Permission) (Permission, error) {
	if _, ok := m.perms[perm.ID]; !ok {
		return Permission{}, shared.ErrNotFound
	}
	m.perms[perm.ID] = perm
	return perm, nil
}

func (m *memRepo) DeletePermission(ctx context.Context, id int64) error {
	if _, ok := m.perms[id]; !ok {
		return shared.ErrNotFound
	}
	delete(m.perms, id)
	for roleID, ids := range m.rolePerms {
		m.rolePerms[roleID] = removeID(ids, id)
	}
	return nil
}

func (m *memRepo) ListRoles(ctx context.Context) ([]RoleGrant, error) {
	out := make([]RoleGrant, 0, len(m.roles))
	for id := range m.roles {
		rg, _ := m.GetRole(ctx, id)
		out = append(out, rg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memRepo) GetRole(ctx context.Context, id int64) (RoleGrant, error) {
	role, ok := m.roles[id]
	if !ok {
		return RoleGrant{}, shared.ErrNotFound
	}
	rg := RoleGrant{Role: role}
	for _, pid := range m.rolePerms[id] {
		if p, ok := m.perms[pid]; ok {
			rg.Permissions = append(rg.Permissions, p)
		}
	}
	return rg, nil
}

func (m *memRepo) GetRoleBySlug(ctx context.Context, slug string) (Role, error) {
	for _, r := range m.roles {
		if r.Slug == slug {
			return r, nil
		}
	}
	return Role{}, shared.ErrNotFound
}

func (m *memRepo) CountRoles(ctx context.Context, ids []int64) (int, error) {
	count := 0
	for _, id := range ids {
		if _, ok := m.roles[id]; ok {
			count++
		}
	}
	return count, nil
}

func (m *memRepo) CreateRole(ctx context.Context, role Role, permissionIDs []int64) (Role, error) {
	m.nextRoleID++
	role.ID = m.nextRoleID
	m.roles[role.ID] = role
	m.rolePerms[role.ID] = append([]int64(nil), permissionIDs...)
	return role, nil
}

func (m *memRepo) UpdateRole(ctx context.Context, role Role, permissionIDs []int64, syncPermissions bool) (Role, error) {
	if _, ok := m.roles[role.ID]; !ok {
		return Role{}, shared.ErrNotFound
	}
	m.roles[role.ID] = role
	if syncPermissions {
		m.rolePerms[role.ID] = append([]int64(nil), permissionIDs...)
	}
	return role, nil
}

func (m *memRepo) DeleteRole(ctx context.Context, id int64) error {
	if _, ok := m.roles[id]; !ok {
		return shared.ErrNotFound
	}
	delete(m.roles, id)
	delete(m.rolePerms, id)
	for userID, ids := range m.userRoles {
		m.userRoles[userID] = removeID(ids, id)
	}
	return nil
}

func (m *memRepo) ReplaceRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	if _, ok := m.roles[roleID]; !ok {
		return shared.ErrNotFound
	}
	m.rolePerms[roleID] = append([]int64(nil), permissionIDs...)
	return nil
}

func (m *memRepo) GrantsForUser(ctx context.Context, userID int64) (Grants, error) {
	var g Grants
	for _, roleID := range m.userRoles[userID] {
		rg, err := m.GetRole(ctx, roleID)
		if err != nil {
			continue
		}
		g.Roles = append(g.Roles, rg)
	}
	return g, nil
}

func (m *memRepo) AssignRoleToUser(ctx context.Context, userID, roleID int64) error {
	for _, id := range m.userRoles[userID] {
		if id == roleID {
			return nil
		}
	}
	m.userRoles[userID] = append(m.userRoles[userID], roleID)
	return nil
}

func (m *memRepo) RemoveRoleFromUser(ctx context.Context, userID, roleID int64) error {
	m.userRoles[userID] = removeID(m.userRoles[userID], roleID)
	return nil
}

func (m *memRepo) ReplaceUserRoles(ctx context.Context, userID int64, roleIDs []int64) error {
	m.userRoles[userID] = append([]int64(nil), roleIDs...)
	return nil
}

func removeID(ids []int64, target int64) []int64 {
	out := ids[:0]
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}

func newTestService(t *testing.T) (*Service, *memRepo) {
	t.Helper()
	repo := newMemRepo()
	return NewService(repo, nil), repo
}

func seedPermission(t *testing.T, svc *Service, name string) Permission {
	t.Helper()
	perm, err := svc.CreatePermission(context.Background(), CreatePermissionInput{Name: name})
	require.NoError(t, err)
	return perm
}

func TestCreatePermissionDerivesSlug(t *testing.T) {
	svc, _ := newTestService(t)
	perm, err := svc.CreatePermission(context.Background(), CreatePermissionInput{Name: "View Users"})
	require.NoError(t, err)
	require.Equal(t, "view-users", perm.Slug)
	require.Equal(t, "View Users", perm.Name)
}

func TestCreatePermissionRejectsDuplicateSlug(t *testing.T) {
	svc, _ := newTestService(t)
	seedPermission(t, svc, "View Users")
	_, err := svc.CreatePermission(context.Background(), CreatePermissionInput{Name: "view users"})
	require.ErrorIs(t, err, ErrSlugTaken)
}

func TestUpdatePermissionKeepsOwnSlug(t *testing.T) {
	svc, _ := newTestService(t)
	perm := seedPermission(t, svc, "View Users")

	slug := "view-users"
	desc := "List and inspect users"
	updated, err := svc.UpdatePermission(context.Background(), perm.ID, UpdatePermissionInput{Slug: &slug, Description: &desc})
	require.NoError(t, err)
	require.Equal(t, "view-users", updated.Slug)
	require.Equal(t, desc, updated.Description)
}

func TestCreateRoleWithInitialPermissions(t *testing.T) {
	svc, _ := newTestService(t)
	p1 := seedPermission(t, svc, "View Users")
	p2 := seedPermission(t, svc, "Edit Users")

	role, err := svc.CreateRole(context.Background(), CreateRoleInput{
		Name:            "Support Staff",
		PermissionIDs:   []int64{p1.ID, p2.ID},
		SyncPermissions: true,
	})
	require.NoError(t, err)
	require.Equal(t, "support-staff", role.Slug)
	require.Len(t, role.Permissions, 2)
}

func TestCreateRoleRejectsUnknownPermission(t *testing.T) {
	svc, _ := newTestService(t)
	p1 := seedPermission(t, svc, "View Users")

	_, err := svc.CreateRole(context.Background(), CreateRoleInput{
		Name:            "Support",
		PermissionIDs:   []int64{p1.ID, 999},
		SyncPermissions: true,
	})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestUpdateProtectedRoleRefused(t *testing.T) {
	svc, repo := newTestService(t)
	role, err := repo.CreateRole(context.Background(), Role{Slug: "super-admin", Name: "Super Admin", Protected: true}, nil)
	require.NoError(t, err)

	name := "Renamed"
	_, err = svc.UpdateRole(context.Background(), role.ID, UpdateRoleInput{Name: &name})
	require.ErrorIs(t, err, ErrProtectedRole)

	require.ErrorIs(t, svc.DeleteRole(context.Background(), role.ID), ErrProtectedRole)
}

func TestUpdateRoleSyncsPermissionsAtomically(t *testing.T) {
	svc, _ := newTestService(t)
	p1 := seedPermission(t, svc, "View Users")
	p2 := seedPermission(t, svc, "Edit Users")
	role, err := svc.CreateRole(context.Background(), CreateRoleInput{
		Name:            "Editor",
		PermissionIDs:   []int64{p1.ID},
		SyncPermissions: true,
	})
	require.NoError(t, err)

	updated, err := svc.UpdateRole(context.Background(), role.ID, UpdateRoleInput{
		PermissionIDs:   []int64{p2.ID},
		SyncPermissions: true,
	})
	require.NoError(t, err)
	require.Len(t, updated.Permissions, 1)
	require.Equal(t, "edit-users", updated.Permissions[0].Slug)
}

func TestUpdateRoleWithoutSyncKeepsPermissions(t *testing.T) {
	svc, _ := newTestService(t)
	p1 := seedPermission(t, svc, "View Users")
	role, err := svc.CreateRole(context.Background(), CreateRoleInput{
		Name:            "Viewer",
		PermissionIDs:   []int64{p1.ID},
		SyncPermissions: true,
	})
	require.NoError(t, err)

	desc := "Read only"
	updated, err := svc.UpdateRole(context.Background(), role.ID, UpdateRoleInput{Description: &desc})
	require.NoError(t, err)
	require.Len(t, updated.Permissions, 1)
	require.Equal(t, desc, updated.Description)
}

func TestSyncRolePermissionsReplacesWholesale(t *testing.T) {
	svc, _ := newTestService(t)
	p1 := seedPermission(t, svc, "View Users")
	p2 := seedPermission(t, svc, "Edit Users")
	p3 := seedPermission(t, svc, "Delete Users")
	role, err := svc.CreateRole(context.Background(), CreateRoleInput{
		Name:            "Manager",
		PermissionIDs:   []int64{p1.ID, p2.ID},
		SyncPermissions: true,
	})
	require.NoError(t, err)

	updated, err := svc.SyncRolePermissions(context.Background(), role.ID, []int64{p2.ID, p3.ID})
	require.NoError(t, err)
	slugs := make([]string, 0, len(updated.Permissions))
	for _, p := range updated.Permissions {
		slugs = append(slugs, p.Slug)
	}
	require.ElementsMatch(t, []string{"edit-users", "delete-users"}, slugs)
}

func TestSyncRolePermissionsEmptyClearsSet(t *testing.T) {
	svc, _ := newTestService(t)
	p1 := seedPermission(t, svc, "View Users")
	role, err := svc.CreateRole(context.Background(), CreateRoleInput{
		Name:            "Viewer",
		PermissionIDs:   []int64{p1.ID},
		SyncPermissions: true,
	})
	require.NoError(t, err)

	updated, err := svc.SyncRolePermissions(context.Background(), role.ID, nil)
	require.NoError(t, err)
	require.Empty(t, updated.Permissions)
}

func TestSyncRolePermissionsAllowedOnProtectedRole(t *testing.T) {
	svc, repo := newTestService(t)
	p1 := seedPermission(t, svc, "View Users")
	role, err := repo.CreateRole(context.Background(), Role{Slug: "super-admin", Name: "Super Admin", Protected: true}, nil)
	require.NoError(t, err)

	updated, err := svc.SyncRolePermissions(context.Background(), role.ID, []int64{p1.ID})
	require.NoError(t, err)
	require.Len(t, updated.Permissions, 1)
}

func TestAssignRoleIsIdempotent(t *testing.T) {
	svc, repo := newTestService(t)
	role, err := svc.CreateRole(context.Background(), CreateRoleInput{Name: "Editor"})
	require.NoError(t, err)

	const userID = int64(7)
	require.NoError(t, svc.AssignRole(context.Background(), userID, role.ID))
	require.NoError(t, svc.AssignRole(context.Background(), userID, role.ID))

	g, err := repo.GrantsForUser(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, g.Roles, 1)
}

func TestAssignUnknownRoleFails(t *testing.T) {
	svc, _ := newTestService(t)
	err := svc.AssignRole(context.Background(), 1, 42)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRemoveRoleNotHeldIsNoop(t *testing.T) {
	svc, _ := newTestService(t)
	role, err := svc.CreateRole(context.Background(), CreateRoleInput{Name: "Editor"})
	require.NoError(t, err)
	require.NoError(t, svc.RemoveRole(context.Background(), 9, role.ID))
}

func TestAssignDefaultRoleMissingIsNotError(t *testing.T) {
	svc, _ := newTestService(t)
	require.NoError(t, svc.AssignDefaultRole(context.Background(), 3))
}

func TestAssignDefaultRoleAttachesWhenPresent(t *testing.T) {
	svc, repo := newTestService(t)
	role, err := svc.CreateRole(context.Background(), CreateRoleInput{Name: "User"})
	require.NoError(t, err)
	require.Equal(t, DefaultRoleSlug, role.Slug)

	require.NoError(t, svc.AssignDefaultRole(context.Background(), 3))
	g, err := repo.GrantsForUser(context.Background(), 3)
	require.NoError(t, err)
	require.True(t, g.HasRole(DefaultRoleSlug))
}

func TestReplaceUserRoles(t *testing.T) {
	svc, repo := newTestService(t)
	r1, err := svc.CreateRole(context.Background(), CreateRoleInput{Name: "Editor"})
	require.NoError(t, err)
	r2, err := svc.CreateRole(context.Background(), CreateRoleInput{Name: "Viewer"})
	require.NoError(t, err)

	const userID = int64(5)
	require.NoError(t, svc.AssignRole(context.Background(), userID, r1.ID))
	require.NoError(t, svc.ReplaceUserRoles(context.Background(), userID, []int64{r2.ID}))

	g, err := repo.GrantsForUser(context.Background(), userID)
	require.NoError(t, err)
	require.False(t, g.HasRole("editor"))
	require.True(t, g.HasRole("viewer"))
}

func TestReplaceUserRolesRejectsUnknownRole(t *testing.T) {
	svc, _ := newTestService(t)
	err := svc.ReplaceUserRoles(context.Background(), 5, []int64{77})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestDeleteRoleRevokesFromUsers(t *testing.T) {
	svc, repo := newTestService(t)
	role, err := svc.CreateRole(context.Background(), CreateRoleInput{Name: "Editor"})
	require.NoError(t, err)
	require.NoError(t, svc.AssignRole(context.Background(), 4, role.ID))

	require.NoError(t, svc.DeleteRole(context.Background(), role.ID))
	g, err := repo.GrantsForUser(context.Background(), 4)
	require.NoError(t, err)
	require.Empty(t, g.Roles)
}

func TestDeletePermissionRevokesFromRoles(t *testing.T) {
	svc, _ := newTestService(t)
	perm := seedPermission(t, svc, "View Users")
	role, err := svc.CreateRole(context.Background(), CreateRoleInput{
		Name:            "Viewer",
		PermissionIDs:   []int64{perm.ID},
		SyncPermissions: true,
	})
	require.NoError(t, err)

	require.NoError(t, svc.DeletePermission(context.Background(), perm.ID))
	got, err := svc.GetRole(context.Background(), role.ID)
	require.NoError(t, err)
	require.Empty(t, got.Permissions)
}

func TestRoleSlugConflict(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.CreateRole(context.Background(), CreateRoleInput{Name: "Editor"})
	require.NoError(t, err)
	_, err = svc.CreateRole(context.Background(), CreateRoleInput{Name: "editor"})
	require.ErrorIs(t, err, ErrSlugTaken)
}
