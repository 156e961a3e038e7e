package rbac

// HasRole reports whether the principal holds a role with the given slug.
func (g Grants) HasRole(slug string) bool {
	for _, role := range g.Roles {
		if role.Slug == slug {
			return true
		}
	}
	return false
}

// HasAnyRole reports whether the principal holds at least one of the given
// role slugs. An empty input yields false.
func (g Grants) HasAnyRole(slugs ...string) bool {
	for _, slug := range slugs {
		if g.HasRole(slug) {
			return true
		}
	}
	return false
}

// HasPermission reports whether any role held by the principal contains a
// permission with the given slug. Returns on first match.
func (g Grants) HasPermission(slug string) bool {
	for _, role := range g.Roles {
		for _, perm := range role.Permissions {
			if perm.Slug == slug {
				return true
			}
		}
	}
	return false
}

// HasAnyPermission reports whether at least one of the given permission slugs
// is granted. An empty input yields false.
func (g Grants) HasAnyPermission(slugs ...string) bool {
	for _, slug := range slugs {
		if g.HasPermission(slug) {
			return true
		}
	}
	return false
}

// EffectivePermissions returns the union of permissions across all held
// roles, deduplicated by slug. Two roles granting the same slug collapse to a
// single entry.
func (g Grants) EffectivePermissions() []Permission {
	seen := make(map[string]struct{})
	var perms []Permission
	for _, role := range g.Roles {
		for _, perm := range role.Permissions {
			if _, ok := seen[perm.Slug]; ok {
				continue
			}
			seen[perm.Slug] = struct{}{}
			perms = append(perms, perm)
		}
	}
	return perms
}

// RoleSlugs projects the held roles to their slugs.
func (g Grants) RoleSlugs() []string {
	slugs := make([]string, 0, len(g.Roles))
	for _, role := range g.Roles {
		slugs = append(slugs, role.Slug)
	}
	return slugs
}

// PermissionSlugs projects the effective permissions to their slugs.
func (g Grants) PermissionSlugs() []string {
	perms := g.EffectivePermissions()
	slugs := make([]string, 0, len(perms))
	for _, perm := range perms {
		slugs = append(slugs, perm.Slug)
	}
	return slugs
}
