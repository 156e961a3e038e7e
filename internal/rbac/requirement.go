package rbac

type requirementKind int

const (
	requireNone requirementKind = iota
	requireAnyRole
	requireAnyPermission
)

// Requirement is the declared access rule for a route: any one of a set of
// role slugs, any one of a set of permission slugs, or nothing at all.
// Evaluation is a logical OR across the listed slugs.
type Requirement struct {
	kind  requirementKind
	slugs []string
}

// None is the empty requirement; it always passes.
var None = Requirement{}

// AnyRole requires at least one of the given role slugs.
func AnyRole(slugs ...string) Requirement {
	return Requirement{kind: requireAnyRole, slugs: slugs}
}

// AnyPermission requires at least one of the given permission slugs.
func AnyPermission(slugs ...string) Requirement {
	return Requirement{kind: requireAnyPermission, slugs: slugs}
}

// Satisfied evaluates the requirement against the principal's grants.
func (req Requirement) Satisfied(g Grants) bool {
	switch req.kind {
	case requireAnyRole:
		return g.HasAnyRole(req.slugs...)
	case requireAnyPermission:
		return g.HasAnyPermission(req.slugs...)
	default:
		return true
	}
}
