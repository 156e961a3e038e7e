package rbac

import (
	"log/slog"
	"net/http"

	"github.com/aegis-auth/aegis/internal/platform/httpx"
	"github.com/aegis-auth/aegis/internal/shared"
)

// Gate enforces route requirements against the current principal. It expects
// the authentication middleware to have resolved the principal into the
// request context.
type Gate struct {
	Service *Service
	Logger  *slog.Logger
}

// Require returns middleware that rejects the request unless the principal
// satisfies the requirement. Missing principal yields 401; an inactive
// principal or an unsatisfied requirement yields 403.
func (g Gate) Require(req Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := shared.PrincipalFromContext(r.Context())
			if principal == nil {
				httpx.Error(w, http.StatusUnauthorized, "Unauthenticated")
				return
			}
			if !principal.IsActive {
				httpx.Error(w, http.StatusForbidden, "Account is deactivated")
				return
			}
			if req.kind == requireNone {
				next.ServeHTTP(w, r)
				return
			}
			grants, err := g.Service.GrantsFor(r.Context(), principal.ID)
			if err != nil {
				if g.Logger != nil {
					g.Logger.Error("gate load grants", slog.Int64("user_id", principal.ID), slog.Any("error", err))
				}
				httpx.Error(w, http.StatusInternalServerError, "Internal server error")
				return
			}
			if req.Satisfied(grants) {
				next.ServeHTTP(w, r)
				return
			}
			httpx.Error(w, http.StatusForbidden, rejectionMessage(req))
		})
	}
}

func rejectionMessage(req Requirement) string {
	if req.kind == requireAnyRole {
		return "You do not have the required role to perform this action"
	}
	return "You do not have permission to perform this action"
}
