package auth

import (
	"net/http"
	"strings"

	"github.com/aegis-auth/aegis/internal/platform/httpx"
	"github.com/aegis-auth/aegis/internal/shared"
)

// RequireAuth resolves the bearer token and loads the account behind it on
// every request, so a deactivated or deleted account loses access immediately
// even while its token is still within TTL.
func (s *Service) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		value := bearerToken(r)
		if value == "" {
			httpx.Error(w, http.StatusUnauthorized, "Unauthenticated")
			return
		}
		userID, err := s.tokens.Resolve(r.Context(), value)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		user, err := s.repo.FindByID(r.Context(), userID)
		if err != nil {
			httpx.Error(w, http.StatusUnauthorized, "Unauthenticated")
			return
		}
		if !user.IsActive {
			httpx.Error(w, http.StatusForbidden, "Account is deactivated")
			return
		}
		principal := &shared.Principal{
			ID:       user.ID,
			Email:    user.Email,
			Name:     user.Name,
			IsActive: user.IsActive,
			TokenID:  value,
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), principal)))
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
