package httpx

import (
	"errors"
	"net/http"

	"github.com/aegis-auth/aegis/internal/shared"
)

// RespondError maps domain errors to the failure envelope. Unexpected errors
// surface as a generic 500 without leaking internals.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Error(w, http.StatusNotFound, "Resource not found")
	case errors.Is(err, shared.ErrInvalidCredentials):
		Error(w, http.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, shared.ErrAccountDeactivated):
		Error(w, http.StatusForbidden, "Account is deactivated")
	case errors.Is(err, shared.ErrUnauthenticated):
		Error(w, http.StatusUnauthorized, "Unauthenticated")
	case errors.Is(err, shared.ErrForbidden):
		Error(w, http.StatusForbidden, "You do not have permission to perform this action")
	case errors.Is(err, shared.ErrConflict):
		Error(w, http.StatusConflict, "Duplicate entry")
	case errors.Is(err, shared.ErrUpstreamUnavailable):
		Error(w, http.StatusServiceUnavailable, "Unable to connect to external API")
	default:
		Error(w, http.StatusInternalServerError, "Internal server error")
	}
}
