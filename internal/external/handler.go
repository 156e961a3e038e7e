package external

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aegis-auth/aegis/internal/platform/httpx"
)

// Handler exposes the proxied upstream directory.
type Handler struct {
	logger *slog.Logger
	client *Client
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, client *Client) *Handler {
	return &Handler{logger: logger, client: client}
}

// MountRoutes registers the external proxy routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/users", h.users)
}

func (h *Handler) users(w http.ResponseWriter, r *http.Request) {
	payload, err := h.client.FetchUsers(r.Context())
	if err != nil {
		h.logger.Error("external users", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.Success(w, http.StatusOK, payload, "External users retrieved successfully")
}
