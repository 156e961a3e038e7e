package users

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/aegis-auth/aegis/internal/platform/httpx"
	"github.com/aegis-auth/aegis/internal/rbac"
	"github.com/aegis-auth/aegis/internal/shared"
)

// Handler wires HTTP endpoints for account management.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	gate     rbac.Gate
	validate *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, gate rbac.Gate) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		gate:     gate,
		validate: httpx.NewValidator(),
	}
}

// MountRoutes registers user management routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.gate.Require(rbac.AnyPermission(rbac.PermViewUsers)))
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.gate.Require(rbac.AnyPermission(rbac.PermCreateUsers)))
		r.Post("/", h.create)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.gate.Require(rbac.AnyPermission(rbac.PermEditUsers)))
		r.Put("/{id}", h.update)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.gate.Require(rbac.AnyPermission(rbac.PermDeleteUsers)))
		r.Delete("/{id}", h.delete)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.gate.Require(rbac.AnyPermission(rbac.PermAssignRoles)))
		r.Post("/{id}/assign-roles", h.assignRoles)
	})
}

type createUserRequest struct {
	Name     string   `json:"name" validate:"required,max=255"`
	Email    string   `json:"email" validate:"required,email,max=255"`
	Phone    *string  `json:"phone" validate:"omitempty,max=20"`
	Password string   `json:"password" validate:"required,min=8"`
	IsActive *bool    `json:"is_active"`
	Roles    *[]int64 `json:"roles"`
}

type updateUserRequest struct {
	Name     *string  `json:"name" validate:"omitempty,min=1,max=255"`
	Email    *string  `json:"email" validate:"omitempty,email,max=255"`
	Phone    *string  `json:"phone" validate:"omitempty,max=20"`
	Password *string  `json:"password" validate:"omitempty,min=8"`
	IsActive *bool    `json:"is_active"`
	Roles    *[]int64 `json:"roles"`
}

type assignRolesRequest struct {
	Roles []int64 `json:"roles" validate:"required"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))

	profiles, pagination, err := h.service.List(r.Context(), page, perPage)
	if err != nil {
		h.logger.Error("list users", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	items := make([]map[string]any, 0, len(profiles))
	for _, p := range profiles {
		items = append(items, userResponse(p))
	}
	httpx.Success(w, http.StatusOK, map[string]any{
		"data":         items,
		"current_page": pagination.Page,
		"per_page":     pagination.PerPage,
		"total":        pagination.Total,
		"last_page":    pagination.TotalPages,
	}, "Users retrieved successfully")
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		httpx.Error(w, http.StatusNotFound, "User not found")
		return
	}
	profile, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.Success(w, http.StatusOK, userResponse(profile), "User retrieved successfully")
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationFailed(w, httpx.TranslateValidationErrors(err))
		return
	}
	in := CreateUserInput{
		Name:     req.Name,
		Email:    req.Email,
		Phone:    req.Phone,
		Password: req.Password,
		IsActive: req.IsActive,
	}
	if req.Roles != nil {
		in.RoleIDs = *req.Roles
		in.SyncRoles = true
	}
	profile, err := h.service.Create(r.Context(), in)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.Success(w, http.StatusCreated, userResponse(profile), "User created successfully")
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		httpx.Error(w, http.StatusNotFound, "User not found")
		return
	}
	var req updateUserRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationFailed(w, httpx.TranslateValidationErrors(err))
		return
	}
	in := UpdateUserInput{
		Name:     req.Name,
		Email:    req.Email,
		Phone:    req.Phone,
		Password: req.Password,
		IsActive: req.IsActive,
	}
	if req.Roles != nil {
		in.RoleIDs = *req.Roles
		in.SyncRoles = true
	}
	profile, err := h.service.Update(r.Context(), id, in)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.Success(w, http.StatusOK, userResponse(profile), "User updated successfully")
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		httpx.Error(w, http.StatusNotFound, "User not found")
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.Success(w, http.StatusOK, nil, "User deleted successfully")
}

func (h *Handler) assignRoles(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		httpx.Error(w, http.StatusNotFound, "User not found")
		return
	}
	var req assignRolesRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationFailed(w, httpx.TranslateValidationErrors(err))
		return
	}
	profile, err := h.service.AssignRoles(r.Context(), id, req.Roles)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.Success(w, http.StatusOK, userResponse(profile), "Roles assigned successfully")
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrEmailTaken):
		httpx.ValidationFailed(w, map[string][]string{"email": {"The email has already been taken."}})
	case errors.Is(err, ErrUnknownRole):
		httpx.ValidationFailed(w, map[string][]string{"roles": {"The selected roles are invalid."}})
	case errors.Is(err, ErrSelfDeletion):
		httpx.Error(w, http.StatusForbidden, "Cannot delete your own account")
	case errors.Is(err, ErrSuperAdminDeletion):
		httpx.Error(w, http.StatusForbidden, "Cannot delete super admin")
	case errors.Is(err, shared.ErrNotFound):
		httpx.Error(w, http.StatusNotFound, "User not found")
	default:
		h.logger.Error("user operation", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func userResponse(p Profile) map[string]any {
	return map[string]any{
		"id":          p.ID,
		"name":        p.Name,
		"email":       p.Email,
		"phone":       p.Phone,
		"is_active":   p.IsActive,
		"roles":       p.Grants.RoleSlugs(),
		"permissions": p.Grants.PermissionSlugs(),
		"created_at":  p.CreatedAt.UTC().Format(time.RFC3339),
		"updated_at":  p.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func parseID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
