package rbac

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/aegis-auth/aegis/internal/platform/httpx"
	"github.com/aegis-auth/aegis/internal/shared"
)

// Handler wires HTTP endpoints for role and permission management.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	gate     Gate
	validate *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, gate Gate) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		gate:     gate,
		validate: httpx.NewValidator(),
	}
}

// MountRoleRoutes registers role management routes.
func (h *Handler) MountRoleRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.gate.Require(AnyPermission(PermViewRoles)))
		r.Get("/", h.listRoles)
		r.Get("/{id}", h.getRole)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.gate.Require(AnyPermission(PermCreateRoles)))
		r.Post("/", h.createRole)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.gate.Require(AnyPermission(PermEditRoles)))
		r.Put("/{id}", h.updateRole)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.gate.Require(AnyPermission(PermDeleteRoles)))
		r.Delete("/{id}", h.deleteRole)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.gate.Require(AnyPermission(PermAssignPermissions)))
		r.Post("/{id}/assign-permissions", h.assignPermissions)
	})
}

// MountPermissionRoutes registers permission management routes.
func (h *Handler) MountPermissionRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.gate.Require(AnyPermission(PermViewPermissions)))
		r.Get("/", h.listPermissions)
		r.Get("/{id}", h.getPermission)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.gate.Require(AnyPermission(PermCreatePermissions)))
		r.Post("/", h.createPermission)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.gate.Require(AnyPermission(PermEditPermissions)))
		r.Put("/{id}", h.updatePermission)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.gate.Require(AnyPermission(PermDeletePermissions)))
		r.Delete("/{id}", h.deletePermission)
	})
}

type createRoleRequest struct {
	Name        string   `json:"name" validate:"required,max=255"`
	Slug        string   `json:"slug" validate:"omitempty,max=255"`
	Description string   `json:"description"`
	Permissions *[]int64 `json:"permissions"`
}

type updateRoleRequest struct {
	Name        *string  `json:"name" validate:"omitempty,min=1,max=255"`
	Slug        *string  `json:"slug" validate:"omitempty,max=255"`
	Description *string  `json:"description"`
	Permissions *[]int64 `json:"permissions"`
}

type syncPermissionsRequest struct {
	Permissions []int64 `json:"permissions" validate:"required"`
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		h.logger.Error("list roles", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(roles))
	for _, role := range roles {
		out = append(out, roleResponse(role, true))
	}
	httpx.Success(w, http.StatusOK, out, "Roles retrieved successfully")
}

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		httpx.Error(w, http.StatusNotFound, "Role not found")
		return
	}
	role, err := h.service.GetRole(r.Context(), id)
	if err != nil {
		h.respondRoleError(w, err, "")
		return
	}
	httpx.Success(w, http.StatusOK, roleResponse(role, true), "Role retrieved successfully")
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationFailed(w, httpx.TranslateValidationErrors(err))
		return
	}
	in := CreateRoleInput{Name: req.Name, Slug: req.Slug, Description: req.Description}
	if req.Permissions != nil {
		in.PermissionIDs = *req.Permissions
		in.SyncPermissions = true
	}
	role, err := h.service.CreateRole(r.Context(), in)
	if err != nil {
		h.respondRoleError(w, err, "")
		return
	}
	httpx.Success(w, http.StatusCreated, roleResponse(role, false), "Role created successfully")
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		httpx.Error(w, http.StatusNotFound, "Role not found")
		return
	}
	// Protected guard runs before payload validation.
	existing, err := h.service.GetRole(r.Context(), id)
	if err != nil {
		h.respondRoleError(w, err, "Cannot update protected role")
		return
	}
	if existing.Protected {
		httpx.Error(w, http.StatusForbidden, "Cannot update protected role")
		return
	}
	var req updateRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationFailed(w, httpx.TranslateValidationErrors(err))
		return
	}
	in := UpdateRoleInput{Name: req.Name, Slug: req.Slug, Description: req.Description}
	if req.Permissions != nil {
		in.PermissionIDs = *req.Permissions
		in.SyncPermissions = true
	}
	role, err := h.service.UpdateRole(r.Context(), id, in)
	if err != nil {
		h.respondRoleError(w, err, "Cannot update protected role")
		return
	}
	httpx.Success(w, http.StatusOK, roleResponse(role, false), "Role updated successfully")
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		httpx.Error(w, http.StatusNotFound, "Role not found")
		return
	}
	if err := h.service.DeleteRole(r.Context(), id); err != nil {
		h.respondRoleError(w, err, "Cannot delete protected role")
		return
	}
	httpx.Success(w, http.StatusOK, nil, "Role deleted successfully")
}

func (h *Handler) assignPermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		httpx.Error(w, http.StatusNotFound, "Role not found")
		return
	}
	var req syncPermissionsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationFailed(w, httpx.TranslateValidationErrors(err))
		return
	}
	role, err := h.service.SyncRolePermissions(r.Context(), id, req.Permissions)
	if err != nil {
		h.respondRoleError(w, err, "")
		return
	}
	httpx.Success(w, http.StatusOK, roleResponse(role, false), "Permissions assigned successfully")
}

type createPermissionRequest struct {
	Name        string `json:"name" validate:"required,max=255"`
	Slug        string `json:"slug" validate:"omitempty,max=255"`
	Description string `json:"description"`
}

type updatePermissionRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=255"`
	Slug        *string `json:"slug" validate:"omitempty,max=255"`
	Description *string `json:"description"`
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.ListPermissions(r.Context())
	if err != nil {
		h.logger.Error("list permissions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(perms))
	for _, perm := range perms {
		out = append(out, permissionResponse(perm, true))
	}
	httpx.Success(w, http.StatusOK, out, "Permissions retrieved successfully")
}

func (h *Handler) getPermission(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		httpx.Error(w, http.StatusNotFound, "Permission not found")
		return
	}
	perm, err := h.service.GetPermission(r.Context(), id)
	if err != nil {
		h.respondPermissionError(w, err)
		return
	}
	httpx.Success(w, http.StatusOK, permissionResponse(perm, true), "Permission retrieved successfully")
}

func (h *Handler) createPermission(w http.ResponseWriter, r *http.Request) {
	var req createPermissionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationFailed(w, httpx.TranslateValidationErrors(err))
		return
	}
	perm, err := h.service.CreatePermission(r.Context(), CreatePermissionInput{
		Name:        req.Name,
		Slug:        req.Slug,
		Description: req.Description,
	})
	if err != nil {
		h.respondPermissionError(w, err)
		return
	}
	httpx.Success(w, http.StatusCreated, permissionResponse(perm, false), "Permission created successfully")
}

func (h *Handler) updatePermission(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		httpx.Error(w, http.StatusNotFound, "Permission not found")
		return
	}
	var req updatePermissionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationFailed(w, httpx.TranslateValidationErrors(err))
		return
	}
	perm, err := h.service.UpdatePermission(r.Context(), id, UpdatePermissionInput{
		Name:        req.Name,
		Slug:        req.Slug,
		Description: req.Description,
	})
	if err != nil {
		h.respondPermissionError(w, err)
		return
	}
	httpx.Success(w, http.StatusOK, permissionResponse(perm, false), "Permission updated successfully")
}

func (h *Handler) deletePermission(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		httpx.Error(w, http.StatusNotFound, "Permission not found")
		return
	}
	if err := h.service.DeletePermission(r.Context(), id); err != nil {
		h.respondPermissionError(w, err)
		return
	}
	httpx.Success(w, http.StatusOK, nil, "Permission deleted successfully")
}

func (h *Handler) respondRoleError(w http.ResponseWriter, err error, protectedMessage string) {
	switch {
	case errors.Is(err, ErrProtectedRole) && protectedMessage != "":
		httpx.Error(w, http.StatusForbidden, protectedMessage)
	case errors.Is(err, ErrSlugTaken):
		httpx.ValidationFailed(w, map[string][]string{"slug": {"The slug has already been taken."}})
	case errors.Is(err, shared.ErrNotFound):
		httpx.Error(w, http.StatusNotFound, "Role not found")
	default:
		h.logger.Error("role operation", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func (h *Handler) respondPermissionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrSlugTaken):
		httpx.ValidationFailed(w, map[string][]string{"slug": {"The slug has already been taken."}})
	case errors.Is(err, shared.ErrNotFound):
		httpx.Error(w, http.StatusNotFound, "Permission not found")
	default:
		h.logger.Error("permission operation", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func roleResponse(role RoleGrant, includeTimestamps bool) map[string]any {
	slugs := make([]string, 0, len(role.Permissions))
	for _, perm := range role.Permissions {
		slugs = append(slugs, perm.Slug)
	}
	data := map[string]any{
		"id":          role.ID,
		"name":        role.Name,
		"slug":        role.Slug,
		"description": role.Description,
		"protected":   role.Protected,
		"permissions": slugs,
	}
	if includeTimestamps {
		data["created_at"] = role.CreatedAt.UTC().Format(time.RFC3339)
		data["updated_at"] = role.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return data
}

func permissionResponse(perm Permission, includeTimestamps bool) map[string]any {
	data := map[string]any{
		"id":          perm.ID,
		"name":        perm.Name,
		"slug":        perm.Slug,
		"description": perm.Description,
	}
	if includeTimestamps {
		data["created_at"] = perm.CreatedAt.UTC().Format(time.RFC3339)
		data["updated_at"] = perm.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return data
}

func parseID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
