package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/yourorg/saasforge/internal/apperr"
	"github.com/yourorg/saasforge/internal/domain"
	"github.com/yourorg/saasforge/internal/security/middleware"
	"github.com/yourorg/saasforge/internal/service"
)

// UserHandler serves /users routes.
type UserHandler struct {
	users *service.UserService
}

func NewUserHandler(users *service.UserService) *UserHandler {
	return &UserHandler{users: users}
}

// List handles GET /users/
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context())
	if err != nil {
		apperr.Write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// Create handles POST /users/. A role other than the default one needs
// the same permissions as changing role_id.
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in service.CreateUserInput
	if err := decodeJSON(w, r, &in); err != nil {
		apperr.Write(w, r, err)
		return
	}
	if in.Role != "" && in.Role != domain.RoleUser && !canAssignRoles(r) {
		apperr.Write(w, r, apperr.Forbidden("Not allowed to assign roles"))
		return
	}
	u, err := h.users.Create(r.Context(), in)
	if err != nil {
		apperr.Write(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

// Get handles GET /users/{id}
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	u, err := h.users.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		apperr.Write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// Update handles PUT /users/{id}. Only principals allowed to assign roles
// may change role_id, including on their own account.
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	var in service.UpdateUserInput
	if err := decodeJSON(w, r, &in); err != nil {
		apperr.Write(w, r, err)
		return
	}
	if in.RoleID != nil && !canAssignRoles(r) {
		apperr.Write(w, r, apperr.Forbidden("Not allowed to change roles"))
		return
	}
	u, err := h.users.Update(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		apperr.Write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func canAssignRoles(r *http.Request) bool {
	p := middleware.GetPrincipalFromContext(r.Context())
	return p != nil && p.Permissions.HasAny(domain.PermFullAccess, domain.PermRoleAssignOrRemove)
}

// Delete handles DELETE /users/{id}
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.users.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		apperr.Write(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RoleHandler serves /roles routes.
type RoleHandler struct {
	roles *service.RoleService
}

func NewRoleHandler(roles *service.RoleService) *RoleHandler {
	return &RoleHandler{roles: roles}
}

// List handles GET /roles/
func (h *RoleHandler) List(w http.ResponseWriter, r *http.Request) {
	roles, err := h.roles.List(r.Context())
	if err != nil {
		apperr.Write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, roles)
}
