package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/yourorg/saasforge/internal/apperr"
	"github.com/yourorg/saasforge/internal/domain"
	"github.com/yourorg/saasforge/internal/security/middleware"
	"github.com/yourorg/saasforge/internal/service"
	"github.com/yourorg/saasforge/internal/tenancy"
)

// TenantHandler serves /tenants routes.
type TenantHandler struct {
	tenants *service.TenantService
}

func NewTenantHandler(tenants *service.TenantService) *TenantHandler {
	return &TenantHandler{tenants: tenants}
}

// List handles GET /tenants/
func (h *TenantHandler) List(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.tenants.List(r.Context())
	if err != nil {
		apperr.Write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tenants)
}

// Create handles POST /tenants/. Provisioning continues in the background.
func (h *TenantHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in service.CreateTenantInput
	if err := decodeJSON(w, r, &in); err != nil {
		apperr.Write(w, r, err)
		return
	}
	t, err := h.tenants.Create(r.Context(), in)
	if err != nil {
		apperr.Write(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// Delete handles DELETE /tenants/{id}
func (h *TenantHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.tenants.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		apperr.Write(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateFeatures handles PUT /tenants/{id}/features. Tenant settings
// managers may only change their own tenant.
func (h *TenantHandler) UpdateFeatures(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p := middleware.GetPrincipalFromContext(r.Context())
	if !p.Permissions.Has(domain.PermHostManageTenants) && id != tenancy.TenantIDFromContext(r.Context()) {
		apperr.Write(w, r, apperr.Forbidden("Not allowed to manage this tenant"))
		return
	}

	var changes map[string]bool
	if err := decodeJSON(w, r, &changes); err != nil {
		apperr.Write(w, r, err)
		return
	}
	t, err := h.tenants.UpdateFeatures(r.Context(), id, changes)
	if err != nil {
		apperr.Write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}
