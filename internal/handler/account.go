package handler

import (
	"log/slog"
	"net/http"
	"slices"

	"github.com/yourorg/saasforge/internal/apperr"
	"github.com/yourorg/saasforge/internal/security/middleware"
	"github.com/yourorg/saasforge/internal/service"
)

// LoginRequest represents login credentials
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RefreshRequest carries a refresh token.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// ActivateRequest carries an activation token.
type ActivateRequest struct {
	Token string `json:"token"`
}

// MeResponse describes the caller.
type MeResponse struct {
	ID          string   `json:"id"`
	Email       string   `json:"email"`
	TenantID    string   `json:"tenant_id,omitempty"`
	RoleID      string   `json:"role_id,omitempty"`
	IsActive    bool     `json:"is_active"`
	Permissions []string `json:"permissions"`
}

// AccountHandler serves /account routes.
type AccountHandler struct {
	auth   *service.AuthService
	logger *slog.Logger
}

func NewAccountHandler(auth *service.AuthService, logger *slog.Logger) *AccountHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccountHandler{auth: auth, logger: logger}
}

// Login handles POST /account/login
func (h *AccountHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apperr.Write(w, r, err)
		return
	}
	pair, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		apperr.Write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

// Refresh handles POST /account/refresh
func (h *AccountHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apperr.Write(w, r, err)
		return
	}
	pair, err := h.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		apperr.Write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

// Logout handles POST /account/logout
func (h *AccountHandler) Logout(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetPrincipalFromContext(r.Context())
	h.auth.Logout(r.Context(), p)
	h.logger.InfoContext(r.Context(), "user logged out", slog.String("user_id", p.ID))
	w.WriteHeader(http.StatusNoContent)
}

// Activate handles POST /account/activate
func (h *AccountHandler) Activate(w http.ResponseWriter, r *http.Request) {
	var req ActivateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apperr.Write(w, r, err)
		return
	}
	u, err := h.auth.Activate(r.Context(), req.Token)
	if err != nil {
		apperr.Write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// Me handles GET /account/me
func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetPrincipalFromContext(r.Context())
	u, err := h.auth.Me(r.Context(), p)
	if err != nil {
		apperr.Write(w, r, err)
		return
	}
	perms := make([]string, 0, len(p.Permissions))
	for perm := range p.Permissions {
		perms = append(perms, string(perm))
	}
	slices.Sort(perms)
	writeJSON(w, http.StatusOK, MeResponse{
		ID:          u.ID,
		Email:       u.Email,
		TenantID:    u.TenantID,
		RoleID:      u.RoleID,
		IsActive:    u.IsActive,
		Permissions: perms,
	})
}
