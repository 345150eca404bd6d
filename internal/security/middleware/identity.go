package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	slogctx "github.com/veqryn/slog-context"

	"github.com/yourorg/saasforge/internal/apperr"
	"github.com/yourorg/saasforge/internal/domain"
	"github.com/yourorg/saasforge/internal/security/auth"
	"github.com/yourorg/saasforge/internal/tenancy"
)

type PrincipalContextKey struct{}

// ErrTenantMismatch is reported when a token issued for one tenant is used
// against another.
var ErrTenantMismatch = errors.New("token tenant does not match request tenant")

// WithPrincipal stores p on ctx.
func WithPrincipal(ctx context.Context, p *domain.Principal) context.Context {
	return context.WithValue(ctx, PrincipalContextKey{}, p)
}

// GetPrincipalFromContext returns the request principal or nil.
func GetPrincipalFromContext(ctx context.Context) *domain.Principal {
	p, _ := ctx.Value(PrincipalContextKey{}).(*domain.Principal)
	return p
}

// IdentityDecoder turns bearer tokens into principals.
type IdentityDecoder struct {
	tokens *auth.TokenManager
	users  domain.UserRepository
	roles  domain.RoleRepository
	logger *slog.Logger
}

func NewIdentityDecoder(
	tokens *auth.TokenManager,
	users domain.UserRepository,
	roles domain.RoleRepository,
	logger *slog.Logger,
) *IdentityDecoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &IdentityDecoder{tokens: tokens, users: users, roles: roles, logger: logger}
}

// Decode returns the principal for an Authorization header value. A missing
// header yields no principal and no error.
func (d *IdentityDecoder) Decode(ctx context.Context, authHeader string) (*domain.Principal, error) {
	if authHeader == "" {
		return nil, nil
	}
	token, err := auth.ExtractToken(authHeader)
	if err != nil {
		return nil, err
	}
	claims, err := d.tokens.ValidateAccessToken(token)
	if err != nil {
		return nil, err
	}

	// The user lives in the database of the tenant that issued the token.
	h := domain.MainHandle()
	if claims.TenantID != "" {
		h = domain.TenantHandle(claims.TenantID)
	}
	user, err := d.users.GetByID(ctx, h, claims.UserID())
	if err != nil {
		return nil, err
	}

	p := &domain.Principal{
		ID:          user.ID,
		Email:       user.Email,
		TenantID:    user.TenantID,
		RoleID:      user.RoleID,
		Permissions: domain.NewPermissionSet(),
		IsActive:    user.IsActive,
		ActivatedAt: user.ActivatedAt,
	}
	if user.RoleID != "" {
		role, err := d.roles.GetByID(ctx, h, user.RoleID)
		switch {
		case err == nil:
			p.HasRole = true
			p.Permissions = domain.NewPermissionSet(role.Permissions...)
		case apperr.Is(err, apperr.KindNotFound):
		default:
			return nil, err
		}
	}

	if claims.TenantID != tenancy.TenantIDFromContext(ctx) && !p.Permissions.Has(domain.PermHostManageTenants) {
		return nil, ErrTenantMismatch
	}
	return p, nil
}

// Middleware places the decoded principal on the context. Decoding failures
// are logged and the request continues anonymously; route policies reject
// it where a principal is required.
func (d *IdentityDecoder) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		p, err := d.Decode(ctx, r.Header.Get("Authorization"))
		if err != nil {
			slogctx.FromCtx(ctx).Info("bearer token rejected", slog.String("error", err.Error()))
		}
		if p != nil {
			ctx = WithPrincipal(ctx, p)
			ctx = slogctx.With(ctx, slog.String("user_id", p.ID))
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
