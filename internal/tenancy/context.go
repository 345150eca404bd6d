package tenancy

import (
	"context"

	"github.com/yourorg/saasforge/internal/domain"
)

type identityContextKey struct{}
type handleContextKey struct{}
type tenantContextKey struct{}

// WithIdentity stores the resolved tenant identity on ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext returns the resolved identity, Host when none was set.
func IdentityFromContext(ctx context.Context) Identity {
	if id, ok := ctx.Value(identityContextKey{}).(Identity); ok {
		return id
	}
	return HostIdentity()
}

// WithHandle stores the bound data handle and, for tenant requests, the tenant.
func WithHandle(ctx context.Context, h domain.DataHandle, t *domain.Tenant) context.Context {
	ctx = context.WithValue(ctx, handleContextKey{}, h)
	if t != nil {
		ctx = context.WithValue(ctx, tenantContextKey{}, t)
	}
	return ctx
}

// HandleFromContext returns the request's data handle. Requests that never
// went through the binder target the main database.
func HandleFromContext(ctx context.Context) domain.DataHandle {
	if h, ok := ctx.Value(handleContextKey{}).(domain.DataHandle); ok {
		return h
	}
	return domain.MainHandle()
}

// TenantFromContext returns the bound tenant, nil on host requests.
func TenantFromContext(ctx context.Context) *domain.Tenant {
	t, _ := ctx.Value(tenantContextKey{}).(*domain.Tenant)
	return t
}

// TenantIDFromContext returns the bound tenant id, empty on host requests.
func TenantIDFromContext(ctx context.Context) string {
	return HandleFromContext(ctx).TenantID()
}
