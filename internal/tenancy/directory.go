package tenancy

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/yourorg/saasforge/internal/apperr"
	"github.com/yourorg/saasforge/internal/domain"
)

const defaultDirectoryTTL = time.Minute

// Directory is a read-through cache over the main tenant directory. It
// answers the binder's subdomain and id lookups and the domain guard's
// custom domain lookups.
type Directory struct {
	repo   domain.TenantRepository
	cache  *ristretto.Cache[string, *domain.Tenant]
	ttl    time.Duration
	logger *slog.Logger
}

func NewDirectory(repo domain.TenantRepository, ttl time.Duration, logger *slog.Logger) (*Directory, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = defaultDirectoryTTL
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, *domain.Tenant]{
		NumCounters: 100_000,
		MaxCost:     10_000,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Directory{repo: repo, cache: c, ttl: ttl, logger: logger}, nil
}

// ByID returns the tenant with id.
func (d *Directory) ByID(ctx context.Context, id string) (*domain.Tenant, error) {
	return d.load(ctx, "id:"+id, func(ctx context.Context) (*domain.Tenant, error) {
		return d.repo.GetByID(ctx, id)
	})
}

// BySubdomain returns the tenant registered under the full subdomain host.
func (d *Directory) BySubdomain(ctx context.Context, host string) (*domain.Tenant, error) {
	host = strings.ToLower(host)
	return d.load(ctx, "sub:"+host, func(ctx context.Context) (*domain.Tenant, error) {
		return d.repo.GetBySubdomain(ctx, host)
	})
}

// ByCustomDomain returns the tenant registered under a custom domain.
func (d *Directory) ByCustomDomain(ctx context.Context, host string) (*domain.Tenant, error) {
	host = strings.ToLower(host)
	return d.load(ctx, "domain:"+host, func(ctx context.Context) (*domain.Tenant, error) {
		return d.repo.GetByCustomDomain(ctx, host)
	})
}

func (d *Directory) load(
	ctx context.Context,
	key string,
	fetch func(context.Context) (*domain.Tenant, error),
) (*domain.Tenant, error) {
	if t, ok := d.cache.Get(key); ok {
		return t, nil
	}
	t, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, apperr.NotFound("Tenant not found")
	}
	d.cache.SetWithTTL(key, t, 1, d.ttl)
	return t, nil
}

// Invalidate drops every cached entry of t. Called after a tenant is
// updated or deleted.
func (d *Directory) Invalidate(t *domain.Tenant) {
	if t == nil {
		return
	}
	d.cache.Del("id:" + t.ID)
	if t.Subdomain != "" {
		d.cache.Del("sub:" + strings.ToLower(t.Subdomain))
	}
	if t.CustomDomain != "" {
		d.cache.Del("domain:" + strings.ToLower(t.CustomDomain))
	}
	d.logger.Debug("tenant directory entry invalidated", slog.String("tenant_id", t.ID))
}

func (d *Directory) Close() {
	d.cache.Close()
}
