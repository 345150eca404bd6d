package tenancy

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	slogctx "github.com/veqryn/slog-context"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"github.com/yourorg/saasforge/internal/apperr"
	"github.com/yourorg/saasforge/internal/domain"
	"github.com/yourorg/saasforge/internal/observability/tracing"
)

// TenantLookup translates resolved identities to tenants.
type TenantLookup interface {
	ByID(ctx context.Context, id string) (*domain.Tenant, error)
	BySubdomain(ctx context.Context, host string) (*domain.Tenant, error)
}

// SchemaInitializer creates a tenant's logical database and its tables.
// Implementations must be idempotent.
type SchemaInitializer interface {
	InitSchema(ctx context.Context, h domain.DataHandle) error
}

// Binder maps the resolved identity to a data handle and puts it on the
// request context. Repositories receive the handle explicitly.
type Binder struct {
	lookup TenantLookup
	init   SchemaInitializer
	logger *slog.Logger

	group singleflight.Group
	ready sync.Map
}

func NewBinder(lookup TenantLookup, init SchemaInitializer, logger *slog.Logger) *Binder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Binder{lookup: lookup, init: init, logger: logger}
}

// Bind returns the handle for id. Tenant identities must name an active
// tenant, otherwise the result is a NotFound error.
func (b *Binder) Bind(ctx context.Context, id Identity) (domain.DataHandle, *domain.Tenant, error) {
	var (
		t   *domain.Tenant
		err error
	)
	switch id.Kind {
	case KindByID:
		t, err = b.lookup.ByID(ctx, id.TenantID)
	case KindBySubdomain:
		t, err = b.lookup.BySubdomain(ctx, id.Host)
	default:
		return domain.MainHandle(), nil, nil
	}
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return domain.DataHandle{}, nil, apperr.NotFound("Tenant not found")
		}
		return domain.DataHandle{}, nil, err
	}
	if !t.IsActive {
		return domain.DataHandle{}, nil, apperr.NotFound("Tenant not found")
	}

	h := domain.TenantHandle(t.ID)
	if err := b.EnsureSchema(ctx, h); err != nil {
		return domain.DataHandle{}, nil, err
	}
	return h, t, nil
}

// EnsureSchema initializes the tenant database on first touch. Concurrent
// first touches of the same tenant share one initialization; later calls
// only read the ready flag.
func (b *Binder) EnsureSchema(ctx context.Context, h domain.DataHandle) error {
	if h.IsMain() {
		return nil
	}
	key := h.TenantID()
	if _, ok := b.ready.Load(key); ok {
		return nil
	}
	_, err, _ := b.group.Do(key, func() (any, error) {
		if _, ok := b.ready.Load(key); ok {
			return nil, nil
		}
		initCtx, span := tracing.Start(context.WithoutCancel(ctx), "tenant schema init",
			attribute.String("db.schema", h.Database()))
		err := b.init.InitSchema(initCtx, h)
		tracing.End(span, err)
		if err != nil {
			return nil, err
		}
		b.ready.Store(key, struct{}{})
		b.logger.Info("tenant schema initialized", slog.String("database", h.Database()))
		return nil, nil
	})
	return err
}

// Forget clears the ready flag so the next touch re-initializes the schema.
func (b *Binder) Forget(tenantID string) {
	b.ready.Delete(tenantID)
}

// Middleware binds the request to its data handle. Unknown or inactive
// tenants end the request with 404 before any handler runs.
func (b *Binder) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		h, t, err := b.Bind(ctx, IdentityFromContext(ctx))
		if err != nil {
			if !apperr.Is(err, apperr.KindNotFound) {
				b.logger.Error("failed to bind tenant", slog.String("error", err.Error()))
			}
			apperr.Write(w, r, err)
			return
		}
		ctx = WithHandle(ctx, h, t)
		if t != nil {
			ctx = slogctx.With(ctx, slog.String("tenant_id", t.ID))
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
