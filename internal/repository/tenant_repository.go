package repository

import (
	"context"
	"log/slog"
	"strings"
	"time"

	multitenancy "github.com/bartventer/gorm-multitenancy/v8"
	"github.com/samber/oops"

	"github.com/yourorg/saasforge/internal/apperr"
	"github.com/yourorg/saasforge/internal/domain"
)

// PostgresTenantRepository implements domain.TenantRepository on public.tenants
type PostgresTenantRepository struct {
	db     *multitenancy.DB
	logger *slog.Logger
}

// NewPostgresTenantRepository creates a new tenant repository
func NewPostgresTenantRepository(db *multitenancy.DB, logger *slog.Logger) *PostgresTenantRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresTenantRepository{db: db, logger: logger}
}

// Create inserts a tenant. Duplicate name, subdomain or custom domain is a
// conflict.
func (r *PostgresTenantRepository) Create(ctx context.Context, t *domain.Tenant) error {
	if t.ID == "" {
		t.ID = domain.NewID()
	}
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now

	err := r.db.WithContext(ctx).Create(toTenantRecord(t)).Error
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.Conflict("Tenant '%s' already exists", t.Name).Wrap(err)
		}
		r.logger.Error("failed to create tenant",
			slog.String("name", t.Name),
			slog.String("error", err.Error()),
		)
		return oops.In("repository").Wrapf(err, "create tenant")
	}
	return nil
}

func (r *PostgresTenantRepository) first(ctx context.Context, query string, arg any) (*domain.Tenant, error) {
	var rec tenantRecord
	err := r.db.WithContext(ctx).Where(query, arg).First(&rec).Error
	if err != nil {
		if isNotFound(err) {
			return nil, apperr.NotFound("Tenant not found")
		}
		return nil, oops.In("repository").Wrapf(err, "get tenant")
	}
	return rec.toDomain(), nil
}

// GetByID retrieves a tenant by ID
func (r *PostgresTenantRepository) GetByID(ctx context.Context, id string) (*domain.Tenant, error) {
	return r.first(ctx, "id = ?", id)
}

// GetByName retrieves a tenant by name
func (r *PostgresTenantRepository) GetByName(ctx context.Context, name string) (*domain.Tenant, error) {
	return r.first(ctx, "name = ?", name)
}

func (r *PostgresTenantRepository) GetBySubdomain(ctx context.Context, subdomain string) (*domain.Tenant, error) {
	return r.first(ctx, "subdomain = ?", strings.ToLower(subdomain))
}

func (r *PostgresTenantRepository) GetByCustomDomain(ctx context.Context, host string) (*domain.Tenant, error) {
	return r.first(ctx, "custom_domain = ?", strings.ToLower(host))
}

// Update rewrites the mutable columns. The schema name never changes.
func (r *PostgresTenantRepository) Update(ctx context.Context, t *domain.Tenant) error {
	t.UpdatedAt = time.Now().UTC()
	rec := toTenantRecord(t)
	res := r.db.WithContext(ctx).
		Model(rec).
		Select("Name", "Subdomain", "CustomDomain", "IsActive", "Features", "UpdatedAt").
		Where("id = ?", t.ID).
		Updates(rec)
	if res.Error != nil {
		if isUniqueViolation(res.Error) {
			return apperr.Conflict("Tenant '%s' already exists", t.Name).Wrap(res.Error)
		}
		return oops.In("repository").Wrapf(res.Error, "update tenant")
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("Tenant not found")
	}
	return nil
}

// Delete removes the directory row. The schema is dropped separately.
func (r *PostgresTenantRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&tenantRecord{})
	if res.Error != nil {
		return oops.In("repository").Wrapf(res.Error, "delete tenant")
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("Tenant not found")
	}
	return nil
}

// List returns all tenants ordered by name
func (r *PostgresTenantRepository) List(ctx context.Context) ([]*domain.Tenant, error) {
	var recs []tenantRecord
	if err := r.db.WithContext(ctx).Order("name").Find(&recs).Error; err != nil {
		return nil, oops.In("repository").Wrapf(err, "list tenants")
	}
	out := make([]*domain.Tenant, 0, len(recs))
	for i := range recs {
		out = append(out, recs[i].toDomain())
	}
	return out, nil
}
