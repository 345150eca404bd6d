package repository

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	multitenancy "github.com/bartventer/gorm-multitenancy/v8"
	"github.com/samber/oops"

	"github.com/yourorg/saasforge/internal/domain"
	"github.com/yourorg/saasforge/internal/observability/metrics"
)

var schemaNamePattern = regexp.MustCompile(`^tenant_[0-9a-f]{24}$`)

// RegisterModels tells gorm-multitenancy which models are shared and which
// are migrated into every schema. It must run before any other call on db.
func RegisterModels(ctx context.Context, db *multitenancy.DB) error {
	if err := db.RegisterModels(ctx, &tenantRecord{}, &userRecord{}, &roleRecord{}); err != nil {
		return oops.In("repository").Wrapf(err, "register models")
	}
	return nil
}

// Migrate creates public.tenants and the main schema.
func Migrate(ctx context.Context, db *multitenancy.DB) error {
	if err := db.MigrateSharedModels(ctx); err != nil {
		return oops.In("repository").Wrapf(err, "migrate shared models")
	}
	if err := db.MigrateTenantModels(ctx, domain.MainDatabase); err != nil {
		return oops.In("repository").Wrapf(err, "migrate main schema")
	}
	return nil
}

// Schemas creates and drops the per-tenant schemas.
type Schemas struct {
	db     *multitenancy.DB
	logger *slog.Logger
}

func NewSchemas(db *multitenancy.DB, logger *slog.Logger) *Schemas {
	if logger == nil {
		logger = slog.Default()
	}
	return &Schemas{db: db, logger: logger}
}

// InitSchema creates the schema behind h if needed and migrates its tables.
// Safe to repeat.
func (s *Schemas) InitSchema(ctx context.Context, h domain.DataHandle) error {
	err := s.db.MigrateTenantModels(ctx, h.Database())
	metrics.ObserveTenantSchemaInit(metrics.Result(err))
	if err != nil {
		return oops.In("repository").With("schema", h.Database()).Wrapf(err, "migrate tenant schema")
	}
	s.logger.Info("tenant schema ready", slog.String("schema", h.Database()))
	return nil
}

// DropSchema removes a tenant schema with everything in it. Dropping a
// missing schema succeeds.
func (s *Schemas) DropSchema(ctx context.Context, h domain.DataHandle) error {
	name := h.Database()
	if h.IsMain() || !schemaNamePattern.MatchString(name) {
		return fmt.Errorf("refusing to drop schema %q", name)
	}
	if err := s.db.WithContext(ctx).Exec(fmt.Sprintf(`DROP SCHEMA IF EXISTS "%s" CASCADE`, name)).Error; err != nil {
		return oops.In("repository").With("schema", name).Wrapf(err, "drop schema")
	}
	s.logger.Info("tenant schema dropped", slog.String("schema", name))
	return nil
}
