package repository

import (
	"context"
	"log/slog"

	multitenancy "github.com/bartventer/gorm-multitenancy/v8"
	"github.com/samber/oops"

	"github.com/yourorg/saasforge/internal/apperr"
	"github.com/yourorg/saasforge/internal/domain"
)

// PostgresRoleRepository implements domain.RoleRepository
type PostgresRoleRepository struct {
	db     *multitenancy.DB
	logger *slog.Logger
}

func NewPostgresRoleRepository(db *multitenancy.DB, logger *slog.Logger) *PostgresRoleRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresRoleRepository{db: db, logger: logger}
}

func (r *PostgresRoleRepository) Create(ctx context.Context, h domain.DataHandle, role *domain.Role) error {
	if role.ID == "" {
		role.ID = domain.NewID()
	}
	err := withHandle(ctx, r.db, h, func(tx *multitenancy.DB) error {
		return tx.Create(toRoleRecord(role)).Error
	})
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.Conflict("Role '%s' already exists", role.Name).Wrap(err)
		}
		return oops.In("repository").Wrapf(err, "create role")
	}
	return nil
}

func (r *PostgresRoleRepository) first(ctx context.Context, h domain.DataHandle, query string, arg any) (*domain.Role, error) {
	var rec roleRecord
	err := withHandle(ctx, r.db, h, func(tx *multitenancy.DB) error {
		return tx.Where(query, arg).First(&rec).Error
	})
	if err != nil {
		if isNotFound(err) {
			return nil, apperr.NotFound("Role not found")
		}
		return nil, oops.In("repository").Wrapf(err, "get role")
	}
	return rec.toDomain(), nil
}

func (r *PostgresRoleRepository) GetByID(ctx context.Context, h domain.DataHandle, id string) (*domain.Role, error) {
	return r.first(ctx, h, "id = ?", id)
}

func (r *PostgresRoleRepository) GetByName(ctx context.Context, h domain.DataHandle, name string) (*domain.Role, error) {
	return r.first(ctx, h, "name = ?", name)
}

func (r *PostgresRoleRepository) List(ctx context.Context, h domain.DataHandle) ([]*domain.Role, error) {
	var recs []roleRecord
	err := withHandle(ctx, r.db, h, func(tx *multitenancy.DB) error {
		return tx.Order("name").Find(&recs).Error
	})
	if err != nil {
		return nil, oops.In("repository").Wrapf(err, "list roles")
	}
	out := make([]*domain.Role, 0, len(recs))
	for i := range recs {
		out = append(out, recs[i].toDomain())
	}
	return out, nil
}
