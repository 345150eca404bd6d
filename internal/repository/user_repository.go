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

// withHandle runs fn against the schema behind h.
func withHandle(ctx context.Context, db *multitenancy.DB, h domain.DataHandle, fn func(tx *multitenancy.DB) error) error {
	return db.WithTenant(ctx, h.Database(), func(tx *multitenancy.DB) error {
		return fn(tx.WithContext(ctx))
	})
}

// PostgresUserRepository implements domain.UserRepository on the users table
// of each schema
type PostgresUserRepository struct {
	db     *multitenancy.DB
	logger *slog.Logger
}

// NewPostgresUserRepository creates a new user repository
func NewPostgresUserRepository(db *multitenancy.DB, logger *slog.Logger) *PostgresUserRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresUserRepository{db: db, logger: logger}
}

// Create creates a new user
func (r *PostgresUserRepository) Create(ctx context.Context, h domain.DataHandle, user *domain.User) error {
	if user.ID == "" {
		user.ID = domain.NewID()
	}
	now := time.Now().UTC()
	user.CreatedAt, user.UpdatedAt = now, now

	err := withHandle(ctx, r.db, h, func(tx *multitenancy.DB) error {
		return tx.Create(toUserRecord(user)).Error
	})
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.Conflict("User with email '%s' already exists", user.Email).Wrap(err)
		}
		r.logger.Error("failed to create user",
			slog.String("database", h.Database()),
			slog.String("error", err.Error()),
		)
		return oops.In("repository").Wrapf(err, "create user")
	}
	return nil
}

func (r *PostgresUserRepository) first(ctx context.Context, h domain.DataHandle, query string, arg any) (*domain.User, error) {
	var rec userRecord
	err := withHandle(ctx, r.db, h, func(tx *multitenancy.DB) error {
		return tx.Where(query, arg).First(&rec).Error
	})
	if err != nil {
		if isNotFound(err) {
			return nil, apperr.NotFound("User not found")
		}
		return nil, oops.In("repository").Wrapf(err, "get user")
	}
	return rec.toDomain(), nil
}

// GetByID retrieves a user by ID
func (r *PostgresUserRepository) GetByID(ctx context.Context, h domain.DataHandle, id string) (*domain.User, error) {
	return r.first(ctx, h, "id = ?", id)
}

// GetByEmail retrieves a user by email
func (r *PostgresUserRepository) GetByEmail(ctx context.Context, h domain.DataHandle, email string) (*domain.User, error) {
	return r.first(ctx, h, "email = ?", strings.ToLower(email))
}

// Update updates an existing user
func (r *PostgresUserRepository) Update(ctx context.Context, h domain.DataHandle, user *domain.User) error {
	user.UpdatedAt = time.Now().UTC()
	rec := toUserRecord(user)
	var affected int64
	err := withHandle(ctx, r.db, h, func(tx *multitenancy.DB) error {
		res := tx.Model(rec).
			Select("Email", "PasswordHash", "RoleID", "IsActive", "ActivatedAt", "UpdatedAt").
			Where("id = ?", user.ID).
			Updates(rec)
		affected = res.RowsAffected
		return res.Error
	})
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.Conflict("User with email '%s' already exists", user.Email).Wrap(err)
		}
		return oops.In("repository").Wrapf(err, "update user")
	}
	if affected == 0 {
		return apperr.NotFound("User not found")
	}
	return nil
}

// Delete removes a user
func (r *PostgresUserRepository) Delete(ctx context.Context, h domain.DataHandle, id string) error {
	var affected int64
	err := withHandle(ctx, r.db, h, func(tx *multitenancy.DB) error {
		res := tx.Where("id = ?", id).Delete(&userRecord{})
		affected = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return oops.In("repository").Wrapf(err, "delete user")
	}
	if affected == 0 {
		return apperr.NotFound("User not found")
	}
	return nil
}

// List returns the users of one database ordered by email
func (r *PostgresUserRepository) List(ctx context.Context, h domain.DataHandle) ([]*domain.User, error) {
	var recs []userRecord
	err := withHandle(ctx, r.db, h, func(tx *multitenancy.DB) error {
		return tx.Order("email").Find(&recs).Error
	})
	if err != nil {
		r.logger.Error("failed to list users",
			slog.String("database", h.Database()),
			slog.String("error", err.Error()),
		)
		return nil, oops.In("repository").Wrapf(err, "list users")
	}
	out := make([]*domain.User, 0, len(recs))
	for i := range recs {
		out = append(out, recs[i].toDomain())
	}
	return out, nil
}
