//go:build integration

package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/yourorg/saasforge/internal/apperr"
	"github.com/yourorg/saasforge/internal/domain"
	"github.com/yourorg/saasforge/pkg/database"
)

const postgresContainer = "saasforge-postgres-it"

func startPostgres(tb testing.TB) *database.ConnectionPool {
	tb.Helper()
	ctx := tb.Context()

	c, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("saasforge"),
		postgres.WithUsername("saasforge"),
		postgres.WithPassword("saasforge"),
		postgres.BasicWaitStrategies(),
		testcontainers.WithReuseByName(postgresContainer),
	)
	require.NoError(tb, err)

	dsn, err := c.ConnectionString(ctx, "sslmode=disable")
	require.NoError(tb, err)

	pool, err := database.NewConnectionPool(ctx, &database.Config{DSN: dsn, MaxOpenConns: 4}, nil)
	require.NoError(tb, err)
	tb.Cleanup(func() { _ = pool.Close() })

	require.NoError(tb, RegisterModels(ctx, pool.Gorm()))
	require.NoError(tb, Migrate(ctx, pool.Gorm()))
	return pool
}

func TestTenantDirectoryRoundTrip(t *testing.T) {
	pool := startPostgres(t)
	ctx := context.Background()
	repo := NewPostgresTenantRepository(pool.Gorm(), nil)

	id := domain.NewID()
	tenant := &domain.Tenant{
		ID:        id,
		Name:      "acme-" + id,
		Subdomain: "acme-" + id + ".example.com",
		IsActive:  true,
		Features:  domain.Features{domain.FeatureChat: true},
	}
	require.NoError(t, repo.Create(ctx, tenant))

	got, err := repo.GetBySubdomain(ctx, "ACME-"+id+".example.com")
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.True(t, got.Features.Enabled(domain.FeatureChat))

	dup := &domain.Tenant{Name: tenant.Name, IsActive: true}
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(repo.Create(ctx, dup)))

	require.NoError(t, repo.Delete(ctx, id))
	_, err = repo.GetByID(ctx, id)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestTenantSchemasAreIsolated(t *testing.T) {
	pool := startPostgres(t)
	ctx := context.Background()
	schemas := NewSchemas(pool.Gorm(), nil)
	users := NewPostgresUserRepository(pool.Gorm(), nil)

	a := domain.TenantHandle(domain.NewID())
	b := domain.TenantHandle(domain.NewID())
	require.NoError(t, schemas.InitSchema(ctx, a))
	require.NoError(t, schemas.InitSchema(ctx, b))
	require.NoError(t, schemas.InitSchema(ctx, a))

	u := &domain.User{Email: "ops@acme.test", PasswordHash: "x", TenantID: a.TenantID()}
	require.NoError(t, users.Create(ctx, a, u))

	_, err := users.GetByEmail(ctx, a, "ops@acme.test")
	require.NoError(t, err)
	_, err = users.GetByEmail(ctx, b, "ops@acme.test")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	// Same email is free in another tenant's schema.
	require.NoError(t, users.Create(ctx, b, &domain.User{Email: "ops@acme.test", PasswordHash: "y"}))

	require.NoError(t, schemas.DropSchema(ctx, a))
	require.NoError(t, schemas.DropSchema(ctx, a))
	assert.Error(t, schemas.DropSchema(ctx, domain.MainHandle()))
}

func TestRolesByName(t *testing.T) {
	pool := startPostgres(t)
	ctx := context.Background()
	h := domain.TenantHandle(domain.NewID())
	require.NoError(t, NewSchemas(pool.Gorm(), nil).InitSchema(ctx, h))
	roles := NewPostgresRoleRepository(pool.Gorm(), nil)

	role := &domain.Role{Name: "admin", Permissions: []domain.Permission{domain.PermFullAccess}}
	require.NoError(t, roles.Create(ctx, h, role))

	got, err := roles.GetByName(ctx, h, "admin")
	require.NoError(t, err)
	assert.Equal(t, role.ID, got.ID)
	assert.Equal(t, []domain.Permission{domain.PermFullAccess}, got.Permissions)

	assert.Equal(t, apperr.KindConflict, apperr.KindOf(roles.Create(ctx, h, &domain.Role{Name: "admin"})))
}
