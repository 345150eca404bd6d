package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/saasforge/internal/apperr"
	"github.com/yourorg/saasforge/internal/domain"
	"github.com/yourorg/saasforge/internal/repository/memory"
	"github.com/yourorg/saasforge/internal/security/auth"
	"github.com/yourorg/saasforge/internal/tenancy"
	"github.com/yourorg/saasforge/internal/worker"
)

const mainDomain = "fsrapp.com"

type invalidations struct {
	ids []string
}

func (i *invalidations) Invalidate(t *domain.Tenant) {
	i.ids = append(i.ids, t.ID)
}

func newTenantService(jobs worker.Dispatcher) (*TenantService, *memory.TenantRepository, *invalidations) {
	repo := memory.NewTenantRepository()
	inv := &invalidations{}
	return NewTenantService(repo, inv, jobs, mainDomain, nil), repo, inv
}

func TestCreateTenantEnqueuesProvisioning(t *testing.T) {
	jobs := &recordingDispatcher{}
	s, repo, _ := newTenantService(jobs)
	ctx := context.Background()

	tenant, err := s.Create(ctx, CreateTenantInput{
		Name:          "Beta",
		Subdomain:     "Beta.fsrapp.com",
		AdminEmail:    "Admin@Beta.test",
		AdminPassword: "Password123",
		Features:      map[string]bool{"stripe": true},
	})
	require.NoError(t, err)
	assert.True(t, domain.IsValidID(tenant.ID))
	assert.Equal(t, "beta.fsrapp.com", tenant.Subdomain)
	assert.True(t, tenant.Features.Enabled(domain.FeatureStripe))

	stored, err := repo.GetByID(ctx, tenant.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsActive)

	require.Equal(t, []string{worker.LabelPostTenantCreation, worker.LabelUpdateTenantDNS}, jobs.labels())
	creation := jobs.jobs[0].payload.(worker.PostTenantCreation)
	assert.Equal(t, tenant.ID, jobs.jobs[0].tenantID)
	assert.Equal(t, "admin@beta.test", creation.AdminEmail)
	assert.NotEqual(t, "Password123", creation.AdminPasswordHash)
	assert.True(t, auth.CheckPassword(creation.AdminPasswordHash, "Password123"))
	assert.Equal(t, worker.DNSUpdate{Subdomain: "beta.fsrapp.com"}, jobs.jobs[1].payload)
}

func TestCreateTenantWithoutSubdomainSkipsDNS(t *testing.T) {
	jobs := &recordingDispatcher{}
	s, _, _ := newTenantService(jobs)

	_, err := s.Create(context.Background(), CreateTenantInput{Name: "Gamma"})
	require.NoError(t, err)
	assert.Equal(t, []string{worker.LabelPostTenantCreation}, jobs.labels())
}

func TestCreateTenantValidation(t *testing.T) {
	tests := []struct {
		name string
		in   CreateTenantInput
		kind apperr.Kind
	}{
		{"missing name", CreateTenantInput{Name: " "}, apperr.KindInvalidOperation},
		{"foreign domain", CreateTenantInput{Name: "a", Subdomain: "beta.other.com"}, apperr.KindInvalidSubdomain},
		{"leading hyphen", CreateTenantInput{Name: "a", Subdomain: "-beta.fsrapp.com"}, apperr.KindInvalidSubdomain},
		{"main domain", CreateTenantInput{Name: "a", Subdomain: "fsrapp.com"}, apperr.KindInvalidSubdomain},
		{"weak admin password", CreateTenantInput{Name: "a", AdminEmail: "a@b.test", AdminPassword: "short"}, apperr.KindInvalidOperation},
		{"unknown feature", CreateTenantInput{Name: "a", Features: map[string]bool{"teleport": true}}, apperr.KindInvalidOperation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jobs := &recordingDispatcher{}
			s, _, _ := newTenantService(jobs)
			_, err := s.Create(context.Background(), tt.in)
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperr.KindOf(err))
			assert.Empty(t, jobs.labels())
		})
	}
}

func TestCreateTenantDuplicateNameConflicts(t *testing.T) {
	s, _, _ := newTenantService(&recordingDispatcher{})
	ctx := context.Background()
	_, err := s.Create(ctx, CreateTenantInput{Name: "Beta"})
	require.NoError(t, err)

	_, err = s.Create(ctx, CreateTenantInput{Name: "Beta"})
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestEnqueueFailureDoesNotFailRequest(t *testing.T) {
	s, repo, _ := newTenantService(&recordingDispatcher{err: errQueueDown})
	ctx := context.Background()

	tenant, err := s.Create(ctx, CreateTenantInput{Name: "Beta", Subdomain: "beta.fsrapp.com"})
	require.NoError(t, err)
	_, err = repo.GetByID(ctx, tenant.ID)
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, tenant.ID))
}

func TestDeleteTenant(t *testing.T) {
	jobs := &recordingDispatcher{}
	s, repo, inv := newTenantService(jobs)
	ctx := context.Background()
	tenant, err := s.Create(ctx, CreateTenantInput{Name: "Beta", Subdomain: "beta.fsrapp.com"})
	require.NoError(t, err)
	jobs.jobs = nil

	require.NoError(t, s.Delete(ctx, tenant.ID))

	_, err = repo.GetByID(ctx, tenant.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.Equal(t, []string{tenant.ID}, inv.ids)
	assert.Equal(t, []string{worker.LabelPostTenantDeletion, worker.LabelUpdateTenantDNS}, jobs.labels())
	assert.Equal(t, worker.DNSUpdate{Subdomain: "beta.fsrapp.com", Delete: true}, jobs.jobs[1].payload)

	err = s.Delete(ctx, tenant.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestUpdateFeatures(t *testing.T) {
	s, _, inv := newTenantService(&recordingDispatcher{})
	ctx := context.Background()
	tenant, err := s.Create(ctx, CreateTenantInput{Name: "Beta", Features: map[string]bool{"chat": true}})
	require.NoError(t, err)

	updated, err := s.UpdateFeatures(ctx, tenant.ID, map[string]bool{"stripe": true})
	require.NoError(t, err)
	assert.True(t, updated.Features.Enabled(domain.FeatureChat))
	assert.True(t, updated.Features.Enabled(domain.FeatureStripe))
	assert.Equal(t, []string{tenant.ID}, inv.ids)

	stored, err := s.Get(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"chat", "stripe"}, stored.Features.Names())

	_, err = s.UpdateFeatures(ctx, tenant.ID, map[string]bool{"teleport": true})
	assert.True(t, apperr.Is(err, apperr.KindInvalidOperation))
}

// A created tenant is provisioned by the jobs and its admin can sign in.
func TestCreatedTenantAdminCanLogin(t *testing.T) {
	f := newFixture(t)
	tasks := worker.NewTasks(worker.TasksConfig{Schemas: f.dbs, Users: f.users, Roles: f.roles})
	s, _, _ := newTenantService(worker.NewInlineDispatcher(tasks))
	ctx := context.Background()

	tenant, err := s.Create(ctx, CreateTenantInput{
		Name:          "Beta",
		AdminEmail:    "admin@beta.test",
		AdminPassword: "Password123",
	})
	require.NoError(t, err)
	h := domain.TenantHandle(tenant.ID)
	assert.True(t, f.dbs.Exists(h))

	authSvc := NewAuthService(f.users, f.tokens, nil, nil)
	reqCtx := tenancy.WithHandle(ctx, h, tenant)
	pair, err := authSvc.Login(reqCtx, "admin@beta.test", "Password123")
	require.NoError(t, err)
	claims, err := f.tokens.ValidateAccessToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, tenant.ID, claims.TenantID)
}
