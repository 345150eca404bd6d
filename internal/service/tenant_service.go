package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/yourorg/saasforge/internal/apperr"
	"github.com/yourorg/saasforge/internal/domain"
	"github.com/yourorg/saasforge/internal/featureflags"
	"github.com/yourorg/saasforge/internal/security/auth"
	"github.com/yourorg/saasforge/internal/tenancy"
	"github.com/yourorg/saasforge/internal/worker"
)

// DirectoryInvalidator drops cached directory entries of a tenant.
type DirectoryInvalidator interface {
	Invalidate(t *domain.Tenant)
}

// CreateTenantInput is the payload of a tenant creation.
type CreateTenantInput struct {
	Name          string          `json:"name"`
	Subdomain     string          `json:"subdomain,omitempty"`
	CustomDomain  string          `json:"custom_domain,omitempty"`
	AdminEmail    string          `json:"admin_email"`
	AdminPassword string          `json:"admin_password"`
	Features      map[string]bool `json:"features,omitempty"`
}

// TenantService manages the tenant directory and hands the heavy lifting
// (schema creation, seeding, DNS) to background jobs.
type TenantService struct {
	tenants    domain.TenantRepository
	directory  DirectoryInvalidator
	jobs       worker.Dispatcher
	mainDomain string
	logger     *slog.Logger
}

func NewTenantService(
	tenants domain.TenantRepository,
	directory DirectoryInvalidator,
	jobs worker.Dispatcher,
	mainDomain string,
	logger *slog.Logger,
) *TenantService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TenantService{
		tenants:    tenants,
		directory:  directory,
		jobs:       jobs,
		mainDomain: strings.ToLower(mainDomain),
		logger:     logger,
	}
}

// Create registers a tenant and enqueues its provisioning.
func (s *TenantService) Create(ctx context.Context, in CreateTenantInput) (*domain.Tenant, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperr.InvalidOperation("Tenant name is required")
	}
	subdomain := strings.ToLower(strings.TrimSuffix(strings.TrimSpace(in.Subdomain), "."))
	if subdomain != "" && !tenancy.ValidateSubdomain(subdomain, s.mainDomain) {
		return nil, apperr.InvalidSubdomain("Invalid subdomain")
	}

	var hash string
	if in.AdminEmail != "" {
		h, err := auth.HashPassword(in.AdminPassword)
		if err != nil {
			return nil, apperr.InvalidOperation("%s", err.Error())
		}
		hash = h
	}

	features := featureflags.TenantDefaults()
	if err := mergeFeatures(features, in.Features); err != nil {
		return nil, err
	}

	t := &domain.Tenant{
		Name:         name,
		Subdomain:    subdomain,
		CustomDomain: strings.ToLower(strings.TrimSpace(in.CustomDomain)),
		IsActive:     true,
		Features:     features,
	}
	if err := s.tenants.Create(ctx, t); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "tenant created",
		slog.String("tenant_id", t.ID),
		slog.String("name", t.Name),
	)

	s.enqueue(ctx, worker.LabelPostTenantCreation, worker.PostTenantCreation{
		AdminEmail:        strings.ToLower(strings.TrimSpace(in.AdminEmail)),
		AdminPasswordHash: hash,
	}, t.ID)
	if t.Subdomain != "" {
		s.enqueue(ctx, worker.LabelUpdateTenantDNS, worker.DNSUpdate{Subdomain: t.Subdomain}, t.ID)
	}
	return t, nil
}

// Get returns a tenant by id.
func (s *TenantService) Get(ctx context.Context, id string) (*domain.Tenant, error) {
	return s.tenants.GetByID(ctx, id)
}

// List returns every tenant ordered by name.
func (s *TenantService) List(ctx context.Context) ([]*domain.Tenant, error) {
	return s.tenants.List(ctx)
}

// Delete removes a tenant from the directory and enqueues the teardown of
// its database and DNS record.
func (s *TenantService) Delete(ctx context.Context, id string) error {
	t, err := s.tenants.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.tenants.Delete(ctx, id); err != nil {
		return err
	}
	s.directory.Invalidate(t)
	s.logger.InfoContext(ctx, "tenant deleted", slog.String("tenant_id", id))

	s.enqueue(ctx, worker.LabelPostTenantDeletion, worker.PostTenantDeletion{}, id)
	if t.Subdomain != "" {
		s.enqueue(ctx, worker.LabelUpdateTenantDNS, worker.DNSUpdate{Subdomain: t.Subdomain, Delete: true}, id)
	}
	return nil
}

// UpdateFeatures switches the named features of a tenant. Features not named
// keep their value.
func (s *TenantService) UpdateFeatures(ctx context.Context, id string, changes map[string]bool) (*domain.Tenant, error) {
	t, err := s.tenants.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Features == nil {
		t.Features = domain.Features{}
	}
	if err := mergeFeatures(t.Features, changes); err != nil {
		return nil, err
	}
	if err := s.tenants.Update(ctx, t); err != nil {
		return nil, err
	}
	s.directory.Invalidate(t)
	s.logger.InfoContext(ctx, "tenant features updated",
		slog.String("tenant_id", id),
		slog.Any("enabled", t.Features.Names()),
	)
	return t, nil
}

func mergeFeatures(dst domain.Features, changes map[string]bool) error {
	for name, on := range changes {
		f, err := domain.ParseFeature(name)
		if err != nil {
			return apperr.InvalidOperation("Unknown feature '%s'", name)
		}
		dst[f] = on
	}
	return nil
}

// enqueue hands a job to the dispatcher. Enqueue failures are logged and
// never fail the request.
func (s *TenantService) enqueue(ctx context.Context, label string, payload any, tenantID string) {
	if err := s.jobs.Enqueue(ctx, label, payload, tenantID); err != nil {
		s.logger.ErrorContext(ctx, "failed to enqueue job",
			slog.String("job", label),
			slog.String("tenant_id", tenantID),
			slog.String("error", err.Error()),
		)
	}
}
