package security

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/saasforge/internal/apperr"
	"github.com/yourorg/saasforge/internal/domain"
)

const (
	selfID  = "aaaaaaaaaaaaaaaaaaaaaaaa"
	otherID = "bbbbbbbbbbbbbbbbbbbbbbbb"
)

func principal(tenantID string, perms ...domain.Permission) *domain.Principal {
	activated := time.Now()
	return &domain.Principal{
		ID:          selfID,
		Email:       "p@example.com",
		TenantID:    tenantID,
		RoleID:      "cccccccccccccccccccccccc",
		HasRole:     true,
		Permissions: domain.NewPermissionSet(perms...),
		IsActive:    true,
		ActivatedAt: &activated,
	}
}

func TestFullAccessAllowsEveryRequirement(t *testing.T) {
	e := NewPolicyEngine(true, nil)
	p := principal("tttttttttttttttttttttttt", domain.PermFullAccess)

	reqs := []Requirement{
		RequireAny(domain.PermUserView),
		RequireAll(domain.AllPermissions...),
		RequireAll(domain.PermHostManageTenants),
		RequireAny(),
		RequireAny(domain.PermRoleDelete).WithSelfAccess(),
	}
	for _, req := range reqs {
		assert.NoError(t, e.Evaluate(context.Background(), req, Subject{Principal: p, ResourceID: otherID}))
	}
}

func TestSelfAccess(t *testing.T) {
	e := NewPolicyEngine(true, nil)
	p := principal("tttttttttttttttttttttttt", domain.PermUserSelfReadAndWrite)
	req := RequireAny(domain.PermUserSelfReadAndWrite).WithSelfAccess()

	require.NoError(t, e.Evaluate(context.Background(), req, Subject{Principal: p, ResourceID: selfID}))

	err := e.Evaluate(context.Background(), req, Subject{Principal: p, ResourceID: otherID})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	err = e.Evaluate(context.Background(), req, Subject{Principal: p})
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	all := RequireAll(domain.PermUserSelfReadAndWrite).WithSelfAccess()
	require.NoError(t, e.Evaluate(context.Background(), all, Subject{Principal: p, ResourceID: selfID}))
	err = e.Evaluate(context.Background(), all, Subject{Principal: p, ResourceID: otherID})
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
}

func TestSelfAccessRequiresSelfPermission(t *testing.T) {
	e := NewPolicyEngine(true, nil)
	p := principal("tttttttttttttttttttttttt", domain.PermRoleView)
	req := RequireAny(domain.PermUserView).WithSelfAccess()

	err := e.Evaluate(context.Background(), req, Subject{Principal: p, ResourceID: selfID})
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
}

func TestQuantifiers(t *testing.T) {
	e := NewPolicyEngine(false, nil)
	p := principal("", domain.PermUserView, domain.PermRoleView)

	tests := []struct {
		name  string
		req   Requirement
		allow bool
	}{
		{"any hit", RequireAny(domain.PermUserView, domain.PermUserReadAndWrite), true},
		{"any miss", RequireAny(domain.PermUserDelete), false},
		{"all hit", RequireAll(domain.PermUserView, domain.PermRoleView), true},
		{"all partial", RequireAll(domain.PermUserView, domain.PermRoleDelete), false},
		{"empty any", RequireAny(), false},
		{"empty all", RequireAll(), true},
		{"all of only self without self access", RequireAll(domain.PermUserSelfReadAndWrite), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := e.Evaluate(context.Background(), tt.req, Subject{Principal: p})
			if tt.allow {
				assert.NoError(t, err)
			} else {
				assert.True(t, apperr.Is(err, apperr.KindForbidden))
			}
		})
	}
}

func TestNoPrincipalIsUnauthorized(t *testing.T) {
	e := NewPolicyEngine(true, nil)
	err := e.Evaluate(context.Background(), RequireAny(domain.PermUserView), Subject{})
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))
}

func TestNoRoleIsForbidden(t *testing.T) {
	e := NewPolicyEngine(true, nil)
	p := principal("", domain.PermFullAccess)
	p.HasRole = false
	err := e.Evaluate(context.Background(), RequireAny(domain.PermUserView), Subject{Principal: p})
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
}

func TestHostAdminOnlyWinsWithMultiTenancy(t *testing.T) {
	p := principal("", domain.PermHostManageTenants)
	req := RequireAny(domain.PermUserView)

	assert.NoError(t, NewPolicyEngine(true, nil).Evaluate(context.Background(), req, Subject{Principal: p}))

	err := NewPolicyEngine(false, nil).Evaluate(context.Background(), req, Subject{Principal: p})
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
}

func TestFeatureGate(t *testing.T) {
	e := NewPolicyEngine(true, nil)
	tenant := &domain.Tenant{ID: "tttttttttttttttttttttttt", Features: domain.Features{domain.FeatureStripe: false}}
	req := RequireAny(domain.PermManageBilling).WithFeature(domain.FeatureStripe)

	t.Run("disabled on tenant", func(t *testing.T) {
		p := principal(tenant.ID, domain.PermManageBilling)
		err := e.Evaluate(context.Background(), req, Subject{Principal: p, Tenant: tenant})
		require.Error(t, err)
		assert.True(t, apperr.Is(err, apperr.KindInvalidOperation))
		assert.Equal(t, "Feature 'stripe' is not enabled.", err.(*apperr.Error).Message)
	})

	t.Run("disabled blocks full access too", func(t *testing.T) {
		p := principal(tenant.ID, domain.PermFullAccess)
		err := e.Evaluate(context.Background(), req, Subject{Principal: p, Tenant: tenant})
		assert.True(t, apperr.Is(err, apperr.KindInvalidOperation))
	})

	t.Run("enabled continues to permissions", func(t *testing.T) {
		enabled := &domain.Tenant{ID: tenant.ID, Features: domain.Features{domain.FeatureStripe: true}}
		assert.NoError(t, e.Evaluate(context.Background(), req,
			Subject{Principal: principal(tenant.ID, domain.PermManageBilling), Tenant: enabled}))

		err := e.Evaluate(context.Background(), req,
			Subject{Principal: principal(tenant.ID, domain.PermUserView), Tenant: enabled})
		assert.True(t, apperr.Is(err, apperr.KindForbidden))
	})

	t.Run("host principal without host permission", func(t *testing.T) {
		err := e.Evaluate(context.Background(), req, Subject{Principal: principal("", domain.PermManageBilling)})
		assert.True(t, apperr.Is(err, apperr.KindInvalidOperation))
	})

	t.Run("host admin", func(t *testing.T) {
		assert.NoError(t, e.Evaluate(context.Background(), req,
			Subject{Principal: principal("", domain.PermHostManageTenants)}))
	})

	t.Run("ignored without multi-tenancy", func(t *testing.T) {
		single := NewPolicyEngine(false, nil)
		assert.NoError(t, single.Evaluate(context.Background(), req,
			Subject{Principal: principal("", domain.PermManageBilling)}))
	})
}

func TestRequireActive(t *testing.T) {
	e := NewPolicyEngine(true, nil)
	p := principal("", domain.PermFullAccess)
	p.ActivatedAt = nil

	err := e.Evaluate(context.Background(), RequireAny(domain.PermUserView).Active(), Subject{Principal: p})
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	assert.NoError(t, e.Evaluate(context.Background(), RequireAny(domain.PermUserView), Subject{Principal: p}))
}
