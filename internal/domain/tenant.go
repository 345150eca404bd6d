package domain

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// Feature is a per-tenant capability that can be switched on or off.
type Feature string

const (
	FeatureChat         Feature = "chat"
	FeatureReport       Feature = "report"
	FeatureAnalytics    Feature = "analytics"
	FeatureOrganization Feature = "organization"
	FeatureTeams        Feature = "teams"
	FeatureStripe       Feature = "stripe"
)

// AllFeatures lists the closed feature enum.
var AllFeatures = []Feature{
	FeatureChat,
	FeatureReport,
	FeatureAnalytics,
	FeatureOrganization,
	FeatureTeams,
	FeatureStripe,
}

// ParseFeature validates a feature name.
func ParseFeature(name string) (Feature, error) {
	for _, f := range AllFeatures {
		if string(f) == name {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown feature %q", name)
}

// Features maps feature names to their enabled flag.
type Features map[Feature]bool

// Enabled reports whether f is switched on. Missing entries are off.
func (fs Features) Enabled(f Feature) bool {
	return fs[f]
}

// Names returns the enabled features, sorted.
func (fs Features) Names() []string {
	out := make([]string, 0, len(fs))
	for f, on := range fs {
		if on {
			out = append(out, string(f))
		}
	}
	sort.Strings(out)
	return out
}

// Tenant is an isolated customer with its own logical database.
type Tenant struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Subdomain    string    `json:"subdomain,omitempty"`
	CustomDomain string    `json:"custom_domain,omitempty"`
	IsActive     bool      `json:"is_active"`
	Features     Features  `json:"features"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TenantRepository is the tenant directory. Tenants only live in the main
// database, so calls take no data handle.
type TenantRepository interface {
	Create(ctx context.Context, tenant *Tenant) error
	GetByID(ctx context.Context, id string) (*Tenant, error)
	GetByName(ctx context.Context, name string) (*Tenant, error)
	GetBySubdomain(ctx context.Context, subdomain string) (*Tenant, error)
	GetByCustomDomain(ctx context.Context, domain string) (*Tenant, error)
	Update(ctx context.Context, tenant *Tenant) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*Tenant, error)
}
