package security

import (
	"context"
	"log/slog"

	slogctx "github.com/veqryn/slog-context"

	"github.com/yourorg/saasforge/internal/apperr"
	"github.com/yourorg/saasforge/internal/domain"
	"github.com/yourorg/saasforge/internal/observability/metrics"
)

// Quantifier selects how the required permissions are matched.
type Quantifier int

const (
	// Any is satisfied by a non-empty intersection.
	Any Quantifier = iota
	// All is satisfied when the principal holds every required permission.
	All
)

// Requirement is the per-route policy declaration.
type Requirement struct {
	Permissions     []domain.Permission
	Quantifier      Quantifier
	AllowSelfAccess bool
	Feature         domain.Feature
	RequireActive   bool
}

// RequireAny builds a requirement satisfied by any of perms.
func RequireAny(perms ...domain.Permission) Requirement {
	return Requirement{Permissions: perms, Quantifier: Any}
}

// RequireAll builds a requirement satisfied only by all of perms.
func RequireAll(perms ...domain.Permission) Requirement {
	return Requirement{Permissions: perms, Quantifier: All}
}

// WithSelfAccess lets a principal holding user:self_read_and_write_only
// through when the target resource is its own account.
func (r Requirement) WithSelfAccess() Requirement {
	r.AllowSelfAccess = true
	return r
}

// WithFeature gates the route on a tenant feature.
func (r Requirement) WithFeature(f domain.Feature) Requirement {
	r.Feature = f
	return r
}

// Active rejects principals whose account has not been activated.
func (r Requirement) Active() Requirement {
	r.RequireActive = true
	return r
}

// Subject is what a requirement is evaluated against.
type Subject struct {
	Principal *domain.Principal
	// Tenant is the tenant bound to the request, nil on host requests.
	Tenant *domain.Tenant
	// ResourceID is the target id from the route, used for self access.
	ResourceID string
}

// PolicyEngine evaluates route requirements.
type PolicyEngine struct {
	multiTenancy bool
	logger       *slog.Logger
}

func NewPolicyEngine(multiTenancy bool, logger *slog.Logger) *PolicyEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &PolicyEngine{multiTenancy: multiTenancy, logger: logger}
}

// Evaluate returns nil when s satisfies req. Denials are typed errors:
// Unauthorized without a principal, InvalidOperation for a disabled
// feature, Forbidden otherwise.
func (e *PolicyEngine) Evaluate(ctx context.Context, req Requirement, s Subject) error {
	p := s.Principal
	if p == nil {
		return e.deny(ctx, "authentication", apperr.Unauthorized("Not authenticated"))
	}
	if req.RequireActive && (!p.IsActive || p.ActivatedAt == nil) {
		return e.deny(ctx, "inactive", apperr.Forbidden("Account is not activated"))
	}

	hostAdmin := p.Permissions.Has(domain.PermHostManageTenants)

	if req.Feature != "" && e.multiTenancy {
		if p.TenantID == "" {
			if hostAdmin {
				return e.allow("feature_host_admin")
			}
			return e.deny(ctx, "feature", apperr.FeatureNotEnabled(string(req.Feature)))
		}
		if s.Tenant == nil || !s.Tenant.Features.Enabled(req.Feature) {
			return e.deny(ctx, "feature", apperr.FeatureNotEnabled(string(req.Feature)))
		}
	}

	if !p.HasRole {
		return e.deny(ctx, "no_role", apperr.Forbidden("No role assigned"))
	}
	if e.multiTenancy && hostAdmin {
		return e.allow("host_admin")
	}
	if p.Permissions.Has(domain.PermFullAccess) {
		return e.allow("full_access")
	}
	if req.AllowSelfAccess &&
		p.Permissions.Has(domain.PermUserSelfReadAndWrite) &&
		s.ResourceID != "" && s.ResourceID == p.ID {
		return e.allow("self_access")
	}

	required := req.Permissions
	if req.AllowSelfAccess {
		// The self permission only ever grants access to the caller's own
		// resource, which the self access rule has already decided.
		required = without(required, domain.PermUserSelfReadAndWrite)
	}
	switch req.Quantifier {
	case All:
		// Every set covers an empty requirement. A requirement emptied by
		// dropping the self permission above does not count as empty.
		if len(req.Permissions) == 0 || (len(required) > 0 && p.Permissions.HasAll(required...)) {
			return e.allow("all")
		}
	default:
		if p.Permissions.HasAny(required...) {
			return e.allow("any")
		}
	}
	return e.deny(ctx, "permissions", apperr.Forbidden("Insufficient permissions"))
}

func (e *PolicyEngine) allow(rule string) error {
	metrics.ObservePolicyDecision("allow", rule)
	return nil
}

func (e *PolicyEngine) deny(ctx context.Context, rule string, err *apperr.Error) error {
	metrics.ObservePolicyDecision("deny", rule)
	slogctx.FromCtx(ctx).Warn("policy denied",
		slog.String("rule", rule),
		slog.String("reason", err.Message),
	)
	return err
}

func without(perms []domain.Permission, drop domain.Permission) []domain.Permission {
	out := make([]domain.Permission, 0, len(perms))
	for _, p := range perms {
		if p != drop {
			out = append(out, p)
		}
	}
	return out
}
