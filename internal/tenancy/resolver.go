// Package tenancy resolves the tenant of a request and binds the request to
// that tenant's logical database.
package tenancy

import (
	"net"
	"net/http"
	"regexp"
	"strings"

	"github.com/yourorg/saasforge/internal/domain"
	"github.com/yourorg/saasforge/pkg/config"
)

// TenantHeader carries the tenant id under the header strategy.
const TenantHeader = "X-Tenant-ID"

// Kind tags a resolved tenant identity.
type Kind int

const (
	KindHost Kind = iota
	KindBySubdomain
	KindByID
)

func (k Kind) String() string {
	switch k {
	case KindBySubdomain:
		return "subdomain"
	case KindByID:
		return "id"
	default:
		return "host"
	}
}

// Identity is the classification of a request. Exactly one is produced per
// request; Host means the main database.
type Identity struct {
	Kind Kind
	// Label is the subdomain label and Host the full lowercased host, both
	// set for KindBySubdomain.
	Label string
	Host  string
	// TenantID is set for KindByID.
	TenantID string
}

func HostIdentity() Identity {
	return Identity{Kind: KindHost}
}

func (i Identity) IsHost() bool {
	return i.Kind == KindHost
}

var labelPattern = regexp.MustCompile(`^[A-Za-z0-9-]{1,63}$`)

// ValidateSubdomain reports whether full is "<label>.<mainDomain>". The label
// is at most 63 letters, digits or hyphens and neither starts nor ends with a
// hyphen.
func ValidateSubdomain(full, mainDomain string) bool {
	_, ok := splitSubdomain(full, mainDomain)
	return ok
}

func splitSubdomain(full, mainDomain string) (string, bool) {
	full = strings.ToLower(strings.TrimSuffix(full, "."))
	mainDomain = strings.ToLower(mainDomain)
	if mainDomain == "" || full == mainDomain {
		return "", false
	}
	label, found := strings.CutSuffix(full, "."+mainDomain)
	if !found {
		return "", false
	}
	if !labelPattern.MatchString(label) {
		return "", false
	}
	if strings.HasPrefix(label, "-") || strings.HasSuffix(label, "-") {
		return "", false
	}
	return label, true
}

// Resolver classifies requests according to the configured strategy. It
// never looks tenants up and never fails a request.
type Resolver struct {
	strategy   string
	mainDomain string
}

func NewResolver(strategy, mainDomain string) *Resolver {
	return &Resolver{
		strategy:   strategy,
		mainDomain: strings.ToLower(mainDomain),
	}
}

// Resolve returns the tenant identity of r.
func (res *Resolver) Resolve(r *http.Request) Identity {
	switch res.strategy {
	case config.StrategyHeader:
		values := r.Header.Values(TenantHeader)
		if len(values) == 0 {
			return HostIdentity()
		}
		id := strings.TrimSpace(values[0])
		if !domain.IsValidID(id) {
			return HostIdentity()
		}
		return Identity{Kind: KindByID, TenantID: id}
	case config.StrategySubdomain:
		host := strings.ToLower(StripPort(r.Host))
		label, ok := splitSubdomain(host, res.mainDomain)
		if !ok {
			return HostIdentity()
		}
		return Identity{Kind: KindBySubdomain, Label: label, Host: host}
	default:
		return HostIdentity()
	}
}

// Middleware stores the resolved identity on the request context.
func (res *Resolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := res.Resolve(r)
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

// StripPort removes an optional port from a Host header value.
func StripPort(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}
