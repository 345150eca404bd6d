package tenancy

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/yourorg/saasforge/internal/apperr"
	"github.com/yourorg/saasforge/internal/domain"
)

// CustomDomainLookup finds tenants registered under a custom domain.
type CustomDomainLookup interface {
	ByCustomDomain(ctx context.Context, host string) (*domain.Tenant, error)
}

// DomainGuard rejects hosts that are neither the main domain, one of its
// valid subdomains, nor a registered custom domain.
func DomainGuard(mainDomain string, lookup CustomDomainLookup, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	mainDomain = strings.ToLower(mainDomain)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			host := strings.ToLower(StripPort(r.Host))
			if host == mainDomain || host == "localhost" || ValidateSubdomain(host, mainDomain) {
				next.ServeHTTP(w, r)
				return
			}
			t, err := lookup.ByCustomDomain(r.Context(), host)
			if err == nil && t != nil && t.IsActive {
				next.ServeHTTP(w, r)
				return
			}
			logger.Warn("request for unknown domain rejected", slog.String("host", host))
			apperr.Write(w, r, apperr.InvalidSubdomain("Invalid subdomain"))
		})
	}
}
