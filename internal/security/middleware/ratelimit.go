package middleware

import (
	"log/slog"
	"net/http"

	slogctx "github.com/veqryn/slog-context"

	"github.com/yourorg/saasforge/internal/apperr"
	"github.com/yourorg/saasforge/internal/security/ratelimit"
	"github.com/yourorg/saasforge/internal/tenancy"
)

// RateLimitMiddleware applies the per-tenant request budget. Host requests
// share the "host" budget.
func RateLimitMiddleware(limiter *ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scope := tenancy.TenantIDFromContext(r.Context())
			if scope == "" {
				scope = "host"
			}
			if !limiter.Allow(scope) {
				slogctx.FromCtx(r.Context()).Warn("rate limit exceeded", slog.String("scope", scope))
				apperr.Write(w, r, apperr.TooManyRequests("Rate limit exceeded"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
