package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/yourorg/saasforge/internal/apperr"
	"github.com/yourorg/saasforge/internal/security"
	"github.com/yourorg/saasforge/internal/tenancy"
)

// ResourceIDParam is the route parameter compared against the principal id
// for self access.
const ResourceIDParam = "id"

// Require guards a route with a policy requirement.
func Require(engine *security.PolicyEngine, req security.Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			subject := security.Subject{
				Principal:  GetPrincipalFromContext(ctx),
				Tenant:     tenancy.TenantFromContext(ctx),
				ResourceID: chi.URLParam(r, ResourceIDParam),
			}
			if err := engine.Evaluate(ctx, req, subject); err != nil {
				apperr.Write(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Authenticated only requires a decoded principal.
func Authenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetPrincipalFromContext(r.Context()) == nil {
			apperr.Write(w, r, apperr.Unauthorized("Not authenticated"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
