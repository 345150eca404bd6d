package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/yourorg/saasforge/internal/domain"
	"github.com/yourorg/saasforge/internal/handler"
	"github.com/yourorg/saasforge/internal/httpcache"
	"github.com/yourorg/saasforge/internal/observability/metrics"
	"github.com/yourorg/saasforge/internal/security"
	"github.com/yourorg/saasforge/internal/security/audit"
	"github.com/yourorg/saasforge/internal/security/auth"
	"github.com/yourorg/saasforge/internal/security/middleware"
	"github.com/yourorg/saasforge/internal/security/ratelimit"
	"github.com/yourorg/saasforge/internal/service"
	"github.com/yourorg/saasforge/internal/tenancy"
	"github.com/yourorg/saasforge/internal/worker"
	"github.com/yourorg/saasforge/pkg/config"
)

const serviceName = "saasforge"

// Deps are the collaborators the router is assembled from. Directory and
// Binder are shared with the worker tasks, so they are built by the caller.
type Deps struct {
	Tenants domain.TenantRepository
	Users   domain.UserRepository
	Roles   domain.RoleRepository

	Directory *tenancy.Directory
	Binder    *tenancy.Binder

	Tokens  *auth.TokenManager
	Audit   *audit.Sink
	Cache   httpcache.Store
	Jobs    worker.Dispatcher
	Limiter *ratelimit.Limiter

	// Checks are pinged by /readyz.
	Checks map[string]handler.Pinger
	Logger *slog.Logger
}

// NewRouter builds the request pipeline: resolve the tenant, bind its data
// store, decode the caller, then audit, cache and authorize around the
// route handlers.
func NewRouter(cfg *config.Config, deps Deps) http.Handler {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	// Services
	authService := service.NewAuthService(deps.Users, deps.Tokens, deps.Audit, log).
		WithLoginThrottle(deps.Limiter, cfg.LoginAttemptsPerMinute)
	tenantService := service.NewTenantService(deps.Tenants, deps.Directory, deps.Jobs, cfg.HostMainDomain, log)
	userService := service.NewUserService(deps.Users, deps.Roles, deps.Tokens, deps.Jobs, log)
	roleService := service.NewRoleService(deps.Roles)

	// Handlers
	accountHandler := handler.NewAccountHandler(authService, log)
	userHandler := handler.NewUserHandler(userService)
	roleHandler := handler.NewRoleHandler(roleService)
	tenantHandler := handler.NewTenantHandler(tenantService)
	auditHandler := handler.NewAuditHandler(deps.Audit, cfg.CORSAllowedOrigins, log)
	billingHandler := handler.NewBillingHandler()
	healthHandler := handler.NewHealthHandler(deps.Checks, log)

	engine := security.NewPolicyEngine(cfg.MultiTenancyEnabled(), log)
	require := func(req security.Requirement) func(http.Handler) http.Handler {
		return middleware.Require(engine, req)
	}
	resolver := tenancy.NewResolver(cfg.MultiTenancyStrategy, cfg.HostMainDomain)
	identity := middleware.NewIdentityDecoder(deps.Tokens, deps.Users, deps.Roles, log)
	responseCache := httpcache.New(deps.Cache, cfg.CacheTTL, log)

	r := chi.NewRouter()
	r.Use(
		middleware.RequestContext(log),
		middleware.AccessLog,
		metrics.HTTPMetricsMiddleware,
		middleware.Recover,
		otelhttp.NewMiddleware(serviceName),
		middleware.RejectSuspiciousPaths,
		cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSAllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", tenancy.TenantHeader, "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}),
	)

	r.Get("/healthz", healthHandler.Health)
	r.Get("/readyz", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		if cfg.DomainGuardEnabled && cfg.HostMainDomain != "" {
			r.Use(tenancy.DomainGuard(cfg.HostMainDomain, deps.Directory, log))
		}
		r.Use(
			resolver.Middleware,
			deps.Binder.Middleware,
			identity.Middleware,
			middleware.RateLimitMiddleware(deps.Limiter),
			middleware.ValidateJSONContentType,
			middleware.AuditMiddleware(deps.Audit),
			responseCache.Handler,
		)

		r.Route("/account", func(r chi.Router) {
			r.Post("/login", accountHandler.Login)
			r.Post("/refresh", accountHandler.Refresh)
			r.Post("/activate", accountHandler.Activate)
			r.With(middleware.Authenticated).Post("/logout", accountHandler.Logout)
			r.With(middleware.Authenticated).Get("/me", accountHandler.Me)
		})

		r.Route("/users", func(r chi.Router) {
			r.With(require(security.RequireAny(domain.PermUserView, domain.PermUserReadAndWrite))).
				Get("/", userHandler.List)
			r.With(require(security.RequireAny(domain.PermUserReadAndWrite).Active())).
				Post("/", userHandler.Create)
			r.With(require(security.RequireAny(domain.PermUserView, domain.PermUserReadAndWrite).WithSelfAccess())).
				Get("/{id}", userHandler.Get)
			r.With(require(security.RequireAny(domain.PermUserReadAndWrite).WithSelfAccess())).
				Put("/{id}", userHandler.Update)
			r.With(require(security.RequireAny(domain.PermUserDelete).Active())).
				Delete("/{id}", userHandler.Delete)
		})

		r.With(require(security.RequireAny(domain.PermRoleView, domain.PermRoleReadAndWrite))).
			Get("/roles/", roleHandler.List)

		r.Route("/tenants", func(r chi.Router) {
			r.With(require(security.RequireAll(domain.PermHostManageTenants))).
				Get("/", tenantHandler.List)
			r.With(require(security.RequireAll(domain.PermHostManageTenants))).
				Post("/", tenantHandler.Create)
			r.With(require(security.RequireAll(domain.PermHostManageTenants))).
				Delete("/{id}", tenantHandler.Delete)
			r.With(require(security.RequireAny(domain.PermHostManageTenants, domain.PermManageTenantSettings))).
				Put("/{id}/features", tenantHandler.UpdateFeatures)
		})

		r.Route("/audit-logs", func(r chi.Router) {
			r.Use(require(security.RequireAny(domain.PermFullAccess, domain.PermManageTenantSettings)))
			r.Get("/", auditHandler.List)
			r.Get("/stream", auditHandler.Stream)
		})

		r.With(require(security.RequireAny(domain.PermManageBilling, domain.PermManageProductsAndPricing).
			WithFeature(domain.FeatureStripe))).
			Get("/billing/plans", billingHandler.Plans)
	})

	return r
}
