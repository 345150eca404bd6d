package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	slogctx "github.com/veqryn/slog-context"
	"go.opentelemetry.io/otel/attribute"

	"github.com/yourorg/saasforge/internal/apperr"
	"github.com/yourorg/saasforge/internal/domain"
	"github.com/yourorg/saasforge/internal/infrastructure/logger"
	"github.com/yourorg/saasforge/internal/observability/metrics"
	"github.com/yourorg/saasforge/internal/observability/tracing"
)

// Payloads, one per label.
type (
	PostTenantCreation struct {
		AdminEmail        string `json:"admin_email"`
		AdminPasswordHash string `json:"admin_password_hash"`
	}
	PostTenantDeletion struct{}
	Email              struct {
		To      []string `json:"to"`
		Subject string   `json:"subject"`
		Body    string   `json:"body"`
	}
	DNSUpdate struct {
		// Subdomain is the full host, e.g. beta.fsrapp.com.
		Subdomain string `json:"subdomain"`
		Delete    bool   `json:"delete,omitempty"`
	}
	PostDeleteCleanup struct {
		UserID string `json:"user_id"`
	}
)

// SchemaManager creates and drops tenant databases.
type SchemaManager interface {
	InitSchema(ctx context.Context, h domain.DataHandle) error
	DropSchema(ctx context.Context, h domain.DataHandle) error
}

// TenantForgetter drops in-process state kept for a tenant.
type TenantForgetter interface {
	Forget(tenantID string)
}

// ScopeInvalidator purges cached responses of one principal.
type ScopeInvalidator interface {
	InvalidateScope(ctx context.Context, userID, tenantID string) error
}

// Mailer delivers one email.
type Mailer interface {
	Send(ctx context.Context, msg Email) error
}

// DNSUpdater maintains the DNS record of a tenant subdomain.
type DNSUpdater interface {
	UpsertRecord(ctx context.Context, name string) error
	DeleteRecord(ctx context.Context, name string) error
}

// ErrMissingTenant is returned for tenant jobs enqueued without a tenant.
var ErrMissingTenant = errors.New("job requires a tenant id")

// Tasks holds the job implementations. Every job is safe to run again after
// a partial or complete earlier run.
type Tasks struct {
	schemas SchemaManager
	users   domain.UserRepository
	roles   domain.RoleRepository
	forget  TenantForgetter
	cache   ScopeInvalidator
	mailer  Mailer
	dns     DNSUpdater
	logger  *slog.Logger
	now     func() time.Time
}

// TasksConfig lists the collaborators of Tasks.
type TasksConfig struct {
	Schemas SchemaManager
	Users   domain.UserRepository
	Roles   domain.RoleRepository
	Forget  TenantForgetter
	Cache   ScopeInvalidator
	Mailer  Mailer
	DNS     DNSUpdater
	Logger  *slog.Logger
}

func NewTasks(cfg TasksConfig) *Tasks {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mailer := cfg.Mailer
	if mailer == nil {
		mailer = NewLogMailer(logger)
	}
	dns := cfg.DNS
	if dns == nil {
		dns = noopDNS{}
	}
	return &Tasks{
		schemas: cfg.Schemas,
		users:   cfg.Users,
		roles:   cfg.Roles,
		forget:  cfg.Forget,
		cache:   cfg.Cache,
		mailer:  mailer,
		dns:     dns,
		logger:  logger,
		now:     time.Now,
	}
}

// Process decodes an envelope and runs the job registered for label.
func (t *Tasks) Process(ctx context.Context, label string, body []byte) error {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("decode job envelope: %v: %w", err, asynq.SkipRetry)
	}

	ctx = slogctx.With(ctx, slog.String("job", label), slog.String("tenant_id", env.TenantID))
	if env.RequestID != "" {
		ctx = logger.WithRequestID(ctx, env.RequestID)
	}
	ctx, span := tracing.Start(ctx, "job "+label,
		attribute.String("job.label", label),
		attribute.String("tenant.id", env.TenantID),
	)
	start := time.Now()
	err := t.run(ctx, label, env)
	tracing.End(span, err)
	metrics.ObserveJob(label, metrics.Result(err), time.Since(start))

	log := slogctx.FromCtx(ctx)
	if err != nil {
		log.Error("job failed", slog.String("error", err.Error()))
		return err
	}
	log.Info("job completed", slog.Duration("duration", time.Since(start)))
	return nil
}

func (t *Tasks) run(ctx context.Context, label string, env Envelope) error {
	switch label {
	case LabelPostTenantCreation:
		var p PostTenantCreation
		if err := decode(env, &p); err != nil {
			return err
		}
		return t.postTenantCreation(ctx, env.TenantID, p)
	case LabelPostTenantDeletion:
		return t.postTenantDeletion(ctx, env.TenantID)
	case LabelEmailSending:
		var p Email
		if err := decode(env, &p); err != nil {
			return err
		}
		return t.mailer.Send(ctx, p)
	case LabelUpdateTenantDNS:
		var p DNSUpdate
		if err := decode(env, &p); err != nil {
			return err
		}
		if p.Delete {
			return t.dns.DeleteRecord(ctx, p.Subdomain)
		}
		return t.dns.UpsertRecord(ctx, p.Subdomain)
	case LabelPostDeleteCleanup:
		var p PostDeleteCleanup
		if err := decode(env, &p); err != nil {
			return err
		}
		return t.cache.InvalidateScope(ctx, p.UserID, env.TenantID)
	default:
		return fmt.Errorf("unknown job %q: %w", label, asynq.SkipRetry)
	}
}

func decode(env Envelope, v any) error {
	if err := json.Unmarshal(env.Payload, v); err != nil {
		return fmt.Errorf("decode job payload: %v: %w", err, asynq.SkipRetry)
	}
	return nil
}

// postTenantCreation migrates the tenant schema, seeds the default roles and
// creates the admin user. Existing roles and users are left alone.
func (t *Tasks) postTenantCreation(ctx context.Context, tenantID string, p PostTenantCreation) error {
	if tenantID == "" {
		return fmt.Errorf("%w: %w", ErrMissingTenant, asynq.SkipRetry)
	}
	h := domain.TenantHandle(tenantID)
	if err := t.schemas.InitSchema(ctx, h); err != nil {
		return err
	}

	var adminRoleID string
	for _, tmpl := range domain.DefaultRoles(tenantID) {
		role, err := t.ensureRole(ctx, h, tmpl)
		if err != nil {
			return err
		}
		if role.Name == domain.RoleAdmin {
			adminRoleID = role.ID
		}
	}

	if p.AdminEmail == "" {
		return nil
	}
	_, err := t.users.GetByEmail(ctx, h, p.AdminEmail)
	if err == nil {
		return nil
	}
	if !apperr.Is(err, apperr.KindNotFound) {
		return err
	}
	now := t.now().UTC()
	admin := &domain.User{
		Email:        p.AdminEmail,
		PasswordHash: p.AdminPasswordHash,
		TenantID:     tenantID,
		RoleID:       adminRoleID,
		IsActive:     true,
		ActivatedAt:  &now,
	}
	if err := t.users.Create(ctx, h, admin); err != nil && !apperr.Is(err, apperr.KindConflict) {
		return err
	}
	return nil
}

func (t *Tasks) ensureRole(ctx context.Context, h domain.DataHandle, tmpl *domain.Role) (*domain.Role, error) {
	existing, err := t.roles.GetByName(ctx, h, tmpl.Name)
	if err == nil {
		return existing, nil
	}
	if !apperr.Is(err, apperr.KindNotFound) {
		return nil, err
	}
	if err := t.roles.Create(ctx, h, tmpl); err != nil {
		if apperr.Is(err, apperr.KindConflict) {
			// Lost a race with a concurrent run.
			return t.roles.GetByName(ctx, h, tmpl.Name)
		}
		return nil, err
	}
	return tmpl, nil
}

// postTenantDeletion drops the tenant schema and forgets binder state.
func (t *Tasks) postTenantDeletion(ctx context.Context, tenantID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: %w", ErrMissingTenant, asynq.SkipRetry)
	}
	if err := t.schemas.DropSchema(ctx, domain.TenantHandle(tenantID)); err != nil {
		return err
	}
	if t.forget != nil {
		t.forget.Forget(tenantID)
	}
	return nil
}

type noopDNS struct{}

func (noopDNS) UpsertRecord(context.Context, string) error { return nil }
func (noopDNS) DeleteRecord(context.Context, string) error { return nil }
