package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	slogctx "github.com/veqryn/slog-context"

	"github.com/yourorg/saasforge/internal/infrastructure/logger"
	"github.com/yourorg/saasforge/internal/observability/metrics"
)

// Job labels.
const (
	LabelPostTenantCreation = "post-tenant-creation"
	LabelPostTenantDeletion = "post-tenant-deletion"
	LabelEmailSending       = "email-sending"
	LabelUpdateTenantDNS    = "update-tenant-dns"
	LabelPostDeleteCleanup  = "post-delete-cleanup"
)

const (
	DefaultMaxRetry   = 5
	DefaultRetryDelay = 60 * time.Second
)

// Dispatcher hands work to the background runner. Enqueue returns once the
// job is accepted; the job's own outcome is never reported back.
type Dispatcher interface {
	Enqueue(ctx context.Context, label string, payload any, tenantID string) error
}

// Envelope is the wire form of every job.
type Envelope struct {
	TenantID  string          `json:"tenant_id,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

func encode(ctx context.Context, payload any, tenantID string) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode job payload: %w", err)
	}
	return json.Marshal(Envelope{
		TenantID:  tenantID,
		RequestID: logger.RequestID(ctx),
		Payload:   raw,
	})
}

// AsynqDispatcher enqueues jobs on Redis through asynq.
type AsynqDispatcher struct {
	client   *asynq.Client
	maxRetry int
	logger   *slog.Logger
}

// NewAsynqDispatcher connects to the Redis at redisURL.
func NewAsynqDispatcher(redisURL string, maxRetry int, logger *slog.Logger) (*AsynqDispatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if maxRetry < 0 {
		maxRetry = DefaultMaxRetry
	}
	return &AsynqDispatcher{client: asynq.NewClient(opt), maxRetry: maxRetry, logger: logger}, nil
}

func (d *AsynqDispatcher) Enqueue(ctx context.Context, label string, payload any, tenantID string) error {
	b, err := encode(ctx, payload, tenantID)
	if err != nil {
		metrics.ObserveJobEnqueued(label, "error")
		return err
	}
	info, err := d.client.EnqueueContext(ctx, asynq.NewTask(label, b), asynq.MaxRetry(d.maxRetry))
	metrics.ObserveJobEnqueued(label, metrics.Result(err))
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", label, err)
	}
	slogctx.FromCtx(ctx).Info("job enqueued",
		slog.String("label", label),
		slog.String("job_id", info.ID),
		slog.String("tenant_id", tenantID),
	)
	return nil
}

func (d *AsynqDispatcher) Close() error {
	return d.client.Close()
}

// InlineDispatcher runs jobs synchronously in the caller's goroutine. It is
// used by tests and single-process development setups.
type InlineDispatcher struct {
	tasks *Tasks
}

func NewInlineDispatcher(tasks *Tasks) *InlineDispatcher {
	return &InlineDispatcher{tasks: tasks}
}

func (d *InlineDispatcher) Enqueue(ctx context.Context, label string, payload any, tenantID string) error {
	b, err := encode(ctx, payload, tenantID)
	if err != nil {
		metrics.ObserveJobEnqueued(label, "error")
		return err
	}
	metrics.ObserveJobEnqueued(label, "success")
	// Detached so a finished request does not cancel its own jobs.
	return d.tasks.Process(context.WithoutCancel(ctx), label, b)
}
