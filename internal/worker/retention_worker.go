package worker

import (
	"context"
	"log/slog"
	"time"
)

// AuditPruner removes audit files dated before a cutoff.
type AuditPruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int, error)
}

// RetentionWorker periodically drops audit log files older than the
// retention window.
type RetentionWorker struct {
	pruner    AuditPruner
	retention time.Duration
	interval  time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

func NewRetentionWorker(pruner AuditPruner, retention, interval time.Duration, logger *slog.Logger) *RetentionWorker {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &RetentionWorker{
		pruner:    pruner,
		retention: retention,
		interval:  interval,
		logger:    logger,
		now:       time.Now,
	}
}

// Start runs one pass immediately, then one per interval until ctx ends.
func (w *RetentionWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("audit retention worker started",
		slog.Duration("retention", w.retention),
		slog.Duration("interval", w.interval),
	)
	w.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("audit retention worker stopped")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce prunes everything older than the retention window.
func (w *RetentionWorker) RunOnce(ctx context.Context) int {
	cutoff := w.now().Add(-w.retention)
	removed, err := w.pruner.Prune(ctx, cutoff)
	if err != nil {
		w.logger.Error("audit retention pass failed",
			slog.Int("removed", removed),
			slog.String("error", err.Error()),
		)
		return removed
	}
	if removed > 0 {
		w.logger.Info("old audit files removed", slog.Int("removed", removed), slog.Time("cutoff", cutoff))
	}
	return removed
}
