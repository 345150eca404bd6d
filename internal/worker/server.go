package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// ServerConfig configures the asynq worker.
type ServerConfig struct {
	RedisURL    string
	Concurrency int
	RetryDelay  time.Duration
}

// Server consumes jobs from Redis and runs them through Tasks.
type Server struct {
	srv    *asynq.Server
	mux    *asynq.ServeMux
	logger *slog.Logger
}

func NewServer(cfg ServerConfig, tasks *Tasks, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 10
	}
	delay := cfg.RetryDelay
	if delay <= 0 {
		delay = DefaultRetryDelay
	}

	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: cfg.Concurrency,
		// Fixed backoff between attempts.
		RetryDelayFunc: func(int, error, *asynq.Task) time.Duration {
			return delay
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			logger.Warn("job attempt failed",
				slog.String("label", task.Type()),
				slog.Int("retried", retried),
				slog.Int("max_retry", maxRetry),
				slog.String("error", err.Error()),
			)
		}),
	})

	mux := asynq.NewServeMux()
	for _, label := range []string{
		LabelPostTenantCreation,
		LabelPostTenantDeletion,
		LabelEmailSending,
		LabelUpdateTenantDNS,
		LabelPostDeleteCleanup,
	} {
		mux.HandleFunc(label, func(ctx context.Context, task *asynq.Task) error {
			return tasks.Process(ctx, task.Type(), task.Payload())
		})
	}

	return &Server{srv: srv, mux: mux, logger: logger}, nil
}

// Start begins processing in background goroutines.
func (s *Server) Start() error {
	s.logger.Info("job worker started")
	return s.srv.Start(s.mux)
}

// Shutdown waits for running jobs and stops the worker.
func (s *Server) Shutdown() {
	s.srv.Shutdown()
	s.logger.Info("job worker stopped")
}
