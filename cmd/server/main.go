package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/yourorg/saasforge/internal/handler"
	"github.com/yourorg/saasforge/internal/httpcache"
	"github.com/yourorg/saasforge/internal/infrastructure/logger"
	"github.com/yourorg/saasforge/internal/infrastructure/redis"
	"github.com/yourorg/saasforge/internal/observability/tracing"
	"github.com/yourorg/saasforge/internal/repository"
	"github.com/yourorg/saasforge/internal/security/audit"
	"github.com/yourorg/saasforge/internal/security/auth"
	"github.com/yourorg/saasforge/internal/security/ratelimit"
	"github.com/yourorg/saasforge/internal/server"
	"github.com/yourorg/saasforge/internal/tenancy"
	"github.com/yourorg/saasforge/internal/worker"
	"github.com/yourorg/saasforge/pkg/config"
	"github.com/yourorg/saasforge/pkg/database"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize structured logger and tracing
	log := logger.NewLogger(cfg.LogLevel)
	slog.SetDefault(log)
	log.Info("starting saasforge server",
		slog.String("environment", cfg.Environment),
		slog.String("multi_tenancy", cfg.MultiTenancyStrategy),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.Init(ctx, log, cfg.OTLPEndpoint, "saasforge", cfg.Environment)
	if err != nil {
		log.Error("failed to initialize tracing", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 3. Initialize Postgres and migrate the main database
	pool, err := database.NewConnectionPool(ctx, &database.Config{DSN: cfg.DSN()}, log)
	if err != nil {
		log.Error("failed to connect to Postgres", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	db := pool.Gorm()
	if err := repository.RegisterModels(ctx, db); err != nil {
		log.Error("failed to register models", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := repository.Migrate(ctx, db); err != nil {
		log.Error("failed to migrate main database", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Initialize Redis client
	redisClient, err := redis.NewClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Error("failed to connect to Redis", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer redisClient.Close()

	// 5. Initialize repositories and tenancy
	tenantRepo := repository.NewPostgresTenantRepository(db, log)
	userRepo := repository.NewPostgresUserRepository(db, log)
	roleRepo := repository.NewPostgresRoleRepository(db, log)
	schemas := repository.NewSchemas(db, log)

	directory, err := tenancy.NewDirectory(tenantRepo, time.Minute, log)
	if err != nil {
		log.Error("failed to create tenant directory", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer directory.Close()
	binder := tenancy.NewBinder(directory, schemas, log)
	cacheStore := httpcache.NewRedisStore(redisClient)

	// 6. Initialize security components
	tokenManager, err := auth.NewTokenManager(auth.TokenConfig{
		Secret:           cfg.JWT.Secret,
		Algorithm:        cfg.JWT.Algorithm,
		AccessTTL:        cfg.JWT.AccessTTL,
		RefreshSecret:    cfg.JWT.RefreshSecret,
		RefreshAlgorithm: cfg.JWT.RefreshAlgorithm,
		RefreshTTL:       cfg.JWT.RefreshTTL,
		PurposeTTL:       cfg.JWT.PurposeTTL,
		Issuer:           cfg.JWT.Issuer,
	})
	if err != nil {
		log.Error("invalid token configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	rateLimiter := ratelimit.NewLimiter(cfg.RateLimitPerMinute, time.Minute)
	auditSink, err := audit.NewSink(cfg.AuditLogDir, log)
	if err != nil {
		log.Error("failed to open audit log directory", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 7. Initialize background jobs
	var mailer worker.Mailer = worker.NewLogMailer(log)
	if cfg.SMTP.Host != "" {
		mailer = worker.NewSMTPMailer(worker.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			User:     cfg.SMTP.User,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		}, log)
	}
	var dns worker.DNSUpdater
	if cfg.Cloudflare.APIToken != "" && cfg.Cloudflare.ZoneID != "" {
		dns = worker.NewCloudflareDNS(worker.CloudflareConfig{
			APIToken: cfg.Cloudflare.APIToken,
			ZoneID:   cfg.Cloudflare.ZoneID,
			Target:   cfg.Cloudflare.Target,
			BaseURL:  cfg.Cloudflare.BaseURL,
		}, log)
	}
	tasks := worker.NewTasks(worker.TasksConfig{
		Schemas: schemas,
		Users:   userRepo,
		Roles:   roleRepo,
		Forget:  binder,
		Cache:   cacheStore,
		Mailer:  mailer,
		DNS:     dns,
		Logger:  log,
	})

	dispatcher, err := worker.NewAsynqDispatcher(cfg.RedisURL, cfg.JobMaxRetry, log)
	if err != nil {
		log.Error("failed to create job dispatcher", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer dispatcher.Close()

	var jobServer *worker.Server
	if cfg.WorkerEnabled {
		jobServer, err = worker.NewServer(worker.ServerConfig{
			RedisURL:    cfg.RedisURL,
			Concurrency: cfg.WorkerConcurrency,
			RetryDelay:  cfg.JobRetryDelay,
		}, tasks, log)
		if err != nil {
			log.Error("failed to create job worker", slog.String("error", err.Error()))
			os.Exit(1)
		}
		if err := jobServer.Start(); err != nil {
			log.Error("failed to start job worker", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	if cfg.AuditRetention > 0 {
		retention := worker.NewRetentionWorker(auditSink, cfg.AuditRetention, time.Hour, log)
		go retention.Start(ctx)
	}

	// 8. Setup HTTP routes
	router := server.NewRouter(cfg, server.Deps{
		Tenants:   tenantRepo,
		Users:     userRepo,
		Roles:     roleRepo,
		Directory: directory,
		Binder:    binder,
		Tokens:    tokenManager,
		Audit:     auditSink,
		Cache:     cacheStore,
		Jobs:      dispatcher,
		Limiter:   rateLimiter,
		Checks: map[string]handler.Pinger{
			"postgres": handler.PingFunc(pool.Health),
			"redis":    redisClient,
		},
		Logger: log,
	})

	// 9. Start HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info("server starting",
		slog.Int("port", cfg.ServerPort),
		slog.Int("rate_limit", cfg.RateLimitPerMinute),
		slog.Bool("worker", cfg.WorkerEnabled),
	)

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", slog.String("error", err.Error()))
			sigChan <- syscall.SIGTERM
		}
	}()

	// Wait for shutdown signal
	<-sigChan
	log.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", slog.String("error", err.Error()))
	}
	cancel()
	if jobServer != nil {
		jobServer.Shutdown()
	}
	rateLimiter.Stop()
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error("tracing shutdown error", slog.String("error", err.Error()))
	}
	log.Info("server stopped")
}
