package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/yourorg/saasforge/internal/infrastructure/logger"
	"github.com/yourorg/saasforge/internal/repository"
	"github.com/yourorg/saasforge/internal/security/audit"
	"github.com/yourorg/saasforge/internal/security/auth"
	"github.com/yourorg/saasforge/internal/service"
	"github.com/yourorg/saasforge/internal/tenancy"
	"github.com/yourorg/saasforge/internal/worker"
	"github.com/yourorg/saasforge/pkg/config"
	"github.com/yourorg/saasforge/pkg/database"
)

// app holds the collaborators a command needs. Commands that do not touch
// the database leave pool nil.
type app struct {
	cfg  *config.Config
	log  *slog.Logger
	pool *database.ConnectionPool
	jobs *worker.AsynqDispatcher

	tenants *service.TenantService
	users   *service.UserService
	sink    *audit.Sink

	closers []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// open connects to Postgres and Redis and builds the services.
func (a *app) open(ctx context.Context) error {
	pool, err := database.NewConnectionPool(ctx, &database.Config{DSN: a.cfg.DSN(), MaxOpenConns: 4}, a.log)
	if err != nil {
		return err
	}
	a.pool = pool
	a.closers = append(a.closers, func() { _ = pool.Close() })

	db := pool.Gorm()
	if err := repository.RegisterModels(ctx, db); err != nil {
		return err
	}

	jobs, err := worker.NewAsynqDispatcher(a.cfg.RedisURL, a.cfg.JobMaxRetry, a.log)
	if err != nil {
		return err
	}
	a.jobs = jobs
	a.closers = append(a.closers, func() { _ = jobs.Close() })

	tokens, err := auth.NewTokenManager(auth.TokenConfig{
		Secret:           a.cfg.JWT.Secret,
		Algorithm:        a.cfg.JWT.Algorithm,
		AccessTTL:        a.cfg.JWT.AccessTTL,
		RefreshSecret:    a.cfg.JWT.RefreshSecret,
		RefreshAlgorithm: a.cfg.JWT.RefreshAlgorithm,
		RefreshTTL:       a.cfg.JWT.RefreshTTL,
		PurposeTTL:       a.cfg.JWT.PurposeTTL,
		Issuer:           a.cfg.JWT.Issuer,
	})
	if err != nil {
		return err
	}

	tenantRepo := repository.NewPostgresTenantRepository(db, a.log)
	// Servers keep their own directory caches; this one only serves the
	// invalidation calls of the tenant service.
	directory, err := tenancy.NewDirectory(tenantRepo, time.Second, a.log)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, directory.Close)

	a.tenants = service.NewTenantService(tenantRepo, directory, jobs, a.cfg.HostMainDomain, a.log)
	a.users = service.NewUserService(
		repository.NewPostgresUserRepository(db, a.log),
		repository.NewPostgresRoleRepository(db, a.log),
		tokens, jobs, a.log,
	)
	return nil
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "saasctl",
		Short:         "Administer a saasforge deployment",
		Long:          "saasctl migrates the main database, manages tenants and host admins, and reads audit logs.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			a.cfg = cfg
			a.log = logger.NewLogger(cfg.LogLevel)
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			a.close()
		},
	}

	root.AddCommand(
		newMigrateCmd(a),
		newTenantCmd(a),
		newHostAdminCmd(a),
		newAuditCmd(a),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := &app{}
	if err := newRootCmd(a).ExecuteContext(ctx); err != nil {
		a.close()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
