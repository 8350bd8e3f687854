package cli

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/cobra"

	"github.com/gridpoint-systems/gridpoint/internal/config"
	"github.com/gridpoint-systems/gridpoint/internal/handlers"
	"github.com/gridpoint-systems/gridpoint/internal/ingest"
	"github.com/gridpoint-systems/gridpoint/internal/jobs"
	"github.com/gridpoint-systems/gridpoint/internal/logging"
	"github.com/gridpoint-systems/gridpoint/internal/messaging"
	"github.com/gridpoint-systems/gridpoint/internal/middleware"
	"github.com/gridpoint-systems/gridpoint/internal/queryexec"
	"github.com/gridpoint-systems/gridpoint/internal/queryscope"
	"github.com/gridpoint-systems/gridpoint/internal/ratelimit"
	"github.com/gridpoint-systems/gridpoint/internal/repository"
	"github.com/gridpoint-systems/gridpoint/internal/server"
)

var migrationsPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gridpoint API server",
	Long:  `Runs database migrations, starts the ingestion job workers and serves the HTTP API.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&migrationsPath, "migrations", "file://migrations", "migration source URL")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logging.New(logging.ParseLevel(cfg.Log.Level), cfg.Log.Format)
	logging.SetDefault(log)

	connString := cfg.Database.Postgres.ConnString()

	log.Info("running database migrations")
	m, err := migrate.New(migrationsPath, connString)
	if err != nil {
		return fmt.Errorf("failed to initialize migrations: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info("database migrations completed")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := repository.NewPostgresStore(ctx, connString)
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	defer store.Close()

	executor := ingest.NewExecutor(store, cfg.Ingest.BatchSize)

	jobOpts := jobs.Options{
		SpoolDir:     cfg.Ingest.SpoolDir,
		Workers:      cfg.Ingest.Workers,
		PollInterval: cfg.Ingest.PollInterval,
	}

	var natsClient *messaging.Client
	if cfg.NATS.Enabled {
		natsCfg := messaging.DefaultConfig()
		natsCfg.URL = cfg.NATS.URL
		natsClient, err = messaging.NewClient(natsCfg)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		defer natsClient.Close()

		jobOpts.OnEnqueue = func(jobID string) {
			if err := natsClient.Publish(ctx, cfg.NATS.Subject, []byte(jobID)); err != nil {
				log.Warn("failed to publish job wake-up", logging.JobID(jobID), logging.Err(err))
			}
		}
	}

	manager := jobs.NewManager(store, executor, log, jobOpts)
	if err := manager.Start(ctx); err != nil {
		return fmt.Errorf("failed to start job workers: %w", err)
	}
	defer manager.Stop()

	if natsClient != nil {
		if _, err := natsClient.Subscribe(cfg.NATS.Subject, func([]byte) { manager.Wake() }); err != nil {
			return fmt.Errorf("failed to subscribe to job wake-ups: %w", err)
		}
	}

	limiter, err := ratelimit.NewRedisRateLimiter(
		cfg.Redis.URL, cfg.Ingest.RateLimit, cfg.Ingest.RateWindow, !cfg.Redis.Enabled)
	if err != nil {
		return fmt.Errorf("failed to initialize rate limiter: %w", err)
	}
	defer limiter.Close()

	scoper := queryscope.NewScoper(cfg.Query.DefaultLimit, cfg.Query.MaxLimit)
	runner := queryexec.NewExecutor(store.Pool(), cfg.Query.Timeout)

	handler := handlers.New(store, executor, manager, scoper, runner, limiter, log, handlers.Options{
		AsyncThresholdBytes: cfg.Ingest.AsyncThresholdBytes,
		MaxBodyBytes:        cfg.Ingest.MaxBodyBytes,
	})
	auth := middleware.NewAuthMiddleware(cfg.Auth.JWTSecret)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.NewRouter(handler, auth),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("gridpoint listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("server stopped")
	return nil
}
