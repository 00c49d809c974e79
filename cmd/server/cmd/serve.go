package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/Togather-Foundation/rsvp/internal/api"
	"github.com/Togather-Foundation/rsvp/internal/audit"
	"github.com/Togather-Foundation/rsvp/internal/auth"
	"github.com/Togather-Foundation/rsvp/internal/config"
	"github.com/Togather-Foundation/rsvp/internal/metrics"
	"github.com/Togather-Foundation/rsvp/internal/storage/postgres"
	"github.com/Togather-Foundation/rsvp/internal/telemetry"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const dbStatsInterval = 15 * time.Second

type serveOptions struct {
	host string
	port int
}

func newServeCommand(root *rootOptions) *cobra.Command {
	var opts serveOptions

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the RSVP HTTP server",
		Long: `Start the RSVP HTTP server and begin accepting API requests.

The server shuts down gracefully on SIGINT or SIGTERM, finishing in-flight
requests within SERVER_SHUTDOWN_TIMEOUT_SECONDS.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, root, opts)
		},
	}

	serveCmd.Flags().StringVar(&opts.host, "host", "", "server host address (default: 0.0.0.0)")
	serveCmd.Flags().IntVar(&opts.port, "port", 0, "server port (default: 8080)")
	return serveCmd
}

// applyServeFlags overrides the listen address with non-zero flag values.
func applyServeFlags(cfg *config.Config, opts serveOptions) {
	if opts.host != "" {
		cfg.Server.Host = opts.host
	}
	if opts.port != 0 {
		cfg.Server.Port = opts.port
	}
}

func runServe(cmd *cobra.Command, root *rootOptions, opts serveOptions) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	applyServeFlags(&cfg, opts)

	logger := config.NewLogger(cfg.Logging)
	build := buildInfo()
	logger.Info().
		Str("version", build.Version).
		Str("git_commit", build.GitCommit).
		Str("environment", cfg.Environment).
		Msg("starting rsvp server")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Init(build.Version, build.GitCommit, build.BuildDate)

	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.Tracing, build.Version)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn().Err(err).Msg("tracing shutdown failed")
		}
	}()

	if cfg.Database.AutoMigrate {
		if err := postgres.MigrateUp(cfg.Database.URL, migrationsPath(cfg.Database)); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
		logger.Info().Msg("database migrations applied")
	}

	repo, pool, err := openRepository(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	router, err := api.NewRouter(api.Dependencies{
		Config:     cfg,
		Logger:     logger,
		Repository: repo,
		Verifier:   auth.NewJWTVerifier(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.JWTAudience, cfg.Auth.JWTExpiry),
		Pool:       pool,
		Audit:      audit.NewLogger(logger),
		Build:      build,
	})
	if err != nil {
		return fmt.Errorf("build router: %w", err)
	}
	defer router.Close()

	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:           router,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		metrics.NewDBCollector(pool).Start(groupCtx, dbStatsInterval)
		return nil
	})

	group.Go(func() error {
		logger.Info().Str("addr", server.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info().Dur("timeout", cfg.Server.ShutdownTimeout).Msg("shutting down http server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return nil
	})

	if err := group.Wait(); err != nil {
		logger.Error().Err(err).Msg("server stopped with error")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
