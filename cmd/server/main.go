package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"task-tracker-api/internal/app"
	"task-tracker-api/internal/auth"
	"task-tracker-api/internal/cache"
	"task-tracker-api/internal/clock"
	"task-tracker-api/internal/config"
	"task-tracker-api/internal/database"
	"task-tracker-api/internal/handlers"
	"task-tracker-api/internal/params"
	"task-tracker-api/internal/routes"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

// Set via -ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:          "taskd",
		Short:        "Task tracker API with missed-task strategies and A/B experiments",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API and the expiry sweep",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runServe(cmd.Context(), configPath)
			},
		},
		&cobra.Command{
			Use:   "sweep",
			Short: "Run one expiry sweep and exit",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runSweep(cmd.Context(), configPath)
			},
		},
		&cobra.Command{
			Use:   "seed",
			Short: "Insert missing default parameters",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runSeed(cmd.Context(), configPath)
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print build information",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "taskd %s (commit %s, built %s)\n", Version, Commit, Date)
			},
		},
	)
	return root
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if cfg.Format == "text" {
		h = slog.NewTextHandler(os.Stderr, opts)
	} else {
		h = slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.New(h)
}

// bootstrap loads config, opens the database and applies migrations.
func bootstrap(configPath string) (*config.Config, *gorm.DB, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)
	auth.Configure(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.Audience, cfg.Auth.TokenTTL)

	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, db, logger, nil
}

func closeDB(db *gorm.DB, logger *slog.Logger) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	if err := sqlDB.Close(); err != nil {
		logger.Warn("close database", "error", err)
	}
}

func buildServices(cfg *config.Config, db *gorm.DB, logger *slog.Logger) (*app.Services, error) {
	store, err := cache.New(cfg.Cache, nil, logger.With("component", "cache"))
	if err != nil {
		return nil, err
	}
	return app.New(db, store, app.Options{
		ParamsTTL:     cfg.Params.CacheTTL,
		MissCountTTL:  cfg.Cache.MissCountTTL,
		SweepInterval: cfg.Sweep.Interval,
		Location:      cfg.Location(),
		Clock:         clock.Real{},
		Logger:        logger,
	}), nil
}

func runServe(ctx context.Context, configPath string) error {
	cfg, db, logger, err := bootstrap(configPath)
	if err != nil {
		return err
	}
	defer closeDB(db, logger)

	if cfg.Params.SeedOnStart {
		n, err := params.Seed(ctx, db, params.Defaults)
		if err != nil {
			return err
		}
		logger.Info("parameters seeded", "inserted", n)
	}

	svc, err := buildServices(cfg, db, logger)
	if err != nil {
		return err
	}
	defer svc.Store.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Sweep.Enabled {
		if err := svc.Scheduler.Start(ctx); err != nil {
			return err
		}
		defer svc.Scheduler.Stop()
	}

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           routes.SetupRoutes(handlers.NewFromServices(svc), logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", srv.Addr, "version", Version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runSweep(ctx context.Context, configPath string) error {
	cfg, db, logger, err := bootstrap(configPath)
	if err != nil {
		return err
	}
	defer closeDB(db, logger)

	svc, err := buildServices(cfg, db, logger)
	if err != nil {
		return err
	}
	defer svc.Store.Close()

	n, err := svc.Sweeper.Run(ctx)
	if err != nil {
		return err
	}
	logger.Info("sweep finished", "transitioned", n)
	return nil
}

func runSeed(ctx context.Context, configPath string) error {
	_, db, logger, err := bootstrap(configPath)
	if err != nil {
		return err
	}
	defer closeDB(db, logger)

	n, err := params.Seed(ctx, db, params.Defaults)
	if err != nil {
		return err
	}
	logger.Info("parameters seeded", "inserted", n)
	return nil
}
