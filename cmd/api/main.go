package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/attaboy/racegame/internal/app"
	"github.com/attaboy/racegame/internal/auth"
	"github.com/attaboy/racegame/internal/guard"
	"github.com/attaboy/racegame/internal/infra"
	"github.com/attaboy/racegame/internal/provider"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Webhook event ids are remembered for a day; the reconciler's settled
// markers cover anything older.
const webhookEventTTL = 24 * time.Hour

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load config
	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}

	adminExpiry, err := time.ParseDuration(cfg.JWTAdminExpiry)
	if err != nil {
		return fmt.Errorf("parse admin JWT expiry: %w", err)
	}

	if cfg.RunMigrations {
		if err := infra.RunMigrations(cfg.DSN(), cfg.MigrationsDir, logger); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}

	// Connect to Postgres
	pool, err := infra.NewPostgresPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()
	logger.Info("connected to postgres")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	svcs, err := app.NewServices(cfg, pool, reg, logger)
	if err != nil {
		return err
	}
	defer svcs.Wait()

	// Settings are required before the first bet; later refreshes keep the last good snapshot.
	if err := svcs.Settings.Refresh(ctx); err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	scheduler := infra.NewScheduler(cfg.Location(), logger)
	if err := scheduler.Every(ctx, cfg.SettingsRefreshSpec, "settings_refresh", svcs.Settings.Refresh); err != nil {
		return fmt.Errorf("schedule settings refresh: %w", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	r := app.NewRouter(app.RouterDeps{
		DB:           pool,
		Ready:        func(ctx context.Context) error { return infra.HealthCheck(ctx, pool) },
		Bets:         svcs.Bets,
		Settler:      svcs.Reconciler,
		Notifier:     svcs.Notify,
		Advisor:      svcs.Notify,
		Jobs:         svcs.Async,
		Auditor:      svcs.Engine,
		Settings:     svcs.Settings,
		Signer:       provider.NewWebhookSigner(cfg.WebhookSecret),
		Events:       guard.NewIdempotencyGuard(webhookEventTTL),
		JWTMgr:       auth.NewJWTManager(cfg.JWTSecret, adminExpiry),
		AdminLimiter: guard.NewRateLimiter(60, time.Minute),
		Metrics:      promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		CORSOrigins:  cfg.CORSAllowedOrigins,
		Logger:       logger,
	})

	// Start server
	addr := fmt.Sprintf(":%d", cfg.APIPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	// Shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	logger.Info("server stopped gracefully")
	return nil
}
