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
	"github.com/attaboy/racegame/internal/infra"
	"github.com/attaboy/racegame/internal/provider"
	"github.com/attaboy/racegame/internal/walletserver"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("wallet server failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}

	pool, err := infra.NewPostgresPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()
	logger.Info("wallet-server connected to postgres")

	svcs, err := app.NewServices(cfg, pool, prometheus.NewRegistry(), logger)
	if err != nil {
		return err
	}
	defer svcs.Wait()

	// Round settlement reads the deduction and rich level tables from settings.
	if err := svcs.Settings.Refresh(ctx); err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	scheduler := infra.NewScheduler(cfg.Location(), logger)
	if err := scheduler.Every(ctx, cfg.SettingsRefreshSpec, "settings_refresh", svcs.Settings.Refresh); err != nil {
		return fmt.Errorf("schedule settings refresh: %w", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Provider adapters
	var joy *provider.JoyAdapter
	if cfg.JoyPrivateKeyPEM != "" {
		joy, err = provider.NewJoyAdapter(cfg.JoyPrivateKeyPEM)
		if err != nil {
			return fmt.Errorf("joy adapter: %w", err)
		}
	} else {
		logger.Warn("JOY_PRIVATE_KEY not set, joy endpoints disabled")
	}

	r := walletserver.NewRouter(walletserver.Deps{
		Games:    svcs.ThirdParty,
		Baishun:  provider.NewBaishunAdapter(cfg.AppKey, cfg.SSTokenCode),
		Joy:      joy,
		ImageDir: cfg.ImageBaseURL,
		Now:      svcs.Clock.Now,
		Logger:   logger,
	})

	addr := fmt.Sprintf(":%d", cfg.WalletServerPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("wallet-server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("wallet-server shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("wallet-server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("wallet-server shutdown failed: %w", err)
	}

	logger.Info("wallet-server stopped gracefully")
	return nil
}
