package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"comlab-status-backend/config"
	"comlab-status-backend/internal/api"
	"comlab-status-backend/internal/app"
	"comlab-status-backend/internal/auditor"
	"comlab-status-backend/internal/logging"
	"comlab-status-backend/internal/metrics"
)

func main() {
	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration from %s: %v\n", configPath, err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log)
	logger.Info().Str("path", configPath).Msg("configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, cfg, logger)
	stop()
	if err != nil {
		logger.Error().Err(err).Msg("service stopped with error")
		os.Exit(1)
	}
}

// run serves until ctx is cancelled. Every resource it opens is closed before
// it returns.
func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	if !cfg.Push.Enabled() {
		logger.Warn().Msg("VAPID keys are not configured, push notifications are disabled")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	services, err := app.Build(ctx, cfg, logger, app.Options{Notifications: true})
	if err != nil {
		return fmt.Errorf("assemble services: %w", err)
	}
	defer func() {
		if err := services.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close connections")
		}
	}()

	metrics.Register()

	if _, err := services.Registry.Initialize(ctx, cfg.Labs.Count); err != nil {
		return fmt.Errorf("initialize labs: %w", err)
	}

	if services.Pool != nil {
		services.Pool.Start(ctx)
	}

	auditSvc := auditor.NewService(cfg.Auditor, services.Registry, logger)
	go auditSvc.Run(ctx)

	router := api.NewRouter(api.NewHandler(api.Deps{
		Store:    services.Store,
		Registry: services.Registry,
		History:  services.History,
		WebPush:  services.WebPush,
		Config:   cfg,
		Logger:   logger,
	}))
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Int("port", cfg.Server.Port).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("HTTP server: %w", err)
	case <-ctx.Done():
	}
	logger.Info().Msg("shutdown signal received, stopping services")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server shutdown: %w", err)
	}

	logger.Info().Msg("server gracefully stopped")
	return nil
}
