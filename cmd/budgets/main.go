package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"budgets/internal/backend"
	"budgets/internal/cache"
	"budgets/internal/cli"
	"budgets/internal/config"
	apphttp "budgets/internal/http"
	applog "budgets/internal/log"
	"budgets/internal/services"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig(cli.SetupLogger("info", applog.ComponentApp))
	logger := cli.SetupLogger(cfg.LogLevel, applog.ComponentApp)

	if err := run(cfg, logger); err != nil {
		logger.Error("Server exited with error", applog.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

func run(cfg *config.Config, logger *applog.Logger) error {
	ctx, stop := cli.SignalContext(logger)
	defer stop()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	res, err := backend.NewFactory(logger.WithComponent(applog.ComponentBackend).Logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		return fmt.Errorf("initialize %s backend: %w", cfg.DataBackend, err)
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", applog.FieldError, err)
		}
	}()

	overviews := cache.NewOverviewCache(cfg.OverviewCacheSize, cfg.OverviewCacheTTL)
	caches := cache.NewManager()
	caches.Register(overviews)
	caches.StartCleanup(time.Minute)
	defer caches.Stop()

	opts := []services.Option{services.WithOverviewCache(overviews)}
	if res.Publisher != nil {
		opts = append(opts, services.WithPublisher(res.Publisher))
	}
	svc := services.NewBudgetService(res.Store, opts...)

	srv := apphttp.NewServer(":"+cfg.Port, svc, logger, apphttp.Options{})

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting budgets server", "port", cfg.Port, "backend", cfg.DataBackend, "events", res.Publisher != nil)
		errCh <- srv.ListenAndServe()
	}()

	var serveErr error
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = fmt.Errorf("listen on port %s: %w", cfg.Port, err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		serveErr = errors.Join(serveErr, fmt.Errorf("shutdown: %w", err))
	}
	return serveErr
}
