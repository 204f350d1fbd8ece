// Package main is the entrypoint for the LeadForge API server.
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

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/leadforge/leadforge/internal/api"
	"github.com/leadforge/leadforge/internal/api/handler"
	mw "github.com/leadforge/leadforge/internal/api/middleware"
	"github.com/leadforge/leadforge/internal/cache"
	"github.com/leadforge/leadforge/internal/config"
	"github.com/leadforge/leadforge/internal/metrics"
	"github.com/leadforge/leadforge/internal/outreach"
	"github.com/leadforge/leadforge/internal/pipeline"
	"github.com/leadforge/leadforge/internal/scraper"
	"github.com/leadforge/leadforge/internal/store"
	"github.com/leadforge/leadforge/internal/verify"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	// 1. Load config — fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Create store and collaborator clients
	pgStore := store.NewPostgresStore(pool)
	scraperClient := scraper.NewHTTPClient(cfg.Scraper)
	outreachClient := outreach.NewHTTPClient(cfg.Outreach)
	verifier := verify.New(cfg.Verifier, verify.WithMXCache(redisCache))

	// 6. Create metrics and pipeline
	m := metrics.New()
	pipelineSvc := pipeline.New(pgStore, redisCache, scraperClient, outreachClient,
		verifier, m, logger, cfg.Outreach.APIKey)

	// 7. Build router with dependencies
	auth := mw.NewAuth(pgStore)
	rateLimit := mw.NewRateLimit(redisCache, 60)

	deps := api.Dependencies{
		Auth:      auth,
		RateLimit: rateLimit,

		HealthHandler:  handler.NewHealthHandler(pgStore, redisCache),
		MetricsHandler: promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}),

		CreateJobHandler:  handler.NewCreateJobHandler(pgStore),
		RunJobHandler:     handler.NewRunJobHandler(pgStore, pipelineSvc),
		ProcessJobHandler: handler.NewProcessJobHandler(pgStore, pipelineSvc),
		PollJobHandler:    handler.NewPollJobHandler(pgStore, redisCache),

		ListLeadsHandler: handler.NewListLeadsHandler(pgStore),

		CreateICPHandler: handler.NewCreateICPHandler(pgStore),
		ListICPsHandler:  handler.NewListICPsHandler(pgStore),

		CreateKeyHandler: handler.NewCreateKeyHandler(pgStore),
		ListKeysHandler:  handler.NewListKeysHandler(pgStore),
		RevokeKeyHandler: handler.NewRevokeKeyHandler(pgStore),
	}

	router := api.NewRouter(deps)

	// 8. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}
