// Package main is the entry point for the taxonomy API server.
// It loads configuration, connects to services, sets up routing and the
// reconciler schedule, and starts the HTTP server with graceful shutdown
// support.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cmstaxonomy/internal/cache"
	"cmstaxonomy/internal/config"
	"cmstaxonomy/internal/database"
	"cmstaxonomy/internal/handlers"
	"cmstaxonomy/internal/middleware"
	"cmstaxonomy/internal/router"
	"cmstaxonomy/internal/scheduler"
	"cmstaxonomy/internal/store"
)

func main() {
	// Structured logger; debug output only in development.
	level := slog.LevelInfo
	if os.Getenv("APP_ENV") == "development" || os.Getenv("APP_ENV") == "" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	// Load configuration from environment variables.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"env", cfg.Env,
		"addr", cfg.Addr(),
	)

	// Connect to PostgreSQL.
	db, err := database.Connect(cfg.DSN())
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Run pending migrations.
	if err := database.Migrate(db); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Seed development data (no-op if data already exists).
	if cfg.IsDev() {
		if err := database.Seed(context.Background(), db); err != nil {
			slog.Error("failed to seed database", "error", err)
			os.Exit(1)
		}
	}

	// The cache invalidation log is always on; the Valkey read cache is
	// optional and the API works without it.
	cacheLogStore := store.NewCacheLogStore(db)
	opts := []store.Option{store.WithCacheLog(cacheLogStore)}
	var flusher scheduler.CacheFlusher

	if cfg.ValkeyHost != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		valkeyClient, err := cache.ConnectValkey(ctx, cfg.ValkeyHost, cfg.ValkeyPort, cfg.ValkeyPassword)
		cancel()
		if err != nil {
			slog.Warn("valkey unavailable, taxonomy cache disabled", "error", err)
		} else {
			defer valkeyClient.Close()
			taxCache := cache.NewTaxonomyCache(valkeyClient, cfg.CacheTTL)
			opts = append(opts, store.WithCache(taxCache))
			flusher = taxCache
		}
	} else {
		slog.Warn("valkey not configured, taxonomy cache disabled")
	}

	// Initialize data stores.
	categoryStore := store.NewCategoryStore(db, opts...)
	tagStore := store.NewTagStore(db, opts...)
	relationships := store.NewRelationshipCoordinator(db, opts...)
	metaStore := store.NewMetaStore(db)

	// Schedule the integrity reconciler.
	sched := scheduler.New(time.Local)
	if cfg.ReconcileEnabled() {
		reconciler := scheduler.NewReconciler(tagStore, categoryStore, flusher)
		id, err := sched.Schedule(cfg.ReconcileSchedule, reconciler.Job())
		if err != nil {
			slog.Error("failed to schedule reconciler", "error", err)
			os.Exit(1)
		}
		sched.Start()
		slog.Info("reconciler scheduled", "spec", cfg.ReconcileSchedule, "next", sched.Next(id))
	} else {
		slog.Warn("reconciler disabled")
	}

	// Create handler groups with their dependencies.
	limiter := middleware.NewRateLimiter(cfg.RateLimit, time.Minute)
	defer limiter.Stop()

	r := router.New(router.Handlers{
		Categories: handlers.NewCategories(categoryStore, metaStore),
		Tags:       handlers.NewTags(tagStore, metaStore),
		Content:    handlers.NewContent(relationships, metaStore),
	}, limiter)

	// Create the HTTP server with sensible timeouts.
	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start the server in a goroutine so we can listen for shutdown signals.
	go func() {
		slog.Info("server starting", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown: wait for SIGINT or SIGTERM, then drain connections.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig)

	// Give active requests and a running reconcile up to 30 seconds.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}
	if err := sched.Stop(ctx); err != nil {
		slog.Error("reconciler did not stop in time", "error", err)
	}

	slog.Info("server stopped gracefully")
}
