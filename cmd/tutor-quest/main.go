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

	"github.com/terra-clan/tutor-quest/internal/api"
	"github.com/terra-clan/tutor-quest/internal/cleanup"
	"github.com/terra-clan/tutor-quest/internal/config"
	"github.com/terra-clan/tutor-quest/internal/content"
	"github.com/terra-clan/tutor-quest/internal/health"
	"github.com/terra-clan/tutor-quest/internal/logging"
	"github.com/terra-clan/tutor-quest/internal/metrics"
	"github.com/terra-clan/tutor-quest/internal/quest"
	"github.com/terra-clan/tutor-quest/internal/session"
	"github.com/terra-clan/tutor-quest/internal/storage"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup structured logging
	logCloser, err := logging.Setup(cfg.Log)
	if err != nil {
		slog.Error("failed to setup logging", "error", err)
		os.Exit(1)
	}
	defer logCloser.Close()

	slog.Info("starting tutor-quest",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"storage", cfg.Storage.Backend,
		"restore_policy", cfg.Sessions.RestorePolicy,
	)
	if cfg.Admin.Secret == "" {
		slog.Warn("ADMIN_PASS is not set, admin endpoints are disabled")
	}

	// Load question set
	loader := content.NewLoader()
	if err := loader.Load(cfg.Content.File); err != nil {
		slog.Error("failed to load content", "file", cfg.Content.File, "error", err)
		os.Exit(1)
	}
	q := loader.Quest()

	// Create context for initialization
	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer initCancel()

	// Open persistence store (runs migrations for SQL backends)
	store, err := storage.Open(initCtx, cfg)
	if err != nil {
		slog.Error("failed to open store", "backend", cfg.Storage.Backend, "error", err)
		os.Exit(1)
	}
	slog.Info("store ready", "backend", cfg.Storage.Backend)

	registry := health.NewRegistry()
	registry.Register("store", health.CheckerFunc(store.Ping))

	m := metrics.New()

	machine := session.NewMachine(q.Rules, q.Questions, q.Catalog, q.Avatars)
	svc := quest.NewService(machine, store, quest.Options{
		RestorePolicy: cfg.Sessions.RestorePolicy,
		IdleTTL:       cfg.Sessions.IdleTTL,
		Metrics:       m,
	})

	// Initialize cleanup worker
	cleaner := cleanup.NewCleaner(svc, cfg.Cleanup.Interval)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start cleanup worker
	cleaner.Start(ctx)

	// Setup HTTP server
	server := api.NewServer(cfg.Server, cfg.Admin, svc, q, registry, m)
	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		slog.Info("HTTP server starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down gracefully...")

	// Cancel context to stop background workers
	cancel()
	cleaner.Wait()

	// Shutdown HTTP server with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	if err := store.Close(); err != nil {
		slog.Error("store close error", "error", err)
	}

	slog.Info("tutor-quest stopped")
}
