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

	"github.com/codeai-platform/task-engine/internal/advisor"
	"github.com/codeai-platform/task-engine/internal/api"
	"github.com/codeai-platform/task-engine/internal/config"
	"github.com/codeai-platform/task-engine/internal/notify"
	"github.com/codeai-platform/task-engine/internal/pricing"
	"github.com/codeai-platform/task-engine/internal/storage"
	"github.com/codeai-platform/task-engine/internal/tasks"
)

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	slog.Info("starting task-engine",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	// Create context for initialization
	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer initCancel()

	// Run database migrations
	slog.Info("running database migrations", "dir", cfg.Database.MigrationsDir)
	if err := storage.MigrateFromDSN(initCtx, cfg.Database.DSN, cfg.Database.MigrationsDir); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Initialize database repository
	repo, err := storage.NewPostgresRepository(initCtx, storage.PostgresConfig{
		DSN:          cfg.Database.DSN,
		MaxOpenConns: int32(cfg.Database.MaxOpenConns),
		MaxIdleConns: int32(cfg.Database.MaxIdleConns),
	})
	if err != nil {
		slog.Error("failed to create database repository", "error", err)
		os.Exit(1)
	}
	slog.Info("database connected successfully")

	// Load the pricing rate table
	table, err := pricing.LoadTable(cfg.Pricing.TablePath)
	if err != nil {
		slog.Error("failed to load pricing table", "error", err)
		os.Exit(1)
	}
	engine := pricing.NewEngine(table)

	// Initialize the lifecycle notifier. With Redis enabled, events are
	// bridged across instances; without it, the in-process hub serves
	// local subscribers only.
	hub := notify.NewHub(cfg.Notify.BufferSize)
	var notifier tasks.Notifier = hub
	var bridge *notify.Bridge
	if cfg.Redis.Enabled {
		bridge, err = notify.NewBridge(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB, cfg.Notify.Channel, hub)
		if err != nil {
			slog.Warn("redis bridge unavailable, running single-instance", "error", err)
		} else {
			notifier = bridge
		}
	}

	// Initialize the AI advisory boundary (optional)
	var adv tasks.PriceAdvisor
	if cfg.Advisor.Enabled {
		a, err := advisor.New(advisor.Config{
			BaseURL:       cfg.Advisor.BaseURL,
			Model:         cfg.Advisor.Model,
			MinContentLen: cfg.Advisor.MinContentLen,
		})
		if err != nil {
			slog.Error("failed to create advisor", "error", err)
			os.Exit(1)
		}
		adv = a
		slog.Info("advisor enabled", "model", cfg.Advisor.Model)
	} else {
		slog.Info("advisor disabled, submissions carry no AI suggestion")
	}

	// Initialize the task lifecycle manager
	manager := tasks.NewManager(repo, engine, adv, notifier, cfg.Advisor.Timeout)

	// Create context with cancellation for background workers
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub.StartPruner(ctx, cfg.Notify.PruneInterval)
	if bridge != nil {
		bridge.Start(ctx)
	}

	// Setup HTTP server
	server := api.NewServer(cfg.Server, manager, hub, repo)
	httpServer := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:     server.Router(),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
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

	// Shutdown HTTP server with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	// Disconnect subscribers and close backing services
	hub.Close()
	if bridge != nil {
		if err := bridge.Close(); err != nil {
			slog.Error("redis bridge close error", "error", err)
		}
	}
	if err := repo.Close(); err != nil {
		slog.Error("repository close error", "error", err)
	}

	slog.Info("task-engine stopped")
}
