// Kestrel - Border entry screening for the Kanadia checkpoint network.
// Copyright (c) 2025 kanadia.gov
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/kanadia-gov/kestrel/internal/api"
	"github.com/kanadia-gov/kestrel/internal/bus"
	"github.com/kanadia-gov/kestrel/internal/cache"
	"github.com/kanadia-gov/kestrel/internal/domain"
	"github.com/kanadia-gov/kestrel/internal/refdata"
	"github.com/kanadia-gov/kestrel/internal/repository"
	"github.com/kanadia-gov/kestrel/internal/resolver"
	"github.com/kanadia-gov/kestrel/internal/rules"
	"github.com/kanadia-gov/kestrel/internal/screening"
	"github.com/kanadia-gov/kestrel/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// DefaultCheckpointID is the checkpoint served when none is configured.
// Standalone deployments are single-checkpoint kiosks.
const DefaultCheckpointID = "default"

func main() {
	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("KESTREL_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for cluster mode via environment
	if os.Getenv("KESTREL_MODE") == "cluster" {
		cfg = domain.ClusterConfig()
		slog.Info("running in cluster mode")
	}

	slog.Info("configuration loaded",
		"mode", cfg.Mode,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	checkpointID := os.Getenv("KESTREL_CHECKPOINT")
	if checkpointID == "" {
		checkpointID = DefaultCheckpointID
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize reference data service
	refdataSvc := refdata.NewService(repo, cacheImpl)
	slog.Info("reference data service initialized")

	// Initialize Rule Engine
	engine := rules.NewEngine(nil)

	// Load reference data from database (configure via watchlist/policy APIs)
	if err := loadRefDataFromDatabase(ctx, refdataSvc, engine, checkpointID); err != nil {
		slog.Error("failed to load reference data", "error", err)
		os.Exit(1)
	}
	slog.Info("rule engine initialized",
		"watchlist_entries", engine.WatchlistSize(),
		"country_policies", engine.PolicyCount(),
	)

	// Initialize Directive Engine
	directives, err := rules.NewDirectiveEngine(100)
	if err != nil {
		slog.Error("failed to initialize directive engine", "error", err)
		os.Exit(1)
	}

	// Load directives from database (no hardcoded defaults - configure via API)
	if err := loadDirectivesFromDatabase(ctx, repo, directives, checkpointID); err != nil {
		slog.Error("failed to load directives", "error", err)
		os.Exit(1)
	}
	slog.Info("directive engine initialized", "directives_count", directives.Count())

	// Initialize Decision Processor
	processor := resolver.NewProcessor()
	slog.Info("decision processor initialized", "engine_version", resolver.EngineVersion)

	// Initialize Screening Service
	screeningSvc := screening.NewService(engine, directives, processor)

	// Initialize async Worker (cluster mode)
	var asyncWorker *worker.Worker
	if cfg.Mode == domain.ModeCluster || os.Getenv("KESTREL_ASYNC_WORKER") == "true" {
		asyncWorker = worker.NewWorker(busImpl, repo, screeningSvc)

		// Get checkpoint IDs to process (from environment or default)
		checkpointIDs := []string{checkpointID}
		if envCheckpoints := os.Getenv("KESTREL_CHECKPOINTS"); envCheckpoints != "" {
			checkpointIDs = strings.Split(envCheckpoints, ",")
		}

		workerCfg := worker.Config{
			CheckpointIDs: checkpointIDs,
			WorkerCount:   5,
		}

		if err := asyncWorker.Start(workerCfg); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async worker started", "checkpoint_count", len(checkpointIDs))
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, engine, directives, screeningSvc, refdataSvc, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("kestrel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"checkpoint", checkpointID,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop async worker first
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kestrel shutdown complete")
}

// loadRefDataFromDatabase loads the watchlist and policy table into the engine.
// Reference data is configured via the watchlist and policy APIs or the
// kestrel-batch ingestion tool.
func loadRefDataFromDatabase(ctx context.Context, svc *refdata.Service, engine *rules.Engine, checkpointID string) error {
	watchlist, err := svc.Watchlist(ctx, checkpointID)
	if err != nil {
		slog.Warn("failed to load watchlist from database", "error", err)
		return nil // Start empty - entries can be added via API
	}
	engine.LoadWatchlist(watchlist)

	policies, err := svc.PolicyTable(ctx, checkpointID)
	if err != nil {
		slog.Warn("failed to load country policies from database", "error", err)
		return nil
	}
	engine.LoadPolicies(policies)

	if len(watchlist) == 0 && len(policies) == 0 {
		slog.Info("no reference data in database - configure via PUT /watchlist and PUT /policies/{code}")
	}
	return nil
}

// loadDirectivesFromDatabase loads screening directives into the engine.
// All directives must be configured via POST /directives - no hardcoded defaults.
func loadDirectivesFromDatabase(ctx context.Context, repo domain.Repository, engine *rules.DirectiveEngine, checkpointID string) error {
	dbDirectives, err := repo.ListDirectives(ctx, checkpointID)
	if err != nil {
		slog.Warn("failed to list directives from database", "error", err)
		return nil // Start with empty directives - they can be added via API
	}

	if len(dbDirectives) > 0 {
		slog.Info("loading directives from database", "count", len(dbDirectives))
		return engine.Reload(dbDirectives)
	}

	slog.Info("no directives in database - configure via POST /directives API")
	return nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  KESTREL - Border Entry Screening")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Mode:     %s\n", cfg.Mode)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /screen                  - Screen an entry record")
	fmt.Println("    GET  /decisions/{id}          - Get decision by ID")
	fmt.Println("    GET  /entries/{id}            - Get entry case by ID")
	fmt.Println("    GET  /entries/{id}/decision   - Get decision for an entry")
	fmt.Println("    GET  /watchlist               - List watchlist entries")
	fmt.Println("    PUT  /watchlist               - Add a watchlist entry")
	fmt.Println("    GET  /policies                - List country policies")
	fmt.Println("    PUT  /policies/{code}         - Set a country policy")
	fmt.Println("    POST /refdata/reload          - Hot-reload reference data")
	fmt.Println("    GET  /directives              - List screening directives")
	fmt.Println("    POST /directives              - Create a directive")
	fmt.Println("    POST /directives/reload       - Hot-reload directives")
	fmt.Println("    GET  /health                  - Health check")
	fmt.Println()
}
