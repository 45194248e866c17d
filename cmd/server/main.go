/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the Pharma Gestion lot ledger server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (environment, then flags)
  2. Initialize logger
  3. Open SQLite store and load the last snapshot
  4. Ingest it into the engine (rebuilds lots for pre-lot datasets)
  5. Configure HTTP router
  6. Start the stock monitor
  7. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -addr    HTTP listen address (overrides APP_ADDR)
  -db      SQLite database path (overrides DB_PATH)
           Use ":memory:" for in-memory database

ENVIRONMENT:
  See pkg/config for the full list (APP_ENV, LOG_LEVEL, CORS_ORIGINS,
  WRITE_RATE_LIMIT, MONITOR_INTERVAL, DEFAULT_ACTOR, ...).

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/lot-ledger/api"
	"github.com/warp/lot-ledger/inventory"
	"github.com/warp/lot-ledger/pkg/config"
	"github.com/warp/lot-ledger/pkg/logger"
	"github.com/warp/lot-ledger/store/sqlite"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Flags override the environment
	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP listen address")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path")
	flag.Parse()

	log, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Development: cfg.IsDevelopment(),
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	// Initialize store
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	ctx := context.Background()

	// Restore the last snapshot
	engine := inventory.New(inventory.WithLogger(log))
	saved, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	if saved != nil {
		res, err := engine.Ingest(ctx, saved)
		if err != nil {
			return fmt.Errorf("ingest snapshot: %w", err)
		}
		if res.Migrated {
			// Persist the rebuilt ledger so the replay happens once.
			if err := store.Save(ctx, engine.Snapshot()); err != nil {
				return fmt.Errorf("save migrated snapshot: %w", err)
			}
		}
		log.Infow("snapshot restored", "documents", res.Documents, "migrated", res.Migrated, "lots_rebuilt", res.LotsRebuilt)
	}

	handler := api.NewHandler(engine, store, log)
	handler.DefaultActor = cfg.Actor

	router := api.NewRouter(handler, api.RouterOptions{
		CORSOrigins:    cfg.CORSOrigins,
		WriteRateLimit: cfg.WriteRateLimit,
		Production:     cfg.IsProduction(),
	})

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	monitor := api.NewStockMonitor(handler)
	if cfg.MonitorInterval > 0 {
		monitor.CheckInterval = cfg.MonitorInterval
	} else {
		monitor.Enabled = false
	}
	monitor.Start()
	defer monitor.Stop()

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		log.Infow("server starting", "addr", cfg.Addr, "env", cfg.Env, "db", cfg.DBPath)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-quit:
	}

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("server stopped")
	return nil
}
