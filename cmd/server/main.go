/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the staging server: the REST resources the
  admin console saves to, promotes from, and reads production through.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags, load config
  2. Build the zap logger
  3. Initialize the store (SQLite, or memory with -db=memory)
  4. Optionally load a demo scenario
  5. Start the stale staging janitor
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config    YAML config file (default: $STAGE_CONFIG)
  -port      HTTP server port, overrides config
  -db        SQLite database path, overrides config
             Use ":memory:" for an in-memory SQLite database,
             "memory" for the map-backed store
  -scenario  Demo scenario to load at startup
  -debug     Debug logging

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the janitor
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

EXAMPLES:
  ./server -db="./data/staging.db"
  ./server -db=memory -scenario=pending-changes

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: File format and environment
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

	"go.uber.org/zap"

	"github.com/warp/staging-engine/api"
	"github.com/warp/staging-engine/config"
	"github.com/warp/staging-engine/store"
	"github.com/warp/staging-engine/store/memory"
	"github.com/warp/staging-engine/store/sqlite"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "server:", err)
		os.Exit(1)
	}
}

func run() error {
	// Flags
	configPath := flag.String("config", "", "YAML config file")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path, or \"memory\" (overrides config)")
	scenario := flag.String("scenario", "", "Demo scenario to load at startup")
	debug := flag.Bool("debug", false, "Debug logging")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Server.DB = *dbPath
	}

	logger, err := newLogger(*debug)
	if err != nil {
		return err
	}
	defer logger.Sync()

	domains, err := cfg.ResolveDomains()
	if err != nil {
		return err
	}

	// Initialize store
	st, closeStore, err := openStore(cfg.Server.DB)
	if err != nil {
		return fmt.Errorf("initialize store: %w", err)
	}
	defer closeStore()

	handler := api.NewHandler(st, logger, domains...)
	if *scenario != "" {
		if err := handler.Load(context.Background(), *scenario); err != nil {
			return fmt.Errorf("load scenario: %w", err)
		}
	}

	janitor := api.NewStagingJanitor(st, logger, domains...)
	janitor.Enabled = cfg.Server.JanitorEnabled
	janitor.CheckInterval = cfg.Server.JanitorInterval.Std()
	janitor.Start()
	defer janitor.Stop()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      api.NewRouter(handler, cfg.Server.CORSOrigins...),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.Int("port", cfg.Server.Port),
			zap.String("db", cfg.Server.DB),
			zap.Int("domains", len(domains)))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err, ok := <-serveErr:
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	logger.Info("shutting down server")
	janitor.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func newLogger(debug bool) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if debug {
		zc.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return zc.Build()
}

func openStore(db string) (store.Store, func(), error) {
	if db == "memory" {
		return memory.New(), func() {}, nil
	}
	st, err := sqlite.New(db)
	if err != nil {
		return nil, nil, err
	}
	return st, func() { st.Close() }, nil
}
