/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the commission ledger server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment, then flags)
  2. Build the zap logger
  3. Open the configured store (sqlite, postgres or memory)
  4. Create the ledger, API handler and reconciliation scheduler
  5. Configure HTTP router
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS (override the environment):
  -port    HTTP server port (PORT, default: 8080)
  -db      SQLite database path (DB_PATH, default: commissions.db)
           Use ":memory:" for in-memory database

ENVIRONMENT:
  ENVIRONMENT          dev | prod (log format)
  LOG_LEVEL            debug | info | warn | error
  DB_DRIVER            sqlite | postgres | memory
  DATABASE_URL         Postgres connection string
  LATE_ADJUSTMENTS     strict | allow
  RECONCILE_INTERVAL   e.g. 30m, 0 disables the sweep
  ALLOWED_ORIGINS      comma separated CORS origins

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the reconciliation scheduler
  4. Close database connection

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Environment parsing
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

	"github.com/mediandev/prosellerv1-sub003/api"
	"github.com/mediandev/prosellerv1-sub003/config"
	"github.com/mediandev/prosellerv1-sub003/ledger"
	"github.com/mediandev/prosellerv1-sub003/ledger/store"
	"github.com/mediandev/prosellerv1-sub003/store/postgres"
	"github.com/mediandev/prosellerv1-sub003/store/sqlite"
)

// backend is what every storage driver provides.
type backend interface {
	ledger.TxStore
	ledger.SellerDirectory
	api.Backend
	Close() error
}

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	// Flags
	port := flag.Int("port", cfg.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	flag.Parse()
	cfg.Port = *port
	cfg.DBPath = *dbPath

	logger, err := config.NewLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	db, err := openStore(context.Background(), cfg)
	if err != nil {
		logger.Fatal("failed to initialize store", zap.String("driver", cfg.DBDriver), zap.Error(err))
	}
	defer db.Close()

	l := ledger.New(db, ledger.Options{
		Logger:     logger.Named("ledger"),
		Directory:  db,
		LatePolicy: cfg.LatePolicy,
	})

	handler := api.NewHandler(l, db, logger.Named("api"))
	handler.Scheduler = api.NewReconciliationScheduler(l, logger.Named("reconcile"), cfg.ReconcileInterval)
	handler.Scheduler.Start()

	router := api.NewRouter(handler, cfg.AllowedOrigins)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting",
			zap.Int("port", cfg.Port),
			zap.String("driver", cfg.DBDriver),
			zap.String("late_policy", string(l.Policy())))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	handler.Scheduler.Stop()

	logger.Info("server stopped")
}

func openStore(ctx context.Context, cfg *config.Config) (backend, error) {
	switch cfg.DBDriver {
	case config.DriverPostgres:
		return postgres.New(ctx, cfg.DatabaseURL)
	case config.DriverMemory:
		return store.NewMemory(), nil
	default:
		return sqlite.New(cfg.DBPath)
	}
}
