/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the budget forecaster server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load config (.env, environment) and parse flags
  2. Build the logger
  3. Open the SQLite store
  4. Optionally seed the forecast from a JSON file
  5. Start the actualization scheduler
  6. Start the HTTP server with graceful shutdown

COMMAND-LINE FLAGS (override the environment):
  -port    HTTP server port (PORT, default 8080)
  -db      SQLite database path (DB_PATH), ":memory:" for in-memory
  -seed    Forecast JSON file loaded into an empty database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler (waits for a running job)
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

EXAMPLES:
  ./server -db="./data/forecast.db"
  ./server -db=":memory:" -seed=forecast.json

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
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

	"github.com/sirupsen/logrus"
	"github.com/warp/budget-forecaster/api"
	"github.com/warp/budget-forecaster/config"
	"github.com/warp/budget-forecaster/core"
	"github.com/warp/budget-forecaster/factory"
	"github.com/warp/budget-forecaster/logging"
	"github.com/warp/budget-forecaster/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Invalid configuration: %v", err)
	}

	// Flags
	port := flag.Int("port", cfg.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	seedPath := flag.String("seed", "", "forecast JSON file loaded into an empty database")
	flag.Parse()

	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		logger.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	if *seedPath != "" {
		if err := seed(context.Background(), store, *seedPath, cfg.DefaultCurrency, logger); err != nil {
			logger.Fatalf("Failed to seed forecast: %v", err)
		}
	}

	handler := api.NewHandler(store, logger, cfg.DefaultCurrency)
	if err := handler.Scheduler.Start(cfg.ActualizeSchedule); err != nil {
		logger.Fatalf("Failed to start scheduler: %v", err)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      api.NewRouter(handler, logger, cfg.CORSOrigins),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.WithField("port", *port).Info("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	handler.Scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatalf("Server forced to shutdown: %v", err)
	}

	logger.Info("server stopped")
}

// seed loads a forecast file when the database has no ranges yet.
func seed(ctx context.Context, repo core.ForecastStore, path, currency string, logger logrus.FieldLogger) error {
	existing, err := repo.Forecast(ctx)
	if err != nil {
		return err
	}
	if len(existing.PlannedOperations)+len(existing.Budgets) > 0 {
		logger.Info("forecast already present, skipping seed")
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	forecast, err := factory.NewRangeFactory(currency).ParseForecast(data)
	if err != nil {
		return err
	}
	for _, p := range forecast.PlannedOperations {
		if _, err := repo.AddPlannedOperation(ctx, p); err != nil {
			return err
		}
	}
	for _, b := range forecast.Budgets {
		if _, err := repo.AddBudget(ctx, b); err != nil {
			return err
		}
	}
	logger.WithFields(logrus.Fields{
		"planned_operations": len(forecast.PlannedOperations),
		"budgets":            len(forecast.Budgets),
	}).Info("forecast seeded")
	return nil
}
