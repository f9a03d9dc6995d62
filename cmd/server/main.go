/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the mutual-aid benefit engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration from environment
  2. Initialize SQLite store
  3. Create API handler with dependencies
  4. Start the fee aggregation scheduler (if enabled)
  5. Start server with graceful shutdown

CONFIGURATION (environment variables):
  HTTP_PORT          Server port (default: 8080)
  DB_PATH            SQLite database path (default: ./benefit.db)
                     Use ":memory:" for an in-memory database
  JWT_SECRET         HMAC secret for session tokens
  FEE_JOB_SCHEDULE   Cron expression for monthly fee aggregation
  SCHEDULER_ENABLED  Set false to disable the cron job

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler and wait for a running job
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection
  5. Exit

SEE ALSO:
  - config/config.go: Environment configuration
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/benefit-engine/api"
	"github.com/warp/benefit-engine/config"
	"github.com/warp/benefit-engine/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize store
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Initialize handler and router
	handler := api.NewHandler(store)
	router := api.NewRouter(handler, cfg.JWTSecret)

	// Fee aggregation scheduler
	var scheduler *api.FeeScheduler
	if cfg.SchedulerEnabled {
		scheduler = api.NewFeeScheduler(handler.Fees, cfg.FeeJobSchedule)
		if err := scheduler.Start(); err != nil {
			log.Fatalf("Failed to start fee scheduler: %v", err)
		}
	} else {
		log.Println("[Scheduler] Disabled, not starting")
	}

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server starting on http://localhost:%s", cfg.HTTPPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	if scheduler != nil {
		scheduler.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
