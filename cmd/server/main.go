/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the salary engine server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (if present) and parse command-line flags
  2. Initialize SQLite store
  3. Build the airline calculator and merge published rate eras
  4. Configure HTTP router
  5. Start server with graceful shutdown

CONFIGURATION:
  Flags override environment variables:
    -port      / PORT       HTTP server port (default: 8080)
    -db        / DB_PATH    SQLite database path (default: skywage.db)
                            Use ":memory:" for an in-memory database
    -log-level / LOG_LEVEL  zerolog level (default: info)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/skywage.db"

  # Run with in-memory database
  ./server -db=":memory:"

  # Run on different port
  ./server -port=3000

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/skywage/salary-engine/airline"
	"github.com/skywage/salary-engine/api"
	"github.com/skywage/salary-engine/store/sqlite"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	port := flag.Int("port", envInt("PORT", 8080), "HTTP server port")
	dbPath := flag.String("db", envStr("DB_PATH", "skywage.db"), "SQLite database path")
	logLevel := flag.String("log-level", envStr("LOG_LEVEL", "info"), "log level (trace..panic)")
	flag.Parse()

	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()
	if level, err := zerolog.ParseLevel(*logLevel); err == nil {
		logger = logger.Level(level)
	} else {
		logger.Warn().Str("log_level", *logLevel).Msg("unknown log level, using info")
	}

	store, err := sqlite.New(*dbPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer store.Close()

	calc := airline.NewCalculator(nil, logger)
	handler := api.NewHandler(store, calc, logger)
	if err := handler.LoadRates(context.Background()); err != nil {
		logger.Fatal().Err(err).Msg("failed to load published rate eras")
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      api.NewRouter(handler),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Int("port", *port).Str("db", *dbPath).Msg("salary engine listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("forced shutdown")
	}

	logger.Info().Msg("server stopped")
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return n
		}
	}
	return fallback
}
