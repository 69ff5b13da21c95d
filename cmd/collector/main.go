// main.go - reference ingestion server for the clickstream SDK
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"clickstream/internal/collector"
	"clickstream/internal/config"
	"clickstream/internal/database"
	"clickstream/internal/logging"
)

const (
	defaultShutdownTimeout = 30 * time.Second
)

func main() {
	configPath := flag.String("config", "", "path to a clickstream config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := logging.NewLogger(logging.FromConfig(cfg))
	defer logger.Close()

	dbManager := database.NewDBManager(database.Config{
		Path:      cfg.CollectorDatabase,
		EnableWAL: true,
		Logger:    logger.Logger,
	})
	db, err := dbManager.Connect()
	if err != nil {
		logger.Error("Failed to open collector database", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbManager.Close()

	srv, err := collector.New(collector.Options{
		DB:            db,
		Logger:        logger.Logger,
		RetentionDays: cfg.ReceivedEventsRetentionDays,
	})
	if err != nil {
		logger.Error("Failed to create collector", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("Starting collector", slog.String("port", cfg.CollectorPort))
	if err := srv.StartAsync(":" + cfg.CollectorPort); err != nil {
		logger.Error("Failed to start collector", slog.Any("error", err))
		os.Exit(1)
	}

	waitForShutdownSignal(srv, logger.Logger)
}

// waitForShutdownSignal blocks until a termination signal and shuts the
// server down gracefully.
func waitForShutdownSignal(srv *collector.Server, logger *slog.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	sig := <-sigChan
	logger.Info("Received signal", slog.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Error during shutdown", slog.Any("error", err))
		return
	}
	logger.Info("Collector shutdown complete")
}
