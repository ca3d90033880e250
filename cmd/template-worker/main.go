// Command template-worker applies activity template usage messages
// published by the server to the SQLite database.
//
// It reads the same environment as cmd/server (AMQP_URL is required) and
// reconnects to the broker with exponential backoff until SIGINT/SIGTERM.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/warp/paa-engine/config"
	"github.com/warp/paa-engine/events"
	"github.com/warp/paa-engine/log"
	"github.com/warp/paa-engine/store/sqlite"
)

func main() {
	cfg := config.Load()

	dbPath := flag.String("db", cfg.SQLiteDBPath, "SQLite database path")
	flag.Parse()
	cfg.SQLiteDBPath = *dbPath

	logger := log.New(log.Config{
		Level:     log.ParseLevel(cfg.LogLevel),
		Component: log.ComponentWorker,
		Format:    cfg.LogFormat,
		Output:    os.Stdout,
	})
	log.SetDefault(logger)

	logger.Info("Starting template-worker", log.FieldOperation, log.OpStartup)

	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	if !cfg.MessagingEnabled() {
		logger.Error("AMQP_URL is required for the template worker")
		os.Exit(1)
	}

	store, err := sqlite.New(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize database", log.FieldError, err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	consumer := events.NewConsumer(events.BrokerConfig{
		URL:      cfg.AMQPURL,
		Exchange: cfg.AMQPExchange,
		Queue:    cfg.AMQPQueue,
	}, events.ApplyTo(store), logger)

	if err := consumer.Run(ctx); err != nil {
		logger.Error("Message consumption failed", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Worker shutdown complete", log.FieldOperation, log.OpShutdown)
}
