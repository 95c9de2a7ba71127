package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"ipdr-backend/cmd"
	"ipdr-backend/internal/config"
	"ipdr-backend/internal/events"
	"ipdr-backend/internal/messaging"
	"ipdr-backend/internal/records"
)

// The worker consumes dataset events from RabbitMQ and audits the record
// store against them. It shares the API server's database and object store.
func main() {
	log.Println("Starting Worker Process...")

	cmd.LoadEnvFile()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if cfg.RabbitMQURL == "" {
		log.Fatalf("RABBITMQ_URL must be set for the worker")
	}

	db := cmd.CreateDatabase(cfg)
	provider := cmd.CreateStorage(context.Background(), cfg)

	reciever, err := messaging.NewRabbitMQReceiver(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}

	processor := events.NewEventProcessor(records.NewStore(db, provider, cfg.UploadBucket), reciever)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		slog.Info("shutdown signal received")
		processor.Stop()
	}()

	processor.Start()

	slog.Info("worker process stopped")
}
