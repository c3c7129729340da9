package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/adolic/tweet-optimized/config"
	"github.com/adolic/tweet-optimized/internal/ingest"
	"github.com/adolic/tweet-optimized/internal/logging"
	"github.com/adolic/tweet-optimized/internal/store"
)

func main() {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "dev"
	}
	config.LoadEnv(env)
	logging.InitLogger()

	cfg := config.FromEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	observations, err := store.NewObservationStore(ctx, cfg.PostgresDSN)
	if err != nil {
		slog.Error("[Main] Failed to connect to observation store",
			slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer observations.Close()

	consumer, err := ingest.NewConsumer(ingest.Config{
		Broker:  cfg.KafkaBroker,
		GroupID: cfg.KafkaGroupID,
		Topic:   cfg.KafkaTopic,
	}, observations)
	if err != nil {
		slog.Error("[Main] Failed to start ingest consumer",
			slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer consumer.Close()

	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("[Main] Ingest consumer stopped",
			slog.String("error", err.Error()))
		os.Exit(1)
	}
}
