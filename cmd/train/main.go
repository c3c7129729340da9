package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/adolic/tweet-optimized/config"
	"github.com/adolic/tweet-optimized/internal/embedding"
	"github.com/adolic/tweet-optimized/internal/logging"
	"github.com/adolic/tweet-optimized/internal/store"
	"github.com/adolic/tweet-optimized/internal/training"
)

func main() {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "dev"
	}
	config.LoadEnv(env)
	logging.InitLogger()

	cfg := config.FromEnv()
	ctx := context.Background()

	observations, err := store.NewObservationStore(ctx, cfg.PostgresDSN)
	if err != nil {
		slog.Error("[Main] Failed to connect to observation store",
			slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer observations.Close()

	embedder, err := embedding.NewMiniLM(cfg.EmbeddingModel, filepath.Join(cfg.DataDir, "models"))
	if err != nil {
		slog.Error("[Main] Failed to initialize embedder",
			slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer embedder.Close()

	artifacts := store.NewArtifactStore(cfg.DataDir)
	pipeline := training.NewPipeline(observations, embedder, artifacts, training.DefaultConfig())

	evaluations, err := pipeline.Run(ctx)
	if err != nil {
		slog.Error("[Main] Training pipeline failed",
			slog.String("error", err.Error()))
		os.Exit(1)
	}

	for target, eval := range evaluations {
		slog.Info("[Main] Model trained",
			slog.String("target", target),
			slog.Float64("rmse", eval.RMSE),
			slog.Float64("r2", eval.R2))
	}
}
