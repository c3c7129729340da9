package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/adolic/tweet-optimized/config"
	"github.com/adolic/tweet-optimized/internal/embedding"
	"github.com/adolic/tweet-optimized/internal/ensemble"
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
	ctx := context.Background()

	miniLM, err := embedding.NewMiniLM(cfg.EmbeddingModel, filepath.Join(cfg.DataDir, "models"))
	if err != nil {
		slog.Error("[Main] Failed to initialize embedder",
			slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer miniLM.Close()

	var embedder embedding.Embedder = miniLM
	if cfg.ValkeyEnabled {
		cached, err := embedding.NewCachedEmbedder(miniLM, embedding.CacheConfig{
			Addr:     cfg.ValkeyAddr,
			Password: cfg.ValkeyPassword,
			UseTLS:   cfg.ValkeyTLS,
			TTL:      cfg.EmbedCacheTTL,
		})
		if err != nil {
			slog.Error("[Main] Failed to initialize embedding cache",
				slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer cached.Close()
		embedder = cached
	}

	start := time.Now()
	models, err := ensemble.Load(store.NewArtifactStore(cfg.DataDir), embedder, ensemble.AllMetrics())
	if err != nil {
		slog.Error("[Main] Failed to load models",
			slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.Info("[Main] Models ready", slog.Duration("elapsed", time.Since(start)))

	text := "Hello, world!"
	if len(os.Args) > 1 {
		text = os.Args[1]
	}
	request := ensemble.PredictionRequest{
		Text:                 text,
		AuthorFollowersCount: 100,
		IsBlueVerified:       true,
	}

	start = time.Now()
	predictions, err := models.Predict(ctx, request, ensemble.DefaultHorizons())
	if err != nil {
		slog.Error("[Main] Prediction failed",
			slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.Info("[Main] Prediction complete", slog.Duration("elapsed", time.Since(start)))

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(predictions); err != nil {
		slog.Error("[Main] Failed to encode predictions",
			slog.String("error", err.Error()))
		os.Exit(1)
	}
}
