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
	"github.com/adolic/tweet-optimized/internal/generator"
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

	seeds := os.Args[1:]
	if len(seeds) == 0 {
		slog.Error("[Main] No seed tweets supplied, pass one or more as arguments")
		os.Exit(1)
	}

	miniLM, err := embedding.NewMiniLM(cfg.EmbeddingModel, filepath.Join(cfg.DataDir, "models"))
	if err != nil {
		slog.Error("[Main] Failed to initialize embedder",
			slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer miniLM.Close()

	models, err := ensemble.Load(store.NewArtifactStore(cfg.DataDir), miniLM, ensemble.AllMetrics())
	if err != nil {
		slog.Error("[Main] Failed to load models",
			slog.String("error", err.Error()))
		os.Exit(1)
	}

	gen, err := generator.New(cfg.OpenAIAPIKey)
	if err != nil {
		slog.Error("[Main] Failed to initialize generator",
			slog.String("error", err.Error()))
		os.Exit(1)
	}

	start := time.Now()
	variants, err := gen.Generate(ctx, seeds)
	if err != nil {
		slog.Error("[Main] Variant generation failed",
			slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Rank the seeds alongside the variants so the original draft is
	// directly comparable.
	candidates := append(variants, seeds...)
	ranked, err := generator.Rank(ctx, models, candidates, 100, true, ensemble.DefaultHorizons())
	if err != nil {
		slog.Error("[Main] Ranking failed",
			slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.Info("[Main] Candidates ranked",
		slog.Int("candidates", len(ranked)),
		slog.Duration("elapsed", time.Since(start)))

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(ranked); err != nil {
		slog.Error("[Main] Failed to encode ranking",
			slog.String("error", err.Error()))
		os.Exit(1)
	}
}
