// Package training is the offline side of the prediction pipeline: it
// pulls historical observations, filters them, splits by author group,
// fits one monotonically-constrained boosted regressor per metric,
// evaluates, and persists the artifacts the serving ensemble loads.
package training

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/adolic/tweet-optimized/internal/embedding"
	"github.com/adolic/tweet-optimized/internal/ensemble"
	"github.com/adolic/tweet-optimized/internal/features"
	"github.com/adolic/tweet-optimized/internal/regressor"
	"github.com/adolic/tweet-optimized/internal/textproc"
)

// MonotoneConstraints declares the features whose learned effect on a
// prediction may never decrease: more followers, more elapsed time, more
// activity or verification never lowers expected engagement.
func MonotoneConstraints() map[string]int {
	return map[string]int{
		features.FeatAuthorFollowersCount: 1,
		features.FeatAuthorFollowingCount: 1,
		features.FeatAuthorTweetCount:     1,
		features.FeatAgeHours:             1,
		features.FeatIsBlueVerified:       1,
	}
}

// ConstraintVector encodes the constraints as a per-feature integer array
// aligned positionally with the training column order; features without a
// declared constraint get 0.
func ConstraintVector(names []string) []int {
	declared := MonotoneConstraints()
	out := make([]int, len(names))
	for i, name := range names {
		out[i] = declared[name]
	}
	return out
}

// Config bounds the observations the pipeline will train on.
type Config struct {
	Metrics []ensemble.Metric

	// Observations outside [MinAgeHours, MaxAgeHours] or below MinViews
	// are discarded; so are rows whose views-per-follower ratio exceeds
	// MaxViewsFollowerRatio (outlier and bot-account suppression).
	MinAgeHours           float64
	MaxAgeHours           float64
	MinViews              float64
	MaxViewsFollowerRatio float64

	// Folds of the author-grouped split; the first fold validates, the
	// rest train. Only that single fold is used.
	Folds int

	Params regressor.Params

	// EmbedBatchSize bounds a single embedding backend call.
	EmbedBatchSize int
}

func DefaultConfig() Config {
	return Config{
		Metrics:               ensemble.AllMetrics(),
		MinAgeHours:           1,
		MaxAgeHours:           48,
		MinViews:              10,
		MaxViewsFollowerRatio: 2000,
		Folds:                 5,
		Params:                regressor.DefaultParams(),
		EmbedBatchSize:        256,
	}
}

// ArtifactSink persists trained models and their evaluation summary.
type ArtifactSink interface {
	Save(r *regressor.Regressor) error
	SaveMetrics(v any) error
}

// Pipeline wires an observation source, an embedder and an artifact sink
// into the offline training run.
type Pipeline struct {
	src       ObservationSource
	embedder  embedding.Embedder
	artifacts ArtifactSink
	cfg       Config
}

func NewPipeline(src ObservationSource, embedder embedding.Embedder, artifacts ArtifactSink, cfg Config) *Pipeline {
	if len(cfg.Metrics) == 0 {
		cfg.Metrics = ensemble.AllMetrics()
	}
	if cfg.EmbedBatchSize <= 0 {
		cfg.EmbedBatchSize = 256
	}
	return &Pipeline{src: src, embedder: embedder, artifacts: artifacts, cfg: cfg}
}

// Run executes the full offline pass and returns the per-metric
// evaluation summary it also persists.
func (p *Pipeline) Run(ctx context.Context) (map[string]Evaluation, error) {
	start := time.Now()

	observations, err := p.src.Observations(ctx)
	if err != nil {
		return nil, fmt.Errorf("training: fetching observations: %w", err)
	}
	slog.Info("[Training] Observations fetched", slog.Int("rows", len(observations)))

	kept := p.filter(observations)
	if len(kept) == 0 {
		return nil, fmt.Errorf("training: no observations left after filtering %d rows", len(observations))
	}
	slog.Info("[Training] Observations filtered",
		slog.Int("kept", len(kept)),
		slog.Int("dropped", len(observations)-len(kept)))

	authors := make([]string, len(kept))
	for i, o := range kept {
		authors[i] = o.Author
	}
	trainIdx, valIdx, err := splitByAuthor(authors, p.cfg.Folds)
	if err != nil {
		return nil, err
	}
	slog.Info("[Training] Grouped split",
		slog.Int("train_rows", len(trainIdx)),
		slog.Int("val_rows", len(valIdx)))

	trainX, err := p.designMatrix(ctx, kept, trainIdx)
	if err != nil {
		return nil, err
	}
	valX, err := p.designMatrix(ctx, kept, valIdx)
	if err != nil {
		return nil, err
	}

	schema := features.Schema(p.embedder.Dimension())
	constraints := ConstraintVector(schema)

	evaluations := make(map[string]Evaluation, len(p.cfg.Metrics))
	for _, metric := range p.cfg.Metrics {
		target := string(metric)
		slog.Info("[Training] Training model", slog.String("target", target))

		trainSet := regressor.Dataset{X: trainX, Y: logTargets(kept, trainIdx, target)}
		valSet := regressor.Dataset{X: valX, Y: logTargets(kept, valIdx, target)}

		model, err := regressor.Train(target, schema, constraints, trainSet, valSet, p.cfg.Params)
		if err != nil {
			return nil, fmt.Errorf("training: fitting %q: %w", target, err)
		}
		model.SetEmbedding(p.embedder.ModelName(), p.embedder.Dimension())

		valPred := make([]float64, len(valSet.X))
		for i, x := range valSet.X {
			v, err := model.PredictRow(x)
			if err != nil {
				return nil, fmt.Errorf("training: evaluating %q: %w", target, err)
			}
			valPred[i] = math.Log1p(v)
		}
		eval := Evaluate(valSet.Y, valPred, stat.Mean(trainSet.Y, nil))
		evaluations[target] = eval

		slog.Info("[Training] Model evaluated",
			slog.String("target", target),
			slog.Float64("rmse", eval.RMSE),
			slog.Float64("mae", eval.MAE),
			slog.Float64("r2", eval.R2),
			slog.Float64("baseline_rmse", eval.BaselineRMSE))

		if err := p.artifacts.Save(model); err != nil {
			return nil, fmt.Errorf("training: saving %q: %w", target, err)
		}
	}

	if err := p.artifacts.SaveMetrics(evaluations); err != nil {
		return nil, fmt.Errorf("training: saving metrics summary: %w", err)
	}

	slog.Info("[Training] Pipeline complete",
		slog.Int("metrics", len(evaluations)),
		slog.Duration("elapsed", time.Since(start)))
	return evaluations, nil
}

// filter applies the age, views and views-per-follower restrictions.
func (p *Pipeline) filter(observations []Observation) []Observation {
	kept := make([]Observation, 0, len(observations))
	for _, o := range observations {
		age := o.AgeHours()
		if age < p.cfg.MinAgeHours || age > p.cfg.MaxAgeHours {
			continue
		}
		if o.Views < p.cfg.MinViews {
			continue
		}
		if o.AuthorFollowersCount <= 0 {
			continue
		}
		if o.Views/o.AuthorFollowersCount >= p.cfg.MaxViewsFollowerRatio {
			continue
		}
		kept = append(kept, o)
	}
	return kept
}

// designMatrix builds feature rows for the selected observations: raw
// attributes transformed exactly once, plus one embedding per row.
func (p *Pipeline) designMatrix(ctx context.Context, observations []Observation, idx []int) ([][]float64, error) {
	rows := make([]features.FeatureRow, len(idx))
	texts := make([]string, len(idx))
	for i, j := range idx {
		o := observations[j]
		canonical := textproc.Preprocess(o.Text)
		texts[i] = canonical
		rows[i] = features.Transform(features.Row{
			Text:                 canonical,
			AuthorFollowersCount: o.AuthorFollowersCount,
			AgeHours:             o.AgeHours(),
			IsBlueVerified:       o.IsBlueVerified,
		})
	}

	vectors, err := p.embedTexts(ctx, texts)
	if err != nil {
		return nil, err
	}
	return features.Matrix(rows, features.BaseFeatures(), vectors)
}

func (p *Pipeline) embedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += p.cfg.EmbedBatchSize {
		end := start + p.cfg.EmbedBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := p.embedder.Embed(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("training: embedding batch at %d: %w", start, err)
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

func logTargets(observations []Observation, idx []int, target string) []float64 {
	out := make([]float64, len(idx))
	for i, j := range idx {
		out[i] = math.Log1p(observations[j].Metric(target))
	}
	return out
}
