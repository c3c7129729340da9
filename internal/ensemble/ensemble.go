// Package ensemble orchestrates the prediction pipeline: one trained
// regressor per engagement metric plus a shared text embedder, exposed as
// unified single-tweet and bulk prediction operations.
package ensemble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/adolic/tweet-optimized/internal/embedding"
	"github.com/adolic/tweet-optimized/internal/features"
	"github.com/adolic/tweet-optimized/internal/regressor"
	"github.com/adolic/tweet-optimized/internal/textproc"
)

// ErrInvalidInput marks a malformed prediction request; surfaced to the
// caller immediately, never retried.
var ErrInvalidInput = errors.New("ensemble: invalid prediction request")

// Metric is one of the predicted engagement metrics. The set is fixed at
// deployment time.
type Metric string

const (
	MetricViews    Metric = "views"
	MetricLikes    Metric = "likes"
	MetricRetweets Metric = "retweets"
	MetricComments Metric = "comments"
)

// AllMetrics lists the deployed metric set in output order.
func AllMetrics() []Metric {
	return []Metric{MetricViews, MetricLikes, MetricRetweets, MetricComments}
}

// PredictionRequest is the immutable caller-supplied input for one tweet.
type PredictionRequest struct {
	Text                 string `json:"text"`
	AuthorFollowersCount int64  `json:"author_followers_count"`
	IsBlueVerified       bool   `json:"is_blue_verified"`
}

// Validate rejects empty text and non-positive follower counts. The HTTP
// layer is expected to validate before calling the core; the ensemble
// re-checks because silent garbage-in is worse than a duplicate check.
func (r PredictionRequest) Validate() error {
	if r.Text == "" {
		return fmt.Errorf("%w: empty text", ErrInvalidInput)
	}
	if r.AuthorFollowersCount <= 0 {
		return fmt.Errorf("%w: author_followers_count must be positive, got %d",
			ErrInvalidInput, r.AuthorFollowersCount)
	}
	return nil
}

// MetricPrediction is one point on a predicted engagement curve.
type MetricPrediction struct {
	Value    float64 `json:"value"`
	AgeHours float64 `json:"age_hours"`
}

// BulkPrediction is the per-tweet output of PredictBulk. Tweets are keyed
// by their input index, so two tweets with identical text stay distinct.
type BulkPrediction struct {
	TweetIndex  int                  `json:"tweet_idx"`
	Text        string               `json:"text"`
	Predictions map[Metric][]float64 `json:"predictions"`
}

// DefaultHorizons is the horizon set the product requests when the caller
// supplies none: 0.1h then every full hour through 24.
func DefaultHorizons() []float64 {
	horizons := []float64{0.1}
	for h := 1; h <= 24; h++ {
		horizons = append(horizons, float64(h))
	}
	return horizons
}

// Ensemble owns the per-metric regressors and the shared embedder. It is
// loaded once at startup, immutable afterwards, and safe for unlimited
// concurrent inference.
type Ensemble struct {
	embedder embedding.Embedder
	models   map[Metric]*regressor.Regressor
	metrics  []Metric
	schema   []string
}

// ArtifactLoader supplies persisted trained regressors by metric name.
type ArtifactLoader interface {
	Load(target string) (*regressor.Regressor, error)
}

// Load builds the ensemble from persisted artifacts, one per metric, and
// validates each model's schema against the shared embedder before
// serving. A missing artifact or a schema mismatch fails the whole load.
func Load(artifacts ArtifactLoader, embedder embedding.Embedder, metrics []Metric) (*Ensemble, error) {
	if len(metrics) == 0 {
		metrics = AllMetrics()
	}
	start := time.Now()

	schema := features.Schema(embedder.Dimension())
	models := make(map[Metric]*regressor.Regressor, len(metrics))
	for _, metric := range metrics {
		model, err := artifacts.Load(string(metric))
		if err != nil {
			return nil, err
		}
		if model.EmbeddingModel() != embedder.ModelName() {
			return nil, fmt.Errorf("ensemble: model for %q was trained with embedder %q, serving with %q",
				metric, model.EmbeddingModel(), embedder.ModelName())
		}
		if model.EmbeddingDim() != embedder.Dimension() {
			return nil, fmt.Errorf("ensemble: model for %q expects %d-dimensional embeddings, embedder yields %d",
				metric, model.EmbeddingDim(), embedder.Dimension())
		}
		if err := model.CheckSchema(schema); err != nil {
			return nil, fmt.Errorf("ensemble: model for %q: %w", metric, err)
		}
		models[metric] = model
	}

	slog.Info("[Ensemble] Models loaded",
		slog.Int("metrics", len(metrics)),
		slog.Duration("elapsed", time.Since(start)))

	return &Ensemble{
		embedder: embedder,
		models:   models,
		metrics:  append([]Metric(nil), metrics...),
		schema:   schema,
	}, nil
}

// Metrics lists the loaded metric set in output order.
func (e *Ensemble) Metrics() []Metric {
	return append([]Metric(nil), e.metrics...)
}

func validateHorizons(ageHours []float64) error {
	if len(ageHours) == 0 {
		return fmt.Errorf("%w: no age horizons supplied", ErrInvalidInput)
	}
	for _, h := range ageHours {
		if h <= 0 {
			return fmt.Errorf("%w: age horizon must be positive, got %v", ErrInvalidInput, h)
		}
	}
	return nil
}

// Predict expands a single request into one row per horizon and returns
// the predicted curve per metric, horizon order preserved.
func (e *Ensemble) Predict(ctx context.Context, req PredictionRequest, ageHours []float64) (map[Metric][]MetricPrediction, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := validateHorizons(ageHours); err != nil {
		return nil, err
	}

	X, err := e.designMatrix(ctx, []PredictionRequest{req}, ageHours)
	if err != nil {
		return nil, err
	}

	out := make(map[Metric][]MetricPrediction, len(e.metrics))
	for _, metric := range e.metrics {
		preds, err := e.models[metric].Predict(X)
		if err != nil {
			return nil, fmt.Errorf("ensemble: predicting %q: %w", metric, err)
		}
		curve := make([]MetricPrediction, len(ageHours))
		for i, h := range ageHours {
			curve[i] = MetricPrediction{Value: preds[i], AgeHours: h}
		}
		out[metric] = curve
	}
	return out, nil
}

// PredictBulk runs the same expansion across multiple tweets with a
// single embedding batch, grouping results back by originating tweet
// index with horizon order preserved per tweet.
func (e *Ensemble) PredictBulk(ctx context.Context, reqs []PredictionRequest, ageHours []float64) ([]BulkPrediction, error) {
	if len(reqs) == 0 {
		return nil, fmt.Errorf("%w: no tweets supplied", ErrInvalidInput)
	}
	for i, req := range reqs {
		if err := req.Validate(); err != nil {
			return nil, fmt.Errorf("tweet %d: %w", i, err)
		}
	}
	if err := validateHorizons(ageHours); err != nil {
		return nil, err
	}

	X, err := e.designMatrix(ctx, reqs, ageHours)
	if err != nil {
		return nil, err
	}

	out := make([]BulkPrediction, len(reqs))
	for i, req := range reqs {
		out[i] = BulkPrediction{
			TweetIndex:  i,
			Text:        req.Text,
			Predictions: make(map[Metric][]float64, len(e.metrics)),
		}
	}

	for _, metric := range e.metrics {
		preds, err := e.models[metric].Predict(X)
		if err != nil {
			return nil, fmt.Errorf("ensemble: predicting %q: %w", metric, err)
		}
		for i := range reqs {
			out[i].Predictions[metric] = preds[i*len(ageHours) : (i+1)*len(ageHours)]
		}
	}
	return out, nil
}

// designMatrix builds the inference matrix: requests are preprocessed and
// embedded once each, then expanded into one row per (request, horizon)
// pairing in request-major order.
func (e *Ensemble) designMatrix(ctx context.Context, reqs []PredictionRequest, ageHours []float64) ([][]float64, error) {
	canonical := make([]string, len(reqs))
	for i, req := range reqs {
		canonical[i] = textproc.Preprocess(req.Text)
	}

	vectors, err := e.embedder.Embed(ctx, canonical)
	if err != nil {
		return nil, fmt.Errorf("ensemble: embedding failed: %w", err)
	}

	rows := make([]features.FeatureRow, 0, len(reqs)*len(ageHours))
	rowVectors := make([][]float32, 0, len(reqs)*len(ageHours))
	for i, req := range reqs {
		for _, h := range ageHours {
			rows = append(rows, features.Transform(features.Row{
				Text:                 canonical[i],
				AuthorFollowersCount: float64(req.AuthorFollowersCount),
				AgeHours:             h,
				IsBlueVerified:       req.IsBlueVerified,
			}))
			rowVectors = append(rowVectors, vectors[i])
		}
	}

	return features.Matrix(rows, features.BaseFeatures(), rowVectors)
}
