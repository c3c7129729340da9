package ensemble_test

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"math/rand"
	"testing"

	"github.com/adolic/tweet-optimized/internal/embedding"
	"github.com/adolic/tweet-optimized/internal/ensemble"
	"github.com/adolic/tweet-optimized/internal/features"
	"github.com/adolic/tweet-optimized/internal/regressor"
	"github.com/adolic/tweet-optimized/internal/store"
	"github.com/adolic/tweet-optimized/internal/textproc"
)

// stubEmbedder is a deterministic stand-in for the ONNX-backed embedder.
type stubEmbedder struct {
	dim int
}

func (s stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		h := fnv.New32a()
		h.Write([]byte(text))
		state := h.Sum32()
		vec := make([]float32, s.dim)
		for j := range vec {
			state = state*1664525 + 1013904223
			vec[j] = float32(state%1000) / 1000
		}
		out[i] = vec
	}
	return out, nil
}

func (s stubEmbedder) Dimension() int    { return s.dim }
func (s stubEmbedder) ModelName() string { return "stub-embedder" }

type failingEmbedder struct {
	stubEmbedder
}

func (f failingEmbedder) Embed(context.Context, []string) ([][]float32, error) {
	return nil, embedding.ErrBackend
}

var sampleTexts = []string{
	"shipping a new feature today",
	"unit tests catch bugs early",
	"coffee then code",
	"big announcement coming soon",
	"weekend hackathon results",
}

// trainMetricModel fits a small model on synthetic data whose target
// grows with followers, age and verification, through the same feature
// path the ensemble uses at inference time.
func trainMetricModel(t *testing.T, emb stubEmbedder, target string, scale float64) *regressor.Regressor {
	t.Helper()
	rng := rand.New(rand.NewSource(42))

	n := 700
	rows := make([]features.FeatureRow, n)
	texts := make([]string, n)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		followers := math.Pow(10, 1+rng.Float64()*5)
		age := 0.1 + rng.Float64()*48
		verified := rng.Intn(2) == 1
		text := textproc.Preprocess(sampleTexts[rng.Intn(len(sampleTexts))])
		texts[i] = text
		rows[i] = features.Transform(features.Row{
			Text:                 text,
			AuthorFollowersCount: followers,
			AgeHours:             age,
			IsBlueVerified:       verified,
		})
		v := 0.0
		if verified {
			v = 1
		}
		y[i] = scale * (0.5*math.Log1p(followers) + 0.4*math.Log1p(age) + 0.3*v + 0.02*rng.NormFloat64())
	}

	vectors, err := emb.Embed(context.Background(), texts)
	if err != nil {
		t.Fatalf("stub embed: %v", err)
	}
	X, err := features.Matrix(rows, features.BaseFeatures(), vectors)
	if err != nil {
		t.Fatalf("matrix: %v", err)
	}

	schema := features.Schema(emb.dim)
	monotone := make([]int, len(schema))
	monotone[0], monotone[1], monotone[2] = 1, 1, 1

	cut := n * 4 / 5
	train := regressor.Dataset{X: X[:cut], Y: y[:cut]}
	val := regressor.Dataset{X: X[cut:], Y: y[cut:]}
	model, err := regressor.Train(target, schema, monotone, train, val, regressor.Params{
		NumRounds:     60,
		LearningRate:  0.1,
		NumLeaves:     7,
		MinLeafSize:   5,
		EarlyStopping: 20,
	})
	if err != nil {
		t.Fatalf("train %s: %v", target, err)
	}
	model.SetEmbedding(emb.ModelName(), emb.dim)
	return model
}

func buildEnsemble(t *testing.T) (*ensemble.Ensemble, stubEmbedder) {
	t.Helper()
	emb := stubEmbedder{dim: 4}
	artifacts := store.NewArtifactStore(t.TempDir())

	for i, metric := range ensemble.AllMetrics() {
		model := trainMetricModel(t, emb, string(metric), 1-0.15*float64(i))
		if err := artifacts.Save(model); err != nil {
			t.Fatalf("save %s: %v", metric, err)
		}
	}

	ens, err := ensemble.Load(artifacts, emb, ensemble.AllMetrics())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return ens, emb
}

func TestPredictEndToEnd(t *testing.T) {
	ens, _ := buildEnsemble(t)

	req := ensemble.PredictionRequest{
		Text:                 "This is a sample tweet",
		AuthorFollowersCount: 100,
		IsBlueVerified:       true,
	}
	horizons := []float64{1, 2, 3}

	out, err := ens.Predict(context.Background(), req, horizons)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}

	for _, metric := range ensemble.AllMetrics() {
		curve, ok := out[metric]
		if !ok {
			t.Fatalf("missing metric %q in output", metric)
		}
		if len(curve) != len(horizons) {
			t.Fatalf("%s curve has %d points, want %d", metric, len(curve), len(horizons))
		}
		for i, point := range curve {
			if point.AgeHours != horizons[i] {
				t.Errorf("%s point %d labeled %v, want %v", metric, i, point.AgeHours, horizons[i])
			}
			if point.Value < 0 {
				t.Errorf("%s point %d is negative: %v", metric, i, point.Value)
			}
		}
	}
}

func TestPredictMonotoneInFollowers(t *testing.T) {
	ens, _ := buildEnsemble(t)
	ctx := context.Background()

	prev := make(map[ensemble.Metric]float64)
	for _, followers := range []int64{10, 100, 1000, 10000, 100000} {
		out, err := ens.Predict(ctx, ensemble.PredictionRequest{
			Text:                 "fixed text for the monotonicity check",
			AuthorFollowersCount: followers,
			IsBlueVerified:       true,
		}, []float64{6})
		if err != nil {
			t.Fatalf("Predict: %v", err)
		}
		for _, metric := range ensemble.AllMetrics() {
			v := out[metric][0].Value
			if p, ok := prev[metric]; ok && v < p-1e-9 {
				t.Errorf("%s prediction decreased from %v to %v when followers grew to %d",
					metric, p, v, followers)
			}
			prev[metric] = v
		}
	}
}

func TestPredictBulkMatchesPredict(t *testing.T) {
	ens, _ := buildEnsemble(t)
	ctx := context.Background()

	req := ensemble.PredictionRequest{
		Text:                 "bulk and single must agree",
		AuthorFollowersCount: 2500,
		IsBlueVerified:       false,
	}
	horizons := []float64{0.1, 1, 12, 24}

	single, err := ens.Predict(ctx, req, horizons)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	bulk, err := ens.PredictBulk(ctx, []ensemble.PredictionRequest{req}, horizons)
	if err != nil {
		t.Fatalf("PredictBulk: %v", err)
	}
	if len(bulk) != 1 {
		t.Fatalf("bulk returned %d entries, want 1", len(bulk))
	}

	for _, metric := range ensemble.AllMetrics() {
		for i := range horizons {
			got := bulk[0].Predictions[metric][i]
			want := single[metric][i].Value
			if math.Abs(got-want) > 1e-9 {
				t.Errorf("%s[%d]: bulk %v != single %v", metric, i, got, want)
			}
		}
	}
}

func TestPredictBulkKeepsIdenticalTextsDistinct(t *testing.T) {
	ens, _ := buildEnsemble(t)

	inputs := []ensemble.PredictionRequest{
		{Text: "same text", AuthorFollowersCount: 100, IsBlueVerified: false},
		{Text: "same text", AuthorFollowersCount: 50000, IsBlueVerified: true},
	}

	bulk, err := ens.PredictBulk(context.Background(), inputs, []float64{1, 2})
	if err != nil {
		t.Fatalf("PredictBulk: %v", err)
	}
	if len(bulk) != 2 {
		t.Fatalf("bulk merged identical texts: got %d entries, want 2", len(bulk))
	}
	for i, b := range bulk {
		if b.TweetIndex != i {
			t.Errorf("entry %d has tweet index %d", i, b.TweetIndex)
		}
		if b.Text != "same text" {
			t.Errorf("entry %d text = %q", i, b.Text)
		}
	}
}

func TestPredictValidation(t *testing.T) {
	ens, _ := buildEnsemble(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		req      ensemble.PredictionRequest
		horizons []float64
	}{
		{"empty text", ensemble.PredictionRequest{Text: "", AuthorFollowersCount: 10}, []float64{1}},
		{"zero followers", ensemble.PredictionRequest{Text: "x", AuthorFollowersCount: 0}, []float64{1}},
		{"negative followers", ensemble.PredictionRequest{Text: "x", AuthorFollowersCount: -5}, []float64{1}},
		{"no horizons", ensemble.PredictionRequest{Text: "x", AuthorFollowersCount: 10}, nil},
		{"non-positive horizon", ensemble.PredictionRequest{Text: "x", AuthorFollowersCount: 10}, []float64{1, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ens.Predict(ctx, tt.req, tt.horizons); !errors.Is(err, ensemble.ErrInvalidInput) {
				t.Errorf("error = %v, want ErrInvalidInput", err)
			}
		})
	}

	if _, err := ens.PredictBulk(ctx, nil, []float64{1}); !errors.Is(err, ensemble.ErrInvalidInput) {
		t.Errorf("empty bulk error = %v, want ErrInvalidInput", err)
	}
}

func TestPredictEmbeddingFailurePropagates(t *testing.T) {
	ens, _ := buildEnsemble(t)

	broken := failingEmbedder{stubEmbedder{dim: 4}}
	artifacts := store.NewArtifactStore(t.TempDir())
	model := trainMetricModel(t, broken.stubEmbedder, "views", 1)
	if err := artifacts.Save(model); err != nil {
		t.Fatalf("save: %v", err)
	}
	ensBroken, err := ensemble.Load(artifacts, broken, []ensemble.Metric{ensemble.MetricViews})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	_, err = ensBroken.Predict(context.Background(), ensemble.PredictionRequest{
		Text: "anything", AuthorFollowersCount: 10,
	}, []float64{1})
	if !errors.Is(err, embedding.ErrBackend) {
		t.Errorf("error = %v, want ErrBackend", err)
	}

	// The healthy ensemble still works.
	if _, err := ens.Predict(context.Background(), ensemble.PredictionRequest{
		Text: "anything", AuthorFollowersCount: 10,
	}, []float64{1}); err != nil {
		t.Errorf("healthy ensemble failed: %v", err)
	}
}

func TestLoadMissingArtifact(t *testing.T) {
	artifacts := store.NewArtifactStore(t.TempDir())
	_, err := ensemble.Load(artifacts, stubEmbedder{dim: 4}, ensemble.AllMetrics())
	if !errors.Is(err, store.ErrArtifactNotFound) {
		t.Errorf("error = %v, want ErrArtifactNotFound", err)
	}
}

func TestLoadRejectsEmbedderMismatch(t *testing.T) {
	emb := stubEmbedder{dim: 4}
	artifacts := store.NewArtifactStore(t.TempDir())
	model := trainMetricModel(t, emb, "views", 1)
	if err := artifacts.Save(model); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Wrong dimension: schema no longer matches the embedder output.
	if _, err := ensemble.Load(artifacts, stubEmbedder{dim: 8}, []ensemble.Metric{ensemble.MetricViews}); err == nil {
		t.Error("expected load failure for dimension mismatch")
	}
}

func TestDefaultHorizons(t *testing.T) {
	horizons := ensemble.DefaultHorizons()
	if len(horizons) != 25 {
		t.Fatalf("got %d horizons, want 25", len(horizons))
	}
	if horizons[0] != 0.1 || horizons[1] != 1 || horizons[24] != 24 {
		t.Errorf("unexpected horizon endpoints: %v", horizons)
	}
	for i := 1; i < len(horizons); i++ {
		if horizons[i] <= horizons[i-1] {
			t.Errorf("horizons not increasing at %d: %v", i, horizons)
		}
	}
}
