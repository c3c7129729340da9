package regressor

import (
	"encoding/json"
	"errors"
	"math"
	"math/rand"
	"testing"
)

func testParams() Params {
	return Params{
		NumRounds:     80,
		LearningRate:  0.1,
		NumLeaves:     7,
		MinLeafSize:   5,
		EarlyStopping: 20,
	}
}

// syntheticData builds rows over three features with a target that is
// increasing in the first feature.
func syntheticData(n int, seed int64) Dataset {
	rng := rand.New(rand.NewSource(seed))
	X := make([][]float64, n)
	Y := make([]float64, n)
	for i := range X {
		x0 := rng.Float64() * 10
		x1 := rng.Float64() * 4
		x2 := float64(rng.Intn(2))
		X[i] = []float64{x0, x1, x2}
		Y[i] = 0.8*x0 + 0.4*x1 + 0.5*x2 + 0.05*rng.NormFloat64()
	}
	return Dataset{X: X, Y: Y}
}

var testFeatures = []string{"author_followers_count", "age_hours", "is_blue_verified"}

func trainTestModel(t *testing.T, monotone []int) *Regressor {
	t.Helper()
	train := syntheticData(600, 1)
	val := syntheticData(150, 2)
	model, err := Train("views", testFeatures, monotone, train, val, testParams())
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	return model
}

func TestTrainLearnsSignal(t *testing.T) {
	model := trainTestModel(t, []int{0, 0, 0})

	// Predictions invert the log1p target transform, so compare in the
	// model's output space.
	for _, tc := range []struct {
		x    []float64
		want float64
	}{
		{x: []float64{2, 2, 0}, want: math.Expm1(0.8*2 + 0.4*2)},
		{x: []float64{8, 1, 1}, want: math.Expm1(0.8*8 + 0.4*1 + 0.5)},
	} {
		got, err := model.PredictRow(tc.x)
		if err != nil {
			t.Fatalf("PredictRow: %v", err)
		}
		if math.Abs(math.Log1p(got)-math.Log1p(tc.want)) > 0.5 {
			t.Errorf("PredictRow(%v) = %v, want within 0.5 log units of %v", tc.x, got, tc.want)
		}
	}
}

func TestMonotoneConstraintHolds(t *testing.T) {
	model := trainTestModel(t, []int{1, 0, 0})

	rng := rand.New(rand.NewSource(3))
	for trial := 0; trial < 50; trial++ {
		x1 := rng.Float64() * 4
		x2 := float64(rng.Intn(2))
		prev := -1.0
		for x0 := 0.0; x0 <= 10; x0 += 0.25 {
			v, err := model.PredictRow([]float64{x0, x1, x2})
			if err != nil {
				t.Fatalf("PredictRow: %v", err)
			}
			if v < prev-1e-9 {
				t.Fatalf("prediction decreased in constrained feature: f(%v)=%v < f(prev)=%v (x1=%v x2=%v)",
					x0, v, prev, x1, x2)
			}
			prev = v
		}
	}
}

func TestPredictionsNonNegative(t *testing.T) {
	// Targets centered below zero would otherwise invert to negatives.
	rng := rand.New(rand.NewSource(4))
	n := 200
	X := make([][]float64, n)
	Y := make([]float64, n)
	for i := range X {
		X[i] = []float64{rng.Float64(), rng.Float64(), 0}
		Y[i] = -1 + 0.1*rng.NormFloat64()
	}
	d := Dataset{X: X, Y: Y}
	model, err := Train("views", testFeatures, []int{0, 0, 0}, d, d, testParams())
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	for i := 0; i < 20; i++ {
		v, err := model.PredictRow([]float64{rng.Float64(), rng.Float64(), 0})
		if err != nil {
			t.Fatalf("PredictRow: %v", err)
		}
		if v < 0 {
			t.Fatalf("prediction %v is negative", v)
		}
	}
}

func TestEarlyStoppingKeepsBestRound(t *testing.T) {
	// Validation targets unrelated to training targets: validation RMSE
	// stops improving quickly and training must halt well short of the
	// round ceiling.
	train := syntheticData(400, 5)
	val := syntheticData(100, 6)
	rng := rand.New(rand.NewSource(7))
	for i := range val.Y {
		val.Y[i] = rng.NormFloat64()
	}

	p := testParams()
	p.NumRounds = 200
	p.EarlyStopping = 10
	model, err := Train("views", testFeatures, []int{0, 0, 0}, train, val, p)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	if model.NumTrees() >= p.NumRounds {
		t.Errorf("trained %d trees, expected early stop before %d", model.NumTrees(), p.NumRounds)
	}
	if model.BestRound() > model.NumTrees() {
		t.Errorf("best round %d exceeds tree count %d", model.BestRound(), model.NumTrees())
	}
}

func TestPredictRowErrors(t *testing.T) {
	var empty Regressor
	if _, err := empty.PredictRow([]float64{1}); !errors.Is(err, ErrModelNotLoaded) {
		t.Errorf("unloaded model error = %v, want ErrModelNotLoaded", err)
	}

	model := trainTestModel(t, []int{0, 0, 0})
	if _, err := model.PredictRow([]float64{1, 2}); !errors.Is(err, ErrFeatureMismatch) {
		t.Errorf("wrong width error = %v, want ErrFeatureMismatch", err)
	}
}

func TestCheckSchema(t *testing.T) {
	model := trainTestModel(t, []int{0, 0, 0})

	if err := model.CheckSchema(testFeatures); err != nil {
		t.Errorf("matching schema rejected: %v", err)
	}
	if err := model.CheckSchema([]string{"age_hours", "author_followers_count", "is_blue_verified"}); !errors.Is(err, ErrFeatureMismatch) {
		t.Errorf("reordered schema error = %v, want ErrFeatureMismatch", err)
	}
	if err := model.CheckSchema(testFeatures[:2]); !errors.Is(err, ErrFeatureMismatch) {
		t.Errorf("truncated schema error = %v, want ErrFeatureMismatch", err)
	}
}

func TestArtifactRoundTrip(t *testing.T) {
	model := trainTestModel(t, []int{1, 0, 0})
	model.SetEmbedding("stub-embedder", 0)

	raw, err := json.Marshal(model.Artifact())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var a Artifact
	if err := json.Unmarshal(raw, &a); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	restored, err := FromArtifact(a)
	if err != nil {
		t.Fatalf("FromArtifact: %v", err)
	}

	sample := syntheticData(50, 8)
	for _, x := range sample.X {
		want, err := model.PredictRow(x)
		if err != nil {
			t.Fatalf("PredictRow: %v", err)
		}
		got, err := restored.PredictRow(x)
		if err != nil {
			t.Fatalf("restored PredictRow: %v", err)
		}
		if got != want {
			t.Fatalf("restored prediction %v differs from original %v", got, want)
		}
	}
}

func TestFromArtifactValidation(t *testing.T) {
	valid := trainTestModel(t, []int{0, 0, 0}).Artifact()

	tests := []struct {
		name   string
		mutate func(a *Artifact)
	}{
		{"wrong version", func(a *Artifact) { a.Version = 99 }},
		{"no target", func(a *Artifact) { a.Target = "" }},
		{"no features", func(a *Artifact) { a.FeatureNames = nil }},
		{"constraint length mismatch", func(a *Artifact) { a.Monotone = a.Monotone[:1] }},
		{"no trees", func(a *Artifact) { a.Trees = nil }},
		{"best round out of range", func(a *Artifact) { a.BestRound = len(a.Trees) + 1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := valid
			a.FeatureNames = append([]string(nil), valid.FeatureNames...)
			a.Monotone = append([]int(nil), valid.Monotone...)
			a.Trees = append([]Tree(nil), valid.Trees...)
			tt.mutate(&a)
			if _, err := FromArtifact(a); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestTreePredictRouting(t *testing.T) {
	tree := Tree{Nodes: []Node{
		{Feature: 0, Threshold: 1.5, Left: 1, Right: 2},
		{Feature: -1, Value: -1},
		{Feature: -1, Value: 2},
	}}
	if got := tree.Predict([]float64{1.0}); got != -1 {
		t.Errorf("left branch = %v, want -1", got)
	}
	if got := tree.Predict([]float64{1.5}); got != -1 {
		t.Errorf("boundary routes left, got %v", got)
	}
	if got := tree.Predict([]float64{2.0}); got != 2 {
		t.Errorf("right branch = %v, want 2", got)
	}
	if got := tree.NumLeaves(); got != 2 {
		t.Errorf("NumLeaves = %d, want 2", got)
	}
}
