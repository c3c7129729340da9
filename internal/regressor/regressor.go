// Package regressor implements gradient-boosted regression trees for one
// engagement metric: leaf-wise tree growth, per-feature monotone
// constraints, early stopping on a validation set, and a versioned
// serialized artifact. Targets are trained in log1p space and inverted at
// prediction time, which stabilizes variance for heavy-tailed count data
// and guarantees non-negative predictions.
package regressor

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrModelNotLoaded is returned when predicting before a model was
	// trained or loaded.
	ErrModelNotLoaded = errors.New("regressor: model not trained or loaded")

	// ErrFeatureMismatch is returned when the supplied feature set does
	// not exactly match the training-time schema. Silent column
	// misalignment corrupts predictions, so this fails loudly.
	ErrFeatureMismatch = errors.New("regressor: feature schema mismatch")
)

// Params controls boosted training.
type Params struct {
	// NumRounds caps the number of boosting rounds.
	NumRounds int
	// LearningRate shrinks each tree's contribution.
	LearningRate float64
	// NumLeaves caps leaves per tree (grown leaf-wise, best gain first).
	NumLeaves int
	// MinLeafSize is the minimum number of rows per leaf.
	MinLeafSize int
	// EarlyStopping stops training after this many rounds without
	// validation improvement; the checkpoint at the best round is kept.
	EarlyStopping int
}

// DefaultParams mirrors the configuration the production models were
// trained with.
func DefaultParams() Params {
	return Params{
		NumRounds:     500,
		LearningRate:  0.05,
		NumLeaves:     31,
		MinLeafSize:   20,
		EarlyStopping: 50,
	}
}

// Regressor is one trained gradient-boosted model. Its feature schema and
// monotone-constraint spec are baked in at training time; instances are
// immutable after training or loading and safe for concurrent prediction.
type Regressor struct {
	target       string
	featureNames []string
	monotone     []int
	baseScore    float64
	trees        []Tree
	bestRound    int

	embeddingModel string
	embeddingDim   int
}

// Target names the metric this model predicts.
func (r *Regressor) Target() string { return r.target }

// FeatureNames returns the ordered training-time feature schema.
func (r *Regressor) FeatureNames() []string {
	return append([]string(nil), r.featureNames...)
}

// EmbeddingModel names the sentence-embedding model whose vectors the
// feature schema was built with.
func (r *Regressor) EmbeddingModel() string { return r.embeddingModel }

// EmbeddingDim is the embedding width baked into the schema.
func (r *Regressor) EmbeddingDim() int { return r.embeddingDim }

// BestRound is the boosting round with the best validation loss; only
// trees up to it contribute to predictions.
func (r *Regressor) BestRound() int { return r.bestRound }

// NumTrees is the total number of boosting rounds fit before stopping.
func (r *Regressor) NumTrees() int { return len(r.trees) }

// CheckSchema verifies that names exactly matches the training-time
// feature ordering.
func (r *Regressor) CheckSchema(names []string) error {
	if len(names) != len(r.featureNames) {
		return fmt.Errorf("%w: got %d features, want %d",
			ErrFeatureMismatch, len(names), len(r.featureNames))
	}
	for i, name := range names {
		if name != r.featureNames[i] {
			return fmt.Errorf("%w: column %d is %q, want %q",
				ErrFeatureMismatch, i, name, r.featureNames[i])
		}
	}
	return nil
}

func (r *Regressor) predictLog(x []float64) float64 {
	sum := r.baseScore
	for _, t := range r.trees[:r.bestRound] {
		sum += t.Predict(x)
	}
	return sum
}

// PredictRow predicts the metric for one feature vector, inverting the
// log-space target transform and clamping at zero.
func (r *Regressor) PredictRow(x []float64) (float64, error) {
	if len(r.trees) == 0 {
		return 0, ErrModelNotLoaded
	}
	if len(x) != len(r.featureNames) {
		return 0, fmt.Errorf("%w: got %d columns, want %d",
			ErrFeatureMismatch, len(x), len(r.featureNames))
	}
	v := math.Expm1(r.predictLog(x))
	if v < 0 {
		v = 0
	}
	return v, nil
}

// Predict predicts the metric for every row of the design matrix.
func (r *Regressor) Predict(X [][]float64) ([]float64, error) {
	out := make([]float64, len(X))
	for i, x := range X {
		v, err := r.PredictRow(x)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
