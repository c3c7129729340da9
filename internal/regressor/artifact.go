package regressor

import (
	"fmt"
)

// ArtifactVersion is bumped whenever the serialized layout changes; a
// loader refuses artifacts it does not understand instead of trusting an
// opaque blob.
const ArtifactVersion = 1

// Artifact is the explicit persisted form of a trained regressor: the
// model itself plus the feature schema and embedding identity needed to
// validate compatibility before serving.
type Artifact struct {
	Version        int      `json:"version"`
	Target         string   `json:"target"`
	EmbeddingModel string   `json:"embedding_model"`
	EmbeddingDim   int      `json:"embedding_dim"`
	FeatureNames   []string `json:"feature_names"`
	Monotone       []int    `json:"monotone_constraints"`
	BaseScore      float64  `json:"base_score"`
	BestRound      int      `json:"best_round"`
	Trees          []Tree   `json:"trees"`
}

// SetEmbedding records the embedding model identity in the schema; called
// by the training pipeline before saving.
func (r *Regressor) SetEmbedding(model string, dim int) {
	r.embeddingModel = model
	r.embeddingDim = dim
}

// Artifact exports the trained model for persistence.
func (r *Regressor) Artifact() Artifact {
	return Artifact{
		Version:        ArtifactVersion,
		Target:         r.target,
		EmbeddingModel: r.embeddingModel,
		EmbeddingDim:   r.embeddingDim,
		FeatureNames:   append([]string(nil), r.featureNames...),
		Monotone:       append([]int(nil), r.monotone...),
		BaseScore:      r.baseScore,
		BestRound:      r.bestRound,
		Trees:          r.trees,
	}
}

// FromArtifact reconstructs a regressor, validating the artifact schema
// first.
func FromArtifact(a Artifact) (*Regressor, error) {
	if a.Version != ArtifactVersion {
		return nil, fmt.Errorf("regressor: unsupported artifact version %d (want %d)", a.Version, ArtifactVersion)
	}
	if a.Target == "" {
		return nil, fmt.Errorf("regressor: artifact has no target metric")
	}
	if len(a.FeatureNames) == 0 {
		return nil, fmt.Errorf("regressor: artifact for %q has no feature schema", a.Target)
	}
	if len(a.Monotone) != len(a.FeatureNames) {
		return nil, fmt.Errorf("regressor: artifact for %q has %d constraints for %d features",
			a.Target, len(a.Monotone), len(a.FeatureNames))
	}
	if len(a.Trees) == 0 {
		return nil, fmt.Errorf("regressor: artifact for %q has no trees", a.Target)
	}
	if a.BestRound < 1 || a.BestRound > len(a.Trees) {
		return nil, fmt.Errorf("regressor: artifact for %q has best round %d out of %d trees",
			a.Target, a.BestRound, len(a.Trees))
	}
	for ti, t := range a.Trees {
		for ni, node := range t.Nodes {
			if node.Feature >= len(a.FeatureNames) {
				return nil, fmt.Errorf("regressor: artifact for %q tree %d node %d references feature %d outside schema",
					a.Target, ti, ni, node.Feature)
			}
		}
	}

	return &Regressor{
		target:         a.Target,
		featureNames:   append([]string(nil), a.FeatureNames...),
		monotone:       append([]int(nil), a.Monotone...),
		baseScore:      a.BaseScore,
		trees:          a.Trees,
		bestRound:      a.BestRound,
		embeddingModel: a.EmbeddingModel,
		embeddingDim:   a.EmbeddingDim,
	}, nil
}
