// Package embedding maps canonical tweet text to fixed-length dense
// vectors via a pretrained sentence-embedding model.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"
)

// ErrBackend marks a failed embedding computation. A prediction cannot be
// made without the embedding, so callers propagate it as a failed call;
// the computation is stateless and deterministic, so the whole call is
// safe to retry.
var ErrBackend = errors.New("embedding backend failure")

const (
	// DefaultModel is the sentence-transformer every deployed regressor
	// was trained against.
	DefaultModel     = "sentence-transformers/all-MiniLM-L6-v2"
	DefaultDimension = 384
)

// Embedder turns texts into one dense vector per text. Same text always
// yields the same vector.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	ModelName() string
}

// MiniLM runs the sentence-embedding model locally through an ONNX
// runtime session. One instance is shared across all regressors; it is
// safe for concurrent use after construction.
type MiniLM struct {
	session  *hugot.Session
	pipeline *pipelines.FeatureExtractionPipeline
	model    string
	dim      int
}

// NewMiniLM loads the embedding model from modelDir, downloading it on
// first use.
func NewMiniLM(modelName, modelDir string) (*MiniLM, error) {
	if modelName == "" {
		modelName = DefaultModel
	}
	if err := os.MkdirAll(modelDir, os.ModePerm); err != nil {
		return nil, fmt.Errorf("failed to create model directory: %w", err)
	}

	modelPath := filepath.Join(modelDir, strings.ReplaceAll(modelName, "/", "_"))
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		slog.Info("[Embedder] Model not found, downloading...",
			slog.String("model", modelName))
		downloaded, err := hugot.DownloadModel(modelName, modelDir, hugot.NewDownloadOptions())
		if err != nil {
			return nil, fmt.Errorf("failed to download embedding model: %w", err)
		}
		modelPath = downloaded
		slog.Info("[Embedder] Model downloaded successfully", slog.String("path", modelPath))
	} else {
		slog.Info("[Embedder] Using existing model", slog.String("path", modelPath))
	}

	session, err := hugot.NewORTSession()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize hugot session: %w", err)
	}

	config := hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      "sentenceEmbeddingPipeline",
	}
	pipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		session.Destroy()
		return nil, fmt.Errorf("failed to initialize embedding pipeline: %w", err)
	}

	return &MiniLM{
		session:  session,
		pipeline: pipeline,
		model:    modelName,
		dim:      DefaultDimension,
	}, nil
}

func (m *MiniLM) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return nil, nil
	}

	output, err := m.pipeline.RunPipeline(texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackend, err)
	}
	if len(output.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts",
			ErrBackend, len(output.Embeddings), len(texts))
	}
	for _, vec := range output.Embeddings {
		if len(vec) != m.dim {
			return nil, fmt.Errorf("%w: got %d-dimensional vector, want %d",
				ErrBackend, len(vec), m.dim)
		}
	}
	return output.Embeddings, nil
}

func (m *MiniLM) Dimension() int { return m.dim }

func (m *MiniLM) ModelName() string { return m.model }

func (m *MiniLM) Close() error {
	return m.session.Destroy()
}
