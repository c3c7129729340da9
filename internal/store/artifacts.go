// Package store persists and retrieves the pipeline's durable state:
// trained model artifacts on disk and historical tweet observations in
// Postgres.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/adolic/tweet-optimized/internal/regressor"
)

// ErrArtifactNotFound is returned when no persisted model exists for a
// requested metric. At startup that is fatal: the process must not serve
// traffic without all configured metrics loaded.
var ErrArtifactNotFound = errors.New("store: model artifact not found")

// ArtifactStore keeps one serialized model per metric under a directory,
// written only by the offline training pipeline and read-only at serving
// time.
type ArtifactStore struct {
	dir string
}

func NewArtifactStore(dir string) *ArtifactStore {
	return &ArtifactStore{dir: dir}
}

// Path returns the artifact file for a metric.
func (s *ArtifactStore) Path(target string) string {
	return filepath.Join(s.dir, fmt.Sprintf("model_%s.json", target))
}

func (s *ArtifactStore) Save(r *regressor.Regressor) error {
	if err := os.MkdirAll(s.dir, os.ModePerm); err != nil {
		return fmt.Errorf("failed to create artifact directory: %w", err)
	}

	raw, err := json.Marshal(r.Artifact())
	if err != nil {
		return fmt.Errorf("failed to marshal artifact for %q: %w", r.Target(), err)
	}

	path := s.Path(r.Target())
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write artifact for %q: %w", r.Target(), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace artifact for %q: %w", r.Target(), err)
	}

	slog.Info("[ArtifactStore] Model saved",
		slog.String("target", r.Target()),
		slog.String("path", path))
	return nil
}

func (s *ArtifactStore) Load(target string) (*regressor.Regressor, error) {
	path := s.Path(target)
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %q (%s)", ErrArtifactNotFound, target, path)
		}
		return nil, fmt.Errorf("failed to read artifact for %q: %w", target, err)
	}

	var a regressor.Artifact
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("failed to unmarshal artifact for %q: %w", target, err)
	}
	if a.Target != target {
		return nil, fmt.Errorf("artifact at %s is for %q, not %q", path, a.Target, target)
	}
	return regressor.FromArtifact(a)
}

// SaveMetrics writes an evaluation summary next to the artifacts as
// metrics.json.
func (s *ArtifactStore) SaveMetrics(v any) error {
	if err := os.MkdirAll(s.dir, os.ModePerm); err != nil {
		return fmt.Errorf("failed to create artifact directory: %w", err)
	}
	raw, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}
	return os.WriteFile(filepath.Join(s.dir, "metrics.json"), raw, 0o644)
}
