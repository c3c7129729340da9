// Package features derives the numeric model inputs from raw tweet
// attributes and assembles design matrices in the column order a trained
// regressor expects.
package features

import (
	"fmt"
	"math"

	"github.com/adolic/tweet-optimized/internal/textproc"
)

// Feature column names. The ordering consumed by a regressor at inference
// time must exactly match the ordering used at training time, so these are
// always referenced through an explicit ordered list.
const (
	FeatAuthorFollowersCount = "author_followers_count"
	FeatAuthorFollowingCount = "author_following_count"
	FeatAuthorTweetCount     = "author_tweet_count"
	FeatAuthorAgeYears       = "author_age_years"
	FeatAgeHours             = "age_hours"
	FeatIsBlueVerified       = "is_blue_verified"
	FeatCheckmarkColor       = "checkmark_color"
	FeatTextCharCount        = "text_char_count"
	FeatTextWordCount        = "text_word_count"
)

// BaseFeatures is the ordered numeric feature set of the deployed models.
// The embedding columns follow it in the full schema.
func BaseFeatures() []string {
	return []string{FeatAuthorFollowersCount, FeatAgeHours, FeatIsBlueVerified}
}

// EmbeddingFeatures names the embedding columns text_emb_0..text_emb_{dim-1}.
func EmbeddingFeatures(dim int) []string {
	names := make([]string, dim)
	for i := range names {
		names[i] = fmt.Sprintf("text_emb_%d", i)
	}
	return names
}

// Schema is the full ordered feature list for the given embedding width.
func Schema(dim int) []string {
	return append(BaseFeatures(), EmbeddingFeatures(dim)...)
}

// Row holds raw, untransformed attributes for one observation at one
// horizon. The optional author fields only exist in training-time enriched
// data, never at inference time.
type Row struct {
	Text                 string
	AuthorFollowersCount float64
	AuthorFollowingCount *float64
	AuthorTweetCount     *float64
	AuthorAgeYears       *float64
	AgeHours             float64
	IsBlueVerified       bool
	CheckmarkColor       string
}

// FeatureRow holds the derived values. Raw rows are kept separate from
// derived ones: Transform applies log1p and must run exactly once per row.
type FeatureRow struct {
	AuthorFollowersCount float64
	AuthorFollowingCount float64
	AuthorTweetCount     float64
	AuthorAgeYears       float64
	AgeHours             float64
	IsBlueVerified       float64
	CheckmarkColor       float64
	TextCharCount        float64
	TextWordCount        float64
}

// Transform derives model features from a raw row: log1p scaling on count
// and age fields, boolean coercion for verification, checkmark-color
// mapping, and text length statistics (zero when no text is present).
func Transform(r Row) FeatureRow {
	f := FeatureRow{
		AuthorFollowersCount: math.Log1p(r.AuthorFollowersCount),
		AgeHours:             math.Log1p(r.AgeHours),
	}
	if r.AuthorFollowingCount != nil {
		f.AuthorFollowingCount = math.Log1p(*r.AuthorFollowingCount)
	}
	if r.AuthorTweetCount != nil {
		f.AuthorTweetCount = math.Log1p(*r.AuthorTweetCount)
	}
	if r.AuthorAgeYears != nil {
		f.AuthorAgeYears = math.Log1p(*r.AuthorAgeYears)
	}
	if r.IsBlueVerified {
		f.IsBlueVerified = 1
	}
	switch r.CheckmarkColor {
	case "blue", "verified":
		f.CheckmarkColor = 1
	}
	if r.Text != "" {
		f.TextCharCount = float64(len(r.Text))
		f.TextWordCount = float64(textproc.WordCount(r.Text))
	}
	return f
}

// Value resolves a named feature column from the derived row.
func (f FeatureRow) Value(name string) (float64, bool) {
	switch name {
	case FeatAuthorFollowersCount:
		return f.AuthorFollowersCount, true
	case FeatAuthorFollowingCount:
		return f.AuthorFollowingCount, true
	case FeatAuthorTweetCount:
		return f.AuthorTweetCount, true
	case FeatAuthorAgeYears:
		return f.AuthorAgeYears, true
	case FeatAgeHours:
		return f.AgeHours, true
	case FeatIsBlueVerified:
		return f.IsBlueVerified, true
	case FeatCheckmarkColor:
		return f.CheckmarkColor, true
	case FeatTextCharCount:
		return f.TextCharCount, true
	case FeatTextWordCount:
		return f.TextWordCount, true
	}
	return 0, false
}

// Matrix builds a design matrix with one row per derived feature row: the
// named numeric columns in order, followed by that row's embedding vector.
// embeddings must be nil or have one vector per row.
func Matrix(rows []FeatureRow, names []string, embeddings [][]float32) ([][]float64, error) {
	if embeddings != nil && len(embeddings) != len(rows) {
		return nil, fmt.Errorf("features: %d rows but %d embedding vectors", len(rows), len(embeddings))
	}

	out := make([][]float64, len(rows))
	for i, row := range rows {
		width := len(names)
		if embeddings != nil {
			width += len(embeddings[i])
		}
		x := make([]float64, 0, width)
		for _, name := range names {
			v, ok := row.Value(name)
			if !ok {
				return nil, fmt.Errorf("features: unknown feature column %q", name)
			}
			x = append(x, v)
		}
		if embeddings != nil {
			for _, e := range embeddings[i] {
				x = append(x, float64(e))
			}
		}
		out[i] = x
	}
	return out, nil
}
