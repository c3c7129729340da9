package features

import (
	"math"
	"testing"
)

func TestTransformLogScaling(t *testing.T) {
	f := Transform(Row{AuthorFollowersCount: 100, AgeHours: 5})
	if got, want := f.AuthorFollowersCount, math.Log1p(100); got != want {
		t.Errorf("AuthorFollowersCount = %v, want %v", got, want)
	}
	if got, want := f.AgeHours, math.Log1p(5); got != want {
		t.Errorf("AgeHours = %v, want %v", got, want)
	}
}

func TestTransformMonotoneInFollowers(t *testing.T) {
	prev := math.Inf(-1)
	for _, n := range []float64{0, 1, 10, 100, 1e4, 1e7} {
		f := Transform(Row{AuthorFollowersCount: n})
		if f.AuthorFollowersCount <= prev {
			t.Fatalf("transform not increasing at followers=%v: %v <= %v", n, f.AuthorFollowersCount, prev)
		}
		prev = f.AuthorFollowersCount
	}
}

func TestTransformBooleanAndCategorical(t *testing.T) {
	tests := []struct {
		name     string
		row      Row
		verified float64
		color    float64
	}{
		{name: "unverified", row: Row{}, verified: 0, color: 0},
		{name: "verified", row: Row{IsBlueVerified: true}, verified: 1, color: 0},
		{name: "blue checkmark", row: Row{CheckmarkColor: "blue"}, verified: 0, color: 1},
		{name: "legacy verified checkmark", row: Row{CheckmarkColor: "verified"}, verified: 0, color: 1},
		{name: "no checkmark", row: Row{CheckmarkColor: "none"}, verified: 0, color: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := Transform(tt.row)
			if f.IsBlueVerified != tt.verified {
				t.Errorf("IsBlueVerified = %v, want %v", f.IsBlueVerified, tt.verified)
			}
			if f.CheckmarkColor != tt.color {
				t.Errorf("CheckmarkColor = %v, want %v", f.CheckmarkColor, tt.color)
			}
		})
	}
}

func TestTransformTextStatistics(t *testing.T) {
	f := Transform(Row{Text: "hello world"})
	if f.TextCharCount != 11 {
		t.Errorf("TextCharCount = %v, want 11", f.TextCharCount)
	}
	if f.TextWordCount != 2 {
		t.Errorf("TextWordCount = %v, want 2", f.TextWordCount)
	}

	empty := Transform(Row{})
	if empty.TextCharCount != 0 || empty.TextWordCount != 0 {
		t.Errorf("empty text stats = (%v, %v), want (0, 0)", empty.TextCharCount, empty.TextWordCount)
	}
}

func TestTransformOptionalTrainingFields(t *testing.T) {
	following := 50.0
	f := Transform(Row{AuthorFollowingCount: &following})
	if got, want := f.AuthorFollowingCount, math.Log1p(50); got != want {
		t.Errorf("AuthorFollowingCount = %v, want %v", got, want)
	}
	absent := Transform(Row{})
	if absent.AuthorFollowingCount != 0 {
		t.Errorf("absent AuthorFollowingCount = %v, want 0", absent.AuthorFollowingCount)
	}
}

func TestSchemaOrdering(t *testing.T) {
	schema := Schema(3)
	want := []string{
		FeatAuthorFollowersCount, FeatAgeHours, FeatIsBlueVerified,
		"text_emb_0", "text_emb_1", "text_emb_2",
	}
	if len(schema) != len(want) {
		t.Fatalf("Schema(3) has %d columns, want %d", len(schema), len(want))
	}
	for i := range want {
		if schema[i] != want[i] {
			t.Errorf("Schema(3)[%d] = %q, want %q", i, schema[i], want[i])
		}
	}
}

func TestMatrix(t *testing.T) {
	rows := []FeatureRow{
		{AuthorFollowersCount: 1, AgeHours: 2, IsBlueVerified: 1},
		{AuthorFollowersCount: 3, AgeHours: 4},
	}
	emb := [][]float32{{0.5, 0.25}, {0.75, 0.125}}

	X, err := Matrix(rows, BaseFeatures(), emb)
	if err != nil {
		t.Fatalf("Matrix: %v", err)
	}
	want := [][]float64{
		{1, 2, 1, 0.5, 0.25},
		{3, 4, 0, 0.75, 0.125},
	}
	for i := range want {
		for j := range want[i] {
			if X[i][j] != want[i][j] {
				t.Errorf("X[%d][%d] = %v, want %v", i, j, X[i][j], want[i][j])
			}
		}
	}
}

func TestMatrixRejectsUnknownColumn(t *testing.T) {
	_, err := Matrix([]FeatureRow{{}}, []string{"no_such_feature"}, nil)
	if err == nil {
		t.Fatal("expected error for unknown feature column")
	}
}

func TestMatrixRejectsEmbeddingCountMismatch(t *testing.T) {
	_, err := Matrix([]FeatureRow{{}, {}}, BaseFeatures(), [][]float32{{1}})
	if err == nil {
		t.Fatal("expected error for embedding count mismatch")
	}
}
