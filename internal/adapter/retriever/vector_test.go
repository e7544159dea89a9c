package retriever

import (
	"math"
	"testing"
)

func TestCosineSimilarity_Identical(t *testing.T) {
	v := []float32{0.5, 0.3, 0.8}

	got := CosineSimilarity(v, v)
	if math.Abs(got-1.0) > 1e-9 {
		t.Errorf("expected 1.0 for identical vectors, got %f", got)
	}
}

func TestCosineSimilarity_Orthogonal(t *testing.T) {
	got := CosineSimilarity([]float32{1, 0}, []float32{0, 1})
	if math.Abs(got) > 1e-9 {
		t.Errorf("expected 0 for orthogonal vectors, got %f", got)
	}
}

func TestCosineSimilarity_Opposite(t *testing.T) {
	got := CosineSimilarity([]float32{1, 2}, []float32{-1, -2})
	if math.Abs(got+1.0) > 1e-9 {
		t.Errorf("expected -1.0 for opposite vectors, got %f", got)
	}
}

func TestCosineSimilarity_MismatchScoresZero(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
	}{
		{"nil a", nil, []float32{1, 2}},
		{"nil b", []float32{1, 2}, nil},
		{"both nil", nil, nil},
		{"length mismatch", []float32{1, 2, 3}, []float32{1, 2}},
		{"zero vector", []float32{0, 0}, []float32{1, 2}},
	}
	for _, tt := range tests {
		if got := CosineSimilarity(tt.a, tt.b); got != 0 {
			t.Errorf("%s: expected 0, got %f", tt.name, got)
		}
	}
}

func TestCosineSimilarity_Bounds(t *testing.T) {
	a := []float32{0.1, -0.4, 0.9, 0.2}
	b := []float32{-0.7, 0.3, 0.5, -0.1}

	got := CosineSimilarity(a, b)
	if got < -1.0-1e-9 || got > 1.0+1e-9 {
		t.Errorf("similarity out of [-1, 1]: %f", got)
	}
}
