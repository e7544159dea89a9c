package retriever

import (
	"testing"

	"kbsearch/internal/domain"
)

func testStats() domain.Stats {
	return domain.Stats{
		DocFreq: map[string]int{
			"pricing":    2,
			"plans":      3,
			"workstream": 8,
			"hiring":     5,
		},
		DocCount:  10,
		AvgDocLen: 50,
	}
}

func TestBM25Score_NoMatchScoresZero(t *testing.T) {
	tf := map[string]int{"onboarding": 3}

	score := BM25Score([]string{"pricing", "plans"}, tf, 40, testStats())
	if score != 0 {
		t.Errorf("expected 0 for no matching terms, got %f", score)
	}
}

func TestBM25Score_MoreMatchesScoreHigher(t *testing.T) {
	one := map[string]int{"pricing": 2}
	two := map[string]int{"pricing": 2, "plans": 1}
	query := []string{"pricing", "plans"}

	s1 := BM25Score(query, one, 40, testStats())
	s2 := BM25Score(query, two, 40, testStats())
	if s2 <= s1 {
		t.Errorf("expected more matched terms to score higher: one=%f two=%f", s1, s2)
	}
}

func TestBM25Score_RareTermOutranksCommon(t *testing.T) {
	tf := map[string]int{"pricing": 1, "workstream": 1}

	rare := BM25Score([]string{"pricing"}, tf, 50, testStats())
	common := BM25Score([]string{"workstream"}, tf, 50, testStats())
	if rare <= common {
		t.Errorf("expected rare term (df=2) to outrank common (df=8): rare=%f common=%f", rare, common)
	}
}

func TestBM25Score_EmptyQueryScoresZero(t *testing.T) {
	if score := BM25Score(nil, map[string]int{"pricing": 1}, 10, testStats()); score != 0 {
		t.Errorf("expected 0 for empty query, got %f", score)
	}
}

func TestBM25Score_EmptyStatsFallsBackToMatchFraction(t *testing.T) {
	tf := map[string]int{"pricing": 1, "plans": 1}
	query := []string{"pricing", "plans", "cost", "monthly"}

	score := BM25Score(query, tf, 20, domain.Stats{})
	if score != 0.5 {
		t.Errorf("expected match fraction 0.5 with empty stats, got %f", score)
	}

	// Monotone in matched terms
	more := BM25Score(query, map[string]int{"pricing": 1, "plans": 1, "cost": 1}, 20, domain.Stats{})
	if more <= score {
		t.Errorf("expected fallback to grow with matches: %f then %f", score, more)
	}
}

func TestMatchFraction(t *testing.T) {
	tf := map[string]int{"hiring": 2, "software": 1}

	tests := []struct {
		query []string
		want  float64
	}{
		{[]string{"hiring", "software"}, 1.0},
		{[]string{"hiring", "pricing"}, 0.5},
		{[]string{"pricing", "plans"}, 0.0},
		{[]string{"hiring", "hiring", "hiring", "pricing"}, 0.5}, // unique terms only
		{nil, 0.0},
	}
	for _, tt := range tests {
		if got := MatchFraction(tt.query, tf); got != tt.want {
			t.Errorf("MatchFraction(%v) = %f, want %f", tt.query, got, tt.want)
		}
	}
}

func TestNormalizeBM25(t *testing.T) {
	if got := NormalizeBM25(0); got != 0 {
		t.Errorf("expected 0 for raw 0, got %f", got)
	}
	if got := NormalizeBM25(-3); got != 0 {
		t.Errorf("expected 0 for negative raw, got %f", got)
	}

	prev := 0.0
	for _, raw := range []float64{0.5, 2, 5, 10, 30} {
		got := NormalizeBM25(raw)
		if got <= prev {
			t.Errorf("expected monotone normalization, %f not > %f at raw %f", got, prev, raw)
		}
		if got >= 1 {
			t.Errorf("expected normalized score < 1, got %f at raw %f", got, raw)
		}
		prev = got
	}
}
