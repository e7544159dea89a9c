package retriever

import (
	"math"
	"testing"
	"time"

	"kbsearch/internal/adapter/llm"
	"kbsearch/internal/domain"
)

func mkCandidates(fused ...float64) []domain.ScoredCandidate {
	out := make([]domain.ScoredCandidate, len(fused))
	for i, f := range fused {
		out[i] = domain.ScoredCandidate{
			Doc:        domain.Document{ID: string(rune('a' + i)), Text: "doc"},
			FusedScore: f,
		}
	}
	return out
}

func TestRerank_JudgeOrdersResults(t *testing.T) {
	mock := llm.NewMockLLM(`[2, 9, 5]`)
	r := NewLLMReranker(mock, DefaultRerankPolicy(), nil)

	results := r.Rerank("query", mkCandidates(0.9, 0.5, 0.7), 3)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Doc.ID != "b" {
		t.Errorf("expected judge favorite first, got %q", results[0].Doc.ID)
	}
	if results[0].RerankScore != 9 {
		t.Errorf("rerank score = %f, want 9", results[0].RerankScore)
	}
}

func TestRerank_TopNTruncates(t *testing.T) {
	mock := llm.NewMockLLM(`[5, 5, 5]`)
	r := NewLLMReranker(mock, DefaultRerankPolicy(), nil)

	results := r.Rerank("query", mkCandidates(0.9, 0.5, 0.7), 2)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}

	// topN beyond the candidate count returns everything
	results = r.Rerank("query", mkCandidates(0.9, 0.5), 10)
	if len(results) != 2 {
		t.Fatalf("expected all candidates, got %d", len(results))
	}
}

func TestRerank_AllBatchesTimeOutFallsBackToFusedOrder(t *testing.T) {
	mock := llm.NewMockLLM(`[9, 9, 9]`)
	mock.Delay = 200 * time.Millisecond

	policy := DefaultRerankPolicy()
	policy.BatchTimeout = 10 * time.Millisecond
	r := NewLLMReranker(mock, policy, nil)

	results := r.Rerank("query", mkCandidates(0.5, 0.9, 0.7), 3)
	if len(results) != 3 {
		t.Fatalf("expected 3 results despite timeouts, got %d", len(results))
	}
	if results[0].Doc.ID != "b" || results[1].Doc.ID != "c" || results[2].Doc.ID != "a" {
		t.Errorf("expected fused-order fallback, got %q %q %q",
			results[0].Doc.ID, results[1].Doc.ID, results[2].Doc.ID)
	}
	for _, res := range results {
		if res.FinalScore != res.FusedScore {
			t.Errorf("fallback final score %f should equal fused %f", res.FinalScore, res.FusedScore)
		}
		want := clamp01(res.FusedScore) * 10
		if math.Abs(res.RerankScore-want) > 1e-9 {
			t.Errorf("fallback rerank score = %f, want %f", res.RerankScore, want)
		}
	}
}

func TestRerank_NilLLMPreservesFusedOrder(t *testing.T) {
	r := NewLLMReranker(nil, DefaultRerankPolicy(), nil)

	results := r.Rerank("query", mkCandidates(0.2, 0.8), 2)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Doc.ID != "b" {
		t.Errorf("expected fused order, got %q first", results[0].Doc.ID)
	}
}

func TestRerank_MalformedItemGetsMidpoint(t *testing.T) {
	mock := llm.NewMockLLM(`["high", 9]`)
	r := NewLLMReranker(mock, DefaultRerankPolicy(), nil)

	results := r.Rerank("query", mkCandidates(0.5, 0.5), 2)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Doc.ID != "b" || results[0].RerankScore != 9 {
		t.Errorf("expected parseable score to win: %q score %f", results[0].Doc.ID, results[0].RerankScore)
	}
	if results[1].RerankScore != judgeMidpoint {
		t.Errorf("malformed item score = %f, want midpoint %f", results[1].RerankScore, judgeMidpoint)
	}
}

func TestRerank_ScoresClampedToJudgeRange(t *testing.T) {
	mock := llm.NewMockLLM(`[42, -7]`)
	r := NewLLMReranker(mock, DefaultRerankPolicy(), nil)

	results := r.Rerank("query", mkCandidates(0.5, 0.5), 2)
	for _, res := range results {
		if res.RerankScore < 0 || res.RerankScore > 10 {
			t.Errorf("judge score %f outside 0-10", res.RerankScore)
		}
	}
}

func TestRerank_EmptyCandidates(t *testing.T) {
	r := NewLLMReranker(llm.NewMockLLM(`[5]`), DefaultRerankPolicy(), nil)

	if results := r.Rerank("query", nil, 5); results != nil {
		t.Errorf("expected nil for no candidates, got %d results", len(results))
	}
}

func TestRerank_MultipleBatches(t *testing.T) {
	mock := llm.NewMockLLM(`[9, 1]`)
	policy := DefaultRerankPolicy()
	policy.BatchSize = 2
	r := NewLLMReranker(mock, policy, nil)

	results := r.Rerank("query", mkCandidates(0.1, 0.2, 0.3), 3)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if mock.CallCount() != 2 {
		t.Errorf("expected 2 batch calls, got %d", mock.CallCount())
	}
}
