package retriever

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"kbsearch/internal/domain"
	"kbsearch/internal/port"
)

// judgeMidpoint is the default for a malformed or missing per-item
// score inside an otherwise valid judge response.
const judgeMidpoint = 5.0

// RerankPolicy bounds the second-pass rerank.
type RerankPolicy struct {
	BatchSize     int
	BatchTimeout  time.Duration
	VectorWeight  float64
	LexicalWeight float64
	JudgeWeight   float64
}

func DefaultRerankPolicy() RerankPolicy {
	return RerankPolicy{
		BatchSize:     5,
		BatchTimeout:  10 * time.Second,
		VectorWeight:  0.3,
		LexicalWeight: 0.2,
		JudgeWeight:   0.5,
	}
}

// LLMReranker re-scores fused candidates with an LLM relevance judge.
// Candidates are split into batches judged concurrently; a batch that
// times out or fails leaves its candidates on the fused-score
// fallback, so the caller always receives a fully ordered list. No
// retries happen at this layer.
type LLMReranker struct {
	llm    port.LLM
	policy RerankPolicy
	log    *zap.Logger
}

// NewLLMReranker creates a reranker. A nil llm puts every candidate
// on the fused-score fallback, preserving fused order.
func NewLLMReranker(llm port.LLM, policy RerankPolicy, log *zap.Logger) *LLMReranker {
	if policy.BatchSize <= 0 {
		policy.BatchSize = 5
	}
	if policy.BatchTimeout <= 0 {
		policy.BatchTimeout = 10 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &LLMReranker{llm: llm, policy: policy, log: log}
}

// Rerank returns min(topN, len(candidates)) results ordered by final
// score descending, ties broken by input order.
func (r *LLMReranker) Rerank(query string, candidates []domain.ScoredCandidate, topN int) []domain.RankedResult {
	if len(candidates) == 0 {
		return nil
	}
	if topN <= 0 || topN > len(candidates) {
		topN = len(candidates)
	}

	judged := make([]float64, len(candidates))
	hasJudge := make([]bool, len(candidates))

	if r.llm != nil {
		var mu sync.Mutex
		var g errgroup.Group

		for start := 0; start < len(candidates); start += r.policy.BatchSize {
			start := start
			end := start + r.policy.BatchSize
			if end > len(candidates) {
				end = len(candidates)
			}
			batch := candidates[start:end]

			g.Go(func() error {
				scores, ok := r.judgeBatch(query, batch)
				if !ok {
					return nil
				}
				mu.Lock()
				for i, s := range scores {
					judged[start+i] = s
					hasJudge[start+i] = true
				}
				mu.Unlock()
				return nil
			})
		}
		g.Wait()
	}

	results := make([]domain.RankedResult, len(candidates))
	for i, cand := range candidates {
		rr := domain.RankedResult{ScoredCandidate: cand}
		if hasJudge[i] {
			rr.RerankScore = judged[i]
			rr.FinalScore = r.policy.VectorWeight*cand.VectorScore +
				r.policy.LexicalWeight*cand.LexicalScore +
				r.policy.JudgeWeight*(judged[i]/10)
		} else {
			// Fused fallback on the judge's 0-10 scale
			rr.RerankScore = clamp01(cand.FusedScore) * 10
			rr.FinalScore = cand.FusedScore
		}
		results[i] = rr
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].FinalScore > results[j].FinalScore
	})

	return results[:topN]
}

const judgeSystemPrompt = `You judge how relevant documents are to a search query.
Score each document from 0 (irrelevant) to 10 (directly answers the query).
Respond with a JSON array of numbers only, one score per document, in order.`

// judgeBatch sends one batch to the judge, time-boxed. The boolean is
// false when the batch failed or timed out; a parseable response with
// malformed items still succeeds, with those items defaulted to the
// midpoint.
func (r *LLMReranker) judgeBatch(query string, batch []domain.ScoredCandidate) ([]float64, bool) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Query: %s\n\nDocuments:\n", query)
	for i, cand := range batch {
		text := cand.Doc.Text
		if len(text) > 800 {
			text = text[:800]
		}
		fmt.Fprintf(&sb, "%d. %s\n", i+1, text)
	}

	type result struct {
		text string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		text, err := r.llm.GenerateWithSystem(judgeSystemPrompt, sb.String())
		ch <- result{text, err}
	}()

	var text string
	select {
	case res := <-ch:
		if res.err != nil {
			r.log.Warn("rerank batch failed", zap.Error(res.err))
			return nil, false
		}
		text = res.text
	case <-time.After(r.policy.BatchTimeout):
		r.log.Warn("rerank batch timed out", zap.Int("batch_size", len(batch)))
		return nil, false
	}

	return parseJudgeScores(text, len(batch)), true
}

// parseJudgeScores extracts one 0-10 score per item. Items the
// response misses or garbles get the midpoint.
func parseJudgeScores(text string, n int) []float64 {
	scores := make([]float64, n)
	for i := range scores {
		scores[i] = judgeMidpoint
	}

	var raw []any
	if err := json.Unmarshal([]byte(extractJSON(text)), &raw); err != nil {
		return scores
	}

	for i := 0; i < n && i < len(raw); i++ {
		val, ok := raw[i].(float64)
		if !ok {
			continue
		}
		if val < 0 {
			val = 0
		}
		if val > 10 {
			val = 10
		}
		scores[i] = val
	}
	return scores
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
