package port

import "kbsearch/internal/domain"

// Reranker re-scores a short candidate list and returns it in final
// order. Implementations own their failure handling: the returned
// list is never empty when candidates is non-empty.
type Reranker interface {
	Rerank(query string, candidates []domain.ScoredCandidate, topN int) []domain.RankedResult
}
