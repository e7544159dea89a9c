package port

import "kbsearch/internal/domain"

// Retriever scores a corpus against an analyzed query and returns
// fused candidates in descending score order.
type Retriever interface {
	Retrieve(q domain.Query, filter domain.Filter, limit int) []domain.ScoredCandidate
}
