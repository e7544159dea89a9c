package port

import "kbsearch/internal/domain"

type QueryAnalyzer interface {
	Analyze(query string) domain.Analysis
}

type QueryExpander interface {
	Expand(query string) domain.Expansion
}
