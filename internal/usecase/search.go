package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"kbsearch/config"
	"kbsearch/internal/adapter/retriever"
	"kbsearch/internal/domain"
	"kbsearch/internal/port"
)

// widenTop caps the merged result set of the last cascade stage.
const widenTop = 5

// SearchUseCase runs the retrieval pipeline: analysis, expansion,
// query embedding, fusion, reranking, facets.
type SearchUseCase struct {
	analyzer  port.QueryAnalyzer
	expander  port.QueryExpander
	embedder  port.Embedder
	tokenizer port.Tokenizer
	engine    port.Retriever
	reranker  port.Reranker
	cfg       *config.Config
	log       *zap.Logger
}

// NewSearchUseCase creates a new search use case. expander, embedder
// and reranker may be nil; the corresponding stage is skipped.
func NewSearchUseCase(
	analyzer port.QueryAnalyzer,
	expander port.QueryExpander,
	embedder port.Embedder,
	tokenizer port.Tokenizer,
	engine port.Retriever,
	reranker port.Reranker,
	cfg *config.Config,
	log *zap.Logger,
) *SearchUseCase {
	if log == nil {
		log = zap.NewNop()
	}
	return &SearchUseCase{
		analyzer:  analyzer,
		expander:  expander,
		embedder:  embedder,
		tokenizer: tokenizer,
		engine:    engine,
		reranker:  reranker,
		cfg:       cfg,
		log:       log,
	}
}

// Search runs the full pipeline for one query.
func (u *SearchUseCase) Search(ctx context.Context, query string, opts domain.SearchOptions) (domain.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return domain.SearchResult{}, fmt.Errorf("empty query")
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = u.cfg.Search.DefaultLimit
	}

	analysis := u.analyzer.Analyze(query)

	searchText := query
	if u.expander != nil && !opts.DisableExpansion {
		expansion := u.expander.Expand(query)
		if expansion.ExpandedQuery != "" {
			searchText = expansion.ExpandedQuery
		}
		if len(expansion.AddedTerms) > 0 {
			u.log.Debug("expanded query",
				zap.String("type", expansion.ExpansionType),
				zap.Strings("added", expansion.AddedTerms))
		}
	}

	q := domain.Query{
		Text:      query,
		Tokens:    u.tokenizer.Tokenize(searchText),
		Embedding: u.embedQuery(ctx, searchText),
		Analysis:  analysis,
	}

	filter := buildFilter(opts, analysis)

	candidates := u.engine.Retrieve(q, filter, 0)
	if len(candidates) == 0 {
		u.log.Debug("primary search empty, widening", zap.String("query", query))
		candidates = u.widenSearch(q, filter, limit)
	}

	var facets *domain.Facets
	if opts.WithFacets {
		facets = retriever.ComputeFacets(candidates)
	}

	results := u.rank(query, candidates, limit, opts.DisableRerank)
	if len(candidates) > 0 && len(results) == 0 {
		return domain.SearchResult{}, fmt.Errorf("ranking produced no results for %q", query)
	}

	return domain.SearchResult{Results: results, Facets: facets}, nil
}

// embedQuery returns nil on failure or timeout; the query then scores
// on the lexical signal alone.
func (u *SearchUseCase) embedQuery(ctx context.Context, text string) []float32 {
	if u.embedder == nil {
		return nil
	}

	timeout := time.Duration(u.cfg.Embedding.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	type embedResult struct {
		vecs [][]float32
		err  error
	}

	ch := make(chan embedResult, 1)
	go func() {
		vecs, err := u.embedder.Embed([]string{text})
		ch <- embedResult{vecs, err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			u.log.Warn("query embedding failed", zap.Error(res.err))
			return nil
		}
		if len(res.vecs) == 0 {
			return nil
		}
		return res.vecs[0]
	case <-time.After(timeout):
		u.log.Warn("query embedding timed out", zap.Duration("timeout", timeout))
		return nil
	case <-ctx.Done():
		return nil
	}
}

// buildFilter combines caller options with the analyzer's relaxations.
// Relaxations only ever widen the filter.
func buildFilter(opts domain.SearchOptions, analysis domain.Analysis) domain.Filter {
	filter := domain.Filter{
		IncludeDeprecated: opts.IncludeDeprecated,
		AuthoritativeOnly: opts.AuthoritativeOnly,
		MinTechLevel:      opts.MinTechLevel,
		MaxTechLevel:      opts.MaxTechLevel,
		RequiredEntities:  opts.RequiredEntities,
	}

	if opts.CategoryPath != "" {
		for _, c := range strings.Split(opts.CategoryPath, "/") {
			if c = strings.TrimSpace(c); c != "" {
				filter.Categories = append(filter.Categories, strings.ToUpper(c))
			}
		}
		filter.StrictCategoryMatch = true
	}

	relax := analysis.Relaxations
	if len(filter.Categories) > 0 && len(relax.BroadenCategories) > 0 {
		filter.StrictCategoryMatch = false
		for _, c := range relax.BroadenCategories {
			if !containsString(filter.Categories, c) {
				filter.Categories = append(filter.Categories, c)
			}
		}
	}
	if relax.LenientCategories {
		filter.StrictCategoryMatch = false
	}
	if relax.AllowUncategorized {
		filter.AllowUncategorized = true
	}

	return filter
}

// widenSearch is the last cascade stage: three relaxed variants run in
// parallel and merge first-seen by document id.
func (u *SearchUseCase) widenSearch(q domain.Query, filter domain.Filter, limit int) []domain.ScoredCandidate {
	relaxed := filter
	relaxed.IncludeDeprecated = true

	variants := []struct {
		filter domain.Filter
		limit  int
	}{
		{domain.Filter{}, limit},
		{relaxed, limit},
		{domain.Filter{AuthoritativeOnly: true}, limit * 2},
	}

	results := make([][]domain.ScoredCandidate, len(variants))

	var g errgroup.Group
	for i, v := range variants {
		i, v := i, v
		g.Go(func() error {
			results[i] = u.engine.Retrieve(q, v.filter, v.limit)
			return nil
		})
	}
	g.Wait()

	seen := make(map[string]bool)
	var merged []domain.ScoredCandidate
	for _, list := range results {
		for _, c := range list {
			if seen[c.Doc.ID] {
				continue
			}
			seen[c.Doc.ID] = true
			merged = append(merged, c)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].FusedScore > merged[j].FusedScore
	})
	if len(merged) > widenTop {
		merged = merged[:widenTop]
	}
	return merged
}

// rank applies the second-pass reranker, or falls back to fused order.
func (u *SearchUseCase) rank(query string, candidates []domain.ScoredCandidate, limit int, disableRerank bool) []domain.RankedResult {
	if len(candidates) == 0 {
		return nil
	}

	if u.reranker != nil && !disableRerank {
		pool := candidates
		if n := u.cfg.Rerank.Candidates; n > 0 && len(pool) > n {
			pool = pool[:n]
		}
		return u.reranker.Rerank(query, pool, limit)
	}

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	results := make([]domain.RankedResult, len(candidates))
	for i, c := range candidates {
		results[i] = domain.RankedResult{ScoredCandidate: c, FinalScore: c.FusedScore}
	}
	return results
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
