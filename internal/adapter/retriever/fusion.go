package retriever

import (
	"sort"
	"strings"

	"go.uber.org/zap"

	"kbsearch/internal/domain"
)

// FusionPolicy holds the fusion thresholds and bonus coefficients.
// Values are tuned empirically; see config for the defaults.
type FusionPolicy struct {
	InclusionThreshold float64
	ProductThreshold   float64
	CompanyFloor       float64
	PhraseBonus        float64
	OverlapBonus       float64
	IntentCueBonus     float64
	IntentCoeff        float64
	StrongOverlap      float64
	FallbackPoolSize   int
	MinResults         int
}

func DefaultFusionPolicy() FusionPolicy {
	return FusionPolicy{
		InclusionThreshold: 0.1,
		ProductThreshold:   0.05,
		CompanyFloor:       0.25,
		PhraseBonus:        0.3,
		OverlapBonus:       0.15,
		IntentCueBonus:     0.25,
		IntentCoeff:        1.5,
		StrongOverlap:      0.6,
		FallbackPoolSize:   10,
		MinResults:         3,
	}
}

// FusionEngine scores every corpus document against an analyzed query
// by fusing vector similarity, lexical relevance, literal text
// matching, and metadata boosts. It owns the first two stages of the
// fallback cascade; the caller owns the third.
type FusionEngine struct {
	corpus  *domain.CorpusRef
	meta    *MetadataFilter
	company []string
	policy  FusionPolicy
	log     *zap.Logger
}

// NewFusionEngine creates a fusion engine over the given corpus
// reference. company lists the company name and its aliases, used for
// forced-include matching.
func NewFusionEngine(corpus *domain.CorpusRef, meta *MetadataFilter, company []string, policy FusionPolicy, log *zap.Logger) *FusionEngine {
	if log == nil {
		log = zap.NewNop()
	}
	lowered := make([]string, 0, len(company))
	for _, name := range company {
		name = strings.ToLower(strings.TrimSpace(name))
		if name != "" {
			lowered = append(lowered, name)
		}
	}
	return &FusionEngine{
		corpus:  corpus,
		meta:    meta,
		company: lowered,
		policy:  policy,
		log:     log,
	}
}

// Retrieve returns fused candidates in descending score order. A
// limit of zero or below returns the full filtered set, which callers
// use for facet computation. Filtered-out documents with a literal
// company mention or strong term overlap are retained in a bounded
// pool and supplement the results when the primary pass under-delivers;
// if the pass comes back empty under an explicit filter, scoring
// degrades to literal text matching over the whole corpus.
func (e *FusionEngine) Retrieve(q domain.Query, filter domain.Filter, limit int) []domain.ScoredCandidate {
	corpus := e.corpus.Load()
	if corpus.Len() == 0 {
		return nil
	}

	queryLower := strings.ToLower(strings.TrimSpace(q.Text))
	threshold := e.policy.InclusionThreshold
	if q.Analysis.IsProductRelated {
		threshold = e.policy.ProductThreshold
	}

	var kept []domain.ScoredCandidate
	var pool []domain.ScoredCandidate

	for i := 0; i < corpus.Len(); i++ {
		doc := corpus.Doc(i)

		if !e.meta.Passes(doc, filter) {
			if len(pool) < e.policy.FallbackPoolSize && e.rescues(doc, q, i, corpus) {
				pool = append(pool, e.score(doc, i, q, filter, queryLower, corpus))
			}
			continue
		}

		cand := e.score(doc, i, q, filter, queryLower, corpus)

		switch {
		case cand.FusedScore > threshold:
			kept = append(kept, cand)
		case q.Analysis.IsCompanyContext && e.mentionsCompany(doc):
			// Forced include, floored at CompanyFloor.
			if cand.FusedScore < e.policy.CompanyFloor {
				cand.FusedScore = e.policy.CompanyFloor
			}
			kept = append(kept, cand)
		}
	}

	if len(kept) < e.policy.MinResults && len(pool) > 0 {
		e.log.Debug("supplementing from fallback pool",
			zap.Int("kept", len(kept)), zap.Int("pool", len(pool)))
		kept = append(kept, pool...)
	}

	if len(kept) == 0 && !filter.Empty() {
		e.log.Debug("filtered search empty, degrading to literal matching",
			zap.String("query", q.Text))
		kept = e.literalSearch(q, queryLower, corpus)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].FusedScore > kept[j].FusedScore
	})

	if limit > 0 && len(kept) > limit {
		kept = kept[:limit]
	}
	return kept
}

// score computes every signal for one document and derives the fused
// score.
func (e *FusionEngine) score(doc domain.Document, i int, q domain.Query, filter domain.Filter, queryLower string, corpus *domain.Corpus) domain.ScoredCandidate {
	cand := domain.ScoredCandidate{
		Doc:             doc,
		VectorScore:     CosineSimilarity(q.Embedding, doc.Embedding),
		LexicalScore:    NormalizeBM25(BM25Score(q.Tokens, corpus.TermFreq(i), corpus.DocLen(i), corpus.Stats())),
		TextMatchBonus:  e.textMatchBonus(doc, q, queryLower, corpus.TermFreq(i)),
		BoostMultiplier: e.meta.Boost(doc, q.Tokens, filter),
	}

	coeff := 1.0
	if q.Analysis.IsInvestorRelated || q.Analysis.IsLeadershipRelated || q.Analysis.IsProductRelated {
		coeff = e.policy.IntentCoeff
	}
	cand.Fuse(q.Analysis.VectorWeight, coeff)
	return cand
}

// textMatchBonus rewards literal query presence: the whole query as a
// substring, strong token overlap, and intent-specific cues in the
// document's source or body.
func (e *FusionEngine) textMatchBonus(doc domain.Document, q domain.Query, queryLower string, termFreq map[string]int) float64 {
	bonus := 0.0
	textLower := strings.ToLower(doc.Text)

	if queryLower != "" && strings.Contains(textLower, queryLower) {
		bonus += e.policy.PhraseBonus
	} else if MatchFraction(q.Tokens, termFreq) >= e.policy.StrongOverlap {
		bonus += e.policy.OverlapBonus
	}

	if q.Analysis.IsInvestorRelated && docHasCue(doc, investorCues) {
		bonus += e.policy.IntentCueBonus
	}
	if q.Analysis.IsLeadershipRelated && docHasCue(doc, leadershipCues) {
		bonus += e.policy.IntentCueBonus
	}
	if q.Analysis.IsProductRelated && docHasCue(doc, productCues) {
		bonus += e.policy.IntentCueBonus
	}

	return bonus
}

var (
	investorCues   = []string{"investor", "funding", "venture", "capital", "series "}
	leadershipCues = []string{"ceo", "founder", "co-founder", "leadership", "executive"}
	productCues    = []string{"product", "feature", "pricing", "plan", "integration"}
)

func docHasCue(doc domain.Document, cues []string) bool {
	source := strings.ToLower(doc.Meta.Source)
	text := strings.ToLower(doc.Text)
	for _, cue := range cues {
		if strings.Contains(source, cue) || strings.Contains(text, cue) {
			return true
		}
	}
	return false
}

// rescues reports whether a filtered-out document belongs in the
// bounded fallback pool: it literally names the company or shares
// strong term overlap with the query.
func (e *FusionEngine) rescues(doc domain.Document, q domain.Query, i int, corpus *domain.Corpus) bool {
	if e.mentionsCompany(doc) {
		return true
	}
	return MatchFraction(q.Tokens, corpus.TermFreq(i)) >= e.policy.StrongOverlap
}

func (e *FusionEngine) mentionsCompany(doc domain.Document) bool {
	if len(e.company) == 0 {
		return false
	}
	text := strings.ToLower(doc.Text)
	title := strings.ToLower(doc.Title)
	for _, name := range e.company {
		if strings.Contains(text, name) || strings.Contains(title, name) {
			return true
		}
	}
	return false
}

// literalSearch scores the whole unfiltered corpus on the literal
// text-match signal alone.
func (e *FusionEngine) literalSearch(q domain.Query, queryLower string, corpus *domain.Corpus) []domain.ScoredCandidate {
	var out []domain.ScoredCandidate
	for i := 0; i < corpus.Len(); i++ {
		doc := corpus.Doc(i)
		cand := domain.ScoredCandidate{
			Doc:             doc,
			LexicalScore:    MatchFraction(q.Tokens, corpus.TermFreq(i)),
			TextMatchBonus:  e.textMatchBonus(doc, q, queryLower, corpus.TermFreq(i)),
			BoostMultiplier: 1.0,
		}
		cand.Fuse(0, 1.0)
		if cand.FusedScore > 0 {
			out = append(out, cand)
		}
	}
	return out
}

// ComputeFacets rolls up category counts, entity frequencies, and the
// technical-level histogram over a filtered pre-limit candidate set.
func ComputeFacets(candidates []domain.ScoredCandidate) *domain.Facets {
	facets := &domain.Facets{
		Categories: make(map[string]int),
		Entities:   make(map[string]int),
		TechLevels: make(map[int]int),
	}
	for _, cand := range candidates {
		for _, cat := range cand.Doc.Meta.AllCategories() {
			facets.Categories[strings.ToUpper(cat)]++
		}
		for _, entity := range cand.Doc.Meta.Entities {
			facets.Entities[entity]++
		}
		if cand.Doc.Meta.TechLevel > 0 {
			facets.TechLevels[cand.Doc.Meta.TechLevel]++
		}
	}
	return facets
}
