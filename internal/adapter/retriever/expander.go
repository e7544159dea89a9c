package retriever

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"kbsearch/internal/domain"
	"kbsearch/internal/port"
)

// ExpansionPolicy bounds query expansion.
type ExpansionPolicy struct {
	MaxTerms       int
	SemanticWeight float64
	Timeout        time.Duration
	CacheTTL       time.Duration
}

func DefaultExpansionPolicy() ExpansionPolicy {
	return ExpansionPolicy{
		MaxTerms:       4,
		SemanticWeight: 0.6,
		Timeout:        2 * time.Second,
		CacheTTL:       24 * time.Hour,
	}
}

// QueryExpander enriches a query with related terms from a fixed
// synonym table and, when an LLM is available, a semantic generator.
// Expansion failure never fails a search: the worst case is the
// original query unchanged.
type QueryExpander struct {
	llm    port.LLM
	cache  port.Cache
	policy ExpansionPolicy
	log    *zap.Logger
}

// NewQueryExpander creates an expander. llm and cache may be nil;
// without an LLM only keyword expansion runs.
func NewQueryExpander(llm port.LLM, cache port.Cache, policy ExpansionPolicy, log *zap.Logger) *QueryExpander {
	if policy.MaxTerms <= 0 {
		policy.MaxTerms = 4
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &QueryExpander{llm: llm, cache: cache, policy: policy, log: log}
}

// Expand merges keyword and semantic expansion terms into a new query
// string. The semantic generator gets ceil(MaxTerms*SemanticWeight)
// slots; keyword terms fill the remainder.
func (e *QueryExpander) Expand(query string) domain.Expansion {
	query = strings.TrimSpace(query)
	none := domain.Expansion{ExpandedQuery: query, ExpansionType: "none"}
	if query == "" {
		return none
	}

	keywordTerms := e.keywordTerms(query)
	semanticTerms := e.semanticTerms(query)

	semanticSlots := int(math.Ceil(float64(e.policy.MaxTerms) * e.policy.SemanticWeight))
	if semanticSlots > e.policy.MaxTerms {
		semanticSlots = e.policy.MaxTerms
	}

	lowerQuery := strings.ToLower(query)
	seen := make(map[string]struct{})
	var added []string
	usedSemantic, usedKeyword := 0, 0

	take := func(term string) bool {
		term = strings.TrimSpace(term)
		lower := strings.ToLower(term)
		if term == "" || strings.Contains(lowerQuery, lower) {
			return false
		}
		if _, dup := seen[lower]; dup {
			return false
		}
		seen[lower] = struct{}{}
		added = append(added, term)
		return true
	}

	for _, term := range semanticTerms {
		if usedSemantic >= semanticSlots || len(added) >= e.policy.MaxTerms {
			break
		}
		if take(term) {
			usedSemantic++
		}
	}
	for _, term := range keywordTerms {
		if len(added) >= e.policy.MaxTerms {
			break
		}
		if take(term) {
			usedKeyword++
		}
	}

	if len(added) == 0 {
		return none
	}

	expansionType := "keyword"
	switch {
	case usedSemantic > 0 && usedKeyword > 0:
		expansionType = "hybrid"
	case usedSemantic > 0:
		expansionType = "semantic"
	}

	return domain.Expansion{
		ExpandedQuery: query + " " + strings.Join(added, " "),
		AddedTerms:    added,
		ExpansionType: expansionType,
	}
}

// synonymTable maps query cues to related knowledge-base terms.
var synonymTable = map[string][]string{
	"pricing":     {"cost", "plans", "subscription"},
	"price":       {"pricing", "cost"},
	"cost":        {"pricing", "fees"},
	"hiring":      {"recruiting", "staffing"},
	"hire":        {"recruiting", "hiring process"},
	"recruiting":  {"hiring", "talent acquisition"},
	"onboarding":  {"new hire paperwork", "orientation"},
	"payroll":     {"pay", "compensation"},
	"applicant":   {"candidate", "job seeker"},
	"candidate":   {"applicant", "job seeker"},
	"interview":   {"screening", "evaluation"},
	"texting":     {"sms", "text message"},
	"sms":         {"texting", "text message"},
	"integration": {"api", "connector"},
	"investor":    {"funding", "venture capital"},
	"funding":     {"investors", "fundraising"},
	"demo":        {"trial", "walkthrough"},
	"support":     {"help center", "customer service"},
	"security":    {"compliance", "data protection"},
}

// patternRule adds terms when a domain cue appears anywhere in the
// query.
type patternRule struct {
	cues  []string
	terms []string
}

var patternRules = []patternRule{
	{
		cues:  []string{"how much", "price", "pricing", "cost", "per month", "per employee"},
		terms: []string{"pricing plans", "subscription cost"},
	},
	{
		cues:  []string{" vs ", "versus", "compare", "comparison", "alternative to", "better than"},
		terms: []string{"competitors", "comparison"},
	},
	{
		cues:  []string{"discount", "coupon", "promo", "deal"},
		terms: []string{"special offer", "promotion"},
	},
	{
		cues:  []string{"feature", "can it", "does it support", "capability"},
		terms: []string{"features", "capabilities"},
	},
}

// keywordTerms runs the deterministic generator: synonym lookups per
// query token plus domain pattern rules.
func (e *QueryExpander) keywordTerms(query string) []string {
	cacheKey := "expand:kw:" + query
	if cached, ok := e.cachedTerms(cacheKey); ok {
		return cached
	}

	lower := strings.ToLower(query)
	seen := make(map[string]struct{})
	var terms []string

	push := func(term string) {
		if _, dup := seen[term]; dup {
			return
		}
		seen[term] = struct{}{}
		terms = append(terms, term)
	}

	for _, token := range strings.Fields(lower) {
		token = strings.Trim(token, ".,!?\"'")
		for _, syn := range synonymTable[token] {
			push(syn)
		}
	}

	for _, rule := range patternRules {
		for _, cue := range rule.cues {
			if strings.Contains(lower, cue) {
				for _, term := range rule.terms {
					push(term)
				}
				break
			}
		}
	}

	e.storeTerms(cacheKey, terms)
	return terms
}

const expandSystemPrompt = `You expand search queries for a company knowledge base.
Given a query, respond with a JSON array of 3-5 precise related phrases, each 2-5 words.
Respond with the JSON array only.`

// semanticTerms runs the LLM generator, time-boxed. Malformed JSON
// falls back to line-by-line parsing; errors and timeouts fall back
// to no terms.
func (e *QueryExpander) semanticTerms(query string) []string {
	if e.llm == nil {
		return nil
	}

	cacheKey := "expand:sem:" + query
	if cached, ok := e.cachedTerms(cacheKey); ok {
		return cached
	}

	type result struct {
		text string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		text, err := e.llm.GenerateWithSystem(expandSystemPrompt,
			fmt.Sprintf("Query: %s", query))
		ch <- result{text, err}
	}()

	var text string
	select {
	case r := <-ch:
		if r.err != nil {
			e.log.Debug("semantic expansion failed", zap.Error(r.err))
			return nil
		}
		text = r.text
	case <-time.After(e.policy.Timeout):
		e.log.Debug("semantic expansion timed out", zap.String("query", query))
		return nil
	}

	terms := parseTermArray(text)
	if len(terms) == 0 {
		terms = parseTermLines(text, query)
	}

	e.storeTerms(cacheKey, terms)
	return terms
}

func (e *QueryExpander) cachedTerms(key string) ([]string, bool) {
	if e.cache == nil {
		return nil, false
	}
	data, ok := e.cache.Get(key)
	if !ok {
		return nil, false
	}
	var terms []string
	if err := json.Unmarshal(data, &terms); err != nil {
		return nil, false
	}
	return terms, true
}

func (e *QueryExpander) storeTerms(key string, terms []string) {
	if e.cache == nil {
		return
	}
	data, err := json.Marshal(terms)
	if err != nil {
		return
	}
	e.cache.Set(key, data, e.policy.CacheTTL)
}

// parseTermArray decodes a JSON array of strings, tolerating fences
// and surrounding prose.
func parseTermArray(text string) []string {
	var terms []string
	if err := json.Unmarshal([]byte(extractJSON(text)), &terms); err != nil {
		return nil
	}
	out := terms[:0]
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// parseTermLines is the loose fallback: one term per line, numbering
// and bullets stripped, headers and empties skipped.
func parseTermLines(text, query string) []string {
	var terms []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.Contains(line, ":") {
			continue
		}
		line = strings.TrimLeft(line, "-*0123456789. ")
		line = strings.Trim(line, "\"'`")
		if line == "" || strings.EqualFold(line, query) {
			continue
		}
		if len(strings.Fields(line)) > 6 {
			continue
		}
		terms = append(terms, line)
	}
	return terms
}

// extractJSON strips markdown fences and surrounding prose, returning
// the first JSON object or array in the text.
func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	if idx := strings.Index(text, "```"); idx >= 0 {
		rest := text[idx+3:]
		rest = strings.TrimPrefix(rest, "json")
		if end := strings.Index(rest, "```"); end >= 0 {
			text = strings.TrimSpace(rest[:end])
		} else {
			text = strings.TrimSpace(rest)
		}
	}

	for _, open := range []byte{'{', '['} {
		start := strings.IndexByte(text, open)
		if start < 0 {
			continue
		}
		closer := byte('}')
		if open == '[' {
			closer = ']'
		}
		if end := strings.LastIndexByte(text, closer); end > start {
			return text[start : end+1]
		}
	}
	return text
}
