package analyzer

import (
	"encoding/json"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"kbsearch/internal/domain"
	"kbsearch/internal/port"
)

// Weight bounds for the dynamic fusion hint.
const (
	minVectorWeight = 0.3
	maxVectorWeight = 0.8
)

// intentRule is one independent query predicate. Rules are evaluated
// in order; each fired rule records its name and adjusts the analysis.
type intentRule struct {
	name  string
	match func(q *queryText) bool
	apply func(a *domain.Analysis)
}

// queryText carries the raw and lower-cased forms so rules do not
// re-lower the query.
type queryText struct {
	raw   string
	lower string
}

func (q *queryText) hasAny(phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(q.lower, p) {
			return true
		}
	}
	return false
}

// QueryAnalyzer classifies query intent and derives the dynamic
// fusion weight and filter relaxations. Classification is rule-based;
// an optional LLM refines technical level and domain context, cached
// by exact query text.
type QueryAnalyzer struct {
	company    string
	aliases    []string
	baseWeight float64

	llm      port.LLM
	cache    port.Cache
	cacheTTL time.Duration
	timeout  time.Duration
	log      *zap.Logger

	rules []intentRule
}

type AnalyzerOption func(*QueryAnalyzer)

// WithClassifier enables LLM-assisted classification of technical
// level and domain context.
func WithClassifier(llm port.LLM) AnalyzerOption {
	return func(a *QueryAnalyzer) { a.llm = llm }
}

// WithCache caches LLM classifications by exact query text.
func WithCache(cache port.Cache, ttl time.Duration) AnalyzerOption {
	return func(a *QueryAnalyzer) {
		a.cache = cache
		a.cacheTTL = ttl
	}
}

func WithClassifierTimeout(d time.Duration) AnalyzerOption {
	return func(a *QueryAnalyzer) { a.timeout = d }
}

func WithLogger(log *zap.Logger) AnalyzerOption {
	return func(a *QueryAnalyzer) { a.log = log }
}

// NewQueryAnalyzer creates an analyzer for the given company.
// baseWeight is the default vector weight before rule adjustments.
func NewQueryAnalyzer(company string, aliases []string, baseWeight float64, opts ...AnalyzerOption) *QueryAnalyzer {
	a := &QueryAnalyzer{
		company:    company,
		aliases:    aliases,
		baseWeight: baseWeight,
		timeout:    2 * time.Second,
		cacheTTL:   24 * time.Hour,
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.rules = a.buildRules()
	return a
}

// Analyze runs every rule over the query and returns the composed
// analysis. It never fails; an unusable LLM just leaves the
// rule-derived classification in place.
func (a *QueryAnalyzer) Analyze(query string) domain.Analysis {
	q := &queryText{raw: query, lower: strings.ToLower(query)}

	analysis := domain.Analysis{
		VectorWeight:  a.baseWeight,
		DomainContext: "general",
	}

	for _, rule := range a.rules {
		if rule.match(q) {
			rule.apply(&analysis)
			analysis.MatchedRules = append(analysis.MatchedRules, rule.name)
		}
	}

	if analysis.VectorWeight < minVectorWeight {
		analysis.VectorWeight = minVectorWeight
	}
	if analysis.VectorWeight > maxVectorWeight {
		analysis.VectorWeight = maxVectorWeight
	}

	if a.llm != nil {
		a.classify(query, &analysis)
	}

	return analysis
}

func (a *QueryAnalyzer) buildRules() []intentRule {
	companyTerms := make([]string, 0, len(a.aliases)+1)
	if a.company != "" {
		companyTerms = append(companyTerms, strings.ToLower(a.company))
	}
	for _, alias := range a.aliases {
		companyTerms = append(companyTerms, strings.ToLower(alias))
	}

	return []intentRule{
		{
			name: "company-context",
			match: func(q *queryText) bool {
				return q.hasAny(companyTerms) || q.hasAny(companyPhrases)
			},
			apply: func(an *domain.Analysis) {
				an.IsCompanyContext = true
				an.DomainContext = "company"
			},
		},
		{
			name: "question",
			match: func(q *queryText) bool {
				trimmed := strings.TrimSpace(q.lower)
				if strings.HasSuffix(trimmed, "?") {
					return true
				}
				first, _, _ := strings.Cut(trimmed, " ")
				return containsString(questionWords, first)
			},
			apply: func(an *domain.Analysis) { an.IsQuestion = true },
		},
		{
			name:  "product",
			match: func(q *queryText) bool { return q.hasAny(productPhrases) },
			apply: func(an *domain.Analysis) {
				an.IsProductRelated = true
				if an.DomainContext == "general" {
					an.DomainContext = "product"
				}
			},
		},
		{
			name:  "feature",
			match: func(q *queryText) bool { return q.hasAny(featurePhrases) },
			apply: func(an *domain.Analysis) { an.IsFeatureRelated = true },
		},
		{
			name:  "recency",
			match: func(q *queryText) bool { return q.hasAny(recencyPhrases) },
			apply: func(an *domain.Analysis) { an.HasRecencyReference = true },
		},
		{
			name:  "investor",
			match: func(q *queryText) bool { return q.hasAny(investorPhrases) },
			apply: func(an *domain.Analysis) {
				an.IsInvestorRelated = true
				an.DomainContext = "company"
				an.Relaxations.LenientCategories = true
				an.Relaxations.AllowUncategorized = true
				an.Relaxations.BroadenCategories = appendMissing(
					an.Relaxations.BroadenCategories,
					"COMPANY", "ABOUT", "INVESTORS", "NEWS")
			},
		},
		{
			name:  "leadership",
			match: func(q *queryText) bool { return q.hasAny(leadershipPhrases) },
			apply: func(an *domain.Analysis) {
				an.IsLeadershipRelated = true
				an.DomainContext = "company"
				an.Relaxations.LenientCategories = true
				an.Relaxations.AllowUncategorized = true
				an.Relaxations.BroadenCategories = appendMissing(
					an.Relaxations.BroadenCategories,
					"COMPANY", "ABOUT", "TEAM", "LEADERSHIP")
			},
		},
		{
			// Quoted phrases and runs of proper nouns signal the user
			// wants literal matches; shift weight toward lexical.
			name: "literal-phrase",
			match: func(q *queryText) bool {
				return strings.Contains(q.raw, `"`) || properNounRun(q.raw) >= 2
			},
			apply: func(an *domain.Analysis) { an.VectorWeight -= 0.2 },
		},
		{
			name: "technical",
			match: func(q *queryText) bool {
				return q.hasAny(technicalPhrases) || len(strings.Fields(q.lower)) > 12
			},
			apply: func(an *domain.Analysis) {
				an.Complexity = 0.8
				if an.TechnicalLevel == 0 {
					an.TechnicalLevel = 3
				}
				an.VectorWeight += 0.1
			},
		},
	}
}

var (
	companyPhrases = []string{
		"our company", "our investors", "our team", "our mission",
		"our product", "our pricing", "our customers", "about us",
		"the company",
	}
	questionWords = []string{
		"who", "what", "when", "where", "why", "how",
		"does", "do", "is", "are", "can", "which",
	}
	productPhrases = []string{
		"product", "pricing", "price", "cost", "plan", "subscription",
		"demo", "trial", "integration", "how much",
	}
	featurePhrases = []string{
		"feature", "capability", "functionality", "support for",
		"does it support", "can it",
	}
	recencyPhrases = []string{
		"latest", "newest", "recent", "current", "today",
		"this year", "right now", "up to date",
	}
	investorPhrases = []string{
		"investor", "funding", "raised", "series a", "series b",
		"venture", "backed by", "valuation", "capital",
	}
	leadershipPhrases = []string{
		"ceo", "cto", "cfo", "coo", "founder", "co-founder",
		"leadership", "executive", "management team", "board of",
	}
	technicalPhrases = []string{
		"api", "sdk", "webhook", "endpoint", "integration guide",
		"architecture", "implementation", "configure", "sso", "oauth",
	}
)

// properNounRun counts capitalized words past the first word, a cheap
// proxy for named entities in the query.
func properNounRun(raw string) int {
	fields := strings.Fields(raw)
	count := 0
	for i, f := range fields {
		if i == 0 {
			continue
		}
		r := []rune(f)
		if len(r) > 1 && unicode.IsUpper(r[0]) && unicode.IsLower(r[1]) {
			count++
		}
	}
	return count
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func appendMissing(list []string, items ...string) []string {
	for _, item := range items {
		found := false
		for _, existing := range list {
			if existing == item {
				found = true
				break
			}
		}
		if !found {
			list = append(list, item)
		}
	}
	return list
}

type llmClassification struct {
	TechnicalLevel int    `json:"technical_level"`
	DomainContext  string `json:"domain_context"`
}

const classifySystemPrompt = `You classify search queries for a company knowledge base.
Respond with JSON only: {"technical_level": <1-5>, "domain_context": "<company|product|support|general>"}`

// classify refines technical level and domain context with the LLM.
// Results are cached by exact query text; any failure leaves the
// rule-derived analysis untouched.
func (a *QueryAnalyzer) classify(query string, analysis *domain.Analysis) {
	cacheKey := "analyze:" + query

	if a.cache != nil {
		if data, ok := a.cache.Get(cacheKey); ok {
			var cls llmClassification
			if err := json.Unmarshal(data, &cls); err == nil {
				applyClassification(analysis, cls)
				return
			}
		}
	}

	type result struct {
		text string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		text, err := a.llm.GenerateWithSystem(classifySystemPrompt, query)
		ch <- result{text, err}
	}()

	var text string
	select {
	case r := <-ch:
		if r.err != nil {
			a.log.Debug("query classification failed", zap.Error(r.err))
			return
		}
		text = r.text
	case <-time.After(a.timeout):
		a.log.Debug("query classification timed out", zap.String("query", query))
		return
	}

	var cls llmClassification
	if err := json.Unmarshal([]byte(extractJSON(text)), &cls); err != nil {
		a.log.Debug("query classification unparseable", zap.Error(err))
		return
	}

	if a.cache != nil {
		if data, err := json.Marshal(cls); err == nil {
			a.cache.Set(cacheKey, data, a.cacheTTL)
		}
	}

	applyClassification(analysis, cls)
}

func applyClassification(analysis *domain.Analysis, cls llmClassification) {
	if cls.TechnicalLevel >= 1 && cls.TechnicalLevel <= 5 {
		analysis.TechnicalLevel = cls.TechnicalLevel
	}
	if cls.DomainContext != "" {
		analysis.DomainContext = cls.DomainContext
	}
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
