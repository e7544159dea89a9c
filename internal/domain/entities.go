package domain

import "time"

type Document struct {
	ID        string    `json:"id"`
	SourceURL string    `json:"source_url"`
	Title     string    `json:"title"`
	Text      string    `json:"text"`
	Embedding []float32 `json:"embedding,omitempty"`
	Meta      Metadata  `json:"meta"`
}

type Metadata struct {
	Category      string    `json:"category,omitempty"`
	Categories    []string  `json:"categories,omitempty"`
	TechLevel     int       `json:"tech_level,omitempty"`
	Keywords      []string  `json:"keywords,omitempty"`
	Entities      []string  `json:"entities,omitempty"`
	Source        string    `json:"source,omitempty"`
	Deprecated    bool      `json:"deprecated,omitempty"`
	Authoritative bool      `json:"authoritative,omitempty"`
	CrawledAt     time.Time `json:"crawled_at"`
}

// AllCategories returns the primary category followed by the secondary ones.
func (m Metadata) AllCategories() []string {
	if m.Category == "" {
		return m.Categories
	}
	out := make([]string, 0, len(m.Categories)+1)
	out = append(out, m.Category)
	out = append(out, m.Categories...)
	return out
}

type Stats struct {
	DocFreq   map[string]int `json:"doc_freq"`
	DocCount  int            `json:"doc_count"`
	AvgDocLen float64        `json:"avg_doc_len"`
}

func (s Stats) Empty() bool {
	return s.DocCount == 0 || len(s.DocFreq) == 0
}

type Query struct {
	Text      string
	Tokens    []string
	Embedding []float32
	Analysis  Analysis
}

type Analysis struct {
	IsCompanyContext    bool
	IsQuestion          bool
	IsProductRelated    bool
	IsFeatureRelated    bool
	HasRecencyReference bool
	IsInvestorRelated   bool
	IsLeadershipRelated bool

	DomainContext  string
	TechnicalLevel int
	Complexity     float64

	// VectorWeight is the dynamic fusion weight w in
	// fused = vector*w + lexical*(1-w).
	VectorWeight float64

	Relaxations  FilterRelaxations
	MatchedRules []string
}

type FilterRelaxations struct {
	BroadenCategories  []string
	LenientCategories  bool
	AllowUncategorized bool
}

type Filter struct {
	Categories          []string
	StrictCategoryMatch bool
	// AllowUncategorized lets documents with no category metadata pass
	// a lenient category filter. Set by analyzer relaxations so broad
	// intents do not starve sparsely tagged corpora.
	AllowUncategorized bool
	MinTechLevel       int
	MaxTechLevel       int
	RequiredEntities   []string
	RequiredKeywords   []string
	IncludeDeprecated  bool
	AuthoritativeOnly  bool
}

// Empty reports whether the filter restricts nothing beyond the
// default deprecated-document exclusion.
func (f Filter) Empty() bool {
	return len(f.Categories) == 0 &&
		f.MinTechLevel == 0 && f.MaxTechLevel == 0 &&
		len(f.RequiredEntities) == 0 && len(f.RequiredKeywords) == 0 &&
		!f.AuthoritativeOnly
}

type ScoredCandidate struct {
	Doc             Document
	VectorScore     float64
	LexicalScore    float64
	TextMatchBonus  float64
	BoostMultiplier float64
	FusedScore      float64
}

// Fuse recomputes FusedScore from the candidate's own signal fields.
func (c *ScoredCandidate) Fuse(vectorWeight, bonusCoeff float64) {
	base := c.VectorScore*vectorWeight + c.LexicalScore*(1-vectorWeight)
	c.FusedScore = (base + c.TextMatchBonus*bonusCoeff) * c.BoostMultiplier
}

type RankedResult struct {
	ScoredCandidate
	RerankScore float64
	FinalScore  float64
}

type SearchOptions struct {
	Limit             int
	IncludeDeprecated bool
	AuthoritativeOnly bool
	CategoryPath      string
	MinTechLevel      int
	MaxTechLevel      int
	RequiredEntities  []string
	WithFacets        bool
	DisableExpansion  bool
	DisableRerank     bool
}

type SearchResult struct {
	Results []RankedResult
	Facets  *Facets
}

type Facets struct {
	Categories map[string]int `json:"categories"`
	Entities   map[string]int `json:"entities"`
	TechLevels map[int]int    `json:"tech_levels"`
}

type Expansion struct {
	ExpandedQuery string   `json:"expanded_query"`
	AddedTerms    []string `json:"added_terms"`
	ExpansionType string   `json:"expansion_type"`
}
