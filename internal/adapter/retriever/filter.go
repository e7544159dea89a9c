package retriever

import (
	"math"
	"strings"

	"kbsearch/internal/domain"
)

// BoostPolicy holds the multiplicative metadata boost factors.
type BoostPolicy struct {
	Category        float64
	PrimaryCategory float64
	Keyword         float64
	KeywordCap      float64
	Entity          float64
	TechFloor       float64
}

func DefaultBoostPolicy() BoostPolicy {
	return BoostPolicy{
		Category:        1.5,
		PrimaryCategory: 1.2,
		Keyword:         0.1,
		KeywordCap:      0.5,
		Entity:          0.25,
		TechFloor:       0.8,
	}
}

// MetadataFilter applies inclusion predicates and score boosts over
// document metadata. Filtering never boosts and boosting never
// filters; callers apply them in filter-then-boost order.
type MetadataFilter struct {
	policy BoostPolicy
}

func NewMetadataFilter(policy BoostPolicy) *MetadataFilter {
	return &MetadataFilter{policy: policy}
}

// Passes reports whether the document survives the filter.
func (f *MetadataFilter) Passes(doc domain.Document, filter domain.Filter) bool {
	if doc.Meta.Deprecated && !filter.IncludeDeprecated {
		return false
	}
	if filter.AuthoritativeOnly && !doc.Meta.Authoritative {
		return false
	}

	if len(filter.Categories) > 0 {
		docCats := doc.Meta.AllCategories()
		if len(docCats) == 0 {
			if !filter.AllowUncategorized || filter.StrictCategoryMatch {
				return false
			}
		} else if filter.StrictCategoryMatch {
			for _, want := range filter.Categories {
				if !containsFold(docCats, want) {
					return false
				}
			}
		} else {
			any := false
			for _, want := range filter.Categories {
				if containsFold(docCats, want) {
					any = true
					break
				}
			}
			if !any {
				return false
			}
		}
	}

	if filter.MinTechLevel > 0 || filter.MaxTechLevel > 0 {
		level := doc.Meta.TechLevel
		if level == 0 {
			return false
		}
		if level < filter.MinTechLevel {
			return false
		}
		if filter.MaxTechLevel > 0 && level > filter.MaxTechLevel {
			return false
		}
	}

	for _, entity := range filter.RequiredEntities {
		if !containsFold(doc.Meta.Entities, entity) {
			return false
		}
	}
	for _, kw := range filter.RequiredKeywords {
		if !containsFold(doc.Meta.Keywords, kw) {
			return false
		}
	}

	return true
}

// Boost returns the multiplicative boost for a document, always
// >= 1.0 except for the tech-level proximity factor which can scale
// a match down to the policy floor.
func (f *MetadataFilter) Boost(doc domain.Document, queryTokens []string, filter domain.Filter) float64 {
	boost := 1.0

	if len(filter.Categories) > 0 {
		primary := false
		secondary := false
		for _, want := range filter.Categories {
			if strings.EqualFold(doc.Meta.Category, want) {
				primary = true
				break
			}
			if containsFold(doc.Meta.Categories, want) {
				secondary = true
			}
		}
		if primary {
			boost *= f.policy.Category * f.policy.PrimaryCategory
		} else if secondary {
			boost *= f.policy.Category
		}
	}

	boost *= f.techProximity(doc, filter)

	if kw := f.keywordOverlap(doc, queryTokens); kw > 0 {
		boost *= 1 + kw
	}

	if len(filter.RequiredEntities) > 0 {
		matched := 0
		for _, entity := range filter.RequiredEntities {
			if containsFold(doc.Meta.Entities, entity) {
				matched++
			}
		}
		if matched > 0 {
			boost *= 1 + f.policy.Entity*float64(matched)
		}
	}

	return boost
}

// techProximity scales by how close the document's technical level
// sits to the midpoint of the requested range, within
// [TechFloor, 1.0]. Documents or filters without levels scale by 1.
func (f *MetadataFilter) techProximity(doc domain.Document, filter domain.Filter) float64 {
	if filter.MinTechLevel == 0 && filter.MaxTechLevel == 0 {
		return 1.0
	}
	level := doc.Meta.TechLevel
	if level == 0 {
		return 1.0
	}

	lo := filter.MinTechLevel
	hi := filter.MaxTechLevel
	if hi == 0 {
		hi = lo
	}
	mid := float64(lo+hi) / 2
	halfWidth := float64(hi-lo) / 2
	if halfWidth == 0 {
		return 1.0
	}

	dist := math.Abs(float64(level) - mid)
	factor := 1.0 - (1.0-f.policy.TechFloor)*(dist/halfWidth)
	if factor < f.policy.TechFloor {
		factor = f.policy.TechFloor
	}
	if factor > 1.0 {
		factor = 1.0
	}
	return factor
}

// keywordOverlap returns the additive keyword bonus, capped by the
// policy.
func (f *MetadataFilter) keywordOverlap(doc domain.Document, queryTokens []string) float64 {
	if len(doc.Meta.Keywords) == 0 || len(queryTokens) == 0 {
		return 0
	}

	querySet := make(map[string]struct{}, len(queryTokens))
	for _, t := range queryTokens {
		querySet[strings.ToLower(t)] = struct{}{}
	}

	matches := 0
	for _, kw := range doc.Meta.Keywords {
		for _, part := range strings.Fields(strings.ToLower(kw)) {
			if _, ok := querySet[part]; ok {
				matches++
				break
			}
		}
	}

	add := f.policy.Keyword * float64(matches)
	if add > f.policy.KeywordCap {
		add = f.policy.KeywordCap
	}
	return add
}

func containsFold(list []string, want string) bool {
	for _, s := range list {
		if strings.EqualFold(s, want) {
			return true
		}
	}
	return false
}
