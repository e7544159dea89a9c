package retriever

import (
	"math"

	"kbsearch/internal/domain"
)

// BM25 parameters (Okapi variant, standard values).
const (
	paramK1 = 1.2
	paramB  = 0.75
)

// BM25Score computes the lexical relevance of a document against the
// query tokens. termFreq and docLen come from the corpus snapshot.
// Terms absent from stats contribute zero. With empty stats the score
// degrades to the matched-term fraction so a cold start still ranks
// documents instead of zeroing everything.
func BM25Score(queryTokens []string, termFreq map[string]int, docLen int, stats domain.Stats) float64 {
	if len(queryTokens) == 0 {
		return 0
	}

	if stats.Empty() {
		return MatchFraction(queryTokens, termFreq)
	}

	dl := float64(docLen)
	avgDl := stats.AvgDocLen
	if avgDl <= 0 {
		avgDl = 1
	}
	N := float64(stats.DocCount)

	score := 0.0
	for _, term := range queryTokens {
		tf, ok := termFreq[term]
		if !ok {
			continue
		}
		df, ok := stats.DocFreq[term]
		if !ok || df == 0 {
			continue
		}

		n := float64(df)
		idf := math.Log((N-n+0.5)/(n+0.5) + 1)

		tfF := float64(tf)
		score += idf * (tfF * (paramK1 + 1)) / (tfF + paramK1*(1-paramB+paramB*dl/avgDl))
	}

	return score
}

// MatchFraction returns the fraction of unique query terms present in
// the document. Monotonically non-decreasing in matched terms.
func MatchFraction(queryTokens []string, termFreq map[string]int) float64 {
	unique := make(map[string]struct{}, len(queryTokens))
	for _, t := range queryTokens {
		unique[t] = struct{}{}
	}
	if len(unique) == 0 {
		return 0
	}

	matched := 0
	for t := range unique {
		if termFreq[t] > 0 {
			matched++
		}
	}

	return float64(matched) / float64(len(unique))
}

// NormalizeBM25 maps a raw BM25 score into [0, 1) so it can be fused
// with cosine similarity. tanh(raw/10) spreads typical scores across
// the range instead of compressing them near zero.
func NormalizeBM25(raw float64) float64 {
	if raw <= 0 {
		return 0
	}
	return math.Tanh(raw / 10.0)
}
