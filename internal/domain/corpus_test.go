package domain

import (
	"math"
	"testing"
)

func TestNewCorpus_Stats(t *testing.T) {
	docs := []Document{
		{ID: "a", Text: "pricing plans pricing"},
		{ID: "b", Text: "hiring plans"},
	}
	tokens := [][]string{
		{"pricing", "plans", "pricing"},
		{"hiring", "plans"},
	}

	c := NewCorpus(docs, tokens)
	if c.Len() != 2 {
		t.Fatalf("len = %d, want 2", c.Len())
	}

	stats := c.Stats()
	if stats.DocCount != 2 {
		t.Errorf("doc count = %d, want 2", stats.DocCount)
	}
	if math.Abs(stats.AvgDocLen-2.5) > 1e-9 {
		t.Errorf("avg doc len = %f, want 2.5", stats.AvgDocLen)
	}
	// Document frequency counts documents, not occurrences.
	if stats.DocFreq["pricing"] != 1 {
		t.Errorf("df(pricing) = %d, want 1", stats.DocFreq["pricing"])
	}
	if stats.DocFreq["plans"] != 2 {
		t.Errorf("df(plans) = %d, want 2", stats.DocFreq["plans"])
	}

	if tf := c.TermFreq(0); tf["pricing"] != 2 || tf["plans"] != 1 {
		t.Errorf("term freq doc 0 = %v", tf)
	}
	if c.DocLen(0) != 3 || c.DocLen(1) != 2 {
		t.Errorf("doc lens = %d, %d", c.DocLen(0), c.DocLen(1))
	}
}

func TestNewCorpus_DuplicateIDDropped(t *testing.T) {
	docs := []Document{
		{ID: "a", Text: "first"},
		{ID: "a", Text: "second"},
		{ID: "b", Text: "third"},
	}
	tokens := [][]string{{"first"}, {"second"}, {"third"}}

	c := NewCorpus(docs, tokens)
	if c.Len() != 2 {
		t.Fatalf("len = %d, want 2", c.Len())
	}
	doc, ok := c.ByID("a")
	if !ok {
		t.Fatal("doc a missing")
	}
	if doc.Text != "first" {
		t.Errorf("duplicate replaced original: %q", doc.Text)
	}
	if c.Stats().DocFreq["second"] != 0 {
		t.Error("dropped duplicate leaked into doc freq")
	}
}

func TestNewCorpus_ShortTokens(t *testing.T) {
	docs := []Document{{ID: "a"}, {ID: "b"}}
	c := NewCorpus(docs, [][]string{{"only"}})

	if c.DocLen(1) != 0 {
		t.Errorf("doc without tokens has len %d", c.DocLen(1))
	}
	if len(c.TermFreq(1)) != 0 {
		t.Errorf("doc without tokens has terms %v", c.TermFreq(1))
	}
}

func TestCorpus_ByIDMiss(t *testing.T) {
	c := NewCorpus(nil, nil)
	if _, ok := c.ByID("nope"); ok {
		t.Error("expected miss on empty corpus")
	}
	if !c.Stats().Empty() {
		t.Error("empty corpus stats should be empty")
	}
}

func TestCorpusRef_SwapAndLoad(t *testing.T) {
	ref := NewCorpusRef(nil)
	if ref.Load() == nil {
		t.Fatal("nil seed should load an empty corpus")
	}
	if ref.Load().Len() != 0 {
		t.Errorf("seed corpus len = %d", ref.Load().Len())
	}

	next := NewCorpus([]Document{{ID: "a"}}, [][]string{{"tok"}})
	ref.Swap(next)
	if ref.Load() != next {
		t.Error("swap did not install the new corpus")
	}

	ref.Swap(nil)
	if got := ref.Load(); got == nil || got.Len() != 0 {
		t.Error("swapping nil should install an empty corpus")
	}
}

func TestScoredCandidate_Fuse(t *testing.T) {
	c := ScoredCandidate{
		VectorScore:     0.8,
		LexicalScore:    0.4,
		TextMatchBonus:  0.5,
		BoostMultiplier: 1.5,
	}
	c.Fuse(0.5, 0.3)

	// (0.8*0.5 + 0.4*0.5 + 0.5*0.3) * 1.5
	want := 1.125
	if math.Abs(c.FusedScore-want) > 1e-9 {
		t.Errorf("fused = %f, want %f", c.FusedScore, want)
	}
}

func TestStats_Empty(t *testing.T) {
	if !(Stats{}).Empty() {
		t.Error("zero stats should be empty")
	}
	s := Stats{DocFreq: map[string]int{"a": 1}, DocCount: 1}
	if s.Empty() {
		t.Error("populated stats reported empty")
	}
	if !(Stats{DocCount: 3}).Empty() {
		t.Error("stats without doc freq should be empty")
	}
}

func TestMetadata_AllCategories(t *testing.T) {
	m := Metadata{Category: "PRICING", Categories: []string{"PLANS", "BILLING"}}
	got := m.AllCategories()
	want := []string{"PRICING", "PLANS", "BILLING"}
	if len(got) != len(want) {
		t.Fatalf("categories = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("categories[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	secondary := Metadata{Categories: []string{"PLANS"}}
	if cats := secondary.AllCategories(); len(cats) != 1 || cats[0] != "PLANS" {
		t.Errorf("secondary-only categories = %v", cats)
	}
	if cats := (Metadata{}).AllCategories(); len(cats) != 0 {
		t.Errorf("no categories = %v", cats)
	}
}

func TestFilter_Empty(t *testing.T) {
	if !(Filter{}).Empty() {
		t.Error("zero filter should be empty")
	}
	// Deprecated handling is a default, not a restriction.
	if !(Filter{IncludeDeprecated: true}).Empty() {
		t.Error("include-deprecated alone should still be empty")
	}
	if (Filter{MinTechLevel: 2}).Empty() {
		t.Error("tech floor should make filter non-empty")
	}
	if (Filter{Categories: []string{"PRICING"}}).Empty() {
		t.Error("categories should make filter non-empty")
	}
	if (Filter{AuthoritativeOnly: true}).Empty() {
		t.Error("authoritative-only should make filter non-empty")
	}
}
