package memstore

import (
	"testing"

	"kbsearch/internal/domain"
)

func TestMemoryStore_DocRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	err := s.PutDocs([]domain.Document{
		{ID: "b", Title: "second"},
		{ID: "a", Title: "first"},
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	docs, err := s.LoadDocs()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("loaded %d docs, want 2", len(docs))
	}
	if docs[0].ID != "a" || docs[1].ID != "b" {
		t.Errorf("docs not sorted by ID: %q, %q", docs[0].ID, docs[1].ID)
	}

	if n, _ := s.Count(); n != 2 {
		t.Errorf("count = %d, want 2", n)
	}
}

func TestMemoryStore_PutOverwrites(t *testing.T) {
	s := NewMemoryStore()

	s.PutDocs([]domain.Document{{ID: "a", Title: "old"}})
	s.PutDocs([]domain.Document{{ID: "a", Title: "new"}})

	docs, _ := s.LoadDocs()
	if len(docs) != 1 {
		t.Fatalf("loaded %d docs, want 1", len(docs))
	}
	if docs[0].Title != "new" {
		t.Errorf("title = %q, want new", docs[0].Title)
	}
}

func TestMemoryStore_DeleteDoc(t *testing.T) {
	s := NewMemoryStore()

	s.PutDocs([]domain.Document{{ID: "a"}, {ID: "b"}})
	if err := s.DeleteDoc("a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeleteDoc("missing"); err != nil {
		t.Fatalf("delete of missing doc: %v", err)
	}

	if n, _ := s.Count(); n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
	docs, _ := s.LoadDocs()
	if docs[0].ID != "b" {
		t.Errorf("remaining doc = %q, want b", docs[0].ID)
	}
}

func TestMemoryStore_StatsRoundTrip(t *testing.T) {
	s := NewMemoryStore()

	if stats, _ := s.GetStats(); !stats.Empty() {
		t.Error("fresh store should have empty stats")
	}

	want := domain.Stats{
		DocFreq:   map[string]int{"pricing": 3},
		DocCount:  10,
		AvgDocLen: 42.5,
	}
	if err := s.PutStats(want); err != nil {
		t.Fatalf("put stats: %v", err)
	}

	got, err := s.GetStats()
	if err != nil {
		t.Fatalf("get stats: %v", err)
	}
	if got.DocCount != 10 || got.AvgDocLen != 42.5 || got.DocFreq["pricing"] != 3 {
		t.Errorf("stats round trip mismatch: %+v", got)
	}
}
