package usecase

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"kbsearch/internal/adapter/crawl"
	"kbsearch/internal/adapter/memstore"
	"kbsearch/internal/domain"
	"kbsearch/internal/port"
)

const crawlFixture = `{
	"https://workstream.us/pricing": {"status": "success", "text": "pricing plans for hourly teams", "title": "Pricing"},
	"https://workstream.us/about/team": {"status": "success", "text": "the team behind the product", "title": "Team"},
	"https://workstream.us/broken": {"status": "error", "text": "", "title": ""},
	"https://workstream.us/blank": {"status": "success", "text": "   ", "title": "Blank"}
}`

func writeCrawlFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func newIndexUC(embedder port.Embedder) (*IndexUseCase, *memstore.MemoryStore, *domain.CorpusRef) {
	loader := crawl.NewLoader(nil, nil, 0, nil)
	store := memstore.NewMemoryStore()
	ref := domain.NewCorpusRef(nil)
	uc := NewIndexUseCase(loader, fieldsTokenizer{}, embedder, store, ref, 0, 0, nil)
	return uc, store, ref
}

func TestIndex_BuildsCorpusAndPersists(t *testing.T) {
	dir := t.TempDir()
	writeCrawlFile(t, dir, "crawl.json", crawlFixture)

	uc, store, ref := newIndexUC(nil)
	res, err := uc.Index(dir, nil)
	if err != nil {
		t.Fatalf("index: %v", err)
	}

	// Failed and empty pages are dropped.
	if res.DocsIndexed != 2 {
		t.Errorf("docs indexed = %d, want 2", res.DocsIndexed)
	}
	if res.DocsEmbedded != 0 {
		t.Errorf("docs embedded = %d without embedder", res.DocsEmbedded)
	}
	if len(res.Errors) != 0 {
		t.Errorf("unexpected errors: %v", res.Errors)
	}

	if n, _ := store.Count(); n != 2 {
		t.Errorf("store count = %d, want 2", n)
	}
	stats, _ := store.GetStats()
	if stats.DocCount != 2 {
		t.Errorf("persisted doc count = %d, want 2", stats.DocCount)
	}
	if stats.DocFreq["pricing"] != 1 {
		t.Errorf("df(pricing) = %d, want 1", stats.DocFreq["pricing"])
	}

	if ref.Load().Len() != 2 {
		t.Errorf("corpus len = %d, want 2", ref.Load().Len())
	}
}

func TestIndex_EmbedsDocs(t *testing.T) {
	dir := t.TempDir()
	writeCrawlFile(t, dir, "crawl.json", crawlFixture)

	uc, store, _ := newIndexUC(stubEmbedder{vec: []float32{0.5, 0.5}})

	var lastProcessed, lastTotal int
	var lastStage string
	res, err := uc.Index(dir, func(processed, total int, stage string) {
		lastProcessed, lastTotal, lastStage = processed, total, stage
	})
	if err != nil {
		t.Fatalf("index: %v", err)
	}

	if res.DocsEmbedded != 2 {
		t.Errorf("docs embedded = %d, want 2", res.DocsEmbedded)
	}
	if lastProcessed != 2 || lastTotal != 2 || lastStage != "embedding" {
		t.Errorf("progress = %d/%d %q", lastProcessed, lastTotal, lastStage)
	}

	docs, _ := store.LoadDocs()
	for _, doc := range docs {
		if len(doc.Embedding) != 2 {
			t.Errorf("doc %s embedding = %v", doc.ID, doc.Embedding)
		}
	}
}

func TestIndex_EmbeddingFailureKeepsDocs(t *testing.T) {
	dir := t.TempDir()
	writeCrawlFile(t, dir, "crawl.json", crawlFixture)

	uc, store, ref := newIndexUC(stubEmbedder{err: errors.New("quota")})
	res, err := uc.Index(dir, nil)
	if err != nil {
		t.Fatalf("index should survive embedding failure: %v", err)
	}

	if res.DocsIndexed != 2 || res.DocsEmbedded != 0 {
		t.Errorf("indexed %d embedded %d, want 2 and 0", res.DocsIndexed, res.DocsEmbedded)
	}
	if len(res.Errors) == 0 {
		t.Error("embedding failure not reported")
	}
	if n, _ := store.Count(); n != 2 {
		t.Errorf("store count = %d, want 2", n)
	}
	if ref.Load().Len() != 2 {
		t.Errorf("corpus len = %d, want 2", ref.Load().Len())
	}
}

func TestIndex_NoDocumentsFails(t *testing.T) {
	dir := t.TempDir()

	uc, _, _ := newIndexUC(nil)
	if _, err := uc.Index(dir, nil); err == nil {
		t.Fatal("expected error for empty crawl directory")
	}
}

func TestIndex_SplitsLongPages(t *testing.T) {
	dir := t.TempDir()
	long := `{"https://workstream.us/guide": {"status": "success", "text": "Workstream automates hourly hiring.\n\nTeams onboard new hires in minutes.", "title": "Guide"}}`
	path := writeCrawlFile(t, dir, "crawl.json", long)

	loader := crawl.NewLoader(nil, nil, 40, nil)
	store := memstore.NewMemoryStore()
	ref := domain.NewCorpusRef(nil)
	uc := NewIndexUseCase(loader, fieldsTokenizer{}, nil, store, ref, 0, 0, nil)

	res, err := uc.Index(path, nil)
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	if res.DocsIndexed != 2 {
		t.Fatalf("docs indexed = %d, want 2 passages", res.DocsIndexed)
	}

	docs, _ := store.LoadDocs()
	for _, doc := range docs {
		if !strings.Contains(doc.Title, "/2)") {
			t.Errorf("passage title %q missing part marker", doc.Title)
		}
		if len(doc.Text) > 40 {
			t.Errorf("passage longer than limit: %d chars", len(doc.Text))
		}
	}
}

type failingStore struct {
	*memstore.MemoryStore
}

func (f failingStore) LoadDocs() ([]domain.Document, error) {
	return nil, errors.New("corrupt index")
}

func TestLoadCorpus(t *testing.T) {
	store := memstore.NewMemoryStore()
	store.PutDocs([]domain.Document{
		{ID: "a", Text: "pricing plans"},
		{ID: "b", Text: "team"},
	})

	ref := domain.NewCorpusRef(nil)
	LoadCorpus(store, fieldsTokenizer{}, ref, nil)

	c := ref.Load()
	if c.Len() != 2 {
		t.Fatalf("corpus len = %d, want 2", c.Len())
	}
	if _, ok := c.ByID("a"); !ok {
		t.Error("doc a missing from restored corpus")
	}
	if c.Stats().DocFreq["pricing"] != 1 {
		t.Errorf("restored df(pricing) = %d, want 1", c.Stats().DocFreq["pricing"])
	}
}

func TestLoadCorpus_StoreFailureStartsEmpty(t *testing.T) {
	stale := domain.NewCorpus([]domain.Document{{ID: "stale"}}, [][]string{{"stale"}})
	ref := domain.NewCorpusRef(stale)
	LoadCorpus(failingStore{memstore.NewMemoryStore()}, fieldsTokenizer{}, ref, nil)

	c := ref.Load()
	if c == nil {
		t.Fatal("corpus must never be nil")
	}
	if c.Len() != 0 {
		t.Errorf("corpus len = %d, want empty on load failure", c.Len())
	}
}
