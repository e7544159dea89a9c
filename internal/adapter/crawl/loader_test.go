package crawl

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testCrawlJSON = `{
	"https://www.workstream.us/pricing/plans": {
		"status": "success",
		"text": "Plans start at $10 per user per month. Annual billing saves 20%.",
		"title": "Pricing Plans"
	},
	"https://www.workstream.us/broken": {
		"status": "error",
		"error_message": "Request timed out"
	},
	"https://www.workstream.us/brochure.pdf": {
		"status": "skipped_non_html",
		"content_type": "application/pdf"
	},
	"https://www.workstream.us/empty": {
		"status": "success",
		"text": "   ",
		"title": "Empty"
	}
}`

func writeTestCrawl(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write crawl file: %v", err)
	}
	return path
}

func TestLoadFileKeepsOnlyCleanPages(t *testing.T) {
	path := writeTestCrawl(t, "crawl.json", testCrawlJSON)
	loader := NewLoader(nil, nil, 0, nil)

	docs, err := loader.LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected 1 document, got %d", len(docs))
	}

	doc := docs[0]
	if doc.SourceURL != "https://www.workstream.us/pricing/plans" {
		t.Errorf("unexpected source url: %s", doc.SourceURL)
	}
	if doc.Title != "Pricing Plans" {
		t.Errorf("unexpected title: %s", doc.Title)
	}
	if doc.Meta.Category != "PRICING" {
		t.Errorf("expected category PRICING, got %s", doc.Meta.Category)
	}
	if len(doc.Meta.Categories) != 1 || doc.Meta.Categories[0] != "PLANS" {
		t.Errorf("expected secondary category PLANS, got %v", doc.Meta.Categories)
	}
	if doc.Meta.Source != doc.SourceURL {
		t.Errorf("meta source should carry the url, got %s", doc.Meta.Source)
	}
	if doc.ID == "" {
		t.Error("document id should be derived from the url")
	}
	if doc.Meta.CrawledAt.IsZero() {
		t.Error("crawled-at should come from the file mod time")
	}
}

func TestLoadFileSidecarOverrides(t *testing.T) {
	dir := t.TempDir()
	crawlPath := filepath.Join(dir, "crawl.json")
	if err := os.WriteFile(crawlPath, []byte(testCrawlJSON), 0644); err != nil {
		t.Fatalf("failed to write crawl file: %v", err)
	}

	side := `category: pricing_docs
keywords: [pricing, plans]
entities: [Workstream]
tech_level: 2
authoritative: true
`
	if err := os.WriteFile(filepath.Join(dir, "crawl.meta.yaml"), []byte(side), 0644); err != nil {
		t.Fatalf("failed to write sidecar: %v", err)
	}

	loader := NewLoader(nil, nil, 0, nil)
	docs, err := loader.LoadFile(crawlPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected 1 document, got %d", len(docs))
	}

	meta := docs[0].Meta
	if meta.Category != "PRICING_DOCS" {
		t.Errorf("sidecar category should win, got %s", meta.Category)
	}
	if meta.TechLevel != 2 {
		t.Errorf("expected tech level 2, got %d", meta.TechLevel)
	}
	if !meta.Authoritative {
		t.Error("sidecar should mark the doc authoritative")
	}
	if len(meta.Keywords) != 2 || len(meta.Entities) != 1 {
		t.Errorf("sidecar keywords/entities lost: %v / %v", meta.Keywords, meta.Entities)
	}
}

func TestLoadFileSplitsLongPages(t *testing.T) {
	para := strings.Repeat("Workstream automates hourly hiring. ", 10)
	text := para + "\n\n" + para + "\n\n" + para

	crawlJSON := `{
		"https://www.workstream.us/product": {
			"status": "success",
			"text": ` + quoteJSON(text) + `,
			"title": "Product"
		}
	}`
	path := writeTestCrawl(t, "crawl.json", crawlJSON)

	loader := NewLoader(nil, nil, 400, nil)
	docs, err := loader.LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if len(docs) < 2 {
		t.Fatalf("expected long page to split, got %d docs", len(docs))
	}

	seen := make(map[string]bool)
	for _, doc := range docs {
		if len(doc.Text) > 400 {
			t.Errorf("passage longer than limit: %d chars", len(doc.Text))
		}
		if seen[doc.ID] {
			t.Errorf("duplicate passage id %s", doc.ID)
		}
		seen[doc.ID] = true
		if !strings.Contains(doc.Title, "/") {
			t.Errorf("split passage titles should be numbered, got %q", doc.Title)
		}
	}
}

func quoteJSON(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	s = strings.ReplaceAll(s, "\n", `\n`)
	return `"` + s + `"`
}

func TestDiscoverHonorsGlobs(t *testing.T) {
	dir := t.TempDir()
	mustWrite := func(rel string) {
		path := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("mkdir failed: %v", err)
		}
		if err := os.WriteFile(path, []byte("{}"), 0644); err != nil {
			t.Fatalf("write failed: %v", err)
		}
	}

	mustWrite("crawl.json")
	mustWrite("archive/old.json")
	mustWrite("notes.txt")

	loader := NewLoader(nil, []string{"archive/**"}, 0, nil)
	files, err := loader.Discover(dir)
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if len(files) != 1 || filepath.Base(files[0]) != "crawl.json" {
		t.Errorf("unexpected discovery result: %v", files)
	}
}

func TestDiscoverSingleFile(t *testing.T) {
	path := writeTestCrawl(t, "crawl.json", "{}")

	loader := NewLoader(nil, nil, 0, nil)
	files, err := loader.Discover(path)
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if len(files) != 1 || files[0] != path {
		t.Errorf("expected the file itself, got %v", files)
	}
}

func TestMetadataFromURL(t *testing.T) {
	tests := []struct {
		url        string
		category   string
		categories int
	}{
		{"https://www.workstream.us/", "", 0},
		{"https://www.workstream.us/pricing", "PRICING", 0},
		{"https://www.workstream.us/about/team/leadership", "ABOUT", 2},
	}

	for _, tt := range tests {
		meta := metadataFromURL(tt.url)
		if meta.Category != tt.category {
			t.Errorf("%s: expected category %q, got %q", tt.url, tt.category, meta.Category)
		}
		if len(meta.Categories) != tt.categories {
			t.Errorf("%s: expected %d secondary categories, got %v", tt.url, tt.categories, meta.Categories)
		}
	}
}

func TestSplitPassages(t *testing.T) {
	if got := splitPassages("short text", 100); len(got) != 1 || got[0] != "short text" {
		t.Errorf("short text should stay whole, got %v", got)
	}

	if got := splitPassages("anything", 0); len(got) != 1 {
		t.Errorf("zero limit should disable splitting, got %v", got)
	}

	long := strings.Repeat("One sentence here. ", 50)
	passages := splitPassages(long, 120)
	if len(passages) < 2 {
		t.Fatalf("expected sentence-level split, got %d passages", len(passages))
	}
	for _, p := range passages {
		if len(p) > 120 {
			t.Errorf("passage exceeds limit: %d chars", len(p))
		}
		if !strings.HasSuffix(p, ".") {
			t.Errorf("expected sentence boundary cut, got %q", p)
		}
	}
}
