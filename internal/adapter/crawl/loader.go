package crawl

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"kbsearch/internal/domain"
)

// crawlPage mirrors one record in the crawler's output JSON,
// a map of url -> page.
type crawlPage struct {
	Status string `json:"status"`
	Text   string `json:"text"`
	Title  string `json:"title"`
}

// sidecar carries optional curator metadata for one crawl file,
// stored next to it as <file>.meta.yaml.
type sidecar struct {
	Category      string   `yaml:"category"`
	Categories    []string `yaml:"categories"`
	TechLevel     int      `yaml:"tech_level"`
	Keywords      []string `yaml:"keywords"`
	Entities      []string `yaml:"entities"`
	Deprecated    bool     `yaml:"deprecated"`
	Authoritative bool     `yaml:"authoritative"`
}

// Loader turns crawl-output JSON files into documents.
type Loader struct {
	includes    []string
	excludes    []string
	passageSize int
	log         *zap.Logger
}

func NewLoader(includes, excludes []string, passageSize int, log *zap.Logger) *Loader {
	if len(includes) == 0 {
		includes = []string{"**/*.json"}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Loader{
		includes:    includes,
		excludes:    excludes,
		passageSize: passageSize,
		log:         log,
	}
}

// Discover returns the crawl files under root matching the include globs.
// A root that is itself a file is returned as-is.
func (l *Loader) Discover(root string) ([]string, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{root}, nil
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		if d.IsDir() {
			if rel != "." && l.matches(l.excludes, rel+"/") {
				return filepath.SkipDir
			}
			return nil
		}

		if l.matches(l.includes, rel) && !l.matches(l.excludes, rel) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return files, nil
}

func (l *Loader) matches(patterns []string, path string) bool {
	for _, pattern := range patterns {
		matched, err := doublestar.Match(pattern, path)
		if err == nil && matched {
			return true
		}
	}
	return false
}

// Load reads every discovered crawl file under root. Unreadable files
// are logged and skipped.
func (l *Loader) Load(root string) ([]domain.Document, error) {
	files, err := l.Discover(root)
	if err != nil {
		return nil, err
	}

	var docs []domain.Document
	for _, path := range files {
		fileDocs, err := l.LoadFile(path)
		if err != nil {
			l.log.Warn("skipping crawl file", zap.String("path", path), zap.Error(err))
			continue
		}
		docs = append(docs, fileDocs...)
	}
	return docs, nil
}

// LoadFile parses one crawl JSON file into documents. Pages that did not
// crawl cleanly (status other than success, or empty text) are dropped.
func (l *Loader) LoadFile(path string) ([]domain.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var pages map[string]crawlPage
	if err := json.Unmarshal(data, &pages); err != nil {
		return nil, fmt.Errorf("failed to parse crawl file %s: %w", path, err)
	}

	side := l.loadSidecar(path)
	crawledAt := fileModTime(path)

	urls := make([]string, 0, len(pages))
	for u := range pages {
		urls = append(urls, u)
	}
	sort.Strings(urls)

	var docs []domain.Document
	for _, u := range urls {
		page := pages[u]
		if page.Status != "success" {
			continue
		}
		text := strings.TrimSpace(page.Text)
		if text == "" {
			continue
		}

		meta := metadataFromURL(u)
		meta.Source = u
		meta.CrawledAt = crawledAt
		applySidecar(&meta, side)

		passages := splitPassages(text, l.passageSize)
		for i, passage := range passages {
			id := pageID(u)
			title := page.Title
			if len(passages) > 1 {
				id = passageID(u, i)
				title = fmt.Sprintf("%s (%d/%d)", page.Title, i+1, len(passages))
			}

			docs = append(docs, domain.Document{
				ID:        id,
				SourceURL: u,
				Title:     title,
				Text:      passage,
				Meta:      meta,
			})
		}
	}

	return docs, nil
}

func (l *Loader) loadSidecar(path string) *sidecar {
	sidePath := strings.TrimSuffix(path, filepath.Ext(path)) + ".meta.yaml"
	data, err := os.ReadFile(sidePath)
	if err != nil {
		return nil
	}

	var side sidecar
	if err := yaml.Unmarshal(data, &side); err != nil {
		l.log.Warn("ignoring malformed metadata sidecar", zap.String("path", sidePath), zap.Error(err))
		return nil
	}
	return &side
}

func applySidecar(meta *domain.Metadata, side *sidecar) {
	if side == nil {
		return
	}

	if side.Category != "" {
		meta.Category = strings.ToUpper(side.Category)
	}
	if len(side.Categories) > 0 {
		meta.Categories = nil
		for _, c := range side.Categories {
			meta.Categories = append(meta.Categories, strings.ToUpper(c))
		}
	}
	if side.TechLevel > 0 {
		meta.TechLevel = side.TechLevel
	}
	meta.Keywords = append(meta.Keywords, side.Keywords...)
	meta.Entities = append(meta.Entities, side.Entities...)
	if side.Deprecated {
		meta.Deprecated = true
	}
	if side.Authoritative {
		meta.Authoritative = true
	}
}

// metadataFromURL derives categories from the URL path: the first
// segment becomes the primary category, the rest secondary ones.
func metadataFromURL(rawURL string) domain.Metadata {
	var meta domain.Metadata

	u, err := url.Parse(rawURL)
	if err != nil {
		return meta
	}

	trimmed := strings.Trim(u.Path, "/")
	if trimmed == "" {
		return meta
	}

	segments := strings.Split(trimmed, "/")
	meta.Category = strings.ToUpper(segments[0])
	for _, s := range segments[1:] {
		if s == "" {
			continue
		}
		meta.Categories = append(meta.Categories, strings.ToUpper(s))
	}
	return meta
}

func fileModTime(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

func pageID(url string) string {
	hash := sha256.Sum256([]byte(url))
	return hex.EncodeToString(hash[:8])
}

func passageID(url string, n int) string {
	hash := sha256.Sum256([]byte(fmt.Sprintf("%s#%d", url, n)))
	return hex.EncodeToString(hash[:8])
}

// splitPassages breaks a long page into passages no longer than maxChars,
// preferring paragraph boundaries and falling back to sentence breaks.
func splitPassages(text string, maxChars int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if maxChars <= 0 || len(text) <= maxChars {
		return []string{text}
	}

	var passages []string
	var current strings.Builder

	flush := func() {
		if p := strings.TrimSpace(current.String()); p != "" {
			passages = append(passages, p)
		}
		current.Reset()
	}

	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		if len(para) > maxChars {
			flush()
			passages = append(passages, splitSentences(para, maxChars)...)
			continue
		}

		if current.Len() > 0 && current.Len()+len(para)+2 > maxChars {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	flush()

	return passages
}

// splitSentences cuts a paragraph at sentence enders, then at spaces,
// then hard at a rune boundary when nothing better exists.
func splitSentences(text string, maxChars int) []string {
	var out []string

	start := 0
	for start < len(text) {
		if len(text)-start <= maxChars {
			if p := strings.TrimSpace(text[start:]); p != "" {
				out = append(out, p)
			}
			break
		}

		end := start + maxChars
		cut := -1
		for i := end; i > start; i-- {
			c := text[i-1]
			if c == '.' || c == '!' || c == '?' {
				cut = i
				break
			}
		}
		if cut == -1 {
			for i := end; i > start; i-- {
				if text[i-1] == ' ' {
					cut = i
					break
				}
			}
		}
		if cut == -1 {
			cut = end
			for cut > start && !utf8.RuneStart(text[cut]) {
				cut--
			}
			if cut == start {
				cut = end
			}
		}

		if p := strings.TrimSpace(text[start:cut]); p != "" {
			out = append(out, p)
		}
		start = cut
	}

	return out
}
