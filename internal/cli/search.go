package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"kbsearch/config"
	"kbsearch/internal/adapter/analyzer"
	"kbsearch/internal/adapter/cache"
	"kbsearch/internal/adapter/retriever"
	"kbsearch/internal/adapter/store"
	"kbsearch/internal/domain"
	"kbsearch/internal/port"
	"kbsearch/internal/usecase"
)

var (
	searchQuery      string
	searchLimit      int
	searchCategory   string
	searchEntities   []string
	searchMinTech    int
	searchMaxTech    int
	searchDeprecated bool
	searchAuthOnly   bool
	searchFacets     bool
	searchJSON       bool
	searchNoExpand   bool
	searchNoRerank   bool
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search the indexed knowledge base",
	Long: `Search indexed pages with hybrid retrieval: BM25 and embedding scores
are fused per query, metadata boosts applied, and the top candidates
optionally reranked by an LLM judge.

Examples:
  kbsearch search -q "how much does hiring cost"
  kbsearch search -q "API webhooks" -c PRODUCT_DOCS --min-tech 3
  kbsearch search -q "who invested" --facets --json`,
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().StringVarP(&searchQuery, "query", "q", "", "search query (required)")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "k", 0, "number of results (default from config)")
	searchCmd.Flags().StringVarP(&searchCategory, "category", "c", "", "category path filter, e.g. PRODUCT_DOCS/INTEGRATIONS")
	searchCmd.Flags().StringSliceVar(&searchEntities, "entity", nil, "required entity (repeatable)")
	searchCmd.Flags().IntVar(&searchMinTech, "min-tech", 0, "minimum technical level (1-5)")
	searchCmd.Flags().IntVar(&searchMaxTech, "max-tech", 0, "maximum technical level (1-5)")
	searchCmd.Flags().BoolVar(&searchDeprecated, "include-deprecated", false, "include deprecated documents")
	searchCmd.Flags().BoolVar(&searchAuthOnly, "authoritative-only", false, "only authoritative documents")
	searchCmd.Flags().BoolVar(&searchFacets, "facets", false, "include facet counts over the candidate set")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output as JSON")
	searchCmd.Flags().BoolVar(&searchNoExpand, "no-expand", false, "disable query expansion")
	searchCmd.Flags().BoolVar(&searchNoRerank, "no-rerank", false, "disable LLM reranking")
	searchCmd.MarkFlagRequired("query")
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	rootDir := GetRootDir()

	dbPath := config.IndexDBPath(rootDir)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return fmt.Errorf("no index found. Run 'kbsearch index' first")
	}

	st, err := store.NewBoltStore(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open index: %w", err)
	}
	defer st.Close()

	searchUC, err := buildSearchPipeline(st, cfg)
	if err != nil {
		return err
	}

	opts := domain.SearchOptions{
		Limit:             searchLimit,
		IncludeDeprecated: searchDeprecated,
		AuthoritativeOnly: searchAuthOnly,
		CategoryPath:      searchCategory,
		MinTechLevel:      searchMinTech,
		MaxTechLevel:      searchMaxTech,
		RequiredEntities:  searchEntities,
		WithFacets:        searchFacets,
		DisableExpansion:  searchNoExpand,
		DisableRerank:     searchNoRerank,
	}

	result, err := searchUC.Search(context.Background(), searchQuery, opts)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		output, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	if len(result.Results) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	fmt.Printf("Found %d results for: %s\n\n", len(result.Results), searchQuery)
	for i, r := range result.Results {
		fmt.Printf("--- [%d] %s (score: %.3f) ---\n", i+1, r.Doc.SourceURL, r.FinalScore)
		if r.Doc.Title != "" {
			fmt.Printf("%s\n", r.Doc.Title)
		}
		// Truncate long text for display
		text := r.Doc.Text
		if len(text) > 500 {
			text = text[:500] + "..."
		}
		fmt.Println(text)
		fmt.Println()
	}

	if result.Facets != nil {
		printFacets(result.Facets)
	}

	return nil
}

// buildSearchPipeline wires the full retrieval stack from config:
// tokenizer, corpus, analyzer, expander, embedder, fusion engine,
// and reranker. LLM-backed stages are skipped when no LLM is
// configured.
func buildSearchPipeline(st *store.BoltStore, cfg *config.Config) (*usecase.SearchUseCase, error) {
	log := GetLogger()

	tokenizer := analyzer.NewTokenizer()
	corpus := domain.NewCorpusRef(nil)
	usecase.LoadCorpus(st, tokenizer, corpus, log)

	llmClient, err := newLLM(cfg)
	if err != nil {
		return nil, err
	}
	qcache := cache.NewMemoryCache(cfg.Cache.MaxEntries)

	aOpts := []analyzer.AnalyzerOption{analyzer.WithLogger(log)}
	if cfg.Analyzer.LLMClassification && llmClient != nil {
		aOpts = append(aOpts,
			analyzer.WithClassifier(llmClient),
			analyzer.WithCache(qcache, time.Duration(cfg.Analyzer.CacheTTLHours)*time.Hour),
			analyzer.WithClassifierTimeout(time.Duration(cfg.Analyzer.TimeoutSec)*time.Second),
		)
	}
	qa := analyzer.NewQueryAnalyzer(cfg.Company.Name, cfg.Company.Aliases, cfg.Search.VectorWeight, aOpts...)

	var expander port.QueryExpander
	if cfg.Expansion.Enabled {
		expander = retriever.NewQueryExpander(llmClient, qcache, expansionPolicy(cfg), log)
	}

	embedder, err := newEmbedder(cfg)
	if err != nil {
		return nil, err
	}

	meta := retriever.NewMetadataFilter(boostPolicy(cfg))
	company := append([]string{cfg.Company.Name}, cfg.Company.Aliases...)
	engine := retriever.NewFusionEngine(corpus, meta, company, fusionPolicy(cfg), log)

	var reranker port.Reranker
	if cfg.Rerank.Enabled && llmClient != nil {
		reranker = retriever.NewLLMReranker(llmClient, rerankPolicy(cfg), log)
	}

	return usecase.NewSearchUseCase(qa, expander, embedder, tokenizer, engine, reranker, cfg, log), nil
}

func printFacets(f *domain.Facets) {
	fmt.Println("Facets:")

	fmt.Println("  Categories:")
	for _, k := range sortedKeys(f.Categories) {
		fmt.Printf("    %-24s %d\n", k, f.Categories[k])
	}

	if len(f.Entities) > 0 {
		fmt.Println("  Entities:")
		for _, k := range sortedKeys(f.Entities) {
			fmt.Printf("    %-24s %d\n", k, f.Entities[k])
		}
	}

	if len(f.TechLevels) > 0 {
		fmt.Println("  Tech levels:")
		levels := make([]int, 0, len(f.TechLevels))
		for l := range f.TechLevels {
			levels = append(levels, l)
		}
		sort.Ints(levels)
		for _, l := range levels {
			fmt.Printf("    %-24d %d\n", l, f.TechLevels[l])
		}
	}
}

// sortedKeys returns map keys ordered by descending count, ties
// alphabetical.
func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if m[keys[i]] != m[keys[j]] {
			return m[keys[i]] > m[keys[j]]
		}
		return keys[i] < keys[j]
	})
	return keys
}
