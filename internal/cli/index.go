package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"kbsearch/config"
	"kbsearch/internal/adapter/analyzer"
	"kbsearch/internal/adapter/crawl"
	"kbsearch/internal/adapter/store"
	"kbsearch/internal/domain"
	"kbsearch/internal/usecase"
)

var indexCmd = &cobra.Command{
	Use:   "index [path]",
	Short: "Index crawled pages for retrieval",
	Long: `Index crawl JSON files found under the given path (default: working
directory). The index is stored in .kbsearch/index.db within the
working directory.

Examples:
  kbsearch index .                # Index crawl files in current directory
  kbsearch index ./crawl          # Index a crawl output directory
  kbsearch index ./crawl.json     # Index a single crawl file`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	rootDir := GetRootDir()

	// Determine where the crawl data lives
	path := rootDir
	if len(args) > 0 {
		var err error
		path, err = filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("invalid path: %w", err)
		}
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("path does not exist: %w", err)
	}

	if err := config.EnsureWorkDir(rootDir); err != nil {
		return fmt.Errorf("failed to create .kbsearch directory: %w", err)
	}

	dbPath := config.IndexDBPath(rootDir)
	st, err := store.NewBoltStore(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open index store: %w", err)
	}
	defer st.Close()

	// Check for schema migration or rebuild
	migration, err := st.CheckMigration(cfg)
	if err != nil {
		return fmt.Errorf("failed to check migration: %w", err)
	}

	if migration.NeedsRebuild {
		fmt.Printf("Index rebuild required: %s\n", migration.Reason)
		fmt.Println("Clearing existing index...")
		if err := st.Clear(); err != nil {
			return fmt.Errorf("failed to clear index: %w", err)
		}
	} else if migration.NeedsMigration {
		fmt.Printf("Running schema migration: %s\n", migration.Reason)
		if err := st.Migrate(cfg); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	embedder, err := newEmbedder(cfg)
	if err != nil {
		return err
	}

	tokenizer := analyzer.NewTokenizer()
	loader := crawl.NewLoader(cfg.Index.Includes, cfg.Index.Excludes, cfg.Index.PassageSize, GetLogger())
	corpus := domain.NewCorpusRef(nil)

	indexUC := usecase.NewIndexUseCase(loader, tokenizer, embedder, st, corpus,
		cfg.Index.EmbedWorkers, cfg.Embedding.BatchSize, GetLogger())

	fmt.Printf("Scanning %s...\n", path)

	// Create progress bar (initialized once the total is known)
	var bar *progressbar.ProgressBar
	var barMu sync.Mutex
	var startTime time.Time
	var initialized bool

	progressCallback := func(processed, total int, stage string) {
		barMu.Lock()
		defer barMu.Unlock()

		if !initialized {
			startTime = time.Now()
			bar = progressbar.NewOptions(total,
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionShowBytes(false),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionSetDescription(fmt.Sprintf("[cyan]%s[reset]", stage)),
				progressbar.OptionSetTheme(progressbar.Theme{
					Saucer:        "[green]=[reset]",
					SaucerHead:    "[green]>[reset]",
					SaucerPadding: " ",
					BarStart:      "[",
					BarEnd:        "]",
				}),
				progressbar.OptionOnCompletion(func() {
					fmt.Println()
				}),
			)
			initialized = true
		}

		bar.Set(processed)

		if processed > 0 {
			elapsed := time.Since(startTime)
			rate := float64(processed) / elapsed.Seconds()
			remaining := total - processed
			if rate > 0 {
				eta := time.Duration(float64(remaining)/rate) * time.Second
				bar.Describe(fmt.Sprintf("[cyan]%s[reset] ETA: %s", stage, formatDuration(eta)))
			}
		}
	}

	result, err := indexUC.Index(path, progressCallback)
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}

	// Record schema info after successful indexing
	if err := st.Migrate(cfg); err != nil {
		return fmt.Errorf("failed to update schema info: %w", err)
	}

	fmt.Printf("\nIndexing complete:\n")
	fmt.Printf("  Documents indexed: %d\n", result.DocsIndexed)
	if result.DocsEmbedded > 0 {
		fmt.Printf("  Embeddings:        %d\n", result.DocsEmbedded)
	}

	if len(result.Errors) > 0 {
		fmt.Printf("\nWarnings:\n")
		for _, e := range result.Errors {
			fmt.Printf("  - %s\n", e)
		}
	}

	fmt.Printf("\nIndex stored at: %s\n", dbPath)
	return nil
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", h, m)
}
