package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"kbsearch/config"
	"kbsearch/internal/adapter/store"
)

var (
	statsTopTerms int
	statsJSON     bool
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show corpus statistics",
	Long: `Show statistics for the current index: document count, vocabulary
size, average document length, and schema version.

Examples:
  kbsearch stats
  kbsearch stats --top 20`,
	RunE: runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().IntVar(&statsTopTerms, "top", 0, "also print the N most frequent terms")
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "output as JSON")
}

func runStats(cmd *cobra.Command, args []string) error {
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

	stats, err := st.GetStats()
	if err != nil {
		return fmt.Errorf("failed to load stats: %w", err)
	}
	count, err := st.Count()
	if err != nil {
		return fmt.Errorf("failed to count documents: %w", err)
	}
	schema, err := st.GetSchemaInfo()
	if err != nil {
		return fmt.Errorf("failed to load schema info: %w", err)
	}

	if statsJSON {
		out := map[string]any{
			"documents":      count,
			"unique_terms":   len(stats.DocFreq),
			"avg_doc_length": stats.AvgDocLen,
			"schema_version": schema.Version,
			"config_hash":    schema.ConfigHash,
		}
		data, _ := json.MarshalIndent(out, "", "  ")
		fmt.Println(string(data))
		return nil
	}

	fmt.Printf("Documents:      %d\n", count)
	fmt.Printf("Unique terms:   %d\n", len(stats.DocFreq))
	fmt.Printf("Avg doc length: %.1f tokens\n", stats.AvgDocLen)
	fmt.Printf("Schema version: %d\n", schema.Version)
	fmt.Printf("Index path:     %s\n", dbPath)

	if statsTopTerms > 0 && len(stats.DocFreq) > 0 {
		terms := make([]string, 0, len(stats.DocFreq))
		for t := range stats.DocFreq {
			terms = append(terms, t)
		}
		sort.Slice(terms, func(i, j int) bool {
			if stats.DocFreq[terms[i]] != stats.DocFreq[terms[j]] {
				return stats.DocFreq[terms[i]] > stats.DocFreq[terms[j]]
			}
			return terms[i] < terms[j]
		})
		if statsTopTerms < len(terms) {
			terms = terms[:statsTopTerms]
		}

		fmt.Printf("\nTop terms by document frequency:\n")
		for _, t := range terms {
			fmt.Printf("  %-24s %d\n", t, stats.DocFreq[t])
		}
	}

	return nil
}
