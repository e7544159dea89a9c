package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"kbsearch/internal/adapter/cache"
	"kbsearch/internal/adapter/retriever"
)

var (
	expandQuery string
	expandJSON  bool
)

var expandCmd = &cobra.Command{
	Use:   "expand",
	Short: "Show query expansion output",
	Long: `Run the query expander on its own and print the expanded query.
Useful for debugging expansion behavior and prompt changes.

Examples:
  kbsearch expand -q "pricing"
  kbsearch expand -q "how to set up webhooks" --json`,
	RunE: runExpand,
}

func init() {
	rootCmd.AddCommand(expandCmd)
	expandCmd.Flags().StringVarP(&expandQuery, "query", "q", "", "query to expand (required)")
	expandCmd.Flags().BoolVar(&expandJSON, "json", false, "output as JSON")
	expandCmd.MarkFlagRequired("query")
}

func runExpand(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	llmClient, err := newLLM(cfg)
	if err != nil {
		return err
	}

	qcache := cache.NewMemoryCache(cfg.Cache.MaxEntries)
	expander := retriever.NewQueryExpander(llmClient, qcache, expansionPolicy(cfg), GetLogger())

	exp := expander.Expand(expandQuery)

	if expandJSON {
		output, _ := json.MarshalIndent(exp, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	fmt.Printf("Query:    %s\n", expandQuery)
	fmt.Printf("Expanded: %s\n", exp.ExpandedQuery)
	fmt.Printf("Type:     %s\n", exp.ExpansionType)
	if len(exp.AddedTerms) > 0 {
		fmt.Printf("Added:    %s\n", strings.Join(exp.AddedTerms, ", "))
	}

	return nil
}
