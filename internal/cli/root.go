package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"kbsearch/config"
	"kbsearch/internal/adapter/llm"
	"kbsearch/internal/adapter/retriever"
	"kbsearch/internal/logger"
	"kbsearch/internal/port"
)

var (
	cfgFile string
	cfg     *config.Config
	rootDir string
	verbose bool
	log     *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "kbsearch",
	Short: "Knowledge-base search - index crawled pages and run hybrid retrieval",
	Long: `kbsearch indexes crawled knowledge-base pages and answers queries with
hybrid retrieval: BM25 lexical scoring fused with embedding similarity,
metadata boosting, and optional LLM reranking.

Example usage:
  kbsearch index ./crawl          # Index crawl JSON files
  kbsearch search -q "pricing"    # Search the knowledge base
  kbsearch stats                  # Show corpus statistics
  kbsearch expand -q "pricing"    # Debug query expansion`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error

		if rootDir == "" {
			rootDir, err = os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get working directory: %w", err)
			}
		}

		if cfgFile != "" {
			cfg, err = config.Load(cfgFile)
		} else {
			cfg, err = config.LoadFromDir(rootDir)
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		log, err = logger.New(verbose || cfg.Logging.Verbose, cfg.Logging.Level)
		if err != nil {
			return fmt.Errorf("failed to set up logging: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			_ = log.Sync()
		}
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./kbsearch.yaml)")
	rootCmd.PersistentFlags().StringVarP(&rootDir, "dir", "d", "", "working directory (default is current directory)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
}

func GetConfig() *config.Config {
	return cfg
}

func GetRootDir() string {
	return rootDir
}

func GetLogger() *zap.Logger {
	return log
}

// newEmbedder builds the configured embedding client, or nil when
// embeddings are disabled.
func newEmbedder(cfg *config.Config) (port.Embedder, error) {
	if !cfg.Embedding.Enabled {
		return nil, nil
	}
	switch cfg.Embedding.Provider {
	case "openai":
		return llm.NewEmbedder(cfg.Embedding.APIKeyEnv, cfg.Embedding.Model,
			cfg.Embedding.BaseURL, cfg.Embedding.Dimension, cfg.Embedding.BatchSize)
	case "mock":
		return llm.NewMockEmbedder(cfg.Embedding.Dimension), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Embedding.Provider)
	}
}

// newLLM builds the configured chat-completion client, or nil when
// the LLM is disabled.
func newLLM(cfg *config.Config) (port.LLM, error) {
	if !cfg.LLM.Enabled {
		return nil, nil
	}
	switch cfg.LLM.Provider {
	case "openai":
		return llm.NewClient(cfg.LLM.APIKeyEnv, cfg.LLM.Model, cfg.LLM.BaseURL)
	case "mock":
		return llm.NewMockLLM(), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.LLM.Provider)
	}
}

func fusionPolicy(cfg *config.Config) retriever.FusionPolicy {
	return retriever.FusionPolicy{
		InclusionThreshold: cfg.Search.InclusionThreshold,
		ProductThreshold:   cfg.Search.ProductThreshold,
		CompanyFloor:       cfg.Search.CompanyFloor,
		PhraseBonus:        cfg.Search.PhraseBonus,
		OverlapBonus:       cfg.Search.OverlapBonus,
		IntentCueBonus:     cfg.Search.IntentCueBonus,
		IntentCoeff:        cfg.Search.IntentCoeff,
		StrongOverlap:      cfg.Search.StrongOverlap,
		FallbackPoolSize:   cfg.Search.FallbackPoolSize,
		MinResults:         cfg.Search.MinResults,
	}
}

func boostPolicy(cfg *config.Config) retriever.BoostPolicy {
	return retriever.BoostPolicy{
		Category:        cfg.Boost.Category,
		PrimaryCategory: cfg.Boost.PrimaryCategory,
		Keyword:         cfg.Boost.Keyword,
		KeywordCap:      cfg.Boost.KeywordCap,
		Entity:          cfg.Boost.Entity,
		TechFloor:       cfg.Boost.TechFloor,
	}
}

func rerankPolicy(cfg *config.Config) retriever.RerankPolicy {
	return retriever.RerankPolicy{
		BatchSize:     cfg.Rerank.BatchSize,
		BatchTimeout:  time.Duration(cfg.Rerank.BatchTimeoutSec) * time.Second,
		VectorWeight:  cfg.Rerank.VectorWeight,
		LexicalWeight: cfg.Rerank.LexicalWeight,
		JudgeWeight:   cfg.Rerank.JudgeWeight,
	}
}

func expansionPolicy(cfg *config.Config) retriever.ExpansionPolicy {
	return retriever.ExpansionPolicy{
		MaxTerms:       cfg.Expansion.MaxTerms,
		SemanticWeight: cfg.Expansion.SemanticWeight,
		Timeout:        time.Duration(cfg.Expansion.TimeoutSec) * time.Second,
		CacheTTL:       time.Duration(cfg.Expansion.CacheTTLHours) * time.Hour,
	}
}
