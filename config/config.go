package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the knowledge-base search tool.
type Config struct {
	Company   CompanyConfig   `yaml:"company"`
	Index     IndexConfig     `yaml:"index"`
	Search    SearchConfig    `yaml:"search"`
	Boost     BoostConfig     `yaml:"boost"`
	Expansion ExpansionConfig `yaml:"expansion"`
	Rerank    RerankConfig    `yaml:"rerank"`
	Analyzer  AnalyzerConfig  `yaml:"analyzer"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	Cache     CacheConfig     `yaml:"cache"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// CompanyConfig identifies the company the knowledge base belongs to.
// The name drives company-context detection and forced-include
// matching.
type CompanyConfig struct {
	Name    string   `yaml:"name"`
	Aliases []string `yaml:"aliases"`
}

// IndexConfig holds index-build configuration.
type IndexConfig struct {
	Includes     []string `yaml:"includes"`
	Excludes     []string `yaml:"excludes"`
	PassageSize  int      `yaml:"passage_size"` // max passage length in characters
	EmbedWorkers int      `yaml:"embed_workers"`
}

// SearchConfig holds fusion and threshold policy. The defaults are
// empirically tuned, not provably optimal; override per deployment.
type SearchConfig struct {
	VectorWeight       float64 `yaml:"vector_weight"`       // w in vector*w + lexical*(1-w)
	InclusionThreshold float64 `yaml:"inclusion_threshold"` // minimum fused score to keep
	ProductThreshold   float64 `yaml:"product_threshold"`   // lower threshold for product queries
	CompanyFloor       float64 `yaml:"company_floor"`       // forced-include score floor
	PhraseBonus        float64 `yaml:"phrase_bonus"`        // whole-query literal match
	OverlapBonus       float64 `yaml:"overlap_bonus"`       // strong token overlap
	IntentCueBonus     float64 `yaml:"intent_cue_bonus"`    // intent-specific cue in source or body
	IntentCoeff        float64 `yaml:"intent_coeff"`        // bonus scale when intent detected
	StrongOverlap      float64 `yaml:"strong_overlap"`      // token overlap fraction counted as strong
	FallbackPoolSize   int     `yaml:"fallback_pool_size"`
	MinResults         int     `yaml:"min_results"` // below this the cascade widens
	DefaultLimit       int     `yaml:"default_limit"`
}

// BoostConfig holds the multiplicative metadata boost policy.
type BoostConfig struct {
	Category        float64 `yaml:"category"`         // per category match
	PrimaryCategory float64 `yaml:"primary_category"` // extra when the primary category matches
	Keyword         float64 `yaml:"keyword"`          // additive per keyword match
	KeywordCap      float64 `yaml:"keyword_cap"`      // additive cap across keyword matches
	Entity          float64 `yaml:"entity"`           // additive per entity match
	TechFloor       float64 `yaml:"tech_floor"`       // lower bound of the tech-level proximity factor
}

// ExpansionConfig holds query-expansion configuration.
type ExpansionConfig struct {
	Enabled        bool    `yaml:"enabled"`
	MaxTerms       int     `yaml:"max_terms"`
	SemanticWeight float64 `yaml:"semantic_weight"`
	TimeoutSec     int     `yaml:"timeout_sec"`
	CacheTTLHours  int     `yaml:"cache_ttl_hours"`
}

// RerankConfig holds second-pass reranking configuration.
type RerankConfig struct {
	Enabled         bool    `yaml:"enabled"`
	Candidates      int     `yaml:"candidates"` // fused candidates sent to the judge
	BatchSize       int     `yaml:"batch_size"`
	BatchTimeoutSec int     `yaml:"batch_timeout_sec"`
	VectorWeight    float64 `yaml:"vector_weight"`
	LexicalWeight   float64 `yaml:"lexical_weight"`
	JudgeWeight     float64 `yaml:"judge_weight"`
}

// AnalyzerConfig holds query-analysis configuration.
type AnalyzerConfig struct {
	LLMClassification bool `yaml:"llm_classification"`
	TimeoutSec        int  `yaml:"timeout_sec"`
	CacheTTLHours     int  `yaml:"cache_ttl_hours"`
}

// EmbeddingConfig holds embedding configuration.
type EmbeddingConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Provider   string `yaml:"provider"` // "openai", "mock"
	Model      string `yaml:"model"`
	APIKeyEnv  string `yaml:"api_key_env"`
	BaseURL    string `yaml:"base_url"`
	Dimension  int    `yaml:"dimension"`
	BatchSize  int    `yaml:"batch_size"`
	TimeoutSec int    `yaml:"timeout_sec"` // query-embedding time-box
}

// LLMConfig holds the chat-completion model used for expansion,
// classification, and relevance judgment.
type LLMConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	APIKeyEnv string `yaml:"api_key_env"`
	BaseURL   string `yaml:"base_url"`
}

// CacheConfig holds in-memory cache limits.
type CacheConfig struct {
	MaxEntries int `yaml:"max_entries"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	Verbose bool   `yaml:"verbose"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Company: CompanyConfig{
			Name:    "Workstream",
			Aliases: []string{"workstream"},
		},
		Index: IndexConfig{
			Includes:     []string{"**/*.json"},
			Excludes:     []string{"**/node_modules/**", "**/.git/**"},
			PassageSize:  1600,
			EmbedWorkers: 4,
		},
		Search: SearchConfig{
			VectorWeight:       0.7,
			InclusionThreshold: 0.1,
			ProductThreshold:   0.05,
			CompanyFloor:       0.25,
			PhraseBonus:        0.3,
			OverlapBonus:       0.15,
			IntentCueBonus:     0.25,
			IntentCoeff:        1.5,
			StrongOverlap:      0.6,
			FallbackPoolSize:   10,
			MinResults:         3,
			DefaultLimit:       10,
		},
		Boost: BoostConfig{
			Category:        1.5,
			PrimaryCategory: 1.2,
			Keyword:         0.1,
			KeywordCap:      0.5,
			Entity:          0.25,
			TechFloor:       0.8,
		},
		Expansion: ExpansionConfig{
			Enabled:        true,
			MaxTerms:       4,
			SemanticWeight: 0.6,
			TimeoutSec:     2,
			CacheTTLHours:  24,
		},
		Rerank: RerankConfig{
			Enabled:         true,
			Candidates:      15,
			BatchSize:       5,
			BatchTimeoutSec: 10,
			VectorWeight:    0.3,
			LexicalWeight:   0.2,
			JudgeWeight:     0.5,
		},
		Analyzer: AnalyzerConfig{
			LLMClassification: false,
			TimeoutSec:        2,
			CacheTTLHours:     24,
		},
		Embedding: EmbeddingConfig{
			Enabled:    false,
			Provider:   "openai",
			Model:      "text-embedding-3-small",
			APIKeyEnv:  "OPENAI_API_KEY",
			Dimension:  1536,
			BatchSize:  100,
			TimeoutSec: 2,
		},
		LLM: LLMConfig{
			Enabled:   false,
			Provider:  "openai",
			Model:     "gpt-4o-mini",
			APIKeyEnv: "OPENAI_API_KEY",
		},
		Cache: CacheConfig{
			MaxEntries: 1024,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Return defaults if no config file
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromDir loads configuration from a directory (looks for
// kbsearch.yaml, then .kbsearch/config.yaml).
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, "kbsearch.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(dir, ".kbsearch", "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	return DefaultConfig(), nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// IndexDBPath returns the path to the index database.
func IndexDBPath(dir string) string {
	return filepath.Join(dir, ".kbsearch", "index.db")
}

// EnsureWorkDir ensures the .kbsearch directory exists.
func EnsureWorkDir(dir string) error {
	return os.MkdirAll(filepath.Join(dir, ".kbsearch"), 0755)
}
