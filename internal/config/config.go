// Package config provides configuration loading and validation for the CLI.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jonathan/worktype-resolver/internal/drafting"
	"github.com/jonathan/worktype-resolver/internal/llm"
	"github.com/jonathan/worktype-resolver/internal/matching"
	"github.com/jonathan/worktype-resolver/internal/resolution"
	"github.com/jonathan/worktype-resolver/internal/similarity"
)

// Environment variables overlaid by ApplyEnv
const (
	EnvAPIKey        = "GEMINI_API_KEY"
	EnvDatabaseURL   = "DATABASE_URL"
	EnvRedisURL      = "REDIS_URL"
	EnvVectorEnabled = "ENABLE_VECTOR_SIMILARITY"
	EnvEmbeddingDim  = "EMBEDDING_DIM"
)

// Config represents the CLI configuration that can be loaded from a JSON or YAML file.
// All fields are optional; missing values use defaults or must be provided via CLI flags.
type Config struct {
	// Connections
	APIKey      string `json:"api_key,omitempty" yaml:"api_key,omitempty"`           // Gemini API key
	DatabaseURL string `json:"database_url,omitempty" yaml:"database_url,omitempty"` // PostgreSQL connection URL
	RedisURL    string `json:"redis_url,omitempty" yaml:"redis_url,omitempty"`       // Draft cache; in-memory when empty
	CachePrefix string `json:"cache_prefix,omitempty" yaml:"cache_prefix,omitempty"` // Redis key prefix

	// Matching
	HardThreshold float64 `json:"hard_threshold,omitempty" yaml:"hard_threshold,omitempty"`
	SoftThreshold float64 `json:"soft_threshold,omitempty" yaml:"soft_threshold,omitempty"`
	K             int     `json:"k,omitempty" yaml:"k,omitempty"`                           // Candidates per fragment
	ShortlistSize int     `json:"shortlist_size,omitempty" yaml:"shortlist_size,omitempty"` // Lexical matches refined semantically
	Concurrency   int     `json:"concurrency,omitempty" yaml:"concurrency,omitempty"`

	// Embeddings
	VectorSimilarity *bool  `json:"enable_vector_similarity,omitempty" yaml:"enable_vector_similarity,omitempty"`
	EmbeddingDim     int    `json:"embedding_dim,omitempty" yaml:"embedding_dim,omitempty"`
	EmbeddingModel   string `json:"embedding_model,omitempty" yaml:"embedding_model,omitempty"`
	EmbedTimeoutMS   int    `json:"embed_timeout_ms,omitempty" yaml:"embed_timeout_ms,omitempty"`

	// Drafting
	DraftModel        string `json:"draft_model,omitempty" yaml:"draft_model,omitempty"` // Overrides the lite-tier model
	GenerateTimeoutMS int    `json:"generate_timeout_ms,omitempty" yaml:"generate_timeout_ms,omitempty"`
	CacheTTLSeconds   int    `json:"cache_ttl_seconds,omitempty" yaml:"cache_ttl_seconds,omitempty"`

	// Behavior
	Verbose bool `json:"verbose,omitempty" yaml:"verbose,omitempty"` // Print detailed debug information
}

// Defaults returns a Config populated from the package defaults of each component.
func Defaults() Config {
	sim := similarity.DefaultConfig()
	draft := drafting.DefaultConfig()
	opts := resolution.DefaultOptions()
	llmCfg := llm.DefaultConfig()
	enabled := true

	return Config{
		CachePrefix:       "worktype:",
		HardThreshold:     opts.Thresholds.Hard,
		SoftThreshold:     opts.Thresholds.Soft,
		K:                 sim.K,
		ShortlistSize:     sim.ShortlistSize,
		Concurrency:       opts.Concurrency,
		VectorSimilarity:  &enabled,
		EmbeddingDim:      sim.EmbeddingDim,
		EmbeddingModel:    llmCfg.EmbeddingModel,
		EmbedTimeoutMS:    int(sim.EmbedTimeout / time.Millisecond),
		GenerateTimeoutMS: int(draft.Timeout / time.Millisecond),
		CacheTTLSeconds:   int(draft.CacheTTL / time.Second),
	}
}

// LoadConfig loads configuration from a JSON file, or YAML when the file
// extension is .yaml or .yml.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	}

	return &cfg, nil
}

// ApplyEnv overlays values from the environment. Set variables win over
// file values.
func (c *Config) ApplyEnv() error {
	if v, ok := os.LookupEnv(EnvAPIKey); ok && v != "" {
		c.APIKey = v
	}
	if v, ok := os.LookupEnv(EnvDatabaseURL); ok && v != "" {
		c.DatabaseURL = v
	}
	if v, ok := os.LookupEnv(EnvRedisURL); ok && v != "" {
		c.RedisURL = v
	}
	if v, ok := os.LookupEnv(EnvVectorEnabled); ok && v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config error: %s must be a boolean, got %q", EnvVectorEnabled, v)
		}
		c.VectorSimilarity = &enabled
	}
	if v, ok := os.LookupEnv(EnvEmbeddingDim); ok && v != "" {
		dim, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config error: %s must be an integer, got %q", EnvEmbeddingDim, v)
		}
		c.EmbeddingDim = dim
	}
	return nil
}

// Validate checks that the configuration has valid values.
// Threshold problems are reported as *matching.ConfigurationError.
// Note: This doesn't check for required fields since those are handled
// by CLI flag validation after merging.
func (c *Config) Validate() error {
	if c.HardThreshold != 0 || c.SoftThreshold != 0 {
		if err := c.Thresholds().Validate(); err != nil {
			return err
		}
	}

	// Validate numeric ranges
	if c.K < 0 {
		return fmt.Errorf("config error: 'k' must be non-negative")
	}
	if c.ShortlistSize < 0 {
		return fmt.Errorf("config error: 'shortlist_size' must be non-negative")
	}
	if c.K > 0 && c.ShortlistSize > 0 && c.ShortlistSize < c.K {
		return fmt.Errorf("config error: 'shortlist_size' must be at least 'k'")
	}
	if c.Concurrency < 0 {
		return fmt.Errorf("config error: 'concurrency' must be non-negative")
	}
	if c.EmbeddingDim < 0 {
		return fmt.Errorf("config error: 'embedding_dim' must be non-negative")
	}
	if c.EmbedTimeoutMS < 0 || c.GenerateTimeoutMS < 0 || c.CacheTTLSeconds < 0 {
		return fmt.Errorf("config error: timeouts and TTLs must be non-negative")
	}

	return nil
}

// MergeWithDefaults returns a new Config with empty fields filled from defaults.
// This is used to apply config file values as defaults for CLI flags.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	// String fields: use default if empty
	if result.APIKey == "" {
		result.APIKey = defaults.APIKey
	}
	if result.DatabaseURL == "" {
		result.DatabaseURL = defaults.DatabaseURL
	}
	if result.RedisURL == "" {
		result.RedisURL = defaults.RedisURL
	}
	if result.CachePrefix == "" {
		result.CachePrefix = defaults.CachePrefix
	}
	if result.EmbeddingModel == "" {
		result.EmbeddingModel = defaults.EmbeddingModel
	}
	if result.DraftModel == "" {
		result.DraftModel = defaults.DraftModel
	}

	// Numeric fields: use default if zero
	if result.HardThreshold == 0 {
		result.HardThreshold = defaults.HardThreshold
	}
	if result.SoftThreshold == 0 {
		result.SoftThreshold = defaults.SoftThreshold
	}
	if result.K == 0 {
		result.K = defaults.K
	}
	if result.ShortlistSize == 0 {
		result.ShortlistSize = defaults.ShortlistSize
	}
	if result.Concurrency == 0 {
		result.Concurrency = defaults.Concurrency
	}
	if result.EmbeddingDim == 0 {
		result.EmbeddingDim = defaults.EmbeddingDim
	}
	if result.EmbedTimeoutMS == 0 {
		result.EmbedTimeoutMS = defaults.EmbedTimeoutMS
	}
	if result.GenerateTimeoutMS == 0 {
		result.GenerateTimeoutMS = defaults.GenerateTimeoutMS
	}
	if result.CacheTTLSeconds == 0 {
		result.CacheTTLSeconds = defaults.CacheTTLSeconds
	}

	// Pointer bools distinguish unset from false
	if result.VectorSimilarity == nil {
		result.VectorSimilarity = defaults.VectorSimilarity
	}

	// Verbose: cannot distinguish unset from false, so we don't merge
	// (CLI flags should always win for bools)

	return result
}

// VectorEnabled reports whether semantic refinement is on. Unset means enabled.
func (c *Config) VectorEnabled() bool {
	return c.VectorSimilarity == nil || *c.VectorSimilarity
}

// Thresholds returns the matching thresholds.
func (c *Config) Thresholds() matching.Thresholds {
	return matching.Thresholds{Hard: c.HardThreshold, Soft: c.SoftThreshold}
}

// SimilarityConfig returns the index configuration.
func (c *Config) SimilarityConfig() similarity.Config {
	return similarity.Config{
		K:             c.K,
		ShortlistSize: c.ShortlistSize,
		EmbeddingDim:  c.EmbeddingDim,
		EmbedTimeout:  time.Duration(c.EmbedTimeoutMS) * time.Millisecond,
		VectorEnabled: c.VectorEnabled(),
	}
}

// DraftingConfig returns the draft generator configuration.
func (c *Config) DraftingConfig() drafting.Config {
	cfg := drafting.DefaultConfig()
	cfg.Timeout = time.Duration(c.GenerateTimeoutMS) * time.Millisecond
	cfg.CacheTTL = time.Duration(c.CacheTTLSeconds) * time.Second
	return cfg
}

// ResolutionOptions returns per-call resolution options without a progress callback.
func (c *Config) ResolutionOptions() resolution.Options {
	return resolution.Options{
		Thresholds:  c.Thresholds(),
		K:           c.K,
		Concurrency: c.Concurrency,
	}
}

// LLMConfig returns the model configuration, applying the draft and
// embedding model overrides.
func (c *Config) LLMConfig() *llm.Config {
	cfg := llm.DefaultConfig()
	if c.DraftModel != "" {
		cfg = cfg.WithModel(drafting.DefaultConfig().Tier, c.DraftModel)
	}
	if c.EmbeddingModel != "" {
		cfg.EmbeddingModel = c.EmbeddingModel
	}
	if c.EmbeddingDim > 0 {
		cfg.EmbeddingDim = c.EmbeddingDim
	}
	return cfg
}
