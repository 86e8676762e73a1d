package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/worktype-resolver/internal/llm"
	"github.com/jonathan/worktype-resolver/internal/matching"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfig_ValidJSON(t *testing.T) {
	path := writeConfig(t, "config.json", `{
		"database_url": "postgres://localhost/worktypes",
		"hard_threshold": 0.9,
		"k": 3,
		"enable_vector_similarity": false,
		"verbose": true
	}`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "postgres://localhost/worktypes", cfg.DatabaseURL)
	assert.Equal(t, 0.9, cfg.HardThreshold)
	assert.Equal(t, 3, cfg.K)
	require.NotNil(t, cfg.VectorSimilarity)
	assert.False(t, cfg.VectorEnabled())
	assert.True(t, cfg.Verbose)
}

func TestLoadConfig_ValidYAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
redis_url: redis://localhost:6379/0
soft_threshold: 0.5
embedding_dim: 384
cache_ttl_seconds: 60
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
	assert.Equal(t, 0.5, cfg.SoftThreshold)
	assert.Equal(t, 384, cfg.EmbeddingDim)
	assert.Equal(t, 60, cfg.CacheTTLSeconds)
	assert.Nil(t, cfg.VectorSimilarity)
	assert.True(t, cfg.VectorEnabled(), "unset means enabled")
}

func TestLoadConfig_InvalidJSON(t *testing.T) {
	path := writeConfig(t, "config.json", `{ invalid json }`)

	cfg, err := LoadConfig(path)
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "failed to parse config JSON")
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "config.yml", "k: [unterminated")

	cfg, err := LoadConfig(path)
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "failed to parse config YAML")
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	cfg, err := LoadConfig("/nonexistent/path/config.json")
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	cfg, err := LoadConfig("")
	assert.Error(t, err)
	assert.Nil(t, cfg)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvAPIKey, "test-key")
	t.Setenv(EnvDatabaseURL, "postgres://env/db")
	t.Setenv(EnvRedisURL, "")
	t.Setenv(EnvVectorEnabled, "false")
	t.Setenv(EnvEmbeddingDim, "384")

	cfg := Config{RedisURL: "redis://file", DatabaseURL: "postgres://file/db"}
	require.NoError(t, cfg.ApplyEnv())

	assert.Equal(t, "test-key", cfg.APIKey)
	assert.Equal(t, "postgres://env/db", cfg.DatabaseURL, "environment wins over file")
	assert.Equal(t, "redis://file", cfg.RedisURL, "empty variable keeps file value")
	assert.False(t, cfg.VectorEnabled())
	assert.Equal(t, 384, cfg.EmbeddingDim)
}

func TestApplyEnv_InvalidValues(t *testing.T) {
	t.Setenv(EnvVectorEnabled, "maybe")
	cfg := Config{}
	assert.ErrorContains(t, cfg.ApplyEnv(), EnvVectorEnabled)

	t.Setenv(EnvVectorEnabled, "")
	t.Setenv(EnvEmbeddingDim, "wide")
	assert.ErrorContains(t, cfg.ApplyEnv(), EnvEmbeddingDim)
}

func TestValidate_Thresholds(t *testing.T) {
	cfg := Config{HardThreshold: 0.5, SoftThreshold: 0.7}
	err := cfg.Validate()

	var cfgErr *matching.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "soft_threshold", cfgErr.Field)
}

func TestValidate_NegativeValues(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"k", Config{K: -1}},
		{"shortlist", Config{ShortlistSize: -1}},
		{"shortlist below k", Config{K: 10, ShortlistSize: 5}},
		{"concurrency", Config{Concurrency: -2}},
		{"embedding dim", Config{EmbeddingDim: -1}},
		{"timeout", Config{EmbedTimeoutMS: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.cfg.Validate())
		})
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	defaults := Defaults()
	assert.NoError(t, defaults.Validate())

	empty := Config{}
	assert.NoError(t, empty.Validate())
}

func TestMergeWithDefaults(t *testing.T) {
	disabled := false
	cfg := Config{
		DatabaseURL:      "postgres://cli/db",
		K:                3,
		VectorSimilarity: &disabled,
	}

	result := cfg.MergeWithDefaults(Defaults())

	assert.Equal(t, "postgres://cli/db", result.DatabaseURL)
	assert.Equal(t, 3, result.K)
	assert.False(t, result.VectorEnabled(), "explicit false is kept")
	assert.Equal(t, matching.DefaultHardThreshold, result.HardThreshold)
	assert.Equal(t, matching.DefaultSoftThreshold, result.SoftThreshold)
	assert.Equal(t, 15, result.ShortlistSize)
	assert.Equal(t, 768, result.EmbeddingDim)
	assert.Equal(t, "worktype:", result.CachePrefix)
}

func TestMergeWithDefaults_EmptyDefaults(t *testing.T) {
	cfg := Config{K: 4}
	result := cfg.MergeWithDefaults(Config{})

	assert.Equal(t, 4, result.K)
	assert.Empty(t, result.DatabaseURL)
	assert.Nil(t, result.VectorSimilarity)
}

func TestComponentConfigs(t *testing.T) {
	cfg := Defaults()
	cfg.DraftModel = "gemini-test-model"
	cfg.EmbeddingDim = 384

	sim := cfg.SimilarityConfig()
	assert.Equal(t, 5, sim.K)
	assert.Equal(t, 384, sim.EmbeddingDim)
	assert.Equal(t, 2*time.Second, sim.EmbedTimeout)
	assert.True(t, sim.VectorEnabled)

	draft := cfg.DraftingConfig()
	assert.Equal(t, 30*time.Second, draft.Timeout)
	assert.Equal(t, 10*time.Minute, draft.CacheTTL)
	assert.Equal(t, llm.TierLite, draft.Tier)

	opts := cfg.ResolutionOptions()
	assert.NoError(t, opts.Validate())
	assert.Equal(t, 8, opts.Concurrency)

	llmCfg := cfg.LLMConfig()
	assert.Equal(t, "gemini-test-model", llmCfg.GetModel(llm.TierLite))
	assert.Equal(t, 384, llmCfg.EmbeddingDim)
}
