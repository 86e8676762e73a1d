// Package drafting synthesizes draft work types for fragments the catalog
// could not match, validating and caching what the generative model returns.
package drafting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonathan/worktype-resolver/internal/cache"
	"github.com/jonathan/worktype-resolver/internal/llm"
	"github.com/jonathan/worktype-resolver/internal/observability"
	"github.com/jonathan/worktype-resolver/internal/types"
)

// Config controls generation.
type Config struct {
	Tier        llm.ModelTier
	Temperature float32
	MaxTokens   int32
	Timeout     time.Duration
	CacheTTL    time.Duration
}

// DefaultConfig returns the default generation settings.
func DefaultConfig() Config {
	return Config{
		Tier:        llm.TierLite,
		Temperature: 0.2,
		MaxTokens:   512,
		Timeout:     30 * time.Second,
		CacheTTL:    10 * time.Minute,
	}
}

// Drafts is the result of one Generate call. A non-empty Degraded means
// generation could not run to completion and Items is empty.
type Drafts struct {
	Items    []types.DraftWorkType
	Degraded []types.DegradedReason
	// Cached reports that Items came from the cache without a model call
	Cached bool
}

// Generator produces validated drafts.
type Generator struct {
	client  llm.Client
	cache   cache.Cache
	config  Config
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewGenerator creates a generator. metrics may be nil.
func NewGenerator(client llm.Client, c cache.Cache, config Config, metrics *observability.Metrics) (*Generator, error) {
	if client == nil {
		return nil, fmt.Errorf("generative client is required")
	}
	if c == nil {
		return nil, fmt.Errorf("cache is required")
	}
	if config.Timeout <= 0 {
		return nil, fmt.Errorf("generation timeout must be positive")
	}
	if config.CacheTTL <= 0 {
		return nil, fmt.Errorf("cache TTL must be positive")
	}

	return &Generator{
		client:  client,
		cache:   c,
		config:  config,
		metrics: metrics,
		logger:  slog.Default().With("component", "drafting"),
	}, nil
}

// Generate returns validated drafts for fragments. Identical fragment lists
// within the cache TTL return the cached drafts without a model call.
// Failures never surface as errors; they are reported in Drafts.Degraded.
func (g *Generator) Generate(ctx context.Context, fragments []types.Fragment) Drafts {
	if len(fragments) == 0 {
		return Drafts{}
	}

	key := CacheKey(fragments)
	if items, ok := g.lookup(ctx, key); ok {
		g.metrics.RecordDrafts(ctx, observability.DraftCached, len(items))
		return Drafts{Items: items, Cached: true}
	}

	messages, err := BuildMessages(fragments)
	if err != nil {
		g.logger.ErrorContext(ctx, "drafting: failed to build prompt", "error", err)
		return Drafts{Degraded: []types.DegradedReason{types.ReasonGenerationFailed}}
	}

	gctx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()

	content, err := g.client.Complete(gctx, messages, llm.CompletionOptions{
		Tier:        g.config.Tier,
		Temperature: g.config.Temperature,
		MaxTokens:   g.config.MaxTokens,
		JSON:        true,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(gctx.Err(), context.DeadlineExceeded) {
			g.logger.WarnContext(ctx, "drafting: generation timed out", "timeout", g.config.Timeout, "fragments", len(fragments))
			return Drafts{Degraded: []types.DegradedReason{types.ReasonGenerationTimeout}}
		}
		g.logger.WarnContext(ctx, "drafting: generation failed", "error", err, "fragments", len(fragments))
		return Drafts{Degraded: []types.DegradedReason{types.ReasonGenerationFailed}}
	}

	elements, err := parseElements(content)
	if err != nil {
		g.logger.WarnContext(ctx, "drafting: malformed generated content", "error", err)
		return Drafts{Degraded: []types.DegradedReason{types.ReasonMalformedContent}}
	}

	items := make([]types.DraftWorkType, 0, len(elements))
	rejected := 0
	for i, raw := range elements {
		v := ValidateElement(raw, i, len(fragments))
		if !v.OK() {
			rejected++
			g.logger.WarnContext(ctx, "drafting: dropping invalid draft", "position", i, "stage", v.Stage, "error", v.Err)
			continue
		}
		items = append(items, *v.Draft)
	}
	g.metrics.RecordDrafts(ctx, observability.DraftGenerated, len(items))
	g.metrics.RecordDrafts(ctx, observability.DraftRejected, rejected)

	g.store(ctx, key, items)
	return Drafts{Items: items}
}

// parseElements extracts the generated JSON array, tolerating code fences and
// surrounding prose.
func parseElements(content string) ([]json.RawMessage, error) {
	cleaned := llm.CleanJSONBlock(content)
	if cleaned == "" {
		return nil, &ParseError{Message: "empty response"}
	}

	var elements []json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &elements); err != nil {
		return nil, &ParseError{Message: "expected a JSON array", Cause: err}
	}
	return elements, nil
}

func (g *Generator) lookup(ctx context.Context, key string) ([]types.DraftWorkType, bool) {
	data, ok, err := g.cache.Get(ctx, key)
	if err != nil {
		g.logger.WarnContext(ctx, "drafting: cache read failed", "key", key, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var items []types.DraftWorkType
	if err := json.Unmarshal(data, &items); err != nil {
		g.logger.WarnContext(ctx, "drafting: ignoring undecodable cache entry", "key", key, "error", err)
		return nil, false
	}
	g.logger.DebugContext(ctx, "drafting: cache hit", "key", key, "drafts", len(items))
	return items, true
}

func (g *Generator) store(ctx context.Context, key string, items []types.DraftWorkType) {
	data, err := json.Marshal(items)
	if err != nil {
		g.logger.WarnContext(ctx, "drafting: failed to encode drafts for cache", "error", err)
		return
	}
	if err := g.cache.Set(ctx, key, data, g.config.CacheTTL); err != nil {
		g.logger.WarnContext(ctx, "drafting: cache write failed", "key", key, "error", err)
	}
}
