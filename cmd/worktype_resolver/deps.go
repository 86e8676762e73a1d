package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jonathan/worktype-resolver/internal/cache"
	"github.com/jonathan/worktype-resolver/internal/config"
	"github.com/jonathan/worktype-resolver/internal/db"
	"github.com/jonathan/worktype-resolver/internal/drafting"
	"github.com/jonathan/worktype-resolver/internal/llm"
	"github.com/jonathan/worktype-resolver/internal/observability"
	"github.com/jonathan/worktype-resolver/internal/similarity"
	"github.com/jonathan/worktype-resolver/internal/types"
)

// deps holds the collaborators a command needs. Every field may be nil when
// the corresponding backend is not configured.
type deps struct {
	cfg      config.Config
	store    *db.Store
	catalog  similarity.Shortlister
	cache    cache.Cache
	client   llm.Client
	embedder llm.Embedder
	metrics  *observability.Metrics
	closers  []func()
}

func (d *deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

// openStore connects to PostgreSQL when a database URL is configured.
func (d *deps) openStore(ctx context.Context) error {
	if d.cfg.DatabaseURL == "" {
		return nil
	}
	store, err := db.Connect(ctx, d.cfg.DatabaseURL)
	if err != nil {
		return err
	}
	d.store = store
	d.catalog = store
	d.closers = append(d.closers, store.Close)
	return nil
}

// requireStore is openStore for commands that cannot run without the database.
func (d *deps) requireStore(ctx context.Context) error {
	if d.cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable or --db-url flag is required")
	}
	return d.openStore(ctx)
}

// openCatalog uses the database when configured, otherwise an in-memory
// catalog loaded from catalogPath.
func (d *deps) openCatalog(ctx context.Context, catalogPath string) error {
	if catalogPath != "" {
		entries, err := loadCatalogFile(catalogPath)
		if err != nil {
			return err
		}
		d.catalog = similarity.NewCatalog(entries...)
		return nil
	}
	if err := d.openStore(ctx); err != nil {
		return err
	}
	if d.catalog == nil {
		return fmt.Errorf("a catalog is required: set DATABASE_URL, --db-url or --catalog")
	}
	return nil
}

// openCache picks Redis when a URL is configured, otherwise a process-local cache.
func (d *deps) openCache(ctx context.Context) error {
	if d.cfg.RedisURL == "" {
		d.cache = cache.NewMemoryCache()
		return nil
	}
	rc, err := cache.NewRedisCache(ctx, d.cfg.RedisURL, d.cfg.CachePrefix)
	if err != nil {
		return err
	}
	d.cache = rc
	d.closers = append(d.closers, func() { _ = rc.Close() })
	return nil
}

// openClient creates the generative client. Without an API key the client
// stays nil and drafting is skipped.
func (d *deps) openClient(ctx context.Context) error {
	if d.cfg.APIKey == "" {
		slog.Warn("cli: no API key configured, drafting disabled")
		return nil
	}
	client, err := llm.NewClient(ctx, d.cfg.LLMConfig(), d.cfg.APIKey)
	if err != nil {
		return fmt.Errorf("failed to create LLM client: %w", err)
	}
	d.client = client
	d.closers = append(d.closers, func() { _ = client.Close() })
	return nil
}

// openEmbedder creates the embedder when vector similarity is enabled and
// an API key is available.
func (d *deps) openEmbedder(ctx context.Context) error {
	if !d.cfg.VectorEnabled() {
		return nil
	}
	if d.cfg.APIKey == "" {
		slog.Warn("cli: no API key configured, similarity is lexical-only")
		return nil
	}
	llmConfig := d.cfg.LLMConfig()
	gemini, err := llm.NewGeminiEmbedder(ctx, llmConfig, d.cfg.APIKey)
	if err != nil {
		return fmt.Errorf("failed to create embedder: %w", err)
	}
	embedder := llm.NewRateLimitedEmbedder(gemini, llmConfig.EmbedInterval)
	d.embedder = embedder
	d.closers = append(d.closers, func() { _ = embedder.Close() })
	return nil
}

// openMetrics installs the OTLP meter provider when configured and creates
// the pipeline instruments. The provider is flushed on Close.
func (d *deps) openMetrics(ctx context.Context) error {
	shutdown, err := observability.SetupMeterProvider(ctx, "worktype-resolver")
	if err != nil {
		return err
	}
	d.closers = append(d.closers, func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			slog.Warn("cli: failed to flush metrics", "error", err)
		}
	})

	metrics, err := observability.NewMetrics(nil)
	if err != nil {
		return err
	}
	d.metrics = metrics
	return nil
}

// index builds the similarity index over the opened catalog.
func (d *deps) index() (*similarity.Index, error) {
	return similarity.NewIndex(d.catalog, d.embedder, d.cfg.SimilarityConfig())
}

// generator builds the draft generator, or nil when no client is available.
func (d *deps) generator() (*drafting.Generator, error) {
	if d.client == nil {
		return nil, nil
	}
	return drafting.NewGenerator(d.client, d.cache, d.cfg.DraftingConfig(), d.metrics)
}

// loadCatalogFile reads a JSON array of work types for an in-memory catalog.
// Entries failing validation are rejected.
func loadCatalogFile(path string) ([]*types.WorkType, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}

	var entries []*types.WorkType
	if err := json.Unmarshal(content, &entries); err != nil {
		return nil, fmt.Errorf("failed to unmarshal catalog JSON: %w", err)
	}
	for i, wt := range entries {
		if err := types.ValidateWorkType(wt); err != nil {
			return nil, fmt.Errorf("catalog entry %d (%q): %w", i, wt.Name, err)
		}
	}
	return entries, nil
}

// writeJSON writes v as indented JSON to path, or stdout when path is empty.
func writeJSON(path string, v any) error {
	jsonBytes, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	if path == "" {
		_, err = fmt.Fprintln(os.Stdout, string(jsonBytes))
		return err
	}
	if err := os.WriteFile(path, jsonBytes, 0644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	return nil
}
