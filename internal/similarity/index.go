// Package similarity finds catalog work types that resemble a fragment, using a
// trigram shortlist refined by embedding cosine similarity.
package similarity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/jonathan/worktype-resolver/internal/llm"
	"github.com/jonathan/worktype-resolver/internal/types"
)

// Config is fixed at index construction.
type Config struct {
	// K is the number of candidates returned when the caller passes k <= 0
	K int
	// ShortlistSize is how many lexical matches are refined semantically
	ShortlistSize int
	// EmbeddingDim is the length every stored and query vector must have
	EmbeddingDim int
	EmbedTimeout time.Duration
	// VectorEnabled turns semantic refinement on; when false the index is lexical-only
	VectorEnabled bool
}

// DefaultConfig returns the default index configuration.
func DefaultConfig() Config {
	return Config{
		K:             5,
		ShortlistSize: 15,
		EmbeddingDim:  768,
		EmbedTimeout:  2 * time.Second,
		VectorEnabled: true,
	}
}

// Search is the result of one lookup. A non-empty Degraded means the
// candidates were produced without full-fidelity semantic scoring.
type Search struct {
	Candidates []types.Candidate
	Degraded   []types.DegradedReason
}

// Index answers similarity queries against a catalog.
type Index struct {
	catalog  Shortlister
	embedder llm.Embedder
	config   Config
	logger   *slog.Logger
}

// NewIndex creates an index. embedder may be nil, in which case the index runs lexical-only.
func NewIndex(catalog Shortlister, embedder llm.Embedder, config Config) (*Index, error) {
	if catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	if config.K <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", config.K)
	}
	if config.ShortlistSize < config.K {
		return nil, fmt.Errorf("shortlist size %d is smaller than k %d", config.ShortlistSize, config.K)
	}
	if config.VectorEnabled && embedder != nil {
		if config.EmbeddingDim <= 0 {
			return nil, fmt.Errorf("embedding dimension must be positive, got %d", config.EmbeddingDim)
		}
		if embedder.Dimensions() != config.EmbeddingDim {
			return nil, fmt.Errorf("embedder produces %d dimensions, index is configured for %d",
				embedder.Dimensions(), config.EmbeddingDim)
		}
		if config.EmbedTimeout <= 0 {
			return nil, fmt.Errorf("embed timeout must be positive")
		}
	}

	return &Index{
		catalog:  catalog,
		embedder: embedder,
		config:   config,
		logger:   slog.Default().With("component", "similarity"),
	}, nil
}

// Config returns the index configuration.
func (x *Index) Config() Config {
	return x.config
}

// FindCandidates returns up to k catalog entries ranked by similarity to the
// fragment: score descending, then lexical score descending, then catalog order.
// When the fragment was embedded, entries without a stored vector rank after
// every semantically scored entry.
func (x *Index) FindCandidates(ctx context.Context, fragment types.Fragment, k int) Search {
	if k <= 0 {
		k = x.config.K
	}

	cleaned := CleanText(fragment.Raw)
	if cleaned == "" {
		return Search{}
	}

	shortlist, err := x.catalog.Shortlist(ctx, cleaned, x.config.ShortlistSize)
	if err != nil {
		x.logger.WarnContext(ctx, "similarity: catalog shortlist failed", "fragment", fragment.Normalized, "error", err)
		return Search{Degraded: []types.DegradedReason{types.ReasonCatalogUnavailable}}
	}
	if len(shortlist) == 0 {
		return Search{}
	}

	var search Search
	query, reason := x.embedQuery(ctx, cleaned)
	if reason != "" {
		search.Degraded = append(search.Degraded, reason)
	}

	out := make([]types.Candidate, 0, len(shortlist))
	for _, c := range shortlist {
		wt := c.WorkType
		if err := types.CheckUnitConsistency(wt.MeasurementType, wt.SuggestedUnits); err != nil {
			x.logger.WarnContext(ctx, "similarity: skipping catalog entry with invalid unit", "work_type", wt.ID, "error", err)
			continue
		}
		if wt.NameVec != nil && x.config.EmbeddingDim > 0 && len(wt.NameVec) != x.config.EmbeddingDim {
			x.logger.WarnContext(ctx, "similarity: skipping catalog entry with wrong vector dimension",
				"work_type", wt.ID, "dimensions", len(wt.NameVec), "expected", x.config.EmbeddingDim)
			continue
		}

		if query != nil && wt.NameVec != nil {
			sem := Cosine(query, wt.NameVec)
			c.SemanticScore = &sem
			c.Score = sem
			c.Basis = types.BasisSemantic
		} else {
			if c.LexicalScore <= 0 {
				continue
			}
			c.Score = c.LexicalScore
			c.Basis = types.BasisLexical
		}
		out = append(out, c)
	}

	sortCandidates(out, query != nil)
	if len(out) > k {
		out = out[:k]
	}
	search.Candidates = out
	return search
}

// embedQuery returns nil and the reason when semantic scoring is unavailable.
func (x *Index) embedQuery(ctx context.Context, cleaned string) ([]float32, types.DegradedReason) {
	if !x.config.VectorEnabled || x.embedder == nil {
		return nil, types.ReasonEmbeddingDisabled
	}

	vec, err := x.embed(ctx, cleaned)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			x.logger.WarnContext(ctx, "similarity: embedding timed out, using lexical scores", "timeout", x.config.EmbedTimeout)
			return nil, types.ReasonEmbeddingTimeout
		}
		x.logger.WarnContext(ctx, "similarity: embedding failed, using lexical scores", "error", err)
		return nil, types.ReasonEmbeddingFailed
	}
	if len(vec) != x.config.EmbeddingDim {
		x.logger.WarnContext(ctx, "similarity: query embedding has wrong dimension, using lexical scores",
			"dimensions", len(vec), "expected", x.config.EmbeddingDim)
		return nil, types.ReasonEmbeddingFailed
	}
	return vec, ""
}

// embed applies EmbedTimeout to the provider call only. Time queued behind
// a paced embedder is bounded by the caller's context.
func (x *Index) embed(ctx context.Context, cleaned string) ([]float32, error) {
	if timed, ok := x.embedder.(llm.TimedEmbedder); ok {
		return timed.EmbedWithin(ctx, cleaned, x.config.EmbedTimeout)
	}

	ectx, cancel := context.WithTimeout(ctx, x.config.EmbedTimeout)
	defer cancel()
	vec, err := x.embedder.Embed(ectx, cleaned)
	if err != nil && errors.Is(ectx.Err(), context.DeadlineExceeded) && !errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
	}
	return vec, err
}

// sortCandidates orders by score, then lexical score, then catalog order.
// With semanticFirst, entries scored by embedding precede lexical fallbacks.
func sortCandidates(cs []types.Candidate, semanticFirst bool) {
	sort.SliceStable(cs, func(i, j int) bool {
		if semanticFirst && cs[i].Basis != cs[j].Basis {
			return cs[i].Basis == types.BasisSemantic
		}
		if cs[i].Score != cs[j].Score {
			return cs[i].Score > cs[j].Score
		}
		if cs[i].LexicalScore != cs[j].LexicalScore {
			return cs[i].LexicalScore > cs[j].LexicalScore
		}
		return cs[i].WorkType.Seq < cs[j].WorkType.Seq
	})
}
