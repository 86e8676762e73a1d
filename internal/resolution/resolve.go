// Package resolution orchestrates the end-to-end resolution of assessment
// fragments into catalog matches or generated drafts.
package resolution

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jonathan/worktype-resolver/internal/drafting"
	"github.com/jonathan/worktype-resolver/internal/matching"
	"github.com/jonathan/worktype-resolver/internal/observability"
	"github.com/jonathan/worktype-resolver/internal/similarity"
	"github.com/jonathan/worktype-resolver/internal/types"
)

// Finder looks up catalog candidates for one fragment.
type Finder interface {
	FindCandidates(ctx context.Context, fragment types.Fragment, k int) similarity.Search
}

// Drafter generates drafts for a batch of unmatched fragments.
type Drafter interface {
	Generate(ctx context.Context, fragments []types.Fragment) drafting.Drafts
}

// Progress steps
const (
	StepSearch   = "search"
	StepDraft    = "draft"
	StepComplete = "complete"
)

// ProgressEvent represents a progress update during resolution
type ProgressEvent struct {
	Step    string `json:"step"`
	Index   int    `json:"index"`
	Message string `json:"message"`
	Content any    `json:"content,omitempty"`
}

// ProgressCallback is called when resolution progress occurs. Calls are serialized.
type ProgressCallback func(event ProgressEvent)

// Options holds per-call configuration for Resolve
type Options struct {
	Thresholds matching.Thresholds
	// K is the number of candidates considered per fragment; 0 uses the index default
	K int
	// Concurrency bounds parallel catalog lookups
	Concurrency int
	// SkipDrafting leaves unmatched fragments unresolved
	SkipDrafting bool
	OnProgress   ProgressCallback
}

// DefaultOptions returns the default resolution options.
func DefaultOptions() Options {
	return Options{
		Thresholds:  matching.DefaultThresholds(),
		K:           5,
		Concurrency: 8,
	}
}

// Validate returns a *matching.ConfigurationError for unusable options.
func (o Options) Validate() error {
	if err := o.Thresholds.Validate(); err != nil {
		return err
	}
	if o.K < 0 {
		return &matching.ConfigurationError{Field: "k", Message: "must not be negative", Value: o.K}
	}
	if o.Concurrency < 0 {
		return &matching.ConfigurationError{Field: "concurrency", Message: "must not be negative", Value: o.Concurrency}
	}
	return nil
}

// Orchestrator runs the resolution pipeline.
type Orchestrator struct {
	index   Finder
	drafter Drafter
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewOrchestrator creates an orchestrator. drafter and metrics may be nil;
// without a drafter unmatched fragments stay unresolved.
func NewOrchestrator(index Finder, drafter Drafter, metrics *observability.Metrics) *Orchestrator {
	return &Orchestrator{
		index:   index,
		drafter: drafter,
		metrics: metrics,
		logger:  slog.Default().With("component", "resolution"),
	}
}

// Resolve resolves each fragment and returns one item per fragment in input
// order. The only error returned is a *matching.ConfigurationError, raised
// before any provider call; every other failure is reported per item in
// ResolvedItem.Degraded.
func (o *Orchestrator) Resolve(ctx context.Context, fragments []string, opts Options) ([]types.ResolvedItem, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()

	var progressMu sync.Mutex
	emit := func(step string, index int, message string, content any) {
		if opts.OnProgress == nil {
			return
		}
		progressMu.Lock()
		defer progressMu.Unlock()
		opts.OnProgress(ProgressEvent{Step: step, Index: index, Message: message, Content: content})
	}

	items := make([]types.ResolvedItem, len(fragments))
	for i, raw := range fragments {
		items[i] = types.ResolvedItem{Fragment: types.NewFragment(raw), Tier: types.TierUnmatched}
	}

	concurrency := opts.Concurrency
	if concurrency == 0 {
		concurrency = DefaultOptions().Concurrency
	}

	var g errgroup.Group
	g.SetLimit(concurrency)
	for i := range items {
		if items[i].Fragment.Normalized == "" {
			continue
		}
		g.Go(func() error {
			// each goroutine writes only its own slot
			o.classify(ctx, &items[i], opts)
			emit(StepSearch, i, string(items[i].Tier), items[i].Fragment.Raw)
			return nil
		})
	}
	_ = g.Wait()

	if !opts.SkipDrafting && o.drafter != nil {
		o.draftUnmatched(ctx, items, emit)
	}

	for i := range items {
		o.metrics.RecordItem(ctx, &items[i])
	}
	o.metrics.RecordDuration(ctx, time.Since(start))
	emit(StepComplete, -1, "resolution complete", len(items))

	return items, nil
}

func (o *Orchestrator) classify(ctx context.Context, item *types.ResolvedItem, opts Options) {
	search := o.index.FindCandidates(ctx, item.Fragment, opts.K)
	item.Degraded = append(item.Degraded, search.Degraded...)

	result := opts.Thresholds.Match(item.Fragment, search.Candidates)
	item.Tier = result.Tier
	switch result.Tier {
	case types.TierAccepted:
		item.Match = result.Candidate
	case types.TierAmbiguous:
		item.Candidates = opts.Thresholds.AboveSoft(search.Candidates)
	}
}

// draftUnmatched sends every distinct unmatched fragment in one batch and
// maps the drafts back by fragment index. The first draft for a fragment wins.
func (o *Orchestrator) draftUnmatched(ctx context.Context, items []types.ResolvedItem, emit func(string, int, string, any)) {
	var batch []types.Fragment
	owners := make(map[string][]int)
	for i := range items {
		if items[i].Tier != types.TierUnmatched || items[i].Fragment.Normalized == "" {
			continue
		}
		key := items[i].Fragment.Normalized
		if _, seen := owners[key]; !seen {
			batch = append(batch, items[i].Fragment)
		}
		owners[key] = append(owners[key], i)
	}
	if len(batch) == 0 {
		return
	}

	emit(StepDraft, -1, "drafting unmatched fragments", len(batch))
	drafts := o.drafter.Generate(ctx, batch)

	for _, f := range batch {
		for _, i := range owners[f.Normalized] {
			items[i].Degraded = append(items[i].Degraded, drafts.Degraded...)
		}
	}

	for di := range drafts.Items {
		d := drafts.Items[di]
		pos := d.FragmentIndex - 1
		if pos < 0 || pos >= len(batch) {
			o.logger.WarnContext(ctx, "resolution: draft does not map to a fragment", "fragment_index", d.FragmentIndex)
			continue
		}
		for _, i := range owners[batch[pos].Normalized] {
			if items[i].Draft == nil {
				draft := d
				items[i].Draft = &draft
			}
		}
	}
}
