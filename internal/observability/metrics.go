package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/jonathan/worktype-resolver/internal/types"
)

// Attribute keys
const (
	AttrTier    = attribute.Key("worktype.tier")
	AttrReason  = attribute.Key("worktype.degraded.reason")
	AttrOutcome = attribute.Key("worktype.draft.outcome")
)

// Draft outcomes
const (
	DraftCached    = "cached"
	DraftGenerated = "generated"
	DraftRejected  = "rejected"
)

// Metrics records pipeline counters. A nil *Metrics records nothing.
type Metrics struct {
	items    metric.Int64Counter
	degraded metric.Int64Counter
	drafts   metric.Int64Counter
	duration metric.Float64Histogram
}

// NewMetrics creates the instruments on meter, or on the global meter provider when meter is nil.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = otel.Meter("worktype-resolver")
	}

	m := &Metrics{}
	var err error

	m.items, err = meter.Int64Counter("worktype.resolutions.total",
		metric.WithDescription("Fragments resolved, by tier"),
		metric.WithUnit("{fragment}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resolutions counter: %w", err)
	}

	m.degraded, err = meter.Int64Counter("worktype.degraded.total",
		metric.WithDescription("Degraded fallbacks taken, by reason"),
		metric.WithUnit("{fallback}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create degraded counter: %w", err)
	}

	m.drafts, err = meter.Int64Counter("worktype.drafts.total",
		metric.WithDescription("Draft work types, by outcome"),
		metric.WithUnit("{draft}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create drafts counter: %w", err)
	}

	m.duration, err = meter.Float64Histogram("worktype.resolve.duration",
		metric.WithDescription("Duration of a resolve call in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}

	return m, nil
}

// RecordItem counts one resolved item and each of its degraded reasons.
func (m *Metrics) RecordItem(ctx context.Context, item *types.ResolvedItem) {
	if m == nil || item == nil {
		return
	}
	m.items.Add(ctx, 1, metric.WithAttributes(AttrTier.String(string(item.Tier))))
	for _, r := range item.Degraded {
		m.degraded.Add(ctx, 1, metric.WithAttributes(AttrReason.String(string(r))))
	}
}

// RecordDrafts counts n drafts with the given outcome.
func (m *Metrics) RecordDrafts(ctx context.Context, outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.drafts.Add(ctx, int64(n), metric.WithAttributes(AttrOutcome.String(outcome)))
}

// RecordDuration records the wall time of one resolve call.
func (m *Metrics) RecordDuration(ctx context.Context, d time.Duration) {
	if m == nil {
		return
	}
	m.duration.Record(ctx, d.Seconds())
}
