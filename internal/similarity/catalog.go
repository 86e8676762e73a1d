package similarity

import (
	"context"
	"sort"
	"sync"

	"github.com/jonathan/worktype-resolver/internal/trigram"
	"github.com/jonathan/worktype-resolver/internal/types"
)

// Shortlister returns up to n catalog entries ordered by trigram similarity of
// their cleaned names to the cleaned query. Only LexicalScore and WorkType are
// set on the returned candidates. Retired entries are never returned.
type Shortlister interface {
	Shortlist(ctx context.Context, cleaned string, n int) ([]types.Candidate, error)
}

// Catalog is an in-memory Shortlister.
type Catalog struct {
	mu      sync.RWMutex
	entries []*types.WorkType
	nextSeq int64
}

// NewCatalog creates a catalog holding entries in insertion order.
func NewCatalog(entries ...*types.WorkType) *Catalog {
	c := &Catalog{}
	for _, wt := range entries {
		c.Add(wt)
	}
	return c
}

// Add appends a work type. Seq is assigned when unset and NameClean is
// derived from Name when empty.
func (c *Catalog) Add(wt *types.WorkType) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextSeq++
	if wt.Seq == 0 {
		wt.Seq = c.nextSeq
	} else if wt.Seq > c.nextSeq {
		c.nextSeq = wt.Seq
	}
	if wt.NameClean == "" {
		wt.NameClean = CleanText(wt.Name)
	}
	c.entries = append(c.entries, wt)
}

// Len returns the number of entries, including retired ones.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Shortlist ranks active entries by trigram similarity, ties by insertion order.
// A catalog with at most n active entries is returned whole.
func (c *Catalog) Shortlist(ctx context.Context, cleaned string, n int) ([]types.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	query := trigram.Extract(cleaned)
	out := make([]types.Candidate, 0, len(c.entries))
	for _, wt := range c.entries {
		if wt.Retired() {
			continue
		}
		out = append(out, types.Candidate{
			WorkType:     wt,
			LexicalScore: trigram.SetSimilarity(query, trigram.Extract(wt.NameClean)),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].LexicalScore != out[j].LexicalScore {
			return out[i].LexicalScore > out[j].LexicalScore
		}
		return out[i].WorkType.Seq < out[j].WorkType.Seq
	})

	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out, nil
}
