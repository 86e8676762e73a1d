package resolution

import (
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/jonathan/worktype-resolver/internal/types"
)

var fragmentBoundary = regexp.MustCompile(`(?i)[.\n;]+|\band\b`)

const (
	minAssessmentLength = 10
	minFragmentLength   = 8
)

// SplitAssessment breaks free-text assessment notes into task fragments at
// periods, newlines, semicolons and the word "and". Parts shorter than eight
// characters are dropped, as is any text shorter than ten characters overall.
func SplitAssessment(text string) []string {
	if len(strings.TrimSpace(text)) < minAssessmentLength {
		return nil
	}

	var out []string
	for _, part := range fragmentBoundary.Split(text, -1) {
		part = strings.TrimSpace(part)
		if len(part) >= minFragmentLength {
			out = append(out, part)
		}
	}
	return out
}

// Suggestions merges the catalog candidates of every item, keeping each work
// type's highest score, and returns at most limit of them best first.
func Suggestions(items []types.ResolvedItem, limit int) []types.Candidate {
	best := make(map[uuid.UUID]types.Candidate)
	consider := func(c types.Candidate) {
		if c.WorkType == nil {
			return
		}
		if prev, ok := best[c.WorkType.ID]; !ok || c.Score > prev.Score {
			best[c.WorkType.ID] = c
		}
	}
	for i := range items {
		if items[i].Match != nil {
			consider(*items[i].Match)
		}
		for _, c := range items[i].Candidates {
			consider(c)
		}
	}

	out := make([]types.Candidate, 0, len(best))
	for _, c := range best {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].WorkType.Seq != out[j].WorkType.Seq {
			return out[i].WorkType.Seq < out[j].WorkType.Seq
		}
		return out[i].WorkType.ID.String() < out[j].WorkType.ID.String()
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
