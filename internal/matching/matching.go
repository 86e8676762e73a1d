// Package matching turns similarity scores into confidence tiers.
package matching

import (
	"math"

	"github.com/jonathan/worktype-resolver/internal/types"
)

// Default thresholds
const (
	DefaultHardThreshold = 0.85
	DefaultSoftThreshold = 0.60
)

// Thresholds partition [0, 1] into accepted, ambiguous and unmatched bands.
type Thresholds struct {
	Hard float64 `json:"hard" yaml:"hard"`
	Soft float64 `json:"soft" yaml:"soft"`
}

// DefaultThresholds returns the default hard and soft thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{Hard: DefaultHardThreshold, Soft: DefaultSoftThreshold}
}

// Validate checks that both thresholds lie in [0, 1] and soft <= hard.
func (t Thresholds) Validate() error {
	if !inUnitInterval(t.Hard) {
		return &ConfigurationError{Field: "hard_threshold", Message: "must be within [0, 1]", Value: t.Hard}
	}
	if !inUnitInterval(t.Soft) {
		return &ConfigurationError{Field: "soft_threshold", Message: "must be within [0, 1]", Value: t.Soft}
	}
	if t.Soft > t.Hard {
		return &ConfigurationError{Field: "soft_threshold", Message: "must not exceed hard_threshold", Value: t.Soft}
	}
	return nil
}

func inUnitInterval(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}

// Classify maps a score to exactly one tier. Scores that are NaN are unmatched.
func (t Thresholds) Classify(score float64) types.Tier {
	switch {
	case score >= t.Hard:
		return types.TierAccepted
	case score >= t.Soft:
		return types.TierAmbiguous
	default:
		return types.TierUnmatched
	}
}

// ClassifyCandidate classifies a candidate's score. A candidate scored on
// lexical overlap alone is never accepted outright.
func (t Thresholds) ClassifyCandidate(c *types.Candidate) types.Tier {
	if c == nil {
		return types.TierUnmatched
	}
	tier := t.Classify(c.Score)
	if tier == types.TierAccepted && c.Basis == types.BasisLexical {
		return types.TierAmbiguous
	}
	return tier
}

// Match classifies the best of candidates, which must be sorted best first.
func (t Thresholds) Match(fragment types.Fragment, candidates []types.Candidate) types.MatchResult {
	if len(candidates) == 0 {
		return types.MatchResult{Fragment: fragment, Tier: types.TierUnmatched}
	}
	best := candidates[0]
	return types.MatchResult{
		Fragment:  fragment,
		Candidate: &best,
		Score:     best.Score,
		Tier:      t.ClassifyCandidate(&best),
	}
}

// AboveSoft returns the candidates scoring at least the soft threshold, in order.
func (t Thresholds) AboveSoft(candidates []types.Candidate) []types.Candidate {
	var out []types.Candidate
	for _, c := range candidates {
		if c.Score >= t.Soft {
			out = append(out, c)
		}
	}
	return out
}
