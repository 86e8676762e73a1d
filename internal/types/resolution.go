package types

import "strings"

// Fragment is one unstructured task description taken from an assessment.
type Fragment struct {
	Raw        string `json:"raw"`
	Normalized string `json:"normalized"`
}

// NewFragment builds a fragment with its normalized identity key.
func NewFragment(raw string) Fragment {
	return Fragment{Raw: raw, Normalized: NormalizeFragment(raw)}
}

// NormalizeFragment trims and lower-cases a fragment for use as an identity key.
func NormalizeFragment(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// Tier is the confidence classification assigned to a similarity score.
type Tier string

// Confidence tiers
const (
	TierAccepted  Tier = "accepted"
	TierAmbiguous Tier = "ambiguous"
	TierUnmatched Tier = "unmatched"
)

// ScoreBasis records which signal produced a candidate's final score.
type ScoreBasis string

// Score bases
const (
	BasisSemantic ScoreBasis = "semantic"
	BasisLexical  ScoreBasis = "lexical"
)

// Candidate is a catalog entry shortlisted for a fragment.
type Candidate struct {
	WorkType      *WorkType  `json:"workType"`
	LexicalScore  float64    `json:"lexicalScore"`
	SemanticScore *float64   `json:"semanticScore,omitempty"`
	Score         float64    `json:"score"`
	Basis         ScoreBasis `json:"basis"`
}

// MatchResult is the classified best match for one fragment.
type MatchResult struct {
	Fragment  Fragment   `json:"fragment"`
	Candidate *Candidate `json:"candidate,omitempty"`
	Score     float64    `json:"score"`
	Tier      Tier       `json:"tier"`
}

// DegradedReason names a fallback taken instead of full-fidelity processing.
type DegradedReason string

// Degradation reasons
const (
	ReasonEmbeddingDisabled  DegradedReason = "embedding_disabled"
	ReasonEmbeddingFailed    DegradedReason = "embedding_failed"
	ReasonEmbeddingTimeout   DegradedReason = "embedding_timeout"
	ReasonGenerationFailed   DegradedReason = "generation_failed"
	ReasonGenerationTimeout  DegradedReason = "generation_timeout"
	ReasonMalformedContent   DegradedReason = "malformed_content"
	ReasonCatalogUnavailable DegradedReason = "catalog_unavailable"
)

// ResolvedItem is the final outcome for one input fragment.
// A TierUnmatched item with no Draft is the explicit unresolved outcome.
type ResolvedItem struct {
	Fragment   Fragment         `json:"fragment"`
	Tier       Tier             `json:"tier"`
	Match      *Candidate       `json:"match,omitempty"`
	Candidates []Candidate      `json:"candidates,omitempty"`
	Draft      *DraftWorkType   `json:"draft,omitempty"`
	Degraded   []DegradedReason `json:"degraded,omitempty"`
}

// Resolved reports whether the item has either a catalog match or a usable draft.
func (r *ResolvedItem) Resolved() bool {
	return r.Match != nil || r.Draft != nil
}
