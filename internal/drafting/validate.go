package drafting

import (
	"encoding/json"
	"fmt"

	"github.com/jonathan/worktype-resolver/internal/schemas"
	"github.com/jonathan/worktype-resolver/internal/types"
)

// Stage names the validation step that rejected an element.
type Stage string

// Validation stages
const (
	StageStructural Stage = "structural"
	StageUnits      Stage = "units"
	StageMapping    Stage = "mapping"
)

// Validation is the tagged outcome of validating one generated element.
// Exactly one of Draft and Err is set.
type Validation struct {
	Draft *types.DraftWorkType
	Stage Stage
	Err   error
}

// OK reports whether the element passed every stage.
func (v Validation) OK() bool {
	return v.Err == nil && v.Draft != nil
}

// ValidateElement runs the structural schema check, then the unit invariant,
// then resolves the element's fragment index. position is the element's
// 0-based index in the generated array; fragmentCount bounds FragmentIndex.
func ValidateElement(raw json.RawMessage, position, fragmentCount int) Validation {
	if err := schemas.ValidateDraft(raw); err != nil {
		return Validation{Stage: StageStructural, Err: err}
	}

	var draft types.DraftWorkType
	if err := json.Unmarshal(raw, &draft); err != nil {
		return Validation{Stage: StageStructural, Err: &ParseError{Message: "failed to decode draft", Cause: err}}
	}

	if err := types.CheckUnitConsistency(draft.MeasurementType, draft.SuggestedUnits); err != nil {
		return Validation{Stage: StageUnits, Err: err}
	}

	if draft.FragmentIndex == 0 {
		draft.FragmentIndex = position + 1
	}
	if draft.FragmentIndex > fragmentCount {
		return Validation{Stage: StageMapping, Err: fmt.Errorf("fragment index %d out of range (have %d fragments)", draft.FragmentIndex, fragmentCount)}
	}

	return Validation{Draft: &draft}
}
