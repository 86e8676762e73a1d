package types

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// allowedUnits maps each measurement type to the units it may be quoted in
var allowedUnits = map[MeasurementType][]string{
	MeasurementArea:     {"sq ft", "sq yd", "sq m"},
	MeasurementLinear:   {"ft", "in", "yd", "m"},
	MeasurementQuantity: {"each", "job", "set"},
}

// AllowedUnits returns the units valid for a measurement type, or nil for an unknown type.
func AllowedUnits(kind MeasurementType) []string {
	units, ok := allowedUnits[kind]
	if !ok {
		return nil
	}
	return slices.Clone(units)
}

// MeasurementTypes lists the known measurement types in a stable order.
func MeasurementTypes() []MeasurementType {
	return []MeasurementType{MeasurementArea, MeasurementLinear, MeasurementQuantity}
}

// UnitMismatchError reports a unit that is not allowed for a measurement type.
type UnitMismatchError struct {
	MeasurementType MeasurementType
	Unit            string
}

func (e *UnitMismatchError) Error() string {
	if _, ok := allowedUnits[e.MeasurementType]; !ok {
		return fmt.Sprintf("unknown measurement type %q", e.MeasurementType)
	}
	return fmt.Sprintf("%s is not a valid unit for %s measurement type (allowed: %s)",
		e.Unit, e.MeasurementType, strings.Join(allowedUnits[e.MeasurementType], ", "))
}

// CheckUnitConsistency enforces unit ∈ allowed_units(kind). It is the single
// rule shared by curated catalog entries and generated drafts.
func CheckUnitConsistency(kind MeasurementType, unit string) error {
	units, ok := allowedUnits[kind]
	if !ok || !slices.Contains(units, unit) {
		return &UnitMismatchError{MeasurementType: kind, Unit: unit}
	}
	return nil
}

const unitRuleTag = "unit_for_measurement"

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// workTypeValidator returns the shared validator with the unit rule registered.
func workTypeValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		validate.RegisterStructValidation(func(sl validator.StructLevel) {
			wt := sl.Current().Interface().(WorkType)
			if CheckUnitConsistency(wt.MeasurementType, wt.SuggestedUnits) != nil {
				sl.ReportError(wt.SuggestedUnits, "SuggestedUnits", "suggestedUnits", unitRuleTag, string(wt.MeasurementType))
			}
		}, WorkType{})
	})
	return validate
}

// ValidateWorkType validates a catalog work type: field shapes, the bucket
// enumeration, non-negative costs and the unit/measurement invariant.
// A unit violation also wraps the *UnitMismatchError.
func ValidateWorkType(wt *WorkType) error {
	if wt == nil {
		return fmt.Errorf("work type is nil")
	}
	err := workTypeValidator().Struct(wt)

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		for _, fe := range fieldErrs {
			if fe.Tag() == unitRuleTag {
				return fmt.Errorf("%w: %w", err, CheckUnitConsistency(wt.MeasurementType, wt.SuggestedUnits))
			}
		}
	}
	return err
}
