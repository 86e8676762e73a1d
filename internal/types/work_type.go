// Package types provides type definitions for structured data used throughout the worktype-resolver system.
//
//nolint:revive // types is a standard Go package name pattern
package types

import (
	"time"

	"github.com/google/uuid"
)

// MeasurementType is how a work type is measured on site.
type MeasurementType string

// Measurement types accepted by the catalog
const (
	MeasurementArea     MeasurementType = "area"
	MeasurementLinear   MeasurementType = "linear"
	MeasurementQuantity MeasurementType = "quantity"
)

// ParentBucket is the top-level category of a work type.
type ParentBucket string

// Parent buckets accepted by the catalog
const (
	BucketInteriorStructural ParentBucket = "Interior-Structural"
	BucketInteriorFinish     ParentBucket = "Interior-Finish"
	BucketExteriorStructural ParentBucket = "Exterior-Structural"
	BucketExteriorFinish     ParentBucket = "Exterior-Finish"
	BucketMechanical         ParentBucket = "Mechanical"
)

// ParentBuckets lists every parent bucket in display order.
var ParentBuckets = []ParentBucket{
	BucketInteriorStructural,
	BucketInteriorFinish,
	BucketExteriorStructural,
	BucketExteriorFinish,
	BucketMechanical,
}

// WorkType is a catalog-resident standardized task classification.
type WorkType struct {
	ID                    uuid.UUID       `json:"id"`
	Name                  string          `json:"name" validate:"required,min=3,max=255"`
	ParentBucket          ParentBucket    `json:"parentBucket" validate:"required,oneof=Interior-Structural Interior-Finish Exterior-Structural Exterior-Finish Mechanical"`
	MeasurementType       MeasurementType `json:"measurementType" validate:"required,oneof=area linear quantity"`
	SuggestedUnits        string          `json:"suggestedUnits" validate:"required,min=1,max=50"`
	UnitCostMaterial      *float64        `json:"unitCostMaterial,omitempty" validate:"omitempty,gte=0"`
	UnitCostLabor         *float64        `json:"unitCostLabor,omitempty" validate:"omitempty,gte=0"`
	ProductivityUnitPerHr *float64        `json:"productivityUnitPerHr,omitempty" validate:"omitempty,gte=0"`
	// NameVec is nil until the embedding backfill has run for this entry
	NameVec   []float32  `json:"-"`
	NameClean string     `json:"nameClean,omitempty"`
	Revision  int        `json:"revision"`
	UpdatedBy *uuid.UUID `json:"updatedBy,omitempty"`
	// Seq is the catalog insertion order, used as the final ranking tie-break
	Seq       int64      `json:"-"`
	RetiredAt *time.Time `json:"retiredAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// Retired reports whether the work type has been soft-retired.
func (w *WorkType) Retired() bool {
	return w.RetiredAt != nil
}

// DraftWorkType is a proposed work type that has not been committed to the catalog.
type DraftWorkType struct {
	Name                  string          `json:"name"`
	ParentBucket          ParentBucket    `json:"parentBucket"`
	MeasurementType       MeasurementType `json:"measurementType"`
	SuggestedUnits        string          `json:"suggestedUnits"`
	UnitCostMaterial      *float64        `json:"unitCostMaterial,omitempty"`
	UnitCostLabor         *float64        `json:"unitCostLabor,omitempty"`
	ProductivityUnitPerHr *float64        `json:"productivityUnitPerHr,omitempty"`
	// FragmentIndex is the 1-based position of the source fragment in the drafted batch
	FragmentIndex int `json:"fragmentIndex,omitempty"`
}

// ToWorkType converts an accepted draft into a catalog work type with a fresh ID.
func (d *DraftWorkType) ToWorkType(editor *uuid.UUID) *WorkType {
	return &WorkType{
		ID:                    uuid.New(),
		Name:                  d.Name,
		ParentBucket:          d.ParentBucket,
		MeasurementType:       d.MeasurementType,
		SuggestedUnits:        d.SuggestedUnits,
		UnitCostMaterial:      d.UnitCostMaterial,
		UnitCostLabor:         d.UnitCostLabor,
		ProductivityUnitPerHr: d.ProductivityUnitPerHr,
		Revision:              1,
		UpdatedBy:             editor,
	}
}

// CostSnapshot is an immutable record of a work type's costs at a point in time.
type CostSnapshot struct {
	ID               uuid.UUID  `json:"id"`
	WorkTypeID       uuid.UUID  `json:"workTypeId"`
	Region           string     `json:"region"`
	UnitCostMaterial *float64   `json:"unitCostMaterial,omitempty"`
	UnitCostLabor    *float64   `json:"unitCostLabor,omitempty"`
	CapturedAt       time.Time  `json:"capturedAt"`
	UpdatedBy        *uuid.UUID `json:"updatedBy,omitempty"`
}

// DefaultCostRegion is the region recorded when none is given.
const DefaultCostRegion = "default"
