package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// RatingCategory is one entry of the fixed rating taxonomy. Seeded at
// migration time, never mutated by the pipeline.
type RatingCategory struct {
	ID           int    `json:"id"`
	Code         string `json:"code"`
	Name         string `json:"name"`
	DisplayOrder int    `json:"display_order"`
}

// RatingCriterion is a scored indicator belonging to one category. Created
// lazily on first observation, keyed by code.
type RatingCriterion struct {
	ID           int              `json:"id"`
	CategoryID   int              `json:"category_id"`
	Code         string           `json:"code"`
	NameUz       string           `json:"name_uz"`
	NameRu       string           `json:"name_ru"`
	SourceAgency string           `json:"source_agency"`
	MaxPoints    *decimal.Decimal `json:"max_points,omitempty"`
}

// CompanyRating is one observed fact: (company, criterion, date) with the raw
// value and points. Re-observation on the same date overwrites in place.
type CompanyRating struct {
	CompanySTIR  string           `json:"company_stir"`
	CriterionID  int              `json:"criterion_id"`
	RatingDate   time.Time        `json:"rating_date"`
	RawValue     *string          `json:"raw_value,omitempty"`
	EarnedPoints *decimal.Decimal `json:"earned_points,omitempty"`
	MaxPoints    *decimal.Decimal `json:"max_points,omitempty"`
}
