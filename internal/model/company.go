// Package model defines the persisted fact-base entities.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Role classifies a company by its market function.
type Role string

const (
	RoleContractor Role = "contractor"
	RoleConsultant Role = "consultant"
	RoleLaboratory Role = "laboratory"
	RoleAssessor   Role = "assessor"
	RoleOther      Role = "other"
	RoleUnknown    Role = "unknown"
)

// NonContractor reports whether the role is one of the fine-grained
// non-contractor labels (or the catch-all "other").
func (r Role) NonContractor() bool {
	switch r {
	case RoleConsultant, RoleLaboratory, RoleAssessor, RoleOther:
		return true
	default:
		return false
	}
}

// Source tags which upstream system a fact was observed from.
type Source string

const (
	SourceETender Source = "etender"
	SourceReyting Source = "reyting"
	SourceBoth    Source = "both"
)

// Company is the merged identity record keyed by STIR (the 9-digit taxpayer id).
type Company struct {
	STIR          string           `json:"stir"`
	CanonicalName string           `json:"canonical_name"`
	RawNames      []string         `json:"raw_names"`
	Type          Role             `json:"company_type"`
	Region        *string          `json:"region,omitempty"`
	RatingLetter  *string          `json:"rating_letter,omitempty"`
	RatingScore   *decimal.Decimal `json:"rating_score,omitempty"`

	EmployeeCount   *int `json:"employee_count,omitempty"`
	SpecialistCount *int `json:"specialist_count,omitempty"`

	// Derived aggregates: always a pure function of tender_results inside
	// the lookback window, recomputed by the aggregation engine.
	TotalWins          int              `json:"total_wins"`
	TotalContractValue decimal.Decimal  `json:"total_contract_value"`
	AvgDiscountPct     *decimal.Decimal `json:"avg_discount_pct,omitempty"`
	FirstTenderDate    *time.Time       `json:"first_tender_date,omitempty"`
	LastTenderDate     *time.Time       `json:"last_tender_date,omitempty"`
	ActiveRegions      []string         `json:"active_regions"`

	Source    Source    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
