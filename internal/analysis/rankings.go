// Package analysis answers read-only questions over the enriched fact base:
// contractor rankings, market overviews, and regional breakdowns.
package analysis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/uzstroy/marketintel/internal/db"
)

// RankedContractor is one row of the contractor leaderboard.
type RankedContractor struct {
	Position           int              `json:"position"`
	STIR               string           `json:"stir"`
	Name               string           `json:"name"`
	Region             *string          `json:"region,omitempty"`
	RatingLetter       *string          `json:"rating_letter,omitempty"`
	RatingScore        *decimal.Decimal `json:"rating_score,omitempty"`
	TotalWins          int              `json:"total_wins"`
	TotalContractValue decimal.Decimal  `json:"total_contract_value"`
	AvgDiscountPct     *decimal.Decimal `json:"avg_discount_pct,omitempty"`
	EmployeeCount      *int             `json:"employee_count,omitempty"`
	LastTenderDate     *time.Time       `json:"last_tender_date,omitempty"`
	ActiveRegions      []string         `json:"active_regions"`
}

// RankingFilter narrows the leaderboard.
type RankingFilter struct {
	Region     string // canonical region name; empty matches all
	NameSearch string // case-insensitive substring over canonical name
	MinWins    int
	Limit      int
}

// Analyzer runs read-only queries over companies and tender_results.
type Analyzer struct {
	pool db.Pool
}

// NewAnalyzer creates an Analyzer backed by the given pool.
func NewAnalyzer(pool db.Pool) *Analyzer {
	return &Analyzer{pool: pool}
}

const topContractorsSQL = `
SELECT stir, canonical_name, region, rating_letter, rating_score,
       total_wins, total_contract_value, avg_discount_pct,
       employee_count, last_tender_date, active_regions
FROM companies
WHERE company_type = 'contractor'
  AND total_wins >= $1
  AND ($2 = '' OR region = $2)
  AND ($3 = '' OR canonical_name ILIKE '%' || $3 || '%')
ORDER BY total_contract_value DESC, total_wins DESC, stir
LIMIT $4`

// TopContractors returns contractors ranked by contract value. Companies
// classified as laboratories, assessors, consultants or left unknown never
// appear here, whatever their win counts.
func (a *Analyzer) TopContractors(ctx context.Context, f RankingFilter) ([]RankedContractor, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	rows, err := a.pool.Query(ctx, topContractorsSQL,
		f.MinWins, f.Region, f.NameSearch, limit)
	if err != nil {
		return nil, eris.Wrap(err, "analysis: query top contractors")
	}
	defer rows.Close()

	var out []RankedContractor
	for rows.Next() {
		var (
			rc          RankedContractor
			regionsJSON []byte
		)
		err := rows.Scan(&rc.STIR, &rc.Name, &rc.Region, &rc.RatingLetter, &rc.RatingScore,
			&rc.TotalWins, &rc.TotalContractValue, &rc.AvgDiscountPct,
			&rc.EmployeeCount, &rc.LastTenderDate, &regionsJSON)
		if err != nil {
			return nil, eris.Wrap(err, "analysis: scan contractor")
		}
		if err := json.Unmarshal(regionsJSON, &rc.ActiveRegions); err != nil {
			return nil, eris.Wrapf(err, "analysis: decode active_regions for %s", rc.STIR)
		}
		rc.Position = len(out) + 1
		out = append(out, rc)
	}
	return out, rows.Err()
}
