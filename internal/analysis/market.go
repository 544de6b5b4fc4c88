package analysis

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/uzstroy/marketintel/internal/model"
)

// MarketOverview is the headline picture of the harvested market. Totals
// cover every stored deal, including those whose winner could not be
// identified.
type MarketOverview struct {
	TotalDeals     int64            `json:"total_deals"`
	TotalValue     decimal.Decimal  `json:"total_value"`
	AvgDiscountPct *decimal.Decimal `json:"avg_discount_pct,omitempty"`
	Companies      int64            `json:"companies"`
	Contractors    int64            `json:"contractors"`
	RatedCompanies int64            `json:"rated_companies"`
	RegionCoverage float64          `json:"region_coverage"`
	EarliestDeal   *string          `json:"earliest_deal,omitempty"`
	LatestDeal     *string          `json:"latest_deal,omitempty"`
	UnmatchedDeals int64            `json:"unmatched_deals"`
}

// RegionSlice is one region's share of the market.
type RegionSlice struct {
	Region    string          `json:"region"`
	Deals     int64           `json:"deals"`
	Value     decimal.Decimal `json:"value"`
	Companies int64           `json:"companies"`
}

// MonthlyPoint is one month of deal flow.
type MonthlyPoint struct {
	Month string          `json:"month"` // YYYY-MM
	Deals int64           `json:"deals"`
	Value decimal.Decimal `json:"value"`
}

// Overview computes the headline market summary.
func (a *Analyzer) Overview(ctx context.Context) (*MarketOverview, error) {
	var o MarketOverview

	err := a.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(deal_cost), 0),
		       AVG(((start_cost - deal_cost) / start_cost) * 100) FILTER (WHERE start_cost > 0),
		       MIN(deal_date)::text,
		       MAX(deal_date)::text,
		       COUNT(*) FILTER (WHERE provider_stir IS NULL)
		FROM tender_results`,
	).Scan(&o.TotalDeals, &o.TotalValue, &o.AvgDiscountPct,
		&o.EarliestDeal, &o.LatestDeal, &o.UnmatchedDeals)
	if err != nil {
		return nil, eris.Wrap(err, "analysis: deals summary")
	}

	var withRegion int64
	err = a.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE company_type = $1),
		       COUNT(*) FILTER (WHERE rating_score IS NOT NULL),
		       COUNT(*) FILTER (WHERE region IS NOT NULL)
		FROM companies`, model.RoleContractor,
	).Scan(&o.Companies, &o.Contractors, &o.RatedCompanies, &withRegion)
	if err != nil {
		return nil, eris.Wrap(err, "analysis: companies summary")
	}
	if o.Companies > 0 {
		o.RegionCoverage = float64(withRegion) / float64(o.Companies)
	}

	return &o, nil
}

// ByRegion breaks deal flow down by region, largest value first. Deals
// without a resolved region are grouped under "Noma'lum".
func (a *Analyzer) ByRegion(ctx context.Context) ([]RegionSlice, error) {
	rows, err := a.pool.Query(ctx, `
		SELECT COALESCE(region, 'Noma''lum'),
		       COUNT(*),
		       COALESCE(SUM(deal_cost), 0),
		       COUNT(DISTINCT provider_stir)
		FROM tender_results
		GROUP BY COALESCE(region, 'Noma''lum')
		ORDER BY COALESCE(SUM(deal_cost), 0) DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "analysis: query by region")
	}
	defer rows.Close()

	var out []RegionSlice
	for rows.Next() {
		var s RegionSlice
		if err := rows.Scan(&s.Region, &s.Deals, &s.Value, &s.Companies); err != nil {
			return nil, eris.Wrap(err, "analysis: scan region slice")
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// MonthlyTrend returns per-month deal counts and values for the last n
// months, oldest first.
func (a *Analyzer) MonthlyTrend(ctx context.Context, months int) ([]MonthlyPoint, error) {
	if months <= 0 {
		months = 12
	}
	rows, err := a.pool.Query(ctx, `
		SELECT to_char(date_trunc('month', deal_date), 'YYYY-MM'),
		       COUNT(*),
		       COALESCE(SUM(deal_cost), 0)
		FROM tender_results
		WHERE deal_date >= date_trunc('month', CURRENT_DATE) - make_interval(months => $1)
		GROUP BY date_trunc('month', deal_date)
		ORDER BY date_trunc('month', deal_date)`, months)
	if err != nil {
		return nil, eris.Wrap(err, "analysis: query monthly trend")
	}
	defer rows.Close()

	var out []MonthlyPoint
	for rows.Next() {
		var p MonthlyPoint
		if err := rows.Scan(&p.Month, &p.Deals, &p.Value); err != nil {
			return nil, eris.Wrap(err, "analysis: scan monthly point")
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
