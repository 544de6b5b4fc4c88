package analysis

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/uzstroy/marketintel/internal/model"
)

// RatingFact is one criterion score joined with its taxonomy context.
type RatingFact struct {
	Category  model.RatingCategory  `json:"category"`
	Criterion model.RatingCriterion `json:"criterion"`
	Fact      model.CompanyRating   `json:"fact"`
}

// CompanyProfile is the full card for one company: the merged identity
// record, its recent tender wins, and its latest rating breakdown.
type CompanyProfile struct {
	Company     model.Company `json:"company"`
	RecentDeals []model.Deal  `json:"recent_deals"`
	Ratings     []RatingFact  `json:"ratings"`
}

// ErrCompanyNotFound is returned when the STIR is unknown.
var ErrCompanyNotFound = eris.New("analysis: company not found")

// Profile assembles the company card for a STIR.
func (a *Analyzer) Profile(ctx context.Context, stir string) (*CompanyProfile, error) {
	company, err := a.company(ctx, stir)
	if err != nil {
		return nil, err
	}

	deals, err := a.recentDeals(ctx, stir, 20)
	if err != nil {
		return nil, err
	}

	ratings, err := a.latestRatings(ctx, stir)
	if err != nil {
		return nil, err
	}

	return &CompanyProfile{
		Company:     *company,
		RecentDeals: deals,
		Ratings:     ratings,
	}, nil
}

func (a *Analyzer) company(ctx context.Context, stir string) (*model.Company, error) {
	var (
		c          model.Company
		rawNames   []byte
		activeRegs []byte
	)
	err := a.pool.QueryRow(ctx, `
		SELECT stir, canonical_name, raw_names, company_type, region,
		       rating_letter, rating_score, employee_count, specialist_count,
		       total_wins, total_contract_value, avg_discount_pct,
		       first_tender_date, last_tender_date, active_regions, source,
		       created_at, updated_at
		FROM companies WHERE stir = $1`, stir,
	).Scan(&c.STIR, &c.CanonicalName, &rawNames, &c.Type, &c.Region,
		&c.RatingLetter, &c.RatingScore, &c.EmployeeCount, &c.SpecialistCount,
		&c.TotalWins, &c.TotalContractValue, &c.AvgDiscountPct,
		&c.FirstTenderDate, &c.LastTenderDate, &activeRegs, &c.Source,
		&c.CreatedAt, &c.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, ErrCompanyNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "analysis: load company %s", stir)
	}

	if err := json.Unmarshal(rawNames, &c.RawNames); err != nil {
		return nil, eris.Wrapf(err, "analysis: decode raw_names for %s", stir)
	}
	if err := json.Unmarshal(activeRegs, &c.ActiveRegions); err != nil {
		return nil, eris.Wrapf(err, "analysis: decode active_regions for %s", stir)
	}
	return &c, nil
}

func (a *Analyzer) recentDeals(ctx context.Context, stir string, limit int) ([]model.Deal, error) {
	rows, err := a.pool.Query(ctx, `
		SELECT deal_id, start_cost, deal_cost, customer_name, provider_stir,
		       provider_name, deal_date, deal_description, participants_count,
		       region, scraped_at
		FROM tender_results
		WHERE provider_stir = $1
		ORDER BY deal_date DESC NULLS LAST, deal_id DESC
		LIMIT $2`, stir, limit)
	if err != nil {
		return nil, eris.Wrapf(err, "analysis: recent deals for %s", stir)
	}
	defer rows.Close()

	var deals []model.Deal
	for rows.Next() {
		var d model.Deal
		err := rows.Scan(&d.DealID, &d.StartCost, &d.DealCost, &d.CustomerName,
			&d.ProviderSTIR, &d.ProviderName, &d.DealDate, &d.Description,
			&d.ParticipantsCount, &d.Region, &d.ScrapedAt)
		if err != nil {
			return nil, eris.Wrap(err, "analysis: scan deal")
		}
		deals = append(deals, d)
	}
	return deals, rows.Err()
}

// latestRatings returns the criterion scores from the company's most recent
// rating date, joined with the taxonomy.
func (a *Analyzer) latestRatings(ctx context.Context, stir string) ([]RatingFact, error) {
	rows, err := a.pool.Query(ctx, `
		SELECT cat.id, cat.code, cat.name, cat.display_order,
		       cr.id, cr.category_id, cr.code,
		       COALESCE(cr.name_uz, ''), COALESCE(cr.name_ru, ''),
		       COALESCE(cr.source_agency, ''), cr.max_points,
		       r.company_stir, r.criterion_id, r.rating_date,
		       r.raw_value, r.earned_points, r.max_points
		FROM company_ratings r
		JOIN rating_criteria cr ON cr.id = r.criterion_id
		JOIN rating_categories cat ON cat.id = cr.category_id
		WHERE r.company_stir = $1
		  AND r.rating_date = (
		      SELECT MAX(rating_date) FROM company_ratings WHERE company_stir = $1
		  )
		ORDER BY cat.display_order, cr.code`, stir)
	if err != nil {
		return nil, eris.Wrapf(err, "analysis: ratings for %s", stir)
	}
	defer rows.Close()

	var facts []RatingFact
	for rows.Next() {
		var f RatingFact
		err := rows.Scan(
			&f.Category.ID, &f.Category.Code, &f.Category.Name, &f.Category.DisplayOrder,
			&f.Criterion.ID, &f.Criterion.CategoryID, &f.Criterion.Code,
			&f.Criterion.NameUz, &f.Criterion.NameRu,
			&f.Criterion.SourceAgency, &f.Criterion.MaxPoints,
			&f.Fact.CompanySTIR, &f.Fact.CriterionID, &f.Fact.RatingDate,
			&f.Fact.RawValue, &f.Fact.EarnedPoints, &f.Fact.MaxPoints)
		if err != nil {
			return nil, eris.Wrap(err, "analysis: scan rating fact")
		}
		facts = append(facts, f)
	}
	return facts, rows.Err()
}
