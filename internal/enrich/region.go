package enrich

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/uzstroy/marketintel/internal/db"
	"github.com/uzstroy/marketintel/internal/regions"
)

// RegionReport summarizes one region-resolution pass.
type RegionReport struct {
	Canonicalized  int64 // existing values rewritten to canonical spelling
	DealsResolved  int64 // deal regions recovered from free text
	DealsInherited int64 // deals that inherited their winner's region
	Inherited      int64 // companies that inherited their dominant deal region
	TextResolved   int64 // companies resolved from deal text directly
	CompaniesTotal int64
	CompaniesWith  int64
}

// Coverage returns the fraction of companies with a known region.
func (r RegionReport) Coverage() float64 {
	if r.CompaniesTotal == 0 {
		return 0
	}
	return float64(r.CompaniesWith) / float64(r.CompaniesTotal)
}

// RegionResolver fills in missing geography. Every layer is fill-only: a
// region already present on a record is never overwritten, only respelled to
// its canonical form.
type RegionResolver struct {
	pool db.Pool
}

// NewRegionResolver creates a RegionResolver backed by the given pool.
func NewRegionResolver(pool db.Pool) *RegionResolver {
	return &RegionResolver{pool: pool}
}

// Run applies the resolution layers in order:
//
//  1. canonicalize existing company regions (variant spellings, scripts);
//  2. recover deal regions by scanning customer name and description for
//     region or district mentions;
//  3. deals still unresolved inherit their winning company's region;
//  4. companies inherit the most frequent region among their deals;
//  5. companies still unresolved get a direct text scan over their deals.
func (r *RegionResolver) Run(ctx context.Context) (RegionReport, error) {
	var report RegionReport

	if err := r.canonicalizeCompanies(ctx, &report); err != nil {
		return report, err
	}
	if err := r.resolveDealRegions(ctx, &report); err != nil {
		return report, err
	}
	if err := r.inheritFromCompanies(ctx, &report); err != nil {
		return report, err
	}
	if err := r.inheritFromDeals(ctx, &report); err != nil {
		return report, err
	}
	if err := r.resolveFromDealText(ctx, &report); err != nil {
		return report, err
	}

	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE region IS NOT NULL) FROM companies`,
	).Scan(&report.CompaniesTotal, &report.CompaniesWith)
	if err != nil {
		return report, eris.Wrap(err, "regions: coverage count")
	}

	zap.L().Info("region resolution complete",
		zap.Int64("canonicalized", report.Canonicalized),
		zap.Int64("deals_resolved", report.DealsResolved),
		zap.Int64("deals_inherited", report.DealsInherited),
		zap.Int64("inherited", report.Inherited),
		zap.Int64("text_resolved", report.TextResolved),
		zap.Float64("coverage", report.Coverage()),
	)
	return report, nil
}

func (r *RegionResolver) canonicalizeCompanies(ctx context.Context, report *RegionReport) error {
	rows, err := r.pool.Query(ctx,
		`SELECT stir, region FROM companies WHERE region IS NOT NULL`)
	if err != nil {
		return eris.Wrap(err, "regions: select company regions")
	}

	type fix struct{ stir, region string }
	var fixes []fix
	for rows.Next() {
		var stir, region string
		if err := rows.Scan(&stir, &region); err != nil {
			rows.Close()
			return eris.Wrap(err, "regions: scan company region")
		}
		if c := regions.Canonical(region); c != region {
			fixes = append(fixes, fix{stir: stir, region: c})
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return eris.Wrap(err, "regions: iterate company regions")
	}
	rows.Close()

	for _, f := range fixes {
		if _, err := r.pool.Exec(ctx,
			`UPDATE companies SET region = $2, updated_at = now() WHERE stir = $1`,
			f.stir, f.region,
		); err != nil {
			return eris.Wrapf(err, "regions: canonicalize %s", f.stir)
		}
		report.Canonicalized++
	}
	return nil
}

func (r *RegionResolver) resolveDealRegions(ctx context.Context, report *RegionReport) error {
	rows, err := r.pool.Query(ctx,
		`SELECT deal_id, COALESCE(customer_name, ''), COALESCE(deal_description, '')
		 FROM tender_results WHERE region IS NULL`)
	if err != nil {
		return eris.Wrap(err, "regions: select unresolved deals")
	}

	type fix struct {
		dealID int64
		region string
	}
	var fixes []fix
	for rows.Next() {
		var (
			dealID         int64
			customer, desc string
		)
		if err := rows.Scan(&dealID, &customer, &desc); err != nil {
			rows.Close()
			return eris.Wrap(err, "regions: scan deal")
		}
		if region := regions.FromText(customer + " " + desc); region != nil {
			fixes = append(fixes, fix{dealID: dealID, region: *region})
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return eris.Wrap(err, "regions: iterate deals")
	}
	rows.Close()

	for _, f := range fixes {
		if _, err := r.pool.Exec(ctx,
			`UPDATE tender_results SET region = $2 WHERE deal_id = $1 AND region IS NULL`,
			f.dealID, f.region,
		); err != nil {
			return eris.Wrapf(err, "regions: set deal region %d", f.dealID)
		}
		report.DealsResolved++
	}
	return nil
}

// inheritFromCompanies fills unresolved deal regions from the winning
// company's own region, typically known from the ratings listing.
func (r *RegionResolver) inheritFromCompanies(ctx context.Context, report *RegionReport) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE tender_results t
		SET region = c.region
		FROM companies c
		WHERE t.provider_stir = c.stir
		  AND t.region IS NULL
		  AND c.region IS NOT NULL`)
	if err != nil {
		return eris.Wrap(err, "regions: inherit deal regions from winners")
	}
	report.DealsInherited = tag.RowsAffected()
	return nil
}

// inheritFromDeals assigns each unresolved company the most frequent region
// among its deals, in one statement.
func (r *RegionResolver) inheritFromDeals(ctx context.Context, report *RegionReport) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE companies c
		SET region = sub.region, updated_at = now()
		FROM (
		    SELECT provider_stir, region,
		           ROW_NUMBER() OVER (
		               PARTITION BY provider_stir
		               ORDER BY COUNT(*) DESC, region
		           ) AS rn
		    FROM tender_results
		    WHERE provider_stir IS NOT NULL AND region IS NOT NULL
		    GROUP BY provider_stir, region
		) sub
		WHERE sub.rn = 1
		  AND c.stir = sub.provider_stir
		  AND c.region IS NULL`)
	if err != nil {
		return eris.Wrap(err, "regions: inherit from deals")
	}
	report.Inherited = tag.RowsAffected()
	return nil
}

func (r *RegionResolver) resolveFromDealText(ctx context.Context, report *RegionReport) error {
	rows, err := r.pool.Query(ctx, `
		SELECT c.stir,
		       string_agg(COALESCE(t.customer_name, '') || ' ' || COALESCE(t.deal_description, ''), ' ')
		FROM companies c
		JOIN tender_results t ON t.provider_stir = c.stir
		WHERE c.region IS NULL
		GROUP BY c.stir`)
	if err != nil {
		return eris.Wrap(err, "regions: select deal text")
	}

	type fix struct{ stir, region string }
	var fixes []fix
	for rows.Next() {
		var stir, text string
		if err := rows.Scan(&stir, &text); err != nil {
			rows.Close()
			return eris.Wrap(err, "regions: scan deal text")
		}
		if region := regions.FromText(text); region != nil {
			fixes = append(fixes, fix{stir: stir, region: *region})
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return eris.Wrap(err, "regions: iterate deal text")
	}
	rows.Close()

	for _, f := range fixes {
		if _, err := r.pool.Exec(ctx,
			`UPDATE companies SET region = $2, updated_at = now()
			 WHERE stir = $1 AND region IS NULL`,
			f.stir, f.region,
		); err != nil {
			return eris.Wrapf(err, "regions: set company region %s", f.stir)
		}
		report.TextResolved++
	}
	return nil
}
