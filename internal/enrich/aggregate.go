package enrich

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/uzstroy/marketintel/internal/db"
)

// AggregateReport summarizes one aggregation pass.
type AggregateReport struct {
	Reset      int64
	Aggregated int64
}

// Aggregator recomputes per-company tender aggregates over a lookback window.
// Reset and recompute run inside one transaction so readers never observe a
// half-cleared state, and repeated runs are idempotent.
type Aggregator struct {
	pool db.Pool
}

// NewAggregator creates an Aggregator backed by the given pool.
func NewAggregator(pool db.Pool) *Aggregator {
	return &Aggregator{pool: pool}
}

const resetAggregatesSQL = `
UPDATE companies SET
    total_wins = 0,
    total_contract_value = 0,
    avg_discount_pct = NULL,
    first_tender_date = NULL,
    last_tender_date = NULL,
    active_regions = '[]'::jsonb,
    updated_at = now()
WHERE total_wins <> 0
   OR total_contract_value <> 0
   OR avg_discount_pct IS NOT NULL
   OR first_tender_date IS NOT NULL
   OR active_regions <> '[]'::jsonb`

// recomputeAggregatesSQL derives every aggregate from tender_results inside
// the window. Deals with a zero or missing start cost contribute to wins and
// contract value but are excluded from the average discount, since no
// baseline exists to discount from.
const recomputeAggregatesSQL = `
UPDATE companies c SET
    total_wins = s.wins,
    total_contract_value = s.contract_value,
    avg_discount_pct = s.avg_discount,
    first_tender_date = s.first_date,
    last_tender_date = s.last_date,
    active_regions = s.regions,
    updated_at = now()
FROM (
    SELECT provider_stir,
           COUNT(*) AS wins,
           COALESCE(SUM(deal_cost), 0) AS contract_value,
           AVG(((start_cost - deal_cost) / start_cost) * 100)
               FILTER (WHERE start_cost > 0) AS avg_discount,
           MIN(deal_date) AS first_date,
           MAX(deal_date) AS last_date,
           COALESCE(jsonb_agg(DISTINCT region) FILTER (WHERE region IS NOT NULL),
                    '[]'::jsonb) AS regions
    FROM tender_results
    WHERE provider_stir IS NOT NULL
      AND deal_date >= CURRENT_DATE - make_interval(months => $1)
    GROUP BY provider_stir
) s
WHERE c.stir = s.provider_stir`

// Run resets previously computed aggregates and recomputes them from scratch
// for the given lookback window (in months).
func (a *Aggregator) Run(ctx context.Context, lookbackMonths int) (AggregateReport, error) {
	var report AggregateReport
	if lookbackMonths <= 0 {
		lookbackMonths = 12
	}

	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return report, eris.Wrap(err, "aggregate: begin")
	}
	defer tx.Rollback(ctx)

	resetTag, err := tx.Exec(ctx, resetAggregatesSQL)
	if err != nil {
		return report, eris.Wrap(err, "aggregate: reset")
	}
	report.Reset = resetTag.RowsAffected()

	computeTag, err := tx.Exec(ctx, recomputeAggregatesSQL, lookbackMonths)
	if err != nil {
		return report, eris.Wrap(err, "aggregate: recompute")
	}
	report.Aggregated = computeTag.RowsAffected()

	if err := tx.Commit(ctx); err != nil {
		return report, eris.Wrap(err, "aggregate: commit")
	}

	zap.L().Info("aggregation complete",
		zap.Int("lookback_months", lookbackMonths),
		zap.Int64("reset", report.Reset),
		zap.Int64("aggregated", report.Aggregated),
	)
	return report, nil
}
