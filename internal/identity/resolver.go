package identity

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/uzstroy/marketintel/internal/db"
	"github.com/uzstroy/marketintel/internal/model"
)

// STIRLength is the digit length of the local taxpayer identifier. Longer
// identifiers belong to foreign entities and are not resolvable here.
const STIRLength = 9

// Observation is one sighting of a company in an upstream source.
type Observation struct {
	STIR         string
	RawName      string
	Source       model.Source
	Region       *string
	RatingLetter *string
	RatingScore  *decimal.Decimal
}

// Resolver merges company observations into the companies table.
type Resolver struct {
	pool db.Pool
}

// NewResolver creates a Resolver backed by the given pool.
func NewResolver(pool db.Pool) *Resolver {
	return &Resolver{pool: pool}
}

// resolveSQL is a single conditional upsert so concurrent observations of the
// same STIR cannot lose raw-name variants or flip fill-only fields.
//
// Merge rules: canonical name keeps the longer candidate; raw_names is a
// strict jsonb union (containment-checked before append); region and rating
// fields are fill-only; source becomes 'both' once a second source is seen.
const resolveSQL = `
INSERT INTO companies
    (stir, canonical_name, raw_names, region, rating_letter, rating_score, rating_fetched_at, source)
VALUES
    ($1, $2, jsonb_build_array($3::text), $4, $5, $6,
     CASE WHEN $5::text IS NOT NULL OR $6::numeric IS NOT NULL THEN now() END, $7)
ON CONFLICT (stir) DO UPDATE SET
    canonical_name = CASE
        WHEN LENGTH(EXCLUDED.canonical_name) > LENGTH(companies.canonical_name)
        THEN EXCLUDED.canonical_name
        ELSE companies.canonical_name
    END,
    raw_names = CASE
        WHEN NOT companies.raw_names @> jsonb_build_array($3::text)
        THEN companies.raw_names || jsonb_build_array($3::text)
        ELSE companies.raw_names
    END,
    region            = COALESCE(companies.region, EXCLUDED.region),
    rating_letter     = COALESCE(companies.rating_letter, EXCLUDED.rating_letter),
    rating_score      = COALESCE(companies.rating_score, EXCLUDED.rating_score),
    rating_fetched_at = COALESCE(companies.rating_fetched_at, EXCLUDED.rating_fetched_at),
    source = CASE
        WHEN companies.source <> $7 AND companies.source <> 'both' THEN 'both'
        ELSE companies.source
    END,
    updated_at = now()
RETURNING stir, canonical_name, raw_names, company_type, region, source`

// Resolve merges the observation into an existing or new company record and
// returns the merged state.
func (r *Resolver) Resolve(ctx context.Context, obs Observation) (*model.Company, error) {
	canonical := CleanName(obs.RawName)

	var (
		c        model.Company
		rawNames []byte
	)
	err := r.pool.QueryRow(ctx, resolveSQL,
		obs.STIR, canonical, obs.RawName, obs.Region,
		obs.RatingLetter, obs.RatingScore, obs.Source,
	).Scan(&c.STIR, &c.CanonicalName, &rawNames, &c.Type, &c.Region, &c.Source)
	if err != nil {
		return nil, eris.Wrapf(err, "identity: resolve stir=%s name=%q", obs.STIR, obs.RawName)
	}

	if err := json.Unmarshal(rawNames, &c.RawNames); err != nil {
		return nil, eris.Wrapf(err, "identity: decode raw_names for stir=%s", obs.STIR)
	}
	return &c, nil
}
