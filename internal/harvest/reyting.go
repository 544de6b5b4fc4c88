package harvest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/uzstroy/marketintel/internal/config"
	"github.com/uzstroy/marketintel/internal/db"
	"github.com/uzstroy/marketintel/internal/fetcher"
	"github.com/uzstroy/marketintel/internal/identity"
	"github.com/uzstroy/marketintel/internal/model"
	"github.com/uzstroy/marketintel/internal/runlog"
)

// listingPerPage is the page size for the ratings listing API.
const listingPerPage = 100

// defaultRatingTypes are the category types harvested by default:
// 0 = general construction, 2 = roads and bridges.
var defaultRatingTypes = []int{0, 2}

// DefaultRatingTypes returns the category types harvested when none are given.
func DefaultRatingTypes() []int {
	return append([]int(nil), defaultRatingTypes...)
}

// ratingsAPIHeaders are required by the upstream gateway.
var ratingsAPIHeaders = map[string]string{
	"Accept":  "application/json, text/plain, */*",
	"Origin":  "https://reyting.mc.uz",
	"Referer": "https://reyting.mc.uz/",
}

// agencyToCategory maps the detail response's agency groupings onto the fixed
// rating taxonomy. Unknown agencies fall back to competitiveness.
var agencyToCategory = map[string]string{
	"mehnat":     "qualified_specialists",
	"soliq":      "financial_performance",
	"inspeksiya": "quality_of_work",
	"tajriba":    "work_experience",
	"texnika":    "technical_base",
	"raqobat":    "competitiveness",
}

// Indicator keys whose raw values are written back onto the company record.
const (
	workerCountKey   = "mehnat_total_workers"
	engineerCountKey = "mehnat_engineers"
)

// RatingsHarvester pulls the company ratings listing and per-company rating
// details, feeding companies through the identity resolver and storing
// criterion facts and daily snapshots.
type RatingsHarvester struct {
	client   fetcher.Client
	pool     db.Pool
	resolver *identity.Resolver
	ledger   *runlog.Ledger
	cfg      config.ReytingConfig

	// criterionIDs caches code→id within a run to avoid re-querying for
	// every indicator of every company.
	mu           sync.Mutex
	criterionIDs map[string]int
}

// NewRatingsHarvester wires a harvester from its collaborators.
func NewRatingsHarvester(client fetcher.Client, pool db.Pool, ledger *runlog.Ledger, cfg config.ReytingConfig) *RatingsHarvester {
	return &RatingsHarvester{
		client:       client,
		pool:         pool,
		resolver:     identity.NewResolver(pool),
		ledger:       ledger,
		cfg:          cfg,
		criterionIDs: make(map[string]int),
	}
}

// Run harvests the listing for all default types, then details for the top
// companies by rating score.
func (h *RatingsHarvester) Run(ctx context.Context) (model.RunStats, error) {
	listing, err := h.RunListing(ctx, defaultRatingTypes)
	if err != nil {
		return listing, err
	}

	detail, err := h.RunDetails(ctx, nil, h.cfg.DetailLimit, 0)
	if err != nil {
		return detail, err
	}

	combined := model.RunStats{
		Found:    listing.Found + detail.Found,
		Inserted: listing.Inserted + detail.Inserted,
		Updated:  listing.Updated + detail.Updated,
		Failed:   listing.Failed + detail.Failed,
	}
	return combined, nil
}

// RunListing walks the paged company listing sequentially per category type.
func (h *RatingsHarvester) RunListing(ctx context.Context, types []int) (model.RunStats, error) {
	var stats model.RunStats

	runID, err := h.ledger.Start(ctx, "reyting_listing")
	if err != nil {
		return stats, err
	}

	if err := h.runListing(ctx, runID, types, &stats); err != nil {
		h.finalizeFailed(ctx, runID, err)
		return stats, err
	}

	if err := h.ledger.Complete(ctx, runID, stats); err != nil {
		return stats, err
	}
	zap.L().Info("reyting listing complete",
		zap.Int64("found", stats.Found),
		zap.Int64("inserted", stats.Inserted),
		zap.Int64("failed", stats.Failed),
	)
	return stats, nil
}

func (h *RatingsHarvester) runListing(ctx context.Context, runID string, types []int, stats *model.RunStats) error {
	for _, typeID := range types {
		total, err := h.listingTotal(ctx, typeID)
		if err != nil {
			return err
		}
		totalPages := (total + listingPerPage - 1) / listingPerPage
		zap.L().Info("reyting listing type",
			zap.Int("type", typeID),
			zap.Int("companies", total),
			zap.Int("pages", totalPages),
		)

		for page := 1; page <= totalPages; page++ {
			if err := ctx.Err(); err != nil {
				return eris.Wrap(err, "reyting: listing canceled")
			}

			companies, err := h.fetchListingPage(ctx, typeID, page)
			if err != nil {
				// Page failure is isolated: counted, run continues.
				zap.L().Error("reyting listing page failed",
					zap.Int("type", typeID),
					zap.Int("page", page),
					zap.Error(err),
				)
				stats.Failed++
				continue
			}

			for _, c := range companies {
				stats.Found++
				if err := h.storeListingCompany(ctx, c); err != nil {
					zap.L().Error("reyting: store listing company failed",
						zap.String("stir", c.INN.String()),
						zap.Error(err),
					)
					stats.Failed++
					continue
				}
				stats.Inserted++
			}

			if page%10 == 0 {
				zap.L().Info("reyting listing progress",
					zap.Int("type", typeID),
					zap.Int("page", page),
					zap.Int("total_pages", totalPages),
					zap.Int64("stored", stats.Inserted),
				)
				if err := h.ledger.Progress(ctx, runID, *stats, page); err != nil {
					zap.L().Warn("reyting: ledger progress write failed", zap.Error(err))
				}
			}

			if err := h.politeWait(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *RatingsHarvester) listingTotal(ctx context.Context, typeID int) (int, error) {
	var resp listingResponse
	err := h.client.GetJSON(ctx, h.cfg.APIBase+"/v2/category/all", map[string]string{
		"type":    fmt.Sprint(typeID),
		"page":    "1",
		"perPage": "1",
	}, ratingsAPIHeaders, &resp)
	if err != nil {
		return 0, eris.Wrapf(err, "reyting: listing total for type %d", typeID)
	}
	return resp.Data.Total, nil
}

func (h *RatingsHarvester) fetchListingPage(ctx context.Context, typeID, page int) ([]listingCompany, error) {
	var resp listingResponse
	err := h.client.GetJSON(ctx, h.cfg.APIBase+"/v2/category/all", map[string]string{
		"type":    fmt.Sprint(typeID),
		"page":    fmt.Sprint(page),
		"perPage": fmt.Sprint(listingPerPage),
	}, ratingsAPIHeaders, &resp)
	if err != nil {
		return nil, eris.Wrapf(err, "reyting: fetch listing type %d page %d", typeID, page)
	}
	return resp.Data.Data, nil
}

// storeListingCompany routes a listing summary through the identity resolver.
// Foreign identifiers are skipped silently, matching the deals extractor.
func (h *RatingsHarvester) storeListingCompany(ctx context.Context, c listingCompany) error {
	stir := c.INN.String()
	if stir == "" || len(stir) > identity.STIRLength {
		return nil
	}

	var region *string
	if r := strings.TrimSpace(c.ViloyatName); r != "" {
		region = &r
	}
	var letter *string
	if l := strings.TrimSpace(c.Rating); l != "" {
		letter = &l
	}

	_, err := h.resolver.Resolve(ctx, identity.Observation{
		STIR:         stir,
		RawName:      c.Name,
		Source:       model.SourceReyting,
		Region:       region,
		RatingLetter: letter,
		RatingScore:  c.Sumbal,
	})
	return err
}

// RunDetails fetches per-company rating breakdowns under a bounded worker
// pool. When stirs is nil, the top limit companies by rating score are used.
func (h *RatingsHarvester) RunDetails(ctx context.Context, stirs []string, limit, typeID int) (model.RunStats, error) {
	var stats model.RunStats

	runID, err := h.ledger.Start(ctx, "reyting_detail")
	if err != nil {
		return stats, err
	}

	if err := h.runDetails(ctx, runID, stirs, limit, typeID, &stats); err != nil {
		h.finalizeFailed(ctx, runID, err)
		return stats, err
	}

	if err := h.ledger.Complete(ctx, runID, stats); err != nil {
		return stats, err
	}
	zap.L().Info("reyting detail complete",
		zap.Int64("found", stats.Found),
		zap.Int64("inserted", stats.Inserted),
		zap.Int64("failed", stats.Failed),
	)
	return stats, nil
}

func (h *RatingsHarvester) runDetails(ctx context.Context, runID string, stirs []string, limit, typeID int, stats *model.RunStats) error {
	if stirs == nil {
		var err error
		stirs, err = h.topRatedSTIRs(ctx, limit)
		if err != nil {
			return err
		}
		zap.L().Info("reyting detail targets selected", zap.Int("count", len(stirs)))
	}

	stats.Found = int64(len(stirs))

	concurrency := h.cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 3
	}
	sem := semaphore.NewWeighted(concurrency)

	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		done int
	)
	for _, stir := range stirs {
		if err := sem.Acquire(ctx, 1); err != nil {
			wg.Wait()
			return eris.Wrap(err, "reyting: detail canceled")
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)

			ok := h.fetchAndStoreDetail(ctx, stir, typeID)

			mu.Lock()
			if ok {
				stats.Inserted++
			} else {
				stats.Failed++
			}
			done++
			if done%20 == 0 {
				zap.L().Info("reyting detail progress",
					zap.Int("done", done),
					zap.Int("total", len(stirs)),
					zap.Int64("ok", stats.Inserted),
					zap.Int64("fail", stats.Failed),
				)
				if err := h.ledger.Progress(ctx, runID, *stats, done); err != nil {
					zap.L().Warn("reyting: ledger progress write failed", zap.Error(err))
				}
			}
			mu.Unlock()

			_ = h.politeWait(ctx)
		}()
	}
	wg.Wait()

	return ctx.Err()
}

// fetchAndStoreDetail is one worker task: its failure is isolated and
// reported through the return value only.
func (h *RatingsHarvester) fetchAndStoreDetail(ctx context.Context, stir string, typeID int) bool {
	var resp detailResponse
	err := h.client.GetJSON(ctx, h.cfg.APIBase+"/v2/category/get/"+stir, map[string]string{
		"type": fmt.Sprint(typeID),
	}, ratingsAPIHeaders, &resp)
	if err != nil {
		zap.L().Error("reyting: detail fetch failed",
			zap.String("stir", stir),
			zap.Error(err),
		)
		return false
	}
	if !resp.Success || len(resp.Data) == 0 {
		zap.L().Debug("reyting: no detail data", zap.String("stir", stir))
		return false
	}

	if err := h.storeDetail(ctx, stir, resp.Data); err != nil {
		zap.L().Error("reyting: store detail failed",
			zap.String("stir", stir),
			zap.Error(err),
		)
		return false
	}
	return true
}

func (h *RatingsHarvester) topRatedSTIRs(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := h.pool.Query(ctx,
		`SELECT stir FROM companies
		 WHERE rating_score IS NOT NULL
		 ORDER BY rating_score DESC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "reyting: select top rated companies")
	}
	defer rows.Close()

	var stirs []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, eris.Wrap(err, "reyting: scan stir")
		}
		stirs = append(stirs, s)
	}
	return stirs, rows.Err()
}

// storeDetail archives the day's snapshot and flattens the agency→indicator
// hierarchy into criterion facts. Employee and specialist counts found among
// the indicators are written back onto the company record.
func (h *RatingsHarvester) storeDetail(ctx context.Context, stir string, raw json.RawMessage) error {
	var data detailData
	if err := json.Unmarshal(raw, &data); err != nil {
		return eris.Wrapf(err, "reyting: decode detail for %s", stir)
	}

	today := time.Now().UTC().Truncate(24 * time.Hour)

	ballarJSON, err := json.Marshal(data.Ballar)
	if err != nil {
		return eris.Wrap(err, "reyting: marshal ballar")
	}
	if _, err := h.pool.Exec(ctx,
		`INSERT INTO company_rating_snapshots
		     (company_stir, rating_date, categories_json, indicators_json)
		 VALUES ($1, $2, $3::jsonb, $4::jsonb)
		 ON CONFLICT (company_stir, rating_date) DO UPDATE SET
		     categories_json = EXCLUDED.categories_json,
		     indicators_json = EXCLUDED.indicators_json,
		     scraped_at = now()`,
		stir, today, string(ballarJSON), string(raw),
	); err != nil {
		return eris.Wrapf(err, "reyting: upsert snapshot for %s", stir)
	}

	totalWorkers := 0
	totalEngineers := 0

	for agencyKey, block := range data.Ballar {
		categoryCode, ok := agencyToCategory[agencyKey]
		if !ok {
			categoryCode = "competitiveness"
		}

		for _, ind := range block.Data {
			name := ind.name()
			if name == "" {
				continue
			}

			criterionID, err := h.ensureCriterion(ctx, ind, name, categoryCode)
			if err != nil {
				return err
			}

			var rawValue *string
			if v := ind.Qiymat.String(); v != "" {
				rawValue = &v
			}
			if _, err := h.pool.Exec(ctx,
				`INSERT INTO company_ratings
				     (company_stir, criterion_id, raw_value, earned_points, max_points, rating_date)
				 VALUES ($1, $2, $3, $4, $5, $6)
				 ON CONFLICT (company_stir, criterion_id, rating_date) DO UPDATE SET
				     raw_value = EXCLUDED.raw_value,
				     earned_points = EXCLUDED.earned_points,
				     max_points = EXCLUDED.max_points,
				     scraped_at = now()`,
				stir, criterionID, rawValue, ind.Ball.Decimal(), ind.MaxBall.Decimal(), today,
			); err != nil {
				return eris.Wrapf(err, "reyting: upsert rating fact %s/%d", stir, criterionID)
			}

			switch ind.Key {
			case workerCountKey:
				totalWorkers = ind.Qiymat.Int()
			case engineerCountKey:
				totalEngineers = ind.Qiymat.Int()
			}
		}
	}

	if totalWorkers > 0 || totalEngineers > 0 {
		var workers, engineers *int
		if totalWorkers > 0 {
			workers = &totalWorkers
		}
		if totalEngineers > 0 {
			engineers = &totalEngineers
		}
		if _, err := h.pool.Exec(ctx,
			`UPDATE companies SET
			     employee_count = COALESCE($2, employee_count),
			     specialist_count = COALESCE($3, specialist_count),
			     updated_at = now()
			 WHERE stir = $1`,
			stir, workers, engineers,
		); err != nil {
			return eris.Wrapf(err, "reyting: update staff counts for %s", stir)
		}
	}

	return nil
}

// ensureCriterion gets or creates the criterion row for an indicator,
// synthesizing a code from the name when the upstream omits one.
func (h *RatingsHarvester) ensureCriterion(ctx context.Context, ind indicator, name, categoryCode string) (int, error) {
	code := strings.TrimSpace(ind.Key)
	if code == "" {
		code = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
		if len(code) > 100 {
			code = code[:100]
		}
	}

	h.mu.Lock()
	id, ok := h.criterionIDs[code]
	h.mu.Unlock()
	if ok {
		return id, nil
	}

	err := h.pool.QueryRow(ctx,
		`INSERT INTO rating_criteria (category_id, code, name_uz, name_ru, source_agency, max_points)
		 SELECT id, $2, $3, $4, $5, $6 FROM rating_categories WHERE code = $1
		 ON CONFLICT (code) DO UPDATE SET
		     name_ru = COALESCE(NULLIF(EXCLUDED.name_ru, ''), rating_criteria.name_ru)
		 RETURNING id`,
		categoryCode, code, ind.NomiUz, name, ind.MasulRu, ind.MaxBall.Decimal(),
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrapf(err, "reyting: ensure criterion %s", code)
	}

	h.mu.Lock()
	h.criterionIDs[code] = id
	h.mu.Unlock()
	return id, nil
}

// politeWait applies the fixed per-request delay.
func (h *RatingsHarvester) politeWait(ctx context.Context) error {
	if h.cfg.RequestDelay <= 0 {
		return nil
	}
	timer := time.NewTimer(h.cfg.RequestDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return eris.Wrap(ctx.Err(), "reyting: canceled during delay")
	case <-timer.C:
		return nil
	}
}

// finalizeFailed records a run failure on a context that survives cancellation.
func (h *RatingsHarvester) finalizeFailed(ctx context.Context, runID string, runErr error) {
	finalCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := h.ledger.Fail(finalCtx, runID, runErr.Error()); err != nil {
		zap.L().Error("reyting: finalize failed run", zap.Error(err))
	}
}
