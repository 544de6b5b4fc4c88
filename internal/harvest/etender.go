package harvest

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/uzstroy/marketintel/internal/config"
	"github.com/uzstroy/marketintel/internal/db"
	"github.com/uzstroy/marketintel/internal/fetcher"
	"github.com/uzstroy/marketintel/internal/identity"
	"github.com/uzstroy/marketintel/internal/model"
	"github.com/uzstroy/marketintel/internal/regions"
	"github.com/uzstroy/marketintel/internal/runlog"
)

const (
	// dealsPageSize is the row-range width per DealsList request.
	dealsPageSize = 20

	// emptyBatchLimit stops pagination after this many consecutive fully
	// empty batches, guarding against upstream total_count drift.
	emptyBatchLimit = 3

	// progressEveryPages controls ledger checkpoint frequency.
	progressEveryPages = 50
)

// dealsAPIHeaders are required by the upstream SPA gateway.
var dealsAPIHeaders = map[string]string{
	"Origin":  "https://etender.uzex.uz",
	"Referer": "https://etender.uzex.uz/deals-list",
}

// DealsHarvester walks the row-range paginated DealsList API, filters
// construction deals, and stores them alongside resolved companies.
type DealsHarvester struct {
	client   fetcher.Client
	pool     db.Pool
	resolver *identity.Resolver
	ledger   *runlog.Ledger
	cfg      config.ETenderConfig

	totalCount int64
}

// NewDealsHarvester wires a harvester from its collaborators.
func NewDealsHarvester(client fetcher.Client, pool db.Pool, ledger *runlog.Ledger, cfg config.ETenderConfig) *DealsHarvester {
	return &DealsHarvester{
		client:   client,
		pool:     pool,
		resolver: identity.NewResolver(pool),
		ledger:   ledger,
		cfg:      cfg,
	}
}

// pageItem pairs a decoded record with its verbatim payload for archival.
type pageItem struct {
	rec dealRecord
	raw json.RawMessage
}

// Discover probes the first page to learn the listing's total count and field
// names.
func (h *DealsHarvester) Discover(ctx context.Context) (int64, []string, error) {
	items, err := h.fetchPage(ctx, 1)
	if err != nil {
		return 0, nil, err
	}
	if len(items) == 0 {
		return 0, nil, nil
	}

	h.totalCount = items[0].rec.TotalCount

	var fieldMap map[string]json.RawMessage
	if err := json.Unmarshal(items[0].raw, &fieldMap); err != nil {
		return h.totalCount, nil, eris.Wrap(err, "etender: decode sample deal")
	}
	fields := make([]string, 0, len(fieldMap))
	for k := range fieldMap {
		fields = append(fields, k)
	}
	sort.Strings(fields)

	zap.L().Info("etender api discovered",
		zap.Int64("total_count", h.totalCount),
		zap.Int("page_size", dealsPageSize),
		zap.Strings("fields", fields),
	)
	return h.totalCount, fields, nil
}

// Run harvests pages startPage..ceiling in concurrent batches. A page failure
// is isolated and counted; only run-level failures (or cancellation) finalize
// the ledger entry as failed.
func (h *DealsHarvester) Run(ctx context.Context, startPage, maxPages int) (model.RunStats, error) {
	var stats model.RunStats

	runID, err := h.ledger.Start(ctx, "etender")
	if err != nil {
		return stats, err
	}

	runErr := h.run(ctx, runID, startPage, maxPages, &stats)
	if runErr != nil {
		// The ledger write uses a fresh context: the run context may already
		// be canceled, and the failure must still be recorded.
		finalCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if ferr := h.ledger.Fail(finalCtx, runID, runErr.Error()); ferr != nil {
			zap.L().Error("etender: finalize failed run", zap.Error(ferr))
		}
		return stats, runErr
	}

	if err := h.ledger.Complete(ctx, runID, stats); err != nil {
		return stats, err
	}
	zap.L().Info("etender harvest complete",
		zap.Int64("found", stats.Found),
		zap.Int64("inserted", stats.Inserted),
		zap.Int64("updated", stats.Updated),
		zap.Int64("skipped", stats.Skipped),
		zap.Int64("failed", stats.Failed),
	)
	return stats, nil
}

func (h *DealsHarvester) run(ctx context.Context, runID string, startPage, maxPages int, stats *model.RunStats) error {
	if startPage < 1 {
		startPage = 1
	}

	if h.totalCount == 0 {
		if _, _, err := h.Discover(ctx); err != nil {
			return eris.Wrap(err, "etender: discovery")
		}
	}

	totalPages := 10000
	if h.totalCount > 0 {
		totalPages = int((h.totalCount + dealsPageSize - 1) / dealsPageSize)
	}
	if maxPages > 0 && startPage+maxPages-1 < totalPages {
		totalPages = startPage + maxPages - 1
	}

	concurrency := h.cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 5
	}

	zap.L().Info("etender harvest starting",
		zap.Int("start_page", startPage),
		zap.Int("total_pages", totalPages),
		zap.Int64("total_records", h.totalCount),
	)

	page := startPage
	emptyStreak := 0

	for page <= totalPages {
		if err := ctx.Err(); err != nil {
			return eris.Wrap(err, "etender: run canceled")
		}

		batchSize := concurrency
		if rest := totalPages - page + 1; rest < batchSize {
			batchSize = rest
		}

		// Fetch the batch concurrently; page failures are recorded in place
		// of results and never abort the batch.
		results := make([][]pageItem, batchSize)
		failures := make([]error, batchSize)
		var g errgroup.Group
		for i := 0; i < batchSize; i++ {
			p := page + i
			g.Go(func() error {
				items, err := h.fetchPage(ctx, p)
				if err != nil {
					failures[i] = err
					return nil
				}
				results[i] = items
				return nil
			})
		}
		_ = g.Wait()

		allEmpty := true
		for i := 0; i < batchSize; i++ {
			if failures[i] != nil {
				zap.L().Error("etender page failed",
					zap.Int("page", page+i),
					zap.Error(failures[i]),
				)
				stats.Failed++
				continue
			}
			if len(results[i]) == 0 {
				continue
			}
			allEmpty = false
			h.processPage(ctx, results[i], stats)
		}

		if allEmpty {
			emptyStreak++
			if emptyStreak >= emptyBatchLimit {
				zap.L().Info("etender: consecutive empty batches, stopping",
					zap.Int("streak", emptyStreak),
				)
				break
			}
		} else {
			emptyStreak = 0
		}

		page += batchSize

		if (page-startPage)%progressEveryPages < batchSize {
			zap.L().Info("etender progress",
				zap.Int("page", page-1),
				zap.Int("total_pages", totalPages),
				zap.Int64("found", stats.Found),
				zap.Int64("inserted", stats.Inserted),
				zap.Int64("skipped", stats.Skipped),
			)
			if err := h.ledger.Progress(ctx, runID, *stats, page-1); err != nil {
				zap.L().Warn("etender: ledger progress write failed", zap.Error(err))
			}
		}

		// Politeness delay between batches.
		delay := h.cfg.BatchDelay
		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return eris.Wrap(ctx.Err(), "etender: run canceled")
			case <-timer.C:
			}
		}
	}

	return nil
}

// processPage filters and stores one page of deals. Per-record failures are
// counted, never propagated.
func (h *DealsHarvester) processPage(ctx context.Context, items []pageItem, stats *model.RunStats) {
	for _, item := range items {
		stats.Found++

		if !IsConstructionDeal(item.rec.CategoryName, item.rec.CustomerName, item.rec.ProviderName) {
			stats.Skipped++
			continue
		}

		inserted, err := h.storeDeal(ctx, item.rec, item.raw)
		if err != nil {
			zap.L().Error("etender: store deal failed",
				zap.Int64("deal_id", item.rec.DealID),
				zap.Error(err),
			)
			stats.Failed++
			continue
		}
		if inserted {
			stats.Inserted++
		} else {
			stats.Updated++
		}
	}
}

// fetchPage retrieves one row-range page. The response is an array of deal
// objects; each is kept verbatim for archival next to its decoded form.
func (h *DealsHarvester) fetchPage(ctx context.Context, page int) ([]pageItem, error) {
	req := dealsListRequest{
		From:     int64(page-1)*dealsPageSize + 1,
		To:       int64(page) * dealsPageSize,
		SystemID: 0,
	}

	var rawItems []json.RawMessage
	if err := h.client.PostJSON(ctx, h.cfg.APIURL, req, dealsAPIHeaders, &rawItems); err != nil {
		return nil, eris.Wrapf(err, "etender: fetch page %d", page)
	}

	items := make([]pageItem, 0, len(rawItems))
	for _, raw := range rawItems {
		var rec dealRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			// Malformed record: skip it, keep the page.
			zap.L().Warn("etender: malformed deal record", zap.Error(err))
			continue
		}
		items = append(items, pageItem{rec: rec, raw: raw})
	}
	return items, nil
}

const dealUpsertSQL = `
INSERT INTO tender_results
    (deal_id, start_cost, deal_cost, customer_name, provider_stir, provider_name,
     deal_date, deal_description, participants_count, region, raw_data)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::jsonb)
ON CONFLICT (deal_id) DO UPDATE SET
    start_cost         = EXCLUDED.start_cost,
    deal_cost          = EXCLUDED.deal_cost,
    customer_name      = EXCLUDED.customer_name,
    provider_name      = EXCLUDED.provider_name,
    deal_date          = EXCLUDED.deal_date,
    deal_description   = EXCLUDED.deal_description,
    participants_count = EXCLUDED.participants_count,
    region             = COALESCE(tender_results.region, EXCLUDED.region),
    raw_data           = EXCLUDED.raw_data
RETURNING (xmax = 0) AS is_insert`

// storeDeal normalizes and upserts one accepted deal, resolving its winning
// company first so the foreign key holds. Returns true for a fresh insert.
func (h *DealsHarvester) storeDeal(ctx context.Context, rec dealRecord, raw json.RawMessage) (bool, error) {
	if rec.DealID == 0 {
		return false, eris.New("etender: deal without deal_id")
	}

	region := regions.FromText(rec.CustomerName)
	if region == nil {
		region = regions.FromText(rec.CategoryName)
	}

	// Identifiers longer than the local scheme belong to foreign entities:
	// the deal is kept, the winner reference dropped.
	stir := strings.TrimSpace(rec.ProviderINN.String())
	if len(stir) > identity.STIRLength {
		zap.L().Debug("etender: non-standard stir dropped", zap.String("stir", stir))
		stir = ""
	}

	var providerSTIR *string
	if stir != "" {
		if _, err := h.resolver.Resolve(ctx, identity.Observation{
			STIR:    stir,
			RawName: rec.ProviderName,
			Source:  model.SourceETender,
			Region:  region,
		}); err != nil {
			return false, err
		}
		providerSTIR = &stir
	}

	var dealDate *time.Time
	if rec.DealDate != "" {
		datePart, _, _ := strings.Cut(rec.DealDate, "T")
		if d, err := time.Parse("2006-01-02", datePart); err == nil {
			dealDate = &d
		}
	}

	startCost := decimal.Zero
	if rec.StartCost != nil {
		startCost = *rec.StartCost
	}
	dealCost := decimal.Zero
	if rec.DealCost != nil {
		dealCost = *rec.DealCost
	}
	participants := 0
	if rec.ParticipantsCount != nil {
		participants = *rec.ParticipantsCount
	}

	var isInsert bool
	err := h.pool.QueryRow(ctx, dealUpsertSQL,
		rec.DealID, startCost, dealCost, rec.CustomerName, providerSTIR,
		rec.ProviderName, dealDate, rec.CategoryName, participants, region,
		string(raw),
	).Scan(&isInsert)
	if err != nil {
		return false, eris.Wrapf(err, "etender: upsert deal %d", rec.DealID)
	}
	return isInsert, nil
}
