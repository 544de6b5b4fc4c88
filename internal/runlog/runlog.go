// Package runlog records the lifecycle and progress of harvest runs in the
// scrape_runs ledger, enabling observability and resume-from-checkpoint.
package runlog

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/uzstroy/marketintel/internal/db"
	"github.com/uzstroy/marketintel/internal/model"
)

// Ledger provides read/write access to the scrape_runs table.
type Ledger struct {
	pool db.Pool
}

// NewLedger creates a Ledger backed by the given pool.
func NewLedger(pool db.Pool) *Ledger {
	return &Ledger{pool: pool}
}

// Start records the beginning of a run for a source and returns its id.
func (l *Ledger) Start(ctx context.Context, source string) (string, error) {
	id := uuid.NewString()
	_, err := l.pool.Exec(ctx,
		`INSERT INTO scrape_runs (id, source, status, started_at) VALUES ($1, $2, 'running', now())`,
		id, source,
	)
	if err != nil {
		return "", eris.Wrapf(err, "runlog: start run for %s", source)
	}
	return id, nil
}

// Progress writes a checkpoint: cumulative counters and the last processed
// page. Called at fixed intervals during a run, not per record.
func (l *Ledger) Progress(ctx context.Context, runID string, stats model.RunStats, lastPage int) error {
	_, err := l.pool.Exec(ctx,
		`UPDATE scrape_runs SET
		     records_found = $1, records_inserted = $2, records_updated = $3,
		     records_skipped = $4, records_failed = $5, last_page = $6
		 WHERE id = $7`,
		stats.Found, stats.Inserted, stats.Updated, stats.Skipped, stats.Failed,
		lastPage, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "runlog: progress for run %s", runID)
	}
	return nil
}

// Complete finalizes a run as completed with its final counters.
func (l *Ledger) Complete(ctx context.Context, runID string, stats model.RunStats) error {
	_, err := l.pool.Exec(ctx,
		`UPDATE scrape_runs SET
		     status = 'completed', finished_at = now(),
		     records_found = $1, records_inserted = $2, records_updated = $3,
		     records_skipped = $4, records_failed = $5
		 WHERE id = $6`,
		stats.Found, stats.Inserted, stats.Updated, stats.Skipped, stats.Failed, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "runlog: complete run %s", runID)
	}
	return nil
}

// Fail finalizes a run as failed with the captured error text. Used for both
// run-level failures and external cancellation.
func (l *Ledger) Fail(ctx context.Context, runID string, errMsg string) error {
	_, err := l.pool.Exec(ctx,
		`UPDATE scrape_runs SET status = 'failed', finished_at = now(), error_message = $1
		 WHERE id = $2`,
		errMsg, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "runlog: fail run %s", runID)
	}
	return nil
}

// LastCompleted returns the most recent completed run for a source, or nil if
// none exists. Controllers may use its last_page checkpoint to resume.
func (l *Ledger) LastCompleted(ctx context.Context, source string) (*model.RunEntry, error) {
	rows, err := l.pool.Query(ctx, listSQL+` WHERE source = $1 AND status = 'completed'
		 ORDER BY started_at DESC LIMIT 1`, source)
	if err != nil {
		return nil, eris.Wrapf(err, "runlog: last completed for %s", source)
	}
	entries, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[0], nil
}

const listSQL = `SELECT id, source, status, started_at, finished_at,
	records_found, records_inserted, records_updated, records_skipped, records_failed,
	last_page, error_message
 FROM scrape_runs`

// List returns up to limit ledger entries, most recent first.
func (l *Ledger) List(ctx context.Context, limit int) ([]model.RunEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.pool.Query(ctx, listSQL+` ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "runlog: list runs")
	}
	return scanEntries(rows)
}

func scanEntries(rows pgx.Rows) ([]model.RunEntry, error) {
	defer rows.Close()

	var entries []model.RunEntry
	for rows.Next() {
		var (
			e          model.RunEntry
			finishedAt *time.Time
			errMsg     *string
		)
		if err := rows.Scan(&e.ID, &e.Source, &e.Status, &e.StartedAt, &finishedAt,
			&e.Stats.Found, &e.Stats.Inserted, &e.Stats.Updated, &e.Stats.Skipped,
			&e.Stats.Failed, &e.LastPage, &errMsg); err != nil {
			return nil, eris.Wrap(err, "runlog: scan entry")
		}
		e.FinishedAt = finishedAt
		if errMsg != nil {
			e.Error = *errMsg
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
