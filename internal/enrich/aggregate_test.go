package enrich

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregator_Run(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	a := NewAggregator(mock)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE companies SET\s+total_wins = 0`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 120))
	mock.ExpectExec(`UPDATE companies c SET\s+total_wins = s.wins`).
		WithArgs(12).
		WillReturnResult(pgxmock.NewResult("UPDATE", 95))
	mock.ExpectCommit()

	report, err := a.Run(context.Background(), 12)
	require.NoError(t, err)
	assert.Equal(t, int64(120), report.Reset)
	assert.Equal(t, int64(95), report.Aggregated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAggregator_Run_DefaultsLookback(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	a := NewAggregator(mock)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE companies SET`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectExec(`UPDATE companies c SET`).
		WithArgs(12).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectCommit()

	_, err = a.Run(context.Background(), 0)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// Deals with no starting price have no baseline to discount from: they must
// be dropped from the average entirely, not averaged in as 0%.
func TestRecomputeAggregates_ExcludesZeroBaselineFromDiscount(t *testing.T) {
	assert.Contains(t, recomputeAggregatesSQL,
		"AVG(((start_cost - deal_cost) / start_cost) * 100)")
	assert.Contains(t, recomputeAggregatesSQL, "FILTER (WHERE start_cost > 0)")

	// No branch may coalesce a missing baseline into a zero discount.
	assert.NotContains(t, recomputeAggregatesSQL, "ELSE 0")
	assert.NotContains(t, recomputeAggregatesSQL, "COALESCE(AVG")
}

// The reset statement only touches rows that still carry derived values, so
// re-running aggregation over unchanged data rewrites nothing.
func TestResetAggregates_GuardedForIdempotence(t *testing.T) {
	assert.Contains(t, resetAggregatesSQL, "WHERE total_wins <> 0")
	assert.Contains(t, resetAggregatesSQL, "OR active_regions <> '[]'::jsonb")
}

func TestAggregator_Run_RollsBackOnFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	a := NewAggregator(mock)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE companies SET`).
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	_, err = a.Run(context.Background(), 6)
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
