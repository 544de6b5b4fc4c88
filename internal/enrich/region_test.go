package enrich

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegionResolver_Run(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	r := NewRegionResolver(mock)

	// Layer 1: one company has a variant spelling, one is already canonical.
	mock.ExpectQuery(`SELECT stir, region FROM companies WHERE region IS NOT NULL`).
		WillReturnRows(pgxmock.NewRows([]string{"stir", "region"}).
			AddRow("111111111", "Ташкент").
			AddRow("222222222", "Samarqand"))
	mock.ExpectExec(`UPDATE companies SET region`).
		WithArgs("111111111", "Toshkent shahar").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	// Layer 2: one unresolved deal mentions a region in its customer name.
	mock.ExpectQuery(`SELECT deal_id`).
		WillReturnRows(pgxmock.NewRows([]string{"deal_id", "customer", "desc"}).
			AddRow(int64(42), "Бухарский областной хокимият", "").
			AddRow(int64(43), "ООО Заказчик", "Поставка услуг"))
	mock.ExpectExec(`UPDATE tender_results SET region`).
		WithArgs(int64(42), "Buxoro").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	// Layer 3: unresolved deals inherit their winner's region.
	mock.ExpectExec(`UPDATE tender_results t\s+SET region = c.region`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))

	// Layer 4: set-based company inheritance.
	mock.ExpectExec(`UPDATE companies c`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 5))

	// Layer 5: free-text scan over remaining companies' deals.
	mock.ExpectQuery(`SELECT c.stir`).
		WillReturnRows(pgxmock.NewRows([]string{"stir", "text"}).
			AddRow("333333333", "Капитальный ремонт школы в городе Термез"))
	mock.ExpectExec(`UPDATE companies SET region`).
		WithArgs("333333333", "Surxondaryo").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	// Coverage.
	mock.ExpectQuery(`SELECT COUNT\(\*\), COUNT\(\*\) FILTER`).
		WillReturnRows(pgxmock.NewRows([]string{"total", "with"}).
			AddRow(int64(10), int64(8)))

	report, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(1), report.Canonicalized)
	assert.Equal(t, int64(1), report.DealsResolved)
	assert.Equal(t, int64(3), report.DealsInherited)
	assert.Equal(t, int64(5), report.Inherited)
	assert.Equal(t, int64(1), report.TextResolved)
	assert.InDelta(t, 0.8, report.Coverage(), 0.001)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// A deal whose text names no region must still pick up its winner's region
// when the company side is already resolved, e.g. from the ratings listing.
func TestRegionResolver_DealInheritsWinnerRegion(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	r := NewRegionResolver(mock)

	// Company 111111111 already carries "Toshkent shahar"; nothing to respell.
	mock.ExpectQuery(`SELECT stir, region FROM companies WHERE region IS NOT NULL`).
		WillReturnRows(pgxmock.NewRows([]string{"stir", "region"}).
			AddRow("111111111", "Toshkent shahar"))

	// Its deal 42 has a null region and region-free text, so the text layer
	// finds nothing.
	mock.ExpectQuery(`SELECT deal_id`).
		WillReturnRows(pgxmock.NewRows([]string{"deal_id", "customer", "desc"}).
			AddRow(int64(42), "ООО Заказчик", "Капитальный ремонт здания"))

	// The fill-only deal-side inheritance copies the winner's region over.
	mock.ExpectExec(`UPDATE tender_results t\s+SET region = c.region`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	mock.ExpectExec(`UPDATE companies c`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(`SELECT c.stir`).
		WillReturnRows(pgxmock.NewRows([]string{"stir", "text"}))
	mock.ExpectQuery(`SELECT COUNT\(\*\), COUNT\(\*\) FILTER`).
		WillReturnRows(pgxmock.NewRows([]string{"total", "with"}).
			AddRow(int64(1), int64(1)))

	report, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Zero(t, report.DealsResolved)
	assert.Equal(t, int64(1), report.DealsInherited)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegionReport_Coverage_EmptyBase(t *testing.T) {
	assert.Zero(t, RegionReport{}.Coverage())
}
