package harvest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uzstroy/marketintel/internal/config"
	"github.com/uzstroy/marketintel/internal/runlog"
)

// fakeRatingsClient serves listing pages and detail payloads by URL.
type fakeRatingsClient struct {
	listing map[string]string // "type/page/perPage" -> response JSON
	details map[string]string // stir -> response JSON
}

func (f *fakeRatingsClient) GetJSON(ctx context.Context, url string, params, headers map[string]string, out any) error {
	if strings.Contains(url, "/v2/category/get/") {
		stir := url[strings.LastIndex(url, "/")+1:]
		body, ok := f.details[stir]
		if !ok {
			return fmt.Errorf("no detail for %s", stir)
		}
		return json.Unmarshal([]byte(body), out)
	}
	key := params["type"] + "/" + params["page"] + "/" + params["perPage"]
	body, ok := f.listing[key]
	if !ok {
		return fmt.Errorf("no listing for %s", key)
	}
	return json.Unmarshal([]byte(body), out)
}

func (f *fakeRatingsClient) PostJSON(ctx context.Context, url string, body any, headers map[string]string, out any) error {
	return fmt.Errorf("unexpected POST %s", url)
}

func TestRatingsHarvester_RunListing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	client := &fakeRatingsClient{listing: map[string]string{
		"0/1/1": `{"data":{"total":1,"data":[]}}`,
		"0/1/100": `{"data":{"total":1,"data":[
			{"inn":"123456789","name":"GAMMA QURILISH MCHJ","rating":"A","sumbal":87.5,"viloyat_name":"Тошкент шаҳар"}
		]}}`,
	}}

	h := NewRatingsHarvester(client, mock, runlog.NewLedger(mock), config.ReytingConfig{})

	mock.ExpectExec(`INSERT INTO scrape_runs`).
		WithArgs(pgxmock.AnyArg(), "reyting_listing").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	mock.ExpectQuery(`INSERT INTO companies`).
		WithArgs("123456789", "GAMMA QURILISH", "GAMMA QURILISH MCHJ",
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{
			"stir", "canonical_name", "raw_names", "company_type", "region", "source",
		}).AddRow("123456789", "GAMMA QURILISH", []byte(`["GAMMA QURILISH MCHJ"]`),
			"unknown", nil, "reyting"))

	mock.ExpectExec(`UPDATE scrape_runs SET`).
		WithArgs(int64(1), int64(1), int64(0), int64(0), int64(0), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	stats, err := h.RunListing(context.Background(), []int{0})
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Found)
	assert.Equal(t, int64(1), stats.Inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRatingsHarvester_ListingSkipsForeignSTIR(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	h := NewRatingsHarvester(&fakeRatingsClient{}, mock, runlog.NewLedger(mock), config.ReytingConfig{})

	// Foreign identifier: silently ignored, no resolver write.
	err = h.storeListingCompany(context.Background(), listingCompany{
		INN:  flexString("300123456789"),
		Name: "FOREIGN BUILDER",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRatingsHarvester_StoreDetail(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	h := NewRatingsHarvester(&fakeRatingsClient{}, mock, runlog.NewLedger(mock), config.ReytingConfig{})

	raw := json.RawMessage(`{
		"ballar": {
			"mehnat": {"data": [
				{"nomi_ru": "Общее число работников", "key": "mehnat_total_workers",
				 "qiymat": 120, "ball": "4.5", "max_ball": 5}
			]}
		}
	}`)

	// Snapshot first, then the criterion fact, then the staff-count writeback.
	mock.ExpectExec(`INSERT INTO company_rating_snapshots`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(`INSERT INTO rating_criteria`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectExec(`INSERT INTO company_ratings`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`UPDATE companies SET`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err = h.storeDetail(context.Background(), "123456789", raw)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRatingsHarvester_StoreDetail_CachesCriteria(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	h := NewRatingsHarvester(&fakeRatingsClient{}, mock, runlog.NewLedger(mock), config.ReytingConfig{})

	raw := json.RawMessage(`{
		"ballar": {
			"soliq": {"data": [
				{"nomi_ru": "Налоговая дисциплина", "qiymat": "", "ball": "9", "max_ball": "10"}
			]}
		}
	}`)

	// First company creates the criterion.
	mock.ExpectExec(`INSERT INTO company_rating_snapshots`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(`INSERT INTO rating_criteria`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(3))
	mock.ExpectExec(`INSERT INTO company_ratings`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, h.storeDetail(context.Background(), "111111111", raw))

	// Second company reuses the cached criterion id: no criteria query.
	mock.ExpectExec(`INSERT INTO company_rating_snapshots`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO company_ratings`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, h.storeDetail(context.Background(), "222222222", raw))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureCriterion_SynthesizesCode(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	h := NewRatingsHarvester(&fakeRatingsClient{}, mock, runlog.NewLedger(mock), config.ReytingConfig{})

	// No upstream key: the code is synthesized from the lowered name.
	mock.ExpectQuery(`INSERT INTO rating_criteria`).
		WithArgs("competitiveness", "налоговая_дисциплина", "", "Налоговая дисциплина",
			pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(9))

	id, err := h.ensureCriterion(context.Background(),
		indicator{NomiRu: "Налоговая дисциплина"},
		"Налоговая дисциплина", "competitiveness")
	require.NoError(t, err)
	assert.Equal(t, 9, id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAgencyToCategory_UnknownFallsBack(t *testing.T) {
	code, ok := agencyToCategory["mehnat"]
	assert.True(t, ok)
	assert.Equal(t, "qualified_specialists", code)

	_, ok = agencyToCategory["yangi_agentlik"]
	assert.False(t, ok) // storeDetail maps unknown agencies to competitiveness
}
