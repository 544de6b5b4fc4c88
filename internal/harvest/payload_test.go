package harvest

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlexString_UnmarshalJSON(t *testing.T) {
	var v struct {
		INN flexString `json:"inn"`
	}

	require.NoError(t, json.Unmarshal([]byte(`{"inn":"123456789"}`), &v))
	assert.Equal(t, "123456789", v.INN.String())

	require.NoError(t, json.Unmarshal([]byte(`{"inn":123456789}`), &v))
	assert.Equal(t, "123456789", v.INN.String())

	require.NoError(t, json.Unmarshal([]byte(`{"inn":null}`), &v))
	assert.Equal(t, "", v.INN.String())

	require.NoError(t, json.Unmarshal([]byte(`{"inn":" 42 "}`), &v))
	assert.Equal(t, "42", v.INN.String())
}

func TestFlexString_Decimal(t *testing.T) {
	assert.Nil(t, flexString("").Decimal())
	assert.Nil(t, flexString("abc").Decimal())

	d := flexString("87.5").Decimal()
	require.NotNil(t, d)
	assert.Equal(t, "87.5", d.String())
}

func TestFlexString_Int(t *testing.T) {
	assert.Equal(t, 0, flexString("").Int())
	assert.Equal(t, 0, flexString("n/a").Int())
	assert.Equal(t, 120, flexString("120").Int())
	assert.Equal(t, 12, flexString("12.9").Int())
}

func TestDealRecord_Decode(t *testing.T) {
	// The upstream serves inn as a bare number and repeats total_count on
	// every record.
	raw := []byte(`{
		"total_count": 184213,
		"deal_id": 5512345,
		"start_cost": "1200000000.00",
		"deal_cost": 1080000000,
		"customer_name": "Тошкент шаҳар ҳокимлиги",
		"provider_name": "GAMMA QURILISH MCHJ",
		"provider_inn": 123456789,
		"category_name": "Qurilish ishlari",
		"participants_count": 4,
		"deal_date": "2026-03-15T00:00:00"
	}`)

	var rec dealRecord
	require.NoError(t, json.Unmarshal(raw, &rec))

	assert.Equal(t, int64(184213), rec.TotalCount)
	assert.Equal(t, int64(5512345), rec.DealID)
	assert.Equal(t, "123456789", rec.ProviderINN.String())
	require.NotNil(t, rec.StartCost)
	assert.Equal(t, "1200000000", rec.StartCost.String())
	require.NotNil(t, rec.ParticipantsCount)
	assert.Equal(t, 4, *rec.ParticipantsCount)
}

func TestDetailPayload_Decode(t *testing.T) {
	raw := []byte(`{
		"ballar": {
			"mehnat": {"data": [
				{"nomi_ru": "Общее число работников", "key": "mehnat_total_workers",
				 "qiymat": 120, "ball": "4.5", "max_ball": 5},
				{"nomi_uz": "Muhandislar soni", "key": "mehnat_engineers",
				 "qiymat": "18", "ball": 3, "max_ball": "5"}
			]},
			"soliq": {"data": [
				{"nomi_ru": "Налоговая дисциплина", "qiymat": "", "ball": "9", "max_ball": "10"}
			]}
		}
	}`)

	var data detailData
	require.NoError(t, json.Unmarshal(raw, &data))

	require.Len(t, data.Ballar, 2)
	mehnat := data.Ballar["mehnat"]
	require.Len(t, mehnat.Data, 2)
	assert.Equal(t, "Общее число работников", mehnat.Data[0].name())
	assert.Equal(t, 120, mehnat.Data[0].Qiymat.Int())
	assert.Equal(t, "Muhandislar soni", mehnat.Data[1].name())
	assert.Equal(t, 18, mehnat.Data[1].Qiymat.Int())
}
