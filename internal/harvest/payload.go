package harvest

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// flexString decodes a JSON value that upstream serves inconsistently as
// either a string or a number.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

func (f flexString) String() string {
	return strings.TrimSpace(string(f))
}

// Decimal parses the value as a decimal, returning nil when empty or unparseable.
func (f flexString) Decimal() *decimal.Decimal {
	s := f.String()
	if s == "" {
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil
	}
	return &d
}

// Int parses the value as an integer (truncating a fractional part),
// returning 0 when empty or unparseable.
func (f flexString) Int() int {
	d := f.Decimal()
	if d == nil {
		return 0
	}
	return int(d.IntPart())
}

// dealRecord is one entry of the DealsList response. Every record repeats the
// listing's running total_count; it is read once from the first record.
type dealRecord struct {
	TotalCount        int64            `json:"total_count"`
	DealID            int64            `json:"deal_id"`
	StartCost         *decimal.Decimal `json:"start_cost"`
	DealCost          *decimal.Decimal `json:"deal_cost"`
	CustomerName      string           `json:"customer_name"`
	ProviderName      string           `json:"provider_name"`
	ProviderINN       flexString       `json:"provider_inn"`
	CategoryName      string           `json:"category_name"`
	ParticipantsCount *int             `json:"participants_count"`
	DealDate          string           `json:"deal_date"`
}

// dealsListRequest is the row-range request body for the DealsList API.
type dealsListRequest struct {
	From       int64  `json:"From"`
	To         int64  `json:"To"`
	CurrencyID *int64 `json:"currencyId"`
	SystemID   int64  `json:"System_Id"`
}

// listingResponse is the paged ratings listing envelope: {data:{total, data:[…]}}.
type listingResponse struct {
	Data struct {
		Total int              `json:"total"`
		Data  []listingCompany `json:"data"`
	} `json:"data"`
}

// listingCompany is one per-company summary row of the ratings listing.
type listingCompany struct {
	INN         flexString       `json:"inn"`
	Name        string           `json:"name"`
	Rating      string           `json:"rating"`
	Sumbal      *decimal.Decimal `json:"sumbal"`
	ViloyatName string           `json:"viloyat_name"`
}

// detailResponse is the per-company rating detail envelope.
type detailResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

// detailData is the decoded detail payload: an agency→indicator-block map
// under "ballar", archived verbatim alongside the parsed facts.
type detailData struct {
	Ballar map[string]agencyBlock `json:"ballar"`
}

type agencyBlock struct {
	Data []indicator `json:"data"`
}

// indicator is one scored criterion observation within an agency block.
type indicator struct {
	NomiRu  string     `json:"nomi_ru"`
	NomiUz  string     `json:"nomi_uz"`
	Nomi    string     `json:"nomi"`
	Key     string     `json:"key"`
	Qiymat  flexString `json:"qiymat"`
	Ball    flexString `json:"ball"`
	MaxBall flexString `json:"max_ball"`
	MasulRu string     `json:"masul_ru"`
}

// name returns the indicator's display name, preferring Russian.
func (i indicator) name() string {
	if i.NomiRu != "" {
		return i.NomiRu
	}
	if i.NomiUz != "" {
		return i.NomiUz
	}
	return i.Nomi
}
