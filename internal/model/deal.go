package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Deal is a single tender award record keyed by the upstream deal id.
// Region is an enrichment target: fill-only once set.
type Deal struct {
	DealID            int64           `json:"deal_id"`
	StartCost         decimal.Decimal `json:"start_cost"`
	DealCost          decimal.Decimal `json:"deal_cost"`
	CustomerName      string          `json:"customer_name"`
	ProviderSTIR      *string         `json:"provider_stir,omitempty"`
	ProviderName      string          `json:"provider_name"`
	DealDate          *time.Time      `json:"deal_date,omitempty"`
	Description       string          `json:"deal_description"`
	ParticipantsCount int             `json:"participants_count"`
	Region            *string         `json:"region,omitempty"`
	RawData           []byte          `json:"-"`
	ScrapedAt         time.Time       `json:"scraped_at"`
}
