package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OpportunityKind tags the detection strategy that produced a candidate.
type OpportunityKind string

const (
	OpportunityDirect    OpportunityKind = "direct"
	OpportunityCrossRate OpportunityKind = "cross_rate"
	OpportunityUSD       OpportunityKind = "usd"
	OpportunityTriangle  OpportunityKind = "triangle"
	OpportunityLatency   OpportunityKind = "latency"
)

// Opportunity statuses. Rows are immutable after insert; status is set once.
const (
	StatusDetected = "detected"
	StatusSkipped  = "skipped"
	StatusNotified = "notified"
)

// FeeBreakdown itemizes the modeled cost of a round trip. Buy and sell fees
// are absolute amounts in the quote currency for the modeled volume;
// TransferFee is the flat withdrawal fee in the base asset's quote value.
type FeeBreakdown struct {
	Buy      decimal.Decimal `json:"buy"`
	Sell     decimal.Decimal `json:"sell"`
	Transfer decimal.Decimal `json:"transfer"`
	TotalPct decimal.Decimal `json:"total_pct"`
}

// Opportunity is one observed cross-venue price discrepancy, after fees.
type Opportunity struct {
	ID           uuid.UUID       `json:"id"`
	Kind         OpportunityKind `json:"kind"`
	Timestamp    time.Time       `json:"timestamp"`
	Symbol       string          `json:"symbol"`
	BuyExchange  string          `json:"buy_exchange"`
	SellExchange string          `json:"sell_exchange"`
	BuyPrice     decimal.Decimal `json:"buy_price"`
	SellPrice    decimal.Decimal `json:"sell_price"`
	PriceDiffPct decimal.Decimal `json:"price_diff_pct"`
	ProfitPct    decimal.Decimal `json:"estimated_profit_pct"`
	MaxVolume    decimal.Decimal `json:"max_profitable_volume"`
	Fees         FeeBreakdown    `json:"fees"`
	Status       string          `json:"status"`
	SkipReason   string          `json:"skip_reason,omitempty"`
}

// Route is the cooldown key for the notification gate:
// "{pair}:{buy}->{sell}".
func (o Opportunity) Route() string {
	return o.Symbol + ":" + o.BuyExchange + "->" + o.SellExchange
}

// ProfitAmount is the estimated absolute profit in the quote currency for
// the modeled volume.
func (o Opportunity) ProfitAmount() decimal.Decimal {
	if !o.BuyPrice.IsPositive() {
		return decimal.Zero
	}
	return o.BuyPrice.Mul(o.MaxVolume).Mul(o.ProfitPct).Div(decimal.NewFromInt(100))
}
