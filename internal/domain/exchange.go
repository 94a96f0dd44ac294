package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Exchange is a venue master record. Seeded by the operator, rarely
// mutated, never deleted (deactivated instead).
type Exchange struct {
	ID             int64                      `json:"id"`
	Code           string                     `json:"code"`
	Name           string                     `json:"name"`
	APIBaseURL     string                     `json:"api_base_url"`
	WSURL          string                     `json:"ws_url"`
	MakerFee       decimal.Decimal            `json:"maker_fee"`
	TakerFee       decimal.Decimal            `json:"taker_fee"`
	WithdrawalFees map[string]decimal.Decimal `json:"withdrawal_fees"`
	Active         bool                       `json:"active"`
}

// WithdrawalFee returns the flat withdrawal fee for an asset, zero when the
// venue advertises none.
func (e Exchange) WithdrawalFee(asset string) decimal.Decimal {
	if fee, ok := e.WithdrawalFees[asset]; ok {
		return fee
	}
	return decimal.Zero
}

// CurrencyPair is a tradable pair master record.
type CurrencyPair struct {
	ID             int64           `json:"id"`
	Symbol         string          `json:"symbol"` // canonical BASE/QUOTE
	BaseCurrency   string          `json:"base_currency"`
	QuoteCurrency  string          `json:"quote_currency"`
	SizeIncrement  decimal.Decimal `json:"size_increment"`
	PriceIncrement decimal.Decimal `json:"price_increment"`
	Active         bool            `json:"active"`
}

// Balance is a point-in-time account balance on a venue.
type Balance struct {
	Exchange  string          `json:"exchange"`
	Asset     string          `json:"asset"`
	Timestamp time.Time       `json:"timestamp"`
	Available decimal.Decimal `json:"available"`
	Locked    decimal.Decimal `json:"locked"`
}

// Total returns available plus locked.
func (b Balance) Total() decimal.Decimal {
	return b.Available.Add(b.Locked)
}
