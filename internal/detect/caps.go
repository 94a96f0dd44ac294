package detect

import (
	"github.com/shopspring/decimal"

	"github.com/arbiscan/arbiscan/internal/domain"
)

// Position caps bound the modeled volume per base asset so one deep book
// does not inflate profit estimates past what the desk would ever move.
var defaultPositionCaps = map[string]decimal.Decimal{
	"BTC": decimal.RequireFromString("0.1"),
	"ETH": decimal.RequireFromString("1.0"),
	"XRP": decimal.RequireFromString("10000"),
}

var defaultPositionCap = decimal.RequireFromString("0.1")

// PositionCaps resolves per-asset caps with a catch-all default.
type PositionCaps map[string]decimal.Decimal

func (c PositionCaps) For(symbol string) decimal.Decimal {
	base := domain.BaseAsset(symbol)
	if limit, ok := c[base]; ok {
		return limit
	}
	if limit, ok := defaultPositionCaps[base]; ok {
		return limit
	}
	return defaultPositionCap
}
