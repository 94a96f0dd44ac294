package detect

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/arbiscan/arbiscan/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// params carries everything a strategy pass needs beyond the quotes.
type params struct {
	Venues    map[string]domain.Exchange
	Caps      PositionCaps
	Threshold decimal.Decimal
	Now       time.Time
}

// pairCandidate runs the round-trip model for one ordered route: buy at
// buyQ.Ask, sell at sellQ.Bid. Returns false when any guard trips.
func pairCandidate(kind domain.OpportunityKind, buyQ, sellQ domain.Quote, p params) (domain.Opportunity, bool) {
	// Self-arbitrage is never a trade, whatever the prices say.
	if buyQ.Exchange == sellQ.Exchange {
		return domain.Opportunity{}, false
	}

	buy, sell := buyQ.Ask, sellQ.Bid
	if !buy.IsPositive() || !sell.IsPositive() || !sell.GreaterThan(buy) {
		return domain.Opportunity{}, false
	}

	priceDiffPct := sell.Sub(buy).Div(buy).Mul(hundred)
	if priceDiffPct.LessThan(p.Threshold) {
		return domain.Opportunity{}, false
	}

	buyVenue, sellVenue := p.Venues[buyQ.Exchange], p.Venues[sellQ.Exchange]
	feeBuy, feeSell := buyVenue.TakerFee, sellVenue.TakerFee

	// Books that report no size are treated as deep enough; the position
	// cap still bounds the model.
	maxVol := p.Caps.For(buyQ.Symbol)
	if buyQ.AskSize.IsPositive() {
		maxVol = decimal.Min(maxVol, buyQ.AskSize)
	}
	if sellQ.BidSize.IsPositive() {
		maxVol = decimal.Min(maxVol, sellQ.BidSize)
	}
	if !maxVol.IsPositive() {
		return domain.Opportunity{}, false
	}

	buyFees := feeBuy.Mul(buy).Mul(maxVol)
	sellFees := feeSell.Mul(sell).Mul(maxVol)
	// Withdrawal fees are flat amounts in the base asset; value them at
	// the buy price to keep the ratio in quote terms.
	transferFee := buyVenue.WithdrawalFee(domain.BaseAsset(buyQ.Symbol)).Mul(buy)

	notional := buy.Mul(maxVol)
	totalFeesPct := buyFees.Add(sellFees).Add(transferFee).Div(notional).Mul(hundred)
	estimatedPct := priceDiffPct.Sub(totalFeesPct)
	if !estimatedPct.IsPositive() {
		return domain.Opportunity{}, false
	}

	return domain.Opportunity{
		ID:           uuid.New(),
		Kind:         kind,
		Timestamp:    p.Now,
		Symbol:       buyQ.Symbol,
		BuyExchange:  buyQ.Exchange,
		SellExchange: sellQ.Exchange,
		BuyPrice:     buy,
		SellPrice:    sell,
		PriceDiffPct: priceDiffPct,
		ProfitPct:    estimatedPct,
		MaxVolume:    maxVol,
		Fees: domain.FeeBreakdown{
			Buy:      buyFees,
			Sell:     sellFees,
			Transfer: transferFee,
			TotalPct: totalFeesPct,
		},
		Status: domain.StatusDetected,
	}, true
}

// directCandidates evaluates every unordered venue pair of the JPY view of
// one market. Both routes are tried; at most one survives because the
// profitable direction needs sell above buy.
func directCandidates(quotes []domain.Quote, p params) []domain.Opportunity {
	var out []domain.Opportunity
	for i := 0; i < len(quotes); i++ {
		for j := i + 1; j < len(quotes); j++ {
			if opp, ok := pairCandidate(domain.OpportunityDirect, quotes[i], quotes[j], p); ok {
				out = append(out, opp)
			}
			if opp, ok := pairCandidate(domain.OpportunityDirect, quotes[j], quotes[i], p); ok {
				out = append(out, opp)
			}
		}
	}
	return out
}
