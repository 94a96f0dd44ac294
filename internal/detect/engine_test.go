package detect

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbiscan/arbiscan/internal/domain"
)

var testNow = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func venueWithFees(code, takerFee string, withdrawal map[string]string) domain.Exchange {
	fees := map[string]decimal.Decimal{}
	for asset, fee := range withdrawal {
		fees[asset] = decimal.RequireFromString(fee)
	}
	return domain.Exchange{
		Code:           code,
		TakerFee:       decimal.RequireFromString(takerFee),
		WithdrawalFees: fees,
		Active:         true,
	}
}

func jpyQuote(exchange, bid, ask string, size string) domain.Quote {
	return domain.Quote{
		Exchange:  exchange,
		Symbol:    "BTC/JPY",
		Timestamp: testNow,
		Bid:       decimal.RequireFromString(bid),
		Ask:       decimal.RequireFromString(ask),
		BidSize:   decimal.RequireFromString(size),
		AskSize:   decimal.RequireFromString(size),
		Kind:      domain.KindNativeJPY,
	}
}

func baseParams(venues ...domain.Exchange) params {
	m := make(map[string]domain.Exchange, len(venues))
	for _, v := range venues {
		m[v.Code] = v
	}
	return params{
		Venues:    m,
		Caps:      PositionCaps{},
		Threshold: decimal.RequireFromString("0.3"),
		Now:       testNow,
	}
}

func TestDirect_ClearOpportunity(t *testing.T) {
	p := baseParams(
		venueWithFees("a", "0.001", nil),
		venueWithFees("b", "0.001", nil),
	)
	quotes := []domain.Quote{
		jpyQuote("a", "9999000", "10000000", "1.0"),
		jpyQuote("b", "10050000", "10051000", "1.0"),
	}

	opps := directCandidates(quotes, p)
	require.Len(t, opps, 1)

	opp := opps[0]
	assert.Equal(t, "a", opp.BuyExchange)
	assert.Equal(t, "b", opp.SellExchange)
	assert.True(t, opp.PriceDiffPct.Equal(decimal.RequireFromString("0.5")),
		"got %s", opp.PriceDiffPct)
	// 0.50% spread less 0.2005% round-trip fees.
	assert.True(t, opp.ProfitPct.Sub(decimal.RequireFromString("0.2995")).Abs().
		LessThan(decimal.RequireFromString("0.0001")), "got %s", opp.ProfitPct)
	assert.True(t, opp.MaxVolume.Equal(decimal.RequireFromString("0.1")),
		"BTC position cap bounds the volume, got %s", opp.MaxVolume)
}

func TestDirect_EatenByFees(t *testing.T) {
	p := baseParams(
		venueWithFees("a", "0.003", nil),
		venueWithFees("b", "0.003", nil),
	)
	quotes := []domain.Quote{
		jpyQuote("a", "9999000", "10000000", "1.0"),
		jpyQuote("b", "10050000", "10051000", "1.0"),
	}

	assert.Empty(t, directCandidates(quotes, p))
}

func TestDirect_TransferFeeCountsAgainstProfit(t *testing.T) {
	noFee := baseParams(
		venueWithFees("a", "0.001", nil),
		venueWithFees("b", "0.001", nil),
	)
	withFee := baseParams(
		venueWithFees("a", "0.001", map[string]string{"BTC": "0.0004"}),
		venueWithFees("b", "0.001", nil),
	)
	quotes := []domain.Quote{
		jpyQuote("a", "9999000", "10000000", "1.0"),
		jpyQuote("b", "10050000", "10051000", "1.0"),
	}

	base := directCandidates(quotes, noFee)
	taxed := directCandidates(quotes, withFee)
	require.Len(t, base, 1)
	require.Len(t, taxed, 1)
	assert.True(t, taxed[0].ProfitPct.LessThan(base[0].ProfitPct))
	assert.True(t, taxed[0].Fees.Transfer.IsPositive())
}

func TestDirect_BelowThresholdEmitsNothing(t *testing.T) {
	p := baseParams(
		venueWithFees("a", "0", nil),
		venueWithFees("b", "0", nil),
	)
	// 0.2% spread, threshold 0.3%.
	quotes := []domain.Quote{
		jpyQuote("a", "9999000", "10000000", "1.0"),
		jpyQuote("b", "10020000", "10021000", "1.0"),
	}

	assert.Empty(t, directCandidates(quotes, p))
}

func TestPairCandidate_SelfArbitrageDiscarded(t *testing.T) {
	p := baseParams(venueWithFees("a", "0", nil))
	buy := jpyQuote("a", "9999000", "10000000", "1.0")
	sell := jpyQuote("a", "10050000", "10051000", "1.0")

	_, ok := pairCandidate(domain.OpportunityDirect, buy, sell, p)
	assert.False(t, ok)
}

func TestPairCandidate_ZeroPriceDiscarded(t *testing.T) {
	p := baseParams(venueWithFees("a", "0", nil), venueWithFees("b", "0", nil))
	buy := jpyQuote("a", "0", "0", "1.0")
	buy.Bid, buy.Ask = decimal.Zero, decimal.Zero
	sell := jpyQuote("b", "10050000", "10051000", "1.0")

	_, ok := pairCandidate(domain.OpportunityDirect, buy, sell, p)
	assert.False(t, ok)
}

func TestPairCandidate_ZeroSizesFallBackToCap(t *testing.T) {
	p := baseParams(venueWithFees("a", "0.001", nil), venueWithFees("b", "0.001", nil))
	buy := jpyQuote("a", "9999000", "10000000", "0")
	sell := jpyQuote("b", "10050000", "10051000", "0")

	opp, ok := pairCandidate(domain.OpportunityDirect, buy, sell, p)
	require.True(t, ok, "sizeless books are modeled at the position cap")
	assert.True(t, opp.MaxVolume.Equal(decimal.RequireFromString("0.1")))
}

func TestCrossRate_OnlyPairsAcrossKinds(t *testing.T) {
	p := baseParams(
		venueWithFees("bitflyer", "0.001", nil),
		venueWithFees("bybit", "0.001", nil),
	)
	p.Threshold = decimal.RequireFromString("0.1")

	converted := jpyQuote("bybit", "10040000", "10041000", "1.0")
	converted.Kind = domain.KindConvertedJPY
	quotes := []domain.Quote{
		jpyQuote("bitflyer", "10070000", "10071000", "1.0"), // domestic richer
		converted,
	}

	opps := crossRateCandidates(quotes, p)
	require.Len(t, opps, 1)
	assert.Equal(t, domain.OpportunityCrossRate, opps[0].Kind)
	assert.Equal(t, "bybit", opps[0].BuyExchange, "buy the implied-FX leg")
	assert.Equal(t, "bitflyer", opps[0].SellExchange)
}

func TestUSD_RestrictedToInternationalVenues(t *testing.T) {
	p := baseParams(
		venueWithFees("binance", "0.001", nil),
		venueWithFees("bybit", "0.001", nil),
		venueWithFees("bitflyer", "0.001", nil),
	)
	usd := func(exchange, bid, ask string) domain.Quote {
		q := jpyQuote(exchange, bid, ask, "1.0")
		q.Symbol = "BTC/USD"
		q.Kind = domain.KindUSD
		return q
	}
	quotes := []domain.Quote{
		usd("binance", "66000", "66010"),
		usd("bybit", "66350", "66360"),
		usd("bitflyer", "99999", "100000"), // wrong kind of venue, ignored
	}

	opps := usdCandidates(quotes, p)
	require.Len(t, opps, 1)
	assert.Equal(t, domain.OpportunityUSD, opps[0].Kind)
	assert.Equal(t, "binance", opps[0].BuyExchange)
	assert.Equal(t, "bybit", opps[0].SellExchange)
}

type fakeStore struct {
	pairs     []domain.CurrencyPair
	venues    []domain.Exchange
	quotes    map[string][]domain.Quote
	inserted  []domain.Opportunity
	capConfig map[string]decimal.Decimal
}

func (f *fakeStore) ListActivePairs(ctx context.Context) ([]domain.CurrencyPair, error) {
	return f.pairs, nil
}

func (f *fakeStore) ListExchanges(ctx context.Context, activeOnly bool) ([]domain.Exchange, error) {
	return f.venues, nil
}

func (f *fakeStore) LatestPerExchange(ctx context.Context, symbol string, since time.Time) ([]domain.Quote, error) {
	return f.quotes[symbol], nil
}

func (f *fakeStore) InsertOpportunity(ctx context.Context, o domain.Opportunity) error {
	f.inserted = append(f.inserted, o)
	return nil
}

func (f *fakeStore) GetConfigValue(ctx context.Context, key string, out interface{}) (bool, error) {
	if key == "position_caps" && f.capConfig != nil {
		*(out.(*map[string]decimal.Decimal)) = f.capConfig
		return true, nil
	}
	return false, nil
}

type captureSink struct {
	offered []domain.Opportunity
}

func (c *captureSink) Offer(ctx context.Context, opps []domain.Opportunity) {
	c.offered = append(c.offered, opps...)
}

func TestCycle_PersistsSortedAndForwards(t *testing.T) {
	store := &fakeStore{
		pairs: []domain.CurrencyPair{
			{Symbol: "BTC/JPY", Active: true},
			{Symbol: "ETH/JPY", Active: true},
		},
		venues: []domain.Exchange{
			venueWithFees("a", "0.001", nil),
			venueWithFees("b", "0.001", nil),
		},
		quotes: map[string][]domain.Quote{
			"BTC/JPY": {
				jpyQuote("a", "9999000", "10000000", "1.0"),
				jpyQuote("b", "10050000", "10051000", "1.0"),
			},
			"ETH/JPY": {
				func() domain.Quote {
					q := jpyQuote("a", "499000", "500000", "10")
					q.Symbol = "ETH/JPY"
					return q
				}(),
				func() domain.Quote {
					q := jpyQuote("b", "510000", "511000", "10")
					q.Symbol = "ETH/JPY"
					return q
				}(),
			},
		},
	}
	sink := &captureSink{}
	engine := New(store, sink, WithClock(func() time.Time { return testNow }))

	opps, err := engine.Cycle(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, opps)

	for i := 1; i < len(opps); i++ {
		assert.True(t, opps[i-1].ProfitPct.GreaterThanOrEqual(opps[i].ProfitPct),
			"results must be sorted by profit descending")
	}
	assert.Len(t, store.inserted, len(opps))
	assert.Len(t, sink.offered, len(opps))
	for _, opp := range store.inserted {
		assert.Equal(t, domain.StatusDetected, opp.Status)
	}
}

func TestCycle_StaleLegExcluded(t *testing.T) {
	stale := jpyQuote("b", "10050000", "10051000", "1.0")
	stale.Timestamp = testNow.Add(-10 * time.Minute)

	store := &fakeStore{
		pairs:  []domain.CurrencyPair{{Symbol: "BTC/JPY", Active: true}},
		venues: []domain.Exchange{venueWithFees("a", "0.001", nil), venueWithFees("b", "0.001", nil)},
		quotes: map[string][]domain.Quote{
			"BTC/JPY": {jpyQuote("a", "9999000", "10000000", "1.0"), stale},
		},
	}
	engine := New(store, nil, WithClock(func() time.Time { return testNow }))

	opps, err := engine.Cycle(context.Background())
	require.NoError(t, err)
	assert.Empty(t, opps, "a stale leg leaves fewer than two fresh quotes")
	assert.Empty(t, store.inserted)
}

func TestCycle_PositionCapOverrideFromConfig(t *testing.T) {
	store := &fakeStore{
		pairs:  []domain.CurrencyPair{{Symbol: "BTC/JPY", Active: true}},
		venues: []domain.Exchange{venueWithFees("a", "0.001", nil), venueWithFees("b", "0.001", nil)},
		quotes: map[string][]domain.Quote{
			"BTC/JPY": {
				jpyQuote("a", "9999000", "10000000", "1.0"),
				jpyQuote("b", "10050000", "10051000", "1.0"),
			},
		},
		capConfig: map[string]decimal.Decimal{"BTC": decimal.RequireFromString("0.05")},
	}
	engine := New(store, nil, WithClock(func() time.Time { return testNow }))

	opps, err := engine.Cycle(context.Background())
	require.NoError(t, err)
	require.Len(t, opps, 1)
	assert.True(t, opps[0].MaxVolume.Equal(decimal.RequireFromString("0.05")))
}
