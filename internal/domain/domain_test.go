package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validQuote() Quote {
	return Quote{
		Exchange:  "bitflyer",
		Symbol:    "BTC/JPY",
		Timestamp: time.Now(),
		Bid:       decimal.RequireFromString("10000000"),
		Ask:       decimal.RequireFromString("10000500"),
		Kind:      KindNativeJPY,
	}
}

func TestQuoteValidate(t *testing.T) {
	now := time.Now()

	assert.NoError(t, validQuote().Validate(now))

	crossed := validQuote()
	crossed.Ask = decimal.RequireFromString("9999999")
	assert.Error(t, crossed.Validate(now), "ask below bid")

	zero := validQuote()
	zero.Bid = decimal.Zero
	assert.Error(t, zero.Validate(now), "zero bid")

	future := validQuote()
	future.Timestamp = now.Add(5 * time.Minute)
	assert.Error(t, future.Validate(now), "timestamp past skew tolerance")

	slightSkew := validQuote()
	slightSkew.Timestamp = now.Add(30 * time.Second)
	assert.NoError(t, slightSkew.Validate(now), "within skew tolerance")
}

func TestOrderbookAveragePrice(t *testing.T) {
	ob := Orderbook{
		Asks: []BookLevel{
			{Price: decimal.NewFromInt(100), Size: decimal.NewFromInt(1)},
			{Price: decimal.NewFromInt(110), Size: decimal.NewFromInt(1)},
		},
		Bids: []BookLevel{
			{Price: decimal.NewFromInt(95), Size: decimal.NewFromInt(2)},
		},
	}

	avg, ok := ob.AveragePrice("buy", decimal.NewFromInt(2))
	require.True(t, ok)
	assert.True(t, avg.Equal(decimal.NewFromInt(105)), "got %s", avg)

	avg, ok = ob.AveragePrice("sell", decimal.NewFromInt(1))
	require.True(t, ok)
	assert.True(t, avg.Equal(decimal.NewFromInt(95)))

	_, ok = ob.AveragePrice("buy", decimal.NewFromInt(5))
	assert.False(t, ok, "book too thin")

	_, ok = ob.AveragePrice("buy", decimal.Zero)
	assert.False(t, ok, "zero volume")
}

func TestCanonicalizeSymbol(t *testing.T) {
	cases := map[string]string{
		"btc_jpy":  "BTC/JPY",
		"BTC-JPY":  "BTC/JPY",
		"BTCJPY":   "BTC/JPY",
		"BTCUSDT":  "BTC/USDT",
		"ethusdc":  "ETH/USDC",
		"BTC/JPY":  "BTC/JPY",
		" xrp_jpy": "XRP/JPY",
	}
	for in, want := range cases {
		assert.Equal(t, want, CanonicalizeSymbol(in), in)
	}
}

func TestSplitJoinSymbol(t *testing.T) {
	base, quote, err := SplitSymbol("BTC/JPY")
	require.NoError(t, err)
	assert.Equal(t, "BTC", base)
	assert.Equal(t, "JPY", quote)
	assert.Equal(t, "BTC/JPY", JoinSymbol(base, quote))

	_, _, err = SplitSymbol("BTCJPY")
	assert.Error(t, err)
}

func TestOpportunityRouteAndProfit(t *testing.T) {
	o := Opportunity{
		Symbol:       "BTC/JPY",
		BuyExchange:  "bitflyer",
		SellExchange: "coincheck",
		BuyPrice:     decimal.NewFromInt(10000000),
		MaxVolume:    decimal.RequireFromString("0.1"),
		ProfitPct:    decimal.RequireFromString("0.3"),
	}
	assert.Equal(t, "BTC/JPY:bitflyer->coincheck", o.Route())
	assert.True(t, o.ProfitAmount().Equal(decimal.NewFromInt(3000)), "got %s", o.ProfitAmount())
}

func TestExchangeWithdrawalFee(t *testing.T) {
	ex := Exchange{WithdrawalFees: map[string]decimal.Decimal{
		"BTC": decimal.RequireFromString("0.0004"),
	}}
	assert.True(t, ex.WithdrawalFee("BTC").Equal(decimal.RequireFromString("0.0004")))
	assert.True(t, ex.WithdrawalFee("ETH").IsZero())
}
