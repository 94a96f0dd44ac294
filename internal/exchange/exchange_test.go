package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbiscan/arbiscan/internal/config"
	"github.com/arbiscan/arbiscan/internal/domain"
	"github.com/arbiscan/arbiscan/internal/errs"
)

type fixedFX struct{ rate string }

func (f fixedFX) GetRate(ctx context.Context, pair string) decimal.Decimal {
	return decimal.RequireFromString(f.rate)
}

func venueFor(srv *httptest.Server) config.Venue {
	return config.Venue{
		Enabled:        true,
		API:            config.API{BaseURL: srv.URL, PrivateURL: srv.URL},
		SupportedPairs: []string{"BTC/JPY"},
	}
}

func TestBitflyer_Quotes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/ticker", r.URL.Path)
		assert.Equal(t, "BTC_JPY", r.URL.Query().Get("product_code"))
		w.Write([]byte(`{
			"product_code": "BTC_JPY",
			"timestamp": "2026-08-01T12:00:00.123",
			"best_bid": 10000000,
			"best_ask": 10000500,
			"best_bid_size": 0.4,
			"best_ask_size": 0.2,
			"ltp": 10000200,
			"volume": 1234.5
		}`))
	}))
	defer srv.Close()

	client := NewBitflyer(venueFor(srv), config.Credentials{})
	quotes, err := client.Quotes(context.Background(), "BTC/JPY")
	require.NoError(t, err)
	require.Len(t, quotes, 1)

	q := quotes[0]
	assert.Equal(t, "bitflyer", q.Exchange)
	assert.Equal(t, domain.KindNativeJPY, q.Kind)
	assert.True(t, q.Bid.Equal(decimal.NewFromInt(10000000)))
	assert.True(t, q.Ask.Equal(decimal.NewFromInt(10000500)))
	assert.Equal(t, 2026, q.Timestamp.Year())
}

func TestBitbank_Quotes_SwapsBuySell(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/btc_jpy/ticker", r.URL.Path)
		w.Write([]byte(`{"success":1,"data":{"sell":"10001000","buy":"10000000","last":"10000500","vol":"99.5","timestamp":1754049600000}}`))
	}))
	defer srv.Close()

	client := NewBitbank(venueFor(srv), config.Credentials{})
	quotes, err := client.Quotes(context.Background(), "BTC/JPY")
	require.NoError(t, err)
	require.Len(t, quotes, 1)

	assert.True(t, quotes[0].Bid.Equal(decimal.NewFromInt(10000000)), "buy side is the bid")
	assert.True(t, quotes[0].Ask.Equal(decimal.NewFromInt(10001000)), "sell side is the ask")
}

func TestBitbank_ErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":0,"data":{"code":10000}}`))
	}))
	defer srv.Close()

	client := NewBitbank(venueFor(srv), config.Credentials{})
	_, err := client.Quotes(context.Background(), "BTC/JPY")
	assert.ErrorContains(t, err, "10000")
}

func TestCoincheck_QuotesMirrorLast(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/ticker", r.URL.Path)
		w.Write([]byte(`{"last":10000300,"bid":9999000,"ask":10002000,"volume":"432.1","timestamp":1754049600}`))
	}))
	defer srv.Close()

	client := NewCoincheck(venueFor(srv), config.Credentials{})
	quotes, err := client.Quotes(context.Background(), "BTC/JPY")
	require.NoError(t, err)
	require.Len(t, quotes, 1)

	last := decimal.NewFromInt(10000300)
	assert.True(t, quotes[0].Bid.Equal(last))
	assert.True(t, quotes[0].Ask.Equal(last))
}

func TestCoincheck_RejectsOtherPairs(t *testing.T) {
	client := NewCoincheck(config.Venue{API: config.API{BaseURL: "http://unused"}}, config.Credentials{})
	_, err := client.Quotes(context.Background(), "ETH/JPY")
	assert.ErrorIs(t, err, errs.ErrUnsupported)
}

func TestGMO_Quotes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/ticker", r.URL.Path)
		assert.Equal(t, "BTC_JPY", r.URL.Query().Get("symbol"))
		w.Write([]byte(`{"status":0,"data":[{"symbol":"BTC_JPY","ask":"10000600","bid":"10000100","last":"10000400","volume":"321.9","timestamp":"2026-08-01T12:00:00.000Z"}]}`))
	}))
	defer srv.Close()

	client := NewGMO(venueFor(srv), config.Credentials{})
	quotes, err := client.Quotes(context.Background(), "BTC/JPY")
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.True(t, quotes[0].Bid.Equal(decimal.NewFromInt(10000100)))
}

func TestGMO_ErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":5,"data":null,"messages":[{"message_string":"maintenance"}]}`))
	}))
	defer srv.Close()

	client := NewGMO(venueFor(srv), config.Credentials{})
	_, err := client.Quotes(context.Background(), "BTC/JPY")
	assert.ErrorContains(t, err, "maintenance")
}

func TestBybit_QuotesYieldConvertedAndUSDViews(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		w.Write([]byte(`{"retCode":0,"retMsg":"OK","result":{"list":[{"symbol":"BTCUSDT","bid1Price":"66000","bid1Size":"1.5","ask1Price":"66010","ask1Size":"0.8","lastPrice":"66005","volume24h":"5000"}]}}`))
	}))
	defer srv.Close()

	client := NewBybit(venueFor(srv), config.Credentials{}, fixedFX{rate: "150"})
	quotes, err := client.Quotes(context.Background(), "BTC/JPY")
	require.NoError(t, err)
	require.Len(t, quotes, 2)

	jpy, usd := quotes[0], quotes[1]
	assert.Equal(t, domain.KindConvertedJPY, jpy.Kind)
	assert.Equal(t, "BTC/JPY", jpy.Symbol)
	assert.True(t, jpy.Bid.Equal(decimal.NewFromInt(9900000)), "66000 * 150")
	assert.True(t, jpy.FXRate.Equal(decimal.NewFromInt(150)))
	assert.True(t, jpy.OriginalBid.Equal(decimal.NewFromInt(66000)))

	assert.Equal(t, domain.KindUSD, usd.Kind)
	assert.Equal(t, "BTC/USD", usd.Symbol)
	assert.True(t, usd.Bid.Equal(decimal.NewFromInt(66000)))
}

func TestBinance_QuotesYieldThreeViews(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v3/exchangeInfo":
			w.Write([]byte(`{"symbols":[{"symbol":"BTCJPY","status":"TRADING"},{"symbol":"BTCUSDT","status":"TRADING"}]}`))
		case "/api/v3/ticker/bookTicker":
			if r.URL.Query().Get("symbol") == "BTCJPY" {
				w.Write([]byte(`{"symbol":"BTCJPY","bidPrice":"9950000","bidQty":"0.5","askPrice":"9951000","askQty":"0.3"}`))
			} else {
				w.Write([]byte(`{"symbol":"BTCUSDT","bidPrice":"66000","bidQty":"1.2","askPrice":"66010","askQty":"0.7"}`))
			}
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	client := NewBinance(venueFor(srv), config.Credentials{}, fixedFX{rate: "150"})
	quotes, err := client.Quotes(context.Background(), "BTC/JPY")
	require.NoError(t, err)
	require.Len(t, quotes, 3)

	assert.Equal(t, domain.KindNativeJPY, quotes[0].Kind)
	assert.Equal(t, domain.KindConvertedJPY, quotes[1].Kind)
	assert.Equal(t, domain.KindUSD, quotes[2].Kind)
	assert.True(t, quotes[1].Bid.Equal(decimal.NewFromInt(9900000)))
}

func TestBinance_SkipsUnlistedNativeMarket(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v3/exchangeInfo":
			w.Write([]byte(`{"symbols":[{"symbol":"ETHUSDT","status":"TRADING"}]}`))
		case "/api/v3/ticker/bookTicker":
			w.Write([]byte(`{"symbol":"ETHUSDT","bidPrice":"3000","bidQty":"10","askPrice":"3001","askQty":"8"}`))
		}
	}))
	defer srv.Close()

	client := NewBinance(venueFor(srv), config.Credentials{}, fixedFX{rate: "150"})
	quotes, err := client.Quotes(context.Background(), "ETH/JPY")
	require.NoError(t, err)
	require.Len(t, quotes, 2, "no native JPY market, so converted + usd only")
}

func TestRESTClient_RateLimitedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewBitflyer(venueFor(srv), config.Credentials{})
	_, err := client.Quotes(context.Background(), "BTC/JPY")
	assert.ErrorIs(t, err, errs.ErrRateLimited)
}

func TestRESTClient_BacksOffForRetryAfter(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Retry-After", "2")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewBitflyer(venueFor(srv), config.Credentials{})
	_, err := client.Quotes(context.Background(), "BTC/JPY")
	assert.ErrorIs(t, err, errs.ErrRateLimited)

	// The advertised window has not passed, so the next call must fail
	// locally without reaching the venue.
	_, err = client.Quotes(context.Background(), "BTC/JPY")
	assert.ErrorIs(t, err, errs.ErrRateLimited)
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))
}

func TestBinance_DropsUnlistedPairForSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v3/exchangeInfo":
			w.Write([]byte(`{"symbols":[{"symbol":"BTCJPY","status":"TRADING"},{"symbol":"BTCUSDT","status":"TRADING"}]}`))
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	venue := venueFor(srv)
	venue.SupportedPairs = []string{"BTC/JPY", "DOGE/JPY"}
	client := NewBinance(venue, config.Credentials{}, fixedFX{rate: "150"})

	quotes, err := client.Quotes(context.Background(), "DOGE/JPY")
	require.NoError(t, err)
	assert.Empty(t, quotes)
	assert.Equal(t, []string{"BTC/JPY"}, client.SupportedPairs(), "unlisted pair pruned for the session")
}

func TestRESTClient_ServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewBitflyer(venueFor(srv), config.Credentials{})
	_, err := client.Quotes(context.Background(), "BTC/JPY")
	assert.ErrorIs(t, err, errs.ErrTransientNetwork)
}

func TestBalances_RequireCredentials(t *testing.T) {
	for _, client := range []Client{
		NewBitflyer(config.Venue{}, config.Credentials{}),
		NewBitbank(config.Venue{}, config.Credentials{}),
		NewCoincheck(config.Venue{}, config.Credentials{}),
		NewGMO(config.Venue{}, config.Credentials{}),
		NewBybit(config.Venue{}, config.Credentials{}, fixedFX{rate: "150"}),
		NewBinance(config.Venue{}, config.Credentials{}, fixedFX{rate: "150"}),
	} {
		_, err := client.Balances(context.Background())
		assert.ErrorIs(t, err, errs.ErrCredentialsMissing, client.Code())
	}
}

func TestBitflyer_BalanceSignatureHeaders(t *testing.T) {
	var gotKey, gotSign, gotTS string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("ACCESS-KEY")
		gotSign = r.Header.Get("ACCESS-SIGN")
		gotTS = r.Header.Get("ACCESS-TIMESTAMP")
		w.Write([]byte(`[{"currency_code":"BTC","amount":"1.5","available":"1.0"}]`))
	}))
	defer srv.Close()

	client := NewBitflyer(venueFor(srv), config.Credentials{Key: "key", Secret: "secret"})
	client.now = func() time.Time { return time.Unix(1754049600, 0) }

	balances, err := client.Balances(context.Background())
	require.NoError(t, err)
	require.Len(t, balances, 1)

	assert.Equal(t, "key", gotKey)
	assert.Equal(t, "1754049600", gotTS)
	assert.Equal(t, signHMAC("secret", "1754049600GET/v1/me/getbalance"), gotSign)
	assert.True(t, balances[0].Locked.Equal(decimal.RequireFromString("0.5")))
}

func TestBuild_UnknownVenueFails(t *testing.T) {
	cfg := &config.File{Exchanges: map[string]config.Venue{
		"kraken": {Enabled: true, API: config.API{BaseURL: "http://example"}},
	}}
	_, err := Build(cfg, fixedFX{rate: "150"})
	assert.ErrorContains(t, err, "kraken")
}

func TestCanonicalSymbolRoundTrip(t *testing.T) {
	for _, venueForm := range []string{"btc_jpy", "BTC_JPY", "BTC-JPY", "BTCJPY"} {
		assert.Equal(t, "BTC/JPY", domain.CanonicalizeSymbol(venueForm), venueForm)
	}
	assert.Equal(t, "BTC_JPY", bitflyerProduct("BTC/JPY"))
	assert.Equal(t, "btc_jpy", bitbankPair("BTC/JPY"))
	assert.Equal(t, "BTCUSDT", usdtMarket("BTC/JPY"))
	assert.Equal(t, "BTCJPY", binanceMarket("BTC/JPY"))
}
