package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbiscan/arbiscan/internal/domain"
	"github.com/arbiscan/arbiscan/internal/errs"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(sqlx.NewDb(db, "sqlmock")), mock
}

func TestUpsertExchange_ReturnsAndCachesID(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("INSERT INTO exchanges").
		WithArgs("bitflyer", "bitFlyer", "https://api.bitflyer.com", "",
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), true, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(3)))

	id, err := s.UpsertExchange(context.Background(), domain.Exchange{
		Code:       "bitflyer",
		Name:       "bitFlyer",
		APIBaseURL: "https://api.bitflyer.com",
		MakerFee:   decimal.RequireFromString("0.0015"),
		TakerFee:   decimal.RequireFromString("0.0015"),
		Active:     true,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), id)

	cached, ok := s.cachedExchangeID("bitflyer")
	assert.True(t, ok)
	assert.Equal(t, int64(3), cached)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsurePair_HitsDatabaseOnceThenCache(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("INSERT INTO currency_pairs").
		WithArgs("BTC/JPY", "BTC", "JPY").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

	first, err := s.EnsurePair(context.Background(), "BTC/JPY")
	require.NoError(t, err)
	second, err := s.EnsurePair(context.Background(), "BTC/JPY")
	require.NoError(t, err)

	assert.Equal(t, int64(7), first)
	assert.Equal(t, first, second)
	assert.NoError(t, mock.ExpectationsWereMet(), "second call must be served from cache")
}

func TestEnsurePair_RejectsNonCanonicalSymbol(t *testing.T) {
	s, _ := newMockStore(t)
	_, err := s.EnsurePair(context.Background(), "BTCJPY")
	assert.Error(t, err)
}

func TestInsertQuote_DropsInvalidTick(t *testing.T) {
	s, mock := newMockStore(t)

	err := s.InsertQuote(context.Background(), domain.Quote{
		Exchange:  "bitflyer",
		Symbol:    "BTC/JPY",
		Timestamp: time.Now(),
		Bid:       decimal.NewFromInt(100),
		Ask:       decimal.NewFromInt(99), // crossed book
	})
	assert.ErrorIs(t, err, errs.ErrMalformedQuote)
	assert.NoError(t, mock.ExpectationsWereMet(), "invalid tick must not reach the database")
}

func TestInsertQuote_WritesValidTick(t *testing.T) {
	s, mock := newMockStore(t)
	s.cacheExchangeID("bitflyer", 1)
	s.cachePairID("BTC/JPY", 2)

	mock.ExpectExec("INSERT INTO price_ticks").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.InsertQuote(context.Background(), domain.Quote{
		Exchange:  "bitflyer",
		Symbol:    "BTC/JPY",
		Timestamp: time.Now(),
		Bid:       decimal.RequireFromString("10000000"),
		Ask:       decimal.RequireFromString("10000500"),
		BidSize:   decimal.RequireFromString("0.4"),
		AskSize:   decimal.RequireFromString("0.2"),
		Kind:      domain.KindNativeJPY,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestPerExchange_MapsRows(t *testing.T) {
	s, mock := newMockStore(t)
	s.cachePairID("BTC/JPY", 2)

	now := time.Now().UTC()
	cols := []string{"code", "symbol", "ts", "bid", "ask", "bid_size", "ask_size",
		"last_price", "volume_24h", "kind", "fx_rate", "original_bid", "original_ask"}
	mock.ExpectQuery("SELECT DISTINCT ON").
		WithArgs(int64(2), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("bitflyer", "BTC/JPY", now, "10000000", "10000500", "0.4", "0.2",
				nil, nil, "native_jpy", nil, nil, nil).
			AddRow("binance", "BTC/JPY", now, "10050000", "10050300", "1.1", "0.9",
				nil, nil, "converted_jpy", "151.2", "66468.25", "66470.24"))

	quotes, err := s.LatestPerExchange(context.Background(), "BTC/JPY", now.Add(-5*time.Minute))
	require.NoError(t, err)
	require.Len(t, quotes, 2)

	assert.Equal(t, "bitflyer", quotes[0].Exchange)
	assert.Equal(t, domain.KindNativeJPY, quotes[0].Kind)
	assert.Equal(t, domain.KindConvertedJPY, quotes[1].Kind)
	assert.True(t, quotes[1].FXRate.Equal(decimal.RequireFromString("151.2")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertOpportunity_And_MarkNotified(t *testing.T) {
	s, mock := newMockStore(t)
	s.cacheExchangeID("bitflyer", 1)
	s.cacheExchangeID("coincheck", 2)
	s.cachePairID("BTC/JPY", 3)

	id := uuid.New()
	mock.ExpectExec("INSERT INTO arbitrage_opportunities").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE arbitrage_opportunities SET status").
		WithArgs(domain.StatusNotified, id).
		WillReturnResult(sqlmock.NewResult(0, 1))

	opp := domain.Opportunity{
		ID:           id,
		Kind:         domain.OpportunityDirect,
		Timestamp:    time.Now(),
		Symbol:       "BTC/JPY",
		BuyExchange:  "bitflyer",
		SellExchange: "coincheck",
		BuyPrice:     decimal.RequireFromString("10000000"),
		SellPrice:    decimal.RequireFromString("10050000"),
		PriceDiffPct: decimal.RequireFromString("0.5"),
		ProfitPct:    decimal.RequireFromString("0.2"),
		MaxVolume:    decimal.RequireFromString("0.1"),
		Status:       domain.StatusDetected,
	}
	require.NoError(t, s.InsertOpportunity(context.Background(), opp))
	require.NoError(t, s.MarkNotified(context.Background(), id))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecentOpportunities_OrderedByProfit(t *testing.T) {
	s, mock := newMockStore(t)

	now := time.Now().UTC()
	cols := []string{"id", "kind", "ts", "symbol", "buy_code", "sell_code",
		"buy_price", "sell_price", "price_diff_pct", "estimated_profit_pct",
		"max_profitable_volume", "buy_fees", "sell_fees", "transfer_fee",
		"total_fees_pct", "status", "skip_reason"}
	mock.ExpectQuery("SELECT o.id, o.kind").
		WithArgs(sqlmock.AnyArg(), 50).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(uuid.New(), "direct", now, "BTC/JPY", "bitflyer", "coincheck",
				"10000000", "10050000", "0.5", "0.21", "0.1", "15000", "15075", "450", "0.29", "notified", nil))

	opps, err := s.RecentOpportunities(context.Background(), now.Add(-time.Hour), 0)
	require.NoError(t, err)
	require.Len(t, opps, 1)
	assert.Equal(t, "BTC/JPY:bitflyer->coincheck", opps[0].Route())
	assert.Equal(t, domain.StatusNotified, opps[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetConfigValue_MissingKeyReturnsFalse(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT value FROM system_config").
		WithArgs("min_profit_threshold").
		WillReturnRows(sqlmock.NewRows([]string{"value"}))

	var out string
	found, err := s.GetConfigValue(context.Background(), "min_profit_threshold", &out)
	require.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetup_RunsEveryStatement(t *testing.T) {
	s, mock := newMockStore(t)
	for range schema {
		mock.ExpectExec("CREATE").WillReturnResult(sqlmock.NewResult(0, 0))
	}
	require.NoError(t, s.Setup(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
