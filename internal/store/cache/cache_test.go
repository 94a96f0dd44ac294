package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbiscan/arbiscan/internal/domain"
)

func sampleQuote() domain.Quote {
	return domain.Quote{
		Exchange:  "bitflyer",
		Symbol:    "BTC/JPY",
		Timestamp: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		Bid:       decimal.RequireFromString("10000000"),
		Ask:       decimal.RequireFromString("10000500"),
		Kind:      domain.KindNativeJPY,
	}
}

func TestPut_WritesHashFieldWithTTL(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	c := New(rdb)

	q := sampleQuote()
	payload, err := json.Marshal(q)
	require.NoError(t, err)

	mock.ExpectTxPipeline()
	mock.ExpectHSet("ticks:BTC/JPY", "bitflyer", payload).SetVal(1)
	mock.ExpectExpire("ticks:BTC/JPY", TTL).SetVal(true)
	mock.ExpectTxPipelineExec()

	c.Put(context.Background(), q)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLatest_DecodesPerVenueFields(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	c := New(rdb)

	q := sampleQuote()
	payload, err := json.Marshal(q)
	require.NoError(t, err)

	mock.ExpectHGetAll("ticks:BTC/JPY").SetVal(map[string]string{
		"bitflyer": string(payload),
		"broken":   "{not json",
	})

	quotes, err := c.Latest(context.Background(), "BTC/JPY")
	require.NoError(t, err)
	require.Len(t, quotes, 1, "corrupt entries are skipped")
	assert.Equal(t, "bitflyer", quotes[0].Exchange)
	assert.True(t, quotes[0].Bid.Equal(q.Bid))
}
