package fx

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedSource(name string, rate string, calls *int) Source {
	return Source{
		Name: name,
		Fetch: func(ctx context.Context, client *http.Client) (decimal.Decimal, error) {
			if calls != nil {
				*calls++
			}
			return decimal.RequireFromString(rate), nil
		},
	}
}

func failingSource(name string, calls *int) Source {
	return Source{
		Name: name,
		Fetch: func(ctx context.Context, client *http.Client) (decimal.Decimal, error) {
			if calls != nil {
				*calls++
			}
			return decimal.Zero, fmt.Errorf("source down")
		},
	}
}

func TestGetRate_FirstSourceWins(t *testing.T) {
	var primary, secondary int
	svc := NewServiceWithSources(nil, []Source{
		fixedSource("primary", "151.25", &primary),
		fixedSource("secondary", "999", &secondary),
	})

	rate := svc.GetRate(context.Background(), USDJPY)
	assert.True(t, rate.Equal(decimal.RequireFromString("151.25")))
	assert.Equal(t, 1, primary)
	assert.Equal(t, 0, secondary, "ladder should stop at first success")
}

func TestGetRate_FallsThroughLadder(t *testing.T) {
	var failed, ok int
	svc := NewServiceWithSources(nil, []Source{
		failingSource("down", &failed),
		fixedSource("backup", "150", &ok),
	})

	rate := svc.GetRate(context.Background(), USDJPY)
	assert.True(t, rate.Equal(decimal.NewFromInt(150)))
	assert.Equal(t, 1, failed)
	assert.Equal(t, 1, ok)
}

func TestGetRate_HardFallbackWhenNeverCached(t *testing.T) {
	svc := NewServiceWithSources(nil, []Source{failingSource("down", nil)})

	rate := svc.GetRate(context.Background(), USDJPY)
	assert.True(t, rate.Equal(decimal.NewFromInt(155)), "expected the hard-coded fallback, got %s", rate)
}

func TestGetRate_CachedWithinInterval(t *testing.T) {
	var calls int
	svc := NewServiceWithSources(nil, []Source{fixedSource("primary", "152", &calls)})

	first := svc.GetRate(context.Background(), USDJPY)
	second := svc.GetRate(context.Background(), USDJPY)

	assert.True(t, first.Equal(second))
	assert.Equal(t, 1, calls, "second read inside the refresh interval must not hit the source")
}

func TestConversionRoundTrip(t *testing.T) {
	svc := NewServiceWithSources(nil, []Source{fixedSource("primary", "151.37", nil)})
	ctx := context.Background()

	amount := decimal.RequireFromString("12345.6789")
	back := svc.USDTToJPY(ctx, svc.JPYToUSDT(ctx, amount))

	diff := back.Sub(amount).Abs().Div(amount)
	require.True(t, diff.LessThan(decimal.RequireFromString("0.000001")),
		"round trip drifted by %s", diff)
}

func TestJPYToUSDT_ZeroRateGuard(t *testing.T) {
	svc := NewServiceWithSources(nil, []Source{fixedSource("primary", "0", nil)})
	// Zero from the source is rejected, so the hard fallback applies.
	out := svc.JPYToUSDT(context.Background(), decimal.NewFromInt(155))
	assert.True(t, out.Equal(decimal.NewFromInt(1)))
}
