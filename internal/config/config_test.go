package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbiscan/arbiscan/internal/errs"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "exchanges.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_ParsesVenues(t *testing.T) {
	path := writeConfig(t, `
exchanges:
  bitflyer:
    enabled: true
    name: bitFlyer
    api:
      base_url: https://api.bitflyer.com
    maker_fee: "0.0015"
    taker_fee: 0.0015
    withdrawal_fees:
      BTC: "0.0004"
    supported_pairs: [BTC_JPY]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	venue, ok := cfg.Exchanges["bitflyer"]
	require.True(t, ok)
	assert.True(t, venue.Enabled)
	// Quoted and bare YAML scalars must decode identically, without a
	// float round trip.
	assert.True(t, venue.MakerFee.Equal(decimal.RequireFromString("0.0015")))
	assert.True(t, venue.TakerFee.Equal(venue.MakerFee.Decimal))
	assert.True(t, venue.WithdrawalFeeMap()["BTC"].Equal(decimal.RequireFromString("0.0004")))
}

func TestLoad_MissingFileIsConfigInvalid(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorIs(t, err, errs.ErrConfigInvalid)
}

func TestLoad_EmptyRegistryIsConfigInvalid(t *testing.T) {
	path := writeConfig(t, "exchanges: {}\n")
	_, err := Load(path)
	assert.ErrorIs(t, err, errs.ErrConfigInvalid)
}

func TestLoad_MissingBaseURLDisablesVenue(t *testing.T) {
	path := writeConfig(t, `
exchanges:
  bitflyer:
    enabled: true
    name: bitFlyer
  gmo:
    enabled: true
    name: GMO Coin
    api:
      base_url: https://api.coin.z.com/public
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.False(t, cfg.Exchanges["bitflyer"].Enabled)
	assert.Equal(t, []string{"gmo"}, cfg.EnabledVenues())
}

func TestVenueCredentials(t *testing.T) {
	t.Setenv("BITFLYER_API_KEY", "key")
	t.Setenv("BITFLYER_API_SECRET", "secret")

	creds := VenueCredentials("bitflyer")
	assert.True(t, creds.Present())

	assert.False(t, VenueCredentials("gmo").Present())
}
