// Package config loads the venue configuration file and process
// environment.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/arbiscan/arbiscan/internal/errs"
)

// Decimal wraps shopspring decimal so YAML scalars (quoted or bare) decode
// without passing through binary floats.
type Decimal struct {
	decimal.Decimal
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Decimal) UnmarshalYAML(value *yaml.Node) error {
	if value.Value == "" {
		d.Decimal = decimal.Zero
		return nil
	}
	parsed, err := decimal.NewFromString(value.Value)
	if err != nil {
		return fmt.Errorf("decimal %q: %w", value.Value, err)
	}
	d.Decimal = parsed
	return nil
}

// API holds a venue's endpoint URLs.
type API struct {
	BaseURL    string `yaml:"base_url"`
	PrivateURL string `yaml:"private_url"`
	WSURL      string `yaml:"ws_url"`
}

// Venue is one entry of exchanges.yaml.
type Venue struct {
	Enabled        bool               `yaml:"enabled"`
	Name           string             `yaml:"name"`
	API            API                `yaml:"api"`
	MakerFee       Decimal            `yaml:"maker_fee"`
	TakerFee       Decimal            `yaml:"taker_fee"`
	WithdrawalFees map[string]Decimal `yaml:"withdrawal_fees"`
	SupportedPairs []string           `yaml:"supported_pairs"`
}

// WithdrawalFeeMap converts the YAML fee map to plain decimals.
func (v Venue) WithdrawalFeeMap() map[string]decimal.Decimal {
	fees := make(map[string]decimal.Decimal, len(v.WithdrawalFees))
	for asset, fee := range v.WithdrawalFees {
		fees[strings.ToUpper(asset)] = fee.Decimal
	}
	return fees
}

// File is the top-level shape of exchanges.yaml.
type File struct {
	Exchanges map[string]Venue `yaml:"exchanges"`
}

// Load reads and validates exchanges.yaml. A missing or unparsable file is
// ErrConfigInvalid (fatal at boot). Individual venue entries missing their
// base URL are disabled with a warning rather than failing the load.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", errs.ErrConfigInvalid, path, err)
	}

	var cfg File
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", errs.ErrConfigInvalid, path, err)
	}
	if len(cfg.Exchanges) == 0 {
		return nil, fmt.Errorf("%w: %s defines no exchanges", errs.ErrConfigInvalid, path)
	}

	for code, venue := range cfg.Exchanges {
		if !venue.Enabled {
			continue
		}
		if venue.API.BaseURL == "" {
			log.Warn().Str("venue", code).Msg("missing api.base_url, disabling venue")
			venue.Enabled = false
			cfg.Exchanges[code] = venue
		}
	}

	return &cfg, nil
}

// EnabledVenues returns the codes of venues that survived validation,
// sorted by the caller if order matters.
func (f *File) EnabledVenues() []string {
	var codes []string
	for code, venue := range f.Exchanges {
		if venue.Enabled {
			codes = append(codes, code)
		}
	}
	return codes
}

// Credentials holds one venue's API key pair from the environment.
type Credentials struct {
	Key    string
	Secret string
}

// Present reports whether both halves of the key pair are set.
func (c Credentials) Present() bool {
	return c.Key != "" && c.Secret != ""
}

// VenueCredentials reads <VENUE>_API_KEY / <VENUE>_API_SECRET.
func VenueCredentials(code string) Credentials {
	prefix := strings.ToUpper(code)
	return Credentials{
		Key:    os.Getenv(prefix + "_API_KEY"),
		Secret: os.Getenv(prefix + "_API_SECRET"),
	}
}

// VenueTestnet reads <VENUE>_TESTNET.
func VenueTestnet(code string) bool {
	return strings.EqualFold(os.Getenv(strings.ToUpper(code)+"_TESTNET"), "true")
}

// Env names used across the process.
const (
	EnvDatabaseURL    = "DATABASE_URL"
	EnvRedisURL       = "REDIS_URL"
	EnvDiscordWebhook = "DISCORD_WEBHOOK_URL"
	EnvLogLevel       = "LOG_LEVEL"
	EnvSQLEcho        = "SQL_ECHO"
	EnvTimezone       = "TIMEZONE"
)
