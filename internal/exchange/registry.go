package exchange

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/arbiscan/arbiscan/internal/config"
	"github.com/arbiscan/arbiscan/internal/domain"
)

// Build constructs one adapter per enabled venue in the configuration.
// Unknown venue codes fail the build: a typo in exchanges.yaml should not
// silently drop a venue from monitoring.
func Build(cfg *config.File, converter FXConverter) (map[string]Client, error) {
	clients := make(map[string]Client)
	for code, venue := range cfg.Exchanges {
		if !venue.Enabled {
			continue
		}
		creds := config.VenueCredentials(code)
		if !creds.Present() {
			log.Debug().Str("venue", code).Msg("no credentials, private endpoints disabled")
		}

		var client Client
		switch code {
		case "bitflyer":
			client = NewBitflyer(venue, creds)
		case "bitbank":
			client = NewBitbank(venue, creds)
		case "coincheck":
			client = NewCoincheck(venue, creds)
		case "gmo":
			client = NewGMO(venue, creds)
		case "bybit":
			client = NewBybit(venue, creds, converter)
		case "binance":
			client = NewBinance(venue, creds, converter)
		default:
			return nil, fmt.Errorf("no adapter for venue %q", code)
		}
		clients[code] = client
	}
	return clients, nil
}

// VenueMaster converts a config entry to the store's master record.
func VenueMaster(code string, v config.Venue) domain.Exchange {
	return domain.Exchange{
		Code:           code,
		Name:           v.Name,
		APIBaseURL:     v.API.BaseURL,
		WSURL:          v.API.WSURL,
		MakerFee:       v.MakerFee.Decimal,
		TakerFee:       v.TakerFee.Decimal,
		WithdrawalFees: v.WithdrawalFeeMap(),
		Active:         v.Enabled,
	}
}
