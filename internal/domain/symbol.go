package domain

import (
	"fmt"
	"strings"
)

// Canonical symbols are "BASE/QUOTE", upper-case, e.g. "BTC/JPY".

// SplitSymbol breaks a canonical symbol into base and quote assets.
func SplitSymbol(symbol string) (base, quote string, err error) {
	parts := strings.Split(symbol, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid canonical symbol %q", symbol)
	}
	return strings.ToUpper(parts[0]), strings.ToUpper(parts[1]), nil
}

// JoinSymbol builds a canonical symbol from base and quote assets.
func JoinSymbol(base, quote string) string {
	return strings.ToUpper(base) + "/" + strings.ToUpper(quote)
}

// CanonicalizeSymbol normalizes venue-config spellings (btc_jpy, BTC-JPY,
// BTCJPY, BTCUSDT) into the canonical form. Concatenated spellings are only
// recognized for JPY/USDT/USD/USDC quotes.
func CanonicalizeSymbol(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "-", "/")
	s = strings.ReplaceAll(s, "_", "/")
	if strings.Contains(s, "/") {
		return s
	}
	for _, quote := range []string{"USDT", "USDC", "JPY", "USD"} {
		if strings.HasSuffix(s, quote) && len(s) > len(quote) {
			return s[:len(s)-len(quote)] + "/" + quote
		}
	}
	return s
}

// BaseAsset returns the base asset of a canonical symbol, or "" if the
// symbol is not canonical.
func BaseAsset(symbol string) string {
	base, _, err := SplitSymbol(symbol)
	if err != nil {
		return ""
	}
	return base
}

// QuoteAsset returns the quote asset of a canonical symbol, or "".
func QuoteAsset(symbol string) string {
	_, quote, err := SplitSymbol(symbol)
	if err != nil {
		return ""
	}
	return quote
}
