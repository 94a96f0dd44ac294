package exchange

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// signHMAC computes the hex-encoded HMAC-SHA256 every supported venue uses
// for private endpoints; only the payload layout differs per venue.
func signHMAC(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func unixMillis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func unixSeconds(t time.Time) string {
	return strconv.FormatInt(t.Unix(), 10)
}

func unixMicros(t time.Time) string {
	return strconv.FormatInt(t.UnixMicro(), 10)
}
