// Package crypto implements request signing for the Bybit V5 API.
package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// HMACAuth holds the credentials for HMAC-authenticated requests against the
// Bybit V5 API.
type HMACAuth struct {
	Key        string // API key
	Secret     string // API secret
	RecvWindow int64  // request validity window in ms; 0 means the 5000 default
}

// Headers returns the authentication headers for a Bybit V5 request. For GET
// requests payload is the raw query string; for POST it is the JSON body.
// The signature is HMAC-SHA256(secret, timestamp+key+recvWindow+payload)
// encoded as lowercase hex.
//
// Returned header keys:
//   - X-BAPI-API-KEY
//   - X-BAPI-TIMESTAMP
//   - X-BAPI-RECV-WINDOW
//   - X-BAPI-SIGN
func (h *HMACAuth) Headers(payload string) map[string]string {
	return h.HeadersAt(payload, time.Now().UnixMilli())
}

// HeadersAt is like Headers but lets the caller supply the millisecond
// timestamp (useful for deterministic testing).
func (h *HMACAuth) HeadersAt(payload string, unixMilli int64) map[string]string {
	ts := strconv.FormatInt(unixMilli, 10)
	window := h.RecvWindow
	if window <= 0 {
		window = 5000
	}
	win := strconv.FormatInt(window, 10)

	message := ts + h.Key + win + payload
	sig := hmacSHA256Hex([]byte(h.Secret), message)

	return map[string]string{
		"X-BAPI-API-KEY":     h.Key,
		"X-BAPI-TIMESTAMP":   ts,
		"X-BAPI-RECV-WINDOW": win,
		"X-BAPI-SIGN":        sig,
	}
}

// hmacSHA256Hex computes HMAC-SHA256 of message using key and returns the
// result as a lowercase hex string.
func hmacSHA256Hex(key []byte, message string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

// String returns a redacted representation suitable for logging.
func (h *HMACAuth) String() string {
	redact := func(s string) string {
		if len(s) <= 4 {
			return "****"
		}
		return s[:4] + "****"
	}
	return fmt.Sprintf("HMACAuth{key=%s, secret=%s}", redact(h.Key), redact(h.Secret))
}
