package helper

import (
	"crypto/rand"
	"encoding/hex"
)

const (
	// RequestIdKey stores the gin context key used to persist the current request identifier.
	RequestIdKey = "X-Gateway-Request-Id"
)

// MaskAPIKey returns a masked version of an API key for safe logging.
// It shows the first 6 characters and last 4 characters, with "..." in between.
// For short keys (less than 12 chars), it returns "***" to avoid exposing too much.
// This function should be used when logging API key information for debugging
// without exposing the complete key.
func MaskAPIKey(key string) string {
	if len(key) < 12 {
		return "***"
	}
	return key[:6] + "..." + key[len(key)-4:]
}

// GenerateKey mints an opaque API key with the given prefix. The random part
// is 24 bytes of hex, which keeps keys copy-pasteable while staying far
// outside brute-force range.
func GenerateKey(prefix string) string {
	buf := make([]byte, 24)
	// crypto/rand.Read never fails on supported platforms.
	_, _ = rand.Read(buf)
	return prefix + hex.EncodeToString(buf)
}

// MessageWithRequestId appends the request identifier to a user-facing
// message so callers can quote it in support requests.
func MessageWithRequestId(message string, id string) string {
	if id == "" {
		return message
	}
	return message + " (request id: " + id + ")"
}
