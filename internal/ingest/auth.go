// Package ingest implements the webhook entry point. HMAC verification
// uses the same crypto/subtle.ConstantTimeCompare discipline against timing
// attacks as a bearer-token middleware,
// generalized from a static bearer token to a per-request HMAC-SHA256 over
// the raw body.
package ingest

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// verifySignature recomputes HMAC-SHA256(secret, body) and compares it to
// sig (hex-encoded) in constant time.
func verifySignature(secret []byte, body []byte, sig string) bool {
	want, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	got := mac.Sum(nil)
	return subtle.ConstantTimeCompare(got, want) == 1
}
