// Package signing verifies Slack request signatures.
//
// Slack signs every callback with the app's signing secret:
//
//	basestring := "v0:" + X-Slack-Request-Timestamp + ":" + body
//	signature  := "v0=" + hex(HMAC-SHA256(signing_secret, basestring))
//
// A request is accepted only when the timestamp is no older than FreshnessWindow
// and the recomputed MAC matches the presented one in constant time. Every
// failure, including malformed input, returns false.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

const (
	// Version is the signing scheme version bound into the base string.
	Version = "v0"

	// TimestampHeader carries the Unix-seconds time the request was signed.
	TimestampHeader = "X-Slack-Request-Timestamp"

	// SignatureHeader carries "v0=<hex mac>".
	SignatureHeader = "X-Slack-Signature"

	// FreshnessWindow is the maximum age of a signed request.
	FreshnessWindow = 300 * time.Second

	// prefixLen is the length of "v0=", checked and stripped before hex decoding.
	prefixLen = 3
)

// Verify reports whether signature is a valid signature of body at timestamp,
// checked against the current time.
func Verify(secret string, body []byte, timestamp, signature string) bool {
	return VerifyAt(time.Now(), secret, body, timestamp, signature)
}

// VerifyAt is Verify with an explicit verification instant.
//
// The freshness check is one-sided: timestamps in the future are not rejected
// by it, only timestamps older than now minus FreshnessWindow.
func VerifyAt(now time.Time, secret string, body []byte, timestamp, signature string) bool {
	if timestamp == "" {
		return false
	}
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	if ts < now.Unix()-int64(FreshnessWindow/time.Second) {
		return false
	}

	if len(signature) < prefixLen || signature[:prefixLen] != Version+"=" {
		return false
	}
	presented, err := hex.DecodeString(signature[prefixLen:])
	if err != nil {
		return false
	}

	return hmac.Equal(computeMAC(secret, timestamp, body), presented)
}

// Sign returns the "v0=<hex>" signature Slack would send for body at timestamp.
func Sign(secret, timestamp string, body []byte) string {
	return Version + "=" + hex.EncodeToString(computeMAC(secret, timestamp, body))
}

func computeMAC(secret, timestamp string, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(Version + ":" + timestamp + ":"))
	mac.Write(body)
	return mac.Sum(nil)
}
