package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// SignatureWindow bounds how stale a signed webhook may be. Signatures with
// timestamps outside ±window are rejected to defeat replay.
const SignatureWindow = 5 * time.Minute

// SignWebhook computes the hex HMAC-SHA256 over "timestampMs.body".
func SignWebhook(secret string, timestampMs int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestampMs, 10)))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyWebhookSignature checks the signature and the timestamp window.
// The compare is constant-time.
func VerifyWebhookSignature(secret, signature string, timestampMs int64, body []byte, now time.Time) bool {
	if secret == "" || signature == "" {
		return false
	}
	ts := time.UnixMilli(timestampMs)
	if ts.Before(now.Add(-SignatureWindow)) || ts.After(now.Add(SignatureWindow)) {
		return false
	}
	expected := SignWebhook(secret, timestampMs, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// SignExtensionRequest computes the hex HMAC-SHA256 the browser extension
// sends: method + path + timestampMs + body, keyed per dealership.
func SignExtensionRequest(key, method, path string, timestampMs int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(method))
	mac.Write([]byte(path))
	mac.Write([]byte(strconv.FormatInt(timestampMs, 10)))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyExtensionSignature validates an extension-signed request within the
// replay window.
func VerifyExtensionSignature(key, signature, method, path string, timestampMs int64, body []byte, now time.Time) bool {
	if key == "" || signature == "" {
		return false
	}
	ts := time.UnixMilli(timestampMs)
	if ts.Before(now.Add(-SignatureWindow)) || ts.After(now.Add(SignatureWindow)) {
		return false
	}
	expected := SignExtensionRequest(key, method, path, timestampMs, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}
