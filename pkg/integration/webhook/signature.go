package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
)

const (
	// SignatureHeader carries the hex HMAC of the request body.
	SignatureHeader = "X-Webhook-Signature"

	// SignatureAlgorithmHeader names the HMAC hash.
	SignatureAlgorithmHeader = "X-Webhook-Signature-Algorithm"

	// SignatureAlgorithm is the only supported algorithm.
	SignatureAlgorithm = "sha256"
)

// Sign returns the hex HMAC-SHA256 of payload.
func Sign(secret string, payload []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// Verify reports whether signature is the HMAC of payload, in constant time.
func Verify(secret string, payload []byte, signature string) bool {
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	want, _ := hex.DecodeString(Sign(secret, payload))
	return subtle.ConstantTimeCompare(got, want) == 1
}

// VerifyRequest checks the signature headers of a received webhook.
func VerifyRequest(h http.Header, secret string, payload []byte) bool {
	if alg := h.Get(SignatureAlgorithmHeader); alg != "" && alg != SignatureAlgorithm {
		return false
	}
	return Verify(secret, payload, h.Get(SignatureHeader))
}

func addSignature(h http.Header, secret string, payload []byte) {
	h.Set(SignatureHeader, Sign(secret, payload))
	h.Set(SignatureAlgorithmHeader, SignatureAlgorithm)
}
