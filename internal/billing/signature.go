package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// VerifySignature checks the Lemon Squeezy X-Signature header against the
// HMAC-SHA256 digest of the raw request body. The body must be the untouched
// wire bytes; re-encoding the JSON first breaks the digest. The comparison is
// constant-time.
func VerifySignature(payload []byte, signatureHeader, secret string) bool {
	sig := strings.TrimSpace(signatureHeader)
	sig = strings.TrimPrefix(sig, "sha256=")
	if sig == "" || secret == "" {
		return false
	}

	claimed, err := hex.DecodeString(strings.ToLower(sig))
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), claimed)
}
