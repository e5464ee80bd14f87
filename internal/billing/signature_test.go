package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func signPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	payload := []byte(`{"meta":{"event_name":"subscription_created"}}`)
	secret := "top-secret"

	valid := signPayload(payload, secret)
	if !VerifySignature(payload, valid, secret) {
		t.Fatalf("expected signature to validate")
	}
	if !VerifySignature(payload, "sha256="+valid, secret) {
		t.Fatalf("expected prefixed signature to validate")
	}
	if VerifySignature(payload, "deadbeef", secret) {
		t.Fatalf("expected invalid signature to fail")
	}
	if VerifySignature(payload, valid, "other-secret") {
		t.Fatalf("expected wrong secret to fail")
	}
	if VerifySignature(payload, "", secret) {
		t.Fatalf("expected empty signature to fail")
	}
	if VerifySignature(payload, valid, "") {
		t.Fatalf("expected empty secret to fail")
	}
	if VerifySignature(payload, "not-hex!", secret) {
		t.Fatalf("expected non-hex signature to fail")
	}
}

func TestVerifySignature_RawBytesMatter(t *testing.T) {
	payload := []byte(`{"a": 1}`)
	secret := "s"
	sig := signPayload(payload, secret)

	// The same JSON with different whitespace must not verify.
	if VerifySignature([]byte(`{"a":1}`), sig, secret) {
		t.Fatalf("expected re-encoded body to fail verification")
	}
}
