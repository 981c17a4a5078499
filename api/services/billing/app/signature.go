package app

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignatureVerifier authenticates webhook bodies with HMAC-SHA256 over the
// exact bytes received. It fails closed: a missing secret or signature is
// never authentic.
type SignatureVerifier struct {
	secret []byte
}

func NewSignatureVerifier(secret string) SignatureVerifier {
	return SignatureVerifier{secret: []byte(strings.TrimSpace(secret))}
}

// Verify reports whether signature is the lowercase hex HMAC of payload.
func (v SignatureVerifier) Verify(payload []byte, signature string) bool {
	sig := strings.TrimSpace(signature)
	if len(v.secret) == 0 || sig == "" {
		return false
	}
	// Compare the lowercase hex encodings so that any change to the
	// claimed string, case included, is a mismatch.
	return hmac.Equal([]byte(v.Sign(payload)), []byte(sig))
}

// Sign returns the hex HMAC of payload. Empty when no secret is configured.
func (v SignatureVerifier) Sign(payload []byte) string {
	if len(v.secret) == 0 {
		return ""
	}
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
