package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Verifier checks gateway callback signatures.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Sign computes the signature the gateway attaches to a successful payment:
// hex(HMAC-SHA256(secret, gatewayOrderID + "|" + gatewayPaymentID)).
func Sign(secret []byte, gatewayOrderID, gatewayPaymentID string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(gatewayOrderID + "|" + gatewayPaymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature authenticates the order/payment pair.
// A bad signature is an expected outcome, so it never returns an error.
func (v *Verifier) Verify(gatewayOrderID, gatewayPaymentID, signature string) bool {
	if v == nil || len(v.secret) == 0 {
		return false
	}
	if gatewayOrderID == "" || gatewayPaymentID == "" || signature == "" {
		return false
	}

	got, err := hex.DecodeString(strings.ToLower(signature))
	if err != nil {
		return false
	}
	want, _ := hex.DecodeString(Sign(v.secret, gatewayOrderID, gatewayPaymentID))
	return hmac.Equal(got, want)
}
