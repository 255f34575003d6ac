package razorpay

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	domain "github.com/stridewear/shoestore/internal/domain/payment"
)

// Signer verifies gateway payment notifications locally: HMAC-SHA256 over
// "{gatewayOrderID}|{gatewayPaymentID}" keyed by the merchant secret,
// hex-encoded, compared case-sensitively in constant time.
type Signer struct {
	secret []byte
}

func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// Sign computes the expected signature for a (gateway order, payment) pair.
func (s *Signer) Sign(gatewayOrderID, gatewayPaymentID string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(gatewayOrderID + "|" + gatewayPaymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether the supplied signature matches. An invalid signature
// is a false result, not an error; only missing configuration or arguments
// error.
func (s *Signer) Verify(gatewayOrderID, gatewayPaymentID, signature string) (bool, error) {
	if len(s.secret) == 0 {
		return false, domain.ErrMissingConfig
	}
	if gatewayOrderID == "" || gatewayPaymentID == "" || signature == "" {
		return false, domain.ErrMissingConfig
	}
	expected := s.Sign(gatewayOrderID, gatewayPaymentID)
	return hmac.Equal([]byte(expected), []byte(signature)), nil
}
