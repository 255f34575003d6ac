package payment

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrUnavailable marks a transient transport failure; callers may retry
	// with backoff. The core itself never retries.
	ErrUnavailable = errors.New("payment: gateway unavailable")
	// ErrInvalidRequest marks a request the gateway rejected (bad amount or
	// receipt).
	ErrInvalidRequest = errors.New("payment: gateway rejected request")
	// ErrAuth marks rejected merchant credentials. Fatal, never retried.
	ErrAuth = errors.New("payment: gateway credentials rejected")
	// ErrSignatureInvalid marks a payment confirmation whose signature did
	// not verify. It must never result in an order being marked paid.
	ErrSignatureInvalid = errors.New("payment: signature verification failed")
	// ErrMissingConfig marks absent merchant credentials or arguments.
	ErrMissingConfig = errors.New("payment: gateway configuration missing")
)

// Intent is the gateway-side pending-payment record created before the payer
// completes payment. Amount is in the currency's minor unit.
type Intent struct {
	ID       string
	Amount   int64
	Currency string
	Receipt  string
	Status   string
}

// Payment is the gateway's view of a completed or attempted payment.
type Payment struct {
	ID       string
	OrderID  string
	Amount   int64
	Currency string
	Status   string
	Method   string
}

// RefundReceipt is the gateway's record of an issued refund.
type RefundReceipt struct {
	ID        string
	PaymentID string
	Amount    int64
	Status    string
}

// FrontendConfig is the public configuration the client needs to open the
// payment UI. It carries no secret.
type FrontendConfig struct {
	Key         string
	Currency    string
	Name        string
	Description string
	Image       string
}

// Gateway wraps the remote payment service. Every call except VerifySignature
// and FrontendConfig is a remote round trip with an enforced timeout.
type Gateway interface {
	CreateIntent(ctx context.Context, amount decimal.Decimal, receipt string) (*Intent, error)
	// VerifySignature is a deterministic local computation; it returns false
	// for a merely-invalid signature and errors only on missing
	// configuration or arguments.
	VerifySignature(gatewayOrderID, gatewayPaymentID, signature string) (bool, error)
	FetchPayment(ctx context.Context, paymentID string) (*Payment, error)
	Refund(ctx context.Context, paymentID string, amount decimal.Decimal) (*RefundReceipt, error)
	FrontendConfig() FrontendConfig
}
