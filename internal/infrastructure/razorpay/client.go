package razorpay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	domain "github.com/stridewear/shoestore/internal/domain/payment"
	"go.uber.org/zap"
)

const defaultTimeout = 5 * time.Second

// Config is the explicit gateway configuration constructed at startup and
// injected into the client; there is no process-wide lazily initialized
// instance.
type Config struct {
	KeyID       string
	KeySecret   string
	BaseURL     string
	Currency    string
	DisplayName string
	LogoURL     string
	Timeout     time.Duration
}

// Client talks to the Razorpay REST API. Calls are bounded by the configured
// timeout and are never retried here; a timed-out call has no local side
// effects.
type Client struct {
	cfg    Config
	signer *Signer
	http   *http.Client
	log    *zap.Logger
}

func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.KeyID == "" || cfg.KeySecret == "" {
		return nil, domain.ErrMissingConfig
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.razorpay.com"
	}
	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:    cfg,
		signer: NewSigner(cfg.KeySecret),
		http:   &http.Client{Timeout: cfg.Timeout},
		log:    logger.With(zap.String("component", "razorpay_client")),
	}, nil
}

// MinorUnits converts a decimal amount in the store currency to the
// gateway's smallest unit, rounding half-up on the last digit.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

type intentRequest struct {
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	Receipt        string `json:"receipt"`
	PaymentCapture int    `json:"payment_capture"`
}

type intentResponse struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

func (c *Client) CreateIntent(ctx context.Context, amount decimal.Decimal, receipt string) (*domain.Intent, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: amount must be positive", domain.ErrInvalidRequest)
	}
	if receipt == "" {
		return nil, fmt.Errorf("%w: receipt is required", domain.ErrInvalidRequest)
	}

	body := intentRequest{
		Amount:         MinorUnits(amount),
		Currency:       c.cfg.Currency,
		Receipt:        receipt,
		PaymentCapture: 1,
	}
	var resp intentResponse
	if err := c.do(ctx, http.MethodPost, "/v1/orders", body, &resp); err != nil {
		return nil, err
	}
	if resp.ID == "" {
		return nil, fmt.Errorf("%w: empty intent id", domain.ErrUnavailable)
	}
	c.log.Info("intent_created",
		zap.String("intent_id", resp.ID),
		zap.String("receipt", receipt),
		zap.Int64("amount_minor", body.Amount),
	)
	return &domain.Intent{
		ID:       resp.ID,
		Amount:   resp.Amount,
		Currency: resp.Currency,
		Receipt:  resp.Receipt,
		Status:   resp.Status,
	}, nil
}

func (c *Client) VerifySignature(gatewayOrderID, gatewayPaymentID, signature string) (bool, error) {
	return c.signer.Verify(gatewayOrderID, gatewayPaymentID, signature)
}

type paymentResponse struct {
	ID       string `json:"id"`
	OrderID  string `json:"order_id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
	Method   string `json:"method"`
}

func (c *Client) FetchPayment(ctx context.Context, paymentID string) (*domain.Payment, error) {
	if paymentID == "" {
		return nil, fmt.Errorf("%w: payment id is required", domain.ErrInvalidRequest)
	}
	var resp paymentResponse
	if err := c.do(ctx, http.MethodGet, "/v1/payments/"+url.PathEscape(paymentID), nil, &resp); err != nil {
		return nil, err
	}
	return &domain.Payment{
		ID:       resp.ID,
		OrderID:  resp.OrderID,
		Amount:   resp.Amount,
		Currency: resp.Currency,
		Status:   resp.Status,
		Method:   resp.Method,
	}, nil
}

type refundRequest struct {
	Amount int64 `json:"amount"`
}

type refundResponse struct {
	ID        string `json:"id"`
	PaymentID string `json:"payment_id"`
	Amount    int64  `json:"amount"`
	Status    string `json:"status"`
}

func (c *Client) Refund(ctx context.Context, paymentID string, amount decimal.Decimal) (*domain.RefundReceipt, error) {
	if paymentID == "" {
		return nil, fmt.Errorf("%w: payment id is required", domain.ErrInvalidRequest)
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: refund amount must be positive", domain.ErrInvalidRequest)
	}
	var resp refundResponse
	path := "/v1/payments/" + url.PathEscape(paymentID) + "/refund"
	if err := c.do(ctx, http.MethodPost, path, refundRequest{Amount: MinorUnits(amount)}, &resp); err != nil {
		return nil, err
	}
	c.log.Info("refund_issued",
		zap.String("refund_id", resp.ID),
		zap.String("payment_id", paymentID),
		zap.Int64("amount_minor", resp.Amount),
	)
	return &domain.RefundReceipt{
		ID:        resp.ID,
		PaymentID: resp.PaymentID,
		Amount:    resp.Amount,
		Status:    resp.Status,
	}, nil
}

// FrontendConfig returns the public checkout configuration; it never exposes
// the merchant secret.
func (c *Client) FrontendConfig() domain.FrontendConfig {
	name := c.cfg.DisplayName
	if name == "" {
		name = "Shoe Store"
	}
	return domain.FrontendConfig{
		Key:         c.cfg.KeyID,
		Currency:    c.cfg.Currency,
		Name:        name,
		Description: "Payment for your order",
		Image:       c.cfg.LogoURL,
	}
}

type gatewayError struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("razorpay: encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("razorpay: build request: %w", err)
	}
	req.SetBasicAuth(c.cfg.KeyID, c.cfg.KeySecret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("gateway_request_failed",
			zap.String("path", path),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: decode response: %v", domain.ErrUnavailable, err)
		}
		return nil
	}

	var gwErr gatewayError
	_ = json.NewDecoder(resp.Body).Decode(&gwErr)
	desc := gwErr.Error.Description
	if desc == "" {
		desc = resp.Status
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrAuth, desc)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return fmt.Errorf("%w: %s", domain.ErrInvalidRequest, desc)
	default:
		return fmt.Errorf("%w: %s", domain.ErrUnavailable, desc)
	}
}
