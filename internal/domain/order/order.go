package order

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound          = errors.New("order: not found")
	ErrNoItems           = errors.New("order: no items in order")
	ErrInvalidQuantity   = errors.New("order: quantity must be at least one")
	ErrInvalidSize       = errors.New("order: size is required")
	ErrInvalidAddress    = errors.New("order: incomplete shipping address")
	ErrInvalidTransition = errors.New("order: invalid status transition")
	ErrConflict          = errors.New("order: conflicting order state")
	ErrAmountMismatch    = errors.New("order: amount does not match order total")
	ErrNotPaid           = errors.New("order: not paid")
	ErrPartialRefund     = errors.New("order: partial refunds are not supported")
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

// Item is a frozen snapshot of the catalog line at order-creation time.
// Later catalog changes never alter an existing order.
type Item struct {
	ProductID string
	Name      string
	Size      string
	Quantity  int
	UnitPrice decimal.Decimal
}

type Address struct {
	Street  string
	City    string
	State   string
	ZipCode string
	Phone   string
}

func (a Address) Validate() error {
	if a.Street == "" || a.City == "" || a.State == "" || a.ZipCode == "" || a.Phone == "" {
		return ErrInvalidAddress
	}
	return nil
}

// PaymentResult records the gateway-side identifiers for an order's payment.
// GatewayPaymentID is immutable once set.
type PaymentResult struct {
	GatewayOrderID   string
	GatewayPaymentID string
	Status           string
	UpdateTime       time.Time
}

type Order struct {
	ID              string
	UserID          string
	Items           []Item
	ShippingAddress Address
	TotalAmount     decimal.Decimal
	Status          Status
	IsPaid          bool
	PaidAt          *time.Time
	PaymentResult   *PaymentResult
	IsDelivered     bool
	DeliveredAt     *time.Time
	ShippedAt       *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// New builds a pending, unpaid order. The total is derived from the items
// once, here, and stored; it is never recomputed from live catalog data.
func New(id, userID string, items []Item, addr Address) (*Order, error) {
	if len(items) == 0 {
		return nil, ErrNoItems
	}
	for _, it := range items {
		if it.Quantity < 1 {
			return nil, ErrInvalidQuantity
		}
		if it.Size == "" {
			return nil, ErrInvalidSize
		}
	}
	if err := addr.Validate(); err != nil {
		return nil, err
	}

	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}

	now := time.Now().UTC()
	return &Order{
		ID:              id,
		UserID:          userID,
		Items:           append([]Item(nil), items...),
		ShippingAddress: addr,
		TotalAmount:     total,
		Status:          StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// AttachIntent records the gateway order id issued for this order's payment.
// Re-requesting payment while still unpaid replaces the previous intent.
func (o *Order) AttachIntent(gatewayOrderID string) error {
	if o.IsPaid {
		return ErrConflict
	}
	if o.Status != StatusPending {
		return ErrInvalidTransition
	}
	o.PaymentResult = &PaymentResult{
		GatewayOrderID: gatewayOrderID,
		Status:         "created",
		UpdateTime:     time.Now().UTC(),
	}
	o.touch()
	return nil
}

// MarkPaid applies a verified payment confirmation. The confirmation must
// carry the gateway order id attached to this order by AttachIntent; a tuple
// minted for a different order conflicts even when its signature is genuine.
// It reports whether the confirmation was applied: a replay carrying the
// already-recorded payment id is a success no-op, while a different payment id
// on a paid order conflicts.
func (o *Order) MarkPaid(gatewayOrderID, gatewayPaymentID, gatewayStatus string) (bool, error) {
	if o.IsPaid {
		if o.PaymentResult != nil && o.PaymentResult.GatewayPaymentID == gatewayPaymentID {
			return false, nil
		}
		return false, ErrConflict
	}
	if o.Status != StatusPending {
		return false, ErrInvalidTransition
	}
	if o.PaymentResult == nil || o.PaymentResult.GatewayOrderID != gatewayOrderID {
		return false, ErrConflict
	}

	now := time.Now().UTC()
	o.IsPaid = true
	o.PaidAt = &now
	o.PaymentResult.GatewayPaymentID = gatewayPaymentID
	o.PaymentResult.Status = gatewayStatus
	o.PaymentResult.UpdateTime = now
	o.Status = StatusProcessing
	o.touch()
	return true, nil
}

func (o *Order) MarkShipped() error {
	if o.Status != StatusProcessing {
		return ErrInvalidTransition
	}
	now := time.Now().UTC()
	o.ShippedAt = &now
	o.Status = StatusShipped
	o.touch()
	return nil
}

func (o *Order) MarkDelivered() error {
	if o.Status != StatusProcessing && o.Status != StatusShipped {
		return ErrInvalidTransition
	}
	now := time.Now().UTC()
	o.IsDelivered = true
	o.DeliveredAt = &now
	o.Status = StatusDelivered
	o.touch()
	return nil
}

// Cancel is reachable from pending or processing only; delivered and
// cancelled are terminal.
func (o *Order) Cancel() error {
	if o.Status != StatusPending && o.Status != StatusProcessing {
		return ErrInvalidTransition
	}
	o.Status = StatusCancelled
	o.touch()
	return nil
}

func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	clone.Items = append([]Item(nil), o.Items...)
	if o.PaidAt != nil {
		t := *o.PaidAt
		clone.PaidAt = &t
	}
	if o.DeliveredAt != nil {
		t := *o.DeliveredAt
		clone.DeliveredAt = &t
	}
	if o.ShippedAt != nil {
		t := *o.ShippedAt
		clone.ShippedAt = &t
	}
	if o.PaymentResult != nil {
		pr := *o.PaymentResult
		clone.PaymentResult = &pr
	}
	return &clone
}

func (o *Order) touch() {
	o.UpdatedAt = time.Now().UTC()
}
