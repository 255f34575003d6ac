package order

import "time"

// ItemRef identifies a stock line touched by an order, for compensating
// inventory movements in other contexts.
type ItemRef struct {
	ProductID string
	Size      string
	Quantity  int
}

func itemRefs(o *Order) []ItemRef {
	refs := make([]ItemRef, 0, len(o.Items))
	for _, it := range o.Items {
		refs = append(refs, ItemRef{ProductID: it.ProductID, Size: it.Size, Quantity: it.Quantity})
	}
	return refs
}

// CreatedEvent is emitted after an order is persisted with its stock reserved.
type CreatedEvent struct {
	OrderID     string
	UserID      string
	Items       []ItemRef
	TotalAmount string
	OccurredAt  time.Time
}

func (CreatedEvent) EventName() string { return "order.created" }

func NewCreatedEvent(o *Order) CreatedEvent {
	return CreatedEvent{
		OrderID:     o.ID,
		UserID:      o.UserID,
		Items:       itemRefs(o),
		TotalAmount: o.TotalAmount.String(),
		OccurredAt:  time.Now().UTC(),
	}
}

// PaidEvent is emitted on the first successful payment confirmation.
type PaidEvent struct {
	OrderID          string
	UserID           string
	GatewayPaymentID string
	OccurredAt       time.Time
}

func (PaidEvent) EventName() string { return "order.paid" }

func NewPaidEvent(o *Order) PaidEvent {
	evt := PaidEvent{
		OrderID:    o.ID,
		UserID:     o.UserID,
		OccurredAt: time.Now().UTC(),
	}
	if o.PaymentResult != nil {
		evt.GatewayPaymentID = o.PaymentResult.GatewayPaymentID
	}
	return evt
}

// CancelledEvent is emitted when an order is cancelled; subscribers restock
// the reserved quantities.
type CancelledEvent struct {
	OrderID    string
	UserID     string
	Items      []ItemRef
	Reason     string
	OccurredAt time.Time
}

func (CancelledEvent) EventName() string { return "order.cancelled" }

func NewCancelledEvent(o *Order, reason string) CancelledEvent {
	return CancelledEvent{
		OrderID:    o.ID,
		UserID:     o.UserID,
		Items:      itemRefs(o),
		Reason:     reason,
		OccurredAt: time.Now().UTC(),
	}
}
