package order

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	domcart "github.com/stridewear/shoestore/internal/domain/cart"
	domcatalog "github.com/stridewear/shoestore/internal/domain/catalog"
	"github.com/stridewear/shoestore/internal/domain/identity"
	domain "github.com/stridewear/shoestore/internal/domain/order"
	domoutbox "github.com/stridewear/shoestore/internal/domain/outbox"
	dompayment "github.com/stridewear/shoestore/internal/domain/payment"
	"github.com/stridewear/shoestore/internal/pkg/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const publishTimeout = 300 * time.Millisecond

var ErrUserRequired = errors.New("order: user id is required")

// ItemInput is one requested order line: a (product, size) pair and a
// quantity. Name and price come from the catalog at creation time, never from
// the caller.
type ItemInput struct {
	ProductID string
	Size      string
	Quantity  int
}

// ConfirmResult reports a payment confirmation outcome. Applied is false when
// the confirmation was an idempotent replay of an already-recorded payment.
type ConfirmResult struct {
	Order   *domain.Order
	Applied bool
}

// Service is the order engine: it turns item lists or carts into priced,
// persisted orders, reconciles gateway confirmations, and drives the
// fulfillment state machine.
type Service struct {
	orders   domain.Repository
	products domcatalog.Repository
	carts    domcart.Repository
	gateway  dompayment.Gateway
	ids      IDGenerator
	bus      domoutbox.Publisher
	tracer   trace.Tracer
}

func NewService(
	orders domain.Repository,
	products domcatalog.Repository,
	carts domcart.Repository,
	gateway dompayment.Gateway,
	ids IDGenerator,
	bus domoutbox.Publisher,
) *Service {
	return &Service{
		orders:   orders,
		products: products,
		carts:    carts,
		gateway:  gateway,
		ids:      ids,
		bus:      bus,
		tracer:   otel.Tracer("order-service"),
	}
}

// Create validates the items, snapshots catalog name and price, reserves
// stock atomically per (product, size), and persists a pending unpaid order.
// Missing product ids are reported as one complete set, not first-found.
func (s *Service) Create(ctx context.Context, userID string, items []ItemInput, addr domain.Address) (_ *domain.Order, err error) {
	logger := logging.FromContext(ctx).With(zap.String("component", "order_service"))
	ctx, span := s.tracer.Start(ctx, "CreateOrder", trace.WithAttributes(
		attribute.String("order.user_id", userID),
		attribute.Int("order.item_count", len(items)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if userID == "" {
		return nil, ErrUserRequired
	}
	if len(items) == 0 {
		return nil, domain.ErrNoItems
	}
	for _, it := range items {
		if it.Quantity < 1 {
			return nil, domain.ErrInvalidQuantity
		}
		if it.Size == "" {
			return nil, domain.ErrInvalidSize
		}
	}
	if err := addr.Validate(); err != nil {
		return nil, err
	}

	snapshots, err := s.snapshotItems(ctx, items)
	if err != nil {
		return nil, err
	}

	// Reserve stock before persisting; a partial failure releases what was
	// already taken so no quantity leaks.
	reserved := make([]domain.Item, 0, len(snapshots))
	for _, it := range snapshots {
		if derr := s.products.DecrementStock(ctx, it.ProductID, it.Size, it.Quantity); derr != nil {
			s.releaseStock(ctx, reserved)
			return nil, fmt.Errorf("order: reserve stock for %s/%s: %w", it.ProductID, it.Size, derr)
		}
		reserved = append(reserved, it)
	}

	entity, err := domain.New(s.ids.NewID(), userID, snapshots, addr)
	if err != nil {
		s.releaseStock(ctx, reserved)
		return nil, err
	}
	if err := s.orders.Insert(ctx, entity); err != nil {
		s.releaseStock(ctx, reserved)
		return nil, fmt.Errorf("order: insert: %w", err)
	}

	span.SetAttributes(attribute.String("order.id", entity.ID))
	s.publish(ctx, logger, domain.NewCreatedEvent(entity))

	logger.Info("order_created",
		zap.String("order_id", entity.ID),
		zap.String("user_id", userID),
		zap.String("total_amount", entity.TotalAmount.String()),
	)
	return entity, nil
}

// CheckoutCart creates an order from the user's cart snapshot, then clears
// the cart. The order items are a frozen copy, not a live link.
func (s *Service) CheckoutCart(ctx context.Context, userID string, addr domain.Address) (*domain.Order, error) {
	if userID == "" {
		return nil, ErrUserRequired
	}
	c, err := s.carts.Get(ctx, userID)
	if errors.Is(err, domcart.ErrNotFound) {
		return nil, domain.ErrNoItems
	}
	if err != nil {
		return nil, err
	}
	if c.IsEmpty() {
		return nil, domain.ErrNoItems
	}

	items := make([]ItemInput, 0, len(c.Lines))
	for _, l := range c.Lines {
		items = append(items, ItemInput{ProductID: l.ProductID, Size: l.Size, Quantity: l.Quantity})
	}

	entity, err := s.Create(ctx, userID, items, addr)
	if err != nil {
		return nil, err
	}

	if _, cerr := s.carts.Update(ctx, userID, func(c *domcart.Cart) error {
		c.Clear()
		return nil
	}); cerr != nil {
		logging.FromContext(ctx).Warn("cart_clear_after_checkout_failed",
			zap.String("user_id", userID),
			zap.Error(cerr),
		)
	}
	return entity, nil
}

// RequestPayment creates a gateway intent for the order's exact total. The
// amount is optional: zero means "charge the stored total", and a supplied
// amount must equal it so a client cannot pay less than owed.
func (s *Service) RequestPayment(ctx context.Context, userID, orderID string, amount decimal.Decimal) (*dompayment.Intent, error) {
	logger := logging.FromContext(ctx).With(zap.String("component", "order_service"))

	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, identity.ErrForbidden
	}
	if o.IsPaid {
		return nil, domain.ErrConflict
	}
	if !amount.IsZero() && !amount.Equal(o.TotalAmount) {
		return nil, domain.ErrAmountMismatch
	}

	intent, err := s.gateway.CreateIntent(ctx, o.TotalAmount, o.ID)
	if err != nil {
		return nil, fmt.Errorf("order: create payment intent: %w", err)
	}

	if _, uerr := s.orders.Mutate(ctx, orderID, func(o *domain.Order) error {
		return o.AttachIntent(intent.ID)
	}); uerr != nil {
		// The intent exists gateway-side; surface the local failure so the
		// client retries the request rather than paying an untracked intent.
		return nil, fmt.Errorf("order: record payment intent: %w", uerr)
	}

	logger.Info("payment_requested",
		zap.String("order_id", orderID),
		zap.String("intent_id", intent.ID),
	)
	return intent, nil
}

// ConfirmPayment reconciles a gateway payment notification with the order.
// The signature is verified before anything else; a failed verification never
// marks the order paid. Confirmation is idempotent per (order, payment id):
// a replay is a success no-op, a different payment id on a paid order is a
// conflict.
func (s *Service) ConfirmPayment(ctx context.Context, orderID, gatewayOrderID, gatewayPaymentID, signature string) (_ *ConfirmResult, err error) {
	logger := logging.FromContext(ctx).With(zap.String("component", "order_service"))
	ctx, span := s.tracer.Start(ctx, "ConfirmPayment", trace.WithAttributes(
		attribute.String("order.id", orderID),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	ok, err := s.gateway.VerifySignature(gatewayOrderID, gatewayPaymentID, signature)
	if err != nil {
		return nil, fmt.Errorf("order: verify signature: %w", err)
	}
	if !ok {
		logger.Warn("payment_signature_rejected",
			zap.String("order_id", orderID),
			zap.String("gateway_order_id", gatewayOrderID),
		)
		return nil, dompayment.ErrSignatureInvalid
	}

	applied := false
	updated, err := s.orders.Mutate(ctx, orderID, func(o *domain.Order) error {
		var merr error
		applied, merr = o.MarkPaid(gatewayOrderID, gatewayPaymentID, "completed")
		return merr
	})
	if err != nil {
		return nil, err
	}

	if applied {
		s.publish(ctx, logger, domain.NewPaidEvent(updated))
		logger.Info("order_paid",
			zap.String("order_id", orderID),
			zap.String("gateway_payment_id", gatewayPaymentID),
		)
	} else {
		logger.Info("payment_confirmation_replayed",
			zap.String("order_id", orderID),
			zap.String("gateway_payment_id", gatewayPaymentID),
		)
	}
	return &ConfirmResult{Order: updated, Applied: applied}, nil
}

// MarkShipped advances a processing order to shipped. Staff only.
func (s *Service) MarkShipped(ctx context.Context, actor identity.Actor, orderID string) (*domain.Order, error) {
	if err := actor.RequireAdmin(); err != nil {
		return nil, err
	}
	return s.orders.Mutate(ctx, orderID, func(o *domain.Order) error {
		return o.MarkShipped()
	})
}

// MarkDelivered completes fulfillment from processing or shipped. Staff only.
func (s *Service) MarkDelivered(ctx context.Context, actor identity.Actor, orderID string) (*domain.Order, error) {
	if err := actor.RequireAdmin(); err != nil {
		return nil, err
	}
	return s.orders.Mutate(ctx, orderID, func(o *domain.Order) error {
		return o.MarkDelivered()
	})
}

// Refund issues a whole-order refund through the gateway and cancels the
// order. Partial amounts are rejected; there is no refunded-to-date ledger.
func (s *Service) Refund(ctx context.Context, actor identity.Actor, orderID string, amount decimal.Decimal) (_ *dompayment.RefundReceipt, err error) {
	logger := logging.FromContext(ctx).With(zap.String("component", "order_service"))
	ctx, span := s.tracer.Start(ctx, "RefundOrder", trace.WithAttributes(
		attribute.String("order.id", orderID),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if err := actor.RequireAdmin(); err != nil {
		return nil, err
	}

	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !o.IsPaid || o.PaymentResult == nil || o.PaymentResult.GatewayPaymentID == "" {
		return nil, domain.ErrNotPaid
	}
	if o.Status != domain.StatusProcessing {
		// Shipped and delivered orders are past the cancellation window.
		return nil, domain.ErrInvalidTransition
	}
	if !amount.Equal(o.TotalAmount) {
		return nil, domain.ErrPartialRefund
	}

	receipt, err := s.gateway.Refund(ctx, o.PaymentResult.GatewayPaymentID, amount)
	if err != nil {
		return nil, fmt.Errorf("order: gateway refund: %w", err)
	}

	cancelled, err := s.orders.Mutate(ctx, orderID, func(o *domain.Order) error {
		return o.Cancel()
	})
	if err != nil {
		// The money moved back; the order must still be cancelled. Surface
		// the inconsistency loudly instead of hiding it.
		logger.Error("refund_cancel_failed",
			zap.String("order_id", orderID),
			zap.String("refund_id", receipt.ID),
			zap.Error(err),
		)
		return nil, err
	}

	s.publish(ctx, logger, domain.NewCancelledEvent(cancelled, "refunded"))
	logger.Info("order_refunded",
		zap.String("order_id", orderID),
		zap.String("refund_id", receipt.ID),
	)
	return receipt, nil
}

// Cancel lets the owner cancel an order that has not been paid yet. The
// reserved stock is returned through the cancellation event.
func (s *Service) Cancel(ctx context.Context, userID, orderID string) (*domain.Order, error) {
	logger := logging.FromContext(ctx).With(zap.String("component", "order_service"))

	cancelled, err := s.orders.Mutate(ctx, orderID, func(o *domain.Order) error {
		if o.UserID != userID {
			return identity.ErrForbidden
		}
		if o.IsPaid {
			return domain.ErrConflict
		}
		return o.Cancel()
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, logger, domain.NewCancelledEvent(cancelled, "customer_cancelled"))
	logger.Info("order_cancelled",
		zap.String("order_id", orderID),
		zap.String("user_id", userID),
	)
	return cancelled, nil
}

// Get returns one order, visible to its owner and to staff.
func (s *Service) Get(ctx context.Context, actor identity.Actor, orderID string) (*domain.Order, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != actor.UserID && !actor.IsAdmin() {
		return nil, identity.ErrForbidden
	}
	return o, nil
}

// ListByUser returns the caller's orders, oldest first.
func (s *Service) ListByUser(ctx context.Context, userID string) ([]*domain.Order, error) {
	if userID == "" {
		return nil, ErrUserRequired
	}
	return s.orders.ListByUser(ctx, userID)
}

// ListAll returns every order. Staff only.
func (s *Service) ListAll(ctx context.Context, actor identity.Actor) ([]*domain.Order, error) {
	if err := actor.RequireAdmin(); err != nil {
		return nil, err
	}
	return s.orders.ListAll(ctx)
}

// snapshotItems resolves every product id and freezes name and price into
// order items. All missing ids are collected and reported together.
func (s *Service) snapshotItems(ctx context.Context, items []ItemInput) ([]domain.Item, error) {
	missing := make([]string, 0)
	seen := make(map[string]bool)
	snapshots := make([]domain.Item, 0, len(items))

	for _, it := range items {
		p, err := s.products.Get(ctx, it.ProductID)
		if errors.Is(err, domcatalog.ErrNotFound) {
			if !seen[it.ProductID] {
				seen[it.ProductID] = true
				missing = append(missing, it.ProductID)
			}
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("order: resolve product %s: %w", it.ProductID, err)
		}
		snapshots = append(snapshots, domain.Item{
			ProductID: p.ID,
			Name:      p.Name,
			Size:      it.Size,
			Quantity:  it.Quantity,
			UnitPrice: p.Price,
		})
	}

	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("%w: %s", domcatalog.ErrNotFound, strings.Join(missing, ", "))
	}
	return snapshots, nil
}

// releaseStock undoes partial reservations after a failed creation.
func (s *Service) releaseStock(ctx context.Context, reserved []domain.Item) {
	logger := logging.FromContext(ctx)
	for _, it := range reserved {
		if err := s.products.Restock(ctx, it.ProductID, it.Size, it.Quantity); err != nil {
			logger.Error("stock_release_failed",
				zap.String("product_id", it.ProductID),
				zap.String("size", it.Size),
				zap.Error(err),
			)
		}
	}
}

// publish forwards a domain event with a bounded enqueue wait; a full or
// stopped bus must not fail the business operation.
func (s *Service) publish(ctx context.Context, logger *zap.Logger, e domoutbox.Event) {
	if s.bus == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.bus.Publish(pubCtx, e); err != nil {
		logger.Warn("event_publish_failed",
			zap.String("event", e.EventName()),
			zap.Error(err),
		)
	}
}
