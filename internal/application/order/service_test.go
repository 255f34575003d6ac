package order

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domcart "github.com/stridewear/shoestore/internal/domain/cart"
	domcatalog "github.com/stridewear/shoestore/internal/domain/catalog"
	"github.com/stridewear/shoestore/internal/domain/identity"
	domain "github.com/stridewear/shoestore/internal/domain/order"
	domoutbox "github.com/stridewear/shoestore/internal/domain/outbox"
	dompayment "github.com/stridewear/shoestore/internal/domain/payment"
	"github.com/stridewear/shoestore/internal/infrastructure/memory"
)

// fakeGateway signs and verifies like the real gateway but never leaves the
// process. It records refunds and can be told to fail.
type fakeGateway struct {
	secret    string
	intents   int
	refunds   []string
	refundErr error
}

func (g *fakeGateway) sign(orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(g.secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func (g *fakeGateway) CreateIntent(ctx context.Context, amount decimal.Decimal, receipt string) (*dompayment.Intent, error) {
	g.intents++
	return &dompayment.Intent{
		ID:       fmt.Sprintf("order_rzp%d", g.intents),
		Amount:   amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart(),
		Currency: "INR",
		Receipt:  receipt,
		Status:   "created",
	}, nil
}

func (g *fakeGateway) VerifySignature(gatewayOrderID, gatewayPaymentID, signature string) (bool, error) {
	if gatewayOrderID == "" || gatewayPaymentID == "" || signature == "" {
		return false, dompayment.ErrMissingConfig
	}
	return hmac.Equal([]byte(g.sign(gatewayOrderID, gatewayPaymentID)), []byte(signature)), nil
}

func (g *fakeGateway) FetchPayment(ctx context.Context, paymentID string) (*dompayment.Payment, error) {
	return &dompayment.Payment{ID: paymentID, Status: "captured"}, nil
}

func (g *fakeGateway) Refund(ctx context.Context, paymentID string, amount decimal.Decimal) (*dompayment.RefundReceipt, error) {
	if g.refundErr != nil {
		return nil, g.refundErr
	}
	g.refunds = append(g.refunds, paymentID)
	return &dompayment.RefundReceipt{
		ID:        "rfnd_1",
		PaymentID: paymentID,
		Amount:    amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart(),
		Status:    "processed",
	}, nil
}

func (g *fakeGateway) FrontendConfig() dompayment.FrontendConfig {
	return dompayment.FrontendConfig{Key: "rzp_test_key", Currency: "INR", Name: "Test"}
}

// recordingBus captures published events synchronously.
type recordingBus struct {
	mu     sync.Mutex
	events []domoutbox.Event
}

func (b *recordingBus) Publish(ctx context.Context, e domoutbox.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
	return nil
}

func (b *recordingBus) names() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.events))
	for _, e := range b.events {
		out = append(out, e.EventName())
	}
	return out
}

type seqIDs struct{ n int }

func (s *seqIDs) NewID() string {
	s.n++
	return fmt.Sprintf("o-%d", s.n)
}

type fixture struct {
	svc      *Service
	products *memory.ProductRepository
	carts    *memory.CartRepository
	orders   *memory.OrderRepository
	gateway  *fakeGateway
	bus      *recordingBus
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		products: memory.NewProductRepository(),
		carts:    memory.NewCartRepository(),
		orders:   memory.NewOrderRepository(),
		gateway:  &fakeGateway{secret: "test-secret"},
		bus:      &recordingBus{},
	}
	f.svc = NewService(f.orders, f.products, f.carts, f.gateway, &seqIDs{}, f.bus)

	ctx := context.Background()
	seed := []*domcatalog.Product{
		{ID: "p-a", Name: "Runner", Price: decimal.NewFromInt(50), Brand: "Stride", Category: "sports", Color: "black",
			Sizes: []domcatalog.SizeStock{{Size: "9", Stock: 10}}},
		{ID: "p-b", Name: "Loafer", Price: decimal.NewFromInt(30), Brand: "Stride", Category: "casual", Color: "brown",
			Sizes: []domcatalog.SizeStock{{Size: "8", Stock: 10}}},
	}
	for _, p := range seed {
		require.NoError(t, f.products.Save(ctx, p))
	}
	return f
}

func validAddress() domain.Address {
	return domain.Address{
		Street:  "12 Elm Street",
		City:    "Pune",
		State:   "MH",
		ZipCode: "411001",
		Phone:   "9876543210",
	}
}

func twoItemInputs() []ItemInput {
	return []ItemInput{
		{ProductID: "p-a", Size: "9", Quantity: 2},
		{ProductID: "p-b", Size: "8", Quantity: 1},
	}
}

func stockOf(t *testing.T, f *fixture, productID, size string) int {
	t.Helper()
	p, err := f.products.Get(context.Background(), productID)
	require.NoError(t, err)
	stock, ok := p.StockFor(size)
	require.True(t, ok)
	return stock
}

// createPaid is a helper that creates an order and drives it to processing
// through the normal confirmation path.
func createPaid(t *testing.T, f *fixture) *domain.Order {
	t.Helper()
	ctx := context.Background()

	o, err := f.svc.Create(ctx, "u-1", twoItemInputs(), validAddress())
	require.NoError(t, err)

	intent, err := f.svc.RequestPayment(ctx, "u-1", o.ID, o.TotalAmount)
	require.NoError(t, err)

	sig := f.gateway.sign(intent.ID, "pay_1")
	res, err := f.svc.ConfirmPayment(ctx, o.ID, intent.ID, "pay_1", sig)
	require.NoError(t, err)
	require.True(t, res.Applied)
	return res.Order
}

func TestCreatePricesFromCatalog(t *testing.T) {
	f := newFixture(t)

	o, err := f.svc.Create(context.Background(), "u-1", twoItemInputs(), validAddress())
	require.NoError(t, err)

	assert.True(t, o.TotalAmount.Equal(decimal.NewFromInt(130)), "got %s", o.TotalAmount)
	assert.Equal(t, domain.StatusPending, o.Status)
	assert.False(t, o.IsPaid)
	assert.Equal(t, "Runner", o.Items[0].Name)

	// Stock is reserved at creation.
	assert.Equal(t, 8, stockOf(t, f, "p-a", "9"))
	assert.Equal(t, 9, stockOf(t, f, "p-b", "8"))

	assert.Equal(t, []string{"order.created"}, f.bus.names())
}

func TestCreateReportsAllMissingProducts(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(context.Background(), "u-1", []ItemInput{
		{ProductID: "ghost-b", Size: "9", Quantity: 1},
		{ProductID: "p-a", Size: "9", Quantity: 1},
		{ProductID: "ghost-a", Size: "9", Quantity: 1},
	}, validAddress())

	require.ErrorIs(t, err, domcatalog.ErrNotFound)
	assert.Contains(t, err.Error(), "ghost-a, ghost-b")
	// Nothing was reserved.
	assert.Equal(t, 10, stockOf(t, f, "p-a", "9"))
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, "", twoItemInputs(), validAddress())
	assert.ErrorIs(t, err, ErrUserRequired)

	_, err = f.svc.Create(ctx, "u-1", nil, validAddress())
	assert.ErrorIs(t, err, domain.ErrNoItems)

	_, err = f.svc.Create(ctx, "u-1", []ItemInput{{ProductID: "p-a", Size: "9", Quantity: 0}}, validAddress())
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)

	_, err = f.svc.Create(ctx, "u-1", []ItemInput{{ProductID: "p-a", Size: "", Quantity: 1}}, validAddress())
	assert.ErrorIs(t, err, domain.ErrInvalidSize)

	_, err = f.svc.Create(ctx, "u-1", twoItemInputs(), domain.Address{})
	assert.ErrorIs(t, err, domain.ErrInvalidAddress)
}

func TestCreateOutOfStockReleasesPriorReservations(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(context.Background(), "u-1", []ItemInput{
		{ProductID: "p-a", Size: "9", Quantity: 2},
		{ProductID: "p-b", Size: "8", Quantity: 99},
	}, validAddress())

	require.ErrorIs(t, err, domcatalog.ErrOutOfStock)
	// The first line's reservation was rolled back.
	assert.Equal(t, 10, stockOf(t, f, "p-a", "9"))
	assert.Equal(t, 10, stockOf(t, f, "p-b", "8"))
	assert.Empty(t, f.bus.names())
}

func TestCheckoutCartFreezesItemsAndClearsCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.carts.Upsert(ctx, "u-1", func(c *domcart.Cart) error {
		if err := c.Add("p-a", "9", 2); err != nil {
			return err
		}
		return c.Add("p-b", "8", 1)
	})
	require.NoError(t, err)

	o, err := f.svc.CheckoutCart(ctx, "u-1", validAddress())
	require.NoError(t, err)
	assert.True(t, o.TotalAmount.Equal(decimal.NewFromInt(130)))
	assert.Len(t, o.Items, 2)

	c, err := f.carts.Get(ctx, "u-1")
	require.NoError(t, err)
	assert.True(t, c.IsEmpty())
}

func TestCheckoutEmptyCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// No cart at all.
	_, err := f.svc.CheckoutCart(ctx, "u-1", validAddress())
	assert.ErrorIs(t, err, domain.ErrNoItems)

	// A created-then-emptied cart behaves the same.
	_, err = f.carts.Upsert(ctx, "u-2", func(c *domcart.Cart) error { return nil })
	require.NoError(t, err)
	_, err = f.svc.CheckoutCart(ctx, "u-2", validAddress())
	assert.ErrorIs(t, err, domain.ErrNoItems)
}

func TestCheckoutFailureKeepsCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.carts.Upsert(ctx, "u-1", func(c *domcart.Cart) error {
		return c.Add("p-a", "9", 99)
	})
	require.NoError(t, err)

	_, err = f.svc.CheckoutCart(ctx, "u-1", validAddress())
	require.ErrorIs(t, err, domcatalog.ErrOutOfStock)

	c, err := f.carts.Get(ctx, "u-1")
	require.NoError(t, err)
	assert.Len(t, c.Lines, 1)
}

func TestRequestPaymentGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	o, err := f.svc.Create(ctx, "u-1", twoItemInputs(), validAddress())
	require.NoError(t, err)

	_, err = f.svc.RequestPayment(ctx, "someone-else", o.ID, o.TotalAmount)
	assert.ErrorIs(t, err, identity.ErrForbidden)

	_, err = f.svc.RequestPayment(ctx, "u-1", o.ID, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, domain.ErrAmountMismatch)

	_, err = f.svc.RequestPayment(ctx, "u-1", "missing", o.TotalAmount)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// Omitting the amount charges the stored total.
	defaulted, err := f.svc.RequestPayment(ctx, "u-1", o.ID, decimal.Zero)
	require.NoError(t, err)
	assert.Equal(t, int64(13000), defaulted.Amount)

	intent, err := f.svc.RequestPayment(ctx, "u-1", o.ID, o.TotalAmount)
	require.NoError(t, err)
	assert.Equal(t, int64(13000), intent.Amount)

	stored, err := f.orders.Get(ctx, o.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.PaymentResult)
	assert.Equal(t, intent.ID, stored.PaymentResult.GatewayOrderID)

	// A paid order refuses a new intent.
	sig := f.gateway.sign(intent.ID, "pay_1")
	_, err = f.svc.ConfirmPayment(ctx, o.ID, intent.ID, "pay_1", sig)
	require.NoError(t, err)
	_, err = f.svc.RequestPayment(ctx, "u-1", o.ID, o.TotalAmount)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestConfirmPaymentHappyPath(t *testing.T) {
	f := newFixture(t)
	o := createPaid(t, f)

	assert.True(t, o.IsPaid)
	assert.Equal(t, domain.StatusProcessing, o.Status)
	require.NotNil(t, o.PaymentResult)
	assert.Equal(t, "pay_1", o.PaymentResult.GatewayPaymentID)
	assert.Equal(t, []string{"order.created", "order.paid"}, f.bus.names())
}

func TestConfirmPaymentIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := createPaid(t, f)
	firstPaidAt := *o.PaidAt

	gatewayOrderID := o.PaymentResult.GatewayOrderID
	sig := f.gateway.sign(gatewayOrderID, "pay_1")
	res, err := f.svc.ConfirmPayment(ctx, o.ID, gatewayOrderID, "pay_1", sig)
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, firstPaidAt, *res.Order.PaidAt)

	// The replay publishes no second paid event.
	assert.Equal(t, []string{"order.created", "order.paid"}, f.bus.names())

	// A different payment id against a paid order is a conflict.
	sig2 := f.gateway.sign(gatewayOrderID, "pay_2")
	_, err = f.svc.ConfirmPayment(ctx, o.ID, gatewayOrderID, "pay_2", sig2)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestConfirmPaymentBindsTupleToItsOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cheap, err := f.svc.Create(ctx, "u-1", []ItemInput{{ProductID: "p-b", Size: "8", Quantity: 1}}, validAddress())
	require.NoError(t, err)
	expensive, err := f.svc.Create(ctx, "u-1", twoItemInputs(), validAddress())
	require.NoError(t, err)

	cheapIntent, err := f.svc.RequestPayment(ctx, "u-1", cheap.ID, cheap.TotalAmount)
	require.NoError(t, err)
	_, err = f.svc.RequestPayment(ctx, "u-1", expensive.ID, expensive.TotalAmount)
	require.NoError(t, err)

	sig := f.gateway.sign(cheapIntent.ID, "pay_real")
	res, err := f.svc.ConfirmPayment(ctx, cheap.ID, cheapIntent.ID, "pay_real", sig)
	require.NoError(t, err)
	require.True(t, res.Applied)

	// A genuine tuple minted for the cheap order must not pay another order.
	_, err = f.svc.ConfirmPayment(ctx, expensive.ID, cheapIntent.ID, "pay_real", sig)
	assert.ErrorIs(t, err, domain.ErrConflict)

	stored, err := f.orders.Get(ctx, expensive.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsPaid)
	assert.Equal(t, domain.StatusPending, stored.Status)
	assert.Empty(t, stored.PaymentResult.GatewayPaymentID)

	// An order that never requested an intent refuses a foreign tuple too.
	bare, err := f.svc.Create(ctx, "u-1", []ItemInput{{ProductID: "p-a", Size: "9", Quantity: 1}}, validAddress())
	require.NoError(t, err)
	_, err = f.svc.ConfirmPayment(ctx, bare.ID, cheapIntent.ID, "pay_real", sig)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestConfirmPaymentRejectsTamperedSignature(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	o, err := f.svc.Create(ctx, "u-1", twoItemInputs(), validAddress())
	require.NoError(t, err)
	intent, err := f.svc.RequestPayment(ctx, "u-1", o.ID, o.TotalAmount)
	require.NoError(t, err)

	_, err = f.svc.ConfirmPayment(ctx, o.ID, intent.ID, "pay_1", "deadbeef")
	assert.ErrorIs(t, err, dompayment.ErrSignatureInvalid)

	// The order is untouched: still unpaid, still pending.
	stored, err := f.orders.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsPaid)
	assert.Equal(t, domain.StatusPending, stored.Status)
	assert.Equal(t, []string{"order.created"}, f.bus.names())
}

func TestFulfillmentTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := identity.Actor{UserID: "staff-1", Role: identity.RoleAdmin}
	customer := identity.Actor{UserID: "u-1", Role: identity.RoleCustomer}

	o, err := f.svc.Create(ctx, "u-1", twoItemInputs(), validAddress())
	require.NoError(t, err)

	// Fulfillment never outruns payment.
	_, err = f.svc.MarkDelivered(ctx, admin, o.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	_, err = f.svc.MarkShipped(ctx, admin, o.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	paid := createPaid(t, f)

	_, err = f.svc.MarkShipped(ctx, customer, paid.ID)
	assert.ErrorIs(t, err, identity.ErrForbidden)

	shipped, err := f.svc.MarkShipped(ctx, admin, paid.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusShipped, shipped.Status)

	delivered, err := f.svc.MarkDelivered(ctx, admin, paid.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDelivered, delivered.Status)
	assert.True(t, delivered.IsDelivered)
}

func TestRefundFullAmountOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := identity.Actor{UserID: "staff-1", Role: identity.RoleAdmin}
	o := createPaid(t, f)

	_, err := f.svc.Refund(ctx, admin, o.ID, decimal.NewFromInt(50))
	assert.ErrorIs(t, err, domain.ErrPartialRefund)
	assert.Empty(t, f.gateway.refunds)

	receipt, err := f.svc.Refund(ctx, admin, o.ID, o.TotalAmount)
	require.NoError(t, err)
	assert.Equal(t, []string{"pay_1"}, f.gateway.refunds)
	assert.Equal(t, "processed", receipt.Status)

	stored, err := f.orders.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, stored.Status)
	assert.Contains(t, f.bus.names(), "order.cancelled")
}

func TestRefundGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := identity.Actor{UserID: "staff-1", Role: identity.RoleAdmin}
	customer := identity.Actor{UserID: "u-1", Role: identity.RoleCustomer}

	unpaid, err := f.svc.Create(ctx, "u-1", twoItemInputs(), validAddress())
	require.NoError(t, err)

	_, err = f.svc.Refund(ctx, customer, unpaid.ID, unpaid.TotalAmount)
	assert.ErrorIs(t, err, identity.ErrForbidden)

	_, err = f.svc.Refund(ctx, admin, unpaid.ID, unpaid.TotalAmount)
	assert.ErrorIs(t, err, domain.ErrNotPaid)

	// A shipped order is past the cancellation window.
	paid := createPaid(t, f)
	_, err = f.svc.MarkShipped(ctx, admin, paid.ID)
	require.NoError(t, err)
	_, err = f.svc.Refund(ctx, admin, paid.ID, paid.TotalAmount)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Empty(t, f.gateway.refunds)

	// A gateway failure leaves the order untouched.
	paid2Base, err := f.svc.Create(ctx, "u-2", []ItemInput{{ProductID: "p-a", Size: "9", Quantity: 1}}, validAddress())
	require.NoError(t, err)
	intent, err := f.svc.RequestPayment(ctx, "u-2", paid2Base.ID, paid2Base.TotalAmount)
	require.NoError(t, err)
	_, err = f.svc.ConfirmPayment(ctx, paid2Base.ID, intent.ID, "pay_9", f.gateway.sign(intent.ID, "pay_9"))
	require.NoError(t, err)

	f.gateway.refundErr = dompayment.ErrUnavailable
	_, err = f.svc.Refund(ctx, admin, paid2Base.ID, paid2Base.TotalAmount)
	assert.ErrorIs(t, err, dompayment.ErrUnavailable)

	stored, err := f.orders.Get(ctx, paid2Base.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, stored.Status)
}

func TestCustomerCancelBeforePayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	o, err := f.svc.Create(ctx, "u-1", twoItemInputs(), validAddress())
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, "someone-else", o.ID)
	assert.ErrorIs(t, err, identity.ErrForbidden)

	cancelled, err := f.svc.Cancel(ctx, "u-1", o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, cancelled.Status)
	assert.Equal(t, []string{"order.created", "order.cancelled"}, f.bus.names())

	// Once paid, the customer path refuses; refund is the only way back.
	paid := createPaid(t, f)
	_, err = f.svc.Cancel(ctx, "u-1", paid.ID)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestCancelledEventCarriesReservedItems(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	o, err := f.svc.Create(ctx, "u-1", twoItemInputs(), validAddress())
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, "u-1", o.ID)
	require.NoError(t, err)

	var evt domain.CancelledEvent
	for _, e := range f.bus.events {
		if c, ok := e.(domain.CancelledEvent); ok {
			evt = c
		}
	}
	require.Equal(t, o.ID, evt.OrderID)
	require.Len(t, evt.Items, 2)
	assert.Equal(t, domain.ItemRef{ProductID: "p-a", Size: "9", Quantity: 2}, evt.Items[0])
}

func TestVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := identity.Actor{UserID: "staff-1", Role: identity.RoleAdmin}
	owner := identity.Actor{UserID: "u-1", Role: identity.RoleCustomer}
	stranger := identity.Actor{UserID: "u-2", Role: identity.RoleCustomer}

	o, err := f.svc.Create(ctx, "u-1", twoItemInputs(), validAddress())
	require.NoError(t, err)

	_, err = f.svc.Get(ctx, owner, o.ID)
	assert.NoError(t, err)
	_, err = f.svc.Get(ctx, admin, o.ID)
	assert.NoError(t, err)
	_, err = f.svc.Get(ctx, stranger, o.ID)
	assert.ErrorIs(t, err, identity.ErrForbidden)

	mine, err := f.svc.ListByUser(ctx, "u-1")
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	_, err = f.svc.ListAll(ctx, stranger)
	assert.ErrorIs(t, err, identity.ErrForbidden)
	all, err := f.svc.ListAll(ctx, admin)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
