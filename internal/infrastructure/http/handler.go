package httptransport

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	appcart "github.com/stridewear/shoestore/internal/application/cart"
	appcatalog "github.com/stridewear/shoestore/internal/application/catalog"
	apporder "github.com/stridewear/shoestore/internal/application/order"
	domcart "github.com/stridewear/shoestore/internal/domain/cart"
	domcatalog "github.com/stridewear/shoestore/internal/domain/catalog"
	"github.com/stridewear/shoestore/internal/domain/identity"
	domorder "github.com/stridewear/shoestore/internal/domain/order"
	dompayment "github.com/stridewear/shoestore/internal/domain/payment"
	"go.uber.org/zap"
)

type Handler struct {
	orders   *apporder.Service
	carts    *appcart.Service
	catalog  *appcatalog.Service
	gateway  dompayment.Gateway
	log      *zap.Logger
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewHandler(
	orders *apporder.Service,
	carts *appcart.Service,
	catalog *appcatalog.Service,
	gateway dompayment.Gateway,
	logger *zap.Logger,
	requests *prometheus.CounterVec,
	duration *prometheus.HistogramVec,
) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		orders:   orders,
		carts:    carts,
		catalog:  catalog,
		gateway:  gateway,
		log:      logger.With(zap.String("component", "http_server")),
		requests: requests,
		duration: duration,
	}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestLogger(h.log))
	if h.requests != nil && h.duration != nil {
		r.Use(httpMetrics(h.requests, h.duration))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/products", h.handleListProducts)
		r.Get("/products/{id}", h.handleGetProduct)
		r.Get("/payment/config", h.handlePaymentConfig)
		// Gateway notifications authenticate by signature, not user identity.
		r.Post("/payment/verify", h.handleConfirmPayment)

		r.Group(func(r chi.Router) {
			r.Use(requireUser)

			r.Get("/cart", h.handleGetCart)
			r.Post("/cart/items", h.handleAddCartItem)
			r.Patch("/cart/items", h.handleUpdateCartItem)
			r.Delete("/cart/items", h.handleRemoveCartItem)
			r.Delete("/cart", h.handleClearCart)

			r.Post("/orders", h.handleCreateOrder)
			r.Post("/orders/checkout", h.handleCheckout)
			r.Get("/orders", h.handleMyOrders)
			r.Get("/orders/{id}", h.handleGetOrder)
			r.Post("/orders/{id}/payment", h.handleRequestPayment)
			r.Post("/orders/{id}/cancel", h.handleCancelOrder)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(requireUser, requireAdmin)

			r.Get("/orders", h.handleAllOrders)
			r.Patch("/orders/{id}/ship", h.handleMarkShipped)
			r.Patch("/orders/{id}/deliver", h.handleMarkDelivered)
			r.Post("/orders/{id}/refund", h.handleRefund)

			r.Post("/products", h.handleCreateProduct)
			r.Put("/products/{id}", h.handleUpdateProduct)
			r.Delete("/products/{id}", h.handleDeleteProduct)
		})
	})

	return r
}

// --- carts ---

type cartLineJSON struct {
	ProductID string `json:"productId"`
	Size      string `json:"size"`
	Quantity  int    `json:"quantity"`
}

type cartJSON struct {
	UserID string         `json:"userId"`
	Items  []cartLineJSON `json:"items"`
}

func toCartJSON(c *domcart.Cart) cartJSON {
	out := cartJSON{UserID: c.UserID, Items: make([]cartLineJSON, 0, len(c.Lines))}
	for _, l := range c.Lines {
		out.Items = append(out.Items, cartLineJSON{ProductID: l.ProductID, Size: l.Size, Quantity: l.Quantity})
	}
	return out
}

func (h *Handler) handleGetCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.Get(r.Context(), actorFromRequest(r).UserID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartJSON(c))
}

func (h *Handler) handleAddCartItem(w http.ResponseWriter, r *http.Request) {
	var req cartLineJSON
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	c, err := h.carts.AddItem(r.Context(), actorFromRequest(r).UserID, req.ProductID, req.Size, req.Quantity)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartJSON(c))
}

func (h *Handler) handleUpdateCartItem(w http.ResponseWriter, r *http.Request) {
	var req cartLineJSON
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	c, err := h.carts.UpdateItem(r.Context(), actorFromRequest(r).UserID, req.ProductID, req.Size, req.Quantity)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartJSON(c))
}

func (h *Handler) handleRemoveCartItem(w http.ResponseWriter, r *http.Request) {
	var req cartLineJSON
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	c, err := h.carts.RemoveItem(r.Context(), actorFromRequest(r).UserID, req.ProductID, req.Size)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartJSON(c))
}

func (h *Handler) handleClearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.carts.Clear(r.Context(), actorFromRequest(r).UserID); err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- orders ---

type addressJSON struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	ZipCode string `json:"zipCode"`
	Phone   string `json:"phone"`
}

func (a addressJSON) toDomain() domorder.Address {
	return domorder.Address{Street: a.Street, City: a.City, State: a.State, ZipCode: a.ZipCode, Phone: a.Phone}
}

type orderItemJSON struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name,omitempty"`
	Size      string          `json:"size"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

type orderJSON struct {
	OrderID         string          `json:"orderId"`
	UserID          string          `json:"userId"`
	Items           []orderItemJSON `json:"items"`
	ShippingAddress addressJSON     `json:"shippingAddress"`
	TotalAmount     decimal.Decimal `json:"totalAmount"`
	Status          string          `json:"status"`
	IsPaid          bool            `json:"isPaid"`
	PaidAt          *time.Time      `json:"paidAt,omitempty"`
	IsDelivered     bool            `json:"isDelivered"`
	DeliveredAt     *time.Time      `json:"deliveredAt,omitempty"`
	ShippedAt       *time.Time      `json:"shippedAt,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
}

func toOrderJSON(o *domorder.Order) orderJSON {
	out := orderJSON{
		OrderID: o.ID,
		UserID:  o.UserID,
		ShippingAddress: addressJSON{
			Street: o.ShippingAddress.Street, City: o.ShippingAddress.City,
			State: o.ShippingAddress.State, ZipCode: o.ShippingAddress.ZipCode,
			Phone: o.ShippingAddress.Phone,
		},
		TotalAmount: o.TotalAmount,
		Status:      string(o.Status),
		IsPaid:      o.IsPaid,
		PaidAt:      o.PaidAt,
		IsDelivered: o.IsDelivered,
		DeliveredAt: o.DeliveredAt,
		ShippedAt:   o.ShippedAt,
		CreatedAt:   o.CreatedAt,
	}
	for _, it := range o.Items {
		out.Items = append(out.Items, orderItemJSON{
			ProductID: it.ProductID, Name: it.Name, Size: it.Size,
			Quantity: it.Quantity, UnitPrice: it.UnitPrice,
		})
	}
	return out
}

type createOrderRequest struct {
	Items           []orderItemJSON `json:"items"`
	ShippingAddress addressJSON     `json:"shippingAddress"`
}

func (h *Handler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	items := make([]apporder.ItemInput, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, apporder.ItemInput{ProductID: it.ProductID, Size: it.Size, Quantity: it.Quantity})
	}
	o, err := h.orders.Create(r.Context(), actorFromRequest(r).UserID, items, req.ShippingAddress.toDomain())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderJSON(o))
}

type checkoutRequest struct {
	ShippingAddress addressJSON `json:"shippingAddress"`
}

func (h *Handler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	o, err := h.orders.CheckoutCart(r.Context(), actorFromRequest(r).UserID, req.ShippingAddress.toDomain())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderJSON(o))
}

func (h *Handler) handleMyOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListByUser(r.Context(), actorFromRequest(r).UserID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	out := make([]orderJSON, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderJSON(o))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), actorFromRequest(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderJSON(o))
}

func (h *Handler) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Cancel(r.Context(), actorFromRequest(r).UserID, chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderJSON(o))
}

// --- payments ---

type requestPaymentRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type requestPaymentResponse struct {
	IntentID string `json:"intentId"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

func (h *Handler) handleRequestPayment(w http.ResponseWriter, r *http.Request) {
	var req requestPaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	intent, err := h.orders.RequestPayment(r.Context(), actorFromRequest(r).UserID, chi.URLParam(r, "id"), req.Amount)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, requestPaymentResponse{
		IntentID: intent.ID,
		Amount:   intent.Amount,
		Currency: intent.Currency,
	})
}

type confirmPaymentRequest struct {
	OrderID          string `json:"orderId"`
	GatewayOrderID   string `json:"gatewayOrderId"`
	GatewayPaymentID string `json:"gatewayPaymentId"`
	Signature        string `json:"signature"`
}

func (h *Handler) handleConfirmPayment(w http.ResponseWriter, r *http.Request) {
	var req confirmPaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := h.orders.ConfirmPayment(r.Context(), req.OrderID, req.GatewayOrderID, req.GatewayPaymentID, req.Signature)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderJSON(result.Order))
}

func (h *Handler) handlePaymentConfig(w http.ResponseWriter, _ *http.Request) {
	cfg := h.gateway.FrontendConfig()
	writeJSON(w, http.StatusOK, map[string]string{
		"key":         cfg.Key,
		"currency":    cfg.Currency,
		"name":        cfg.Name,
		"description": cfg.Description,
		"image":       cfg.Image,
	})
}

// --- fulfillment (staff) ---

func (h *Handler) handleMarkShipped(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.MarkShipped(r.Context(), actorFromRequest(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderJSON(o))
}

func (h *Handler) handleMarkDelivered(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.MarkDelivered(r.Context(), actorFromRequest(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderJSON(o))
}

type refundRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func (h *Handler) handleRefund(w http.ResponseWriter, r *http.Request) {
	var req refundRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	receipt, err := h.orders.Refund(r.Context(), actorFromRequest(r), chi.URLParam(r, "id"), req.Amount)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"refundId":  receipt.ID,
		"paymentId": receipt.PaymentID,
		"amount":    receipt.Amount,
		"status":    receipt.Status,
	})
}

func (h *Handler) handleAllOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListAll(r.Context(), actorFromRequest(r))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	out := make([]orderJSON, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderJSON(o))
	}
	writeJSON(w, http.StatusOK, out)
}

// --- catalog ---

type productJSON struct {
	ID          string          `json:"id,omitempty"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Brand       string          `json:"brand"`
	Category    string          `json:"category"`
	Color       string          `json:"color"`
	Images      []string        `json:"images,omitempty"`
	Sizes       []sizeStockJSON `json:"sizes"`
	TotalStock  int             `json:"totalStock"`
	Featured    bool            `json:"featured"`
}

type sizeStockJSON struct {
	Size  string `json:"size"`
	Stock int    `json:"stock"`
}

func toProductJSON(p *domcatalog.Product) productJSON {
	out := productJSON{
		ID: p.ID, Name: p.Name, Description: p.Description, Price: p.Price,
		Brand: p.Brand, Category: p.Category, Color: p.Color, Images: p.Images,
		TotalStock: p.TotalStock, Featured: p.Featured,
	}
	for _, s := range p.Sizes {
		out.Sizes = append(out.Sizes, sizeStockJSON{Size: s.Size, Stock: s.Stock})
	}
	return out
}

func (p productJSON) toInput() appcatalog.ProductInput {
	sizes := make([]domcatalog.SizeStock, 0, len(p.Sizes))
	for _, s := range p.Sizes {
		sizes = append(sizes, domcatalog.SizeStock{Size: s.Size, Stock: s.Stock})
	}
	return appcatalog.ProductInput{
		Name: p.Name, Description: p.Description, Price: p.Price,
		Brand: p.Brand, Category: p.Category, Color: p.Color,
		Images: p.Images, Sizes: sizes, Featured: p.Featured,
	}
}

func (h *Handler) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.List(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	out := make([]productJSON, 0, len(products))
	for _, p := range products {
		out = append(out, toProductJSON(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.catalog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductJSON(p))
}

func (h *Handler) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req productJSON
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	p, err := h.catalog.Create(r.Context(), actorFromRequest(r), req.toInput())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProductJSON(p))
}

func (h *Handler) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req productJSON
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	p, err := h.catalog.Update(r.Context(), actorFromRequest(r), chi.URLParam(r, "id"), req.toInput())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductJSON(p))
}

func (h *Handler) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.Delete(r.Context(), actorFromRequest(r), chi.URLParam(r, "id")); err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- plumbing ---

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError translates the error taxonomy to HTTP statuses. Gateway
// errors never leak as raw transport errors.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domorder.ErrNotFound),
		errors.Is(err, domcart.ErrNotFound),
		errors.Is(err, domcart.ErrLineNotFound),
		errors.Is(err, domcatalog.ErrNotFound),
		errors.Is(err, domcatalog.ErrSizeNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, identity.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domorder.ErrConflict),
		errors.Is(err, domorder.ErrInvalidTransition),
		errors.Is(err, domorder.ErrNotPaid),
		errors.Is(err, domcatalog.ErrOutOfStock):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, dompayment.ErrSignatureInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, dompayment.ErrUnavailable):
		writeError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, dompayment.ErrAuth),
		errors.Is(err, dompayment.ErrMissingConfig):
		writeError(w, http.StatusInternalServerError, err.Error())
	case errors.Is(err, domorder.ErrNoItems),
		errors.Is(err, domorder.ErrInvalidQuantity),
		errors.Is(err, domorder.ErrInvalidSize),
		errors.Is(err, domorder.ErrInvalidAddress),
		errors.Is(err, domorder.ErrAmountMismatch),
		errors.Is(err, domorder.ErrPartialRefund),
		errors.Is(err, domcart.ErrInvalidQuantity),
		errors.Is(err, domcart.ErrInvalidSize),
		errors.Is(err, domcatalog.ErrInvalidQuantity),
		errors.Is(err, domcatalog.ErrInvalidProduct),
		errors.Is(err, dompayment.ErrInvalidRequest),
		errors.Is(err, apporder.ErrUserRequired),
		errors.Is(err, appcart.ErrUserRequired):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.log.Error("unhandled_domain_error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
