package worker

import (
	"context"
	"errors"

	domcatalog "github.com/stridewear/shoestore/internal/domain/catalog"
	domorder "github.com/stridewear/shoestore/internal/domain/order"
	domoutbox "github.com/stridewear/shoestore/internal/domain/outbox"
	"github.com/stridewear/shoestore/internal/pkg/logging"
	"go.uber.org/zap"
)

// Worker restores reserved stock when an order is cancelled or refunded.
type Worker struct {
	subscriber domoutbox.Subscriber
	products   domcatalog.Repository
}

func New(subscriber domoutbox.Subscriber, products domcatalog.Repository) *Worker {
	return &Worker{
		subscriber: subscriber,
		products:   products,
	}
}

func (w *Worker) Start() {
	w.subscriber.Subscribe(domorder.CancelledEvent{}.EventName(), w.HandleOrderCancelled)
}

// HandleOrderCancelled returns each reserved (product, size) quantity to
// stock. A product deleted since the order was placed has nothing to restock
// and is skipped.
func (w *Worker) HandleOrderCancelled(ctx context.Context, e domoutbox.Event) error {
	logger := logging.FromContext(ctx).With(zap.String("component", "inventory_worker"))
	evt, ok := e.(domorder.CancelledEvent)
	if !ok {
		return nil
	}

	var failed error
	for _, item := range evt.Items {
		err := w.products.Restock(ctx, item.ProductID, item.Size, item.Quantity)
		if errors.Is(err, domcatalog.ErrNotFound) {
			logger.Warn("restock_skipped_product_gone",
				zap.String("order_id", evt.OrderID),
				zap.String("product_id", item.ProductID),
			)
			continue
		}
		if err != nil {
			logger.Error("restock_failed",
				zap.String("order_id", evt.OrderID),
				zap.String("product_id", item.ProductID),
				zap.String("size", item.Size),
				zap.Error(err),
			)
			failed = err
			continue
		}
		logger.Info("stock_restored",
			zap.String("order_id", evt.OrderID),
			zap.String("product_id", item.ProductID),
			zap.String("size", item.Size),
			zap.Int("quantity", item.Quantity),
		)
	}
	return failed
}
