package cart

import (
	"context"
	"errors"
	"fmt"

	domain "github.com/stridewear/shoestore/internal/domain/cart"
	domcatalog "github.com/stridewear/shoestore/internal/domain/catalog"
	"github.com/stridewear/shoestore/internal/pkg/logging"
	"go.uber.org/zap"
)

var ErrUserRequired = errors.New("cart: user id is required")

// Service implements the per-user cart store. Merge semantics live in the
// domain; the repository serializes mutations per cart.
type Service struct {
	carts    domain.Repository
	products domcatalog.Repository
}

func NewService(carts domain.Repository, products domcatalog.Repository) *Service {
	return &Service{
		carts:    carts,
		products: products,
	}
}

// Get returns the user's cart, or an empty cart value when none exists yet.
func (s *Service) Get(ctx context.Context, userID string) (*domain.Cart, error) {
	if userID == "" {
		return nil, ErrUserRequired
	}
	c, err := s.carts.Get(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Empty(userID), nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// AddItem merges quantity into the (product, size) line, creating the cart
// lazily on first add. The product must exist in the catalog.
func (s *Service) AddItem(ctx context.Context, userID, productID, size string, quantity int) (*domain.Cart, error) {
	logger := logging.FromContext(ctx).With(zap.String("component", "cart_service"))
	if userID == "" {
		return nil, ErrUserRequired
	}
	if quantity < 1 {
		return nil, domain.ErrInvalidQuantity
	}
	if size == "" {
		return nil, domain.ErrInvalidSize
	}

	if _, err := s.products.Get(ctx, productID); err != nil {
		return nil, fmt.Errorf("cart: resolve product: %w", err)
	}

	c, err := s.carts.Upsert(ctx, userID, func(c *domain.Cart) error {
		return c.Add(productID, size, quantity)
	})
	if err != nil {
		return nil, err
	}
	logger.Info("cart_item_added",
		zap.String("user_id", userID),
		zap.String("product_id", productID),
		zap.String("size", size),
		zap.Int("quantity", quantity),
	)
	return c, nil
}

// UpdateItem sets (does not add) the quantity of an existing line.
func (s *Service) UpdateItem(ctx context.Context, userID, productID, size string, quantity int) (*domain.Cart, error) {
	if userID == "" {
		return nil, ErrUserRequired
	}
	if quantity < 1 {
		return nil, domain.ErrInvalidQuantity
	}
	return s.carts.Update(ctx, userID, func(c *domain.Cart) error {
		return c.SetQuantity(productID, size, quantity)
	})
}

// RemoveItem drops a line; removing an absent line leaves the cart unchanged.
func (s *Service) RemoveItem(ctx context.Context, userID, productID, size string) (*domain.Cart, error) {
	if userID == "" {
		return nil, ErrUserRequired
	}
	c, err := s.carts.Update(ctx, userID, func(c *domain.Cart) error {
		c.Remove(productID, size)
		return nil
	})
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Empty(userID), nil
	}
	return c, err
}

// Clear empties the cart. Clearing a cart that was never created is a no-op.
func (s *Service) Clear(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrUserRequired
	}
	_, err := s.carts.Upsert(ctx, userID, func(c *domain.Cart) error {
		c.Clear()
		return nil
	})
	return err
}
