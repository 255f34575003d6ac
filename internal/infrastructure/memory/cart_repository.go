package memory

import (
	"context"
	"sync"

	domain "github.com/stridewear/shoestore/internal/domain/cart"
)

// CartRepository keeps one cart per user. All mutations run under the lock so
// concurrent merge read-modify-writes on the same cart serialize.
type CartRepository struct {
	mu    sync.RWMutex
	carts map[string]*domain.Cart
}

func NewCartRepository() *CartRepository {
	return &CartRepository{carts: make(map[string]*domain.Cart)}
}

func (r *CartRepository) Get(ctx context.Context, userID string) (*domain.Cart, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.carts[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return c.Clone(), nil
}

func (r *CartRepository) Upsert(ctx context.Context, userID string, fn func(*domain.Cart) error) (*domain.Cart, error) {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.carts[userID]
	if !ok {
		c = domain.Empty(userID)
		r.carts[userID] = c
	}
	if err := fn(c); err != nil {
		return nil, err
	}
	return c.Clone(), nil
}

func (r *CartRepository) Update(ctx context.Context, userID string, fn func(*domain.Cart) error) (*domain.Cart, error) {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.carts[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if err := fn(c); err != nil {
		return nil, err
	}
	return c.Clone(), nil
}
