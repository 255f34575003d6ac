package memory

import (
	"context"
	"fmt"
	"sync"

	domain "github.com/stridewear/shoestore/internal/domain/catalog"
)

// ProductRepository stores catalog products and their per-size stock
// counters. Stock moves only through DecrementStock and Restock, which
// check and write under one lock acquisition.
type ProductRepository struct {
	mu       sync.RWMutex
	products map[string]*domain.Product
}

func NewProductRepository() *ProductRepository {
	return &ProductRepository{products: make(map[string]*domain.Product)}
}

func (r *ProductRepository) Get(ctx context.Context, id string) (*domain.Product, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.products[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p.Clone(), nil
}

func (r *ProductRepository) List(ctx context.Context) ([]*domain.Product, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Product, 0, len(r.products))
	for _, p := range r.products {
		out = append(out, p.Clone())
	}
	return out, nil
}

func (r *ProductRepository) Save(ctx context.Context, p *domain.Product) error {
	_ = ctx
	if p == nil || p.ID == "" {
		return fmt.Errorf("product repository: id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.products[p.ID] = p.Clone()
	return nil
}

func (r *ProductRepository) Delete(ctx context.Context, id string) error {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.products[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.products, id)
	return nil
}

func (r *ProductRepository) DecrementStock(ctx context.Context, productID, size string, quantity int) error {
	_ = ctx
	if quantity <= 0 {
		return domain.ErrInvalidQuantity
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.products[productID]
	if !ok {
		return domain.ErrNotFound
	}
	for i := range p.Sizes {
		if p.Sizes[i].Size != size {
			continue
		}
		if p.Sizes[i].Stock < quantity {
			return domain.ErrOutOfStock
		}
		p.Sizes[i].Stock -= quantity
		p.TotalStock = domain.TotalStock(p.Sizes)
		return nil
	}
	return domain.ErrSizeNotFound
}

func (r *ProductRepository) Restock(ctx context.Context, productID, size string, quantity int) error {
	_ = ctx
	if quantity <= 0 {
		return domain.ErrInvalidQuantity
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.products[productID]
	if !ok {
		// Product deleted after the order was placed; nothing to restock.
		return domain.ErrNotFound
	}
	for i := range p.Sizes {
		if p.Sizes[i].Size != size {
			continue
		}
		p.Sizes[i].Stock += quantity
		p.TotalStock = domain.TotalStock(p.Sizes)
		return nil
	}
	p.Sizes = append(p.Sizes, domain.SizeStock{Size: size, Stock: quantity})
	p.TotalStock = domain.TotalStock(p.Sizes)
	return nil
}
