package catalog

import "context"

// Repository owns product state. DecrementStock is the atomic
// check-and-decrement keyed by (productID, size); callers must never read a
// stock count and write it back.
type Repository interface {
	Get(ctx context.Context, id string) (*Product, error)
	List(ctx context.Context) ([]*Product, error)
	Save(ctx context.Context, p *Product) error
	Delete(ctx context.Context, id string) error
	// DecrementStock atomically checks and reserves quantity for one size,
	// failing with ErrOutOfStock when insufficient.
	DecrementStock(ctx context.Context, productID, size string, quantity int) error
	// Restock returns previously reserved quantity, compensating a
	// cancellation or refund.
	Restock(ctx context.Context, productID, size string, quantity int) error
}
