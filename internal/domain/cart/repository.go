package cart

import "context"

// Repository holds one cart per user. Both mutation entry points run fn under
// a per-user write scope so concurrent read-modify-write merges on the same
// cart cannot lose updates.
type Repository interface {
	Get(ctx context.Context, userID string) (*Cart, error)
	// Upsert creates the cart lazily on first use, then applies fn.
	Upsert(ctx context.Context, userID string, fn func(*Cart) error) (*Cart, error)
	// Update applies fn to an existing cart or returns ErrNotFound.
	Update(ctx context.Context, userID string, fn func(*Cart) error) (*Cart, error)
}
