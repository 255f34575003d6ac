package order

import "context"

// Repository persists orders. Mutate runs the given function on the stored
// order under the repository's write scope, so concurrent transitions on the
// same order (for example duplicate gateway confirmations) serialize instead
// of racing a load-then-update.
type Repository interface {
	Insert(ctx context.Context, order *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	Mutate(ctx context.Context, id string, fn func(*Order) error) (*Order, error)
	ListByUser(ctx context.Context, userID string) ([]*Order, error)
	ListAll(ctx context.Context) ([]*Order, error)
}
