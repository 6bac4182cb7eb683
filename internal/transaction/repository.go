package transaction

import "context"

// Repository persists transaction records.
type Repository interface {
	Create(ctx context.Context, tx Transaction) error
	FindByClientRef(ctx context.Context, clientRef string) (Transaction, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]Transaction, error)
	Settle(ctx context.Context, reference string, status Status) (Transaction, error)
}
