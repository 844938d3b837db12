package repository

import "context"

// InventoryRepository describes stock operations.
type InventoryRepository interface {
	Stock(ctx context.Context, productID string) (int, error)
	// Decrement reduces stock only while it stays non-negative, otherwise ErrConditionFailed.
	Decrement(ctx context.Context, productID string, quantity int) error
}
