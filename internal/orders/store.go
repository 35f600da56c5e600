package orders

import (
	"context"
	"time"
)

// Store is the order aggregate's persistence boundary. Reads return fully
// resolved orders (line items with product names) so callers never chase
// references lazily.
//
// The conditional mutations (MarkApproved, MarkDelivered, Delete) include the
// status precondition in the update itself. When the precondition no longer
// holds because a concurrent transition won, they return
// ErrConcurrentModification; when the order is gone, ErrNotFound.
type Store interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)

	ListByCustomer(ctx context.Context, customerID string) ([]Order, error)
	// ListByStatus orders by the timestamp relevant to the status: creation
	// time for pending, approval time for approved, delivery time for
	// delivered. Newest first.
	ListByStatus(ctx context.Context, status Status) ([]Order, error)
	ListAll(ctx context.Context) ([]Order, error)

	// MarkApproved transitions pending -> approved.
	MarkApproved(ctx context.Context, id, adminID string, at time.Time) error
	// MarkDelivered transitions approved -> delivered.
	MarkDelivered(ctx context.Context, id string, at time.Time) error
	// Delete removes a pending order and its items from the active set.
	Delete(ctx context.Context, id string) error
}
