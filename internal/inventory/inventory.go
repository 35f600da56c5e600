// Package inventory is the authoritative ledger of available stock per
// product. Reservations happen only when an order is approved; order creation
// performs a soft check against the catalog and never touches the ledger.
package inventory

import (
	"context"
	"fmt"
)

type Line struct {
	ProductID string
	Qty       int
}

// InsufficientStockError reports the first line that could not be reserved.
// When ReserveAll fails with this error, no stock has been decremented.
type InsufficientStockError struct {
	ProductID string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: available %d, requested %d",
		e.ProductID, e.Available, e.Requested)
}

type Ledger interface {
	// CheckAvailability reports whether current stock covers qty. Side-effect free.
	CheckAvailability(ctx context.Context, productID string, qty int) (bool, error)

	// Reserve atomically decrements stock by qty iff stock >= qty, otherwise
	// returns *InsufficientStockError. Stock is never observable negative.
	Reserve(ctx context.Context, productID string, qty int) error

	// Release atomically increments stock by qty. Not exercised by the normal
	// approve flow (reservation is terminal there) but required for the
	// rollback path when an approval loses a status race after reserving.
	Release(ctx context.Context, productID string, qty int) error

	// ReserveAll reserves every line or none of them. On
	// *InsufficientStockError nothing has been decremented.
	ReserveAll(ctx context.Context, lines []Line) error

	// ReleaseAll returns every line's quantity to stock.
	ReleaseAll(ctx context.Context, lines []Line) error
}
