package orders

import (
	"errors"
	"fmt"
)

// All expected failure conditions are typed and matchable with errors.Is/As.
// Anything else bubbling out of the store is an infrastructure fault.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("order not found")
	ErrForbidden    = errors.New("forbidden")

	// ErrConcurrentModification means a conditional update lost a race with
	// another transition. Benign; callers may retry.
	ErrConcurrentModification = errors.New("order modified concurrently")
)

type UnknownProductError struct {
	ProductID string
}

func (e *UnknownProductError) Error() string {
	return fmt.Sprintf("product not found: %s", e.ProductID)
}

// InsufficientStockError is soft and informational at creation time, hard and
// blocking at approval time.
type InsufficientStockError struct {
	ProductID   string
	ProductName string
	Available   int
	Requested   int
}

func (e *InsufficientStockError) Error() string {
	name := e.ProductName
	if name == "" {
		name = e.ProductID
	}
	return fmt.Sprintf("insufficient stock: %s. available: %d, requested: %d", name, e.Available, e.Requested)
}

type InvalidTransitionError struct {
	Current   Status
	Attempted string
}

func (e *InvalidTransitionError) Error() string {
	switch e.Attempted {
	case "approve":
		return fmt.Sprintf("only pending orders can be approved (current status: %s)", e.Current)
	case "deliver":
		return fmt.Sprintf("only approved orders can be delivered (current status: %s)", e.Current)
	case "cancel":
		return fmt.Sprintf("only pending orders can be cancelled (current status: %s)", e.Current)
	}
	return fmt.Sprintf("cannot %s order in status %s", e.Attempted, e.Current)
}
