package inventory

import (
	"context"
	"fmt"
	"sync"
)

// MemLedger is a mutex-guarded in-memory ledger with the same atomicity
// guarantees as PGLedger. It backs the test suite.
type MemLedger struct {
	mu    sync.Mutex
	stock map[string]int
}

func NewMemLedger(initial map[string]int) *MemLedger {
	stock := make(map[string]int, len(initial))
	for id, n := range initial {
		stock[id] = n
	}
	return &MemLedger{stock: stock}
}

// SetStock overwrites a product's available quantity.
func (l *MemLedger) SetStock(productID string, qty int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stock[productID] = qty
}

// Stock returns the current available quantity.
func (l *MemLedger) Stock(productID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stock[productID]
}

func (l *MemLedger) CheckAvailability(_ context.Context, productID string, qty int) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n, ok := l.stock[productID]
	if !ok {
		return false, fmt.Errorf("unknown product %s", productID)
	}
	return n >= qty, nil
}

func (l *MemLedger) Reserve(ctx context.Context, productID string, qty int) error {
	return l.ReserveAll(ctx, []Line{{ProductID: productID, Qty: qty}})
}

func (l *MemLedger) Release(ctx context.Context, productID string, qty int) error {
	return l.ReleaseAll(ctx, []Line{{ProductID: productID, Qty: qty}})
}

func (l *MemLedger) ReserveAll(_ context.Context, lines []Line) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	// check every line first so a failure leaves nothing decremented
	for _, ln := range lines {
		n, ok := l.stock[ln.ProductID]
		if !ok {
			return fmt.Errorf("unknown product %s", ln.ProductID)
		}
		if n < ln.Qty {
			return &InsufficientStockError{ProductID: ln.ProductID, Available: n, Requested: ln.Qty}
		}
	}
	for _, ln := range lines {
		l.stock[ln.ProductID] -= ln.Qty
	}
	return nil
}

func (l *MemLedger) ReleaseAll(_ context.Context, lines []Line) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, ln := range lines {
		l.stock[ln.ProductID] += ln.Qty
	}
	return nil
}
