package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/karavanmarket/orderflow/internal/catalog"
	"github.com/karavanmarket/orderflow/internal/inventory"
)

// Catalog is the slice of the product catalog the order core consumes:
// current price and stock for a batch of product IDs.
type Catalog interface {
	GetProducts(ctx context.Context, ids []string) (map[string]catalog.Product, error)
}

// approveRetries bounds the internal retry loop for benign races on approve.
const approveRetries = 3

// Service is the order lifecycle engine. It owns every status transition;
// nothing else mutates an order after creation.
type Service struct {
	store   Store
	ledger  inventory.Ledger
	catalog Catalog
	now     func() time.Time
}

func NewService(store Store, ledger inventory.Ledger, cat Catalog) *Service {
	return &Service{store: store, ledger: ledger, catalog: cat, now: time.Now}
}

// Create validates the cart against the live catalog and persists a pending
// order with price snapshots. The stock check here is soft: nothing is
// reserved until approval, so two customers can both order the last unit and
// the first approval wins.
func (s *Service) Create(ctx context.Context, in CreateOrderInput) (*Order, error) {
	if strings.TrimSpace(in.Address) == "" {
		return nil, fmt.Errorf("%w: address is required", ErrInvalidInput)
	}
	if strings.TrimSpace(in.PhoneNumber) == "" {
		return nil, fmt.Errorf("%w: phone number is required", ErrInvalidInput)
	}
	if len(in.Items) == 0 {
		return nil, fmt.Errorf("%w: order needs at least one item", ErrInvalidInput)
	}
	for _, it := range in.Items {
		if it.Qty <= 0 {
			return nil, fmt.Errorf("%w: quantity must be positive for product %s", ErrInvalidInput, it.ProductID)
		}
	}

	ids := make([]string, 0, len(in.Items))
	seen := make(map[string]bool, len(in.Items))
	for _, it := range in.Items {
		if !seen[it.ProductID] {
			seen[it.ProductID] = true
			ids = append(ids, it.ProductID)
		}
	}
	products, err := s.catalog.GetProducts(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}

	o := &Order{
		ID:          uuid.NewString(),
		CustomerID:  in.CustomerID,
		Address:     in.Address,
		PhoneNumber: in.PhoneNumber,
		Status:      StatusPending,
		CreatedAt:   s.now().UTC(),
	}
	for _, it := range in.Items {
		// inactive products are still orderable; the catalog flag only hides
		// them from the storefront
		p, ok := products[it.ProductID]
		if !ok {
			return nil, &UnknownProductError{ProductID: it.ProductID}
		}
		if p.Stock < it.Qty {
			return nil, &InsufficientStockError{
				ProductID:   p.ID,
				ProductName: p.Name,
				Available:   p.Stock,
				Requested:   it.Qty,
			}
		}
		item := OrderItem{
			ProductID:      p.ID,
			ProductName:    p.Name,
			Qty:            it.Qty,
			UnitPriceCents: p.PriceCents,
			TotalCents:     p.PriceCents * int64(it.Qty),
		}
		o.TotalCents += item.TotalCents
		o.Items = append(o.Items, item)
	}

	if err := s.store.Create(ctx, o); err != nil {
		return nil, fmt.Errorf("persist order: %w", err)
	}
	return s.store.GetByID(ctx, o.ID)
}

// Approve re-validates stock against the ledger's current numbers, reserves
// every line atomically and transitions pending -> approved. If the status
// update loses a race after the reservation won, the reservation is rolled
// back and the whole step retried a bounded number of times.
func (s *Service) Approve(ctx context.Context, orderID, adminID string, isAdmin bool) (*Order, error) {
	if !isAdmin {
		return nil, ErrForbidden
	}

	var lastErr error
	for attempt := 0; attempt < approveRetries; attempt++ {
		o, err := s.store.GetByID(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if o.Status != StatusPending {
			return nil, &InvalidTransitionError{Current: o.Status, Attempted: "approve"}
		}

		lines := make([]inventory.Line, 0, len(o.Items))
		for _, it := range o.Items {
			lines = append(lines, inventory.Line{ProductID: it.ProductID, Qty: it.Qty})
		}
		if err := s.ledger.ReserveAll(ctx, lines); err != nil {
			var short *inventory.InsufficientStockError
			if errors.As(err, &short) {
				return nil, &InsufficientStockError{
					ProductID:   short.ProductID,
					ProductName: productName(o, short.ProductID),
					Available:   short.Available,
					Requested:   short.Requested,
				}
			}
			return nil, fmt.Errorf("reserve stock: %w", err)
		}

		err = s.store.MarkApproved(ctx, orderID, adminID, s.now().UTC())
		if err == nil {
			return s.store.GetByID(ctx, orderID)
		}

		// the reservation went through but the status update did not: put the
		// stock back before deciding what to do with the error
		if relErr := s.ledger.ReleaseAll(ctx, lines); relErr != nil {
			return nil, fmt.Errorf("release after failed approve of %s: %w", orderID, relErr)
		}
		if errors.Is(err, ErrConcurrentModification) {
			lastErr = err
			continue
		}
		return nil, err
	}
	return nil, lastErr
}

// Deliver transitions approved -> delivered. Stock was already decremented at
// approval, so this touches the ledger not at all.
func (s *Service) Deliver(ctx context.Context, orderID, adminID string, isAdmin bool) (*Order, error) {
	if !isAdmin {
		return nil, ErrForbidden
	}
	o, err := s.store.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status != StatusApproved {
		return nil, &InvalidTransitionError{Current: o.Status, Attempted: "deliver"}
	}
	if err := s.store.MarkDelivered(ctx, orderID, s.now().UTC()); err != nil {
		return nil, err
	}
	return s.store.GetByID(ctx, orderID)
}

// Cancel removes a pending order from the active set. Only the owning
// customer or an admin may cancel, and only before approval; once stock has
// been reserved the order can no longer be withdrawn. Returns the removed
// order.
func (s *Service) Cancel(ctx context.Context, orderID, actorID string, isAdmin bool) (*Order, error) {
	o, err := s.store.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.CustomerID != actorID && !isAdmin {
		return nil, ErrForbidden
	}
	if o.Status != StatusPending {
		return nil, &InvalidTransitionError{Current: o.Status, Attempted: "cancel"}
	}
	if err := s.store.Delete(ctx, orderID); err != nil {
		return nil, err
	}
	return o, nil
}

// Get returns a single order, visible only to its owner or an admin.
func (s *Service) Get(ctx context.Context, orderID, requesterID string, isAdmin bool) (*Order, error) {
	o, err := s.store.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.CustomerID != requesterID && !isAdmin {
		return nil, ErrForbidden
	}
	return o, nil
}

// ListMine returns the customer's own orders, newest first.
func (s *Service) ListMine(ctx context.Context, customerID string) ([]Order, error) {
	return s.store.ListByCustomer(ctx, customerID)
}

// ListByStatus is an admin-only projection over all customers.
func (s *Service) ListByStatus(ctx context.Context, status Status, isAdmin bool) ([]Order, error) {
	if !isAdmin {
		return nil, ErrForbidden
	}
	return s.store.ListByStatus(ctx, status)
}

func (s *Service) ListAll(ctx context.Context, isAdmin bool) ([]Order, error) {
	if !isAdmin {
		return nil, ErrForbidden
	}
	return s.store.ListAll(ctx)
}

func productName(o *Order, productID string) string {
	for _, it := range o.Items {
		if it.ProductID == productID {
			return it.ProductName
		}
	}
	return ""
}
