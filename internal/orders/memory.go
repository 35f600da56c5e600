package orders

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemStore keeps orders in a map behind a mutex. Conditional mutations check
// their status precondition under the lock, so it exhibits the same race
// semantics as the postgres store. It backs the test suite.
type MemStore struct {
	mu      sync.Mutex
	orders  map[string]*Order
	seq     map[string]int // insertion order, tie-breaker for equal timestamps
	nextSeq int
}

func NewMemStore() *MemStore {
	return &MemStore{
		orders: make(map[string]*Order),
		seq:    make(map[string]int),
	}
}

func cloneOrder(o *Order) *Order {
	c := *o
	c.Items = make([]OrderItem, len(o.Items))
	copy(c.Items, o.Items)
	if o.ApprovedAt != nil {
		t := *o.ApprovedAt
		c.ApprovedAt = &t
	}
	if o.DeliveredAt != nil {
		t := *o.DeliveredAt
		c.DeliveredAt = &t
	}
	return &c
}

func (s *MemStore) Create(_ context.Context, o *Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = cloneOrder(o)
	s.seq[o.ID] = s.nextSeq
	s.nextSeq++
	return nil
}

func (s *MemStore) GetByID(_ context.Context, id string) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneOrder(o), nil
}

func (s *MemStore) list(filter func(*Order) bool, newerFirst func(a, b *Order) bool) []Order {
	var picked []*Order
	for _, o := range s.orders {
		if filter(o) {
			picked = append(picked, o)
		}
	}
	sort.Slice(picked, func(i, j int) bool {
		a, b := picked[i], picked[j]
		if newerFirst(a, b) != newerFirst(b, a) {
			return newerFirst(a, b)
		}
		return s.seq[a.ID] > s.seq[b.ID]
	})
	out := make([]Order, 0, len(picked))
	for _, o := range picked {
		out = append(out, *cloneOrder(o))
	}
	return out
}

func (s *MemStore) ListByCustomer(_ context.Context, customerID string) ([]Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list(
		func(o *Order) bool { return o.CustomerID == customerID },
		func(a, b *Order) bool { return a.CreatedAt.After(b.CreatedAt) },
	), nil
}

func (s *MemStore) ListByStatus(_ context.Context, status Status) ([]Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := func(o *Order) time.Time {
		switch status {
		case StatusApproved:
			if o.ApprovedAt != nil {
				return *o.ApprovedAt
			}
		case StatusDelivered:
			if o.DeliveredAt != nil {
				return *o.DeliveredAt
			}
		}
		return o.CreatedAt
	}
	return s.list(
		func(o *Order) bool { return o.Status == status },
		func(a, b *Order) bool { return ts(a).After(ts(b)) },
	), nil
}

func (s *MemStore) ListAll(_ context.Context) ([]Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list(
		func(*Order) bool { return true },
		func(a, b *Order) bool { return a.CreatedAt.After(b.CreatedAt) },
	), nil
}

func (s *MemStore) MarkApproved(_ context.Context, id, adminID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return ErrNotFound
	}
	if o.Status != StatusPending {
		return ErrConcurrentModification
	}
	o.Status = StatusApproved
	o.ApprovedAt = &at
	o.ApprovedBy = adminID
	return nil
}

func (s *MemStore) MarkDelivered(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return ErrNotFound
	}
	if o.Status != StatusApproved {
		return ErrConcurrentModification
	}
	o.Status = StatusDelivered
	o.DeliveredAt = &at
	return nil
}

func (s *MemStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return ErrNotFound
	}
	if o.Status != StatusPending {
		return ErrConcurrentModification
	}
	delete(s.orders, id)
	delete(s.seq, id)
	return nil
}
