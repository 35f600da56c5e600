package orders

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karavanmarket/orderflow/internal/catalog"
	"github.com/karavanmarket/orderflow/internal/inventory"
)

type fakeCatalog struct {
	mu       sync.Mutex
	products map[string]catalog.Product
}

func newFakeCatalog(ps ...catalog.Product) *fakeCatalog {
	m := make(map[string]catalog.Product, len(ps))
	for _, p := range ps {
		m[p.ID] = p
	}
	return &fakeCatalog{products: m}
}

func (f *fakeCatalog) GetProducts(_ context.Context, ids []string) (map[string]catalog.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]catalog.Product, len(ids))
	for _, id := range ids {
		if p, ok := f.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (f *fakeCatalog) setPrice(id string, cents int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.products[id]
	p.PriceCents = cents
	f.products[id] = p
}

func product(id, name string, priceCents int64, stock int) catalog.Product {
	return catalog.Product{ID: id, Name: name, PriceCents: priceCents, Stock: stock, IsActive: true}
}

type fixture struct {
	svc    *Service
	store  *MemStore
	ledger *inventory.MemLedger
	cat    *fakeCatalog
}

func newFixture(products ...catalog.Product) *fixture {
	store := NewMemStore()
	stock := make(map[string]int, len(products))
	for _, p := range products {
		stock[p.ID] = p.Stock
	}
	ledger := inventory.NewMemLedger(stock)
	cat := newFakeCatalog(products...)
	return &fixture{
		svc:    NewService(store, ledger, cat),
		store:  store,
		ledger: ledger,
		cat:    cat,
	}
}

func (f *fixture) createOrder(t *testing.T, customerID string, items ...ItemInput) *Order {
	t.Helper()
	o, err := f.svc.Create(context.Background(), CreateOrderInput{
		CustomerID:  customerID,
		Address:     "12 Harbor Road",
		PhoneNumber: "+90 555 000 0000",
		Items:       items,
	})
	require.NoError(t, err)
	return o
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(product("p1", "Solar Panel", 120000, 12))
	ctx := context.Background()

	cases := []struct {
		name string
		in   CreateOrderInput
	}{
		{"missing address", CreateOrderInput{CustomerID: "u1", PhoneNumber: "x", Items: []ItemInput{{ProductID: "p1", Qty: 1}}}},
		{"missing phone", CreateOrderInput{CustomerID: "u1", Address: "x", Items: []ItemInput{{ProductID: "p1", Qty: 1}}}},
		{"no items", CreateOrderInput{CustomerID: "u1", Address: "x", PhoneNumber: "y"}},
		{"zero qty", CreateOrderInput{CustomerID: "u1", Address: "x", PhoneNumber: "y", Items: []ItemInput{{ProductID: "p1", Qty: 0}}}},
		{"negative qty", CreateOrderInput{CustomerID: "u1", Address: "x", PhoneNumber: "y", Items: []ItemInput{{ProductID: "p1", Qty: -2}}}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, c.in)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}

	// nothing was persisted along the way
	all, err := f.store.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCreateUnknownProductIsAllOrNothing(t *testing.T) {
	f := newFixture(product("p1", "Water Pump", 45000, 20))
	ctx := context.Background()

	_, err := f.svc.Create(ctx, CreateOrderInput{
		CustomerID:  "u1",
		Address:     "a",
		PhoneNumber: "p",
		Items: []ItemInput{
			{ProductID: "p1", Qty: 1},
			{ProductID: "ghost", Qty: 1},
		},
	})
	var unknown *UnknownProductError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "ghost", unknown.ProductID)

	all, err := f.store.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all, "no partial order may be created")
	assert.Equal(t, 20, f.ledger.Stock("p1"))
}

func TestCreateSoftStockCheck(t *testing.T) {
	f := newFixture(product("p1", "Diesel Heater", 350000, 5))
	ctx := context.Background()

	_, err := f.svc.Create(ctx, CreateOrderInput{
		CustomerID:  "u1",
		Address:     "a",
		PhoneNumber: "p",
		Items:       []ItemInput{{ProductID: "p1", Qty: 6}},
	})
	var short *InsufficientStockError
	require.ErrorAs(t, err, &short)
	assert.Equal(t, "p1", short.ProductID)
	assert.Equal(t, 5, short.Available)
	assert.Equal(t, 6, short.Requested)

	// the check is informational only: stock untouched either way
	assert.Equal(t, 5, f.ledger.Stock("p1"))
}

func TestCreateTakesPriceSnapshot(t *testing.T) {
	f := newFixture(product("p1", "LED Lamp", 35000, 15), product("p2", "Inverter", 150000, 8))
	o := f.createOrder(t, "u1", ItemInput{ProductID: "p1", Qty: 2}, ItemInput{ProductID: "p2", Qty: 1})

	require.Len(t, o.Items, 2)
	assert.Equal(t, int64(2*35000+150000), o.TotalCents)

	// a later catalog price change must not leak into the order
	f.cat.setPrice("p1", 99999)
	got, err := f.svc.Get(context.Background(), o.ID, "u1", false)
	require.NoError(t, err)

	var sum int64
	for _, it := range got.Items {
		assert.Equal(t, it.UnitPriceCents*int64(it.Qty), it.TotalCents)
		sum += it.TotalCents
	}
	assert.Equal(t, sum, got.TotalCents)
	assert.Equal(t, int64(35000), got.Items[0].UnitPriceCents)
}

func TestLifecycleEndToEnd(t *testing.T) {
	f := newFixture(product("p1", "Solar Panel", 10000, 10))
	ctx := context.Background()

	o := f.createOrder(t, "customer-1", ItemInput{ProductID: "p1", Qty: 2})
	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, int64(20000), o.TotalCents)
	assert.Nil(t, o.ApprovedAt)
	assert.Nil(t, o.DeliveredAt)
	assert.Equal(t, 10, f.ledger.Stock("p1"), "creation must not reserve stock")

	approved, err := f.svc.Approve(ctx, o.ID, "admin-1", true)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, approved.Status)
	assert.Equal(t, "admin-1", approved.ApprovedBy)
	require.NotNil(t, approved.ApprovedAt)
	assert.Nil(t, approved.DeliveredAt)
	assert.Equal(t, 8, f.ledger.Stock("p1"))

	delivered, err := f.svc.Deliver(ctx, o.ID, "admin-1", true)
	require.NoError(t, err)
	assert.Equal(t, StatusDelivered, delivered.Status)
	require.NotNil(t, delivered.DeliveredAt)
	assert.Equal(t, 8, f.ledger.Stock("p1"), "delivery has no stock effect")
}

func TestApproveRequiresAdmin(t *testing.T) {
	f := newFixture(product("p1", "Lamp", 1000, 5))
	o := f.createOrder(t, "u1", ItemInput{ProductID: "p1", Qty: 1})

	_, err := f.svc.Approve(context.Background(), o.ID, "u1", false)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Equal(t, 5, f.ledger.Stock("p1"))

	_, err = f.svc.Deliver(context.Background(), o.ID, "u1", false)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestApproveRechecksCurrentStock(t *testing.T) {
	f := newFixture(product("p1", "Water Tank", 85000, 5))
	o := f.createOrder(t, "u1", ItemInput{ProductID: "p1", Qty: 3})

	// stock dropped between creation and approval
	f.ledger.SetStock("p1", 2)

	_, err := f.svc.Approve(context.Background(), o.ID, "admin", true)
	var short *InsufficientStockError
	require.ErrorAs(t, err, &short)
	assert.Equal(t, "p1", short.ProductID)
	assert.Equal(t, 2, short.Available)
	assert.Equal(t, 3, short.Requested)
	assert.Equal(t, "Water Tank", short.ProductName)

	got, err := f.svc.Get(context.Background(), o.ID, "u1", false)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status, "failed approval leaves the order pending")
	assert.Equal(t, 2, f.ledger.Stock("p1"), "failed approval must not decrement")
}

func TestApproveAllOrNothingAcrossLines(t *testing.T) {
	f := newFixture(product("p1", "Lamp", 1000, 10), product("p2", "Pump", 2000, 1))
	o := f.createOrder(t, "u1",
		ItemInput{ProductID: "p1", Qty: 2},
		ItemInput{ProductID: "p2", Qty: 1},
	)
	f.ledger.SetStock("p2", 0)

	_, err := f.svc.Approve(context.Background(), o.ID, "admin", true)
	var short *InsufficientStockError
	require.ErrorAs(t, err, &short)
	assert.Equal(t, "p2", short.ProductID)

	assert.Equal(t, 10, f.ledger.Stock("p1"), "passing lines must not stay decremented")
	assert.Equal(t, 0, f.ledger.Stock("p2"))
}

func TestApproveTwice(t *testing.T) {
	f := newFixture(product("p1", "Lamp", 1000, 10))
	o := f.createOrder(t, "u1", ItemInput{ProductID: "p1", Qty: 2})
	ctx := context.Background()

	_, err := f.svc.Approve(ctx, o.ID, "admin", true)
	require.NoError(t, err)

	_, err = f.svc.Approve(ctx, o.ID, "admin", true)
	var badState *InvalidTransitionError
	require.ErrorAs(t, err, &badState)
	assert.Equal(t, StatusApproved, badState.Current)

	assert.Equal(t, 8, f.ledger.Stock("p1"), "second approval must not double-decrement")
}

func TestConcurrentApprovalsScarceStock(t *testing.T) {
	f := newFixture(product("p1", "Inverter", 150000, 5))
	ctx := context.Background()

	o1 := f.createOrder(t, "u1", ItemInput{ProductID: "p1", Qty: 3})
	o2 := f.createOrder(t, "u2", ItemInput{ProductID: "p1", Qty: 3})

	errs := make([]error, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); _, errs[0] = f.svc.Approve(ctx, o1.ID, "admin", true) }()
	go func() { defer wg.Done(); _, errs[1] = f.svc.Approve(ctx, o2.ID, "admin", true) }()
	wg.Wait()

	var ok, short int
	for _, err := range errs {
		var s *InsufficientStockError
		switch {
		case err == nil:
			ok++
		case errors.As(err, &s):
			short++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok, "exactly one approval may win")
	assert.Equal(t, 1, short, "the loser must see insufficient stock")
	assert.Equal(t, 2, f.ledger.Stock("p1"))
}

func TestConcurrentApprovalsSameOrder(t *testing.T) {
	f := newFixture(product("p1", "Lamp", 1000, 10))
	ctx := context.Background()
	o := f.createOrder(t, "u1", ItemInput{ProductID: "p1", Qty: 2})

	errs := make([]error, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	for i := 0; i < 2; i++ {
		go func(i int) { defer wg.Done(); _, errs[i] = f.svc.Approve(ctx, o.ID, "admin", true) }(i)
	}
	wg.Wait()

	var ok, lost int
	for _, err := range errs {
		var badState *InvalidTransitionError
		switch {
		case err == nil:
			ok++
		case errors.As(err, &badState) || errors.Is(err, ErrConcurrentModification):
			lost++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, lost)
	assert.Equal(t, 8, f.ledger.Stock("p1"), "stock decremented exactly once")
}

// flakyStore simulates an optimistic-concurrency conflict on the status
// update so the engine's retry and release path is exercised.
type flakyStore struct {
	*MemStore
	conflicts int32
}

func (s *flakyStore) MarkApproved(ctx context.Context, id, adminID string, at time.Time) error {
	if atomic.AddInt32(&s.conflicts, -1) >= 0 {
		return ErrConcurrentModification
	}
	return s.MemStore.MarkApproved(ctx, id, adminID, at)
}

func TestApproveRetriesConcurrentModification(t *testing.T) {
	store := &flakyStore{MemStore: NewMemStore(), conflicts: 1}
	ledger := inventory.NewMemLedger(map[string]int{"p1": 10})
	cat := newFakeCatalog(product("p1", "Lamp", 1000, 10))
	svc := NewService(store, ledger, cat)
	ctx := context.Background()

	o, err := svc.Create(ctx, CreateOrderInput{
		CustomerID: "u1", Address: "a", PhoneNumber: "p",
		Items: []ItemInput{{ProductID: "p1", Qty: 2}},
	})
	require.NoError(t, err)

	approved, err := svc.Approve(ctx, o.ID, "admin", true)
	require.NoError(t, err, "a single benign conflict must be retried internally")
	assert.Equal(t, StatusApproved, approved.Status)
	assert.Equal(t, 8, ledger.Stock("p1"), "retry must not leak reservations")
}

func TestApproveGivesUpAfterBoundedRetries(t *testing.T) {
	store := &flakyStore{MemStore: NewMemStore(), conflicts: 100}
	ledger := inventory.NewMemLedger(map[string]int{"p1": 10})
	cat := newFakeCatalog(product("p1", "Lamp", 1000, 10))
	svc := NewService(store, ledger, cat)
	ctx := context.Background()

	o, err := svc.Create(ctx, CreateOrderInput{
		CustomerID: "u1", Address: "a", PhoneNumber: "p",
		Items: []ItemInput{{ProductID: "p1", Qty: 2}},
	})
	require.NoError(t, err)

	_, err = svc.Approve(ctx, o.ID, "admin", true)
	assert.ErrorIs(t, err, ErrConcurrentModification)
	assert.Equal(t, 10, ledger.Stock("p1"), "every failed attempt must release its reservation")
}

func TestDeliverPendingFails(t *testing.T) {
	f := newFixture(product("p1", "Lamp", 1000, 10))
	o := f.createOrder(t, "u1", ItemInput{ProductID: "p1", Qty: 1})

	_, err := f.svc.Deliver(context.Background(), o.ID, "admin", true)
	var badState *InvalidTransitionError
	require.ErrorAs(t, err, &badState)
	assert.Equal(t, StatusPending, badState.Current)

	got, err := f.svc.Get(context.Background(), o.ID, "u1", false)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
	assert.Nil(t, got.DeliveredAt)
}

func TestCancelRules(t *testing.T) {
	f := newFixture(product("p1", "Lamp", 1000, 10))
	ctx := context.Background()

	t.Run("non-owner non-admin is forbidden", func(t *testing.T) {
		o := f.createOrder(t, "u1", ItemInput{ProductID: "p1", Qty: 1})
		_, err := f.svc.Cancel(ctx, o.ID, "intruder", false)
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("owner cancels pending", func(t *testing.T) {
		o := f.createOrder(t, "u2", ItemInput{ProductID: "p1", Qty: 1})
		_, err := f.svc.Cancel(ctx, o.ID, "u2", false)
		require.NoError(t, err)

		_, err = f.svc.Get(ctx, o.ID, "u2", false)
		assert.ErrorIs(t, err, ErrNotFound, "cancelled orders leave the active set")

		mine, err := f.svc.ListMine(ctx, "u2")
		require.NoError(t, err)
		assert.Empty(t, mine)
	})

	t.Run("admin cancels someone else's pending", func(t *testing.T) {
		o := f.createOrder(t, "u3", ItemInput{ProductID: "p1", Qty: 1})
		_, err := f.svc.Cancel(ctx, o.ID, "admin", true)
		assert.NoError(t, err)
	})

	t.Run("approved orders cannot be cancelled", func(t *testing.T) {
		o := f.createOrder(t, "u4", ItemInput{ProductID: "p1", Qty: 1})
		_, err := f.svc.Approve(ctx, o.ID, "admin", true)
		require.NoError(t, err)

		_, err = f.svc.Cancel(ctx, o.ID, "u4", false)
		var badState *InvalidTransitionError
		require.ErrorAs(t, err, &badState)
		assert.Equal(t, StatusApproved, badState.Current)
	})
}

func TestGetEnforcesOwnership(t *testing.T) {
	f := newFixture(product("p1", "Lamp", 1000, 10))
	ctx := context.Background()
	o := f.createOrder(t, "u1", ItemInput{ProductID: "p1", Qty: 1})

	_, err := f.svc.Get(ctx, o.ID, "someone-else", false)
	assert.ErrorIs(t, err, ErrForbidden)

	got, err := f.svc.Get(ctx, o.ID, "someone-else", true)
	require.NoError(t, err)
	assert.Equal(t, o.ID, got.ID)

	_, err = f.svc.Get(ctx, "no-such-order", "u1", false)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListings(t *testing.T) {
	f := newFixture(product("p1", "Lamp", 1000, 100))
	ctx := context.Background()

	// deterministic clock: each call one minute later
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	var tick int64
	f.svc.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	a := f.createOrder(t, "u1", ItemInput{ProductID: "p1", Qty: 1})
	b := f.createOrder(t, "u1", ItemInput{ProductID: "p1", Qty: 2})
	c := f.createOrder(t, "u2", ItemInput{ProductID: "p1", Qty: 3})

	t.Run("my orders newest first", func(t *testing.T) {
		mine, err := f.svc.ListMine(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, mine, 2)
		assert.Equal(t, b.ID, mine[0].ID)
		assert.Equal(t, a.ID, mine[1].ID)
	})

	t.Run("status listings are admin-only", func(t *testing.T) {
		_, err := f.svc.ListByStatus(ctx, StatusPending, false)
		assert.ErrorIs(t, err, ErrForbidden)
		_, err = f.svc.ListAll(ctx, false)
		assert.ErrorIs(t, err, ErrForbidden)
	})

	// approve in reverse creation order so approval time disagrees with
	// creation time
	_, err := f.svc.Approve(ctx, c.ID, "admin", true)
	require.NoError(t, err)
	_, err = f.svc.Approve(ctx, a.ID, "admin", true)
	require.NoError(t, err)

	t.Run("approved sorted by approval time", func(t *testing.T) {
		approved, err := f.svc.ListByStatus(ctx, StatusApproved, true)
		require.NoError(t, err)
		require.Len(t, approved, 2)
		assert.Equal(t, a.ID, approved[0].ID, "a was approved last, so it lists first")
		assert.Equal(t, c.ID, approved[1].ID)
	})

	t.Run("pending only contains the rest", func(t *testing.T) {
		pending, err := f.svc.ListByStatus(ctx, StatusPending, true)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, b.ID, pending[0].ID)
	})

	_, err = f.svc.Deliver(ctx, a.ID, "admin", true)
	require.NoError(t, err)

	t.Run("delivered sorted by delivery time", func(t *testing.T) {
		delivered, err := f.svc.ListByStatus(ctx, StatusDelivered, true)
		require.NoError(t, err)
		require.Len(t, delivered, 1)
		assert.Equal(t, a.ID, delivered[0].ID)
	})

	t.Run("all listing spans statuses", func(t *testing.T) {
		all, err := f.svc.ListAll(ctx, true)
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})
}

func TestInactiveProductsRemainOrderable(t *testing.T) {
	p := product("p1", "Legacy Lamp", 5000, 3)
	p.IsActive = false
	f := newFixture(p)

	o := f.createOrder(t, "u1", ItemInput{ProductID: "p1", Qty: 1})
	assert.Equal(t, int64(5000), o.TotalCents)
}
