package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore persists orders and their line items in postgres. Status
// transitions put the precondition in the WHERE clause; losing a race shows
// up as zero affected rows, never as a silent overwrite.
type PGStore struct{ DB *pgxpool.Pool }

func (s *PGStore) Create(ctx context.Context, o *Order) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO orders(id, customer_id, address, phone_number, status, total_cents, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		o.ID, o.CustomerID, o.Address, o.PhoneNumber, int(o.Status), o.TotalCents, o.CreatedAt)
	if err != nil {
		return err
	}
	for _, it := range o.Items {
		_, err = tx.Exec(ctx, `
			INSERT INTO order_items(order_id, product_id, qty, unit_price_cents, total_cents)
			VALUES ($1,$2,$3,$4,$5)`,
			o.ID, it.ProductID, it.Qty, it.UnitPriceCents, it.TotalCents)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

const orderColumns = `id, customer_id, address, phone_number, status, total_cents,
	created_at, approved_at, coalesce(approved_by,''), delivered_at`

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	var status int
	err := row.Scan(&o.ID, &o.CustomerID, &o.Address, &o.PhoneNumber, &status,
		&o.TotalCents, &o.CreatedAt, &o.ApprovedAt, &o.ApprovedBy, &o.DeliveredAt)
	if err != nil {
		return nil, err
	}
	o.Status = Status(status)
	return &o, nil
}

func (s *PGStore) GetByID(ctx context.Context, id string) (*Order, error) {
	row := s.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id)
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	items, err := s.loadItems(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	o.Items = items[id]
	return o, nil
}

// loadItems fetches line items (with product names) for a batch of orders in
// one query, keeping the list endpoints free of per-order round trips.
func (s *PGStore) loadItems(ctx context.Context, orderIDs []string) (map[string][]OrderItem, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT oi.order_id, oi.product_id, coalesce(p.name,''), oi.qty, oi.unit_price_cents, oi.total_cents
		FROM order_items oi
		LEFT JOIN products p ON p.id = oi.product_id
		WHERE oi.order_id = ANY($1)
		ORDER BY oi.id`, orderIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]OrderItem, len(orderIDs))
	for rows.Next() {
		var orderID string
		var it OrderItem
		if err := rows.Scan(&orderID, &it.ProductID, &it.ProductName, &it.Qty, &it.UnitPriceCents, &it.TotalCents); err != nil {
			return nil, err
		}
		out[orderID] = append(out[orderID], it)
	}
	return out, rows.Err()
}

func (s *PGStore) queryOrders(ctx context.Context, where string, orderBy string, args ...any) ([]Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders`
	if where != "" {
		q += ` WHERE ` + where
	}
	q += ` ORDER BY ` + orderBy
	rows, err := s.DB.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	var ids []string
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return out, nil
	}
	items, err := s.loadItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Items = items[out[i].ID]
	}
	return out, nil
}

func (s *PGStore) ListByCustomer(ctx context.Context, customerID string) ([]Order, error) {
	return s.queryOrders(ctx, `customer_id=$1`, `created_at DESC`, customerID)
}

func (s *PGStore) ListByStatus(ctx context.Context, status Status) ([]Order, error) {
	orderBy := `created_at DESC`
	switch status {
	case StatusApproved:
		orderBy = `approved_at DESC`
	case StatusDelivered:
		orderBy = `delivered_at DESC`
	}
	return s.queryOrders(ctx, `status=$1`, orderBy, int(status))
}

func (s *PGStore) ListAll(ctx context.Context) ([]Order, error) {
	return s.queryOrders(ctx, "", `created_at DESC`)
}

// conditionalErr distinguishes "order is gone" from "order changed under us"
// after a conditional update touched zero rows.
func (s *PGStore) conditionalErr(ctx context.Context, id string) error {
	var n int
	if err := s.DB.QueryRow(ctx, `SELECT count(*) FROM orders WHERE id=$1`, id).Scan(&n); err != nil {
		return fmt.Errorf("check order %s: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrConcurrentModification
}

func (s *PGStore) MarkApproved(ctx context.Context, id, adminID string, at time.Time) error {
	ct, err := s.DB.Exec(ctx, `
		UPDATE orders SET status=$2, approved_at=$3, approved_by=$4
		WHERE id=$1 AND status=$5`,
		id, int(StatusApproved), at, adminID, int(StatusPending))
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return s.conditionalErr(ctx, id)
	}
	return nil
}

func (s *PGStore) MarkDelivered(ctx context.Context, id string, at time.Time) error {
	ct, err := s.DB.Exec(ctx, `
		UPDATE orders SET status=$2, delivered_at=$3
		WHERE id=$1 AND status=$4`,
		id, int(StatusDelivered), at, int(StatusApproved))
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return s.conditionalErr(ctx, id)
	}
	return nil
}

func (s *PGStore) Delete(ctx context.Context, id string) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM order_items WHERE order_id=$1`, id); err != nil {
		return err
	}
	ct, err := tx.Exec(ctx, `DELETE FROM orders WHERE id=$1 AND status=$2`, id, int(StatusPending))
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		// rollback via defer restores the items
		return s.conditionalErr(ctx, id)
	}
	return tx.Commit(ctx)
}
