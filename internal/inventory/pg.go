package inventory

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGLedger stores stock in the products table. Each bulk operation runs in a
// single transaction with per-row FOR UPDATE locks, so two concurrent
// reservations on the same product serialize and the check-then-decrement
// cannot interleave.
type PGLedger struct{ DB *pgxpool.Pool }

func (l *PGLedger) CheckAvailability(ctx context.Context, productID string, qty int) (bool, error) {
	var stock int
	err := l.DB.QueryRow(ctx, `SELECT stock FROM products WHERE id=$1`, productID).Scan(&stock)
	if err != nil {
		return false, err
	}
	return stock >= qty, nil
}

func (l *PGLedger) Reserve(ctx context.Context, productID string, qty int) error {
	return l.ReserveAll(ctx, []Line{{ProductID: productID, Qty: qty}})
}

func (l *PGLedger) Release(ctx context.Context, productID string, qty int) error {
	return l.ReleaseAll(ctx, []Line{{ProductID: productID, Qty: qty}})
}

func (l *PGLedger) ReserveAll(ctx context.Context, lines []Line) error {
	tx, err := l.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, ln := range lines {
		var stock int
		if err := tx.QueryRow(ctx, `SELECT stock FROM products WHERE id=$1 FOR UPDATE`, ln.ProductID).Scan(&stock); err != nil {
			return err
		}
		if stock < ln.Qty {
			// rollback via defer, earlier decrements in this tx are discarded
			return &InsufficientStockError{ProductID: ln.ProductID, Available: stock, Requested: ln.Qty}
		}
		if _, err := tx.Exec(ctx, `UPDATE products SET stock = stock - $2, updated_at = now() WHERE id=$1`, ln.ProductID, ln.Qty); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (l *PGLedger) ReleaseAll(ctx context.Context, lines []Line) error {
	tx, err := l.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, ln := range lines {
		if _, err := tx.Exec(ctx, `UPDATE products SET stock = stock + $2, updated_at = now() WHERE id=$1`, ln.ProductID, ln.Qty); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}
