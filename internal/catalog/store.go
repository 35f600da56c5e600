package catalog

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct{ DB *pgxpool.Pool }

const productColumns = `id, name, coalesce(description,''), price_cents, stock,
	category_id, coalesce(brand,''), coalesce(image_url,''), is_active, created_at, updated_at`

func scanProduct(row pgx.Row, p *Product) error {
	return row.Scan(&p.ID, &p.Name, &p.Description, &p.PriceCents, &p.Stock,
		&p.CategoryID, &p.Brand, &p.ImageURL, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
}

func (s *Store) GetProduct(ctx context.Context, id string) (Product, error) {
	var p Product
	row := s.DB.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1`, id)
	if err := scanProduct(row, &p); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrNotFound
		}
		return Product{}, err
	}
	return p, nil
}

// GetProducts resolves a batch of product IDs in one query. Missing IDs are
// simply absent from the result map; the caller decides whether that is fatal.
func (s *Store) GetProducts(ctx context.Context, ids []string) (map[string]Product, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+productColumns+` FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]Product, len(ids))
	for rows.Next() {
		var p Product
		if err := scanProduct(rows, &p); err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

func (s *Store) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+productColumns+` FROM products ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		var p Product
		if err := scanProduct(rows, &p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
