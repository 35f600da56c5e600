// Package seed loads the sample catalog on first start. It is a one-shot
// bootstrap concern invoked from the process entry point, never from the
// order lifecycle itself, and is idempotent: a non-empty catalog is left
// alone.
package seed

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type sampleProduct struct {
	name        string
	description string
	priceCents  int64
	stock       int
	brand       string
}

var sampleCatalog = map[string][]sampleProduct{
	"Power & Lighting": {
		{"12V LED Ceiling Lamp", "Energy-efficient 12V LED ceiling light, 3000K warm white.", 35000, 15, "CampLite"},
		{"1000W Pure Sine Inverter", "12V DC in, 230V AC out. Safe for laptops and sensitive electronics.", 150000, 8, "VoltCraft"},
		{"100W Solar Panel", "Monocrystalline panel, 22% efficiency.", 120000, 12, "SunTrail"},
	},
	"Water Systems": {
		{"100L Fresh Water Tank", "Food-grade plastic, easy mounting.", 85000, 10, "AquaVan"},
		{"12V Water Pump", "Quiet operation, 10 L/min.", 45000, 20, "AquaVan"},
	},
	"Heating & Cooling": {
		{"2kW Diesel Heater", "Low fuel consumption, thermostat control.", 350000, 5, "HeatNomad"},
	},
}

func Run(ctx context.Context, db *pgxpool.Pool) error {
	var n int
	if err := db.QueryRow(ctx, `SELECT count(*) FROM categories`).Scan(&n); err != nil {
		return fmt.Errorf("seed: count categories: %w", err)
	}
	if n > 0 {
		log.Println("seed: catalog already populated, skipping")
		return nil
	}

	tx, err := db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for category, products := range sampleCatalog {
		catID := uuid.NewString()
		if _, err := tx.Exec(ctx, `
			INSERT INTO categories(id, name, created_at) VALUES ($1,$2,now())`,
			catID, category); err != nil {
			return fmt.Errorf("seed: insert category %s: %w", category, err)
		}
		for _, p := range products {
			if _, err := tx.Exec(ctx, `
				INSERT INTO products(id, name, description, price_cents, stock, category_id, brand, is_active, created_at, updated_at)
				VALUES ($1,$2,$3,$4,$5,$6,$7,true,now(),now())`,
				uuid.NewString(), p.name, p.description, p.priceCents, p.stock, catID, p.brand); err != nil {
				return fmt.Errorf("seed: insert product %s: %w", p.name, err)
			}
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	log.Println("seed: sample catalog created")
	return nil
}
