// Package catalog is the read side of the product catalog. The order core
// only consumes prices and stock from here; product/category CRUD lives in
// the back-office service and is not part of this module.
package catalog

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("product not found")

type Category struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type Product struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	PriceCents  int64     `json:"price_cents"`
	Stock       int       `json:"stock"`
	CategoryID  string    `json:"category_id"`
	Brand       string    `json:"brand,omitempty"`
	ImageURL    string    `json:"image_url,omitempty"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
