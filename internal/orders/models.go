package orders

import "time"

type Order struct {
	ID          string      `json:"id"`
	CustomerID  string      `json:"customer_id"`
	Address     string      `json:"address"`
	PhoneNumber string      `json:"phone_number"`
	Status      Status      `json:"status"`
	TotalCents  int64       `json:"total_cents"`
	Items       []OrderItem `json:"items"`
	CreatedAt   time.Time   `json:"created_at"`
	ApprovedAt  *time.Time  `json:"approved_at,omitempty"`
	ApprovedBy  string      `json:"approved_by,omitempty"`
	DeliveredAt *time.Time  `json:"delivered_at,omitempty"`
}

// OrderItem carries a price snapshot taken when the order was created. The
// snapshot never changes, even if the catalog price does.
type OrderItem struct {
	ProductID      string `json:"product_id"`
	ProductName    string `json:"product_name,omitempty"`
	Qty            int    `json:"qty"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	TotalCents     int64  `json:"total_cents"`
}

type ItemInput struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type CreateOrderInput struct {
	CustomerID  string
	Address     string
	PhoneNumber string
	Items       []ItemInput
}
