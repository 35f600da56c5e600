package orders

import (
	"encoding/json"
	"time"
)

const (
	EventOrderCreated   = "OrderCreated"
	EventOrderApproved  = "OrderApproved"
	EventOrderRejected  = "OrderRejected"
	EventOrderDelivered = "OrderDelivered"
	EventOrderCancelled = "OrderCancelled"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id
	Payload       json.RawMessage `json:"payload"`
}

type ItemSnapshot struct {
	ProductID      string `json:"product_id"`
	Qty            int    `json:"qty"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	TotalCents     int64  `json:"total_cents"`
}

func itemSnapshots(items []OrderItem) []ItemSnapshot {
	out := make([]ItemSnapshot, 0, len(items))
	for _, it := range items {
		out = append(out, ItemSnapshot{
			ProductID:      it.ProductID,
			Qty:            it.Qty,
			UnitPriceCents: it.UnitPriceCents,
			TotalCents:     it.TotalCents,
		})
	}
	return out
}

type OrderCreatedPayload struct {
	OrderID    string         `json:"order_id"`
	CustomerID string         `json:"customer_id"`
	Items      []ItemSnapshot `json:"items"`
	TotalCents int64          `json:"total_cents"`
}

// OrderApprovedPayload marks the point where stock was actually decremented;
// the analytics consumer treats approved orders as completed sales.
type OrderApprovedPayload struct {
	OrderID    string         `json:"order_id"`
	ApprovedBy string         `json:"approved_by"`
	Items      []ItemSnapshot `json:"items"`
	TotalCents int64          `json:"total_cents"`
}

type ShortageDetail struct {
	ProductID string `json:"product_id"`
	Available int    `json:"available"`
	Requested int    `json:"requested"`
}

type OrderRejectedPayload struct {
	OrderID string         `json:"order_id"`
	Reason  string         `json:"reason"` // OUT_OF_STOCK
	Detail  ShortageDetail `json:"detail"`
}

type OrderDeliveredPayload struct {
	OrderID    string `json:"order_id"`
	TotalCents int64  `json:"total_cents"`
}

type OrderCancelledPayload struct {
	OrderID     string `json:"order_id"`
	CancelledBy string `json:"cancelled_by"`
}

func NewCreatedPayload(o *Order) OrderCreatedPayload {
	return OrderCreatedPayload{
		OrderID:    o.ID,
		CustomerID: o.CustomerID,
		Items:      itemSnapshots(o.Items),
		TotalCents: o.TotalCents,
	}
}

func NewApprovedPayload(o *Order) OrderApprovedPayload {
	return OrderApprovedPayload{
		OrderID:    o.ID,
		ApprovedBy: o.ApprovedBy,
		Items:      itemSnapshots(o.Items),
		TotalCents: o.TotalCents,
	}
}
