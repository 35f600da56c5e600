package redisx

import "time"

const (
	// Cache of an order's status document: order_status:{order_id}
	KeyOrderStatus = "order_status:%s"

	// Dedup for event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// Aggregates maintained by the analytics consumer.
	KeyRevenueApproved  = "analytics:revenue_cents:approved"
	KeyRevenueDelivered = "analytics:revenue_cents:delivered"
	KeyOrdersApproved   = "analytics:orders:approved"
	KeyOrdersDelivered  = "analytics:orders:delivered"
	KeyTopProducts      = "analytics:top_products" // sorted set, score = units sold
)

var (
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
