package orders

const (
	TopicOrderCreated   = "order.created"
	TopicOrderApproved  = "order.approved"
	TopicOrderRejected  = "order.rejected"
	TopicOrderDelivered = "order.delivered"
	TopicOrderCancelled = "order.cancelled"
)

// Partition key = order_id so all events of one order keep their relative order.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
