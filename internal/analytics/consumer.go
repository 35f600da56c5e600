// Package analytics folds completed-order events into redis aggregates:
// revenue counters and a top-products sorted set. The reporting views that
// read these keys live in the back-office, not here.
package analytics

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/karavanmarket/orderflow/internal/kafka"
	"github.com/karavanmarket/orderflow/internal/orders"
	"github.com/karavanmarket/orderflow/internal/redisx"
)

type Service struct {
	Redis *redis.Client
	Name  string // dedup namespace
}

// HandleOrderEvent is the consumer handler for the approved and delivered
// topics. Events are deduplicated by event_id so redeliveries do not double
// count.
func (s *Service) HandleOrderEvent(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}

	dkey := fmt.Sprintf(redisx.KeyDedup, s.Name, env.EventID)
	seen, err := redisx.Exists(ctx, s.Redis, dkey)
	if err != nil {
		return err
	}
	if seen {
		return nil
	}

	switch env.EventType {
	case orders.EventOrderApproved:
		p, err := kafkax.UnwrapPayload[orders.OrderApprovedPayload](env.Payload)
		if err != nil {
			return err
		}
		pipe := s.Redis.TxPipeline()
		pipe.IncrBy(ctx, redisx.KeyRevenueApproved, p.TotalCents)
		pipe.Incr(ctx, redisx.KeyOrdersApproved)
		for _, it := range p.Items {
			pipe.ZIncrBy(ctx, redisx.KeyTopProducts, float64(it.Qty), it.ProductID)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
	case orders.EventOrderDelivered:
		p, err := kafkax.UnwrapPayload[orders.OrderDeliveredPayload](env.Payload)
		if err != nil {
			return err
		}
		pipe := s.Redis.TxPipeline()
		pipe.IncrBy(ctx, redisx.KeyRevenueDelivered, p.TotalCents)
		pipe.Incr(ctx, redisx.KeyOrdersDelivered)
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
	default:
		return nil // other topics' events are not ours to count
	}

	return s.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()
}
