package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/karavanmarket/orderflow/internal/analytics"
	"github.com/karavanmarket/orderflow/internal/config"
	kafkax "github.com/karavanmarket/orderflow/internal/kafka"
	"github.com/karavanmarket/orderflow/internal/orders"
	"github.com/karavanmarket/orderflow/internal/redisx"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	svc := &analytics.Service{
		Redis: rdb,
		Name:  "analytics",
	}

	group := getenv("ANALYTICS_GROUP", "analytics-svc")
	workers := mustAtoi(os.Getenv("ANALYTICS_WORKERS"), 4)

	for _, topic := range []string{orders.TopicOrderApproved, orders.TopicOrderDelivered} {
		cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, topic, workers)
		go func(topic string) {
			log.Printf("analytics consumer started: group=%s topic=%s workers=%d", group, topic, workers)
			if err := cons.Start(ctx, svc.HandleOrderEvent); err != nil {
				log.Printf("consumer exit (%s): %v", topic, err)
				cancel()
			}
		}(topic)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
		log.Println("shutting down consumers...")
		cancel()
	case <-ctx.Done():
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func mustAtoi(s string, def int) int {
	if s == "" {
		return def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}
