package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"

	"github.com/karavanmarket/orderflow/internal/catalog"
	"github.com/karavanmarket/orderflow/internal/config"
	"github.com/karavanmarket/orderflow/internal/httpx"
	"github.com/karavanmarket/orderflow/internal/identity"
	"github.com/karavanmarket/orderflow/internal/inventory"
	kafkax "github.com/karavanmarket/orderflow/internal/kafka"
	"github.com/karavanmarket/orderflow/internal/orders"
	"github.com/karavanmarket/orderflow/internal/postgres"
	"github.com/karavanmarket/orderflow/internal/redisx"
	"github.com/karavanmarket/orderflow/internal/seed"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	if cfg.SeedSample {
		if err := seed.Run(ctx, db); err != nil {
			log.Fatalf("seed: %v", err)
		}
	}

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024)
	prod.Start(ctx)

	catStore := &catalog.Store{DB: db}
	svc := orders.NewService(
		&orders.PGStore{DB: db},
		&inventory.PGLedger{DB: db},
		catStore,
	)

	resolver := identity.ParseStaticTokens(cfg.AuthTokens)

	router := httpx.NewRouter()
	(&httpx.ProductsHandler{Catalog: catStore}).Register(router)
	oh := &httpx.OrdersHandler{
		Service:  svc,
		Producer: prod,
		Redis:    rdb,
		Name:     cfg.ServiceName,
	}
	router.Group(func(r chi.Router) {
		r.Use(httpx.Authenticate(resolver))
		oh.Register(r)
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		log.Printf("HTTP listening at %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	prod.Close() // close inbox -> flush & close writer
	cancel()
	prod.WaitClosed()
}
