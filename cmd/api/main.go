package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-shop-checkout/internal/auth"
	"github.com/ariefcatur/go-shop-checkout/internal/cart"
	"github.com/ariefcatur/go-shop-checkout/internal/checkout"
	"github.com/ariefcatur/go-shop-checkout/internal/config"
	"github.com/ariefcatur/go-shop-checkout/internal/httpx"
	kafkax "github.com/ariefcatur/go-shop-checkout/internal/kafka"
	"github.com/ariefcatur/go-shop-checkout/internal/metrics"
	"github.com/ariefcatur/go-shop-checkout/internal/orders"
	"github.com/ariefcatur/go-shop-checkout/internal/postgres"
	"github.com/ariefcatur/go-shop-checkout/internal/redisx"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	if cfg.MigrateOnStart {
		if err := postgres.Migrate(cfg.PostgresDSN); err != nil {
			log.Fatalf("migrate: %v", err)
		}
	}
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	statusCache := &redisx.StatusCache{Client: rdb}

	// Kafka producers, one per topic
	placed := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderPlaced, 1024)
	placed.Start(ctx)
	paid := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderPaid, 1024)
	paid.Start(ctx)

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Services & handlers
	tokens := &auth.Tokens{Secret: []byte(cfg.JWTSecret), TTL: cfg.JWTTTL, Issuer: cfg.ServiceName}
	svc := &checkout.Service{
		Store:           &checkout.PGStore{Pool: db},
		Placed:          placed,
		Paid:            paid,
		Status:          statusCache,
		Currency:        cfg.Currency,
		DefaultCountry:  cfg.DefaultCountry,
		PaymentProvider: cfg.PaymentProvider,
		ServiceName:     cfg.ServiceName,
	}

	router := httpx.NewRouter(m, tokens)
	(&httpx.CheckoutHandler{
		Service:     svc,
		Idempotency: &redisx.Idempotency{Client: rdb},
		Metrics:     m,
		ServiceName: cfg.ServiceName,
	}).Register(router)
	(&httpx.OrdersHandler{Orders: &orders.Repo{DB: db}, Status: statusCache}).Register(router)
	(&httpx.CartHandler{Carts: &cart.Repo{DB: db}}).Register(router)
	(&httpx.AuthHandler{
		Auth:        &auth.Service{Users: &auth.UserRepo{DB: db}, Tokens: tokens},
		Carts:       &cart.Merger{Pool: db},
		ServiceName: cfg.ServiceName,
	}).Register(router)

	// HTTP server
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	// graceful shutdown
	go func() {
		log.Printf("HTTP listening at %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	placed.Close() // flush queued events, then close the writer
	paid.Close()
	placed.WaitClosed()
	paid.WaitClosed()
	cancel()
}
