package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-shop-checkout/internal/config"
	kafkax "github.com/ariefcatur/go-shop-checkout/internal/kafka"
	"github.com/ariefcatur/go-shop-checkout/internal/metrics"
	"github.com/ariefcatur/go-shop-checkout/internal/orders"
	"github.com/ariefcatur/go-shop-checkout/internal/projector"
	"github.com/ariefcatur/go-shop-checkout/internal/redisx"
	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Metrics on their own port
	m := metrics.New(prometheus.NewRegistry())
	mux := chi.NewRouter()
	mux.Method(http.MethodGet, "/metrics", m.Handler())
	metricsSrv := &http.Server{Addr: cfg.ProjectorMetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics listen: %v", err)
		}
	}()

	// Service
	svc := &projector.Service{
		Redis:       rdb,
		Status:      &redisx.StatusCache{Client: rdb},
		Metrics:     m,
		ServiceName: cfg.ServiceName + "-projector",
	}

	// Consumer
	topics := []string{orders.TopicOrderPlaced, orders.TopicOrderPaid}
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.ProjectorGroup, topics, cfg.ProjectorWorkers)

	done := make(chan struct{})
	go func() {
		defer close(done)
		log.Printf("projector consumer started: group=%s topics=%v workers=%d", cfg.ProjectorGroup, topics, cfg.ProjectorWorkers)
		if err := cons.Start(ctx, svc.HandleOrderEvent); err != nil {
			log.Printf("consumer exit: %v", err)
			cancel()
		}
	}()

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Println("shutting down consumer...")
	cancel()
	<-done

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = metricsSrv.Shutdown(ctx2)
}
