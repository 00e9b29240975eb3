package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ariefcatur/seruni-shop/internal/cart"
	"github.com/ariefcatur/seruni-shop/internal/catalog"
	"github.com/ariefcatur/seruni-shop/internal/checkout"
	"github.com/ariefcatur/seruni-shop/internal/config"
	"github.com/ariefcatur/seruni-shop/internal/httpx"
	kafkax "github.com/ariefcatur/seruni-shop/internal/kafka"
	"github.com/ariefcatur/seruni-shop/internal/logging"
	"github.com/ariefcatur/seruni-shop/internal/payment"
	"github.com/ariefcatur/seruni-shop/internal/postgres"
	"github.com/ariefcatur/seruni-shop/internal/redisx"
	"github.com/ariefcatur/seruni-shop/internal/shipping"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger := logging.Init(cfg.ServiceName, cfg.LogFile)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producers, satu per topic
	pCreated := kafkax.NewProducer(cfg.KafkaBrokers, checkout.TopicOrderCreated, 1024)
	pCreated.Start(ctx)
	pStatus := kafkax.NewProducer(cfg.KafkaBrokers, checkout.TopicOrderStatusChanged, 1024)
	pStatus.Start(ctx)

	// Service
	svc := &checkout.Service{
		Store:           &checkout.Repo{DB: db},
		Snap:            payment.NewClient(cfg.SnapBaseURL, cfg.SnapServerKey),
		Distance:        shipping.NewClient(cfg.LocationBaseURL, cfg.LocationAPIKey),
		ProducerCreated: pCreated,
		ProducerStatus:  pStatus,
		ServiceName:     cfg.ServiceName,
		StoreLon:        cfg.StoreLongitude,
		StoreLat:        cfg.StoreLatitude,
	}

	// Router & handlers
	router := httpx.NewRouter()
	(&httpx.CheckoutHandler{Svc: svc, Redis: rdb, ServerKey: cfg.SnapServerKey}).Register(router)
	(&httpx.CartHandler{Repo: &cart.Repo{DB: db}, Catalog: &catalog.Repo{DB: db}}).Register(router)
	(&httpx.CatalogHandler{Repo: &catalog.Repo{DB: db}}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	// graceful shutdown
	go func() {
		logger.Info("HTTP listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	pCreated.Close()
	pStatus.Close()
	cancel()
	pCreated.WaitClosed()
	pStatus.WaitClosed()
}
