package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"commerce-core/config"
	"commerce-core/internal/api"
	"commerce-core/internal/broker"
	"commerce-core/internal/gateway"
	"commerce-core/internal/pricing"
	"commerce-core/internal/redisclient"
	"commerce-core/internal/service"
	"commerce-core/internal/store"
	"commerce-core/internal/upload"
	"commerce-core/internal/util"
	"commerce-core/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting commerce core")

	tp, err := util.InitTracer("commerce-core", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
	defer producer.Close()
	log.Println("Kafka producer initialized")

	publisher := broker.NewNotificationPublisher(producer)

	checkoutGateway := gateway.NewCheckoutGateway(cfg.Checkout.KeyID, cfg.Checkout.KeySecret, cfg.Checkout.BaseURL, nil)
	redirectGateway := gateway.NewRedirectGateway(cfg.Redirect.MerchantID, cfg.Redirect.SaltKey, cfg.Redirect.SaltIndex, cfg.Redirect.BaseURL, nil)
	uploader := upload.NewClient(cfg.Uploads.BaseURL, cfg.Uploads.APIKey, nil)

	pricer := pricing.NewEngine(db, cfg.Business.ShippingCost)

	orderService := service.NewOrderService(
		db,
		pricer,
		checkoutGateway,
		redirectGateway,
		uploader,
		publisher,
		redisClient,
		cfg.Business.DefaultCurrency,
		time.Duration(cfg.Business.PendingOrderTTLHrs)*time.Hour,
		time.Duration(cfg.Business.CallbackLockSeconds)*time.Second,
	)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	notificationConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder, cfg.Kafka.ConsumerGroup)
	notificationWorker := worker.NewNotificationWorker(notificationConsumer, worker.NewLogNotifier())
	go func() {
		if err := notificationWorker.Start(workerCtx); err != nil {
			log.Printf("Notification worker error: %v", err)
		}
	}()

	// Pending-order sweeper: releases nothing itself, CancelPendingOrder's
	// conditional update does the racing against late payment confirmations.
	go func() {
		interval := time.Duration(cfg.Business.SweepIntervalMins) * time.Minute
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				if _, err := orderService.CancelExpiredPendingOrders(workerCtx); err != nil {
					log.Printf("Pending order sweep error: %v", err)
				}
			}
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	handler := api.NewHandler(orderService)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()
	notificationWorker.Stop()

	log.Println("Server exited")
}
