package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/foodly/order-service/internal/config"
	"github.com/foodly/order-service/internal/event"
	"github.com/foodly/order-service/internal/gateway"
	"github.com/foodly/order-service/internal/logger"
	"github.com/foodly/order-service/internal/model"
	"github.com/foodly/order-service/internal/repo"
	"github.com/foodly/order-service/internal/saga"
	"github.com/foodly/order-service/internal/service"
	httptransport "github.com/foodly/order-service/internal/transport/http"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	// 1. load config
	cfg, err := config.Load("internal/config/config.yaml")
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	// 2. init logger
	log, err := logger.NewLogger()
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	// 3. postgres
	gdb, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{PrepareStmt: true})
	if err != nil {
		log.Fatalf("open postgres: %v", err)
	}
	if err := gdb.AutoMigrate(&model.EventLog{}, &model.Order{}, &model.OrderItem{},
		&model.Payment{}, &model.PaymentCancellation{}); err != nil {
		log.Fatalf("auto-migrate: %v", err)
	}

	// 4. redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("redis ping: %v", err)
	}

	// 5. kafka writer for operator alerts
	kw := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Kafka.Brokers...),
		Topic:    cfg.Kafka.OpsTopic,
		Balancer: &kafka.LeastBytes{},
	}

	// 6. repo, event pipeline, services
	repository := repo.NewRepository(gdb, rdb, kw, log)
	bus := event.NewBus(cfg.Events.BufferSize, cfg.Events.Workers, log)
	publisher := event.NewPublisher(bus, log)

	orders := service.NewOrderService(repository, publisher, log)
	payments := service.NewPaymentService(repository, publisher, log)
	toss := gateway.NewTossClient(cfg.Toss, log)

	registry, err := event.NewRegistry(
		saga.NewPaymentRequestedHandler(toss, payments, log),
		saga.NewCancelRequestedHandler(toss, payments, log),
		saga.NewPaymentCompletedHandler(orders, log),
		saga.NewPaymentCanceledHandler(orders, log),
	)
	if err != nil {
		log.Fatalf("build handler registry: %v", err)
	}
	consumer := event.NewConsumer(gdb, registry, log)
	consumer.Attach(bus)
	go bus.Run(context.Background())

	// 7. gin router
	router := httptransport.NewRouter(orders, payments, repository, cfg.RateLimit, log)

	// 8. serve
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Infof("order-server listening on %s", addr)
	if err := http.ListenAndServe(addr, router); err != nil {
		log.Fatalf("listen: %v", err)
	}
}
