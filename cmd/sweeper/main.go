package main

import (
	"context"
	"fmt"

	"github.com/foodly/order-service/internal/config"
	"github.com/foodly/order-service/internal/event"
	"github.com/foodly/order-service/internal/gateway"
	"github.com/foodly/order-service/internal/logger"
	"github.com/foodly/order-service/internal/repo"
	"github.com/foodly/order-service/internal/saga"
	"github.com/foodly/order-service/internal/service"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// The sweeper re-drives FAILED ledger rows and dead-letters the ones
// that exhausted their retries. Run exactly one instance.
func main() {
	cfg, err := config.Load("internal/config/config.yaml")
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	log, err := logger.NewLogger()
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	gdb, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{PrepareStmt: true})
	if err != nil {
		log.Fatalf("open postgres: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	kw := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Kafka.Brokers...),
		Topic:    cfg.Kafka.OpsTopic,
		Balancer: &kafka.LeastBytes{},
	}

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

	ctx := context.Background()
	consumer := event.NewConsumer(gdb, registry, log)
	consumer.Attach(bus)
	go bus.Run(ctx)

	log.Info("event sweeper started")
	sweeper := event.NewSweeper(gdb, registry, bus, repository,
		cfg.Events.SweepInterval, cfg.Events.MaxRetries, log)
	sweeper.Run(ctx)
}
