package main

import (
	"context"
	"fmt"
	"time"

	"github.com/projectai397/sakshi-platform-sub001/internal/config"
	"github.com/projectai397/sakshi-platform-sub001/internal/logger"
	"github.com/projectai397/sakshi-platform-sub001/internal/payment"
	"github.com/projectai397/sakshi-platform-sub001/internal/repo"
	"github.com/projectai397/sakshi-platform-sub001/internal/service"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
)

// The sweeper is the scheduled half of the expiry engine: it materializes
// expire transactions for every earn lot past its validity window. Reads and
// spends don't depend on it running (the projector applies expiry lazily),
// it just keeps the materialized ledger in step with the clock.
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
		Topic:    cfg.Kafka.Topic,
		Balancer: &kafka.LeastBytes{},
	}

	gw := payment.NewHTTPGateway(cfg.Payment.BaseURL, cfg.Payment.CaptureTimeout.Std(), log)
	rates, err := cfg.RateTable()
	if err != nil {
		log.Fatalf("rate table: %v", err)
	}
	repository := repo.NewRepository(gdb, rdb, kw, log)
	svc := service.NewTokenService(repository, gw, rates, cfg.Payment.CaptureTimeout.Std(), cfg.History.MaxPageSize, log)

	ticker := time.NewTicker(cfg.Expiry.SweepInterval.Std())
	defer ticker.Stop()

	log.Infof("seva-ledger sweeper started, interval %s", cfg.Expiry.SweepInterval.Std())
	for range ticker.C {
		swept, err := svc.Sweep(context.Background(), time.Now())
		if err != nil {
			log.Errorf("expiry sweep: %v", err)
			continue
		}
		log.Infof("expiry sweep reconciled %d wallets", swept)
	}
}
