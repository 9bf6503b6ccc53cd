package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/projectai397/sakshi-platform-sub001/internal/config"
	"github.com/projectai397/sakshi-platform-sub001/internal/logger"
	"github.com/projectai397/sakshi-platform-sub001/internal/model"
	"github.com/projectai397/sakshi-platform-sub001/internal/payment"
	"github.com/projectai397/sakshi-platform-sub001/internal/repo"
	"github.com/projectai397/sakshi-platform-sub001/internal/service"
	httptransport "github.com/projectai397/sakshi-platform-sub001/internal/transport/http"

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
	if err := gdb.AutoMigrate(
		&model.Wallet{}, &model.Transaction{}, &model.OutboxEvent{},
		&model.Settlement{}, &model.SettlementLine{},
	); err != nil {
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

	// 5. kafka writer
	kw := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Kafka.Brokers...),
		Topic:    cfg.Kafka.Topic,
		Balancer: &kafka.LeastBytes{},
	}

	// 6. payment gateway
	gw := payment.NewHTTPGateway(cfg.Payment.BaseURL, cfg.Payment.CaptureTimeout.Std(), log)

	// 7. repo & service
	rates, err := cfg.RateTable()
	if err != nil {
		log.Fatalf("rate table: %v", err)
	}
	repository := repo.NewRepository(gdb, rdb, kw, log)
	svc := service.NewTokenService(repository, gw, rates, cfg.Payment.CaptureTimeout.Std(), cfg.History.MaxPageSize, log)

	// 8. gin router
	router := httptransport.NewRouter(svc, cfg.RateLimit, log)

	// 9. serve
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Infof("seva-ledger listening on %s", addr)
	if err := http.ListenAndServe(addr, router); err != nil {
		log.Fatalf("listen: %v", err)
	}
}
