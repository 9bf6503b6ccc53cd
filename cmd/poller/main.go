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
	"go.uber.org/zap"
)

// The poller drains the transactional outbox into Kafka and re-drives
// settlements parked in refund_pending; the retry interval is the backoff.
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

	outboxTicker := time.NewTicker(1 * time.Second)
	defer outboxTicker.Stop()
	refundTicker := time.NewTicker(cfg.Payment.RefundBackoff.Std())
	defer refundTicker.Stop()

	log.Info("seva-ledger poller started")
	for {
		select {
		case <-outboxTicker.C:
			drainOutbox(repository, log)
		case <-refundTicker.C:
			ctx := context.Background()
			if n, err := svc.RetryRefunds(ctx, 20); err != nil {
				log.Errorf("retry refunds: %v", err)
			} else if n > 0 {
				log.Infof("retried %d refunds", n)
			}
		}
	}
}

func drainOutbox(repository *repo.Repository, log *zap.SugaredLogger) {
	ctx := context.Background()
	events, err := repository.PollOutbox(ctx, 100)
	if err != nil {
		log.Errorf("poll outbox: %v", err)
		return
	}
	for _, evt := range events {
		if err := repository.PublishEvent(ctx, evt); err != nil {
			log.Errorf("publish id=%d: %v", evt.ID, err)
			continue
		}
		if err := repository.MarkOutboxProcessed(ctx, evt.ID); err != nil {
			log.Errorf("mark processed id=%d: %v", evt.ID, err)
		} else {
			log.Infof("event %d sent", evt.ID)
		}
	}
}
