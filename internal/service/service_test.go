package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/google/uuid"
	"github.com/projectai397/sakshi-platform-sub001/internal/config"
	"github.com/projectai397/sakshi-platform-sub001/internal/logger"
	"github.com/projectai397/sakshi-platform-sub001/internal/model"
	"github.com/projectai397/sakshi-platform-sub001/internal/payment"
	"github.com/projectai397/sakshi-platform-sub001/internal/repo"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const day = 24 * time.Hour

type fakeGateway struct {
	mu          sync.Mutex
	captured    int64
	refunded    []string
	failCapture bool
	failRefund  bool
}

func (f *fakeGateway) Capture(ctx context.Context, userID uint64, amountMinor int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCapture {
		return "", payment.ErrCaptureFailed
	}
	f.captured += amountMinor
	return uuid.NewString(), nil
}

func (f *fakeGateway) Refund(ctx context.Context, captureID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failRefund {
		return payment.ErrRefundFailed
	}
	f.refunded = append(f.refunded, captureID)
	return nil
}

func newTestService(t *testing.T) (*TokenService, *fakeGateway, context.Context) {
	t.Helper()
	// one shared in-memory DB per test, named after it
	name := strings.ReplaceAll(t.Name(), "/", "_")
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, db.AutoMigrate(
		&model.Wallet{}, &model.Transaction{}, &model.OutboxEvent{},
		&model.Settlement{}, &model.SettlementLine{},
	))

	// cache errors are tolerated by the service, so a bare mock suffices
	rdb, _ := redismock.NewClientMock()
	log, _ := logger.NewLogger()
	repository := repo.NewRepository(db, rdb, &kafka.Writer{}, log)

	gw := &fakeGateway{}
	svc := NewTokenService(repository, gw, config.DefaultRates(), time.Second, 100, log)
	return svc, gw, context.Background()
}

// at pins the service clock.
func at(s *TokenService, tm time.Time) {
	s.now = func() time.Time { return tm }
}

func countTransactions(t *testing.T, s *TokenService, ctx context.Context, userID uint64, txType model.TxType) int64 {
	t.Helper()
	var n int64
	err := s.repo.DB(ctx).Model(&model.Transaction{}).
		Where("user_id = ? AND type = ?", userID, txType).
		Count(&n).Error
	assert.NoError(t, err)
	return n
}
