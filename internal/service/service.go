package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/projectai397/sakshi-platform-sub001/internal/model"
	"github.com/projectai397/sakshi-platform-sub001/internal/payment"
	"github.com/projectai397/sakshi-platform-sub001/internal/repo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// TokenService is the seva token ledger core: validated appends, wallet
// projection, lazy and scheduled expiry, earning grants and checkout
// settlement. The transaction log is the only source of truth; the wallet
// row is a materialized view updated in the same DB transaction as every
// append.
type TokenService struct {
	repo           repo.RepositoryInterface
	pay            payment.Gateway
	rates          map[string]decimal.Decimal
	captureTimeout time.Duration
	maxPage        int
	log            *zap.SugaredLogger

	// now is swappable so tests can steer the clock.
	now func() time.Time

	// userLocks serializes validate-then-append per user. Cross-user
	// operations stay uncoordinated.
	mu        sync.Mutex
	userLocks map[uint64]*sync.Mutex
}

// NewTokenService returns TokenService.
func NewTokenService(r repo.RepositoryInterface, gw payment.Gateway, rates map[string]decimal.Decimal, captureTimeout time.Duration, maxPage int, logger *zap.SugaredLogger) *TokenService {
	if maxPage <= 0 {
		maxPage = 100
	}
	return &TokenService{
		repo:           r,
		pay:            gw,
		rates:          rates,
		captureTimeout: captureTimeout,
		maxPage:        maxPage,
		log:            logger,
		now:            time.Now,
		userLocks:      make(map[uint64]*sync.Mutex),
	}
}

func (s *TokenService) userLock(userID uint64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.userLocks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.userLocks[userID] = l
	}
	return l
}

// loadOrCreateWallet locks the projection row, creating it lazily on a
// user's first transaction.
func (s *TokenService) loadOrCreateWallet(ctx context.Context, tx *gorm.DB, userID uint64) (*model.Wallet, error) {
	w, err := s.repo.GetWalletForUpdate(ctx, tx, userID)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	w = &model.Wallet{UserID: userID}
	if err := s.repo.CreateWallet(ctx, tx, w); err != nil {
		return nil, err
	}
	return w, nil
}

// emit writes a domain event into the transactional outbox.
func (s *TokenService) emit(ctx context.Context, tx *gorm.DB, userID uint64, eventType string, payload map[string]interface{}) error {
	body, _ := json.Marshal(payload)
	return s.repo.CreateOutboxEvent(ctx, tx, &model.OutboxEvent{
		Aggregate:   "SevaWallet",
		AggregateID: userID,
		EventType:   eventType,
		Payload:     string(body),
	})
}

// cacheBalance refreshes the display cache; failures are tolerated.
func (s *TokenService) cacheBalance(ctx context.Context, userID uint64, bal int64) {
	if err := s.repo.CacheBalance(ctx, userID, bal); err != nil {
		s.log.Warnf("cache balance user=%d: %v", userID, err)
	}
}

// Repo exposes underlying repository (unit tests helper).
func (s *TokenService) Repo() repo.RepositoryInterface {
	return s.repo
}
