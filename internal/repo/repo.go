package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/projectai397/sakshi-platform-sub001/internal/model"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrVersionConflict is returned when the wallet projection row was updated
// concurrently between read and write.
var ErrVersionConflict = errors.New("wallet version conflict")

// Lot is an earn transaction together with its unconsumed remainder, the unit
// of FIFO spend/expiry accounting.
type Lot struct {
	Tx        model.Transaction
	Remaining int64
}

// RepositoryInterface restricts Repo methods (unit test mocks).
type RepositoryInterface interface {
	DB(ctx context.Context) *gorm.DB
	GetWalletForUpdate(ctx context.Context, tx *gorm.DB, userID uint64) (*model.Wallet, error)
	CreateWallet(ctx context.Context, tx *gorm.DB, w *model.Wallet) error
	UpdateWallet(ctx context.Context, tx *gorm.DB, userID uint64, fields map[string]interface{}, oldVersion uint64) error
	SetFrozen(ctx context.Context, userID uint64, frozen bool) error
	AppendTransaction(ctx context.Context, tx *gorm.DB, t *model.Transaction) error
	SumsByType(ctx context.Context, tx *gorm.DB, userID uint64) (map[model.TxType]int64, error)
	EarnLots(ctx context.Context, tx *gorm.DB, userID uint64) ([]Lot, error)
	UsersWithOverdueLots(ctx context.Context, cutoff time.Time) ([]uint64, error)
	CreateSettlement(ctx context.Context, s *model.Settlement) error
	UpdateSettlement(ctx context.Context, tx *gorm.DB, id string, fields map[string]interface{}) error
	CreateSettlementLine(ctx context.Context, tx *gorm.DB, line *model.SettlementLine) error
	ListRefundPending(ctx context.Context, limit int) ([]model.Settlement, error)
	CreateOutboxEvent(ctx context.Context, tx *gorm.DB, evt *model.OutboxEvent) error
	PollOutbox(ctx context.Context, limit int) ([]model.OutboxEvent, error)
	MarkOutboxProcessed(ctx context.Context, id uint64) error
	PublishEvent(ctx context.Context, evt model.OutboxEvent) error
	CacheBalance(ctx context.Context, userID uint64, bal int64) error
	GetCachedBalance(ctx context.Context, userID uint64) (int64, error)
}

// Repository implements RepositoryInterface.
type Repository struct {
	db     *gorm.DB
	rdb    *redis.Client
	writer *kafka.Writer
	log    *zap.SugaredLogger
}

// NewRepository constructs repo.
func NewRepository(db *gorm.DB, rdb *redis.Client, w *kafka.Writer, logger *zap.SugaredLogger) *Repository {
	return &Repository{db: db, rdb: rdb, writer: w, log: logger}
}

// DB returns underlying *gorm.DB
func (r *Repository) DB(ctx context.Context) *gorm.DB { return r.db.WithContext(ctx) }

// GetWalletForUpdate locks the wallet projection row for the duration of the
// surrounding transaction. sqlite (tests) has no row-level locks; its single
// writer serializes instead.
func (r *Repository) GetWalletForUpdate(ctx context.Context, tx *gorm.DB, userID uint64) (*model.Wallet, error) {
	q := tx.WithContext(ctx)
	if tx.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var w model.Wallet
	if err := q.Where("user_id = ?", userID).First(&w).Error; err != nil {
		return nil, err
	}
	return &w, nil
}

// CreateWallet inserts the lazily-created projection row.
func (r *Repository) CreateWallet(ctx context.Context, tx *gorm.DB, w *model.Wallet) error {
	return tx.WithContext(ctx).Create(w).Error
}

// UpdateWallet applies projection changes with an optimistic version check.
func (r *Repository) UpdateWallet(ctx context.Context, tx *gorm.DB, userID uint64, fields map[string]interface{}, oldVersion uint64) error {
	fields["version"] = oldVersion + 1
	fields["updated_at"] = time.Now()
	res := tx.WithContext(ctx).
		Model(&model.Wallet{}).
		Where("user_id = ? AND version = ?", userID, oldVersion).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	return nil
}

// SetFrozen flips the manual-reconciliation flag outside the version stream.
func (r *Repository) SetFrozen(ctx context.Context, userID uint64, frozen bool) error {
	return r.db.WithContext(ctx).
		Model(&model.Wallet{}).
		Where("user_id = ?", userID).
		Update("frozen", frozen).Error
}

// AppendTransaction inserts one immutable ledger row. There is deliberately
// no update or delete counterpart.
func (r *Repository) AppendTransaction(ctx context.Context, tx *gorm.DB, t *model.Transaction) error {
	return tx.WithContext(ctx).Create(t).Error
}

// SumsByType replays the ledger as per-type amount sums.
func (r *Repository) SumsByType(ctx context.Context, tx *gorm.DB, userID uint64) (map[model.TxType]int64, error) {
	var rows []struct {
		Type  model.TxType
		Total int64
	}
	err := tx.WithContext(ctx).
		Model(&model.Transaction{}).
		Select("type, SUM(amount) AS total").
		Where("user_id = ?", userID).
		Group("type").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	sums := make(map[model.TxType]int64, len(rows))
	for _, row := range rows {
		sums[row.Type] = row.Total
	}
	return sums, nil
}

// EarnLots returns the user's earn transactions oldest-first with their
// unconsumed remainders. FIFO order: created_at, then id for same-instant
// earns. Consumption counts linked spend and expire rows plus linked
// negative adjustments (sign flipped).
func (r *Repository) EarnLots(ctx context.Context, tx *gorm.DB, userID uint64) ([]Lot, error) {
	var earns []model.Transaction
	err := tx.WithContext(ctx).
		Where("user_id = ? AND type = ?", userID, model.TxEarn).
		Order("created_at ASC, id ASC").
		Find(&earns).Error
	if err != nil {
		return nil, err
	}
	var consumed []struct {
		RelatedTransactionID uint64
		Total                int64
	}
	err = tx.WithContext(ctx).
		Model(&model.Transaction{}).
		Select("related_transaction_id, SUM(CASE WHEN type = 'adjustment' THEN -amount ELSE amount END) AS total").
		Where("user_id = ? AND type IN ? AND related_transaction_id IS NOT NULL",
			userID, []model.TxType{model.TxSpend, model.TxExpire, model.TxAdjustment}).
		Group("related_transaction_id").
		Scan(&consumed).Error
	if err != nil {
		return nil, err
	}
	used := make(map[uint64]int64, len(consumed))
	for _, c := range consumed {
		used[c.RelatedTransactionID] = c.Total
	}
	lots := make([]Lot, 0, len(earns))
	for _, e := range earns {
		lots = append(lots, Lot{Tx: e, Remaining: e.Amount - used[e.ID]})
	}
	return lots, nil
}

// UsersWithOverdueLots lists users holding earn lots past cutoff that still
// have an unconsumed remainder, the sweep work queue.
func (r *Repository) UsersWithOverdueLots(ctx context.Context, cutoff time.Time) ([]uint64, error) {
	var ids []uint64
	err := r.db.WithContext(ctx).Raw(`
		SELECT DISTINCT e.user_id
		FROM token_transaction e
		WHERE e.type = 'earn'
		  AND e.expires_at <= ?
		  AND e.amount > COALESCE((
			SELECT SUM(CASE WHEN c.type = 'adjustment' THEN -c.amount ELSE c.amount END)
			FROM token_transaction c
			WHERE c.related_transaction_id = e.id
			  AND c.type IN ('spend','expire','adjustment')
		  ), 0)`, cutoff).Scan(&ids).Error
	return ids, err
}

// CreateSettlement persists the saga record before any external call.
func (r *Repository) CreateSettlement(ctx context.Context, s *model.Settlement) error {
	return r.db.WithContext(ctx).Create(s).Error
}

// UpdateSettlement advances saga state; tx may be nil outside a DB transaction.
func (r *Repository) UpdateSettlement(ctx context.Context, tx *gorm.DB, id string, fields map[string]interface{}) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).
		Model(&model.Settlement{}).
		Where("id = ?", id).
		Updates(fields).Error
}

// CreateSettlementLine records one line with its debited transaction id.
func (r *Repository) CreateSettlementLine(ctx context.Context, tx *gorm.DB, line *model.SettlementLine) error {
	return tx.WithContext(ctx).Create(line).Error
}

// ListRefundPending pulls settlements whose compensating refund still needs
// retrying.
func (r *Repository) ListRefundPending(ctx context.Context, limit int) ([]model.Settlement, error) {
	var out []model.Settlement
	err := r.db.WithContext(ctx).
		Where("status = ?", model.SettlementRefundPending).
		Order("updated_at").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CreateOutboxEvent writes event.
func (r *Repository) CreateOutboxEvent(ctx context.Context, tx *gorm.DB, evt *model.OutboxEvent) error {
	return tx.WithContext(ctx).Create(evt).Error
}

// PollOutbox pulls unprocessed events.
func (r *Repository) PollOutbox(ctx context.Context, limit int) ([]model.OutboxEvent, error) {
	var evts []model.OutboxEvent
	err := r.db.WithContext(ctx).Where("processed = false").Order("created_at").Limit(limit).Find(&evts).Error
	return evts, err
}

// MarkOutboxProcessed sets processed flag.
func (r *Repository) MarkOutboxProcessed(ctx context.Context, id uint64) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&model.OutboxEvent{}).Where("id = ?", id).
		Updates(map[string]interface{}{"processed": true, "processed_at": &now}).Error
}

// PublishEvent sends to Kafka.
func (r *Repository) PublishEvent(ctx context.Context, evt model.OutboxEvent) error {
	msg := kafka.Message{
		Key:   []byte(fmt.Sprintf("%d", evt.AggregateID)),
		Value: []byte(evt.Payload),
		Time:  time.Now(),
	}
	return r.writer.WriteMessages(ctx, msg)
}

// CacheBalance writes the display balance to Redis. Spend authorization never
// reads this.
func (r *Repository) CacheBalance(ctx context.Context, userID uint64, bal int64) error {
	return r.rdb.Set(ctx, fmt.Sprintf("seva:balance:%d", userID), bal, 5*time.Minute).Err()
}

// GetCachedBalance reads Redis.
func (r *Repository) GetCachedBalance(ctx context.Context, userID uint64) (int64, error) {
	return r.rdb.Get(ctx, fmt.Sprintf("seva:balance:%d", userID)).Int64()
}
