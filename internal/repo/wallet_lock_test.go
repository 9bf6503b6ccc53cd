package repo

import (
	"context"
	"testing"

	"github.com/projectai397/sakshi-platform-sub001/internal/logger"
	"github.com/projectai397/sakshi-platform-sub001/internal/model"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// A writer holding a stale wallet version must lose: only the first update
// against a given version goes through, the second gets ErrVersionConflict
// and changes nothing.
func TestOptimisticLock_StaleVersionLoses(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:walletlock?mode=memory&cache=shared"), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, db.AutoMigrate(&model.Wallet{}))

	db.Create(&model.Wallet{UserID: 1, Balance: 100})

	r := NewRepository(db, nil, &kafka.Writer{}, must(logger.NewLogger()))
	ctx := context.Background()

	// both writers observe version 0
	w, err := r.GetWalletForUpdate(ctx, db, 1)
	assert.NoError(t, err)
	stale := *w

	err = r.UpdateWallet(ctx, db, 1,
		map[string]interface{}{"balance": w.Balance + 10}, w.Version)
	assert.NoError(t, err)

	err = r.UpdateWallet(ctx, db, 1,
		map[string]interface{}{"balance": stale.Balance + 10}, stale.Version)
	assert.ErrorIs(t, err, ErrVersionConflict)

	var final model.Wallet
	assert.NoError(t, db.First(&final, "user_id = ?", 1).Error)
	assert.EqualValues(t, 110, final.Balance)
	assert.EqualValues(t, 1, final.Version)
}

func must(l *zap.SugaredLogger, err error) *zap.SugaredLogger {
	if err != nil {
		panic(err)
	}
	return l
}
