package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redismock/v8"
	"github.com/projectai397/sakshi-platform-sub001/internal/config"
	"github.com/projectai397/sakshi-platform-sub001/internal/logger"
	"github.com/projectai397/sakshi-platform-sub001/internal/model"
	"github.com/projectai397/sakshi-platform-sub001/internal/repo"
	"github.com/projectai397/sakshi-platform-sub001/internal/service"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type nopGateway struct{}

func (nopGateway) Capture(ctx context.Context, userID uint64, amountMinor int64) (string, error) {
	return "cap-test", nil
}
func (nopGateway) Refund(ctx context.Context, captureID string) error { return nil }

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db, err := gorm.Open(sqlite.Open("file:handlers?mode=memory&cache=shared"), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, db.AutoMigrate(
		&model.Wallet{}, &model.Transaction{}, &model.OutboxEvent{},
		&model.Settlement{}, &model.SettlementLine{},
	))
	rdb, _ := redismock.NewClientMock()
	log, _ := logger.NewLogger()
	repository := repo.NewRepository(db, rdb, &kafka.Writer{}, log)
	svc := service.NewTokenService(repository, nopGateway{}, config.DefaultRates(), time.Second, 100, log)
	return NewRouter(svc, config.RateLimitConfig{RPS: 100, Burst: 100}, log)
}

func doJSON(t *testing.T, router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "192.0.2.1:1234"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestGrantSettleWalletRoundTrip(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/v1/users/7/grants",
		`{"source_type":"volunteer_shift","quantity":"10","description":"weekend shift"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/v1/users/7/settlements",
		`{"lines":[{"payment_method":"seva_tokens","amount":4}]}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	var settle struct {
		SettlementID string `json:"settlement_id"`
		TokenTotal   int64  `json:"token_total"`
	}
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &settle))
	assert.NotEmpty(t, settle.SettlementID)
	assert.EqualValues(t, 4, settle.TokenTotal)

	rec = doJSON(t, router, http.MethodGet, "/v1/users/7/wallet", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	var wallet model.Wallet
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &wallet))
	assert.EqualValues(t, 6, wallet.Balance)

	rec = doJSON(t, router, http.MethodGet, "/v1/users/7/transactions?limit=10", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "transactions")
}

func TestNonNumericUserIDRejected(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/v1/users/abc/wallet", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/v1/users/abc/grants",
		`{"source_type":"repair","quantity":"1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// Unrecognized errors are server faults, never blamed on the caller.
func TestStatusForUnknownError(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("connection reset")))
	assert.Equal(t, http.StatusBadRequest, statusFor(service.ErrInvalidSource))
	assert.Equal(t, http.StatusConflict, statusFor(service.ErrInsufficientTokens))
}

func TestRateLimitExemptsProbes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RateLimitMiddleware(0, 0)) // zero budget: every limited route throttles
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/v1/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := doJSON(t, r, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, r, http.MethodGet, "/v1/ping", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestSettleErrorsMapToStatuses(t *testing.T) {
	router := newTestRouter(t)

	// free line without justification
	rec := doJSON(t, router, http.MethodPost, "/v1/users/8/settlements",
		`{"lines":[{"payment_method":"free"}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// token debit with no balance
	rec = doJSON(t, router, http.MethodPost, "/v1/users/8/settlements",
		`{"lines":[{"payment_method":"seva_tokens","amount":5}]}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// unknown earn source
	rec = doJSON(t, router, http.MethodPost, "/v1/users/8/grants",
		`{"source_type":"mystery","quantity":"1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
