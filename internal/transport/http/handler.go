package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/projectai397/sakshi-platform-sub001/internal/model"
	"github.com/projectai397/sakshi-platform-sub001/internal/payment"
	"github.com/projectai397/sakshi-platform-sub001/internal/service"
	"github.com/shopspring/decimal"
)

func RegisterHandlers(r *gin.Engine, svc *service.TokenService) {
	v1 := r.Group("/v1")
	{
		v1.POST("/users/:id/grants", grantHandler(svc))
		v1.POST("/users/:id/settlements", settleHandler(svc))
		v1.POST("/users/:id/reconcile", reconcileHandler(svc))
		v1.POST("/users/:id/adjustments", adjustHandler(svc))
		v1.POST("/users/:id/unfreeze", unfreezeHandler(svc))
		v1.GET("/users/:id/wallet", walletHandler(svc))
		v1.GET("/users/:id/balance", balanceHandler(svc))
		v1.GET("/users/:id/transactions", historyHandler(svc))
	}
}

// statusFor maps service failures onto HTTP statuses. Only the known
// validation sentinels blame the caller; anything unrecognized (DB errors
// included) is a server fault.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInsufficientTokens),
		errors.Is(err, service.ErrWalletFrozen):
		return http.StatusConflict
	case errors.Is(err, service.ErrLedgerInconsistency):
		return http.StatusInternalServerError
	case errors.Is(err, payment.ErrCaptureFailed), errors.Is(err, payment.ErrRefundFailed):
		return http.StatusBadGateway
	case errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, service.ErrInvalidCursor),
		errors.Is(err, service.ErrInvalidSource),
		errors.Is(err, service.ErrZeroQuantity),
		errors.Is(err, service.ErrFreeRequestJustification),
		errors.Is(err, service.ErrInvalidPaymentMethod):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

// userID parses the :id path segment, rejecting non-numeric ids instead of
// silently acting on user 0.
func userID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return 0, false
	}
	return id, true
}

type grantReq struct {
	SourceType  string `json:"source_type" binding:"required"`
	Quantity    string `json:"quantity" binding:"required"`
	Description string `json:"description"`
}

func grantHandler(svc *service.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req grantReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		id, ok := userID(c)
		if !ok {
			return
		}
		qty, err := decimal.NewFromString(req.Quantity)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid quantity"})
			return
		}
		txID, err := svc.Grant(c, id, model.SourceType(req.SourceType), qty, req.Description)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"transaction_id": txID})
	}
}

type settleReq struct {
	Lines []service.CheckoutLine `json:"lines" binding:"required"`
}

func settleHandler(svc *service.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req settleReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		id, ok := userID(c)
		if !ok {
			return
		}
		result, err := svc.Settle(c, id, req.Lines)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func reconcileHandler(svc *service.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := userID(c)
		if !ok {
			return
		}
		expired, err := svc.Reconcile(c, id, time.Now())
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"expired_tokens": expired})
	}
}

type adjustReq struct {
	Amount      int64  `json:"amount" binding:"required"`
	Description string `json:"description" binding:"required"`
}

func adjustHandler(svc *service.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req adjustReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		id, ok := userID(c)
		if !ok {
			return
		}
		txID, err := svc.Adjust(c, id, req.Amount, req.Description)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"transaction_id": txID})
	}
}

func unfreezeHandler(svc *service.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := userID(c)
		if !ok {
			return
		}
		if err := svc.Unfreeze(c, id); err != nil {
			fail(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func walletHandler(svc *service.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := userID(c)
		if !ok {
			return
		}
		w, err := svc.GetWallet(c, id)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, w)
	}
}

func balanceHandler(svc *service.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := userID(c)
		if !ok {
			return
		}
		bal, err := svc.GetBalance(c, id)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"balance": bal})
	}
}

func historyHandler(svc *service.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := userID(c)
		if !ok {
			return
		}
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		txs, next, err := svc.ListTransactions(c, id, limit, c.Query("cursor"))
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"transactions": txs, "next_cursor": next})
	}
}
