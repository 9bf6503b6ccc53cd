package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// ErrCaptureFailed aborts a settlement before any ledger write.
var ErrCaptureFailed = errors.New("payment capture failed")

// ErrRefundFailed marks a settlement for background refund retry.
var ErrRefundFailed = errors.New("payment refund failed")

// Gateway is the external money collaborator. Capture happens before the
// token debit; Refund is the saga's compensating action when the debit fails
// after a successful capture.
type Gateway interface {
	Capture(ctx context.Context, userID uint64, amountMinor int64) (string, error)
	Refund(ctx context.Context, captureID string) error
}

// HTTPGateway talks to the payment service over HTTP with a bounded timeout.
type HTTPGateway struct {
	baseURL string
	client  *http.Client
	log     *zap.SugaredLogger
}

func NewHTTPGateway(baseURL string, timeout time.Duration, log *zap.SugaredLogger) *HTTPGateway {
	return &HTTPGateway{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		log:     log,
	}
}

type captureReq struct {
	UserID      uint64 `json:"user_id"`
	AmountMinor int64  `json:"amount_minor"`
}

type captureResp struct {
	CaptureID string `json:"capture_id"`
}

// Capture collects the money portion of a settlement. Any transport error,
// timeout, or non-200 response is reported as ErrCaptureFailed; the caller
// treats all of them as capture-failed and aborts.
func (g *HTTPGateway) Capture(ctx context.Context, userID uint64, amountMinor int64) (string, error) {
	body, _ := json.Marshal(captureReq{UserID: userID, AmountMinor: amountMinor})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/captures", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCaptureFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCaptureFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: gateway status %d", ErrCaptureFailed, resp.StatusCode)
	}
	var out captureResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || out.CaptureID == "" {
		return "", fmt.Errorf("%w: bad capture response", ErrCaptureFailed)
	}
	return out.CaptureID, nil
}

// Refund compensates a committed capture.
func (g *HTTPGateway) Refund(ctx context.Context, captureID string) error {
	url := fmt.Sprintf("%s/v1/captures/%s/refund", g.baseURL, captureID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRefundFailed, err)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRefundFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: gateway status %d", ErrRefundFailed, resp.StatusCode)
	}
	return nil
}
