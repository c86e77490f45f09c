package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/foodly/order-service/internal/config"
)

const paymentsPath = "/v1/payments"

// TossClient implements Client against the Toss Payments REST API.
// https://docs.tosspayments.com/reference
type TossClient struct {
	baseURL string
	auth    string
	http    *http.Client
	log     *zap.SugaredLogger
}

func NewTossClient(cfg config.TossConfig, log *zap.SugaredLogger) *TossClient {
	// Toss uses Basic auth with "secretKey:" base64-encoded.
	auth := "Basic " + base64.StdEncoding.EncodeToString([]byte(cfg.SecretKey+":"))
	return &TossClient{
		baseURL: cfg.BaseURL,
		auth:    auth,
		http:    &http.Client{Timeout: cfg.Timeout},
		log:     log,
	}
}

type tossPaymentResponse struct {
	PaymentKey  string          `json:"paymentKey"`
	OrderID     string          `json:"orderId"`
	Status      string          `json:"status"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	Method      string          `json:"method"`
	ApprovedAt  *time.Time      `json:"approvedAt"`
}

func (r *tossPaymentResponse) toInfo() *PaymentInfo {
	return &PaymentInfo{
		Key:         r.PaymentKey,
		Status:      r.Status,
		TotalAmount: r.TotalAmount,
		Method:      r.Method,
		ApprovedAt:  r.ApprovedAt,
	}
}

// GetPayment fetches the gateway record for a payment key.
// GET /v1/payments/{paymentKey}
func (c *TossClient) GetPayment(ctx context.Context, key string) (*PaymentInfo, error) {
	return c.do(ctx, http.MethodGet, paymentsPath+"/"+key, nil)
}

// ApprovePayment confirms a payment for the given order and amount.
// POST /v1/payments/confirm
func (c *TossClient) ApprovePayment(ctx context.Context, key, orderID string, amount decimal.Decimal) (*PaymentInfo, error) {
	body := map[string]string{
		"paymentKey": key,
		"orderId":    orderID,
		"amount":     amount.String(),
	}
	return c.do(ctx, http.MethodPost, paymentsPath+"/confirm", body)
}

// CancelPayment refunds a payment.
// POST /v1/payments/{paymentKey}/cancel
func (c *TossClient) CancelPayment(ctx context.Context, key, reason string) (*PaymentInfo, error) {
	body := map[string]string{"cancelReason": reason}
	return c.do(ctx, http.MethodPost, paymentsPath+"/"+key+"/cancel", body)
}

func (c *TossClient) do(ctx context.Context, method, path string, body interface{}) (*PaymentInfo, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", c.auth)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// network error or timeout
		return nil, fmt.Errorf("%w: %s %s: %v", ErrTransient, method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrTransient, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var payment tossPaymentResponse
		if err := json.Unmarshal(raw, &payment); err != nil {
			return nil, fmt.Errorf("decode toss response: %w", err)
		}
		return payment.toInfo(), nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		c.log.Errorw("toss rejected request", "method", method, "path", path,
			"status", resp.StatusCode, "body", string(raw))
		return nil, fmt.Errorf("%w: status %d: %s", ErrPermanent, resp.StatusCode, string(raw))
	default:
		c.log.Errorw("toss server error", "method", method, "path", path,
			"status", resp.StatusCode)
		return nil, fmt.Errorf("%w: status %d", ErrTransient, resp.StatusCode)
	}
}
