package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/foodly/order-service/internal/config"
	"github.com/foodly/order-service/internal/logger"
)

func newTossServer(t *testing.T, handler http.HandlerFunc) (*TossClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	log, _ := logger.NewLogger()
	client := NewTossClient(config.TossConfig{
		BaseURL:   srv.URL,
		SecretKey: "test_sk",
		Timeout:   2 * time.Second,
	}, log)
	return client, srv
}

func TestGetPaymentDecodesResponse(t *testing.T) {
	client, _ := newTossServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/payments/key-1", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"paymentKey":  "key-1",
			"orderId":     "order-1",
			"status":      "READY",
			"totalAmount": 18500,
			"method":      "CARD",
		})
	})

	info, err := client.GetPayment(context.Background(), "key-1")
	assert.NoError(t, err)
	assert.Equal(t, "key-1", info.Key)
	assert.Equal(t, "READY", info.Status)
	assert.True(t, info.TotalAmount.Equal(decimal.NewFromInt(18500)))
}

func TestClientErrorIsPermanent(t *testing.T) {
	client, _ := newTossServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"code":"NOT_FOUND_PAYMENT"}`, http.StatusNotFound)
	})

	_, err := client.GetPayment(context.Background(), "missing")
	assert.True(t, IsPermanent(err))
	assert.False(t, IsTransient(err))
}

func TestServerErrorIsTransient(t *testing.T) {
	client, _ := newTossServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.ApprovePayment(context.Background(), "key-1", "order-1", decimal.NewFromInt(100))
	assert.True(t, IsTransient(err))
	assert.False(t, IsPermanent(err))
}

func TestNetworkErrorIsTransient(t *testing.T) {
	client, srv := newTossServer(t, func(w http.ResponseWriter, r *http.Request) {})
	srv.Close()

	_, err := client.CancelPayment(context.Background(), "key-1", "changed my mind")
	assert.True(t, IsTransient(err))
}

func TestCancelSendsReason(t *testing.T) {
	client, _ := newTossServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payments/key-1/cancel", r.URL.Path)
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "changed my mind", body["cancelReason"])
		json.NewEncoder(w).Encode(map[string]interface{}{
			"paymentKey": "key-1",
			"status":     "CANCELED",
		})
	})

	info, err := client.CancelPayment(context.Background(), "key-1", "changed my mind")
	assert.NoError(t, err)
	assert.Equal(t, "CANCELED", info.Status)
}
