// Package gateway talks to the external payment provider (Toss). The
// saga handlers only see the Client interface plus the permanent vs
// transient error classification: 4xx responses are permanent
// verification failures and must not be retried, 5xx and timeouts are
// transient and go back through the ledger's retry path.
package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrPermanent marks a verification failure: the gateway rejected
	// the request and retrying will not change the answer.
	ErrPermanent = errors.New("gateway rejected request")

	// ErrTransient marks an infrastructure failure: timeout or 5xx.
	ErrTransient = errors.New("gateway temporarily unavailable")
)

// IsPermanent reports whether err is a non-retryable gateway failure.
func IsPermanent(err error) bool { return errors.Is(err, ErrPermanent) }

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool { return errors.Is(err, ErrTransient) }

// PaymentInfo is the gateway's record of one payment.
type PaymentInfo struct {
	Key         string
	Status      string
	TotalAmount decimal.Decimal
	Method      string
	ApprovedAt  *time.Time
}

// Client is the payment-gateway collaborator consumed by the saga.
type Client interface {
	GetPayment(ctx context.Context, key string) (*PaymentInfo, error)
	ApprovePayment(ctx context.Context, key, orderID string, amount decimal.Decimal) (*PaymentInfo, error)
	CancelPayment(ctx context.Context, key, reason string) (*PaymentInfo, error)
}
