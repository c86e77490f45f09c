package event

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event is anything the pipeline can persist and dispatch. Kind must be
// stable: it is stored in the ledger and used to route retries back to
// the right handler.
type Event interface {
	Kind() string
}

const (
	KindPaymentRequested = "PaymentRequested"
	KindCancelRequested  = "CancelRequested"
	KindPaymentCompleted = "PaymentCompleted"
	KindPaymentCanceled  = "PaymentCanceled"
)

// PaymentRequested asks the payment side to verify and approve the
// gateway payment for a freshly created order (Order -> Payment).
type PaymentRequested struct {
	OrderID          string          `json:"order_id"`
	UserID           string          `json:"user_id"`
	UserName         string          `json:"user_name"`
	UserPhone        string          `json:"user_phone"`
	GatewayKey       string          `json:"gateway_key"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	OrderDisplayName string          `json:"order_display_name"`
	DeliveryAddress  string          `json:"delivery_address"`
	DeliveryRequest  string          `json:"delivery_request"`
}

func (PaymentRequested) Kind() string { return KindPaymentRequested }

// CancelRequested asks the payment side to refund an order
// (Order -> Payment).
type CancelRequested struct {
	OrderID      string          `json:"order_id"`
	PaymentID    string          `json:"payment_id"`
	UserID       string          `json:"user_id"`
	RefundAmount decimal.Decimal `json:"refund_amount"`
	CancelReason string          `json:"cancel_reason"`
	ActorID      string          `json:"actor_id"`
	RequestedAt  time.Time       `json:"requested_at"`
}

func (CancelRequested) Kind() string { return KindCancelRequested }

// PaymentCompleted tells the order side its payment was approved
// (Payment -> Order).
type PaymentCompleted struct {
	OrderID     string    `json:"order_id"`
	UserID      string    `json:"user_id"`
	PaymentID   string    `json:"payment_id"`
	CompletedAt time.Time `json:"completed_at"`
}

func (PaymentCompleted) Kind() string { return KindPaymentCompleted }

// PaymentCanceled reports the refund outcome to the order side
// (Payment -> Order). RefundSuccessful false means the gateway refused
// the refund; the order must not flip to CANCELED.
type PaymentCanceled struct {
	OrderID             string          `json:"order_id"`
	PaymentID           string          `json:"payment_id"`
	UserID              string          `json:"user_id"`
	RefundAmount        decimal.Decimal `json:"refund_amount"`
	CancelReason        string          `json:"cancel_reason"`
	CanceledAt          time.Time       `json:"canceled_at"`
	RefundSuccessful    bool            `json:"refund_successful"`
	RefundFailureReason string          `json:"refund_failure_reason,omitempty"`
}

func (PaymentCanceled) Kind() string { return KindPaymentCanceled }

// Envelope is what actually travels on the bus: the typed event plus the
// correlation id of its ledger row.
type Envelope struct {
	EventID string
	Kind    string
	Event   Event
}
