package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentPending            PaymentStatus = "PENDING"
	PaymentApproved           PaymentStatus = "APPROVED"
	PaymentFailed             PaymentStatus = "FAILED"
	PaymentPartiallyCancelled PaymentStatus = "PARTIALLY_CANCELLED"
	PaymentCancelled          PaymentStatus = "CANCELLED"
)

type PaymentMethod string

const (
	MethodCard           PaymentMethod = "CARD"
	MethodVirtualAccount PaymentMethod = "VIRTUAL_ACCOUNT"
	MethodTransfer       PaymentMethod = "TRANSFER"
	MethodMobile         PaymentMethod = "MOBILE"
	MethodEasyPay        PaymentMethod = "EASY_PAY"
)

type CancellationType string

const (
	CancelUserRequest    CancellationType = "USER_REQUEST"
	CancelSystemError    CancellationType = "SYSTEM_ERROR"
	CancelAdmin          CancellationType = "ADMIN_CANCEL"
	CancelFraudDetection CancellationType = "FRAUD_DETECTION"
	CancelTimeout        CancellationType = "TIMEOUT"
)

const maxCancelReasonLen = 500

var (
	ErrInvalidPaymentStatus     = errors.New("payment is not in the required status")
	ErrPaymentNotCancellable    = errors.New("payment is not in a cancellable status")
	ErrInvalidCancelAmount      = errors.New("cancel amount must be positive")
	ErrCancelAmountExceeds      = errors.New("cancel amount exceeds remaining amount")
	ErrCancelReasonMissing      = errors.New("cancel reason is required")
	ErrCancelReasonTooLong      = errors.New("cancel reason exceeds 500 characters")
	ErrInvalidPaymentAmount     = errors.New("payment amount must be positive")
	ErrForbiddenPaymentAccess   = errors.New("actor is not allowed to modify this payment")
	ErrPaymentNotDeletable      = errors.New("only cancelled or failed payments can be deleted")
	ErrPaymentAmountMismatch    = errors.New("payment amount does not match order amount")
	ErrDuplicateGatewayPayment  = errors.New("payment with this gateway key already exists")
	ErrInvalidPaymentReference  = errors.New("order id, orderer id, gateway key and pay token are required")
	ErrInvalidCancellationActor = errors.New("cancellation requester is required")
)

// PaymentCancellation is an immutable child record of one refund against
// a payment.
type PaymentCancellation struct {
	ID          string           `gorm:"primaryKey;size:39"`
	PaymentID   string           `gorm:"size:36;index;not null"`
	Type        CancellationType `gorm:"size:30;not null"`
	Reason      string           `gorm:"size:500;not null"`
	RequestedBy string           `gorm:"size:36;not null"`
	Amount      decimal.Decimal  `gorm:"type:numeric(20,2);not null"`
	CancelledAt time.Time        `gorm:"not null"`
}

func (PaymentCancellation) TableName() string { return "payment_cancellation" }

// Payment is the aggregate root for one gateway payment.
type Payment struct {
	ID             string          `gorm:"primaryKey;size:36"`
	OrderID        string          `gorm:"size:36;index;not null"`
	OrdererID      string          `gorm:"size:36;index;not null"`
	GatewayKey     string          `gorm:"size:100;uniqueIndex;not null"`
	PayToken       string          `gorm:"size:100;not null"`
	Amount         decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	Method         PaymentMethod   `gorm:"size:30;not null"`
	Status         PaymentStatus   `gorm:"size:30;index;not null"`
	ApprovedAt     *time.Time
	Cancellations  []PaymentCancellation `gorm:"foreignKey:PaymentID"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	CreatedBy string    `gorm:"size:36"`
	UpdatedAt time.Time `gorm:"not null"`
	UpdatedBy string    `gorm:"size:36"`
	IsDeleted bool      `gorm:"not null;default:false;index"`
	DeletedAt *time.Time
	DeletedBy string `gorm:"size:36"`
}

func (Payment) TableName() string { return "payment" }

// NewPayment creates a PENDING payment linked back to its order.
func NewPayment(orderID, ordererID, gatewayKey, payToken string,
	amount decimal.Decimal, method PaymentMethod, createdBy string) (*Payment, error) {
	if orderID == "" || ordererID == "" || gatewayKey == "" || payToken == "" {
		return nil, ErrInvalidPaymentReference
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidPaymentAmount
	}
	if method == "" {
		return nil, errors.New("payment method is required")
	}
	now := time.Now()
	return &Payment{
		ID:         uuid.NewString(),
		OrderID:    orderID,
		OrdererID:  ordererID,
		GatewayKey: gatewayKey,
		PayToken:   payToken,
		Amount:     amount,
		Method:     method,
		Status:     PaymentPending,
		CreatedBy:  createdBy,
		CreatedAt:  now,
		UpdatedAt:  now,
		UpdatedBy:  createdBy,
	}, nil
}

// Approve requires PENDING.
func (p *Payment) Approve(approvedAt time.Time, approvedBy string) error {
	if p.Status != PaymentPending {
		return fmt.Errorf("%w: approve requires PENDING, current %s", ErrInvalidPaymentStatus, p.Status)
	}
	p.Status = PaymentApproved
	p.ApprovedAt = &approvedAt
	p.touch(approvedBy)
	return nil
}

// Fail requires PENDING.
func (p *Payment) Fail(failedBy string) error {
	if p.Status != PaymentPending {
		return fmt.Errorf("%w: fail requires PENDING, current %s", ErrInvalidPaymentStatus, p.Status)
	}
	p.Status = PaymentFailed
	p.touch(failedBy)
	return nil
}

// AddCancellation appends a refund record. Validation order: cancellable
// status, then amount bounds, then reason.
func (p *Payment) AddCancellation(typ CancellationType, reason, requestedBy string,
	amount decimal.Decimal, cancelledAt time.Time) error {
	if !p.IsCancellable() {
		return fmt.Errorf("%w: current status %s", ErrPaymentNotCancellable, p.Status)
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidCancelAmount
	}
	if amount.GreaterThan(p.RemainingAmount()) {
		return fmt.Errorf("%w: %s > %s", ErrCancelAmountExceeds, amount, p.RemainingAmount())
	}
	if reason == "" {
		return ErrCancelReasonMissing
	}
	if len([]rune(reason)) > maxCancelReasonLen {
		return ErrCancelReasonTooLong
	}
	if requestedBy == "" {
		return ErrInvalidCancellationActor
	}

	p.Cancellations = append(p.Cancellations, PaymentCancellation{
		ID:          "PC-" + uuid.NewString(),
		PaymentID:   p.ID,
		Type:        typ,
		Reason:      reason,
		RequestedBy: requestedBy,
		Amount:      amount,
		CancelledAt: cancelledAt,
	})

	if p.TotalCancelledAmount().Equal(p.Amount) {
		p.Status = PaymentCancelled
	} else {
		p.Status = PaymentPartiallyCancelled
	}
	p.touch(requestedBy)
	return nil
}

// ValidateAmount compares the payment amount against the order total.
func (p *Payment) ValidateAmount(orderAmount decimal.Decimal) error {
	if !p.Amount.Equal(orderAmount) {
		return fmt.Errorf("%w: payment %s, order %s", ErrPaymentAmountMismatch, p.Amount, orderAmount)
	}
	return nil
}

func (p *Payment) IsPaidBy(userID string) bool {
	return p.OrdererID == userID
}

func (p *Payment) IsCancellable() bool {
	return p.Status == PaymentApproved || p.Status == PaymentPartiallyCancelled
}

func (p *Payment) TotalCancelledAmount() decimal.Decimal {
	total := decimal.Zero
	for _, c := range p.Cancellations {
		total = total.Add(c.Amount)
	}
	return total
}

func (p *Payment) RemainingAmount() decimal.Decimal {
	return p.Amount.Sub(p.TotalCancelledAmount())
}

// SoftDelete hides the payment; only terminal payments may be deleted.
func (p *Payment) SoftDelete(deletedBy string, deletedAt time.Time) error {
	if p.Status != PaymentCancelled && p.Status != PaymentFailed {
		return ErrPaymentNotDeletable
	}
	p.IsDeleted = true
	p.DeletedBy = deletedBy
	p.DeletedAt = &deletedAt
	p.touch(deletedBy)
	return nil
}

func (p *Payment) touch(updatedBy string) {
	p.UpdatedAt = time.Now()
	p.UpdatedBy = updatedBy
}
