package service

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/foodly/order-service/internal/event"
	"github.com/foodly/order-service/internal/model"
	"github.com/foodly/order-service/internal/repo"
)

// CreatePaymentInput carries the verified gateway data for a new payment.
type CreatePaymentInput struct {
	OrderID    string
	OrdererID  string
	GatewayKey string
	PayToken   string
	Amount     decimal.Decimal
	Method     model.PaymentMethod
	CreatedBy  string
}

// PaymentService owns the Payment aggregate. Creation is idempotent on
// the gateway key so a retried payment-requested event reuses the row
// it made on the previous attempt instead of double-charging.
type PaymentService struct {
	repo      repo.RepositoryInterface
	publisher *event.Publisher
	log       *zap.SugaredLogger
}

func NewPaymentService(r repo.RepositoryInterface, publisher *event.Publisher, log *zap.SugaredLogger) *PaymentService {
	return &PaymentService{repo: r, publisher: publisher, log: log}
}

// CreatePayment persists a PENDING payment, or returns the existing one
// for the same gateway key.
func (s *PaymentService) CreatePayment(ctx context.Context, in CreatePaymentInput) (*model.Payment, error) {
	var payment *model.Payment
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindPaymentByGatewayKey(ctx, tx, in.GatewayKey)
		if err == nil {
			s.log.Infow("payment already exists for gateway key, reusing",
				"payment_id", existing.ID, "gateway_key", in.GatewayKey, "status", existing.Status)
			payment = existing
			return nil
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return err
		}

		payment, err = model.NewPayment(in.OrderID, in.OrdererID, in.GatewayKey,
			in.PayToken, in.Amount, in.Method, in.CreatedBy)
		if err != nil {
			return err
		}
		return s.repo.CreatePayment(ctx, tx, payment)
	})
	if err != nil {
		return nil, err
	}
	return payment, nil
}

// ApprovePayment flips the payment to APPROVED and records the
// payment-completed event in the same transaction.
func (s *PaymentService) ApprovePayment(ctx context.Context, paymentID string,
	approvedAt time.Time, approvedBy string) error {
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		payment, err := s.repo.FindPaymentByID(ctx, tx, paymentID)
		if err != nil {
			return err
		}
		if payment.Status == model.PaymentApproved {
			s.log.Warnw("payment already approved, ignoring", "payment_id", paymentID)
			return nil
		}
		if err := payment.Approve(approvedAt, approvedBy); err != nil {
			return err
		}
		if err := s.repo.SavePayment(ctx, tx, payment); err != nil {
			return err
		}
		return s.publisher.Publish(ctx, tx, event.PaymentCompleted{
			OrderID:     payment.OrderID,
			UserID:      payment.OrdererID,
			PaymentID:   payment.ID,
			CompletedAt: approvedAt,
		})
	})
	if err != nil {
		return err
	}
	s.log.Infow("payment approved", "payment_id", paymentID)
	return nil
}

// FailPayment marks a PENDING payment FAILED. No event is emitted: a
// failed payment leaves the order waiting in PAYMENT_PENDING.
func (s *PaymentService) FailPayment(ctx context.Context, paymentID, reason, failedBy string) error {
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		payment, err := s.repo.FindPaymentByID(ctx, tx, paymentID)
		if err != nil {
			return err
		}
		if payment.Status == model.PaymentFailed {
			return nil
		}
		if err := payment.Fail(failedBy); err != nil {
			return err
		}
		return s.repo.SavePayment(ctx, tx, payment)
	})
	if err != nil {
		return err
	}
	s.log.Warnw("payment failed", "payment_id", paymentID, "reason", reason)
	return nil
}

// CancelPayment records a refund against the payment and emits the
// successful payment-canceled event in the same transaction.
func (s *PaymentService) CancelPayment(ctx context.Context, paymentID string, typ model.CancellationType,
	reason, requestedBy string, amount decimal.Decimal, cancelledAt time.Time) error {
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		payment, err := s.repo.FindPaymentByID(ctx, tx, paymentID)
		if err != nil {
			return err
		}
		if err := payment.AddCancellation(typ, reason, requestedBy, amount, cancelledAt); err != nil {
			return err
		}
		if err := s.repo.SavePayment(ctx, tx, payment); err != nil {
			return err
		}
		return s.publisher.Publish(ctx, tx, event.PaymentCanceled{
			OrderID:          payment.OrderID,
			PaymentID:        payment.ID,
			UserID:           payment.OrdererID,
			RefundAmount:     amount,
			CancelReason:     reason,
			CanceledAt:       cancelledAt,
			RefundSuccessful: true,
		})
	})
	if err != nil {
		return err
	}
	s.log.Infow("payment canceled", "payment_id", paymentID, "amount", amount)
	return nil
}

// PublishRefundFailure records a failed refund attempt so the order side
// can run its compensation. The payment keeps its status.
func (s *PaymentService) PublishRefundFailure(ctx context.Context, paymentID, reason,
	failureReason string) error {
	return s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		payment, err := s.repo.FindPaymentByID(ctx, tx, paymentID)
		if err != nil {
			return err
		}
		return s.publisher.Publish(ctx, tx, event.PaymentCanceled{
			OrderID:             payment.OrderID,
			PaymentID:           payment.ID,
			UserID:              payment.OrdererID,
			RefundAmount:        payment.RemainingAmount(),
			CancelReason:        reason,
			CanceledAt:          time.Now(),
			RefundSuccessful:    false,
			RefundFailureReason: failureReason,
		})
	})
}

// GetPayment fetches one payment for its owner.
func (s *PaymentService) GetPayment(ctx context.Context, paymentID, userID string) (*model.Payment, error) {
	payment, err := s.repo.FindPaymentByID(ctx, s.repo.DB(ctx), paymentID)
	if err != nil {
		return nil, err
	}
	if !payment.IsPaidBy(userID) {
		return nil, model.ErrForbiddenPaymentAccess
	}
	return payment, nil
}

// DeletePayment soft-deletes a terminal payment.
func (s *PaymentService) DeletePayment(ctx context.Context, paymentID, userID string) error {
	return s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		payment, err := s.repo.FindPaymentByID(ctx, tx, paymentID)
		if err != nil {
			return err
		}
		if !payment.IsPaidBy(userID) {
			return model.ErrForbiddenPaymentAccess
		}
		if err := payment.SoftDelete(userID, time.Now()); err != nil {
			return err
		}
		return s.repo.SavePayment(ctx, tx, payment)
	})
}
