package model

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func testPayment(t *testing.T) *Payment {
	t.Helper()
	p, err := NewPayment("order-1", "user-1", "toss-key-1", "tok-1",
		decimal.NewFromInt(23000), MethodCard, "SYSTEM")
	assert.NoError(t, err)
	return p
}

func TestNewPaymentValidation(t *testing.T) {
	_, err := NewPayment("", "user-1", "key", "tok", decimal.NewFromInt(100), MethodCard, "SYSTEM")
	assert.ErrorIs(t, err, ErrInvalidPaymentReference)
	_, err = NewPayment("order-1", "user-1", "key", "tok", decimal.Zero, MethodCard, "SYSTEM")
	assert.ErrorIs(t, err, ErrInvalidPaymentAmount)
	_, err = NewPayment("order-1", "user-1", "key", "tok", decimal.NewFromInt(-10), MethodCard, "SYSTEM")
	assert.ErrorIs(t, err, ErrInvalidPaymentAmount)

	p := testPayment(t)
	assert.Equal(t, PaymentPending, p.Status)
	assert.NotEmpty(t, p.ID)
}

func TestPaymentApproveAndFail(t *testing.T) {
	p := testPayment(t)
	now := time.Now()

	assert.NoError(t, p.Approve(now, "SYSTEM"))
	assert.Equal(t, PaymentApproved, p.Status)
	assert.NotNil(t, p.ApprovedAt)

	// approve and fail both require PENDING
	assert.ErrorIs(t, p.Approve(now, "SYSTEM"), ErrInvalidPaymentStatus)
	assert.ErrorIs(t, p.Fail("SYSTEM"), ErrInvalidPaymentStatus)

	q := testPayment(t)
	assert.NoError(t, q.Fail("SYSTEM"))
	assert.Equal(t, PaymentFailed, q.Status)
	assert.ErrorIs(t, q.Approve(now, "SYSTEM"), ErrInvalidPaymentStatus)
}

func TestPaymentCancellationValidationOrder(t *testing.T) {
	now := time.Now()

	// not cancellable wins over bad amount and bad reason
	p := testPayment(t)
	err := p.AddCancellation(CancelUserRequest, "", "user-1", decimal.NewFromInt(-5), now)
	assert.ErrorIs(t, err, ErrPaymentNotCancellable)

	assert.NoError(t, p.Approve(now, "SYSTEM"))

	// amount checked before reason
	err = p.AddCancellation(CancelUserRequest, "", "user-1", decimal.Zero, now)
	assert.ErrorIs(t, err, ErrInvalidCancelAmount)
	err = p.AddCancellation(CancelUserRequest, "", "user-1", decimal.NewFromInt(99999), now)
	assert.ErrorIs(t, err, ErrCancelAmountExceeds)
	err = p.AddCancellation(CancelUserRequest, "", "user-1", decimal.NewFromInt(1000), now)
	assert.ErrorIs(t, err, ErrCancelReasonMissing)
	err = p.AddCancellation(CancelUserRequest, strings.Repeat("a", 501), "user-1", decimal.NewFromInt(1000), now)
	assert.ErrorIs(t, err, ErrCancelReasonTooLong)
	err = p.AddCancellation(CancelUserRequest, "wrong item", "", decimal.NewFromInt(1000), now)
	assert.ErrorIs(t, err, ErrInvalidCancellationActor)
}

func TestPaymentPartialThenFullCancellation(t *testing.T) {
	p := testPayment(t)
	now := time.Now()
	assert.NoError(t, p.Approve(now, "SYSTEM"))

	assert.NoError(t, p.AddCancellation(CancelUserRequest, "one item missing", "user-1",
		decimal.NewFromInt(5000), now))
	assert.Equal(t, PaymentPartiallyCancelled, p.Status)
	assert.True(t, p.RemainingAmount().Equal(decimal.NewFromInt(18000)))

	assert.NoError(t, p.AddCancellation(CancelUserRequest, "changed my mind", "user-1",
		decimal.NewFromInt(18000), now))
	assert.Equal(t, PaymentCancelled, p.Status)
	assert.True(t, p.RemainingAmount().Equal(decimal.Zero))
	assert.True(t, p.TotalCancelledAmount().Equal(p.Amount))
	assert.Len(t, p.Cancellations, 2)

	// fully cancelled is terminal
	err := p.AddCancellation(CancelUserRequest, "again", "user-1", decimal.NewFromInt(1), now)
	assert.ErrorIs(t, err, ErrPaymentNotCancellable)
}

func TestPaymentValidateAmount(t *testing.T) {
	p := testPayment(t)
	assert.NoError(t, p.ValidateAmount(decimal.NewFromInt(23000)))
	assert.ErrorIs(t, p.ValidateAmount(decimal.NewFromInt(22000)), ErrPaymentAmountMismatch)
}

func TestPaymentOwnership(t *testing.T) {
	p := testPayment(t)
	assert.True(t, p.IsPaidBy("user-1"))
	assert.False(t, p.IsPaidBy("user-2"))
}

func TestPaymentSoftDelete(t *testing.T) {
	p := testPayment(t)
	assert.ErrorIs(t, p.SoftDelete("user-1", time.Now()), ErrPaymentNotDeletable)

	now := time.Now()
	assert.NoError(t, p.Approve(now, "SYSTEM"))
	assert.NoError(t, p.AddCancellation(CancelUserRequest, "changed my mind", "user-1",
		decimal.NewFromInt(23000), now))
	assert.NoError(t, p.SoftDelete("user-1", time.Now()))
	assert.True(t, p.IsDeleted)
}
