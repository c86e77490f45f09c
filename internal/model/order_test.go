package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func testItem(t *testing.T) *OrderItem {
	t.Helper()
	item, err := NewOrderItem("menu-1", "Fried Chicken", decimal.NewFromInt(18000), 1,
		"rest-1", "Chicken House", []OrderOptionGroup{
			{Name: "Sauce", Options: []OrderOption{{Name: "Spicy", Price: decimal.NewFromInt(500)}}},
		})
	assert.NoError(t, err)
	return item
}

func testOrder(t *testing.T) *Order {
	t.Helper()
	order, err := NewOrder("user-1", "Kim", "010-1234-5678", "12 Gangnam-daero",
		"leave at door", []*OrderItem{testItem(t)}, "toss-key-1", time.Now())
	assert.NoError(t, err)
	return order
}

func TestNewOrderItemPricing(t *testing.T) {
	item, err := NewOrderItem("menu-1", "Fried Chicken", decimal.NewFromInt(18000), 2,
		"rest-1", "Chicken House", []OrderOptionGroup{
			{Name: "Sauce", Options: []OrderOption{
				{Name: "Spicy", Price: decimal.NewFromInt(500)},
				{Name: "Garlic", Price: decimal.NewFromInt(700)},
			}},
		})
	assert.NoError(t, err)
	// (18000 + 500 + 700) * 2
	assert.True(t, item.TotalPrice.Equal(decimal.NewFromInt(38400)), "got %s", item.TotalPrice)
}

func TestNewOrderItemValidation(t *testing.T) {
	_, err := NewOrderItem("", "Fried Chicken", decimal.NewFromInt(18000), 1, "rest-1", "", nil)
	assert.ErrorIs(t, err, ErrInvalidOrderItems)
	_, err = NewOrderItem("menu-1", "Fried Chicken", decimal.Zero, 1, "rest-1", "", nil)
	assert.ErrorIs(t, err, ErrInvalidOrderItems)
	_, err = NewOrderItem("menu-1", "Fried Chicken", decimal.NewFromInt(18000), 0, "rest-1", "", nil)
	assert.ErrorIs(t, err, ErrInvalidOrderItems)
	_, err = NewOrderItem("menu-1", "Fried Chicken", decimal.NewFromInt(18000), 1, "", "", nil)
	assert.ErrorIs(t, err, ErrInvalidOrderItems)
}

func TestNewOrder(t *testing.T) {
	order := testOrder(t)
	assert.Equal(t, OrderPaymentPending, order.Status)
	assert.True(t, order.TotalPrice.Equal(decimal.NewFromInt(18500)))
	assert.False(t, order.Paid)
	assert.Equal(t, "toss-key-1", order.PaymentKey)

	_, err := NewOrder("user-1", "Kim", "010-1234-5678", "addr", "", nil, "key", time.Now())
	assert.ErrorIs(t, err, ErrInvalidOrderItems)
}

func TestOrderDisplayName(t *testing.T) {
	order := testOrder(t)
	assert.Equal(t, "Fried Chicken", order.DisplayName())

	second := testItem(t)
	second.MenuName = "Cola"
	order.Items = append(order.Items, *second)
	third := testItem(t)
	order.Items = append(order.Items, *third)
	assert.Equal(t, "Fried Chicken and 2 more", order.DisplayName())
}

func TestOrderLifecycle(t *testing.T) {
	order := testOrder(t)
	now := time.Now()

	assert.NoError(t, order.CompletePayment("pay-1", now, "SYSTEM"))
	assert.Equal(t, OrderPaymentCompleted, order.Status)
	assert.True(t, order.Paid)
	assert.Equal(t, "pay-1", order.PaymentID)

	// double completion is rejected at the aggregate
	assert.ErrorIs(t, order.CompletePayment("pay-2", now, "SYSTEM"), ErrInvalidOrderTransition)

	assert.NoError(t, order.ToPending("SYSTEM"))
	assert.NoError(t, order.Confirm(now, "rest-1"))
	assert.NoError(t, order.StartPreparing("rest-1"))
	assert.NoError(t, order.StartDelivering("rest-1"))
	assert.NoError(t, order.Complete(now, "user-1"))
	assert.Equal(t, OrderCompleted, order.Status)
}

func TestOrderTransitionGuards(t *testing.T) {
	order := testOrder(t)

	assert.ErrorIs(t, order.ToPending("SYSTEM"), ErrPaymentNotCompleted)
	assert.ErrorIs(t, order.Confirm(time.Now(), "rest-1"), ErrInvalidOrderTransition)
	assert.ErrorIs(t, order.StartPreparing("rest-1"), ErrInvalidOrderTransition)
	assert.ErrorIs(t, order.StartDelivering("rest-1"), ErrInvalidOrderTransition)
	assert.ErrorIs(t, order.Complete(time.Now(), "user-1"), ErrInvalidOrderTransition)
}

func TestOrderAuthorization(t *testing.T) {
	order := testOrder(t)
	assert.True(t, order.IsOrderedBy("user-1"))
	assert.False(t, order.IsOrderedBy("user-2"))
	assert.True(t, order.BelongsToRestaurant("rest-1"))
	assert.False(t, order.BelongsToRestaurant("rest-2"))
}

func TestOrderCancelWindow(t *testing.T) {
	order := testOrder(t)

	// unpaid orders are always cancelable
	assert.True(t, order.IsCancelable())

	paidAt := time.Now()
	assert.NoError(t, order.CompletePayment("pay-1", paidAt, "SYSTEM"))
	assert.NoError(t, order.ToPending("SYSTEM"))

	assert.True(t, order.IsCancelableAt(paidAt.Add(CancelWindow-time.Second)))
	assert.True(t, order.IsCancelableAt(paidAt.Add(CancelWindow)))
	assert.False(t, order.IsCancelableAt(paidAt.Add(CancelWindow+time.Second)))

	// delivering orders are never cancelable
	assert.NoError(t, order.Confirm(time.Now(), "rest-1"))
	assert.NoError(t, order.StartPreparing("rest-1"))
	assert.NoError(t, order.StartDelivering("rest-1"))
	assert.False(t, order.IsCancelableAt(paidAt))
}

func TestOrderCancel(t *testing.T) {
	order := testOrder(t)
	paidAt := time.Now()
	assert.NoError(t, order.CompletePayment("pay-1", paidAt, "SYSTEM"))
	assert.NoError(t, order.ToPending("SYSTEM"))

	assert.ErrorIs(t, order.Cancel("", paidAt, "user-1"), ErrCancelReasonRequired)
	assert.ErrorIs(t, order.Cancel("changed my mind", paidAt.Add(CancelWindow+time.Minute), "user-1"),
		ErrCannotCancelOrder)

	assert.NoError(t, order.Cancel("changed my mind", paidAt.Add(time.Minute), "user-1"))
	assert.Equal(t, OrderCanceled, order.Status)
	assert.Equal(t, "changed my mind", order.CancelReason)

	// canceled is terminal
	assert.ErrorIs(t, order.Cancel("again", paidAt.Add(time.Minute), "user-1"), ErrCannotCancelOrder)
}

func TestOrderSoftDelete(t *testing.T) {
	order := testOrder(t)
	assert.ErrorIs(t, order.SoftDelete("user-1", time.Now()), ErrOrderNotDeletable)

	paidAt := time.Now()
	assert.NoError(t, order.CompletePayment("pay-1", paidAt, "SYSTEM"))
	assert.NoError(t, order.ToPending("SYSTEM"))
	assert.NoError(t, order.Cancel("changed my mind", paidAt, "user-1"))

	assert.NoError(t, order.SoftDelete("user-1", time.Now()))
	assert.True(t, order.IsDeleted)
	assert.Equal(t, "user-1", order.DeletedBy)
}
