package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus follows the forward chain
// PAYMENT_PENDING -> PAYMENT_COMPLETED -> PENDING -> CONFIRMED ->
// PREPARING -> DELIVERING -> COMPLETED, with CANCELED reachable from any
// cancelable state.
type OrderStatus string

const (
	OrderPaymentPending   OrderStatus = "PAYMENT_PENDING"
	OrderPaymentCompleted OrderStatus = "PAYMENT_COMPLETED"
	OrderPending          OrderStatus = "PENDING"
	OrderConfirmed        OrderStatus = "CONFIRMED"
	OrderPreparing        OrderStatus = "PREPARING"
	OrderDelivering       OrderStatus = "DELIVERING"
	OrderCompleted        OrderStatus = "COMPLETED"
	OrderCanceled         OrderStatus = "CANCELED"
)

// CancelWindow is how long after payment completion a customer may still
// cancel.
const CancelWindow = 5 * time.Minute

var (
	ErrInvalidOrderTransition = errors.New("invalid order status transition")
	ErrForbiddenOrderAccess   = errors.New("actor is not allowed to modify this order")
	ErrCannotCancelOrder      = errors.New("order cannot be canceled")
	ErrCancelReasonRequired   = errors.New("cancel reason is required")
	ErrInvalidOrderItems      = errors.New("order must contain at least one valid item")
	ErrPaymentNotCompleted    = errors.New("payment is not completed")
	ErrPaymentMismatch        = errors.New("payment reference does not match")
	ErrOrderNotDeletable      = errors.New("only completed or canceled orders can be deleted")
)

// OrderOption is a single selected option inside a group.
type OrderOption struct {
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

// OrderOptionGroup holds the options picked for one menu option group.
type OrderOptionGroup struct {
	Name    string        `json:"name"`
	Options []OrderOption `json:"options"`
}

// GroupTotal sums the option prices of the group.
func (g OrderOptionGroup) GroupTotal() decimal.Decimal {
	total := decimal.Zero
	for _, o := range g.Options {
		total = total.Add(o.Price)
	}
	return total
}

// OrderItem is one ordered line: a menu reference with its price, quantity
// and owning restaurant.
type OrderItem struct {
	ID             string             `gorm:"primaryKey;size:36"`
	OrderID        string             `gorm:"size:36;index;not null"`
	MenuID         string             `gorm:"size:36;not null"`
	MenuName       string             `gorm:"size:200;not null"`
	BasePrice      decimal.Decimal    `gorm:"type:numeric(20,2);not null"`
	Quantity       int                `gorm:"not null"`
	RestaurantID   string             `gorm:"size:36;not null"`
	RestaurantName string             `gorm:"size:200"`
	OptionGroups   []OrderOptionGroup `gorm:"serializer:json"`
	TotalPrice     decimal.Decimal    `gorm:"type:numeric(20,2);not null"`
}

func (OrderItem) TableName() string { return "order_item" }

// NewOrderItem validates and prices one line item.
func NewOrderItem(menuID, menuName string, basePrice decimal.Decimal, quantity int,
	restaurantID, restaurantName string, groups []OrderOptionGroup) (*OrderItem, error) {
	if menuID == "" || menuName == "" {
		return nil, fmt.Errorf("%w: menu id and name are required", ErrInvalidOrderItems)
	}
	if basePrice.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: base price must be positive", ErrInvalidOrderItems)
	}
	if quantity < 1 {
		return nil, fmt.Errorf("%w: quantity must be at least 1", ErrInvalidOrderItems)
	}
	if restaurantID == "" {
		return nil, fmt.Errorf("%w: restaurant id is required", ErrInvalidOrderItems)
	}
	item := &OrderItem{
		ID:             uuid.NewString(),
		MenuID:         menuID,
		MenuName:       menuName,
		BasePrice:      basePrice,
		Quantity:       quantity,
		RestaurantID:   restaurantID,
		RestaurantName: restaurantName,
		OptionGroups:   groups,
	}
	item.TotalPrice = item.computeTotal()
	return item, nil
}

func (i *OrderItem) computeTotal() decimal.Decimal {
	options := decimal.Zero
	for _, g := range i.OptionGroups {
		options = options.Add(g.GroupTotal())
	}
	return i.BasePrice.Add(options).Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Order is the aggregate root for a customer order. The embedded payment
// reference starts as the gateway key and is updated in place once the
// payment aggregate is approved; it is never replaced by a second one.
type Order struct {
	ID string `gorm:"primaryKey;size:36"`

	// orderer
	UserID          string `gorm:"size:36;index;not null"`
	UserName        string `gorm:"size:100;not null"`
	UserPhone       string `gorm:"size:30;not null"`
	DeliveryAddress string `gorm:"size:500;not null"`
	DeliveryRequest string `gorm:"size:500"`

	Items []OrderItem `gorm:"foreignKey:OrderID"`

	Status     OrderStatus     `gorm:"size:30;index;not null"`
	TotalPrice decimal.Decimal `gorm:"type:numeric(20,2);not null"`

	// payment reference
	PaymentKey string `gorm:"size:100;not null"`
	PaymentID  string `gorm:"size:36"`
	Paid       bool   `gorm:"not null;default:false"`

	RequestedAt        time.Time `gorm:"not null"`
	PaymentCompletedAt *time.Time
	ConfirmedAt        *time.Time
	CompletedAt        *time.Time
	CanceledAt         *time.Time
	CancelReason       string `gorm:"size:500"`

	// audit / soft delete
	CreatedAt time.Time `gorm:"autoCreateTime"`
	CreatedBy string    `gorm:"size:36"`
	UpdatedAt time.Time `gorm:"not null"`
	UpdatedBy string    `gorm:"size:36"`
	IsDeleted bool      `gorm:"not null;default:false;index"`
	DeletedAt *time.Time
	DeletedBy string `gorm:"size:36"`
}

func (Order) TableName() string { return "customer_order" }

// NewOrder creates an order in PAYMENT_PENDING with its pending payment
// reference keyed by the gateway payment key.
func NewOrder(userID, userName, userPhone, address, deliveryRequest string,
	items []*OrderItem, paymentKey string, requestedAt time.Time) (*Order, error) {
	if userID == "" || userName == "" || userPhone == "" || address == "" {
		return nil, errors.New("orderer identity and delivery address are required")
	}
	if len(items) == 0 {
		return nil, ErrInvalidOrderItems
	}
	if paymentKey == "" {
		return nil, errors.New("gateway payment key is required")
	}

	o := &Order{
		ID:              uuid.NewString(),
		UserID:          userID,
		UserName:        userName,
		UserPhone:       userPhone,
		DeliveryAddress: address,
		DeliveryRequest: deliveryRequest,
		Status:          OrderPaymentPending,
		PaymentKey:      paymentKey,
		RequestedAt:     requestedAt,
		CreatedBy:       userID,
		UpdatedAt:       time.Now(),
		UpdatedBy:       userID,
	}
	total := decimal.Zero
	for _, item := range items {
		item.OrderID = o.ID
		o.Items = append(o.Items, *item)
		total = total.Add(item.TotalPrice)
	}
	o.TotalPrice = total
	return o, nil
}

// DisplayName renders the order name shown on payment screens, e.g.
// "Fried Chicken" or "Fried Chicken and 2 more".
func (o *Order) DisplayName() string {
	if len(o.Items) == 0 {
		return "order"
	}
	first := o.Items[0].MenuName
	if len(o.Items) == 1 {
		return first
	}
	return fmt.Sprintf("%s and %d more", first, len(o.Items)-1)
}

// IsOrderedBy reports whether userID owns this order.
func (o *Order) IsOrderedBy(userID string) bool {
	return o.UserID == userID
}

// BelongsToRestaurant reports whether any line item is owned by the
// given restaurant.
func (o *Order) BelongsToRestaurant(restaurantID string) bool {
	for _, item := range o.Items {
		if item.RestaurantID == restaurantID {
			return true
		}
	}
	return false
}

// CompletePayment records the approved payment id and advances to
// PAYMENT_COMPLETED. Idempotency for repeated completion events lives at
// the service layer.
func (o *Order) CompletePayment(paymentID string, completedAt time.Time, updatedBy string) error {
	if o.Status != OrderPaymentPending {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidOrderTransition, o.Status, OrderPaymentCompleted)
	}
	o.PaymentID = paymentID
	o.Paid = true
	o.Status = OrderPaymentCompleted
	o.PaymentCompletedAt = &completedAt
	o.touch(updatedBy)
	return nil
}

// ToPending auto-advances a freshly paid order into the queue for the
// restaurant.
func (o *Order) ToPending(updatedBy string) error {
	if o.Status != OrderPaymentCompleted {
		return ErrPaymentNotCompleted
	}
	o.Status = OrderPending
	o.touch(updatedBy)
	return nil
}

func (o *Order) Confirm(confirmedAt time.Time, updatedBy string) error {
	if o.Status != OrderPending {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidOrderTransition, o.Status, OrderConfirmed)
	}
	o.Status = OrderConfirmed
	o.ConfirmedAt = &confirmedAt
	o.touch(updatedBy)
	return nil
}

func (o *Order) StartPreparing(updatedBy string) error {
	if o.Status != OrderConfirmed {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidOrderTransition, o.Status, OrderPreparing)
	}
	o.Status = OrderPreparing
	o.touch(updatedBy)
	return nil
}

func (o *Order) StartDelivering(updatedBy string) error {
	if o.Status != OrderPreparing {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidOrderTransition, o.Status, OrderDelivering)
	}
	o.Status = OrderDelivering
	o.touch(updatedBy)
	return nil
}

func (o *Order) Complete(completedAt time.Time, updatedBy string) error {
	if o.Status != OrderDelivering {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidOrderTransition, o.Status, OrderCompleted)
	}
	o.Status = OrderCompleted
	o.CompletedAt = &completedAt
	o.touch(updatedBy)
	return nil
}

// Cancel flips the order to CANCELED. Callers validate cancelability
// before requesting the refund; this re-checks it at apply time.
func (o *Order) Cancel(reason string, canceledAt time.Time, updatedBy string) error {
	if reason == "" {
		return ErrCancelReasonRequired
	}
	if !o.IsCancelableAt(canceledAt) {
		return ErrCannotCancelOrder
	}
	o.Status = OrderCanceled
	o.CancelReason = reason
	o.CanceledAt = &canceledAt
	o.touch(updatedBy)
	return nil
}

// IsCancelable checks the cancel window against the current clock.
func (o *Order) IsCancelable() bool {
	return o.IsCancelableAt(time.Now())
}

// IsCancelableAt is false once the order is canceled, delivering or
// completed, and false past the post-payment cancel window.
func (o *Order) IsCancelableAt(at time.Time) bool {
	switch o.Status {
	case OrderCanceled, OrderDelivering, OrderCompleted:
		return false
	}
	if o.PaymentCompletedAt == nil {
		return true
	}
	deadline := o.PaymentCompletedAt.Add(CancelWindow)
	return !at.After(deadline)
}

// SoftDelete hides the order; only terminal orders may be deleted.
func (o *Order) SoftDelete(deletedBy string, deletedAt time.Time) error {
	if o.Status != OrderCanceled && o.Status != OrderCompleted {
		return ErrOrderNotDeletable
	}
	o.IsDeleted = true
	o.DeletedBy = deletedBy
	o.DeletedAt = &deletedAt
	o.touch(deletedBy)
	return nil
}

func (o *Order) touch(updatedBy string) {
	o.UpdatedAt = time.Now()
	o.UpdatedBy = updatedBy
}
