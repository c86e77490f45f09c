package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/foodly/order-service/internal/event"
	"github.com/foodly/order-service/internal/model"
	"github.com/foodly/order-service/internal/repo"
)

// SystemActor is the audit identity for saga-driven mutations.
const SystemActor = "SYSTEM"

// OrderItemInput is one requested line item.
type OrderItemInput struct {
	MenuID         string
	MenuName       string
	BasePrice      decimal.Decimal
	Quantity       int
	RestaurantID   string
	RestaurantName string
	OptionGroups   []model.OrderOptionGroup
}

// CreateOrderInput carries everything needed to place an order.
type CreateOrderInput struct {
	UserID          string
	UserName        string
	UserPhone       string
	DeliveryAddress string
	DeliveryRequest string
	PaymentKey      string
	Items           []OrderItemInput
}

// OrderService owns the Order aggregate's commands. State only moves
// forward here or in response to payment-side events; the payment calls
// themselves happen in the saga handlers.
type OrderService struct {
	repo      repo.RepositoryInterface
	publisher *event.Publisher
	log       *zap.SugaredLogger
}

func NewOrderService(r repo.RepositoryInterface, publisher *event.Publisher, log *zap.SugaredLogger) *OrderService {
	return &OrderService{repo: r, publisher: publisher, log: log}
}

// CreateOrder persists a PAYMENT_PENDING order and, in the same
// transaction, the ledger row for the payment-requested event.
func (s *OrderService) CreateOrder(ctx context.Context, in CreateOrderInput) (*model.Order, error) {
	items := make([]*model.OrderItem, 0, len(in.Items))
	for _, it := range in.Items {
		item, err := model.NewOrderItem(it.MenuID, it.MenuName, it.BasePrice, it.Quantity,
			it.RestaurantID, it.RestaurantName, it.OptionGroups)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	order, err := model.NewOrder(in.UserID, in.UserName, in.UserPhone,
		in.DeliveryAddress, in.DeliveryRequest, items, in.PaymentKey, time.Now())
	if err != nil {
		return nil, err
	}

	err = s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.CreateOrder(ctx, tx, order); err != nil {
			return err
		}
		return s.publisher.Publish(ctx, tx, event.PaymentRequested{
			OrderID:          order.ID,
			UserID:           order.UserID,
			UserName:         order.UserName,
			UserPhone:        order.UserPhone,
			GatewayKey:       order.PaymentKey,
			TotalAmount:      order.TotalPrice,
			OrderDisplayName: order.DisplayName(),
			DeliveryAddress:  order.DeliveryAddress,
			DeliveryRequest:  order.DeliveryRequest,
		})
	})
	if err != nil {
		return nil, err
	}

	s.cacheStatus(ctx, order)
	s.log.Infow("order created", "order_id", order.ID, "user_id", order.UserID,
		"total", order.TotalPrice, "status", order.Status)
	return order, nil
}

// CompletePayment advances the order on a payment-completed event:
// PAYMENT_PENDING -> PAYMENT_COMPLETED -> PENDING in one command.
// Calling it on an already-paid order is a no-op.
func (s *OrderService) CompletePayment(ctx context.Context, orderID, paymentID string,
	completedAt time.Time, userID string) error {
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := s.repo.FindOrderByID(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if !order.IsOrderedBy(userID) {
			return model.ErrForbiddenOrderAccess
		}
		if order.Paid {
			s.log.Warnw("payment already completed, ignoring", "order_id", orderID, "status", order.Status)
			return nil
		}
		if err := order.CompletePayment(paymentID, completedAt, SystemActor); err != nil {
			return err
		}
		if err := order.ToPending(SystemActor); err != nil {
			return err
		}
		if err := s.repo.SaveOrder(ctx, tx, order); err != nil {
			return err
		}
		s.cacheStatus(ctx, order)
		return nil
	})
	if err != nil {
		return err
	}
	s.log.Infow("payment completed on order", "order_id", orderID, "payment_id", paymentID)
	return nil
}

// ConfirmOrder is the restaurant accepting the order.
func (s *OrderService) ConfirmOrder(ctx context.Context, orderID, restaurantID string) error {
	return s.restaurantTransition(ctx, orderID, restaurantID, func(o *model.Order) error {
		return o.Confirm(time.Now(), restaurantID)
	})
}

func (s *OrderService) StartPreparing(ctx context.Context, orderID, restaurantID string) error {
	return s.restaurantTransition(ctx, orderID, restaurantID, func(o *model.Order) error {
		return o.StartPreparing(restaurantID)
	})
}

func (s *OrderService) StartDelivering(ctx context.Context, orderID, restaurantID string) error {
	return s.restaurantTransition(ctx, orderID, restaurantID, func(o *model.Order) error {
		return o.StartDelivering(restaurantID)
	})
}

// CompleteOrder is the customer confirming delivery.
func (s *OrderService) CompleteOrder(ctx context.Context, orderID, userID string) error {
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := s.repo.FindOrderByID(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if !order.IsOrderedBy(userID) {
			return model.ErrForbiddenOrderAccess
		}
		if err := order.Complete(time.Now(), userID); err != nil {
			return err
		}
		if err := s.repo.SaveOrder(ctx, tx, order); err != nil {
			return err
		}
		s.cacheStatus(ctx, order)
		return nil
	})
	if err != nil {
		return err
	}
	s.log.Infow("order completed", "order_id", orderID)
	return nil
}

// CancelOrder validates cancelability and emits the cancel-requested
// event; the status only flips once the refund result comes back. An
// order that was never paid has nothing to refund and cancels in place.
func (s *OrderService) CancelOrder(ctx context.Context, orderID, cancelReason, userID string) error {
	return s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := s.repo.FindOrderByID(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if !order.IsOrderedBy(userID) {
			return model.ErrForbiddenOrderAccess
		}
		if cancelReason == "" {
			return model.ErrCancelReasonRequired
		}
		if !order.IsCancelable() {
			return model.ErrCannotCancelOrder
		}

		if !order.Paid {
			if err := order.Cancel(cancelReason, time.Now(), userID); err != nil {
				return err
			}
			if err := s.repo.SaveOrder(ctx, tx, order); err != nil {
				return err
			}
			s.cacheStatus(ctx, order)
			s.log.Infow("unpaid order canceled directly", "order_id", orderID)
			return nil
		}

		payment, err := s.repo.FindPaymentByID(ctx, tx, order.PaymentID)
		if err != nil {
			return err
		}

		if err := s.publisher.Publish(ctx, tx, event.CancelRequested{
			OrderID:      order.ID,
			PaymentID:    payment.ID,
			UserID:       order.UserID,
			RefundAmount: payment.RemainingAmount(),
			CancelReason: cancelReason,
			ActorID:      userID,
			RequestedAt:  time.Now(),
		}); err != nil {
			return err
		}
		s.log.Infow("refund requested for order", "order_id", orderID,
			"payment_id", payment.ID, "refund_amount", payment.RemainingAmount())
		return nil
	})
}

// CompleteOrderCancellation applies a successful refund: re-validates
// cancelability and flips the order to CANCELED. The payment id check
// keeps retried events idempotent against the right payment.
func (s *OrderService) CompleteOrderCancellation(ctx context.Context, orderID, paymentID,
	cancelReason string) error {
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := s.repo.FindOrderByID(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order.PaymentID != paymentID {
			return model.ErrPaymentMismatch
		}
		if order.Status == model.OrderCanceled {
			s.log.Warnw("order already canceled, ignoring", "order_id", orderID)
			return nil
		}
		if err := order.Cancel(cancelReason, time.Now(), SystemActor); err != nil {
			return err
		}
		if err := s.repo.SaveOrder(ctx, tx, order); err != nil {
			return err
		}
		s.cacheStatus(ctx, order)
		return nil
	})
	if err != nil {
		return err
	}
	s.log.Infow("order canceled after refund", "order_id", orderID, "payment_id", paymentID)
	return nil
}

// HandleRefundFailure is the compensation hook for a failed refund: the
// order keeps its status and operators are alerted for manual follow-up.
func (s *OrderService) HandleRefundFailure(ctx context.Context, orderID, paymentID, failureReason string) error {
	s.log.Errorw("refund failed, manual follow-up required",
		"order_id", orderID, "payment_id", paymentID, "reason", failureReason)
	if err := s.repo.RefundFailureAlert(ctx, orderID, paymentID, failureReason); err != nil {
		return err
	}
	return nil
}

// DeleteOrder soft-deletes a terminal order.
func (s *OrderService) DeleteOrder(ctx context.Context, orderID, userID string) error {
	return s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := s.repo.FindOrderByID(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if !order.IsOrderedBy(userID) {
			return model.ErrForbiddenOrderAccess
		}
		if err := order.SoftDelete(userID, time.Now()); err != nil {
			return err
		}
		return s.repo.SaveOrder(ctx, tx, order)
	})
}

// GetOrder fetches one order for its owner.
func (s *OrderService) GetOrder(ctx context.Context, orderID, userID string) (*model.Order, error) {
	order, err := s.repo.FindOrderByID(ctx, s.repo.DB(ctx), orderID)
	if err != nil {
		return nil, err
	}
	if !order.IsOrderedBy(userID) {
		return nil, model.ErrForbiddenOrderAccess
	}
	return order, nil
}

// GetOrderStatus serves the hot read path from the cache when possible.
func (s *OrderService) GetOrderStatus(ctx context.Context, orderID string) (model.OrderStatus, error) {
	if status, err := s.repo.GetCachedOrderStatus(ctx, orderID); err == nil {
		return status, nil
	}
	order, err := s.repo.FindOrderByID(ctx, s.repo.DB(ctx), orderID)
	if err != nil {
		return "", err
	}
	s.cacheStatus(ctx, order)
	return order.Status, nil
}

// ListOrders pages through a user's orders.
func (s *OrderService) ListOrders(ctx context.Context, userID string, limit, offset int) ([]model.Order, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.repo.ListOrdersByUser(ctx, userID, limit, offset)
}

func (s *OrderService) restaurantTransition(ctx context.Context, orderID, restaurantID string,
	apply func(*model.Order) error) error {
	return s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := s.repo.FindOrderByID(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if !order.BelongsToRestaurant(restaurantID) {
			return model.ErrForbiddenOrderAccess
		}
		if err := apply(order); err != nil {
			return err
		}
		if err := s.repo.SaveOrder(ctx, tx, order); err != nil {
			return err
		}
		s.cacheStatus(ctx, order)
		return nil
	})
}

func (s *OrderService) cacheStatus(ctx context.Context, order *model.Order) {
	if err := s.repo.CacheOrderStatus(ctx, order.ID, order.Status); err != nil {
		s.log.Warnw("order status cache write failed", "order_id", order.ID, "err", err)
	}
}
