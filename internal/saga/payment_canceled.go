package saga

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/foodly/order-service/internal/event"
	"github.com/foodly/order-service/internal/service"
)

// PaymentCanceledHandler closes the cancellation saga: a successful
// refund cancels the order, a failed one triggers the compensation path.
type PaymentCanceledHandler struct {
	orders *service.OrderService
	log    *zap.SugaredLogger
}

func NewPaymentCanceledHandler(orders *service.OrderService, log *zap.SugaredLogger) *PaymentCanceledHandler {
	return &PaymentCanceledHandler{orders: orders, log: log}
}

func (h *PaymentCanceledHandler) EventKind() string { return event.KindPaymentCanceled }

func (h *PaymentCanceledHandler) Handle(ctx context.Context, ev event.Event) error {
	canceled, ok := ev.(event.PaymentCanceled)
	if !ok {
		return fmt.Errorf("payment canceled handler: unexpected event type %T", ev)
	}
	if !canceled.RefundSuccessful {
		return h.orders.HandleRefundFailure(ctx, canceled.OrderID, canceled.PaymentID,
			canceled.RefundFailureReason)
	}
	return h.orders.CompleteOrderCancellation(ctx, canceled.OrderID, canceled.PaymentID,
		canceled.CancelReason)
}
