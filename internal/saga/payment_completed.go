package saga

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/foodly/order-service/internal/event"
	"github.com/foodly/order-service/internal/service"
)

// PaymentCompletedHandler advances the order once its payment is
// approved.
type PaymentCompletedHandler struct {
	orders *service.OrderService
	log    *zap.SugaredLogger
}

func NewPaymentCompletedHandler(orders *service.OrderService, log *zap.SugaredLogger) *PaymentCompletedHandler {
	return &PaymentCompletedHandler{orders: orders, log: log}
}

func (h *PaymentCompletedHandler) EventKind() string { return event.KindPaymentCompleted }

func (h *PaymentCompletedHandler) Handle(ctx context.Context, ev event.Event) error {
	done, ok := ev.(event.PaymentCompleted)
	if !ok {
		return fmt.Errorf("payment completed handler: unexpected event type %T", ev)
	}
	return h.orders.CompletePayment(ctx, done.OrderID, done.PaymentID, done.CompletedAt, done.UserID)
}
