package saga

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/foodly/order-service/internal/event"
	"github.com/foodly/order-service/internal/gateway"
	"github.com/foodly/order-service/internal/model"
	"github.com/foodly/order-service/internal/service"
)

// CancelRequestedHandler runs the refund against the gateway and records
// the outcome on the payment. Either outcome produces a payment-canceled
// event; only a transient gateway fault goes back to the retry path.
type CancelRequestedHandler struct {
	gateway  gateway.Client
	payments *service.PaymentService
	log      *zap.SugaredLogger
}

func NewCancelRequestedHandler(gw gateway.Client, payments *service.PaymentService,
	log *zap.SugaredLogger) *CancelRequestedHandler {
	return &CancelRequestedHandler{gateway: gw, payments: payments, log: log}
}

func (h *CancelRequestedHandler) EventKind() string { return event.KindCancelRequested }

func (h *CancelRequestedHandler) Handle(ctx context.Context, ev event.Event) error {
	req, ok := ev.(event.CancelRequested)
	if !ok {
		return fmt.Errorf("cancel requested handler: unexpected event type %T", ev)
	}

	payment, err := h.payments.GetPayment(ctx, req.PaymentID, req.UserID)
	if err != nil {
		return fmt.Errorf("load payment %s for refund: %w", req.PaymentID, err)
	}
	if payment.Status == model.PaymentCancelled {
		h.log.Warnw("payment already fully cancelled, ignoring", "payment_id", payment.ID)
		return nil
	}

	if _, err := h.gateway.CancelPayment(ctx, payment.GatewayKey, req.CancelReason); err != nil {
		if gateway.IsPermanent(err) {
			h.log.Warnw("gateway refused refund",
				"payment_id", payment.ID, "order_id", req.OrderID, "err", err)
			return h.payments.PublishRefundFailure(ctx, payment.ID, req.CancelReason, err.Error())
		}
		return fmt.Errorf("gateway refund for %s: %w", payment.GatewayKey, err)
	}

	return h.payments.CancelPayment(ctx, payment.ID, model.CancelUserRequest,
		req.CancelReason, req.ActorID, req.RefundAmount, time.Now())
}
