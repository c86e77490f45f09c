// Package saga holds the event handlers that choreograph the order and
// payment aggregates. Handlers split gateway failures two ways: a
// permanent rejection is recorded on the aggregate and the event counts
// as processed, while a transient fault is returned so the ledger's
// retry path re-runs the handler.
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

// PaymentRequestedHandler verifies a requested payment against the
// gateway, records it, and confirms it. Payment creation is idempotent
// on the gateway key, so a retried event picks up where the last
// attempt stopped.
type PaymentRequestedHandler struct {
	gateway  gateway.Client
	payments *service.PaymentService
	log      *zap.SugaredLogger
}

func NewPaymentRequestedHandler(gw gateway.Client, payments *service.PaymentService,
	log *zap.SugaredLogger) *PaymentRequestedHandler {
	return &PaymentRequestedHandler{gateway: gw, payments: payments, log: log}
}

func (h *PaymentRequestedHandler) EventKind() string { return event.KindPaymentRequested }

func (h *PaymentRequestedHandler) Handle(ctx context.Context, ev event.Event) error {
	req, ok := ev.(event.PaymentRequested)
	if !ok {
		return fmt.Errorf("payment requested handler: unexpected event type %T", ev)
	}

	info, err := h.gateway.GetPayment(ctx, req.GatewayKey)
	if err != nil {
		if gateway.IsPermanent(err) {
			return h.recordRejection(ctx, req, req.GatewayKey, fmt.Sprintf("gateway lookup rejected: %v", err))
		}
		return fmt.Errorf("gateway lookup for %s: %w", req.GatewayKey, err)
	}

	if !info.TotalAmount.Equal(req.TotalAmount) {
		return h.recordRejection(ctx, req, info.Key,
			fmt.Sprintf("amount mismatch: gateway %s, order %s", info.TotalAmount, req.TotalAmount))
	}

	payment, err := h.payments.CreatePayment(ctx, service.CreatePaymentInput{
		OrderID:    req.OrderID,
		OrdererID:  req.UserID,
		GatewayKey: req.GatewayKey,
		PayToken:   info.Key,
		Amount:     req.TotalAmount,
		Method:     methodFrom(info.Method),
		CreatedBy:  service.SystemActor,
	})
	if err != nil {
		return err
	}
	switch payment.Status {
	case model.PaymentFailed:
		h.log.Warnw("payment already failed, ignoring", "payment_id", payment.ID)
		return nil
	case model.PaymentApproved:
		h.log.Infow("payment already approved, ignoring", "payment_id", payment.ID)
		return nil
	}

	if _, err := h.gateway.ApprovePayment(ctx, req.GatewayKey, req.OrderID, req.TotalAmount); err != nil {
		if gateway.IsPermanent(err) {
			if err := h.payments.FailPayment(ctx, payment.ID,
				fmt.Sprintf("gateway approval rejected: %v", err), service.SystemActor); err != nil {
				return err
			}
			return nil
		}
		return fmt.Errorf("gateway approval for %s: %w", req.GatewayKey, err)
	}

	return h.payments.ApprovePayment(ctx, payment.ID, time.Now(), service.SystemActor)
}

// recordRejection persists a FAILED payment for the order so the
// rejection is visible, then treats the event as processed.
func (h *PaymentRequestedHandler) recordRejection(ctx context.Context, req event.PaymentRequested,
	payToken, reason string) error {
	h.log.Warnw("payment request rejected by gateway",
		"order_id", req.OrderID, "gateway_key", req.GatewayKey, "reason", reason)
	payment, err := h.payments.CreatePayment(ctx, service.CreatePaymentInput{
		OrderID:    req.OrderID,
		OrdererID:  req.UserID,
		GatewayKey: req.GatewayKey,
		PayToken:   payToken,
		Amount:     req.TotalAmount,
		Method:     model.MethodCard,
		CreatedBy:  service.SystemActor,
	})
	if err != nil {
		return err
	}
	if payment.Status != model.PaymentPending {
		return nil
	}
	return h.payments.FailPayment(ctx, payment.ID, reason, service.SystemActor)
}

func methodFrom(raw string) model.PaymentMethod {
	switch model.PaymentMethod(raw) {
	case model.MethodCard, model.MethodVirtualAccount, model.MethodTransfer,
		model.MethodMobile, model.MethodEasyPay:
		return model.PaymentMethod(raw)
	default:
		return model.MethodCard
	}
}
