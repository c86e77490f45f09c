package saga

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/foodly/order-service/internal/event"
	"github.com/foodly/order-service/internal/gateway"
	"github.com/foodly/order-service/internal/logger"
	"github.com/foodly/order-service/internal/model"
	"github.com/foodly/order-service/internal/repo"
	"github.com/foodly/order-service/internal/service"
)

// fakeGateway scripts the payment gateway: a configurable ledger amount,
// a number of transient approval faults and an optional refund error.
type fakeGateway struct {
	mu              sync.Mutex
	amount          decimal.Decimal
	approveFailures int
	cancelErr       error
	approved        int
	cancelled       int
}

func (f *fakeGateway) GetPayment(_ context.Context, key string) (*gateway.PaymentInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &gateway.PaymentInfo{Key: "tok-" + key, Status: "READY", TotalAmount: f.amount, Method: "CARD"}, nil
}

func (f *fakeGateway) ApprovePayment(_ context.Context, key, _ string, amount decimal.Decimal) (*gateway.PaymentInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.approveFailures > 0 {
		f.approveFailures--
		return nil, fmt.Errorf("%w: gateway 502", gateway.ErrTransient)
	}
	f.approved++
	now := time.Now()
	return &gateway.PaymentInfo{Key: "tok-" + key, Status: "DONE", TotalAmount: amount, Method: "CARD", ApprovedAt: &now}, nil
}

func (f *fakeGateway) approvedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.approved
}

func (f *fakeGateway) cancelledCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelled
}

func (f *fakeGateway) setCancelErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelErr = err
}

func (f *fakeGateway) CancelPayment(_ context.Context, key, _ string) (*gateway.PaymentInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancelErr != nil {
		return nil, f.cancelErr
	}
	f.cancelled++
	return &gateway.PaymentInfo{Key: "tok-" + key, Status: "CANCELED", TotalAmount: f.amount, Method: "CARD"}, nil
}

type sagaEnv struct {
	db       *gorm.DB
	repo     *repo.Repository
	orders   *service.OrderService
	payments *service.PaymentService
	bus      *event.Bus
	sweeper  *event.Sweeper
	gw       *fakeGateway
}

func newSagaEnv(t *testing.T) *sagaEnv {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, db.AutoMigrate(&model.EventLog{}, &model.Order{}, &model.OrderItem{},
		&model.Payment{}, &model.PaymentCancellation{}))

	rdb, _ := redismock.NewClientMock()
	log, _ := logger.NewLogger()
	repository := repo.NewRepository(db, rdb, nil, log)

	bus := event.NewBus(64, 1, log)
	publisher := event.NewPublisher(bus, log)
	orders := service.NewOrderService(repository, publisher, log)
	payments := service.NewPaymentService(repository, publisher, log)
	gw := &fakeGateway{amount: decimal.NewFromInt(18500)}

	registry, err := event.NewRegistry(
		NewPaymentRequestedHandler(gw, payments, log),
		NewCancelRequestedHandler(gw, payments, log),
		NewPaymentCompletedHandler(orders, log),
		NewPaymentCanceledHandler(orders, log),
	)
	assert.NoError(t, err)

	consumer := event.NewConsumer(db, registry, log)
	consumer.Attach(bus)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go bus.Run(ctx)

	// long interval: tests trigger sweeps by hand
	sweeper := event.NewSweeper(db, registry, bus, repository, time.Hour, 3, log)

	return &sagaEnv{db: db, repo: repository, orders: orders, payments: payments,
		bus: bus, sweeper: sweeper, gw: gw}
}

func (e *sagaEnv) placeOrder(t *testing.T) *model.Order {
	t.Helper()
	order, err := e.orders.CreateOrder(context.Background(), service.CreateOrderInput{
		UserID:          "user-1",
		UserName:        "Kim",
		UserPhone:       "010-1234-5678",
		DeliveryAddress: "12 Gangnam-daero",
		PaymentKey:      "toss-" + t.Name(),
		Items: []service.OrderItemInput{{
			MenuID:         "menu-1",
			MenuName:       "Fried Chicken",
			BasePrice:      decimal.NewFromInt(18000),
			Quantity:       1,
			RestaurantID:   "rest-1",
			RestaurantName: "Chicken House",
			OptionGroups: []model.OrderOptionGroup{
				{Name: "Sauce", Options: []model.OrderOption{{Name: "Spicy", Price: decimal.NewFromInt(500)}}},
			},
		}},
	})
	assert.NoError(t, err)
	assert.Equal(t, model.OrderPaymentPending, order.Status)
	return order
}

func (e *sagaEnv) orderStatus(t *testing.T, id string) model.OrderStatus {
	t.Helper()
	var o model.Order
	assert.NoError(t, e.db.Where("id = ?", id).First(&o).Error)
	return o.Status
}

func (e *sagaEnv) waitForOrderStatus(t *testing.T, id string, want model.OrderStatus) {
	t.Helper()
	assert.Eventually(t, func() bool {
		var o model.Order
		if err := e.db.Where("id = ?", id).First(&o).Error; err != nil {
			return false
		}
		return o.Status == want
	}, 3*time.Second, 10*time.Millisecond, "order %s never reached %s", id, want)
}

// ledgerStatus reports the status of the newest ledger row for kind,
// or false when none exists yet.
func (e *sagaEnv) ledgerStatus(kind string) (model.EventStatus, int, bool) {
	var entry model.EventLog
	if err := e.db.Where("event_kind = ?", kind).Order("created_at DESC").First(&entry).Error; err != nil {
		return "", 0, false
	}
	return entry.Status, entry.RetryCount, true
}

func TestOrderPaymentHappyPath(t *testing.T) {
	env := newSagaEnv(t)
	order := env.placeOrder(t)

	env.waitForOrderStatus(t, order.ID, model.OrderPending)

	var payment model.Payment
	assert.NoError(t, env.db.Where("order_id = ?", order.ID).First(&payment).Error)
	assert.Equal(t, model.PaymentApproved, payment.Status)
	assert.True(t, payment.Amount.Equal(order.TotalPrice))
	assert.Equal(t, 1, env.gw.approvedCount())

	var updated model.Order
	assert.NoError(t, env.db.Where("id = ?", order.ID).First(&updated).Error)
	assert.True(t, updated.Paid)
	assert.Equal(t, payment.ID, updated.PaymentID)

	assert.Eventually(t, func() bool {
		requested, _, ok1 := env.ledgerStatus(event.KindPaymentRequested)
		completed, _, ok2 := env.ledgerStatus(event.KindPaymentCompleted)
		return ok1 && ok2 && requested == model.EventSuccess && completed == model.EventSuccess
	}, 3*time.Second, 10*time.Millisecond)
}

func TestAmountMismatchFailsPayment(t *testing.T) {
	env := newSagaEnv(t)
	env.gw.amount = decimal.NewFromInt(999) // gateway disagrees with the order total
	order := env.placeOrder(t)

	// the rejection is conclusive: the event succeeds, the payment fails
	assert.Eventually(t, func() bool {
		var payment model.Payment
		if err := env.db.Where("order_id = ?", order.ID).First(&payment).Error; err != nil {
			return false
		}
		return payment.Status == model.PaymentFailed
	}, 3*time.Second, 10*time.Millisecond)

	assert.Equal(t, model.OrderPaymentPending, env.orderStatus(t, order.ID))
	assert.Equal(t, 0, env.gw.approvedCount())
	assert.Eventually(t, func() bool {
		status, _, ok := env.ledgerStatus(event.KindPaymentRequested)
		return ok && status == model.EventSuccess
	}, 3*time.Second, 10*time.Millisecond)
}

func TestTransientFaultRecoversViaRetry(t *testing.T) {
	env := newSagaEnv(t)
	env.gw.approveFailures = 1
	order := env.placeOrder(t)

	// first dispatch hits the transient fault and lands FAILED
	assert.Eventually(t, func() bool {
		status, _, ok := env.ledgerStatus(event.KindPaymentRequested)
		return ok && status == model.EventFailed
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, model.OrderPaymentPending, env.orderStatus(t, order.ID))

	// the sweeper re-drives it and the saga completes
	assert.NoError(t, env.sweeper.Sweep(context.Background()))
	env.waitForOrderStatus(t, order.ID, model.OrderPending)

	status, retryCount, ok := env.ledgerStatus(event.KindPaymentRequested)
	assert.True(t, ok)
	assert.Equal(t, model.EventSuccess, status)
	assert.Equal(t, 1, retryCount)

	// the pending payment from the failed attempt was reused, not duplicated
	var count int64
	assert.NoError(t, env.db.Model(&model.Payment{}).Where("order_id = ?", order.ID).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestCancelRefundsAndCancelsOrder(t *testing.T) {
	env := newSagaEnv(t)
	order := env.placeOrder(t)
	env.waitForOrderStatus(t, order.ID, model.OrderPending)

	assert.NoError(t, env.orders.CancelOrder(context.Background(), order.ID, "changed my mind", "user-1"))
	env.waitForOrderStatus(t, order.ID, model.OrderCanceled)

	var payment model.Payment
	assert.NoError(t, env.db.Preload("Cancellations").Where("order_id = ?", order.ID).First(&payment).Error)
	assert.Equal(t, model.PaymentCancelled, payment.Status)
	assert.Len(t, payment.Cancellations, 1)
	assert.True(t, payment.Cancellations[0].Amount.Equal(payment.Amount))
	assert.Equal(t, 1, env.gw.cancelledCount())

	var updated model.Order
	assert.NoError(t, env.db.Where("id = ?", order.ID).First(&updated).Error)
	assert.Equal(t, "changed my mind", updated.CancelReason)
}

func TestRefundRejectionKeepsOrder(t *testing.T) {
	env := newSagaEnv(t)
	order := env.placeOrder(t)
	env.waitForOrderStatus(t, order.ID, model.OrderPending)

	env.gw.setCancelErr(fmt.Errorf("%w: refund window closed", gateway.ErrPermanent))
	assert.NoError(t, env.orders.CancelOrder(context.Background(), order.ID, "changed my mind", "user-1"))

	// the failed refund flows through as a conclusive outcome: the order
	// keeps its status and the payment stays approved
	assert.Eventually(t, func() bool {
		status, _, ok := env.ledgerStatus(event.KindPaymentCanceled)
		return ok && status == model.EventSuccess
	}, 3*time.Second, 10*time.Millisecond)

	assert.Equal(t, model.OrderPending, env.orderStatus(t, order.ID))
	var payment model.Payment
	assert.NoError(t, env.db.Where("order_id = ?", order.ID).First(&payment).Error)
	assert.Equal(t, model.PaymentApproved, payment.Status)
	assert.Equal(t, 0, env.gw.cancelledCount())
}

func TestTransientRefundFaultRetries(t *testing.T) {
	env := newSagaEnv(t)
	order := env.placeOrder(t)
	env.waitForOrderStatus(t, order.ID, model.OrderPending)

	env.gw.setCancelErr(fmt.Errorf("%w: gateway timeout", gateway.ErrTransient))
	assert.NoError(t, env.orders.CancelOrder(context.Background(), order.ID, "changed my mind", "user-1"))

	assert.Eventually(t, func() bool {
		status, _, ok := env.ledgerStatus(event.KindCancelRequested)
		return ok && status == model.EventFailed
	}, 3*time.Second, 10*time.Millisecond)

	// gateway recovers; the sweeper finishes the saga
	env.gw.setCancelErr(nil)
	assert.NoError(t, env.sweeper.Sweep(context.Background()))
	env.waitForOrderStatus(t, order.ID, model.OrderCanceled)
}
