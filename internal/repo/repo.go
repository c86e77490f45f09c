package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/foodly/order-service/internal/model"
)

var ErrNotFound = errors.New("record not found")

const orderStatusTTL = 5 * time.Minute

// RepositoryInterface restricts Repo methods (unit test mocks)
type RepositoryInterface interface {
	DB(ctx context.Context) *gorm.DB

	CreateOrder(ctx context.Context, tx *gorm.DB, o *model.Order) error
	SaveOrder(ctx context.Context, tx *gorm.DB, o *model.Order) error
	FindOrderByID(ctx context.Context, tx *gorm.DB, id string) (*model.Order, error)
	FindOrderByIDIncludingDeleted(ctx context.Context, id string) (*model.Order, error)
	ListOrdersByUser(ctx context.Context, userID string, limit, offset int) ([]model.Order, error)

	CreatePayment(ctx context.Context, tx *gorm.DB, p *model.Payment) error
	SavePayment(ctx context.Context, tx *gorm.DB, p *model.Payment) error
	FindPaymentByID(ctx context.Context, tx *gorm.DB, id string) (*model.Payment, error)
	FindPaymentByGatewayKey(ctx context.Context, tx *gorm.DB, key string) (*model.Payment, error)

	ListEventLogs(ctx context.Context, status model.EventStatus, limit int) ([]model.EventLog, error)

	CacheOrderStatus(ctx context.Context, orderID string, status model.OrderStatus) error
	GetCachedOrderStatus(ctx context.Context, orderID string) (model.OrderStatus, error)

	DeadLetterAlert(ctx context.Context, entry model.EventLog) error
	RefundFailureAlert(ctx context.Context, orderID, paymentID, reason string) error
}

// Repository implements RepositoryInterface.
type Repository struct {
	db     *gorm.DB
	rdb    *redis.Client
	writer *kafka.Writer
	log    *zap.SugaredLogger
}

// NewRepository constructs repo.
func NewRepository(db *gorm.DB, rdb *redis.Client, w *kafka.Writer, logger *zap.SugaredLogger) *Repository {
	return &Repository{db: db, rdb: rdb, writer: w, log: logger}
}

// DB returns underlying *gorm.DB
func (r *Repository) DB(ctx context.Context) *gorm.DB { return r.db.WithContext(ctx) }

func (r *Repository) CreateOrder(ctx context.Context, tx *gorm.DB, o *model.Order) error {
	return tx.WithContext(ctx).Create(o).Error
}

func (r *Repository) SaveOrder(ctx context.Context, tx *gorm.DB, o *model.Order) error {
	return tx.WithContext(ctx).Session(&gorm.Session{FullSaveAssociations: true}).Save(o).Error
}

// FindOrderByID excludes soft-deleted rows.
func (r *Repository) FindOrderByID(ctx context.Context, tx *gorm.DB, id string) (*model.Order, error) {
	var o model.Order
	err := tx.WithContext(ctx).Preload("Items").
		Where("id = ? AND is_deleted = ?", id, false).First(&o).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &o, nil
}

func (r *Repository) FindOrderByIDIncludingDeleted(ctx context.Context, id string) (*model.Order, error) {
	var o model.Order
	err := r.db.WithContext(ctx).Preload("Items").Where("id = ?", id).First(&o).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &o, nil
}

func (r *Repository) ListOrdersByUser(ctx context.Context, userID string, limit, offset int) ([]model.Order, error) {
	var orders []model.Order
	err := r.db.WithContext(ctx).Preload("Items").
		Where("user_id = ? AND is_deleted = ?", userID, false).
		Order("created_at DESC").Limit(limit).Offset(offset).
		Find(&orders).Error
	return orders, err
}

func (r *Repository) CreatePayment(ctx context.Context, tx *gorm.DB, p *model.Payment) error {
	return tx.WithContext(ctx).Create(p).Error
}

func (r *Repository) SavePayment(ctx context.Context, tx *gorm.DB, p *model.Payment) error {
	return tx.WithContext(ctx).Session(&gorm.Session{FullSaveAssociations: true}).Save(p).Error
}

func (r *Repository) FindPaymentByID(ctx context.Context, tx *gorm.DB, id string) (*model.Payment, error) {
	var p model.Payment
	err := tx.WithContext(ctx).Preload("Cancellations").
		Where("id = ? AND is_deleted = ?", id, false).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *Repository) FindPaymentByGatewayKey(ctx context.Context, tx *gorm.DB, key string) (*model.Payment, error) {
	var p model.Payment
	err := tx.WithContext(ctx).Preload("Cancellations").
		Where("gateway_key = ? AND is_deleted = ?", key, false).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// ListEventLogs is the operator-facing query over ledger rows.
func (r *Repository) ListEventLogs(ctx context.Context, status model.EventStatus, limit int) ([]model.EventLog, error) {
	var entries []model.EventLog
	err := r.db.WithContext(ctx).Where("status = ?", status).
		Order("created_at DESC").Limit(limit).Find(&entries).Error
	return entries, err
}

// CacheOrderStatus writes Redis.
func (r *Repository) CacheOrderStatus(ctx context.Context, orderID string, status model.OrderStatus) error {
	return r.rdb.Set(ctx, orderStatusKey(orderID), string(status), orderStatusTTL).Err()
}

// GetCachedOrderStatus reads Redis.
func (r *Repository) GetCachedOrderStatus(ctx context.Context, orderID string) (model.OrderStatus, error) {
	str, err := r.rdb.Get(ctx, orderStatusKey(orderID)).Result()
	if err != nil {
		return "", err
	}
	return model.OrderStatus(str), nil
}

func orderStatusKey(orderID string) string { return "order:status:" + orderID }

type opsAlert struct {
	Kind      string    `json:"kind"`
	EventID   string    `json:"event_id,omitempty"`
	EventKind string    `json:"event_kind,omitempty"`
	OrderID   string    `json:"order_id,omitempty"`
	PaymentID string    `json:"payment_id,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	At        time.Time `json:"at"`
}

// DeadLetterAlert notifies operators that an event exhausted its retries.
func (r *Repository) DeadLetterAlert(ctx context.Context, entry model.EventLog) error {
	return r.publishAlert(ctx, entry.ID, opsAlert{
		Kind:      "event_dead_letter",
		EventID:   entry.ID,
		EventKind: entry.EventKind,
		Reason:    "retry budget exhausted",
		At:        time.Now(),
	})
}

// RefundFailureAlert notifies operators that a gateway refund failed and
// the order needs manual follow-up.
func (r *Repository) RefundFailureAlert(ctx context.Context, orderID, paymentID, reason string) error {
	return r.publishAlert(ctx, orderID, opsAlert{
		Kind:      "refund_failure",
		OrderID:   orderID,
		PaymentID: paymentID,
		Reason:    reason,
		At:        time.Now(),
	})
}

func (r *Repository) publishAlert(ctx context.Context, key string, alert opsAlert) error {
	if r.writer == nil {
		r.log.Warnw("ops alert dropped, no kafka writer", "kind", alert.Kind, "key", key)
		return nil
	}
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal ops alert: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Time:  time.Now(),
	}
	return r.writer.WriteMessages(ctx, msg)
}
