package event

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/foodly/order-service/internal/model"
)

// Consumer is the single bus subscriber. For each envelope it resolves
// the handler from the registry, runs it in its own transaction scope
// and records the outcome on the matching ledger row. Handler errors are
// swallowed here: the original publisher call has long returned, so the
// only place a failure stays visible is the ledger status.
type Consumer struct {
	db       *gorm.DB
	registry *Registry
	log      *zap.SugaredLogger
}

func NewConsumer(db *gorm.DB, registry *Registry, log *zap.SugaredLogger) *Consumer {
	return &Consumer{db: db, registry: registry, log: log}
}

// Attach subscribes the consumer to the bus.
func (c *Consumer) Attach(bus *Bus) {
	bus.Subscribe(c.Dispatch)
}

// Dispatch handles one envelope end to end.
func (c *Consumer) Dispatch(ctx context.Context, env Envelope) {
	handler, err := c.registry.Handler(env.Kind)
	if err != nil {
		// Configuration error: fail the row loudly instead of dropping
		// the event on the floor.
		c.log.Errorw("event dispatch misconfigured", "event_id", env.EventID, "kind", env.Kind, "err", err)
		c.markOutcome(ctx, env.EventID, model.EventFailed)
		return
	}

	if err := handler.Handle(ctx, env.Event); err != nil {
		c.log.Errorw("event handler failed", "event_id", env.EventID, "kind", env.Kind, "err", err)
		c.markOutcome(ctx, env.EventID, model.EventFailed)
		return
	}

	c.log.Infow("event handled", "event_id", env.EventID, "kind", env.Kind)
	c.markOutcome(ctx, env.EventID, model.EventSuccess)
}

// markOutcome moves the ledger row identified by the envelope's
// correlation id to SUCCESS or FAILED, honoring the status machine. A
// missing row means the publisher's transaction rolled back; nothing to
// record.
func (c *Consumer) markOutcome(ctx context.Context, eventID string, target model.EventStatus) {
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entry model.EventLog
		if err := tx.Where("id = ?", eventID).First(&entry).Error; err != nil {
			return err
		}
		if err := entry.Transition(target); err != nil {
			return err
		}
		return tx.Model(&model.EventLog{}).Where("id = ?", eventID).
			Updates(map[string]interface{}{
				"status":     entry.Status,
				"updated_at": entry.UpdatedAt,
			}).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.log.Warnw("no ledger row for event, publisher likely rolled back", "event_id", eventID)
			return
		}
		c.log.Errorw("event log update failed", "event_id", eventID, "target", target, "err", err)
	}
}
