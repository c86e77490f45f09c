package event

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/foodly/order-service/internal/model"
)

var (
	ErrNilEvent      = errors.New("event must not be nil")
	ErrSerialization = errors.New("event serialization failed")
)

// Publisher makes an event durable before anyone can handle it: it
// writes a PENDING ledger row inside the caller's transaction, then
// queues the event on the bus. If the transaction rolls back, the row
// and the business mutation vanish together; the bus side simply finds
// no matching row to update.
type Publisher struct {
	bus *Bus
	log *zap.SugaredLogger
}

func NewPublisher(bus *Bus, log *zap.SugaredLogger) *Publisher {
	return &Publisher{bus: bus, log: log}
}

// Publish serializes ev, inserts its ledger row using tx (the caller's
// business transaction) and hands the envelope to the bus.
func (p *Publisher) Publish(ctx context.Context, tx *gorm.DB, ev Event) error {
	if ev == nil {
		return ErrNilEvent
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSerialization, ev.Kind(), err)
	}

	entry, err := model.NewEventLog(ev.Kind(), string(payload))
	if err != nil {
		return err
	}
	if err := tx.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("persist event log: %w", err)
	}

	p.log.Infow("event published", "event_id", entry.ID, "kind", ev.Kind())

	p.bus.Publish(Envelope{EventID: entry.ID, Kind: ev.Kind(), Event: ev})
	return nil
}
