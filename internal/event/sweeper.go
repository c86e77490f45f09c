package event

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/foodly/order-service/internal/model"
)

// Alerter pushes operator-facing notifications for events that exhausted
// their retry budget.
type Alerter interface {
	DeadLetterAlert(ctx context.Context, entry model.EventLog) error
}

// Sweeper periodically promotes FAILED ledger rows: back onto the bus
// while the retry ceiling allows it, into DEAD_LETTER once it does not.
// It assumes it is the only active instance; a second sweeper would
// double-process failed events.
type Sweeper struct {
	db         *gorm.DB
	registry   *Registry
	bus        *Bus
	alerter    Alerter
	interval   time.Duration
	maxRetries int
	log        *zap.SugaredLogger
}

func NewSweeper(db *gorm.DB, registry *Registry, bus *Bus, alerter Alerter,
	interval time.Duration, maxRetries int, log *zap.SugaredLogger) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Sweeper{
		db:         db,
		registry:   registry,
		bus:        bus,
		alerter:    alerter,
		interval:   interval,
		maxRetries: maxRetries,
		log:        log,
	}
}

// Run sweeps on a fixed period until ctx is canceled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Infof("retry sweeper started, interval=%s", s.interval)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("retry sweeper stopping")
			return
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				s.log.Errorf("sweep: %v", err)
			}
		}
	}
}

// Sweep processes every FAILED row once. An empty sweep is a no-op.
func (s *Sweeper) Sweep(ctx context.Context) error {
	var failed []model.EventLog
	if err := s.db.WithContext(ctx).
		Where("status = ?", model.EventFailed).
		Order("created_at").
		Find(&failed).Error; err != nil {
		return err
	}
	if len(failed) == 0 {
		return nil
	}

	s.log.Infof("sweeping %d failed events", len(failed))
	for i := range failed {
		s.processRetry(ctx, &failed[i])
	}
	return nil
}

func (s *Sweeper) processRetry(ctx context.Context, entry *model.EventLog) {
	if entry.RetryCount >= s.maxRetries {
		if err := entry.Transition(model.EventDeadLetter); err != nil {
			s.log.Errorw("dead-letter transition rejected", "event_id", entry.ID, "err", err)
			return
		}
		if err := s.saveStatus(ctx, entry); err != nil {
			s.log.Errorw("dead-letter update failed", "event_id", entry.ID, "err", err)
			return
		}
		s.log.Warnw("event moved to dead letter, manual intervention required",
			"event_id", entry.ID, "kind", entry.EventKind, "retry_count", entry.RetryCount)
		if s.alerter != nil {
			if err := s.alerter.DeadLetterAlert(ctx, *entry); err != nil {
				s.log.Errorw("dead-letter alert failed", "event_id", entry.ID, "err", err)
			}
		}
		return
	}

	// Decode the stored payload back into the original concrete type, so
	// the retry routes to the same handler as the first dispatch.
	ev, err := s.registry.Decode(entry.EventKind, []byte(entry.Payload))
	if err != nil {
		s.log.Errorw("retry payload decode failed", "event_id", entry.ID, "kind", entry.EventKind, "err", err)
		return
	}

	if err := entry.Transition(model.EventRetrying); err != nil {
		s.log.Warnw("retrying transition rejected", "event_id", entry.ID, "err", err)
		return
	}
	entry.IncrementRetry()
	if err := s.saveRetry(ctx, entry); err != nil {
		s.log.Errorw("retry bookkeeping failed", "event_id", entry.ID, "err", err)
		return
	}

	s.log.Infow("re-publishing failed event",
		"event_id", entry.ID, "kind", entry.EventKind, "retry_count", entry.RetryCount)
	s.bus.Publish(Envelope{EventID: entry.ID, Kind: entry.EventKind, Event: ev})
}

func (s *Sweeper) saveStatus(ctx context.Context, entry *model.EventLog) error {
	return s.db.WithContext(ctx).Model(&model.EventLog{}).Where("id = ?", entry.ID).
		Updates(map[string]interface{}{
			"status":     entry.Status,
			"updated_at": entry.UpdatedAt,
		}).Error
}

func (s *Sweeper) saveRetry(ctx context.Context, entry *model.EventLog) error {
	return s.db.WithContext(ctx).Model(&model.EventLog{}).Where("id = ?", entry.ID).
		Updates(map[string]interface{}{
			"status":      entry.Status,
			"retry_count": entry.RetryCount,
			"updated_at":  entry.UpdatedAt,
		}).Error
}
