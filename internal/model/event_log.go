package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventStatus is the processing state of a ledger row.
type EventStatus string

const (
	EventPending    EventStatus = "PENDING"
	EventSuccess    EventStatus = "SUCCESS"
	EventFailed     EventStatus = "FAILED"
	EventRetrying   EventStatus = "RETRYING"
	EventDeadLetter EventStatus = "DEAD_LETTER"
)

var ErrInvalidEventTransition = errors.New("invalid event status transition")

// Valid reports whether s is one of the known statuses.
func (s EventStatus) Valid() bool {
	switch s {
	case EventPending, EventSuccess, EventFailed, EventRetrying, EventDeadLetter:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether the status machine allows moving to target.
// SUCCESS and DEAD_LETTER are terminal.
func (s EventStatus) CanTransitionTo(target EventStatus) bool {
	switch s {
	case EventPending:
		return target == EventSuccess || target == EventFailed
	case EventFailed:
		return target == EventRetrying || target == EventDeadLetter
	case EventRetrying:
		return target == EventSuccess || target == EventFailed
	default:
		return false
	}
}

// EventLog is the durable ledger row for one published event.
// Created by the publisher, mutated only by the consumer and the sweeper.
type EventLog struct {
	ID         string      `gorm:"primaryKey;size:36"`
	EventKind  string      `gorm:"size:100;not null"`
	Payload    string      `gorm:"type:text;not null"`
	Status     EventStatus `gorm:"size:20;not null"`
	RetryCount int         `gorm:"not null;default:0"`
	CreatedAt  time.Time   `gorm:"autoCreateTime"`
	UpdatedAt  time.Time   `gorm:"not null"`
}

func (EventLog) TableName() string { return "event_log" }

// NewEventLog builds a PENDING row. Kind and payload are mandatory.
func NewEventLog(kind, payload string) (*EventLog, error) {
	if kind == "" {
		return nil, errors.New("event kind is required")
	}
	if payload == "" {
		return nil, errors.New("event payload is required")
	}
	now := time.Now()
	return &EventLog{
		ID:        uuid.NewString(),
		EventKind: kind,
		Payload:   payload,
		Status:    EventPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Transition moves the row to target, rejecting moves the status machine
// does not allow.
func (e *EventLog) Transition(target EventStatus) error {
	if !e.Status.CanTransitionTo(target) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidEventTransition, e.Status, target)
	}
	e.Status = target
	e.UpdatedAt = time.Now()
	return nil
}

// IncrementRetry bumps the retry counter.
func (e *EventLog) IncrementRetry() {
	e.RetryCount++
	e.UpdatedAt = time.Now()
}
