package event

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrNoHandler means no handler was registered for an event kind.
	// This is a wiring mistake, not a runtime data error.
	ErrNoHandler = errors.New("no handler registered for event kind")

	// ErrDuplicateHandler means two handlers claimed the same kind.
	ErrDuplicateHandler = errors.New("handler already registered for event kind")
)

// Handler processes one event kind. A returned error marks the ledger
// row FAILED and hands the event to the retry path.
type Handler interface {
	EventKind() string
	Handle(ctx context.Context, ev Event) error
}

// Decoder turns a stored payload back into its concrete event type so a
// retried event routes to the same handler as the original dispatch.
type Decoder func(payload []byte) (Event, error)

// Registry maps event kinds to their single handler and payload decoder.
// It is built once by NewRegistry and read-only afterwards.
type Registry struct {
	handlers map[string]Handler
	decoders map[string]Decoder
}

// NewRegistry builds the kind -> handler table. Exactly one handler per
// kind; duplicates fail construction.
func NewRegistry(handlers ...Handler) (*Registry, error) {
	r := &Registry{
		handlers: make(map[string]Handler, len(handlers)),
		decoders: map[string]Decoder{
			KindPaymentRequested: decodeInto[PaymentRequested],
			KindCancelRequested:  decodeInto[CancelRequested],
			KindPaymentCompleted: decodeInto[PaymentCompleted],
			KindPaymentCanceled:  decodeInto[PaymentCanceled],
		},
	}
	for _, h := range handlers {
		kind := h.EventKind()
		if _, ok := r.handlers[kind]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateHandler, kind)
		}
		if _, ok := r.decoders[kind]; !ok {
			return nil, fmt.Errorf("no decoder registered for event kind %s", kind)
		}
		r.handlers[kind] = h
	}
	return r, nil
}

// Handler returns the handler for kind, or ErrNoHandler.
func (r *Registry) Handler(kind string) (Handler, error) {
	h, ok := r.handlers[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoHandler, kind)
	}
	return h, nil
}

// Decode deserializes a ledger payload back into its concrete event.
func (r *Registry) Decode(kind string, payload []byte) (Event, error) {
	dec, ok := r.decoders[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoHandler, kind)
	}
	return dec(payload)
}

func decodeInto[T Event](payload []byte) (Event, error) {
	var ev T
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, err
	}
	return ev, nil
}
