package event

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Bus is the in-process event bus. Publish never waits on a handler: the
// envelope is queued and dispatched by worker goroutines, so the caller
// returns as soon as the ledger row is durable.
type Bus struct {
	ch      chan Envelope
	workers int
	log     *zap.SugaredLogger

	mu       sync.Mutex
	dispatch func(ctx context.Context, env Envelope)
}

func NewBus(bufferSize, workers int, log *zap.SugaredLogger) *Bus {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	if workers <= 0 {
		workers = 1
	}
	return &Bus{
		ch:      make(chan Envelope, bufferSize),
		workers: workers,
		log:     log,
	}
}

// Subscribe sets the dispatch function for every envelope on the bus.
// There is a single subscriber: the consumer.
func (b *Bus) Subscribe(dispatch func(ctx context.Context, env Envelope)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dispatch = dispatch
}

// Publish queues an envelope for async dispatch. Blocks only when the
// buffer is full.
func (b *Bus) Publish(env Envelope) {
	b.ch <- env
}

// Run drains the queue with worker goroutines until ctx is canceled.
func (b *Bus) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < b.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case env := <-b.ch:
					b.mu.Lock()
					dispatch := b.dispatch
					b.mu.Unlock()
					if dispatch == nil {
						b.log.Errorf("bus: no subscriber, dropping event %s (%s)", env.EventID, env.Kind)
						continue
					}
					dispatch(ctx, env)
				}
			}
		}()
	}
	wg.Wait()
}
