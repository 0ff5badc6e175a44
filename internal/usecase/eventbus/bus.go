package eventbus

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/jason-c-dev/opencode-flow/internal/domain"
)

// subscription pairs a handler with an optional type filter. An empty filter
// matches every event.
type subscription struct {
	filter  domain.EventType
	handler domain.EventHandler
}

// Bus is an in-process, goroutine-safe event bus. Dispatch is fire-and-forget:
// each handler runs in its own goroutine and panics are recovered, so a
// misbehaving observer can never stall the core.
type Bus struct {
	mu     sync.RWMutex
	subs   map[uint64]subscription
	nextID atomic.Uint64
	logger *slog.Logger
	wg     sync.WaitGroup
	closed atomic.Bool
}

// New creates an event bus.
func New(logger *slog.Logger) *Bus {
	return &Bus{
		subs:   make(map[uint64]subscription),
		logger: logger,
	}
}

// Publish fans out an event to matching subscribers.
func (b *Bus) Publish(ctx context.Context, event domain.Event) {
	if b.closed.Load() {
		return
	}

	b.mu.RLock()
	matched := make([]domain.EventHandler, 0, len(b.subs))
	for _, sub := range b.subs {
		if sub.filter == "" || sub.filter == event.Type {
			matched = append(matched, sub.handler)
		}
	}
	b.mu.RUnlock()

	for _, handler := range matched {
		b.wg.Add(1)
		go func(h domain.EventHandler) {
			defer b.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("event handler panicked",
						"event", string(event.Type),
						"panic", r,
					)
				}
			}()
			h(ctx, event)
		}(handler)
	}
}

// Subscribe registers a handler for a specific event type.
// Returns an unsubscribe function.
func (b *Bus) Subscribe(eventType domain.EventType, handler domain.EventHandler) func() {
	return b.add(subscription{filter: eventType, handler: handler})
}

// SubscribeAll registers a handler that receives every event.
// Returns an unsubscribe function.
func (b *Bus) SubscribeAll(handler domain.EventHandler) func() {
	return b.add(subscription{handler: handler})
}

func (b *Bus) add(sub subscription) func() {
	id := b.nextID.Add(1)

	b.mu.Lock()
	b.subs[id] = sub
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// Close prevents new publishes and waits for all in-flight handlers to
// finish. Idempotent.
func (b *Bus) Close() {
	if b.closed.Swap(true) {
		return
	}
	b.wg.Wait()
}

// Compile-time interface check.
var _ domain.EventBus = (*Bus)(nil)
