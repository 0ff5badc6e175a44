package memory

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jason-c-dev/opencode-flow/internal/domain"
)

// EventedStore decorates a MemoryStore with lifecycle events so other
// workflows can react to coordination writes. Events fire only after the
// underlying operation succeeds.
type EventedStore struct {
	domain.MemoryStore
	bus domain.EventBus
}

// NewEventedStore wraps inner. A nil bus returns inner unchanged.
func NewEventedStore(inner domain.MemoryStore, bus domain.EventBus) domain.MemoryStore {
	if bus == nil {
		return inner
	}
	return &EventedStore{MemoryStore: inner, bus: bus}
}

func (s *EventedStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if err := s.MemoryStore.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	s.publish(ctx, domain.EventMemoryStored, key)
	return nil
}

func (s *EventedStore) Delete(ctx context.Context, key string) error {
	if err := s.MemoryStore.Delete(ctx, key); err != nil {
		return err
	}
	s.publish(ctx, domain.EventMemoryDeleted, key)
	return nil
}

func (s *EventedStore) publish(ctx context.Context, eventType domain.EventType, key string) {
	payload, err := json.Marshal(map[string]string{"key": key})
	if err != nil {
		return
	}
	s.bus.Publish(ctx, domain.Event{Type: eventType, Timestamp: time.Now(), Payload: payload})
}
