package domain

import (
	"context"
	"encoding/json"
	"time"
)

// EventType identifies the kind of event being published.
type EventType string

const (
	EventAgentSpawned    EventType = "agent.spawned"
	EventAgentTerminated EventType = "agent.terminated"
	EventAgentUnhealthy  EventType = "agent.unhealthy"
	EventTaskStarted     EventType = "task.started"
	EventTaskCompleted   EventType = "task.completed"
	EventTaskFailed      EventType = "task.failed"
	EventMemoryStored    EventType = "memory.stored"
	EventMemoryDeleted   EventType = "memory.deleted"
	EventScheduleFired   EventType = "schedule.fired"
	EventRemote          EventType = "remote.event"
)

// Event is the envelope published on the event bus. Dispatch is best-effort
// and in-process only; there is no delivery guarantee.
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// EventHandler is a callback invoked when an event is received.
type EventHandler func(ctx context.Context, event Event)

// EventBus provides a publish/subscribe mechanism for lifecycle events.
type EventBus interface {
	// Publish sends an event to all matching subscribers.
	Publish(ctx context.Context, event Event)
	// Subscribe registers a handler for a specific event type.
	// Returns an unsubscribe function.
	Subscribe(eventType EventType, handler EventHandler) func()
	// SubscribeAll registers a handler that receives every event.
	// Returns an unsubscribe function.
	SubscribeAll(handler EventHandler) func()
	// Close drains in-flight handlers and prevents new publishes.
	Close()
}
