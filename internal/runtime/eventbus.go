package runtime

import (
	"sync"
	"time"
)

// EventType represents the type of runtime event.
type EventType string

const (
	EventRunStart         EventType = "run_start"
	EventIterationStart   EventType = "iteration_start"
	EventIterationEnd     EventType = "iteration_end"
	EventProviderRequest  EventType = "provider_request"
	EventProviderResponse EventType = "provider_response"
	EventToolCallStart    EventType = "tool_call_start"
	EventToolCallEnd      EventType = "tool_call_end"
	EventToolCallFailed   EventType = "tool_call_failed"
	EventResultCached     EventType = "result_cached"
	EventGuardViolation   EventType = "guard_violation"
	EventRunComplete      EventType = "run_complete"
	EventRunExhausted     EventType = "run_exhausted"
	EventRunError         EventType = "run_error"
)

// Event represents a runtime event with associated data.
type Event struct {
	Type      EventType
	Timestamp time.Time
	RunID     string
	Data      map[string]any
}

// EventHandler is a function that handles events.
type EventHandler func(Event)

// EventBus fans runtime events out to subscribers. Handlers run
// synchronously on the publishing goroutine.
type EventBus struct {
	mu          sync.RWMutex
	handlers    map[EventType][]EventHandler
	allHandlers []EventHandler
}

// NewEventBus creates a new event bus.
func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[EventType][]EventHandler),
	}
}

// Subscribe registers a handler for a specific event type.
func (eb *EventBus) Subscribe(eventType EventType, handler EventHandler) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.handlers[eventType] = append(eb.handlers[eventType], handler)
}

// SubscribeAll registers a handler for all event types.
func (eb *EventBus) SubscribeAll(handler EventHandler) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.allHandlers = append(eb.allHandlers, handler)
}

// Publish sends an event to all registered handlers.
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	for _, handler := range eb.handlers[event.Type] {
		handler(event)
	}
	for _, handler := range eb.allHandlers {
		handler(event)
	}
}

// PublishSimple publishes an event without additional data.
func (eb *EventBus) PublishSimple(eventType EventType, runID string) {
	eb.Publish(Event{
		Type:  eventType,
		RunID: runID,
	})
}

// PublishWithData publishes an event with associated data.
func (eb *EventBus) PublishWithData(eventType EventType, runID string, data map[string]any) {
	eb.Publish(Event{
		Type:  eventType,
		RunID: runID,
		Data:  data,
	})
}
