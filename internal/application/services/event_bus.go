package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mylabook/opsflow/internal/domain/events"
	"github.com/mylabook/opsflow/internal/domain/ports"
	"github.com/mylabook/opsflow/pkg/utils"
)

// PlatformEvent is the envelope handed to async subscribers and logged on dispatch.
type PlatformEvent struct {
	ID        string           `json:"id"`
	Type      events.EventType `json:"type"`
	Payload   interface{}      `json:"payload"`
	Timestamp int64            `json:"timestamp"`
}

type subscription struct {
	id      uint64
	handler ports.EventHandler
}

// EventBus manages the in-process publish-subscribe system.
// It implements ports.EventPublisher.
type EventBus struct {
	handlers map[events.EventType][]subscription
	nextID   uint64
	mu       sync.RWMutex
}

// Ensure EventBus implements ports.EventPublisher at compile time
var _ ports.EventPublisher = (*EventBus)(nil)

// NewEventBus creates a new EventBus instance
func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[events.EventType][]subscription),
	}
}

// Subscribe registers a handler for a specific event type.
// Returns an unsubscribe function.
func (eb *EventBus) Subscribe(eventType events.EventType, handler ports.EventHandler) func() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.nextID++
	id := eb.nextID
	eb.handlers[eventType] = append(eb.handlers[eventType], subscription{id: id, handler: handler})

	return func() {
		eb.mu.Lock()
		defer eb.mu.Unlock()

		subs := eb.handlers[eventType]
		for i, s := range subs {
			if s.id == id {
				eb.handlers[eventType] = append(subs[:i:i], subs[i+1:]...)
				break
			}
		}
	}
}

// Publish dispatches an event to all registered handlers in subscription order.
// The first handler error stops dispatch and is returned.
func (eb *EventBus) Publish(ctx context.Context, eventType events.EventType, payload interface{}) error {
	eb.mu.RLock()
	subs := make([]subscription, len(eb.handlers[eventType]))
	copy(subs, eb.handlers[eventType])
	eb.mu.RUnlock()

	if len(subs) == 0 {
		return nil
	}

	event := PlatformEvent{
		ID:        utils.GenerateID(),
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now().Unix(),
	}
	log.Debug("📤 Publishing event", "type", event.Type, "id", event.ID, "handlers", len(subs))

	for _, s := range subs {
		if err := s.handler(ctx, event.Payload); err != nil {
			return fmt.Errorf("EventBus handler error for %s: %w", eventType, err)
		}
	}
	return nil
}

// PublishAsync publishes an event on a background goroutine.
func (eb *EventBus) PublishAsync(eventType events.EventType, payload interface{}) {
	go func() {
		// background context: async events outlive the request that raised them
		if err := eb.Publish(context.Background(), eventType, payload); err != nil {
			log.Error("EventBus async publish error", "type", eventType, "err", err)
		}
	}()
}

// Clear removes all handlers (useful for testing)
func (eb *EventBus) Clear() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.handlers = make(map[events.EventType][]subscription)
}

// RegisterDelayAlerts subscribes the reporting-manager alert signal to step.delayed.
// Delivery is handled outside this service; the signal is logged at warn level.
func RegisterDelayAlerts(bus ports.EventPublisher) func() {
	return bus.Subscribe(events.StepDelayed, func(ctx context.Context, payload interface{}) error {
		evt, ok := payload.(events.StepDelayedEvent)
		if !ok {
			return nil
		}
		log.Warn("🚨 Step delayed, alerting reporting managers",
			"kind", evt.EntityKind,
			"entity", evt.EntityID,
			"step", evt.StepID,
			"name", evt.StepName,
			"reason", evt.Reason,
			"role", evt.AssignedRole,
			"assignee", evt.AssignedTo,
		)
		return nil
	})
}
