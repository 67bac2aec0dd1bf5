// Package notifier provides fire-and-forget broadcast of session lifecycle
// and compaction phase events to registered observers.
//
// The engine's correctness never depends on an observer having received an
// event: handlers that panic are skipped, and publishing to zero observers
// is a no-op.
package notifier

import (
	"sync"
	"time"
)

// EventType represents the type of event.
type EventType string

// Event types that can be subscribed to.
const (
	EventSessionCreated     EventType = "created"
	EventMessageAdded       EventType = "message_added"
	EventSessionArchived    EventType = "archived"
	EventCompactionStart    EventType = "compaction_start"
	EventCompactionComplete EventType = "compaction_complete"
	EventCompactionError    EventType = "compaction_error"
)

// Event represents a notification event.
type Event struct {
	// Type is the event type.
	Type EventType

	// SessionID identifies the session the event concerns.
	SessionID string

	// FeatureID is the owning feature of the session.
	FeatureID string

	// Payload carries event-specific fields (counts, versions, reasons).
	Payload map[string]any

	// OccurredAt is when the event was published.
	OccurredAt time.Time
}

// Handler is called when an event is received.
type Handler func(event *Event)

// Subscription represents an active subscription to events.
type subscription struct {
	handler Handler
	id      int64
}

// Notifier broadcasts events to subscribed handlers.
type Notifier struct {
	mu            sync.RWMutex
	subscriptions map[EventType][]*subscription
	nextSubID     int64
}

// New creates a notifier with no subscribers.
func New() *Notifier {
	return &Notifier{
		subscriptions: make(map[EventType][]*subscription),
	}
}

// Subscribe registers a handler for the given event type.
// Returns a function to unsubscribe.
func (n *Notifier) Subscribe(eventType EventType, handler Handler) func() {
	n.mu.Lock()
	defer n.mu.Unlock()

	sub := &subscription{handler: handler, id: n.nextSubID}
	n.nextSubID++
	n.subscriptions[eventType] = append(n.subscriptions[eventType], sub)

	return func() {
		n.unsubscribe(eventType, sub.id)
	}
}

func (n *Notifier) unsubscribe(eventType EventType, id int64) {
	n.mu.Lock()
	defer n.mu.Unlock()

	subs := n.subscriptions[eventType]
	for i, sub := range subs {
		if sub.id == id {
			n.subscriptions[eventType] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
}

// Publish broadcasts an event to every subscriber of its type. It never
// fails and never blocks on a broken observer.
func (n *Notifier) Publish(event *Event) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	n.mu.RLock()
	subs := make([]*subscription, len(n.subscriptions[event.Type]))
	copy(subs, n.subscriptions[event.Type])
	n.mu.RUnlock()

	for _, sub := range subs {
		// Handlers run synchronously to preserve per-session event order.
		// An unreachable observer must not take the notifier down with it.
		dispatch(sub.handler, event)
	}
}

func dispatch(handler Handler, event *Event) {
	defer func() {
		_ = recover()
	}()
	handler(event)
}

// SubscriberCount returns the number of handlers registered for a type.
func (n *Notifier) SubscriberCount(eventType EventType) int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subscriptions[eventType])
}
