package events

import (
	"encoding/json"
	"sync"
	"time"
)

// Tables that publish changes.
const (
	TableBookings = "bookings"
	TableDisputes = "disputes"
	TableWallet   = "wallet_verification_requests"
)

// Change operations.
const (
	OpInsert = "INSERT"
	OpUpdate = "UPDATE"
)

// Event types published on the bus. Every change is also published under
// EventAnyChange so fan-out consumers can subscribe once.
const (
	EventBookingCreated  = "booking_created"
	EventBookingStatus   = "booking_status_changed"
	EventBookingPayment  = "booking_payment_changed"
	EventDisputeCreated  = "dispute_created"
	EventDisputeUpdated  = "dispute_updated"
	EventWalletSubmitted = "wallet_submitted"
	EventWalletUpdated   = "wallet_updated"
	EventAnyChange       = "*"
)

// ChangePayload describes one row change for realtime and notification consumers.
type ChangePayload struct {
	Table      string    `json:"table"`
	Op         string    `json:"op"`
	RecordID   string    `json:"record_id"`
	BookingID  string    `json:"booking_id,omitempty"`
	CustomerID string    `json:"customer_id,omitempty"`
	ProviderID string    `json:"provider_id,omitempty"`
	Status     string    `json:"status,omitempty"`
	PrevStatus string    `json:"prev_status,omitempty"`
	ActorID    string    `json:"actor_id,omitempty"`
	ActorRole  string    `json:"actor_role,omitempty"`
	At         time.Time `json:"at"`
}

// Involves reports whether the change names the user as customer or provider.
func (p ChangePayload) Involves(userID string) bool {
	return userID != "" && (p.CustomerID == userID || p.ProviderID == userID)
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// Change decodes the payload as a ChangePayload.
func (e *Event) Change() (ChangePayload, error) {
	var p ChangePayload
	err := json.Unmarshal(e.Payload, &p)
	return p, err
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type, then wildcard subscribers.
// The first handler error is returned after all handlers ran.
func (b *EventBus) Publish(event *Event) error {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	if event.Type != EventAnyChange {
		handlers = append(handlers, b.subscribers[EventAnyChange]...)
	}
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	var first error
	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		if err := handler(event); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	event, err := NewJSONEvent(eventType, payload)
	if err != nil {
		return err
	}
	return b.Publish(&event)
}

// PublishChange publishes a row change. Nil bus is a no-op.
func (b *EventBus) PublishChange(eventType string, change ChangePayload) error {
	if change.At.IsZero() {
		change.At = time.Now().UTC()
	}
	return b.PublishJSON(eventType, change)
}

// NewJSONEvent builds an Event with JSON payload for manual publishing.
func NewJSONEvent(eventType string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}

	return Event{Type: eventType, Payload: raw, CreatedAt: time.Now()}, nil
}
