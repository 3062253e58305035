package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/afiqaffendi/rbs/internal/models"
)

// BookingEventPayload is the booking snapshot handed to in-process subscribers.
type BookingEventPayload struct {
	BookingID    int64         `json:"booking_id"`
	Reference    string        `json:"reference"`
	RestaurantID int64         `json:"restaurant_id"`
	CustomerID   int64         `json:"customer_id"`
	Date         string        `json:"date"`
	Slot         string        `json:"slot"`
	Pax          int           `json:"pax"`
	TableSize    string        `json:"table_size,omitempty"`
	Status       models.Status `json:"status"`
	PrevStatus   models.Status `json:"prev_status,omitempty"`
	AmountDue    int64         `json:"amount_due_cents"`
	ChangedBy    string        `json:"changed_by,omitempty"`
	ChangedByID  int64         `json:"changed_by_id,omitempty"`
}

// NewBookingPayload snapshots b after a move from prev. prev is empty for a new booking.
func NewBookingPayload(b *models.Booking, prev models.Status, changedBy string, changedByID int64) BookingEventPayload {
	return BookingEventPayload{
		BookingID:    b.ID,
		Reference:    b.Reference,
		RestaurantID: b.RestaurantID,
		CustomerID:   b.CustomerID,
		Date:         b.BookingDate,
		Slot:         b.TimeSlot,
		Pax:          b.Pax,
		TableSize:    b.AssignedTableSize.String(),
		Status:       b.Status,
		PrevStatus:   prev,
		AmountDue:    b.AmountDue(),
		ChangedBy:    changedBy,
		ChangedByID:  changedByID,
	}
}

// Event is one in-process notification. Payload is JSON.
type Event struct {
	ID        int64
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// DecodeBooking reads a booking payload back out of e.
func (e *Event) DecodeBooking() (BookingEventPayload, error) {
	var p BookingEventPayload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return p, fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return p, nil
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus fans events out to handlers registered per type or for all types.
// Handlers run synchronously on the publisher's goroutine.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[string][]EventHandler
	wildcard    []EventHandler
}

func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// SubscribeAll registers a handler that receives every event.
func (b *EventBus) SubscribeAll(handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.wildcard = append(b.wildcard, handler)
}

// Publish runs every matching handler and returns the first failure.
// A panicking handler counts as a failure and does not stop the others.
func (b *EventBus) Publish(event *Event) error {
	b.mu.RLock()
	handlers := make([]EventHandler, 0, len(b.subscribers[event.Type])+len(b.wildcard))
	handlers = append(handlers, b.subscribers[event.Type]...)
	handlers = append(handlers, b.wildcard...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	var first error
	for _, handler := range handlers {
		if err := runHandler(handler, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func runHandler(handler EventHandler, event *Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler for %s panicked: %v", event.Type, r)
		}
	}()
	return handler(event)
}

// PublishJSON encodes payload and publishes it. A nil bus drops the event.
func (b *EventBus) PublishJSON(eventType string, payload any) error {
	if b == nil {
		return nil
	}
	event, err := NewJSONEvent(eventType, payload)
	if err != nil {
		return err
	}
	return b.Publish(&event)
}

func NewJSONEvent(eventType string, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	return Event{Type: eventType, Payload: raw, CreatedAt: time.Now()}, nil
}
