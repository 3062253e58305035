package models

const (
	// DefaultRedisTTL is how long a draft booking lives in Redis, in seconds.
	DefaultRedisTTL = 24 * 60 * 60

	// DefaultStepMinutes is the distance between consecutive slot starts.
	DefaultStepMinutes = 60

	// DefaultWindowMinutes is the length of a dining window.
	DefaultWindowMinutes = 120

	// DefaultDepositCents is charged when the booking has no pre-order.
	DefaultDepositCents = 5000

	// DefaultMaxAttempts bounds allocation retries after a concurrency conflict.
	DefaultMaxAttempts = 3

	// DefaultMaxBookingDays is how far ahead a booking may be made.
	DefaultMaxBookingDays = 60

	// OutboxQueueSize is the in-memory buffer of the outbox worker.
	OutboxQueueSize = 1000

	// RateLimitBookings is the number of booking attempts allowed per window.
	RateLimitBookings = 10

	// RateLimitWindow is the booking rate limit window, in seconds.
	RateLimitWindow = 60
)

// Event types published on the event bus and the broker.
const (
	EventBookingCreated   = "booking.created"
	EventBookingConfirmed = "booking.confirmed"
	EventBookingRejected  = "booking.rejected"
	EventBookingCancelled = "booking.cancelled"
	EventBookingCompleted = "booking.completed"
	EventInventoryUpdated = "restaurant.inventory_updated"
	EventHoursUpdated     = "restaurant.hours_updated"
	EventMenuUpdated      = "restaurant.menu_updated"
)

// EventForStatus returns the event type announcing a move into status s.
func EventForStatus(s Status) string {
	switch s {
	case StatusConfirmed:
		return EventBookingConfirmed
	case StatusRejected:
		return EventBookingRejected
	case StatusCancelled:
		return EventBookingCancelled
	case StatusCompleted:
		return EventBookingCompleted
	default:
		return EventBookingCreated
	}
}
