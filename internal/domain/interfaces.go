package domain

import (
	"context"
	"time"

	"github.com/afiqaffendi/rbs/internal/allocation"
	"github.com/afiqaffendi/rbs/internal/lifecycle"
	"github.com/afiqaffendi/rbs/internal/models"
)

type Repository interface {
	GetRestaurant(ctx context.Context, id int64) (*models.Restaurant, error)
	ListRestaurants(ctx context.Context) ([]models.Restaurant, error)
	UpdateInventory(ctx context.Context, restaurantID int64, inv models.TableInventory) error
	UpdateOperatingHours(ctx context.Context, restaurantID int64, hours string) error
	UpdateMenu(ctx context.Context, restaurantID int64, menu []models.MenuItem) error
	CreateOutboxTask(ctx context.Context, task *models.OutboxTask) error

	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	GetBookingByReference(ctx context.Context, reference string) (*models.Booking, error)
	CreateBookingWithLock(ctx context.Context, booking *models.Booking) error
	UpdateBookingStatusWithVersion(ctx context.Context, booking *models.Booking, from models.Status) error
	ListSlotBookings(ctx context.Context, restaurantID int64, date, slot string) ([]models.Booking, error)
	ListRestaurantBookingsByDate(ctx context.Context, restaurantID int64, date string) ([]models.Booking, error)
	ListCustomerBookings(ctx context.Context, customerID int64) ([]models.Booking, error)
}

// DraftRepository stores the per-user draft booking and booking rate limits.
type DraftRepository interface {
	GetDraft(ctx context.Context, userID int64) (*models.DraftBooking, error)
	SetDraft(ctx context.Context, draft *models.DraftBooking) error
	ClearDraft(ctx context.Context, userID int64) error
	CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error)
}

// SlotLocker serializes booking attempts for one restaurant, date and slot.
// Lock blocks until the lock is taken or ctx ends and returns a token for Unlock.
type SlotLocker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (string, error)
	Unlock(ctx context.Context, key, token string) error
}

type EventPublisher interface {
	PublishJSON(eventType string, payload any) error
}

// OutboxNotifier is told that new outbox rows were committed.
type OutboxNotifier interface {
	Wake()
}

// CreateBookingRequest is what a customer submits to reserve a table.
type CreateBookingRequest struct {
	RestaurantID int64             `json:"restaurant_id"`
	CustomerID   int64             `json:"-"`
	Date         string            `json:"date"`
	Slot         string            `json:"slot"`
	Pax          int               `json:"pax"`
	// MenuItems name dishes from the restaurant menu. Prices are taken from the menu.
	MenuItems []models.MenuItem `json:"menu_items,omitempty"`
	// PaymentRef is set when the customer pays by manual transfer and submits the reference code.
	PaymentRef    string `json:"payment_ref,omitempty"`
	PaymentMethod string `json:"payment_method,omitempty"`
}

// Identity is the caller as reported by the identity provider.
type Identity struct {
	UserID int64
	Role   lifecycle.Actor
}

type BookingService interface {
	ListSlots(ctx context.Context, restaurantID int64) ([]string, error)
	SlotAvailability(ctx context.Context, restaurantID int64, date string, pax int) ([]models.SlotAvailability, error)
	CheckAvailability(ctx context.Context, restaurantID int64, date, slot string, pax int) (allocation.Result, error)
	CreateBooking(ctx context.Context, req CreateBookingRequest) (*models.Booking, error)
	GetBooking(ctx context.Context, caller Identity, id int64) (*models.Booking, error)
	CancelBooking(ctx context.Context, caller Identity, id int64) (*models.Booking, error)
	CompleteBooking(ctx context.Context, caller Identity, id int64) (*models.Booking, error)
	VerifyPayment(ctx context.Context, caller Identity, id int64, approve bool) (*models.Booking, error)
	HandlePaymentEvent(ctx context.Context, ev lifecycle.PaymentEvent) (*models.Booking, error)
	UpcomingBookings(ctx context.Context, customerID int64) ([]models.Booking, error)
	BookingHistory(ctx context.Context, customerID int64) ([]models.Booking, error)
	DailyBookings(ctx context.Context, caller Identity, restaurantID int64, date string) ([]models.Booking, error)
}

type RestaurantService interface {
	GetRestaurant(ctx context.Context, id int64) (*models.Restaurant, error)
	ListRestaurants(ctx context.Context) ([]models.Restaurant, error)
	UpdateInventory(ctx context.Context, caller Identity, restaurantID int64, counts map[string]int) (*models.Restaurant, error)
	UpdateHours(ctx context.Context, caller Identity, restaurantID int64, hours string) (*models.Restaurant, error)
	UpdateMenu(ctx context.Context, caller Identity, restaurantID int64, menu []models.MenuItem) (*models.Restaurant, error)
}

type DraftService interface {
	GetDraft(ctx context.Context, userID int64) (*models.DraftBooking, error)
	SaveDraft(ctx context.Context, draft *models.DraftBooking) error
	ClearDraft(ctx context.Context, userID int64) error
}
