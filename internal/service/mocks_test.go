package service

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/afiqaffendi/rbs/internal/models"
)

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) GetRestaurant(ctx context.Context, id int64) (*models.Restaurant, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Restaurant), args.Error(1)
}
func (m *mockRepo) ListRestaurants(ctx context.Context) ([]models.Restaurant, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Restaurant), args.Error(1)
}
func (m *mockRepo) UpdateInventory(ctx context.Context, id int64, inv models.TableInventory) error {
	return m.Called(ctx, id, inv).Error(0)
}
func (m *mockRepo) UpdateOperatingHours(ctx context.Context, id int64, hours string) error {
	return m.Called(ctx, id, hours).Error(0)
}
func (m *mockRepo) UpdateMenu(ctx context.Context, id int64, menu []models.MenuItem) error {
	return m.Called(ctx, id, menu).Error(0)
}
func (m *mockRepo) CreateOutboxTask(ctx context.Context, task *models.OutboxTask) error {
	return m.Called(ctx, task).Error(0)
}
func (m *mockRepo) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}
func (m *mockRepo) GetBookingByReference(ctx context.Context, ref string) (*models.Booking, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}
func (m *mockRepo) CreateBookingWithLock(ctx context.Context, b *models.Booking) error {
	return m.Called(ctx, b).Error(0)
}
func (m *mockRepo) UpdateBookingStatusWithVersion(ctx context.Context, b *models.Booking, from models.Status) error {
	return m.Called(ctx, b, from).Error(0)
}
func (m *mockRepo) ListSlotBookings(ctx context.Context, id int64, date, slot string) ([]models.Booking, error) {
	args := m.Called(ctx, id, date, slot)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Booking), args.Error(1)
}
func (m *mockRepo) ListRestaurantBookingsByDate(ctx context.Context, id int64, date string) ([]models.Booking, error) {
	args := m.Called(ctx, id, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Booking), args.Error(1)
}
func (m *mockRepo) ListCustomerBookings(ctx context.Context, id int64) ([]models.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Booking), args.Error(1)
}

type publishedEvent struct {
	Type    string
	Payload interface{}
}

type mockEventBus struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (m *mockEventBus) PublishJSON(eventType string, payload any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, publishedEvent{Type: eventType, Payload: payload})
	return nil
}

func (m *mockEventBus) Types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.events))
	for i, e := range m.events {
		out[i] = e.Type
	}
	return out
}

type countingNotifier struct {
	mu    sync.Mutex
	wakes int
}

func (n *countingNotifier) Wake() {
	n.mu.Lock()
	n.wakes++
	n.mu.Unlock()
}

func (n *countingNotifier) Count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.wakes
}
