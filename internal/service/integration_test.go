package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afiqaffendi/rbs/internal/database"
	"github.com/afiqaffendi/rbs/internal/domain"
	"github.com/afiqaffendi/rbs/internal/lifecycle"
	"github.com/afiqaffendi/rbs/internal/models"
	"github.com/afiqaffendi/rbs/internal/repository"
)

func setupStore(t *testing.T, counts map[string]int) (*database.DB, *models.Restaurant) {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	r := testRestaurant(t, counts)
	r.ID = 0
	require.NoError(t, db.CreateRestaurant(context.Background(), r))
	return db, r
}

// Ten customers race for the last 2-seat table of a slot.
func TestCreateBooking_ConcurrentLastTable(t *testing.T) {
	for _, withLocker := range []bool{true, false} {
		name := "WithoutSlotLock"
		if withLocker {
			name = "WithSlotLock"
		}
		t.Run(name, func(t *testing.T) {
			db, r := setupStore(t, map[string]int{"2pax": 1})
			logger := zerolog.Nop()
			var locker domain.SlotLocker
			if withLocker {
				locker = repository.NewMemorySlotLocker()
			}
			svc := NewBookingService(db, nil, locker, nil, nil, testBookingConfig(), &logger)
			svc.now = fixedNow

			const n = 10
			var wg sync.WaitGroup
			errs := make([]error, n)
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					req := createRequest(2)
					req.RestaurantID = r.ID
					req.CustomerID = int64(1000 + i)
					_, errs[i] = svc.CreateBooking(context.Background(), req)
				}(i)
			}
			wg.Wait()

			succeeded := 0
			for _, err := range errs {
				if err == nil {
					succeeded++
					continue
				}
				assert.True(t, isRejection(err), "unexpected error: %v", err)
			}
			assert.Equal(t, 1, succeeded)

			bookings, err := db.ListSlotBookings(context.Background(), r.ID, testDate, testSlot)
			require.NoError(t, err)
			assert.Len(t, bookings, 1)
		})
	}
}

func isRejection(err error) bool {
	return errors.Is(err, models.ErrConcurrencyConflict) || errors.Is(err, models.ErrNoSuitableTable)
}

// Cancelling frees the table for the next party.
func TestBookingFlow_CancelFreesTable(t *testing.T) {
	ctx := context.Background()
	db, r := setupStore(t, map[string]int{"2pax": 1})
	logger := zerolog.Nop()
	svc := NewBookingService(db, nil, repository.NewMemorySlotLocker(), nil, nil, testBookingConfig(), &logger)
	svc.now = fixedNow

	req := createRequest(2)
	req.RestaurantID = r.ID
	first, err := svc.CreateBooking(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingPayment, first.Status)

	req.CustomerID = 8
	_, err = svc.CreateBooking(ctx, req)
	assert.ErrorIs(t, err, models.ErrNoSuitableTable)

	confirmed, err := svc.HandlePaymentEvent(ctx, lifecycle.PaymentEvent{Reference: first.Reference, StatusID: lifecycle.PaymentStatusSuccess})
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, confirmed.Status)
	assert.Equal(t, int64(2), confirmed.Version)

	_, err = svc.CancelBooking(ctx, domain.Identity{UserID: customerID, Role: lifecycle.ActorCustomer}, first.ID)
	require.NoError(t, err)

	second, err := svc.CreateBooking(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, models.Table2pax, second.AssignedTableSize)

	pending, err := db.GetPendingOutboxTasks(ctx, 10)
	require.NoError(t, err)
	var types []string
	for _, task := range pending {
		types = append(types, task.EventType)
	}
	assert.Equal(t, []string{
		models.EventBookingCreated,
		models.EventBookingConfirmed,
		models.EventBookingCancelled,
		models.EventBookingCreated,
	}, types)
}
