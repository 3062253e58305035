package service

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/afiqaffendi/rbs/internal/domain"
	"github.com/afiqaffendi/rbs/internal/lifecycle"
	"github.com/afiqaffendi/rbs/internal/models"
)

func TestRestaurantService(t *testing.T) {
	ctx := context.Background()
	logger := zerolog.Nop()
	owner := domain.Identity{UserID: ownerID, Role: lifecycle.ActorOwner}

	newSvc := func(t *testing.T) (*RestaurantService, *mockRepo, *mockEventBus, *countingNotifier) {
		repo := new(mockRepo)
		bus := &mockEventBus{}
		wake := &countingNotifier{}
		repo.On("GetRestaurant", mock.Anything, int64(1)).Return(testRestaurant(t, map[string]int{"2pax": 1}), nil)
		return NewRestaurantService(repo, bus, wake, &logger), repo, bus, wake
	}

	t.Run("UpdateInventory", func(t *testing.T) {
		svc, repo, bus, wake := newSvc(t)
		want := models.TableInventory{
			models.Table2pax: 4, models.Table4pax: 2, models.Table6pax: 0, models.Table8pax: 0, models.Table10pax: 1,
		}
		repo.On("UpdateInventory", mock.Anything, int64(1), want).Return(nil).Once()
		repo.On("CreateOutboxTask", mock.Anything, mock.MatchedBy(func(task *models.OutboxTask) bool {
			return task.EventType == models.EventInventoryUpdated && task.Status == models.OutboxStatusPending
		})).Return(nil).Once()

		_, err := svc.UpdateInventory(ctx, owner, 1, map[string]int{"2pax": 4, "4 pax": 2, "10": 1})
		require.NoError(t, err)
		assert.Equal(t, []string{models.EventInventoryUpdated}, bus.Types())
		assert.Equal(t, 1, wake.Count())
		repo.AssertExpectations(t)
	})

	t.Run("UpdateInventoryRejectsNegative", func(t *testing.T) {
		svc, repo, _, _ := newSvc(t)
		_, err := svc.UpdateInventory(ctx, owner, 1, map[string]int{"2pax": -1})
		assert.ErrorIs(t, err, models.ErrValidation)

		_, err = svc.UpdateInventory(ctx, owner, 1, map[string]int{"3pax": 1})
		assert.ErrorIs(t, err, models.ErrValidation)
		repo.AssertNotCalled(t, "UpdateInventory", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("UpdateInventoryForbidden", func(t *testing.T) {
		svc, _, _, _ := newSvc(t)
		_, err := svc.UpdateInventory(ctx, domain.Identity{UserID: 5, Role: lifecycle.ActorOwner}, 1, map[string]int{"2pax": 1})
		assert.ErrorIs(t, err, models.ErrForbidden)

		_, err = svc.UpdateInventory(ctx, domain.Identity{UserID: ownerID, Role: lifecycle.ActorCustomer}, 1, map[string]int{"2pax": 1})
		assert.ErrorIs(t, err, models.ErrForbidden)
	})

	t.Run("UpdateHoursNormalizes", func(t *testing.T) {
		svc, repo, _, _ := newSvc(t)
		repo.On("UpdateOperatingHours", mock.Anything, int64(1), "11:00 AM - 11:00 PM").Return(nil).Once()
		repo.On("CreateOutboxTask", mock.Anything, mock.Anything).Return(nil).Once()

		_, err := svc.UpdateHours(ctx, owner, 1, "11:00 am to 11:00 pm")
		require.NoError(t, err)
		repo.AssertExpectations(t)
	})

	t.Run("UpdateMenu", func(t *testing.T) {
		svc, repo, bus, _ := newSvc(t)
		want := []models.MenuItem{{Name: "Nasi Lemak", UnitPriceCents: 1200}, {Name: "Teh Tarik", UnitPriceCents: 350}}
		repo.On("UpdateMenu", mock.Anything, int64(1), want).Return(nil).Once()
		repo.On("CreateOutboxTask", mock.Anything, mock.MatchedBy(func(task *models.OutboxTask) bool {
			return task.EventType == models.EventMenuUpdated
		})).Return(nil).Once()

		_, err := svc.UpdateMenu(ctx, owner, 1, []models.MenuItem{
			{Name: " Nasi Lemak ", UnitPriceCents: 1200, Quantity: 3},
			{Name: "Teh Tarik", UnitPriceCents: 350},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{models.EventMenuUpdated}, bus.Types())
		repo.AssertExpectations(t)
	})

	t.Run("UpdateMenuRejected", func(t *testing.T) {
		svc, repo, _, _ := newSvc(t)
		_, err := svc.UpdateMenu(ctx, owner, 1, []models.MenuItem{{Name: "Teh", UnitPriceCents: -5}})
		assert.ErrorIs(t, err, models.ErrValidation)

		_, err = svc.UpdateMenu(ctx, domain.Identity{UserID: 5, Role: lifecycle.ActorOwner}, 1, []models.MenuItem{{Name: "Teh"}})
		assert.ErrorIs(t, err, models.ErrForbidden)
		repo.AssertNotCalled(t, "UpdateMenu", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("UpdateHoursInvalid", func(t *testing.T) {
		svc, _, _, _ := newSvc(t)
		_, err := svc.UpdateHours(ctx, owner, 1, "noon till late")
		assert.ErrorIs(t, err, models.ErrValidation)
	})
}

func TestDraftService(t *testing.T) {
	ctx := context.Background()
	logger := zerolog.Nop()
	f := newBookingFixture(t, testBookingConfig())
	svc := NewDraftService(f.drafts, &logger)

	draft := &models.DraftBooking{UserID: customerID, RestaurantID: 1, Date: testDate, Slot: "07:00 pm", Pax: 2}
	require.NoError(t, svc.SaveDraft(ctx, draft))

	got, err := svc.GetDraft(ctx, customerID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, testSlot, got.Slot)
	assert.False(t, got.UpdatedAt.IsZero())
	assert.True(t, got.Complete())

	assert.ErrorIs(t, svc.SaveDraft(ctx, &models.DraftBooking{UserID: customerID, Slot: "noon"}), models.ErrValidation)
	assert.ErrorIs(t, svc.SaveDraft(ctx, &models.DraftBooking{Pax: 2}), models.ErrValidation)

	require.NoError(t, svc.ClearDraft(ctx, customerID))
	got, err = svc.GetDraft(ctx, customerID)
	require.NoError(t, err)
	assert.Nil(t, got)
}
