package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/afiqaffendi/rbs/internal/domain"
	"github.com/afiqaffendi/rbs/internal/lifecycle"
	"github.com/afiqaffendi/rbs/internal/models"
	"github.com/afiqaffendi/rbs/internal/slots"
)

type RestaurantService struct {
	repo     domain.Repository
	eventBus domain.EventPublisher
	outbox   domain.OutboxNotifier
	logger   *zerolog.Logger
}

func NewRestaurantService(repo domain.Repository, eventBus domain.EventPublisher, outbox domain.OutboxNotifier, logger *zerolog.Logger) *RestaurantService {
	return &RestaurantService{
		repo:     repo,
		eventBus: eventBus,
		outbox:   outbox,
		logger:   logger,
	}
}

// restaurantEvent is the payload of owner configuration changes.
type restaurantEvent struct {
	Type           string         `json:"type"`
	RestaurantID   int64          `json:"restaurant_id"`
	OwnerID        int64          `json:"owner_id"`
	Inventory      map[string]int `json:"inventory,omitempty"`
	OperatingHours string         `json:"operating_hours,omitempty"`
	MenuItems      int            `json:"menu_items,omitempty"`
	OccurredAt     time.Time      `json:"occurred_at"`
}

func (s *RestaurantService) GetRestaurant(ctx context.Context, id int64) (*models.Restaurant, error) {
	return s.repo.GetRestaurant(ctx, id)
}

func (s *RestaurantService) ListRestaurants(ctx context.Context) ([]models.Restaurant, error) {
	return s.repo.ListRestaurants(ctx)
}

func (s *RestaurantService) ownedRestaurant(ctx context.Context, caller domain.Identity, id int64) (*models.Restaurant, error) {
	r, err := s.repo.GetRestaurant(ctx, id)
	if err != nil {
		return nil, err
	}
	if caller.Role != lifecycle.ActorOwner || !r.IsOwnedBy(caller.UserID) {
		return nil, fmt.Errorf("%w: restaurant %d", models.ErrForbidden, id)
	}
	return r, nil
}

// UpdateInventory replaces the owned table counts. Classes missing from counts become 0.
func (s *RestaurantService) UpdateInventory(ctx context.Context, caller domain.Identity, restaurantID int64, counts map[string]int) (*models.Restaurant, error) {
	inv, err := models.NewTableInventory(counts)
	if err != nil {
		return nil, err
	}
	if _, err := s.ownedRestaurant(ctx, caller, restaurantID); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateInventory(ctx, restaurantID, inv); err != nil {
		return nil, err
	}

	r, err := s.repo.GetRestaurant(ctx, restaurantID)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Int64("restaurant_id", restaurantID).Int("tables", inv.TotalTables()).Msg("Table inventory updated")

	labels := make(map[string]int, len(inv))
	for c, n := range inv {
		labels[c.String()] = n
	}
	s.announce(ctx, restaurantEvent{
		Type:         models.EventInventoryUpdated,
		RestaurantID: r.ID,
		OwnerID:      r.OwnerID,
		Inventory:    labels,
	})
	return r, nil
}

// UpdateHours validates and stores operating hours in their normalized form.
func (s *RestaurantService) UpdateHours(ctx context.Context, caller domain.Identity, restaurantID int64, hours string) (*models.Restaurant, error) {
	h, err := slots.ParseHours(hours)
	if err != nil {
		// Owner input, not stored data.
		return nil, fmt.Errorf("%w: %v", models.ErrValidation, err)
	}
	if _, err := s.ownedRestaurant(ctx, caller, restaurantID); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateOperatingHours(ctx, restaurantID, h.String()); err != nil {
		return nil, err
	}

	r, err := s.repo.GetRestaurant(ctx, restaurantID)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Int64("restaurant_id", restaurantID).Str("hours", r.OperatingHours).Msg("Operating hours updated")
	s.announce(ctx, restaurantEvent{
		Type:           models.EventHoursUpdated,
		RestaurantID:   r.ID,
		OwnerID:        r.OwnerID,
		OperatingHours: r.OperatingHours,
	})
	return r, nil
}

// UpdateMenu replaces the restaurant's priced catalog.
func (s *RestaurantService) UpdateMenu(ctx context.Context, caller domain.Identity, restaurantID int64, menu []models.MenuItem) (*models.Restaurant, error) {
	if err := models.ValidateMenu(menu); err != nil {
		return nil, err
	}
	clean := make([]models.MenuItem, 0, len(menu))
	for _, it := range menu {
		clean = append(clean, models.MenuItem{Name: strings.TrimSpace(it.Name), UnitPriceCents: it.UnitPriceCents})
	}
	if _, err := s.ownedRestaurant(ctx, caller, restaurantID); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateMenu(ctx, restaurantID, clean); err != nil {
		return nil, err
	}

	r, err := s.repo.GetRestaurant(ctx, restaurantID)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Int64("restaurant_id", restaurantID).Int("items", len(clean)).Msg("Menu updated")
	s.announce(ctx, restaurantEvent{
		Type:         models.EventMenuUpdated,
		RestaurantID: r.ID,
		OwnerID:      r.OwnerID,
		MenuItems:    len(clean),
	})
	return r, nil
}

// announce publishes in process and records the event in the outbox for the broker.
func (s *RestaurantService) announce(ctx context.Context, ev restaurantEvent) {
	ev.OccurredAt = time.Now().UTC()
	if s.eventBus != nil {
		if err := s.eventBus.PublishJSON(ev.Type, ev); err != nil {
			s.logger.Error().Err(err).Str("event_type", ev.Type).Msg("publish event error")
		}
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		s.logger.Error().Err(err).Str("event_type", ev.Type).Msg("encode outbox payload")
		return
	}
	task := &models.OutboxTask{EventType: ev.Type, Payload: string(payload), Status: models.OutboxStatusPending}
	if err := s.repo.CreateOutboxTask(ctx, task); err != nil {
		s.logger.Error().Err(err).Str("event_type", ev.Type).Int64("restaurant_id", ev.RestaurantID).Msg("outbox enqueue error")
		return
	}
	if s.outbox != nil {
		s.outbox.Wake()
	}
}
