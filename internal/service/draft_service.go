package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/afiqaffendi/rbs/internal/domain"
	"github.com/afiqaffendi/rbs/internal/models"
	"github.com/afiqaffendi/rbs/internal/slots"
)

// DraftService keeps the booking a customer is still filling in. Drafts hold no table.
type DraftService struct {
	drafts domain.DraftRepository
	logger *zerolog.Logger
}

func NewDraftService(drafts domain.DraftRepository, logger *zerolog.Logger) *DraftService {
	return &DraftService{
		drafts: drafts,
		logger: logger,
	}
}

func (s *DraftService) GetDraft(ctx context.Context, userID int64) (*models.DraftBooking, error) {
	draft, err := s.drafts.GetDraft(ctx, userID)
	if err != nil {
		s.logger.Error().Err(err).Int64("user_id", userID).Msg("failed to get draft")
		return nil, err
	}
	return draft, nil
}

func (s *DraftService) SaveDraft(ctx context.Context, draft *models.DraftBooking) error {
	if err := draft.Validate(); err != nil {
		return err
	}
	if draft.Slot != "" {
		slot, err := slots.Canonical(draft.Slot)
		if err != nil {
			return err
		}
		draft.Slot = slot
	}
	draft.UpdatedAt = time.Now().UTC()
	return s.drafts.SetDraft(ctx, draft)
}

func (s *DraftService) ClearDraft(ctx context.Context, userID int64) error {
	return s.drafts.ClearDraft(ctx, userID)
}
