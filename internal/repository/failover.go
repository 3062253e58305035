package repository

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/afiqaffendi/rbs/internal/domain"
	"github.com/afiqaffendi/rbs/internal/models"
)

const recoveryInterval = time.Minute

// failover tracks whether the primary backend is down and when to probe it again.
type failover struct {
	logger    *zerolog.Logger
	component string
	isDown    atomic.Bool
	lastCheck atomic.Int64
}

// usePrimary reports whether the next call should go to the primary backend.
func (f *failover) usePrimary() bool {
	if !f.isDown.Load() {
		return true
	}
	return time.Since(time.Unix(0, f.lastCheck.Load())) > recoveryInterval
}

// observe records the outcome of a primary call and reports whether it succeeded.
func (f *failover) observe(err error) bool {
	if err == nil {
		if f.isDown.Swap(false) {
			f.logger.Info().Str("component", f.component).Msg("Primary repository recovered")
		}
		return true
	}
	if !f.isDown.Swap(true) {
		f.logger.Error().Err(err).Str("component", f.component).Msg("Primary repository failed, falling back to memory")
	}
	f.lastCheck.Store(time.Now().UnixNano())
	return false
}

type FailoverDraftRepository struct {
	failover
	primary  domain.DraftRepository
	fallback domain.DraftRepository
}

func NewFailoverDraftRepository(primary, fallback domain.DraftRepository, logger *zerolog.Logger) *FailoverDraftRepository {
	return &FailoverDraftRepository{
		failover: failover{logger: logger, component: "drafts"},
		primary:  primary,
		fallback: fallback,
	}
}

func (r *FailoverDraftRepository) GetDraft(ctx context.Context, userID int64) (*models.DraftBooking, error) {
	if r.usePrimary() {
		draft, err := r.primary.GetDraft(ctx, userID)
		if r.observe(err) {
			return draft, nil
		}
	}
	return r.fallback.GetDraft(ctx, userID)
}

func (r *FailoverDraftRepository) SetDraft(ctx context.Context, draft *models.DraftBooking) error {
	if r.usePrimary() {
		if r.observe(r.primary.SetDraft(ctx, draft)) {
			return nil
		}
	}
	return r.fallback.SetDraft(ctx, draft)
}

func (r *FailoverDraftRepository) ClearDraft(ctx context.Context, userID int64) error {
	if r.usePrimary() {
		if r.observe(r.primary.ClearDraft(ctx, userID)) {
			// A draft written while the primary was down may still sit in memory.
			_ = r.fallback.ClearDraft(ctx, userID)
			return nil
		}
	}
	return r.fallback.ClearDraft(ctx, userID)
}

func (r *FailoverDraftRepository) CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error) {
	if r.usePrimary() {
		allowed, err := r.primary.CheckRateLimit(ctx, userID, limit, window)
		if r.observe(err) {
			return allowed, nil
		}
	}
	return r.fallback.CheckRateLimit(ctx, userID, limit, window)
}

// fallbackTokenPrefix marks lock tokens issued by the fallback locker.
const fallbackTokenPrefix = "fallback:"

type FailoverSlotLocker struct {
	failover
	primary  domain.SlotLocker
	fallback domain.SlotLocker
}

func NewFailoverSlotLocker(primary, fallback domain.SlotLocker, logger *zerolog.Logger) *FailoverSlotLocker {
	return &FailoverSlotLocker{
		failover: failover{logger: logger, component: "slot_locks"},
		primary:  primary,
		fallback: fallback,
	}
}

func (l *FailoverSlotLocker) Lock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if l.usePrimary() {
		token, err := l.primary.Lock(ctx, key, ttl)
		// Contention and caller deadlines say nothing about backend health.
		if err != nil && (errors.Is(err, models.ErrConcurrencyConflict) || ctx.Err() != nil) {
			return "", err
		}
		if l.observe(err) {
			return token, nil
		}
	}
	token, err := l.fallback.Lock(ctx, key, ttl)
	if err != nil {
		return "", err
	}
	return fallbackTokenPrefix + token, nil
}

func (l *FailoverSlotLocker) Unlock(ctx context.Context, key, token string) error {
	if rest, ok := strings.CutPrefix(token, fallbackTokenPrefix); ok {
		return l.fallback.Unlock(ctx, key, rest)
	}
	return l.primary.Unlock(ctx, key, token)
}
