package repository

import (
	"context"
	"sync"
	"time"

	"github.com/afiqaffendi/rbs/internal/models"
)

type draftEntry struct {
	draft     models.DraftBooking
	expiresAt time.Time
}

type attemptWindow struct {
	count int
	ends  time.Time
}

// MemoryDraftRepository keeps drafts and booking attempt counters in process memory.
// It is the fallback behind Redis and the store used when Redis is not configured.
type MemoryDraftRepository struct {
	mu       sync.Mutex
	drafts   map[int64]draftEntry
	attempts map[int64]attemptWindow
	ttl      time.Duration
	now      func() time.Time
}

func NewMemoryDraftRepository(ttl time.Duration) *MemoryDraftRepository {
	return &MemoryDraftRepository{
		drafts:   make(map[int64]draftEntry),
		attempts: make(map[int64]attemptWindow),
		ttl:      ttl,
		now:      time.Now,
	}
}

func cloneDraft(d *models.DraftBooking) models.DraftBooking {
	out := *d
	out.Cart = append([]models.MenuItem(nil), d.Cart...)
	return out
}

func (r *MemoryDraftRepository) GetDraft(_ context.Context, userID int64) (*models.DraftBooking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.drafts[userID]
	if !ok {
		return nil, nil
	}
	if r.ttl > 0 && r.now().After(entry.expiresAt) {
		delete(r.drafts, userID)
		return nil, nil
	}
	d := cloneDraft(&entry.draft)
	return &d, nil
}

func (r *MemoryDraftRepository) SetDraft(_ context.Context, draft *models.DraftBooking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drafts[draft.UserID] = draftEntry{draft: cloneDraft(draft), expiresAt: r.now().Add(r.ttl)}
	return nil
}

func (r *MemoryDraftRepository) ClearDraft(_ context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.drafts, userID)
	return nil
}

// CheckRateLimit uses the same fixed-window rule as the Redis store.
func (r *MemoryDraftRepository) CheckRateLimit(_ context.Context, userID int64, limit int, window time.Duration) (bool, error) {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.attempts[userID]
	if !ok || !now.Before(w.ends) {
		w = attemptWindow{ends: now.Add(window)}
	}
	w.count++
	r.attempts[userID] = w
	return w.count <= limit, nil
}

// Sweep drops expired drafts and finished attempt windows and returns how many entries went.
func (r *MemoryDraftRepository) Sweep() int {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	if r.ttl > 0 {
		for id, e := range r.drafts {
			if now.After(e.expiresAt) {
				delete(r.drafts, id)
				n++
			}
		}
	}
	for id, w := range r.attempts {
		if !now.Before(w.ends) {
			delete(r.attempts, id)
			n++
		}
	}
	return n
}

// RunSweeper calls Sweep every interval until ctx is done.
func (r *MemoryDraftRepository) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}
