package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/afiqaffendi/rbs/internal/models"
)

// ErrLockBusy is returned when a slot lock could not be taken before the context ended.
var ErrLockBusy = fmt.Errorf("%w: slot is being booked by another request", models.ErrConcurrencyConflict)

const lockRetryInterval = 20 * time.Millisecond

// SlotLockKey names the lock guarding one restaurant, date and slot.
func SlotLockKey(restaurantID int64, date, slot string) string {
	return fmt.Sprintf("slot_lock:%d:%s:%s", restaurantID, date, slot)
}

// waitLock retries try until it succeeds, fails, or ctx ends.
func waitLock(ctx context.Context, try func() (bool, error)) error {
	ticker := time.NewTicker(lockRetryInterval)
	defer ticker.Stop()
	for {
		ok, err := try()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ErrLockBusy
		case <-ticker.C:
		}
	}
}

// unlockScript deletes the key only when it still holds the caller's token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisSlotLocker is a SET NX PX lock shared by every API instance.
type RedisSlotLocker struct {
	client *redis.Client
}

func NewRedisSlotLocker(client *redis.Client) *RedisSlotLocker {
	return &RedisSlotLocker{client: client}
}

func (l *RedisSlotLocker) Lock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if l.client == nil {
		return "", ErrNoRedis
	}
	token := uuid.NewString()
	err := waitLock(ctx, func() (bool, error) {
		ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
		if err != nil && ctx.Err() != nil {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("failed to acquire slot lock: %w", err)
		}
		return ok, nil
	})
	if err != nil {
		return "", err
	}
	return token, nil
}

func (l *RedisSlotLocker) Unlock(ctx context.Context, key, token string) error {
	if l.client == nil {
		return ErrNoRedis
	}
	if err := unlockScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
		return fmt.Errorf("failed to release slot lock: %w", err)
	}
	return nil
}

type memoryLock struct {
	token     string
	expiresAt time.Time
}

// MemorySlotLocker serializes attempts inside one process.
type MemorySlotLocker struct {
	mu    sync.Mutex
	locks map[string]memoryLock
}

func NewMemorySlotLocker() *MemorySlotLocker {
	return &MemorySlotLocker{locks: make(map[string]memoryLock)}
}

func (l *MemorySlotLocker) Lock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	err := waitLock(ctx, func() (bool, error) {
		l.mu.Lock()
		defer l.mu.Unlock()
		now := time.Now()
		if cur, held := l.locks[key]; held && now.Before(cur.expiresAt) {
			return false, nil
		}
		l.locks[key] = memoryLock{token: token, expiresAt: now.Add(ttl)}
		return true, nil
	})
	if err != nil {
		return "", err
	}
	return token, nil
}

func (l *MemorySlotLocker) Unlock(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cur, held := l.locks[key]; held && cur.token == token {
		delete(l.locks, key)
	}
	return nil
}
