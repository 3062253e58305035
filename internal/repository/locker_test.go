package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afiqaffendi/rbs/internal/domain"
	"github.com/afiqaffendi/rbs/internal/models"
)

func newTestRedisLocker(t *testing.T) (*RedisSlotLocker, *miniredis.Miniredis) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(s.Close)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisSlotLocker(client), s
}

func testLockerContract(t *testing.T, locker domain.SlotLocker) {
	ctx := context.Background()
	key := SlotLockKey(1, "2026-11-02", "7:00 PM")

	token, err := locker.Lock(ctx, key, time.Second)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	// Second caller times out while the lock is held.
	shortCtx, cancel := context.WithTimeout(ctx, 60*time.Millisecond)
	_, err = locker.Lock(shortCtx, key, time.Second)
	cancel()
	assert.ErrorIs(t, err, ErrLockBusy)
	assert.ErrorIs(t, err, models.ErrConcurrencyConflict)

	// Another slot is independent.
	other, err := locker.Lock(ctx, SlotLockKey(1, "2026-11-02", "8:00 PM"), time.Second)
	require.NoError(t, err)
	require.NoError(t, locker.Unlock(ctx, SlotLockKey(1, "2026-11-02", "8:00 PM"), other))

	// A wrong token does not release the lock.
	require.NoError(t, locker.Unlock(ctx, key, "not-mine"))
	shortCtx, cancel = context.WithTimeout(ctx, 40*time.Millisecond)
	_, err = locker.Lock(shortCtx, key, time.Second)
	cancel()
	assert.ErrorIs(t, err, ErrLockBusy)

	require.NoError(t, locker.Unlock(ctx, key, token))
	token2, err := locker.Lock(ctx, key, time.Second)
	require.NoError(t, err)
	require.NoError(t, locker.Unlock(ctx, key, token2))
}

func testLockerMutualExclusion(t *testing.T, locker domain.SlotLocker) {
	ctx := context.Background()
	key := SlotLockKey(2, "2026-11-02", "7:00 PM")

	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lockCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			token, err := locker.Lock(lockCtx, key, 5*time.Second)
			if !assert.NoError(t, err) {
				return
			}
			n := inside.Add(1)
			for {
				m := maxInside.Load()
				if n <= m || maxInside.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			inside.Add(-1)
			assert.NoError(t, locker.Unlock(ctx, key, token))
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside.Load())
}

func TestRedisSlotLocker(t *testing.T) {
	locker, _ := newTestRedisLocker(t)
	testLockerContract(t, locker)
	testLockerMutualExclusion(t, locker)
}

func TestRedisSlotLocker_ExpiresWithTTL(t *testing.T) {
	locker, s := newTestRedisLocker(t)
	ctx := context.Background()
	key := SlotLockKey(3, "2026-11-02", "7:00 PM")

	_, err := locker.Lock(ctx, key, 100*time.Millisecond)
	require.NoError(t, err)
	s.FastForward(200 * time.Millisecond)

	_, err = locker.Lock(ctx, key, time.Second)
	assert.NoError(t, err)
}

func TestMemorySlotLocker(t *testing.T) {
	locker := NewMemorySlotLocker()
	testLockerContract(t, locker)
	testLockerMutualExclusion(t, locker)
}

func TestMemorySlotLocker_ExpiresWithTTL(t *testing.T) {
	locker := NewMemorySlotLocker()
	ctx := context.Background()
	key := SlotLockKey(3, "2026-11-02", "7:00 PM")

	_, err := locker.Lock(ctx, key, 10*time.Millisecond)
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)

	_, err = locker.Lock(ctx, key, time.Second)
	assert.NoError(t, err)
}
