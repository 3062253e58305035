package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afiqaffendi/rbs/internal/config"
	"github.com/afiqaffendi/rbs/internal/models"
)

func TestRedisDraftRepository(t *testing.T) {
	s := miniredis.RunT(t)

	client := NewRedisClient(config.RedisConfig{Address: s.Addr()})
	defer client.Close()

	repo := NewRedisDraftRepository(client, time.Hour)
	ctx := context.Background()

	t.Run("SetAndGetDraft", func(t *testing.T) {
		draft := &models.DraftBooking{
			UserID:       123,
			RestaurantID: 5,
			Date:         "2026-11-02",
			Slot:         "7:00 PM",
			Pax:          4,
			Cart:         []models.MenuItem{{Name: "Mee Goreng", UnitPriceCents: 1200, Quantity: 1}},
		}

		require.NoError(t, repo.SetDraft(ctx, draft))

		got, err := repo.GetDraft(ctx, 123)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, draft.RestaurantID, got.RestaurantID)
		assert.Equal(t, draft.Slot, got.Slot)
		assert.Equal(t, draft.Cart, got.Cart)
		assert.Equal(t, time.Hour, s.TTL(draftKey(123)))
	})

	t.Run("GetNonExistentDraft", func(t *testing.T) {
		got, err := repo.GetDraft(ctx, 999)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("ClearDraft", func(t *testing.T) {
		require.NoError(t, repo.SetDraft(ctx, &models.DraftBooking{UserID: 456}))
		require.NoError(t, repo.ClearDraft(ctx, 456))

		got, _ := repo.GetDraft(ctx, 456)
		assert.Nil(t, got)
	})

	t.Run("CorruptDraft", func(t *testing.T) {
		require.NoError(t, s.Set(draftKey(321), "{not json"))
		_, err := repo.GetDraft(ctx, 321)
		assert.Error(t, err)
	})

	t.Run("RateLimit", func(t *testing.T) {
		userID := int64(789)
		limit := 2
		window := time.Second

		allowed, err := repo.CheckRateLimit(ctx, userID, limit, window)
		require.NoError(t, err)
		assert.True(t, allowed)

		allowed, err = repo.CheckRateLimit(ctx, userID, limit, window)
		require.NoError(t, err)
		assert.True(t, allowed)

		allowed, err = repo.CheckRateLimit(ctx, userID, limit, window)
		require.NoError(t, err)
		assert.False(t, allowed)

		s.FastForward(window + time.Millisecond)

		allowed, err = repo.CheckRateLimit(ctx, userID, limit, window)
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("RateLimitRepairsMissingWindow", func(t *testing.T) {
		key := bookingRateKey(790)
		require.NoError(t, s.Set(key, "1"))

		allowed, err := repo.CheckRateLimit(ctx, 790, 5, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed)
		assert.Equal(t, time.Minute, s.TTL(key))
	})

	t.Run("NilClient", func(t *testing.T) {
		repo := NewRedisDraftRepository(nil, time.Hour)
		_, err := repo.GetDraft(ctx, 123)
		assert.ErrorIs(t, err, ErrNoRedis)
		assert.ErrorIs(t, repo.SetDraft(ctx, &models.DraftBooking{UserID: 1}), ErrNoRedis)
		assert.ErrorIs(t, repo.ClearDraft(ctx, 1), ErrNoRedis)
		_, err = repo.CheckRateLimit(ctx, 1, 1, time.Second)
		assert.ErrorIs(t, err, ErrNoRedis)
		assert.ErrorIs(t, Ping(ctx, nil), ErrNoRedis)
	})

	t.Run("Ping", func(t *testing.T) {
		assert.NoError(t, Ping(ctx, client))

		dead := NewRedisClient(config.RedisConfig{Address: "127.0.0.1:1"})
		defer dead.Close()
		assert.Error(t, Ping(ctx, dead))
	})

	t.Run("Close", func(t *testing.T) {
		c := redis.NewClient(&redis.Options{Addr: s.Addr()})
		assert.NoError(t, Close(c))
		assert.NoError(t, Close(nil))
	})
}
