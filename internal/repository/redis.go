package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/afiqaffendi/rbs/internal/config"
	"github.com/afiqaffendi/rbs/internal/models"
)

// ErrNoRedis is returned by Redis-backed stores built without a client.
var ErrNoRedis = errors.New("redis client is nil")

const (
	keyPrefix       = "rbs:"
	redisPingWait   = 2 * time.Second
	redisDialWait   = 3 * time.Second
	redisIOWait     = time.Second
	defaultPoolSize = 10
)

func draftKey(userID int64) string {
	return fmt.Sprintf("%sdraft:%d", keyPrefix, userID)
}

func bookingRateKey(userID int64) string {
	return fmt.Sprintf("%sbooking_rate:%d", keyPrefix, userID)
}

// NewRedisClient builds a client with short timeouts so a dead Redis fails fast
// and the failover stores can take over.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	pool := cfg.PoolSize
	if pool <= 0 {
		pool = defaultPoolSize
	}
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     pool,
		DialTimeout:  redisDialWait,
		ReadTimeout:  redisIOWait,
		WriteTimeout: redisIOWait,
	})
}

// RedisDraftRepository stores drafts as JSON strings with a TTL and counts booking
// attempts in fixed windows.
type RedisDraftRepository struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisDraftRepository(client *redis.Client, ttl time.Duration) *RedisDraftRepository {
	return &RedisDraftRepository{client: client, ttl: ttl}
}

func (r *RedisDraftRepository) GetDraft(ctx context.Context, userID int64) (*models.DraftBooking, error) {
	if r.client == nil {
		return nil, ErrNoRedis
	}
	raw, err := r.client.Get(ctx, draftKey(userID)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("redis get draft %d: %w", userID, err)
	}

	draft := &models.DraftBooking{}
	if err := json.Unmarshal(raw, draft); err != nil {
		return nil, fmt.Errorf("decode draft %d: %w", userID, err)
	}
	return draft, nil
}

func (r *RedisDraftRepository) SetDraft(ctx context.Context, draft *models.DraftBooking) error {
	if r.client == nil {
		return ErrNoRedis
	}
	raw, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("encode draft %d: %w", draft.UserID, err)
	}
	if err := r.client.Set(ctx, draftKey(draft.UserID), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set draft %d: %w", draft.UserID, err)
	}
	return nil
}

func (r *RedisDraftRepository) ClearDraft(ctx context.Context, userID int64) error {
	if r.client == nil {
		return ErrNoRedis
	}
	if err := r.client.Del(ctx, draftKey(userID)).Err(); err != nil {
		return fmt.Errorf("redis clear draft %d: %w", userID, err)
	}
	return nil
}

// CheckRateLimit counts one attempt for userID and reports whether it is within limit
// for the current window. The window starts with the first attempt.
func (r *RedisDraftRepository) CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error) {
	if r.client == nil {
		return false, ErrNoRedis
	}
	key := bookingRateKey(userID)
	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis count attempt: %w", err)
	}

	if count == 1 {
		err = r.client.PExpire(ctx, key, window).Err()
	} else if ttl, terr := r.client.PTTL(ctx, key).Result(); terr == nil && ttl < 0 {
		// a crash between INCR and PEXPIRE leaves a counter that never resets
		err = r.client.PExpire(ctx, key, window).Err()
	}
	if err != nil {
		return false, fmt.Errorf("redis set attempt window: %w", err)
	}
	return count <= int64(limit), nil
}

// Ping checks the connection, giving up after a short wait.
func Ping(ctx context.Context, client *redis.Client) error {
	if client == nil {
		return ErrNoRedis
	}
	ctx, cancel := context.WithTimeout(ctx, redisPingWait)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func Close(client *redis.Client) error {
	if client == nil {
		return nil
	}
	return client.Close()
}
