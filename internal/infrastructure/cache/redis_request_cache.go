package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fleetrent/backend/internal/domain/shared"
	"github.com/redis/go-redis/v9"
)

// requestRecord is the JSON document stored per idempotency key
type requestRecord struct {
	Status       shared.IdempotencyStatus `json:"status"`
	Fingerprint  string                   `json:"fingerprint,omitempty"`
	CachedStatus int                      `json:"cached_status,omitempty"`
	CachedBody   []byte                   `json:"cached_body,omitempty"`
}

// RedisRequestCache implements shared.RequestCache on Redis. SetNX claims a
// key atomically for the first caller; the TTL is native, so expired keys
// simply vanish and the next Begin claims them fresh. Suitable for
// distributed deployments where multiple instances share idempotency state.
type RedisRequestCache struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// NewRedisRequestCache creates a new Redis-backed request cache
func NewRedisRequestCache(cfg RedisConfig, ttl time.Duration) (*RedisRequestCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisRequestCacheWithClient(client, "", ttl), nil
}

// NewRedisRequestCacheWithClient creates a cache with an existing Redis client.
// This is useful for testing or when sharing a client across components.
func NewRedisRequestCacheWithClient(client *redis.Client, keyPrefix string, ttl time.Duration) *RedisRequestCache {
	if keyPrefix == "" {
		keyPrefix = "request:idempotency:"
	}
	if ttl <= 0 {
		ttl = shared.DefaultIdempotencyConfig().TTL
	}
	return &RedisRequestCache{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       ttl,
	}
}

// Begin claims the key for this execution
func (c *RedisRequestCache) Begin(ctx context.Context, key, fingerprint string) (shared.BeginResult, error) {
	if key == "" {
		return shared.BeginResult{}, shared.NewDomainError(shared.ErrValidation.Code, "Idempotency key cannot be empty")
	}

	claim, err := json.Marshal(requestRecord{
		Status:      shared.IdempotencyStatusInProgress,
		Fingerprint: fingerprint,
	})
	if err != nil {
		return shared.BeginResult{}, fmt.Errorf("failed to encode idempotency claim: %w", err)
	}

	set, err := c.client.SetNX(ctx, c.keyPrefix+key, claim, c.ttl).Result()
	if err != nil {
		return shared.BeginResult{}, fmt.Errorf("failed to claim idempotency key: %w", err)
	}
	if set {
		return shared.BeginResult{State: shared.BeginStateFresh}, nil
	}

	raw, err := c.client.Get(ctx, c.keyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// Expired between the claim attempt and the read; the key is
			// contended, let the caller retry.
			return shared.BeginResult{State: shared.BeginStateInProgress}, nil
		}
		return shared.BeginResult{}, fmt.Errorf("failed to read idempotency record: %w", err)
	}

	var record requestRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return shared.BeginResult{}, fmt.Errorf("failed to decode idempotency record: %w", err)
	}

	if record.Status == shared.IdempotencyStatusCompleted {
		return shared.BeginResult{
			State:        shared.BeginStateCompleted,
			CachedStatus: record.CachedStatus,
			CachedBody:   record.CachedBody,
		}, nil
	}
	return shared.BeginResult{State: shared.BeginStateInProgress}, nil
}

// Complete records the response for a key previously claimed Fresh. The
// remaining TTL from the claim is kept so completion does not extend the
// key's lifetime.
func (c *RedisRequestCache) Complete(ctx context.Context, key string, status int, body []byte) error {
	raw, err := c.client.Get(ctx, c.keyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return shared.NewDomainError(shared.ErrInvalidState.Code,
				"No in-progress idempotency record to complete for this key")
		}
		return fmt.Errorf("failed to read idempotency record: %w", err)
	}

	var record requestRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return fmt.Errorf("failed to decode idempotency record: %w", err)
	}
	if record.Status == shared.IdempotencyStatusCompleted {
		return shared.NewDomainError(shared.ErrInvalidState.Code,
			"Idempotency record is already completed for this key")
	}

	record.Status = shared.IdempotencyStatusCompleted
	record.CachedStatus = status
	record.CachedBody = body
	completed, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode idempotency record: %w", err)
	}

	if err := c.client.Set(ctx, c.keyPrefix+key, completed, redis.KeepTTL).Err(); err != nil {
		return fmt.Errorf("failed to complete idempotency record: %w", err)
	}
	return nil
}

// DeleteExpired is a no-op for Redis: keys expire natively
func (c *RedisRequestCache) DeleteExpired(ctx context.Context) (int64, error) {
	return 0, nil
}

// Close closes the Redis client
func (c *RedisRequestCache) Close() error {
	return c.client.Close()
}

// Ensure RedisRequestCache implements RequestCache
var _ shared.RequestCache = (*RedisRequestCache)(nil)
