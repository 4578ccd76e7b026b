package cache

import (
	"fmt"
	"time"

	"github.com/fleetrent/backend/internal/domain/shared"
	"github.com/fleetrent/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// RequestCacheFactory creates request caches based on configuration
type RequestCacheFactory struct {
	redisConfig           config.RedisConfig
	ttl                   time.Duration
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// RequestCacheFactoryOption is a functional option for configuring the factory
type RequestCacheFactoryOption func(*RequestCacheFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) RequestCacheFactoryOption {
	return func(f *RequestCacheFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether to fall back to an in-memory cache
// when Redis is unavailable. Default is true (allow fallback).
func WithInMemoryFallback(allow bool) RequestCacheFactoryOption {
	return func(f *RequestCacheFactory) {
		f.allowInMemoryFallback = allow
	}
}

// NewRequestCacheFactory creates a new factory
func NewRequestCacheFactory(cfg config.RedisConfig, ttl time.Duration, opts ...RequestCacheFactoryOption) *RequestCacheFactory {
	f := &RequestCacheFactory{
		redisConfig:           cfg,
		ttl:                   ttl,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true, // Default to allowing fallback
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// CreateRedisCache creates a Redis-based request cache
func (f *RequestCacheFactory) CreateRedisCache() (shared.RequestCache, error) {
	redisCfg := RedisConfig{
		Host:     f.redisConfig.Host,
		Port:     f.redisConfig.Port,
		Password: f.redisConfig.Password,
		DB:       f.redisConfig.DB,
	}

	cache, err := NewRedisRequestCache(redisCfg, f.ttl)
	if err != nil {
		return nil, fmt.Errorf("failed to create Redis request cache: %w", err)
	}

	return cache, nil
}

// CreateInMemoryCache creates an in-memory request cache
// This is suitable for single-instance deployments and testing
// WARNING: In-memory caches do not share state across process instances,
// which can lead to duplicate request execution in distributed deployments
func (f *RequestCacheFactory) CreateInMemoryCache() shared.RequestCache {
	return NewInMemoryRequestCache(f.ttl)
}

// CreateCache creates a request cache based on whether Redis is available
// It tries to create a Redis cache first, and falls back to in-memory if
// Redis is not available and AllowInMemoryFallback is true
func (f *RequestCacheFactory) CreateCache() (shared.RequestCache, error) {
	// Try Redis first
	cache, err := f.CreateRedisCache()
	if err == nil {
		f.logger.Info("using Redis request cache")
		return cache, nil
	}

	// Check if fallback is allowed
	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("Redis required for request caching but unavailable: %w", err)
	}

	// Fall back to in-memory with warning
	f.logger.Warn("Redis unavailable, falling back to in-memory request cache. "+
		"This may cause duplicate request execution in distributed deployments.",
		zap.Error(err),
	)
	return f.CreateInMemoryCache(), nil
}
