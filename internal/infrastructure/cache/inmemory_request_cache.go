package cache

import (
	"context"
	"sync"
	"time"

	"github.com/fleetrent/backend/internal/domain/shared"
)

// inMemoryRecord is a cached request outcome with its expiry
type inMemoryRecord struct {
	status       shared.IdempotencyStatus
	fingerprint  string
	cachedStatus int
	cachedBody   []byte
	expiresAt    time.Time
}

func (r inMemoryRecord) expired(now time.Time) bool {
	return !r.expiresAt.After(now)
}

// InMemoryRequestCache implements shared.RequestCache with a local map.
// Suitable for development and testing; state is lost on restart and not
// shared across instances, so production deployments use the database or
// Redis implementation instead.
type InMemoryRequestCache struct {
	mu      sync.Mutex
	records map[string]inMemoryRecord
	ttl     time.Duration

	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewInMemoryRequestCache creates a new in-memory request cache and starts
// a background goroutine that evicts expired records periodically.
func NewInMemoryRequestCache(ttl time.Duration) *InMemoryRequestCache {
	if ttl <= 0 {
		ttl = shared.DefaultIdempotencyConfig().TTL
	}
	c := &InMemoryRequestCache{
		records:  make(map[string]inMemoryRecord),
		ttl:      ttl,
		stopChan: make(chan struct{}),
	}

	c.wg.Add(1)
	go c.cleanupLoop()

	return c
}

// Begin claims the key for this execution
func (c *InMemoryRequestCache) Begin(ctx context.Context, key, fingerprint string) (shared.BeginResult, error) {
	if key == "" {
		return shared.BeginResult{}, shared.NewDomainError(shared.ErrValidation.Code, "Idempotency key cannot be empty")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	record, exists := c.records[key]
	if !exists || record.expired(now) {
		c.records[key] = inMemoryRecord{
			status:      shared.IdempotencyStatusInProgress,
			fingerprint: fingerprint,
			expiresAt:   now.Add(c.ttl),
		}
		return shared.BeginResult{State: shared.BeginStateFresh}, nil
	}

	if record.status == shared.IdempotencyStatusCompleted {
		return shared.BeginResult{
			State:        shared.BeginStateCompleted,
			CachedStatus: record.cachedStatus,
			CachedBody:   record.cachedBody,
		}, nil
	}
	return shared.BeginResult{State: shared.BeginStateInProgress}, nil
}

// Complete records the response for a key previously claimed Fresh
func (c *InMemoryRequestCache) Complete(ctx context.Context, key string, status int, body []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	record, exists := c.records[key]
	if !exists || record.expired(time.Now()) || record.status != shared.IdempotencyStatusInProgress {
		return shared.NewDomainError(shared.ErrInvalidState.Code,
			"No in-progress idempotency record to complete for this key")
	}

	record.status = shared.IdempotencyStatusCompleted
	record.cachedStatus = status
	record.cachedBody = body
	c.records[key] = record
	return nil
}

// DeleteExpired removes expired records and reports how many were evicted
func (c *InMemoryRequestCache) DeleteExpired(ctx context.Context) (int64, error) {
	return c.cleanup(), nil
}

// cleanupLoop periodically removes expired records
func (c *InMemoryRequestCache) cleanupLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.stopChan:
			return
		}
	}
}

// cleanup removes all expired records
func (c *InMemoryRequestCache) cleanup() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	var removed int64
	for key, record := range c.records {
		if record.expired(now) {
			delete(c.records, key)
			removed++
		}
	}
	return removed
}

// Size returns the number of records currently held (for testing/monitoring)
func (c *InMemoryRequestCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

// Close stops the cleanup goroutine
func (c *InMemoryRequestCache) Close() error {
	c.closeOnce.Do(func() {
		close(c.stopChan)
	})
	c.wg.Wait()
	return nil
}

// Ensure InMemoryRequestCache implements RequestCache
var _ shared.RequestCache = (*InMemoryRequestCache)(nil)
