package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/fleetrent/backend/internal/domain/shared"
	"github.com/fleetrent/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormRequestCache implements shared.RequestCache on the idempotency_records
// table. First sighting of a key is claimed with INSERT ... ON CONFLICT DO
// NOTHING, so exactly one concurrent caller observes Fresh; everyone else
// reads the claimed row. Expired rows are reclaimed in place with a guarded
// UPDATE rather than deleted, which keeps the claim atomic under races too.
type GormRequestCache struct {
	db  *gorm.DB
	ttl time.Duration
}

// NewGormRequestCache creates a new GormRequestCache. A non-positive TTL
// falls back to the default.
func NewGormRequestCache(db *gorm.DB, ttl time.Duration) *GormRequestCache {
	if ttl <= 0 {
		ttl = shared.DefaultIdempotencyConfig().TTL
	}
	return &GormRequestCache{db: db, ttl: ttl}
}

// WithTx returns a new cache instance bound to the given transaction
func (c *GormRequestCache) WithTx(tx *gorm.DB) *GormRequestCache {
	return &GormRequestCache{db: tx, ttl: c.ttl}
}

// Begin claims the key for this execution
func (c *GormRequestCache) Begin(ctx context.Context, key, fingerprint string) (shared.BeginResult, error) {
	if key == "" {
		return shared.BeginResult{}, shared.NewDomainError(shared.ErrValidation.Code, "Idempotency key cannot be empty")
	}

	now := time.Now()
	model := &models.IdempotencyRecordModel{
		Key:                key,
		RequestFingerprint: fingerprint,
		Status:             shared.IdempotencyStatusInProgress,
		ExpiresAt:          now.Add(c.ttl),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	result := c.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoNothing: true,
		}).
		Create(model)
	if result.Error != nil {
		return shared.BeginResult{}, result.Error
	}
	if result.RowsAffected > 0 {
		return shared.BeginResult{State: shared.BeginStateFresh}, nil
	}

	// The key is already claimed. Reclaim it if the claim expired; only one
	// of several racing callers wins the guarded update.
	reclaim := c.db.WithContext(ctx).
		Model(&models.IdempotencyRecordModel{}).
		Where("key = ? AND expires_at <= ?", key, now).
		Updates(map[string]interface{}{
			"request_fingerprint": fingerprint,
			"status":              shared.IdempotencyStatusInProgress,
			"cached_status":       0,
			"cached_body":         nil,
			"expires_at":          now.Add(c.ttl),
			"updated_at":          now,
		})
	if reclaim.Error != nil {
		return shared.BeginResult{}, reclaim.Error
	}
	if reclaim.RowsAffected > 0 {
		return shared.BeginResult{State: shared.BeginStateFresh}, nil
	}

	var existing models.IdempotencyRecordModel
	if err := c.db.WithContext(ctx).
		First(&existing, "key = ?", key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Deleted between the insert and the read (janitor race);
			// treat the key as claimed and let the caller retry.
			return shared.BeginResult{State: shared.BeginStateInProgress}, nil
		}
		return shared.BeginResult{}, err
	}

	if existing.Status == shared.IdempotencyStatusCompleted {
		return shared.BeginResult{
			State:        shared.BeginStateCompleted,
			CachedStatus: existing.CachedStatus,
			CachedBody:   existing.CachedBody,
		}, nil
	}
	return shared.BeginResult{State: shared.BeginStateInProgress}, nil
}

// Complete records the response for a key previously claimed Fresh
func (c *GormRequestCache) Complete(ctx context.Context, key string, status int, body []byte) error {
	result := c.db.WithContext(ctx).
		Model(&models.IdempotencyRecordModel{}).
		Where("key = ? AND status = ?", key, shared.IdempotencyStatusInProgress).
		Updates(map[string]interface{}{
			"status":        shared.IdempotencyStatusCompleted,
			"cached_status": status,
			"cached_body":   body,
			"updated_at":    time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.NewDomainError(shared.ErrInvalidState.Code,
			"No in-progress idempotency record to complete for this key")
	}
	return nil
}

// DeleteExpired removes records past their expiry and returns how many were
// removed
func (c *GormRequestCache) DeleteExpired(ctx context.Context) (int64, error) {
	result := c.db.WithContext(ctx).
		Where("expires_at <= ?", time.Now()).
		Delete(&models.IdempotencyRecordModel{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// Ensure GormRequestCache implements RequestCache
var _ shared.RequestCache = (*GormRequestCache)(nil)
