package models

import (
	"time"

	"github.com/fleetrent/backend/internal/domain/shared"
)

// IdempotencyRecordModel is the persistence model for request-cache records.
// The caller-supplied key is the primary key; there is exactly one row per
// key, claimed atomically on first sighting and reused in place once expired.
type IdempotencyRecordModel struct {
	Key                string                   `gorm:"type:varchar(255);primaryKey"`
	RequestFingerprint string                   `gorm:"type:varchar(255);not null"`
	Status             shared.IdempotencyStatus `gorm:"type:varchar(20);not null"`
	CachedStatus       int                      `gorm:"not null;default:0"`
	CachedBody         []byte                   `gorm:"type:bytea"`
	ExpiresAt          time.Time                `gorm:"not null;index"`
	CreatedAt          time.Time                `gorm:"not null"`
	UpdatedAt          time.Time                `gorm:"not null"`
}

// TableName returns the table name for GORM
func (IdempotencyRecordModel) TableName() string {
	return "idempotency_records"
}

// ToDomain converts the persistence model to a domain IdempotencyRecord.
func (m *IdempotencyRecordModel) ToDomain() *shared.IdempotencyRecord {
	return &shared.IdempotencyRecord{
		Key:                m.Key,
		RequestFingerprint: m.RequestFingerprint,
		Status:             m.Status,
		CachedStatus:       m.CachedStatus,
		CachedBody:         m.CachedBody,
		ExpiresAt:          m.ExpiresAt,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
}

// FromDomain populates the persistence model from a domain IdempotencyRecord.
func (m *IdempotencyRecordModel) FromDomain(r *shared.IdempotencyRecord) {
	m.Key = r.Key
	m.RequestFingerprint = r.RequestFingerprint
	m.Status = r.Status
	m.CachedStatus = r.CachedStatus
	m.CachedBody = r.CachedBody
	m.ExpiresAt = r.ExpiresAt
	m.CreatedAt = r.CreatedAt
	m.UpdatedAt = r.UpdatedAt
}

// IdempotencyRecordModelFromDomain creates a new persistence model from a
// domain IdempotencyRecord.
func IdempotencyRecordModelFromDomain(r *shared.IdempotencyRecord) *IdempotencyRecordModel {
	m := &IdempotencyRecordModel{}
	m.FromDomain(r)
	return m
}
