// Package locking provides the postgres advisory-lock implementation of the
// resource locker. Locks are transaction-scoped (pg_advisory_xact_lock), so
// they are released by the database itself when the surrounding unit of work
// commits or rolls back; there is no unlock path to forget.
package locking

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strconv"
	"time"

	"github.com/fleetrent/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// lockNotAvailable is the SQLSTATE postgres raises when lock_timeout expires
// while waiting on a lock.
const lockNotAvailable = "55P03"

// DefaultAcquireTimeout bounds how long Acquire waits before giving up with
// a retryable timeout.
const DefaultAcquireTimeout = 3 * time.Second

// PgAdvisoryLocker implements shared.ResourceLocker on postgres advisory
// locks. It must be bound to the transaction whose unit of work the lock
// should cover; use WithTx inside Database.Transaction.
type PgAdvisoryLocker struct {
	db      *gorm.DB
	timeout time.Duration
}

// NewPgAdvisoryLocker creates a locker with the given acquire timeout.
// A non-positive timeout falls back to DefaultAcquireTimeout.
func NewPgAdvisoryLocker(db *gorm.DB, timeout time.Duration) *PgAdvisoryLocker {
	if timeout <= 0 {
		timeout = DefaultAcquireTimeout
	}
	return &PgAdvisoryLocker{db: db, timeout: timeout}
}

// WithTx returns a locker bound to the given transaction
func (l *PgAdvisoryLocker) WithTx(tx *gorm.DB) *PgAdvisoryLocker {
	return &PgAdvisoryLocker{db: tx, timeout: l.timeout}
}

// Acquire locks (space, resourceID) until the current transaction ends.
// Waiting is bounded by the configured timeout via a transaction-local
// lock_timeout; expiry maps to shared.ErrLockTimeout so callers can retry
// the whole unit of work with backoff.
func (l *PgAdvisoryLocker) Acquire(ctx context.Context, space shared.LockSpace, resourceID uuid.UUID) error {
	if resourceID == uuid.Nil {
		return shared.NewDomainError(shared.ErrValidation.Code, "Cannot lock an empty resource ID")
	}

	millis := strconv.FormatInt(l.timeout.Milliseconds(), 10)
	if err := l.db.WithContext(ctx).
		Exec("SELECT set_config('lock_timeout', ?, true)", millis).Error; err != nil {
		return fmt.Errorf("failed to bound lock wait: %w", err)
	}

	err := l.db.WithContext(ctx).
		Exec("SELECT pg_advisory_xact_lock(?, ?)", space.ID(), lockKey(resourceID)).Error
	if err != nil {
		if sqlState(err) == lockNotAvailable {
			return shared.NewDomainError(shared.ErrLockTimeout.Code,
				fmt.Sprintf("Timed out acquiring %s lock for %s", space.Name(), resourceID))
		}
		return fmt.Errorf("failed to acquire %s lock: %w", space.Name(), err)
	}
	return nil
}

// lockKey folds a uuid into the in-space advisory key. Distinct resources
// may collide; a collision only adds contention and never loses mutual
// exclusion, so fnv-32a is sufficient.
func lockKey(resourceID uuid.UUID) int32 {
	h := fnv.New32a()
	h.Write(resourceID[:])
	return int32(h.Sum32())
}

// sqlState extracts the SQLSTATE from either postgres driver in the stack
func sqlState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

// Ensure PgAdvisoryLocker implements ResourceLocker
var _ shared.ResourceLocker = (*PgAdvisoryLocker)(nil)
