package locking

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/fleetrent/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// newMockLocker creates a PgAdvisoryLocker over a mocked SQL connection
func newMockLocker(t *testing.T, timeout time.Duration) (*PgAdvisoryLocker, sqlmock.Sqlmock, *sql.DB) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	return NewPgAdvisoryLocker(gormDB, timeout), mock, mockDB
}

func TestPgAdvisoryLocker_Acquire(t *testing.T) {
	t.Run("bounds the wait and takes the lock", func(t *testing.T) {
		locker, mock, mockDB := newMockLocker(t, 3*time.Second)
		defer mockDB.Close()

		resourceID := uuid.New()

		mock.ExpectExec(`SELECT set_config\('lock_timeout', \$1, true\)`).
			WithArgs("3000").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(`SELECT pg_advisory_xact_lock\(\$1, \$2\)`).
			WithArgs(shared.LockSpaceVehicle.ID(), lockKey(resourceID)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := locker.Acquire(context.Background(), shared.LockSpaceVehicle, resourceID)

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("maps pgx lock_timeout expiry to a retryable error", func(t *testing.T) {
		locker, mock, mockDB := newMockLocker(t, time.Second)
		defer mockDB.Close()

		mock.ExpectExec(`SELECT set_config\('lock_timeout', \$1, true\)`).
			WithArgs("1000").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(`SELECT pg_advisory_xact_lock\(\$1, \$2\)`).
			WillReturnError(&pgconn.PgError{Code: "55P03"})

		err := locker.Acquire(context.Background(), shared.LockSpaceVehicle, uuid.New())

		assert.ErrorIs(t, err, shared.ErrLockTimeout)
		assert.True(t, shared.IsRetryable(err))
	})

	t.Run("maps pq lock_timeout expiry to a retryable error", func(t *testing.T) {
		locker, mock, mockDB := newMockLocker(t, time.Second)
		defer mockDB.Close()

		mock.ExpectExec(`SELECT set_config\('lock_timeout', \$1, true\)`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(`SELECT pg_advisory_xact_lock\(\$1, \$2\)`).
			WillReturnError(&pq.Error{Code: "55P03"})

		err := locker.Acquire(context.Background(), shared.LockSpaceRental, uuid.New())

		assert.ErrorIs(t, err, shared.ErrLockTimeout)
	})

	t.Run("other database errors pass through untranslated", func(t *testing.T) {
		locker, mock, mockDB := newMockLocker(t, time.Second)
		defer mockDB.Close()

		mock.ExpectExec(`SELECT set_config\('lock_timeout', \$1, true\)`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(`SELECT pg_advisory_xact_lock\(\$1, \$2\)`).
			WillReturnError(&pgconn.PgError{Code: "57014"})

		err := locker.Acquire(context.Background(), shared.LockSpaceInvoice, uuid.New())

		assert.Error(t, err)
		assert.NotErrorIs(t, err, shared.ErrLockTimeout)
		assert.False(t, shared.IsRetryable(err))
	})

	t.Run("rejects the nil resource id", func(t *testing.T) {
		locker, _, mockDB := newMockLocker(t, time.Second)
		defer mockDB.Close()

		err := locker.Acquire(context.Background(), shared.LockSpaceVehicle, uuid.Nil)

		assert.ErrorIs(t, err, shared.ErrValidation)
	})
}

func TestLockKey(t *testing.T) {
	t.Run("is deterministic per resource", func(t *testing.T) {
		id := uuid.New()
		assert.Equal(t, lockKey(id), lockKey(id))
	})

	t.Run("distinct resources usually get distinct keys", func(t *testing.T) {
		assert.NotEqual(t, lockKey(uuid.New()), lockKey(uuid.New()))
	})
}

func TestNewPgAdvisoryLocker(t *testing.T) {
	t.Run("non-positive timeout falls back to the default", func(t *testing.T) {
		locker, _, mockDB := newMockLocker(t, 0)
		defer mockDB.Close()

		assert.Equal(t, DefaultAcquireTimeout, locker.timeout)
	})
}
