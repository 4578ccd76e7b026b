package persistence

import (
	"context"
	"time"

	"github.com/fleetrent/backend/internal/application/accounting"
	"github.com/fleetrent/backend/internal/domain/billing"
	"github.com/fleetrent/backend/internal/domain/fleet"
	"github.com/fleetrent/backend/internal/domain/ledger"
	"github.com/fleetrent/backend/internal/domain/shared"
	"github.com/fleetrent/backend/internal/infrastructure/locking"
	"gorm.io/gorm"
)

// GormTransactionScope implements TransactionScope using GORM transactions.
// Every repository handed to the unit-of-work function is rebound to the same
// transaction, and the locker takes advisory locks the database releases when
// that transaction ends.
type GormTransactionScope struct {
	db          *gorm.DB
	lockTimeout time.Duration
}

// NewGormTransactionScope creates a new GormTransactionScope. lockTimeout
// bounds advisory lock waits inside the unit of work.
func NewGormTransactionScope(db *gorm.DB, lockTimeout time.Duration) *GormTransactionScope {
	return &GormTransactionScope{db: db, lockTimeout: lockTimeout}
}

// Execute runs the given function within a database transaction.
// If the function returns an error, the transaction is rolled back.
// If the function succeeds, the transaction is committed.
func (s *GormTransactionScope) Execute(ctx context.Context, fn func(repos accounting.TransactionalRepositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repos := &gormTransactionalRepositories{tx: tx, lockTimeout: s.lockTimeout}
		return fn(repos)
	})
}

// gormTransactionalRepositories provides access to all repositories within a transaction.
type gormTransactionalRepositories struct {
	tx          *gorm.DB
	lockTimeout time.Duration
}

// AccountRepo returns the chart-of-accounts repository scoped to the current transaction.
func (r *gormTransactionalRepositories) AccountRepo() ledger.AccountRepository {
	return NewGormAccountRepository(r.tx)
}

// EntryRepo returns the journal entry repository scoped to the current transaction.
func (r *gormTransactionalRepositories) EntryRepo() ledger.EntryRepository {
	return NewGormEntryRepository(r.tx)
}

// VehicleRepo returns the vehicle repository scoped to the current transaction.
func (r *gormTransactionalRepositories) VehicleRepo() fleet.VehicleRepository {
	return NewGormVehicleRepository(r.tx)
}

// RentalRepo returns the rental repository scoped to the current transaction.
func (r *gormTransactionalRepositories) RentalRepo() fleet.RentalRepository {
	return NewGormRentalRepository(r.tx)
}

// InvoiceRepo returns the invoice repository scoped to the current transaction.
func (r *gormTransactionalRepositories) InvoiceRepo() billing.InvoiceRepository {
	return NewGormInvoiceRepository(r.tx)
}

// Locker returns an advisory locker bound to the current transaction. Locks it
// acquires are held until the unit of work commits or rolls back.
func (r *gormTransactionalRepositories) Locker() shared.ResourceLocker {
	return locking.NewPgAdvisoryLocker(r.tx, r.lockTimeout)
}

// Ensure GormTransactionScope implements TransactionScope
var _ accounting.TransactionScope = (*GormTransactionScope)(nil)

// Ensure gormTransactionalRepositories implements TransactionalRepositories
var _ accounting.TransactionalRepositories = (*gormTransactionalRepositories)(nil)
