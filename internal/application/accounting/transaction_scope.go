package accounting

import (
	"context"

	"github.com/fleetrent/backend/internal/domain/billing"
	"github.com/fleetrent/backend/internal/domain/fleet"
	"github.com/fleetrent/backend/internal/domain/ledger"
	"github.com/fleetrent/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// TransactionScope runs a function as one unit of work. Everything done
// through the repositories it hands out shares a single database transaction
// and commits or rolls back atomically - the business mutation, its ledger
// posting and any advisory locks live and die together.
type TransactionScope interface {
	// Execute runs the given function within a database transaction.
	// If the function returns an error, the transaction is rolled back.
	// If the function succeeds, the transaction is committed.
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories provides access to the repositories participating
// in the current unit of work. All of them share the same underlying database
// transaction, and the locker takes advisory locks that the database releases
// when that transaction ends.
type TransactionalRepositories interface {
	// AccountRepo returns the chart-of-accounts repository scoped to the current transaction
	AccountRepo() ledger.AccountRepository
	// EntryRepo returns the journal entry repository scoped to the current transaction
	EntryRepo() ledger.EntryRepository
	// VehicleRepo returns the vehicle repository scoped to the current transaction
	VehicleRepo() fleet.VehicleRepository
	// RentalRepo returns the rental repository scoped to the current transaction
	RentalRepo() fleet.RentalRepository
	// InvoiceRepo returns the invoice repository scoped to the current transaction
	InvoiceRepo() billing.InvoiceRepository
	// Locker returns a resource locker bound to the current transaction.
	// Locks it acquires are held until the unit of work commits or rolls back.
	Locker() shared.ResourceLocker
}

// NoOpTransactionScope is a transaction scope that doesn't actually use
// transactions. This is useful for testing or when transaction support is not
// required.
type NoOpTransactionScope struct {
	accountRepo ledger.AccountRepository
	entryRepo   ledger.EntryRepository
	vehicleRepo fleet.VehicleRepository
	rentalRepo  fleet.RentalRepository
	invoiceRepo billing.InvoiceRepository
	locker      shared.ResourceLocker
}

// NewNoOpTransactionScope creates a NoOpTransactionScope with the given repositories.
func NewNoOpTransactionScope(
	accountRepo ledger.AccountRepository,
	entryRepo ledger.EntryRepository,
	vehicleRepo fleet.VehicleRepository,
	rentalRepo fleet.RentalRepository,
	invoiceRepo billing.InvoiceRepository,
	locker shared.ResourceLocker,
) *NoOpTransactionScope {
	return &NoOpTransactionScope{
		accountRepo: accountRepo,
		entryRepo:   entryRepo,
		vehicleRepo: vehicleRepo,
		rentalRepo:  rentalRepo,
		invoiceRepo: invoiceRepo,
		locker:      locker,
	}
}

// Execute runs the function without a real transaction (for testing/compatibility).
func (s *NoOpTransactionScope) Execute(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	return fn(s)
}

// AccountRepo returns the chart-of-accounts repository.
func (s *NoOpTransactionScope) AccountRepo() ledger.AccountRepository {
	return s.accountRepo
}

// EntryRepo returns the journal entry repository.
func (s *NoOpTransactionScope) EntryRepo() ledger.EntryRepository {
	return s.entryRepo
}

// VehicleRepo returns the vehicle repository.
func (s *NoOpTransactionScope) VehicleRepo() fleet.VehicleRepository {
	return s.vehicleRepo
}

// RentalRepo returns the rental repository.
func (s *NoOpTransactionScope) RentalRepo() fleet.RentalRepository {
	return s.rentalRepo
}

// InvoiceRepo returns the invoice repository.
func (s *NoOpTransactionScope) InvoiceRepo() billing.InvoiceRepository {
	return s.invoiceRepo
}

// Locker returns the configured resource locker. When none was provided it
// returns a locker that grants every acquisition, since without a transaction
// there is nothing to scope a lock to.
func (s *NoOpTransactionScope) Locker() shared.ResourceLocker {
	if s.locker == nil {
		return noOpLocker{}
	}
	return s.locker
}

// noOpLocker grants every lock unconditionally
type noOpLocker struct{}

func (noOpLocker) Acquire(context.Context, shared.LockSpace, uuid.UUID) error { return nil }

// Ensure NoOpTransactionScope implements both interfaces
var _ TransactionScope = (*NoOpTransactionScope)(nil)
var _ TransactionalRepositories = (*NoOpTransactionScope)(nil)
