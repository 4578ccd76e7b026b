package ledger

import (
	"context"
	"time"

	"github.com/fleetrent/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// EntryFilter defines filtering options for journal entry queries
type EntryFilter struct {
	shared.Filter
	AccountID       *uuid.UUID // Only entries with a line on this account
	ReferencePrefix *string    // Reference prefix (delimiter-closed matching)
	FromDate        *time.Time // Entry date range start
	ToDate          *time.Time // Entry date range end
}

// AccountRepository defines the interface for chart-of-accounts persistence
type AccountRepository interface {
	// FindByID finds an account by ID
	FindByID(ctx context.Context, id uuid.UUID) (*Account, error)

	// FindByCode finds an account by its chart code
	FindByCode(ctx context.Context, code string) (*Account, error)

	// FindAll returns the chart of accounts ordered by code
	FindAll(ctx context.Context, activeOnly bool) ([]Account, error)

	// FindByType returns all accounts of one type ordered by code
	FindByType(ctx context.Context, accountType AccountType) ([]Account, error)

	// Save creates or updates an account
	Save(ctx context.Context, account *Account) error

	// Delete removes an account. Callers must verify the account has no
	// journal lines first; an account with entries is deactivated, never
	// deleted.
	Delete(ctx context.Context, id uuid.UUID) error

	// ExistsByCode checks if an account code is already taken
	ExistsByCode(ctx context.Context, code string) (bool, error)

	// HasEntries reports whether any journal line references the account
	HasEntries(ctx context.Context, id uuid.UUID) (bool, error)
}

// EntryRepository defines the interface for the append-only journal.
// Entries are never updated or deleted; corrections are new reversing
// entries.
type EntryRepository interface {
	// Post appends a balanced entry. The external reference is the
	// idempotency key: when an entry with the same reference already exists,
	// Post stores nothing and returns the original entry. The returned entry
	// is always the stored one.
	Post(ctx context.Context, entry *Entry) (*Entry, error)

	// FindByID loads an entry with its lines
	FindByID(ctx context.Context, id uuid.UUID) (*Entry, error)

	// FindByReference loads an entry by its external reference
	FindByReference(ctx context.Context, reference string) (*Entry, error)

	// FindAll lists entries with filtering, newest first
	FindAll(ctx context.Context, filter EntryFilter) ([]Entry, error)

	// Count counts entries matching the filter
	Count(ctx context.Context, filter EntryFilter) (int64, error)

	// SumForAccount returns the account's balance as of the given time in
	// minor units, sign-adjusted to the account's normal side: debits minus
	// credits for debit-normal accounts, credits minus debits for
	// credit-normal ones. Accounts with no lines sum to zero.
	SumForAccount(ctx context.Context, accountID uuid.UUID, asOf time.Time) (int64, error)

	// SumForReferencePrefix returns the normal-side-adjusted sum in minor
	// units over all lines on the account whose entry reference equals the
	// prefix or extends it with a delimiter. "rental-X-activation" never
	// matches "rental-X-activation2".
	SumForReferencePrefix(ctx context.Context, prefix string, accountID uuid.UUID) (int64, error)
}

// ReconciliationRunRepository defines the interface for run audit persistence
type ReconciliationRunRepository interface {
	// Save persists a finished run
	Save(ctx context.Context, run *ReconciliationRun) error

	// FindByID loads a run by ID
	FindByID(ctx context.Context, id uuid.UUID) (*ReconciliationRun, error)

	// FindRecent lists the most recent runs, newest first
	FindRecent(ctx context.Context, limit int) ([]ReconciliationRun, error)
}
