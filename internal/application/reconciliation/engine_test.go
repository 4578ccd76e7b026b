package reconciliation

import (
	"context"
	"testing"
	"time"

	"github.com/fleetrent/backend/internal/domain/billing"
	"github.com/fleetrent/backend/internal/domain/fleet"
	"github.com/fleetrent/backend/internal/domain/ledger"
	"github.com/fleetrent/backend/internal/domain/shared"
	"github.com/fleetrent/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// =============================================================================
// Mock Repositories
// =============================================================================

type MockRentalRepository struct {
	mock.Mock
}

func (m *MockRentalRepository) FindByID(ctx context.Context, id uuid.UUID) (*fleet.Rental, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*fleet.Rental), args.Error(1)
}

func (m *MockRentalRepository) FindByNumber(ctx context.Context, rentalNumber string) (*fleet.Rental, error) {
	args := m.Called(ctx, rentalNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*fleet.Rental), args.Error(1)
}

func (m *MockRentalRepository) FindAll(ctx context.Context, filter fleet.RentalFilter) ([]fleet.Rental, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]fleet.Rental), args.Error(1)
}

func (m *MockRentalRepository) Count(ctx context.Context, filter fleet.RentalFilter) (int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRentalRepository) FindOverlapping(ctx context.Context, vehicleID uuid.UUID, from, to time.Time) ([]fleet.Rental, error) {
	args := m.Called(ctx, vehicleID, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]fleet.Rental), args.Error(1)
}

func (m *MockRentalRepository) FindAllByStatuses(ctx context.Context, statuses []fleet.RentalStatus, filter shared.Filter) ([]fleet.Rental, error) {
	args := m.Called(ctx, statuses, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]fleet.Rental), args.Error(1)
}

func (m *MockRentalRepository) Save(ctx context.Context, rental *fleet.Rental) error {
	args := m.Called(ctx, rental)
	return args.Error(0)
}

func (m *MockRentalRepository) SaveWithLock(ctx context.Context, rental *fleet.Rental) error {
	args := m.Called(ctx, rental)
	return args.Error(0)
}

func (m *MockRentalRepository) GenerateRentalNumber(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

type MockInvoiceRepository struct {
	mock.Mock
}

func (m *MockInvoiceRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Invoice, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) FindByNumber(ctx context.Context, invoiceNumber string) (*billing.Invoice, error) {
	args := m.Called(ctx, invoiceNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) FindByRental(ctx context.Context, rentalID uuid.UUID) (*billing.Invoice, error) {
	args := m.Called(ctx, rentalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) FindAll(ctx context.Context, filter billing.InvoiceFilter) ([]billing.Invoice, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]billing.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) Count(ctx context.Context, filter billing.InvoiceFilter) (int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockInvoiceRepository) Save(ctx context.Context, invoice *billing.Invoice) error {
	args := m.Called(ctx, invoice)
	return args.Error(0)
}

func (m *MockInvoiceRepository) SaveWithLock(ctx context.Context, invoice *billing.Invoice) error {
	args := m.Called(ctx, invoice)
	return args.Error(0)
}

func (m *MockInvoiceRepository) SumOutstanding(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockInvoiceRepository) GenerateInvoiceNumber(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

type MockAccountRepository struct {
	mock.Mock
}

func (m *MockAccountRepository) FindByID(ctx context.Context, id uuid.UUID) (*ledger.Account, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Account), args.Error(1)
}

func (m *MockAccountRepository) FindByCode(ctx context.Context, code string) (*ledger.Account, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Account), args.Error(1)
}

func (m *MockAccountRepository) FindAll(ctx context.Context, activeOnly bool) ([]ledger.Account, error) {
	args := m.Called(ctx, activeOnly)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ledger.Account), args.Error(1)
}

func (m *MockAccountRepository) FindByType(ctx context.Context, accountType ledger.AccountType) ([]ledger.Account, error) {
	args := m.Called(ctx, accountType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ledger.Account), args.Error(1)
}

func (m *MockAccountRepository) Save(ctx context.Context, account *ledger.Account) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

func (m *MockAccountRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockAccountRepository) ExistsByCode(ctx context.Context, code string) (bool, error) {
	args := m.Called(ctx, code)
	return args.Bool(0), args.Error(1)
}

func (m *MockAccountRepository) HasEntries(ctx context.Context, id uuid.UUID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

type MockEntryRepository struct {
	mock.Mock
}

func (m *MockEntryRepository) Post(ctx context.Context, entry *ledger.Entry) (*ledger.Entry, error) {
	args := m.Called(ctx, entry)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Entry), args.Error(1)
}

func (m *MockEntryRepository) FindByID(ctx context.Context, id uuid.UUID) (*ledger.Entry, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Entry), args.Error(1)
}

func (m *MockEntryRepository) FindByReference(ctx context.Context, reference string) (*ledger.Entry, error) {
	args := m.Called(ctx, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Entry), args.Error(1)
}

func (m *MockEntryRepository) FindAll(ctx context.Context, filter ledger.EntryFilter) ([]ledger.Entry, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ledger.Entry), args.Error(1)
}

func (m *MockEntryRepository) Count(ctx context.Context, filter ledger.EntryFilter) (int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockEntryRepository) SumForAccount(ctx context.Context, accountID uuid.UUID, asOf time.Time) (int64, error) {
	args := m.Called(ctx, accountID, asOf)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockEntryRepository) SumForReferencePrefix(ctx context.Context, prefix string, accountID uuid.UUID) (int64, error) {
	args := m.Called(ctx, prefix, accountID)
	return args.Get(0).(int64), args.Error(1)
}

type MockRunRepository struct {
	mock.Mock
}

func (m *MockRunRepository) Save(ctx context.Context, run *ledger.ReconciliationRun) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *MockRunRepository) FindByID(ctx context.Context, id uuid.UUID) (*ledger.ReconciliationRun, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.ReconciliationRun), args.Error(1)
}

func (m *MockRunRepository) FindRecent(ctx context.Context, limit int) ([]ledger.ReconciliationRun, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ledger.ReconciliationRun), args.Error(1)
}

// =============================================================================
// Test fixtures
// =============================================================================

func usd(amount int64) valueobject.Money {
	return valueobject.MustNewMoney(amount, valueobject.USD)
}

func testAccount(t *testing.T, code, name string, accountType ledger.AccountType) *ledger.Account {
	t.Helper()
	account, err := ledger.NewAccount(code, name, accountType)
	require.NoError(t, err)
	return account
}

func activeRental(t *testing.T, dailyRateMinor int64, days int) *fleet.Rental {
	t.Helper()
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	rental, err := fleet.NewRental(
		"RNT-20260301-0001",
		uuid.New(),
		"Dana Smith",
		"dana@example.com",
		start,
		start.AddDate(0, 0, days),
		usd(dailyRateMinor),
	)
	require.NoError(t, err)
	require.NoError(t, rental.Activate())
	return rental
}

func issuedInvoice(t *testing.T, totalMinor int64) *billing.Invoice {
	t.Helper()
	invoice, err := billing.NewInvoice("INV-20260301-0001", uuid.New(), "Dana Smith", usd(totalMinor))
	require.NoError(t, err)
	return invoice
}

type engineFixture struct {
	rentalRepo  *MockRentalRepository
	invoiceRepo *MockInvoiceRepository
	accountRepo *MockAccountRepository
	entryRepo   *MockEntryRepository
	receivable  *ledger.Account
	engine      *Engine
}

func newEngineFixture(t *testing.T, opts ...EngineOption) *engineFixture {
	t.Helper()
	f := &engineFixture{
		rentalRepo:  new(MockRentalRepository),
		invoiceRepo: new(MockInvoiceRepository),
		accountRepo: new(MockAccountRepository),
		entryRepo:   new(MockEntryRepository),
		receivable:  testAccount(t, ledger.AccountCodeAccountsReceivable, "Accounts Receivable", ledger.AccountTypeAsset),
	}
	f.accountRepo.On("FindByCode", mock.Anything, ledger.AccountCodeAccountsReceivable).Return(f.receivable, nil)
	f.engine = NewEngine(
		f.rentalRepo,
		f.invoiceRepo,
		f.accountRepo,
		f.entryRepo,
		ledger.NewPostingPolicy(),
		zap.NewNop(),
		opts...,
	)
	return f
}

func rentalActivationPrefix(r *fleet.Rental) string {
	return "rental-" + r.ID.String() + "-activation"
}

func invoicePaymentPrefix(i *billing.Invoice) string {
	return "invoice-" + i.ID.String() + "-payment"
}

// =============================================================================
// VerifyOperationalVsLedger
// =============================================================================

func TestEngine_VerifyOperationalVsLedger(t *testing.T) {
	t.Run("agreeing books produce no mismatches", func(t *testing.T) {
		f := newEngineFixture(t)
		rental := activeRental(t, 5600, 2) // total 11200
		invoice := issuedInvoice(t, 11200)
		require.NoError(t, invoice.ApplyPayment(usd(5000)))

		f.rentalRepo.On("FindAllByStatuses", mock.Anything, mock.Anything, mock.Anything).
			Return([]fleet.Rental{*rental}, nil)
		f.invoiceRepo.On("FindAll", mock.Anything, mock.Anything).
			Return([]billing.Invoice{*invoice}, nil)
		// Activation moves AR on its normal (debit) side; payment credits it.
		f.entryRepo.On("SumForReferencePrefix", mock.Anything, rentalActivationPrefix(rental), f.receivable.ID).
			Return(int64(11200), nil)
		f.entryRepo.On("SumForReferencePrefix", mock.Anything, invoicePaymentPrefix(invoice), f.receivable.ID).
			Return(int64(-5000), nil)

		mismatches, err := f.engine.VerifyOperationalVsLedger(context.Background())

		require.NoError(t, err)
		assert.Empty(t, mismatches)
	})

	t.Run("a rental with no activation entry is reported", func(t *testing.T) {
		f := newEngineFixture(t)
		rental := activeRental(t, 5600, 2)

		f.rentalRepo.On("FindAllByStatuses", mock.Anything, mock.Anything, mock.Anything).
			Return([]fleet.Rental{*rental}, nil)
		f.invoiceRepo.On("FindAll", mock.Anything, mock.Anything).
			Return([]billing.Invoice{}, nil)
		f.entryRepo.On("SumForReferencePrefix", mock.Anything, rentalActivationPrefix(rental), f.receivable.ID).
			Return(int64(0), nil)

		mismatches, err := f.engine.VerifyOperationalVsLedger(context.Background())

		require.NoError(t, err)
		require.Len(t, mismatches, 1)
		assert.Equal(t, ledger.MismatchKindRentalActivation, mismatches[0].Kind)
		assert.Equal(t, rental.ID, mismatches[0].EntityID)
		assert.Equal(t, rental.RentalNumber, mismatches[0].EntityNumber)
		assert.Equal(t, int64(11200), mismatches[0].OperationalAmount.Amount())
		assert.Equal(t, int64(0), mismatches[0].LedgerAmount.Amount())
		assert.Equal(t, int64(11200), mismatches[0].Difference.Amount())
	})

	t.Run("an invoice whose paid amount outruns the ledger is reported", func(t *testing.T) {
		f := newEngineFixture(t)
		invoice := issuedInvoice(t, 11200)
		require.NoError(t, invoice.ApplyPayment(usd(5000)))

		f.rentalRepo.On("FindAllByStatuses", mock.Anything, mock.Anything, mock.Anything).
			Return([]fleet.Rental{}, nil)
		f.invoiceRepo.On("FindAll", mock.Anything, mock.Anything).
			Return([]billing.Invoice{*invoice}, nil)
		f.entryRepo.On("SumForReferencePrefix", mock.Anything, invoicePaymentPrefix(invoice), f.receivable.ID).
			Return(int64(-3000), nil)

		mismatches, err := f.engine.VerifyOperationalVsLedger(context.Background())

		require.NoError(t, err)
		require.Len(t, mismatches, 1)
		assert.Equal(t, ledger.MismatchKindInvoicePayment, mismatches[0].Kind)
		assert.Equal(t, int64(5000), mismatches[0].OperationalAmount.Amount())
		assert.Equal(t, int64(3000), mismatches[0].LedgerAmount.Amount())
	})

	t.Run("void invoices are skipped", func(t *testing.T) {
		f := newEngineFixture(t)
		invoice := issuedInvoice(t, 11200)
		require.NoError(t, invoice.Void("duplicate issuance"))

		f.rentalRepo.On("FindAllByStatuses", mock.Anything, mock.Anything, mock.Anything).
			Return([]fleet.Rental{}, nil)
		f.invoiceRepo.On("FindAll", mock.Anything, mock.Anything).
			Return([]billing.Invoice{*invoice}, nil)

		mismatches, err := f.engine.VerifyOperationalVsLedger(context.Background())

		require.NoError(t, err)
		assert.Empty(t, mismatches)
		f.entryRepo.AssertNotCalled(t, "SumForReferencePrefix")
	})

	t.Run("pages through rentals until a short page", func(t *testing.T) {
		f := newEngineFixture(t, WithPageSize(1))
		first := activeRental(t, 5600, 2)
		second := activeRental(t, 3000, 1)

		page1 := shared.DefaultFilter()
		page1.Page, page1.PageSize = 1, 1
		page2 := shared.DefaultFilter()
		page2.Page, page2.PageSize = 2, 1
		page3 := shared.DefaultFilter()
		page3.Page, page3.PageSize = 3, 1
		f.rentalRepo.On("FindAllByStatuses", mock.Anything, mock.Anything, page1).
			Return([]fleet.Rental{*first}, nil)
		f.rentalRepo.On("FindAllByStatuses", mock.Anything, mock.Anything, page2).
			Return([]fleet.Rental{*second}, nil)
		f.rentalRepo.On("FindAllByStatuses", mock.Anything, mock.Anything, page3).
			Return([]fleet.Rental{}, nil)
		f.invoiceRepo.On("FindAll", mock.Anything, mock.Anything).
			Return([]billing.Invoice{}, nil)
		f.entryRepo.On("SumForReferencePrefix", mock.Anything, rentalActivationPrefix(first), f.receivable.ID).
			Return(int64(11200), nil)
		f.entryRepo.On("SumForReferencePrefix", mock.Anything, rentalActivationPrefix(second), f.receivable.ID).
			Return(int64(3000), nil)

		mismatches, err := f.engine.VerifyOperationalVsLedger(context.Background())

		require.NoError(t, err)
		assert.Empty(t, mismatches)
		f.rentalRepo.AssertNumberOfCalls(t, "FindAllByStatuses", 3)
	})
}

// =============================================================================
// VerifyAccountingEquation
// =============================================================================

func TestEngine_VerifyAccountingEquation(t *testing.T) {
	asOf := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	setupTypes := func(t *testing.T, f *engineFixture, sums map[ledger.AccountType]int64) {
		t.Helper()
		for _, accountType := range ledger.AllAccountTypes() {
			sum, ok := sums[accountType]
			if !ok {
				f.accountRepo.On("FindByType", mock.Anything, accountType).Return([]ledger.Account{}, nil)
				continue
			}
			account := testAccount(t, accountCodeFor(accountType), string(accountType), accountType)
			f.accountRepo.On("FindByType", mock.Anything, accountType).Return([]ledger.Account{*account}, nil)
			f.entryRepo.On("SumForAccount", mock.Anything, account.ID, asOf).Return(sum, nil)
		}
	}

	t.Run("holds when revenue is folded into equity", func(t *testing.T) {
		f := newEngineFixture(t)
		// Activation booked 11200 of AR against revenue; no liabilities or
		// contributed capital yet.
		setupTypes(t, f, map[ledger.AccountType]int64{
			ledger.AccountTypeAsset:   11200,
			ledger.AccountTypeRevenue: 11200,
		})

		balanced, err := f.engine.VerifyAccountingEquation(context.Background(), asOf)

		require.NoError(t, err)
		assert.True(t, balanced)
	})

	t.Run("expenses reduce the equity side", func(t *testing.T) {
		f := newEngineFixture(t)
		setupTypes(t, f, map[ledger.AccountType]int64{
			ledger.AccountTypeAsset:     9000,
			ledger.AccountTypeLiability: 2000,
			ledger.AccountTypeEquity:    5000,
			ledger.AccountTypeRevenue:   11200,
			ledger.AccountTypeExpense:   9200,
		})

		balanced, err := f.engine.VerifyAccountingEquation(context.Background(), asOf)

		require.NoError(t, err)
		assert.True(t, balanced)
	})

	t.Run("detects a hole in the books", func(t *testing.T) {
		f := newEngineFixture(t)
		setupTypes(t, f, map[ledger.AccountType]int64{
			ledger.AccountTypeAsset:   11200,
			ledger.AccountTypeRevenue: 11100,
		})

		balanced, err := f.engine.VerifyAccountingEquation(context.Background(), asOf)

		require.NoError(t, err)
		assert.False(t, balanced)
	})
}

func accountCodeFor(accountType ledger.AccountType) string {
	switch accountType {
	case ledger.AccountTypeAsset:
		return "1999"
	case ledger.AccountTypeLiability:
		return "2999"
	case ledger.AccountTypeEquity:
		return "3999"
	case ledger.AccountTypeRevenue:
		return "4999"
	default:
		return "5999"
	}
}

// =============================================================================
// Run
// =============================================================================

func TestEngine_Run(t *testing.T) {
	t.Run("persists a balanced run", func(t *testing.T) {
		runRepo := new(MockRunRepository)
		f := newEngineFixture(t, WithRunAudit(runRepo))

		f.rentalRepo.On("FindAllByStatuses", mock.Anything, mock.Anything, mock.Anything).
			Return([]fleet.Rental{}, nil)
		f.invoiceRepo.On("FindAll", mock.Anything, mock.Anything).
			Return([]billing.Invoice{}, nil)
		for _, accountType := range ledger.AllAccountTypes() {
			f.accountRepo.On("FindByType", mock.Anything, accountType).Return([]ledger.Account{}, nil)
		}
		runRepo.On("Save", mock.Anything, mock.AnythingOfType("*ledger.ReconciliationRun")).Return(nil)

		run, err := f.engine.Run(context.Background())

		require.NoError(t, err)
		assert.Equal(t, ledger.ReconciliationStatusBalanced, run.Status)
		assert.True(t, run.EquationBalanced)
		assert.Zero(t, run.MismatchCount)
		runRepo.AssertExpectations(t)
	})

	t.Run("a mismatch marks the run diverged", func(t *testing.T) {
		runRepo := new(MockRunRepository)
		f := newEngineFixture(t, WithRunAudit(runRepo))
		rental := activeRental(t, 5600, 2)

		f.rentalRepo.On("FindAllByStatuses", mock.Anything, mock.Anything, mock.Anything).
			Return([]fleet.Rental{*rental}, nil)
		f.invoiceRepo.On("FindAll", mock.Anything, mock.Anything).
			Return([]billing.Invoice{}, nil)
		f.entryRepo.On("SumForReferencePrefix", mock.Anything, rentalActivationPrefix(rental), f.receivable.ID).
			Return(int64(0), nil)
		for _, accountType := range ledger.AllAccountTypes() {
			f.accountRepo.On("FindByType", mock.Anything, accountType).Return([]ledger.Account{}, nil)
		}
		runRepo.On("Save", mock.Anything, mock.AnythingOfType("*ledger.ReconciliationRun")).Return(nil)

		run, err := f.engine.Run(context.Background())

		require.NoError(t, err)
		assert.Equal(t, ledger.ReconciliationStatusDiverged, run.Status)
		assert.Equal(t, 1, run.MismatchCount)
		assert.Equal(t, int64(1), run.CheckedRentals)
	})

	t.Run("a repository failure yields a failed run record", func(t *testing.T) {
		runRepo := new(MockRunRepository)
		f := newEngineFixture(t, WithRunAudit(runRepo))

		f.rentalRepo.On("FindAllByStatuses", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, assert.AnError)
		var saved *ledger.ReconciliationRun
		runRepo.On("Save", mock.Anything, mock.AnythingOfType("*ledger.ReconciliationRun")).
			Run(func(args mock.Arguments) { saved = args.Get(1).(*ledger.ReconciliationRun) }).
			Return(nil)

		_, err := f.engine.Run(context.Background())

		require.Error(t, err)
		require.NotNil(t, saved)
		assert.Equal(t, ledger.ReconciliationStatusFailed, saved.Status)
		assert.NotEmpty(t, saved.Notes)
	})
}
