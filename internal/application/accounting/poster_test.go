package accounting

import (
	"context"
	"testing"
	"time"

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
// Mock Repositories (shared by the accounting package tests)
// =============================================================================

// MockAccountRepository is a mock implementation of ledger.AccountRepository
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

// MockEntryRepository is a mock implementation of ledger.EntryRepository
type MockEntryRepository struct {
	mock.Mock
}

func (m *MockEntryRepository) Post(ctx context.Context, entry *ledger.Entry) (*ledger.Entry, error) {
	args := m.Called(ctx, entry)
	// Allow tests to echo the posted entry back through a return function.
	if fn, ok := args.Get(0).(func(context.Context, *ledger.Entry) (*ledger.Entry, error)); ok {
		return fn(ctx, entry)
	}
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

// =============================================================================
// Test helpers
// =============================================================================

func testAccount(t *testing.T, code, name string, accountType ledger.AccountType) *ledger.Account {
	t.Helper()
	account, err := ledger.NewAccount(code, name, accountType)
	require.NoError(t, err)
	return account
}

func usd(amount int64) valueobject.Money {
	return valueobject.MustNewMoney(amount, valueobject.USD)
}

func newTestPoster(accountRepo *MockAccountRepository, entryRepo *MockEntryRepository) *Poster {
	return NewPoster(accountRepo, entryRepo, ledger.NewPostingPolicy(), zap.NewNop())
}

// =============================================================================
// PostActivation
// =============================================================================

func TestPoster_PostActivation(t *testing.T) {
	receivable := testAccount(t, ledger.AccountCodeAccountsReceivable, "Accounts Receivable", ledger.AccountTypeAsset)
	revenue := testAccount(t, ledger.AccountCodeRentalRevenue, "Rental Revenue", ledger.AccountTypeRevenue)
	rentalID := uuid.New()

	t.Run("posts a balanced debit AR / credit revenue entry", func(t *testing.T) {
		accountRepo := new(MockAccountRepository)
		entryRepo := new(MockEntryRepository)
		accountRepo.On("FindByCode", mock.Anything, ledger.AccountCodeAccountsReceivable).Return(receivable, nil)
		accountRepo.On("FindByCode", mock.Anything, ledger.AccountCodeRentalRevenue).Return(revenue, nil)
		entryRepo.On("Post", mock.Anything, mock.AnythingOfType("*ledger.Entry")).
			Return(func(_ context.Context, e *ledger.Entry) (*ledger.Entry, error) { return e, nil })

		poster := newTestPoster(accountRepo, entryRepo)
		entry, err := poster.PostActivation(context.Background(), rentalID, usd(11200))

		require.NoError(t, err)
		assert.Equal(t, "rental-"+rentalID.String()+"-activation", entry.ExternalReference)
		require.Len(t, entry.Lines, 2)
		assert.Equal(t, receivable.ID, entry.Lines[0].AccountID)
		assert.Equal(t, int64(11200), entry.Lines[0].Debit.Amount())
		assert.Equal(t, revenue.ID, entry.Lines[1].AccountID)
		assert.Equal(t, int64(11200), entry.Lines[1].Credit.Amount())
		assert.True(t, entry.TotalDebits().Equals(entry.TotalCredits()))
		entryRepo.AssertExpectations(t)
	})

	t.Run("rejects non-positive amounts before touching the store", func(t *testing.T) {
		accountRepo := new(MockAccountRepository)
		entryRepo := new(MockEntryRepository)

		poster := newTestPoster(accountRepo, entryRepo)
		_, err := poster.PostActivation(context.Background(), rentalID, usd(0))

		assert.ErrorIs(t, err, shared.ErrValidation)
		entryRepo.AssertNotCalled(t, "Post")
	})

	t.Run("rejects a deactivated posting account", func(t *testing.T) {
		inactive := testAccount(t, ledger.AccountCodeAccountsReceivable, "Accounts Receivable", ledger.AccountTypeAsset)
		require.NoError(t, inactive.Deactivate())

		accountRepo := new(MockAccountRepository)
		entryRepo := new(MockEntryRepository)
		accountRepo.On("FindByCode", mock.Anything, ledger.AccountCodeAccountsReceivable).Return(inactive, nil)

		poster := newTestPoster(accountRepo, entryRepo)
		_, err := poster.PostActivation(context.Background(), rentalID, usd(5000))

		assert.ErrorIs(t, err, shared.ErrInvalidState)
		entryRepo.AssertNotCalled(t, "Post")
	})

	t.Run("returns the original entry on a replay", func(t *testing.T) {
		original, err := ledger.NewEntry(
			"rental-"+rentalID.String()+"-activation",
			time.Now().Add(-time.Hour),
			"Original activation",
			mustLines(t, receivable.ID, revenue.ID, usd(11200)),
		)
		require.NoError(t, err)

		accountRepo := new(MockAccountRepository)
		entryRepo := new(MockEntryRepository)
		accountRepo.On("FindByCode", mock.Anything, ledger.AccountCodeAccountsReceivable).Return(receivable, nil)
		accountRepo.On("FindByCode", mock.Anything, ledger.AccountCodeRentalRevenue).Return(revenue, nil)
		entryRepo.On("Post", mock.Anything, mock.AnythingOfType("*ledger.Entry")).Return(original, nil)

		poster := newTestPoster(accountRepo, entryRepo)
		entry, err := poster.PostActivation(context.Background(), rentalID, usd(11200))

		require.NoError(t, err)
		assert.Equal(t, original.ID, entry.ID)
	})
}

func mustLines(t *testing.T, debitAccount, creditAccount uuid.UUID, amount valueobject.Money) []ledger.EntryLine {
	t.Helper()
	debit, err := ledger.NewDebitLine(debitAccount, amount)
	require.NoError(t, err)
	credit, err := ledger.NewCreditLine(creditAccount, amount)
	require.NoError(t, err)
	return []ledger.EntryLine{debit, credit}
}

// =============================================================================
// PostPaymentCapture
// =============================================================================

func TestPoster_PostPaymentCapture(t *testing.T) {
	cash := testAccount(t, ledger.AccountCodeCash, "Cash", ledger.AccountTypeAsset)
	receivable := testAccount(t, ledger.AccountCodeAccountsReceivable, "Accounts Receivable", ledger.AccountTypeAsset)
	invoiceID := uuid.New()

	t.Run("derives the sub-event reference from the payment identity", func(t *testing.T) {
		accountRepo := new(MockAccountRepository)
		entryRepo := new(MockEntryRepository)
		accountRepo.On("FindByCode", mock.Anything, ledger.AccountCodeCash).Return(cash, nil)
		accountRepo.On("FindByCode", mock.Anything, ledger.AccountCodeAccountsReceivable).Return(receivable, nil)
		entryRepo.On("Post", mock.Anything, mock.AnythingOfType("*ledger.Entry")).
			Return(func(_ context.Context, e *ledger.Entry) (*ledger.Entry, error) { return e, nil })

		poster := newTestPoster(accountRepo, entryRepo)
		entry, err := poster.PostPaymentCapture(context.Background(), invoiceID, usd(5000), ledger.AccountCodeCash, "pay-001")

		require.NoError(t, err)
		assert.Equal(t, "invoice-"+invoiceID.String()+"-payment-pay-001", entry.ExternalReference)
		require.Len(t, entry.Lines, 2)
		assert.Equal(t, cash.ID, entry.Lines[0].AccountID)
		assert.Equal(t, receivable.ID, entry.Lines[1].AccountID)
	})

	t.Run("rejects an unconfigured method account", func(t *testing.T) {
		accountRepo := new(MockAccountRepository)
		entryRepo := new(MockEntryRepository)

		poster := newTestPoster(accountRepo, entryRepo)
		_, err := poster.PostPaymentCapture(context.Background(), invoiceID, usd(5000), ledger.AccountCodeRentalRevenue, "pay-001")

		assert.ErrorIs(t, err, shared.ErrValidation)
		entryRepo.AssertNotCalled(t, "Post")
	})

	t.Run("rejects a payment reference that is not a valid segment", func(t *testing.T) {
		accountRepo := new(MockAccountRepository)
		entryRepo := new(MockEntryRepository)

		poster := newTestPoster(accountRepo, entryRepo)
		_, err := poster.PostPaymentCapture(context.Background(), invoiceID, usd(5000), ledger.AccountCodeCash, "pay 001")

		assert.ErrorIs(t, err, shared.ErrValidation)
	})

	t.Run("same payment identity twice produces the same reference", func(t *testing.T) {
		accountRepo := new(MockAccountRepository)
		entryRepo := new(MockEntryRepository)
		accountRepo.On("FindByCode", mock.Anything, ledger.AccountCodeCash).Return(cash, nil)
		accountRepo.On("FindByCode", mock.Anything, ledger.AccountCodeAccountsReceivable).Return(receivable, nil)

		var references []string
		entryRepo.On("Post", mock.Anything, mock.AnythingOfType("*ledger.Entry")).
			Return(func(_ context.Context, e *ledger.Entry) (*ledger.Entry, error) {
				references = append(references, e.ExternalReference)
				return e, nil
			})

		poster := newTestPoster(accountRepo, entryRepo)
		_, err := poster.PostPaymentCapture(context.Background(), invoiceID, usd(5000), ledger.AccountCodeCash, "pay-7")
		require.NoError(t, err)
		_, err = poster.PostPaymentCapture(context.Background(), invoiceID, usd(5000), ledger.AccountCodeCash, "pay-7")
		require.NoError(t, err)

		require.Len(t, references, 2)
		assert.Equal(t, references[0], references[1])
	})
}

// =============================================================================
// PostReversal
// =============================================================================

func TestPoster_PostReversal(t *testing.T) {
	receivable := testAccount(t, ledger.AccountCodeAccountsReceivable, "Accounts Receivable", ledger.AccountTypeAsset)
	revenue := testAccount(t, ledger.AccountCodeRentalRevenue, "Rental Revenue", ledger.AccountTypeRevenue)
	rentalID := uuid.New()
	reference := "rental-" + rentalID.String() + "-activation"

	t.Run("posts the mirror entry with the derived reversal reference", func(t *testing.T) {
		original, err := ledger.NewEntry(reference, time.Now(), "Activation", mustLines(t, receivable.ID, revenue.ID, usd(11200)))
		require.NoError(t, err)

		accountRepo := new(MockAccountRepository)
		entryRepo := new(MockEntryRepository)
		entryRepo.On("FindByReference", mock.Anything, reference).Return(original, nil)
		entryRepo.On("Post", mock.Anything, mock.AnythingOfType("*ledger.Entry")).
			Return(func(_ context.Context, e *ledger.Entry) (*ledger.Entry, error) { return e, nil })

		poster := newTestPoster(accountRepo, entryRepo)
		reversal, err := poster.PostReversal(context.Background(), reference, "priced against the wrong rate")

		require.NoError(t, err)
		assert.Equal(t, reference+"-reversal", reversal.ExternalReference)
		require.Len(t, reversal.Lines, 2)
		// Sides flipped, accounts and amounts identical.
		assert.Equal(t, receivable.ID, reversal.Lines[0].AccountID)
		assert.Equal(t, int64(11200), reversal.Lines[0].Credit.Amount())
		assert.Equal(t, revenue.ID, reversal.Lines[1].AccountID)
		assert.Equal(t, int64(11200), reversal.Lines[1].Debit.Amount())
	})

	t.Run("returns not found for an unknown reference", func(t *testing.T) {
		accountRepo := new(MockAccountRepository)
		entryRepo := new(MockEntryRepository)
		entryRepo.On("FindByReference", mock.Anything, "rental-missing-activation").Return(nil, shared.ErrNotFound)

		poster := newTestPoster(accountRepo, entryRepo)
		_, err := poster.PostReversal(context.Background(), "rental-missing-activation", "")

		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}
