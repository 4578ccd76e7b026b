package ledger

import (
	"testing"
	"time"

	"github.com/fleetrent/backend/internal/domain/shared"
	"github.com/fleetrent/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func usd(t *testing.T, minor int64) valueobject.Money {
	t.Helper()
	m, err := valueobject.NewMoney(minor, valueobject.USD)
	require.NoError(t, err)
	return m
}

func balancedLines(t *testing.T, minor int64) (uuid.UUID, uuid.UUID, []EntryLine) {
	t.Helper()
	receivable := uuid.New()
	revenue := uuid.New()

	debit, err := NewDebitLine(receivable, usd(t, minor))
	require.NoError(t, err)
	credit, err := NewCreditLine(revenue, usd(t, minor))
	require.NoError(t, err)

	return receivable, revenue, []EntryLine{debit, credit}
}

func TestNewDebitLine(t *testing.T) {
	accountID := uuid.New()
	line, err := NewDebitLine(accountID, usd(t, 2500))
	require.NoError(t, err)

	assert.Equal(t, accountID, line.AccountID)
	assert.Equal(t, BalanceSideDebit, line.Side())
	assert.Equal(t, int64(2500), line.Amount().Amount())
	assert.True(t, line.Credit.IsZero())
}

func TestNewCreditLine(t *testing.T) {
	accountID := uuid.New()
	line, err := NewCreditLine(accountID, usd(t, 2500))
	require.NoError(t, err)

	assert.Equal(t, BalanceSideCredit, line.Side())
	assert.Equal(t, int64(2500), line.Amount().Amount())
	assert.True(t, line.Debit.IsZero())
}

func TestNewLine_Validation(t *testing.T) {
	_, err := NewDebitLine(uuid.Nil, usd(t, 100))
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = NewDebitLine(uuid.New(), usd(t, 0))
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = NewCreditLine(uuid.New(), usd(t, -100))
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestNewEntry(t *testing.T) {
	rentalID := uuid.New()
	receivable, revenue, lines := balancedLines(t, 11200)

	entry, err := NewEntry(
		"rental-"+rentalID.String()+"-activation",
		time.Now(),
		"Rental activation",
		lines,
	)
	require.NoError(t, err)

	assert.Len(t, entry.Lines, 2)
	for _, line := range entry.Lines {
		assert.Equal(t, entry.ID, line.EntryID)
	}
	assert.Equal(t, int64(11200), entry.TotalDebits().Amount())
	assert.Equal(t, int64(11200), entry.TotalCredits().Amount())
	assert.Equal(t, valueobject.USD, entry.Currency())
	assert.Equal(t, receivable, entry.Lines[0].AccountID)
	assert.Equal(t, revenue, entry.Lines[1].AccountID)
}

func TestNewEntry_CopiesLines(t *testing.T) {
	_, _, lines := balancedLines(t, 500)

	entry, err := NewEntry("vehicle-"+uuid.NewString()+"-activation", time.Now(), "", lines)
	require.NoError(t, err)

	// Mutating the caller's slice must not reach the entry.
	lines[0].AccountID = uuid.Nil
	assert.NotEqual(t, uuid.Nil, entry.Lines[0].AccountID)
}

func TestNewEntry_Validation(t *testing.T) {
	_, _, lines := balancedLines(t, 1000)

	t.Run("empty reference", func(t *testing.T) {
		_, err := NewEntry("", time.Now(), "", lines)
		assert.ErrorIs(t, err, shared.ErrValidation)
	})

	t.Run("zero date", func(t *testing.T) {
		_, err := NewEntry("ref-1", time.Time{}, "", lines)
		assert.ErrorIs(t, err, shared.ErrValidation)
	})

	t.Run("single line", func(t *testing.T) {
		_, err := NewEntry("ref-2", time.Now(), "", lines[:1])
		assert.ErrorIs(t, err, shared.ErrValidation)
	})
}

func TestNewEntry_Imbalanced(t *testing.T) {
	debit, err := NewDebitLine(uuid.New(), usd(t, 1000))
	require.NoError(t, err)
	credit, err := NewCreditLine(uuid.New(), usd(t, 900))
	require.NoError(t, err)

	_, err = NewEntry("ref-3", time.Now(), "", []EntryLine{debit, credit})
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrImbalancedEntry)
	assert.NotErrorIs(t, err, shared.ErrValidation)
}

func TestNewEntry_MixedCurrency(t *testing.T) {
	eur, err := valueobject.NewMoney(1000, valueobject.EUR)
	require.NoError(t, err)

	debit, err := NewDebitLine(uuid.New(), usd(t, 1000))
	require.NoError(t, err)
	credit, err := NewCreditLine(uuid.New(), eur)
	require.NoError(t, err)

	_, err = NewEntry("ref-4", time.Now(), "", []EntryLine{debit, credit})
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestNewEntry_SplitLines(t *testing.T) {
	// One debit funded by two credits still balances.
	debit, err := NewDebitLine(uuid.New(), usd(t, 3000))
	require.NoError(t, err)
	creditA, err := NewCreditLine(uuid.New(), usd(t, 1800))
	require.NoError(t, err)
	creditB, err := NewCreditLine(uuid.New(), usd(t, 1200))
	require.NoError(t, err)

	entry, err := NewEntry("ref-5", time.Now(), "Split posting", []EntryLine{debit, creditA, creditB})
	require.NoError(t, err)
	assert.Equal(t, int64(3000), entry.TotalDebits().Amount())
	assert.Equal(t, int64(3000), entry.TotalCredits().Amount())
}

func TestEntry_ValidateRejectsHandAssembledLine(t *testing.T) {
	_, _, lines := balancedLines(t, 700)
	entry, err := NewEntry("ref-6", time.Now(), "", lines)
	require.NoError(t, err)

	// Force a line onto both sides at once.
	entry.Lines[0].Credit = usd(t, 700)
	err = entry.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestEntry_Reversed(t *testing.T) {
	receivable, revenue, lines := balancedLines(t, 11200)
	original, err := NewEntry("rental-abc-activation", time.Now(), "Rental activation", lines)
	require.NoError(t, err)

	reversal, err := original.Reversed("rental-abc-activation-reversal", time.Now(), "booked twice")
	require.NoError(t, err)

	require.Len(t, reversal.Lines, 2)
	assert.Equal(t, receivable, reversal.Lines[0].AccountID)
	assert.Equal(t, BalanceSideCredit, reversal.Lines[0].Side())
	assert.Equal(t, revenue, reversal.Lines[1].AccountID)
	assert.Equal(t, BalanceSideDebit, reversal.Lines[1].Side())
	assert.Equal(t, int64(11200), reversal.TotalDebits().Amount())
	assert.Equal(t, "Reversal of rental-abc-activation: booked twice", reversal.Description)
	assert.NoError(t, reversal.Validate())
}
