package ledger

import (
	"fmt"
	"time"

	"github.com/fleetrent/backend/internal/domain/shared"
	"github.com/fleetrent/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

// EntryLine is one leg of a journal entry. Exactly one of Debit/Credit is
// strictly positive; the other is exactly zero.
type EntryLine struct {
	ID        uuid.UUID         `json:"id"`
	EntryID   uuid.UUID         `json:"entry_id"`
	AccountID uuid.UUID         `json:"account_id"`
	Debit     valueobject.Money `json:"debit"`
	Credit    valueobject.Money `json:"credit"`
}

// NewDebitLine creates a line debiting the given account
func NewDebitLine(accountID uuid.UUID, amount valueobject.Money) (EntryLine, error) {
	if accountID == uuid.Nil {
		return EntryLine{}, shared.NewDomainError(shared.ErrValidation.Code, "Line account ID cannot be empty")
	}
	if !amount.IsPositive() {
		return EntryLine{}, shared.NewDomainError(shared.ErrValidation.Code, "Debit amount must be strictly positive")
	}
	return EntryLine{
		ID:        uuid.New(),
		AccountID: accountID,
		Debit:     amount,
		Credit:    valueobject.Zero(amount.Currency()),
	}, nil
}

// NewCreditLine creates a line crediting the given account
func NewCreditLine(accountID uuid.UUID, amount valueobject.Money) (EntryLine, error) {
	if accountID == uuid.Nil {
		return EntryLine{}, shared.NewDomainError(shared.ErrValidation.Code, "Line account ID cannot be empty")
	}
	if !amount.IsPositive() {
		return EntryLine{}, shared.NewDomainError(shared.ErrValidation.Code, "Credit amount must be strictly positive")
	}
	return EntryLine{
		ID:        uuid.New(),
		AccountID: accountID,
		Credit:    amount,
		Debit:     valueobject.Zero(amount.Currency()),
	}, nil
}

// Side returns which side of the entry this line sits on
func (l EntryLine) Side() BalanceSide {
	if l.Debit.IsPositive() {
		return BalanceSideDebit
	}
	return BalanceSideCredit
}

// Amount returns the positive amount of the line regardless of side
func (l EntryLine) Amount() valueobject.Money {
	if l.Debit.IsPositive() {
		return l.Debit
	}
	return l.Credit
}

// validate enforces the per-line invariant independent of how the line was
// built, so a hand-assembled line cannot slip past the constructors.
func (l EntryLine) validate() error {
	if l.AccountID == uuid.Nil {
		return shared.NewDomainError(shared.ErrValidation.Code, "Line account ID cannot be empty")
	}
	if l.Debit.IsNegative() || l.Credit.IsNegative() {
		return shared.NewDomainError(shared.ErrValidation.Code, "Line amounts cannot be negative")
	}
	debitSet := l.Debit.IsPositive()
	creditSet := l.Credit.IsPositive()
	if debitSet == creditSet {
		return shared.NewDomainError(shared.ErrValidation.Code, "Exactly one of debit or credit must be strictly positive")
	}
	if l.Debit.Currency() != l.Credit.Currency() {
		return shared.NewDomainError(shared.ErrValidation.Code, "Line debit and credit must share a currency")
	}
	return nil
}

// Entry is one immutable journal entry: a balanced set of lines identified by
// a globally unique external reference. Entries are append-only; a mistake is
// corrected by posting a reversing entry, never by mutating the original.
type Entry struct {
	ID                uuid.UUID   `json:"id"`
	ExternalReference string      `json:"external_reference"`
	EntryDate         time.Time   `json:"entry_date"`
	Description       string      `json:"description"`
	Lines             []EntryLine `json:"lines"`
	CreatedAt         time.Time   `json:"created_at"`
}

// NewEntry creates a balanced journal entry. It rejects, never fixes, an
// imbalanced line set: sum(debits) must equal sum(credits) exactly.
func NewEntry(externalReference string, entryDate time.Time, description string, lines []EntryLine) (*Entry, error) {
	if externalReference == "" {
		return nil, shared.NewDomainError(shared.ErrValidation.Code, "External reference cannot be empty")
	}
	if len(externalReference) > 255 {
		return nil, shared.NewDomainError(shared.ErrValidation.Code, "External reference cannot exceed 255 characters")
	}
	if entryDate.IsZero() {
		return nil, shared.NewDomainError(shared.ErrValidation.Code, "Entry date cannot be zero")
	}
	if len(lines) < 2 {
		return nil, shared.NewDomainError(shared.ErrValidation.Code, "An entry needs at least two lines")
	}

	entry := &Entry{
		ID:                uuid.New(),
		ExternalReference: externalReference,
		EntryDate:         entryDate,
		Description:       description,
		Lines:             make([]EntryLine, len(lines)),
		CreatedAt:         time.Now(),
	}
	copy(entry.Lines, lines)
	for i := range entry.Lines {
		entry.Lines[i].EntryID = entry.ID
	}

	if err := entry.Validate(); err != nil {
		return nil, err
	}
	return entry, nil
}

// Validate re-checks every invariant on the entry. The persistence gate calls
// it again before writing so nothing imbalanced can reach storage even if the
// struct was assembled by hand.
func (e *Entry) Validate() error {
	if len(e.Lines) < 2 {
		return shared.NewDomainError(shared.ErrValidation.Code, "An entry needs at least two lines")
	}

	currency := e.Lines[0].Amount().Currency()
	var debitTotal, creditTotal int64
	for i := range e.Lines {
		if err := e.Lines[i].validate(); err != nil {
			return err
		}
		if e.Lines[i].Amount().Currency() != currency {
			return shared.NewDomainError(shared.ErrValidation.Code, "All lines of an entry must share a currency")
		}
		debitTotal += e.Lines[i].Debit.Amount()
		creditTotal += e.Lines[i].Credit.Amount()
	}

	if debitTotal != creditTotal {
		return shared.NewDomainError(shared.ErrImbalancedEntry.Code,
			fmt.Sprintf("Entry %s does not balance: debits %d, credits %d", e.ExternalReference, debitTotal, creditTotal))
	}
	return nil
}

// Currency returns the currency shared by all lines
func (e *Entry) Currency() valueobject.Currency {
	if len(e.Lines) == 0 {
		return valueobject.DefaultCurrency
	}
	return e.Lines[0].Amount().Currency()
}

// TotalDebits returns the sum of all debit amounts
func (e *Entry) TotalDebits() valueobject.Money {
	total := valueobject.Zero(e.Currency())
	for _, l := range e.Lines {
		total = total.MustAdd(l.Debit)
	}
	return total
}

// TotalCredits returns the sum of all credit amounts
func (e *Entry) TotalCredits() valueobject.Money {
	total := valueobject.Zero(e.Currency())
	for _, l := range e.Lines {
		total = total.MustAdd(l.Credit)
	}
	return total
}

// Reversed builds the correcting entry for this one: every line flips side,
// amounts and accounts stay identical, so the pair nets to zero on every
// account it touches.
func (e *Entry) Reversed(reference string, entryDate time.Time, reason string) (*Entry, error) {
	lines := make([]EntryLine, 0, len(e.Lines))
	for _, l := range e.Lines {
		var (
			flipped EntryLine
			err     error
		)
		if l.Side() == BalanceSideDebit {
			flipped, err = NewCreditLine(l.AccountID, l.Amount())
		} else {
			flipped, err = NewDebitLine(l.AccountID, l.Amount())
		}
		if err != nil {
			return nil, err
		}
		lines = append(lines, flipped)
	}

	description := fmt.Sprintf("Reversal of %s", e.ExternalReference)
	if reason != "" {
		description = fmt.Sprintf("%s: %s", description, reason)
	}
	return NewEntry(reference, entryDate, description, lines)
}
