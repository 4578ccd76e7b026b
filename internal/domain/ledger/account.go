package ledger

import (
	"fmt"
	"regexp"

	"github.com/fleetrent/backend/internal/domain/shared"
)

// AccountType classifies an account within the accounting equation
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// AllAccountTypes returns every recognized account type
func AllAccountTypes() []AccountType {
	return []AccountType{
		AccountTypeAsset,
		AccountTypeLiability,
		AccountTypeEquity,
		AccountTypeRevenue,
		AccountTypeExpense,
	}
}

// IsValid checks if the account type is one of the closed set
func (t AccountType) IsValid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity,
		AccountTypeRevenue, AccountTypeExpense:
		return true
	}
	return false
}

// String returns the string representation of the account type
func (t AccountType) String() string {
	return string(t)
}

// NormalSide returns the side on which this account type naturally increases:
// assets and expenses grow by debit, everything else by credit.
func (t AccountType) NormalSide() BalanceSide {
	switch t {
	case AccountTypeAsset, AccountTypeExpense:
		return BalanceSideDebit
	default:
		return BalanceSideCredit
	}
}

// BalanceSide is the debit/credit orientation of an account or line
type BalanceSide string

const (
	BalanceSideDebit  BalanceSide = "DEBIT"
	BalanceSideCredit BalanceSide = "CREDIT"
)

// IsValid checks if the balance side is debit or credit
func (s BalanceSide) IsValid() bool {
	return s == BalanceSideDebit || s == BalanceSideCredit
}

// String returns the string representation of the balance side
func (s BalanceSide) String() string {
	return string(s)
}

// Opposite returns the other side
func (s BalanceSide) Opposite() BalanceSide {
	if s == BalanceSideDebit {
		return BalanceSideCredit
	}
	return BalanceSideDebit
}

// accountCodePattern: numeric ledger codes like "1100". Stable identifiers,
// so the format is deliberately strict.
var accountCodePattern = regexp.MustCompile(`^[0-9]{4}$`)

// Account is a node in the chart of accounts. Accounts are created
// administratively, rarely change, and are never deleted once referenced by
// ledger lines — only deactivated.
type Account struct {
	shared.BaseEntity
	Code   string      `json:"code"`
	Name   string      `json:"name"`
	Type   AccountType `json:"type"`
	Active bool        `json:"active"`
}

// NewAccount creates a new active account
func NewAccount(code, name string, accountType AccountType) (*Account, error) {
	if !accountCodePattern.MatchString(code) {
		return nil, shared.NewDomainError(shared.ErrValidation.Code, fmt.Sprintf("Account code %q must be a 4-digit code", code))
	}
	if name == "" {
		return nil, shared.NewDomainError(shared.ErrValidation.Code, "Account name cannot be empty")
	}
	if len(name) > 100 {
		return nil, shared.NewDomainError(shared.ErrValidation.Code, "Account name cannot exceed 100 characters")
	}
	if !accountType.IsValid() {
		return nil, shared.NewDomainError(shared.ErrValidation.Code, fmt.Sprintf("Unknown account type %q", accountType))
	}

	return &Account{
		BaseEntity: shared.NewBaseEntity(),
		Code:       code,
		Name:       name,
		Type:       accountType,
		Active:     true,
	}, nil
}

// NormalSide returns the account's normal balance side, derived from its type
func (a *Account) NormalSide() BalanceSide {
	return a.Type.NormalSide()
}

// Rename changes the display name; the code never changes
func (a *Account) Rename(name string) error {
	if name == "" {
		return shared.NewDomainError(shared.ErrValidation.Code, "Account name cannot be empty")
	}
	if len(name) > 100 {
		return shared.NewDomainError(shared.ErrValidation.Code, "Account name cannot exceed 100 characters")
	}
	a.Name = name
	a.Touch()
	return nil
}

// Deactivate closes the account for new postings. Existing lines keep
// referencing it; historical sums stay intact.
func (a *Account) Deactivate() error {
	if !a.Active {
		return shared.NewDomainError(shared.ErrInvalidState.Code, fmt.Sprintf("Account %s is already inactive", a.Code))
	}
	a.Active = false
	a.Touch()
	return nil
}

// Activate reopens a deactivated account
func (a *Account) Activate() error {
	if a.Active {
		return shared.NewDomainError(shared.ErrInvalidState.Code, fmt.Sprintf("Account %s is already active", a.Code))
	}
	a.Active = true
	a.Touch()
	return nil
}
