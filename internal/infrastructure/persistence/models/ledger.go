package models

import (
	"time"

	"github.com/fleetrent/backend/internal/domain/ledger"
	"github.com/fleetrent/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

// AccountModel is the persistence model for chart-of-accounts entries.
type AccountModel struct {
	BaseModel
	Code   string             `gorm:"type:varchar(4);not null;uniqueIndex"`
	Name   string             `gorm:"type:varchar(100);not null"`
	Type   ledger.AccountType `gorm:"type:varchar(20);not null;index"`
	Active bool               `gorm:"not null;default:true"`
}

// TableName returns the table name for GORM
func (AccountModel) TableName() string {
	return "accounts"
}

// ToDomain converts the persistence model to a domain Account.
func (m *AccountModel) ToDomain() *ledger.Account {
	return &ledger.Account{
		BaseEntity: m.BaseModel.ToDomain(),
		Code:       m.Code,
		Name:       m.Name,
		Type:       m.Type,
		Active:     m.Active,
	}
}

// FromDomain populates the persistence model from a domain Account.
func (m *AccountModel) FromDomain(a *ledger.Account) {
	m.FromDomainBaseEntity(a.BaseEntity)
	m.Code = a.Code
	m.Name = a.Name
	m.Type = a.Type
	m.Active = a.Active
}

// AccountModelFromDomain creates a new persistence model from a domain Account.
func AccountModelFromDomain(a *ledger.Account) *AccountModel {
	m := &AccountModel{}
	m.FromDomain(a)
	return m
}

// LedgerEntryModel is the persistence model for journal entries. Rows are
// append-only: no UpdatedAt, no soft delete, and the repository never issues
// UPDATE or DELETE against this table.
type LedgerEntryModel struct {
	ID                uuid.UUID             `gorm:"type:uuid;primary_key"`
	ExternalReference string                `gorm:"type:varchar(255);not null;uniqueIndex"`
	EntryDate         time.Time             `gorm:"not null;index"`
	Description       string                `gorm:"type:text"`
	Currency          valueobject.Currency  `gorm:"type:varchar(3);not null"`
	Lines             []LedgerEntryLineModel `gorm:"foreignKey:EntryID;references:ID"`
	CreatedAt         time.Time             `gorm:"not null"`
}

// TableName returns the table name for GORM
func (LedgerEntryModel) TableName() string {
	return "ledger_entries"
}

// LedgerEntryLineModel is the persistence model for one entry leg. Amounts
// are integer minor units; exactly one of debit/credit is positive, which the
// schema also enforces with a CHECK constraint.
type LedgerEntryLineModel struct {
	ID           uuid.UUID `gorm:"type:uuid;primary_key"`
	EntryID      uuid.UUID `gorm:"type:uuid;not null;index"`
	AccountID    uuid.UUID `gorm:"type:uuid;not null;index"`
	DebitAmount  int64     `gorm:"not null;default:0"`
	CreditAmount int64     `gorm:"not null;default:0"`
}

// TableName returns the table name for GORM
func (LedgerEntryLineModel) TableName() string {
	return "ledger_entry_lines"
}

// ToDomain converts the persistence model to a domain Entry.
func (m *LedgerEntryModel) ToDomain() *ledger.Entry {
	lines := make([]ledger.EntryLine, len(m.Lines))
	for i, lm := range m.Lines {
		lines[i] = ledger.EntryLine{
			ID:        lm.ID,
			EntryID:   lm.EntryID,
			AccountID: lm.AccountID,
			Debit:     valueobject.MustNewMoney(lm.DebitAmount, m.Currency),
			Credit:    valueobject.MustNewMoney(lm.CreditAmount, m.Currency),
		}
	}
	return &ledger.Entry{
		ID:                m.ID,
		ExternalReference: m.ExternalReference,
		EntryDate:         m.EntryDate,
		Description:       m.Description,
		Lines:             lines,
		CreatedAt:         m.CreatedAt,
	}
}

// FromDomain populates the persistence model from a domain Entry.
func (m *LedgerEntryModel) FromDomain(e *ledger.Entry) {
	m.ID = e.ID
	m.ExternalReference = e.ExternalReference
	m.EntryDate = e.EntryDate
	m.Description = e.Description
	m.Currency = e.Currency()
	m.CreatedAt = e.CreatedAt
	m.Lines = make([]LedgerEntryLineModel, len(e.Lines))
	for i, l := range e.Lines {
		m.Lines[i] = LedgerEntryLineModel{
			ID:           l.ID,
			EntryID:      l.EntryID,
			AccountID:    l.AccountID,
			DebitAmount:  l.Debit.Amount(),
			CreditAmount: l.Credit.Amount(),
		}
	}
}

// LedgerEntryModelFromDomain creates a new persistence model from a domain Entry.
func LedgerEntryModelFromDomain(e *ledger.Entry) *LedgerEntryModel {
	m := &LedgerEntryModel{}
	m.FromDomain(e)
	return m
}
