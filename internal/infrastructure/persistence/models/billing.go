package models

import (
	"time"

	"github.com/fleetrent/backend/internal/domain/billing"
	"github.com/fleetrent/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

// InvoiceModel is the persistence model for Invoice
type InvoiceModel struct {
	AggregateModel
	InvoiceNumber string               `gorm:"type:varchar(50);not null;uniqueIndex"`
	RentalID      uuid.UUID            `gorm:"type:uuid;not null;index"`
	CustomerName  string               `gorm:"type:varchar(100);not null"`
	TotalAmount   int64                `gorm:"not null"`
	PaidAmount    int64                `gorm:"not null;default:0"`
	Currency      valueobject.Currency `gorm:"type:varchar(3);not null"`
	Status        billing.InvoiceStatus `gorm:"type:varchar(20);not null;index"`
	IssuedAt      time.Time            `gorm:"not null"`
	PaidAt        *time.Time
	VoidedAt      *time.Time
	VoidReason    string `gorm:"type:varchar(255)"`
}

// TableName returns the table name for GORM
func (InvoiceModel) TableName() string {
	return "invoices"
}

// ToDomain converts the persistence model to a domain Invoice.
func (m *InvoiceModel) ToDomain() *billing.Invoice {
	return &billing.Invoice{
		BaseAggregateRoot: m.ToDomainAggregateRoot(),
		InvoiceNumber:     m.InvoiceNumber,
		RentalID:          m.RentalID,
		CustomerName:      m.CustomerName,
		TotalAmount:       valueobject.MustNewMoney(m.TotalAmount, m.Currency),
		PaidAmount:        valueobject.MustNewMoney(m.PaidAmount, m.Currency),
		Status:            m.Status,
		IssuedAt:          m.IssuedAt,
		PaidAt:            m.PaidAt,
		VoidedAt:          m.VoidedAt,
		VoidReason:        m.VoidReason,
	}
}

// FromDomain populates the persistence model from a domain Invoice.
func (m *InvoiceModel) FromDomain(inv *billing.Invoice) {
	m.FromDomainAggregateRoot(inv.BaseAggregateRoot)
	m.InvoiceNumber = inv.InvoiceNumber
	m.RentalID = inv.RentalID
	m.CustomerName = inv.CustomerName
	m.TotalAmount = inv.TotalAmount.Amount()
	m.PaidAmount = inv.PaidAmount.Amount()
	m.Currency = inv.TotalAmount.Currency()
	m.Status = inv.Status
	m.IssuedAt = inv.IssuedAt
	m.PaidAt = inv.PaidAt
	m.VoidedAt = inv.VoidedAt
	m.VoidReason = inv.VoidReason
}

// InvoiceModelFromDomain creates a new persistence model from a domain Invoice.
func InvoiceModelFromDomain(inv *billing.Invoice) *InvoiceModel {
	m := &InvoiceModel{}
	m.FromDomain(inv)
	return m
}
