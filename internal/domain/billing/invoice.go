package billing

import (
	"fmt"
	"time"

	"github.com/fleetrent/backend/internal/domain/shared"
	"github.com/fleetrent/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

// InvoiceStatus represents the payment state of an invoice
type InvoiceStatus string

const (
	InvoiceStatusIssued  InvoiceStatus = "ISSUED"
	InvoiceStatusPartial InvoiceStatus = "PARTIAL"
	InvoiceStatusPaid    InvoiceStatus = "PAID"
	InvoiceStatusVoid    InvoiceStatus = "VOID"
)

// IsValid checks if the status is a valid InvoiceStatus
func (s InvoiceStatus) IsValid() bool {
	switch s {
	case InvoiceStatusIssued, InvoiceStatusPartial, InvoiceStatusPaid, InvoiceStatusVoid:
		return true
	}
	return false
}

// String returns the string representation
func (s InvoiceStatus) String() string {
	return string(s)
}

// IsTerminal returns true if the invoice can no longer change
func (s InvoiceStatus) IsTerminal() bool {
	return s == InvoiceStatusPaid || s == InvoiceStatusVoid
}

// CanApplyPayment returns true if payments can still be applied
func (s InvoiceStatus) CanApplyPayment() bool {
	return s == InvoiceStatusIssued || s == InvoiceStatusPartial
}

// Invoice tracks what a customer owes for one rental. PaidAmount is the
// operational side of payment reconciliation: every cent recorded here must
// have a matching payment entry in the ledger.
type Invoice struct {
	shared.BaseAggregateRoot
	InvoiceNumber string            `json:"invoice_number"`
	RentalID      uuid.UUID         `json:"rental_id"`
	CustomerName  string            `json:"customer_name"`
	TotalAmount   valueobject.Money `json:"total_amount"`
	PaidAmount    valueobject.Money `json:"paid_amount"`
	Status        InvoiceStatus     `json:"status"`
	IssuedAt      time.Time         `json:"issued_at"`
	PaidAt        *time.Time        `json:"paid_at"`
	VoidedAt      *time.Time        `json:"voided_at"`
	VoidReason    string            `json:"void_reason"`
}

// NewInvoice issues a new invoice for a rental
func NewInvoice(invoiceNumber string, rentalID uuid.UUID, customerName string, totalAmount valueobject.Money) (*Invoice, error) {
	if invoiceNumber == "" {
		return nil, shared.NewDomainError(shared.ErrValidation.Code, "Invoice number cannot be empty")
	}
	if len(invoiceNumber) > 50 {
		return nil, shared.NewDomainError(shared.ErrValidation.Code, "Invoice number cannot exceed 50 characters")
	}
	if rentalID == uuid.Nil {
		return nil, shared.NewDomainError(shared.ErrValidation.Code, "Rental ID cannot be empty")
	}
	if customerName == "" {
		return nil, shared.NewDomainError(shared.ErrValidation.Code, "Customer name cannot be empty")
	}
	if !totalAmount.IsPositive() {
		return nil, shared.NewDomainError(shared.ErrValidation.Code, "Invoice total must be positive")
	}

	return &Invoice{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		InvoiceNumber:     invoiceNumber,
		RentalID:          rentalID,
		CustomerName:      customerName,
		TotalAmount:       totalAmount,
		PaidAmount:        valueobject.Zero(totalAmount.Currency()),
		Status:            InvoiceStatusIssued,
		IssuedAt:          time.Now(),
	}, nil
}

// OutstandingAmount returns what is still owed
func (i *Invoice) OutstandingAmount() valueobject.Money {
	return i.TotalAmount.MustSubtract(i.PaidAmount)
}

// ApplyPayment records a captured payment against the invoice. Over-payment
// is rejected, never clamped.
func (i *Invoice) ApplyPayment(amount valueobject.Money) error {
	if !i.Status.CanApplyPayment() {
		return shared.NewDomainError(shared.ErrInvalidState.Code,
			fmt.Sprintf("Cannot apply payment to invoice %s in %s status", i.InvoiceNumber, i.Status))
	}
	if !amount.IsPositive() {
		return shared.NewDomainError(shared.ErrValidation.Code, "Payment amount must be positive")
	}
	if amount.Currency() != i.TotalAmount.Currency() {
		return shared.NewDomainError(shared.ErrValidation.Code,
			fmt.Sprintf("Payment currency %s does not match invoice currency %s", amount.Currency(), i.TotalAmount.Currency()))
	}

	newPaid, err := i.PaidAmount.Add(amount)
	if err != nil {
		return err
	}
	over, err := newPaid.GreaterThan(i.TotalAmount)
	if err != nil {
		return err
	}
	if over {
		return shared.NewDomainError(shared.ErrValidation.Code,
			fmt.Sprintf("Payment of %s exceeds outstanding %s on invoice %s", amount, i.OutstandingAmount(), i.InvoiceNumber))
	}

	i.PaidAmount = newPaid
	if i.PaidAmount.Equals(i.TotalAmount) {
		now := time.Now()
		i.Status = InvoiceStatusPaid
		i.PaidAt = &now
	} else {
		i.Status = InvoiceStatusPartial
	}
	i.IncrementVersion()
	return nil
}

// Void cancels an invoice that has not collected any payment
func (i *Invoice) Void(reason string) error {
	if i.Status.IsTerminal() {
		return shared.NewDomainError(shared.ErrInvalidState.Code,
			fmt.Sprintf("Cannot void invoice %s in %s status", i.InvoiceNumber, i.Status))
	}
	if i.PaidAmount.IsPositive() {
		return shared.NewDomainError(shared.ErrInvalidState.Code,
			fmt.Sprintf("Cannot void invoice %s with payments applied", i.InvoiceNumber))
	}
	if reason == "" {
		return shared.NewDomainError(shared.ErrValidation.Code, "Void reason is required")
	}
	now := time.Now()
	i.Status = InvoiceStatusVoid
	i.VoidedAt = &now
	i.VoidReason = reason
	i.IncrementVersion()
	return nil
}
