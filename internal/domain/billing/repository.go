package billing

import (
	"context"

	"github.com/fleetrent/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// InvoiceFilter defines filtering options for invoice queries
type InvoiceFilter struct {
	shared.Filter
	RentalID *uuid.UUID     // Filter by rental
	Status   *InvoiceStatus // Filter by status
}

// InvoiceRepository defines the interface for invoice persistence
type InvoiceRepository interface {
	// FindByID finds an invoice by ID
	FindByID(ctx context.Context, id uuid.UUID) (*Invoice, error)

	// FindByNumber finds an invoice by its business number
	FindByNumber(ctx context.Context, invoiceNumber string) (*Invoice, error)

	// FindByRental finds the invoice issued for a rental
	FindByRental(ctx context.Context, rentalID uuid.UUID) (*Invoice, error)

	// FindAll lists invoices with filtering; the reconciliation walk pages
	// through every non-void invoice with it
	FindAll(ctx context.Context, filter InvoiceFilter) ([]Invoice, error)

	// Count counts invoices matching the filter
	Count(ctx context.Context, filter InvoiceFilter) (int64, error)

	// Save creates or updates an invoice
	Save(ctx context.Context, invoice *Invoice) error

	// SaveWithLock saves with optimistic locking (version check)
	SaveWithLock(ctx context.Context, invoice *Invoice) error

	// SumOutstanding returns the total still owed across open invoices, in
	// minor units
	SumOutstanding(ctx context.Context) (int64, error)

	// GenerateInvoiceNumber generates a unique invoice number
	GenerateInvoiceNumber(ctx context.Context) (string, error)
}
