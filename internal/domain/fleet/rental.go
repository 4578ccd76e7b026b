package fleet

import (
	"fmt"
	"time"

	"github.com/fleetrent/backend/internal/domain/shared"
	"github.com/fleetrent/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

// RentalStatus represents the lifecycle state of a rental agreement
type RentalStatus string

const (
	RentalStatusReserved  RentalStatus = "RESERVED"
	RentalStatusActive    RentalStatus = "ACTIVE"
	RentalStatusCompleted RentalStatus = "COMPLETED"
	RentalStatusCancelled RentalStatus = "CANCELLED"
)

// IsValid checks if the status is a valid RentalStatus
func (s RentalStatus) IsValid() bool {
	switch s {
	case RentalStatusReserved, RentalStatusActive, RentalStatusCompleted, RentalStatusCancelled:
		return true
	}
	return false
}

// String returns the string representation
func (s RentalStatus) String() string {
	return string(s)
}

// IsTerminal returns true if the rental can no longer change
func (s RentalStatus) IsTerminal() bool {
	return s == RentalStatusCompleted || s == RentalStatusCancelled
}

// HasFinancialEffect returns true once the rental's revenue has been earned.
// The reconciliation walk only checks rentals in these statuses against the
// ledger.
func (s RentalStatus) HasFinancialEffect() bool {
	return s == RentalStatusActive || s == RentalStatusCompleted
}

// Rental is one rental agreement for one vehicle over a date range. The
// daily rate is snapshotted at reservation time, so later rate changes on the
// vehicle never reprice an existing rental.
type Rental struct {
	shared.BaseAggregateRoot
	RentalNumber  string            `json:"rental_number"`
	VehicleID     uuid.UUID         `json:"vehicle_id"`
	CustomerName  string            `json:"customer_name"`
	CustomerEmail string            `json:"customer_email"`
	StartDate     time.Time         `json:"start_date"`
	EndDate       time.Time         `json:"end_date"`
	Days          int               `json:"days"`
	DailyRate     valueobject.Money `json:"daily_rate"`
	TotalAmount   valueobject.Money `json:"total_amount"`
	Status        RentalStatus      `json:"status"`
	ActivatedAt   *time.Time        `json:"activated_at"`
	CompletedAt   *time.Time        `json:"completed_at"`
	CancelledAt   *time.Time        `json:"cancelled_at"`
	CancelReason  string            `json:"cancel_reason"`
}

// RentalDays converts a date range into billable days. Partial days round up;
// a same-day rental bills one day.
func RentalDays(start, end time.Time) int {
	hours := end.Sub(start).Hours()
	days := int(hours / 24)
	if float64(days*24) < hours {
		days++
	}
	if days < 1 {
		days = 1
	}
	return days
}

// NewRental creates a reserved rental priced at the given daily rate
func NewRental(
	rentalNumber string,
	vehicleID uuid.UUID,
	customerName string,
	customerEmail string,
	startDate, endDate time.Time,
	dailyRate valueobject.Money,
) (*Rental, error) {
	if rentalNumber == "" {
		return nil, shared.NewDomainError(shared.ErrValidation.Code, "Rental number cannot be empty")
	}
	if len(rentalNumber) > 50 {
		return nil, shared.NewDomainError(shared.ErrValidation.Code, "Rental number cannot exceed 50 characters")
	}
	if vehicleID == uuid.Nil {
		return nil, shared.NewDomainError(shared.ErrValidation.Code, "Vehicle ID cannot be empty")
	}
	if customerName == "" {
		return nil, shared.NewDomainError(shared.ErrValidation.Code, "Customer name cannot be empty")
	}
	if startDate.IsZero() || endDate.IsZero() {
		return nil, shared.NewDomainError(shared.ErrValidation.Code, "Rental period cannot be open-ended")
	}
	if !endDate.After(startDate) {
		return nil, shared.NewDomainError(shared.ErrValidation.Code, "Rental end date must be after the start date")
	}
	if !dailyRate.IsPositive() {
		return nil, shared.NewDomainError(shared.ErrValidation.Code, "Daily rate must be positive")
	}

	days := RentalDays(startDate, endDate)
	return &Rental{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		RentalNumber:      rentalNumber,
		VehicleID:         vehicleID,
		CustomerName:      customerName,
		CustomerEmail:     customerEmail,
		StartDate:         startDate,
		EndDate:           endDate,
		Days:              days,
		DailyRate:         dailyRate,
		TotalAmount:       dailyRate.MultiplyByInt(int64(days)),
		Status:            RentalStatusReserved,
	}, nil
}

// Activate starts the rental. Activation is the financial event: the rental
// total becomes earned revenue and must be posted in the same unit of work.
func (r *Rental) Activate() error {
	if r.Status != RentalStatusReserved {
		return shared.NewDomainError(shared.ErrInvalidState.Code,
			fmt.Sprintf("Cannot activate rental %s in %s status", r.RentalNumber, r.Status))
	}
	now := time.Now()
	r.Status = RentalStatusActive
	r.ActivatedAt = &now
	r.IncrementVersion()
	return nil
}

// Complete closes an active rental after the vehicle comes back
func (r *Rental) Complete() error {
	if r.Status != RentalStatusActive {
		return shared.NewDomainError(shared.ErrInvalidState.Code,
			fmt.Sprintf("Cannot complete rental %s in %s status", r.RentalNumber, r.Status))
	}
	now := time.Now()
	r.Status = RentalStatusCompleted
	r.CompletedAt = &now
	r.IncrementVersion()
	return nil
}

// Cancel withdraws a reservation. An active rental cannot be cancelled; its
// revenue is already on the books and would need a reversing entry instead.
func (r *Rental) Cancel(reason string) error {
	if r.Status != RentalStatusReserved {
		return shared.NewDomainError(shared.ErrInvalidState.Code,
			fmt.Sprintf("Cannot cancel rental %s in %s status", r.RentalNumber, r.Status))
	}
	if reason == "" {
		return shared.NewDomainError(shared.ErrValidation.Code, "Cancel reason is required")
	}
	now := time.Now()
	r.Status = RentalStatusCancelled
	r.CancelledAt = &now
	r.CancelReason = reason
	r.IncrementVersion()
	return nil
}
