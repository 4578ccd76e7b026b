package fleet

import (
	"fmt"
	"time"

	"github.com/fleetrent/backend/internal/domain/shared"
	"github.com/fleetrent/backend/internal/domain/shared/valueobject"
)

// VehicleStatus represents the lifecycle state of a fleet vehicle
type VehicleStatus string

const (
	VehicleStatusAvailable     VehicleStatus = "AVAILABLE"
	VehicleStatusReserved      VehicleStatus = "RESERVED"
	VehicleStatusRented        VehicleStatus = "RENTED"
	VehicleStatusInMaintenance VehicleStatus = "IN_MAINTENANCE"
	VehicleStatusRetired       VehicleStatus = "RETIRED"
)

// IsValid checks if the status is a valid VehicleStatus
func (s VehicleStatus) IsValid() bool {
	switch s {
	case VehicleStatusAvailable, VehicleStatusReserved, VehicleStatusRented,
		VehicleStatusInMaintenance, VehicleStatusRetired:
		return true
	}
	return false
}

// String returns the string representation
func (s VehicleStatus) String() string {
	return string(s)
}

// IsTerminal returns true if no further transitions are allowed
func (s VehicleStatus) IsTerminal() bool {
	return s == VehicleStatusRetired
}

// CanReserve returns true if the vehicle can be reserved in this status
func (s VehicleStatus) CanReserve() bool {
	return s == VehicleStatusAvailable
}

// Vehicle is a rentable fleet vehicle. Status transitions follow the rental
// lifecycle; the daily rate can change at any time and only affects rentals
// reserved afterwards (each rental snapshots the rate it was priced at).
type Vehicle struct {
	shared.BaseAggregateRoot
	PlateNumber string            `json:"plate_number"`
	Make        string            `json:"make"`
	Model       string            `json:"model"`
	ModelYear   int               `json:"model_year"`
	DailyRate   valueobject.Money `json:"daily_rate"`
	Status      VehicleStatus     `json:"status"`
}

// NewVehicle creates a new available vehicle
func NewVehicle(plateNumber, vehicleMake, model string, modelYear int, dailyRate valueobject.Money) (*Vehicle, error) {
	if plateNumber == "" {
		return nil, shared.NewDomainError(shared.ErrValidation.Code, "Plate number cannot be empty")
	}
	if len(plateNumber) > 20 {
		return nil, shared.NewDomainError(shared.ErrValidation.Code, "Plate number cannot exceed 20 characters")
	}
	if vehicleMake == "" || model == "" {
		return nil, shared.NewDomainError(shared.ErrValidation.Code, "Vehicle make and model cannot be empty")
	}
	if modelYear < 1990 || modelYear > time.Now().Year()+1 {
		return nil, shared.NewDomainError(shared.ErrValidation.Code, fmt.Sprintf("Model year %d is out of range", modelYear))
	}
	if !dailyRate.IsPositive() {
		return nil, shared.NewDomainError(shared.ErrValidation.Code, "Daily rate must be positive")
	}

	return &Vehicle{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		PlateNumber:       plateNumber,
		Make:              vehicleMake,
		Model:             model,
		ModelYear:         modelYear,
		DailyRate:         dailyRate,
		Status:            VehicleStatusAvailable,
	}, nil
}

// ChangeDailyRate sets a new daily rate for future rentals
func (v *Vehicle) ChangeDailyRate(rate valueobject.Money) error {
	if v.Status.IsTerminal() {
		return shared.NewDomainError(shared.ErrInvalidState.Code, "Cannot change the rate of a retired vehicle")
	}
	if !rate.IsPositive() {
		return shared.NewDomainError(shared.ErrValidation.Code, "Daily rate must be positive")
	}
	if rate.Currency() != v.DailyRate.Currency() {
		return shared.NewDomainError(shared.ErrValidation.Code,
			fmt.Sprintf("Rate currency %s does not match vehicle currency %s", rate.Currency(), v.DailyRate.Currency()))
	}
	v.DailyRate = rate
	v.IncrementVersion()
	return nil
}

// Reserve marks the vehicle as held for an upcoming rental
func (v *Vehicle) Reserve() error {
	if !v.Status.CanReserve() {
		return shared.NewDomainError(shared.ErrInvalidState.Code,
			fmt.Sprintf("Cannot reserve vehicle %s in %s status", v.PlateNumber, v.Status))
	}
	v.Status = VehicleStatusReserved
	v.IncrementVersion()
	return nil
}

// ReleaseReservation puts a reserved vehicle back on the lot
func (v *Vehicle) ReleaseReservation() error {
	if v.Status != VehicleStatusReserved {
		return shared.NewDomainError(shared.ErrInvalidState.Code,
			fmt.Sprintf("Cannot release vehicle %s in %s status", v.PlateNumber, v.Status))
	}
	v.Status = VehicleStatusAvailable
	v.IncrementVersion()
	return nil
}

// HandOver gives a reserved vehicle to the customer
func (v *Vehicle) HandOver() error {
	if v.Status != VehicleStatusReserved {
		return shared.NewDomainError(shared.ErrInvalidState.Code,
			fmt.Sprintf("Cannot hand over vehicle %s in %s status", v.PlateNumber, v.Status))
	}
	v.Status = VehicleStatusRented
	v.IncrementVersion()
	return nil
}

// Return takes the vehicle back at the end of a rental
func (v *Vehicle) Return() error {
	if v.Status != VehicleStatusRented {
		return shared.NewDomainError(shared.ErrInvalidState.Code,
			fmt.Sprintf("Cannot return vehicle %s in %s status", v.PlateNumber, v.Status))
	}
	v.Status = VehicleStatusAvailable
	v.IncrementVersion()
	return nil
}

// SendToMaintenance takes an available vehicle off the lot
func (v *Vehicle) SendToMaintenance() error {
	if v.Status != VehicleStatusAvailable {
		return shared.NewDomainError(shared.ErrInvalidState.Code,
			fmt.Sprintf("Cannot send vehicle %s to maintenance in %s status", v.PlateNumber, v.Status))
	}
	v.Status = VehicleStatusInMaintenance
	v.IncrementVersion()
	return nil
}

// ReturnFromMaintenance puts the vehicle back on the lot
func (v *Vehicle) ReturnFromMaintenance() error {
	if v.Status != VehicleStatusInMaintenance {
		return shared.NewDomainError(shared.ErrInvalidState.Code,
			fmt.Sprintf("Vehicle %s is not in maintenance", v.PlateNumber))
	}
	v.Status = VehicleStatusAvailable
	v.IncrementVersion()
	return nil
}

// Retire permanently removes the vehicle from the fleet. Only idle vehicles
// can be retired.
func (v *Vehicle) Retire() error {
	if v.Status != VehicleStatusAvailable && v.Status != VehicleStatusInMaintenance {
		return shared.NewDomainError(shared.ErrInvalidState.Code,
			fmt.Sprintf("Cannot retire vehicle %s in %s status", v.PlateNumber, v.Status))
	}
	v.Status = VehicleStatusRetired
	v.IncrementVersion()
	return nil
}
