package models

import (
	"time"

	"github.com/fleetrent/backend/internal/domain/fleet"
	"github.com/fleetrent/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

// VehicleModel is the persistence model for Vehicle
type VehicleModel struct {
	AggregateModel
	PlateNumber     string               `gorm:"type:varchar(20);not null;uniqueIndex"`
	Make            string               `gorm:"type:varchar(50);not null"`
	Model           string               `gorm:"type:varchar(50);not null"`
	ModelYear       int                  `gorm:"not null"`
	DailyRateAmount int64                `gorm:"not null"`
	Currency        valueobject.Currency `gorm:"type:varchar(3);not null"`
	Status          fleet.VehicleStatus  `gorm:"type:varchar(20);not null;index"`
}

// TableName returns the table name for GORM
func (VehicleModel) TableName() string {
	return "vehicles"
}

// ToDomain converts the persistence model to a domain Vehicle.
func (m *VehicleModel) ToDomain() *fleet.Vehicle {
	return &fleet.Vehicle{
		BaseAggregateRoot: m.ToDomainAggregateRoot(),
		PlateNumber:       m.PlateNumber,
		Make:              m.Make,
		Model:             m.Model,
		ModelYear:         m.ModelYear,
		DailyRate:         valueobject.MustNewMoney(m.DailyRateAmount, m.Currency),
		Status:            m.Status,
	}
}

// FromDomain populates the persistence model from a domain Vehicle.
func (m *VehicleModel) FromDomain(v *fleet.Vehicle) {
	m.FromDomainAggregateRoot(v.BaseAggregateRoot)
	m.PlateNumber = v.PlateNumber
	m.Make = v.Make
	m.Model = v.Model
	m.ModelYear = v.ModelYear
	m.DailyRateAmount = v.DailyRate.Amount()
	m.Currency = v.DailyRate.Currency()
	m.Status = v.Status
}

// VehicleModelFromDomain creates a new persistence model from a domain Vehicle.
func VehicleModelFromDomain(v *fleet.Vehicle) *VehicleModel {
	m := &VehicleModel{}
	m.FromDomain(v)
	return m
}

// RentalModel is the persistence model for Rental
type RentalModel struct {
	AggregateModel
	RentalNumber    string               `gorm:"type:varchar(50);not null;uniqueIndex"`
	VehicleID       uuid.UUID            `gorm:"type:uuid;not null;index"`
	CustomerName    string               `gorm:"type:varchar(100);not null"`
	CustomerEmail   string               `gorm:"type:varchar(255);not null"`
	StartDate       time.Time            `gorm:"not null;index"`
	EndDate         time.Time            `gorm:"not null;index"`
	Days            int                  `gorm:"not null"`
	DailyRateAmount int64                `gorm:"not null"`
	TotalAmount     int64                `gorm:"not null"`
	Currency        valueobject.Currency `gorm:"type:varchar(3);not null"`
	Status          fleet.RentalStatus   `gorm:"type:varchar(20);not null;index"`
	ActivatedAt     *time.Time
	CompletedAt     *time.Time
	CancelledAt     *time.Time
	CancelReason    string `gorm:"type:varchar(255)"`
}

// TableName returns the table name for GORM
func (RentalModel) TableName() string {
	return "rentals"
}

// ToDomain converts the persistence model to a domain Rental.
func (m *RentalModel) ToDomain() *fleet.Rental {
	return &fleet.Rental{
		BaseAggregateRoot: m.ToDomainAggregateRoot(),
		RentalNumber:      m.RentalNumber,
		VehicleID:         m.VehicleID,
		CustomerName:      m.CustomerName,
		CustomerEmail:     m.CustomerEmail,
		StartDate:         m.StartDate,
		EndDate:           m.EndDate,
		Days:              m.Days,
		DailyRate:         valueobject.MustNewMoney(m.DailyRateAmount, m.Currency),
		TotalAmount:       valueobject.MustNewMoney(m.TotalAmount, m.Currency),
		Status:            m.Status,
		ActivatedAt:       m.ActivatedAt,
		CompletedAt:       m.CompletedAt,
		CancelledAt:       m.CancelledAt,
		CancelReason:      m.CancelReason,
	}
}

// FromDomain populates the persistence model from a domain Rental.
func (m *RentalModel) FromDomain(r *fleet.Rental) {
	m.FromDomainAggregateRoot(r.BaseAggregateRoot)
	m.RentalNumber = r.RentalNumber
	m.VehicleID = r.VehicleID
	m.CustomerName = r.CustomerName
	m.CustomerEmail = r.CustomerEmail
	m.StartDate = r.StartDate
	m.EndDate = r.EndDate
	m.Days = r.Days
	m.DailyRateAmount = r.DailyRate.Amount()
	m.TotalAmount = r.TotalAmount.Amount()
	m.Currency = r.DailyRate.Currency()
	m.Status = r.Status
	m.ActivatedAt = r.ActivatedAt
	m.CompletedAt = r.CompletedAt
	m.CancelledAt = r.CancelledAt
	m.CancelReason = r.CancelReason
}

// RentalModelFromDomain creates a new persistence model from a domain Rental.
func RentalModelFromDomain(r *fleet.Rental) *RentalModel {
	m := &RentalModel{}
	m.FromDomain(r)
	return m
}
