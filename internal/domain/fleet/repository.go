package fleet

import (
	"context"
	"time"

	"github.com/fleetrent/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// VehicleFilter defines filtering options for vehicle queries
type VehicleFilter struct {
	shared.Filter
	Status *VehicleStatus // Filter by status
}

// RentalFilter defines filtering options for rental queries
type RentalFilter struct {
	shared.Filter
	VehicleID *uuid.UUID    // Filter by vehicle
	Status    *RentalStatus // Filter by status
	FromDate  *time.Time    // Filter by start date range
	ToDate    *time.Time    // Filter by end date range
}

// VehicleRepository defines the interface for vehicle persistence
type VehicleRepository interface {
	// FindByID finds a vehicle by ID
	FindByID(ctx context.Context, id uuid.UUID) (*Vehicle, error)

	// FindByPlate finds a vehicle by plate number
	FindByPlate(ctx context.Context, plateNumber string) (*Vehicle, error)

	// FindAll lists vehicles with filtering
	FindAll(ctx context.Context, filter VehicleFilter) ([]Vehicle, error)

	// Count counts vehicles matching the filter
	Count(ctx context.Context, filter VehicleFilter) (int64, error)

	// Save creates or updates a vehicle
	Save(ctx context.Context, vehicle *Vehicle) error

	// SaveWithLock saves with optimistic locking (version check)
	SaveWithLock(ctx context.Context, vehicle *Vehicle) error

	// ExistsByPlate checks if a plate number is already registered
	ExistsByPlate(ctx context.Context, plateNumber string) (bool, error)
}

// RentalRepository defines the interface for rental persistence
type RentalRepository interface {
	// FindByID finds a rental by ID
	FindByID(ctx context.Context, id uuid.UUID) (*Rental, error)

	// FindByNumber finds a rental by its business number
	FindByNumber(ctx context.Context, rentalNumber string) (*Rental, error)

	// FindAll lists rentals with filtering
	FindAll(ctx context.Context, filter RentalFilter) ([]Rental, error)

	// Count counts rentals matching the filter
	Count(ctx context.Context, filter RentalFilter) (int64, error)

	// FindOverlapping returns reserved or active rentals of the vehicle whose
	// period intersects [from, to). Callers hold the vehicle lock while
	// checking, otherwise two reservations can both see an empty result.
	FindOverlapping(ctx context.Context, vehicleID uuid.UUID, from, to time.Time) ([]Rental, error)

	// FindAllByStatuses streams rentals in the given statuses, oldest first,
	// for the reconciliation walk
	FindAllByStatuses(ctx context.Context, statuses []RentalStatus, filter shared.Filter) ([]Rental, error)

	// Save creates or updates a rental
	Save(ctx context.Context, rental *Rental) error

	// SaveWithLock saves with optimistic locking (version check)
	SaveWithLock(ctx context.Context, rental *Rental) error

	// GenerateRentalNumber generates a unique rental number
	GenerateRentalNumber(ctx context.Context) (string, error)
}
