package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fleetrent/backend/internal/domain/fleet"
	"github.com/fleetrent/backend/internal/domain/shared"
	"github.com/fleetrent/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormRentalRepository implements fleet.RentalRepository using GORM
type GormRentalRepository struct {
	db *gorm.DB
}

// NewGormRentalRepository creates a new GormRentalRepository
func NewGormRentalRepository(db *gorm.DB) *GormRentalRepository {
	return &GormRentalRepository{db: db}
}

// WithTx returns a new repository instance bound to the given transaction
func (r *GormRentalRepository) WithTx(tx *gorm.DB) *GormRentalRepository {
	return &GormRentalRepository{db: tx}
}

// FindByID finds a rental by its ID
func (r *GormRentalRepository) FindByID(ctx context.Context, id uuid.UUID) (*fleet.Rental, error) {
	var model models.RentalModel
	if err := r.db.WithContext(ctx).
		First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByNumber finds a rental by its business number
func (r *GormRentalRepository) FindByNumber(ctx context.Context, rentalNumber string) (*fleet.Rental, error) {
	var model models.RentalModel
	if err := r.db.WithContext(ctx).
		Where("rental_number = ?", rentalNumber).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAll lists rentals with filtering
func (r *GormRentalRepository) FindAll(ctx context.Context, filter fleet.RentalFilter) ([]fleet.Rental, error) {
	var rentalModels []models.RentalModel
	query := r.db.WithContext(ctx).Model(&models.RentalModel{})
	query = r.applyRentalFilter(query, filter)

	if err := query.Find(&rentalModels).Error; err != nil {
		return nil, err
	}
	rentals := make([]fleet.Rental, len(rentalModels))
	for i, model := range rentalModels {
		rentals[i] = *model.ToDomain()
	}
	return rentals, nil
}

// Count counts rentals matching the filter
func (r *GormRentalRepository) Count(ctx context.Context, filter fleet.RentalFilter) (int64, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&models.RentalModel{})
	query = r.applyRentalFilterWithoutPagination(query, filter)

	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// FindOverlapping returns reserved or active rentals of the vehicle whose
// period intersects [from, to)
func (r *GormRentalRepository) FindOverlapping(ctx context.Context, vehicleID uuid.UUID, from, to time.Time) ([]fleet.Rental, error) {
	var rentalModels []models.RentalModel
	if err := r.db.WithContext(ctx).
		Where("vehicle_id = ? AND status IN ? AND start_date < ? AND end_date > ?",
			vehicleID,
			[]fleet.RentalStatus{fleet.RentalStatusReserved, fleet.RentalStatusActive},
			to, from).
		Order("start_date ASC").
		Find(&rentalModels).Error; err != nil {
		return nil, err
	}
	rentals := make([]fleet.Rental, len(rentalModels))
	for i, model := range rentalModels {
		rentals[i] = *model.ToDomain()
	}
	return rentals, nil
}

// FindAllByStatuses streams rentals in the given statuses, oldest first
func (r *GormRentalRepository) FindAllByStatuses(ctx context.Context, statuses []fleet.RentalStatus, filter shared.Filter) ([]fleet.Rental, error) {
	var rentalModels []models.RentalModel
	query := r.db.WithContext(ctx).
		Model(&models.RentalModel{}).
		Where("status IN ?", statuses).
		Order("created_at ASC")

	if filter.Page > 0 && filter.PageSize > 0 {
		offset := (filter.Page - 1) * filter.PageSize
		query = query.Offset(offset).Limit(filter.PageSize)
	}

	if err := query.Find(&rentalModels).Error; err != nil {
		return nil, err
	}
	rentals := make([]fleet.Rental, len(rentalModels))
	for i, model := range rentalModels {
		rentals[i] = *model.ToDomain()
	}
	return rentals, nil
}

// Save creates or updates a rental
func (r *GormRentalRepository) Save(ctx context.Context, rental *fleet.Rental) error {
	model := models.RentalModelFromDomain(rental)
	return r.db.WithContext(ctx).Save(model).Error
}

// SaveWithLock saves with optimistic locking
func (r *GormRentalRepository) SaveWithLock(ctx context.Context, rental *fleet.Rental) error {
	model := models.RentalModelFromDomain(rental)
	result := r.db.WithContext(ctx).
		Model(model).
		Where("id = ? AND version = ?", rental.ID, rental.Version-1).
		Updates(model)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.NewDomainError(shared.ErrConflict.Code,
			"The rental has been modified by another transaction")
	}
	return nil
}

// GenerateRentalNumber generates a unique rental number
func (r *GormRentalRepository) GenerateRentalNumber(ctx context.Context) (string, error) {
	// Format: RNT-YYYYMMDD-XXXXX
	date := time.Now().Format("20060102")
	prefix := fmt.Sprintf("RNT-%s-", date)

	// Find the highest number for today
	var maxNumber string
	if err := r.db.WithContext(ctx).
		Model(&models.RentalModel{}).
		Select("rental_number").
		Where("rental_number LIKE ?", prefix+"%").
		Order("rental_number DESC").
		Limit(1).
		Pluck("rental_number", &maxNumber).Error; err != nil {
		return "", err
	}

	var nextNum int
	if maxNumber != "" {
		parts := strings.Split(maxNumber, "-")
		if len(parts) == 3 {
			fmt.Sscanf(parts[2], "%d", &nextNum)
		}
	}
	nextNum++

	return fmt.Sprintf("%s%05d", prefix, nextNum), nil
}

// applyRentalFilter applies filter options to the query
func (r *GormRentalRepository) applyRentalFilter(query *gorm.DB, filter fleet.RentalFilter) *gorm.DB {
	query = r.applyRentalFilterWithoutPagination(query, filter)

	if filter.Page > 0 && filter.PageSize > 0 {
		offset := (filter.Page - 1) * filter.PageSize
		query = query.Offset(offset).Limit(filter.PageSize)
	}

	orderBy := ValidateSortField(filter.OrderBy, RentalSortFields, "created_at")
	query = query.Order(orderBy + " " + ValidateSortOrder(filter.OrderDir))

	return query
}

// applyRentalFilterWithoutPagination applies filter options without pagination
func (r *GormRentalRepository) applyRentalFilterWithoutPagination(query *gorm.DB, filter fleet.RentalFilter) *gorm.DB {
	if filter.Search != "" {
		searchPattern := "%" + filter.Search + "%"
		query = query.Where("rental_number ILIKE ? OR customer_name ILIKE ? OR customer_email ILIKE ?",
			searchPattern, searchPattern, searchPattern)
	}

	if filter.VehicleID != nil {
		query = query.Where("vehicle_id = ?", *filter.VehicleID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.FromDate != nil {
		query = query.Where("start_date >= ?", *filter.FromDate)
	}
	if filter.ToDate != nil {
		query = query.Where("start_date <= ?", *filter.ToDate)
	}

	return query
}

// Ensure GormRentalRepository implements RentalRepository
var _ fleet.RentalRepository = (*GormRentalRepository)(nil)
