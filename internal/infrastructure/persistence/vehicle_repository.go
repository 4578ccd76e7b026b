package persistence

import (
	"context"
	"errors"

	"github.com/fleetrent/backend/internal/domain/fleet"
	"github.com/fleetrent/backend/internal/domain/shared"
	"github.com/fleetrent/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormVehicleRepository implements fleet.VehicleRepository using GORM
type GormVehicleRepository struct {
	db *gorm.DB
}

// NewGormVehicleRepository creates a new GormVehicleRepository
func NewGormVehicleRepository(db *gorm.DB) *GormVehicleRepository {
	return &GormVehicleRepository{db: db}
}

// WithTx returns a new repository instance bound to the given transaction
func (r *GormVehicleRepository) WithTx(tx *gorm.DB) *GormVehicleRepository {
	return &GormVehicleRepository{db: tx}
}

// FindByID finds a vehicle by its ID
func (r *GormVehicleRepository) FindByID(ctx context.Context, id uuid.UUID) (*fleet.Vehicle, error) {
	var model models.VehicleModel
	if err := r.db.WithContext(ctx).
		First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByPlate finds a vehicle by plate number
func (r *GormVehicleRepository) FindByPlate(ctx context.Context, plateNumber string) (*fleet.Vehicle, error) {
	var model models.VehicleModel
	if err := r.db.WithContext(ctx).
		Where("plate_number = ?", plateNumber).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAll lists vehicles with filtering
func (r *GormVehicleRepository) FindAll(ctx context.Context, filter fleet.VehicleFilter) ([]fleet.Vehicle, error) {
	var vehicleModels []models.VehicleModel
	query := r.db.WithContext(ctx).Model(&models.VehicleModel{})
	query = r.applyVehicleFilter(query, filter)

	if err := query.Find(&vehicleModels).Error; err != nil {
		return nil, err
	}
	vehicles := make([]fleet.Vehicle, len(vehicleModels))
	for i, model := range vehicleModels {
		vehicles[i] = *model.ToDomain()
	}
	return vehicles, nil
}

// Count counts vehicles matching the filter
func (r *GormVehicleRepository) Count(ctx context.Context, filter fleet.VehicleFilter) (int64, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&models.VehicleModel{})
	query = r.applyVehicleFilterWithoutPagination(query, filter)

	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Save creates or updates a vehicle
func (r *GormVehicleRepository) Save(ctx context.Context, vehicle *fleet.Vehicle) error {
	model := models.VehicleModelFromDomain(vehicle)
	return r.db.WithContext(ctx).Save(model).Error
}

// SaveWithLock saves with optimistic locking
func (r *GormVehicleRepository) SaveWithLock(ctx context.Context, vehicle *fleet.Vehicle) error {
	model := models.VehicleModelFromDomain(vehicle)
	result := r.db.WithContext(ctx).
		Model(model).
		Where("id = ? AND version = ?", vehicle.ID, vehicle.Version-1).
		Updates(model)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.NewDomainError(shared.ErrConflict.Code,
			"The vehicle has been modified by another transaction")
	}
	return nil
}

// ExistsByPlate checks if a plate number is already registered
func (r *GormVehicleRepository) ExistsByPlate(ctx context.Context, plateNumber string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.VehicleModel{}).
		Where("plate_number = ?", plateNumber).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// applyVehicleFilter applies filter options to the query
func (r *GormVehicleRepository) applyVehicleFilter(query *gorm.DB, filter fleet.VehicleFilter) *gorm.DB {
	query = r.applyVehicleFilterWithoutPagination(query, filter)

	if filter.Page > 0 && filter.PageSize > 0 {
		offset := (filter.Page - 1) * filter.PageSize
		query = query.Offset(offset).Limit(filter.PageSize)
	}

	orderBy := ValidateSortField(filter.OrderBy, VehicleSortFields, "created_at")
	query = query.Order(orderBy + " " + ValidateSortOrder(filter.OrderDir))

	return query
}

// applyVehicleFilterWithoutPagination applies filter options without pagination
func (r *GormVehicleRepository) applyVehicleFilterWithoutPagination(query *gorm.DB, filter fleet.VehicleFilter) *gorm.DB {
	if filter.Search != "" {
		searchPattern := "%" + filter.Search + "%"
		query = query.Where("plate_number ILIKE ? OR make ILIKE ? OR model ILIKE ?",
			searchPattern, searchPattern, searchPattern)
	}

	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}

	return query
}

// Ensure GormVehicleRepository implements VehicleRepository
var _ fleet.VehicleRepository = (*GormVehicleRepository)(nil)
