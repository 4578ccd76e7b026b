package persistence

import (
	"context"
	"errors"

	"github.com/fleetrent/backend/internal/domain/ledger"
	"github.com/fleetrent/backend/internal/domain/shared"
	"github.com/fleetrent/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormReconciliationRunRepository implements ledger.ReconciliationRunRepository using GORM
type GormReconciliationRunRepository struct {
	db *gorm.DB
}

// NewGormReconciliationRunRepository creates a new GormReconciliationRunRepository
func NewGormReconciliationRunRepository(db *gorm.DB) *GormReconciliationRunRepository {
	return &GormReconciliationRunRepository{db: db}
}

// WithTx returns a new repository instance bound to the given transaction
func (r *GormReconciliationRunRepository) WithTx(tx *gorm.DB) *GormReconciliationRunRepository {
	return &GormReconciliationRunRepository{db: tx}
}

// Save persists a finished run
func (r *GormReconciliationRunRepository) Save(ctx context.Context, run *ledger.ReconciliationRun) error {
	model, err := models.ReconciliationRunModelFromDomain(run)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Save(model).Error
}

// FindByID loads a run by its ID
func (r *GormReconciliationRunRepository) FindByID(ctx context.Context, id uuid.UUID) (*ledger.ReconciliationRun, error) {
	var model models.ReconciliationRunModel
	if err := r.db.WithContext(ctx).
		First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain()
}

// FindRecent lists the most recent runs, newest first
func (r *GormReconciliationRunRepository) FindRecent(ctx context.Context, limit int) ([]ledger.ReconciliationRun, error) {
	if limit <= 0 {
		limit = 20
	}
	var runModels []models.ReconciliationRunModel
	if err := r.db.WithContext(ctx).
		Order("started_at DESC").
		Limit(limit).
		Find(&runModels).Error; err != nil {
		return nil, err
	}
	runs := make([]ledger.ReconciliationRun, len(runModels))
	for i, model := range runModels {
		run, err := model.ToDomain()
		if err != nil {
			return nil, err
		}
		runs[i] = *run
	}
	return runs, nil
}

// Ensure GormReconciliationRunRepository implements ReconciliationRunRepository
var _ ledger.ReconciliationRunRepository = (*GormReconciliationRunRepository)(nil)
