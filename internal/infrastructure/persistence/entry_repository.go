package persistence

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/fleetrent/backend/internal/domain/ledger"
	"github.com/fleetrent/backend/internal/domain/shared"
	"github.com/fleetrent/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormEntryRepository implements ledger.EntryRepository using GORM.
// The journal is append-only: this repository never issues UPDATE or DELETE
// against ledger_entries or ledger_entry_lines.
type GormEntryRepository struct {
	db *gorm.DB
}

// NewGormEntryRepository creates a new GormEntryRepository
func NewGormEntryRepository(db *gorm.DB) *GormEntryRepository {
	return &GormEntryRepository{db: db}
}

// WithTx returns a new repository instance bound to the given transaction
func (r *GormEntryRepository) WithTx(tx *gorm.DB) *GormEntryRepository {
	return &GormEntryRepository{db: tx}
}

// Post appends a balanced entry. The external reference carries the
// idempotency guarantee: the first insert wins, and any replay gets the
// stored original back with a nil error. The insert claims the reference
// with ON CONFLICT DO NOTHING before the lines are written, so a replay
// can never leave orphan lines behind.
func (r *GormEntryRepository) Post(ctx context.Context, entry *ledger.Entry) (*ledger.Entry, error) {
	if err := entry.Validate(); err != nil {
		return nil, err
	}

	model := models.LedgerEntryModelFromDomain(entry)
	lines := model.Lines
	model.Lines = nil

	var stored *ledger.Entry
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "external_reference"}},
				DoNothing: true,
			}).
			Create(model)
		if result.Error != nil {
			return result.Error
		}

		if result.RowsAffected == 0 {
			// Reference already claimed by an earlier post. Return that
			// entry; the attempted one is discarded entirely.
			var existing models.LedgerEntryModel
			if err := tx.
				Preload("Lines").
				Where("external_reference = ?", entry.ExternalReference).
				First(&existing).Error; err != nil {
				return err
			}
			stored = existing.ToDomain()
			return nil
		}

		if err := tx.Create(&lines).Error; err != nil {
			return err
		}
		model.Lines = lines
		stored = model.ToDomain()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// FindByID loads an entry with its lines
func (r *GormEntryRepository) FindByID(ctx context.Context, id uuid.UUID) (*ledger.Entry, error) {
	var model models.LedgerEntryModel
	if err := r.db.WithContext(ctx).
		Preload("Lines").
		First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByReference loads an entry by its external reference
func (r *GormEntryRepository) FindByReference(ctx context.Context, reference string) (*ledger.Entry, error) {
	var model models.LedgerEntryModel
	if err := r.db.WithContext(ctx).
		Preload("Lines").
		Where("external_reference = ?", reference).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAll lists entries with filtering, newest first
func (r *GormEntryRepository) FindAll(ctx context.Context, filter ledger.EntryFilter) ([]ledger.Entry, error) {
	var entryModels []models.LedgerEntryModel
	query := r.db.WithContext(ctx).Model(&models.LedgerEntryModel{}).
		Preload("Lines")
	query = r.applyEntryFilter(query, filter)

	if err := query.Find(&entryModels).Error; err != nil {
		return nil, err
	}
	entries := make([]ledger.Entry, len(entryModels))
	for i, model := range entryModels {
		entries[i] = *model.ToDomain()
	}
	return entries, nil
}

// Count counts entries matching the filter
func (r *GormEntryRepository) Count(ctx context.Context, filter ledger.EntryFilter) (int64, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&models.LedgerEntryModel{})
	query = r.applyEntryFilterWithoutPagination(query, filter)

	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// SumForAccount returns the account's balance in minor units as of the given
// time, sign-adjusted to the account's normal side.
func (r *GormEntryRepository) SumForAccount(ctx context.Context, accountID uuid.UUID, asOf time.Time) (int64, error) {
	var account models.AccountModel
	if err := r.db.WithContext(ctx).
		First(&account, "id = ?", accountID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, shared.ErrNotFound
		}
		return 0, err
	}

	var result struct {
		Total int64
	}
	if err := r.db.WithContext(ctx).
		Model(&models.LedgerEntryLineModel{}).
		Select("COALESCE(SUM(ledger_entry_lines.debit_amount - ledger_entry_lines.credit_amount), 0) as total").
		Joins("JOIN ledger_entries ON ledger_entries.id = ledger_entry_lines.entry_id").
		Where("ledger_entry_lines.account_id = ? AND ledger_entries.entry_date <= ?", accountID, asOf).
		Scan(&result).Error; err != nil {
		return 0, err
	}

	if account.Type.NormalSide() == ledger.BalanceSideCredit {
		return -result.Total, nil
	}
	return result.Total, nil
}

// SumForReferencePrefix returns the normal-side-adjusted sum in minor units
// over all lines on the account whose entry reference equals the prefix or
// extends it past a delimiter. The delimiter requirement keeps
// "rental-X-activation" from matching "rental-X-activation2".
func (r *GormEntryRepository) SumForReferencePrefix(ctx context.Context, prefix string, accountID uuid.UUID) (int64, error) {
	if prefix == "" {
		return 0, shared.NewDomainError(shared.ErrValidation.Code, "Reference prefix cannot be empty")
	}

	var account models.AccountModel
	if err := r.db.WithContext(ctx).
		First(&account, "id = ?", accountID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, shared.ErrNotFound
		}
		return 0, err
	}

	var result struct {
		Total int64
	}
	if err := r.db.WithContext(ctx).
		Model(&models.LedgerEntryLineModel{}).
		Select("COALESCE(SUM(ledger_entry_lines.debit_amount - ledger_entry_lines.credit_amount), 0) as total").
		Joins("JOIN ledger_entries ON ledger_entries.id = ledger_entry_lines.entry_id").
		Where("ledger_entry_lines.account_id = ?", accountID).
		Where("ledger_entries.external_reference = ? OR ledger_entries.external_reference LIKE ?",
			prefix, escapeLikePattern(prefix)+"-%").
		Scan(&result).Error; err != nil {
		return 0, err
	}

	if account.Type.NormalSide() == ledger.BalanceSideCredit {
		return -result.Total, nil
	}
	return result.Total, nil
}

// applyEntryFilter applies filter options to the query
func (r *GormEntryRepository) applyEntryFilter(query *gorm.DB, filter ledger.EntryFilter) *gorm.DB {
	query = r.applyEntryFilterWithoutPagination(query, filter)

	if filter.Page > 0 && filter.PageSize > 0 {
		offset := (filter.Page - 1) * filter.PageSize
		query = query.Offset(offset).Limit(filter.PageSize)
	}

	if filter.OrderBy != "" {
		orderBy := ValidateSortField(filter.OrderBy, EntrySortFields, "entry_date")
		query = query.Order(orderBy + " " + ValidateSortOrder(filter.OrderDir))
	} else {
		query = query.Order("entry_date DESC, created_at DESC")
	}

	return query
}

// applyEntryFilterWithoutPagination applies filter options without pagination
func (r *GormEntryRepository) applyEntryFilterWithoutPagination(query *gorm.DB, filter ledger.EntryFilter) *gorm.DB {
	if filter.Search != "" {
		searchPattern := "%" + filter.Search + "%"
		query = query.Where("external_reference ILIKE ? OR description ILIKE ?",
			searchPattern, searchPattern)
	}

	if filter.AccountID != nil {
		query = query.Where("id IN (?)",
			r.db.Model(&models.LedgerEntryLineModel{}).
				Select("entry_id").
				Where("account_id = ?", *filter.AccountID))
	}
	if filter.ReferencePrefix != nil {
		query = query.Where("external_reference = ? OR external_reference LIKE ?",
			*filter.ReferencePrefix, escapeLikePattern(*filter.ReferencePrefix)+"-%")
	}
	if filter.FromDate != nil {
		query = query.Where("entry_date >= ?", *filter.FromDate)
	}
	if filter.ToDate != nil {
		query = query.Where("entry_date <= ?", *filter.ToDate)
	}

	return query
}

// escapeLikePattern escapes LIKE metacharacters so a reference prefix is
// matched literally. References allow "_", which LIKE would otherwise treat
// as a single-character wildcard.
func escapeLikePattern(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

// Ensure GormEntryRepository implements EntryRepository
var _ ledger.EntryRepository = (*GormEntryRepository)(nil)
