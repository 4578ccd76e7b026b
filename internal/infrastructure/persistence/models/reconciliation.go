package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fleetrent/backend/internal/domain/ledger"
)

// ReconciliationRunModel is the persistence model for reconciliation audit
// runs. Mismatch details are stored as a JSON document; the run row itself
// carries the headline counters so dashboards never need to parse the blob.
type ReconciliationRunModel struct {
	BaseModel
	Status           ledger.ReconciliationStatus `gorm:"type:varchar(20);not null;index"`
	StartedAt        time.Time                   `gorm:"not null;index"`
	FinishedAt       time.Time                   `gorm:"not null"`
	CheckedRentals   int64                       `gorm:"not null;default:0"`
	CheckedInvoices  int64                       `gorm:"not null;default:0"`
	MismatchCount    int                         `gorm:"not null;default:0"`
	EquationBalanced bool                        `gorm:"not null;default:false"`
	DurationMs       int64                       `gorm:"not null;default:0"`
	Notes            string                      `gorm:"type:text"`
	DetailsJSON      string                      `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (ReconciliationRunModel) TableName() string {
	return "reconciliation_runs"
}

// ToDomain converts the persistence model to a domain ReconciliationRun.
// It fails if the stored mismatch document cannot be decoded.
func (m *ReconciliationRunModel) ToDomain() (*ledger.ReconciliationRun, error) {
	run := &ledger.ReconciliationRun{
		BaseEntity:       m.BaseModel.ToDomain(),
		Status:           m.Status,
		StartedAt:        m.StartedAt,
		FinishedAt:       m.FinishedAt,
		CheckedRentals:   m.CheckedRentals,
		CheckedInvoices:  m.CheckedInvoices,
		MismatchCount:    m.MismatchCount,
		EquationBalanced: m.EquationBalanced,
		DurationMs:       m.DurationMs,
		Notes:            m.Notes,
		Mismatches:       make([]ledger.ReconciliationMismatch, 0),
	}
	if m.DetailsJSON != "" {
		if err := json.Unmarshal([]byte(m.DetailsJSON), &run.Mismatches); err != nil {
			return nil, fmt.Errorf("failed to decode reconciliation details for run %s: %w", m.ID, err)
		}
	}
	return run, nil
}

// FromDomain populates the persistence model from a domain ReconciliationRun.
func (m *ReconciliationRunModel) FromDomain(run *ledger.ReconciliationRun) error {
	m.FromDomainBaseEntity(run.BaseEntity)
	m.Status = run.Status
	m.StartedAt = run.StartedAt
	m.FinishedAt = run.FinishedAt
	m.CheckedRentals = run.CheckedRentals
	m.CheckedInvoices = run.CheckedInvoices
	m.MismatchCount = run.MismatchCount
	m.EquationBalanced = run.EquationBalanced
	m.DurationMs = run.DurationMs
	m.Notes = run.Notes
	if len(run.Mismatches) > 0 {
		details, err := json.Marshal(run.Mismatches)
		if err != nil {
			return fmt.Errorf("failed to encode reconciliation details for run %s: %w", run.ID, err)
		}
		m.DetailsJSON = string(details)
	} else {
		m.DetailsJSON = ""
	}
	return nil
}

// ReconciliationRunModelFromDomain creates a new persistence model from a
// domain ReconciliationRun.
func ReconciliationRunModelFromDomain(run *ledger.ReconciliationRun) (*ReconciliationRunModel, error) {
	m := &ReconciliationRunModel{}
	if err := m.FromDomain(run); err != nil {
		return nil, err
	}
	return m, nil
}
