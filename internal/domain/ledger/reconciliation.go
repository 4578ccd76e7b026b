package ledger

import (
	"time"

	"github.com/fleetrent/backend/internal/domain/shared"
	"github.com/fleetrent/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

// MismatchKind classifies which operational-vs-ledger comparison diverged
type MismatchKind string

const (
	// MismatchKindRentalActivation means a rental's total does not match the
	// activation entries posted for it
	MismatchKindRentalActivation MismatchKind = "RENTAL_ACTIVATION_MISMATCH"
	// MismatchKindInvoicePayment means an invoice's paid amount does not match
	// the payment entries posted for it
	MismatchKindInvoicePayment MismatchKind = "INVOICE_PAYMENT_MISMATCH"
)

// IsValid checks if the mismatch kind is valid
func (k MismatchKind) IsValid() bool {
	return k == MismatchKindRentalActivation || k == MismatchKindInvoicePayment
}

// Description returns a human-readable description of the mismatch kind
func (k MismatchKind) Description() string {
	switch k {
	case MismatchKindRentalActivation:
		return "Rental total amount does not match posted activation entries"
	case MismatchKindInvoicePayment:
		return "Invoice paid amount does not match posted payment entries"
	default:
		return "Unknown mismatch"
	}
}

// ReconciliationMismatch is one divergence between an operational record and
// the ledger trace its events should have left. Mismatches are reported for
// investigation, never auto-corrected.
type ReconciliationMismatch struct {
	ID                uuid.UUID         `json:"id"`
	Kind              MismatchKind      `json:"kind"`
	EntityID          uuid.UUID         `json:"entity_id"`
	EntityNumber      string            `json:"entity_number"`
	ReferencePrefix   string            `json:"reference_prefix"`
	OperationalAmount valueobject.Money `json:"operational_amount"`
	LedgerAmount      valueobject.Money `json:"ledger_amount"`
	Difference        valueobject.Money `json:"difference"`
	Description       string            `json:"description"`
	DetectedAt        time.Time         `json:"detected_at"`
}

// NewReconciliationMismatch creates a mismatch record. Operational and ledger
// amounts must share a currency; the engine constructs both sides from the
// operational record's currency.
func NewReconciliationMismatch(
	kind MismatchKind,
	entityID uuid.UUID,
	entityNumber string,
	referencePrefix string,
	operational, ledger valueobject.Money,
) (*ReconciliationMismatch, error) {
	diff, err := operational.Subtract(ledger)
	if err != nil {
		return nil, err
	}
	return &ReconciliationMismatch{
		ID:                uuid.New(),
		Kind:              kind,
		EntityID:          entityID,
		EntityNumber:      entityNumber,
		ReferencePrefix:   referencePrefix,
		OperationalAmount: operational,
		LedgerAmount:      ledger,
		Difference:        diff,
		Description:       kind.Description(),
		DetectedAt:        time.Now(),
	}, nil
}

// ReconciliationStatus is the overall verdict of one reconciliation run
type ReconciliationStatus string

const (
	ReconciliationStatusBalanced ReconciliationStatus = "BALANCED"
	ReconciliationStatusDiverged ReconciliationStatus = "DIVERGED"
	ReconciliationStatusFailed   ReconciliationStatus = "FAILED"
)

// IsValid checks if the status is a valid ReconciliationStatus
func (s ReconciliationStatus) IsValid() bool {
	switch s {
	case ReconciliationStatusBalanced, ReconciliationStatusDiverged, ReconciliationStatusFailed:
		return true
	}
	return false
}

// String returns the string representation
func (s ReconciliationStatus) String() string {
	return string(s)
}

// ReconciliationRun is the persisted audit record of one reconciliation
// cycle: what was checked, what diverged and how long it took
type ReconciliationRun struct {
	shared.BaseEntity
	Status           ReconciliationStatus
	StartedAt        time.Time
	FinishedAt       time.Time
	CheckedRentals   int64
	CheckedInvoices  int64
	MismatchCount    int
	EquationBalanced bool
	DurationMs       int64
	Notes            string
	Mismatches       []ReconciliationMismatch
}

// NewReconciliationRun starts a run record; finish it with Complete or Fail
func NewReconciliationRun() *ReconciliationRun {
	return &ReconciliationRun{
		BaseEntity: shared.NewBaseEntity(),
		Status:     ReconciliationStatusBalanced,
		StartedAt:  time.Now(),
		Mismatches: make([]ReconciliationMismatch, 0),
	}
}

// Complete finalizes the run with its findings
func (r *ReconciliationRun) Complete(mismatches []ReconciliationMismatch, equationBalanced bool, checkedRentals, checkedInvoices int64) {
	r.FinishedAt = time.Now()
	r.DurationMs = r.FinishedAt.Sub(r.StartedAt).Milliseconds()
	r.CheckedRentals = checkedRentals
	r.CheckedInvoices = checkedInvoices
	r.Mismatches = mismatches
	r.MismatchCount = len(mismatches)
	r.EquationBalanced = equationBalanced
	if r.MismatchCount > 0 || !equationBalanced {
		r.Status = ReconciliationStatusDiverged
	} else {
		r.Status = ReconciliationStatusBalanced
	}
	r.Touch()
}

// Fail finalizes the run after an execution error
func (r *ReconciliationRun) Fail(reason string) {
	r.FinishedAt = time.Now()
	r.DurationMs = r.FinishedAt.Sub(r.StartedAt).Milliseconds()
	r.Status = ReconciliationStatusFailed
	r.Notes = reason
	r.Touch()
}

// IsBalanced returns true if the run found no divergence at all
func (r *ReconciliationRun) IsBalanced() bool {
	return r.Status == ReconciliationStatusBalanced && r.MismatchCount == 0 && r.EquationBalanced
}
