package handler

import (
	"strconv"
	"time"

	"github.com/fleetrent/backend/internal/application/reconciliation"
	"github.com/fleetrent/backend/internal/domain/ledger"
	"github.com/gin-gonic/gin"
)

// ReconciliationHandler handles ledger reconciliation API endpoints
type ReconciliationHandler struct {
	BaseHandler
	engine *reconciliation.Engine
}

// NewReconciliationHandler creates a new ReconciliationHandler
func NewReconciliationHandler(engine *reconciliation.Engine) *ReconciliationHandler {
	return &ReconciliationHandler{
		engine: engine,
	}
}

// ===================== Response DTOs =====================

// MismatchResponse represents one operational-vs-ledger divergence
type MismatchResponse struct {
	ID                string        `json:"id"`
	Kind              string        `json:"kind"`
	EntityID          string        `json:"entity_id"`
	EntityNumber      string        `json:"entity_number"`
	ReferencePrefix   string        `json:"reference_prefix"`
	OperationalAmount MoneyResponse `json:"operational_amount"`
	LedgerAmount      MoneyResponse `json:"ledger_amount"`
	Difference        MoneyResponse `json:"difference"`
	Description       string        `json:"description"`
	DetectedAt        time.Time     `json:"detected_at"`
}

func toMismatchResponse(m *ledger.ReconciliationMismatch) MismatchResponse {
	return MismatchResponse{
		ID:                m.ID.String(),
		Kind:              string(m.Kind),
		EntityID:          m.EntityID.String(),
		EntityNumber:      m.EntityNumber,
		ReferencePrefix:   m.ReferencePrefix,
		OperationalAmount: toMoneyResponse(m.OperationalAmount),
		LedgerAmount:      toMoneyResponse(m.LedgerAmount),
		Difference:        toMoneyResponse(m.Difference),
		Description:       m.Description,
		DetectedAt:        m.DetectedAt,
	}
}

func toMismatchResponses(mismatches []ledger.ReconciliationMismatch) []MismatchResponse {
	responses := make([]MismatchResponse, 0, len(mismatches))
	for i := range mismatches {
		responses = append(responses, toMismatchResponse(&mismatches[i]))
	}
	return responses
}

// ReconciliationRunResponse represents a reconciliation run audit record
type ReconciliationRunResponse struct {
	ID               string             `json:"id"`
	Status           string             `json:"status"`
	StartedAt        time.Time          `json:"started_at"`
	FinishedAt       time.Time          `json:"finished_at"`
	CheckedRentals   int64              `json:"checked_rentals"`
	CheckedInvoices  int64              `json:"checked_invoices"`
	MismatchCount    int                `json:"mismatch_count"`
	EquationBalanced bool               `json:"equation_balanced"`
	DurationMs       int64              `json:"duration_ms"`
	Notes            string             `json:"notes,omitempty"`
	Mismatches       []MismatchResponse `json:"mismatches"`
}

func toReconciliationRunResponse(run *ledger.ReconciliationRun) ReconciliationRunResponse {
	return ReconciliationRunResponse{
		ID:               run.ID.String(),
		Status:           run.Status.String(),
		StartedAt:        run.StartedAt,
		FinishedAt:       run.FinishedAt,
		CheckedRentals:   run.CheckedRentals,
		CheckedInvoices:  run.CheckedInvoices,
		MismatchCount:    run.MismatchCount,
		EquationBalanced: run.EquationBalanced,
		DurationMs:       run.DurationMs,
		Notes:            run.Notes,
		Mismatches:       toMismatchResponses(run.Mismatches),
	}
}

// EquationResponse represents the accounting-equation verdict
type EquationResponse struct {
	AsOf     time.Time `json:"as_of"`
	Balanced bool      `json:"balanced"`
}

// ===================== Handler Methods =====================

// Run executes a full reconciliation cycle: every rental and invoice against
// its ledger trace, plus the accounting equation.
// POST /api/v1/reconciliation/runs
func (h *ReconciliationHandler) Run(c *gin.Context) {
	run, err := h.engine.Run(c.Request.Context())
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, toReconciliationRunResponse(run))
}

// VerifyOperational compares every rental and invoice against its ledger
// trace without recording a run.
// GET /api/v1/reconciliation/operational-vs-ledger
func (h *ReconciliationHandler) VerifyOperational(c *gin.Context) {
	mismatches, err := h.engine.VerifyOperationalVsLedger(c.Request.Context())
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, toMismatchResponses(mismatches))
}

// VerifyEquation checks assets = liabilities + equity over the whole ledger.
// GET /api/v1/reconciliation/equation?as_of=2026-03-31
func (h *ReconciliationHandler) VerifyEquation(c *gin.Context) {
	asOf, err := parseDateParam(c.Query("as_of"))
	if err != nil {
		h.BadRequest(c, "Invalid as_of format. Expected YYYY-MM-DD")
		return
	}

	balanced, err := h.engine.VerifyAccountingEquation(c.Request.Context(), asOf)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, EquationResponse{AsOf: asOf, Balanced: balanced})
}

// History lists recent reconciliation runs, newest first.
// GET /api/v1/reconciliation/runs?limit=20
func (h *ReconciliationHandler) History(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 100 {
			h.BadRequest(c, "limit must be an integer between 1 and 100")
			return
		}
		limit = parsed
	}

	runs, err := h.engine.History(c.Request.Context(), limit)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	responses := make([]ReconciliationRunResponse, 0, len(runs))
	for i := range runs {
		responses = append(responses, toReconciliationRunResponse(&runs[i]))
	}
	h.Success(c, responses)
}
