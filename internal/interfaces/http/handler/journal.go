package handler

import (
	"time"

	"github.com/fleetrent/backend/internal/application/accounting"
	"github.com/fleetrent/backend/internal/domain/ledger"
	"github.com/fleetrent/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// JournalHandler handles ledger journal API endpoints
type JournalHandler struct {
	BaseHandler
	journalService *accounting.JournalService
}

// NewJournalHandler creates a new JournalHandler
func NewJournalHandler(journalService *accounting.JournalService) *JournalHandler {
	return &JournalHandler{
		journalService: journalService,
	}
}

// ===================== Request/Response DTOs =====================

// ListEntriesRequest represents journal entry list query parameters
type ListEntriesRequest struct {
	dto.ListRequest
	AccountID       string `form:"account_id" binding:"omitempty,uuid"`
	ReferencePrefix string `form:"reference_prefix"`
	FromDate        string `form:"from_date"`
	ToDate          string `form:"to_date"`
}

// ReverseEntryRequest represents a request to post a reversing entry
type ReverseEntryRequest struct {
	OriginalReference string `json:"original_reference" binding:"required,max=255"`
	Reason            string `json:"reason" binding:"required,min=1,max=500"`
}

// EntryLineResponse represents one leg of a journal entry
type EntryLineResponse struct {
	ID        string        `json:"id"`
	AccountID string        `json:"account_id"`
	Side      string        `json:"side"`
	Debit     MoneyResponse `json:"debit"`
	Credit    MoneyResponse `json:"credit"`
}

// EntryResponse represents a journal entry in API responses
type EntryResponse struct {
	ID                string              `json:"id"`
	ExternalReference string              `json:"external_reference"`
	EntryDate         time.Time           `json:"entry_date"`
	Description       string              `json:"description"`
	Lines             []EntryLineResponse `json:"lines"`
	TotalDebits       MoneyResponse       `json:"total_debits"`
	TotalCredits      MoneyResponse       `json:"total_credits"`
	CreatedAt         time.Time           `json:"created_at"`
}

func toEntryResponse(entry *ledger.Entry) EntryResponse {
	lines := make([]EntryLineResponse, 0, len(entry.Lines))
	for _, line := range entry.Lines {
		lines = append(lines, EntryLineResponse{
			ID:        line.ID.String(),
			AccountID: line.AccountID.String(),
			Side:      line.Side().String(),
			Debit:     toMoneyResponse(line.Debit),
			Credit:    toMoneyResponse(line.Credit),
		})
	}
	return EntryResponse{
		ID:                entry.ID.String(),
		ExternalReference: entry.ExternalReference,
		EntryDate:         entry.EntryDate,
		Description:       entry.Description,
		Lines:             lines,
		TotalDebits:       toMoneyResponse(entry.TotalDebits()),
		TotalCredits:      toMoneyResponse(entry.TotalCredits()),
		CreatedAt:         entry.CreatedAt,
	}
}

func toEntryResponses(entries []ledger.Entry) []EntryResponse {
	responses := make([]EntryResponse, 0, len(entries))
	for i := range entries {
		responses = append(responses, toEntryResponse(&entries[i]))
	}
	return responses
}

// ===================== Handler Methods =====================

// List lists journal entries, newest first.
// GET /api/v1/ledger/entries?account_id=&reference_prefix=&from_date=&to_date=
func (h *JournalHandler) List(c *gin.Context) {
	req := ListEntriesRequest{ListRequest: dto.DefaultListRequest()}
	if err := c.ShouldBindQuery(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	filter := ledger.EntryFilter{}
	filter.Page = req.Page
	filter.PageSize = req.PageSize
	filter.OrderBy = req.OrderBy
	filter.OrderDir = req.OrderDir

	if req.AccountID != "" {
		accountID, err := uuid.Parse(req.AccountID)
		if err != nil {
			h.BadRequest(c, "Invalid account ID format")
			return
		}
		filter.AccountID = &accountID
	}
	if req.ReferencePrefix != "" {
		filter.ReferencePrefix = &req.ReferencePrefix
	}
	if req.FromDate != "" {
		from, err := time.Parse("2006-01-02", req.FromDate)
		if err != nil {
			h.BadRequest(c, "Invalid from_date format. Expected YYYY-MM-DD")
			return
		}
		filter.FromDate = &from
	}
	if req.ToDate != "" {
		to, err := time.Parse("2006-01-02", req.ToDate)
		if err != nil {
			h.BadRequest(c, "Invalid to_date format. Expected YYYY-MM-DD")
			return
		}
		filter.ToDate = &to
	}

	page, err := h.journalService.ListEntries(c.Request.Context(), filter)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.SuccessWithMeta(c, toEntryResponses(page.Items), page.Total, page.Page, page.PageSize)
}

// GetByID returns one entry with its lines.
// GET /api/v1/ledger/entries/:id
func (h *JournalHandler) GetByID(c *gin.Context) {
	entryID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid entry ID format")
		return
	}

	entry, err := h.journalService.GetEntry(c.Request.Context(), entryID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, toEntryResponse(entry))
}

// GetByReference returns one entry by its external reference.
// GET /api/v1/ledger/entries/reference/:reference
func (h *JournalHandler) GetByReference(c *gin.Context) {
	reference := c.Param("reference")
	if reference == "" {
		h.BadRequest(c, "Entry reference is required")
		return
	}

	entry, err := h.journalService.GetEntryByReference(c.Request.Context(), reference)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, toEntryResponse(entry))
}

// Reverse posts the mirror entry of a previously posted one. Re-posting the
// same reversal returns the already-stored reversal entry.
// POST /api/v1/ledger/reversals
func (h *JournalHandler) Reverse(c *gin.Context) {
	var req ReverseEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	entry, err := h.journalService.ReverseEntry(c.Request.Context(), req.OriginalReference, req.Reason)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Created(c, toEntryResponse(entry))
}
