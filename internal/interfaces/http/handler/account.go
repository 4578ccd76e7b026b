package handler

import (
	"time"

	"github.com/fleetrent/backend/internal/application/accounting"
	"github.com/fleetrent/backend/internal/domain/ledger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AccountHandler handles chart-of-accounts API endpoints
type AccountHandler struct {
	BaseHandler
	accountService *accounting.AccountService
}

// NewAccountHandler creates a new AccountHandler
func NewAccountHandler(accountService *accounting.AccountService) *AccountHandler {
	return &AccountHandler{
		accountService: accountService,
	}
}

// ===================== Request/Response DTOs =====================

// CreateAccountRequest represents a request to add an account to the chart
type CreateAccountRequest struct {
	Code string `json:"code" binding:"required,len=4,numeric"`
	Name string `json:"name" binding:"required,min=1,max=200"`
	Type string `json:"type" binding:"required,oneof=ASSET LIABILITY EQUITY REVENUE EXPENSE"`
}

// RenameAccountRequest represents a request to rename an account
type RenameAccountRequest struct {
	Name string `json:"name" binding:"required,min=1,max=200"`
}

// AccountResponse represents an account in API responses
type AccountResponse struct {
	ID         string    `json:"id"`
	Code       string    `json:"code"`
	Name       string    `json:"name"`
	Type       string    `json:"type"`
	NormalSide string    `json:"normal_side"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func toAccountResponse(account *ledger.Account) AccountResponse {
	return AccountResponse{
		ID:         account.ID.String(),
		Code:       account.Code,
		Name:       account.Name,
		Type:       account.Type.String(),
		NormalSide: account.NormalSide().String(),
		Active:     account.Active,
		CreatedAt:  account.CreatedAt,
		UpdatedAt:  account.UpdatedAt,
	}
}

func toAccountResponses(accounts []ledger.Account) []AccountResponse {
	responses := make([]AccountResponse, 0, len(accounts))
	for i := range accounts {
		responses = append(responses, toAccountResponse(&accounts[i]))
	}
	return responses
}

// AccountBalanceResponse represents an account balance in API responses
type AccountBalanceResponse struct {
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	Type        string    `json:"type"`
	NormalSide  string    `json:"normal_side"`
	AmountMinor int64     `json:"amount_minor"`
	Amount      string    `json:"amount"`
	AsOf        time.Time `json:"as_of"`
}

func toAccountBalanceResponse(balance *accounting.AccountBalance) AccountBalanceResponse {
	return AccountBalanceResponse{
		Code:        balance.Code,
		Name:        balance.Name,
		Type:        balance.Type.String(),
		NormalSide:  balance.NormalSide.String(),
		AmountMinor: balance.AmountMinor,
		Amount:      balance.Amount.StringFixed(2),
		AsOf:        balance.AsOf,
	}
}

// TrialBalanceRowResponse is one account row of the trial balance
type TrialBalanceRowResponse struct {
	Code       string `json:"code"`
	Name       string `json:"name"`
	Type       string `json:"type"`
	NormalSide string `json:"normal_side"`
	Debit      string `json:"debit"`
	Credit     string `json:"credit"`
}

// TrialBalanceResponse represents the trial balance report
type TrialBalanceResponse struct {
	AsOf        time.Time                 `json:"as_of"`
	Rows        []TrialBalanceRowResponse `json:"rows"`
	DebitTotal  string                    `json:"debit_total"`
	CreditTotal string                    `json:"credit_total"`
	Balanced    bool                      `json:"balanced"`
}

func toTrialBalanceResponse(report *accounting.TrialBalanceReport) TrialBalanceResponse {
	rows := make([]TrialBalanceRowResponse, 0, len(report.Rows))
	for _, row := range report.Rows {
		rows = append(rows, TrialBalanceRowResponse{
			Code:       row.Code,
			Name:       row.Name,
			Type:       row.Type.String(),
			NormalSide: row.NormalSide.String(),
			Debit:      row.Debit.StringFixed(2),
			Credit:     row.Credit.StringFixed(2),
		})
	}
	return TrialBalanceResponse{
		AsOf:        report.AsOf,
		Rows:        rows,
		DebitTotal:  report.DebitTotal.StringFixed(2),
		CreditTotal: report.CreditTotal.StringFixed(2),
		Balanced:    report.Balanced,
	}
}

// ===================== Handler Methods =====================

// Create adds an account to the chart of accounts.
// POST /api/v1/accounts
func (h *AccountHandler) Create(c *gin.Context) {
	var req CreateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	account, err := h.accountService.CreateAccount(c.Request.Context(), accounting.CreateAccountRequest{
		Code: req.Code,
		Name: req.Name,
		Type: ledger.AccountType(req.Type),
	})
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Created(c, toAccountResponse(account))
}

// List returns the chart of accounts ordered by code.
// GET /api/v1/accounts?active_only=true
func (h *AccountHandler) List(c *gin.Context) {
	activeOnly := c.Query("active_only") == "true"

	accounts, err := h.accountService.ListAccounts(c.Request.Context(), activeOnly)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, toAccountResponses(accounts))
}

// GetByCode returns one account by its chart code.
// GET /api/v1/accounts/:code
func (h *AccountHandler) GetByCode(c *gin.Context) {
	code := c.Param("code")
	if code == "" {
		h.BadRequest(c, "Account code is required")
		return
	}

	account, err := h.accountService.GetAccount(c.Request.Context(), code)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, toAccountResponse(account))
}

// resolveAccountID looks up the account behind the :code path parameter.
// Accounts are addressed by chart code on the wire; the application layer
// mutates by ID.
func (h *AccountHandler) resolveAccountID(c *gin.Context) (uuid.UUID, bool) {
	code := c.Param("code")
	if code == "" {
		h.BadRequest(c, "Account code is required")
		return uuid.Nil, false
	}
	account, err := h.accountService.GetAccount(c.Request.Context(), code)
	if err != nil {
		h.HandleDomainError(c, err)
		return uuid.Nil, false
	}
	return account.ID, true
}

// Rename changes an account's display name.
// PUT /api/v1/accounts/:code/name
func (h *AccountHandler) Rename(c *gin.Context) {
	var req RenameAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	accountID, ok := h.resolveAccountID(c)
	if !ok {
		return
	}

	account, err := h.accountService.RenameAccount(c.Request.Context(), accountID, req.Name)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, toAccountResponse(account))
}

// Deactivate soft-removes an account from posting.
// POST /api/v1/accounts/:code/deactivate
func (h *AccountHandler) Deactivate(c *gin.Context) {
	accountID, ok := h.resolveAccountID(c)
	if !ok {
		return
	}

	account, err := h.accountService.DeactivateAccount(c.Request.Context(), accountID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, toAccountResponse(account))
}

// Activate re-enables a deactivated account.
// POST /api/v1/accounts/:code/activate
func (h *AccountHandler) Activate(c *gin.Context) {
	accountID, ok := h.resolveAccountID(c)
	if !ok {
		return
	}

	account, err := h.accountService.ActivateAccount(c.Request.Context(), accountID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, toAccountResponse(account))
}

// Delete removes an account that has never been posted to. Accounts with
// journal lines are rejected; deactivate those instead.
// DELETE /api/v1/accounts/:code
func (h *AccountHandler) Delete(c *gin.Context) {
	accountID, ok := h.resolveAccountID(c)
	if !ok {
		return
	}

	if err := h.accountService.DeleteAccount(c.Request.Context(), accountID); err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.NoContent(c)
}

// GetBalance returns an account's normal-side-adjusted balance.
// GET /api/v1/accounts/:code/balance?as_of=2026-03-31
func (h *AccountHandler) GetBalance(c *gin.Context) {
	code := c.Param("code")
	if code == "" {
		h.BadRequest(c, "Account code is required")
		return
	}

	asOf, err := parseDateParam(c.Query("as_of"))
	if err != nil {
		h.BadRequest(c, "Invalid as_of format. Expected YYYY-MM-DD")
		return
	}

	balance, err := h.accountService.GetBalance(c.Request.Context(), code, asOf)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, toAccountBalanceResponse(balance))
}

// TrialBalance returns every account's balance folded into debit/credit
// columns.
// GET /api/v1/ledger/trial-balance?as_of=2026-03-31
func (h *AccountHandler) TrialBalance(c *gin.Context) {
	asOf, err := parseDateParam(c.Query("as_of"))
	if err != nil {
		h.BadRequest(c, "Invalid as_of format. Expected YYYY-MM-DD")
		return
	}

	report, err := h.accountService.TrialBalance(c.Request.Context(), asOf)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, toTrialBalanceResponse(report))
}
