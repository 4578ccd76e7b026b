package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fleetrent/backend/internal/application/accounting"
	"github.com/fleetrent/backend/internal/domain/ledger"
	"github.com/fleetrent/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupAccountHandler(accountRepo *MockAccountRepository, entryRepo *MockEntryRepository) *AccountHandler {
	return NewAccountHandler(accounting.NewAccountService(accountRepo, entryRepo, zap.NewNop()))
}

func testAccount(t *testing.T, code, name string, accountType ledger.AccountType) *ledger.Account {
	t.Helper()
	account, err := ledger.NewAccount(code, name, accountType)
	require.NoError(t, err)
	return account
}

func TestAccountHandler_Create_Success(t *testing.T) {
	accountRepo := new(MockAccountRepository)
	handler := setupAccountHandler(accountRepo, new(MockEntryRepository))

	accountRepo.On("ExistsByCode", mock.Anything, "1200").Return(false, nil)
	accountRepo.On("Save", mock.Anything, mock.AnythingOfType("*ledger.Account")).Return(nil)

	router := setupTestRouter()
	router.POST("/accounts", handler.Create)

	body, _ := json.Marshal(CreateAccountRequest{
		Code: "1200",
		Name: "Security Deposits Held",
		Type: "ASSET",
	})
	req := httptest.NewRequest(http.MethodPost, "/accounts", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.True(t, response["success"].(bool))
	data := response["data"].(map[string]interface{})
	assert.Equal(t, "1200", data["code"])
	assert.Equal(t, "DEBIT", data["normal_side"])

	accountRepo.AssertExpectations(t)
}

func TestAccountHandler_Create_DuplicateCode(t *testing.T) {
	accountRepo := new(MockAccountRepository)
	handler := setupAccountHandler(accountRepo, new(MockEntryRepository))

	accountRepo.On("ExistsByCode", mock.Anything, "1000").Return(true, nil)

	router := setupTestRouter()
	router.POST("/accounts", handler.Create)

	body, _ := json.Marshal(CreateAccountRequest{
		Code: "1000",
		Name: "Duplicate Cash",
		Type: "ASSET",
	})
	req := httptest.NewRequest(http.MethodPost, "/accounts", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
	accountRepo.AssertNotCalled(t, "Save")
}

func TestAccountHandler_Create_InvalidType(t *testing.T) {
	handler := setupAccountHandler(new(MockAccountRepository), new(MockEntryRepository))

	router := setupTestRouter()
	router.POST("/accounts", handler.Create)

	body, _ := json.Marshal(map[string]string{
		"code": "1200",
		"name": "Mystery",
		"type": "GOODWILL",
	})
	req := httptest.NewRequest(http.MethodPost, "/accounts", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAccountHandler_List_Success(t *testing.T) {
	accountRepo := new(MockAccountRepository)
	handler := setupAccountHandler(accountRepo, new(MockEntryRepository))

	cash := testAccount(t, "1000", "Cash", ledger.AccountTypeAsset)
	revenue := testAccount(t, "4000", "Rental Revenue", ledger.AccountTypeRevenue)
	accountRepo.On("FindAll", mock.Anything, false).Return([]ledger.Account{*cash, *revenue}, nil)

	router := setupTestRouter()
	router.GET("/accounts", handler.List)

	req := httptest.NewRequest(http.MethodGet, "/accounts", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	data := response["data"].([]interface{})
	assert.Len(t, data, 2)
	accountRepo.AssertExpectations(t)
}

func TestAccountHandler_List_ActiveOnly(t *testing.T) {
	accountRepo := new(MockAccountRepository)
	handler := setupAccountHandler(accountRepo, new(MockEntryRepository))

	accountRepo.On("FindAll", mock.Anything, true).Return([]ledger.Account{}, nil)

	router := setupTestRouter()
	router.GET("/accounts", handler.List)

	req := httptest.NewRequest(http.MethodGet, "/accounts?active_only=true", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	accountRepo.AssertExpectations(t)
}

func TestAccountHandler_GetByCode_Success(t *testing.T) {
	accountRepo := new(MockAccountRepository)
	handler := setupAccountHandler(accountRepo, new(MockEntryRepository))

	cash := testAccount(t, "1000", "Cash", ledger.AccountTypeAsset)
	accountRepo.On("FindByCode", mock.Anything, "1000").Return(cash, nil)

	router := setupTestRouter()
	router.GET("/accounts/:code", handler.GetByCode)

	req := httptest.NewRequest(http.MethodGet, "/accounts/1000", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	accountRepo.AssertExpectations(t)
}

func TestAccountHandler_GetByCode_NotFound(t *testing.T) {
	accountRepo := new(MockAccountRepository)
	handler := setupAccountHandler(accountRepo, new(MockEntryRepository))

	accountRepo.On("FindByCode", mock.Anything, "9999").Return(nil, shared.ErrNotFound)

	router := setupTestRouter()
	router.GET("/accounts/:code", handler.GetByCode)

	req := httptest.NewRequest(http.MethodGet, "/accounts/9999", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAccountHandler_Rename_Success(t *testing.T) {
	accountRepo := new(MockAccountRepository)
	handler := setupAccountHandler(accountRepo, new(MockEntryRepository))

	account := testAccount(t, "2100", "Customer Deposits", ledger.AccountTypeLiability)
	accountRepo.On("FindByCode", mock.Anything, "2100").Return(account, nil)
	accountRepo.On("FindByID", mock.Anything, account.ID).Return(account, nil)
	accountRepo.On("Save", mock.Anything, mock.AnythingOfType("*ledger.Account")).Return(nil)

	router := setupTestRouter()
	router.PUT("/accounts/:code/name", handler.Rename)

	body, _ := json.Marshal(RenameAccountRequest{Name: "Customer Deposits Held"})
	req := httptest.NewRequest(http.MethodPut, "/accounts/2100/name", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	data := response["data"].(map[string]interface{})
	assert.Equal(t, "Customer Deposits Held", data["name"])
	accountRepo.AssertExpectations(t)
}

func TestAccountHandler_Deactivate_Success(t *testing.T) {
	accountRepo := new(MockAccountRepository)
	handler := setupAccountHandler(accountRepo, new(MockEntryRepository))

	account := testAccount(t, "5100", "Insurance Expense", ledger.AccountTypeExpense)
	accountRepo.On("FindByCode", mock.Anything, "5100").Return(account, nil)
	accountRepo.On("FindByID", mock.Anything, account.ID).Return(account, nil)
	accountRepo.On("Save", mock.Anything, mock.AnythingOfType("*ledger.Account")).Return(nil)

	router := setupTestRouter()
	router.POST("/accounts/:code/deactivate", handler.Deactivate)

	req := httptest.NewRequest(http.MethodPost, "/accounts/5100/deactivate", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	data := response["data"].(map[string]interface{})
	assert.False(t, data["active"].(bool))
	accountRepo.AssertExpectations(t)
}

func TestAccountHandler_Delete_RejectsPostedAccount(t *testing.T) {
	accountRepo := new(MockAccountRepository)
	handler := setupAccountHandler(accountRepo, new(MockEntryRepository))

	account := testAccount(t, "4100", "Late Fee Revenue", ledger.AccountTypeRevenue)
	accountRepo.On("FindByCode", mock.Anything, "4100").Return(account, nil)
	accountRepo.On("FindByID", mock.Anything, account.ID).Return(account, nil)
	accountRepo.On("HasEntries", mock.Anything, account.ID).Return(true, nil)

	router := setupTestRouter()
	router.DELETE("/accounts/:code", handler.Delete)

	req := httptest.NewRequest(http.MethodDelete, "/accounts/4100", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	accountRepo.AssertNotCalled(t, "Delete")
}

func TestAccountHandler_Delete_Success(t *testing.T) {
	accountRepo := new(MockAccountRepository)
	handler := setupAccountHandler(accountRepo, new(MockEntryRepository))

	account := testAccount(t, "1200", "Security Deposits Held", ledger.AccountTypeAsset)
	accountRepo.On("FindByCode", mock.Anything, "1200").Return(account, nil)
	accountRepo.On("FindByID", mock.Anything, account.ID).Return(account, nil)
	accountRepo.On("HasEntries", mock.Anything, account.ID).Return(false, nil)
	accountRepo.On("Delete", mock.Anything, account.ID).Return(nil)

	router := setupTestRouter()
	router.DELETE("/accounts/:code", handler.Delete)

	req := httptest.NewRequest(http.MethodDelete, "/accounts/1200", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	accountRepo.AssertExpectations(t)
}

func TestAccountHandler_GetBalance_Success(t *testing.T) {
	accountRepo := new(MockAccountRepository)
	entryRepo := new(MockEntryRepository)
	handler := setupAccountHandler(accountRepo, entryRepo)

	receivable := testAccount(t, "1100", "Accounts Receivable", ledger.AccountTypeAsset)
	accountRepo.On("FindByCode", mock.Anything, "1100").Return(receivable, nil)
	entryRepo.On("SumForAccount", mock.Anything, receivable.ID, mock.AnythingOfType("time.Time")).
		Return(int64(11200), nil)

	router := setupTestRouter()
	router.GET("/accounts/:code/balance", handler.GetBalance)

	req := httptest.NewRequest(http.MethodGet, "/accounts/1100/balance", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	data := response["data"].(map[string]interface{})
	assert.Equal(t, float64(11200), data["amount_minor"])
	assert.Equal(t, "112.00", data["amount"])
	entryRepo.AssertExpectations(t)
}

func TestAccountHandler_GetBalance_InvalidAsOf(t *testing.T) {
	handler := setupAccountHandler(new(MockAccountRepository), new(MockEntryRepository))

	router := setupTestRouter()
	router.GET("/accounts/:code/balance", handler.GetBalance)

	req := httptest.NewRequest(http.MethodGet, "/accounts/1100/balance?as_of=last-tuesday", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAccountHandler_GetBalance_AsOfDate(t *testing.T) {
	accountRepo := new(MockAccountRepository)
	entryRepo := new(MockEntryRepository)
	handler := setupAccountHandler(accountRepo, entryRepo)

	cash := testAccount(t, "1000", "Cash", ledger.AccountTypeAsset)
	asOf := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)
	accountRepo.On("FindByCode", mock.Anything, "1000").Return(cash, nil)
	entryRepo.On("SumForAccount", mock.Anything, cash.ID, asOf).Return(int64(250000), nil)

	router := setupTestRouter()
	router.GET("/accounts/:code/balance", handler.GetBalance)

	req := httptest.NewRequest(http.MethodGet, "/accounts/1000/balance?as_of=2026-03-31", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	entryRepo.AssertExpectations(t)
}

func TestAccountHandler_TrialBalance_Success(t *testing.T) {
	accountRepo := new(MockAccountRepository)
	entryRepo := new(MockEntryRepository)
	handler := setupAccountHandler(accountRepo, entryRepo)

	cash := testAccount(t, "1000", "Cash", ledger.AccountTypeAsset)
	revenue := testAccount(t, "4000", "Rental Revenue", ledger.AccountTypeRevenue)
	accountRepo.On("FindAll", mock.Anything, false).Return([]ledger.Account{*cash, *revenue}, nil)
	entryRepo.On("SumForAccount", mock.Anything, cash.ID, mock.AnythingOfType("time.Time")).
		Return(int64(16800), nil)
	entryRepo.On("SumForAccount", mock.Anything, revenue.ID, mock.AnythingOfType("time.Time")).
		Return(int64(16800), nil)

	router := setupTestRouter()
	router.GET("/ledger/trial-balance", handler.TrialBalance)

	req := httptest.NewRequest(http.MethodGet, "/ledger/trial-balance", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	data := response["data"].(map[string]interface{})
	assert.True(t, data["balanced"].(bool))
	assert.Equal(t, "168.00", data["debit_total"])
	assert.Equal(t, "168.00", data["credit_total"])
	entryRepo.AssertExpectations(t)
}
