package handler

import (
	"time"

	billingapp "github.com/fleetrent/backend/internal/application/billing"
	"github.com/fleetrent/backend/internal/domain/billing"
	"github.com/fleetrent/backend/internal/domain/shared/valueobject"
	"github.com/fleetrent/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// InvoiceHandler handles invoice and payment API endpoints
type InvoiceHandler struct {
	BaseHandler
	paymentService *billingapp.PaymentService
}

// NewInvoiceHandler creates a new InvoiceHandler
func NewInvoiceHandler(paymentService *billingapp.PaymentService) *InvoiceHandler {
	return &InvoiceHandler{
		paymentService: paymentService,
	}
}

// ===================== Request/Response DTOs =====================

// CapturePaymentRequest represents a request to capture a payment against an
// invoice. PaymentRef must be the payment's own stable identity (a gateway
// reference, a voucher number) so retrying the capture stays idempotent.
type CapturePaymentRequest struct {
	AmountMinor       int64  `json:"amount_minor" binding:"required,gt=0"`
	Currency          string `json:"currency" binding:"omitempty,oneof=USD EUR GBP CAD"`
	MethodAccountCode string `json:"method_account_code" binding:"required,len=4,numeric"`
	PaymentRef        string `json:"payment_ref" binding:"required,min=1,max=100"`
}

// VoidInvoiceRequest represents a request to void an unpaid invoice
type VoidInvoiceRequest struct {
	Reason string `json:"reason" binding:"required,min=1,max=500"`
}

// ListInvoicesRequest represents invoice list query parameters
type ListInvoicesRequest struct {
	dto.ListRequest
	RentalID string `form:"rental_id" binding:"omitempty,uuid"`
	Status   string `form:"status" binding:"omitempty,oneof=ISSUED PARTIAL PAID VOID"`
}

// InvoiceResponse represents an invoice in API responses
type InvoiceResponse struct {
	ID            string        `json:"id"`
	InvoiceNumber string        `json:"invoice_number"`
	RentalID      string        `json:"rental_id"`
	CustomerName  string        `json:"customer_name"`
	TotalAmount   MoneyResponse `json:"total_amount"`
	PaidAmount    MoneyResponse `json:"paid_amount"`
	Outstanding   MoneyResponse `json:"outstanding"`
	Status        string        `json:"status"`
	IssuedAt      time.Time     `json:"issued_at"`
	PaidAt        *time.Time    `json:"paid_at,omitempty"`
	VoidedAt      *time.Time    `json:"voided_at,omitempty"`
	VoidReason    string        `json:"void_reason,omitempty"`
	Version       int           `json:"version"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

func toInvoiceResponse(invoice *billing.Invoice) InvoiceResponse {
	return InvoiceResponse{
		ID:            invoice.ID.String(),
		InvoiceNumber: invoice.InvoiceNumber,
		RentalID:      invoice.RentalID.String(),
		CustomerName:  invoice.CustomerName,
		TotalAmount:   toMoneyResponse(invoice.TotalAmount),
		PaidAmount:    toMoneyResponse(invoice.PaidAmount),
		Outstanding:   toMoneyResponse(invoice.OutstandingAmount()),
		Status:        invoice.Status.String(),
		IssuedAt:      invoice.IssuedAt,
		PaidAt:        invoice.PaidAt,
		VoidedAt:      invoice.VoidedAt,
		VoidReason:    invoice.VoidReason,
		Version:       invoice.Version,
		CreatedAt:     invoice.CreatedAt,
		UpdatedAt:     invoice.UpdatedAt,
	}
}

func toInvoiceResponses(invoices []billing.Invoice) []InvoiceResponse {
	responses := make([]InvoiceResponse, 0, len(invoices))
	for i := range invoices {
		responses = append(responses, toInvoiceResponse(&invoices[i]))
	}
	return responses
}

// CaptureResultResponse represents the outcome of a payment capture: the
// updated invoice and the ledger entry the capture posted
type CaptureResultResponse struct {
	Invoice InvoiceResponse `json:"invoice"`
	Entry   EntryResponse   `json:"entry"`
}

// ===================== Handler Methods =====================

// CapturePayment applies a payment to an invoice and posts the matching
// ledger entry in the same transaction.
// POST /api/v1/invoices/:id/payments
func (h *InvoiceHandler) CapturePayment(c *gin.Context) {
	invoiceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid invoice ID format")
		return
	}

	var req CapturePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	currency := valueobject.Currency(req.Currency)
	if currency == "" {
		currency = valueobject.DefaultCurrency
	}
	amount, err := valueobject.NewMoney(req.AmountMinor, currency)
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	result, err := h.paymentService.CapturePayment(c.Request.Context(), invoiceID, amount, req.MethodAccountCode, req.PaymentRef)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, CaptureResultResponse{
		Invoice: toInvoiceResponse(result.Invoice),
		Entry:   toEntryResponse(result.Entry),
	})
}

// Void voids an invoice no payment has been captured against.
// POST /api/v1/invoices/:id/void
func (h *InvoiceHandler) Void(c *gin.Context) {
	invoiceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid invoice ID format")
		return
	}

	var req VoidInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	invoice, err := h.paymentService.VoidInvoice(c.Request.Context(), invoiceID, req.Reason)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, toInvoiceResponse(invoice))
}

// GetByID returns one invoice.
// GET /api/v1/invoices/:id
func (h *InvoiceHandler) GetByID(c *gin.Context) {
	invoiceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid invoice ID format")
		return
	}

	invoice, err := h.paymentService.GetInvoice(c.Request.Context(), invoiceID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, toInvoiceResponse(invoice))
}

// GetByNumber returns one invoice by its invoice number.
// GET /api/v1/invoices/number/:invoice_number
func (h *InvoiceHandler) GetByNumber(c *gin.Context) {
	invoiceNumber := c.Param("invoice_number")
	if invoiceNumber == "" {
		h.BadRequest(c, "Invoice number is required")
		return
	}

	invoice, err := h.paymentService.GetInvoiceByNumber(c.Request.Context(), invoiceNumber)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, toInvoiceResponse(invoice))
}

// List lists invoices.
// GET /api/v1/invoices?rental_id=&status=
func (h *InvoiceHandler) List(c *gin.Context) {
	req := ListInvoicesRequest{ListRequest: dto.DefaultListRequest()}
	if err := c.ShouldBindQuery(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	filter := billing.InvoiceFilter{}
	filter.Page = req.Page
	filter.PageSize = req.PageSize
	filter.OrderBy = req.OrderBy
	filter.OrderDir = req.OrderDir
	filter.Search = req.Search
	if req.RentalID != "" {
		rentalID, err := uuid.Parse(req.RentalID)
		if err != nil {
			h.BadRequest(c, "Invalid rental ID format")
			return
		}
		filter.RentalID = &rentalID
	}
	if req.Status != "" {
		status := billing.InvoiceStatus(req.Status)
		filter.Status = &status
	}

	page, err := h.paymentService.ListInvoices(c.Request.Context(), filter)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.SuccessWithMeta(c, toInvoiceResponses(page.Items), page.Total, page.Page, page.PageSize)
}
