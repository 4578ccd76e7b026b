package handler

import (
	"time"

	rentalapp "github.com/fleetrent/backend/internal/application/rental"
	"github.com/fleetrent/backend/internal/domain/fleet"
	"github.com/fleetrent/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RentalHandler handles rental lifecycle API endpoints
type RentalHandler struct {
	BaseHandler
	rentalService *rentalapp.Service
}

// NewRentalHandler creates a new RentalHandler
func NewRentalHandler(rentalService *rentalapp.Service) *RentalHandler {
	return &RentalHandler{
		rentalService: rentalService,
	}
}

// ===================== Request/Response DTOs =====================

// ReserveVehicleRequest represents a request to reserve a vehicle
type ReserveVehicleRequest struct {
	VehicleID     string `json:"vehicle_id" binding:"required,uuid"`
	CustomerName  string `json:"customer_name" binding:"required,min=1,max=200"`
	CustomerEmail string `json:"customer_email" binding:"required,email"`
	StartDate     string `json:"start_date" binding:"required"`
	EndDate       string `json:"end_date" binding:"required"`
}

// CancelRentalRequest represents a request to cancel a reservation
type CancelRentalRequest struct {
	Reason string `json:"reason" binding:"required,min=1,max=500"`
}

// ListRentalsRequest represents rental list query parameters
type ListRentalsRequest struct {
	dto.ListRequest
	VehicleID string `form:"vehicle_id" binding:"omitempty,uuid"`
	Status    string `form:"status" binding:"omitempty,oneof=RESERVED ACTIVE COMPLETED CANCELLED"`
	FromDate  string `form:"from_date"`
	ToDate    string `form:"to_date"`
}

// RentalResponse represents a rental in API responses
type RentalResponse struct {
	ID            string        `json:"id"`
	RentalNumber  string        `json:"rental_number"`
	VehicleID     string        `json:"vehicle_id"`
	CustomerName  string        `json:"customer_name"`
	CustomerEmail string        `json:"customer_email"`
	StartDate     time.Time     `json:"start_date"`
	EndDate       time.Time     `json:"end_date"`
	Days          int           `json:"days"`
	DailyRate     MoneyResponse `json:"daily_rate"`
	TotalAmount   MoneyResponse `json:"total_amount"`
	Status        string        `json:"status"`
	ActivatedAt   *time.Time    `json:"activated_at,omitempty"`
	CompletedAt   *time.Time    `json:"completed_at,omitempty"`
	CancelledAt   *time.Time    `json:"cancelled_at,omitempty"`
	CancelReason  string        `json:"cancel_reason,omitempty"`
	Version       int           `json:"version"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

func toRentalResponse(rental *fleet.Rental) RentalResponse {
	return RentalResponse{
		ID:            rental.ID.String(),
		RentalNumber:  rental.RentalNumber,
		VehicleID:     rental.VehicleID.String(),
		CustomerName:  rental.CustomerName,
		CustomerEmail: rental.CustomerEmail,
		StartDate:     rental.StartDate,
		EndDate:       rental.EndDate,
		Days:          rental.Days,
		DailyRate:     toMoneyResponse(rental.DailyRate),
		TotalAmount:   toMoneyResponse(rental.TotalAmount),
		Status:        rental.Status.String(),
		ActivatedAt:   rental.ActivatedAt,
		CompletedAt:   rental.CompletedAt,
		CancelledAt:   rental.CancelledAt,
		CancelReason:  rental.CancelReason,
		Version:       rental.Version,
		CreatedAt:     rental.CreatedAt,
		UpdatedAt:     rental.UpdatedAt,
	}
}

func toRentalResponses(rentals []fleet.Rental) []RentalResponse {
	responses := make([]RentalResponse, 0, len(rentals))
	for i := range rentals {
		responses = append(responses, toRentalResponse(&rentals[i]))
	}
	return responses
}

// ActivationResponse represents the outcome of a rental activation: the
// active rental and the invoice issued for it
type ActivationResponse struct {
	Rental  RentalResponse  `json:"rental"`
	Invoice InvoiceResponse `json:"invoice"`
}

// ===================== Handler Methods =====================

// Reserve books a vehicle for a customer over a date range.
// POST /api/v1/rentals
func (h *RentalHandler) Reserve(c *gin.Context) {
	var req ReserveVehicleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	vehicleID, err := uuid.Parse(req.VehicleID)
	if err != nil {
		h.BadRequest(c, "Invalid vehicle ID format")
		return
	}
	startDate, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		h.BadRequest(c, "Invalid start_date format. Expected YYYY-MM-DD")
		return
	}
	endDate, err := time.Parse("2006-01-02", req.EndDate)
	if err != nil {
		h.BadRequest(c, "Invalid end_date format. Expected YYYY-MM-DD")
		return
	}

	rental, err := h.rentalService.ReserveVehicle(c.Request.Context(), rentalapp.ReserveVehicleRequest{
		VehicleID:     vehicleID,
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
		StartDate:     startDate,
		EndDate:       endDate,
	})
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Created(c, toRentalResponse(rental))
}

// Activate hands the vehicle over, issues the invoice and posts the revenue
// entry, all in one transaction.
// POST /api/v1/rentals/:id/activate
func (h *RentalHandler) Activate(c *gin.Context) {
	rentalID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid rental ID format")
		return
	}

	result, err := h.rentalService.ActivateRental(c.Request.Context(), rentalID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, ActivationResponse{
		Rental:  toRentalResponse(result.Rental),
		Invoice: toInvoiceResponse(result.Invoice),
	})
}

// Complete ends an active rental and returns the vehicle to the pool.
// POST /api/v1/rentals/:id/complete
func (h *RentalHandler) Complete(c *gin.Context) {
	rentalID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid rental ID format")
		return
	}

	rental, err := h.rentalService.CompleteRental(c.Request.Context(), rentalID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, toRentalResponse(rental))
}

// Cancel cancels a reservation before activation.
// POST /api/v1/rentals/:id/cancel
func (h *RentalHandler) Cancel(c *gin.Context) {
	rentalID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid rental ID format")
		return
	}

	var req CancelRentalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	rental, err := h.rentalService.CancelRental(c.Request.Context(), rentalID, req.Reason)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, toRentalResponse(rental))
}

// GetByID returns one rental.
// GET /api/v1/rentals/:id
func (h *RentalHandler) GetByID(c *gin.Context) {
	rentalID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid rental ID format")
		return
	}

	rental, err := h.rentalService.GetRental(c.Request.Context(), rentalID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, toRentalResponse(rental))
}

// GetByNumber returns one rental by its rental number.
// GET /api/v1/rentals/number/:rental_number
func (h *RentalHandler) GetByNumber(c *gin.Context) {
	rentalNumber := c.Param("rental_number")
	if rentalNumber == "" {
		h.BadRequest(c, "Rental number is required")
		return
	}

	rental, err := h.rentalService.GetRentalByNumber(c.Request.Context(), rentalNumber)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, toRentalResponse(rental))
}

// List lists rentals.
// GET /api/v1/rentals?vehicle_id=&status=&from_date=&to_date=
func (h *RentalHandler) List(c *gin.Context) {
	req := ListRentalsRequest{ListRequest: dto.DefaultListRequest()}
	if err := c.ShouldBindQuery(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	filter := fleet.RentalFilter{}
	filter.Page = req.Page
	filter.PageSize = req.PageSize
	filter.OrderBy = req.OrderBy
	filter.OrderDir = req.OrderDir
	filter.Search = req.Search
	if req.VehicleID != "" {
		vehicleID, err := uuid.Parse(req.VehicleID)
		if err != nil {
			h.BadRequest(c, "Invalid vehicle ID format")
			return
		}
		filter.VehicleID = &vehicleID
	}
	if req.Status != "" {
		status := fleet.RentalStatus(req.Status)
		filter.Status = &status
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

	page, err := h.rentalService.ListRentals(c.Request.Context(), filter)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.SuccessWithMeta(c, toRentalResponses(page.Items), page.Total, page.Page, page.PageSize)
}
