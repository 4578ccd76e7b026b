package handler

import (
	"context"
	"time"

	fleetapp "github.com/fleetrent/backend/internal/application/fleet"
	"github.com/fleetrent/backend/internal/domain/fleet"
	"github.com/fleetrent/backend/internal/domain/shared/valueobject"
	"github.com/fleetrent/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// VehicleHandler handles fleet vehicle API endpoints
type VehicleHandler struct {
	BaseHandler
	vehicleService *fleetapp.VehicleService
}

// NewVehicleHandler creates a new VehicleHandler
func NewVehicleHandler(vehicleService *fleetapp.VehicleService) *VehicleHandler {
	return &VehicleHandler{
		vehicleService: vehicleService,
	}
}

// ===================== Request/Response DTOs =====================

// RegisterVehicleRequest represents a request to add a vehicle to the fleet
type RegisterVehicleRequest struct {
	PlateNumber    string `json:"plate_number" binding:"required,min=2,max=20"`
	Make           string `json:"make" binding:"required,min=1,max=100"`
	Model          string `json:"model" binding:"required,min=1,max=100"`
	ModelYear      int    `json:"model_year" binding:"required,min=1990,max=2100"`
	DailyRateMinor int64  `json:"daily_rate_minor" binding:"required,gt=0"`
	Currency       string `json:"currency" binding:"omitempty,oneof=USD EUR GBP CAD"`
}

// ChangeDailyRateRequest represents a request to change a vehicle's rate
type ChangeDailyRateRequest struct {
	DailyRateMinor int64  `json:"daily_rate_minor" binding:"required,gt=0"`
	Currency       string `json:"currency" binding:"omitempty,oneof=USD EUR GBP CAD"`
}

// ListVehiclesRequest represents vehicle list query parameters
type ListVehiclesRequest struct {
	dto.ListRequest
	Status string `form:"status" binding:"omitempty,oneof=AVAILABLE RESERVED RENTED IN_MAINTENANCE RETIRED"`
}

// VehicleResponse represents a vehicle in API responses
type VehicleResponse struct {
	ID          string        `json:"id"`
	PlateNumber string        `json:"plate_number"`
	Make        string        `json:"make"`
	Model       string        `json:"model"`
	ModelYear   int           `json:"model_year"`
	DailyRate   MoneyResponse `json:"daily_rate"`
	Status      string        `json:"status"`
	Version     int           `json:"version"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

func toVehicleResponse(vehicle *fleet.Vehicle) VehicleResponse {
	return VehicleResponse{
		ID:          vehicle.ID.String(),
		PlateNumber: vehicle.PlateNumber,
		Make:        vehicle.Make,
		Model:       vehicle.Model,
		ModelYear:   vehicle.ModelYear,
		DailyRate:   toMoneyResponse(vehicle.DailyRate),
		Status:      vehicle.Status.String(),
		Version:     vehicle.Version,
		CreatedAt:   vehicle.CreatedAt,
		UpdatedAt:   vehicle.UpdatedAt,
	}
}

func toVehicleResponses(vehicles []fleet.Vehicle) []VehicleResponse {
	responses := make([]VehicleResponse, 0, len(vehicles))
	for i := range vehicles {
		responses = append(responses, toVehicleResponse(&vehicles[i]))
	}
	return responses
}

// ===================== Handler Methods =====================

// Register adds a vehicle to the fleet.
// POST /api/v1/vehicles
func (h *VehicleHandler) Register(c *gin.Context) {
	var req RegisterVehicleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	vehicle, err := h.vehicleService.RegisterVehicle(c.Request.Context(), fleetapp.RegisterVehicleRequest{
		PlateNumber:    req.PlateNumber,
		Make:           req.Make,
		Model:          req.Model,
		ModelYear:      req.ModelYear,
		DailyRateMinor: req.DailyRateMinor,
		Currency:       req.Currency,
	})
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Created(c, toVehicleResponse(vehicle))
}

// List lists fleet vehicles.
// GET /api/v1/vehicles?status=AVAILABLE
func (h *VehicleHandler) List(c *gin.Context) {
	req := ListVehiclesRequest{ListRequest: dto.DefaultListRequest()}
	if err := c.ShouldBindQuery(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	filter := fleet.VehicleFilter{}
	filter.Page = req.Page
	filter.PageSize = req.PageSize
	filter.OrderBy = req.OrderBy
	filter.OrderDir = req.OrderDir
	filter.Search = req.Search
	if req.Status != "" {
		status := fleet.VehicleStatus(req.Status)
		filter.Status = &status
	}

	page, err := h.vehicleService.ListVehicles(c.Request.Context(), filter)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.SuccessWithMeta(c, toVehicleResponses(page.Items), page.Total, page.Page, page.PageSize)
}

// GetByID returns one vehicle.
// GET /api/v1/vehicles/:id
func (h *VehicleHandler) GetByID(c *gin.Context) {
	vehicleID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid vehicle ID format")
		return
	}

	vehicle, err := h.vehicleService.GetVehicle(c.Request.Context(), vehicleID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, toVehicleResponse(vehicle))
}

// GetByPlate returns one vehicle by plate number.
// GET /api/v1/vehicles/plate/:plate_number
func (h *VehicleHandler) GetByPlate(c *gin.Context) {
	plate := c.Param("plate_number")
	if plate == "" {
		h.BadRequest(c, "Plate number is required")
		return
	}

	vehicle, err := h.vehicleService.GetVehicleByPlate(c.Request.Context(), plate)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, toVehicleResponse(vehicle))
}

// ChangeDailyRate changes the rate used to price future reservations.
// Existing rentals keep the rate they were priced at.
// PUT /api/v1/vehicles/:id/daily-rate
func (h *VehicleHandler) ChangeDailyRate(c *gin.Context) {
	vehicleID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid vehicle ID format")
		return
	}

	var req ChangeDailyRateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	currency := valueobject.Currency(req.Currency)
	if currency == "" {
		currency = valueobject.DefaultCurrency
	}
	rate, err := valueobject.NewMoney(req.DailyRateMinor, currency)
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	vehicle, err := h.vehicleService.ChangeDailyRate(c.Request.Context(), vehicleID, rate)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, toVehicleResponse(vehicle))
}

// SendToMaintenance takes an available vehicle out of the bookable pool.
// POST /api/v1/vehicles/:id/maintenance
func (h *VehicleHandler) SendToMaintenance(c *gin.Context) {
	h.transition(c, h.vehicleService.SendToMaintenance)
}

// ReturnFromMaintenance puts a vehicle back in the bookable pool.
// POST /api/v1/vehicles/:id/return-from-maintenance
func (h *VehicleHandler) ReturnFromMaintenance(c *gin.Context) {
	h.transition(c, h.vehicleService.ReturnFromMaintenance)
}

// Retire permanently removes a vehicle from the fleet.
// POST /api/v1/vehicles/:id/retire
func (h *VehicleHandler) Retire(c *gin.Context) {
	h.transition(c, h.vehicleService.RetireVehicle)
}

func (h *VehicleHandler) transition(c *gin.Context, op func(ctx context.Context, id uuid.UUID) (*fleet.Vehicle, error)) {
	vehicleID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid vehicle ID format")
		return
	}

	vehicle, err := op(c.Request.Context(), vehicleID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, toVehicleResponse(vehicle))
}
