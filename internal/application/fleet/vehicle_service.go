package fleet

import (
	"context"
	"fmt"

	"github.com/fleetrent/backend/internal/domain/fleet"
	"github.com/fleetrent/backend/internal/domain/shared"
	"github.com/fleetrent/backend/internal/domain/shared/valueobject"
	"github.com/fleetrent/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// VehicleService manages the fleet roster. Vehicle writes use optimistic
// concurrency only: none of them are check-then-act decisions worth an
// exclusive lock, and a lost version race is cheap to retry. Version
// conflicts are surfaced to the caller, who retries with a fresh read —
// automatic retry here would silently overwrite the concurrent change the
// conflict exists to expose (a rate update is not idempotent business intent
// the way a payment capture is).
type VehicleService struct {
	vehicleRepo fleet.VehicleRepository
	logger      *zap.Logger
	metrics     *telemetry.BusinessMetrics
}

// VehicleServiceOption is a functional option for configuring the VehicleService
type VehicleServiceOption func(*VehicleService)

// WithBusinessMetrics wires conflict counters; nil is ignored
func WithBusinessMetrics(metrics *telemetry.BusinessMetrics) VehicleServiceOption {
	return func(s *VehicleService) {
		s.metrics = metrics
	}
}

// NewVehicleService creates a vehicle service
func NewVehicleService(vehicleRepo fleet.VehicleRepository, logger *zap.Logger, opts ...VehicleServiceOption) *VehicleService {
	s := &VehicleService{
		vehicleRepo: vehicleRepo,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterVehicleRequest carries the input for RegisterVehicle
type RegisterVehicleRequest struct {
	PlateNumber    string `json:"plate_number" validate:"required,max=20"`
	Make           string `json:"make" validate:"required,max=50"`
	Model          string `json:"model" validate:"required,max=50"`
	ModelYear      int    `json:"model_year" validate:"required"`
	DailyRateMinor int64  `json:"daily_rate_minor" validate:"required,gt=0"`
	Currency       string `json:"currency" validate:"omitempty,len=3"`
}

// RegisterVehicle adds a new vehicle to the fleet
func (s *VehicleService) RegisterVehicle(ctx context.Context, req RegisterVehicleRequest) (*fleet.Vehicle, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "fleet", "register_vehicle")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrPlateNumber, req.PlateNumber)

	exists, err := s.vehicleRepo.ExistsByPlate(ctx, req.PlateNumber)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if exists {
		err := shared.NewDomainError(shared.ErrAlreadyExists.Code,
			fmt.Sprintf("Vehicle with plate %s is already registered", req.PlateNumber))
		telemetry.RecordError(span, err)
		return nil, err
	}

	currency := valueobject.Currency(req.Currency)
	if req.Currency == "" {
		currency = valueobject.USD
	}
	rate, err := valueobject.NewMoney(req.DailyRateMinor, currency)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	vehicle, err := fleet.NewVehicle(req.PlateNumber, req.Make, req.Model, req.ModelYear, rate)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if err := s.vehicleRepo.Save(ctx, vehicle); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.logger.Info("Vehicle registered",
		zap.String("plate_number", vehicle.PlateNumber),
		zap.String("make", vehicle.Make),
		zap.String("model", vehicle.Model),
		zap.Int64("daily_rate_minor", vehicle.DailyRate.Amount()),
	)
	return vehicle, nil
}

// ChangeDailyRate reprices a vehicle for future rentals. Existing rentals keep
// the rate they were reserved at. On a concurrent update the version check
// fails and the conflict is returned; callers re-read and decide again.
func (s *VehicleService) ChangeDailyRate(ctx context.Context, vehicleID uuid.UUID, rate valueobject.Money) (*fleet.Vehicle, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "fleet", "change_daily_rate")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrVehicleID, vehicleID.String(),
		telemetry.SpanAttrAmount, rate.String(),
	)

	vehicle, err := s.vehicleRepo.FindByID(ctx, vehicleID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	previous := vehicle.DailyRate
	if err := vehicle.ChangeDailyRate(rate); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if err := s.vehicleRepo.SaveWithLock(ctx, vehicle); err != nil {
		if shared.IsRetryable(err) && s.metrics != nil {
			s.metrics.RecordVersionConflict(ctx, "vehicle")
		}
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.logger.Info("Vehicle daily rate changed",
		zap.String("plate_number", vehicle.PlateNumber),
		zap.Int64("previous_minor", previous.Amount()),
		zap.Int64("new_minor", vehicle.DailyRate.Amount()),
	)
	return vehicle, nil
}

// SendToMaintenance takes an available vehicle off the lot
func (s *VehicleService) SendToMaintenance(ctx context.Context, vehicleID uuid.UUID) (*fleet.Vehicle, error) {
	return s.transition(ctx, "send_to_maintenance", vehicleID, (*fleet.Vehicle).SendToMaintenance)
}

// ReturnFromMaintenance puts the vehicle back on the lot
func (s *VehicleService) ReturnFromMaintenance(ctx context.Context, vehicleID uuid.UUID) (*fleet.Vehicle, error) {
	return s.transition(ctx, "return_from_maintenance", vehicleID, (*fleet.Vehicle).ReturnFromMaintenance)
}

// RetireVehicle permanently removes an idle vehicle from the fleet
func (s *VehicleService) RetireVehicle(ctx context.Context, vehicleID uuid.UUID) (*fleet.Vehicle, error) {
	return s.transition(ctx, "retire_vehicle", vehicleID, (*fleet.Vehicle).Retire)
}

// transition runs one guarded status change under the optimistic version check
func (s *VehicleService) transition(ctx context.Context, operation string, vehicleID uuid.UUID, change func(*fleet.Vehicle) error) (*fleet.Vehicle, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "fleet", operation)
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrVehicleID, vehicleID.String())

	vehicle, err := s.vehicleRepo.FindByID(ctx, vehicleID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if err := change(vehicle); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if err := s.vehicleRepo.SaveWithLock(ctx, vehicle); err != nil {
		if shared.IsRetryable(err) && s.metrics != nil {
			s.metrics.RecordVersionConflict(ctx, "vehicle")
		}
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.logger.Info("Vehicle status changed",
		zap.String("plate_number", vehicle.PlateNumber),
		zap.String("status", vehicle.Status.String()),
	)
	return vehicle, nil
}

// GetVehicle loads one vehicle by id
func (s *VehicleService) GetVehicle(ctx context.Context, vehicleID uuid.UUID) (*fleet.Vehicle, error) {
	return s.vehicleRepo.FindByID(ctx, vehicleID)
}

// GetVehicleByPlate loads one vehicle by plate number
func (s *VehicleService) GetVehicleByPlate(ctx context.Context, plateNumber string) (*fleet.Vehicle, error) {
	return s.vehicleRepo.FindByPlate(ctx, plateNumber)
}

// ListVehicles lists vehicles with paging and filters
func (s *VehicleService) ListVehicles(ctx context.Context, filter fleet.VehicleFilter) (shared.Paginated[fleet.Vehicle], error) {
	filter.Normalize()
	vehicles, err := s.vehicleRepo.FindAll(ctx, filter)
	if err != nil {
		return shared.Paginated[fleet.Vehicle]{}, err
	}
	total, err := s.vehicleRepo.Count(ctx, filter)
	if err != nil {
		return shared.Paginated[fleet.Vehicle]{}, err
	}
	return shared.NewPaginated(vehicles, total, filter.Page, filter.PageSize), nil
}
