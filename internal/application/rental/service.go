package rental

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fleetrent/backend/internal/application/accounting"
	"github.com/fleetrent/backend/internal/domain/billing"
	"github.com/fleetrent/backend/internal/domain/fleet"
	"github.com/fleetrent/backend/internal/domain/shared"
	"github.com/fleetrent/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Service drives the rental lifecycle. Every mutation is one unit of work:
// the advisory lock, the business state changes and (on activation) the ledger
// posting commit or roll back together. Lock timeouts and version conflicts
// are retried with backoff before being surfaced.
type Service struct {
	txScope     accounting.TransactionScope
	poster      *accounting.Poster
	rentalRepo  fleet.RentalRepository
	vehicleRepo fleet.VehicleRepository
	invoiceRepo billing.InvoiceRepository
	logger      *zap.Logger
	metrics     *telemetry.BusinessMetrics
	retry       shared.RetryPolicy
}

// ServiceOption is a functional option for configuring the Service
type ServiceOption func(*Service)

// WithBusinessMetrics wires conflict counters; nil is ignored
func WithBusinessMetrics(metrics *telemetry.BusinessMetrics) ServiceOption {
	return func(s *Service) {
		s.metrics = metrics
	}
}

// WithRetryPolicy overrides the conflict retry policy
func WithRetryPolicy(policy shared.RetryPolicy) ServiceOption {
	return func(s *Service) {
		s.retry = policy
	}
}

// NewService creates a rental service
func NewService(
	txScope accounting.TransactionScope,
	poster *accounting.Poster,
	rentalRepo fleet.RentalRepository,
	vehicleRepo fleet.VehicleRepository,
	invoiceRepo billing.InvoiceRepository,
	logger *zap.Logger,
	opts ...ServiceOption,
) *Service {
	s := &Service{
		txScope:     txScope,
		poster:      poster,
		rentalRepo:  rentalRepo,
		vehicleRepo: vehicleRepo,
		invoiceRepo: invoiceRepo,
		logger:      logger,
		retry:       shared.DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ReserveVehicleRequest carries the input for ReserveVehicle
type ReserveVehicleRequest struct {
	VehicleID     uuid.UUID `json:"vehicle_id" validate:"required"`
	CustomerName  string    `json:"customer_name" validate:"required,max=100"`
	CustomerEmail string    `json:"customer_email" validate:"omitempty,email"`
	StartDate     time.Time `json:"start_date" validate:"required"`
	EndDate       time.Time `json:"end_date" validate:"required"`
}

// ReserveVehicle books a vehicle for a date range. The vehicle's advisory
// lock is taken before the availability read, so two concurrent reservations
// for the same vehicle serialize: the second waits, then sees the first's
// committed rental and is rejected. Reserving has no financial effect.
func (s *Service) ReserveVehicle(ctx context.Context, req ReserveVehicleRequest) (*fleet.Rental, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "rental", "reserve_vehicle")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrVehicleID, req.VehicleID.String())

	var rental *fleet.Rental
	err := s.withConflictRetry(ctx, "vehicle", func(ctx context.Context) error {
		return s.txScope.Execute(ctx, func(repos accounting.TransactionalRepositories) error {
			if err := repos.Locker().Acquire(ctx, shared.LockSpaceVehicle, req.VehicleID); err != nil {
				return err
			}

			vehicle, err := repos.VehicleRepo().FindByID(ctx, req.VehicleID)
			if err != nil {
				return err
			}

			overlapping, err := repos.RentalRepo().FindOverlapping(ctx, req.VehicleID, req.StartDate, req.EndDate)
			if err != nil {
				return err
			}
			if len(overlapping) > 0 {
				return shared.NewDomainError(shared.ErrInvalidState.Code,
					fmt.Sprintf("Vehicle %s is already booked for the requested period (rental %s)",
						vehicle.PlateNumber, overlapping[0].RentalNumber))
			}

			number, err := repos.RentalRepo().GenerateRentalNumber(ctx)
			if err != nil {
				return err
			}
			rental, err = fleet.NewRental(number, vehicle.ID, req.CustomerName, req.CustomerEmail,
				req.StartDate, req.EndDate, vehicle.DailyRate)
			if err != nil {
				return err
			}

			if err := vehicle.Reserve(); err != nil {
				return err
			}
			if err := repos.VehicleRepo().SaveWithLock(ctx, vehicle); err != nil {
				return err
			}
			return repos.RentalRepo().Save(ctx, rental)
		})
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	telemetry.SetAttributes(span, telemetry.SpanAttrRentalNumber, rental.RentalNumber)
	s.logger.Info("Vehicle reserved",
		zap.String("rental_number", rental.RentalNumber),
		zap.String("vehicle_id", rental.VehicleID.String()),
		zap.Int64("total_minor", rental.TotalAmount.Amount()),
		zap.Int("days", rental.Days),
	)
	return rental, nil
}

// ActivationResult is what ActivateRental leaves behind: the active rental,
// the invoice issued for it and the revenue entry posted in the same
// transaction
type ActivationResult struct {
	Rental  *fleet.Rental    `json:"rental"`
	Invoice *billing.Invoice `json:"invoice"`
}

// ActivateRental hands the vehicle over and earns the rental's revenue. This
// is the financial event of the rental lifecycle: the state transitions, the
// invoice issuance and the activation posting share one transaction, so the
// rental can never be active without its ledger trace. Re-running a partially
// failed activation is safe: the posting reference is deterministic and the
// ledger returns the original entry on replay.
func (s *Service) ActivateRental(ctx context.Context, rentalID uuid.UUID) (*ActivationResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "rental", "activate_rental")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrRentalID, rentalID.String())

	var result ActivationResult
	err := s.withConflictRetry(ctx, "rental", func(ctx context.Context) error {
		return s.txScope.Execute(ctx, func(repos accounting.TransactionalRepositories) error {
			if err := repos.Locker().Acquire(ctx, shared.LockSpaceRental, rentalID); err != nil {
				return err
			}

			rental, err := repos.RentalRepo().FindByID(ctx, rentalID)
			if err != nil {
				return err
			}
			if err := rental.Activate(); err != nil {
				return err
			}

			vehicle, err := repos.VehicleRepo().FindByID(ctx, rental.VehicleID)
			if err != nil {
				return err
			}
			if err := vehicle.HandOver(); err != nil {
				return err
			}

			invoiceNumber, err := repos.InvoiceRepo().GenerateInvoiceNumber(ctx)
			if err != nil {
				return err
			}
			invoice, err := billing.NewInvoice(invoiceNumber, rental.ID, rental.CustomerName, rental.TotalAmount)
			if err != nil {
				return err
			}

			poster := s.poster.WithRepos(repos.AccountRepo(), repos.EntryRepo())
			if _, err := poster.PostActivation(ctx, rental.ID, rental.TotalAmount); err != nil {
				return err
			}

			if err := repos.RentalRepo().SaveWithLock(ctx, rental); err != nil {
				return err
			}
			if err := repos.VehicleRepo().SaveWithLock(ctx, vehicle); err != nil {
				return err
			}
			if err := repos.InvoiceRepo().Save(ctx, invoice); err != nil {
				return err
			}

			result = ActivationResult{Rental: rental, Invoice: invoice}
			return nil
		})
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	telemetry.SetAttributes(span,
		telemetry.SpanAttrRentalNumber, result.Rental.RentalNumber,
		telemetry.SpanAttrInvoiceNumber, result.Invoice.InvoiceNumber,
	)
	s.logger.Info("Rental activated",
		zap.String("rental_number", result.Rental.RentalNumber),
		zap.String("invoice_number", result.Invoice.InvoiceNumber),
		zap.Int64("total_minor", result.Rental.TotalAmount.Amount()),
	)
	return &result, nil
}

// CompleteRental closes an active rental and puts the vehicle back on the
// lot. Revenue was already earned at activation; completion has no ledger
// effect.
func (s *Service) CompleteRental(ctx context.Context, rentalID uuid.UUID) (*fleet.Rental, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "rental", "complete_rental")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrRentalID, rentalID.String())

	var rental *fleet.Rental
	err := s.withConflictRetry(ctx, "rental", func(ctx context.Context) error {
		return s.txScope.Execute(ctx, func(repos accounting.TransactionalRepositories) error {
			if err := repos.Locker().Acquire(ctx, shared.LockSpaceRental, rentalID); err != nil {
				return err
			}

			var err error
			rental, err = repos.RentalRepo().FindByID(ctx, rentalID)
			if err != nil {
				return err
			}
			if err := rental.Complete(); err != nil {
				return err
			}

			vehicle, err := repos.VehicleRepo().FindByID(ctx, rental.VehicleID)
			if err != nil {
				return err
			}
			if err := vehicle.Return(); err != nil {
				return err
			}

			if err := repos.RentalRepo().SaveWithLock(ctx, rental); err != nil {
				return err
			}
			return repos.VehicleRepo().SaveWithLock(ctx, vehicle)
		})
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.logger.Info("Rental completed", zap.String("rental_number", rental.RentalNumber))
	return rental, nil
}

// CancelRental withdraws a reservation and releases the vehicle. Only
// reserved rentals can be cancelled; an active one has revenue on the books
// and must be completed (or corrected with a reversing entry) instead.
func (s *Service) CancelRental(ctx context.Context, rentalID uuid.UUID, reason string) (*fleet.Rental, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "rental", "cancel_rental")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrRentalID, rentalID.String())

	var rental *fleet.Rental
	err := s.withConflictRetry(ctx, "rental", func(ctx context.Context) error {
		return s.txScope.Execute(ctx, func(repos accounting.TransactionalRepositories) error {
			if err := repos.Locker().Acquire(ctx, shared.LockSpaceRental, rentalID); err != nil {
				return err
			}

			var err error
			rental, err = repos.RentalRepo().FindByID(ctx, rentalID)
			if err != nil {
				return err
			}
			if err := rental.Cancel(reason); err != nil {
				return err
			}

			vehicle, err := repos.VehicleRepo().FindByID(ctx, rental.VehicleID)
			if err != nil {
				return err
			}
			if err := vehicle.ReleaseReservation(); err != nil {
				return err
			}

			if err := repos.RentalRepo().SaveWithLock(ctx, rental); err != nil {
				return err
			}
			return repos.VehicleRepo().SaveWithLock(ctx, vehicle)
		})
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.logger.Info("Rental cancelled",
		zap.String("rental_number", rental.RentalNumber),
		zap.String("reason", reason),
	)
	return rental, nil
}

// GetRental loads one rental by id
func (s *Service) GetRental(ctx context.Context, rentalID uuid.UUID) (*fleet.Rental, error) {
	return s.rentalRepo.FindByID(ctx, rentalID)
}

// GetRentalByNumber loads one rental by business number
func (s *Service) GetRentalByNumber(ctx context.Context, rentalNumber string) (*fleet.Rental, error) {
	return s.rentalRepo.FindByNumber(ctx, rentalNumber)
}

// ListRentals lists rentals with paging and filters
func (s *Service) ListRentals(ctx context.Context, filter fleet.RentalFilter) (shared.Paginated[fleet.Rental], error) {
	filter.Normalize()
	rentals, err := s.rentalRepo.FindAll(ctx, filter)
	if err != nil {
		return shared.Paginated[fleet.Rental]{}, err
	}
	total, err := s.rentalRepo.Count(ctx, filter)
	if err != nil {
		return shared.Paginated[fleet.Rental]{}, err
	}
	return shared.NewPaginated(rentals, total, filter.Page, filter.PageSize), nil
}

// withConflictRetry retries fn on retryable conflicts (lock timeouts, version
// conflicts) per the service policy, counting each conflict before the sleep
func (s *Service) withConflictRetry(ctx context.Context, aggregateType string, fn func(ctx context.Context) error) error {
	return shared.Retry(ctx, s.retry, func(ctx context.Context) error {
		err := fn(ctx)
		if err != nil {
			s.observeConflict(ctx, aggregateType, err)
		}
		return err
	})
}

// observeConflict counts retryable contention outcomes
func (s *Service) observeConflict(ctx context.Context, aggregateType string, err error) {
	if s.metrics == nil {
		return
	}
	switch {
	case errors.Is(err, shared.ErrLockTimeout):
		s.metrics.RecordLockTimeout(ctx, aggregateType)
	case errors.Is(err, shared.ErrConflict):
		s.metrics.RecordVersionConflict(ctx, aggregateType)
	}
}
