// Package integration tests the critical business flows against a real
// PostgreSQL database:
// - Reserve, activate, complete and the revenue posting behind activation
// - Payment capture and its ledger trace
// - Idempotent posting under replayed references
// - Optimistic locking on aggregate write-back
package integration

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/fleetrent/backend/internal/application/accounting"
	billingapp "github.com/fleetrent/backend/internal/application/billing"
	fleetapp "github.com/fleetrent/backend/internal/application/fleet"
	"github.com/fleetrent/backend/internal/application/reconciliation"
	rentalapp "github.com/fleetrent/backend/internal/application/rental"
	"github.com/fleetrent/backend/internal/domain/billing"
	"github.com/fleetrent/backend/internal/domain/fleet"
	"github.com/fleetrent/backend/internal/domain/ledger"
	"github.com/fleetrent/backend/internal/domain/shared"
	"github.com/fleetrent/backend/internal/domain/shared/valueobject"
	"github.com/fleetrent/backend/internal/infrastructure/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// FleetTestSetup wires the real persistence stack and the application services
// over one test database
type FleetTestSetup struct {
	DB          *TestDB
	AccountRepo ledger.AccountRepository
	EntryRepo   ledger.EntryRepository
	VehicleRepo fleet.VehicleRepository
	RentalRepo  fleet.RentalRepository
	InvoiceRepo billing.InvoiceRepository
	RunRepo     ledger.ReconciliationRunRepository

	Vehicles *fleetapp.VehicleService
	Rentals  *rentalapp.Service
	Payments *billingapp.PaymentService
	Journal  *accounting.JournalService
	Engine   *reconciliation.Engine
}

// NewFleetTestSetup creates the full service stack on a fresh database. The
// chart of accounts is seeded by the migrations, so postings resolve their
// accounts the same way they do in production.
func NewFleetTestSetup(t *testing.T) *FleetTestSetup {
	t.Helper()

	testDB := NewTestDB(t)
	logger := zap.NewNop()

	accountRepo := persistence.NewGormAccountRepository(testDB.DB)
	entryRepo := persistence.NewGormEntryRepository(testDB.DB)
	vehicleRepo := persistence.NewGormVehicleRepository(testDB.DB)
	rentalRepo := persistence.NewGormRentalRepository(testDB.DB)
	invoiceRepo := persistence.NewGormInvoiceRepository(testDB.DB)
	runRepo := persistence.NewGormReconciliationRunRepository(testDB.DB)

	scope := persistence.NewGormTransactionScope(testDB.DB, 5*time.Second)
	policy := ledger.NewPostingPolicy()
	poster := accounting.NewPoster(accountRepo, entryRepo, policy, logger)

	return &FleetTestSetup{
		DB:          testDB,
		AccountRepo: accountRepo,
		EntryRepo:   entryRepo,
		VehicleRepo: vehicleRepo,
		RentalRepo:  rentalRepo,
		InvoiceRepo: invoiceRepo,
		RunRepo:     runRepo,
		Vehicles:    fleetapp.NewVehicleService(vehicleRepo, logger),
		Rentals:     rentalapp.NewService(scope, poster, rentalRepo, vehicleRepo, invoiceRepo, logger),
		Payments:    billingapp.NewPaymentService(scope, poster, invoiceRepo, logger),
		Journal:     accounting.NewJournalService(entryRepo, poster, logger),
		Engine: reconciliation.NewEngine(rentalRepo, invoiceRepo, accountRepo, entryRepo,
			policy, logger, reconciliation.WithRunAudit(runRepo)),
	}
}

// registerVehicle registers one vehicle at the given daily rate
func (s *FleetTestSetup) registerVehicle(t *testing.T, plate string, dailyRateMinor int64) *fleet.Vehicle {
	t.Helper()
	vehicle, err := s.Vehicles.RegisterVehicle(context.Background(), fleetapp.RegisterVehicleRequest{
		PlateNumber:    plate,
		Make:           "Toyota",
		Model:          "Corolla",
		ModelYear:      2024,
		DailyRateMinor: dailyRateMinor,
	})
	require.NoError(t, err)
	return vehicle
}

// reserve books the vehicle for the given number of days starting 2026-04-01
func (s *FleetTestSetup) reserve(t *testing.T, vehicle *fleet.Vehicle, days int) *fleet.Rental {
	t.Helper()
	start := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	rental, err := s.Rentals.ReserveVehicle(context.Background(), rentalapp.ReserveVehicleRequest{
		VehicleID:     vehicle.ID,
		CustomerName:  "Dana Smith",
		CustomerEmail: "dana@example.com",
		StartDate:     start,
		EndDate:       start.AddDate(0, 0, days),
	})
	require.NoError(t, err)
	return rental
}

func TestRentalLifecycle_PostsBalancedBooks(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	setup := NewFleetTestSetup(t)
	ctx := context.Background()

	vehicle := setup.registerVehicle(t, "FLT-0042", 5600)
	rental := setup.reserve(t, vehicle, 3)
	assert.Equal(t, fleet.RentalStatusReserved, rental.Status)
	assert.Equal(t, int64(16800), rental.TotalAmount.Amount())

	// Reserving flips the vehicle out of the available pool
	stored, err := setup.VehicleRepo.FindByID(ctx, vehicle.ID)
	require.NoError(t, err)
	assert.Equal(t, fleet.VehicleStatusReserved, stored.Status)

	// Activation hands the vehicle over, issues the invoice and posts revenue
	result, err := setup.Rentals.ActivateRental(ctx, rental.ID)
	require.NoError(t, err)
	assert.Equal(t, fleet.RentalStatusActive, result.Rental.Status)
	assert.Equal(t, billing.InvoiceStatusIssued, result.Invoice.Status)
	assert.True(t, result.Invoice.TotalAmount.Equals(rental.TotalAmount))

	entry, err := setup.EntryRepo.FindByReference(ctx, "rental-"+rental.ID.String()+"-activation")
	require.NoError(t, err)
	assert.Len(t, entry.Lines, 2)

	// Receivable carries the full rental amount until payment
	receivable, err := setup.AccountRepo.FindByCode(ctx, ledger.AccountCodeAccountsReceivable)
	require.NoError(t, err)
	balance, err := setup.EntryRepo.SumForAccount(ctx, receivable.ID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(16800), balance)

	// Capture full payment in cash
	capture, err := setup.Payments.CapturePayment(ctx, result.Invoice.ID,
		valueobject.MustNewMoney(16800, valueobject.USD), ledger.AccountCodeCash, "txn-20260403-991")
	require.NoError(t, err)
	assert.Equal(t, billing.InvoiceStatusPaid, capture.Invoice.Status)

	// Receivable is cleared, cash carries the money now
	balance, err = setup.EntryRepo.SumForAccount(ctx, receivable.ID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)

	cash, err := setup.AccountRepo.FindByCode(ctx, ledger.AccountCodeCash)
	require.NoError(t, err)
	balance, err = setup.EntryRepo.SumForAccount(ctx, cash.ID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(16800), balance)

	// Completion frees the vehicle
	completed, err := setup.Rentals.CompleteRental(ctx, rental.ID)
	require.NoError(t, err)
	assert.Equal(t, fleet.RentalStatusCompleted, completed.Status)

	stored, err = setup.VehicleRepo.FindByID(ctx, vehicle.ID)
	require.NoError(t, err)
	assert.Equal(t, fleet.VehicleStatusAvailable, stored.Status)

	// The whole flow keeps the books balanced
	balanced, err := setup.Engine.VerifyAccountingEquation(ctx, time.Now())
	require.NoError(t, err)
	assert.True(t, balanced)
}

func TestPostingReplay_ReturnsOriginalEntry(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	setup := NewFleetTestSetup(t)
	ctx := context.Background()

	receivable, err := setup.AccountRepo.FindByCode(ctx, ledger.AccountCodeAccountsReceivable)
	require.NoError(t, err)
	revenue, err := setup.AccountRepo.FindByCode(ctx, ledger.AccountCodeRentalRevenue)
	require.NoError(t, err)

	amount := valueobject.MustNewMoney(11200, valueobject.USD)
	debit, err := ledger.NewDebitLine(receivable.ID, amount)
	require.NoError(t, err)
	credit, err := ledger.NewCreditLine(revenue.ID, amount)
	require.NoError(t, err)

	reference := "rental-" + setup.registerVehicle(t, "FLT-0077", 5600).ID.String() + "-activation"
	first, err := ledger.NewEntry(reference, time.Now(), "Rental activation", []ledger.EntryLine{debit, credit})
	require.NoError(t, err)

	posted, err := setup.EntryRepo.Post(ctx, first)
	require.NoError(t, err)

	// A replay with the same reference but different amounts is discarded;
	// the stored original wins
	bigger := valueobject.MustNewMoney(99900, valueobject.USD)
	debit2, err := ledger.NewDebitLine(receivable.ID, bigger)
	require.NoError(t, err)
	credit2, err := ledger.NewCreditLine(revenue.ID, bigger)
	require.NoError(t, err)
	replay, err := ledger.NewEntry(reference, time.Now(), "Rental activation", []ledger.EntryLine{debit2, credit2})
	require.NoError(t, err)

	stored, err := setup.EntryRepo.Post(ctx, replay)
	require.NoError(t, err)
	assert.Equal(t, posted.ID, stored.ID)

	var count int64
	require.NoError(t, setup.DB.DB.Raw(
		"SELECT COUNT(*) FROM ledger_entries WHERE external_reference = ?", reference).Scan(&count).Error)
	assert.Equal(t, int64(1), count)

	balance, err := setup.EntryRepo.SumForAccount(ctx, receivable.ID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(11200), balance)
}

func TestOptimisticLock_StaleWriteIsRejected(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	setup := NewFleetTestSetup(t)
	ctx := context.Background()

	vehicle := setup.registerVehicle(t, "FLT-0099", 5600)

	// Two actors load the same version
	first, err := setup.VehicleRepo.FindByID(ctx, vehicle.ID)
	require.NoError(t, err)
	second, err := setup.VehicleRepo.FindByID(ctx, vehicle.ID)
	require.NoError(t, err)

	require.NoError(t, first.ChangeDailyRate(valueobject.MustNewMoney(6400, valueobject.USD)))
	require.NoError(t, setup.VehicleRepo.SaveWithLock(ctx, first))

	require.NoError(t, second.ChangeDailyRate(valueobject.MustNewMoney(7200, valueobject.USD)))
	err = setup.VehicleRepo.SaveWithLock(ctx, second)
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrConflict)

	// The first write survived
	stored, err := setup.VehicleRepo.FindByID(ctx, vehicle.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(6400), stored.DailyRate.Amount())
}

func TestOverlappingReservation_IsRejected(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	setup := NewFleetTestSetup(t)
	ctx := context.Background()

	vehicle := setup.registerVehicle(t, "FLT-0042", 5600)
	rental := setup.reserve(t, vehicle, 3)
	_, err := setup.Rentals.CancelRental(ctx, rental.ID, "customer no-show")
	require.NoError(t, err)

	// Cancellation frees the vehicle and the same window can be booked again
	again := setup.reserve(t, vehicle, 3)

	// A second booking over the same window must fail
	start := time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC)
	_, err = setup.Rentals.ReserveVehicle(ctx, rentalapp.ReserveVehicleRequest{
		VehicleID:     vehicle.ID,
		CustomerName:  "Robin Lee",
		CustomerEmail: "robin@example.com",
		StartDate:     start,
		EndDate:       start.AddDate(0, 0, 2),
	})
	require.Error(t, err)

	stored, err := setup.RentalRepo.FindByID(ctx, again.ID)
	require.NoError(t, err)
	assert.Equal(t, fleet.RentalStatusReserved, stored.Status)
}

func TestConcurrentReservations_ExactlyOneWins(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	setup := NewFleetTestSetup(t)
	ctx := context.Background()

	vehicle := setup.registerVehicle(t, "FLT-0042", 5600)
	start := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	// Two actors race for the same vehicle and window. The advisory lock
	// serializes them inside the unit of work: the loser sees the winner's
	// committed reservation and is refused.
	results := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := setup.Rentals.ReserveVehicle(ctx, rentalapp.ReserveVehicleRequest{
				VehicleID:     vehicle.ID,
				CustomerName:  fmt.Sprintf("Customer %d", n),
				CustomerEmail: fmt.Sprintf("customer%d@example.com", n),
				StartDate:     start,
				EndDate:       start.AddDate(0, 0, 3),
			})
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	var succeeded, failed int
	for err := range results {
		if err == nil {
			succeeded++
		} else {
			failed++
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, failed)

	var count int64
	require.NoError(t, setup.DB.DB.Raw(
		"SELECT COUNT(*) FROM rentals WHERE vehicle_id = ?", vehicle.ID).Scan(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestReverseEntry_RestoresBalances(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	setup := NewFleetTestSetup(t)
	ctx := context.Background()

	vehicle := setup.registerVehicle(t, "FLT-0042", 5600)
	rental := setup.reserve(t, vehicle, 2)
	result, err := setup.Rentals.ActivateRental(ctx, rental.ID)
	require.NoError(t, err)

	capture, err := setup.Payments.CapturePayment(ctx, result.Invoice.ID,
		valueobject.MustNewMoney(11200, valueobject.USD), ledger.AccountCodeCash, "txn-20260403-992")
	require.NoError(t, err)

	// Reverse the capture: a mirrored entry, the original stays untouched
	reversal, err := setup.Journal.ReverseEntry(ctx, capture.Entry.ExternalReference, "charge disputed")
	require.NoError(t, err)
	assert.Equal(t, capture.Entry.ExternalReference+"-reversal", reversal.ExternalReference)

	cash, err := setup.AccountRepo.FindByCode(ctx, ledger.AccountCodeCash)
	require.NoError(t, err)
	balance, err := setup.EntryRepo.SumForAccount(ctx, cash.ID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)

	balanced, err := setup.Engine.VerifyAccountingEquation(ctx, time.Now())
	require.NoError(t, err)
	assert.True(t, balanced)
}
