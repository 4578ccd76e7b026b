package reconciliation

import (
	"context"
	"fmt"
	"time"

	"github.com/fleetrent/backend/internal/domain/billing"
	"github.com/fleetrent/backend/internal/domain/fleet"
	"github.com/fleetrent/backend/internal/domain/ledger"
	"github.com/fleetrent/backend/internal/domain/shared"
	"github.com/fleetrent/backend/internal/domain/shared/valueobject"
	"github.com/fleetrent/backend/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const defaultPageSize = 100

// Engine proves that operational records and the ledger never silently
// diverge. It compares each aggregate's stored amount against the
// ledger-derived prefix sum of the entries its events should have posted, and
// checks the fundamental identity Assets == Liabilities + Equity. Every
// finding is reported, never auto-corrected: a mismatch means a logic defect
// somewhere, and the books must keep the evidence.
type Engine struct {
	rentalRepo  fleet.RentalRepository
	invoiceRepo billing.InvoiceRepository
	accountRepo ledger.AccountRepository
	entryRepo   ledger.EntryRepository
	policy      *ledger.PostingPolicy
	runRepo     ledger.ReconciliationRunRepository
	metrics     *telemetry.BusinessMetrics
	logger      *zap.Logger
	pageSize    int
}

// EngineOption is a functional option for configuring the Engine
type EngineOption func(*Engine)

// WithRunAudit persists a ReconciliationRun record per Run call
func WithRunAudit(repo ledger.ReconciliationRunRepository) EngineOption {
	return func(e *Engine) {
		e.runRepo = repo
	}
}

// WithBusinessMetrics wires run counters; nil is ignored
func WithBusinessMetrics(metrics *telemetry.BusinessMetrics) EngineOption {
	return func(e *Engine) {
		e.metrics = metrics
	}
}

// WithPageSize overrides how many aggregates are loaded per page during the
// verification walks
func WithPageSize(size int) EngineOption {
	return func(e *Engine) {
		if size > 0 {
			e.pageSize = size
		}
	}
}

// NewEngine creates a reconciliation engine
func NewEngine(
	rentalRepo fleet.RentalRepository,
	invoiceRepo billing.InvoiceRepository,
	accountRepo ledger.AccountRepository,
	entryRepo ledger.EntryRepository,
	policy *ledger.PostingPolicy,
	logger *zap.Logger,
	opts ...EngineOption,
) *Engine {
	e := &Engine{
		rentalRepo:  rentalRepo,
		invoiceRepo: invoiceRepo,
		accountRepo: accountRepo,
		entryRepo:   entryRepo,
		policy:      policy,
		logger:      logger,
		pageSize:    defaultPageSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// VerifyOperationalVsLedger walks every financially effective rental and
// every open or settled invoice, comparing the operationally stored amount to
// the ledger sum under the event's reference prefix. The returned slice is
// empty when the two sides agree everywhere.
func (e *Engine) VerifyOperationalVsLedger(ctx context.Context) ([]ledger.ReconciliationMismatch, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "reconciliation", "verify_operational_vs_ledger")
	defer span.End()

	mismatches := make([]ledger.ReconciliationMismatch, 0)

	rentalMismatches, checkedRentals, err := e.verifyRentals(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	mismatches = append(mismatches, rentalMismatches...)

	invoiceMismatches, checkedInvoices, err := e.verifyInvoices(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	mismatches = append(mismatches, invoiceMismatches...)

	telemetry.SetAttributes(span,
		"checked_rentals", checkedRentals,
		"checked_invoices", checkedInvoices,
		"mismatches", len(mismatches),
	)

	for i := range mismatches {
		m := &mismatches[i]
		e.logger.Warn("Reconciliation mismatch detected",
			zap.String("kind", string(m.Kind)),
			zap.String("entity_id", m.EntityID.String()),
			zap.String("entity_number", m.EntityNumber),
			zap.String("reference_prefix", m.ReferencePrefix),
			zap.Int64("operational_minor", m.OperationalAmount.Amount()),
			zap.Int64("ledger_minor", m.LedgerAmount.Amount()),
		)
	}
	return mismatches, nil
}

// verifyRentals checks each active or completed rental's total against its
// activation entries
func (e *Engine) verifyRentals(ctx context.Context) ([]ledger.ReconciliationMismatch, int64, error) {
	probe, err := e.policy.Probe(ledger.EventTypeActivation)
	if err != nil {
		return nil, 0, err
	}
	account, err := e.accountRepo.FindByCode(ctx, probe.AccountCode)
	if err != nil {
		return nil, 0, err
	}
	sign := probe.Sign(account.NormalSide())

	statuses := []fleet.RentalStatus{fleet.RentalStatusActive, fleet.RentalStatusCompleted}
	mismatches := make([]ledger.ReconciliationMismatch, 0)
	var checked int64

	filter := shared.DefaultFilter()
	filter.PageSize = e.pageSize
	for page := 1; ; page++ {
		filter.Page = page
		rentals, err := e.rentalRepo.FindAllByStatuses(ctx, statuses, filter)
		if err != nil {
			return nil, checked, err
		}

		for i := range rentals {
			rental := &rentals[i]
			checked++

			ref, err := ledger.NewEventReference(ledger.AggregateTypeRental, rental.ID, ledger.EventTypeActivation)
			if err != nil {
				return nil, checked, err
			}
			ledgerAmount, err := e.prefixSum(ctx, ref.Prefix(), account, sign, rental.TotalAmount.Currency())
			if err != nil {
				return nil, checked, err
			}

			if !rental.TotalAmount.Equals(ledgerAmount) {
				mismatch, err := ledger.NewReconciliationMismatch(
					ledger.MismatchKindRentalActivation,
					rental.ID,
					rental.RentalNumber,
					ref.Prefix(),
					rental.TotalAmount,
					ledgerAmount,
				)
				if err != nil {
					return nil, checked, err
				}
				mismatches = append(mismatches, *mismatch)
			}
		}

		if len(rentals) < filter.PageSize {
			return mismatches, checked, nil
		}
	}
}

// verifyInvoices checks each non-void invoice's paid amount against its
// payment entries
func (e *Engine) verifyInvoices(ctx context.Context) ([]ledger.ReconciliationMismatch, int64, error) {
	probe, err := e.policy.Probe(ledger.EventTypePayment)
	if err != nil {
		return nil, 0, err
	}
	account, err := e.accountRepo.FindByCode(ctx, probe.AccountCode)
	if err != nil {
		return nil, 0, err
	}
	sign := probe.Sign(account.NormalSide())

	mismatches := make([]ledger.ReconciliationMismatch, 0)
	var checked int64

	filter := billing.InvoiceFilter{Filter: shared.DefaultFilter()}
	filter.PageSize = e.pageSize
	for page := 1; ; page++ {
		filter.Page = page
		invoices, err := e.invoiceRepo.FindAll(ctx, filter)
		if err != nil {
			return nil, checked, err
		}

		for i := range invoices {
			invoice := &invoices[i]
			if invoice.Status == billing.InvoiceStatusVoid {
				continue
			}
			checked++

			ref, err := ledger.NewEventReference(ledger.AggregateTypeInvoice, invoice.ID, ledger.EventTypePayment)
			if err != nil {
				return nil, checked, err
			}
			ledgerAmount, err := e.prefixSum(ctx, ref.Prefix(), account, sign, invoice.PaidAmount.Currency())
			if err != nil {
				return nil, checked, err
			}

			if !invoice.PaidAmount.Equals(ledgerAmount) {
				mismatch, err := ledger.NewReconciliationMismatch(
					ledger.MismatchKindInvoicePayment,
					invoice.ID,
					invoice.InvoiceNumber,
					ref.Prefix(),
					invoice.PaidAmount,
					ledgerAmount,
				)
				if err != nil {
					return nil, checked, err
				}
				mismatches = append(mismatches, *mismatch)
			}
		}

		if len(invoices) < filter.PageSize {
			return mismatches, checked, nil
		}
	}
}

// prefixSum reads the ledger trace for one event prefix and converts the
// normal-side-adjusted account sum into the event's own orientation
func (e *Engine) prefixSum(ctx context.Context, prefix string, account *ledger.Account, sign int64, currency valueobject.Currency) (valueobject.Money, error) {
	raw, err := e.entryRepo.SumForReferencePrefix(ctx, prefix, account.ID)
	if err != nil {
		return valueobject.Money{}, err
	}
	return valueobject.NewMoney(raw*sign, currency)
}

// VerifyAccountingEquation checks Assets == Liabilities + Equity as of the
// given time. Equity includes the current-period earnings (revenue minus
// expenses), which is what keeps the identity invariant under every balanced
// entry: revenue and expense postings land on the equity side until a formal
// closing entry would move them. A false result means an imbalanced entry
// reached storage and is escalated as a critical integrity event.
func (e *Engine) VerifyAccountingEquation(ctx context.Context, asOf time.Time) (bool, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "reconciliation", "verify_accounting_equation")
	defer span.End()

	sums := make(map[ledger.AccountType]int64, 5)
	for _, accountType := range ledger.AllAccountTypes() {
		accounts, err := e.accountRepo.FindByType(ctx, accountType)
		if err != nil {
			telemetry.RecordError(span, err)
			return false, err
		}
		for i := range accounts {
			sum, err := e.entryRepo.SumForAccount(ctx, accounts[i].ID, asOf)
			if err != nil {
				telemetry.RecordError(span, err)
				return false, err
			}
			sums[accountType] += sum
		}
	}

	assets := sums[ledger.AccountTypeAsset]
	liabilities := sums[ledger.AccountTypeLiability]
	equity := sums[ledger.AccountTypeEquity] + sums[ledger.AccountTypeRevenue] - sums[ledger.AccountTypeExpense]
	balanced := assets == liabilities+equity

	telemetry.SetAttributes(span,
		"assets_minor", assets,
		"liabilities_minor", liabilities,
		"equity_minor", equity,
		"balanced", balanced,
	)

	if !balanced {
		// Structurally impossible unless the posting gate was bypassed.
		// Escalate loudly and never retry.
		e.logger.Error("Accounting equation violated",
			zap.Int64("assets_minor", assets),
			zap.Int64("liabilities_minor", liabilities),
			zap.Int64("equity_minor", equity),
			zap.Int64("difference_minor", assets-(liabilities+equity)),
			zap.Time("as_of", asOf),
		)
	}
	return balanced, nil
}

// Run executes both verification passes, persists the audit record when a
// run repository is configured, and returns the finished run
func (e *Engine) Run(ctx context.Context) (*ledger.ReconciliationRun, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "reconciliation", "run")
	defer span.End()

	run := ledger.NewReconciliationRun()

	rentalMismatches, checkedRentals, err := e.verifyRentals(ctx)
	if err != nil {
		return e.failRun(ctx, span, run, fmt.Errorf("rental verification failed: %w", err))
	}
	invoiceMismatches, checkedInvoices, err := e.verifyInvoices(ctx)
	if err != nil {
		return e.failRun(ctx, span, run, fmt.Errorf("invoice verification failed: %w", err))
	}
	balanced, err := e.VerifyAccountingEquation(ctx, time.Now())
	if err != nil {
		return e.failRun(ctx, span, run, fmt.Errorf("equation verification failed: %w", err))
	}

	mismatches := append(rentalMismatches, invoiceMismatches...)
	run.Complete(mismatches, balanced, checkedRentals, checkedInvoices)

	if e.runRepo != nil {
		if err := e.runRepo.Save(ctx, run); err != nil {
			telemetry.RecordError(span, err)
			return nil, fmt.Errorf("failed to persist reconciliation run: %w", err)
		}
	}
	if e.metrics != nil {
		e.metrics.RecordReconciliationRun(ctx, run.Status.String(), int64(run.MismatchCount), run.EquationBalanced)
	}

	e.logger.Info("Reconciliation run finished",
		zap.String("status", run.Status.String()),
		zap.Int64("checked_rentals", run.CheckedRentals),
		zap.Int64("checked_invoices", run.CheckedInvoices),
		zap.Int("mismatches", run.MismatchCount),
		zap.Bool("equation_balanced", run.EquationBalanced),
		zap.Int64("duration_ms", run.DurationMs),
	)
	return run, nil
}

// failRun finalizes and best-effort persists a run that aborted mid-flight
func (e *Engine) failRun(ctx context.Context, span trace.Span, run *ledger.ReconciliationRun, cause error) (*ledger.ReconciliationRun, error) {
	telemetry.RecordError(span, cause)
	run.Fail(cause.Error())
	if e.runRepo != nil {
		if saveErr := e.runRepo.Save(ctx, run); saveErr != nil {
			e.logger.Error("Failed to persist failed reconciliation run", zap.Error(saveErr))
		}
	}
	if e.metrics != nil {
		e.metrics.RecordReconciliationRun(ctx, run.Status.String(), 0, false)
	}
	e.logger.Error("Reconciliation run failed", zap.Error(cause))
	return nil, cause
}

// History returns the most recent persisted runs, newest first
func (e *Engine) History(ctx context.Context, limit int) ([]ledger.ReconciliationRun, error) {
	if e.runRepo == nil {
		return nil, shared.NewDomainError(shared.ErrInvalidState.Code, "Run audit persistence is not configured")
	}
	if limit <= 0 {
		limit = 20
	}
	return e.runRepo.FindRecent(ctx, limit)
}
