// Package telemetry provides OpenTelemetry integration for metrics collection.
package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// BusinessMetrics provides business metrics for the rental back office.
// It tracks journal posting activity, payment captures, concurrency
// pressure, and reconciliation outcomes.
type BusinessMetrics struct {
	meter  metric.Meter
	logger *zap.Logger

	// Counter metrics (monotonically increasing)
	entryPostedTotal       *Counter
	entryReplayedTotal     *Counter
	postedAmountTotal      *Counter
	paymentCapturedTotal   *Counter
	lockTimeoutTotal       *Counter
	versionConflictTotal   *Counter
	requestReplayTotal     *Counter
	reconciliationRunTotal *Counter

	// Gauge metrics (point-in-time values)
	outstandingReceivables   *Gauge
	activeRentals            *Gauge
	reconciliationMismatches *Gauge
	equationBalanced         *Gauge

	// Periodic collector
	stopChan    chan struct{}
	stopOnce    sync.Once
	collectOnce sync.Once

	// Data provider for periodic collection
	fleetProvider FleetMetricsProvider
}

// FleetMetricsProvider provides operational data for periodic metrics
// collection. The interface keeps the telemetry layer from depending on
// the billing and rental domains directly.
type FleetMetricsProvider interface {
	// OutstandingInvoiceAmount returns the total unpaid amount across open invoices
	OutstandingInvoiceAmount(ctx context.Context) (int64, error)

	// CountActiveRentals returns the number of rentals currently on the road
	CountActiveRentals(ctx context.Context) (int64, error)
}

// BusinessMetricsConfig holds configuration for business metrics.
type BusinessMetricsConfig struct {
	Meter           metric.Meter
	Logger          *zap.Logger
	CollectInterval time.Duration // Default: 5 minutes
	FleetProvider   FleetMetricsProvider
}

// NewBusinessMetrics creates a new BusinessMetrics instance.
func NewBusinessMetrics(cfg BusinessMetricsConfig) (*BusinessMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	bm := &BusinessMetrics{
		meter:         cfg.Meter,
		logger:        logger,
		stopChan:      make(chan struct{}),
		fleetProvider: cfg.FleetProvider,
	}

	// Initialize counter metrics
	var err error

	// Ledger posting metrics
	bm.entryPostedTotal, err = NewCounter(
		cfg.Meter,
		"fleet_ledger_entry_posted_total",
		"Total number of journal entries posted",
		"{entries}",
	)
	if err != nil {
		return nil, err
	}

	bm.entryReplayedTotal, err = NewCounter(
		cfg.Meter,
		"fleet_ledger_entry_replayed_total",
		"Total number of posting attempts answered by an already stored entry",
		"{entries}",
	)
	if err != nil {
		return nil, err
	}

	bm.postedAmountTotal, err = NewCounter(
		cfg.Meter,
		"fleet_ledger_posted_amount_total",
		"Total posted debit volume in minor currency units",
		"{cents}",
	)
	if err != nil {
		return nil, err
	}

	// Payment metrics
	bm.paymentCapturedTotal, err = NewCounter(
		cfg.Meter,
		"fleet_payment_captured_total",
		"Total number of captured payments",
		"{payments}",
	)
	if err != nil {
		return nil, err
	}

	// Concurrency metrics
	bm.lockTimeoutTotal, err = NewCounter(
		cfg.Meter,
		"fleet_lock_timeout_total",
		"Total number of resource lock acquisitions that timed out",
		"{timeouts}",
	)
	if err != nil {
		return nil, err
	}

	bm.versionConflictTotal, err = NewCounter(
		cfg.Meter,
		"fleet_version_conflict_total",
		"Total number of optimistic version check failures",
		"{conflicts}",
	)
	if err != nil {
		return nil, err
	}

	bm.requestReplayTotal, err = NewCounter(
		cfg.Meter,
		"fleet_request_replay_total",
		"Total number of requests answered from the idempotent request cache",
		"{requests}",
	)
	if err != nil {
		return nil, err
	}

	// Reconciliation metrics
	bm.reconciliationRunTotal, err = NewCounter(
		cfg.Meter,
		"fleet_reconciliation_run_total",
		"Total number of reconciliation runs",
		"{runs}",
	)
	if err != nil {
		return nil, err
	}

	// Gauge metrics
	bm.outstandingReceivables, err = NewGauge(
		cfg.Meter,
		"fleet_invoice_outstanding_amount",
		"Current unpaid amount across open invoices in minor currency units",
		"{cents}",
	)
	if err != nil {
		return nil, err
	}

	bm.activeRentals, err = NewGauge(
		cfg.Meter,
		"fleet_active_rentals",
		"Number of rentals currently on the road",
		"{rentals}",
	)
	if err != nil {
		return nil, err
	}

	bm.reconciliationMismatches, err = NewGauge(
		cfg.Meter,
		"fleet_reconciliation_mismatches",
		"Mismatches found by the most recent reconciliation run",
		"{mismatches}",
	)
	if err != nil {
		return nil, err
	}

	bm.equationBalanced, err = NewGauge(
		cfg.Meter,
		"fleet_accounting_equation_balanced",
		"Whether assets equaled liabilities plus equity at the last check (1 = balanced)",
		"{bool}",
	)
	if err != nil {
		return nil, err
	}

	return bm, nil
}

// =============================================================================
// Ledger Posting Metrics
// =============================================================================

// RecordEntryPosted records a freshly persisted journal entry along with its
// debit volume. This should be called from the accounting poster after a
// successful post.
func (bm *BusinessMetrics) RecordEntryPosted(ctx context.Context, eventType string, debitTotalMinor int64) {
	bm.entryPostedTotal.Inc(ctx, AttrEventType.String(eventType))
	bm.postedAmountTotal.Add(ctx, debitTotalMinor, AttrEventType.String(eventType))
}

// RecordEntryReplayed records a posting attempt that was answered by the
// already stored entry for the same external reference.
func (bm *BusinessMetrics) RecordEntryReplayed(ctx context.Context, eventType string) {
	bm.entryReplayedTotal.Inc(ctx, AttrEventType.String(eventType))
}

// =============================================================================
// Payment Metrics
// =============================================================================

// PaymentStatus represents the outcome of a payment capture for metrics labeling.
type PaymentStatus string

const (
	PaymentStatusSuccess PaymentStatus = "success"
	PaymentStatusFailed  PaymentStatus = "failed"
)

// RecordPaymentCaptured records a payment capture attempt.
func (bm *BusinessMetrics) RecordPaymentCaptured(ctx context.Context, paymentMethod string, status PaymentStatus) {
	bm.paymentCapturedTotal.Inc(ctx,
		AttrPaymentMethod.String(paymentMethod),
		AttrPaymentStatus.String(string(status)),
	)
}

// =============================================================================
// Concurrency Metrics
// =============================================================================

// RecordLockTimeout records a resource lock acquisition that gave up waiting.
func (bm *BusinessMetrics) RecordLockTimeout(ctx context.Context, lockSpace string) {
	bm.lockTimeoutTotal.Inc(ctx, AttrLockSpace.String(lockSpace))
}

// RecordVersionConflict records an optimistic version check failure.
func (bm *BusinessMetrics) RecordVersionConflict(ctx context.Context, aggregateType string) {
	bm.versionConflictTotal.Inc(ctx, AttrAggregateType.String(aggregateType))
}

// RecordRequestReplay records a request answered verbatim from the
// idempotent request cache.
func (bm *BusinessMetrics) RecordRequestReplay(ctx context.Context, route string) {
	bm.requestReplayTotal.Inc(ctx, AttrHTTPRoute.String(route))
}

// =============================================================================
// Reconciliation Metrics
// =============================================================================

// RecordReconciliationRun records the outcome of a reconciliation run.
func (bm *BusinessMetrics) RecordReconciliationRun(ctx context.Context, status string, mismatches int64, balanced bool) {
	bm.reconciliationRunTotal.Inc(ctx, AttrRunStatus.String(status))
	bm.reconciliationMismatches.Record(ctx, mismatches)

	var balancedValue int64
	if balanced {
		balancedValue = 1
	}
	bm.equationBalanced.Record(ctx, balancedValue)
}

// =============================================================================
// Periodic Collection
// =============================================================================

// StartPeriodicCollection starts periodic collection of gauge metrics.
// It collects fleet metrics every interval (default: 5 minutes).
// This is non-blocking - use Stop() to stop collection.
func (bm *BusinessMetrics) StartPeriodicCollection(ctx context.Context, interval time.Duration) {
	bm.collectOnce.Do(func() {
		if interval <= 0 {
			interval = 5 * time.Minute
		}

		go bm.runPeriodicCollection(ctx, interval)
	})
}

// runPeriodicCollection runs the periodic collection loop.
func (bm *BusinessMetrics) runPeriodicCollection(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Collect immediately on start
	bm.collectFleetMetrics(ctx)

	for {
		select {
		case <-bm.stopChan:
			bm.logger.Info("Stopping periodic business metrics collection")
			return
		case <-ctx.Done():
			bm.logger.Info("Context cancelled, stopping periodic business metrics collection")
			return
		case <-ticker.C:
			bm.collectFleetMetrics(ctx)
		}
	}
}

// collectFleetMetrics collects the operational gauge metrics.
func (bm *BusinessMetrics) collectFleetMetrics(ctx context.Context) {
	if bm.fleetProvider == nil {
		bm.logger.Debug("No fleet provider configured, skipping fleet metrics collection")
		return
	}

	outstanding, err := bm.fleetProvider.OutstandingInvoiceAmount(ctx)
	if err != nil {
		bm.logger.Warn("Failed to get outstanding invoice amount", zap.Error(err))
	} else {
		bm.outstandingReceivables.Record(ctx, outstanding)
	}

	active, err := bm.fleetProvider.CountActiveRentals(ctx)
	if err != nil {
		bm.logger.Warn("Failed to count active rentals", zap.Error(err))
	} else {
		bm.activeRentals.Record(ctx, active)
	}
}

// Stop stops the periodic collection.
func (bm *BusinessMetrics) Stop() {
	bm.stopOnce.Do(func() {
		close(bm.stopChan)
	})
}

// =============================================================================
// Error Types
// =============================================================================

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = &MetricsError{Op: "NewBusinessMetrics", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}
