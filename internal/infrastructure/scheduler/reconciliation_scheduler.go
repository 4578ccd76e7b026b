package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"go.uber.org/zap"

	"github.com/fleetrent/backend/internal/domain/ledger"
)

// ReconciliationRunner runs one full audit cycle and persists its record.
type ReconciliationRunner interface {
	Run(ctx context.Context) (*ledger.ReconciliationRun, error)
}

// reconciliationLockKey is the distributed election key. Only one node at a
// time executes the scheduled audit; the others skip the tick.
const reconciliationLockKey = "fleetrent:reconciliation:runner"

// ReconciliationSchedulerConfig holds configuration for the reconciliation scheduler
type ReconciliationSchedulerConfig struct {
	// Enabled determines if the scheduler is active
	Enabled bool

	// Interval is how often the audit runs
	Interval time.Duration

	// LockTTL is the single-runner lock lifetime; it must outlive the slowest
	// expected run or a second node can start mid-audit
	LockTTL time.Duration

	// RunTimeout is the maximum time for one audit run
	RunTimeout time.Duration
}

// DefaultReconciliationSchedulerConfig returns default configuration
func DefaultReconciliationSchedulerConfig() ReconciliationSchedulerConfig {
	return ReconciliationSchedulerConfig{
		Enabled:    true,
		Interval:   time.Hour,
		LockTTL:    10 * time.Minute,
		RunTimeout: 10 * time.Minute,
	}
}

// ReconciliationScheduler periodically replays operational state against the
// ledger. With multiple nodes a redis lock elects a single runner per tick;
// without redis it runs unconditionally (single-node deployments).
type ReconciliationScheduler struct {
	runner    ReconciliationRunner
	locker    *redislock.Client
	logger    *zap.Logger
	config    ReconciliationSchedulerConfig
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewReconciliationScheduler creates a new reconciliation scheduler.
// locker may be nil when no redis is configured; the scheduler then runs
// every tick without election.
func NewReconciliationScheduler(
	runner ReconciliationRunner,
	locker *redislock.Client,
	logger *zap.Logger,
	config ReconciliationSchedulerConfig,
) *ReconciliationScheduler {
	return &ReconciliationScheduler{
		runner: runner,
		locker: locker,
		logger: logger,
		config: config,
	}
}

// Start starts the reconciliation scheduler
func (s *ReconciliationScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	if !s.config.Enabled {
		s.mu.Unlock()
		s.logger.Info("Reconciliation scheduler is disabled")
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.runLoop(ctx)

	s.logger.Info("Reconciliation scheduler started",
		zap.Duration("interval", s.config.Interval),
		zap.Duration("lock_ttl", s.config.LockTTL),
		zap.Bool("distributed_election", s.locker != nil),
	)

	return nil
}

// Stop gracefully stops the scheduler
func (s *ReconciliationScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	// Wait for goroutines to finish with timeout
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Reconciliation scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Reconciliation scheduler stop timed out")
		return ctx.Err()
	}
}

// runLoop runs the audit on every interval tick
func (s *ReconciliationScheduler) runLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("Reconciliation loop stopping")
			return
		case <-ticker.C:
			s.executeRun(ctx, "scheduled")
		}
	}
}

// executeRun performs one audit run, holding the single-runner lock when a
// locker is configured
func (s *ReconciliationScheduler) executeRun(ctx context.Context, trigger string) {
	runCtx, cancel := context.WithTimeout(ctx, s.config.RunTimeout)
	defer cancel()

	if s.locker != nil {
		lock, err := s.locker.Obtain(runCtx, reconciliationLockKey, s.config.LockTTL, nil)
		if err == redislock.ErrNotObtained {
			s.logger.Debug("Reconciliation run skipped, another node holds the runner lock",
				zap.String("trigger", trigger),
			)
			return
		}
		if err != nil {
			s.logger.Error("Failed to obtain reconciliation runner lock",
				zap.String("trigger", trigger),
				zap.Error(err),
			)
			return
		}
		// Best-effort release; the TTL reclaims the lock if this fails.
		defer func() {
			_ = lock.Release(runCtx)
		}()
	}

	s.logger.Info("Starting reconciliation run",
		zap.String("trigger", trigger),
		zap.Time("started_at", time.Now()),
	)

	startTime := time.Now()
	run, err := s.runner.Run(runCtx)
	duration := time.Since(startTime)

	if err != nil {
		s.logger.Error("Reconciliation run failed",
			zap.String("trigger", trigger),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return
	}

	s.logger.Info("Reconciliation run completed",
		zap.String("trigger", trigger),
		zap.String("run_id", run.ID.String()),
		zap.String("status", run.Status.String()),
		zap.Int("mismatches", run.MismatchCount),
		zap.Bool("equation_balanced", run.EquationBalanced),
		zap.Int64("checked_rentals", run.CheckedRentals),
		zap.Int64("checked_invoices", run.CheckedInvoices),
		zap.Duration("duration", duration),
	)
}

// TriggerImmediateRun triggers an audit run outside the regular interval
func (s *ReconciliationScheduler) TriggerImmediateRun(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	s.wg.Add(1) // Track the goroutine
	s.mu.Unlock()

	s.logger.Info("Triggering immediate reconciliation run")

	// Run in a goroutine to not block
	go func() {
		defer s.wg.Done()
		s.executeRun(ctx, "manual")
	}()

	return nil
}

// IsRunning returns whether the scheduler is running
func (s *ReconciliationScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}
