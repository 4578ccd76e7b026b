package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fleetrent/backend/internal/domain/shared"
)

// RequestCacheJanitorConfig holds configuration for the request cache janitor
type RequestCacheJanitorConfig struct {
	// Enabled determines if the janitor is active
	Enabled bool

	// Interval is how often expired records are purged
	Interval time.Duration

	// SweepTimeout is the maximum time for one purge pass
	SweepTimeout time.Duration
}

// DefaultRequestCacheJanitorConfig returns default configuration
func DefaultRequestCacheJanitorConfig() RequestCacheJanitorConfig {
	return RequestCacheJanitorConfig{
		Enabled:      true,
		Interval:     time.Hour,
		SweepTimeout: time.Minute,
	}
}

// RequestCacheJanitor periodically purges expired idempotency records.
// The redis backend expires keys natively; the janitor matters for the
// database backend where rows would otherwise accumulate forever.
type RequestCacheJanitor struct {
	cache     shared.RequestCache
	logger    *zap.Logger
	config    RequestCacheJanitorConfig
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewRequestCacheJanitor creates a new request cache janitor
func NewRequestCacheJanitor(
	cache shared.RequestCache,
	logger *zap.Logger,
	config RequestCacheJanitorConfig,
) *RequestCacheJanitor {
	return &RequestCacheJanitor{
		cache:  cache,
		logger: logger,
		config: config,
	}
}

// Start starts the janitor
func (j *RequestCacheJanitor) Start(ctx context.Context) error {
	j.mu.Lock()
	if j.isRunning {
		j.mu.Unlock()
		return nil
	}
	if !j.config.Enabled {
		j.mu.Unlock()
		j.logger.Info("Request cache janitor is disabled")
		return nil
	}
	j.isRunning = true
	j.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	j.cancel = cancel

	j.wg.Add(1)
	go j.runLoop(ctx)

	j.logger.Info("Request cache janitor started",
		zap.Duration("interval", j.config.Interval),
	)

	return nil
}

// Stop gracefully stops the janitor
func (j *RequestCacheJanitor) Stop(ctx context.Context) error {
	j.mu.Lock()
	if !j.isRunning {
		j.mu.Unlock()
		return nil
	}
	j.isRunning = false
	j.mu.Unlock()

	if j.cancel != nil {
		j.cancel()
	}

	done := make(chan struct{})
	go func() {
		j.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		j.logger.Info("Request cache janitor stopped gracefully")
		return nil
	case <-ctx.Done():
		j.logger.Warn("Request cache janitor stop timed out")
		return ctx.Err()
	}
}

// runLoop purges on every interval tick
func (j *RequestCacheJanitor) runLoop(ctx context.Context) {
	defer j.wg.Done()

	ticker := time.NewTicker(j.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Debug("Request cache janitor loop stopping")
			return
		case <-ticker.C:
			j.executeSweep(ctx)
		}
	}
}

// executeSweep performs one purge pass
func (j *RequestCacheJanitor) executeSweep(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, j.config.SweepTimeout)
	defer cancel()

	startTime := time.Now()
	purged, err := j.cache.DeleteExpired(sweepCtx)
	duration := time.Since(startTime)

	if err != nil {
		j.logger.Error("Request cache sweep failed",
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return
	}

	if purged > 0 {
		j.logger.Info("Request cache sweep completed",
			zap.Int64("purged", purged),
			zap.Duration("duration", duration),
		)
	} else {
		j.logger.Debug("Request cache sweep completed, nothing to purge",
			zap.Duration("duration", duration),
		)
	}
}

// TriggerImmediateSweep runs a purge pass outside the regular interval
func (j *RequestCacheJanitor) TriggerImmediateSweep(ctx context.Context) error {
	j.mu.Lock()
	if !j.isRunning {
		j.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	j.wg.Add(1)
	j.mu.Unlock()

	go func() {
		defer j.wg.Done()
		j.executeSweep(ctx)
	}()

	return nil
}

// IsRunning returns whether the janitor is running
func (j *RequestCacheJanitor) IsRunning() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.isRunning
}
