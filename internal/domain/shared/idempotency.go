package shared

import (
	"context"
	"time"
)

// BeginState is the outcome of a request-cache lookup for a key
type BeginState string

const (
	// BeginStateFresh means the key has never been seen (or its previous
	// record expired); the caller owns the execution and must call Complete
	// exactly once on success.
	BeginStateFresh BeginState = "FRESH"

	// BeginStateInProgress means another execution holds the key; the caller
	// must surface a retryable conflict, never run the operation again.
	BeginStateInProgress BeginState = "IN_PROGRESS"

	// BeginStateCompleted means a finished execution is cached; the caller
	// must return the stored response verbatim.
	BeginStateCompleted BeginState = "COMPLETED"
)

// BeginResult carries the state for a key and, when completed, the response
// recorded by the first execution
type BeginResult struct {
	State        BeginState
	CachedStatus int
	CachedBody   []byte
}

// RequestCache is an at-most-once execution guard keyed by a caller-supplied
// idempotency key. It is independent of the ledger's external-reference
// idempotency: keys here expire after a bounded TTL, ledger references never
// do. The key alone is authoritative — a retry with a different body still
// receives the first execution's cached response.
type RequestCache interface {
	// Begin claims the key for this execution. The fingerprint (method and
	// path of the original request) is stored for diagnostics only and plays
	// no part in matching.
	Begin(ctx context.Context, key, fingerprint string) (BeginResult, error)

	// Complete records the response for a key previously claimed Fresh.
	// It must be called exactly once per successful execution.
	Complete(ctx context.Context, key string, status int, body []byte) error

	// DeleteExpired removes records past their expiry and returns how many
	// were removed.
	DeleteExpired(ctx context.Context) (int64, error)
}

// IdempotencyStatus is the lifecycle state of an IdempotencyRecord
type IdempotencyStatus string

const (
	IdempotencyStatusInProgress IdempotencyStatus = "IN_PROGRESS"
	IdempotencyStatusCompleted  IdempotencyStatus = "COMPLETED"
)

// IsValid returns true when the status is a known lifecycle state
func (s IdempotencyStatus) IsValid() bool {
	switch s {
	case IdempotencyStatusInProgress, IdempotencyStatusCompleted:
		return true
	}
	return false
}

// IdempotencyRecord is the stored claim for one request key. It is created on
// first sighting of a key, transitions to Completed exactly once, and becomes
// reusable by a fresh request after ExpiresAt.
type IdempotencyRecord struct {
	Key                string
	RequestFingerprint string
	Status             IdempotencyStatus
	CachedStatus       int
	CachedBody         []byte
	ExpiresAt          time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Expired reports whether the record may be reclaimed by a new execution
func (r *IdempotencyRecord) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// IdempotencyConfig holds configuration for the request cache
type IdempotencyConfig struct {
	// TTL is how long a completed or in-progress record blocks reuse of its
	// key. Default: 24 hours.
	TTL time.Duration

	// Enabled determines whether request-level idempotency is enforced.
	// Default: true.
	Enabled bool
}

// DefaultIdempotencyConfig returns the default request-cache configuration
func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		TTL:     24 * time.Hour,
		Enabled: true,
	}
}
