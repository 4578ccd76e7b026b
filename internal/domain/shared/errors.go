package shared

import "errors"

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// Is matches domain errors by code so wrapped and rephrased variants of the
// same condition compare equal under errors.Is
func (e *DomainError) Is(target error) bool {
	var de *DomainError
	if errors.As(target, &de) {
		return e.Code == de.Code
	}
	return false
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Common domain errors
var (
	ErrNotFound        = NewDomainError("NOT_FOUND", "Resource not found")
	ErrAlreadyExists   = NewDomainError("ALREADY_EXISTS", "Resource already exists")
	ErrValidation      = NewDomainError("VALIDATION_ERROR", "Invalid input provided")
	ErrConflict        = NewDomainError("CONCURRENCY_CONFLICT", "Resource was modified by another process")
	ErrLockTimeout     = NewDomainError("LOCK_TIMEOUT", "Could not acquire resource lock in time")
	ErrImbalancedEntry = NewDomainError("IMBALANCED_ENTRY", "Ledger entry debits and credits do not balance")
	ErrInvalidState    = NewDomainError("INVALID_STATE", "Operation not allowed in current state")
)

// retryableCodes are transient conflicts a caller may retry with backoff.
// Integrity violations are deliberately absent: retrying them cannot succeed.
var retryableCodes = map[string]bool{
	ErrConflict.Code:    true,
	ErrLockTimeout.Code: true,
}

// IsRetryable reports whether the error is a transient conflict worth retrying
func IsRetryable(err error) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return retryableCodes[de.Code]
	}
	return false
}
