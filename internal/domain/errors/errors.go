package errors

import (
	"errors"
	"fmt"
)

var (
	// Upstream (Daraja) errors
	ErrAuthentication      = errors.New("daraja authentication failed")
	ErrPaymentInitiation   = errors.New("payment initiation failed")
	ErrStatusQuery         = errors.New("status query failed")
	ErrProviderUnavailable = errors.New("payment provider unavailable")

	// Input errors
	ErrFormat        = errors.New("invalid format")
	ErrInvalidAmount = errors.New("invalid amount")

	// Transaction errors
	ErrTransactionNotFound    = errors.New("transaction not found")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrCorrelationNotFound    = errors.New("checkout correlation not found")

	// Idempotency errors
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// Lock errors
	ErrLockAcquisitionFailed = errors.New("failed to acquire lock")
	ErrLockNotHeld           = errors.New("lock not held")

	// Auth errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// Validation errors
	ErrValidationFailed = errors.New("validation failed")
	ErrInvalidInput     = errors.New("invalid input")
)

// DomainError wraps errors with additional context
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}
