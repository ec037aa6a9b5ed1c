// Package shared provides shared domain types and utilities.
package shared

import (
	"errors"
	"fmt"
)

// Domain errors.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidInput  = errors.New("invalid input")
	ErrInternal      = errors.New("internal error")
	ErrValidation    = errors.New("validation error")

	// Remote directory error classes. ErrConnection is the only class the
	// backoff executor retries; the others fail the single call immediately.
	ErrConnection = errors.New("connection error")
	ErrAuth       = errors.New("authentication error")
	ErrPermission = errors.New("permission denied")
)

// DomainError represents a domain-specific error.
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError.
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// IsNotFound checks if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConnection checks if the error is a transient connection error.
func IsConnection(err error) bool {
	return errors.Is(err, ErrConnection)
}

// IsAuth checks if the error is an authentication error.
func IsAuth(err error) bool {
	return errors.Is(err, ErrAuth)
}

// IsPermission checks if the error is a permission error.
func IsPermission(err error) bool {
	return errors.Is(err, ErrPermission)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}
