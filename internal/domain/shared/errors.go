package shared

import (
	"errors"
	"fmt"
)

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// NewDomainErrorf creates a new domain error with a formatted message
func NewDomainErrorf(code, format string, args ...any) *DomainError {
	return &DomainError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Error codes for the ingestion error taxonomy. Configuration errors are
// fatal for the affected scope; rate/validation errors quarantine a row;
// structural errors quarantine a whole file; refresh failures are logged
// and leave the previous snapshot authoritative.
const (
	CodeConfigurationError  = "CONFIGURATION_ERROR"
	CodeRateNotFound        = "RATE_NOT_FOUND"
	CodeValidationError     = "VALIDATION_ERROR"
	CodeStructuralFileError = "STRUCTURAL_FILE_ERROR"
	CodeRefreshFailure      = "REFRESH_FAILURE"
	CodeNotFound            = "NOT_FOUND"
	CodeInvalidState        = "INVALID_STATE"
	CodeInvalidInput        = "INVALID_INPUT"
	CodeConcurrencyConflict = "CONCURRENCY_CONFLICT"
	CodeScopeLocked         = "SCOPE_LOCKED"
)

// Common domain errors
var (
	ErrNotFound            = NewDomainError(CodeNotFound, "Resource not found")
	ErrInvalidInput        = NewDomainError(CodeInvalidInput, "Invalid input provided")
	ErrInvalidState        = NewDomainError(CodeInvalidState, "Operation not allowed in current state")
	ErrConcurrencyConflict = NewDomainError(CodeConcurrencyConflict, "Resource was modified by another process")
	ErrRateNotFound        = NewDomainError(CodeRateNotFound, "No exchange rate available for the requested conversion")
	ErrScopeLocked         = NewDomainError(CodeScopeLocked, "Ingestion scope is locked by another run")
)

// IsCode reports whether err is, or wraps, a DomainError carrying the given code.
func IsCode(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}
