// Package errors provides the typed error taxonomy shared by every layer of the
// storefront core.
//
// Authoritative-store and validation failures travel to callers as *AppError
// values. Cache and graph failures are classified as BackendUnavailable and are
// expected to be handled locally by the component that observed them.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ============================================================================
// ERROR CLASSIFICATION
// ============================================================================

// ErrorType defines the category of error for proper handling and response.
type ErrorType string

const (
	ErrorTypeValidation         ErrorType = "VALIDATION"
	ErrorTypeNotFound           ErrorType = "NOT_FOUND"
	ErrorTypeInsufficientStock  ErrorType = "INSUFFICIENT_STOCK"
	ErrorTypeInvalidState       ErrorType = "INVALID_STATE"
	ErrorTypeBackendUnavailable ErrorType = "BACKEND_UNAVAILABLE"
	ErrorTypeInternal           ErrorType = "INTERNAL"
)

// AppError is the single error type used across the core.
type AppError struct {
	Type     ErrorType `json:"type"`
	Code     ErrorCode `json:"code"`
	Message  string    `json:"message"`
	Details  string    `json:"details,omitempty"`
	Resource string    `json:"resource,omitempty"`
	// Operation names the call that failed, e.g. "order.place".
	Operation string `json:"operation,omitempty"`
	Retryable bool   `json:"retryable"`
	Cause     error  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s:%s] %s: %s", e.Type, e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Type, e.Code, e.Message)
}

// Unwrap allows errors.Is and errors.As to reach the underlying cause.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// String provides a multi-line representation for debug logging.
func (e *AppError) String() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Error: %s\n", e.Error()))
	if e.Operation != "" {
		b.WriteString(fmt.Sprintf("Operation: %s\n", e.Operation))
	}
	if e.Resource != "" {
		b.WriteString(fmt.Sprintf("Resource: %s\n", e.Resource))
	}
	b.WriteString(fmt.Sprintf("Retryable: %t\n", e.Retryable))
	if e.Cause != nil {
		b.WriteString(fmt.Sprintf("Cause: %v\n", e.Cause))
	}
	return b.String()
}

// ============================================================================
// ERROR BUILDER FOR FLUENT CONSTRUCTION
// ============================================================================

// ErrorBuilder provides a fluent interface for constructing AppError instances.
type ErrorBuilder struct {
	err *AppError
}

// NewError creates a new error builder with the specified type and message.
func NewError(errType ErrorType, code ErrorCode, message string) *ErrorBuilder {
	return &ErrorBuilder{
		err: &AppError{
			Type:    errType,
			Code:    code,
			Message: message,
		},
	}
}

// WithDetails adds additional details to the error.
func (b *ErrorBuilder) WithDetails(details string) *ErrorBuilder {
	b.err.Details = details
	return b
}

// WithResource specifies the resource being operated on.
func (b *ErrorBuilder) WithResource(resource string) *ErrorBuilder {
	b.err.Resource = resource
	return b
}

// WithOperation specifies the operation that failed.
func (b *ErrorBuilder) WithOperation(operation string) *ErrorBuilder {
	b.err.Operation = operation
	return b
}

// WithRetryable marks the error as retryable.
func (b *ErrorBuilder) WithRetryable(retryable bool) *ErrorBuilder {
	b.err.Retryable = retryable
	return b
}

// WithCause adds the underlying cause error.
func (b *ErrorBuilder) WithCause(cause error) *ErrorBuilder {
	b.err.Cause = cause
	return b
}

// Build returns the constructed AppError.
func (b *ErrorBuilder) Build() *AppError {
	return b.err
}

// ============================================================================
// CONVENIENCE CONSTRUCTORS
// ============================================================================

// Validation creates a validation error.
func Validation(code ErrorCode, message string) *ErrorBuilder {
	return NewError(ErrorTypeValidation, code, message)
}

// NotFound creates a not found error.
func NotFound(code ErrorCode, message string) *ErrorBuilder {
	return NewError(ErrorTypeNotFound, code, message)
}

// InsufficientStock creates an error for a quantity that exceeds available stock.
func InsufficientStock(code ErrorCode, message string) *ErrorBuilder {
	return NewError(ErrorTypeInsufficientStock, code, message)
}

// InvalidState creates an error for an operation not permitted from the current state.
func InvalidState(code ErrorCode, message string) *ErrorBuilder {
	return NewError(ErrorTypeInvalidState, code, message)
}

// BackendUnavailable creates an error for an unreachable cache or graph store.
func BackendUnavailable(code ErrorCode, message string) *ErrorBuilder {
	return NewError(ErrorTypeBackendUnavailable, code, message).WithRetryable(true)
}

// Internal creates an internal error.
func Internal(code ErrorCode, message string) *ErrorBuilder {
	return NewError(ErrorTypeInternal, code, message)
}

// ============================================================================
// ERROR CLASSIFICATION AND CHECKING
// ============================================================================

// IsType checks if an error is of a specific type.
func IsType(err error, errType ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == errType
	}
	return false
}

// IsValidation checks if an error is a validation error.
func IsValidation(err error) bool {
	return IsType(err, ErrorTypeValidation)
}

// IsNotFound checks if an error is a not found error.
func IsNotFound(err error) bool {
	return IsType(err, ErrorTypeNotFound)
}

// IsInsufficientStock checks if an error is an insufficient stock error.
func IsInsufficientStock(err error) bool {
	return IsType(err, ErrorTypeInsufficientStock)
}

// IsInvalidState checks if an error is an invalid state error.
func IsInvalidState(err error) bool {
	return IsType(err, ErrorTypeInvalidState)
}

// IsBackendUnavailable checks if an error reports an unreachable backend.
func IsBackendUnavailable(err error) bool {
	return IsType(err, ErrorTypeBackendUnavailable)
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Retryable
	}
	return false
}

// HasCode reports whether err carries code.
func HasCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// TypeOf returns the error type, or ErrorTypeInternal for foreign errors.
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ErrorTypeInternal
}

// ============================================================================
// ERROR WRAPPING
// ============================================================================

// Wrap wraps an existing error with operation context while preserving its type.
// Foreign errors become Internal errors.
func Wrap(err error, operation, message string) *AppError {
	if err == nil {
		return nil
	}

	var existing *AppError
	if errors.As(err, &existing) {
		return &AppError{
			Type:      existing.Type,
			Code:      existing.Code,
			Message:   message,
			Details:   existing.Message,
			Resource:  existing.Resource,
			Operation: operation,
			Retryable: existing.Retryable,
			Cause:     err,
		}
	}

	return &AppError{
		Type:      ErrorTypeInternal,
		Code:      CodeInternalError,
		Message:   message,
		Details:   err.Error(),
		Operation: operation,
		Cause:     err,
	}
}
