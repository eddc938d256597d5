package core

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors for handling decisions.
type ErrorCategory string

const (
	ErrCatValidation ErrorCategory = "validation" // Invalid input
	ErrCatExecution  ErrorCategory = "execution"  // Store-level SQL failure
	ErrCatNotFound   ErrorCategory = "not_found"  // Resource not found
	ErrCatConflict   ErrorCategory = "conflict"   // State diverged from capture
	ErrCatState      ErrorCategory = "state"      // Store corruption/migration failure
	ErrCatInternal   ErrorCategory = "internal"   // Unexpected internal error
)

// DomainError represents a structured error from the domain layer.
type DomainError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Retryable bool
	Cause     error
	Details   map[string]interface{}
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s (%v)", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches a target.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Category == t.Category && e.Code == t.Code
}

// WithCause wraps an underlying error.
func (e *DomainError) WithCause(cause error) *DomainError {
	e.Cause = cause
	return e
}

// WithDetail adds contextual information.
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ErrValidation creates a validation error.
func ErrValidation(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatValidation,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// ErrInvalidIdentifier creates an error for an identifier that failed sanitization.
func ErrInvalidIdentifier(ident string) *DomainError {
	return &DomainError{
		Category:  ErrCatValidation,
		Code:      CodeInvalidIdentifier,
		Message:   fmt.Sprintf("unsafe SQL identifier: %q", ident),
		Retryable: false,
		Details: map[string]interface{}{
			"identifier": ident,
		},
	}
}

// ErrStoreExecution creates an error for a failed statement against the store.
// The store's own message is preserved verbatim so callers can surface it.
func ErrStoreExecution(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatExecution,
		Code:      CodeStoreExecution,
		Message:   message,
		Retryable: false,
	}
}

// ErrStoreBusy creates a retryable error for a locked store.
func ErrStoreBusy(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatExecution,
		Code:      CodeStoreBusy,
		Message:   message,
		Retryable: true,
	}
}

// ErrState creates a state error.
func ErrState(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatState,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// ErrNotFound creates a not found error.
func ErrNotFound(resource, id string) *DomainError {
	return &DomainError{
		Category:  ErrCatNotFound,
		Code:      "NOT_FOUND",
		Message:   fmt.Sprintf("%s not found: %s", resource, id),
		Retryable: false,
	}
}

// ErrTableNotFound creates an error for a missing table.
func ErrTableNotFound(table string) *DomainError {
	return &DomainError{
		Category:  ErrCatNotFound,
		Code:      CodeTableNotFound,
		Message:   fmt.Sprintf("table not found: %s", table),
		Retryable: false,
		Details: map[string]interface{}{
			"table": table,
		},
	}
}

// ErrUndoConflict creates an error for an undo whose captured rows no longer
// match the store. The undo entry is retained so the caller can inspect it.
func ErrUndoConflict(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatConflict,
		Code:      CodeUndoConflict,
		Message:   message,
		Retryable: false,
	}
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Retryable
	}
	return false
}

// GetCategory extracts the error category.
func GetCategory(err error) ErrorCategory {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Category
	}
	return ErrCatInternal
}

// IsCategory checks if an error belongs to a category.
func IsCategory(err error, cat ErrorCategory) bool {
	return GetCategory(err) == cat
}

// Predefined error codes
const (
	CodeInvalidIdentifier = "INVALID_IDENTIFIER"
	CodeTableNotFound     = "TABLE_NOT_FOUND"
	CodeProjectNotFound   = "PROJECT_NOT_FOUND"
	CodeBranchNotFound    = "BRANCH_NOT_FOUND"
	CodeUndoNotFound      = "UNDO_NOT_FOUND"
	CodeUndoConflict      = "UNDO_CONFLICT"
	CodeStoreExecution    = "STORE_EXECUTION_FAILED"
	CodeStoreBusy         = "STORE_BUSY"
	CodeMigrationFailed   = "MIGRATION_FAILED"
	CodeSchemaInvalid     = "SCHEMA_INVALID"

	// Validation error codes
	CodeEmptyStatement     = "EMPTY_STATEMENT"
	CodeBranchExists       = "BRANCH_EXISTS"
	CodeBranchReserved     = "BRANCH_NAME_RESERVED"
	CodeBranchProtected    = "BRANCH_PROTECTED"
	CodeMergeSourceIsMain  = "MERGE_SOURCE_IS_MAIN"
	CodeAlreadyBranchAware = "ALREADY_BRANCH_AWARE"
	CodeInvalidConfig      = "INVALID_CONFIG"
)
