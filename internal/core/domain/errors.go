package domain

import (
	"errors"
	"fmt"
)

// ErrorCategory tags a TxError with a stable, matchable failure class.
type ErrorCategory string

const (
	ErrTransactionNotFound      ErrorCategory = "TRANSACTION_NOT_FOUND"
	ErrQueryRunnerNotFound      ErrorCategory = "QUERY_RUNNER_NOT_FOUND"
	ErrInvalidTransactionState  ErrorCategory = "INVALID_TRANSACTION_STATE"
	ErrOperationExecutionFailed ErrorCategory = "OPERATION_EXECUTION_FAILED"
	ErrSavepoint                ErrorCategory = "SAVEPOINT_ERROR"
	ErrNestedTransaction        ErrorCategory = "NESTED_TRANSACTION_ERROR"
	ErrCommitFailed             ErrorCategory = "COMMIT_FAILED"
	ErrRollbackFailed           ErrorCategory = "ROLLBACK_FAILED"
	ErrDatabaseConnection       ErrorCategory = "DATABASE_CONNECTION_ERROR"
	ErrTimeout                  ErrorCategory = "TIMEOUT_ERROR"
	ErrConstraintViolation      ErrorCategory = "CONSTRAINT_VIOLATION"
)

// Retryable reports whether failures in this category are worth
// retrying under the standard backoff policy.
func (c ErrorCategory) Retryable() bool {
	return c == ErrDatabaseConnection || c == ErrTimeout
}

// TxError is the single error type the transaction core surfaces.
// Built only through the constructors below so every raised error
// carries a category.
type TxError struct {
	Category ErrorCategory
	Message  string
	TxID     string
	Op       *Operation
	Cause    error
	Context  map[string]any
}

func (e *TxError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Category, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Category, e.Message)
}

func (e *TxError) Unwrap() error { return e.Cause }

// Is matches by category so callers can use errors.Is with a bare
// &TxError{Category: ...} probe.
func (e *TxError) Is(target error) bool {
	t, ok := target.(*TxError)
	return ok && t.Category == e.Category
}

// CategoryOf extracts the category from err, or "" if err carries no
// TxError anywhere in its chain.
func CategoryOf(err error) ErrorCategory {
	var te *TxError
	if errors.As(err, &te) {
		return te.Category
	}
	return ""
}

func NewTransactionNotFound(txID string) *TxError {
	return &TxError{
		Category: ErrTransactionNotFound,
		Message:  fmt.Sprintf("transaction %s not found", txID),
		TxID:     txID,
	}
}

func NewQueryRunnerNotFound(txID string) *TxError {
	return &TxError{
		Category: ErrQueryRunnerNotFound,
		Message:  fmt.Sprintf("no query runner bound to transaction %s", txID),
		TxID:     txID,
	}
}

func NewInvalidTransactionState(txID string, status TxStatus) *TxError {
	return &TxError{
		Category: ErrInvalidTransactionState,
		Message:  fmt.Sprintf("transaction %s is %s", txID, status),
		TxID:     txID,
		Context:  map[string]any{"status": string(status)},
	}
}

func NewOperationFailed(txID string, op *Operation, cause error) *TxError {
	return &TxError{
		Category: ErrOperationExecutionFailed,
		Message:  "operation execution failed",
		TxID:     txID,
		Op:       op,
		Cause:    cause,
	}
}

func NewSavepointError(txID, name string, cause error) *TxError {
	return &TxError{
		Category: ErrSavepoint,
		Message:  fmt.Sprintf("savepoint %q failed", name),
		TxID:     txID,
		Cause:    cause,
	}
}

func NewNestedTransactionError(txID string, cause error) *TxError {
	return &TxError{
		Category: ErrNestedTransaction,
		Message:  "nested transaction failed",
		TxID:     txID,
		Cause:    cause,
	}
}

func NewCommitFailed(txID string, cause error) *TxError {
	return &TxError{
		Category: ErrCommitFailed,
		Message:  "commit failed",
		TxID:     txID,
		Cause:    cause,
	}
}

func NewRollbackFailed(txID string, cause error) *TxError {
	return &TxError{
		Category: ErrRollbackFailed,
		Message:  "rollback failed",
		TxID:     txID,
		Cause:    cause,
	}
}

func NewConnectionError(cause error) *TxError {
	return &TxError{
		Category: ErrDatabaseConnection,
		Message:  "database connection error",
		Cause:    cause,
	}
}

func NewTimeoutError(cause error) *TxError {
	return &TxError{
		Category: ErrTimeout,
		Message:  "operation timed out",
		Cause:    cause,
	}
}

// NewConstraintViolation carries the offending constraint name when it
// could be extracted from the driver message.
func NewConstraintViolation(constraint string, cause error) *TxError {
	e := &TxError{
		Category: ErrConstraintViolation,
		Message:  "constraint violation",
		Cause:    cause,
	}
	if constraint != "" {
		e.Message = fmt.Sprintf("constraint %q violated", constraint)
		e.Context = map[string]any{"constraint": constraint}
	}
	return e
}
