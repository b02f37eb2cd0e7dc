// Package errors provides standardized error handling for the admissions pipeline.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Input / lookup errors. No application state is created or mutated.
	ErrCodeValidationFailed    ErrorCode = "VALIDATION_FAILED"
	ErrCodeApplicationNotFound ErrorCode = "APPLICATION_NOT_FOUND"

	// Stage execution errors. The owning record moves to ERROR with detail retained.
	ErrCodeStageExecutionFailed         ErrorCode = "STAGE_EXECUTION_FAILED"
	ErrCodeClassificationLowConfidence  ErrorCode = "CLASSIFICATION_LOW_CONFIDENCE"
	ErrCodeExtractionSchemaMismatch     ErrorCode = "EXTRACTION_SCHEMA_MISMATCH"
	ErrCodeDecisionEvaluationFailed     ErrorCode = "DECISION_EVALUATION_FAILED"
	ErrCodeInterpreterUnavailable       ErrorCode = "INTERPRETER_UNAVAILABLE"
	ErrCodeStageTimeout                 ErrorCode = "STAGE_TIMEOUT"

	// Rule index errors.
	ErrCodeIndexNotReady   ErrorCode = "INDEX_NOT_READY"
	ErrCodeIndexBuildFailed ErrorCode = "INDEX_BUILD_FAILED"
	ErrCodeRuleQueryFailed  ErrorCode = "RULE_QUERY_FAILED"

	// Backing store errors.
	ErrCodeDatabaseConnectionFailed ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeDatabaseQueryFailed      ErrorCode = "DATABASE_QUERY_FAILED"
	ErrCodeDatabaseInsertFailed     ErrorCode = "DATABASE_INSERT_FAILED"
	ErrCodeDuplicateApplication     ErrorCode = "DUPLICATE_APPLICATION"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// ==========================
// 2. Error Constructors
// ==========================

// NewValidationError creates a non-retryable input validation error.
func NewValidationError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeValidationFailed,
		Message:   "Submission validation failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewNotFoundError creates a non-retryable unknown-application error.
func NewNotFoundError(applicationID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeApplicationNotFound,
		Message:   "Application not found",
		Details:   fmt.Sprintf("applicationId: %s", applicationID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewStageExecutionError creates a stage execution error. Retryable signals that
// the backing call may be attempted again before the record is moved to ERROR.
func NewStageExecutionError(stage string, err error, retryable bool) *StandardError {
	return &StandardError{
		Code:      ErrCodeStageExecutionFailed,
		Message:   "Stage execution failed",
		Details:   fmt.Sprintf("stage: %s, error: %s", stage, err.Error()),
		Retryable: retryable,
		Metadata:  map[string]interface{}{"stage": stage},
		Timestamp: time.Now().UTC(),
	}
}

// NewClassificationLowConfidenceError creates a non-retryable classification error.
func NewClassificationLowConfidenceError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeClassificationLowConfidence,
		Message:   "No document classified with sufficient confidence",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewExtractionSchemaMismatchError creates a non-retryable extraction schema error.
func NewExtractionSchemaMismatchError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeExtractionSchemaMismatch,
		Message:   "Extracted profile failed schema validation",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewDecisionEvaluationError creates a retryable decision evaluation error.
func NewDecisionEvaluationError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDecisionEvaluationFailed,
		Message:   "Decision evaluation failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewInterpreterUnavailableError creates a retryable interpreter capability error.
func NewInterpreterUnavailableError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeInterpreterUnavailable,
		Message:   "Rule interpreter capability unavailable",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewStageTimeoutError creates a retryable stage timeout error.
func NewStageTimeoutError(stage string) *StandardError {
	return &StandardError{
		Code:      ErrCodeStageTimeout,
		Message:   "Stage execution timed out",
		Details:   fmt.Sprintf("stage: %s", stage),
		Retryable: true,
		Metadata:  map[string]interface{}{"stage": stage},
		Timestamp: time.Now().UTC(),
	}
}

// NewIndexNotReadyError creates a non-retryable index readiness error.
func NewIndexNotReadyError() *StandardError {
	return &StandardError{
		Code:      ErrCodeIndexNotReady,
		Message:   "Rule index not built",
		Details:   "build or load the rulebook index before querying",
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewIndexBuildFailedError creates a retryable index build error.
func NewIndexBuildFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeIndexBuildFailed,
		Message:   "Rule index build failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewRuleQueryFailedError creates a retryable rule query error.
func NewRuleQueryFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeRuleQueryFailed,
		Message:   "Rule index query failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewDatabaseConnectionFailedError creates a retryable database connection error.
func NewDatabaseConnectionFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatabaseConnectionFailed,
		Message:   "Database connection error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewDatabaseQueryFailedError creates a retryable database query error.
func NewDatabaseQueryFailedError(op string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatabaseQueryFailed,
		Message:   "Database query error",
		Details:   fmt.Sprintf("op: %s, error: %s", op, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewDatabaseInsertFailedError creates a retryable database insert error.
func NewDatabaseInsertFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatabaseInsertFailed,
		Message:   "Database insert operation failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewDuplicateApplicationError creates a non-retryable duplicate application error.
func NewDuplicateApplicationError(applicationID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeDuplicateApplication,
		Message:   "Application already exists",
		Details:   fmt.Sprintf("applicationId: %s", applicationID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 3. Classification Helpers
// ==========================

// AsStandardError normalizes any error into a *StandardError.
func AsStandardError(err error) *StandardError {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr
	}
	return &StandardError{
		Code:      "INTERNAL_ERROR",
		Message:   "Unexpected error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool {
	return hasCode(err, ErrCodeValidationFailed)
}

// IsNotFound reports whether err is an unknown-application error.
func IsNotFound(err error) bool {
	return hasCode(err, ErrCodeApplicationNotFound)
}

// IsRetryable reports whether a bounded retry of the failing call is allowed.
func IsRetryable(err error) bool {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr.Retryable
	}
	return false
}

// Code extracts the ErrorCode from err, or INTERNAL_ERROR for foreign errors.
func Code(err error) ErrorCode {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr.Code
	}
	return "INTERNAL_ERROR"
}

func hasCode(err error, code ErrorCode) bool {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr.Code == code
	}
	return false
}
