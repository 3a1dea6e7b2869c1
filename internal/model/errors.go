package model

import (
	"errors"
	"fmt"
)

// ErrorKind classifies every failure the assistant can produce. The kind
// decides propagation: startup kinds abort boot, retriable kinds re-enter the
// backoff loop, everything else is mapped to a user-facing response at the
// orchestrator boundary.
type ErrorKind string

const (
	// Startup-fatal kinds
	KindConfigMissing             ErrorKind = "CONFIG_MISSING"
	KindConfigParse               ErrorKind = "CONFIG_PARSE"
	KindConfigSchema              ErrorKind = "CONFIG_SCHEMA"
	KindDataMissing               ErrorKind = "DATA_MISSING"
	KindDataSchema                ErrorKind = "DATA_SCHEMA"
	KindUnresolvedReasonCode      ErrorKind = "UNRESOLVED_REASON_CODE"
	KindProviderDimensionMismatch ErrorKind = "PROVIDER_DIMENSION_MISMATCH"

	// Runtime-recoverable kinds (retried)
	KindDBTimeout           ErrorKind = "DB_TIMEOUT"
	KindDBDeadlock          ErrorKind = "DB_DEADLOCK"
	KindDBConnReset         ErrorKind = "DB_CONN_RESET"
	KindProviderTimeout     ErrorKind = "PROVIDER_TIMEOUT"
	KindProviderUnavailable ErrorKind = "PROVIDER_UNAVAILABLE"

	// Runtime-nonrecoverable kinds (surfaced)
	KindProviderQuota           ErrorKind = "PROVIDER_QUOTA"
	KindProviderInvalidResponse ErrorKind = "PROVIDER_INVALID_RESPONSE"
	KindEmbeddingSpaceMismatch  ErrorKind = "EMBEDDING_SPACE_MISMATCH"
	KindDBIntegrity             ErrorKind = "DB_INTEGRITY"
	KindDBValidation            ErrorKind = "DB_VALIDATION"
	KindNotFound                ErrorKind = "NOT_FOUND"

	// Data-availability
	KindDataUnavailable ErrorKind = "DATA_UNAVAILABLE"
)

// AppError is the error type carried across service boundaries.
type AppError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// NewAppError creates an AppError with the given kind and message.
func NewAppError(kind ErrorKind, message string) *AppError {
	return &AppError{Kind: kind, Message: message}
}

// WrapAppError wraps an underlying error with a kind and message.
func WrapAppError(kind ErrorKind, message string, err error) *AppError {
	return &AppError{Kind: kind, Message: message, Err: err}
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Retriable reports whether the error kind belongs to the curated set that the
// write/provider retry policy is allowed to re-attempt.
func (e *AppError) Retriable() bool {
	switch e.Kind {
	case KindDBTimeout, KindDBDeadlock, KindDBConnReset,
		KindProviderTimeout, KindProviderUnavailable:
		return true
	}
	return false
}

// KindOf extracts the ErrorKind from err, or "" when err carries none.
func KindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ""
}

// IsRetriable reports whether err carries a retriable kind.
func IsRetriable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Retriable()
	}
	return false
}
