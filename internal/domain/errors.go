package domain

import (
	"errors"
	"fmt"
)

// ErrorCode classifies domain failures so the HTTP layer can map them uniformly.
type ErrorCode string

const (
	CodeValidation   ErrorCode = "validation_error"
	CodeOverCapacity ErrorCode = "over_capacity"
	CodeNotFound     ErrorCode = "not_found"
	CodeUnauthorized ErrorCode = "unauthorized"
	CodeConflict     ErrorCode = "conflict"
	CodeInvalidToken ErrorCode = "invalid_token"
	CodeNotReady     ErrorCode = "not_ready"
	CodeUnavailable  ErrorCode = "service_unavailable"
	CodeConfig       ErrorCode = "config_error"
)

// DomainError is the single error type crossing service boundaries.
type DomainError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewValidationError reports input the caller must correct before retrying.
func NewValidationError(format string, args ...interface{}) *DomainError {
	return &DomainError{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// NewOverCapacityError reports an admission-control rejection; the caller may
// retry with a different window or tier.
func NewOverCapacityError(tier string, capacity int) *DomainError {
	return &DomainError{
		Code:    CodeOverCapacity,
		Message: fmt.Sprintf("tier %q is fully booked for the requested window (capacity %d)", tier, capacity),
	}
}

// NewNotFoundError reports an unknown entity id.
func NewNotFoundError(entity, id string) *DomainError {
	return &DomainError{Code: CodeNotFound, Message: fmt.Sprintf("%s %s not found", entity, id)}
}

// NewUnauthorizedError carries the uniform admin-auth failure message. The
// message is deliberately detail-free.
func NewUnauthorizedError() *DomainError {
	return &DomainError{Code: CodeUnauthorized, Message: "Unauthorized access"}
}

// NewConflictError reports a state transition the entity does not allow.
func NewConflictError(format string, args ...interface{}) *DomainError {
	return &DomainError{Code: CodeConflict, Message: fmt.Sprintf(format, args...)}
}

// NewUnavailableError reports a broken dependency (store or collaborator).
func NewUnavailableError(what string, err error) *DomainError {
	return &DomainError{Code: CodeUnavailable, Message: what + " unavailable", Err: err}
}

// NewConfigError reports missing wiring. Always fatal at startup; idempotency
// and capacity guarantees do not hold without the durable store.
func NewConfigError(format string, args ...interface{}) *DomainError {
	return &DomainError{Code: CodeConfig, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the domain code from an error chain, or "" for plain errors.
func CodeOf(err error) ErrorCode {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// IsCode reports whether err carries the given domain code.
func IsCode(err error, code ErrorCode) bool { return CodeOf(err) == code }
