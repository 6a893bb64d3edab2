// Package services provides the operator-facing template commands and standardized error types.
package services

import (
	"errors"
	"fmt"

	"github.com/dukex/blueprint/pkg/ordering"
	"github.com/dukex/blueprint/pkg/persistence"
)

// Error kinds. Every error returned by this package matches exactly one of them.
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrUpstream   = errors.New("upstream failure")
)

// Validation reasons (400 Bad Request).
var (
	ErrInvalidRequest    = errors.New("invalid request")
	ErrNameRequired      = errors.New("name is required")
	ErrInvalidSortField  = errors.New("invalid sort field")
	ErrInvalidSortOrder  = errors.New("invalid sort order")
	ErrInvalidDirection  = errors.New("direction must be up or down")
	ErrDuplicateName     = errors.New("an active workflow template already uses this name")
	ErrInvalidTransition = errors.New("invalid task status transition")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Kind    error  // One of ErrValidation, ErrNotFound, ErrConflict, ErrUpstream
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return target == e.Kind || errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsNotFoundError checks if an error should return HTTP 404.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflictError checks if an error is a conflict with current state that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsUpstreamError checks if a collaborator failed; it should return HTTP 502.
func IsUpstreamError(err error) bool {
	return errors.Is(err, ErrUpstream)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{Op: op, Code: code, Message: message, Kind: ErrValidation, Err: err}
}

func newNotFoundError(op string, err error) *ServiceError {
	return &ServiceError{Op: op, Code: "NOT_FOUND", Kind: ErrNotFound, Err: err}
}

func newConflictError(op, message string, err error) *ServiceError {
	return &ServiceError{Op: op, Code: "CONFLICT", Message: message, Kind: ErrConflict, Err: err}
}

func newUpstreamError(op string, err error) *ServiceError {
	return &ServiceError{Op: op, Code: "UPSTREAM_FAILURE", Kind: ErrUpstream, Err: err}
}

// storeError classifies a persistence error into one of the four kinds.
func storeError(op string, err error) error {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return err
	}

	switch {
	case persistence.IsNotFound(err):
		return newNotFoundError(op, err)
	case persistence.IsOrdinalSetMismatch(err):
		return newConflictError(op, "sibling set changed concurrently; reload and retry", err)
	case persistence.IsDuplicateName(err):
		return newConflictError(op, "an active workflow template with this name was created concurrently", err)
	case persistence.IsTriggerAlreadyRecorded(err):
		return newConflictError(op, "ticket generation already recorded", err)
	case persistence.IsInvalidSortField(err):
		return NewValidationError(op, "INVALID_SORT_FIELD", "invalid sort field", errors.Join(ErrInvalidSortField, err))
	case errors.Is(err, ordering.ErrInvalidListing):
		return NewValidationError(op, "INVALID_ORDINAL_LISTING", err.Error(), err)
	default:
		return newUpstreamError(op, err)
	}
}
