// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"

	"github.com/dukex/blueprint/pkg/ordering"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrWorkflowTemplateNotFound indicates a workflow template was not found by the given identifier.
	ErrWorkflowTemplateNotFound = errors.New("workflow template not found")

	// ErrMilestoneTemplateNotFound indicates a milestone template was not found.
	ErrMilestoneTemplateNotFound = errors.New("milestone template not found")

	// ErrTaskTemplateNotFound indicates a task template was not found.
	ErrTaskTemplateNotFound = errors.New("task template not found")

	// ErrTriggerNotFound indicates no ledger entry exists for a ticket/milestone pair.
	ErrTriggerNotFound = errors.New("trigger record not found")

	// ErrTriggerAlreadyRecorded indicates the ticket/milestone pair has already fired.
	ErrTriggerAlreadyRecorded = errors.New("trigger already recorded")

	// ErrOrdinalSetMismatch indicates a reassignment no longer matches the stored siblings,
	// usually because a sibling was added or removed concurrently.
	ErrOrdinalSetMismatch = errors.New("ordinal listing does not match stored siblings")

	// ErrDuplicateName indicates another active workflow template already uses the name.
	ErrDuplicateName = errors.New("active workflow template name already in use")

	// ErrInvalidSortField indicates an unsupported sort column.
	ErrInvalidSortField = errors.New("invalid sort field")
)

// TemplateError wraps template-related errors with additional context.
type TemplateError struct {
	Op     string // Operation being performed (e.g., "GetByID", "ReassignOrdinals")
	Entity string // workflow, milestone or task
	ID     string
	Err    error
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("%s operation failed for %s template %s: %v", e.Op, e.Entity, e.ID, e.Err)
}

func (e *TemplateError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for template errors.
func (e *TemplateError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewWorkflowTemplateError creates a workflow template error with context.
func NewWorkflowTemplateError(op, id string, err error) *TemplateError {
	return &TemplateError{Op: op, Entity: "workflow", ID: id, Err: err}
}

// NewMilestoneTemplateError creates a milestone template error with context.
func NewMilestoneTemplateError(op, id string, err error) *TemplateError {
	return &TemplateError{Op: op, Entity: "milestone", ID: id, Err: err}
}

// NewTaskTemplateError creates a task template error with context.
func NewTaskTemplateError(op, id string, err error) *TemplateError {
	return &TemplateError{Op: op, Entity: "task", ID: id, Err: err}
}

// IsWorkflowTemplateNotFound checks if an error indicates a workflow template was not found.
func IsWorkflowTemplateNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowTemplateNotFound)
}

// IsMilestoneTemplateNotFound checks if an error indicates a milestone template was not found.
func IsMilestoneTemplateNotFound(err error) bool {
	return errors.Is(err, ErrMilestoneTemplateNotFound)
}

// IsTaskTemplateNotFound checks if an error indicates a task template was not found.
func IsTaskTemplateNotFound(err error) bool {
	return errors.Is(err, ErrTaskTemplateNotFound)
}

// IsNotFound checks for any of the not-found errors.
func IsNotFound(err error) bool {
	return IsWorkflowTemplateNotFound(err) ||
		IsMilestoneTemplateNotFound(err) ||
		IsTaskTemplateNotFound(err) ||
		errors.Is(err, ErrTriggerNotFound)
}

// IsTriggerAlreadyRecorded checks if an error is a duplicate ledger insert.
func IsTriggerAlreadyRecorded(err error) bool {
	return errors.Is(err, ErrTriggerAlreadyRecorded)
}

// IsOrdinalSetMismatch checks if an ordinal reassignment collided with concurrent changes.
func IsOrdinalSetMismatch(err error) bool {
	return errors.Is(err, ErrOrdinalSetMismatch)
}

// IsDuplicateName checks if an insert collided with an existing active template name.
func IsDuplicateName(err error) bool {
	return errors.Is(err, ErrDuplicateName)
}

// IsInvalidSortField checks if an error indicates an invalid sort field.
func IsInvalidSortField(err error) bool {
	return errors.Is(err, ErrInvalidSortField)
}

// ListingMismatch marks a reassignment listing that names a different set of siblings
// than storage holds as ErrOrdinalSetMismatch. Other listing errors pass through.
func ListingMismatch(err error) error {
	if errors.Is(err, ordering.ErrUnknownID) || errors.Is(err, ordering.ErrIncompleteListing) {
		return errors.Join(ErrOrdinalSetMismatch, err)
	}

	return err
}
