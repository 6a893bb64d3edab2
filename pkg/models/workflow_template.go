// Package models defines the domain models for workflow template hierarchies.
package models

import "time"

// ValueSource tells whether a time budget was computed from children or supplied by an operator.
type ValueSource string

const (
	ValueSourceDerived  ValueSource = "derived"
	ValueSourceOperator ValueSource = "operator"
)

// WorkflowTemplate is the reusable top-level definition of a delivery process.
type WorkflowTemplate struct {
	ID          string `json:"id"          db:"id"`
	Name        string `json:"name"        db:"name"        validate:"required"`
	Description string `json:"description" db:"description"`
	Code        string `json:"code"        db:"code"`
	Active      bool   `json:"active"      db:"active"`

	// EstimatedDurationDays is the effective duration: the milestone rollup when milestones
	// exist, otherwise OperatorDurationDays.
	EstimatedDurationDays *int        `json:"estimated_duration_days,omitempty" db:"estimated_duration_days"`
	OperatorDurationDays  *int        `json:"operator_duration_days,omitempty"  db:"operator_duration_days"`
	DurationSource        ValueSource `json:"duration_source"                   db:"duration_source"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`

	// Milestones is only populated when the full tree is requested.
	Milestones []*MilestoneTemplate `json:"milestones,omitempty" db:"-"`
}

// Clone returns a deep copy of the template tree.
func (w *WorkflowTemplate) Clone() *WorkflowTemplate {
	if w == nil {
		return nil
	}

	cp := *w
	cp.EstimatedDurationDays = copyInt(w.EstimatedDurationDays)
	cp.OperatorDurationDays = copyInt(w.OperatorDurationDays)

	if w.Milestones != nil {
		cp.Milestones = make([]*MilestoneTemplate, len(w.Milestones))
		for i, m := range w.Milestones {
			cp.Milestones[i] = m.Clone()
		}
	}

	return &cp
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}

	c := *v

	return &c
}
