package models

import "time"

// MilestoneType classifies a milestone within a workflow.
type MilestoneType string

const (
	MilestoneTypeStandard MilestoneType = "standard"
	MilestoneTypeCritical MilestoneType = "critical"
	MilestoneTypeOptional MilestoneType = "optional"
)

const (
	DefaultWarningDays    = 2
	DefaultEscalationDays = 1
)

// Valid reports whether t is a known milestone type.
func (t MilestoneType) Valid() bool {
	switch t {
	case MilestoneTypeStandard, MilestoneTypeCritical, MilestoneTypeOptional:
		return true
	default:
		return false
	}
}

// MilestoneTemplate is a phase within a workflow template.
type MilestoneTemplate struct {
	ID                 string `json:"id"                   db:"id"`
	WorkflowTemplateID string `json:"workflow_template_id" db:"workflow_template_id"`
	Name               string `json:"name"                 db:"name"`
	Description        string `json:"description"          db:"description"`
	Ordinal            int    `json:"ordinal"              db:"ordinal"`

	EstimatedDurationDays *int `json:"estimated_duration_days,omitempty" db:"estimated_duration_days"`

	// SLADays is the effective SLA: the task rollup when tasks exist, otherwise OperatorSLADays.
	SLADays         *int        `json:"sla_days,omitempty"          db:"sla_days"`
	OperatorSLADays *int        `json:"operator_sla_days,omitempty" db:"operator_sla_days"`
	SLASource       ValueSource `json:"sla_source"                  db:"sla_source"`

	WarningDays         int           `json:"warning_days"          db:"warning_days"`
	EscalationDays      int           `json:"escalation_days"       db:"escalation_days"`
	MilestoneType       MilestoneType `json:"milestone_type"        db:"milestone_type"`
	AutoGenerateTickets bool          `json:"auto_generate_tickets" db:"auto_generate_tickets"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`

	Tasks []*TaskTemplate `json:"tasks,omitempty" db:"-"`
}

// Clone returns a deep copy of the milestone and its tasks.
func (m *MilestoneTemplate) Clone() *MilestoneTemplate {
	if m == nil {
		return nil
	}

	cp := *m
	cp.EstimatedDurationDays = copyInt(m.EstimatedDurationDays)
	cp.SLADays = copyInt(m.SLADays)
	cp.OperatorSLADays = copyInt(m.OperatorSLADays)

	if m.Tasks != nil {
		cp.Tasks = make([]*TaskTemplate, len(m.Tasks))
		for i, t := range m.Tasks {
			cp.Tasks[i] = t.Clone()
		}
	}

	return &cp
}
