package models

import "time"

// TaskType classifies the kind of work a task template describes.
type TaskType string

const (
	TaskTypeStandard      TaskType = "standard"
	TaskTypeReview        TaskType = "review"
	TaskTypeApproval      TaskType = "approval"
	TaskTypeDocumentation TaskType = "documentation"
)

// Valid reports whether t is a known task type.
func (t TaskType) Valid() bool {
	switch t {
	case TaskTypeStandard, TaskTypeReview, TaskTypeApproval, TaskTypeDocumentation:
		return true
	default:
		return false
	}
}

// TaskTemplate is the smallest unit of configured work within a milestone.
type TaskTemplate struct {
	ID                  string    `json:"id"                        db:"id"`
	MilestoneTemplateID string    `json:"milestone_template_id"     db:"milestone_template_id"`
	Name                string    `json:"name"                      db:"name"`
	Description         string    `json:"description"               db:"description"`
	Ordinal             int       `json:"ordinal"                   db:"ordinal"`
	EstimatedHours      *int      `json:"estimated_hours,omitempty" db:"estimated_hours"`
	ResponsibleRole     string    `json:"responsible_role"          db:"responsible_role"`
	Mandatory           bool      `json:"mandatory"                 db:"mandatory"`
	TaskType            TaskType  `json:"task_type"                 db:"task_type"`
	ChecklistTemplate   []string  `json:"checklist_template"        db:"-"`
	CreatedAt           time.Time `json:"created_at"                db:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"                db:"updated_at"`
}

// Clone returns a deep copy of the task template.
func (t *TaskTemplate) Clone() *TaskTemplate {
	if t == nil {
		return nil
	}

	cp := *t
	cp.EstimatedHours = copyInt(t.EstimatedHours)

	if t.ChecklistTemplate != nil {
		cp.ChecklistTemplate = append([]string(nil), t.ChecklistTemplate...)
	}

	return &cp
}
