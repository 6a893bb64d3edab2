// Package web provides HTTP request and response types for the template API.
package web

import (
	"time"

	"github.com/dukex/blueprint/pkg/models"
	"github.com/dukex/blueprint/pkg/rollup"
)

// CloneTemplateRequest is the body of POST /workflow-templates/:id/clone.
type CloneTemplateRequest struct {
	NewName         string `json:"new_name"         validate:"required"`
	CloneMilestones bool   `json:"clone_milestones"`
	CloneTasks      bool   `json:"clone_tasks"`
}

// MoveRequest shifts one milestone or task a single position.
type MoveRequest struct {
	Direction models.Direction `json:"direction" validate:"required,oneof=up down"`
}

// ReorderRequest assigns explicit 1-based ordinals to every sibling.
type ReorderRequest struct {
	Assignments []models.OrdinalAssignment `json:"assignments" validate:"required,min=1,dive"`
}

// TaskStatusRequest is the webhook payload the ticketing system sends when a task moves.
type TaskStatusRequest struct {
	TicketID            string            `json:"ticket_id"                       validate:"required"`
	TaskID              string            `json:"task_id"                         validate:"required"`
	MilestoneTemplateID string            `json:"milestone_template_id,omitempty"`
	From                models.TaskStatus `json:"from,omitempty"`
	To                  models.TaskStatus `json:"to"                              validate:"required"`
}

// ScheduleResponse lays a workflow's milestones out end to end from StartAt.
type ScheduleResponse struct {
	WorkflowTemplateID string            `json:"workflow_template_id"`
	StartAt            time.Time         `json:"start_at"`
	Deadlines          []rollup.Deadline `json:"deadlines"`
}

// MilestonesResponse wraps an ordered milestone listing.
type MilestonesResponse struct {
	WorkflowTemplateID string                      `json:"workflow_template_id"`
	Milestones         []*models.MilestoneTemplate `json:"milestones"`
}

// TasksResponse wraps an ordered task listing.
type TasksResponse struct {
	MilestoneTemplateID string                 `json:"milestone_template_id"`
	Tasks               []*models.TaskTemplate `json:"tasks"`
}
