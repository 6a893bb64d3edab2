// Package persistence provides the storage abstraction for template hierarchies and the trigger ledger.
package persistence

import (
	"context"

	"github.com/dukex/blueprint/pkg/models"
)

// Persistence groups the repositories backing one template store.
type Persistence interface {
	WorkflowTemplateRepository() WorkflowTemplateRepository
	MilestoneTemplateRepository() MilestoneTemplateRepository
	TaskTemplateRepository() TaskTemplateRepository
	TriggerRepository() TriggerRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// ListWorkflowTemplatesOptions filters, sorts and paginates workflow templates.
type ListWorkflowTemplatesOptions struct {
	Active *bool

	Limit  int
	Offset int

	SortBy    string
	SortOrder string
}

// WorkflowTemplateListResult is one page of workflow templates.
type WorkflowTemplateListResult struct {
	WorkflowTemplates []*models.WorkflowTemplate
	TotalCount        int64
	HasNextPage       bool
}

// WorkflowTemplateRepository stores workflow templates. Delete cascades to owned milestones and tasks.
type WorkflowTemplateRepository interface {
	List(ctx context.Context, opts ListWorkflowTemplatesOptions) (*WorkflowTemplateListResult, error)
	GetByID(ctx context.Context, id string) (*models.WorkflowTemplate, error)
	// GetTree returns the template with milestones and tasks populated, both in ordinal order.
	GetTree(ctx context.Context, id string) (*models.WorkflowTemplate, error)
	// FindActiveByName matches case-insensitively and returns ErrWorkflowTemplateNotFound on a miss.
	FindActiveByName(ctx context.Context, name string) (*models.WorkflowTemplate, error)
	CodeExists(ctx context.Context, code string) (bool, error)
	Create(ctx context.Context, workflow *models.WorkflowTemplate) error
	// CreateTree writes a template with all of its milestones and tasks in one atomic step.
	CreateTree(ctx context.Context, workflow *models.WorkflowTemplate) error
	// Update writes the template's own fields and recomputes the effective duration from
	// the stored milestones in the same step; workflow receives the stored values.
	Update(ctx context.Context, workflow *models.WorkflowTemplate) error
	// RefreshDuration recomputes the effective duration from the stored milestones and
	// writes only the derived fields. It reports whether they changed.
	RefreshDuration(ctx context.Context, id string) (*models.WorkflowTemplate, bool, error)
	Delete(ctx context.Context, id string) error
}

// MilestoneTemplateRepository stores milestone templates.
type MilestoneTemplateRepository interface {
	ListByWorkflow(ctx context.Context, workflowID string) ([]*models.MilestoneTemplate, error)
	GetByID(ctx context.Context, id string) (*models.MilestoneTemplate, error)
	// Create appends the milestone: its ordinal becomes the current maximum plus one.
	Create(ctx context.Context, milestone *models.MilestoneTemplate) error
	// Update writes mutable fields and recomputes the effective SLA from the stored tasks
	// in the same step; parent and ordinal are ignored.
	Update(ctx context.Context, milestone *models.MilestoneTemplate) error
	// RefreshSLA recomputes the effective SLA from the stored tasks and writes only the
	// derived fields. It reports whether they changed.
	RefreshSLA(ctx context.Context, id string) (*models.MilestoneTemplate, bool, error)
	// Delete removes the milestone and its tasks, then closes the ordinal gap among siblings.
	Delete(ctx context.Context, id string) error
	// ReassignOrdinals atomically replaces every sibling ordinal. The listing must name
	// exactly the current milestones, otherwise ErrOrdinalSetMismatch is returned and
	// nothing is written.
	ReassignOrdinals(ctx context.Context, workflowID string, assignments []models.OrdinalAssignment) error
}

// TaskTemplateRepository stores task templates.
type TaskTemplateRepository interface {
	ListByMilestone(ctx context.Context, milestoneID string) ([]*models.TaskTemplate, error)
	GetByID(ctx context.Context, id string) (*models.TaskTemplate, error)
	Create(ctx context.Context, task *models.TaskTemplate) error
	Update(ctx context.Context, task *models.TaskTemplate) error
	Delete(ctx context.Context, id string) error
	ReassignOrdinals(ctx context.Context, milestoneID string, assignments []models.OrdinalAssignment) error
}

// TriggerRepository is the ledger of ticket generation signals.
type TriggerRepository interface {
	// Record inserts the (ticket, milestone) key and fails with ErrTriggerAlreadyRecorded
	// when it exists. This is the only guard against duplicate generation requests.
	Record(ctx context.Context, record *models.TriggerRecord) error
	Get(ctx context.Context, ticketID, milestoneID string) (*models.TriggerRecord, error)
	Update(ctx context.Context, record *models.TriggerRecord) error
	ListByTicket(ctx context.Context, ticketID string) ([]*models.TriggerRecord, error)
}
