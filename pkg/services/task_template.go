package services

import (
	"context"
	"fmt"
	"slices"

	"github.com/dukex/blueprint/pkg/models"
	"github.com/dukex/blueprint/pkg/otelhelper"
	"github.com/dukex/blueprint/pkg/persistence"
	"go.opentelemetry.io/otel/attribute"
)

// TaskTemplates manages the tasks of a milestone template. Every change to the task set
// or to a task's estimated hours refreshes the owning milestone's SLA.
type TaskTemplates struct {
	persistence persistence.Persistence
	rollups     *Rollups
	reorder     reorderer
	options
}

func NewTaskTemplates(p persistence.Persistence, opts ...Option) *TaskTemplates {
	o := newOptions("task_templates", opts)

	return &TaskTemplates{
		persistence: p,
		rollups:     NewRollups(p, opts...),
		reorder:     reorderer{options: o},
		options:     o,
	}
}

func (t *TaskTemplates) siblings() siblings {
	return taskSiblings{repo: t.persistence.TaskTemplateRepository()}
}

// ListByMilestone returns the milestone's tasks in ordinal order.
func (t *TaskTemplates) ListByMilestone(ctx context.Context, milestoneID string) ([]*models.TaskTemplate, error) {
	_, err := t.persistence.MilestoneTemplateRepository().GetByID(ctx, milestoneID)
	if err != nil {
		return nil, storeError("ListByMilestone", err)
	}

	tasks, err := t.persistence.TaskTemplateRepository().ListByMilestone(ctx, milestoneID)
	if err != nil {
		return nil, storeError("ListByMilestone", err)
	}

	return tasks, nil
}

func (t *TaskTemplates) Get(ctx context.Context, id string) (*models.TaskTemplate, error) {
	task, err := t.persistence.TaskTemplateRepository().GetByID(ctx, id)
	if err != nil {
		return nil, storeError("Get", err)
	}

	return task, nil
}

// CreateTaskTemplateRequest carries the fields of a new task. Mandatory defaults to true.
type CreateTaskTemplateRequest struct {
	Name              string          `json:"name"                      validate:"required"`
	Description       string          `json:"description"`
	EstimatedHours    *int            `json:"estimated_hours,omitempty" validate:"omitempty,min=1"`
	ResponsibleRole   string          `json:"responsible_role"`
	Mandatory         *bool           `json:"mandatory,omitempty"`
	TaskType          models.TaskType `json:"task_type"`
	ChecklistTemplate []string        `json:"checklist_template"`
}

// Create appends a task to the milestone and refreshes the milestone SLA.
func (t *TaskTemplates) Create(ctx context.Context, milestoneID string, req CreateTaskTemplateRequest) (*models.TaskTemplate, error) {
	ctx, span := otelhelper.StartSpan(ctx, t.tracer, "task_templates.Create",
		attribute.String(otelhelper.MilestoneTemplateIDKey, milestoneID))
	defer span.End()

	name, err := requireName("CreateTask", req.Name)
	if err != nil {
		return nil, err
	}

	req.Name = name

	err = validateStruct("CreateTask", req)
	if err != nil {
		return nil, err
	}

	mandatory := true
	if req.Mandatory != nil {
		mandatory = *req.Mandatory
	}

	task := &models.TaskTemplate{
		MilestoneTemplateID: milestoneID,
		Name:                name,
		Description:         req.Description,
		EstimatedHours:      req.EstimatedHours,
		ResponsibleRole:     req.ResponsibleRole,
		Mandatory:           mandatory,
		TaskType:            req.TaskType,
		ChecklistTemplate:   slices.Clone(req.ChecklistTemplate),
	}

	err = applyTaskDefaults("CreateTask", task)
	if err != nil {
		return nil, err
	}

	err = t.persistence.TaskTemplateRepository().Create(ctx, task)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, storeError("CreateTask", err)
	}

	_, err = t.rollups.RefreshMilestone(ctx, milestoneID)
	if err != nil {
		return nil, err
	}

	t.logger.InfoContext(ctx, "Task template created",
		"task_template_id", task.ID, "milestone_template_id", milestoneID, "ordinal", task.Ordinal)

	return task, nil
}

// TaskTemplatePatch lists the fields to change; nil fields are left as they are.
type TaskTemplatePatch struct {
	Name                *string          `json:"name,omitempty"`
	Description         *string          `json:"description,omitempty"`
	EstimatedHours      *int             `json:"estimated_hours,omitempty"  validate:"omitempty,min=1"`
	ClearEstimatedHours bool             `json:"clear_estimated_hours,omitempty"`
	ResponsibleRole     *string          `json:"responsible_role,omitempty"`
	Mandatory           *bool            `json:"mandatory,omitempty"`
	TaskType            *models.TaskType `json:"task_type,omitempty"`
	ChecklistTemplate   []string         `json:"checklist_template,omitempty"`
}

// Update applies patch and refreshes the milestone SLA when the estimate changed.
func (t *TaskTemplates) Update(ctx context.Context, id string, patch TaskTemplatePatch) (*models.TaskTemplate, error) {
	ctx, span := otelhelper.StartSpan(ctx, t.tracer, "task_templates.Update",
		attribute.String(otelhelper.TaskTemplateIDKey, id))
	defer span.End()

	err := validateStruct("UpdateTask", patch)
	if err != nil {
		return nil, err
	}

	task, err := t.persistence.TaskTemplateRepository().GetByID(ctx, id)
	if err != nil {
		return nil, storeError("UpdateTask", err)
	}

	if patch.Name != nil {
		task.Name, err = requireName("UpdateTask", *patch.Name)
		if err != nil {
			return nil, err
		}
	}

	if patch.Description != nil {
		task.Description = *patch.Description
	}

	hoursBefore := task.EstimatedHours

	switch {
	case patch.ClearEstimatedHours:
		task.EstimatedHours = nil
	case patch.EstimatedHours != nil:
		task.EstimatedHours = models.IntPtr(*patch.EstimatedHours)
	}

	if patch.ResponsibleRole != nil {
		task.ResponsibleRole = *patch.ResponsibleRole
	}

	if patch.Mandatory != nil {
		task.Mandatory = *patch.Mandatory
	}

	if patch.TaskType != nil {
		task.TaskType = *patch.TaskType
	}

	if patch.ChecklistTemplate != nil {
		task.ChecklistTemplate = slices.Clone(patch.ChecklistTemplate)
	}

	err = applyTaskDefaults("UpdateTask", task)
	if err != nil {
		return nil, err
	}

	err = t.persistence.TaskTemplateRepository().Update(ctx, task)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, storeError("UpdateTask", err)
	}

	if !sameHours(hoursBefore, task.EstimatedHours) {
		_, err = t.rollups.RefreshMilestone(ctx, task.MilestoneTemplateID)
		if err != nil {
			return nil, err
		}
	}

	return task, nil
}

// Delete removes the task, closes the ordinal gap and refreshes the milestone SLA.
func (t *TaskTemplates) Delete(ctx context.Context, id string) error {
	ctx, span := otelhelper.StartSpan(ctx, t.tracer, "task_templates.Delete",
		attribute.String(otelhelper.TaskTemplateIDKey, id))
	defer span.End()

	task, err := t.persistence.TaskTemplateRepository().GetByID(ctx, id)
	if err != nil {
		return storeError("DeleteTask", err)
	}

	err = t.persistence.TaskTemplateRepository().Delete(ctx, id)
	if err != nil {
		otelhelper.SetError(span, err)

		return storeError("DeleteTask", err)
	}

	_, err = t.rollups.RefreshMilestone(ctx, task.MilestoneTemplateID)
	if err != nil {
		return err
	}

	t.logger.InfoContext(ctx, "Task template deleted",
		"task_template_id", id, "milestone_template_id", task.MilestoneTemplateID)

	return nil
}

// Move swaps the task with its neighbour; the edges are no-ops. The SLA is unaffected.
func (t *TaskTemplates) Move(ctx context.Context, id string, dir models.Direction) ([]*models.TaskTemplate, error) {
	task, err := t.persistence.TaskTemplateRepository().GetByID(ctx, id)
	if err != nil {
		return nil, storeError("MoveTask", err)
	}

	_, err = t.reorder.move(ctx, "MoveTask", t.siblings(), task.MilestoneTemplateID, id, dir)
	if err != nil {
		return nil, err
	}

	return t.ListByMilestone(ctx, task.MilestoneTemplateID)
}

// Reorder atomically replaces every task ordinal of the milestone. The listing must name
// each task of the milestone exactly once with ordinals 1..N; otherwise nothing changes.
func (t *TaskTemplates) Reorder(ctx context.Context, milestoneID string, assignments []models.OrdinalAssignment) ([]*models.TaskTemplate, error) {
	_, err := t.persistence.MilestoneTemplateRepository().GetByID(ctx, milestoneID)
	if err != nil {
		return nil, storeError("ReorderTasks", err)
	}

	_, err = t.reorder.bulk(ctx, "ReorderTasks", t.siblings(), milestoneID, assignments)
	if err != nil {
		return nil, err
	}

	return t.ListByMilestone(ctx, milestoneID)
}

func applyTaskDefaults(op string, task *models.TaskTemplate) error {
	if task.TaskType == "" {
		task.TaskType = models.TaskTypeStandard
	}

	if !task.TaskType.Valid() {
		return NewValidationError(op, "INVALID_TASK_TYPE",
			fmt.Sprintf("invalid task type '%s'", task.TaskType), ErrInvalidRequest)
	}

	if task.EstimatedHours != nil && *task.EstimatedHours < 1 {
		return NewValidationError(op, "INVALID_ESTIMATED_HOURS", "estimated_hours must be at least 1", ErrInvalidRequest)
	}

	if task.ChecklistTemplate == nil {
		task.ChecklistTemplate = []string{}
	}

	return nil
}

func sameHours(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}

	return *a == *b
}
