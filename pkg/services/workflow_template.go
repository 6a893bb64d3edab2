package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/dukex/blueprint/pkg/events"
	"github.com/dukex/blueprint/pkg/models"
	"github.com/dukex/blueprint/pkg/otelhelper"
	"github.com/dukex/blueprint/pkg/persistence"
	"github.com/dukex/blueprint/pkg/rollup"
	"go.opentelemetry.io/otel/attribute"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// WorkflowTemplates manages the top level of the template hierarchy.
type WorkflowTemplates struct {
	persistence persistence.Persistence
	rollups     *Rollups
	options
}

// NewWorkflowTemplates creates a new workflow template service.
func NewWorkflowTemplates(p persistence.Persistence, opts ...Option) *WorkflowTemplates {
	return &WorkflowTemplates{
		persistence: p,
		rollups:     NewRollups(p, opts...),
		options:     newOptions("workflow_templates", opts),
	}
}

// HealthCheck checks the health of the persistence layer.
func (w *WorkflowTemplates) HealthCheck(ctx context.Context) (string, bool) {
	if w.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := w.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// ListWorkflowTemplatesRequest contains options for listing workflow templates.
type ListWorkflowTemplatesRequest struct {
	// Pagination
	Limit  int `validate:"min=0,max=100"`
	Offset int `validate:"min=0"`

	// Filtering
	Active *bool

	// Sorting
	SortBy    string `validate:"omitempty,oneof=created_at updated_at name"`
	SortOrder string `validate:"omitempty,oneof=asc desc"`
}

// ListWorkflowTemplatesResponse contains the result of listing workflow templates.
type ListWorkflowTemplatesResponse struct {
	WorkflowTemplates []*models.WorkflowTemplate `json:"workflow_templates"`
	TotalCount        int64                      `json:"total_count"`
	HasNextPage       bool                       `json:"has_next_page"`
}

// List retrieves workflow templates with filtering, sorting, and pagination.
func (w *WorkflowTemplates) List(ctx context.Context, req ListWorkflowTemplatesRequest) (*ListWorkflowTemplatesResponse, error) {
	err := validateListRequest(&req)
	if err != nil {
		return nil, err
	}

	result, err := w.persistence.WorkflowTemplateRepository().List(ctx, persistence.ListWorkflowTemplatesOptions{
		Active:    req.Active,
		Limit:     req.Limit,
		Offset:    req.Offset,
		SortBy:    req.SortBy,
		SortOrder: req.SortOrder,
	})
	if err != nil {
		return nil, storeError("List", err)
	}

	return &ListWorkflowTemplatesResponse{
		WorkflowTemplates: result.WorkflowTemplates,
		TotalCount:        result.TotalCount,
		HasNextPage:       result.HasNextPage,
	}, nil
}

func validateListRequest(req *ListWorkflowTemplatesRequest) error {
	if req.Limit == 0 {
		req.Limit = defaultListLimit
	}

	if req.SortBy == "" {
		req.SortBy = "created_at"
	}

	if req.SortOrder == "" {
		req.SortOrder = "desc"
	}

	if req.Limit < 0 || req.Limit > maxListLimit {
		return NewValidationError("List", "INVALID_LIMIT",
			fmt.Sprintf("limit must be between 1 and %d", maxListLimit), ErrInvalidRequest)
	}

	switch req.SortBy {
	case "created_at", "updated_at", "name":
	default:
		return NewValidationError("List", "INVALID_SORT_FIELD",
			fmt.Sprintf("invalid sort field '%s', allowed: created_at, updated_at, name", req.SortBy), ErrInvalidSortField)
	}

	if req.SortOrder != "asc" && req.SortOrder != "desc" {
		return NewValidationError("List", "INVALID_SORT_ORDER",
			fmt.Sprintf("invalid sort order '%s', allowed: asc, desc", req.SortOrder), ErrInvalidSortOrder)
	}

	return validateStruct("List", req)
}

// Get returns the workflow template without children.
func (w *WorkflowTemplates) Get(ctx context.Context, id string) (*models.WorkflowTemplate, error) {
	workflow, err := w.persistence.WorkflowTemplateRepository().GetByID(ctx, id)
	if err != nil {
		return nil, storeError("Get", err)
	}

	return workflow, nil
}

// GetTree returns the workflow template with milestones and tasks in ordinal order.
func (w *WorkflowTemplates) GetTree(ctx context.Context, id string) (*models.WorkflowTemplate, error) {
	workflow, err := w.persistence.WorkflowTemplateRepository().GetTree(ctx, id)
	if err != nil {
		return nil, storeError("GetTree", err)
	}

	return workflow, nil
}

// CreateWorkflowTemplateRequest carries the operator-supplied fields of a new workflow template.
type CreateWorkflowTemplateRequest struct {
	Name        string `json:"name"        validate:"required"`
	Description string `json:"description"`
	Code        string `json:"code"`
	// EstimatedDurationDays is the operator value, used until the first milestone is added.
	EstimatedDurationDays *int  `json:"estimated_duration_days,omitempty" validate:"omitempty,min=1"`
	Active                *bool `json:"active,omitempty"`
}

// Create stores a new workflow template without milestones.
func (w *WorkflowTemplates) Create(ctx context.Context, req CreateWorkflowTemplateRequest) (*models.WorkflowTemplate, error) {
	ctx, span := otelhelper.StartSpan(ctx, w.tracer, "workflow_templates.Create")
	defer span.End()

	name, err := requireName("Create", req.Name)
	if err != nil {
		return nil, err
	}

	req.Name = name

	err = validateStruct("Create", req)
	if err != nil {
		return nil, err
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	if active {
		err = w.ensureNameAvailable(ctx, "Create", name, "")
		if err != nil {
			return nil, err
		}
	}

	workflow := &models.WorkflowTemplate{
		Name:                 name,
		Description:          req.Description,
		Code:                 normalizeCode(req.Code),
		Active:               active,
		OperatorDurationDays: req.EstimatedDurationDays,
	}
	rollup.ApplyWorkflow(workflow, nil)

	err = w.persistence.WorkflowTemplateRepository().Create(ctx, workflow)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, storeError("Create", err)
	}

	span.SetAttributes(attribute.String(otelhelper.WorkflowTemplateIDKey, workflow.ID))
	w.logger.InfoContext(ctx, "Workflow template created", "workflow_template_id", workflow.ID, "name", workflow.Name)
	w.publish(ctx, workflow.ID, &events.WorkflowTemplateCreated{
		BaseEvent:          events.NewBaseEvent(events.WorkflowTemplateCreatedEvent),
		WorkflowTemplateID: workflow.ID,
		Name:               workflow.Name,
	})

	return workflow, nil
}

// WorkflowTemplatePatch lists the fields to change; nil fields are left as they are.
type WorkflowTemplatePatch struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Code        *string `json:"code,omitempty"`
	Active      *bool   `json:"active,omitempty"`

	EstimatedDurationDays      *int `json:"estimated_duration_days,omitempty" validate:"omitempty,min=1"`
	ClearEstimatedDurationDays bool `json:"clear_estimated_duration_days,omitempty"`
}

// Update applies patch to the workflow template. A duration change only sets the
// operator value; the effective duration stays derived while milestones exist.
func (w *WorkflowTemplates) Update(ctx context.Context, id string, patch WorkflowTemplatePatch) (*models.WorkflowTemplate, error) {
	ctx, span := otelhelper.StartSpan(ctx, w.tracer, "workflow_templates.Update",
		attribute.String(otelhelper.WorkflowTemplateIDKey, id))
	defer span.End()

	err := validateStruct("Update", patch)
	if err != nil {
		return nil, err
	}

	workflow, err := w.persistence.WorkflowTemplateRepository().GetByID(ctx, id)
	if err != nil {
		return nil, storeError("Update", err)
	}

	if patch.Name != nil {
		workflow.Name, err = requireName("Update", *patch.Name)
		if err != nil {
			return nil, err
		}
	}

	if patch.Description != nil {
		workflow.Description = *patch.Description
	}

	if patch.Code != nil {
		workflow.Code = normalizeCode(*patch.Code)
	}

	if patch.Active != nil {
		workflow.Active = *patch.Active
	}

	if workflow.Active && (patch.Name != nil || patch.Active != nil) {
		err = w.ensureNameAvailable(ctx, "Update", workflow.Name, workflow.ID)
		if err != nil {
			return nil, err
		}
	}

	switch {
	case patch.ClearEstimatedDurationDays:
		workflow.OperatorDurationDays = nil
	case patch.EstimatedDurationDays != nil:
		workflow.OperatorDurationDays = models.IntPtr(*patch.EstimatedDurationDays)
	}

	err = w.persistence.WorkflowTemplateRepository().Update(ctx, workflow)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, storeError("Update", err)
	}

	w.logger.InfoContext(ctx, "Workflow template updated", "workflow_template_id", id)
	w.publish(ctx, id, &events.WorkflowTemplateUpdated{
		BaseEvent:          events.NewBaseEvent(events.WorkflowTemplateUpdatedEvent),
		WorkflowTemplateID: id,
		Active:             workflow.Active,
	})

	return workflow, nil
}

// Deactivate hides the workflow template from selection lists without deleting it.
func (w *WorkflowTemplates) Deactivate(ctx context.Context, id string) (*models.WorkflowTemplate, error) {
	inactive := false

	return w.Update(ctx, id, WorkflowTemplatePatch{Active: &inactive})
}

// Delete removes the workflow template together with its milestones and tasks.
func (w *WorkflowTemplates) Delete(ctx context.Context, id string) error {
	ctx, span := otelhelper.StartSpan(ctx, w.tracer, "workflow_templates.Delete",
		attribute.String(otelhelper.WorkflowTemplateIDKey, id))
	defer span.End()

	err := w.persistence.WorkflowTemplateRepository().Delete(ctx, id)
	if err != nil {
		otelhelper.SetError(span, err)

		return storeError("Delete", err)
	}

	w.logger.InfoContext(ctx, "Workflow template deleted", "workflow_template_id", id)
	w.publish(ctx, id, &events.WorkflowTemplateDeleted{
		BaseEvent:          events.NewBaseEvent(events.WorkflowTemplateDeletedEvent),
		WorkflowTemplateID: id,
	})

	return nil
}

// Import stores a complete template tree under fresh identifiers. Ordinals follow the
// slice order of milestones and tasks, and every derived value is recomputed.
func (w *WorkflowTemplates) Import(ctx context.Context, tree *models.WorkflowTemplate) (*models.WorkflowTemplate, error) {
	ctx, span := otelhelper.StartSpan(ctx, w.tracer, "workflow_templates.Import")
	defer span.End()

	workflow := tree.Clone()

	err := normalizeTree("Import", workflow)
	if err != nil {
		return nil, err
	}

	if workflow.Active {
		err = w.ensureNameAvailable(ctx, "Import", workflow.Name, "")
		if err != nil {
			return nil, err
		}
	}

	rollup.ApplyTree(workflow)

	err = w.persistence.WorkflowTemplateRepository().CreateTree(ctx, workflow)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, storeError("Import", err)
	}

	w.logger.InfoContext(ctx, "Workflow template imported",
		"workflow_template_id", workflow.ID, "milestones", len(workflow.Milestones))
	w.publish(ctx, workflow.ID, &events.WorkflowTemplateCreated{
		BaseEvent:          events.NewBaseEvent(events.WorkflowTemplateCreatedEvent),
		WorkflowTemplateID: workflow.ID,
		Name:               workflow.Name,
		Imported:           true,
	})

	return workflow, nil
}

// normalizeTree validates a tree before insertion, clears identifiers and fills defaults.
func normalizeTree(op string, workflow *models.WorkflowTemplate) error {
	var err error

	workflow.Name, err = requireName(op, workflow.Name)
	if err != nil {
		return err
	}

	workflow.ID = ""
	workflow.Code = normalizeCode(workflow.Code)

	for i, milestone := range workflow.Milestones {
		milestone.Name, err = requireName(op, milestone.Name)
		if err != nil {
			return fmt.Errorf("milestone %d: %w", i+1, err)
		}

		milestone.ID = ""

		err = applyMilestoneDefaults(op, milestone)
		if err != nil {
			return err
		}

		for j, task := range milestone.Tasks {
			task.Name, err = requireName(op, task.Name)
			if err != nil {
				return fmt.Errorf("milestone %d task %d: %w", i+1, j+1, err)
			}

			task.ID = ""

			err = applyTaskDefaults(op, task)
			if err != nil {
				return err
			}
		}
	}

	return nil
}

// ensureNameAvailable rejects name when another active template already uses it.
func (w *WorkflowTemplates) ensureNameAvailable(ctx context.Context, op, name, selfID string) error {
	return nameAvailable(ctx, w.persistence, op, name, selfID)
}

func nameAvailable(ctx context.Context, p persistence.Persistence, op, name, selfID string) error {
	existing, err := p.WorkflowTemplateRepository().FindActiveByName(ctx, strings.TrimSpace(name))

	switch {
	case persistence.IsNotFound(err):
		return nil
	case err != nil:
		return storeError(op, err)
	case existing.ID == selfID:
		return nil
	default:
		return NewValidationError(op, "DUPLICATE_NAME",
			fmt.Sprintf("an active workflow template named '%s' already exists", name), ErrDuplicateName)
	}
}
