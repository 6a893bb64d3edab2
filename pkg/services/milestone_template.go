package services

import (
	"context"
	"fmt"

	"github.com/dukex/blueprint/pkg/models"
	"github.com/dukex/blueprint/pkg/otelhelper"
	"github.com/dukex/blueprint/pkg/persistence"
	"github.com/dukex/blueprint/pkg/rollup"
	"go.opentelemetry.io/otel/attribute"
)

// MilestoneTemplates manages the phases of a workflow template.
type MilestoneTemplates struct {
	persistence persistence.Persistence
	rollups     *Rollups
	reorder     reorderer
	options
}

// NewMilestoneTemplates creates a new milestone template service.
func NewMilestoneTemplates(p persistence.Persistence, opts ...Option) *MilestoneTemplates {
	o := newOptions("milestone_templates", opts)

	return &MilestoneTemplates{
		persistence: p,
		rollups:     NewRollups(p, opts...),
		reorder:     reorderer{options: o},
		options:     o,
	}
}

func (m *MilestoneTemplates) siblings() siblings {
	return milestoneSiblings{repo: m.persistence.MilestoneTemplateRepository()}
}

// ListByWorkflow returns the workflow's milestones in ordinal order.
func (m *MilestoneTemplates) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.MilestoneTemplate, error) {
	_, err := m.persistence.WorkflowTemplateRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, storeError("ListByWorkflow", err)
	}

	milestones, err := m.persistence.MilestoneTemplateRepository().ListByWorkflow(ctx, workflowID)
	if err != nil {
		return nil, storeError("ListByWorkflow", err)
	}

	return milestones, nil
}

func (m *MilestoneTemplates) Get(ctx context.Context, id string) (*models.MilestoneTemplate, error) {
	milestone, err := m.persistence.MilestoneTemplateRepository().GetByID(ctx, id)
	if err != nil {
		return nil, storeError("Get", err)
	}

	return milestone, nil
}

// CreateMilestoneTemplateRequest carries the fields of a new milestone. SLADays is the
// operator value, which stays in effect until the milestone has tasks.
type CreateMilestoneTemplateRequest struct {
	Name                  string               `json:"name"                              validate:"required"`
	Description           string               `json:"description"`
	EstimatedDurationDays *int                 `json:"estimated_duration_days,omitempty" validate:"omitempty,min=0"`
	SLADays               *int                 `json:"sla_days,omitempty"                validate:"omitempty,min=1"`
	WarningDays           *int                 `json:"warning_days,omitempty"            validate:"omitempty,min=0"`
	EscalationDays        *int                 `json:"escalation_days,omitempty"         validate:"omitempty,min=0"`
	MilestoneType         models.MilestoneType `json:"milestone_type"`
	AutoGenerateTickets   bool                 `json:"auto_generate_tickets"`
}

// Create appends a milestone to the workflow and refreshes the workflow duration.
func (m *MilestoneTemplates) Create(ctx context.Context, workflowID string, req CreateMilestoneTemplateRequest) (*models.MilestoneTemplate, error) {
	ctx, span := otelhelper.StartSpan(ctx, m.tracer, "milestone_templates.Create",
		attribute.String(otelhelper.WorkflowTemplateIDKey, workflowID))
	defer span.End()

	name, err := requireName("CreateMilestone", req.Name)
	if err != nil {
		return nil, err
	}

	req.Name = name

	err = validateStruct("CreateMilestone", req)
	if err != nil {
		return nil, err
	}

	milestone := &models.MilestoneTemplate{
		WorkflowTemplateID:    workflowID,
		Name:                  name,
		Description:           req.Description,
		EstimatedDurationDays: req.EstimatedDurationDays,
		OperatorSLADays:       req.SLADays,
		WarningDays:           intOr(req.WarningDays, models.DefaultWarningDays),
		EscalationDays:        intOr(req.EscalationDays, models.DefaultEscalationDays),
		MilestoneType:         req.MilestoneType,
		AutoGenerateTickets:   req.AutoGenerateTickets,
	}

	err = applyMilestoneDefaults("CreateMilestone", milestone)
	if err != nil {
		return nil, err
	}

	rollup.ApplyMilestone(milestone, nil)

	err = m.persistence.MilestoneTemplateRepository().Create(ctx, milestone)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, storeError("CreateMilestone", err)
	}

	_, err = m.rollups.RefreshWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	m.logger.InfoContext(ctx, "Milestone template created",
		"milestone_template_id", milestone.ID, "workflow_template_id", workflowID, "ordinal", milestone.Ordinal)

	return milestone, nil
}

// MilestoneTemplatePatch lists the fields to change; nil fields are left as they are.
type MilestoneTemplatePatch struct {
	Name                       *string               `json:"name,omitempty"`
	Description                *string               `json:"description,omitempty"`
	EstimatedDurationDays      *int                  `json:"estimated_duration_days,omitempty" validate:"omitempty,min=0"`
	ClearEstimatedDurationDays bool                  `json:"clear_estimated_duration_days,omitempty"`
	SLADays                    *int                  `json:"sla_days,omitempty"                validate:"omitempty,min=1"`
	ClearSLADays               bool                  `json:"clear_sla_days,omitempty"`
	WarningDays                *int                  `json:"warning_days,omitempty"            validate:"omitempty,min=0"`
	EscalationDays             *int                  `json:"escalation_days,omitempty"         validate:"omitempty,min=0"`
	MilestoneType              *models.MilestoneType `json:"milestone_type,omitempty"`
	AutoGenerateTickets        *bool                 `json:"auto_generate_tickets,omitempty"`
}

// Update applies patch. An SLA change sets the operator value only: while the milestone
// has tasks the effective SLA stays derived from them.
func (m *MilestoneTemplates) Update(ctx context.Context, id string, patch MilestoneTemplatePatch) (*models.MilestoneTemplate, error) {
	ctx, span := otelhelper.StartSpan(ctx, m.tracer, "milestone_templates.Update",
		attribute.String(otelhelper.MilestoneTemplateIDKey, id))
	defer span.End()

	err := validateStruct("UpdateMilestone", patch)
	if err != nil {
		return nil, err
	}

	milestone, err := m.persistence.MilestoneTemplateRepository().GetByID(ctx, id)
	if err != nil {
		return nil, storeError("UpdateMilestone", err)
	}

	if patch.Name != nil {
		milestone.Name, err = requireName("UpdateMilestone", *patch.Name)
		if err != nil {
			return nil, err
		}
	}

	if patch.Description != nil {
		milestone.Description = *patch.Description
	}

	durationChanged := patch.ClearEstimatedDurationDays || patch.EstimatedDurationDays != nil

	switch {
	case patch.ClearEstimatedDurationDays:
		milestone.EstimatedDurationDays = nil
	case patch.EstimatedDurationDays != nil:
		milestone.EstimatedDurationDays = models.IntPtr(*patch.EstimatedDurationDays)
	}

	switch {
	case patch.ClearSLADays:
		milestone.OperatorSLADays = nil
	case patch.SLADays != nil:
		milestone.OperatorSLADays = models.IntPtr(*patch.SLADays)
	}

	if patch.WarningDays != nil {
		milestone.WarningDays = *patch.WarningDays
	}

	if patch.EscalationDays != nil {
		milestone.EscalationDays = *patch.EscalationDays
	}

	if patch.MilestoneType != nil {
		milestone.MilestoneType = *patch.MilestoneType
	}

	if patch.AutoGenerateTickets != nil {
		milestone.AutoGenerateTickets = *patch.AutoGenerateTickets
	}

	err = applyMilestoneDefaults("UpdateMilestone", milestone)
	if err != nil {
		return nil, err
	}

	err = m.persistence.MilestoneTemplateRepository().Update(ctx, milestone)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, storeError("UpdateMilestone", err)
	}

	if durationChanged {
		_, err = m.rollups.RefreshWorkflow(ctx, milestone.WorkflowTemplateID)
		if err != nil {
			return nil, err
		}
	}

	return milestone, nil
}

// Delete removes the milestone and its tasks, closes the ordinal gap and refreshes the
// workflow duration.
func (m *MilestoneTemplates) Delete(ctx context.Context, id string) error {
	ctx, span := otelhelper.StartSpan(ctx, m.tracer, "milestone_templates.Delete",
		attribute.String(otelhelper.MilestoneTemplateIDKey, id))
	defer span.End()

	milestone, err := m.persistence.MilestoneTemplateRepository().GetByID(ctx, id)
	if err != nil {
		return storeError("DeleteMilestone", err)
	}

	err = m.persistence.MilestoneTemplateRepository().Delete(ctx, id)
	if err != nil {
		otelhelper.SetError(span, err)

		return storeError("DeleteMilestone", err)
	}

	_, err = m.rollups.RefreshWorkflow(ctx, milestone.WorkflowTemplateID)
	if err != nil {
		return err
	}

	m.logger.InfoContext(ctx, "Milestone template deleted",
		"milestone_template_id", id, "workflow_template_id", milestone.WorkflowTemplateID)

	return nil
}

// Move swaps the milestone with its neighbour. Moving the first milestone up or the
// last one down leaves the order unchanged.
func (m *MilestoneTemplates) Move(ctx context.Context, id string, dir models.Direction) ([]*models.MilestoneTemplate, error) {
	milestone, err := m.persistence.MilestoneTemplateRepository().GetByID(ctx, id)
	if err != nil {
		return nil, storeError("MoveMilestone", err)
	}

	_, err = m.reorder.move(ctx, "MoveMilestone", m.siblings(), milestone.WorkflowTemplateID, id, dir)
	if err != nil {
		return nil, err
	}

	return m.ListByWorkflow(ctx, milestone.WorkflowTemplateID)
}

// Reorder replaces every milestone ordinal of the workflow with the given listing.
func (m *MilestoneTemplates) Reorder(ctx context.Context, workflowID string, assignments []models.OrdinalAssignment) ([]*models.MilestoneTemplate, error) {
	_, err := m.persistence.WorkflowTemplateRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, storeError("ReorderMilestones", err)
	}

	_, err = m.reorder.bulk(ctx, "ReorderMilestones", m.siblings(), workflowID, assignments)
	if err != nil {
		return nil, err
	}

	return m.ListByWorkflow(ctx, workflowID)
}

func applyMilestoneDefaults(op string, milestone *models.MilestoneTemplate) error {
	if milestone.MilestoneType == "" {
		milestone.MilestoneType = models.MilestoneTypeStandard
	}

	if !milestone.MilestoneType.Valid() {
		return NewValidationError(op, "INVALID_MILESTONE_TYPE",
			fmt.Sprintf("invalid milestone type '%s'", milestone.MilestoneType), ErrInvalidRequest)
	}

	if milestone.WarningDays < 0 || milestone.EscalationDays < 0 {
		return NewValidationError(op, "INVALID_OFFSET",
			"warning_days and escalation_days must not be negative", ErrInvalidRequest)
	}

	if milestone.OperatorSLADays != nil && *milestone.OperatorSLADays < 1 {
		return NewValidationError(op, "INVALID_SLA_DAYS", "sla_days must be at least 1", ErrInvalidRequest)
	}

	return nil
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}

	return *v
}
