package services

import (
	"context"

	"github.com/dukex/blueprint/pkg/models"
	"github.com/dukex/blueprint/pkg/otelhelper"
	"github.com/dukex/blueprint/pkg/persistence"
	"go.opentelemetry.io/otel/attribute"
)

// Rollups recomputes and stores derived time budgets. Every mutation that touches task
// hours, the task set, milestone durations or the milestone set ends here.
type Rollups struct {
	persistence persistence.Persistence
	options
}

func NewRollups(p persistence.Persistence, opts ...Option) *Rollups {
	return &Rollups{persistence: p, options: newOptions("rollups", opts)}
}

// RefreshMilestone recomputes the milestone's SLA from its current tasks and writes it
// back when it changed, both under the store's lock. Calling it twice in a row writes
// at most once.
func (r *Rollups) RefreshMilestone(ctx context.Context, id string) (*models.MilestoneTemplate, error) {
	ctx, span := otelhelper.StartSpan(ctx, r.tracer, "rollups.RefreshMilestone",
		attribute.String(otelhelper.MilestoneTemplateIDKey, id))
	defer span.End()

	milestone, changed, err := r.persistence.MilestoneTemplateRepository().RefreshSLA(ctx, id)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, storeError("RefreshMilestone", err)
	}

	r.metrics.Rollup("milestone", changed)

	if !changed {
		return milestone, nil
	}

	r.logger.DebugContext(ctx, "Milestone SLA recomputed",
		"milestone_template_id", id, "sla_days", milestone.SLADays, "sla_source", milestone.SLASource)

	return milestone, nil
}

// RefreshWorkflow recomputes the workflow's duration from its current milestones.
func (r *Rollups) RefreshWorkflow(ctx context.Context, id string) (*models.WorkflowTemplate, error) {
	ctx, span := otelhelper.StartSpan(ctx, r.tracer, "rollups.RefreshWorkflow",
		attribute.String(otelhelper.WorkflowTemplateIDKey, id))
	defer span.End()

	workflow, changed, err := r.persistence.WorkflowTemplateRepository().RefreshDuration(ctx, id)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, storeError("RefreshWorkflow", err)
	}

	r.metrics.Rollup("workflow", changed)

	if !changed {
		return workflow, nil
	}

	r.logger.DebugContext(ctx, "Workflow duration recomputed",
		"workflow_template_id", id, "estimated_duration_days", workflow.EstimatedDurationDays)

	return workflow, nil
}
