package services

import (
	"context"
	"fmt"

	"github.com/dukex/blueprint/pkg/events"
	"github.com/dukex/blueprint/pkg/models"
	"github.com/dukex/blueprint/pkg/otelhelper"
	"github.com/dukex/blueprint/pkg/persistence"
	"github.com/dukex/blueprint/pkg/rollup"
	"go.opentelemetry.io/otel/attribute"
)

const (
	copySuffix       = "_COPY"
	maxCodeAttempts  = 1000
	cloneDepthTop    = "workflow"
	cloneDepthPhases = "milestones"
	cloneDepthFull   = "tasks"
)

// CloneRequest selects the source template and how deep the copy goes. CloneTasks is
// ignored unless CloneMilestones is set.
type CloneRequest struct {
	SourceID        string `json:"-"                validate:"required"`
	NewName         string `json:"name"             validate:"required"`
	CloneMilestones bool   `json:"clone_milestones"`
	CloneTasks      bool   `json:"clone_tasks"`
}

// Cloning deep-copies workflow template trees under fresh identifiers.
type Cloning struct {
	persistence persistence.Persistence
	options
}

func NewCloning(p persistence.Persistence, opts ...Option) *Cloning {
	return &Cloning{persistence: p, options: newOptions("cloning", opts)}
}

// Clone copies the source template under NewName. The copy is always active and its
// code is the source code suffixed with _COPY (then _COPY_2, _COPY_3...) until unused.
// A NewName already used by an active template is rejected, not auto-suffixed.
func (c *Cloning) Clone(ctx context.Context, req CloneRequest) (*models.WorkflowTemplate, error) {
	ctx, span := otelhelper.StartSpan(ctx, c.tracer, "cloning.Clone",
		attribute.String(otelhelper.WorkflowTemplateIDKey, req.SourceID),
		attribute.Bool("blueprint.clone.milestones", req.CloneMilestones),
		attribute.Bool("blueprint.clone.tasks", req.CloneTasks))
	defer span.End()

	name, err := requireName("Clone", req.NewName)
	if err != nil {
		return nil, err
	}

	req.NewName = name

	err = validateStruct("Clone", req)
	if err != nil {
		return nil, err
	}

	source, err := c.persistence.WorkflowTemplateRepository().GetTree(ctx, req.SourceID)
	if err != nil {
		return nil, storeError("Clone", err)
	}

	err = nameAvailable(ctx, c.persistence, "Clone", name, "")
	if err != nil {
		return nil, err
	}

	code, err := c.deriveCode(ctx, source.Code, name)
	if err != nil {
		return nil, err
	}

	clone := copyTree(source, req)
	clone.Name = name
	clone.Code = code

	rollup.ApplyTree(clone)

	err = c.persistence.WorkflowTemplateRepository().CreateTree(ctx, clone)
	if err != nil {
		otelhelper.SetError(span, err)

		if persistence.IsDuplicateName(err) {
			c.metrics.Conflict("Clone")
		}

		return nil, storeError("Clone", err)
	}

	depth := cloneDepth(req)
	c.metrics.Clone(depth)
	c.logger.InfoContext(ctx, "Workflow template cloned",
		"source_id", source.ID, "workflow_template_id", clone.ID, "depth", depth)
	c.publish(ctx, clone.ID, &events.WorkflowTemplateCloned{
		BaseEvent:       events.NewBaseEvent(events.WorkflowTemplateClonedEvent),
		SourceID:        source.ID,
		CloneID:         clone.ID,
		CloneMilestones: req.CloneMilestones,
		CloneTasks:      req.CloneMilestones && req.CloneTasks,
	})

	return clone, nil
}

// copyTree builds the unsaved copy. Levels that are not copied keep the source's
// effective value as the operator value, so the copy reports the same budgets.
func copyTree(source *models.WorkflowTemplate, req CloneRequest) *models.WorkflowTemplate {
	clone := &models.WorkflowTemplate{
		Description:          source.Description,
		Active:               true,
		OperatorDurationDays: source.OperatorDurationDays,
	}

	if !req.CloneMilestones {
		if source.EstimatedDurationDays != nil {
			clone.OperatorDurationDays = models.IntPtr(*source.EstimatedDurationDays)
		}

		return clone
	}

	clone.Milestones = make([]*models.MilestoneTemplate, 0, len(source.Milestones))

	for _, sourceMilestone := range source.Milestones {
		milestone := sourceMilestone.Clone()
		milestone.ID = ""
		milestone.WorkflowTemplateID = ""
		milestone.Tasks = nil

		if req.CloneTasks {
			milestone.Tasks = make([]*models.TaskTemplate, 0, len(sourceMilestone.Tasks))

			for _, sourceTask := range sourceMilestone.Tasks {
				task := sourceTask.Clone()
				task.ID = ""
				task.MilestoneTemplateID = ""
				milestone.Tasks = append(milestone.Tasks, task)
			}
		} else if sourceMilestone.SLADays != nil {
			milestone.OperatorSLADays = models.IntPtr(*sourceMilestone.SLADays)
		}

		clone.Milestones = append(clone.Milestones, milestone)
	}

	return clone
}

// deriveCode suffixes sourceCode, or the code form of newName when the source has none.
func (c *Cloning) deriveCode(ctx context.Context, sourceCode, newName string) (string, error) {
	base := sourceCode
	if base == "" {
		base = normalizeCode(newName)
	}

	base += copySuffix

	for attempt := 1; attempt <= maxCodeAttempts; attempt++ {
		candidate := base
		if attempt > 1 {
			candidate = fmt.Sprintf("%s_%d", base, attempt)
		}

		exists, err := c.persistence.WorkflowTemplateRepository().CodeExists(ctx, candidate)
		if err != nil {
			return "", storeError("Clone", err)
		}

		if !exists {
			return candidate, nil
		}
	}

	return "", newConflictError("Clone", "no free code for the copy", fmt.Errorf("exhausted %d candidates for %s", maxCodeAttempts, base))
}

func cloneDepth(req CloneRequest) string {
	switch {
	case !req.CloneMilestones:
		return cloneDepthTop
	case !req.CloneTasks:
		return cloneDepthPhases
	default:
		return cloneDepthFull
	}
}
