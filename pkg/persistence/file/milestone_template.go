package file

import (
	"context"

	"github.com/dukex/blueprint/pkg/models"
	"github.com/dukex/blueprint/pkg/ordering"
	"github.com/dukex/blueprint/pkg/persistence"
	"github.com/dukex/blueprint/pkg/rollup"
)

// MilestoneTemplateRepository handles milestone template file operations.
type MilestoneTemplateRepository struct {
	trees *treeStore
}

func (r *MilestoneTemplateRepository) ListByWorkflow(_ context.Context, workflowID string) ([]*models.MilestoneTemplate, error) {
	tree, err := r.trees.load(workflowID)
	if err != nil {
		return nil, persistence.NewWorkflowTemplateError("ListMilestones", workflowID, err)
	}

	milestones := make([]*models.MilestoneTemplate, 0, len(tree.Milestones))
	for _, milestone := range tree.Milestones {
		milestones = append(milestones, stripMilestone(milestone))
	}

	return milestones, nil
}

func (r *MilestoneTemplateRepository) GetByID(_ context.Context, id string) (*models.MilestoneTemplate, error) {
	_, milestone, err := r.trees.findMilestone(id)
	if err != nil {
		return nil, persistence.NewMilestoneTemplateError("GetByID", id, err)
	}

	return stripMilestone(milestone), nil
}

// Create appends the milestone to its workflow template.
func (r *MilestoneTemplateRepository) Create(_ context.Context, milestone *models.MilestoneTemplate) error {
	r.trees.mu.Lock()
	defer r.trees.mu.Unlock()

	tree, err := r.trees.load(milestone.WorkflowTemplateID)
	if err != nil {
		return persistence.NewWorkflowTemplateError("CreateMilestone", milestone.WorkflowTemplateID, err)
	}

	if milestone.ID == "" {
		milestone.ID, err = persistence.NewID()
		if err != nil {
			return err
		}
	}

	maxOrdinal := 0
	for _, sibling := range tree.Milestones {
		maxOrdinal = max(maxOrdinal, sibling.Ordinal)
	}

	ts := now()
	milestone.Ordinal = maxOrdinal + 1
	milestone.CreatedAt = ts
	milestone.UpdatedAt = ts

	stored := stripMilestone(milestone)
	stored.Tasks = []*models.TaskTemplate{}
	tree.Milestones = append(tree.Milestones, stored)

	return r.trees.save(tree)
}

// Update writes the milestone's mutable fields and recomputes its SLA from the stored tasks.
func (r *MilestoneTemplateRepository) Update(_ context.Context, milestone *models.MilestoneTemplate) error {
	r.trees.mu.Lock()
	defer r.trees.mu.Unlock()

	tree, stored, err := r.trees.findMilestone(milestone.ID)
	if err != nil {
		return persistence.NewMilestoneTemplateError("Update", milestone.ID, err)
	}

	stored.Name = milestone.Name
	stored.Description = milestone.Description
	stored.EstimatedDurationDays = milestone.EstimatedDurationDays
	stored.OperatorSLADays = milestone.OperatorSLADays
	stored.WarningDays = milestone.WarningDays
	stored.EscalationDays = milestone.EscalationDays
	stored.MilestoneType = milestone.MilestoneType
	stored.AutoGenerateTickets = milestone.AutoGenerateTickets
	stored.UpdatedAt = now()

	rollup.ApplyMilestone(stored, stored.Tasks)

	err = r.trees.save(tree)
	if err != nil {
		return err
	}

	*milestone = *stripMilestone(stored)

	return nil
}

// RefreshSLA recomputes the milestone's SLA under the store lock, so the value written
// always reflects the task set at the time of the write.
func (r *MilestoneTemplateRepository) RefreshSLA(_ context.Context, id string) (*models.MilestoneTemplate, bool, error) {
	r.trees.mu.Lock()
	defer r.trees.mu.Unlock()

	tree, stored, err := r.trees.findMilestone(id)
	if err != nil {
		return nil, false, persistence.NewMilestoneTemplateError("RefreshSLA", id, err)
	}

	if !rollup.ApplyMilestone(stored, stored.Tasks) {
		return stripMilestone(stored), false, nil
	}

	stored.UpdatedAt = now()

	err = r.trees.save(tree)
	if err != nil {
		return nil, false, err
	}

	return stripMilestone(stored), true, nil
}

// Delete removes the milestone with its tasks and renumbers the remaining siblings.
func (r *MilestoneTemplateRepository) Delete(_ context.Context, id string) error {
	r.trees.mu.Lock()
	defer r.trees.mu.Unlock()

	tree, _, err := r.trees.findMilestone(id)
	if err != nil {
		return persistence.NewMilestoneTemplateError("Delete", id, err)
	}

	rest := ordering.Milestones(tree.Milestones).Without(id)
	byID := make(map[string]*models.MilestoneTemplate, len(tree.Milestones))

	for _, milestone := range tree.Milestones {
		byID[milestone.ID] = milestone
	}

	remaining := make([]*models.MilestoneTemplate, 0, len(rest))

	for _, a := range rest.Assignments() {
		milestone := byID[a.ID]
		milestone.Ordinal = a.Ordinal
		remaining = append(remaining, milestone)
	}

	tree.Milestones = remaining

	return r.trees.save(tree)
}

// ReassignOrdinals replaces every milestone ordinal of the workflow template in one write.
func (r *MilestoneTemplateRepository) ReassignOrdinals(_ context.Context, workflowID string, assignments []models.OrdinalAssignment) error {
	r.trees.mu.Lock()
	defer r.trees.mu.Unlock()

	tree, err := r.trees.load(workflowID)
	if err != nil {
		return persistence.NewWorkflowTemplateError("ReassignMilestoneOrdinals", workflowID, err)
	}

	next, err := ordering.Milestones(tree.Milestones).Reassign(assignments)
	if err != nil {
		return persistence.NewWorkflowTemplateError("ReassignMilestoneOrdinals", workflowID, persistence.ListingMismatch(err))
	}

	byID := make(map[string]*models.MilestoneTemplate, len(tree.Milestones))
	for _, milestone := range tree.Milestones {
		byID[milestone.ID] = milestone
	}

	ts := now()
	reordered := make([]*models.MilestoneTemplate, 0, len(next))

	for _, a := range next.Assignments() {
		milestone := byID[a.ID]
		if milestone.Ordinal != a.Ordinal {
			milestone.Ordinal = a.Ordinal
			milestone.UpdatedAt = ts
		}

		reordered = append(reordered, milestone)
	}

	tree.Milestones = reordered

	return r.trees.save(tree)
}
