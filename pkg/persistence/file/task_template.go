package file

import (
	"context"

	"github.com/dukex/blueprint/pkg/models"
	"github.com/dukex/blueprint/pkg/ordering"
	"github.com/dukex/blueprint/pkg/persistence"
)

// TaskTemplateRepository handles task template file operations.
type TaskTemplateRepository struct {
	trees *treeStore
}

func (r *TaskTemplateRepository) ListByMilestone(_ context.Context, milestoneID string) ([]*models.TaskTemplate, error) {
	_, milestone, err := r.trees.findMilestone(milestoneID)
	if err != nil {
		return nil, persistence.NewMilestoneTemplateError("ListTasks", milestoneID, err)
	}

	tasks := make([]*models.TaskTemplate, 0, len(milestone.Tasks))
	for _, task := range milestone.Tasks {
		tasks = append(tasks, task.Clone())
	}

	return tasks, nil
}

func (r *TaskTemplateRepository) GetByID(_ context.Context, id string) (*models.TaskTemplate, error) {
	_, _, task, err := r.trees.findTask(id)
	if err != nil {
		return nil, persistence.NewTaskTemplateError("GetByID", id, err)
	}

	return task.Clone(), nil
}

// Create appends the task to its milestone.
func (r *TaskTemplateRepository) Create(_ context.Context, task *models.TaskTemplate) error {
	r.trees.mu.Lock()
	defer r.trees.mu.Unlock()

	tree, milestone, err := r.trees.findMilestone(task.MilestoneTemplateID)
	if err != nil {
		return persistence.NewMilestoneTemplateError("CreateTask", task.MilestoneTemplateID, err)
	}

	if task.ID == "" {
		task.ID, err = persistence.NewID()
		if err != nil {
			return err
		}
	}

	maxOrdinal := 0
	for _, sibling := range milestone.Tasks {
		maxOrdinal = max(maxOrdinal, sibling.Ordinal)
	}

	ts := now()
	task.Ordinal = maxOrdinal + 1
	task.CreatedAt = ts
	task.UpdatedAt = ts

	if task.ChecklistTemplate == nil {
		task.ChecklistTemplate = []string{}
	}

	milestone.Tasks = append(milestone.Tasks, task.Clone())

	return r.trees.save(tree)
}

// Update writes the task's mutable fields.
func (r *TaskTemplateRepository) Update(_ context.Context, task *models.TaskTemplate) error {
	r.trees.mu.Lock()
	defer r.trees.mu.Unlock()

	tree, _, stored, err := r.trees.findTask(task.ID)
	if err != nil {
		return persistence.NewTaskTemplateError("Update", task.ID, err)
	}

	stored.Name = task.Name
	stored.Description = task.Description
	stored.EstimatedHours = task.EstimatedHours
	stored.ResponsibleRole = task.ResponsibleRole
	stored.Mandatory = task.Mandatory
	stored.TaskType = task.TaskType
	stored.ChecklistTemplate = append([]string{}, task.ChecklistTemplate...)
	stored.UpdatedAt = now()

	err = r.trees.save(tree)
	if err != nil {
		return err
	}

	task.UpdatedAt = stored.UpdatedAt

	return nil
}

// Delete removes the task and renumbers the remaining siblings.
func (r *TaskTemplateRepository) Delete(_ context.Context, id string) error {
	r.trees.mu.Lock()
	defer r.trees.mu.Unlock()

	tree, milestone, _, err := r.trees.findTask(id)
	if err != nil {
		return persistence.NewTaskTemplateError("Delete", id, err)
	}

	milestone.Tasks = applyTaskOrder(milestone.Tasks, ordering.Tasks(milestone.Tasks).Without(id))

	return r.trees.save(tree)
}

// ReassignOrdinals replaces every task ordinal of the milestone in one write.
func (r *TaskTemplateRepository) ReassignOrdinals(_ context.Context, milestoneID string, assignments []models.OrdinalAssignment) error {
	r.trees.mu.Lock()
	defer r.trees.mu.Unlock()

	tree, milestone, err := r.trees.findMilestone(milestoneID)
	if err != nil {
		return persistence.NewMilestoneTemplateError("ReassignTaskOrdinals", milestoneID, err)
	}

	next, err := ordering.Tasks(milestone.Tasks).Reassign(assignments)
	if err != nil {
		return persistence.NewMilestoneTemplateError("ReassignTaskOrdinals", milestoneID, persistence.ListingMismatch(err))
	}

	milestone.Tasks = applyTaskOrder(milestone.Tasks, next)

	return r.trees.save(tree)
}

// applyTaskOrder returns the tasks named by seq, in seq order, with contiguous ordinals.
func applyTaskOrder(tasks []*models.TaskTemplate, seq ordering.Sequence) []*models.TaskTemplate {
	byID := make(map[string]*models.TaskTemplate, len(tasks))
	for _, task := range tasks {
		byID[task.ID] = task
	}

	ts := now()
	ordered := make([]*models.TaskTemplate, 0, len(seq))

	for _, a := range seq.Assignments() {
		task := byID[a.ID]
		if task.Ordinal != a.Ordinal {
			task.Ordinal = a.Ordinal
			task.UpdatedAt = ts
		}

		ordered = append(ordered, task)
	}

	return ordered
}
