package file

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/dukex/blueprint/pkg/models"
	"github.com/dukex/blueprint/pkg/persistence"
	"github.com/dukex/blueprint/pkg/rollup"
)

// WorkflowTemplateRepository handles workflow template file operations.
type WorkflowTemplateRepository struct {
	trees *treeStore
}

// List returns paginated and filtered workflow templates with in-memory operations.
func (r *WorkflowTemplateRepository) List(_ context.Context, opts persistence.ListWorkflowTemplatesOptions) (*persistence.WorkflowTemplateListResult, error) {
	if opts.Limit <= 0 || opts.Limit > 100 {
		opts.Limit = 20
	}

	if opts.SortBy == "" {
		opts.SortBy = "created_at"
	}

	if opts.SortOrder == "" {
		opts.SortOrder = "desc"
	}

	allowedSorts := map[string]bool{
		"created_at": true,
		"updated_at": true,
		"name":       true,
	}
	if !allowedSorts[opts.SortBy] {
		return nil, fmt.Errorf("%w: %s", persistence.ErrInvalidSortField, opts.SortBy)
	}

	trees, err := r.trees.loadAll()
	if err != nil {
		return nil, err
	}

	filtered := make([]*models.WorkflowTemplate, 0, len(trees))

	for _, tree := range trees {
		if opts.Active != nil && tree.Active != *opts.Active {
			continue
		}

		filtered = append(filtered, stripTree(tree))
	}

	sortWorkflowTemplates(filtered, opts.SortBy, opts.SortOrder)

	totalCount := int64(len(filtered))
	startIdx := opts.Offset
	endIdx := opts.Offset + opts.Limit

	if startIdx >= len(filtered) {
		return &persistence.WorkflowTemplateListResult{
			WorkflowTemplates: make([]*models.WorkflowTemplate, 0),
			TotalCount:        totalCount,
		}, nil
	}

	if endIdx > len(filtered) {
		endIdx = len(filtered)
	}

	return &persistence.WorkflowTemplateListResult{
		WorkflowTemplates: filtered[startIdx:endIdx],
		TotalCount:        totalCount,
		HasNextPage:       endIdx < len(filtered),
	}, nil
}

func sortWorkflowTemplates(templates []*models.WorkflowTemplate, sortBy, sortOrder string) {
	sort.SliceStable(templates, func(i, j int) bool {
		var less bool

		switch sortBy {
		case "updated_at":
			less = templates[i].UpdatedAt.Before(templates[j].UpdatedAt)
		case "name":
			less = templates[i].Name < templates[j].Name
		default:
			less = templates[i].CreatedAt.Before(templates[j].CreatedAt)
		}

		if sortOrder == "desc" {
			return !less
		}

		return less
	})
}

// GetByID retrieves a workflow template without its children.
func (r *WorkflowTemplateRepository) GetByID(_ context.Context, id string) (*models.WorkflowTemplate, error) {
	tree, err := r.trees.load(id)
	if err != nil {
		return nil, persistence.NewWorkflowTemplateError("GetByID", id, err)
	}

	return stripTree(tree), nil
}

// GetTree retrieves a workflow template with milestones and tasks.
func (r *WorkflowTemplateRepository) GetTree(_ context.Context, id string) (*models.WorkflowTemplate, error) {
	tree, err := r.trees.load(id)
	if err != nil {
		return nil, persistence.NewWorkflowTemplateError("GetTree", id, err)
	}

	return tree, nil
}

func (r *WorkflowTemplateRepository) FindActiveByName(_ context.Context, name string) (*models.WorkflowTemplate, error) {
	trees, err := r.trees.loadAll()
	if err != nil {
		return nil, err
	}

	for _, tree := range trees {
		if tree.Active && strings.EqualFold(tree.Name, name) {
			return stripTree(tree), nil
		}
	}

	return nil, persistence.ErrWorkflowTemplateNotFound
}

func (r *WorkflowTemplateRepository) CodeExists(_ context.Context, code string) (bool, error) {
	trees, err := r.trees.loadAll()
	if err != nil {
		return false, err
	}

	for _, tree := range trees {
		if tree.Code != "" && strings.EqualFold(tree.Code, code) {
			return true, nil
		}
	}

	return false, nil
}

// Create stores a workflow template without children.
func (r *WorkflowTemplateRepository) Create(ctx context.Context, workflow *models.WorkflowTemplate) error {
	cp := workflow.Clone()
	cp.Milestones = nil

	err := r.CreateTree(ctx, cp)
	if err != nil {
		return err
	}

	workflow.ID = cp.ID
	workflow.CreatedAt = cp.CreatedAt
	workflow.UpdatedAt = cp.UpdatedAt

	return nil
}

// CreateTree stores a workflow template with all of its milestones and tasks in one write.
// Missing identifiers are generated and parent references are set from the tree.
func (r *WorkflowTemplateRepository) CreateTree(_ context.Context, workflow *models.WorkflowTemplate) error {
	r.trees.mu.Lock()
	defer r.trees.mu.Unlock()

	if workflow.Active {
		taken, err := r.trees.nameTaken(workflow.Name, workflow.ID)
		if err != nil {
			return err
		}

		if taken {
			return persistence.NewWorkflowTemplateError("CreateTree", workflow.Name, persistence.ErrDuplicateName)
		}
	}

	ts := now()

	err := persistence.PrepareTree(workflow, ts)
	if err != nil {
		return err
	}

	return r.trees.save(workflow)
}

// Update writes the workflow template's own fields and recomputes its duration from the
// stored milestones; children are left untouched.
func (r *WorkflowTemplateRepository) Update(_ context.Context, workflow *models.WorkflowTemplate) error {
	r.trees.mu.Lock()
	defer r.trees.mu.Unlock()

	tree, err := r.trees.load(workflow.ID)
	if err != nil {
		return persistence.NewWorkflowTemplateError("Update", workflow.ID, err)
	}

	if workflow.Active {
		taken, err := r.trees.nameTaken(workflow.Name, workflow.ID)
		if err != nil {
			return err
		}

		if taken {
			return persistence.NewWorkflowTemplateError("Update", workflow.ID, persistence.ErrDuplicateName)
		}
	}

	tree.Name = workflow.Name
	tree.Description = workflow.Description
	tree.Code = workflow.Code
	tree.Active = workflow.Active
	tree.OperatorDurationDays = workflow.OperatorDurationDays
	tree.UpdatedAt = now()

	rollup.ApplyWorkflow(tree, tree.Milestones)

	err = r.trees.save(tree)
	if err != nil {
		return err
	}

	*workflow = *stripTree(tree)

	return nil
}

// RefreshDuration recomputes the workflow duration under the store lock.
func (r *WorkflowTemplateRepository) RefreshDuration(_ context.Context, id string) (*models.WorkflowTemplate, bool, error) {
	r.trees.mu.Lock()
	defer r.trees.mu.Unlock()

	tree, err := r.trees.load(id)
	if err != nil {
		return nil, false, persistence.NewWorkflowTemplateError("RefreshDuration", id, err)
	}

	if !rollup.ApplyWorkflow(tree, tree.Milestones) {
		return stripTree(tree), false, nil
	}

	tree.UpdatedAt = now()

	err = r.trees.save(tree)
	if err != nil {
		return nil, false, err
	}

	return stripTree(tree), true, nil
}

// Delete removes the template together with its milestones and tasks.
func (r *WorkflowTemplateRepository) Delete(_ context.Context, id string) error {
	r.trees.mu.Lock()
	defer r.trees.mu.Unlock()

	err := r.trees.remove(id)
	if err != nil {
		return persistence.NewWorkflowTemplateError("Delete", id, err)
	}

	return nil
}
