package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/blueprint/pkg/models"
	"github.com/dukex/blueprint/pkg/persistence"
	"github.com/dukex/blueprint/pkg/rollup"
	"github.com/jmoiron/sqlx"
)

const activeNameConstraint = "uq_workflow_templates_active_name"

const workflowColumns = `
			id
		  , name
		  , description
		  , code
		  , active
		  , estimated_duration_days
		  , operator_duration_days
		  , duration_source
		  , created_at
		  , updated_at`

// WorkflowTemplateRepository handles workflow template database operations.
type WorkflowTemplateRepository struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewWorkflowTemplateRepository creates a new workflow template repository.
func NewWorkflowTemplateRepository(db *sqlx.DB, logger *slog.Logger) *WorkflowTemplateRepository {
	return &WorkflowTemplateRepository{db: db, logger: logger}
}

// List returns paginated and filtered workflow templates.
func (r *WorkflowTemplateRepository) List(ctx context.Context, opts persistence.ListWorkflowTemplatesOptions) (*persistence.WorkflowTemplateListResult, error) {
	if opts.Limit <= 0 || opts.Limit > 100 {
		opts.Limit = 20
	}

	if opts.SortBy == "" {
		opts.SortBy = "created_at"
	}

	sortColumns := map[string]string{
		"created_at": "created_at",
		"updated_at": "updated_at",
		"name":       "lower(name)",
	}

	column, ok := sortColumns[opts.SortBy]
	if !ok {
		return nil, fmt.Errorf("%w: %s", persistence.ErrInvalidSortField, opts.SortBy)
	}

	direction := "DESC"
	if opts.SortOrder == "asc" {
		direction = "ASC"
	}

	where := ""
	args := []any{}

	if opts.Active != nil {
		where = "WHERE active = $1"

		args = append(args, *opts.Active)
	}

	var totalCount int64

	err := r.db.GetContext(ctx, &totalCount, "SELECT COUNT(*) FROM workflow_templates "+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count workflow templates: %w", err)
	}

	query := fmt.Sprintf("SELECT %s FROM workflow_templates %s ORDER BY %s %s, id LIMIT $%d OFFSET $%d",
		workflowColumns, where, column, direction, len(args)+1, len(args)+2)

	templates := make([]*models.WorkflowTemplate, 0)

	err = r.db.SelectContext(ctx, &templates, query, append(args, opts.Limit, opts.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow templates: %w", err)
	}

	return &persistence.WorkflowTemplateListResult{
		WorkflowTemplates: templates,
		TotalCount:        totalCount,
		HasNextPage:       int64(opts.Offset+len(templates)) < totalCount,
	}, nil
}

// GetByID retrieves a workflow template without its children.
func (r *WorkflowTemplateRepository) GetByID(ctx context.Context, id string) (*models.WorkflowTemplate, error) {
	return getWorkflow(ctx, r.db, "GetByID", id, false)
}

// GetTree retrieves a workflow template with milestones and tasks in ordinal order.
func (r *WorkflowTemplateRepository) GetTree(ctx context.Context, id string) (*models.WorkflowTemplate, error) {
	workflow, err := getWorkflow(ctx, r.db, "GetTree", id, false)
	if err != nil {
		return nil, err
	}

	milestones, err := selectMilestones(ctx, r.db, id)
	if err != nil {
		return nil, err
	}

	rows := make([]taskRow, 0)

	err = r.db.SelectContext(ctx, &rows, `
		SELECT `+prefixedTaskColumns+`
		FROM task_templates t
		JOIN milestone_templates m ON m.id = t.milestone_template_id
		WHERE m.workflow_template_id = $1
		ORDER BY m.ordinal, t.ordinal`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query task templates: %w", err)
	}

	byMilestone := make(map[string]*models.MilestoneTemplate, len(milestones))
	for _, milestone := range milestones {
		milestone.Tasks = make([]*models.TaskTemplate, 0)
		byMilestone[milestone.ID] = milestone
	}

	for _, row := range rows {
		task, err := row.toModel()
		if err != nil {
			return nil, err
		}

		if milestone, ok := byMilestone[task.MilestoneTemplateID]; ok {
			milestone.Tasks = append(milestone.Tasks, task)
		}
	}

	workflow.Milestones = milestones

	return workflow, nil
}

func (r *WorkflowTemplateRepository) FindActiveByName(ctx context.Context, name string) (*models.WorkflowTemplate, error) {
	var workflow models.WorkflowTemplate

	err := r.db.GetContext(ctx, &workflow,
		"SELECT "+workflowColumns+" FROM workflow_templates WHERE active AND lower(name) = lower($1)", name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrWorkflowTemplateNotFound
		}

		return nil, fmt.Errorf("failed to query workflow template by name: %w", err)
	}

	return &workflow, nil
}

func (r *WorkflowTemplateRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool

	err := r.db.GetContext(ctx, &exists,
		"SELECT EXISTS (SELECT 1 FROM workflow_templates WHERE code <> '' AND lower(code) = lower($1))", code)
	if err != nil {
		return false, fmt.Errorf("failed to check workflow template code: %w", err)
	}

	return exists, nil
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

// CreateTree inserts the template, its milestones and their tasks in one transaction.
func (r *WorkflowTemplateRepository) CreateTree(ctx context.Context, workflow *models.WorkflowTemplate) error {
	err := persistence.PrepareTree(workflow, time.Now().UTC())
	if err != nil {
		return err
	}

	err = inTx(ctx, r.db, func(tx *sqlx.Tx) error {
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO workflow_templates (
				id, name, description, code, active,
				estimated_duration_days, operator_duration_days, duration_source,
				created_at, updated_at
			) VALUES (
				:id, :name, :description, :code, :active,
				:estimated_duration_days, :operator_duration_days, :duration_source,
				:created_at, :updated_at
			)`, workflow)
		if err != nil {
			return err
		}

		for _, milestone := range workflow.Milestones {
			err = insertMilestone(ctx, tx, milestone)
			if err != nil {
				return err
			}

			for _, task := range milestone.Tasks {
				err = insertTask(ctx, tx, task)
				if err != nil {
					return err
				}
			}
		}

		return nil
	})
	if err != nil {
		if isConstraint(err, activeNameConstraint) {
			return persistence.NewWorkflowTemplateError("CreateTree", workflow.Name, persistence.ErrDuplicateName)
		}

		return fmt.Errorf("failed to create workflow template: %w", err)
	}

	return nil
}

// Update writes the workflow template's own fields; children are left untouched. The row
// is locked while the duration is recomputed from the committed milestones.
func (r *WorkflowTemplateRepository) Update(ctx context.Context, workflow *models.WorkflowTemplate) error {
	return inTx(ctx, r.db, func(tx *sqlx.Tx) error {
		_, err := getWorkflow(ctx, tx, "Update", workflow.ID, true)
		if err != nil {
			return err
		}

		milestones, err := selectMilestones(ctx, tx, workflow.ID)
		if err != nil {
			return err
		}

		rollup.ApplyWorkflow(workflow, milestones)
		workflow.UpdatedAt = time.Now().UTC()

		_, err = tx.NamedExecContext(ctx, `
			UPDATE workflow_templates SET
				name = :name,
				description = :description,
				code = :code,
				active = :active,
				estimated_duration_days = :estimated_duration_days,
				operator_duration_days = :operator_duration_days,
				duration_source = :duration_source,
				updated_at = :updated_at
			WHERE id = :id`, workflow)
		if err != nil {
			if isConstraint(err, activeNameConstraint) {
				return persistence.NewWorkflowTemplateError("Update", workflow.ID, persistence.ErrDuplicateName)
			}

			return fmt.Errorf("failed to update workflow template: %w", err)
		}

		return nil
	})
}

// RefreshDuration recomputes the duration with the workflow row locked and writes only
// estimated_duration_days and duration_source.
func (r *WorkflowTemplateRepository) RefreshDuration(ctx context.Context, id string) (*models.WorkflowTemplate, bool, error) {
	var (
		workflow *models.WorkflowTemplate
		changed  bool
	)

	err := inTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var err error

		workflow, err = getWorkflow(ctx, tx, "RefreshDuration", id, true)
		if err != nil {
			return err
		}

		milestones, err := selectMilestones(ctx, tx, id)
		if err != nil {
			return err
		}

		changed = rollup.ApplyWorkflow(workflow, milestones)
		if !changed {
			return nil
		}

		workflow.UpdatedAt = time.Now().UTC()

		_, err = tx.ExecContext(ctx,
			"UPDATE workflow_templates SET estimated_duration_days = $1, duration_source = $2, updated_at = $3 WHERE id = $4",
			workflow.EstimatedDurationDays, workflow.DurationSource, workflow.UpdatedAt, id)
		if err != nil {
			return fmt.Errorf("failed to update workflow duration: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, false, err
	}

	return workflow, changed, nil
}

// Delete removes the template; milestones and tasks go with it through foreign key cascades.
func (r *WorkflowTemplateRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM workflow_templates WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete workflow template: %w", err)
	}

	return expectOne(result, persistence.NewWorkflowTemplateError("Delete", id, persistence.ErrWorkflowTemplateNotFound))
}

// getWorkflow loads one template row, optionally locking it for the rest of the transaction.
func getWorkflow(ctx context.Context, q sqlx.QueryerContext, op, id string, forUpdate bool) (*models.WorkflowTemplate, error) {
	query := "SELECT " + workflowColumns + " FROM workflow_templates WHERE id = $1"
	if forUpdate {
		query += " FOR UPDATE"
	}

	var workflow models.WorkflowTemplate

	err := sqlx.GetContext(ctx, q, &workflow, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewWorkflowTemplateError(op, id, persistence.ErrWorkflowTemplateNotFound)
		}

		return nil, fmt.Errorf("failed to query workflow template: %w", err)
	}

	return &workflow, nil
}

func expectOne(result sql.Result, notFound error) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}

	if affected == 0 {
		return notFound
	}

	return nil
}
