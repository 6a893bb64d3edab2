package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/blueprint/pkg/models"
	"github.com/dukex/blueprint/pkg/ordering"
	"github.com/dukex/blueprint/pkg/persistence"
	"github.com/jmoiron/sqlx"
)

const taskColumns = `
			id
		  , milestone_template_id
		  , name
		  , description
		  , ordinal
		  , estimated_hours
		  , responsible_role
		  , mandatory
		  , task_type
		  , checklist_template
		  , created_at
		  , updated_at`

const prefixedTaskColumns = `
			t.id
		  , t.milestone_template_id
		  , t.name
		  , t.description
		  , t.ordinal
		  , t.estimated_hours
		  , t.responsible_role
		  , t.mandatory
		  , t.task_type
		  , t.checklist_template
		  , t.created_at
		  , t.updated_at`

// taskRow carries the JSONB checklist alongside the scalar task columns.
type taskRow struct {
	models.TaskTemplate

	Checklist []byte `db:"checklist_template"`
}

func (row taskRow) toModel() (*models.TaskTemplate, error) {
	task := row.TaskTemplate
	task.ChecklistTemplate = []string{}

	if len(row.Checklist) > 0 {
		err := json.Unmarshal(row.Checklist, &task.ChecklistTemplate)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal checklist of task %s: %w", task.ID, err)
		}
	}

	return &task, nil
}

func newTaskRow(task *models.TaskTemplate) (*taskRow, error) {
	checklist := task.ChecklistTemplate
	if checklist == nil {
		checklist = []string{}
	}

	data, err := json.Marshal(checklist)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal checklist: %w", err)
	}

	return &taskRow{TaskTemplate: *task, Checklist: data}, nil
}

// TaskTemplateRepository handles task template database operations.
type TaskTemplateRepository struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewTaskTemplateRepository creates a new task template repository.
func NewTaskTemplateRepository(db *sqlx.DB, logger *slog.Logger) *TaskTemplateRepository {
	return &TaskTemplateRepository{db: db, logger: logger}
}

func (r *TaskTemplateRepository) ListByMilestone(ctx context.Context, milestoneID string) ([]*models.TaskTemplate, error) {
	_, err := getMilestone(ctx, r.db, "ListTasks", milestoneID, false)
	if err != nil {
		return nil, err
	}

	return selectTasks(ctx, r.db, milestoneID)
}

func (r *TaskTemplateRepository) GetByID(ctx context.Context, id string) (*models.TaskTemplate, error) {
	var row taskRow

	err := r.db.GetContext(ctx, &row, "SELECT "+taskColumns+" FROM task_templates WHERE id = $1", id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewTaskTemplateError("GetByID", id, persistence.ErrTaskTemplateNotFound)
		}

		return nil, fmt.Errorf("failed to query task template: %w", err)
	}

	return row.toModel()
}

// Create appends the task after its current siblings, holding the milestone row lock.
func (r *TaskTemplateRepository) Create(ctx context.Context, task *models.TaskTemplate) error {
	return inTx(ctx, r.db, func(tx *sqlx.Tx) error {
		_, err := getMilestone(ctx, tx, "CreateTask", task.MilestoneTemplateID, true)
		if err != nil {
			return err
		}

		var maxOrdinal int

		err = tx.GetContext(ctx, &maxOrdinal,
			"SELECT COALESCE(MAX(ordinal), 0) FROM task_templates WHERE milestone_template_id = $1", task.MilestoneTemplateID)
		if err != nil {
			return fmt.Errorf("failed to query task ordinals: %w", err)
		}

		if task.ID == "" {
			task.ID, err = persistence.NewID()
			if err != nil {
				return err
			}
		}

		ts := time.Now().UTC()
		task.Ordinal = maxOrdinal + 1
		task.CreatedAt = ts
		task.UpdatedAt = ts

		if task.ChecklistTemplate == nil {
			task.ChecklistTemplate = []string{}
		}

		err = insertTask(ctx, tx, task)
		if err != nil {
			return fmt.Errorf("failed to insert task template: %w", err)
		}

		return nil
	})
}

// Update writes the task's mutable fields.
func (r *TaskTemplateRepository) Update(ctx context.Context, task *models.TaskTemplate) error {
	task.UpdatedAt = time.Now().UTC()

	row, err := newTaskRow(task)
	if err != nil {
		return err
	}

	result, err := r.db.NamedExecContext(ctx, `
		UPDATE task_templates SET
			name = :name,
			description = :description,
			estimated_hours = :estimated_hours,
			responsible_role = :responsible_role,
			mandatory = :mandatory,
			task_type = :task_type,
			checklist_template = :checklist_template,
			updated_at = :updated_at
		WHERE id = :id`, row)
	if err != nil {
		return fmt.Errorf("failed to update task template: %w", err)
	}

	return expectOne(result, persistence.NewTaskTemplateError("Update", task.ID, persistence.ErrTaskTemplateNotFound))
}

// Delete removes the task and renumbers the remaining siblings.
func (r *TaskTemplateRepository) Delete(ctx context.Context, id string) error {
	return inTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var milestoneID string

		err := tx.GetContext(ctx, &milestoneID, "SELECT milestone_template_id FROM task_templates WHERE id = $1", id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return persistence.NewTaskTemplateError("Delete", id, persistence.ErrTaskTemplateNotFound)
			}

			return fmt.Errorf("failed to query task template: %w", err)
		}

		_, err = getMilestone(ctx, tx, "DeleteTask", milestoneID, true)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, "DELETE FROM task_templates WHERE id = $1", id)
		if err != nil {
			return fmt.Errorf("failed to delete task template: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE task_templates t SET ordinal = s.rn, updated_at = NOW()
			FROM (
				SELECT id, ROW_NUMBER() OVER (ORDER BY ordinal) AS rn
				FROM task_templates
				WHERE milestone_template_id = $1
			) s
			WHERE t.id = s.id AND t.ordinal <> s.rn`, milestoneID)
		if err != nil {
			return fmt.Errorf("failed to compact task ordinals: %w", err)
		}

		return nil
	})
}

// ReassignOrdinals replaces every task ordinal of the milestone in one transaction.
func (r *TaskTemplateRepository) ReassignOrdinals(ctx context.Context, milestoneID string, assignments []models.OrdinalAssignment) error {
	return inTx(ctx, r.db, func(tx *sqlx.Tx) error {
		_, err := getMilestone(ctx, tx, "ReassignTaskOrdinals", milestoneID, true)
		if err != nil {
			return err
		}

		current, err := selectTasks(ctx, tx, milestoneID)
		if err != nil {
			return err
		}

		next, err := ordering.Tasks(current).Reassign(assignments)
		if err != nil {
			return persistence.NewMilestoneTemplateError("ReassignTaskOrdinals", milestoneID, persistence.ListingMismatch(err))
		}

		return writeOrdinals(ctx, tx, "task_templates", next)
	})
}

func selectTasks(ctx context.Context, q sqlx.QueryerContext, milestoneID string) ([]*models.TaskTemplate, error) {
	rows := make([]taskRow, 0)

	err := sqlx.SelectContext(ctx, q, &rows,
		"SELECT "+taskColumns+" FROM task_templates WHERE milestone_template_id = $1 ORDER BY ordinal", milestoneID)
	if err != nil {
		return nil, fmt.Errorf("failed to query task templates: %w", err)
	}

	tasks := make([]*models.TaskTemplate, 0, len(rows))

	for _, row := range rows {
		task, err := row.toModel()
		if err != nil {
			return nil, err
		}

		tasks = append(tasks, task)
	}

	return tasks, nil
}

func insertTask(ctx context.Context, tx *sqlx.Tx, task *models.TaskTemplate) error {
	row, err := newTaskRow(task)
	if err != nil {
		return err
	}

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO task_templates (
			id, milestone_template_id, name, description, ordinal,
			estimated_hours, responsible_role, mandatory, task_type, checklist_template,
			created_at, updated_at
		) VALUES (
			:id, :milestone_template_id, :name, :description, :ordinal,
			:estimated_hours, :responsible_role, :mandatory, :task_type, :checklist_template,
			:created_at, :updated_at
		)`, row)

	return err
}
