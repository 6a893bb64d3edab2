package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/blueprint/pkg/models"
	"github.com/dukex/blueprint/pkg/ordering"
	"github.com/dukex/blueprint/pkg/persistence"
	"github.com/dukex/blueprint/pkg/rollup"
	"github.com/jmoiron/sqlx"
)

const milestoneColumns = `
			id
		  , workflow_template_id
		  , name
		  , description
		  , ordinal
		  , estimated_duration_days
		  , sla_days
		  , operator_sla_days
		  , sla_source
		  , warning_days
		  , escalation_days
		  , milestone_type
		  , auto_generate_tickets
		  , created_at
		  , updated_at`

// MilestoneTemplateRepository handles milestone template database operations.
type MilestoneTemplateRepository struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewMilestoneTemplateRepository creates a new milestone template repository.
func NewMilestoneTemplateRepository(db *sqlx.DB, logger *slog.Logger) *MilestoneTemplateRepository {
	return &MilestoneTemplateRepository{db: db, logger: logger}
}

func (r *MilestoneTemplateRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.MilestoneTemplate, error) {
	_, err := getWorkflow(ctx, r.db, "ListMilestones", workflowID, false)
	if err != nil {
		return nil, err
	}

	return selectMilestones(ctx, r.db, workflowID)
}

func (r *MilestoneTemplateRepository) GetByID(ctx context.Context, id string) (*models.MilestoneTemplate, error) {
	return getMilestone(ctx, r.db, "GetByID", id, false)
}

// Create appends the milestone after its current siblings. The parent row is locked so
// concurrent appends cannot claim the same ordinal.
func (r *MilestoneTemplateRepository) Create(ctx context.Context, milestone *models.MilestoneTemplate) error {
	return inTx(ctx, r.db, func(tx *sqlx.Tx) error {
		_, err := getWorkflow(ctx, tx, "CreateMilestone", milestone.WorkflowTemplateID, true)
		if err != nil {
			return err
		}

		var maxOrdinal int

		err = tx.GetContext(ctx, &maxOrdinal,
			"SELECT COALESCE(MAX(ordinal), 0) FROM milestone_templates WHERE workflow_template_id = $1", milestone.WorkflowTemplateID)
		if err != nil {
			return fmt.Errorf("failed to query milestone ordinals: %w", err)
		}

		if milestone.ID == "" {
			milestone.ID, err = persistence.NewID()
			if err != nil {
				return err
			}
		}

		ts := time.Now().UTC()
		milestone.Ordinal = maxOrdinal + 1
		milestone.CreatedAt = ts
		milestone.UpdatedAt = ts

		err = insertMilestone(ctx, tx, milestone)
		if err != nil {
			return fmt.Errorf("failed to insert milestone template: %w", err)
		}

		return nil
	})
}

// Update writes mutable fields; parent and ordinal are left as stored. The row is locked
// while the SLA is recomputed from the committed tasks.
func (r *MilestoneTemplateRepository) Update(ctx context.Context, milestone *models.MilestoneTemplate) error {
	return inTx(ctx, r.db, func(tx *sqlx.Tx) error {
		_, err := getMilestone(ctx, tx, "Update", milestone.ID, true)
		if err != nil {
			return err
		}

		tasks, err := selectTasks(ctx, tx, milestone.ID)
		if err != nil {
			return err
		}

		rollup.ApplyMilestone(milestone, tasks)
		milestone.UpdatedAt = time.Now().UTC()

		_, err = tx.NamedExecContext(ctx, `
			UPDATE milestone_templates SET
				name = :name,
				description = :description,
				estimated_duration_days = :estimated_duration_days,
				sla_days = :sla_days,
				operator_sla_days = :operator_sla_days,
				sla_source = :sla_source,
				warning_days = :warning_days,
				escalation_days = :escalation_days,
				milestone_type = :milestone_type,
				auto_generate_tickets = :auto_generate_tickets,
				updated_at = :updated_at
			WHERE id = :id`, milestone)
		if err != nil {
			return fmt.Errorf("failed to update milestone template: %w", err)
		}

		return nil
	})
}

// RefreshSLA recomputes the SLA with the milestone row locked and writes only sla_days
// and sla_source. Task writes take the same lock, so no commit can slip in between.
func (r *MilestoneTemplateRepository) RefreshSLA(ctx context.Context, id string) (*models.MilestoneTemplate, bool, error) {
	var (
		milestone *models.MilestoneTemplate
		changed   bool
	)

	err := inTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var err error

		milestone, err = getMilestone(ctx, tx, "RefreshSLA", id, true)
		if err != nil {
			return err
		}

		tasks, err := selectTasks(ctx, tx, id)
		if err != nil {
			return err
		}

		changed = rollup.ApplyMilestone(milestone, tasks)
		if !changed {
			return nil
		}

		milestone.UpdatedAt = time.Now().UTC()

		_, err = tx.ExecContext(ctx,
			"UPDATE milestone_templates SET sla_days = $1, sla_source = $2, updated_at = $3 WHERE id = $4",
			milestone.SLADays, milestone.SLASource, milestone.UpdatedAt, id)
		if err != nil {
			return fmt.Errorf("failed to update milestone SLA: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, false, err
	}

	return milestone, changed, nil
}

// Delete removes the milestone and its tasks, then renumbers the remaining siblings.
func (r *MilestoneTemplateRepository) Delete(ctx context.Context, id string) error {
	return inTx(ctx, r.db, func(tx *sqlx.Tx) error {
		milestone, err := getMilestone(ctx, tx, "Delete", id, false)
		if err != nil {
			return err
		}

		_, err = getWorkflow(ctx, tx, "DeleteMilestone", milestone.WorkflowTemplateID, true)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, "DELETE FROM milestone_templates WHERE id = $1", id)
		if err != nil {
			return fmt.Errorf("failed to delete milestone template: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE milestone_templates m SET ordinal = s.rn, updated_at = NOW()
			FROM (
				SELECT id, ROW_NUMBER() OVER (ORDER BY ordinal) AS rn
				FROM milestone_templates
				WHERE workflow_template_id = $1
			) s
			WHERE m.id = s.id AND m.ordinal <> s.rn`, milestone.WorkflowTemplateID)
		if err != nil {
			return fmt.Errorf("failed to compact milestone ordinals: %w", err)
		}

		return nil
	})
}

// ReassignOrdinals replaces every milestone ordinal of the workflow in one transaction.
func (r *MilestoneTemplateRepository) ReassignOrdinals(ctx context.Context, workflowID string, assignments []models.OrdinalAssignment) error {
	return inTx(ctx, r.db, func(tx *sqlx.Tx) error {
		_, err := getWorkflow(ctx, tx, "ReassignMilestoneOrdinals", workflowID, true)
		if err != nil {
			return err
		}

		current, err := selectMilestones(ctx, tx, workflowID)
		if err != nil {
			return err
		}

		next, err := ordering.Milestones(current).Reassign(assignments)
		if err != nil {
			return persistence.NewWorkflowTemplateError("ReassignMilestoneOrdinals", workflowID, persistence.ListingMismatch(err))
		}

		return writeOrdinals(ctx, tx, "milestone_templates", next)
	})
}

func selectMilestones(ctx context.Context, q sqlx.QueryerContext, workflowID string) ([]*models.MilestoneTemplate, error) {
	milestones := make([]*models.MilestoneTemplate, 0)

	err := sqlx.SelectContext(ctx, q, &milestones,
		"SELECT "+milestoneColumns+" FROM milestone_templates WHERE workflow_template_id = $1 ORDER BY ordinal", workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query milestone templates: %w", err)
	}

	return milestones, nil
}

func getMilestone(ctx context.Context, q sqlx.QueryerContext, op, id string, forUpdate bool) (*models.MilestoneTemplate, error) {
	query := "SELECT " + milestoneColumns + " FROM milestone_templates WHERE id = $1"
	if forUpdate {
		query += " FOR UPDATE"
	}

	var milestone models.MilestoneTemplate

	err := sqlx.GetContext(ctx, q, &milestone, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewMilestoneTemplateError(op, id, persistence.ErrMilestoneTemplateNotFound)
		}

		return nil, fmt.Errorf("failed to query milestone template: %w", err)
	}

	return &milestone, nil
}

func insertMilestone(ctx context.Context, tx *sqlx.Tx, milestone *models.MilestoneTemplate) error {
	_, err := tx.NamedExecContext(ctx, `
		INSERT INTO milestone_templates (
			id, workflow_template_id, name, description, ordinal,
			estimated_duration_days, sla_days, operator_sla_days, sla_source,
			warning_days, escalation_days, milestone_type, auto_generate_tickets,
			created_at, updated_at
		) VALUES (
			:id, :workflow_template_id, :name, :description, :ordinal,
			:estimated_duration_days, :sla_days, :operator_sla_days, :sla_source,
			:warning_days, :escalation_days, :milestone_type, :auto_generate_tickets,
			:created_at, :updated_at
		)`, milestone)

	return err
}

// writeOrdinals stores seq's positions. The per-parent ordinal constraint is deferred,
// so intermediate duplicates inside the transaction are allowed.
func writeOrdinals(ctx context.Context, tx *sqlx.Tx, table string, seq ordering.Sequence) error {
	stmt, err := tx.PreparexContext(ctx, "UPDATE "+table+" SET ordinal = $1, updated_at = NOW() WHERE id = $2 AND ordinal <> $1")
	if err != nil {
		return fmt.Errorf("failed to prepare ordinal update: %w", err)
	}

	defer func() { _ = stmt.Close() }()

	for _, a := range seq.Assignments() {
		_, err = stmt.ExecContext(ctx, a.Ordinal, a.ID)
		if err != nil {
			return fmt.Errorf("failed to update ordinal of %s: %w", a.ID, err)
		}
	}

	return nil
}
