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
	"github.com/jmoiron/sqlx"
)

const triggerColumns = `
			ticket_id
		  , milestone_template_id
		  , status
		  , attempts
		  , last_error
		  , created_at
		  , updated_at`

// TriggerRepository is the ticket generation ledger. The (ticket, milestone) primary key
// makes Record an atomic insert-if-absent.
type TriggerRepository struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewTriggerRepository creates a new trigger ledger repository.
func NewTriggerRepository(db *sqlx.DB, logger *slog.Logger) *TriggerRepository {
	return &TriggerRepository{db: db, logger: logger}
}

func (r *TriggerRepository) Record(ctx context.Context, record *models.TriggerRecord) error {
	ts := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = ts
	}

	record.UpdatedAt = ts

	result, err := r.db.NamedExecContext(ctx, `
		INSERT INTO ticket_generation_triggers (
			ticket_id, milestone_template_id, status, attempts, last_error, created_at, updated_at
		) VALUES (
			:ticket_id, :milestone_template_id, :status, :attempts, :last_error, :created_at, :updated_at
		)
		ON CONFLICT (ticket_id, milestone_template_id) DO NOTHING`, record)
	if err != nil {
		return fmt.Errorf("failed to record trigger: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("ticket %s milestone %s: %w", record.TicketID, record.MilestoneTemplateID, persistence.ErrTriggerAlreadyRecorded)
	}

	return nil
}

func (r *TriggerRepository) Get(ctx context.Context, ticketID, milestoneID string) (*models.TriggerRecord, error) {
	var record models.TriggerRecord

	err := r.db.GetContext(ctx, &record,
		"SELECT "+triggerColumns+" FROM ticket_generation_triggers WHERE ticket_id = $1 AND milestone_template_id = $2",
		ticketID, milestoneID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrTriggerNotFound
		}

		return nil, fmt.Errorf("failed to query trigger: %w", err)
	}

	return &record, nil
}

func (r *TriggerRepository) Update(ctx context.Context, record *models.TriggerRecord) error {
	record.UpdatedAt = time.Now().UTC()

	result, err := r.db.NamedExecContext(ctx, `
		UPDATE ticket_generation_triggers SET
			status = :status,
			attempts = :attempts,
			last_error = :last_error,
			updated_at = :updated_at
		WHERE ticket_id = :ticket_id AND milestone_template_id = :milestone_template_id`, record)
	if err != nil {
		return fmt.Errorf("failed to update trigger: %w", err)
	}

	return expectOne(result, persistence.ErrTriggerNotFound)
}

func (r *TriggerRepository) ListByTicket(ctx context.Context, ticketID string) ([]*models.TriggerRecord, error) {
	records := make([]*models.TriggerRecord, 0)

	err := r.db.SelectContext(ctx, &records,
		"SELECT "+triggerColumns+" FROM ticket_generation_triggers WHERE ticket_id = $1 ORDER BY created_at", ticketID)
	if err != nil {
		return nil, fmt.Errorf("failed to query triggers: %w", err)
	}

	return records, nil
}
