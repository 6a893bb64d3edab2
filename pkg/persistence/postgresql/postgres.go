// Package postgresql provides PostgreSQL persistence for template hierarchies and the trigger ledger.
package postgresql

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/blueprint/pkg/persistence"
	"github.com/dukex/blueprint/pkg/persistence/sqlbase"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db     *sqlx.DB
	logger *slog.Logger

	workflowRepo  *WorkflowTemplateRepository
	milestoneRepo *MilestoneTemplateRepository
	taskRepo      *TaskTemplateRepository
	triggerRepo   *TriggerRepository
}

// NewPersistence creates a new PostgreSQL persistence layer and migrates the schema.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sqlx.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database.DB, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:            database,
		logger:        logger,
		workflowRepo:  NewWorkflowTemplateRepository(database, logger),
		milestoneRepo: NewMilestoneTemplateRepository(database, logger),
		taskRepo:      NewTaskTemplateRepository(database, logger),
		triggerRepo:   NewTriggerRepository(database, logger),
	}, nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

func (p *Persistence) WorkflowTemplateRepository() persistence.WorkflowTemplateRepository {
	return p.workflowRepo
}

func (p *Persistence) MilestoneTemplateRepository() persistence.MilestoneTemplateRepository {
	return p.milestoneRepo
}

func (p *Persistence) TaskTemplateRepository() persistence.TaskTemplateRepository {
	return p.taskRepo
}

func (p *Persistence) TriggerRepository() persistence.TriggerRepository {
	return p.triggerRepo
}

// inTx runs fn inside a transaction, committing when fn returns nil.
func inTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	err = fn(tx)
	if err != nil {
		_ = tx.Rollback()

		return err
	}

	err = tx.Commit()
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %w", persistence.ErrOrdinalSetMismatch, err)
		}

		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error

	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func isConstraint(err error, name string) bool {
	var pqErr *pq.Error

	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation && pqErr.Constraint == name
}
