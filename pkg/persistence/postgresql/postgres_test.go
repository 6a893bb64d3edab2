package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/dukex/blueprint/pkg/models"
	"github.com/dukex/blueprint/pkg/ordering"
	"github.com/dukex/blueprint/pkg/persistence"
	"github.com/dukex/blueprint/pkg/persistence/postgresql"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

var postgresContainer *postgres.PostgresContainer

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	for _, table := range []string{"ticket_generation_triggers", "task_templates", "milestone_templates", "workflow_templates", "schema_migrations"} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context, string) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping PostgreSQL integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("blueprint_test"),
			postgres.WithUsername("blueprint"),
			postgres.WithPassword("blueprint"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDb(ctx, t, databaseURL)

		err = p.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return p, ctx, databaseURL
}

func seedTree(ctx context.Context, t *testing.T, p *postgresql.Persistence, taskCount int) *models.WorkflowTemplate {
	t.Helper()

	kickoff := &models.MilestoneTemplate{
		Name:          "Kickoff",
		MilestoneType: models.MilestoneTypeStandard,
		WarningDays:   models.DefaultWarningDays,
		SLASource:     models.ValueSourceDerived,
	}

	for i := 0; i < taskCount; i++ {
		kickoff.Tasks = append(kickoff.Tasks, &models.TaskTemplate{
			Name:              "task",
			EstimatedHours:    models.IntPtr(8 * (i + 1)),
			Mandatory:         true,
			TaskType:          models.TaskTypeStandard,
			ChecklistTemplate: []string{"check"},
		})
	}

	tree := &models.WorkflowTemplate{
		Name:           "Onboarding",
		Active:         true,
		DurationSource: models.ValueSourceOperator,
		Milestones:     []*models.MilestoneTemplate{kickoff, {Name: "Delivery", MilestoneType: models.MilestoneTypeCritical}},
	}

	require.NoError(t, p.WorkflowTemplateRepository().CreateTree(ctx, tree))

	return tree
}

func TestNewPersistence_Migrations(t *testing.T) {
	_, ctx, databaseURL := setupTestDB(t)

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() {
		err := db.Close()
		require.NoError(t, err)
	}()

	for _, table := range []string{"workflow_templates", "milestone_templates", "task_templates", "ticket_generation_triggers"} {
		var exists bool

		err = db.QueryRowContext(ctx, `SELECT EXISTS (SELECT FROM information_schema.tables WHERE table_name = $1)`, table).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, "%s table should exist", table)
	}

	var version int

	err = db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, 2, version)
}

func TestNewPersistence_HealthCheck(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	assert.NoError(t, p.HealthCheck(ctx))
}

func TestWorkflowTemplateRepository_TreeRoundTrip(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	tree := seedTree(ctx, t, p, 3)

	got, err := p.WorkflowTemplateRepository().GetTree(ctx, tree.ID)
	require.NoError(t, err)
	require.Len(t, got.Milestones, 2)
	assert.Equal(t, "Kickoff", got.Milestones[0].Name)
	assert.Equal(t, models.MilestoneTypeCritical, got.Milestones[1].MilestoneType)
	require.Len(t, got.Milestones[0].Tasks, 3)
	assert.Empty(t, got.Milestones[1].Tasks)
	assert.Equal(t, []string{"check"}, got.Milestones[0].Tasks[0].ChecklistTemplate)
	assert.Equal(t, 24, *got.Milestones[0].Tasks[2].EstimatedHours)

	_, err = p.WorkflowTemplateRepository().GetByID(ctx, "missing")
	assert.True(t, persistence.IsWorkflowTemplateNotFound(err))
}

func TestWorkflowTemplateRepository_ActiveNameUnique(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	seedTree(ctx, t, p, 0)

	err := p.WorkflowTemplateRepository().Create(ctx, &models.WorkflowTemplate{Name: "ONBOARDING", Active: true, DurationSource: models.ValueSourceOperator})
	assert.True(t, persistence.IsDuplicateName(err))

	err = p.WorkflowTemplateRepository().Create(ctx, &models.WorkflowTemplate{Name: "ONBOARDING", Active: false, DurationSource: models.ValueSourceOperator})
	assert.NoError(t, err)
}

func TestWorkflowTemplateRepository_List(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.WorkflowTemplateRepository()

	for _, name := range []string{"Alpha", "Bravo", "Charlie"} {
		require.NoError(t, repo.Create(ctx, &models.WorkflowTemplate{Name: name, Active: name != "Bravo", DurationSource: models.ValueSourceOperator}))
	}

	active := true
	result, err := repo.List(ctx, persistence.ListWorkflowTemplatesOptions{Active: &active, SortBy: "name", SortOrder: "asc"})
	require.NoError(t, err)
	require.Len(t, result.WorkflowTemplates, 2)
	assert.Equal(t, int64(2), result.TotalCount)
	assert.Equal(t, "Alpha", result.WorkflowTemplates[0].Name)

	result, err = repo.List(ctx, persistence.ListWorkflowTemplatesOptions{Limit: 2})
	require.NoError(t, err)
	assert.True(t, result.HasNextPage)

	_, err = repo.List(ctx, persistence.ListWorkflowTemplatesOptions{SortBy: "id; DROP TABLE"})
	assert.True(t, persistence.IsInvalidSortField(err))
}

func TestMilestoneTemplateRepository_DeleteCascadesAndCompacts(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	tree := seedTree(ctx, t, p, 2)

	require.NoError(t, p.MilestoneTemplateRepository().Delete(ctx, tree.Milestones[0].ID))

	milestones, err := p.MilestoneTemplateRepository().ListByWorkflow(ctx, tree.ID)
	require.NoError(t, err)
	require.Len(t, milestones, 1)
	assert.Equal(t, 1, milestones[0].Ordinal)

	_, err = p.TaskTemplateRepository().GetByID(ctx, tree.Milestones[0].Tasks[0].ID)
	assert.True(t, persistence.IsTaskTemplateNotFound(err))
}

func TestTaskTemplateRepository_ReassignOrdinals(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	tree := seedTree(ctx, t, p, 3)
	milestoneID := tree.Milestones[0].ID
	seq := ordering.Tasks(tree.Milestones[0].Tasks)
	repo := p.TaskTemplateRepository()

	reversed := ordering.Sequence{seq[2], seq[1], seq[0]}
	require.NoError(t, repo.ReassignOrdinals(ctx, milestoneID, reversed.Assignments()))

	tasks, err := repo.ListByMilestone(ctx, milestoneID)
	require.NoError(t, err)
	assert.Equal(t, reversed, ordering.Tasks(tasks))

	err = repo.ReassignOrdinals(ctx, milestoneID, ordering.Sequence{seq[0], seq[1]}.Assignments())
	assert.True(t, persistence.IsOrdinalSetMismatch(err))

	tasks, err = repo.ListByMilestone(ctx, milestoneID)
	require.NoError(t, err)
	assert.Equal(t, reversed, ordering.Tasks(tasks))
}

func TestTaskTemplateRepository_ConcurrentAppendsGetDistinctOrdinals(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	tree := seedTree(ctx, t, p, 0)
	milestoneID := tree.Milestones[0].ID

	var wg sync.WaitGroup

	for i := 0; i < 6; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			assert.NoError(t, p.TaskTemplateRepository().Create(ctx, &models.TaskTemplate{
				MilestoneTemplateID: milestoneID,
				Name:                "parallel",
				TaskType:            models.TaskTypeStandard,
			}))
		}()
	}

	wg.Wait()

	tasks, err := p.TaskTemplateRepository().ListByMilestone(ctx, milestoneID)
	require.NoError(t, err)
	require.Len(t, tasks, 6)

	for i, task := range tasks {
		assert.Equal(t, i+1, task.Ordinal)
	}
}

func TestMilestoneTemplateRepository_RefreshSLAUnderConcurrentAppends(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	tree := seedTree(ctx, t, p, 0)
	milestoneID := tree.Milestones[0].ID

	const writers = 8

	var wg sync.WaitGroup

	for i := 0; i < writers; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			assert.NoError(t, p.TaskTemplateRepository().Create(ctx, &models.TaskTemplate{
				MilestoneTemplateID: milestoneID,
				Name:                "parallel",
				EstimatedHours:      models.IntPtr(8),
				TaskType:            models.TaskTypeStandard,
			}))

			_, _, err := p.MilestoneTemplateRepository().RefreshSLA(ctx, milestoneID)
			assert.NoError(t, err)
		}()
	}

	wg.Wait()

	milestone, err := p.MilestoneTemplateRepository().GetByID(ctx, milestoneID)
	require.NoError(t, err)
	require.NotNil(t, milestone.SLADays)
	assert.Equal(t, writers, *milestone.SLADays)
	assert.Equal(t, models.ValueSourceDerived, milestone.SLASource)

	_, changed, err := p.MilestoneTemplateRepository().RefreshSLA(ctx, milestoneID)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestMilestoneTemplateRepository_UpdateRecomputesSLA(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	tree := seedTree(ctx, t, p, 2)
	repo := p.MilestoneTemplateRepository()

	snapshot, err := repo.GetByID(ctx, tree.Milestones[0].ID)
	require.NoError(t, err)

	snapshot.EscalationDays = 4
	snapshot.SLADays = models.IntPtr(99)
	require.NoError(t, repo.Update(ctx, snapshot))
	assert.Equal(t, 3, *snapshot.SLADays)

	stored, err := repo.GetByID(ctx, snapshot.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, stored.EscalationDays)
	assert.Equal(t, 3, *stored.SLADays)
}

func TestWorkflowTemplateRepository_RefreshDuration(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	tree := seedTree(ctx, t, p, 0)

	delivery, err := p.MilestoneTemplateRepository().GetByID(ctx, tree.Milestones[1].ID)
	require.NoError(t, err)

	delivery.EstimatedDurationDays = models.IntPtr(5)
	require.NoError(t, p.MilestoneTemplateRepository().Update(ctx, delivery))

	workflow, changed, err := p.WorkflowTemplateRepository().RefreshDuration(ctx, tree.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 5, *workflow.EstimatedDurationDays)
	assert.Equal(t, models.ValueSourceDerived, workflow.DurationSource)
}

func TestTriggerRepository_RecordOnce(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.TriggerRepository()

	record := &models.TriggerRecord{TicketID: "T1", MilestoneTemplateID: "m1", Status: models.TriggerStatusSignaled, Attempts: 1}
	require.NoError(t, repo.Record(ctx, record))

	err := repo.Record(ctx, &models.TriggerRecord{TicketID: "T1", MilestoneTemplateID: "m1", Status: models.TriggerStatusSignaled})
	assert.True(t, persistence.IsTriggerAlreadyRecorded(err))

	record.Status = models.TriggerStatusFailed
	record.LastError = "upstream down"
	require.NoError(t, repo.Update(ctx, record))

	got, err := repo.Get(ctx, "T1", "m1")
	require.NoError(t, err)
	assert.Equal(t, models.TriggerStatusFailed, got.Status)
	assert.Equal(t, "upstream down", got.LastError)

	list, err := repo.ListByTicket(ctx, "T1")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = repo.Get(ctx, "T1", "m2")
	assert.ErrorIs(t, err, persistence.ErrTriggerNotFound)
}
