package services_test

import (
	"sync"
	"testing"

	"github.com/dukex/blueprint/pkg/mocks"
	"github.com/dukex/blueprint/pkg/models"
	"github.com/dukex/blueprint/pkg/persistence"
	"github.com/dukex/blueprint/pkg/services"
	"github.com/dukex/blueprint/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func seedCloneSource(t *testing.T, p persistence.Persistence) *models.WorkflowTemplate {
	t.Helper()

	return importTree(t, p, testutil.CreateTestWorkflowTemplate(
		testutil.WithOperatorDuration(40),
		testutil.WithMilestones(
			testutil.CreateTestMilestoneTemplate("Kickoff",
				testutil.WithDuration(5),
				testutil.WithAutoGenerate(),
				testutil.WithTasks(
					testutil.CreateTestTaskTemplate("Brief", testutil.WithHours(4), testutil.WithChecklist("agenda", "minutes")),
					testutil.CreateTestTaskTemplate("Plan", testutil.WithHours(10)),
				),
			),
			testutil.CreateTestMilestoneTemplate("Delivery",
				testutil.WithDuration(7),
				testutil.WithTasks(testutil.CreateTestTaskTemplate("Ship", testutil.WithHours(8), testutil.Optional())),
			),
		),
	))
}

func TestCloning_FlagMatrix(t *testing.T) {
	tests := []struct {
		name            string
		cloneMilestones bool
		cloneTasks      bool
	}{
		{"workflow only", false, false},
		{"tasks without milestones", false, true},
		{"milestones only", true, false},
		{"full tree", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newStore(t)
			source := seedCloneSource(t, store)
			svc := services.NewCloning(store)

			clone, err := svc.Clone(t.Context(), services.CloneRequest{
				SourceID:        source.ID,
				NewName:         "Onboarding v2",
				CloneMilestones: tt.cloneMilestones,
				CloneTasks:      tt.cloneTasks,
			})
			require.NoError(t, err)

			stored, err := store.WorkflowTemplateRepository().GetTree(t.Context(), clone.ID)
			require.NoError(t, err)

			assert.NotEqual(t, source.ID, stored.ID)
			assert.Equal(t, "Onboarding v2", stored.Name)
			assert.Equal(t, source.Description, stored.Description)
			assert.Equal(t, "ONBOARDING_COPY", stored.Code)
			assert.True(t, stored.Active)
			assert.Equal(t, *source.EstimatedDurationDays, *stored.EstimatedDurationDays)

			if !tt.cloneMilestones {
				assert.Empty(t, stored.Milestones)
				assert.Equal(t, models.ValueSourceOperator, stored.DurationSource)

				return
			}

			require.Len(t, stored.Milestones, len(source.Milestones))

			for i, milestone := range stored.Milestones {
				original := source.Milestones[i]

				assert.NotEqual(t, original.ID, milestone.ID)
				assert.Equal(t, stored.ID, milestone.WorkflowTemplateID)
				assert.Equal(t, original.Name, milestone.Name)
				assert.Equal(t, original.Ordinal, milestone.Ordinal)
				assert.Equal(t, *original.SLADays, *milestone.SLADays)
				assert.Equal(t, original.WarningDays, milestone.WarningDays)
				assert.Equal(t, original.EscalationDays, milestone.EscalationDays)
				assert.Equal(t, original.AutoGenerateTickets, milestone.AutoGenerateTickets)

				if !tt.cloneTasks {
					assert.Empty(t, milestone.Tasks)
					assert.Equal(t, models.ValueSourceOperator, milestone.SLASource)

					continue
				}

				require.Len(t, milestone.Tasks, len(original.Tasks))

				for j, task := range milestone.Tasks {
					assert.NotEqual(t, original.Tasks[j].ID, task.ID)
					assert.Equal(t, milestone.ID, task.MilestoneTemplateID)
					assert.Equal(t, original.Tasks[j].Ordinal, task.Ordinal)
					assert.Equal(t, original.Tasks[j].EstimatedHours, task.EstimatedHours)
					assert.Equal(t, original.Tasks[j].ChecklistTemplate, task.ChecklistTemplate)
					assert.Equal(t, original.Tasks[j].Mandatory, task.Mandatory)
				}
			}

			unchanged, err := store.WorkflowTemplateRepository().GetTree(t.Context(), source.ID)
			require.NoError(t, err)
			assert.Equal(t, source, unchanged, "the source tree is untouched")
		})
	}
}

func TestCloning_CodeSuffixes(t *testing.T) {
	store := newStore(t)
	source := seedCloneSource(t, store)
	svc := services.NewCloning(store)

	for i, want := range []string{"ONBOARDING_COPY", "ONBOARDING_COPY_2", "ONBOARDING_COPY_3"} {
		clone, err := svc.Clone(t.Context(), services.CloneRequest{
			SourceID: source.ID,
			NewName:  "Copy " + string(rune('A'+i)),
		})
		require.NoError(t, err)
		assert.Equal(t, want, clone.Code)
	}

	bare, err := services.NewWorkflowTemplates(store).Create(t.Context(), services.CreateWorkflowTemplateRequest{Name: "No code"})
	require.NoError(t, err)

	clone, err := svc.Clone(t.Context(), services.CloneRequest{SourceID: bare.ID, NewName: "Fresh start"})
	require.NoError(t, err)
	assert.Equal(t, "FRESH_START_COPY", clone.Code)
}

func TestCloning_Failures(t *testing.T) {
	store := newStore(t)
	source := seedCloneSource(t, store)
	svc := services.NewCloning(store)

	_, err := svc.Clone(t.Context(), services.CloneRequest{SourceID: "missing", NewName: "Copy"})
	assert.True(t, services.IsNotFoundError(err))

	_, err = svc.Clone(t.Context(), services.CloneRequest{SourceID: source.ID, NewName: "  "})
	assert.True(t, services.IsValidationError(err))

	_, err = svc.Clone(t.Context(), services.CloneRequest{SourceID: source.ID, NewName: "onboarding"})
	require.Error(t, err)
	assert.True(t, services.IsValidationError(err))
	assert.ErrorIs(t, err, services.ErrDuplicateName)

	list, err := services.NewWorkflowTemplates(store).List(t.Context(), services.ListWorkflowTemplatesRequest{})
	require.NoError(t, err)
	assert.Len(t, list.WorkflowTemplates, 1, "failed clones write nothing")
}

func TestCloning_ConcurrentSameNameHasOneWinner(t *testing.T) {
	store := newStore(t)
	source := seedCloneSource(t, store)
	svc := services.NewCloning(store)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)

	for range 6 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, err := svc.Clone(t.Context(), services.CloneRequest{SourceID: source.ID, NewName: "Race"})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()

				return
			}

			assert.True(t, services.IsValidationError(err) || services.IsConflictError(err), "unexpected error: %v", err)
		}()
	}

	wg.Wait()
	assert.Equal(t, 1, succeeded)
}

func TestCloning_PublishesEvent(t *testing.T) {
	store := newStore(t)
	source := seedCloneSource(t, store)

	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, mock.Anything, mock.AnythingOfType("*events.WorkflowTemplateCloned")).Return(nil)

	clone, err := services.NewCloning(store, services.WithPublisher(bus)).Clone(t.Context(), services.CloneRequest{
		SourceID:        source.ID,
		NewName:         "Copy",
		CloneMilestones: true,
	})
	require.NoError(t, err)

	bus.AssertCalled(t, "Publish", mock.Anything, clone.ID, mock.Anything)
}
