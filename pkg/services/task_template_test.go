package services_test

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"
	"testing"

	"github.com/dukex/blueprint/pkg/models"
	"github.com/dukex/blueprint/pkg/services"
	"github.com/dukex/blueprint/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func taskIDs(tasks []*models.TaskTemplate) []string {
	ids := make([]string, len(tasks))
	for i, task := range tasks {
		ids[i] = task.ID
	}

	return ids
}

func ordinals(tasks []*models.TaskTemplate) []int {
	out := make([]int, len(tasks))
	for i, task := range tasks {
		out[i] = task.Ordinal
	}

	return out
}

func TestTaskTemplates_SLARollup(t *testing.T) {
	store := newStore(t)
	workflows := services.NewWorkflowTemplates(store)
	milestones := services.NewMilestoneTemplates(store)
	svc := services.NewTaskTemplates(store)

	workflow, err := workflows.Create(t.Context(), services.CreateWorkflowTemplateRequest{Name: "Onboarding"})
	require.NoError(t, err)

	kickoff, err := milestones.Create(t.Context(), workflow.ID, services.CreateMilestoneTemplateRequest{
		Name:    "Kickoff",
		SLADays: models.IntPtr(6),
	})
	require.NoError(t, err)

	var created []*models.TaskTemplate

	for _, hours := range []int{4, 10, 8} {
		task, err := svc.Create(t.Context(), kickoff.ID, services.CreateTaskTemplateRequest{
			Name:              "Task",
			EstimatedHours:    models.IntPtr(hours),
			ChecklistTemplate: []string{"prepare", "review"},
		})
		require.NoError(t, err)
		assert.True(t, task.Mandatory)
		assert.Equal(t, models.TaskTypeStandard, task.TaskType)

		created = append(created, task)
	}

	assert.Equal(t, []int{1, 2, 3}, ordinals(created))

	milestone, err := milestones.Get(t.Context(), kickoff.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, *milestone.SLADays)
	assert.Equal(t, models.ValueSourceDerived, milestone.SLASource)

	_, err = svc.Update(t.Context(), created[1].ID, services.TaskTemplatePatch{EstimatedHours: models.IntPtr(17)})
	require.NoError(t, err)

	milestone, err = milestones.Get(t.Context(), kickoff.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, *milestone.SLADays)

	_, err = svc.Update(t.Context(), created[0].ID, services.TaskTemplatePatch{ClearEstimatedHours: true})
	require.NoError(t, err)

	milestone, err = milestones.Get(t.Context(), kickoff.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, *milestone.SLADays)

	for _, task := range created {
		require.NoError(t, svc.Delete(t.Context(), task.ID))
	}

	milestone, err = milestones.Get(t.Context(), kickoff.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, *milestone.SLADays, "empty task set reverts to the operator value")
	assert.Equal(t, models.ValueSourceOperator, milestone.SLASource)
}

func TestTaskTemplates_ConcurrentCreatesKeepSLACurrent(t *testing.T) {
	store := newStore(t)
	svc := services.NewTaskTemplates(store)
	milestones := services.NewMilestoneTemplates(store)

	const (
		rounds  = 10
		writers = 8
	)

	for round := 0; round < rounds; round++ {
		tree := importTree(t, store, testutil.CreateTestWorkflowTemplate(
			testutil.WithWorkflowName(fmt.Sprintf("Onboarding %d", round)),
			testutil.WithMilestones(testutil.CreateTestMilestoneTemplate("Kickoff", testutil.WithOperatorSLA(30))),
		))
		milestoneID := tree.Milestones[0].ID

		var wg sync.WaitGroup

		errs := make(chan error, writers+1)

		for i := 0; i < writers; i++ {
			wg.Add(1)

			go func() {
				defer wg.Done()

				_, err := svc.Create(t.Context(), milestoneID, services.CreateTaskTemplateRequest{
					Name:           "Task",
					EstimatedHours: models.IntPtr(8),
				})
				errs <- err
			}()
		}

		wg.Add(1)

		go func() {
			defer wg.Done()

			_, err := milestones.Update(t.Context(), milestoneID, services.MilestoneTemplatePatch{WarningDays: models.IntPtr(2)})
			errs <- err
		}()

		wg.Wait()
		close(errs)

		for err := range errs {
			require.NoError(t, err)
		}

		milestone, err := milestones.Get(t.Context(), milestoneID)
		require.NoError(t, err)
		require.NotNil(t, milestone.SLADays)
		assert.Equal(t, writers, *milestone.SLADays, "round %d", round)
		assert.Equal(t, models.ValueSourceDerived, milestone.SLASource)
		assert.Equal(t, 2, milestone.WarningDays, "round %d", round)
	}
}

func TestTaskTemplates_ZeroHoursIsNotUnset(t *testing.T) {
	store := newStore(t)
	tree := importTree(t, store, testutil.CreateTestWorkflowTemplate(testutil.WithMilestones(
		testutil.CreateTestMilestoneTemplate("Kickoff",
			testutil.WithOperatorSLA(7),
			testutil.WithTasks(testutil.CreateTestTaskTemplate("No estimate")),
		),
	)))

	require.NotNil(t, tree.Milestones[0].SLADays)
	assert.Equal(t, 0, *tree.Milestones[0].SLADays)
	assert.Equal(t, models.ValueSourceDerived, tree.Milestones[0].SLASource)
}

func TestTaskTemplates_RollupIsIdempotent(t *testing.T) {
	store := newStore(t)
	tree := importTree(t, store, testutil.CreateTestWorkflowTemplate(testutil.WithMilestones(
		testutil.CreateTestMilestoneTemplate("Kickoff", testutil.WithHoursTasks(4, 10, 8)),
	)))

	rollups := services.NewRollups(store)

	first, err := rollups.RefreshMilestone(t.Context(), tree.Milestones[0].ID)
	require.NoError(t, err)

	second, err := rollups.RefreshMilestone(t.Context(), tree.Milestones[0].ID)
	require.NoError(t, err)

	assert.Equal(t, *first.SLADays, *second.SLADays)
	assert.Equal(t, first.UpdatedAt, second.UpdatedAt, "an unchanged rollup writes nothing")

	_, err = rollups.RefreshMilestone(t.Context(), "missing")
	assert.True(t, services.IsNotFoundError(err))
}

func TestTaskTemplates_CreateValidation(t *testing.T) {
	store := newStore(t)
	tree := importTree(t, store, testutil.CreateTestWorkflowTemplate(testutil.WithMilestones(
		testutil.CreateTestMilestoneTemplate("Kickoff"),
	)))
	svc := services.NewTaskTemplates(store)

	tests := []struct {
		name string
		req  services.CreateTaskTemplateRequest
	}{
		{"empty name", services.CreateTaskTemplateRequest{Name: " "}},
		{"zero hours", services.CreateTaskTemplateRequest{Name: "Task", EstimatedHours: models.IntPtr(0)}},
		{"unknown type", services.CreateTaskTemplateRequest{Name: "Task", TaskType: "chore"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(t.Context(), tree.Milestones[0].ID, tt.req)
			require.Error(t, err)
			assert.True(t, services.IsValidationError(err))
		})
	}

	_, err := svc.Create(t.Context(), "missing", services.CreateTaskTemplateRequest{Name: "Task"})
	assert.True(t, services.IsNotFoundError(err))

	optional := false
	task, err := svc.Create(t.Context(), tree.Milestones[0].ID, services.CreateTaskTemplateRequest{Name: "Task", Mandatory: &optional})
	require.NoError(t, err)
	assert.False(t, task.Mandatory)
	assert.Equal(t, []string{}, task.ChecklistTemplate)
}

func TestTaskTemplates_MoveEdgesAreNoOps(t *testing.T) {
	store := newStore(t)
	tree := importTree(t, store, testutil.CreateTestWorkflowTemplate(testutil.WithMilestones(
		testutil.CreateTestMilestoneTemplate("Kickoff", testutil.WithHoursTasks(1, 2, 3)),
	)))
	svc := services.NewTaskTemplates(store)
	tasks := tree.Milestones[0].Tasks
	want := taskIDs(tasks)

	moved, err := svc.Move(t.Context(), tasks[0].ID, models.DirectionUp)
	require.NoError(t, err)
	assert.Equal(t, want, taskIDs(moved))

	moved, err = svc.Move(t.Context(), tasks[2].ID, models.DirectionDown)
	require.NoError(t, err)
	assert.Equal(t, want, taskIDs(moved))

	moved, err = svc.Move(t.Context(), tasks[2].ID, models.DirectionUp)
	require.NoError(t, err)
	assert.Equal(t, []string{want[0], want[2], want[1]}, taskIDs(moved))

	_, err = svc.Move(t.Context(), "missing", models.DirectionUp)
	assert.True(t, services.IsNotFoundError(err))
}

func TestTaskTemplates_MovesKeepOrdinalsContiguous(t *testing.T) {
	store := newStore(t)
	tree := importTree(t, store, testutil.CreateTestWorkflowTemplate(testutil.WithMilestones(
		testutil.CreateTestMilestoneTemplate("Kickoff", testutil.WithHoursTasks(1, 2, 3, 4, 5, 6)),
	)))
	svc := services.NewTaskTemplates(store)
	milestoneID := tree.Milestones[0].ID
	ids := taskIDs(tree.Milestones[0].Tasks)

	rng := rand.New(rand.NewPCG(1, 2))
	for range 40 {
		dir := models.DirectionUp
		if rng.IntN(2) == 1 {
			dir = models.DirectionDown
		}

		tasks, err := svc.Move(t.Context(), ids[rng.IntN(len(ids))], dir)
		require.NoError(t, err)
		require.True(t, testutil.ContiguousOrdinals(ordinals(tasks)))
	}

	tasks, err := svc.ListByMilestone(t.Context(), milestoneID)
	require.NoError(t, err)

	got := taskIDs(tasks)
	slices.Sort(got)
	slices.Sort(ids)
	assert.Equal(t, ids, got, "moves permute the same tasks")

	milestone, err := services.NewMilestoneTemplates(store).Get(t.Context(), milestoneID)
	require.NoError(t, err)
	assert.Equal(t, 6, *milestone.SLADays, "order does not affect the SLA")
}

func TestTaskTemplates_ReorderRejectsDuplicateOrdinal(t *testing.T) {
	store := newStore(t)
	tree := importTree(t, store, testutil.CreateTestWorkflowTemplate(testutil.WithMilestones(
		testutil.CreateTestMilestoneTemplate("Kickoff", testutil.WithHoursTasks(8, 8)),
		testutil.CreateTestMilestoneTemplate("Delivery", testutil.WithHoursTasks(8)),
	)))
	svc := services.NewTaskTemplates(store)
	kickoff := tree.Milestones[0]
	taskA, taskB := kickoff.Tasks[0].ID, kickoff.Tasks[1].ID
	foreign := tree.Milestones[1].Tasks[0].ID

	listings := map[string][]models.OrdinalAssignment{
		"duplicate ordinal": {{ID: taskA, Ordinal: 1}, {ID: taskB, Ordinal: 1}},
		"omitted task":      {{ID: taskA, Ordinal: 1}},
		"foreign task":      {{ID: taskA, Ordinal: 1}, {ID: foreign, Ordinal: 2}},
		"out of range":      {{ID: taskA, Ordinal: 1}, {ID: taskB, Ordinal: 3}},
		"duplicate id":      {{ID: taskA, Ordinal: 1}, {ID: taskA, Ordinal: 2}},
	}

	for name, listing := range listings {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Reorder(t.Context(), kickoff.ID, listing)
			require.Error(t, err)
			assert.True(t, services.IsValidationError(err))

			stored, err := svc.ListByMilestone(t.Context(), kickoff.ID)
			require.NoError(t, err)
			assert.Equal(t, []string{taskA, taskB}, taskIDs(stored))
			assert.Equal(t, []int{1, 2}, ordinals(stored))
		})
	}

	reordered, err := svc.Reorder(t.Context(), kickoff.ID, []models.OrdinalAssignment{{ID: taskA, Ordinal: 2}, {ID: taskB, Ordinal: 1}})
	require.NoError(t, err)
	assert.Equal(t, []string{taskB, taskA}, taskIDs(reordered))
}

func TestTaskTemplates_ConcurrentReordersStayConsistent(t *testing.T) {
	store := newStore(t)
	tree := importTree(t, store, testutil.CreateTestWorkflowTemplate(testutil.WithMilestones(
		testutil.CreateTestMilestoneTemplate("Kickoff", testutil.WithHoursTasks(1, 2, 3, 4)),
	)))
	svc := services.NewTaskTemplates(store)
	milestoneID := tree.Milestones[0].ID
	ids := taskIDs(tree.Milestones[0].Tasks)

	var wg sync.WaitGroup

	for i := range 8 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			order := slices.Clone(ids)
			if i%2 == 1 {
				slices.Reverse(order)
			}

			listing := make([]models.OrdinalAssignment, len(order))
			for pos, id := range order {
				listing[pos] = models.OrdinalAssignment{ID: id, Ordinal: pos + 1}
			}

			_, err := svc.Reorder(t.Context(), milestoneID, listing)
			assert.NoError(t, err)
		}()
	}

	wg.Wait()

	tasks, err := svc.ListByMilestone(t.Context(), milestoneID)
	require.NoError(t, err)
	assert.True(t, testutil.ContiguousOrdinals(ordinals(tasks)))

	got := taskIDs(tasks)
	reversed := slices.Clone(ids)
	slices.Reverse(reversed)
	assert.True(t, slices.Equal(got, ids) || slices.Equal(got, reversed), "last writer wins as a whole")
}
