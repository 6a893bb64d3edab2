package web_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dukex/blueprint/pkg/mocks"
	"github.com/dukex/blueprint/pkg/models"
	"github.com/dukex/blueprint/pkg/persistence/file"
	"github.com/dukex/blueprint/pkg/services"
	"github.com/dukex/blueprint/pkg/testutil"
	"github.com/dukex/blueprint/pkg/ticketing"
	"github.com/dukex/blueprint/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	app    *fiber.App
	store  *file.Persistence
	source *mocks.MockTicketSource
	sink   *mocks.MockGenerationSink
}

func setupTestApp(t *testing.T) *testEnv {
	t.Helper()

	store := file.NewPersistence(t.TempDir())
	source := &mocks.MockTicketSource{}
	sink := &mocks.MockGenerationSink{}

	handlers := web.NewAPIHandlers(
		services.NewWorkflowTemplates(store),
		services.NewMilestoneTemplates(store),
		services.NewTaskTemplates(store),
		services.NewCloning(store),
		services.NewCompletion(store, source, sink),
		validator.New(validator.WithRequiredStructEnabled()),
	)

	app := fiber.New()
	handlers.Routes(app)

	return &testEnv{app: app, store: store, source: source, sink: sink}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader

	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)

		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()

	var out T
	require.NoError(t, json.Unmarshal(data, &out), string(data))

	return out
}

type problem struct {
	Type   string `json:"type"`
	Status int    `json:"status"`
	Detail string `json:"detail"`
}

func (e *testEnv) createWorkflow(t *testing.T, name string) *models.WorkflowTemplate {
	t.Helper()

	status, body := e.do(t, http.MethodPost, "/workflow-templates", map[string]any{"name": name, "estimated_duration_days": 9})
	require.Equal(t, http.StatusCreated, status, string(body))

	return decode[*models.WorkflowTemplate](t, body)
}

func (e *testEnv) createMilestone(t *testing.T, workflowID, name string, extra map[string]any) *models.MilestoneTemplate {
	t.Helper()

	req := map[string]any{"name": name}
	for k, v := range extra {
		req[k] = v
	}

	status, body := e.do(t, http.MethodPost, "/workflow-templates/"+workflowID+"/milestones", req)
	require.Equal(t, http.StatusCreated, status, string(body))

	return decode[*models.MilestoneTemplate](t, body)
}

func (e *testEnv) createTask(t *testing.T, milestoneID, name string, hours int) *models.TaskTemplate {
	t.Helper()

	status, body := e.do(t, http.MethodPost, "/milestone-templates/"+milestoneID+"/tasks",
		map[string]any{"name": name, "estimated_hours": hours})
	require.Equal(t, http.StatusCreated, status, string(body))

	return decode[*models.TaskTemplate](t, body)
}

func TestAPIHandlers_CreateWorkflowTemplate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		requestBody    any
		expectedStatus int
		expectedType   string
	}{
		{
			name:           "successful creation",
			requestBody:    map[string]any{"name": "Onboarding", "code": "onb", "estimated_duration_days": 10},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "missing name",
			requestBody:    map[string]any{"description": "no name"},
			expectedStatus: http.StatusBadRequest,
			expectedType:   "name_required",
		},
		{
			name:           "duration below one",
			requestBody:    map[string]any{"name": "Onboarding", "estimated_duration_days": 0},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "invalid JSON",
			requestBody:    "invalid-json",
			expectedStatus: http.StatusBadRequest,
			expectedType:   "validation_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			env := setupTestApp(t)

			status, body := env.do(t, http.MethodPost, "/workflow-templates", tt.requestBody)
			require.Equal(t, tt.expectedStatus, status, string(body))

			if status == http.StatusCreated {
				created := decode[*models.WorkflowTemplate](t, body)
				assert.NotEmpty(t, created.ID)
				assert.Equal(t, "ONB", created.Code)
				assert.True(t, created.Active)
				assert.Equal(t, models.ValueSourceOperator, created.DurationSource)
				require.NotNil(t, created.EstimatedDurationDays)
				assert.Equal(t, 10, *created.EstimatedDurationDays)

				return
			}

			p := decode[problem](t, body)
			assert.Equal(t, tt.expectedStatus, p.Status)

			if tt.expectedType != "" {
				assert.Equal(t, tt.expectedType, p.Type)
			}
		})
	}
}

func TestAPIHandlers_DuplicateActiveName(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)
	env.createWorkflow(t, "Onboarding")

	status, body := env.do(t, http.MethodPost, "/workflow-templates", map[string]any{"name": "onboarding"})
	require.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "duplicate_name", decode[problem](t, body).Type)
}

func TestAPIHandlers_GetWorkflowTemplates(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)
	first := env.createWorkflow(t, "Alpha")
	env.createWorkflow(t, "Beta")

	status, _ := env.do(t, http.MethodPost, "/workflow-templates/"+first.ID+"/deactivate", nil)
	require.Equal(t, http.StatusOK, status)

	t.Run("filters by active", func(t *testing.T) {
		status, body := env.do(t, http.MethodGet, "/workflow-templates?active=true&sort_by=name&sort_order=asc", nil)
		require.Equal(t, http.StatusOK, status, string(body))

		var result struct {
			WorkflowTemplates []*models.WorkflowTemplate `json:"workflow_templates"`
			TotalCount        int64                      `json:"total_count"`
			HasNextPage       bool                       `json:"has_next_page"`
		}
		require.NoError(t, json.Unmarshal(body, &result))

		require.Len(t, result.WorkflowTemplates, 1)
		assert.Equal(t, "Beta", result.WorkflowTemplates[0].Name)
		assert.Equal(t, int64(1), result.TotalCount)
		assert.False(t, result.HasNextPage)
	})

	invalid := []string{
		"/workflow-templates?limit=abc",
		"/workflow-templates?limit=1000",
		"/workflow-templates?active=maybe",
		"/workflow-templates?sort_by=owner",
		"/workflow-templates?sort_order=sideways",
	}
	for _, path := range invalid {
		t.Run(path, func(t *testing.T) {
			status, _ := env.do(t, http.MethodGet, path, nil)
			assert.Equal(t, http.StatusBadRequest, status)
		})
	}
}

func TestAPIHandlers_NotFound(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)

	paths := []struct{ method, path string }{
		{http.MethodGet, "/workflow-templates/missing"},
		{http.MethodDelete, "/workflow-templates/missing"},
		{http.MethodGet, "/workflow-templates/missing/milestones"},
		{http.MethodGet, "/milestone-templates/missing"},
		{http.MethodGet, "/task-templates/missing"},
		{http.MethodGet, "/workflow-templates/missing/export"},
	}

	for _, p := range paths {
		status, body := env.do(t, p.method, p.path, nil)
		assert.Equal(t, http.StatusNotFound, status, "%s %s", p.method, p.path)
		assert.Equal(t, "not_found", decode[problem](t, body).Type)
	}
}

func TestAPIHandlers_HierarchyRollup(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)
	workflow := env.createWorkflow(t, "Onboarding")

	kickoff := env.createMilestone(t, workflow.ID, "Kickoff", map[string]any{"estimated_duration_days": 3, "sla_days": 6})
	delivery := env.createMilestone(t, workflow.ID, "Delivery", map[string]any{"estimated_duration_days": 4})
	assert.Equal(t, 1, kickoff.Ordinal)
	assert.Equal(t, 2, delivery.Ordinal)

	status, body := env.do(t, http.MethodGet, "/workflow-templates/"+workflow.ID, nil)
	require.Equal(t, http.StatusOK, status)

	stored := decode[*models.WorkflowTemplate](t, body)
	require.NotNil(t, stored.EstimatedDurationDays)
	assert.Equal(t, 7, *stored.EstimatedDurationDays)
	assert.Equal(t, models.ValueSourceDerived, stored.DurationSource)

	env.createTask(t, kickoff.ID, "Brief", 4)
	env.createTask(t, kickoff.ID, "Scope", 10)

	status, body = env.do(t, http.MethodGet, "/milestone-templates/"+kickoff.ID, nil)
	require.Equal(t, http.StatusOK, status)

	m := decode[*models.MilestoneTemplate](t, body)
	require.NotNil(t, m.SLADays)
	assert.Equal(t, 3, *m.SLADays)
	assert.Equal(t, models.ValueSourceDerived, m.SLASource)

	status, body = env.do(t, http.MethodGet, "/workflow-templates/"+workflow.ID+"?include=tree", nil)
	require.Equal(t, http.StatusOK, status)

	tree := decode[*models.WorkflowTemplate](t, body)
	require.Len(t, tree.Milestones, 2)
	assert.Len(t, tree.Milestones[0].Tasks, 2)

	status, body = env.do(t, http.MethodPatch, "/milestone-templates/"+delivery.ID, map[string]any{"estimated_duration_days": 10})
	require.Equal(t, http.StatusOK, status, string(body))

	status, body = env.do(t, http.MethodGet, "/workflow-templates/"+workflow.ID, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 13, *decode[*models.WorkflowTemplate](t, body).EstimatedDurationDays)

	status, _ = env.do(t, http.MethodDelete, "/milestone-templates/"+kickoff.ID, nil)
	require.Equal(t, http.StatusNoContent, status)

	status, body = env.do(t, http.MethodGet, "/workflow-templates/"+workflow.ID+"/milestones", nil)
	require.Equal(t, http.StatusOK, status)

	listing := decode[web.MilestonesResponse](t, body)
	require.Len(t, listing.Milestones, 1)
	assert.Equal(t, delivery.ID, listing.Milestones[0].ID)
	assert.Equal(t, 1, listing.Milestones[0].Ordinal)
}

func TestAPIHandlers_TaskOrdering(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)
	workflow := env.createWorkflow(t, "Onboarding")
	milestone := env.createMilestone(t, workflow.ID, "Kickoff", nil)

	a := env.createTask(t, milestone.ID, "A", 4)
	b := env.createTask(t, milestone.ID, "B", 4)
	c := env.createTask(t, milestone.ID, "C", 4)

	ids := func(tasks []*models.TaskTemplate) []string {
		out := make([]string, len(tasks))
		for i, task := range tasks {
			out[i] = task.ID
		}

		return out
	}

	status, body := env.do(t, http.MethodPost, "/task-templates/"+a.ID+"/move", web.MoveRequest{Direction: models.DirectionDown})
	require.Equal(t, http.StatusOK, status, string(body))

	moved := decode[web.TasksResponse](t, body)
	assert.Equal(t, milestone.ID, moved.MilestoneTemplateID)
	assert.Equal(t, []string{b.ID, a.ID, c.ID}, ids(moved.Tasks))

	status, _ = env.do(t, http.MethodPost, "/task-templates/"+a.ID+"/move", map[string]any{"direction": "sideways"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = env.do(t, http.MethodPut, "/milestone-templates/"+milestone.ID+"/tasks/order", web.ReorderRequest{
		Assignments: []models.OrdinalAssignment{{ID: c.ID, Ordinal: 1}, {ID: a.ID, Ordinal: 2}, {ID: b.ID, Ordinal: 3}},
	})
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Equal(t, []string{c.ID, a.ID, b.ID}, ids(decode[web.TasksResponse](t, body).Tasks))

	status, body = env.do(t, http.MethodPut, "/milestone-templates/"+milestone.ID+"/tasks/order", web.ReorderRequest{
		Assignments: []models.OrdinalAssignment{{ID: c.ID, Ordinal: 1}, {ID: a.ID, Ordinal: 1}, {ID: b.ID, Ordinal: 3}},
	})
	require.Equal(t, http.StatusBadRequest, status, string(body))

	status, body = env.do(t, http.MethodGet, "/milestone-templates/"+milestone.ID+"/tasks", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []string{c.ID, a.ID, b.ID}, ids(decode[web.TasksResponse](t, body).Tasks))
}

func TestAPIHandlers_MilestoneOrdering(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)
	workflow := env.createWorkflow(t, "Onboarding")
	first := env.createMilestone(t, workflow.ID, "Kickoff", nil)
	second := env.createMilestone(t, workflow.ID, "Delivery", nil)

	status, body := env.do(t, http.MethodPost, "/milestone-templates/"+second.ID+"/move", web.MoveRequest{Direction: models.DirectionUp})
	require.Equal(t, http.StatusOK, status, string(body))

	moved := decode[web.MilestonesResponse](t, body)
	assert.Equal(t, workflow.ID, moved.WorkflowTemplateID)
	require.Len(t, moved.Milestones, 2)
	assert.Equal(t, second.ID, moved.Milestones[0].ID)

	status, body = env.do(t, http.MethodPut, "/workflow-templates/"+workflow.ID+"/milestones/order", web.ReorderRequest{
		Assignments: []models.OrdinalAssignment{{ID: first.ID, Ordinal: 1}, {ID: second.ID, Ordinal: 2}},
	})
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Equal(t, first.ID, decode[web.MilestonesResponse](t, body).Milestones[0].ID)

	status, _ = env.do(t, http.MethodPut, "/workflow-templates/"+workflow.ID+"/milestones/order", web.ReorderRequest{})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAPIHandlers_Clone(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)

	status, body := env.do(t, http.MethodPost, "/workflow-templates/import", onboardingYAML)
	require.Equal(t, http.StatusCreated, status, string(body))

	source := decode[*models.WorkflowTemplate](t, body)

	status, body = env.do(t, http.MethodPost, "/workflow-templates/"+source.ID+"/clone", web.CloneTemplateRequest{
		NewName:         "Onboarding EU",
		CloneMilestones: true,
		CloneTasks:      true,
	})
	require.Equal(t, http.StatusCreated, status, string(body))

	cloned := decode[*models.WorkflowTemplate](t, body)
	assert.NotEqual(t, source.ID, cloned.ID)
	assert.Equal(t, "ONB_COPY", cloned.Code)

	status, body = env.do(t, http.MethodGet, "/workflow-templates/"+cloned.ID+"?include=tree", nil)
	require.Equal(t, http.StatusOK, status)

	tree := decode[*models.WorkflowTemplate](t, body)
	require.Len(t, tree.Milestones, 2)
	assert.Len(t, tree.Milestones[0].Tasks, 2)

	status, body = env.do(t, http.MethodPost, "/workflow-templates/"+source.ID+"/clone", web.CloneTemplateRequest{NewName: "onboarding eu"})
	require.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "duplicate_name", decode[problem](t, body).Type)

	status, _ = env.do(t, http.MethodPost, "/workflow-templates/"+source.ID+"/clone", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = env.do(t, http.MethodPost, "/workflow-templates/missing/clone", web.CloneTemplateRequest{NewName: "Other"})
	assert.Equal(t, http.StatusNotFound, status)
}

const onboardingYAML = `
version: 1
workflow:
  name: Onboarding
  code: ONB
  milestones:
    - name: Kickoff
      estimated_duration_days: 3
      auto_generate_tickets: true
      tasks:
        - name: Brief
          estimated_hours: 4
        - name: Scope
          estimated_hours: 10
    - name: Delivery
      estimated_duration_days: 5
      sla_days: 5
`

func TestAPIHandlers_ImportExport(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)

	status, body := env.do(t, http.MethodPost, "/workflow-templates/import", onboardingYAML)
	require.Equal(t, http.StatusCreated, status, string(body))

	imported := decode[*models.WorkflowTemplate](t, body)
	require.NotNil(t, imported.EstimatedDurationDays)
	assert.Equal(t, 8, *imported.EstimatedDurationDays)

	req := httptest.NewRequest(http.MethodGet, "/workflow-templates/"+imported.ID+"/export", nil)
	resp, err := env.app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/yaml", resp.Header.Get("Content-Type"))

	exported, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(exported), "name: Onboarding")
	assert.Contains(t, string(exported), "name: Kickoff")

	status, body = env.do(t, http.MethodPost, "/workflow-templates/import", "version: 2\nworkflow:\n  name: X\n")
	require.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_document", decode[problem](t, body).Type)

	status, _ = env.do(t, http.MethodPost, "/workflow-templates/import", onboardingYAML)
	assert.Equal(t, http.StatusBadRequest, status, "same active name imported twice")
}

func TestAPIHandlers_GetSchedule(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)

	status, body := env.do(t, http.MethodPost, "/workflow-templates/import", onboardingYAML)
	require.Equal(t, http.StatusCreated, status, string(body))

	imported := decode[*models.WorkflowTemplate](t, body)

	status, body = env.do(t, http.MethodGet, "/workflow-templates/"+imported.ID+"/schedule?start=2026-03-02T09:00:00Z", nil)
	require.Equal(t, http.StatusOK, status, string(body))

	schedule := decode[web.ScheduleResponse](t, body)
	require.Len(t, schedule.Deadlines, 2)

	// Kickoff SLA derives to 3 days (4h and 10h), Delivery keeps its 5 day operator SLA.
	assert.Equal(t, "2026-03-05T09:00:00Z", schedule.Deadlines[0].DueAt.UTC().Format("2006-01-02T15:04:05Z"))
	assert.Equal(t, schedule.Deadlines[0].DueAt, schedule.Deadlines[1].StartAt)
	assert.Equal(t, "2026-03-10T09:00:00Z", schedule.Deadlines[1].DueAt.UTC().Format("2006-01-02T15:04:05Z"))

	status, _ = env.do(t, http.MethodGet, "/workflow-templates/"+imported.ID+"/schedule?start=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAPIHandlers_HealthCheck(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)

	status, body := env.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, status)

	health := decode[map[string]any](t, body)
	assert.Equal(t, "healthy", health["status"])
}

func (e *testEnv) importKickoff(t *testing.T) (ticketID, kickoffID string) {
	t.Helper()

	status, body := e.do(t, http.MethodPost, "/workflow-templates/import", onboardingYAML)
	require.Equal(t, http.StatusCreated, status, string(body))

	imported := decode[*models.WorkflowTemplate](t, body)

	status, body = e.do(t, http.MethodGet, "/workflow-templates/"+imported.ID+"/milestones", nil)
	require.Equal(t, http.StatusOK, status)

	kickoffID = decode[web.MilestonesResponse](t, body).Milestones[0].ID
	ticketID = "T-1"

	e.source.On("GetTicket", mock.Anything, ticketID).Return(&models.Ticket{ID: ticketID, CompanyID: "C-1", ArticleID: "ART-1"}, nil)
	e.source.On("TasksForTicket", mock.Anything, ticketID).Return(
		testutil.CreateTestTicketTasks(ticketID, kickoffID, models.TaskStatusCompleted, models.TaskStatusCompleted), nil)

	return ticketID, kickoffID
}

func TestAPIHandlers_TaskStatusWebhook(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)
	ticketID, kickoffID := env.importKickoff(t)
	env.sink.On("RequestTicketGeneration", mock.Anything, mock.Anything).Return(nil)

	status, body := env.do(t, http.MethodPost, "/webhooks/task-status", web.TaskStatusRequest{
		TicketID: ticketID,
		TaskID:   ticketID + "-task-2",
		From:     models.TaskStatusInProgress,
		To:       models.TaskStatusCompleted,
	})
	require.Equal(t, http.StatusOK, status, string(body))

	result := decode[services.EvaluationResult](t, body)
	assert.Equal(t, []string{kickoffID}, result.Fired)

	// Replaying the same event is acknowledged without a second signal.
	status, body = env.do(t, http.MethodPost, "/webhooks/task-status", web.TaskStatusRequest{
		TicketID: ticketID,
		TaskID:   ticketID + "-task-2",
		From:     models.TaskStatusInProgress,
		To:       models.TaskStatusCompleted,
	})
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Empty(t, decode[services.EvaluationResult](t, body).Fired)
	env.sink.AssertNumberOfCalls(t, "RequestTicketGeneration", 1)

	status, _ = env.do(t, http.MethodPost, "/webhooks/task-status", web.TaskStatusRequest{
		TicketID: ticketID,
		TaskID:   "x",
		From:     models.TaskStatusCompleted,
		To:       models.TaskStatusPending,
	})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = env.do(t, http.MethodPost, "/webhooks/task-status", map[string]any{"ticket_id": ticketID})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAPIHandlers_EvaluateAndResignal(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)
	ticketID, kickoffID := env.importKickoff(t)
	env.sink.On("RequestTicketGeneration", mock.Anything, mock.Anything).Return(errors.New("ticketing down")).Once()

	status, body := env.do(t, http.MethodPost, "/tickets/"+ticketID+"/completion/evaluate", nil)
	require.Equal(t, http.StatusBadGateway, status, string(body))

	var failed struct {
		Result services.EvaluationResult `json:"result"`
	}
	require.NoError(t, json.Unmarshal(body, &failed))
	assert.Equal(t, []string{kickoffID}, failed.Result.Failed)

	status, body = env.do(t, http.MethodGet, "/tickets/"+ticketID+"/completion", nil)
	require.Equal(t, http.StatusOK, status, string(body))

	report := decode[services.CompletionReport](t, body)
	require.NotEmpty(t, report.Milestones)
	require.NotNil(t, report.Milestones[0].Trigger)
	assert.Equal(t, models.TriggerStatusFailed, report.Milestones[0].Trigger.Status)

	env.sink.On("RequestTicketGeneration", mock.Anything, mock.Anything).Return(nil)

	resignal := fmt.Sprintf("/tickets/%s/milestones/%s/resignal", ticketID, kickoffID)

	status, body = env.do(t, http.MethodPost, resignal, nil)
	require.Equal(t, http.StatusOK, status, string(body))

	record := decode[models.TriggerRecord](t, body)
	assert.Equal(t, models.TriggerStatusSignaled, record.Status)
	assert.Equal(t, 2, record.Attempts)

	status, body = env.do(t, http.MethodPost, resignal, nil)
	require.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "conflict", decode[problem](t, body).Type)
}

func TestAPIHandlers_CompletionWithoutTicketing(t *testing.T) {
	t.Parallel()

	store := file.NewPersistence(t.TempDir())
	handlers := web.NewAPIHandlers(
		services.NewWorkflowTemplates(store),
		services.NewMilestoneTemplates(store),
		services.NewTaskTemplates(store),
		services.NewCloning(store),
		nil,
		validator.New(validator.WithRequiredStructEnabled()),
	)

	app := fiber.New()
	handlers.Routes(app)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/tickets/T-1/completion", nil))
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestAPIHandlers_TicketNotFound(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)
	env.source.On("GetTicket", mock.Anything, "T-404").Return(nil, ticketing.ErrTicketNotFound)
	env.source.On("TasksForTicket", mock.Anything, "T-404").Return(nil, ticketing.ErrTicketNotFound)
	env.source.On("GetTicket", mock.Anything, "T-502").Return(nil, errors.New("connection refused"))
	env.source.On("TasksForTicket", mock.Anything, "T-502").Return(nil, errors.New("connection refused"))

	status, _ := env.do(t, http.MethodGet, "/tickets/T-404/completion", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, body := env.do(t, http.MethodPost, "/tickets/T-502/completion/evaluate", nil)
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, "upstream_failure", decode[problem](t, body).Type)
}
