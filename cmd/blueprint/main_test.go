package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/dukex/blueprint/pkg/models"
	"github.com/dukex/blueprint/pkg/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const onboardingYAML = `
version: 1
workflow:
  name: Onboarding
  code: ONB
  milestones:
    - name: Kickoff
      auto_generate_tickets: true
      tasks:
        - name: Brief
          estimated_hours: 4
        - name: Scope
          estimated_hours: 10
        - name: Sign-off
          estimated_hours: 2
`

type cliRunner struct {
	t    *testing.T
	args []string
}

func newCLI(t *testing.T, extra ...string) *cliRunner {
	t.Helper()

	return &cliRunner{t: t, args: append([]string{"blueprint", "--database-url", "file://" + t.TempDir()}, extra...)}
}

func (c *cliRunner) run(args ...string) ([]byte, error) {
	c.t.Helper()

	var out bytes.Buffer

	command := newRootCommand()
	command.Writer = &out

	err := command.Run(c.t.Context(), append(append([]string{}, c.args...), args...))

	return out.Bytes(), err
}

func (c *cliRunner) mustRun(args ...string) []byte {
	c.t.Helper()

	out, err := c.run(args...)
	require.NoError(c.t, err, string(out))

	return out
}

func (c *cliRunner) importOnboarding() *models.WorkflowTemplate {
	c.t.Helper()

	path := filepath.Join(c.t.TempDir(), "onboarding.yaml")
	require.NoError(c.t, os.WriteFile(path, []byte(onboardingYAML), 0600))

	var imported models.WorkflowTemplate
	require.NoError(c.t, json.Unmarshal(c.mustRun("import", path), &imported))

	return &imported
}

func taskIDs(t *testing.T, out []byte) []string {
	t.Helper()

	var tasks []*models.TaskTemplate
	require.NoError(t, json.Unmarshal(out, &tasks))

	ids := make([]string, len(tasks))
	for i, task := range tasks {
		ids[i] = task.ID
	}

	return ids
}

func TestCLI_ImportListExport(t *testing.T) {
	c := newCLI(t)
	imported := c.importOnboarding()

	require.Len(t, imported.Milestones, 1)
	assert.Len(t, imported.Milestones[0].Tasks, 3)
	require.NotNil(t, imported.Milestones[0].SLADays)
	assert.Equal(t, 4, *imported.Milestones[0].SLADays)

	var listed services.ListWorkflowTemplatesResponse
	require.NoError(t, json.Unmarshal(c.mustRun("list", "--active"), &listed))
	require.Len(t, listed.WorkflowTemplates, 1)
	assert.Equal(t, imported.ID, listed.WorkflowTemplates[0].ID)

	exported := c.mustRun("export", imported.ID)
	assert.Contains(t, string(exported), "name: Onboarding")
	assert.Contains(t, string(exported), "name: Sign-off")

	_, err := c.run("import", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = c.run("export")
	assert.ErrorIs(t, err, errUsage)
}

func TestCLI_Clone(t *testing.T) {
	c := newCLI(t)
	imported := c.importOnboarding()

	var cloned models.WorkflowTemplate
	require.NoError(t, json.Unmarshal(c.mustRun("clone", imported.ID, "--name", "Onboarding EU", "--milestones"), &cloned))
	assert.Equal(t, "ONB_COPY", cloned.Code)
	require.Len(t, cloned.Milestones, 1)
	assert.Empty(t, cloned.Milestones[0].Tasks)

	_, err := c.run("clone", imported.ID, "--name", "onboarding eu")
	assert.True(t, services.IsValidationError(err), "duplicate name: %v", err)
}

func TestCLI_ReorderAndMove(t *testing.T) {
	c := newCLI(t)
	imported := c.importOnboarding()

	milestone := imported.Milestones[0]
	a, b, d := milestone.Tasks[0].ID, milestone.Tasks[1].ID, milestone.Tasks[2].ID

	out := c.mustRun("reorder", milestone.ID, d+"=1", a+"=2", b+"=3")
	assert.Equal(t, []string{d, a, b}, taskIDs(t, out))

	out = c.mustRun("move-task", b, "up")
	assert.Equal(t, []string{d, b, a}, taskIDs(t, out))

	_, err := c.run("reorder", milestone.ID, d+"=1", a+"=1", b+"=3")
	assert.True(t, services.IsValidationError(err), "duplicate ordinal: %v", err)

	_, err = c.run("reorder", milestone.ID, "no-ordinal")
	assert.ErrorIs(t, err, errUsage)

	_, err = c.run("move-task", b, "sideways")
	assert.True(t, services.IsValidationError(err))
}

func TestCLI_Completion(t *testing.T) {
	var (
		kickoffID string
		signals   atomic.Int32
	)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /tickets/T-1", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(models.Ticket{ID: "T-1", CompanyID: "C-1", ArticleID: "ART-1"})
	})
	mux.HandleFunc("GET /tickets/T-1/tasks", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode([]models.TicketTask{
			{ID: "t1", MilestoneTemplateID: kickoffID, Mandatory: true, Status: models.TaskStatusCompleted},
			{ID: "t2", MilestoneTemplateID: kickoffID, Mandatory: true, Status: models.TaskStatusCompleted},
			{ID: "t3", MilestoneTemplateID: kickoffID, Mandatory: false, Status: models.TaskStatusPending},
		})
	})
	mux.HandleFunc("POST /ticket-generation-requests", func(w http.ResponseWriter, _ *http.Request) {
		signals.Add(1)
		w.WriteHeader(http.StatusAccepted)
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	c := newCLI(t, "--ticketing-url", server.URL)
	kickoffID = c.importOnboarding().Milestones[0].ID

	var report services.CompletionReport
	require.NoError(t, json.Unmarshal(c.mustRun("completion", "T-1"), &report))
	require.Len(t, report.Milestones, 1)
	assert.True(t, report.Milestones[0].Complete)
	assert.Equal(t, 2, report.Milestones[0].Mandatory.Completed)
	assert.Equal(t, 1, report.Milestones[0].Optional.Total)
	assert.Zero(t, signals.Load())

	var result services.EvaluationResult
	require.NoError(t, json.Unmarshal(c.mustRun("completion", "T-1", "--evaluate"), &result))
	assert.Equal(t, []string{kickoffID}, result.Fired)

	require.NoError(t, json.Unmarshal(c.mustRun("completion", "T-1", "--evaluate"), &result))
	assert.Empty(t, result.Fired)
	assert.Equal(t, int32(1), signals.Load())
}

func TestCLI_CompletionRequiresTicketing(t *testing.T) {
	c := newCLI(t)

	_, err := c.run("completion", "T-1")
	assert.Error(t, err)
}
