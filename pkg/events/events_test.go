package events

import (
	"encoding/json"
	"testing"

	"github.com/dukex/blueprint/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTaskStatusChanged(t *testing.T) {
	event := NewTaskStatusChanged("T1", "task-1", "m1", models.TaskStatusInProgress, models.TaskStatusCompleted)

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, TaskStatusChangedEvent, event.Type)
	assert.Equal(t, TaskStatusChangedEvent, event.GetType())
	assert.False(t, event.Timestamp.IsZero())

	data, err := json.Marshal(event)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"ticket_id":"T1"`)
	assert.Contains(t, string(data), `"to":"completed"`)
}

func TestNewTicketGenerationRequested(t *testing.T) {
	req := models.TicketGenerationRequest{SourceTicketID: "T1", MilestoneID: "m1", CompanyID: "c1", ArticleOrKitID: "kit-9"}
	event := NewTicketGenerationRequested(req)

	assert.Equal(t, TicketGenerationRequestedEvent, event.GetType())

	data, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded TicketGenerationRequested

	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "kit-9", decoded.Request.ArticleOrKitID)
	assert.Equal(t, event.ID, decoded.ID)
}
