package models

import (
	"testing"
	"time"

	"github.com/erp/qbconnector/internal/domain/connector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionModel_RoundTrip(t *testing.T) {
	s := connector.NewSession("admin", "C:\\Company.qbw")
	s.InteractiveURL = "http://localhost:8000/interactive"
	s.InteractiveStatus = connector.InteractiveStatusPending

	m := SessionModelFromDomain(s)
	assert.Equal(t, "sessions", m.TableName())
	assert.Equal(t, s, m.ToDomain())
}

func TestTaskModel_Ticket(t *testing.T) {
	t.Run("unclaimed task stores NULL ticket", func(t *testing.T) {
		task := connector.NewTask("alice", "<CustomerQueryRq/>")
		m := TaskModelFromDomain(task)

		assert.Nil(t, m.Ticket)
		assert.Equal(t, "tasks", m.TableName())
		assert.Empty(t, m.ToDomain().Ticket)
	})

	t.Run("claimed task keeps its ticket", func(t *testing.T) {
		resp := "<CustomerQueryRs/>"
		task := &connector.Task{
			ID:        3,
			Username:  "alice",
			Ticket:    "ticket-1",
			Request:   "<CustomerQueryRq/>",
			Response:  &resp,
			Status:    connector.TaskStatusDone,
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		}
		m := TaskModelFromDomain(task)

		require.NotNil(t, m.Ticket)
		assert.Equal(t, "ticket-1", *m.Ticket)
		assert.Equal(t, task, m.ToDomain())
	})
}

func TestAllModels(t *testing.T) {
	assert.Len(t, AllModels(), 2)
}
