package connector

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTaskStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from     TaskStatus
		to       TaskStatus
		expected bool
	}{
		{TaskStatusPending, TaskStatusSent, true},
		{TaskStatusPending, TaskStatusDone, false},
		{TaskStatusPending, TaskStatusError, false},
		{TaskStatusSent, TaskStatusDone, true},
		{TaskStatusSent, TaskStatusError, true},
		{TaskStatusSent, TaskStatusPending, true},
		{TaskStatusDone, TaskStatusPending, false},
		{TaskStatusDone, TaskStatusError, false},
		{TaskStatusError, TaskStatusDone, false},
		{TaskStatus("unknown"), TaskStatusSent, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestTaskStatus_IsTerminal(t *testing.T) {
	assert.False(t, TaskStatusPending.IsTerminal())
	assert.False(t, TaskStatusSent.IsTerminal())
	assert.True(t, TaskStatusDone.IsTerminal())
	assert.True(t, TaskStatusError.IsTerminal())
}

func TestTaskStatus_IsValid(t *testing.T) {
	for _, s := range []TaskStatus{TaskStatusPending, TaskStatusSent, TaskStatusDone, TaskStatusError} {
		assert.True(t, s.IsValid(), s.String())
	}
	assert.False(t, TaskStatus("not_found").IsValid())
}

func TestNewTask(t *testing.T) {
	task := NewTask("alice", "<CustomerQueryRq/>")

	assert.Equal(t, "alice", task.Username)
	assert.Equal(t, "<CustomerQueryRq/>", task.Request)
	assert.Equal(t, TaskStatusPending, task.Status)
	assert.Empty(t, task.Ticket)
	assert.Nil(t, task.Response)
}

func TestTask_Result(t *testing.T) {
	resp := "<CustomerQueryRs/>"
	task := &Task{ID: 7, Username: "alice", Status: TaskStatusDone, Response: &resp}

	result := task.Result()
	assert.Equal(t, int64(7), result.ID)
	assert.Equal(t, "alice", result.Username)
	assert.Equal(t, TaskStatusDone, result.Status)
	assert.Equal(t, &resp, result.Response)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, TaskStatusDone, StatusFor(false))
	assert.Equal(t, TaskStatusError, StatusFor(true))
}
