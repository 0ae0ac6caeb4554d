package connector

import (
	"time"
)

// TaskStatus represents the status of a queued task
type TaskStatus string

const (
	TaskStatusPending TaskStatus = "pending"
	TaskStatusSent    TaskStatus = "sent"
	TaskStatusDone    TaskStatus = "done"
	TaskStatusError   TaskStatus = "error"
)

// IsValid checks if the status is a valid TaskStatus
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusPending, TaskStatusSent, TaskStatusDone, TaskStatusError:
		return true
	}
	return false
}

// String returns the string representation of TaskStatus
func (s TaskStatus) String() string {
	return string(s)
}

// IsTerminal reports whether no further transition is possible
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusDone || s == TaskStatusError
}

// CanTransitionTo checks if the status can transition to the target status.
// SENT -> PENDING is the requeue path for abandoned claims.
func (s TaskStatus) CanTransitionTo(target TaskStatus) bool {
	if s.IsTerminal() {
		return false
	}
	switch s {
	case TaskStatusPending:
		return target == TaskStatusSent
	case TaskStatusSent:
		return target == TaskStatusDone || target == TaskStatusError || target == TaskStatusPending
	}
	return false
}

// Task is a unit of work queued for the accounting client
type Task struct {
	ID        int64
	Username  string
	Ticket    string // empty until a session claims the task
	Request   string
	Response  *string
	Status    TaskStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewTask creates a pending task owned by username
func NewTask(username, request string) *Task {
	now := time.Now()
	return &Task{
		Username:  username,
		Request:   request,
		Status:    TaskStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TaskResult is the externally visible outcome of a task
type TaskResult struct {
	ID       int64
	Username string
	Status   TaskStatus
	Response *string
}

// Result returns the task's externally visible outcome
func (t *Task) Result() *TaskResult {
	return &TaskResult{
		ID:       t.ID,
		Username: t.Username,
		Status:   t.Status,
		Response: t.Response,
	}
}

// StatusFor maps a client reply to the terminal status it produces
func StatusFor(isError bool) TaskStatus {
	if isError {
		return TaskStatusError
	}
	return TaskStatusDone
}
