package connector

import (
	"context"
	"time"
)

// SessionRegistry persists connector sessions. It is the only mutator of session records.
type SessionRegistry interface {
	// Open mints a ticket and stores an active session
	Open(ctx context.Context, username, targetFile string) (*Session, error)
	// Get returns ErrSessionNotFound for unknown tickets
	Get(ctx context.Context, ticket string) (*Session, error)
	// Touch refreshes last_seen_at. Unknown tickets are a no-op.
	Touch(ctx context.Context, ticket string) error
	// Close marks the session CLOSED. Idempotent; unknown tickets are a no-op.
	Close(ctx context.Context, ticket string) error
	// SetInteractive records the interactive-mode handshake state
	SetInteractive(ctx context.Context, ticket, url string, status InteractiveStatus) error
	// FindStale lists active sessions whose last call is older than idleSince
	FindStale(ctx context.Context, idleSince time.Time, limit int) ([]Session, error)
	// Count returns the number of sessions in the registry
	Count(ctx context.Context) (int64, error)
}

// TaskStore persists queued tasks. It is the only mutator of task records.
type TaskStore interface {
	// Enqueue inserts a pending task and returns its id
	Enqueue(ctx context.Context, username, request string) (int64, error)
	// PeekOldestPending returns the lowest-id pending task for username, or nil
	PeekOldestPending(ctx context.Context, username string) (*Task, error)
	// MarkSent moves a task pending -> sent and binds ticket.
	// Returns ErrTaskAlreadyClaimed if the task is no longer pending.
	MarkSent(ctx context.Context, id int64, ticket string) error
	// Complete finishes the most recently sent task held by ticket.
	// Returns nil, nil when the ticket holds no sent task.
	Complete(ctx context.Context, ticket, response string, isError bool) (*Task, error)
	// GetResult returns ErrTaskNotFound for unknown ids
	GetResult(ctx context.Context, id int64) (*TaskResult, error)
	// RequeueSent moves every task held by ticket back to pending
	RequeueSent(ctx context.Context, ticket string) (int64, error)
	// CountByStatus returns the number of tasks per status
	CountByStatus(ctx context.Context) (map[TaskStatus]int64, error)
}
