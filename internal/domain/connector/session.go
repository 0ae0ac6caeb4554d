package connector

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SessionState represents the lifecycle state of a connector session
type SessionState string

const (
	SessionStateActive SessionState = "ACTIVE"
	SessionStateClosed SessionState = "CLOSED"
)

// IsValid checks if the state is a valid SessionState
func (s SessionState) IsValid() bool {
	switch s {
	case SessionStateActive, SessionStateClosed:
		return true
	}
	return false
}

// String returns the string representation of SessionState
func (s SessionState) String() string {
	return string(s)
}

// CanTransitionTo checks if the state can transition to the target state.
// CLOSED is terminal: a ticket is never reactivated.
func (s SessionState) CanTransitionTo(target SessionState) bool {
	switch s {
	case SessionStateActive:
		return target == SessionStateClosed
	case SessionStateClosed:
		return false
	}
	return false
}

// InteractiveStatus tracks the optional interactive-mode handshake
type InteractiveStatus string

const (
	InteractiveStatusNone     InteractiveStatus = ""
	InteractiveStatusPending  InteractiveStatus = "pending"
	InteractiveStatusDone     InteractiveStatus = "done"
	InteractiveStatusRejected InteractiveStatus = "rejected"
)

// Session is a connector session identified by its ticket
type Session struct {
	Ticket            string
	Username          string
	TargetFile        string // empty means "whatever file is currently open"
	State             SessionState
	CreatedAt         time.Time
	LastSeenAt        time.Time
	ClosedAt          *time.Time
	InteractiveURL    string
	InteractiveStatus InteractiveStatus
}

// NewSession mints a new active session with a random 128-bit ticket
func NewSession(username, targetFile string) *Session {
	now := time.Now()
	return &Session{
		Ticket:     uuid.New().String(),
		Username:   username,
		TargetFile: targetFile,
		State:      SessionStateActive,
		CreatedAt:  now,
		LastSeenAt: now,
	}
}

// IsUsable reports whether request-serving calls may use this session
func (s *Session) IsUsable() bool {
	return s != nil && s.State == SessionStateActive
}

// Close moves the session to CLOSED
func (s *Session) Close(at time.Time) error {
	if s.State == SessionStateClosed {
		return nil
	}
	if !s.State.CanTransitionTo(SessionStateClosed) {
		return fmt.Errorf("%w: session %s from %s to %s", ErrInvalidTransition, s.Ticket, s.State, SessionStateClosed)
	}
	s.State = SessionStateClosed
	s.ClosedAt = &at
	return nil
}

// IdleSince returns how long the session has gone without a protocol call
func (s *Session) IdleSince(now time.Time) time.Duration {
	return now.Sub(s.LastSeenAt)
}
