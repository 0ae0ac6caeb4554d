package connector

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionState_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from     SessionState
		to       SessionState
		expected bool
	}{
		{SessionStateActive, SessionStateClosed, true},
		{SessionStateActive, SessionStateActive, false},
		{SessionStateClosed, SessionStateActive, false},
		{SessionStateClosed, SessionStateClosed, false},
		{SessionState("BOGUS"), SessionStateClosed, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestSessionState_IsValid(t *testing.T) {
	assert.True(t, SessionStateActive.IsValid())
	assert.True(t, SessionStateClosed.IsValid())
	assert.False(t, SessionState("").IsValid())
	assert.Equal(t, "ACTIVE", SessionStateActive.String())
}

func TestNewSession(t *testing.T) {
	t.Run("issues a random uuid ticket", func(t *testing.T) {
		s := NewSession("admin", "")

		_, err := uuid.Parse(s.Ticket)
		require.NoError(t, err)
		assert.Equal(t, "admin", s.Username)
		assert.Equal(t, "", s.TargetFile)
		assert.Equal(t, SessionStateActive, s.State)
		assert.True(t, s.IsUsable())
		assert.Equal(t, s.CreatedAt, s.LastSeenAt)
		assert.Nil(t, s.ClosedAt)
	})

	t.Run("tickets are unique", func(t *testing.T) {
		seen := make(map[string]struct{})
		for i := 0; i < 100; i++ {
			s := NewSession("admin", "")
			_, dup := seen[s.Ticket]
			require.False(t, dup)
			seen[s.Ticket] = struct{}{}
		}
	})
}

func TestSession_Close(t *testing.T) {
	t.Run("active session closes", func(t *testing.T) {
		s := NewSession("admin", "C:\\company.qbw")
		at := time.Now()

		require.NoError(t, s.Close(at))
		assert.Equal(t, SessionStateClosed, s.State)
		assert.False(t, s.IsUsable())
		require.NotNil(t, s.ClosedAt)
		assert.Equal(t, at, *s.ClosedAt)
	})

	t.Run("closing twice is a no-op", func(t *testing.T) {
		s := NewSession("admin", "")
		first := time.Now()
		require.NoError(t, s.Close(first))
		require.NoError(t, s.Close(first.Add(time.Minute)))
		assert.Equal(t, first, *s.ClosedAt)
	})

	t.Run("unknown state is rejected", func(t *testing.T) {
		s := NewSession("admin", "")
		s.State = SessionState("BROKEN")
		err := s.Close(time.Now())
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})
}

func TestSession_IsUsable_Nil(t *testing.T) {
	var s *Session
	assert.False(t, s.IsUsable())
}

func TestSession_IdleSince(t *testing.T) {
	s := NewSession("admin", "")
	s.LastSeenAt = time.Now().Add(-10 * time.Minute)
	assert.GreaterOrEqual(t, s.IdleSince(time.Now()), 10*time.Minute)
}
