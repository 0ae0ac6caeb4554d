package connector

import (
	"context"
	"testing"
	"time"

	"github.com/erp/qbconnector/internal/domain/connector"
	"github.com/erp/qbconnector/internal/infrastructure/persistence/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func backdate(t *testing.T, s *stores, ticket string, age time.Duration) {
	t.Helper()
	require.NoError(t, s.db.Model(&models.SessionModel{}).
		Where("ticket = ?", ticket).
		Update("last_seen_at", time.Now().Add(-age)).Error)
}

func TestSessionSweeper_Sweep(t *testing.T) {
	ctx := context.Background()

	for _, requeue := range []bool{false, true} {
		name := "leaves sent tasks"
		if requeue {
			name = "requeues sent tasks"
		}
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, EngineConfig{})
			sub, err := h.submission.Submit(ctx, SubmitInput{Username: "admin", RequestXML: "<A/>"})
			require.NoError(t, err)

			stale := h.engine.Authenticate(ctx, "admin", "password")[0]
			require.NotEmpty(t, h.engine.SendRequestXML(ctx, stale, "", "", "US", 13, 0))
			fresh := h.engine.Authenticate(ctx, "admin", "password")[0]
			backdate(t, h.stores, stale, time.Hour)

			sweeper := NewSessionSweeper(h.sessions, h.tasks, h.engine, SweeperConfig{
				StaleAfter:     10 * time.Minute,
				RequeueOnError: requeue,
			}, nil, zap.NewNop())

			stats, err := sweeper.Sweep(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, stats.Closed)
			assert.Equal(t, 0, stats.Failed)

			closed, err := h.sessions.Get(ctx, stale)
			require.NoError(t, err)
			assert.False(t, closed.IsUsable())
			open, err := h.sessions.Get(ctx, fresh)
			require.NoError(t, err)
			assert.True(t, open.IsUsable())

			result, err := h.submission.Result(ctx, sub.TaskID)
			require.NoError(t, err)
			if requeue {
				assert.Equal(t, int64(1), stats.Requeued)
				assert.Equal(t, connector.TaskStatusPending, result.Status)
			} else {
				assert.Equal(t, int64(0), stats.Requeued)
				assert.Equal(t, connector.TaskStatusSent, result.Status)
			}
		})
	}

	t.Run("nothing stale", func(t *testing.T) {
		h := newHarness(t, EngineConfig{})
		h.engine.Authenticate(ctx, "admin", "password")

		sweeper := NewSessionSweeper(h.sessions, h.tasks, h.engine, SweeperConfig{StaleAfter: time.Hour}, nil, zap.NewNop())
		stats, err := sweeper.Sweep(ctx)

		require.NoError(t, err)
		assert.Zero(t, stats.Closed)
	})
}

func TestSessionSweeper_StartStop(t *testing.T) {
	s := newSQLiteStores(t)
	d := NewQueueDispatcher(s.sessions, s.tasks, 0, nil, zap.NewNop())
	engine := NewProtocolEngine(s.sessions, s.tasks, d, testCredentials, EngineConfig{}, nil, zap.NewNop())

	t.Run("disabled", func(t *testing.T) {
		sweeper := NewSessionSweeper(s.sessions, s.tasks, engine, SweeperConfig{}, nil, zap.NewNop())
		require.NoError(t, sweeper.Start(context.Background()))
		assert.NoError(t, sweeper.Stop(context.Background()))
	})

	t.Run("closes stale sessions in the background", func(t *testing.T) {
		ticket := engine.Authenticate(context.Background(), "admin", "password")[0]
		backdate(t, s, ticket, time.Hour)

		sweeper := NewSessionSweeper(s.sessions, s.tasks, engine, SweeperConfig{
			Interval:   10 * time.Millisecond,
			StaleAfter: time.Minute,
		}, nil, zap.NewNop())
		require.NoError(t, sweeper.Start(context.Background()))

		assert.Eventually(t, func() bool {
			session, err := s.sessions.Get(context.Background(), ticket)
			return err == nil && !session.IsUsable()
		}, 2*time.Second, 10*time.Millisecond)

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		assert.NoError(t, sweeper.Stop(ctx))
	})
}
