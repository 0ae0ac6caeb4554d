package connector

import (
	"context"
	"sync"
	"time"

	"github.com/erp/qbconnector/internal/domain/connector"
	"github.com/erp/qbconnector/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// SweeperConfig holds configuration for the stale session sweeper
type SweeperConfig struct {
	Interval       time.Duration // 0 disables the sweeper
	StaleAfter     time.Duration
	BatchSize      int
	RequeueOnError bool
}

// SweepStats summarizes one sweep
type SweepStats struct {
	Closed   int       `json:"closed"`
	Requeued int64     `json:"requeued"`
	Failed   int       `json:"failed"`
	SweptAt  time.Time `json:"swept_at"`
}

// SessionSweeper closes sessions the client abandoned without calling
// closeConnection.
type SessionSweeper struct {
	sessions connector.SessionRegistry
	tasks    connector.TaskStore
	engine   *ProtocolEngine
	config   SweeperConfig
	metrics  *telemetry.ConnectorMetrics
	logger   *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSessionSweeper creates a new SessionSweeper
func NewSessionSweeper(
	sessions connector.SessionRegistry,
	tasks connector.TaskStore,
	engine *ProtocolEngine,
	config SweeperConfig,
	metrics *telemetry.ConnectorMetrics,
	logger *zap.Logger,
) *SessionSweeper {
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.StaleAfter <= 0 {
		config.StaleAfter = 30 * time.Minute
	}
	return &SessionSweeper{
		sessions: sessions,
		tasks:    tasks,
		engine:   engine,
		config:   config,
		metrics:  metrics,
		logger:   logger.Named("sweeper"),
	}
}

// Start runs the sweep loop in the background. It does nothing when the
// interval is zero.
func (s *SessionSweeper) Start(ctx context.Context) error {
	if s.config.Interval <= 0 {
		s.logger.Info("session sweeper disabled")
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.loop(ctx)

	s.logger.Info("session sweeper started",
		zap.Duration("interval", s.config.Interval),
		zap.Duration("stale_after", s.config.StaleAfter),
		zap.Bool("requeue_on_error", s.config.RequeueOnError),
	)
	return nil
}

// Stop gracefully stops the sweeper
func (s *SessionSweeper) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("session sweeper stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SessionSweeper) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.Error("sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep closes every active session idle longer than StaleAfter and, when
// configured, returns its sent tasks to the queue.
func (s *SessionSweeper) Sweep(ctx context.Context) (*SweepStats, error) {
	stats := &SweepStats{SweptAt: time.Now()}

	stale, err := s.sessions.FindStale(ctx, stats.SweptAt.Add(-s.config.StaleAfter), s.config.BatchSize)
	if err != nil {
		return nil, err
	}
	if len(stale) == 0 {
		s.logger.Debug("No stale sessions found")
		return stats, nil
	}

	for _, session := range stale {
		if err := s.engine.closeSession(ctx, session.Ticket, telemetry.CloseReasonStale); err != nil {
			s.logger.Error("Failed to close stale session",
				zap.String("ticket", session.Ticket),
				zap.Error(err),
			)
			stats.Failed++
			continue
		}
		stats.Closed++
		s.logger.Debug("Closed stale session",
			zap.String("ticket", session.Ticket),
			zap.Duration("idle", session.IdleSince(stats.SweptAt)),
		)

		if !s.config.RequeueOnError {
			continue
		}
		n, err := s.tasks.RequeueSent(ctx, session.Ticket)
		if err != nil {
			s.logger.Error("Failed to requeue tasks of stale session",
				zap.String("ticket", session.Ticket),
				zap.Error(err),
			)
			stats.Failed++
			continue
		}
		stats.Requeued += n
	}
	s.metrics.RecordTasksRequeued(ctx, stats.Requeued)

	s.logger.Info("Completed stale session sweep",
		zap.Int("closed", stats.Closed),
		zap.Int64("requeued", stats.Requeued),
		zap.Int("failed", stats.Failed),
	)
	return stats, nil
}
