package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/erp/qbconnector/internal/domain/connector"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// ConnectorMetrics tracks sessions, task flow and queue depth.
// A nil *ConnectorMetrics is valid and records nothing.
type ConnectorMetrics struct {
	meter  metric.Meter
	logger *zap.Logger

	sessionsOpened  *Counter
	sessionsClosed  *Counter
	authFailures    *Counter
	tasksSubmitted  *Counter
	tasksClaimed    *Counter
	claimConflicts  *Counter
	tasksCompleted  *Counter
	tasksRequeued   *Counter
	taskLatency     *Histogram
	queueDepth      *Gauge
	activeSessions  *Gauge
	queueProvider   QueueStatsProvider
	sessionProvider SessionStatsProvider

	stopChan    chan struct{}
	stopOnce    sync.Once
	collectOnce sync.Once
}

// QueueStatsProvider reports task counts per status.
type QueueStatsProvider interface {
	CountByStatus(ctx context.Context) (map[connector.TaskStatus]int64, error)
}

// SessionStatsProvider reports the number of stored sessions.
type SessionStatsProvider interface {
	Count(ctx context.Context) (int64, error)
}

// ConnectorMetricsConfig holds configuration for connector metrics.
type ConnectorMetricsConfig struct {
	Meter           metric.Meter
	Logger          *zap.Logger
	QueueProvider   QueueStatsProvider
	SessionProvider SessionStatsProvider
}

// Session close reasons
const (
	CloseReasonClient          = "client"
	CloseReasonConnectionError = "connection_error"
	CloseReasonStale           = "stale"
)

// NewConnectorMetrics registers the connector instruments on cfg.Meter.
func NewConnectorMetrics(cfg ConnectorMetricsConfig) (*ConnectorMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &ConnectorMetrics{
		meter:           cfg.Meter,
		logger:          logger,
		queueProvider:   cfg.QueueProvider,
		sessionProvider: cfg.SessionProvider,
		stopChan:        make(chan struct{}),
	}

	counters := []struct {
		dst        **Counter
		name, desc string
		unit       string
	}{
		{&m.sessionsOpened, "qbwc_sessions_opened_total", "Sessions opened by successful authenticate calls", "{sessions}"},
		{&m.sessionsClosed, "qbwc_sessions_closed_total", "Sessions closed, by reason", "{sessions}"},
		{&m.authFailures, "qbwc_auth_failures_total", "Rejected authenticate calls", "{calls}"},
		{&m.tasksSubmitted, "qbwc_tasks_submitted_total", "Tasks accepted by the submission API", "{tasks}"},
		{&m.tasksClaimed, "qbwc_tasks_claimed_total", "Tasks handed to a client session", "{tasks}"},
		{&m.claimConflicts, "qbwc_claim_conflicts_total", "Claims lost to a concurrent session", "{claims}"},
		{&m.tasksCompleted, "qbwc_tasks_completed_total", "Tasks completed, by terminal status", "{tasks}"},
		{&m.tasksRequeued, "qbwc_tasks_requeued_total", "Sent tasks returned to the queue", "{tasks}"},
	}
	for _, c := range counters {
		counter, err := NewCounter(cfg.Meter, c.name, c.desc, c.unit)
		if err != nil {
			return nil, err
		}
		*c.dst = counter
	}

	var err error
	m.taskLatency, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "qbwc_task_latency_seconds",
		Description: "Time from enqueue to completion",
		Unit:        "s",
		Boundaries:  TaskLatencyBuckets,
	})
	if err != nil {
		return nil, err
	}

	m.queueDepth, err = NewGauge(cfg.Meter, "qbwc_queue_depth", "Tasks per status", "{tasks}")
	if err != nil {
		return nil, err
	}
	m.activeSessions, err = NewGauge(cfg.Meter, "qbwc_sessions_stored", "Sessions held in the registry", "{sessions}")
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordSessionOpened counts a successful authenticate.
func (m *ConnectorMetrics) RecordSessionOpened(ctx context.Context) {
	if m == nil {
		return
	}
	m.sessionsOpened.Inc(ctx)
}

// RecordSessionClosed counts a session close with its reason.
func (m *ConnectorMetrics) RecordSessionClosed(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.sessionsClosed.Inc(ctx, AttrReason.String(reason))
}

// RecordAuthFailure counts a rejected authenticate.
func (m *ConnectorMetrics) RecordAuthFailure(ctx context.Context) {
	if m == nil {
		return
	}
	m.authFailures.Inc(ctx)
}

// RecordTaskSubmitted counts an accepted submission.
func (m *ConnectorMetrics) RecordTaskSubmitted(ctx context.Context) {
	if m == nil {
		return
	}
	m.tasksSubmitted.Inc(ctx)
}

// RecordTaskClaimed counts a successful claim.
func (m *ConnectorMetrics) RecordTaskClaimed(ctx context.Context) {
	if m == nil {
		return
	}
	m.tasksClaimed.Inc(ctx)
}

// RecordClaimConflict counts a claim lost to another session.
func (m *ConnectorMetrics) RecordClaimConflict(ctx context.Context) {
	if m == nil {
		return
	}
	m.claimConflicts.Inc(ctx)
}

// RecordTaskCompleted counts a completion and observes its queue latency.
func (m *ConnectorMetrics) RecordTaskCompleted(ctx context.Context, status connector.TaskStatus, latency time.Duration) {
	if m == nil {
		return
	}
	attr := AttrTaskStatus.String(status.String())
	m.tasksCompleted.Inc(ctx, attr)
	if latency > 0 {
		m.taskLatency.RecordDuration(ctx, latency, attr)
	}
}

// RecordTasksRequeued counts tasks returned to pending.
func (m *ConnectorMetrics) RecordTasksRequeued(ctx context.Context, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.tasksRequeued.Add(ctx, n)
}

// StartPeriodicCollection samples queue depth and session count every
// interval until Stop is called or ctx is cancelled.
func (m *ConnectorMetrics) StartPeriodicCollection(ctx context.Context, interval time.Duration) {
	if m == nil {
		return
	}
	m.collectOnce.Do(func() {
		if interval <= 0 {
			interval = time.Minute
		}
		go m.runPeriodicCollection(ctx, interval)
	})
}

func (m *ConnectorMetrics) runPeriodicCollection(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.collect(ctx)

	for {
		select {
		case <-m.stopChan:
			m.logger.Info("Stopping periodic connector metrics collection")
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.collect(ctx)
		}
	}
}

func (m *ConnectorMetrics) collect(ctx context.Context) {
	if m.queueProvider != nil {
		counts, err := m.queueProvider.CountByStatus(ctx)
		if err != nil {
			m.logger.Warn("Failed to collect queue depth", zap.Error(err))
		} else {
			for _, status := range []connector.TaskStatus{
				connector.TaskStatusPending,
				connector.TaskStatusSent,
				connector.TaskStatusDone,
				connector.TaskStatusError,
			} {
				m.queueDepth.Record(ctx, counts[status], AttrTaskStatus.String(status.String()))
			}
		}
	}

	if m.sessionProvider != nil {
		n, err := m.sessionProvider.Count(ctx)
		if err != nil {
			m.logger.Warn("Failed to collect session count", zap.Error(err))
			return
		}
		m.activeSessions.Record(ctx, n)
	}
}

// Stop stops the periodic collection.
func (m *ConnectorMetrics) Stop() {
	if m == nil {
		return
	}
	m.stopOnce.Do(func() {
		close(m.stopChan)
	})
}

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = &MetricsError{Op: "NewConnectorMetrics", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}
