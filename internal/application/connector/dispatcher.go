package connector

import (
	"context"
	"errors"

	"github.com/erp/qbconnector/internal/domain/connector"
	"github.com/erp/qbconnector/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// DefaultMaxClaimAttempts bounds how often ClaimNext re-selects after losing a race
const DefaultMaxClaimAttempts = 8

// QueueDispatcher hands the oldest pending task of a session's user to that session.
type QueueDispatcher struct {
	sessions    connector.SessionRegistry
	tasks       connector.TaskStore
	maxAttempts int
	metrics     *telemetry.ConnectorMetrics
	logger      *zap.Logger
}

// NewQueueDispatcher creates a new QueueDispatcher
func NewQueueDispatcher(
	sessions connector.SessionRegistry,
	tasks connector.TaskStore,
	maxAttempts int,
	metrics *telemetry.ConnectorMetrics,
	logger *zap.Logger,
) *QueueDispatcher {
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxClaimAttempts
	}
	return &QueueDispatcher{
		sessions:    sessions,
		tasks:       tasks,
		maxAttempts: maxAttempts,
		metrics:     metrics,
		logger:      logger.Named("dispatcher"),
	}
}

// ClaimNext moves the oldest pending task for the session's username to sent
// and binds it to ticket. Returns nil, nil when there is nothing to hand out.
func (d *QueueDispatcher) ClaimNext(ctx context.Context, ticket string) (*connector.Task, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "dispatcher", "claim_next")
	defer span.End()

	session, err := d.sessions.Get(ctx, ticket)
	if err != nil {
		if errors.Is(err, connector.ErrSessionNotFound) {
			return nil, nil
		}
		telemetry.RecordError(span, err)
		return nil, err
	}
	if !session.IsUsable() {
		return nil, nil
	}

	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		task, err := d.tasks.PeekOldestPending(ctx, session.Username)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
		if task == nil {
			return nil, nil
		}

		err = d.tasks.MarkSent(ctx, task.ID, ticket)
		if errors.Is(err, connector.ErrTaskAlreadyClaimed) {
			d.metrics.RecordClaimConflict(ctx)
			d.logger.Debug("Lost claim race, reselecting",
				zap.Int64("task_id", task.ID),
				zap.Int("attempt", attempt),
			)
			continue
		}
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}

		task.Status = connector.TaskStatusSent
		task.Ticket = ticket
		d.metrics.RecordTaskClaimed(ctx)
		telemetry.SetAttributes(span,
			telemetry.SpanAttrTaskID, task.ID,
			telemetry.SpanAttrClaimTries, attempt,
		)
		return task, nil
	}

	d.logger.Warn("Claim attempts exhausted",
		zap.String("username", session.Username),
		zap.Int("attempts", d.maxAttempts),
	)
	return nil, nil
}
