package connector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/erp/qbconnector/internal/domain/connector"
	"github.com/erp/qbconnector/internal/domain/shared"
	"github.com/erp/qbconnector/internal/infrastructure/qbxml"
	"github.com/erp/qbconnector/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// SubmitInput is a request to queue work for a client user
type SubmitInput struct {
	Username       string
	RequestXML     string
	IdempotencyKey string
}

// SubmitResult identifies a queued task
type SubmitResult struct {
	TaskID int64
	Status connector.TaskStatus
}

// SubmissionService is the only external write path into the task queue.
type SubmissionService struct {
	tasks       connector.TaskStore
	idempotency shared.IdempotencyStore
	idemConfig  shared.IdempotencyConfig
	metrics     *telemetry.ConnectorMetrics
	logger      *zap.Logger
}

// NewSubmissionService creates a new SubmissionService. idempotency may be nil.
func NewSubmissionService(
	tasks connector.TaskStore,
	idempotency shared.IdempotencyStore,
	idemConfig shared.IdempotencyConfig,
	metrics *telemetry.ConnectorMetrics,
	logger *zap.Logger,
) *SubmissionService {
	if idemConfig.TTL <= 0 {
		idemConfig.TTL = 24 * time.Hour
	}
	return &SubmissionService{
		tasks:       tasks,
		idempotency: idempotency,
		idemConfig:  idemConfig,
		metrics:     metrics,
		logger:      logger.Named("submission"),
	}
}

// Submit validates and enqueues a request. Nothing is stored when validation fails.
func (s *SubmissionService) Submit(ctx context.Context, input SubmitInput) (*SubmitResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "submission", "submit",
		telemetry.WithAttribute(telemetry.SpanAttrUsername, input.Username),
	)
	defer span.End()

	username := strings.TrimSpace(input.Username)
	if username == "" {
		return nil, connector.ErrInvalidUsername
	}
	if err := qbxml.Validate(input.RequestXML); err != nil {
		s.logger.Info("Rejected malformed request", zap.String("username", username), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", connector.ErrInvalidPayload, err)
	}

	key := s.scopedKey(username, input.IdempotencyKey)
	if key != "" {
		fresh, err := s.idempotency.MarkProcessed(ctx, key, s.idemConfig.TTL)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, fmt.Errorf("%s: %w: %w", "check idempotency key", connector.ErrStoreUnavailable, err)
		}
		if !fresh {
			return nil, connector.ErrDuplicateSubmission
		}
	}

	id, err := s.tasks.Enqueue(ctx, username, input.RequestXML)
	if err != nil {
		telemetry.RecordError(span, err)
		if key != "" {
			if ferr := s.idempotency.Forget(ctx, key); ferr != nil {
				s.logger.Warn("Failed to release idempotency key", zap.String("key", key), zap.Error(ferr))
			}
		}
		return nil, err
	}

	s.metrics.RecordTaskSubmitted(ctx)
	telemetry.SetAttribute(span, telemetry.SpanAttrTaskID, id)
	s.logger.Info("Task queued", zap.Int64("task_id", id), zap.String("username", username))

	return &SubmitResult{TaskID: id, Status: connector.TaskStatusPending}, nil
}

// Result returns the status and response of a task
func (s *SubmissionService) Result(ctx context.Context, id int64) (*connector.TaskResult, error) {
	return s.tasks.GetResult(ctx, id)
}

// Stats returns task counts per status
func (s *SubmissionService) Stats(ctx context.Context) (map[connector.TaskStatus]int64, error) {
	return s.tasks.CountByStatus(ctx)
}

func (s *SubmissionService) scopedKey(username, key string) string {
	key = strings.TrimSpace(key)
	if key == "" || s.idempotency == nil || !s.idemConfig.Enabled {
		return ""
	}
	return "qbwc:submit:" + username + ":" + key
}
