package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/erp/qbconnector/internal/domain/connector"
	"github.com/erp/qbconnector/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormTaskStore implements connector.TaskStore using GORM.
// Every status change is a single conditional UPDATE guarded on the current status,
// so concurrent callers can never both win the same transition.
type GormTaskStore struct {
	db *gorm.DB
}

// NewGormTaskStore creates a new GormTaskStore
func NewGormTaskStore(db *gorm.DB) *GormTaskStore {
	return &GormTaskStore{db: db}
}

// WithTx returns a new store instance with the given transaction
func (s *GormTaskStore) WithTx(tx *gorm.DB) *GormTaskStore {
	return &GormTaskStore{db: tx}
}

// Enqueue inserts a pending task and returns its id
func (s *GormTaskStore) Enqueue(ctx context.Context, username, request string) (int64, error) {
	model := models.TaskModelFromDomain(connector.NewTask(username, request))
	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		return 0, storeError("enqueue task", err)
	}
	return model.ID, nil
}

// PeekOldestPending returns the lowest-id pending task for username without changing it
func (s *GormTaskStore) PeekOldestPending(ctx context.Context, username string) (*connector.Task, error) {
	var model models.TaskModel
	err := s.db.WithContext(ctx).
		Where("username = ? AND status = ?", username, connector.TaskStatusPending).
		Order("id ASC").
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, storeError("peek pending task", err)
	}
	return model.ToDomain(), nil
}

// MarkSent claims a pending task for ticket
func (s *GormTaskStore) MarkSent(ctx context.Context, id int64, ticket string) error {
	result := s.db.WithContext(ctx).
		Model(&models.TaskModel{}).
		Where("id = ? AND status = ?", id, connector.TaskStatusPending).
		Updates(map[string]any{
			"status":     connector.TaskStatusSent,
			"ticket":     ticket,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return storeError("mark task sent", result.Error)
	}
	if result.RowsAffected == 0 {
		return connector.ErrTaskAlreadyClaimed
	}
	return nil
}

// Complete stores the reply on the task the ticket currently holds
func (s *GormTaskStore) Complete(ctx context.Context, ticket, response string, isError bool) (*connector.Task, error) {
	var model models.TaskModel
	err := s.db.WithContext(ctx).
		Where("ticket = ? AND status = ?", ticket, connector.TaskStatusSent).
		Order("updated_at DESC").
		Order("id DESC").
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, storeError("find sent task", err)
	}

	status := connector.StatusFor(isError)
	now := time.Now()
	result := s.db.WithContext(ctx).
		Model(&models.TaskModel{}).
		Where("id = ? AND status = ?", model.ID, connector.TaskStatusSent).
		Updates(map[string]any{
			"status":       status,
			"response_xml": response,
			"updated_at":   now,
		})
	if result.Error != nil {
		return nil, storeError("complete task", result.Error)
	}
	if result.RowsAffected == 0 {
		// a duplicate reply finished it first
		return nil, nil
	}

	task := model.ToDomain()
	task.Status = status
	task.Response = &response
	task.UpdatedAt = now
	return task, nil
}

// GetResult returns the status and response of a task
func (s *GormTaskStore) GetResult(ctx context.Context, id int64) (*connector.TaskResult, error) {
	var model models.TaskModel
	err := s.db.WithContext(ctx).
		Select("id", "username", "status", "response_xml").
		Where("id = ?", id).
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, connector.ErrTaskNotFound
		}
		return nil, storeError("get task result", err)
	}
	return model.ToDomain().Result(), nil
}

// RequeueSent returns every task held by ticket to the pending queue
func (s *GormTaskStore) RequeueSent(ctx context.Context, ticket string) (int64, error) {
	result := s.db.WithContext(ctx).
		Model(&models.TaskModel{}).
		Where("ticket = ? AND status = ?", ticket, connector.TaskStatusSent).
		Updates(map[string]any{
			"status":     connector.TaskStatusPending,
			"ticket":     nil,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return 0, storeError("requeue sent tasks", result.Error)
	}
	return result.RowsAffected, nil
}

type statusCount struct {
	Status connector.TaskStatus
	Count  int64
}

// CountByStatus returns the number of tasks per status
func (s *GormTaskStore) CountByStatus(ctx context.Context) (map[connector.TaskStatus]int64, error) {
	var rows []statusCount
	err := s.db.WithContext(ctx).
		Model(&models.TaskModel{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, storeError("count tasks", err)
	}
	counts := make(map[connector.TaskStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

var _ connector.TaskStore = (*GormTaskStore)(nil)
