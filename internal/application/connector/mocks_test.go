package connector

import (
	"context"
	"testing"
	"time"

	"github.com/erp/qbconnector/internal/domain/connector"
	"github.com/erp/qbconnector/internal/infrastructure/persistence"
	"github.com/erp/qbconnector/internal/infrastructure/persistence/models"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// MockSessionRegistry is a mock implementation of connector.SessionRegistry
type MockSessionRegistry struct {
	mock.Mock
}

func (m *MockSessionRegistry) Open(ctx context.Context, username, targetFile string) (*connector.Session, error) {
	args := m.Called(ctx, username, targetFile)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*connector.Session), args.Error(1)
}

func (m *MockSessionRegistry) Get(ctx context.Context, ticket string) (*connector.Session, error) {
	args := m.Called(ctx, ticket)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*connector.Session), args.Error(1)
}

func (m *MockSessionRegistry) Touch(ctx context.Context, ticket string) error {
	return m.Called(ctx, ticket).Error(0)
}

func (m *MockSessionRegistry) Close(ctx context.Context, ticket string) error {
	return m.Called(ctx, ticket).Error(0)
}

func (m *MockSessionRegistry) SetInteractive(ctx context.Context, ticket, url string, status connector.InteractiveStatus) error {
	return m.Called(ctx, ticket, url, status).Error(0)
}

func (m *MockSessionRegistry) FindStale(ctx context.Context, idleSince time.Time, limit int) ([]connector.Session, error) {
	args := m.Called(ctx, idleSince, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]connector.Session), args.Error(1)
}

func (m *MockSessionRegistry) Count(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// MockTaskStore is a mock implementation of connector.TaskStore
type MockTaskStore struct {
	mock.Mock
}

func (m *MockTaskStore) Enqueue(ctx context.Context, username, request string) (int64, error) {
	args := m.Called(ctx, username, request)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockTaskStore) PeekOldestPending(ctx context.Context, username string) (*connector.Task, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*connector.Task), args.Error(1)
}

func (m *MockTaskStore) MarkSent(ctx context.Context, id int64, ticket string) error {
	return m.Called(ctx, id, ticket).Error(0)
}

func (m *MockTaskStore) Complete(ctx context.Context, ticket, response string, isError bool) (*connector.Task, error) {
	args := m.Called(ctx, ticket, response, isError)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*connector.Task), args.Error(1)
}

func (m *MockTaskStore) GetResult(ctx context.Context, id int64) (*connector.TaskResult, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*connector.TaskResult), args.Error(1)
}

func (m *MockTaskStore) RequeueSent(ctx context.Context, ticket string) (int64, error) {
	args := m.Called(ctx, ticket)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockTaskStore) CountByStatus(ctx context.Context) (map[connector.TaskStatus]int64, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[connector.TaskStatus]int64), args.Error(1)
}

// MockIdempotencyStore is a mock implementation of shared.IdempotencyStore
type MockIdempotencyStore struct {
	mock.Mock
}

func (m *MockIdempotencyStore) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, key, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *MockIdempotencyStore) IsProcessed(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func (m *MockIdempotencyStore) Forget(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func (m *MockIdempotencyStore) Close() error {
	return m.Called().Error(0)
}

func activeSession(ticket, username string) *connector.Session {
	now := time.Now()
	return &connector.Session{
		Ticket:     ticket,
		Username:   username,
		State:      connector.SessionStateActive,
		CreatedAt:  now,
		LastSeenAt: now,
	}
}

func closedSession(ticket, username string) *connector.Session {
	s := activeSession(ticket, username)
	_ = s.Close(time.Now())
	return s
}

// stores bundles sqlite-backed adapters for scenario tests
type stores struct {
	db       *gorm.DB
	sessions *persistence.GormSessionRegistry
	tasks    *persistence.GormTaskStore
}

func newSQLiteStores(t *testing.T) *stores {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.AllModels()...))
	return &stores{
		db:       db,
		sessions: persistence.NewGormSessionRegistry(db),
		tasks:    persistence.NewGormTaskStore(db),
	}
}
