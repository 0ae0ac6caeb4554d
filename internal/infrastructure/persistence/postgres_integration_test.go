//go:build integration

package persistence

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/erp/qbconnector/internal/domain/connector"
	"github.com/golang-migrate/migrate/v4"
	mpg "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newPostgresDB starts a PostgreSQL container and applies migrations/*.sql
func newPostgresDB(t *testing.T) *gorm.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("qbconnector_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Warning: Failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	logLevel := logger.Silent
	if os.Getenv("TEST_DB_DEBUG") != "" {
		logLevel = logger.Info
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logLevel)})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(10)
	t.Cleanup(func() { _ = sqlDB.Close() })

	runMigrations(t, sqlDB)
	return db
}

func runMigrations(t *testing.T, sqlDB *sql.DB) {
	t.Helper()

	_, filename, _, ok := runtime.Caller(0)
	require.True(t, ok)
	// internal/infrastructure/persistence -> repository root
	path := filepath.Join(filepath.Dir(filename), "..", "..", "..", "migrations")

	driver, err := mpg.WithInstance(sqlDB, &mpg.Config{})
	require.NoError(t, err)
	m, err := migrate.NewWithDatabaseInstance("file://"+path, "postgres", driver)
	require.NoError(t, err)
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		require.NoError(t, err, "Failed to run migrations")
	}
}

func TestPostgres_TaskLifecycle(t *testing.T) {
	ctx := context.Background()
	db := newPostgresDB(t)
	sessions := NewGormSessionRegistry(db)
	tasks := NewGormTaskStore(db)

	session, err := sessions.Open(ctx, "admin", "")
	require.NoError(t, err)

	id, err := tasks.Enqueue(ctx, "admin", "<CustomerQueryRq/>")
	require.NoError(t, err)

	next, err := tasks.PeekOldestPending(ctx, "admin")
	require.NoError(t, err)
	require.NotNil(t, next)
	require.Equal(t, id, next.ID)

	require.NoError(t, tasks.MarkSent(ctx, id, session.Ticket))

	done, err := tasks.Complete(ctx, session.Ticket, "<QBXML/>", false)
	require.NoError(t, err)
	require.NotNil(t, done)
	assert.Equal(t, connector.TaskStatusDone, done.Status)

	result, err := tasks.GetResult(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, connector.TaskStatusDone, result.Status)
	require.NotNil(t, result.Response)
	assert.Equal(t, "<QBXML/>", *result.Response)

	require.NoError(t, sessions.Close(ctx, session.Ticket))
	closed, err := sessions.Get(ctx, session.Ticket)
	require.NoError(t, err)
	assert.False(t, closed.IsUsable())

	counts, err := tasks.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[connector.TaskStatusDone])
}

func TestPostgres_ConcurrentClaimHasOneWinner(t *testing.T) {
	ctx := context.Background()
	db := newPostgresDB(t)
	sessions := NewGormSessionRegistry(db)
	tasks := NewGormTaskStore(db)

	id, err := tasks.Enqueue(ctx, "admin", "<ItemQueryRq/>")
	require.NoError(t, err)

	const claimers = 8
	tickets := make([]string, claimers)
	for i := range tickets {
		s, err := sessions.Open(ctx, "admin", "")
		require.NoError(t, err)
		tickets[i] = s.Ticket
	}

	var (
		wg      sync.WaitGroup
		wins    atomic.Int32
		losses  atomic.Int32
		start   = make(chan struct{})
		errsMu  sync.Mutex
		unknown []error
	)
	for _, ticket := range tickets {
		wg.Add(1)
		go func(ticket string) {
			defer wg.Done()
			<-start
			err := tasks.MarkSent(ctx, id, ticket)
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, connector.ErrTaskAlreadyClaimed):
				losses.Add(1)
			default:
				errsMu.Lock()
				unknown = append(unknown, err)
				errsMu.Unlock()
			}
		}(ticket)
	}
	close(start)
	wg.Wait()

	assert.Empty(t, unknown)
	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(claimers-1), losses.Load())
}

func TestPostgres_RequeueSent(t *testing.T) {
	ctx := context.Background()
	db := newPostgresDB(t)
	sessions := NewGormSessionRegistry(db)
	tasks := NewGormTaskStore(db)

	session, err := sessions.Open(ctx, "admin", "")
	require.NoError(t, err)
	id, err := tasks.Enqueue(ctx, "admin", "<VendorQueryRq/>")
	require.NoError(t, err)
	require.NoError(t, tasks.MarkSent(ctx, id, session.Ticket))

	n, err := tasks.RequeueSent(ctx, session.Ticket)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	next, err := tasks.PeekOldestPending(ctx, "admin")
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, id, next.ID)
	assert.Empty(t, next.Ticket)
}

func TestPostgres_FindStale(t *testing.T) {
	ctx := context.Background()
	db := newPostgresDB(t)
	sessions := NewGormSessionRegistry(db)

	session, err := sessions.Open(ctx, "admin", "")
	require.NoError(t, err)

	stale, err := sessions.FindStale(ctx, time.Now().Add(time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, session.Ticket, stale[0].Ticket)

	fresh, err := sessions.FindStale(ctx, time.Now().Add(-time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, fresh)
}
