package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type widgetModel struct {
	ID   uint   `gorm:"primaryKey"`
	Name string `gorm:"size:100"`
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&widgetModel{}))
	return db
}

func TestDefaultDBTracingConfig(t *testing.T) {
	cfg := DefaultDBTracingConfig()
	assert.False(t, cfg.Enabled)
	assert.False(t, cfg.LogFullSQL)
	assert.Equal(t, 200*time.Millisecond, cfg.SlowQueryThresh)
	assert.Equal(t, "sqlite", cfg.DBSystem)
}

func TestDBTracingPlugin_Disabled(t *testing.T) {
	db := setupTestDB(t)
	p := NewDBTracingPlugin(DBTracingConfig{}, zap.NewNop())
	require.NoError(t, p.RegisterOtelGorm(db))

	// disabled plugin leaves the callback chain untouched
	assert.Nil(t, db.Callback().Query().Get("otel_slow_query:query"))
}

func TestDBTracingPlugin_AnnotatesSpans(t *testing.T) {
	db := setupTestDB(t)
	p := NewDBTracingPlugin(DBTracingConfig{Enabled: true, DBSystem: "sqlite", SlowQueryThresh: time.Nanosecond}, zap.NewNop())
	require.NoError(t, p.RegisterOtelGorm(db))
	assert.NotNil(t, db.Callback().Query().Get("otel_slow_query:query"))

	tp, sr := newTestTracer(t)
	ctx, span := tp.Tracer("test").Start(context.Background(), "parent")
	require.NoError(t, db.WithContext(ctx).Create(&widgetModel{Name: "a"}).Error)
	span.End()

	var table, slow bool
	for _, s := range sr.Ended() {
		for _, kv := range s.Attributes() {
			if kv == attribute.String("db.sql.table", "widget_models") {
				table = true
			}
			if kv == attribute.Bool("db.slow_query", true) {
				slow = true
			}
		}
	}
	assert.True(t, table, "table attribute recorded")
	assert.True(t, slow, "slow query flagged with 1ns threshold")
}

func TestDBTracingPlugin_DoubleRegistration(t *testing.T) {
	db := setupTestDB(t)
	p := NewDBTracingPlugin(DBTracingConfig{Enabled: true}, zap.NewNop())
	require.NoError(t, p.RegisterOtelGorm(db))
	assert.Error(t, p.RegisterOtelGorm(db))
}

func TestWithQueryStartTime(t *testing.T) {
	ctx := WithQueryStartTime(context.Background())
	start, ok := ctx.Value(queryStartTimeKey).(time.Time)
	require.True(t, ok)
	assert.WithinDuration(t, time.Now(), start, time.Second)
}
