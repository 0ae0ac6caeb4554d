package logger

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func TestNew(t *testing.T) {
	t.Run("console config", func(t *testing.T) {
		l, err := New(DefaultConfig())
		require.NoError(t, err)
		assert.NotNil(t, l)
	})

	t.Run("file output", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "qbwc.log")
		l, err := New(&Config{Level: "debug", Format: "json", Output: path})
		require.NoError(t, err)

		l.Info("session opened", zap.String("username", "admin"))
		_ = l.Sync()

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"msg":"session opened"`)
		assert.Contains(t, string(data), `"username":"admin"`)
	})

	t.Run("extra cores receive entries", func(t *testing.T) {
		core, recorded := observer.New(zapcore.InfoLevel)
		l, err := New(&Config{Level: "error", Format: "json", Output: "stderr"}, core)
		require.NoError(t, err)

		l.Info("bridged")
		assert.Equal(t, 1, recorded.FilterMessage("bridged").Len())
	})
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, ParseLevel("WARNING"))
	assert.Equal(t, zapcore.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("nonsense"))
}

func TestForContext(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	base := zap.New(core)

	ctx, _ := WithRequestID(context.Background(), base, "req-1")
	ctx, _ = WithTicket(ctx, base, "ticket-1")

	assert.Equal(t, "req-1", GetRequestID(ctx))
	assert.Equal(t, "ticket-1", GetTicket(ctx))
	assert.Empty(t, GetTraceID(ctx))

	ForContext(ctx, base).Info("claimed")

	entries := recorded.FilterMessage("claimed").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "ticket-1", fields["ticket"])
	assert.NotContains(t, fields, "trace_id")
}

func TestForContext_WithSpan(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	tp := sdktrace.NewTracerProvider()
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	ForContext(ctx, zap.New(core)).Info("traced")

	fields := recorded.FilterMessage("traced").All()[0].ContextMap()
	assert.Equal(t, span.SpanContext().TraceID().String(), fields["trace_id"])
	assert.Equal(t, span.SpanContext().TraceID().String(), GetTraceID(ctx))
	assert.NotPanics(t, func() { ForContext(context.Background(), nil).Info("nop") })
}

func TestGormLogger(t *testing.T) {
	t.Run("record not found is silent", func(t *testing.T) {
		core, recorded := observer.New(zapcore.DebugLevel)
		gl := NewGormLogger(zap.New(core), gormlogger.Info)

		gl.Trace(context.Background(), time.Now(), func() (string, int64) {
			return `SELECT * FROM "tasks"`, 0
		}, gormlogger.ErrRecordNotFound)

		assert.Zero(t, recorded.Len())
	})

	t.Run("slow query warns", func(t *testing.T) {
		core, recorded := observer.New(zapcore.DebugLevel)
		gl := NewGormLogger(zap.New(core), gormlogger.Warn, WithSlowThreshold(time.Millisecond))

		gl.Trace(context.Background(), time.Now().Add(-time.Second), func() (string, int64) {
			return `UPDATE "tasks" SET status='sent'`, 1
		}, nil)

		require.Equal(t, 1, recorded.Len())
		assert.Equal(t, zapcore.WarnLevel, recorded.All()[0].Level)
	})

	t.Run("silent mode logs nothing", func(t *testing.T) {
		core, recorded := observer.New(zapcore.DebugLevel)
		gl := NewGormLogger(zap.New(core), gormlogger.Info).LogMode(gormlogger.Silent)

		gl.Trace(context.Background(), time.Now(), func() (string, int64) { return "SELECT 1", 1 }, assert.AnError)
		assert.Zero(t, recorded.Len())
	})
}

func TestMapGormLogLevel(t *testing.T) {
	assert.Equal(t, gormlogger.Silent, MapGormLogLevel("silent"))
	assert.Equal(t, gormlogger.Info, MapGormLogLevel("debug"))
	assert.Equal(t, gormlogger.Warn, MapGormLogLevel(""))
}
