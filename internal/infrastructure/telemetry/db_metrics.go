package telemetry

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBMetricsConfig holds configuration for database metrics collection.
type DBMetricsConfig struct {
	Enabled            bool
	SlowQueryThreshold time.Duration // default 200ms
	PoolStatsInterval  time.Duration // default 15s
}

// DefaultDBMetricsConfig returns default configuration for database metrics.
func DefaultDBMetricsConfig() DBMetricsConfig {
	return DBMetricsConfig{
		Enabled:            true,
		SlowQueryThreshold: 200 * time.Millisecond,
		PoolStatsInterval:  15 * time.Second,
	}
}

// DBMetrics holds the database instruments and the pool stats collector.
type DBMetrics struct {
	poolConnections *Gauge
	queryTotal      *Counter
	queryDuration   *Histogram
	slowQueryTotal  *Counter

	config   DBMetricsConfig
	logger   *zap.Logger
	sqlDB    *sql.DB
	stopCh   chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewDBMetrics creates the database instruments on meter.
func NewDBMetrics(meter metric.Meter, cfg DBMetricsConfig, logger *zap.Logger) (*DBMetrics, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SlowQueryThreshold == 0 {
		cfg.SlowQueryThreshold = 200 * time.Millisecond
	}
	if cfg.PoolStatsInterval == 0 {
		cfg.PoolStatsInterval = 15 * time.Second
	}

	m := &DBMetrics{config: cfg, logger: logger, stopCh: make(chan struct{})}

	var err error
	if m.poolConnections, err = NewGauge(meter, "db_pool_connections", "Number of connections in the pool by state", "{connection}"); err != nil {
		return nil, err
	}
	if m.queryTotal, err = NewCounter(meter, "db_query_total", "Total number of database queries by operation type", "{query}"); err != nil {
		return nil, err
	}
	if m.slowQueryTotal, err = NewCounter(meter, "db_slow_query_total", "Total number of slow database queries", "{query}"); err != nil {
		return nil, err
	}
	m.queryDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "db_query_duration_seconds",
		Description: "Database query latency distribution in seconds",
		Unit:        "s",
		Boundaries:  DBDurationBuckets,
	})
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordQuery records count, latency and slowness for one statement.
func (m *DBMetrics) RecordQuery(ctx context.Context, operation, table string, duration time.Duration) {
	operation = strings.ToUpper(operation)
	if operation == "" {
		operation = "UNKNOWN"
	}

	m.queryTotal.Inc(ctx, AttrDBOperation.String(operation))
	m.queryDuration.RecordDuration(ctx, duration, AttrDBOperation.String(operation))

	if duration > m.config.SlowQueryThreshold {
		if table == "" {
			table = "unknown"
		}
		m.slowQueryTotal.Inc(ctx, AttrDBTable.String(table))
	}
}

// StartPoolStatsCollection samples sql.DB pool stats until Stop is called.
func (m *DBMetrics) StartPoolStatsCollection(ctx context.Context) {
	if m.sqlDB == nil {
		m.logger.Warn("Cannot start pool stats collection: sqlDB not set")
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ticker := time.NewTicker(m.config.PoolStatsInterval)
		defer ticker.Stop()

		m.collectPoolStats(ctx)
		for {
			select {
			case <-ticker.C:
				m.collectPoolStats(ctx)
			case <-m.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (m *DBMetrics) collectPoolStats(ctx context.Context) {
	stats := m.sqlDB.Stats()
	m.poolConnections.Record(ctx, int64(stats.Idle), AttrDBState.String("idle"))
	m.poolConnections.Record(ctx, int64(stats.InUse), AttrDBState.String("in_use"))
	m.poolConnections.Record(ctx, int64(stats.OpenConnections), AttrDBState.String("open"))
	m.poolConnections.Record(ctx, int64(stats.MaxOpenConnections), AttrDBState.String("max"))
}

// Stop stops the pool stats collection goroutine. Safe to call multiple times.
func (m *DBMetrics) Stop() {
	if m == nil {
		return
	}
	m.stopOnce.Do(func() {
		close(m.stopCh)
		m.wg.Wait()
	})
}

// DBMetricsPlugin is a GORM plugin that feeds DBMetrics.
type DBMetricsPlugin struct {
	metrics *DBMetrics
}

// Name returns the plugin name.
func (p *DBMetricsPlugin) Name() string {
	return "db_metrics"
}

// Initialize registers the GORM callbacks for metrics collection.
func (p *DBMetricsPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()
	record := func(op string) func(*gorm.DB) {
		return func(db *gorm.DB) { p.record(db, op) }
	}
	hooks := []struct {
		callback callbackRegisterer
		hook     func(*gorm.DB)
		name     string
	}{
		{cb.Create().Before("gorm:create"), markMetricsStart, "db_metrics:before_create"},
		{cb.Query().Before("gorm:query"), markMetricsStart, "db_metrics:before_query"},
		{cb.Update().Before("gorm:update"), markMetricsStart, "db_metrics:before_update"},
		{cb.Delete().Before("gorm:delete"), markMetricsStart, "db_metrics:before_delete"},
		{cb.Raw().Before("gorm:raw"), markMetricsStart, "db_metrics:before_raw"},
		{cb.Create().After("gorm:create"), record("INSERT"), "db_metrics:after_create"},
		{cb.Query().After("gorm:query"), record("SELECT"), "db_metrics:after_query"},
		{cb.Update().After("gorm:update"), record("UPDATE"), "db_metrics:after_update"},
		{cb.Delete().After("gorm:delete"), record("DELETE"), "db_metrics:after_delete"},
		{cb.Raw().After("gorm:raw"), record(""), "db_metrics:after_raw"},
	}
	for _, h := range hooks {
		if err := h.callback.Register(h.name, h.hook); err != nil {
			return err
		}
	}
	return nil
}

func markMetricsStart(db *gorm.DB) {
	ctx := db.Statement.Context
	if ctx == nil {
		ctx = context.Background()
	}
	db.Statement.Context = context.WithValue(ctx, dbMetricsStartTimeKey, time.Now())
}

func (p *DBMetricsPlugin) record(db *gorm.DB, operation string) {
	ctx := db.Statement.Context
	if ctx == nil {
		ctx = context.Background()
	}
	if operation == "" {
		operation = detectOperationType(db.Statement.SQL.String())
	}

	var duration time.Duration
	if startTime, ok := ctx.Value(dbMetricsStartTimeKey).(time.Time); ok {
		duration = time.Since(startTime)
	}
	p.metrics.RecordQuery(ctx, operation, db.Statement.Table, duration)
}

func detectOperationType(sql string) string {
	sql = strings.TrimSpace(strings.ToUpper(sql))
	for _, op := range []string{"SELECT", "INSERT", "UPDATE", "DELETE"} {
		if strings.HasPrefix(sql, op) {
			return op
		}
	}
	return "OTHER"
}

type dbMetricsContextKey string

const dbMetricsStartTimeKey dbMetricsContextKey = "db_metrics_start_time"

// RegisterDBMetrics installs the metrics plugin on db. It returns nil, nil
// when metrics are disabled.
func RegisterDBMetrics(db *gorm.DB, meterProvider *MeterProvider, cfg DBMetricsConfig, logger *zap.Logger) (*DBMetrics, error) {
	if !cfg.Enabled || meterProvider == nil || !meterProvider.IsEnabled() {
		logger.Debug("Database metrics disabled, skipping registration")
		return nil, nil
	}

	metrics, err := NewDBMetrics(meterProvider.Meter("db.client"), cfg, logger)
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	metrics.sqlDB = sqlDB

	if err := db.Use(&DBMetricsPlugin{metrics: metrics}); err != nil {
		return nil, err
	}

	logger.Info("Database metrics registered",
		zap.Duration("slow_query_threshold", cfg.SlowQueryThreshold),
		zap.Duration("pool_stats_interval", cfg.PoolStatsInterval),
	)
	return metrics, nil
}
