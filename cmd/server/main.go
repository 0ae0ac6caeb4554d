package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	appconnector "github.com/erp/qbconnector/internal/application/connector"
	"github.com/erp/qbconnector/internal/domain/shared"
	"github.com/erp/qbconnector/internal/infrastructure/auth"
	"github.com/erp/qbconnector/internal/infrastructure/cache"
	"github.com/erp/qbconnector/internal/infrastructure/config"
	"github.com/erp/qbconnector/internal/infrastructure/logger"
	"github.com/erp/qbconnector/internal/infrastructure/persistence"
	"github.com/erp/qbconnector/internal/infrastructure/qbxml"
	"github.com/erp/qbconnector/internal/infrastructure/telemetry"
	"github.com/erp/qbconnector/internal/interfaces/http/handler"
	"github.com/erp/qbconnector/internal/interfaces/http/middleware"
	"github.com/erp/qbconnector/internal/interfaces/http/router"
	"github.com/erp/qbconnector/internal/interfaces/soap"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const logTimeFormat = "2006-01-02T15:04:05.000Z07:00"

func main() {
	// A missing .env is normal outside development
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	logCfg := &logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: logTimeFormat,
	}
	bootLog, err := logger.New(logCfg)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	ctx := context.Background()

	// Telemetry providers are no-ops unless telemetry.enabled is set
	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, bootLog)
	if err != nil {
		bootLog.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, bootLog)
	if err != nil {
		bootLog.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	loggerProvider, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, bootLog)
	if err != nil {
		bootLog.Fatal("Failed to initialize logger provider", zap.Error(err))
	}

	log, err := logger.New(logCfg, telemetry.NewZapOTELCore(telemetry.ZapBridgeConfig{
		ServiceName:    cfg.Telemetry.ServiceName,
		LoggerProvider: loggerProvider,
		Level:          logger.ParseLevel(cfg.Log.Level),
	}))
	if err != nil {
		bootLog.Fatal("Failed to initialize logger", zap.Error(err))
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting QuickBooks Web Connector service",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("database", cfg.Database.Driver),
	)

	// Create GORM logger backed by zap
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh))

	db, err := persistence.NewDatabaseWithCustomLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	if cfg.Database.AutoMigrate {
		if err := db.AutoMigrate(); err != nil {
			log.Fatal("Failed to migrate database schema", zap.Error(err))
		}
	}
	log.Info("Database connected successfully")

	dbTracingCfg := telemetry.DefaultDBTracingConfig()
	dbTracingCfg.Enabled = cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled
	dbTracingCfg.LogFullSQL = cfg.Telemetry.DBLogFullSQL
	if cfg.Telemetry.DBSlowQueryThresh > 0 {
		dbTracingCfg.SlowQueryThresh = cfg.Telemetry.DBSlowQueryThresh
	}
	if cfg.Database.Driver == config.DriverPostgres {
		dbTracingCfg.DBSystem = "postgresql"
	}
	if err := telemetry.NewDBTracingPlugin(dbTracingCfg, log).RegisterOtelGorm(db.DB); err != nil {
		log.Warn("Failed to register database tracing", zap.Error(err))
	}

	dbMetricsCfg := telemetry.DefaultDBMetricsConfig()
	dbMetricsCfg.Enabled = cfg.Telemetry.Enabled
	if cfg.Telemetry.DBSlowQueryThresh > 0 {
		dbMetricsCfg.SlowQueryThreshold = cfg.Telemetry.DBSlowQueryThresh
	}
	dbMetrics, err := telemetry.RegisterDBMetrics(db.DB, meterProvider, dbMetricsCfg, log)
	if err != nil {
		log.Warn("Failed to register database metrics", zap.Error(err))
	}

	// Stores
	sessions := persistence.NewGormSessionRegistry(db.DB)
	tasks := persistence.NewGormTaskStore(db.DB)

	idemStore, err := cache.NewIdempotencyStoreFactory(cfg.Redis, cache.WithLogger(log)).
		CreateStore(cfg.Idempotency)
	if err != nil {
		log.Fatal("Failed to create idempotency store", zap.Error(err))
	}

	connectorMetrics, err := telemetry.NewConnectorMetrics(telemetry.ConnectorMetricsConfig{
		Meter:           meterProvider.Meter(telemetry.TracerName),
		Logger:          log,
		QueueProvider:   tasks,
		SessionProvider: sessions,
	})
	if err != nil {
		log.Fatal("Failed to register connector metrics", zap.Error(err))
	}

	// Application services
	dispatcher := appconnector.NewQueueDispatcher(sessions, tasks, cfg.Connector.MaxClaimAttempts, connectorMetrics, log)
	engine := appconnector.NewProtocolEngine(
		sessions,
		tasks,
		dispatcher,
		appconnector.Credentials{
			Username:     cfg.Connector.Username,
			Password:     cfg.Connector.Password,
			PasswordHash: cfg.Connector.PasswordHash,
		},
		appconnector.EngineConfig{
			CompanyFile:      cfg.Connector.CompanyFile,
			MinClientVersion: cfg.Connector.MinClientVersion,
			SeedRequest:      cfg.Connector.SeedRequest,
			InteractiveURL:   cfg.Connector.InteractiveURL,
			Envelope: qbxml.Options{
				Version: cfg.Connector.QBXMLVersion,
				OnError: cfg.Connector.OnError,
			},
			RequeueOnError: cfg.Connector.RequeueOnError,
			LastErrorTTL:   cfg.Connector.StaleAfter,
		},
		connectorMetrics,
		log,
	)
	idemCfg := shared.DefaultIdempotencyConfig()
	idemCfg.Enabled = cfg.Idempotency.Enabled
	if cfg.Idempotency.TTL > 0 {
		idemCfg.TTL = cfg.Idempotency.TTL
	}
	submissions := appconnector.NewSubmissionService(
		tasks,
		idemStore,
		idemCfg,
		connectorMetrics,
		log,
	)
	sweeper := appconnector.NewSessionSweeper(sessions, tasks, engine, appconnector.SweeperConfig{
		Interval:       cfg.Connector.SweepInterval,
		StaleAfter:     cfg.Connector.StaleAfter,
		RequeueOnError: cfg.Connector.RequeueOnError,
	}, connectorMetrics, log)

	bgCtx, stopBackground := context.WithCancel(ctx)
	defer stopBackground()
	if err := sweeper.Start(bgCtx); err != nil {
		log.Fatal("Failed to start session sweeper", zap.Error(err))
	}
	connectorMetrics.StartPeriodicCollection(bgCtx, 30*time.Second)
	if dbMetrics != nil {
		dbMetrics.StartPoolStatsCollection(bgCtx)
	}

	// Set Gin mode based on environment
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	ginEngine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := ginEngine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	// Middleware order: request id and logging first so panics and spans carry them
	ginEngine.Use(middleware.RequestID())
	ginEngine.Use(logger.GinMiddleware(log))
	ginEngine.Use(logger.Recovery(log))
	ginEngine.Use(middleware.TracingWithConfig(middleware.TracingConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		Enabled:     cfg.Telemetry.Enabled,
	}))
	ginEngine.Use(middleware.SpanErrorMarker())
	ginEngine.Use(middleware.HTTPMetrics(middleware.HTTPMetricsConfig{
		MeterProvider: meterProvider,
		Enabled:       cfg.Telemetry.Enabled,
	}))
	ginEngine.Use(middleware.SecureWithConfig(middleware.DefaultSecurityConfig()))
	ginEngine.Use(middleware.CORSWithConfig(middleware.CORSConfigFromHTTP(cfg.HTTP)))
	ginEngine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	jwtService := auth.NewJWTService(cfg.API)
	if !jwtService.Enabled() {
		log.Warn("api.jwt_secret is empty; task endpoints accept unauthenticated requests")
	}
	apiMiddleware := []gin.HandlerFunc{
		middleware.JWTAuthMiddlewareWithConfig(middleware.DefaultJWTConfig(jwtService, log)),
	}
	if cfg.HTTP.RateLimit > 0 {
		limiter := middleware.NewRateLimiter(cfg.HTTP.RateLimit, cfg.HTTP.RateLimitWindow)
		defer limiter.Stop()
		apiMiddleware = append(apiMiddleware, middleware.RateLimit(limiter))
		log.Info("Rate limiting enabled",
			zap.Int("requests", cfg.HTTP.RateLimit),
			zap.Duration("window", cfg.HTTP.RateLimitWindow),
		)
	}

	soapHandler := soap.NewHandler(engine, cfg.Connector.PublicURL, log)
	taskHandler := handler.NewTaskHandler(submissions, cfg.Connector.Username, log)
	qwcHandler := handler.NewQWCHandler(cfg.Connector, log)
	systemHandler := handler.NewSystemHandler(cfg.App.Name, db, submissions, sessions)

	router.NewRouter(ginEngine, router.WithAPIVersion("v1"), router.WithAPIMiddleware(apiMiddleware...)).
		Register(taskHandler).
		Register(qwcHandler).
		Register(systemHandler).
		Mount(soapHandler.Register).
		Mount(taskHandler.RegisterLegacyRoutes, apiMiddleware...).
		Mount(qwcHandler.RegisterLegacyRoutes).
		Mount(func(r gin.IRoutes) {
			r.GET("/health", systemHandler.Health)
		}).
		Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        ginEngine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	stopBackground()
	if err := sweeper.Stop(shutdownCtx); err != nil {
		log.Warn("Session sweeper did not stop cleanly", zap.Error(err))
	}
	connectorMetrics.Stop()
	if dbMetrics != nil {
		dbMetrics.Stop()
	}

	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Warn("Tracer provider shutdown failed", zap.Error(err))
	}
	if err := meterProvider.Shutdown(shutdownCtx); err != nil {
		log.Warn("Meter provider shutdown failed", zap.Error(err))
	}
	if err := loggerProvider.Shutdown(shutdownCtx); err != nil {
		log.Warn("Logger provider shutdown failed", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}
