package cache

import (
	"fmt"

	"github.com/erp/qbconnector/internal/domain/shared"
	"github.com/erp/qbconnector/internal/infrastructure/config"
	"go.uber.org/zap"
)

// IdempotencyStoreFactory creates idempotency stores based on configuration
type IdempotencyStoreFactory struct {
	redisConfig           config.RedisConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
	connect               func(RedisConfig) (shared.IdempotencyStore, error)
}

// IdempotencyStoreFactoryOption is a functional option for configuring the factory
type IdempotencyStoreFactoryOption func(*IdempotencyStoreFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) IdempotencyStoreFactoryOption {
	return func(f *IdempotencyStoreFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether an unreachable Redis degrades to the
// in-memory store. Default is true.
func WithInMemoryFallback(allow bool) IdempotencyStoreFactoryOption {
	return func(f *IdempotencyStoreFactory) {
		f.allowInMemoryFallback = allow
	}
}

// NewIdempotencyStoreFactory creates a new factory
func NewIdempotencyStoreFactory(cfg config.RedisConfig, opts ...IdempotencyStoreFactoryOption) *IdempotencyStoreFactory {
	f := &IdempotencyStoreFactory{
		redisConfig:           cfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
		connect: func(c RedisConfig) (shared.IdempotencyStore, error) {
			return NewRedisIdempotencyStore(c)
		},
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// CreateRedisStore creates a Redis-based idempotency store
func (f *IdempotencyStoreFactory) CreateRedisStore() (shared.IdempotencyStore, error) {
	store, err := f.connect(RedisConfig{
		Host:     f.redisConfig.Host,
		Port:     f.redisConfig.Port,
		Password: f.redisConfig.Password,
		DB:       f.redisConfig.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Redis idempotency store: %w", err)
	}
	return store, nil
}

// CreateInMemoryStore creates an in-memory idempotency store.
// Keys are not shared across instances.
func (f *IdempotencyStoreFactory) CreateInMemoryStore() shared.IdempotencyStore {
	return NewInMemoryIdempotencyStore()
}

// CreateStore builds the store selected by cfg. With UseRedis it tries Redis
// first and falls back to memory when allowed.
func (f *IdempotencyStoreFactory) CreateStore(cfg config.IdempotencyConfig) (shared.IdempotencyStore, error) {
	if !cfg.UseRedis {
		f.logger.Info("using in-memory idempotency store")
		return f.CreateInMemoryStore(), nil
	}

	store, err := f.CreateRedisStore()
	if err == nil {
		f.logger.Info("using Redis idempotency store",
			zap.String("host", f.redisConfig.Host),
			zap.Int("port", f.redisConfig.Port),
		)
		return store, nil
	}

	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("redis required for idempotency but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory idempotency store; "+
		"duplicate submissions across instances will not be detected",
		zap.Error(err),
	)
	return f.CreateInMemoryStore(), nil
}
