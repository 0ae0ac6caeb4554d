package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Supported database drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds all application configuration
type Config struct {
	App         AppConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	API         APIConfig
	Log         LogConfig
	HTTP        HTTPConfig
	Connector   ConnectorConfig
	Idempotency IdempotencyConfig
	Telemetry   TelemetryConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver          string // sqlite or postgres
	Path            string // sqlite file path
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
	AutoMigrate     bool
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// APIConfig holds settings for the REST submission API
type APIConfig struct {
	JWTSecret string // empty disables bearer auth on task endpoints
	JWTIssuer string
	TokenTTL  time.Duration
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	MaxHeaderBytes   int
	MaxBodySize      int64
	CORSAllowOrigins []string
	CORSAllowMethods []string
	CORSAllowHeaders []string
	TrustedProxies   []string
	RateLimit        int // task submissions per RateLimitWindow per caller; 0 disables
	RateLimitWindow  time.Duration
}

// ConnectorConfig holds the Web Connector protocol settings
type ConnectorConfig struct {
	Username         string
	Password         string
	PasswordHash     string // bcrypt hash, preferred over Password when set
	CompanyFile      string // empty means "use the file currently open"
	AppName          string
	AppDescription   string
	AppSupportURL    string
	PublicURL        string // externally reachable SOAP endpoint written into the .qwc file
	RunEveryNSeconds int
	MinClientVersion string
	SeedRequest      string // qbXML fragment queued after each successful authenticate; empty disables
	InteractiveURL   string
	QBXMLVersion     string
	OnError          string // stopOnError or continueOnError
	StaleAfter       time.Duration
	SweepInterval    time.Duration // 0 disables the stale session sweeper
	RequeueOnError   bool          // return tasks held by errored or stale sessions to the queue
	MaxClaimAttempts int
}

// IdempotencyConfig holds submission de-duplication settings
type IdempotencyConfig struct {
	Enabled  bool
	TTL      time.Duration
	UseRedis bool
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable OpenTelemetry
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string  // Service name for traces
	Insecure          bool    // Use insecure (non-TLS) connection (development only)
	DBTraceEnabled    bool    // Enable database query tracing (otelgorm)
	DBLogFullSQL      bool    // Log full SQL statements (dev only)
	DBSlowQueryThresh time.Duration
}

// legacyEnv maps config keys to the environment variable names used by
// existing receiver deployments.
var legacyEnv = map[string]string{
	"connector.username":     "QBWC_USERNAME",
	"connector.password":     "QBWC_PASSWORD",
	"connector.company_file": "QB_COMPANY_FILE",
	"connector.app_name":     "QB_APP_NAME",
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with QBWC_ prefix (e.g., QBWC_DATABASE_DRIVER)
// 2. Legacy variables (QBWC_USERNAME, QBWC_PASSWORD, QB_COMPANY_FILE, QB_APP_NAME)
// 3. config.toml
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/qbconnector")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("QBWC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		prefixed := "QBWC_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, env); err != nil {
			return nil, fmt.Errorf("binding %s: %w", env, err)
		}
	}

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Driver:          v.GetString("database.driver"),
			Path:            v.GetString("database.path"),
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
			AutoMigrate:     v.GetBool("database.auto_migrate"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		API: APIConfig{
			JWTSecret: v.GetString("api.jwt_secret"),
			JWTIssuer: v.GetString("api.jwt_issuer"),
			TokenTTL:  v.GetDuration("api.token_ttl"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:      v.GetDuration("http.read_timeout"),
			WriteTimeout:     v.GetDuration("http.write_timeout"),
			IdleTimeout:      v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:   v.GetInt("http.max_header_bytes"),
			MaxBodySize:      v.GetInt64("http.max_body_size"),
			CORSAllowOrigins: v.GetStringSlice("http.cors_allow_origins"),
			CORSAllowMethods: v.GetStringSlice("http.cors_allow_methods"),
			CORSAllowHeaders: v.GetStringSlice("http.cors_allow_headers"),
			TrustedProxies:   v.GetStringSlice("http.trusted_proxies"),
			RateLimit:        v.GetInt("http.rate_limit"),
			RateLimitWindow:  v.GetDuration("http.rate_limit_window"),
		},
		Connector: ConnectorConfig{
			Username:         v.GetString("connector.username"),
			Password:         v.GetString("connector.password"),
			PasswordHash:     v.GetString("connector.password_hash"),
			CompanyFile:      v.GetString("connector.company_file"),
			AppName:          v.GetString("connector.app_name"),
			AppDescription:   v.GetString("connector.app_description"),
			AppSupportURL:    v.GetString("connector.app_support_url"),
			PublicURL:        v.GetString("connector.public_url"),
			RunEveryNSeconds: v.GetInt("connector.run_every_n_seconds"),
			MinClientVersion: v.GetString("connector.min_client_version"),
			SeedRequest:      v.GetString("connector.seed_request"),
			InteractiveURL:   v.GetString("connector.interactive_url"),
			QBXMLVersion:     v.GetString("connector.qbxml_version"),
			OnError:          v.GetString("connector.on_error"),
			StaleAfter:       v.GetDuration("connector.stale_after"),
			SweepInterval:    v.GetDuration("connector.sweep_interval"),
			RequeueOnError:   v.GetBool("connector.requeue_on_error"),
			MaxClaimAttempts: v.GetInt("connector.max_claim_attempts"),
		},
		Idempotency: IdempotencyConfig{
			Enabled:  v.GetBool("idempotency.enabled"),
			TTL:      v.GetDuration("idempotency.ttl"),
			UseRedis: v.GetBool("idempotency.use_redis"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			DBLogFullSQL:      v.GetBool("telemetry.db_log_full_sql"),
			DBSlowQueryThresh: v.GetDuration("telemetry.db_slow_query_threshold"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "qbconnector"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8000"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = DriverSQLite
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "qbwc.db"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "qbconnector"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.API.JWTIssuer == "" {
		cfg.API.JWTIssuer = "qbconnector"
	}
	if cfg.API.TokenTTL == 0 {
		cfg.API.TokenTTL = 24 * time.Hour
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.RateLimitWindow == 0 {
		cfg.HTTP.RateLimitWindow = time.Minute
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 10 << 20 // 10MB, qbXML query responses can be large
	}
	if len(cfg.HTTP.CORSAllowOrigins) == 0 {
		cfg.HTTP.CORSAllowOrigins = []string{"*"}
	}
	if len(cfg.HTTP.CORSAllowMethods) == 0 {
		cfg.HTTP.CORSAllowMethods = []string{"GET", "POST", "OPTIONS"}
	}
	if len(cfg.HTTP.CORSAllowHeaders) == 0 {
		cfg.HTTP.CORSAllowHeaders = []string{"Content-Type", "Authorization", "X-Request-ID", "Idempotency-Key", "SOAPAction"}
	}
	if cfg.Connector.Username == "" {
		cfg.Connector.Username = "admin"
	}
	if cfg.Connector.Password == "" && cfg.Connector.PasswordHash == "" {
		cfg.Connector.Password = "password"
	}
	if cfg.Connector.AppName == "" {
		cfg.Connector.AppName = "MyQBWCApp"
	}
	if cfg.Connector.AppDescription == "" {
		cfg.Connector.AppDescription = "QuickBooks Web Connector bridge"
	}
	if cfg.Connector.RunEveryNSeconds == 0 {
		cfg.Connector.RunEveryNSeconds = 60
	}
	if cfg.Connector.InteractiveURL == "" {
		cfg.Connector.InteractiveURL = "http://localhost:8000/interactive"
	}
	if cfg.Connector.QBXMLVersion == "" {
		cfg.Connector.QBXMLVersion = "13.0"
	}
	if cfg.Connector.OnError == "" {
		cfg.Connector.OnError = "stopOnError"
	}
	if cfg.Connector.StaleAfter == 0 {
		cfg.Connector.StaleAfter = 30 * time.Minute
	}
	if cfg.Connector.MaxClaimAttempts == 0 {
		cfg.Connector.MaxClaimAttempts = 8
	}
	if cfg.Idempotency.TTL == 0 {
		cfg.Idempotency.TTL = 24 * time.Hour
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = cfg.App.Name
	}
	if cfg.Telemetry.DBSlowQueryThresh == 0 {
		cfg.Telemetry.DBSlowQueryThresh = 200 * time.Millisecond
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("database.driver must be %q or %q, got %q", DriverSQLite, DriverPostgres, c.Database.Driver)
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	if c.Connector.OnError != "stopOnError" && c.Connector.OnError != "continueOnError" {
		return fmt.Errorf("connector.on_error must be stopOnError or continueOnError, got %q", c.Connector.OnError)
	}
	if c.Connector.RunEveryNSeconds < 0 {
		return fmt.Errorf("connector.run_every_n_seconds cannot be negative")
	}
	if c.Connector.MaxClaimAttempts < 1 {
		return fmt.Errorf("connector.max_claim_attempts must be at least 1")
	}
	if c.Connector.SweepInterval < 0 {
		return fmt.Errorf("connector.sweep_interval cannot be negative")
	}

	if c.App.Env == "production" {
		if c.Connector.PasswordHash == "" && c.Connector.Password == "password" {
			return fmt.Errorf("connector.password must be changed from the default in production")
		}
		if c.API.JWTSecret != "" && len(c.API.JWTSecret) < 32 {
			return fmt.Errorf("api.jwt_secret must be at least 32 characters in production")
		}
		if c.Database.Driver == DriverPostgres && c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if c.Telemetry.DBLogFullSQL {
			return fmt.Errorf("telemetry.db_log_full_sql must be false in production to prevent sensitive data exposure in traces")
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	return nil
}

// DSN returns the postgres connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// SQLiteDSN returns the sqlite file DSN with busy timeout and WAL enabled
func (d *DatabaseConfig) SQLiteDSN() string {
	if d.Path == ":memory:" {
		return d.Path
	}
	return d.Path + "?_busy_timeout=5000&_journal_mode=WAL"
}
