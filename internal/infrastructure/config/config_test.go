package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("loads default values when env vars not set", func(t *testing.T) {
		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "qbconnector", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "8000", cfg.App.Port)
		assert.Equal(t, DriverSQLite, cfg.Database.Driver)
		assert.Equal(t, "qbwc.db", cfg.Database.Path)
		assert.Equal(t, "admin", cfg.Connector.Username)
		assert.Equal(t, "password", cfg.Connector.Password)
		assert.Equal(t, "", cfg.Connector.CompanyFile)
		assert.Equal(t, "", cfg.Connector.SeedRequest)
		assert.Equal(t, "13.0", cfg.Connector.QBXMLVersion)
		assert.Equal(t, "stopOnError", cfg.Connector.OnError)
		assert.Equal(t, 60, cfg.Connector.RunEveryNSeconds)
		assert.Equal(t, "http://localhost:8000/interactive", cfg.Connector.InteractiveURL)
		assert.Equal(t, 30*time.Minute, cfg.Connector.StaleAfter)
		assert.Equal(t, time.Duration(0), cfg.Connector.SweepInterval)
		assert.False(t, cfg.Connector.RequeueOnError)
		assert.Equal(t, 8, cfg.Connector.MaxClaimAttempts)
		assert.Equal(t, []string{"*"}, cfg.HTTP.CORSAllowOrigins)
	})

	t.Run("loads values from environment variables with QBWC prefix", func(t *testing.T) {
		t.Setenv("QBWC_APP_PORT", "9000")
		t.Setenv("QBWC_DATABASE_DRIVER", "postgres")
		t.Setenv("QBWC_DATABASE_HOST", "db.local")
		t.Setenv("QBWC_CONNECTOR_SEED_REQUEST", `<CustomerQueryRq requestID="1"><MaxReturned>5</MaxReturned></CustomerQueryRq>`)
		t.Setenv("QBWC_CONNECTOR_REQUEUE_ON_ERROR", "true")
		t.Setenv("QBWC_CONNECTOR_SWEEP_INTERVAL", "5m")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "9000", cfg.App.Port)
		assert.Equal(t, DriverPostgres, cfg.Database.Driver)
		assert.Equal(t, "db.local", cfg.Database.Host)
		assert.Contains(t, cfg.Connector.SeedRequest, "CustomerQueryRq")
		assert.True(t, cfg.Connector.RequeueOnError)
		assert.Equal(t, 5*time.Minute, cfg.Connector.SweepInterval)
	})

	t.Run("honours legacy receiver variables", func(t *testing.T) {
		t.Setenv("QBWC_USERNAME", "qbuser")
		t.Setenv("QBWC_PASSWORD", "s3cret")
		t.Setenv("QB_COMPANY_FILE", `C:\Company.qbw`)
		t.Setenv("QB_APP_NAME", "ShopSync")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "qbuser", cfg.Connector.Username)
		assert.Equal(t, "s3cret", cfg.Connector.Password)
		assert.Equal(t, `C:\Company.qbw`, cfg.Connector.CompanyFile)
		assert.Equal(t, "ShopSync", cfg.Connector.AppName)
	})

	t.Run("prefixed variable wins over legacy name", func(t *testing.T) {
		t.Setenv("QBWC_CONNECTOR_USERNAME", "primary")
		t.Setenv("QBWC_USERNAME", "legacy")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "primary", cfg.Connector.Username)
	})

	t.Run("rejects unknown driver", func(t *testing.T) {
		t.Setenv("QBWC_DATABASE_DRIVER", "mysql")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.driver")
	})
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := &Config{}
		applyDefaults(cfg)
		return cfg
	}

	t.Run("defaults are valid", func(t *testing.T) {
		assert.NoError(t, base().validate())
	})

	t.Run("invalid onError", func(t *testing.T) {
		cfg := base()
		cfg.Connector.OnError = "ignore"
		assert.Error(t, cfg.validate())
	})

	t.Run("production rejects default connector password", func(t *testing.T) {
		cfg := base()
		cfg.App.Env = "production"
		err := cfg.validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connector.password")
	})

	t.Run("production accepts bcrypt hash", func(t *testing.T) {
		cfg := base()
		cfg.App.Env = "production"
		cfg.Connector.PasswordHash = "$2a$10$abcdefghijklmnopqrstuu"
		assert.NoError(t, cfg.validate())
	})

	t.Run("production requires ssl for postgres", func(t *testing.T) {
		cfg := base()
		cfg.App.Env = "production"
		cfg.Connector.Password = "changed"
		cfg.Database.Driver = DriverPostgres
		assert.Error(t, cfg.validate())
	})

	t.Run("sampling ratio out of range", func(t *testing.T) {
		cfg := base()
		cfg.Telemetry.SamplingRatio = 1.5
		assert.Error(t, cfg.validate())
	})

	t.Run("idle conns cannot exceed open conns", func(t *testing.T) {
		cfg := base()
		cfg.Database.MaxIdleConns = 100
		assert.Error(t, cfg.validate())
	})
}

func TestDatabaseConfig_DSN(t *testing.T) {
	t.Run("generates valid DSN", func(t *testing.T) {
		cfg := DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "qbuser",
			Password: "qbpass",
			DBName:   "qbconnector",
			SSLMode:  "disable",
		}

		dsn := cfg.DSN()
		assert.Contains(t, dsn, "localhost:5432")
		assert.Contains(t, dsn, "qbuser")
		assert.Contains(t, dsn, "/qbconnector")
		assert.Contains(t, dsn, "sslmode=disable")
	})

	t.Run("escapes special characters in password", func(t *testing.T) {
		cfg := DatabaseConfig{Host: "localhost", Port: 5432, User: "user", Password: "pass@word#123", DBName: "db", SSLMode: "disable"}
		assert.Contains(t, cfg.DSN(), "pass%40word%23123")
	})
}

func TestDatabaseConfig_SQLiteDSN(t *testing.T) {
	assert.Equal(t, ":memory:", (&DatabaseConfig{Path: ":memory:"}).SQLiteDSN())
	assert.Equal(t, "qbwc.db?_busy_timeout=5000&_journal_mode=WAL", (&DatabaseConfig{Path: "qbwc.db"}).SQLiteDSN())
}
