package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	// Save original env vars and restore after tests
	originalEnv := map[string]string{
		"FLEET_APP_NAME":                os.Getenv("FLEET_APP_NAME"),
		"FLEET_APP_ENV":                 os.Getenv("FLEET_APP_ENV"),
		"FLEET_APP_PORT":                os.Getenv("FLEET_APP_PORT"),
		"FLEET_DATABASE_HOST":           os.Getenv("FLEET_DATABASE_HOST"),
		"FLEET_DATABASE_PORT":           os.Getenv("FLEET_DATABASE_PORT"),
		"FLEET_DATABASE_USER":           os.Getenv("FLEET_DATABASE_USER"),
		"FLEET_DATABASE_PASSWORD":       os.Getenv("FLEET_DATABASE_PASSWORD"),
		"FLEET_DATABASE_DBNAME":         os.Getenv("FLEET_DATABASE_DBNAME"),
		"FLEET_DATABASE_SSLMODE":        os.Getenv("FLEET_DATABASE_SSLMODE"),
		"FLEET_DATABASE_MAX_OPEN_CONNS": os.Getenv("FLEET_DATABASE_MAX_OPEN_CONNS"),
		"FLEET_DATABASE_MAX_IDLE_CONNS": os.Getenv("FLEET_DATABASE_MAX_IDLE_CONNS"),
		"FLEET_LOCKING_ACQUIRE_TIMEOUT": os.Getenv("FLEET_LOCKING_ACQUIRE_TIMEOUT"),
		"FLEET_IDEMPOTENCY_ENABLED":     os.Getenv("FLEET_IDEMPOTENCY_ENABLED"),
		"FLEET_IDEMPOTENCY_BACKEND":     os.Getenv("FLEET_IDEMPOTENCY_BACKEND"),
		"FLEET_IDEMPOTENCY_TTL":         os.Getenv("FLEET_IDEMPOTENCY_TTL"),
		"FLEET_RECONCILIATION_ENABLED":  os.Getenv("FLEET_RECONCILIATION_ENABLED"),
		"FLEET_RECONCILIATION_INTERVAL": os.Getenv("FLEET_RECONCILIATION_INTERVAL"),
		"APP_ENV":                       os.Getenv("APP_ENV"),
	}

	defer func() {
		for k, v := range originalEnv {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	}()

	clearEnv := func() {
		for k := range originalEnv {
			os.Unsetenv(k)
		}
	}

	t.Run("loads default values when env vars not set", func(t *testing.T) {
		clearEnv()

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "fleetrent-backend", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "8080", cfg.App.Port)
		assert.Equal(t, "localhost", cfg.Database.Host)
		assert.Equal(t, 5432, cfg.Database.Port)
		assert.Equal(t, "postgres", cfg.Database.User)
		assert.Equal(t, "", cfg.Database.Password)
		assert.Equal(t, "fleetrent", cfg.Database.DBName)
		assert.Equal(t, "disable", cfg.Database.SSLMode)
		assert.Equal(t, 25, cfg.Database.MaxOpenConns)
		assert.Equal(t, 5, cfg.Database.MaxIdleConns)

		assert.Equal(t, 3*time.Second, cfg.Locking.AcquireTimeout)

		assert.True(t, cfg.Idempotency.Enabled)
		assert.Equal(t, "database", cfg.Idempotency.Backend)
		assert.Equal(t, 24*time.Hour, cfg.Idempotency.TTL)
		assert.Equal(t, time.Hour, cfg.Idempotency.JanitorInterval)

		assert.True(t, cfg.Reconciliation.Enabled)
		assert.Equal(t, time.Hour, cfg.Reconciliation.Interval)
		assert.Equal(t, 200, cfg.Reconciliation.PageSize)
		assert.Equal(t, 10*time.Minute, cfg.Reconciliation.LockTTL)
	})

	t.Run("loads values from environment variables with FLEET prefix", func(t *testing.T) {
		clearEnv()
		os.Setenv("FLEET_APP_NAME", "test-app")
		os.Setenv("FLEET_APP_ENV", "testing")
		os.Setenv("FLEET_APP_PORT", "9000")
		os.Setenv("FLEET_DATABASE_HOST", "testdb.local")
		os.Setenv("FLEET_DATABASE_PORT", "5433")
		os.Setenv("FLEET_DATABASE_USER", "testuser")
		os.Setenv("FLEET_DATABASE_PASSWORD", "testpass")
		os.Setenv("FLEET_DATABASE_DBNAME", "testdb")
		os.Setenv("FLEET_DATABASE_SSLMODE", "require")
		os.Setenv("FLEET_DATABASE_MAX_OPEN_CONNS", "50")
		os.Setenv("FLEET_DATABASE_MAX_IDLE_CONNS", "10")
		os.Setenv("FLEET_LOCKING_ACQUIRE_TIMEOUT", "5s")
		os.Setenv("FLEET_IDEMPOTENCY_BACKEND", "redis")
		os.Setenv("FLEET_IDEMPOTENCY_TTL", "1h")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "test-app", cfg.App.Name)
		assert.Equal(t, "testing", cfg.App.Env)
		assert.Equal(t, "9000", cfg.App.Port)
		assert.Equal(t, "testdb.local", cfg.Database.Host)
		assert.Equal(t, 5433, cfg.Database.Port)
		assert.Equal(t, "testuser", cfg.Database.User)
		assert.Equal(t, "testpass", cfg.Database.Password)
		assert.Equal(t, "testdb", cfg.Database.DBName)
		assert.Equal(t, "require", cfg.Database.SSLMode)
		assert.Equal(t, 50, cfg.Database.MaxOpenConns)
		assert.Equal(t, 10, cfg.Database.MaxIdleConns)
		assert.Equal(t, 5*time.Second, cfg.Locking.AcquireTimeout)
		assert.Equal(t, "redis", cfg.Idempotency.Backend)
		assert.Equal(t, time.Hour, cfg.Idempotency.TTL)
	})

	t.Run("idempotency can be disabled explicitly", func(t *testing.T) {
		clearEnv()
		os.Setenv("FLEET_IDEMPOTENCY_ENABLED", "false")

		cfg, err := Load()
		require.NoError(t, err)
		assert.False(t, cfg.Idempotency.Enabled)
	})

	t.Run("validates MaxIdleConns cannot exceed MaxOpenConns", func(t *testing.T) {
		clearEnv()
		os.Setenv("FLEET_DATABASE_MAX_OPEN_CONNS", "10")
		os.Setenv("FLEET_DATABASE_MAX_IDLE_CONNS", "20")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max_idle_conns")
		assert.Contains(t, err.Error(), "cannot exceed")
	})

	t.Run("zero MaxOpenConns uses default", func(t *testing.T) {
		clearEnv()
		os.Setenv("FLEET_DATABASE_MAX_OPEN_CONNS", "0")

		cfg, err := Load()
		require.NoError(t, err)
		// 0 is treated as "not set", so default (25) is used
		assert.Equal(t, 25, cfg.Database.MaxOpenConns)
	})

	t.Run("validates MaxIdleConns cannot be negative", func(t *testing.T) {
		clearEnv()
		os.Setenv("FLEET_DATABASE_MAX_IDLE_CONNS", "-1")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max_idle_conns cannot be negative")
	})

	t.Run("rejects unknown idempotency backend", func(t *testing.T) {
		clearEnv()
		os.Setenv("FLEET_IDEMPOTENCY_BACKEND", "memcached")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "idempotency.backend")
	})

	t.Run("rejects lock acquire timeout above the cap", func(t *testing.T) {
		clearEnv()
		os.Setenv("FLEET_LOCKING_ACQUIRE_TIMEOUT", "2m")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "locking.acquire_timeout")
	})

	t.Run("rejects reconciliation interval below one minute", func(t *testing.T) {
		clearEnv()
		os.Setenv("FLEET_RECONCILIATION_INTERVAL", "10s")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "reconciliation.interval")
	})
}

func TestLoad_ProductionValidation(t *testing.T) {
	originalEnv := map[string]string{
		"FLEET_APP_ENV":                   os.Getenv("FLEET_APP_ENV"),
		"FLEET_DATABASE_PASSWORD":         os.Getenv("FLEET_DATABASE_PASSWORD"),
		"FLEET_DATABASE_SSLMODE":          os.Getenv("FLEET_DATABASE_SSLMODE"),
		"FLEET_HTTP_CORS_ALLOW_ORIGINS":   os.Getenv("FLEET_HTTP_CORS_ALLOW_ORIGINS"),
		"FLEET_TELEMETRY_DB_LOG_FULL_SQL": os.Getenv("FLEET_TELEMETRY_DB_LOG_FULL_SQL"),
		"APP_ENV":                         os.Getenv("APP_ENV"),
	}

	defer func() {
		for k, v := range originalEnv {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	}()

	clearEnv := func() {
		for k := range originalEnv {
			os.Unsetenv(k)
		}
	}

	// Helper to set valid production base config
	setValidProductionBase := func() {
		os.Setenv("FLEET_APP_ENV", "production")
		os.Setenv("FLEET_DATABASE_PASSWORD", "secure-password")
		os.Setenv("FLEET_DATABASE_SSLMODE", "require")
	}

	t.Run("requires database.password in production", func(t *testing.T) {
		clearEnv()
		os.Setenv("FLEET_APP_ENV", "production")
		os.Setenv("FLEET_DATABASE_SSLMODE", "require")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.password is required in production")
	})

	t.Run("requires SSL enabled in production", func(t *testing.T) {
		clearEnv()
		os.Setenv("FLEET_APP_ENV", "production")
		os.Setenv("FLEET_DATABASE_PASSWORD", "secure-password")
		os.Setenv("FLEET_DATABASE_SSLMODE", "disable")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.sslmode cannot be 'disable' in production")
	})

	t.Run("rejects full SQL logging in production", func(t *testing.T) {
		clearEnv()
		setValidProductionBase()
		os.Setenv("FLEET_TELEMETRY_DB_LOG_FULL_SQL", "true")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "db_log_full_sql")
	})

	t.Run("passes validation with valid production config", func(t *testing.T) {
		clearEnv()
		setValidProductionBase()

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "production", cfg.App.Env)
	})
}

func TestDatabaseConfig_DSN(t *testing.T) {
	t.Run("generates valid DSN", func(t *testing.T) {
		cfg := DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "testuser",
			Password: "testpass",
			DBName:   "testdb",
			SSLMode:  "disable",
		}

		dsn := cfg.DSN()
		assert.Contains(t, dsn, "localhost")
		assert.Contains(t, dsn, "5432")
		assert.Contains(t, dsn, "testuser")
		assert.Contains(t, dsn, "testdb")
		assert.Contains(t, dsn, "sslmode=disable")
	})

	t.Run("escapes special characters in password", func(t *testing.T) {
		cfg := DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "user",
			Password: "pass@word#123",
			DBName:   "db",
			SSLMode:  "disable",
		}

		dsn := cfg.DSN()
		// URL-encoded password should be in the DSN
		assert.Contains(t, dsn, "pass%40word%23123")
	})

	t.Run("handles empty password", func(t *testing.T) {
		cfg := DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "user",
			Password: "",
			DBName:   "db",
			SSLMode:  "disable",
		}

		dsn := cfg.DSN()
		assert.NotEmpty(t, dsn)
	})
}
