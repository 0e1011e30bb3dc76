package config

import (
	"os"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	// Save original env vars and restore after tests
	originalEnv := map[string]string{
		"TANKER_APP_NAME":                  os.Getenv("TANKER_APP_NAME"),
		"TANKER_APP_ENV":                   os.Getenv("TANKER_APP_ENV"),
		"TANKER_APP_PORT":                  os.Getenv("TANKER_APP_PORT"),
		"TANKER_DATABASE_DRIVER":           os.Getenv("TANKER_DATABASE_DRIVER"),
		"TANKER_DATABASE_HOST":             os.Getenv("TANKER_DATABASE_HOST"),
		"TANKER_DATABASE_PORT":             os.Getenv("TANKER_DATABASE_PORT"),
		"TANKER_DATABASE_PASSWORD":         os.Getenv("TANKER_DATABASE_PASSWORD"),
		"TANKER_DATABASE_MAX_OPEN_CONNS":   os.Getenv("TANKER_DATABASE_MAX_OPEN_CONNS"),
		"TANKER_DATABASE_MAX_IDLE_CONNS":   os.Getenv("TANKER_DATABASE_MAX_IDLE_CONNS"),
		"TANKER_BILLING_DEFAULT_OCCUPANCY": os.Getenv("TANKER_BILLING_DEFAULT_OCCUPANCY"),
		"TANKER_BILLING_SEED_ON_START":     os.Getenv("TANKER_BILLING_SEED_ON_START"),
		"TANKER_BILLING_TIMEZONE":          os.Getenv("TANKER_BILLING_TIMEZONE"),
		"TANKER_ARCHIVE_ENABLED":           os.Getenv("TANKER_ARCHIVE_ENABLED"),
		"TANKER_ARCHIVE_BUCKET":            os.Getenv("TANKER_ARCHIVE_BUCKET"),
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

		assert.Equal(t, "tankerapp", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "8080", cfg.App.Port)
		assert.Equal(t, DriverMemory, cfg.Database.Driver)
		assert.Equal(t, "localhost", cfg.Database.Host)
		assert.Equal(t, 5432, cfg.Database.Port)
		assert.Equal(t, 10, cfg.Database.MaxOpenConns)
		assert.Equal(t, 2, cfg.Database.MaxIdleConns)
		assert.Equal(t, 1, cfg.Billing.DefaultOccupancy)
		assert.Equal(t, 17, cfg.Billing.Floors)
		assert.Equal(t, 4, cfg.Billing.UnitsPerFloor)
		assert.True(t, cfg.Billing.SeedOnStart)
		assert.Equal(t, "0 6 1 * *", cfg.Scheduler.CycleCloseCron)
		assert.Equal(t, 30*time.Second, cfg.HTTP.SSEHeartbeat)
	})

	t.Run("loads values from environment variables with TANKER prefix", func(t *testing.T) {
		clearEnv()
		os.Setenv("TANKER_APP_NAME", "test-app")
		os.Setenv("TANKER_APP_PORT", "9000")
		os.Setenv("TANKER_DATABASE_DRIVER", "sqlite")
		os.Setenv("TANKER_DATABASE_HOST", "testdb.local")
		os.Setenv("TANKER_DATABASE_PORT", "5433")
		os.Setenv("TANKER_DATABASE_MAX_OPEN_CONNS", "50")
		os.Setenv("TANKER_DATABASE_MAX_IDLE_CONNS", "10")
		os.Setenv("TANKER_BILLING_DEFAULT_OCCUPANCY", "3")
		os.Setenv("TANKER_BILLING_SEED_ON_START", "false")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "test-app", cfg.App.Name)
		assert.Equal(t, "9000", cfg.App.Port)
		assert.Equal(t, DriverSQLite, cfg.Database.Driver)
		assert.Equal(t, "testdb.local", cfg.Database.Host)
		assert.Equal(t, 5433, cfg.Database.Port)
		assert.Equal(t, 50, cfg.Database.MaxOpenConns)
		assert.Equal(t, 10, cfg.Database.MaxIdleConns)
		assert.Equal(t, 3, cfg.Billing.DefaultOccupancy)
		assert.False(t, cfg.Billing.SeedOnStart)
	})

	t.Run("explicit zero default occupancy is kept", func(t *testing.T) {
		clearEnv()
		os.Setenv("TANKER_BILLING_DEFAULT_OCCUPANCY", "0")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 0, cfg.Billing.DefaultOccupancy)
	})

	t.Run("rejects unknown driver", func(t *testing.T) {
		clearEnv()
		os.Setenv("TANKER_DATABASE_DRIVER", "mysql")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.driver")
	})

	t.Run("validates MaxIdleConns cannot exceed MaxOpenConns", func(t *testing.T) {
		clearEnv()
		os.Setenv("TANKER_DATABASE_MAX_OPEN_CONNS", "10")
		os.Setenv("TANKER_DATABASE_MAX_IDLE_CONNS", "20")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max_idle_conns")
		assert.Contains(t, err.Error(), "cannot exceed")
	})

	t.Run("validates MaxIdleConns cannot be negative", func(t *testing.T) {
		clearEnv()
		os.Setenv("TANKER_DATABASE_MAX_IDLE_CONNS", "-1")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max_idle_conns cannot be negative")
	})

	t.Run("rejects invalid timezone", func(t *testing.T) {
		clearEnv()
		os.Setenv("TANKER_BILLING_TIMEZONE", "Mars/Olympus")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "billing.timezone")
	})

	t.Run("archive requires bucket", func(t *testing.T) {
		clearEnv()
		os.Setenv("TANKER_ARCHIVE_ENABLED", "true")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "archive.bucket")

		os.Setenv("TANKER_ARCHIVE_BUCKET", "cycles")
		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "cycles", cfg.Archive.Bucket)
	})
}

func TestFromViper_ProductionValidation(t *testing.T) {
	base := func() *viper.Viper {
		v := viper.New()
		v.Set("app.env", "production")
		v.Set("database.driver", DriverPostgres)
		v.Set("database.password", "secure-password")
		return v
	}

	t.Run("passes validation with valid production config", func(t *testing.T) {
		cfg, err := fromViper(base())
		require.NoError(t, err)
		assert.Equal(t, "production", cfg.App.Env)
	})

	t.Run("rejects memory driver in production", func(t *testing.T) {
		v := base()
		v.Set("database.driver", DriverMemory)
		_, err := fromViper(v)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cannot be 'memory' in production")
	})

	t.Run("requires database.password in production", func(t *testing.T) {
		v := base()
		v.Set("database.password", "")
		_, err := fromViper(v)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.password is required in production")
	})

	t.Run("sqlite needs no password in production", func(t *testing.T) {
		v := base()
		v.Set("database.driver", DriverSQLite)
		v.Set("database.password", "")
		_, err := fromViper(v)
		require.NoError(t, err)
	})

	t.Run("rejects wildcard CORS origin in production", func(t *testing.T) {
		v := base()
		v.Set("http.cors_allow_origins", []string{"*"})
		_, err := fromViper(v)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cors_allow_origins")
	})

	t.Run("rejects sampling ratio out of range", func(t *testing.T) {
		v := base()
		v.Set("telemetry.sampling_ratio", 1.5)
		_, err := fromViper(v)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sampling_ratio")
	})
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := DatabaseConfig{
		Host:     "db",
		Port:     5432,
		User:     "tanker",
		Password: "p@ss word",
		DBName:   "tankerapp",
		SSLMode:  "disable",
	}
	dsn := d.DSN()
	assert.Contains(t, dsn, "postgres://tanker:p%40ss%20word@db:5432/tankerapp")
	assert.Contains(t, dsn, "sslmode=disable")
}

func TestBillingConfig_Location(t *testing.T) {
	assert.Equal(t, time.UTC, BillingConfig{Timezone: "nowhere"}.Location())
	assert.Equal(t, "Asia/Kolkata", BillingConfig{Timezone: "Asia/Kolkata"}.Location().String())
}
