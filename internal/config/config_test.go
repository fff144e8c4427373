package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("APP_ENV", "test")
	t.Setenv("APP_PORT", "8080")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_DSN", "file::memory:")
}

func TestLoadDefaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, "file::memory:", cfg.DSN())
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 2*time.Second, cfg.ToastWindow)
	assert.Equal(t, "taskflow.realtime", cfg.RealtimeExchange)
	assert.True(t, cfg.Cache.Methods["GET"])
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.False(t, cfg.OAuth.Discord.Configured())
}

func TestLoadReportsMissingKeys(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("APP_PORT", "")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_DSN", "")

	_, err := Load("")
	require.Error(t, err)
	for _, key := range []string{"APP_ENV", "APP_PORT", "JWT_SECRET", "DB_DSN"} {
		assert.Contains(t, err.Error(), key)
	}
}

func TestLoadBuildsMySQLDSN(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("DB_DRIVER", "mysql")
	t.Setenv("DB_DSN", "")
	t.Setenv("DB_USER", "app")
	t.Setenv("DB_PASS", "pw")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_PORT", "3307")
	t.Setenv("DB_NAME", "taskflow")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "app:pw@tcp(db:3307)/taskflow?charset=utf8mb4&parseTime=true&loc=UTC", cfg.DSN())
}

func TestLoadFileIsOverriddenByEnv(t *testing.T) {
	setBaseEnv(t)
	path := filepath.Join(t.TempDir(), "taskflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: debug\napp_url: http://files.local/\nrate_limit_capacity: 5\n"), 0o644))
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "http://files.local", cfg.AppURL)
	assert.Equal(t, 5, cfg.RateLimit.Capacity)
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("DB_DRIVER", "oracle")

	_, err := Load("")
	require.Error(t, err)
}
