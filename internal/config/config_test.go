package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unsetForTest はテスト中だけ環境変数を未設定にする。
func unsetForTest(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestLoad_Defaults(t *testing.T) {
	unsetForTest(t, "SERVER_PORT", "LOG_LEVEL", "OMDB_API_KEY", "OMDB_BASE_URL", "OMDB_TIMEOUT",
		"OMDB_RATE_PER_SEC", "REFRESH_INTERVAL", "REFRESH_BATCH_SIZE", "REFRESH_API_INTERVAL",
		"DIALOGUE_SESSION_TTL", "CLEANUP_INTERVAL", "RATE_LIMIT_GENERAL", "CORS_ALLOWED_ORIGIN", "SHUTDOWN_TIMEOUT",
		"WORKER_METRICS_PORT")
	t.Setenv("DATABASE_URL", "postgres://localhost/watchlog")

	cfg, err := LoadWithEnvFile("")
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost/watchlog", cfg.DatabaseURL)
	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "", cfg.OMDbAPIKey)
	assert.False(t, cfg.OMDbEnabled())
	assert.Equal(t, "http://www.omdbapi.com/", cfg.OMDbBaseURL)
	assert.Equal(t, 10*time.Second, cfg.OMDbTimeout)
	assert.Equal(t, 5.0, cfg.OMDbRatePerSec)
	assert.Equal(t, 24*time.Hour, cfg.RefreshInterval)
	assert.Equal(t, 100, cfg.RefreshBatchSize)
	assert.Equal(t, 200*time.Millisecond, cfg.RefreshAPIInterval)
	assert.Equal(t, 24*time.Hour, cfg.DialogueSessionTTL)
	assert.Equal(t, 24*time.Hour, cfg.CleanupInterval)
	assert.Equal(t, 120, cfg.RateLimitGeneral)
	assert.Equal(t, "http://localhost:8501", cfg.CORSAllowedOrigin)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Empty(t, cfg.WorkerMetricsPort)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://db/watchlog")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("OMDB_API_KEY", "secret")
	t.Setenv("OMDB_TIMEOUT", "3s")
	t.Setenv("OMDB_RATE_PER_SEC", "0.5")
	t.Setenv("REFRESH_INTERVAL", "6h")
	t.Setenv("RATE_LIMIT_GENERAL", "60")

	cfg, err := LoadWithEnvFile("")
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.ServerPort)
	assert.True(t, cfg.OMDbEnabled())
	assert.Equal(t, 3*time.Second, cfg.OMDbTimeout)
	assert.Equal(t, 0.5, cfg.OMDbRatePerSec)
	assert.Equal(t, 6*time.Hour, cfg.RefreshInterval)
	assert.Equal(t, 60, cfg.RateLimitGeneral)
}

func TestLoad_MissingRequired(t *testing.T) {
	unsetForTest(t, "DATABASE_URL")

	_, err := LoadWithEnvFile("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestLoad_InvalidValuesReportedTogether(t *testing.T) {
	unsetForTest(t, "DATABASE_URL")
	t.Setenv("SERVER_PORT", "http")
	t.Setenv("REFRESH_BATCH_SIZE", "0")
	t.Setenv("WORKER_METRICS_PORT", "99999")

	_, err := LoadWithEnvFile("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
	assert.Contains(t, err.Error(), "SERVER_PORT")
	assert.Contains(t, err.Error(), "REFRESH_BATCH_SIZE")
	assert.Contains(t, err.Error(), "WORKER_METRICS_PORT")
}

func TestLoad_UnparsableDuration(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://db/watchlog")
	t.Setenv("OMDB_TIMEOUT", "ten seconds")

	_, err := LoadWithEnvFile("")
	assert.Error(t, err)
}

func TestLoadWithEnvFile_RealEnvironmentWins(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("DATABASE_URL=postgres://from-file/watchlog\nOMDB_API_KEY=file-key\n"), 0o600))

	t.Setenv("DATABASE_URL", "postgres://from-env/watchlog")
	unsetForTest(t, "OMDB_API_KEY")

	cfg, err := LoadWithEnvFile(envFile)
	require.NoError(t, err)

	assert.Equal(t, "postgres://from-env/watchlog", cfg.DatabaseURL)
	assert.Equal(t, "file-key", cfg.OMDbAPIKey)
}

func TestLoadWithEnvFile_MissingFileIgnored(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://db/watchlog")

	_, err := LoadWithEnvFile(filepath.Join(t.TempDir(), "nope.env"))
	assert.NoError(t, err)
}
