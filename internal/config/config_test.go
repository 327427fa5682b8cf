package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/riskdecomp/internal/database"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"RISK_DATA_DIR", "LOG_LEVEL", "LOG_PRETTY", "RISK_DB_DRIVER", "RISK_BUCKET_PCT"} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	absPath, err := filepath.Abs("./data")
	require.NoError(t, err)
	assert.Equal(t, absPath, cfg.DataDir)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.LogPretty)
	assert.Equal(t, database.DriverModernc, cfg.DBDriver)
	assert.Equal(t, 30, cfg.BucketPercent)
	assert.Equal(t, filepath.Join(absPath, "history.db"), cfg.HistoryDBPath())
}

func TestLoad_FromEnvironment(t *testing.T) {
	clearEnv(t)
	tmpDir := t.TempDir()
	t.Setenv("RISK_DATA_DIR", tmpDir)
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_PRETTY", "true")
	t.Setenv("RISK_DB_DRIVER", database.DriverMattn)
	t.Setenv("RISK_BUCKET_PCT", "20")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, tmpDir, cfg.DataDir)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.LogPretty)
	assert.Equal(t, database.DriverMattn, cfg.DBDriver)
	assert.Equal(t, 20, cfg.BucketPercent)
}

func TestLoad_MalformedNumbersFallBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("RISK_BUCKET_PCT", "thirty")
	t.Setenv("LOG_PRETTY", "maybe")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.BucketPercent)
	assert.False(t, cfg.LogPretty)
}

func TestLoad_Invalid(t *testing.T) {
	testCases := []struct {
		name  string
		key   string
		value string
		want  string
	}{
		{"unknown driver", "RISK_DB_DRIVER", "postgres", "RISK_DB_DRIVER"},
		{"bucket too large", "RISK_BUCKET_PCT", "50", "RISK_BUCKET_PCT"},
		{"bucket negative", "RISK_BUCKET_PCT", "-5", "RISK_BUCKET_PCT"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tc.key, tc.value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestEnsureDataDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	cfg := &Config{DataDir: dir, DBDriver: database.DriverModernc, BucketPercent: 30}

	require.NoError(t, cfg.EnsureDataDir())
	assert.DirExists(t, dir)
}
