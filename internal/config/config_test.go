package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.NotNil(t, cfg)

	// Check some default values
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "badger", cfg.Storage.Backend)
	assert.Equal(t, "./data", cfg.Storage.DataDir)
	assert.Equal(t, "dailytrack_session", cfg.Auth.SessionCookie)
	assert.Equal(t, 72, cfg.Auth.SessionTTLHours)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadConfigFromFile(t *testing.T) {
	testConfig := `server:
  addr: ":9090"
storage:
  backend: "memory"
  data_dir: "./test-data"
auth:
  session_ttl_hours: 24
logging:
  level: "debug"
`
	tempDir := t.TempDir()
	configFile := filepath.Join(tempDir, "config.yaml")

	err := os.WriteFile(configFile, []byte(testConfig), 0644)
	require.NoError(t, err)

	cfg, err := LoadConfigFromFile(configFile)
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, "./test-data", cfg.Storage.DataDir)
	assert.Equal(t, 24, cfg.Auth.SessionTTLHours)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Default values should be used for unspecified fields
	assert.Equal(t, 10000, cfg.Storage.RecordCacheSize)
	assert.Equal(t, "dailytrack_session", cfg.Auth.SessionCookie)
}

func TestLoadConfigFromMissingFile(t *testing.T) {
	cfg, err := LoadConfigFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoadConfig(t *testing.T) {
	testConfig := `server:
  addr: ":9090"
storage:
  data_dir: "./test-data"
`
	tempDir := t.TempDir()
	configFile := filepath.Join(tempDir, "config.yaml")

	err := os.WriteFile(configFile, []byte(testConfig), 0644)
	require.NoError(t, err)

	t.Setenv("DAILYTRACK_SERVER_ADDR", ":8888")
	t.Setenv("DATABASE_URL", "postgres://localhost/tracker")

	cfg, err := LoadConfig(configFile, "./cli-data", "", "warn")
	require.NoError(t, err)

	// Command-line flags take precedence over env vars and file
	absPath, _ := filepath.Abs("./cli-data")
	assert.Equal(t, absPath, cfg.Storage.DataDir)
	assert.Equal(t, "warn", cfg.Logging.Level)

	// Env vars take precedence over the file
	assert.Equal(t, ":8888", cfg.Server.Addr)
	assert.Equal(t, "postgres://localhost/tracker", cfg.Storage.DatabaseURL)
}
