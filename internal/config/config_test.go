package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"DATABASE_URL", "REDIS_URL", "SERVER_PORT", "FETCHER_USER_AGENT", "FETCHER_TIMEOUT",
	"HEALTH_TIMEOUT", "HEALTH_BATCH_SIZE", "HEALTH_INTERVAL", "LOG_LEVEL", "LOG_FORMAT", "MEMORY_STORE",
}

// clearEnv blanks every config key for the duration of the test. DATABASE_URL
// is set to a dummy value so Load does not read .env files from disk.
func clearEnv(t *testing.T) {
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
	t.Setenv("DATABASE_URL", "postgres://test")
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	c := Load()
	assert.Equal(t, "postgres://test", c.DatabaseURL)
	assert.Equal(t, DefaultServerPort, c.ServerPort)
	assert.Equal(t, DefaultUserAgent, c.UserAgent)
	assert.Equal(t, DefaultFetchTimeout, c.Timeout)
	assert.Equal(t, DefaultHealthTimeout, c.HealthTimeout)
	assert.Equal(t, DefaultHealthBatchSize, c.HealthBatchSize)
	assert.Zero(t, c.HealthInterval)
	assert.Equal(t, "info", c.LogLevel)
	assert.Equal(t, "json", c.LogFormat)
	assert.False(t, c.Memory)
	assert.NoError(t, c.Validate())
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("SERVER_PORT", "9000")
	t.Setenv("HEALTH_TIMEOUT", "3s")
	t.Setenv("HEALTH_BATCH_SIZE", "5")
	t.Setenv("HEALTH_INTERVAL", "15m")
	t.Setenv("FETCHER_TIMEOUT", "bogus")
	t.Setenv("MEMORY_STORE", "true")

	c := Load()
	assert.Equal(t, "redis://localhost:6379/0", c.RedisURL)
	assert.Equal(t, "9000", c.ServerPort)
	assert.Equal(t, 3*time.Second, c.HealthTimeout)
	assert.Equal(t, 5, c.HealthBatchSize)
	assert.Equal(t, 15*time.Minute, c.HealthInterval)
	assert.Equal(t, DefaultFetchTimeout, c.Timeout, "invalid duration falls back")
	assert.True(t, c.Memory)
}

func TestValidate(t *testing.T) {
	c := &Config{}
	assert.ErrorIs(t, c.Validate(), ErrMissingDatabaseURL)

	c.Memory = true
	assert.NoError(t, c.Validate())
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tvdeck.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database_url: postgres://file
health_batch_size: 8
health_interval: 1h
log_format: text
`), 0o600))

	c, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://file", c.DatabaseURL)
	assert.Equal(t, 8, c.HealthBatchSize)
	assert.Equal(t, time.Hour, c.HealthInterval)
	assert.Equal(t, "text", c.LogFormat)
	assert.Equal(t, DefaultHealthTimeout, c.HealthTimeout)
	assert.Equal(t, DefaultServerPort, c.ServerPort)
}

func TestLoadFromFileBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tvdeck.yaml")
	require.NoError(t, os.WriteFile(path, []byte("health_timeout: soon\n"), 0o600))

	_, err := LoadFromFile(path)
	assert.ErrorContains(t, err, "health_timeout")
}

func TestApplyEnvFile(t *testing.T) {
	t.Setenv("TVDECK_TEST_A", "")
	t.Setenv("TVDECK_TEST_B", "keep")

	applyEnvFile([]byte("# comment\nTVDECK_TEST_A=\"quoted\"\nTVDECK_TEST_B=override\nnot a pair\n"))

	assert.Equal(t, "quoted", os.Getenv("TVDECK_TEST_A"))
	assert.Equal(t, "keep", os.Getenv("TVDECK_TEST_B"))
}
