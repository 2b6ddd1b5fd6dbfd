package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a-essam23/go-classroom/pkg/config"
	"github.com/a-essam23/go-classroom/pkg/logging"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := config.Load(logging.Discard(), "classroom", dir)
	require.NoError(t, err)

	assert.Equal(t, config.APIBaseURL, cfg.API.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.API.Timeout)
	assert.Equal(t, 120*time.Second, cfg.API.UploadTimeout)
	assert.Equal(t, 1500*time.Millisecond, cfg.API.RedirectDelay)
	assert.Equal(t, []string{"websocket", "polling"}, cfg.Realtime.Transports)
	assert.Equal(t, 5, cfg.Realtime.ReconnectAttempts)
	assert.Equal(t, time.Second, cfg.Realtime.ReconnectDelay)
	assert.Equal(t, "token", cfg.Session.StorageKey)
	assert.Equal(t, "/login", cfg.Routes.Login)
	assert.Equal(t, "/dashboard", cfg.Routes.Landing)
	assert.Equal(t, ":5000", cfg.Stub.Address)
	assert.Equal(t, 25*time.Second, cfg.Stub.PollTimeout)
	assert.Equal(t, "reject", cfg.Stub.ConnectionLimit.Mode)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte(`
api:
  baseURL: http://school.example/api/
  timeout: 3s
realtime:
  reconnectAttempts: 2
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "classroom.yaml"), yaml, 0o600))
	t.Setenv("CLASSROOM_REALTIME_RECONNECTATTEMPTS", "9")

	cfg, err := config.Load(logging.Discard(), "classroom", dir)
	require.NoError(t, err)

	assert.Equal(t, "http://school.example/api", cfg.API.BaseURL, "trailing slash trimmed")
	assert.Equal(t, 3*time.Second, cfg.API.Timeout)
	assert.Equal(t, 9, cfg.Realtime.ReconnectAttempts, "env overrides file")
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("CLASSROOM_LOG_LEVEL=debug\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("CLASSROOM_LOG_LEVEL") })

	cfg, err := config.Load(logging.Discard(), "classroom", dir)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadRejectsBrokenFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "classroom.yaml"), []byte("api: [unterminated"), 0o600))

	_, err := config.Load(logging.Discard(), "classroom", dir)
	assert.Error(t, err)
}
