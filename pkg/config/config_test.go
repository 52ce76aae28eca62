package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:4000", cfg.AuthServiceURL)
	assert.Equal(t, "http://localhost:4001", cfg.UserServiceURL)
	assert.Equal(t, "http://localhost:4002", cfg.MenuServiceURL)
	assert.Equal(t, 15*time.Second, cfg.RequestTimeout)
	assert.Equal(t, "csrfToken", cfg.CSRFCookieName)
	assert.Equal(t, 5*time.Second, cfg.CSRFWaitTimeout)
	assert.Equal(t, 100*time.Millisecond, cfg.CSRFPollInterval)
	assert.Equal(t, 14*time.Minute, cfg.RenewInterval)
	assert.False(t, cfg.PersistAccessToken)
	assert.False(t, cfg.CoalesceRefresh)
	assert.NotEmpty(t, cfg.StateDir)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("TABLERO_AUTH_SERVICE_URL", "https://auth.internal:8443")
	t.Setenv("TABLERO_RENEW_INTERVAL", "30m")
	t.Setenv("TABLERO_COALESCE_REFRESH", "true")
	t.Setenv("TABLERO_STATE_DIR", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://auth.internal:8443", cfg.AuthServiceURL)
	assert.Equal(t, 30*time.Minute, cfg.RenewInterval)
	assert.True(t, cfg.CoalesceRefresh)
}

func TestValidateRejectsBadURL(t *testing.T) {
	t.Setenv("TABLERO_AUTH_SERVICE_URL", "not a url")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth service URL")
}

func TestValidateRejectsShortRenewInterval(t *testing.T) {
	t.Setenv("TABLERO_RENEW_INTERVAL", "30s")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "renew interval")
}

func TestValidateRejectsTimeoutShorterThanPoll(t *testing.T) {
	t.Setenv("TABLERO_CSRF_WAIT_TIMEOUT", "50ms")
	t.Setenv("TABLERO_CSRF_POLL_INTERVAL", "100ms")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wait timeout")
}
