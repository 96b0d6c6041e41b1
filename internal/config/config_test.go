package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(New())
	require.NoError(t, err)

	assert.Equal(t, "ws://127.0.0.1:8000/ws", cfg.StreamEndpoint)
	assert.Equal(t, 3*time.Second, cfg.ReconnectInterval)
	assert.Equal(t, 5, cfg.MaxReconnectAttempts)
	assert.Equal(t, 5*time.Second, cfg.PollInterval)
	assert.Equal(t, 30*time.Second, cfg.ExecutionTimeout)
	assert.Equal(t, 100, cfg.TelemetryBufferSize)
	assert.Equal(t, 0.1, cfg.ExecFailureRate)
	assert.False(t, cfg.AutoRetry)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("OUTREACH_POLL_INTERVAL", "750ms")
	t.Setenv("OUTREACH_MAX_RECONNECT_ATTEMPTS", "2")

	cfg, err := Load(New())
	require.NoError(t, err)
	assert.Equal(t, 750*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 2, cfg.MaxReconnectAttempts)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "outreach.yaml")
	body := "stream-endpoint: wss://console.example.com/ws\nexecution-timeout: 10s\ncontact: p-42\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	v := New()
	v.Set(KeyConfigFile, path)
	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "wss://console.example.com/ws", cfg.StreamEndpoint)
	assert.Equal(t, 10*time.Second, cfg.ExecutionTimeout)
	assert.Equal(t, "p-42", cfg.ActiveContact)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]any{
		KeyStreamEndpoint:      "http://127.0.0.1:8000/ws",
		KeyExecFailureRate:     1.5,
		KeyPollInterval:        "10ms",
		KeyTelemetryBufferSize: 0,
	}
	for key, val := range cases {
		v := New()
		v.Set(key, val)
		_, err := Load(v)
		assert.Error(t, err, "key %s", key)
	}
}
