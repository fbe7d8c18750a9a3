package voiceagent

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestNewConfig_Defaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, 5, cfg.MaxReconnectAttempts)
	assert.Equal(t, 3*time.Second, cfg.ReconnectDelay)
	assert.Equal(t, 10*time.Second, cfg.KeepAliveInterval)
	assert.Equal(t, 48000, cfg.CaptureSampleRate)
	assert.Equal(t, 16000, cfg.InputSampleRate)
	assert.Equal(t, DefaultAgentEndpoint, cfg.AgentEndpoint)
	assert.Empty(t, cfg.Validate())
}

func TestConfig_ApplyEnv(t *testing.T) {
	cfg := NewConfig()
	err := cfg.applyEnv(envMap(map[string]string{
		"VOICEAGENT_AUTH_URL":               "https://voice.example.com",
		"VOICEAGENT_BASE_PATH":              "/agent",
		"VOICEAGENT_WS_ENDPOINT":            "ws://localhost:9000/converse",
		"VOICEAGENT_MAX_RECONNECT_ATTEMPTS": "7",
		"VOICEAGENT_RECONNECT_DELAY":        "1500",
		"VOICEAGENT_KEEPALIVE_INTERVAL":     "5s",
		"VOICEAGENT_OUTPUT_SAMPLE_RATE":     "16000",
		"VOICEAGENT_DEBUG_LEVEL":            "debug",
		"VOICEAGENT_DEBUG_WEBSOCKET":        "true",
		"VOICEAGENT_AUDIO_DEVICE_ID":        "3",
	}))
	require.NoError(t, err)

	assert.Equal(t, "https://voice.example.com/agent/api/authenticate", cfg.TokenURL())
	assert.Equal(t, "ws://localhost:9000/converse", cfg.AgentEndpoint)
	assert.Equal(t, 7, cfg.MaxReconnectAttempts)
	assert.Equal(t, 1500*time.Millisecond, cfg.ReconnectDelay)
	assert.Equal(t, 5*time.Second, cfg.KeepAliveInterval)
	assert.Equal(t, 16000, cfg.OutputSampleRate)
	assert.Equal(t, "DEBUG", cfg.DebugLevel)
	assert.True(t, cfg.DebugWebsocket)
	require.NotNil(t, cfg.AudioDeviceID)
	assert.Equal(t, 3, *cfg.AudioDeviceID)
	assert.Empty(t, cfg.Validate())
}

func TestConfig_ApplyEnvErrors(t *testing.T) {
	for _, key := range []string{
		"VOICEAGENT_MAX_RECONNECT_ATTEMPTS",
		"VOICEAGENT_RECONNECT_DELAY",
		"VOICEAGENT_CAPTURE_SAMPLE_RATE",
		"VOICEAGENT_AUDIO_DEVICE_ID",
	} {
		t.Run(key, func(t *testing.T) {
			err := NewConfig().applyEnv(envMap(map[string]string{key: "soon"}))
			require.Error(t, err)
			assert.Contains(t, err.Error(), key)
		})
	}
}

func TestWithBasePath(t *testing.T) {
	tests := []struct {
		base, path, want string
	}{
		{"", "/api/authenticate", "/api/authenticate"},
		{"/", "/api/authenticate", "/api/authenticate"},
		{"/agent", "/api/authenticate", "/agent/api/authenticate"},
		{"/agent/", "/api/authenticate", "/agent/api/authenticate"},
		{"/agent", "/", "/agent"},
		{"", "/", "/"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, WithBasePath(tt.base, tt.path), "base=%q path=%q", tt.base, tt.path)
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := NewConfig()
	cfg.AgentEndpoint = "https://agent.example.com"
	cfg.AuthURL = "ftp://nope"
	cfg.BasePath = "agent"
	cfg.MaxReconnectAttempts = 0
	cfg.ReconnectDelay = 0
	cfg.InputSampleRate = 96000
	cfg.DebugLevel = "LOUD"

	issues := cfg.Validate()
	assert.Len(t, issues, 7)
	assert.Contains(t, issues, "Base path must start with '/'")
}

func TestConfig_PrintConfig(t *testing.T) {
	var buf bytes.Buffer
	NewConfig().PrintConfig(&buf)
	assert.Contains(t, buf.String(), "Token URL: http://localhost:3000/api/authenticate")
	assert.Contains(t, buf.String(), "Max Reconnect Attempts: 5")
}
