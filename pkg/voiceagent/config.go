package voiceagent

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultAgentEndpoint        = "wss://agent.deepgram.com/v1/agent/converse"
	DefaultAuthPath             = "/api/authenticate"
	DefaultMaxReconnectAttempts = 5
	DefaultReconnectDelay       = 3000 * time.Millisecond
	DefaultKeepAliveInterval    = 10 * time.Second
	DefaultCaptureSampleRate    = 48000
	DefaultInputSampleRate      = 16000
	DefaultOutputSampleRate     = 24000
	DefaultCaptureBufferSize    = 4096
)

// Config holds client configuration.
type Config struct {
	AuthURL              string        `json:"auth_url"`
	BasePath             string        `json:"base_path,omitempty"`
	AgentEndpoint        string        `json:"agent_endpoint"`
	MaxReconnectAttempts int           `json:"max_reconnect_attempts"`
	ReconnectDelay       time.Duration `json:"reconnect_delay"`
	KeepAliveInterval    time.Duration `json:"keep_alive_interval"`
	HandshakeTimeout     time.Duration `json:"handshake_timeout"`
	WriteTimeout         time.Duration `json:"write_timeout"`
	TokenTimeout         time.Duration `json:"token_timeout"`
	CaptureSampleRate    int           `json:"capture_sample_rate"`
	InputSampleRate      int           `json:"input_sample_rate"`
	OutputSampleRate     int           `json:"output_sample_rate"`
	CaptureBufferSize    int           `json:"capture_buffer_size"`
	QueueSize            int           `json:"queue_size"`
	DebugLevel           string        `json:"debug_level"`
	DebugWebsocket       bool          `json:"debug_websocket"`
	AudioDeviceID        *int          `json:"audio_device_id,omitempty"`
}

// NewConfig returns defaults without reading the environment.
func NewConfig() *Config {
	return &Config{
		AuthURL:              "http://localhost:3000",
		AgentEndpoint:        DefaultAgentEndpoint,
		MaxReconnectAttempts: DefaultMaxReconnectAttempts,
		ReconnectDelay:       DefaultReconnectDelay,
		KeepAliveInterval:    DefaultKeepAliveInterval,
		HandshakeTimeout:     10 * time.Second,
		WriteTimeout:         5 * time.Second,
		TokenTimeout:         15 * time.Second,
		CaptureSampleRate:    DefaultCaptureSampleRate,
		InputSampleRate:      DefaultInputSampleRate,
		OutputSampleRate:     DefaultOutputSampleRate,
		CaptureBufferSize:    DefaultCaptureBufferSize,
		QueueSize:            256,
		DebugLevel:           "INFO",
	}
}

// LoadConfig returns defaults overridden by .env and the process environment.
func LoadConfig() (*Config, error) {
	// Load .env if exists
	_ = godotenv.Load()

	c := NewConfig()
	if err := c.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv("VOICEAGENT_AUTH_URL"); v != "" {
		c.AuthURL = v
	}
	if v := getenv("VOICEAGENT_BASE_PATH"); v != "" {
		c.BasePath = v
	}
	if v := getenv("VOICEAGENT_WS_ENDPOINT"); v != "" {
		c.AgentEndpoint = v
	}

	if v := getenv("VOICEAGENT_MAX_RECONNECT_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid VOICEAGENT_MAX_RECONNECT_ATTEMPTS: %w", err)
		}
		c.MaxReconnectAttempts = n
	}

	durations := map[string]*time.Duration{
		"VOICEAGENT_RECONNECT_DELAY":    &c.ReconnectDelay,
		"VOICEAGENT_KEEPALIVE_INTERVAL": &c.KeepAliveInterval,
		"VOICEAGENT_HANDSHAKE_TIMEOUT":  &c.HandshakeTimeout,
		"VOICEAGENT_TOKEN_TIMEOUT":      &c.TokenTimeout,
	}
	for key, dst := range durations {
		v := getenv(key)
		if v == "" {
			continue
		}
		d, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = d
	}

	ints := map[string]*int{
		"VOICEAGENT_CAPTURE_SAMPLE_RATE": &c.CaptureSampleRate,
		"VOICEAGENT_INPUT_SAMPLE_RATE":   &c.InputSampleRate,
		"VOICEAGENT_OUTPUT_SAMPLE_RATE":  &c.OutputSampleRate,
		"VOICEAGENT_CAPTURE_BUFFER_SIZE": &c.CaptureBufferSize,
	}
	for key, dst := range ints {
		v := getenv(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = n
	}

	if v := getenv("VOICEAGENT_DEBUG_LEVEL"); v != "" {
		c.DebugLevel = strings.ToUpper(v)
	}
	c.DebugWebsocket = getenv("VOICEAGENT_DEBUG_WEBSOCKET") == "true"

	if v := getenv("VOICEAGENT_AUDIO_DEVICE_ID"); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid VOICEAGENT_AUDIO_DEVICE_ID: %w", err)
		}
		c.AudioDeviceID = &id
	}
	return nil
}

// parseDuration accepts Go durations ("3s") or bare milliseconds ("3000").
func parseDuration(v string) (time.Duration, error) {
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(v)
}

// TokenURL joins the auth host, base path and the authenticate route.
func (c *Config) TokenURL() string {
	return strings.TrimRight(c.AuthURL, "/") + WithBasePath(c.BasePath, DefaultAuthPath)
}

// WithBasePath prefixes path with basePath. An empty base path means "/".
func WithBasePath(basePath, path string) string {
	if basePath == "" {
		basePath = "/"
	}
	if path == "/" {
		return basePath
	}
	return strings.TrimRight(basePath, "/") + path
}

// Validate returns list of issues
func (c *Config) Validate() []string {
	issues := []string{}

	if u, err := url.Parse(c.AgentEndpoint); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		issues = append(issues, fmt.Sprintf("Invalid agent endpoint: %q", c.AgentEndpoint))
	}
	if u, err := url.Parse(c.AuthURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		issues = append(issues, fmt.Sprintf("Invalid auth URL: %q", c.AuthURL))
	}
	if c.BasePath != "" && !strings.HasPrefix(c.BasePath, "/") {
		issues = append(issues, "Base path must start with '/'")
	}
	if c.MaxReconnectAttempts < 1 {
		issues = append(issues, "Max reconnect attempts must be at least 1")
	}
	if c.ReconnectDelay <= 0 {
		issues = append(issues, "Reconnect delay must be positive")
	}
	if c.KeepAliveInterval <= 0 {
		issues = append(issues, "Keep-alive interval must be positive")
	}
	if c.CaptureSampleRate <= 0 || c.InputSampleRate <= 0 || c.OutputSampleRate <= 0 {
		issues = append(issues, "Sample rates must be positive")
	} else if c.InputSampleRate > c.CaptureSampleRate {
		issues = append(issues, fmt.Sprintf("Input sample rate %d exceeds capture rate %d", c.InputSampleRate, c.CaptureSampleRate))
	}
	if c.QueueSize < 1 {
		issues = append(issues, "Queue size must be at least 1")
	}

	switch c.DebugLevel {
	case "TRACE", "DEBUG", "INFO", "WARNING", "WARN", "ERROR":
	default:
		issues = append(issues, fmt.Sprintf("Invalid debug level: %s", c.DebugLevel))
	}

	return issues
}

// PrintConfig writes a human readable summary.
func (c *Config) PrintConfig(w io.Writer) {
	fmt.Fprintln(w, "Voice Agent Configuration")
	fmt.Fprintln(w, "==================================================")
	fmt.Fprintf(w, "Token URL: %s\n", c.TokenURL())
	fmt.Fprintf(w, "Agent Endpoint: %s\n", c.AgentEndpoint)
	fmt.Fprintf(w, "Max Reconnect Attempts: %d\n", c.MaxReconnectAttempts)
	fmt.Fprintf(w, "Reconnect Delay: %s\n", c.ReconnectDelay)
	fmt.Fprintf(w, "Keep-Alive Interval: %s\n", c.KeepAliveInterval)
	fmt.Fprintf(w, "Capture Sample Rate: %d Hz\n", c.CaptureSampleRate)
	fmt.Fprintf(w, "Agent Input Sample Rate: %d Hz\n", c.InputSampleRate)
	fmt.Fprintf(w, "Agent Output Sample Rate: %d Hz\n", c.OutputSampleRate)
	fmt.Fprintf(w, "Debug Level: %s\n", c.DebugLevel)
	fmt.Fprintf(w, "Debug WebSocket: %t\n", c.DebugWebsocket)
	if c.AudioDeviceID != nil {
		fmt.Fprintf(w, "Audio Device ID: %d\n", *c.AudioDeviceID)
	} else {
		fmt.Fprintln(w, "Audio Device: Default")
	}
}
