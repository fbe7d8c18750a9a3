package voiceagent

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// ClientOptions configures NewClient. Only Settings is required.
type ClientOptions struct {
	Settings   *Settings
	Tokens     TokenProvider
	Dialer     Dialer
	Scheduler  Scheduler
	Source     Source
	Player     *Player
	// Registerer receives the session collectors, labelled with session_id.
	Registerer prometheus.Registerer
	Logger     *Logger
}

// Client is the object a UI layer holds. It owns one Session and, when a
// source is configured, the capture pipeline feeding it.
type Client struct {
	config  *Config
	session *Session
	capture *Capture
	player  *Player
	logger  *Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	runErr chan error
}

func NewClient(cfg *Config, opts ClientOptions) (*Client, error) {
	if cfg == nil {
		cfg = NewConfig()
	}
	if opts.Settings == nil {
		opts.Settings = DefaultSettings(cfg)
	}
	if opts.Tokens == nil {
		opts.Tokens = NewHTTPTokenProvider(cfg.TokenURL(), nil, cfg.TokenTimeout)
	}
	if opts.Logger == nil {
		opts.Logger = GetGlobalLogger()
	}

	id := uuid.NewString()
	reg := opts.Registerer
	if reg != nil {
		reg = prometheus.WrapRegistererWith(prometheus.Labels{"session_id": id}, reg)
	}

	session, err := NewSession(SessionOptions{
		ID:        id,
		Config:    cfg,
		Tokens:    opts.Tokens,
		Dialer:    opts.Dialer,
		Scheduler: opts.Scheduler,
		Settings:  opts.Settings,
		Logger:    opts.Logger,
		Metrics:   NewMetrics(reg),
	})
	if err != nil {
		return nil, err
	}

	c := &Client{
		config:  cfg,
		session: session,
		player:  opts.Player,
		logger:  opts.Logger.WithComponent("Client"),
	}

	if opts.Source != nil {
		c.capture, err = NewCapture(opts.Source, session, opts.Settings.Audio.Input.SampleRate)
		if err != nil {
			return nil, err
		}
	}
	if c.player != nil {
		session.AddFrameHandler(c.player.HandleFrame)
	}
	return c, nil
}

// Start runs the session event loop in the background.
func (c *Client) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.runErr = make(chan error, 1)
	go func() {
		c.runErr <- c.session.Run(ctx)
	}()
}

func (c *Client) Session() *Session { return c.session }

func (c *Client) Capture() *Capture { return c.capture }

func (c *Client) Connect() { c.session.Connect() }

func (c *Client) Disconnect() { c.session.Disconnect() }

func (c *Client) Reset() { c.session.Reset() }

func (c *Client) Snapshot() Snapshot { return c.session.Snapshot() }

// UpdatePrompt replaces the agent prompt on the live session.
func (c *Client) UpdatePrompt(prompt string) error {
	return c.session.SendControl(&UpdatePrompt{Prompt: prompt})
}

// UpdateSpeak switches the agent voice on the live session.
func (c *Client) UpdateSpeak(provider Provider) error {
	return c.session.SendControl(&UpdateSpeak{Speak: SpeakSettings{Provider: provider}})
}

// StartCapture begins forwarding source audio. Frames captured before the
// session is connected are dropped by the session.
func (c *Client) StartCapture() error {
	if c.capture == nil {
		return errors.New("client: no audio source configured")
	}
	return c.capture.Start()
}

func (c *Client) StopCapture() error {
	if c.capture == nil {
		return nil
	}
	return c.capture.Stop()
}

// Close stops capture and playback and ends the session loop.
func (c *Client) Close() error {
	var firstErr error
	if err := c.StopCapture(); err != nil {
		firstErr = err
	}
	if c.player != nil {
		if err := c.player.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	c.mu.Lock()
	cancel, runErr := c.cancel, c.runErr
	c.cancel = nil
	c.mu.Unlock()
	if cancel != nil {
		c.session.Disconnect()
		cancel()
		<-runErr
	}
	c.logger.Info("Client closed")
	return firstErr
}
