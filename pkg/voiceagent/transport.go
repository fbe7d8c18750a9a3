package voiceagent

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is the subset of *websocket.Conn the session needs.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Dialer opens an agent socket authorized by token.
type Dialer interface {
	Dial(ctx context.Context, token string) (Conn, error)
}

// WebsocketDialer dials the agent endpoint with gorilla/websocket.
//
// Browsers cannot set headers on a WebSocket handshake, so the agent accepts
// the bearer token as the subprotocol pair ["bearer", token]. The same
// convention is used here so both clients behave alike.
type WebsocketDialer struct {
	Endpoint         string
	HandshakeTimeout time.Duration
	Header           http.Header
}

func NewWebsocketDialer(cfg *Config) *WebsocketDialer {
	return &WebsocketDialer{
		Endpoint:         cfg.AgentEndpoint,
		HandshakeTimeout: cfg.HandshakeTimeout,
	}
}

func (d *WebsocketDialer) Dial(ctx context.Context, token string) (Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
		Subprotocols:     []string{"bearer", token},
	}

	conn, resp, err := dialer.DialContext(ctx, d.Endpoint, d.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %s: %w", d.Endpoint, resp.Status, err)
		}
		return nil, fmt.Errorf("dial %s: %w", d.Endpoint, err)
	}
	return conn, nil
}
