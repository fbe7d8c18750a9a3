package voiceagent

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func agentServer(t *testing.T, received chan<- []string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{Subprotocols: []string{"bearer"}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		protocols := websocket.Subprotocols(r)
		received <- protocols
		if len(protocols) != 2 || protocols[1] != "good-token" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestWebsocketDialer_BearerSubprotocol(t *testing.T) {
	received := make(chan []string, 1)
	srv := agentServer(t, received)

	cfg := NewConfig()
	cfg.AgentEndpoint = "ws" + strings.TrimPrefix(srv.URL, "http")
	cfg.HandshakeTimeout = time.Second
	d := NewWebsocketDialer(cfg)

	conn, err := d.Dial(context.Background(), "good-token")
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, []string{"bearer", "good-token"}, <-received)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"KeepAlive"}`)))
	mt, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, mt)
	assert.Equal(t, `{"type":"KeepAlive"}`, string(data))
}

func TestWebsocketDialer_Rejected(t *testing.T) {
	received := make(chan []string, 1)
	srv := agentServer(t, received)

	d := &WebsocketDialer{Endpoint: "ws" + strings.TrimPrefix(srv.URL, "http"), HandshakeTimeout: time.Second}
	_, err := d.Dial(context.Background(), "bad-token")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestSession_AgainstWebsocketServer(t *testing.T) {
	received := make(chan []string, 4)
	srv := agentServer(t, received)

	cfg := NewConfig()
	cfg.AgentEndpoint = "ws" + strings.TrimPrefix(srv.URL, "http")
	s, err := NewSession(SessionOptions{
		Config: cfg,
		Tokens: TokenProviderFunc(func(context.Context) (Token, error) {
			return Token{AccessToken: "good-token"}, nil
		}),
		Scheduler: NewManualScheduler(),
		Settings:  DefaultSettings(cfg),
		Logger:    NopLogger(),
	})
	require.NoError(t, err)

	echoed := make(chan string, 4)
	s.AddFrameHandler(func(f InboundFrame) {
		if typ, err := PeekEventType(f.Data); err == nil {
			echoed <- typ
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()

	s.Connect()
	select {
	case typ := <-echoed:
		assert.Equal(t, TypeSettings, typ)
	case <-time.After(waitFor):
		t.Fatal("settings were not echoed")
	}
	assert.Equal(t, StateConnected, s.State())

	s.Disconnect()
	assert.Equal(t, StateIdle, s.State())
}
