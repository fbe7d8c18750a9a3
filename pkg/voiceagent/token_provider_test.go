package voiceagent

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tokenServer(t *testing.T, status int, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/authenticate", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestHTTPTokenProvider_Success(t *testing.T) {
	srv, calls := tokenServer(t, http.StatusOK, `{"access_token":"abc","expires_in":30}`)
	tp := NewHTTPTokenProvider(srv.URL+"/api/authenticate", map[string]string{"X-Client": "test"}, time.Second)

	tok, err := tp.FetchToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", tok.AccessToken)
	assert.Equal(t, 30*time.Second, tok.ExpiresIn)

	// No caching: each attempt is a new request.
	_, err = tp.FetchToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestHTTPTokenProvider_Failures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		reason  TokenFailureReason
		message string
	}{
		{"server error with message", http.StatusInternalServerError, `{"error":"API key is not set"}`, TokenServerError, "API key is not set"},
		{"server error without body", http.StatusBadGateway, ``, TokenServerError, "502"},
		{"error on 200", http.StatusOK, `{"error":{"code":"nope"}}`, TokenServerError, "nope"},
		{"missing token", http.StatusOK, `{}`, TokenMissing, ""},
		{"malformed body", http.StatusOK, `<html>`, TokenMissing, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := tokenServer(t, tt.status, tt.body)
			tp := NewHTTPTokenProvider(srv.URL+"/api/authenticate", nil, time.Second)

			_, err := tp.FetchToken(context.Background())
			require.Error(t, err)
			assert.Equal(t, tt.reason, TokenReason(err))

			var te *TokenError
			require.True(t, errors.As(err, &te))
			assert.Equal(t, tt.status, te.StatusCode)
			if tt.message != "" {
				assert.Contains(t, te.Message, tt.message)
			}
		})
	}
}

func TestHTTPTokenProvider_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	tp := NewHTTPTokenProvider(url+"/api/authenticate", nil, time.Second)
	_, err := tp.FetchToken(context.Background())
	require.Error(t, err)
	assert.Equal(t, TokenTransportFailure, TokenReason(err))
}

func TestHTTPTokenProvider_ContextCancel(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewHTTPTokenProvider(srv.URL, nil, time.Second).FetchToken(ctx)
	assert.Equal(t, TokenTransportFailure, TokenReason(err))
}
