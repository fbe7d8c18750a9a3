package authserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rojolang/voiceagent-sdk-go/pkg/voiceagent"
)

type failingStrategy struct{ err error }

func (f failingStrategy) Grant(context.Context) (*Grant, error) { return nil, f.err }

func post(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAuthenticate_Provided(t *testing.T) {
	h := NewHandler(ProvidedStrategy{APIKey: "dg-key"}, "", voiceagent.NopLogger())

	rec := post(t, h.Routes(), "/api/authenticate")
	require.Equal(t, http.StatusOK, rec.Code)

	var g Grant
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &g))
	assert.Equal(t, "dg-key", g.AccessToken)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestAuthenticate_BasePath(t *testing.T) {
	h := NewHandler(ProvidedStrategy{APIKey: "dg-key"}, "/agent", voiceagent.NopLogger())
	routes := h.Routes()

	assert.Equal(t, http.StatusOK, post(t, routes, "/agent/api/authenticate").Code)
	assert.Equal(t, http.StatusNotFound, post(t, routes, "/api/authenticate").Code)
}

func TestAuthenticate_MethodNotAllowed(t *testing.T) {
	h := NewHandler(ProvidedStrategy{APIKey: "dg-key"}, "", voiceagent.NopLogger())
	req := httptest.NewRequest(http.MethodGet, "/api/authenticate", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestAuthenticate_FailureReturns500(t *testing.T) {
	tests := []struct {
		name     string
		strategy Strategy
		contains string
	}{
		{"missing key", ProvidedStrategy{}, "API key is not set"},
		{"strategy error", failingStrategy{err: errors.New("upstream down")}, "upstream down"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(tt.strategy, "", voiceagent.NopLogger())
			rec := post(t, h.Routes(), "/api/authenticate")

			require.Equal(t, http.StatusInternalServerError, rec.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Contains(t, body["error"], tt.contains)
		})
	}
}

func TestJWTStrategy_RoundTrip(t *testing.T) {
	secret := []byte("test-secret")
	fixed := time.Now().Truncate(time.Second)
	s := JWTStrategy{Secret: secret, Subject: "voiceagent", TTL: time.Minute, Now: func() time.Time { return fixed }}

	g, err := s.Grant(context.Background())
	require.NoError(t, err)
	assert.Equal(t, float64(60), g.ExpiresIn)

	claims, err := ParseJWT(g.AccessToken, secret)
	require.NoError(t, err)
	assert.Equal(t, "voiceagent", claims.Subject)
	assert.Equal(t, fixed.Add(time.Minute).Unix(), claims.ExpiresAt.Unix())

	_, err = ParseJWT(g.AccessToken, []byte("other"))
	assert.Error(t, err)
}

func TestJWTStrategy_Expired(t *testing.T) {
	secret := []byte("test-secret")
	past := time.Now().Add(-time.Hour)
	s := JWTStrategy{Secret: secret, TTL: time.Second, Now: func() time.Time { return past }}

	g, err := s.Grant(context.Background())
	require.NoError(t, err)
	_, err = ParseJWT(g.AccessToken, secret)
	assert.Error(t, err)
}

func TestJWTStrategy_NoSecret(t *testing.T) {
	_, err := JWTStrategy{}.Grant(context.Background())
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestGrantStrategy(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		if r.Header.Get("Authorization") != "Token dg-key" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"err_msg":"bad key"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"temp-token","expires_in":30}`))
	}))
	defer upstream.Close()

	g, err := GrantStrategy{APIKey: "dg-key", GrantURL: upstream.URL}.Grant(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "temp-token", g.AccessToken)
	assert.Equal(t, float64(30), g.ExpiresIn)

	_, err = GrantStrategy{APIKey: "wrong", GrantURL: upstream.URL}.Grant(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")

	_, err = GrantStrategy{GrantURL: upstream.URL}.Grant(context.Background())
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestNewStrategy(t *testing.T) {
	for _, name := range []string{StrategyProvided, StrategyJWT, StrategyGrant} {
		s, err := NewStrategy(&Config{Strategy: name})
		require.NoError(t, err, name)
		assert.NotNil(t, s)
	}
	_, err := NewStrategy(&Config{Strategy: "magic"})
	assert.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("API_KEY_STRATEGY", "JWT")
	t.Setenv("VOICEAGENT_JWT_SECRET", "s3cret")
	t.Setenv("VOICEAGENT_TOKEN_TTL", "2m")
	t.Setenv("VOICEAGENT_BASE_PATH", "/agent")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, StrategyJWT, cfg.Strategy)
	assert.Equal(t, "s3cret", cfg.Secret)
	assert.Equal(t, 2*time.Minute, cfg.TTL)
	assert.Equal(t, "/agent", cfg.BasePath)

	t.Setenv("VOICEAGENT_TOKEN_TTL", "soon")
	_, err = LoadConfig()
	assert.Error(t, err)
}
