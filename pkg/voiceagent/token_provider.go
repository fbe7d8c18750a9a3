package voiceagent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// TokenProvider fetches a fresh bearer token for one connection attempt.
// Implementations must not cache: every call is a new request.
type TokenProvider interface {
	FetchToken(ctx context.Context) (Token, error)
}

// TokenProviderFunc adapts a function to TokenProvider.
type TokenProviderFunc func(ctx context.Context) (Token, error)

func (f TokenProviderFunc) FetchToken(ctx context.Context) (Token, error) {
	return f(ctx)
}

// HTTPTokenProvider POSTs to the authentication endpoint with no body and
// expects {"access_token": "..."} back.
type HTTPTokenProvider struct {
	endpoint string
	headers  map[string]string
	client   *http.Client
	logger   *Logger
}

func NewHTTPTokenProvider(endpoint string, headers map[string]string, timeout time.Duration) *HTTPTokenProvider {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPTokenProvider{
		endpoint: endpoint,
		headers:  headers,
		client:   &http.Client{Timeout: timeout},
		logger:   GetGlobalLogger().WithComponent("TokenProvider"),
	}
}

type tokenResponse struct {
	AccessToken string          `json:"access_token"`
	ExpiresIn   float64         `json:"expires_in"`
	Error       json.RawMessage `json:"error"`
}

func (tp *HTTPTokenProvider) FetchToken(ctx context.Context) (Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tp.endpoint, http.NoBody)
	if err != nil {
		return Token{}, &TokenError{Reason: TokenTransportFailure, Err: err}
	}
	for k, v := range tp.headers {
		req.Header.Set(k, v)
	}

	resp, err := tp.client.Do(req)
	if err != nil {
		tp.logger.WithError(err).Warn("Token request failed")
		return Token{}, &TokenError{Reason: TokenTransportFailure, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Token{}, &TokenError{Reason: TokenTransportFailure, StatusCode: resp.StatusCode, Err: err}
	}

	var data tokenResponse
	decodeErr := json.Unmarshal(body, &data)

	if resp.StatusCode != http.StatusOK {
		msg := resp.Status
		if decodeErr == nil && len(data.Error) > 0 {
			msg = errorText(data.Error)
		}
		tp.logger.WithField("status", resp.StatusCode).Warnf("Authentication failed: %s", msg)
		return Token{}, &TokenError{Reason: TokenServerError, StatusCode: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return Token{}, &TokenError{Reason: TokenMissing, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode token response: %w", decodeErr)}
	}
	if len(data.Error) > 0 && string(data.Error) != "null" {
		return Token{}, &TokenError{Reason: TokenServerError, StatusCode: resp.StatusCode, Message: errorText(data.Error)}
	}
	if data.AccessToken == "" {
		return Token{}, &TokenError{Reason: TokenMissing, StatusCode: resp.StatusCode, Message: "no access token in response"}
	}

	return Token{
		AccessToken: data.AccessToken,
		ExpiresIn:   time.Duration(data.ExpiresIn * float64(time.Second)),
	}, nil
}

// errorText renders the "error" field, which may be a string or an object.
func errorText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
