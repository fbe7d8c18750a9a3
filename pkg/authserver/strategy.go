package authserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// Grant is what the authenticate endpoint returns on success.
type Grant struct {
	AccessToken string  `json:"access_token"`
	ExpiresIn   float64 `json:"expires_in,omitempty"`
}

// Strategy turns the server-held API key into a short-lived client credential.
type Strategy interface {
	Grant(ctx context.Context) (*Grant, error)
}

var ErrMissingAPIKey = errors.New("API key is not set")

// ProvidedStrategy hands out the API key itself. Only for local development.
type ProvidedStrategy struct {
	APIKey string
}

func (s ProvidedStrategy) Grant(context.Context) (*Grant, error) {
	if s.APIKey == "" {
		return nil, fmt.Errorf("can't do local development without an API key: %w", ErrMissingAPIKey)
	}
	return &Grant{AccessToken: s.APIKey}, nil
}

// JWTStrategy signs a short-lived HS256 token with a shared secret, for
// agents that verify tokens locally.
type JWTStrategy struct {
	Secret  []byte
	Subject string
	TTL     time.Duration
	Now     func() time.Time
}

func (s JWTStrategy) Grant(context.Context) (*Grant, error) {
	if len(s.Secret) == 0 {
		return nil, fmt.Errorf("jwt strategy: %w", ErrMissingAPIKey)
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	ttl := s.TTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	issued := now()
	claims := jwt.RegisteredClaims{
		Subject:   s.Subject,
		IssuedAt:  jwt.NewNumericDate(issued),
		ExpiresAt: jwt.NewNumericDate(issued.Add(ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.Secret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &Grant{AccessToken: signed, ExpiresIn: ttl.Seconds()}, nil
}

// ParseJWT validates a token issued by JWTStrategy and returns its claims.
func ParseJWT(token string, secret []byte) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// DefaultGrantURL is the upstream endpoint that mints temporary tokens.
const DefaultGrantURL = "https://api.deepgram.com/v1/auth/grant"

// GrantStrategy exchanges the API key for a temporary token upstream.
type GrantStrategy struct {
	APIKey   string
	GrantURL string
	TTL      time.Duration
	Client   *http.Client
}

func (s GrantStrategy) Grant(ctx context.Context) (*Grant, error) {
	if s.APIKey == "" {
		return nil, fmt.Errorf("grant strategy: %w", ErrMissingAPIKey)
	}
	url := s.GrantURL
	if url == "" {
		url = DefaultGrantURL
	}
	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}

	body := []byte("{}")
	if s.TTL > 0 {
		body, _ = json.Marshal(map[string]int{"ttl_seconds": int(s.TTL.Seconds())})
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Token "+s.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("grant request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read grant response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("grant request failed: %s: %s", resp.Status, bytes.TrimSpace(raw))
	}

	var g Grant
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("decode grant response: %w", err)
	}
	if g.AccessToken == "" {
		return nil, errors.New("no access token received from upstream")
	}
	return &g, nil
}
