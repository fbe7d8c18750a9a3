// Package authserver serves the endpoint browsers and CLI clients call to
// exchange the server-held API key for a short-lived agent token.
package authserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/rojolang/voiceagent-sdk-go/pkg/voiceagent"
)

// Strategy names accepted in API_KEY_STRATEGY.
const (
	StrategyProvided = "provided"
	StrategyJWT      = "jwt"
	StrategyGrant    = "grant"
)

// Config holds auth server settings.
type Config struct {
	Addr     string
	BasePath string
	Strategy string
	APIKey   string
	Secret   string
	TTL      time.Duration
	GrantURL string
}

// LoadConfig reads .env and the environment.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Addr:     ":3000",
		Strategy: StrategyGrant,
		TTL:      30 * time.Second,
		GrantURL: DefaultGrantURL,
	}
	if v := os.Getenv("VOICEAGENT_AUTH_ADDR"); v != "" {
		cfg.Addr = v
	}
	cfg.BasePath = os.Getenv("VOICEAGENT_BASE_PATH")
	if v := os.Getenv("API_KEY_STRATEGY"); v != "" {
		cfg.Strategy = strings.ToLower(v)
	}
	cfg.APIKey = os.Getenv("DEEPGRAM_API_KEY")
	cfg.Secret = os.Getenv("VOICEAGENT_JWT_SECRET")
	if v := os.Getenv("VOICEAGENT_TOKEN_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid VOICEAGENT_TOKEN_TTL: %w", err)
		}
		cfg.TTL = d
	}
	if v := os.Getenv("VOICEAGENT_GRANT_URL"); v != "" {
		cfg.GrantURL = v
	}
	return cfg, nil
}

// NewStrategy builds the strategy named in cfg.
func NewStrategy(cfg *Config) (Strategy, error) {
	switch cfg.Strategy {
	case StrategyProvided:
		return ProvidedStrategy{APIKey: cfg.APIKey}, nil
	case StrategyJWT:
		return JWTStrategy{Secret: []byte(cfg.Secret), Subject: "voiceagent", TTL: cfg.TTL}, nil
	case StrategyGrant:
		return GrantStrategy{APIKey: cfg.APIKey, GrantURL: cfg.GrantURL, TTL: cfg.TTL}, nil
	default:
		return nil, fmt.Errorf("unknown API_KEY_STRATEGY %q", cfg.Strategy)
	}
}

// Handler serves POST {basePath}/api/authenticate.
type Handler struct {
	strategy Strategy
	basePath string
	logger   *voiceagent.Logger
}

func NewHandler(strategy Strategy, basePath string, logger *voiceagent.Logger) *Handler {
	if logger == nil {
		logger = voiceagent.GetGlobalLogger()
	}
	return &Handler{
		strategy: strategy,
		basePath: basePath,
		logger:   logger.WithComponent("AuthServer"),
	}
}

// Routes returns a router with the authenticate endpoint registered.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	h.AuthRoutes(r)
	return r
}

// AuthRoutes registers the endpoint on an existing router.
func (h *Handler) AuthRoutes(r chi.Router) {
	r.Post(voiceagent.WithBasePath(h.basePath, voiceagent.DefaultAuthPath), h.Authenticate)
}

func (h *Handler) Authenticate(w http.ResponseWriter, r *http.Request) {
	grant, err := h.strategy.Grant(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Token grant failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, grant)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
