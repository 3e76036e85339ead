package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pgrootkop-cmyk/honairco/internal/auth"
)

const (
	DefaultAPIBaseURL   = "https://api-iot.he.services"
	DefaultAuthBaseURL  = "https://api-iot.he.services"
	DefaultAuthorizeURL = "https://account2.hon-smarthome.com/services/oauth2/authorize"
	DefaultTokenURL     = "https://account2.hon-smarthome.com/services/oauth2/token"
	DefaultStatePath    = "/var/lib/honairco/auth-state.json"
	DefaultHTTPAddr     = "0.0.0.0:8080"
	DefaultAccount      = "default"
	DefaultPollInterval = 60 * time.Second
)

// Config is the daemon configuration, read from HONAIRCO_* environment
// variables (optionally seeded by a .env file).
type Config struct {
	APIBaseURL   string
	AuthBaseURL  string
	AuthorizeURL string
	TokenURL     string
	ClientID     string
	Account      string
	StatePath    string
	HTTPAddr     string
	PollInterval time.Duration
	SettleDelay  time.Duration

	// Bootstrap credentials. RefreshToken seeds a fresh install; the
	// username/password pair enables the best-effort interactive login.
	RefreshToken string
	Username     string
	Password     string

	Blob auth.BlobConfig
}

// FromEnv reads, defaults, and validates the configuration.
func FromEnv() (Config, error) {
	cfg := Config{
		APIBaseURL:   envOrDefault("HONAIRCO_API_BASE_URL", DefaultAPIBaseURL),
		AuthBaseURL:  envOrDefault("HONAIRCO_AUTH_BASE_URL", DefaultAuthBaseURL),
		AuthorizeURL: envOrDefault("HONAIRCO_AUTHORIZE_URL", DefaultAuthorizeURL),
		TokenURL:     envOrDefault("HONAIRCO_TOKEN_URL", DefaultTokenURL),
		ClientID:     os.Getenv("HONAIRCO_CLIENT_ID"),
		Account:      envOrDefault("HONAIRCO_ACCOUNT", DefaultAccount),
		StatePath:    envOrDefault("HONAIRCO_STATE_PATH", DefaultStatePath),
		HTTPAddr:     envOrDefault("HONAIRCO_HTTP_ADDR", DefaultHTTPAddr),
		RefreshToken: os.Getenv("HONAIRCO_REFRESH_TOKEN"),
		Username:     os.Getenv("HONAIRCO_USERNAME"),
		Password:     os.Getenv("HONAIRCO_PASSWORD"),
		Blob: auth.BlobConfig{
			Endpoint:      os.Getenv("HONAIRCO_BLOB_ENDPOINT"),
			Bucket:        os.Getenv("HONAIRCO_BLOB_BUCKET"),
			Prefix:        os.Getenv("HONAIRCO_BLOB_PREFIX"),
			AccessKeyFile: os.Getenv("HONAIRCO_BLOB_ACCESS_KEY_FILE"),
			SecretKeyFile: os.Getenv("HONAIRCO_BLOB_SECRET_KEY_FILE"),
			Region:        os.Getenv("HONAIRCO_BLOB_REGION"),
		},
	}

	interval, err := envSeconds("HONAIRCO_POLL_INTERVAL_SECONDS", DefaultPollInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.PollInterval = interval

	settle, err := envSeconds("HONAIRCO_SETTLE_DELAY_SECONDS", 0)
	if err != nil {
		return Config{}, err
	}
	cfg.SettleDelay = settle

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate enforces required settings beyond defaults.
func Validate(cfg Config) error {
	if cfg.ClientID == "" {
		return fmt.Errorf("HONAIRCO_CLIENT_ID is required")
	}
	if cfg.StatePath == "" {
		return fmt.Errorf("state path is required")
	}
	if !strings.HasPrefix(cfg.APIBaseURL, "http") {
		return fmt.Errorf("invalid api base url %q", cfg.APIBaseURL)
	}
	if cfg.BlobEnabled() {
		if cfg.Blob.Bucket == "" || cfg.Blob.AccessKeyFile == "" || cfg.Blob.SecretKeyFile == "" {
			return fmt.Errorf("blob endpoint set but bucket or key files missing")
		}
	}
	return nil
}

// BlobEnabled reports whether the credential blob mirror is configured.
func (c Config) BlobEnabled() bool {
	return c.Blob.Endpoint != ""
}

func envOrDefault(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func envSeconds(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return time.Duration(seconds) * time.Second, nil
}
