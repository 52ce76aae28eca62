package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all SDK settings.
type Config struct {
	// Backend service base URLs.
	AuthServiceURL string `envconfig:"AUTH_SERVICE_URL" default:"http://localhost:4000"`
	UserServiceURL string `envconfig:"USER_SERVICE_URL" default:"http://localhost:4001"`
	MenuServiceURL string `envconfig:"MENU_SERVICE_URL" default:"http://localhost:4002"`

	// Transport.
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"15s"`

	// Anti-forgery rotation poll.
	CSRFCookieName   string        `envconfig:"CSRF_COOKIE_NAME" default:"csrfToken"`
	CSRFWaitTimeout  time.Duration `envconfig:"CSRF_WAIT_TIMEOUT" default:"5s"`
	CSRFPollInterval time.Duration `envconfig:"CSRF_POLL_INTERVAL" default:"100ms"`

	// Proactive session renewal.
	RenewInterval time.Duration `envconfig:"RENEW_INTERVAL" default:"14m"`

	// PersistAccessToken opts into writing the bearer token to durable
	// storage. Off by default: the access token then lives only in memory
	// and is re-acquired via refresh after a restart.
	PersistAccessToken bool `envconfig:"PERSIST_ACCESS_TOKEN" default:"false"`

	// CoalesceRefresh collapses concurrent 401-triggered refreshes into a
	// single in-flight call. Off by default, matching the per-request
	// refresh behavior of the reference deployment.
	CoalesceRefresh bool `envconfig:"COALESCE_REFRESH" default:"false"`

	// StateDir holds the persisted session, menu cache, and device id.
	// Empty selects a per-user default under the OS config directory.
	StateDir string `envconfig:"STATE_DIR"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("tablero", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.StateDir == "" {
		dir, err := defaultStateDir()
		if err != nil {
			return nil, err
		}
		cfg.StateDir = dir
	}
	return &cfg, nil
}

// Validate checks URL and interval sanity.
func (c *Config) Validate() error {
	for name, raw := range map[string]string{
		"auth service URL": c.AuthServiceURL,
		"user service URL": c.UserServiceURL,
		"menu service URL": c.MenuServiceURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid %s: %q", name, raw)
		}
	}
	if c.CSRFPollInterval <= 0 {
		return fmt.Errorf("csrf poll interval must be positive, got %s", c.CSRFPollInterval)
	}
	if c.CSRFWaitTimeout < c.CSRFPollInterval {
		return fmt.Errorf("csrf wait timeout %s is shorter than the poll interval %s",
			c.CSRFWaitTimeout, c.CSRFPollInterval)
	}
	if c.RenewInterval < time.Minute {
		return fmt.Errorf("renew interval must be at least 1m, got %s", c.RenewInterval)
	}
	return nil
}

func defaultStateDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve state dir: %w", err)
	}
	return filepath.Join(base, "tablero"), nil
}
