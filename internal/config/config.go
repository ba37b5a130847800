// Package config loads client configuration from the environment.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
)

// Config is the full client configuration.
type Config struct {
	// BaseURL is the REST endpoint of the chat backend.
	BaseURL string `env:"CHAT_BASE_URL" envDefault:"http://127.0.0.1:3000"`

	// SocketURL is the push-channel endpoint. Empty means derive from
	// BaseURL (http->ws scheme, path /ws).
	SocketURL string `env:"CHAT_SOCKET_URL"`

	// RequestTimeout bounds every REST call.
	RequestTimeout time.Duration `env:"CHAT_REQUEST_TIMEOUT" envDefault:"10s"`

	// StateDir holds the durable token store. Empty means a per-user
	// default under the OS config dir.
	StateDir string `env:"CHAT_STATE_DIR"`

	// ClearUnseenOnSelect controls whether selecting a counterpart resets
	// its unseen counter.
	ClearUnseenOnSelect bool `env:"CHAT_CLEAR_UNSEEN_ON_SELECT" envDefault:"true"`

	// NetworkRetries is the number of re-attempts after a failed REST
	// call. Zero keeps the one-shot behavior.
	NetworkRetries uint64 `env:"CHAT_NETWORK_RETRIES" envDefault:"0"`

	// RetryInterval is the pause between network re-attempts.
	RetryInterval time.Duration `env:"CHAT_RETRY_INTERVAL" envDefault:"2s"`
}

// Load parses the environment and fills in derived defaults.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "parse env")
	}
	if cfg.SocketURL == "" {
		cfg.SocketURL = DeriveSocketURL(cfg.BaseURL)
	}
	if cfg.StateDir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return Config{}, errors.Wrap(err, "resolve state dir")
		}
		cfg.StateDir = filepath.Join(base, "pelusa-chat")
	}
	return cfg, nil
}

// DeriveSocketURL maps a REST base URL to the matching push-channel URL.
func DeriveSocketURL(baseURL string) string {
	ws := baseURL
	switch {
	case strings.HasPrefix(ws, "https://"):
		ws = "wss://" + strings.TrimPrefix(ws, "https://")
	case strings.HasPrefix(ws, "http://"):
		ws = "ws://" + strings.TrimPrefix(ws, "http://")
	}
	return strings.TrimSuffix(ws, "/") + "/ws"
}
